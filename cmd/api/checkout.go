package main

import (
	"context"
	"errors"
	"mamata/internal/payments"
	"mamata/internal/store"
	"net/http"

	"github.com/go-playground/validator/v10"
)

type initiatePaymentPayload struct {
	Amount        string `json:"amount" validate:"required,amount"`
	ProductName   string `json:"productName" validate:"required,max=120"`
	TransactionID string `json:"transactionId" validate:"required,max=64"`
	Method        string `json:"method" validate:"required,max=20"`
}

type initiatePaymentResponse struct {
	Success    bool              `json:"success"`
	PaymentURL string            `json:"paymentUrl"`
	FormData   map[string]string `json:"formData"`
}

// initiatePaymentHandler godoc
//
//	@Summary	Initiate a gateway payment for a checkout attempt
//	@Tags		payments
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		initiatePaymentPayload	true	"checkout attempt"
//	@Success	200		{object}	initiatePaymentResponse
//	@Failure	400		{object}	map[string]string
//	@Failure	405		{object}	map[string]string
//	@Failure	500		{object}	map[string]string
//	@Router		/payments/initiate [post]
func (app *application) initiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	var payload initiatePaymentPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, "Missing required fields", err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, validationMessage(err), err)
		return
	}

	if !app.payments.Supports(payload.Method) {
		writeJSONError(w, http.StatusBadRequest, "Unsupported payment method")
		return
	}

	resp, err := app.payments.InitiatePayment(r.Context(), payload.Method, payments.PaymentRequest{
		TransactionID: payload.TransactionID,
		Amount:        payload.Amount,
		ProductName:   payload.ProductName,
	})
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	// Correlation and audit are best-effort: the initiation contract has no
	// persistence side effects beyond logging, and a storage hiccup must not
	// block a payment the gateway will accept anyway.
	app.recordInitiation(r.Context(), payload.TransactionID, resp)

	if err := writeJSON(w, http.StatusOK, initiatePaymentResponse{
		Success:    true,
		PaymentURL: resp.PaymentURL,
		FormData:   resp.Data,
	}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// recordInitiation attaches the minted transaction_uuid to the pending order
// (if the checkout created one) and appends an audit log row.
func (app *application) recordInitiation(ctx context.Context, transactionID string, resp payments.PaymentResponse) {
	if err := app.store.Orders.SetGatewayRef(ctx, transactionID, resp.TransactionUUID, resp.Data); err != nil && !errors.Is(err, store.ErrNotFound) {
		app.logger.Errorw("failed to attach gateway ref", "transaction_id", transactionID, "error", err.Error())
	}

	if err := app.store.PaymentLogs.Insert(ctx, transactionID, "initiate", map[string]any{
		"transaction_uuid": resp.TransactionUUID,
		"payment_url":      resp.PaymentURL,
		"fields":           resp.Data,
	}); err != nil {
		app.logger.Errorw("failed to insert payment log", "transaction_id", transactionID, "error", err.Error())
	}
}

// validationMessage collapses validator output into the two messages the
// checkout page understands.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				return "Missing required fields"
			}
		}
	}
	return "Invalid payment request"
}
