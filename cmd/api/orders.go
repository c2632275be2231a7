package main

import (
	"errors"
	"mamata/internal/store"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// createOrderPayload is the cart + shipping snapshot the checkout page
// submits before redirecting to the gateway. It is the server-side home for
// what the SPA used to keep only in localStorage.
type createOrderPayload struct {
	TransactionID string `json:"transactionId" validate:"required,max=64"`
	ProductName   string `json:"productName" validate:"required,max=120"`
	Amount        string `json:"amount" validate:"required,amount"`
	Method        string `json:"method" validate:"required,oneof=esewa cod"`
	CustomerName  string `json:"customerName" validate:"required,max=100"`
	CustomerEmail string `json:"customerEmail" validate:"required,email"`
	CustomerPhone string `json:"customerPhone" validate:"required,nepaliphone"`
	Address       string `json:"address" validate:"required,max=200"`
	City          string `json:"city" validate:"required,max=100"`
}

// createOrderHandler godoc
//
//	@Summary	Create a pending order before the gateway redirect
//	@Tags		orders
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		createOrderPayload	true	"order snapshot"
//	@Success	201		{object}	store.Order
//	@Failure	400		{object}	map[string]string
//	@Failure	409		{object}	map[string]string
//	@Router		/orders [post]
func (app *application) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var payload createOrderPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, "Missing required fields", err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, validationMessage(err), err)
		return
	}

	order := &store.Order{
		TransactionID: payload.TransactionID,
		ProductName:   payload.ProductName,
		Amount:        payload.Amount,
		Method:        payload.Method,
		CustomerName:  payload.CustomerName,
		CustomerEmail: payload.CustomerEmail,
		CustomerPhone: payload.CustomerPhone,
		Address:       payload.Address,
		City:          payload.City,
	}

	if err := app.store.Orders.CreatePending(r.Context(), order); err != nil {
		// Unique transaction_id keeps a double-submitted checkout from
		// producing two live orders.
		if errors.Is(err, store.ErrConflict) {
			app.conflictResponse(w, r, err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, order); err != nil {
		app.internalServerError(w, r, err)
	}
}

// getOrderHandler godoc
//
//	@Summary	Fetch an order for the confirmation page
//	@Tags		orders
//	@Produce	json
//	@Param		transactionID	path		string	true	"order transaction id"
//	@Success	200				{object}	store.Order
//	@Failure	404				{object}	map[string]string
//	@Router		/orders/{transactionID} [get]
func (app *application) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")

	order, err := app.store.Orders.GetByTransactionID(r.Context(), transactionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			app.notFoundResponse(w, r, err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, order); err != nil {
		app.internalServerError(w, r, err)
	}
}
