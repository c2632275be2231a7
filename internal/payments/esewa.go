package payments

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SignedFieldNames is fixed by eSewa's ePay v2 contract: these fields, in
// this order, are what the signature covers. Reordering or renaming them
// gets the form rejected at the gateway.
const SignedFieldNames = "total_amount,transaction_uuid,product_code"

type EsewaConfig struct {
	MerchantCode string
	SecretKey    string
	FormURL      string // gateway form endpoint, e.g. https://rc-epay.esewa.com.np/api/epay/main/v2/form
	SuccessURL   string
	FailureURL   string
}

type EsewaAdapter struct {
	cfg EsewaConfig
}

// NewEsewaAdapter validates the config up front so a missing secret or
// merchant code fails at startup, never on the first checkout.
func NewEsewaAdapter(cfg EsewaConfig) (*EsewaAdapter, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingSecretKey
	}
	if cfg.MerchantCode == "" {
		return nil, fmt.Errorf("esewa: missing merchant code")
	}
	if cfg.FormURL == "" || cfg.SuccessURL == "" || cfg.FailureURL == "" {
		return nil, fmt.Errorf("esewa: missing gateway or callback URL")
	}
	return &EsewaAdapter{cfg: cfg}, nil
}

// newTransactionUUID mints the per-attempt correlation key. Millisecond
// timestamp plus a fresh UUIDv4 keeps retries of the same order distinct,
// which eSewa requires (a reused transaction_uuid is rejected).
func newTransactionUUID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString())
}

// signatureMessage builds the canonical comma-joined key=value string the
// signature covers. Field order here must match SignedFieldNames exactly.
func signatureMessage(totalAmount, transactionUUID, productCode string) string {
	return fmt.Sprintf("total_amount=%s,transaction_uuid=%s,product_code=%s",
		totalAmount, transactionUUID, productCode)
}

func (e *EsewaAdapter) InitiatePayment(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	transactionUUID := newTransactionUUID()

	raw := signatureMessage(req.Amount, transactionUUID, e.cfg.MerchantCode)
	signature, err := Sign(e.cfg.SecretKey, raw)
	if err != nil {
		return PaymentResponse{}, fmt.Errorf("esewa sign: %w", err)
	}

	// Tax, service and delivery charges are always zero in this shop; the
	// form still has to carry them so total_amount adds up on eSewa's side.
	formFields := map[string]string{
		"amount":                  req.Amount,
		"tax_amount":              "0",
		"total_amount":            req.Amount,
		"transaction_uuid":        transactionUUID,
		"product_code":            e.cfg.MerchantCode,
		"product_service_charge":  "0",
		"product_delivery_charge": "0",
		"success_url":             e.cfg.SuccessURL,
		"failure_url":             e.cfg.FailureURL,
		"signed_field_names":      SignedFieldNames,
		"signature":               signature,
	}

	return PaymentResponse{
		TransactionUUID: transactionUUID,
		PaymentURL:      e.cfg.FormURL,
		Data:            formFields,
	}, nil
}

// VerifyPayment checks the integrity of an eSewa redirect payload by
// recomputing the signature over the callback's own signed field set. There
// is no outbound call here; the redirect payload is signed with the same
// shared secret as the request.
func (e *EsewaAdapter) VerifyPayment(ctx context.Context, req PaymentVerifyRequest) (PaymentVerifyResponse, error) {
	transactionUUID := strings.TrimSpace(req.Data["transaction_uuid"])
	productCode := strings.TrimSpace(req.Data["product_code"])
	signature := strings.TrimSpace(req.Data["signature"])
	if transactionUUID == "" || productCode == "" || signature == "" {
		return PaymentVerifyResponse{}, fmt.Errorf("esewa verify: missing signed fields")
	}

	totalAmount, err := NormalizeEsewaAmount(req.Data["total_amount"])
	if err != nil {
		return PaymentVerifyResponse{ProviderRef: transactionUUID}, err
	}

	raw := signatureMessage(totalAmount, transactionUUID, productCode)
	if !VerifySignature(e.cfg.SecretKey, raw, signature) {
		return PaymentVerifyResponse{ProviderRef: transactionUUID, State: "TAMPERED"},
			fmt.Errorf("esewa verify: signature mismatch for %s", transactionUUID)
	}

	state := strings.ToUpper(strings.TrimSpace(req.Data["status"]))
	resp := PaymentVerifyResponse{
		Success:     state == "COMPLETE",
		State:       state,
		ProviderRef: transactionUUID,
	}
	switch state {
	case "COMPLETE", "CANCELED", "FULL_REFUND", "PARTIAL_REFUND", "NOT_FOUND":
		resp.Terminal = true
	}
	return resp, nil
}

// NormalizeEsewaAmount pins eSewa's amount formatting. The gateway sends
// total_amount back either as a number or a string ("1000.0", "1,000.0"),
// while our signed request used the client's verbatim decimal string. The
// response signature is computed over the value as eSewa formatted it, so we
// only strip digit grouping and keep the rest untouched.
func NormalizeEsewaAmount(v string) (string, error) {
	s := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
	if s == "" {
		return "", fmt.Errorf("esewa: empty total_amount")
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return "", fmt.Errorf("esewa: invalid total_amount %q", v)
	}
	return s, nil
}
