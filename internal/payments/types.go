package payments

// PaymentRequest carries what a checkout attempt needs to start a payment.
// Amount is the decimal string the client displayed (e.g. "100.00"); it is
// passed through to the gateway verbatim so the signed message always matches
// what the user agreed to pay.
type PaymentRequest struct {
	TransactionID string
	Amount        string
	ProductName   string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

type PaymentResponse struct {
	TransactionUUID string
	PaymentURL      string
	Data            map[string]string // form fields posted to the gateway
}

type PaymentVerifyRequest struct {
	TransactionID string
	Data          map[string]string
}

type PaymentVerifyResponse struct {
	Success     bool
	State       string // gateway state, e.g. COMPLETE, PENDING, CANCELED
	Terminal    bool
	ProviderRef string
}
