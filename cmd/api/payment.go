package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mamata/internal/payments"
	"mamata/internal/store"
	"net/http"
	"net/url"
	"strings"
	"text/template"
	"time"
)

// esewaStartHandler initiates a payment for a stored pending order and
// answers with a self-submitting HTML form POSTing to the gateway. This is
// the server-rendered redirect driver; SPA clients build the same form in the
// browser from the JSON initiation response instead.
//
// GET /v1/payments/esewa/start?order=<transactionID>
func (app *application) esewaStartHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	transactionID := strings.TrimSpace(r.URL.Query().Get("order"))
	if transactionID == "" {
		app.badRequestResponse(w, r, "Missing required fields", fmt.Errorf("missing order query param"))
		return
	}

	order, err := app.store.Orders.GetByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			app.notFoundResponse(w, r, err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	// Already settled: skip the gateway round-trip entirely.
	if order.Status == "paid" {
		app.redirectToFrontend(w, r, "/order-confirmation", url.Values{
			"order":  {order.TransactionID},
			"method": {order.Method},
		})
		return
	}

	// Fresh transaction_uuid each attempt so a retry never collides with an
	// earlier abandoned form.
	resp, err := app.payments.InitiatePayment(ctx, "esewa", payments.PaymentRequest{
		TransactionID: order.TransactionID,
		Amount:        order.Amount,
		ProductName:   order.ProductName,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
	})
	if err != nil {
		app.internalServerError(w, r, fmt.Errorf("esewa initiate: %w", err))
		return
	}

	app.recordInitiation(ctx, order.TransactionID, resp)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(http.StatusOK)
	if err := renderAutoPostForm(w, resp.PaymentURL, resp.Data); err != nil {
		app.logger.Errorw("render auto-post form", "transaction_id", order.TransactionID, "error", err.Error())
	}
}

func renderAutoPostForm(w http.ResponseWriter, action string, fields map[string]string) error {
	const tpl = `<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Redirecting…</title>
  <style>
    body { font-family: -apple-system, system-ui, Segoe UI, Roboto, Arial; padding: 24px; }
    .box { max-width: 480px; margin: 40px auto; text-align: center; }
  </style>
</head>
<body>
  <div class="box">
    <h3>Redirecting to eSewa…</h3>
    <p>Please wait.</p>

    <form id="f" method="POST" action="{{.Action}}">
      {{range $k, $v := .Fields}}
        <input type="hidden" name="{{$k}}" value="{{$v}}">
      {{end}}
      <noscript><button type="submit">Continue</button></noscript>
    </form>

    <script>
      (function(){ document.getElementById('f').submit(); })();
    </script>
  </div>
</body>
</html>`
	t := template.Must(template.New("p").Parse(tpl))
	return t.Execute(w, map[string]any{
		"Action": action,
		"Fields": fields,
	})
}

// esewaCallbackPayload is the base64-JSON blob eSewa appends to its redirect
// as the `data` query parameter.
type esewaCallbackPayload struct {
	TransactionCode  string `json:"transaction_code"`
	Status           string `json:"status"` // COMPLETE, PENDING, CANCELED, ...
	TotalAmount      any    `json:"total_amount"`
	TransactionUUID  string `json:"transaction_uuid"`
	ProductCode      string `json:"product_code"`
	SignedFieldNames string `json:"signed_field_names"`
	Signature        string `json:"signature"`
}

func decodeEsewaCallback(r *http.Request) (*esewaCallbackPayload, error) {
	dataB64 := strings.TrimSpace(r.URL.Query().Get("data"))
	if dataB64 == "" {
		return nil, fmt.Errorf("missing data query param")
	}

	rawJSON, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}

	var p esewaCallbackPayload
	// UseNumber keeps total_amount exactly as eSewa formatted it; the
	// response signature covers that formatting.
	dec := json.NewDecoder(bytes.NewReader(rawJSON))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &p, nil
}

// verifyData flattens the payload into the field map the gateway adapter
// verifies. total_amount may arrive as a JSON number or string.
func (p *esewaCallbackPayload) verifyData() map[string]string {
	total := ""
	switch t := p.TotalAmount.(type) {
	case string:
		total = t
	case json.Number:
		total = t.String()
	case float64:
		total = fmt.Sprintf("%g", t)
	}
	return map[string]string{
		"status":             p.Status,
		"total_amount":       total,
		"transaction_uuid":   strings.TrimSpace(p.TransactionUUID),
		"product_code":       strings.TrimSpace(p.ProductCode),
		"signed_field_names": p.SignedFieldNames,
		"signature":          strings.TrimSpace(p.Signature),
	}
}

// esewaSuccessHandler is where eSewa sends the browser after the user
// completes payment. The redirect payload is integrity-checked against the
// shared secret before anything transitions; the user always ends up on a
// frontend page, never a raw JSON error.
//
// GET /v1/payments/esewa/success?data=<base64 JSON>
func (app *application) esewaSuccessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	p, err := decodeEsewaCallback(r)
	if err != nil {
		app.logger.Warnw("esewa success callback rejected", "error", err.Error())
		app.redirectToFrontend(w, r, "/payment-failed", url.Values{"reason": {"invalid_callback"}})
		return
	}

	ver, err := app.payments.VerifyPayment(ctx, "esewa", payments.PaymentVerifyRequest{
		TransactionID: p.TransactionUUID,
		Data:          p.verifyData(),
	})
	if err != nil {
		app.logger.Warnw("esewa callback verification failed",
			"transaction_uuid", p.TransactionUUID, "error", err.Error())
		app.logCallback(ctx, p, false)
		app.redirectToFrontend(w, r, "/payment-failed", url.Values{"reason": {"verification_failed"}})
		return
	}

	app.logCallback(ctx, p, true)

	if !ver.Success {
		if ver.Terminal {
			app.markFailed(ctx, ver.ProviderRef)
		}
		app.redirectToFrontend(w, r, "/payment-failed", url.Values{
			"reason":           {strings.ToLower(ver.State)},
			"transaction_uuid": {ver.ProviderRef},
		})
		return
	}

	q := url.Values{
		"method":           {"esewa"},
		"transaction_uuid": {ver.ProviderRef},
	}

	err = app.store.Orders.MarkPaid(ctx, ver.ProviderRef)
	switch {
	case err == nil:
		if order, gerr := app.store.Orders.GetByGatewayRef(ctx, ver.ProviderRef); gerr == nil {
			q.Set("order", order.TransactionID)
		}
	case errors.Is(err, store.ErrNotFound):
		// No pending order for this attempt (SPA-only checkout keeps its own
		// snapshot); the confirmation page still renders from query params.
		app.logger.Infow("no pending order for verified payment", "transaction_uuid", ver.ProviderRef)
	default:
		// The gateway confirmed the money moved; never bounce the user to a
		// failure page over a bookkeeping error. Reconcile from payment logs.
		app.logger.Errorw("failed to mark order paid", "transaction_uuid", ver.ProviderRef, "error", err.Error())
	}

	app.redirectToFrontend(w, r, "/order-confirmation", q)
}

// esewaFailureHandler is the failure_url target: the user canceled or the
// payment could not be completed. The pending order is released for retry and
// the browser lands on the retry page.
//
// GET /v1/payments/esewa/failure[?data=<base64 JSON>]
func (app *application) esewaFailureHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	reason := "payment_failed"
	q := url.Values{}

	// eSewa does not always attach a payload on the failure leg; when it
	// does, use it for correlation but never trust it further than that.
	if p, err := decodeEsewaCallback(r); err == nil {
		app.logCallback(ctx, p, false)
		if uuid := strings.TrimSpace(p.TransactionUUID); uuid != "" {
			app.markFailed(ctx, uuid)
			q.Set("transaction_uuid", uuid)
		}
		if p.Status != "" {
			reason = strings.ToLower(p.Status)
		}
	}

	q.Set("reason", reason)
	app.redirectToFrontend(w, r, "/payment-failed", q)
}

func (app *application) markFailed(ctx context.Context, gatewayRef string) {
	if err := app.store.Orders.MarkFailed(ctx, gatewayRef); err != nil && !errors.Is(err, store.ErrNotFound) {
		app.logger.Errorw("failed to mark order failed", "transaction_uuid", gatewayRef, "error", err.Error())
	}
}

func (app *application) logCallback(ctx context.Context, p *esewaCallbackPayload, verified bool) {
	if err := app.store.PaymentLogs.Insert(ctx, p.TransactionUUID, "callback", map[string]any{
		"verified": verified,
		"payload":  p,
	}); err != nil {
		app.logger.Errorw("failed to insert payment log", "transaction_uuid", p.TransactionUUID, "error", err.Error())
	}
}

// redirectToFrontend sends the browser to an internal SPA route. 303 forces a
// GET regardless of how the gateway delivered the callback.
func (app *application) redirectToFrontend(w http.ResponseWriter, r *http.Request, path string, q url.Values) {
	dest := strings.TrimRight(app.config.frontendURL, "/") + path
	if len(q) > 0 {
		dest += "?" + q.Encode()
	}
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	http.Redirect(w, r, dest, http.StatusSeeOther)
}
