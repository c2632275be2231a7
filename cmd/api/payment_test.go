package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"mamata/internal/payments"
	"mamata/internal/store"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func seedPendingOrder(t *testing.T, orders *ordersStub, transactionID, gatewayRef string) *store.Order {
	t.Helper()
	o := &store.Order{
		TransactionID: transactionID,
		ProductName:   "MAMATA",
		Amount:        "100.00",
		Method:        "esewa",
		CustomerName:  "Sita Sharma",
		CustomerEmail: "sita@example.com",
		CustomerPhone: "9841234567",
		Address:       "Lazimpat",
		City:          "Kathmandu",
	}
	if err := orders.CreatePending(context.Background(), o); err != nil {
		t.Fatal(err)
	}
	if gatewayRef != "" {
		if err := orders.SetGatewayRef(context.Background(), transactionID, gatewayRef, nil); err != nil {
			t.Fatal(err)
		}
	}
	return o
}

func esewaCallbackData(t *testing.T, status, totalAmount, transactionUUID string, tamper bool) string {
	t.Helper()
	raw := "total_amount=" + totalAmount + ",transaction_uuid=" + transactionUUID + ",product_code=" + testMerchantCode
	sig, err := payments.Sign(testSecretKey, raw)
	if err != nil {
		t.Fatal(err)
	}
	if tamper {
		sig = "x" + sig
	}
	payload := map[string]any{
		"transaction_code":   "000AWEO",
		"status":             status,
		"total_amount":       totalAmount,
		"transaction_uuid":   transactionUUID,
		"product_code":       testMerchantCode,
		"signed_field_names": "total_amount,transaction_uuid,product_code",
		"signature":          sig,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}

func getRedirect(t *testing.T, h http.Handler, path string) *url.URL {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	loc, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

func TestEsewaSuccessCallback(t *testing.T) {
	app, orders := newTestApp(t)
	mux := app.mount()

	ref := "1717171717171-aaaa"
	seedPendingOrder(t, orders, "order-1", ref)

	data := esewaCallbackData(t, "COMPLETE", "100.00", ref, false)
	loc := getRedirect(t, mux, "/v1/payments/esewa/success?data="+url.QueryEscape(data))

	if !strings.HasPrefix(loc.String(), testFrontendURL+"/order-confirmation") {
		t.Fatalf("redirected to %s", loc)
	}
	q := loc.Query()
	if q.Get("transaction_uuid") != ref || q.Get("order") != "order-1" || q.Get("method") != "esewa" {
		t.Fatalf("query = %v", q)
	}

	o, err := orders.GetByTransactionID(context.Background(), "order-1")
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != "paid" || o.PaidAt == nil {
		t.Fatalf("order not marked paid: %+v", o)
	}
}

// A verified payment with no matching order still lands on the confirmation
// page; the SPA keeps its own pending-order snapshot.
func TestEsewaSuccessCallbackUnknownOrder(t *testing.T) {
	app, _ := newTestApp(t)
	mux := app.mount()

	data := esewaCallbackData(t, "COMPLETE", "100.00", "1717171717171-zzzz", false)
	loc := getRedirect(t, mux, "/v1/payments/esewa/success?data="+url.QueryEscape(data))
	if !strings.HasPrefix(loc.String(), testFrontendURL+"/order-confirmation") {
		t.Fatalf("redirected to %s", loc)
	}
}

func TestEsewaSuccessCallbackTamperedSignature(t *testing.T) {
	app, orders := newTestApp(t)
	mux := app.mount()

	ref := "1717171717171-bbbb"
	seedPendingOrder(t, orders, "order-2", ref)

	data := esewaCallbackData(t, "COMPLETE", "100.00", ref, true)
	loc := getRedirect(t, mux, "/v1/payments/esewa/success?data="+url.QueryEscape(data))

	if !strings.HasPrefix(loc.String(), testFrontendURL+"/payment-failed") {
		t.Fatalf("redirected to %s", loc)
	}
	if loc.Query().Get("reason") != "verification_failed" {
		t.Fatalf("reason = %q", loc.Query().Get("reason"))
	}

	o, _ := orders.GetByTransactionID(context.Background(), "order-2")
	if o.Status != "pending" {
		t.Fatalf("unverified callback transitioned the order: %q", o.Status)
	}
}

func TestEsewaSuccessCallbackMissingData(t *testing.T) {
	app, _ := newTestApp(t)
	mux := app.mount()

	loc := getRedirect(t, mux, "/v1/payments/esewa/success")
	if !strings.HasPrefix(loc.String(), testFrontendURL+"/payment-failed") {
		t.Fatalf("redirected to %s", loc)
	}
	if loc.Query().Get("reason") != "invalid_callback" {
		t.Fatalf("reason = %q", loc.Query().Get("reason"))
	}
}

// Valid signature but a non-success gateway state: the user lands on the
// failure page and the order is released for retry.
func TestEsewaSuccessCallbackCanceledState(t *testing.T) {
	app, orders := newTestApp(t)
	mux := app.mount()

	ref := "1717171717171-cccc"
	seedPendingOrder(t, orders, "order-3", ref)

	data := esewaCallbackData(t, "CANCELED", "100.00", ref, false)
	loc := getRedirect(t, mux, "/v1/payments/esewa/success?data="+url.QueryEscape(data))

	if !strings.HasPrefix(loc.String(), testFrontendURL+"/payment-failed") {
		t.Fatalf("redirected to %s", loc)
	}
	if loc.Query().Get("reason") != "canceled" {
		t.Fatalf("reason = %q", loc.Query().Get("reason"))
	}

	o, _ := orders.GetByTransactionID(context.Background(), "order-3")
	if o.Status != "failed" {
		t.Fatalf("order status = %q, want failed", o.Status)
	}
}

func TestEsewaFailureCallback(t *testing.T) {
	app, orders := newTestApp(t)
	mux := app.mount()

	ref := "1717171717171-dddd"
	seedPendingOrder(t, orders, "order-4", ref)

	data := esewaCallbackData(t, "CANCELED", "100.00", ref, false)
	loc := getRedirect(t, mux, "/v1/payments/esewa/failure?data="+url.QueryEscape(data))

	if !strings.HasPrefix(loc.String(), testFrontendURL+"/payment-failed") {
		t.Fatalf("redirected to %s", loc)
	}
	if loc.Query().Get("transaction_uuid") != ref {
		t.Fatalf("query = %v", loc.Query())
	}

	o, _ := orders.GetByTransactionID(context.Background(), "order-4")
	if o.Status != "failed" {
		t.Fatalf("order status = %q, want failed", o.Status)
	}
}

func TestEsewaFailureCallbackNoData(t *testing.T) {
	app, _ := newTestApp(t)
	mux := app.mount()

	loc := getRedirect(t, mux, "/v1/payments/esewa/failure")
	if !strings.HasPrefix(loc.String(), testFrontendURL+"/payment-failed") {
		t.Fatalf("redirected to %s", loc)
	}
	if loc.Query().Get("reason") != "payment_failed" {
		t.Fatalf("reason = %q", loc.Query().Get("reason"))
	}
}

func TestEsewaStartRendersAutoPostForm(t *testing.T) {
	app, orders := newTestApp(t)
	mux := app.mount()

	seedPendingOrder(t, orders, "order-5", "")

	req := httptest.NewRequest(http.MethodGet, "/v1/payments/esewa/start?order=order-5", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}

	body := rr.Body.String()
	for _, want := range []string{
		`action="` + testEsewaConfig().FormURL + `"`,
		`name="total_amount" value="100.00"`,
		`name="product_code" value="` + testMerchantCode + `"`,
		`name="signed_field_names" value="total_amount,transaction_uuid,product_code"`,
		`name="signature"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("form missing %s\n%s", want, body)
		}
	}

	// Initiation must have attached the fresh attempt key to the order.
	o, _ := orders.GetByTransactionID(context.Background(), "order-5")
	if o.GatewayRef == nil || *o.GatewayRef == "" {
		t.Fatal("gateway ref not recorded")
	}
}

func TestEsewaStartUnknownOrder(t *testing.T) {
	app, _ := newTestApp(t)
	mux := app.mount()

	req := httptest.NewRequest(http.MethodGet, "/v1/payments/esewa/start?order=nope", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestEsewaStartPaidOrderSkipsGateway(t *testing.T) {
	app, orders := newTestApp(t)
	mux := app.mount()

	ref := "1717171717171-eeee"
	seedPendingOrder(t, orders, "order-6", ref)
	if err := orders.MarkPaid(context.Background(), ref); err != nil {
		t.Fatal(err)
	}

	loc := getRedirect(t, mux, "/v1/payments/esewa/start?order=order-6")
	if !strings.HasPrefix(loc.String(), testFrontendURL+"/order-confirmation") {
		t.Fatalf("redirected to %s", loc)
	}
}
