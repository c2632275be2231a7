package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

const validOrderBody = `{
	"transactionId": "order-100",
	"productName": "Mamata Care Package",
	"amount": "1500.00",
	"method": "esewa",
	"customerName": "Sita Sharma",
	"customerEmail": "sita@example.com",
	"customerPhone": "9841234567",
	"address": "Lazimpat",
	"city": "Kathmandu"
}`

func TestCreateOrder(t *testing.T) {
	app, _ := newTestApp(t)
	mux := app.mount()

	rr := postJSON(t, mux, "/v1/orders/", validOrderBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Data struct {
			ID            int64  `json:"id"`
			TransactionID string `json:"transaction_id"`
			Status        string `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Status != "pending" || resp.Data.TransactionID != "order-100" {
		t.Fatalf("order = %+v", resp.Data)
	}
}

func TestCreateOrderDuplicate(t *testing.T) {
	app, _ := newTestApp(t)
	mux := app.mount()

	if rr := postJSON(t, mux, "/v1/orders/", validOrderBody); rr.Code != http.StatusCreated {
		t.Fatalf("first create: status = %d", rr.Code)
	}
	rr := postJSON(t, mux, "/v1/orders/", validOrderBody)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate create: status = %d", rr.Code)
	}
}

func TestCreateOrderInvalidPhone(t *testing.T) {
	app, _ := newTestApp(t)
	mux := app.mount()

	body := `{
		"transactionId": "order-101",
		"productName": "Mamata Care Package",
		"amount": "1500.00",
		"method": "esewa",
		"customerName": "Sita Sharma",
		"customerEmail": "sita@example.com",
		"customerPhone": "12345",
		"address": "Lazimpat",
		"city": "Kathmandu"
	}`
	rr := postJSON(t, mux, "/v1/orders/", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestGetOrder(t *testing.T) {
	app, orders := newTestApp(t)
	mux := app.mount()

	seedPendingOrder(t, orders, "order-102", "")

	req := httptest.NewRequest(http.MethodGet, "/v1/orders/order-102", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/orders/missing", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	app, _ := newTestApp(t)
	mux := app.mount()

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}
