package main

import (
	"context"
	"mamata/internal/payments"
	"mamata/internal/ratelimiter"
	"mamata/internal/store"
	"testing"
	"time"

	"go.uber.org/zap"
)

const (
	testMerchantCode = "EPAYTEST"
	testSecretKey    = "8gBm/:&EnhH.1/q"
	testFrontendURL  = "http://localhost:5173"
)

func testEsewaConfig() payments.EsewaConfig {
	return payments.EsewaConfig{
		MerchantCode: testMerchantCode,
		SecretKey:    testSecretKey,
		FormURL:      "https://rc-epay.esewa.com.np/api/epay/main/v2/form",
		SuccessURL:   "http://localhost:8080/v1/payments/esewa/success",
		FailureURL:   "http://localhost:8080/v1/payments/esewa/failure",
	}
}

func newTestApp(t *testing.T) (*application, *ordersStub) {
	t.Helper()

	esewa, err := payments.NewEsewaAdapter(testEsewaConfig())
	if err != nil {
		t.Fatal(err)
	}
	manager := payments.NewPaymentManager()
	manager.RegisterGateway("esewa", esewa)

	orders := newOrdersStub()
	app := &application{
		config: config{
			addr:        ":8080",
			env:         "test",
			frontendURL: testFrontendURL,
			payment:     paymentConfig{esewa: testEsewaConfig()},
			rateLimiter: ratelimiter.Config{Enabled: false},
		},
		logger:      zap.NewNop().Sugar(),
		store:       store.Storage{Orders: orders, PaymentLogs: &paymentLogsStub{}},
		payments:    manager,
		rateLimiter: ratelimiter.NewFixedWindowLimiter(100, time.Second),
	}
	return app, orders
}

type ordersStub struct {
	byTransactionID map[string]*store.Order
	nextID          int64
}

func newOrdersStub() *ordersStub {
	return &ordersStub{byTransactionID: make(map[string]*store.Order)}
}

func (s *ordersStub) CreatePending(ctx context.Context, o *store.Order) error {
	if _, ok := s.byTransactionID[o.TransactionID]; ok {
		return store.ErrConflict
	}
	s.nextID++
	o.ID = s.nextID
	o.Status = "pending"
	o.CreatedAt = time.Now()
	s.byTransactionID[o.TransactionID] = o
	return nil
}

func (s *ordersStub) GetByTransactionID(ctx context.Context, transactionID string) (*store.Order, error) {
	o, ok := s.byTransactionID[transactionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return o, nil
}

func (s *ordersStub) GetByGatewayRef(ctx context.Context, gatewayRef string) (*store.Order, error) {
	for _, o := range s.byTransactionID {
		if o.GatewayRef != nil && *o.GatewayRef == gatewayRef {
			return o, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *ordersStub) SetGatewayRef(ctx context.Context, transactionID, gatewayRef string, formFields map[string]string) error {
	o, ok := s.byTransactionID[transactionID]
	if !ok || o.Status != "pending" {
		return store.ErrNotFound
	}
	o.GatewayRef = &gatewayRef
	return nil
}

func (s *ordersStub) MarkPaid(ctx context.Context, gatewayRef string) error {
	o, err := s.GetByGatewayRef(ctx, gatewayRef)
	if err != nil {
		return err
	}
	o.Status = "paid"
	now := time.Now()
	o.PaidAt = &now
	return nil
}

func (s *ordersStub) MarkFailed(ctx context.Context, gatewayRef string) error {
	o, err := s.GetByGatewayRef(ctx, gatewayRef)
	if err != nil {
		return err
	}
	if o.Status == "pending" {
		o.Status = "failed"
	}
	return nil
}

type paymentLogsStub struct {
	entries []string
}

func (s *paymentLogsStub) Insert(ctx context.Context, transactionID, logType string, payload any) error {
	s.entries = append(s.entries, transactionID+":"+logType)
	return nil
}
