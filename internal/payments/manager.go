package payments

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupportedMethod is returned when a request names a payment method no
// gateway is registered for. Handlers map it to a 400, not a 500.
var ErrUnsupportedMethod = errors.New("unsupported payment method")

type PaymentManager struct {
	gateways map[string]PaymentGateway
}

func NewPaymentManager() *PaymentManager {
	return &PaymentManager{gateways: make(map[string]PaymentGateway)}
}

func (m *PaymentManager) RegisterGateway(name string, gateway PaymentGateway) {
	m.gateways[name] = gateway
}

// Supports reports whether a gateway is registered under the given method.
func (m *PaymentManager) Supports(method string) bool {
	_, ok := m.gateways[method]
	return ok
}

func (m *PaymentManager) InitiatePayment(ctx context.Context, method string, req PaymentRequest) (PaymentResponse, error) {
	gateway, ok := m.gateways[method]
	if !ok {
		return PaymentResponse{}, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	return gateway.InitiatePayment(ctx, req)
}

func (m *PaymentManager) VerifyPayment(ctx context.Context, method string, req PaymentVerifyRequest) (PaymentVerifyResponse, error) {
	gateway, ok := m.gateways[method]
	if !ok {
		return PaymentVerifyResponse{}, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	return gateway.VerifyPayment(ctx, req)
}
