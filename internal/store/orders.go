package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Order is the server-side pending-order snapshot created at checkout, before
// the browser leaves for the gateway. It is the correlation record between a
// checkout attempt and the gateway callback: transaction_id comes from the
// client, gateway_ref is the transaction_uuid minted at initiation.
type Order struct {
	ID            int64      `json:"id"`
	TransactionID string     `json:"transaction_id"`
	ProductName   string     `json:"product_name"`
	Amount        string     `json:"amount"`
	Method        string     `json:"method"`
	Status        string     `json:"status"` // pending | paid | failed
	GatewayRef    *string    `json:"gateway_ref,omitempty"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	CustomerPhone string     `json:"customer_phone"`
	Address       string     `json:"address"`
	City          string     `json:"city"`
	CreatedAt     time.Time  `json:"created_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

type OrderStore interface {
	CreatePending(ctx context.Context, o *Order) error
	GetByTransactionID(ctx context.Context, transactionID string) (*Order, error)
	GetByGatewayRef(ctx context.Context, gatewayRef string) (*Order, error)
	SetGatewayRef(ctx context.Context, transactionID, gatewayRef string, formFields map[string]string) error
	MarkPaid(ctx context.Context, gatewayRef string) error
	MarkFailed(ctx context.Context, gatewayRef string) error
}

type OrdersRepository struct {
	q Querier
}

func (r *OrdersRepository) CreatePending(ctx context.Context, o *Order) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := r.q.QueryRow(ctx, `
		INSERT INTO orders (transaction_id, product_name, amount, method, status,
		                    customer_name, customer_email, customer_phone, address, city)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7, $8, $9)
		RETURNING id, status, created_at
	`, o.TransactionID, o.ProductName, o.Amount, o.Method,
		o.CustomerName, o.CustomerEmail, o.CustomerPhone, o.Address, o.City).
		Scan(&o.ID, &o.Status, &o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 = unique_violation on transaction_id
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *OrdersRepository) GetByTransactionID(ctx context.Context, transactionID string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var o Order
	err := r.q.QueryRow(ctx, `
		SELECT id, transaction_id, product_name, amount, method, status, gateway_ref,
		       customer_name, customer_email, customer_phone, address, city, created_at, paid_at
		FROM orders WHERE transaction_id = $1
	`, transactionID).Scan(
		&o.ID, &o.TransactionID, &o.ProductName, &o.Amount, &o.Method, &o.Status, &o.GatewayRef,
		&o.CustomerName, &o.CustomerEmail, &o.CustomerPhone, &o.Address, &o.City, &o.CreatedAt, &o.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *OrdersRepository) GetByGatewayRef(ctx context.Context, gatewayRef string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var o Order
	err := r.q.QueryRow(ctx, `
		SELECT id, transaction_id, product_name, amount, method, status, gateway_ref,
		       customer_name, customer_email, customer_phone, address, city, created_at, paid_at
		FROM orders WHERE gateway_ref = $1
	`, gatewayRef).Scan(
		&o.ID, &o.TransactionID, &o.ProductName, &o.Amount, &o.Method, &o.Status, &o.GatewayRef,
		&o.CustomerName, &o.CustomerEmail, &o.CustomerPhone, &o.Address, &o.City, &o.CreatedAt, &o.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// SetGatewayRef attaches the freshly minted transaction_uuid (and the form
// payload, for support) to the order. Each initiation attempt overwrites the
// previous ref; only the latest attempt can complete.
func (r *OrdersRepository) SetGatewayRef(ctx context.Context, transactionID, gatewayRef string, formFields map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var payload []byte
	if formFields != nil {
		if b, err := json.Marshal(formFields); err == nil {
			payload = b
		}
	}

	tag, err := r.q.Exec(ctx, `
		UPDATE orders SET gateway_ref = $1, gateway_payload = $2
		WHERE transaction_id = $3 AND status = 'pending'
	`, gatewayRef, payload, transactionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *OrdersRepository) MarkPaid(ctx context.Context, gatewayRef string) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	// Idempotent: a repeated success callback leaves paid_at untouched.
	tag, err := r.q.Exec(ctx, `
		UPDATE orders SET status = 'paid', paid_at = now()
		WHERE gateway_ref = $1 AND status <> 'paid'
	`, gatewayRef)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *OrdersRepository) MarkFailed(ctx context.Context, gatewayRef string) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	// Never downgrade a paid order; the failure page can still be reached by
	// stale redirects.
	tag, err := r.q.Exec(ctx, `
		UPDATE orders SET status = 'failed'
		WHERE gateway_ref = $1 AND status = 'pending'
	`, gatewayRef)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
