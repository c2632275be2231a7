package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// PaymentLogStore is an append-only audit trail of everything that crossed
// the gateway boundary: initiation payloads, redirect callbacks, verification
// outcomes. Inserts are best-effort at call sites; losing a log line must
// never fail a payment.
type PaymentLogStore interface {
	Insert(ctx context.Context, transactionID, logType string, payload any) error
}

type PaymentLogsRepository struct {
	q Querier
}

func (r *PaymentLogsRepository) Insert(ctx context.Context, transactionID, logType string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var jb []byte
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			jb = b
		}
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO payment_logs (transaction_id, log_type, payload)
		VALUES ($1, $2, $3)
	`, transactionID, logType, jb)
	if err != nil {
		return fmt.Errorf("insert payment_log: %w", err)
	}
	return nil
}
