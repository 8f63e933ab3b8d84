package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/amasampo/pkg/order"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

func (r *Repository) GetCheckoutByIdempotencyKey(ctx context.Context, userID, key string) (*order.Snapshot, error) {
	query := `SELECT snapshot FROM checkouts WHERE user_id = $1 AND idempotency_key = $2`

	var raw []byte
	err := r.db.QueryRowContext(ctx, query, userID, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCheckoutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query checkout by idempotency key: %w", err)
	}

	var rec order.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal checkout snapshot: %w", err)
	}
	return order.FromRecord(rec), nil
}

func (r *Repository) CreateCheckout(ctx context.Context, snap *order.Snapshot, idempotencyKey string) error {
	payload, err := json.Marshal(snap.Record())
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var key sql.NullString
	if idempotencyKey != "" {
		key = sql.NullString{String: idempotencyKey, Valid: true}
	}

	summary := snap.Summary()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkouts (id, user_id, idempotency_key, cart_version, total_amount, currency, snapshot, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		snap.ID(), snap.UserID(), key, snap.CartVersion(), summary.Total, summary.Currency, payload, snap.CreatedAt())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateCheckout
		}
		return fmt.Errorf("insert checkout: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (id, aggregate_id, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), snap.ID(), order.EventOrderPlaced, payload, snap.CreatedAt())
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkout: %w", err)
	}
	return nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events WHERE processed_at IS NULL
	          ORDER BY created_at LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

// DeleteProcessedEvents removes published events older than before.
func (r *Repository) DeleteProcessedEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM outbox_events WHERE processed_at IS NOT NULL AND processed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete processed events: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) ListPaymentMethods(ctx context.Context, userID string) ([]order.PaymentMethod, error) {
	query := `SELECT id, type, brand, last4, holder_name, is_default
	          FROM payment_methods WHERE user_id = $1 ORDER BY is_default DESC, created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query payment methods: %w", err)
	}
	defer rows.Close()

	methods := []order.PaymentMethod{}
	for rows.Next() {
		var pm order.PaymentMethod
		if err := rows.Scan(&pm.ID, &pm.Type, &pm.Brand, &pm.Last4, &pm.HolderName, &pm.IsDefault); err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		methods = append(methods, pm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return methods, nil
}

func (r *Repository) GetPaymentMethod(ctx context.Context, userID, id string) (*order.PaymentMethod, error) {
	query := `SELECT id, type, brand, last4, holder_name, is_default
	          FROM payment_methods WHERE user_id = $1 AND id = $2`

	var pm order.PaymentMethod
	err := r.db.QueryRowContext(ctx, query, userID, id).
		Scan(&pm.ID, &pm.Type, &pm.Brand, &pm.Last4, &pm.HolderName, &pm.IsDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentMethodNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query payment method: %w", err)
	}
	return &pm, nil
}

// CreatePaymentMethod stores pm. A new default method demotes the previous one.
func (r *Repository) CreatePaymentMethod(ctx context.Context, userID string, pm order.PaymentMethod) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if pm.IsDefault {
		if _, err := tx.ExecContext(ctx,
			`UPDATE payment_methods SET is_default = FALSE WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("reset default payment method: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payment_methods (id, user_id, type, brand, last4, holder_name, is_default)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pm.ID, userID, pm.Type, pm.Brand, pm.Last4, pm.HolderName, pm.IsDefault)
	if err != nil {
		return fmt.Errorf("insert payment method: %w", err)
	}

	return tx.Commit()
}
