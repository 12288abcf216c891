package exceptions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fastprodman/topupledger/internal/repos/exceptions"
)

var _ exceptions.Exceptions = (*exceptionsRepo)(nil)

type exceptionsRepo struct{ db *sql.DB }

func New(db *sql.DB) *exceptionsRepo {
	return &exceptionsRepo{db: db}
}

func (r *exceptionsRepo) Record(ctx context.Context, e exceptions.Exception) (bool, error) {
	var payload any
	if len(e.Payload) > 0 && json.Valid(e.Payload) {
		payload = string(e.Payload)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_exceptions (provider, reference, amount, reason, payload)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (provider, reference, reason) DO NOTHING
	`, e.Provider, e.Reference, e.Amount, e.Reason, payload)
	if err != nil {
		return false, fmt.Errorf("record exception: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return affected == 1, nil
}

func (r *exceptionsRepo) List(ctx context.Context, limit, offset int) ([]exceptions.Exception, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, provider, reference, COALESCE(amount, 0), reason, COALESCE(payload::text, ''), created_at
		FROM payment_exceptions
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	defer rows.Close()

	var out []exceptions.Exception

	for rows.Next() {
		var (
			e       exceptions.Exception
			payload string
		)

		err = rows.Scan(&e.ID, &e.Provider, &e.Reference, &e.Amount, &e.Reason, &payload, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan exception: %w", err)
		}
		if payload != "" {
			e.Payload = json.RawMessage(payload)
		}

		out = append(out, e)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate exceptions: %w", err)
	}

	return out, nil
}
