package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const columns = `payment_id, user_id, course_id, amount, currency, status, provider,
	conversation_id, gateway_payment_id, transaction_id, error_code, error_message,
	created_at, updated_at`

func Create(ctx context.Context, db sqlx.ExtContext, p Payment) error {
	const q = `
	INSERT INTO payments (` + columns + `)
	VALUES (:payment_id, :user_id, :course_id, :amount, :currency, :status, :provider,
		:conversation_id, :gateway_payment_id, :transaction_id, :error_code, :error_message,
		:created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, p); err != nil {
		return fmt.Errorf("inserting payment[%s]: %w", p.ID, err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.QueryerContext, id string) (Payment, error) {
	return fetchOne(ctx, db, `SELECT `+columns+` FROM payments WHERE payment_id = $1`, id)
}

func FetchByConversation(ctx context.Context, db sqlx.QueryerContext, conversationID string) (Payment, error) {
	return fetchOne(ctx, db, `SELECT `+columns+` FROM payments WHERE conversation_id = $1`, conversationID)
}

// FetchForUpdate locks the payment row until the surrounding transaction ends.
func FetchForUpdate(ctx context.Context, tx sqlx.QueryerContext, id string) (Payment, error) {
	return fetchOne(ctx, tx, `SELECT `+columns+` FROM payments WHERE payment_id = $1 FOR UPDATE`, id)
}

func fetchOne(ctx context.Context, db sqlx.QueryerContext, q string, arg string) (Payment, error) {
	var p Payment
	if err := sqlx.GetContext(ctx, db, &p, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, fmt.Errorf("selecting payment[%s]: %w", arg, err)
	}
	return p, nil
}

// UpdateStatus applies up only while the payment is still open. It returns
// false when the payment had already left PENDING/AWAITING_3DS.
func UpdateStatus(ctx context.Context, db sqlx.ExtContext, up StatusUp) (bool, error) {
	const q = `
	UPDATE payments SET
		status = :status,
		gateway_payment_id = COALESCE(:gateway_payment_id, gateway_payment_id),
		transaction_id = COALESCE(:transaction_id, transaction_id),
		error_code = :error_code,
		error_message = :error_message,
		updated_at = :updated_at
	WHERE payment_id = :payment_id AND status IN ('PENDING', 'AWAITING_3DS')`

	res, err := sqlx.NamedExecContext(ctx, db, q, up)
	if err != nil {
		return false, fmt.Errorf("updating payment[%s] to %s: %w", up.ID, up.Status, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking update of payment[%s]: %w", up.ID, err)
	}
	return n == 1, nil
}

// FailOpenBefore fails every open payment last touched before t.
func FailOpenBefore(ctx context.Context, db sqlx.ExecerContext, t time.Time, code, msg string) (int64, error) {
	const q = `
	UPDATE payments SET status = $1, error_code = $2, error_message = $3, updated_at = $4
	WHERE status IN ('PENDING', 'AWAITING_3DS') AND updated_at < $5`

	res, err := db.ExecContext(ctx, q, Failed, code, msg, time.Now().UTC(), t)
	if err != nil {
		return 0, fmt.Errorf("failing open payments before %s: %w", t.Format(time.RFC3339), err)
	}
	return res.RowsAffected()
}
