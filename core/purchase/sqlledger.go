package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/course-checkout/core/enrollment"
	"github.com/irsalhamdi/course-checkout/core/event"
	"github.com/irsalhamdi/course-checkout/core/payment"
	"github.com/irsalhamdi/course-checkout/database"
	"github.com/irsalhamdi/course-checkout/validate"
	"github.com/jmoiron/sqlx"
)

// SQLLedger is the PostgreSQL Ledger. Successful settlements also queue a
// PaymentSucceeded event on topic in the same transaction.
type SQLLedger struct {
	db    *sqlx.DB
	topic string
}

func NewSQLLedger(db *sqlx.DB, topic string) *SQLLedger {
	return &SQLLedger{db: db, topic: topic}
}

func (l *SQLLedger) HasEnrollment(ctx context.Context, userID, courseID string) (bool, error) {
	_, err := enrollment.FetchByUserCourse(ctx, l.db, userID, courseID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, enrollment.ErrNotFound):
		return false, nil
	}
	return false, err
}

func (l *SQLLedger) IsPurchased(ctx context.Context, userID, courseID string) (bool, error) {
	e, err := enrollment.FetchByUserCourse(ctx, l.db, userID, courseID)
	switch {
	case err == nil:
		return e.Status.Grants(), nil
	case errors.Is(err, enrollment.ErrNotFound):
		return false, nil
	}
	return false, err
}

func (l *SQLLedger) CreatePending(ctx context.Context, p payment.Payment) error {
	return payment.Create(ctx, l.db, p)
}

func (l *SQLLedger) MarkAwaiting3DS(ctx context.Context, paymentID, gatewayPaymentID string) (payment.Payment, error) {
	up := payment.StatusUp{
		ID:               paymentID,
		Status:           payment.Awaiting3DS,
		GatewayPaymentID: ptr(gatewayPaymentID),
		UpdatedAt:        time.Now().UTC(),
	}
	return l.update(ctx, up)
}

func (l *SQLLedger) FindPayment(ctx context.Context, id string) (payment.Payment, error) {
	return payment.Fetch(ctx, l.db, id)
}

func (l *SQLLedger) FindByConversation(ctx context.Context, conversationID string) (payment.Payment, error) {
	return payment.FetchByConversation(ctx, l.db, conversationID)
}

func (l *SQLLedger) Fail(ctx context.Context, f Failure) (payment.Payment, error) {
	at := f.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	up := payment.StatusUp{
		ID:            f.PaymentID,
		Status:        payment.Failed,
		TransactionID: ptr(f.TransactionID),
		ErrorCode:     ptr(f.Code),
		ErrorMessage:  ptr(f.Message),
		UpdatedAt:     at,
	}
	return l.update(ctx, up)
}

// update applies up and returns the payment as stored afterwards.
func (l *SQLLedger) update(ctx context.Context, up payment.StatusUp) (payment.Payment, error) {
	ok, err := payment.UpdateStatus(ctx, l.db, up)
	if err != nil {
		return payment.Payment{}, err
	}

	p, err := payment.Fetch(ctx, l.db, up.ID)
	if err != nil {
		return payment.Payment{}, err
	}
	if !ok {
		return p, payment.ErrFinalized
	}
	return p, nil
}

func (l *SQLLedger) Settle(ctx context.Context, s Settlement) (Settled, error) {
	var out Settled

	err := database.Transaction(ctx, l.db, func(tx sqlx.ExtContext) error {
		p, err := payment.FetchForUpdate(ctx, tx, s.PaymentID)
		if err != nil {
			return err
		}
		if !p.Status.Open() {
			out.Payment = p
			return payment.ErrFinalized
		}

		_, err = enrollment.FetchByUserCourse(ctx, tx, p.UserID, p.CourseID)
		switch {
		case err == nil:
			return enrollment.ErrExists
		case !errors.Is(err, enrollment.ErrNotFound):
			return err
		}

		up := payment.StatusUp{
			ID:            p.ID,
			Status:        s.Status,
			TransactionID: ptr(s.TransactionID),
			UpdatedAt:     s.At,
		}
		if _, err := payment.UpdateStatus(ctx, tx, up); err != nil {
			return err
		}
		p.Status = s.Status
		p.TransactionID = up.TransactionID
		p.ErrorCode, p.ErrorMessage = nil, nil
		p.UpdatedAt = s.At

		e := enrollment.New(s.EnrollmentID, p.UserID, p.CourseID, p.ID, s.At)
		if err := enrollment.Create(ctx, tx, e); err != nil {
			return err
		}

		ev, err := event.NewPaymentSucceeded(validate.GenerateID(), l.topic, event.PaymentSucceeded{
			PaymentID:        p.ID,
			UserID:           p.UserID,
			CourseID:         p.CourseID,
			EnrollmentID:     e.ID,
			Amount:           p.Amount,
			Currency:         p.Currency,
			PaymentDate:      s.At,
			GatewayPaymentID: s.TransactionID,
			ConversationID:   p.ConversationID,
		}, s.At)
		if err != nil {
			return err
		}
		if err := event.Create(ctx, tx, ev); err != nil {
			return err
		}

		out = Settled{Payment: p, Enrollment: e}
		return nil
	})

	switch {
	case err == nil:
		return out, nil

	case errors.Is(err, payment.ErrFinalized):
		return out, err

	case errors.Is(err, enrollment.ErrExists):
		p, ferr := l.Fail(ctx, Failure{
			PaymentID:     s.PaymentID,
			Code:          CodeAlreadyPurchased,
			Message:       "course already purchased",
			TransactionID: s.TransactionID,
			At:            s.At,
		})
		if ferr != nil && !errors.Is(ferr, payment.ErrFinalized) {
			return Settled{}, fmt.Errorf("failing duplicate payment[%s]: %w", s.PaymentID, ferr)
		}
		return Settled{Payment: p}, enrollment.ErrExists
	}

	return Settled{}, fmt.Errorf("settling payment[%s]: %w", s.PaymentID, err)
}

func (l *SQLLedger) FailStale(ctx context.Context, before time.Time) (int, error) {
	n, err := payment.FailOpenBefore(ctx, l.db, before, CodeStalePayment, "payment was not confirmed in time")
	return int(n), err
}
