package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	Pending Status = "PENDING"
	Sent    Status = "SENT"
)

const TypePaymentSucceeded = "PaymentSucceeded"

// Event is an outbox row. It is written in the same transaction as the
// state change it announces and published later by the Relay.
type Event struct {
	ID          string          `db:"event_id"`
	AggregateID string          `db:"aggregate_id"`
	Type        string          `db:"event_type"`
	Topic       string          `db:"topic"`
	Key         string          `db:"event_key"`
	Payload     json.RawMessage `db:"payload"`
	Status      Status          `db:"status"`
	CreatedAt   time.Time       `db:"created_at"`
	SentAt      *time.Time      `db:"sent_at"`
}

// PaymentSucceeded tells downstream services that a user bought a course.
type PaymentSucceeded struct {
	PaymentID        string          `json:"paymentId"`
	UserID           string          `json:"userId"`
	CourseID         string          `json:"courseId"`
	EnrollmentID     string          `json:"enrollmentId"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	PaymentDate      time.Time       `json:"paymentDate"`
	GatewayPaymentID string          `json:"gatewayPaymentId"`
	ConversationID   string          `json:"conversationId"`
}

func NewPaymentSucceeded(id, topic string, p PaymentSucceeded, now time.Time) (Event, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return Event{}, fmt.Errorf("encoding payment[%s] event: %w", p.PaymentID, err)
	}

	return Event{
		ID:          id,
		AggregateID: p.PaymentID,
		Type:        TypePaymentSucceeded,
		Topic:       topic,
		Key:         p.UserID,
		Payload:     b,
		Status:      Pending,
		CreatedAt:   now,
	}, nil
}
