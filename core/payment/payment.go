package payment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	Pending     Status = "PENDING"
	Awaiting3DS Status = "AWAITING_3DS"
	Success     Status = "SUCCESS"
	Completed   Status = "COMPLETED"
	Failed      Status = "FAILED"
)

// Open payments still wait for a gateway verdict.
func (s Status) Open() bool { return s == Pending || s == Awaiting3DS }

func (s Status) Succeeded() bool { return s == Success || s == Completed }

var (
	ErrNotFound  = errors.New("payment not found")
	ErrFinalized = errors.New("payment already finalized")
)

type Payment struct {
	ID               string          `json:"id" db:"payment_id"`
	UserID           string          `json:"userId" db:"user_id"`
	CourseID         string          `json:"courseId" db:"course_id"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	Currency         string          `json:"currency" db:"currency"`
	Status           Status          `json:"status" db:"status"`
	Provider         string          `json:"provider" db:"provider"`
	ConversationID   string          `json:"conversationId" db:"conversation_id"`
	GatewayPaymentID *string         `json:"gatewayPaymentId,omitempty" db:"gateway_payment_id"`
	TransactionID    *string         `json:"transactionId,omitempty" db:"transaction_id"`
	ErrorCode        *string         `json:"errorCode,omitempty" db:"error_code"`
	ErrorMessage     *string         `json:"errorMessage,omitempty" db:"error_message"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time       `json:"updatedAt" db:"updated_at"`
}

// ConversationID is the correlation id sent to the gateway for payment id.
func ConversationID(id string) string {
	return "payment-" + id
}

// StatusUp moves an open payment to a final or waiting state.
type StatusUp struct {
	ID               string    `db:"payment_id"`
	Status           Status    `db:"status"`
	GatewayPaymentID *string   `db:"gateway_payment_id"`
	TransactionID    *string   `db:"transaction_id"`
	ErrorCode        *string   `db:"error_code"`
	ErrorMessage     *string   `db:"error_message"`
	UpdatedAt        time.Time `db:"updated_at"`
}
