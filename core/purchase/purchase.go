package purchase

import (
	"errors"

	"github.com/irsalhamdi/course-checkout/core/payment"
	"github.com/irsalhamdi/course-checkout/gateway"
	"github.com/shopspring/decimal"
)

// Status is the stable tag every purchase answer carries.
type Status string

const (
	StatusSuccess           Status = "SUCCESS"
	StatusFailure           Status = "FAILURE"
	StatusRequires3DS       Status = "REQUIRES_3DS"
	StatusAlreadyPurchased  Status = "ALREADY_PURCHASED"
	StatusCourseUnavailable Status = "COURSE_UNAVAILABLE"
	StatusPending           Status = "PENDING"
)

// Error codes set by this service. Gateway codes are passed through as is.
const (
	CodeCourseNotFound    = "COURSE_NOT_FOUND"
	CodeCourseUnpublished = "COURSE_UNPUBLISHED"
	CodeInvalidPrice      = "INVALID_PRICE"
	CodeAlreadyPurchased  = "ALREADY_PURCHASED"
	Code3DSFailed         = "THREE_DS_FAILED"
	CodeStalePayment      = "STALE_PAYMENT"
)

var (
	ErrUnknownConversation = errors.New("no payment for conversation")
	ErrCallbackMismatch    = errors.New("callback payment id does not match the initialized payment")
)

type Request struct {
	UserID   string `json:"-"`
	CourseID string `json:"courseId" validate:"required"`

	// Amount is accepted for client convenience and otherwise ignored: the
	// catalog price is what gets charged.
	Amount *decimal.Decimal `json:"amount,omitempty"`

	Card  gateway.Card  `json:"card"`
	Buyer gateway.Buyer `json:"buyer"`
}

// CallbackParams are the fields the gateway posts back after a 3DS
// challenge. PaymentID is the gateway's id, not ours.
type CallbackParams struct {
	Status         string
	PaymentID      string
	ConversationID string
	MDStatus       string
	ErrorMessage   string
}

// Outcome is the answer to a purchase attempt. It never carries card data.
type Outcome struct {
	Status             Status `json:"status"`
	Message            string `json:"message"`
	PaymentID          string `json:"paymentId,omitempty"`
	ConversationID     string `json:"conversationId,omitempty"`
	EnrollmentID       string `json:"enrollmentId,omitempty"`
	TransactionID      string `json:"transactionId,omitempty"`
	Amount             string `json:"amount,omitempty"`
	Currency           string `json:"currency,omitempty"`
	ErrorCode          string `json:"errorCode,omitempty"`
	ThreeDSHTMLContent string `json:"threeDSHtmlContent,omitempty"`
	CallbackURL        string `json:"callbackUrl,omitempty"`
}

// outcomeOf rebuilds the answer for a payment that was already decided.
func outcomeOf(p payment.Payment) Outcome {
	out := Outcome{
		PaymentID:      p.ID,
		ConversationID: p.ConversationID,
		Amount:         p.Amount.StringFixed(2),
		Currency:       p.Currency,
		TransactionID:  deref(p.TransactionID),
		ErrorCode:      deref(p.ErrorCode),
	}

	switch {
	case p.Status.Succeeded():
		out.Status = StatusSuccess
		out.Message = "payment completed"
	case p.Status.Open():
		out.Status = StatusPending
		out.Message = "payment is still being processed"
	case out.ErrorCode == CodeAlreadyPurchased:
		out.Status = StatusAlreadyPurchased
		out.Message = deref(p.ErrorMessage)
	default:
		out.Status = StatusFailure
		out.Message = deref(p.ErrorMessage)
		if out.Message == "" {
			out.Message = "payment failed"
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
