package purchase

import (
	"context"
	"time"

	"github.com/irsalhamdi/course-checkout/core/enrollment"
	"github.com/irsalhamdi/course-checkout/core/payment"
)

// Ledger stores payments and enrollments. Every status change it makes is
// compare-and-set from PENDING or AWAITING_3DS, so a payment is finalized
// exactly once.
type Ledger interface {
	// HasEnrollment reports an enrollment of any status for the pair.
	HasEnrollment(ctx context.Context, userID, courseID string) (bool, error)

	// IsPurchased reports an enrollment that grants access.
	IsPurchased(ctx context.Context, userID, courseID string) (bool, error)

	CreatePending(ctx context.Context, p payment.Payment) error
	MarkAwaiting3DS(ctx context.Context, paymentID, gatewayPaymentID string) (payment.Payment, error)
	FindPayment(ctx context.Context, id string) (payment.Payment, error)
	FindByConversation(ctx context.Context, conversationID string) (payment.Payment, error)

	// Settle finalizes a successful payment and enrolls its user in one
	// atomic step. It returns payment.ErrFinalized with the stored payment
	// when the payment was already decided, and enrollment.ErrExists with
	// the payment failed as ALREADY_PURCHASED when the user owns the course.
	Settle(ctx context.Context, s Settlement) (Settled, error)

	// Fail returns payment.ErrFinalized with the stored payment when the
	// payment was already decided.
	Fail(ctx context.Context, f Failure) (payment.Payment, error)

	FailStale(ctx context.Context, before time.Time) (int, error)
}

type Settlement struct {
	PaymentID     string
	Status        payment.Status
	TransactionID string
	EnrollmentID  string
	At            time.Time
}

type Settled struct {
	Payment    payment.Payment
	Enrollment enrollment.Enrollment
}

type Failure struct {
	PaymentID     string
	Code          string
	Message       string
	TransactionID string
	At            time.Time
}
