package enrollment

import (
	"errors"
	"time"
)

type Status string

const (
	Active    Status = "ACTIVE"
	Completed Status = "COMPLETED"
	Suspended Status = "SUSPENDED"
	Cancelled Status = "CANCELLED"
)

// Grants reports whether an enrollment in status s gives access to the course.
func (s Status) Grants() bool { return s == Active || s == Completed }

var (
	ErrNotFound = errors.New("enrollment not found")
	ErrExists   = errors.New("user already enrolled in course")
)

type Enrollment struct {
	ID          string     `json:"id" db:"enrollment_id"`
	UserID      string     `json:"userId" db:"user_id"`
	CourseID    string     `json:"courseId" db:"course_id"`
	PaymentID   string     `json:"paymentId" db:"payment_id"`
	Status      Status     `json:"status" db:"status"`
	Progress    int        `json:"progress" db:"progress"`
	EnrolledAt  time.Time  `json:"enrolledAt" db:"enrolled_at"`
	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}

// New returns a fresh ACTIVE enrollment granted by paymentID.
func New(id, userID, courseID, paymentID string, now time.Time) Enrollment {
	return Enrollment{
		ID:         id,
		UserID:     userID,
		CourseID:   courseID,
		PaymentID:  paymentID,
		Status:     Active,
		EnrolledAt: now,
	}
}
