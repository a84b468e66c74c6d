package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/irsalhamdi/course-checkout/database"
	"github.com/jmoiron/sqlx"
)

// Create inserts e. A second enrollment for the same user and course
// fails with ErrExists.
func Create(ctx context.Context, db sqlx.ExtContext, e Enrollment) error {
	const q = `
	INSERT INTO enrollments (enrollment_id, user_id, course_id, payment_id, status, progress, enrolled_at, completed_at)
	VALUES (:enrollment_id, :user_id, :course_id, :payment_id, :status, :progress, :enrolled_at, :completed_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, e); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting enrollment of user[%s] in course[%s]: %w", e.UserID, e.CourseID, err)
	}
	return nil
}

func FetchByUserCourse(ctx context.Context, db sqlx.QueryerContext, userID, courseID string) (Enrollment, error) {
	const q = `
	SELECT enrollment_id, user_id, course_id, payment_id, status, progress, enrolled_at, completed_at
	FROM enrollments
	WHERE user_id = $1 AND course_id = $2`

	var e Enrollment
	if err := sqlx.GetContext(ctx, db, &e, q, userID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Enrollment{}, ErrNotFound
		}
		return Enrollment{}, fmt.Errorf("selecting enrollment of user[%s] in course[%s]: %w", userID, courseID, err)
	}
	return e, nil
}

func FetchByPayment(ctx context.Context, db sqlx.QueryerContext, paymentID string) (Enrollment, error) {
	const q = `
	SELECT enrollment_id, user_id, course_id, payment_id, status, progress, enrolled_at, completed_at
	FROM enrollments
	WHERE payment_id = $1`

	var e Enrollment
	if err := sqlx.GetContext(ctx, db, &e, q, paymentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Enrollment{}, ErrNotFound
		}
		return Enrollment{}, fmt.Errorf("selecting enrollment of payment[%s]: %w", paymentID, err)
	}
	return e, nil
}
