package enrollment

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// CourseValidity is what the catalog knows about a course when a student buys it.
type CourseValidity struct {
	CourseID             string
	Title                string
	ClassName            string
	Price                float64
	LiveValidityDate     null.Time
	RecordedDurationDays int
}

// Enrollment is the purchase record granting a user time-bounded access to a course.
// Title, ClassName and Price are snapshots taken at purchase time.
type Enrollment struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CourseID    string    `json:"course_id"`
	Title       string    `json:"title"`
	ClassName   string    `json:"class_name"`
	Price       float64   `json:"price"`
	PaymentID   string    `json:"payment_id"`
	PurchasedAt time.Time `json:"purchased_at"` // UTC
	ExpiryDate  null.Time `json:"expiry_date"`  // UTC; null on legacy rows until backfilled
	PurgeDate   null.Time `json:"purge_date"`   // UTC
}

// IsActive reports whether the enrollment still grants access at `now`.
// Access ends at the expiry instant itself; a record without expiry grants nothing.
func (e Enrollment) IsActive(now time.Time) bool {
	return e.ExpiryDate.Valid && now.Before(e.ExpiryDate.Time)
}

// View is an Enrollment as listed to its owner.
type View struct {
	Enrollment
	Active bool `json:"active"`
}

// CourseEnrollment is a row of the admin per-course enrollment listing.
type CourseEnrollment struct {
	EnrollmentID string    `json:"enrollment_id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	StudentClass string    `json:"student_class"`
	PurchasedAt  time.Time `json:"purchased_at"`
	ExpiryDate   null.Time `json:"expiry_date"`
	Active       bool      `json:"active"`
}

type EnrollRequest struct {
	CourseID  string `json:"course_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
}
