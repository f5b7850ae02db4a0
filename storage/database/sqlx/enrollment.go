package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pimentor/backend/core"
	"github.com/pimentor/backend/core/enrollment"
)

const (
	enrollmentColumns = `id, user_id, course_id, title, class_name, price, payment_id, purchased_at, expiry_date, purge_date`
	userCourseKey     = "enrollment_user_course_key"
)

type enrollmentRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	CourseID    string    `db:"course_id"`
	Title       string    `db:"title"`
	ClassName   string    `db:"class_name"`
	Price       float64   `db:"price"`
	PaymentID   string    `db:"payment_id"`
	PurchasedAt time.Time `db:"purchased_at"`
	ExpiryDate  null.Time `db:"expiry_date"`
	PurgeDate   null.Time `db:"purge_date"`
}

func utcNull(t null.Time) null.Time {
	if t.Valid {
		t.Time = t.Time.UTC()
	}
	return t
}

func (r enrollmentRow) unboil() enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:          r.ID,
		UserID:      r.UserID,
		CourseID:    r.CourseID,
		Title:       r.Title,
		ClassName:   r.ClassName,
		Price:       r.Price,
		PaymentID:   r.PaymentID,
		PurchasedAt: r.PurchasedAt.UTC(),
		ExpiryDate:  utcNull(r.ExpiryDate),
		PurgeDate:   utcNull(r.PurgeDate),
	}
}

type courseEnrollmentRow struct {
	EnrollmentID string    `db:"enrollment_id"`
	UserID       string    `db:"user_id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	StudentClass string    `db:"student_class"`
	PurchasedAt  time.Time `db:"purchased_at"`
	ExpiryDate   null.Time `db:"expiry_date"`
}

type enrollmentRepository struct {
	db core.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db core.DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

// CreateEnrollment writes the whole record, dates included, in one statement.
func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, enr enrollment.Enrollment) (enrollment.Enrollment, error) {
	if !validUUID(enr.UserID) {
		return enrollment.Enrollment{}, errors.Errorf("invalid user id %q", enr.UserID)
	}
	enr.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO enrollment (`+enrollmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		enr.ID, enr.UserID, enr.CourseID, enr.Title, enr.ClassName, enr.Price, enr.PaymentID,
		enr.PurchasedAt, enr.ExpiryDate, enr.PurgeDate,
	)
	if err != nil {
		if isUniqueViolation(err, userCourseKey) {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return enr, nil
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, userID, courseID string) (enrollment.Enrollment, error) {
	if !validUUID(userID) {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	var row enrollmentRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT `+enrollmentColumns+` FROM enrollment WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return enrollment.Enrollment{}, enrollment.ErrNotFound
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "selecting enrollment")
	}
	return row.unboil(), nil
}

func (repo *enrollmentRepository) selectEnrollments(ctx context.Context, q string, args ...interface{}) ([]enrollment.Enrollment, error) {
	var rows []enrollmentRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting enrollments")
	}
	enrs := make([]enrollment.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrs = append(enrs, row.unboil())
	}
	return enrs, nil
}

func (repo *enrollmentRepository) QueryUserEnrollments(ctx context.Context, userID string) ([]enrollment.Enrollment, error) {
	if !validUUID(userID) {
		return []enrollment.Enrollment{}, nil
	}
	return repo.selectEnrollments(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollment WHERE user_id = $1 ORDER BY purchased_at DESC`,
		userID,
	)
}

func (repo *enrollmentRepository) QueryCourseEnrollments(ctx context.Context, courseID string) ([]enrollment.CourseEnrollment, error) {
	var rows []courseEnrollmentRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT e.id AS enrollment_id, e.user_id, u.name, u.email, u.student_class, e.purchased_at, e.expiry_date
		FROM enrollment e
		JOIN "user" u ON u.id = e.user_id
		WHERE e.course_id = $1
		ORDER BY e.purchased_at DESC`,
		courseID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "selecting course enrollments")
	}
	enrs := make([]enrollment.CourseEnrollment, 0, len(rows))
	for _, row := range rows {
		enrs = append(enrs, enrollment.CourseEnrollment{
			EnrollmentID: row.EnrollmentID,
			UserID:       row.UserID,
			Name:         row.Name,
			Email:        row.Email,
			StudentClass: row.StudentClass,
			PurchasedAt:  row.PurchasedAt.UTC(),
			ExpiryDate:   utcNull(row.ExpiryDate),
		})
	}
	return enrs, nil
}

func (repo *enrollmentRepository) QueryMissingExpiry(ctx context.Context) ([]enrollment.Enrollment, error) {
	return repo.selectEnrollments(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollment WHERE expiry_date IS NULL ORDER BY purchased_at`,
	)
}

func (repo *enrollmentRepository) SetExpiry(ctx context.Context, id string, expiry, purge time.Time) (bool, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE enrollment SET expiry_date = $2, purge_date = $3 WHERE id = $1 AND expiry_date IS NULL`,
		id, expiry, purge,
	)
	if err != nil {
		return false, errors.Wrap(err, "updating enrollment expiry")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
