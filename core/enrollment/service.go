package enrollment

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pimentor/backend/core"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound        = errors.New("enrollment not found")
	ErrCourseNotFound  = errors.New("course not found")
	ErrAlreadyEnrolled = errors.New("already enrolled in this course")
)

type (
	// Catalog gives read access to the validity configuration of courses.
	Catalog interface {
		// FindCourseValidity returns ErrCourseNotFound when the course does not exist.
		FindCourseValidity(ctx context.Context, courseID string) (CourseValidity, error)
	}

	Repository interface {
		// CreateEnrollment persists the complete record in a single write, assigning its ID.
		// It returns ErrAlreadyEnrolled when (UserID, CourseID) is already taken.
		CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		GetEnrollment(ctx context.Context, userID, courseID string) (Enrollment, error)
		// QueryUserEnrollments returns the user's enrollments, newest first.
		QueryUserEnrollments(ctx context.Context, userID string) ([]Enrollment, error)
		// QueryCourseEnrollments returns the enrollments of a course joined with their students, newest first.
		QueryCourseEnrollments(ctx context.Context, courseID string) ([]CourseEnrollment, error)
		// QueryMissingExpiry returns the enrollments that have no expiry date yet.
		QueryMissingExpiry(ctx context.Context) ([]Enrollment, error)
		// SetExpiry sets both dates only if the expiry date is still missing; it reports whether a row was updated.
		SetExpiry(ctx context.Context, id string, expiry, purge time.Time) (bool, error)
	}

	Service struct {
		repo    Repository
		catalog Catalog
		policy  Policy
		logger  core.Logger
	}
)

func NewService(repo Repository, catalog Catalog, policy Policy, logger core.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		policy:  policy,
		logger:  logger,
	}
}

// Enroll grants userID access to courseID, paid through paymentID.
func (svc *Service) Enroll(ctx context.Context, userID, courseID, paymentID string) (Enrollment, error) {
	req := EnrollRequest{CourseID: core.CleanString(courseID, true /* lower */), PaymentID: core.CleanString(paymentID)}
	var fldErrs []core.FieldError
	if req.CourseID == "" {
		fldErrs = append(fldErrs, core.FieldError{Field: "course_id", Error: "this field is required"})
	}
	if req.PaymentID == "" {
		fldErrs = append(fldErrs, core.FieldError{Field: "payment_id", Error: "this field is required"})
	}
	if len(fldErrs) > 0 {
		return Enrollment{}, core.NewValidationError(nil, fldErrs...)
	}

	crs, err := svc.catalog.FindCourseValidity(ctx, req.CourseID)
	if err != nil {
		if errors.Cause(err) == ErrCourseNotFound {
			return Enrollment{}, ErrCourseNotFound
		}
		return Enrollment{}, errors.Wrap(err, "finding course validity")
	}

	// fast path only: the storage unique key is what really guards against double purchases
	if _, err = svc.repo.GetEnrollment(ctx, userID, crs.CourseID); err == nil {
		return Enrollment{}, ErrAlreadyEnrolled
	} else if errors.Cause(err) != ErrNotFound {
		return Enrollment{}, errors.Wrap(err, "checking existing enrollment")
	}

	now := NowFunc().UTC()
	expiry := svc.computeExpiry(now, crs)
	enr := Enrollment{
		UserID:      userID,
		CourseID:    crs.CourseID,
		Title:       crs.Title,
		ClassName:   crs.ClassName,
		Price:       crs.Price,
		PaymentID:   req.PaymentID,
		PurchasedAt: now,
		ExpiryDate:  null.TimeFrom(expiry),
		PurgeDate:   null.TimeFrom(svc.policy.ComputePurge(expiry)),
	}

	enr, err = svc.repo.CreateEnrollment(ctx, enr)
	if err != nil {
		if errors.Cause(err) == ErrAlreadyEnrolled {
			return Enrollment{}, ErrAlreadyEnrolled
		}
		return Enrollment{}, errors.Wrap(err, "creating enrollment")
	}
	svc.logger.Info("enrollment created", map[string]interface{}{
		"enrollment_id": enr.ID,
		"user_id":       enr.UserID,
		"course_id":     enr.CourseID,
		"expiry_date":   enr.ExpiryDate.Time,
	})
	return enr, nil
}

func (svc *Service) computeExpiry(purchase time.Time, crs CourseValidity) time.Time {
	if crs.LiveValidityDate.Valid && !ValidInstant(crs.LiveValidityDate.Time) {
		svc.logger.Warn("ignoring invalid live validity date", map[string]interface{}{
			"course_id":          crs.CourseID,
			"live_validity_date": crs.LiveValidityDate.Time.String(),
		})
	}
	return svc.policy.ComputeExpiry(purchase, crs.LiveValidityDate, crs.RecordedDurationDays)
}

// HasAccess reports whether userID currently holds an unexpired enrollment in courseID.
func (svc *Service) HasAccess(ctx context.Context, userID, courseID string) (bool, error) {
	enr, err := svc.repo.GetEnrollment(ctx, userID, core.CleanString(courseID, true /* lower */))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "getting enrollment")
	}
	return enr.IsActive(NowFunc()), nil
}

func (svc *Service) Get(ctx context.Context, userID, courseID string) (Enrollment, error) {
	return svc.repo.GetEnrollment(ctx, userID, core.CleanString(courseID, true /* lower */))
}

// ListByUser returns the user's enrollments, newest first, flagged with their current access state.
func (svc *Service) ListByUser(ctx context.Context, userID string) ([]View, error) {
	enrs, err := svc.repo.QueryUserEnrollments(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying user enrollments")
	}
	now := NowFunc()
	views := make([]View, 0, len(enrs))
	for _, enr := range enrs {
		views = append(views, View{Enrollment: enr, Active: enr.IsActive(now)})
	}
	return views, nil
}

func (svc *Service) ListCourseEnrollments(ctx context.Context, courseID string) ([]CourseEnrollment, error) {
	enrs, err := svc.repo.QueryCourseEnrollments(ctx, core.CleanString(courseID, true /* lower */))
	if err != nil {
		return nil, errors.Wrap(err, "querying course enrollments")
	}
	now := NowFunc()
	for i := range enrs {
		enrs[i].Active = enrs[i].ExpiryDate.Valid && now.Before(enrs[i].ExpiryDate.Time)
	}
	return enrs, nil
}

// BackfillMissingExpiries sets the expiry and purge dates of legacy enrollments from their own purchase time.
// Running it again is a no-op for already backfilled records; it returns the number of records updated.
func (svc *Service) BackfillMissingExpiries(ctx context.Context) (int, error) {
	legacy, err := svc.repo.QueryMissingExpiry(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "querying enrollments without expiry")
	}

	var updated int
	for _, enr := range legacy {
		if err = ctx.Err(); err != nil {
			return updated, err
		}

		crs, err := svc.catalog.FindCourseValidity(ctx, enr.CourseID)
		if err != nil {
			if errors.Cause(err) != ErrCourseNotFound {
				return updated, errors.Wrapf(err, "finding course validity of %q", enr.CourseID)
			}
			// deleted course: recorded-phase rule with the default duration
			crs = CourseValidity{CourseID: enr.CourseID}
		}

		expiry := svc.computeExpiry(enr.PurchasedAt, crs)
		ok, err := svc.repo.SetExpiry(ctx, enr.ID, expiry, svc.policy.ComputePurge(expiry))
		if err != nil {
			return updated, errors.Wrapf(err, "setting expiry of enrollment %q", enr.ID)
		}
		if ok {
			updated++
		}
	}

	svc.logger.Info("enrollment expiries backfilled", map[string]interface{}{
		"scanned": len(legacy),
		"updated": updated,
	})
	return updated, nil
}
