package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/pimentor/backend/core/enrollment"
)

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func (repo *enrollmentRepository) find(userID, courseID string) (*enrollment.Enrollment, bool) {
	for _, enr := range repo.db.enrollments {
		if enr.UserID == userID && enr.CourseID == courseID {
			return enr, true
		}
	}
	return nil, false
}

func (repo *enrollmentRepository) CreateEnrollment(_ context.Context, enr enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, exists := repo.find(enr.UserID, enr.CourseID); exists {
		return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
	}
	enr.ID = uuid.New().String()
	repo.db.enrollments[enr.ID] = &enr
	return enr, nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, userID, courseID string) (enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if enr, ok := repo.find(userID, courseID); ok {
		return *enr, nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) QueryUserEnrollments(_ context.Context, userID string) ([]enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	enrs := make([]enrollment.Enrollment, 0)
	for _, enr := range repo.db.enrollments {
		if enr.UserID == userID {
			enrs = append(enrs, *enr)
		}
	}
	sort.Slice(enrs, func(i, j int) bool { return enrs[i].PurchasedAt.After(enrs[j].PurchasedAt) })
	return enrs, nil
}

func (repo *enrollmentRepository) QueryCourseEnrollments(_ context.Context, courseID string) ([]enrollment.CourseEnrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	enrs := make([]enrollment.CourseEnrollment, 0)
	for _, enr := range repo.db.enrollments {
		if enr.CourseID != courseID {
			continue
		}
		ce := enrollment.CourseEnrollment{
			EnrollmentID: enr.ID,
			UserID:       enr.UserID,
			PurchasedAt:  enr.PurchasedAt,
			ExpiryDate:   enr.ExpiryDate,
		}
		if usr, ok := repo.db.users[enr.UserID]; ok {
			ce.Name = usr.Name
			ce.Email = usr.Email
			ce.StudentClass = usr.StudentClass
		}
		enrs = append(enrs, ce)
	}
	sort.Slice(enrs, func(i, j int) bool { return enrs[i].PurchasedAt.After(enrs[j].PurchasedAt) })
	return enrs, nil
}

func (repo *enrollmentRepository) QueryMissingExpiry(_ context.Context) ([]enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	enrs := make([]enrollment.Enrollment, 0)
	for _, enr := range repo.db.enrollments {
		if !enr.ExpiryDate.Valid {
			enrs = append(enrs, *enr)
		}
	}
	sort.Slice(enrs, func(i, j int) bool { return enrs[i].PurchasedAt.Before(enrs[j].PurchasedAt) })
	return enrs, nil
}

func (repo *enrollmentRepository) SetExpiry(_ context.Context, id string, expiry, purge time.Time) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	enr, ok := repo.db.enrollments[id]
	if !ok || enr.ExpiryDate.Valid {
		return false, nil
	}
	enr.ExpiryDate = null.TimeFrom(expiry)
	enr.PurgeDate = null.TimeFrom(purge)
	return true, nil
}

// InsertLegacyEnrollment stores enr as is, as written before expiry dates existed.
func InsertLegacyEnrollment(db *DB, enr enrollment.Enrollment) enrollment.Enrollment {
	db.Lock()
	defer db.Unlock()

	if enr.ID == "" {
		enr.ID = uuid.New().String()
	}
	db.enrollments[enr.ID] = &enr
	return enr
}
