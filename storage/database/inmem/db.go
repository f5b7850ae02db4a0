package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/pimentor/backend/core/course"
	"github.com/pimentor/backend/core/doubt"
	"github.com/pimentor/backend/core/enrollment"
	"github.com/pimentor/backend/core/notification"
	"github.com/pimentor/backend/core/user"
)

// DB is a process-local store with the same constraints as the Postgres schema.
// One lock guards every table so cascades and joins see a consistent state.
type DB struct {
	sync.RWMutex
	users         map[string]*user.User
	courses       map[string]*course.Course
	lectures      map[string]*course.Lecture
	enrollments   map[string]*enrollment.Enrollment
	doubts        map[string]*doubt.Doubt
	notifications map[string]*notification.Notification
}

func Open() *DB {
	return &DB{
		users:         make(map[string]*user.User),
		courses:       make(map[string]*course.Course),
		lectures:      make(map[string]*course.Lecture),
		enrollments:   make(map[string]*enrollment.Enrollment),
		doubts:        make(map[string]*doubt.Doubt),
		notifications: make(map[string]*notification.Notification),
	}
}

// PurgeExpired deletes the enrollments whose purge date is not after now and the doubts created before doubtsBefore.
func (db *DB) PurgeExpired(_ context.Context, now, doubtsBefore time.Time) (enrollments, doubts int64, err error) {
	db.Lock()
	defer db.Unlock()

	for id, enr := range db.enrollments {
		if enr.PurgeDate.Valid && !enr.PurgeDate.Time.After(now) {
			delete(db.enrollments, id)
			enrollments++
		}
	}
	if !doubtsBefore.IsZero() {
		for id, d := range db.doubts {
			if d.CreatedAt.Before(doubtsBefore) {
				delete(db.doubts, id)
				doubts++
			}
		}
	}
	return enrollments, doubts, nil
}
