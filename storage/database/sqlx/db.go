package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/pimentor/backend/core"
)

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique violation, optionally on the given constraint.
func isUniqueViolation(err error, constraint ...string) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	if !ok || pqErr.Code != uniqueViolation {
		return false
	}
	return len(constraint) == 0 || pqErr.Constraint == constraint[0]
}

// validUUID filters ids that Postgres would reject for a UUID column.
func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "reading affected rows")
	}
	return n, nil
}

// Purger implements database.Purger over the Postgres tables.
type Purger struct {
	db core.DB
}

func NewPurger(db core.DB) *Purger {
	return &Purger{db: db}
}

func (p *Purger) PurgeExpired(ctx context.Context, now, doubtsBefore time.Time) (enrollments, doubts int64, err error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM enrollment WHERE purge_date <= $1`, now)
	if err != nil {
		return 0, 0, errors.Wrap(err, "deleting purgeable enrollments")
	}
	if enrollments, err = rowsAffected(res); err != nil {
		return 0, 0, err
	}

	if doubtsBefore.IsZero() {
		return enrollments, 0, nil
	}
	res, err = p.db.ExecContext(ctx, `DELETE FROM doubt WHERE created_at < $1`, doubtsBefore)
	if err != nil {
		return enrollments, 0, errors.Wrap(err, "deleting stale doubts")
	}
	if doubts, err = rowsAffected(res); err != nil {
		return enrollments, 0, err
	}
	return enrollments, doubts, nil
}
