package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pimentor/backend/core"
	"github.com/pimentor/backend/core/doubt"
)

const doubtColumns = `id, student_id, student_name, course_id, lecture_id, lecture_title, question, answer, status, created_at`

type doubtRow struct {
	ID           string    `db:"id"`
	StudentID    string    `db:"student_id"`
	StudentName  string    `db:"student_name"`
	CourseID     string    `db:"course_id"`
	LectureID    string    `db:"lecture_id"`
	LectureTitle string    `db:"lecture_title"`
	Question     string    `db:"question"`
	Answer       string    `db:"answer"`
	Status       string    `db:"status"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r doubtRow) unboil() doubt.Doubt {
	return doubt.Doubt{
		ID:           r.ID,
		StudentID:    r.StudentID,
		StudentName:  r.StudentName,
		CourseID:     r.CourseID,
		LectureID:    r.LectureID,
		LectureTitle: r.LectureTitle,
		Question:     r.Question,
		Answer:       r.Answer,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

type doubtRepository struct {
	db core.DB
}

var _ doubt.Repository = (*doubtRepository)(nil)

func NewDoubtRepository(db core.DB) doubt.Repository {
	return &doubtRepository{db: db}
}

func (repo *doubtRepository) CreateDoubt(ctx context.Context, d doubt.Doubt) (doubt.Doubt, error) {
	d.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO doubt (`+doubtColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.StudentID, d.StudentName, d.CourseID, d.LectureID, d.LectureTitle,
		d.Question, d.Answer, d.Status, d.CreatedAt,
	)
	if err != nil {
		return doubt.Doubt{}, errors.Wrap(err, "inserting doubt")
	}
	return d, nil
}

func (repo *doubtRepository) GetDoubt(ctx context.Context, id string) (doubt.Doubt, error) {
	if !validUUID(id) {
		return doubt.Doubt{}, doubt.ErrNotFound
	}
	var row doubtRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+doubtColumns+` FROM doubt WHERE id = $1`, id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return doubt.Doubt{}, doubt.ErrNotFound
		}
		return doubt.Doubt{}, errors.Wrap(err, "selecting doubt")
	}
	return row.unboil(), nil
}

func (repo *doubtRepository) QueryDoubts(ctx context.Context, filter doubt.QueryFilter) ([]doubt.Doubt, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(col, val string) {
		args = append(args, val)
		conds = append(conds, col+" = $"+strconv.Itoa(len(args)))
	}
	if filter.StudentID != "" {
		if !validUUID(filter.StudentID) {
			return []doubt.Doubt{}, nil
		}
		add("student_id", filter.StudentID)
	}
	if filter.LectureID != "" {
		if !validUUID(filter.LectureID) {
			return []doubt.Doubt{}, nil
		}
		add("lecture_id", filter.LectureID)
	}
	if filter.CourseID != "" {
		add("course_id", filter.CourseID)
	}
	if filter.Status != "" {
		add("status", filter.Status)
	}

	q := `SELECT ` + doubtColumns + ` FROM doubt`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY created_at DESC`

	var rows []doubtRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting doubts")
	}
	doubts := make([]doubt.Doubt, 0, len(rows))
	for _, row := range rows {
		doubts = append(doubts, row.unboil())
	}
	return doubts, nil
}

func (repo *doubtRepository) ResolveDoubt(ctx context.Context, id, answer string) (doubt.Doubt, error) {
	if !validUUID(id) {
		return doubt.Doubt{}, doubt.ErrNotFound
	}
	var row doubtRow
	err := repo.db.GetContext(ctx, &row,
		`UPDATE doubt SET answer = $2, status = $3 WHERE id = $1 RETURNING `+doubtColumns,
		id, answer, doubt.StatusResolved,
	)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return doubt.Doubt{}, doubt.ErrNotFound
		}
		return doubt.Doubt{}, errors.Wrap(err, "resolving doubt")
	}
	return row.unboil(), nil
}
