package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pimentor/backend/core"
	"github.com/pimentor/backend/core/course"
)

const (
	courseColumns = `course_id, title, class_name, price, description, notes_link, live_validity_date,
		recorded_duration_days, created_at, updated_at`
	lectureColumns = `id, course_id, title, video_url, duration, chapter_name, topic_name, "order",
		pdf_notes, practice_mcq, locked, created_at`
)

type courseRow struct {
	CourseID             string    `db:"course_id"`
	Title                string    `db:"title"`
	ClassName            string    `db:"class_name"`
	Price                float64   `db:"price"`
	Description          string    `db:"description"`
	NotesLink            string    `db:"notes_link"`
	LiveValidityDate     null.Time `db:"live_validity_date"`
	RecordedDurationDays int       `db:"recorded_duration_days"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

func (r courseRow) unboil() course.Course {
	crs := course.Course{
		CourseID:             r.CourseID,
		Title:                r.Title,
		ClassName:            r.ClassName,
		Price:                r.Price,
		Description:          r.Description,
		NotesLink:            r.NotesLink,
		LiveValidityDate:     r.LiveValidityDate,
		RecordedDurationDays: r.RecordedDurationDays,
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}
	if crs.LiveValidityDate.Valid {
		crs.LiveValidityDate.Time = crs.LiveValidityDate.Time.UTC()
	}
	return crs
}

type lectureRow struct {
	ID          string    `db:"id"`
	CourseID    string    `db:"course_id"`
	Title       string    `db:"title"`
	VideoURL    string    `db:"video_url"`
	Duration    string    `db:"duration"`
	ChapterName string    `db:"chapter_name"`
	TopicName   string    `db:"topic_name"`
	Order       int       `db:"order"`
	PDFNotes    string    `db:"pdf_notes"`
	PracticeMCQ string    `db:"practice_mcq"`
	Locked      bool      `db:"locked"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r lectureRow) unboil() course.Lecture {
	return course.Lecture{
		ID:          r.ID,
		CourseID:    r.CourseID,
		Title:       r.Title,
		VideoURL:    r.VideoURL,
		Duration:    r.Duration,
		ChapterName: r.ChapterName,
		TopicName:   r.TopicName,
		Order:       r.Order,
		PDFNotes:    r.PDFNotes,
		PracticeMCQ: r.PracticeMCQ,
		Locked:      r.Locked,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type courseRepository struct {
	db core.DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db core.DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) UpsertCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	var row courseRow
	err := repo.db.GetContext(ctx, &row, `
		INSERT INTO course (`+courseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (course_id) DO UPDATE SET
			title = EXCLUDED.title,
			class_name = EXCLUDED.class_name,
			price = EXCLUDED.price,
			description = EXCLUDED.description,
			notes_link = EXCLUDED.notes_link,
			live_validity_date = EXCLUDED.live_validity_date,
			recorded_duration_days = EXCLUDED.recorded_duration_days,
			updated_at = EXCLUDED.updated_at
		RETURNING `+courseColumns,
		crs.CourseID, crs.Title, crs.ClassName, crs.Price, crs.Description, crs.NotesLink,
		crs.LiveValidityDate, crs.RecordedDurationDays, crs.CreatedAt, crs.UpdatedAt,
	)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "upserting course")
	}
	return row.unboil(), nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, courseID string) (course.Course, error) {
	var row courseRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+courseColumns+` FROM course WHERE course_id = $1`, courseID); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "selecting course")
	}
	return row.unboil(), nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context) ([]course.Course, error) {
	var rows []courseRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+courseColumns+` FROM course ORDER BY created_at DESC, course_id`); err != nil {
		return nil, errors.Wrap(err, "selecting courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.unboil())
	}
	return courses, nil
}

// DeleteCourse relies on ON DELETE CASCADE for lectures and their doubts.
func (repo *courseRepository) DeleteCourse(ctx context.Context, courseID string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM course WHERE course_id = $1`, courseID)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return course.ErrNotFound
	}
	return nil
}

func (repo *courseRepository) CreateLecture(ctx context.Context, lec course.Lecture) (course.Lecture, error) {
	lec.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO lecture (`+lectureColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		lec.ID, lec.CourseID, lec.Title, lec.VideoURL, lec.Duration, lec.ChapterName, lec.TopicName,
		lec.Order, lec.PDFNotes, lec.PracticeMCQ, lec.Locked, lec.CreatedAt,
	)
	if err != nil {
		return course.Lecture{}, errors.Wrap(err, "inserting lecture")
	}
	return lec, nil
}

func (repo *courseRepository) GetLecture(ctx context.Context, id string) (course.Lecture, error) {
	if !validUUID(id) {
		return course.Lecture{}, course.ErrLectureNotFound
	}
	var row lectureRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+lectureColumns+` FROM lecture WHERE id = $1`, id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return course.Lecture{}, course.ErrLectureNotFound
		}
		return course.Lecture{}, errors.Wrap(err, "selecting lecture")
	}
	return row.unboil(), nil
}

func (repo *courseRepository) QueryLectures(ctx context.Context, courseID, chapter string) ([]course.Lecture, error) {
	q := `SELECT ` + lectureColumns + ` FROM lecture WHERE course_id = $1`
	args := []interface{}{courseID}
	if chapter != "" {
		q += ` AND chapter_name = $2`
		args = append(args, chapter)
	}
	q += ` ORDER BY "order", created_at`

	var rows []lectureRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting lectures")
	}
	lectures := make([]course.Lecture, 0, len(rows))
	for _, row := range rows {
		lectures = append(lectures, row.unboil())
	}
	return lectures, nil
}

func (repo *courseRepository) QueryChapters(ctx context.Context, courseID string) ([]string, error) {
	chapters := make([]string, 0)
	err := repo.db.SelectContext(ctx, &chapters, `
		SELECT chapter_name FROM lecture
		WHERE course_id = $1
		GROUP BY chapter_name
		ORDER BY MIN("order"), MIN(created_at)`,
		courseID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "selecting chapters")
	}
	return chapters, nil
}

func (repo *courseRepository) DeleteLecture(ctx context.Context, id string) error {
	if !validUUID(id) {
		return course.ErrLectureNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM lecture WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting lecture")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return course.ErrLectureNotFound
	}
	return nil
}
