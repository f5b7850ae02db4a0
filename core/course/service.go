package course

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pimentor/backend/core"
	"github.com/pimentor/backend/core/enrollment"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound        = errors.New("course not found")
	ErrLectureNotFound = errors.New("lecture not found")
)

type (
	Repository interface {
		// UpsertCourse creates the course or replaces its fields, keeping the original CreatedAt.
		UpsertCourse(ctx context.Context, crs Course) (Course, error)
		GetCourse(ctx context.Context, courseID string) (Course, error)
		// QueryCourses returns all courses, newest first.
		QueryCourses(ctx context.Context) ([]Course, error)
		// DeleteCourse deletes the course and its lectures.
		DeleteCourse(ctx context.Context, courseID string) error
		CreateLecture(ctx context.Context, lec Lecture) (Lecture, error)
		GetLecture(ctx context.Context, id string) (Lecture, error)
		// QueryLectures returns the lectures of a course sorted by Order; an empty chapter means all chapters.
		QueryLectures(ctx context.Context, courseID, chapter string) ([]Lecture, error)
		// QueryChapters returns the distinct chapter names of a course in lecture order.
		QueryChapters(ctx context.Context, courseID string) ([]string, error)
		DeleteLecture(ctx context.Context, id string) error
	}

	Service struct {
		repo   Repository
		logger core.Logger
	}
)

var _ enrollment.Catalog = (*Service)(nil)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Upsert creates or replaces the course identified by uc.CourseID.
// An unparseable live validity date is dropped, leaving the course without a live phase.
func (svc *Service) Upsert(ctx context.Context, uc UpsertCourse) (Course, error) {
	live, ok := parseLiveDate(uc.LiveValidityDate)
	if !ok {
		svc.logger.Warn("ignoring invalid live validity date", map[string]interface{}{
			"course_id":          uc.CourseID,
			"live_validity_date": uc.LiveValidityDate,
		})
	}

	now := NowFunc().UTC()
	crs := Course{
		CourseID:             uc.CourseID,
		Title:                uc.Title,
		ClassName:            uc.ClassName,
		Price:                uc.Price,
		Description:          uc.Description,
		NotesLink:            uc.NotesLink,
		LiveValidityDate:     live,
		RecordedDurationDays: uc.RecordedDurationDays.Days(),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	crs, err := svc.repo.UpsertCourse(ctx, crs)
	if err != nil {
		return Course{}, errors.Wrap(err, "upserting course")
	}
	return crs, nil
}

func (svc *Service) Get(ctx context.Context, courseID string) (Course, error) {
	return svc.repo.GetCourse(ctx, core.CleanString(courseID, true /* lower */))
}

func (svc *Service) List(ctx context.Context) ([]Course, error) {
	return svc.repo.QueryCourses(ctx)
}

func (svc *Service) Delete(ctx context.Context, courseID string) error {
	return svc.repo.DeleteCourse(ctx, core.CleanString(courseID, true /* lower */))
}

func (svc *Service) FindCourseValidity(ctx context.Context, courseID string) (enrollment.CourseValidity, error) {
	crs, err := svc.Get(ctx, courseID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return enrollment.CourseValidity{}, enrollment.ErrCourseNotFound
		}
		return enrollment.CourseValidity{}, errors.Wrap(err, "getting course")
	}
	return crs.Validity(), nil
}

func (svc *Service) AddLecture(ctx context.Context, nl NewLecture) (Lecture, error) {
	if _, err := svc.Get(ctx, nl.CourseID); err != nil {
		return Lecture{}, err
	}

	locked := true
	if nl.Locked != nil {
		locked = *nl.Locked
	}
	duration := nl.Duration
	if duration == "" {
		duration = DefaultLectureDuration
	}
	lec := Lecture{
		CourseID:    nl.CourseID,
		Title:       nl.Title,
		VideoURL:    nl.VideoURL,
		Duration:    duration,
		ChapterName: nl.ChapterName,
		TopicName:   nl.TopicName,
		Order:       nl.Order,
		PDFNotes:    nl.PDFNotes,
		PracticeMCQ: nl.PracticeMCQ,
		Locked:      locked,
		CreatedAt:   NowFunc().UTC(),
	}
	lec, err := svc.repo.CreateLecture(ctx, lec)
	if err != nil {
		return Lecture{}, errors.Wrap(err, "creating lecture")
	}
	return lec, nil
}

func (svc *Service) GetLecture(ctx context.Context, id string) (Lecture, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Lecture{}, ErrLectureNotFound
	}
	return svc.repo.GetLecture(ctx, id)
}

func (svc *Service) DeleteLecture(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrLectureNotFound
	}
	return svc.repo.DeleteLecture(ctx, id)
}

func (svc *Service) ListLectures(ctx context.Context, courseID string) ([]Lecture, error) {
	return svc.repo.QueryLectures(ctx, core.CleanString(courseID, true /* lower */), "")
}

func (svc *Service) ListChapterLectures(ctx context.Context, courseID, chapter string) ([]Lecture, error) {
	chapter = core.CleanString(chapter)
	if chapter == "" {
		return []Lecture{}, nil
	}
	return svc.repo.QueryLectures(ctx, core.CleanString(courseID, true /* lower */), chapter)
}

func (svc *Service) ListChapters(ctx context.Context, courseID string) ([]string, error) {
	return svc.repo.QueryChapters(ctx, core.CleanString(courseID, true /* lower */))
}
