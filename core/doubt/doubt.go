package doubt

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/pimentor/backend/core"
	"github.com/pimentor/backend/core/course"
)

// Statuses
const (
	StatusPending  = "Pending"
	StatusResolved = "Resolved"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound     = errors.New("doubt not found")
	ErrAccessDenied = errors.New("no active enrollment for this course")
)

type Doubt struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"student_id"`
	StudentName  string    `json:"student_name"`
	CourseID     string    `json:"course_id"`
	LectureID    string    `json:"lecture_id"`
	LectureTitle string    `json:"lecture_title"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

type NewDoubt struct {
	LectureID string `json:"lecture_id" validate:"required"`
	Question  string `json:"question" validate:"required,max=500"`
}

func (nd *NewDoubt) Validate(validate *validator.Validate) error {
	nd.LectureID = core.CleanString(nd.LectureID)
	nd.Question = core.CleanString(nd.Question)
	return validate.Struct(nd)
}

type ResolveDoubt struct {
	DoubtID string `json:"doubt_id" validate:"required"`
	Answer  string `json:"answer" validate:"required,max=1000"`
}

func (rd *ResolveDoubt) Validate(validate *validator.Validate) error {
	rd.DoubtID = core.CleanString(rd.DoubtID)
	rd.Answer = core.CleanString(rd.Answer)
	return validate.Struct(rd)
}

type (
	Repository interface {
		CreateDoubt(ctx context.Context, d Doubt) (Doubt, error)
		GetDoubt(ctx context.Context, id string) (Doubt, error)
		// QueryDoubts returns the doubts matching every non-empty filter field, newest first.
		QueryDoubts(ctx context.Context, filter QueryFilter) ([]Doubt, error)
		// ResolveDoubt sets the answer and marks the doubt resolved.
		ResolveDoubt(ctx context.Context, id, answer string) (Doubt, error)
	}

	QueryFilter struct {
		StudentID string
		LectureID string
		CourseID  string
		Status    string
	}

	// Lectures finds the lecture a doubt is about.
	Lectures interface {
		GetLecture(ctx context.Context, id string) (course.Lecture, error)
	}

	// AccessChecker tells whether a student may currently use a course.
	AccessChecker interface {
		HasAccess(ctx context.Context, userID, courseID string) (bool, error)
	}

	Service struct {
		repo     Repository
		lectures Lectures
		access   AccessChecker
	}
)

func NewService(repo Repository, lectures Lectures, access AccessChecker) *Service {
	return &Service{repo: repo, lectures: lectures, access: access}
}

// Ask records a pending question of student about a lecture of a course they hold an active enrollment for.
func (svc *Service) Ask(ctx context.Context, studentID, studentName string, nd NewDoubt) (Doubt, error) {
	lec, err := svc.lectures.GetLecture(ctx, nd.LectureID)
	if err != nil {
		return Doubt{}, err
	}
	ok, err := svc.access.HasAccess(ctx, studentID, lec.CourseID)
	if err != nil {
		return Doubt{}, errors.Wrap(err, "checking access")
	}
	if !ok {
		return Doubt{}, ErrAccessDenied
	}

	d, err := svc.repo.CreateDoubt(ctx, Doubt{
		StudentID:    studentID,
		StudentName:  studentName,
		CourseID:     lec.CourseID,
		LectureID:    lec.ID,
		LectureTitle: lec.Title,
		Question:     nd.Question,
		Status:       StatusPending,
		CreatedAt:    NowFunc().UTC(),
	})
	if err != nil {
		return Doubt{}, errors.Wrap(err, "creating doubt")
	}
	return d, nil
}

func (svc *Service) ListByStudent(ctx context.Context, studentID string) ([]Doubt, error) {
	return svc.repo.QueryDoubts(ctx, QueryFilter{StudentID: studentID})
}

func (svc *Service) ListByLecture(ctx context.Context, studentID, lectureID string) ([]Doubt, error) {
	return svc.repo.QueryDoubts(ctx, QueryFilter{StudentID: studentID, LectureID: core.CleanString(lectureID)})
}

func (svc *Service) ListPending(ctx context.Context, courseID string) ([]Doubt, error) {
	return svc.repo.QueryDoubts(ctx, QueryFilter{
		CourseID: core.CleanString(courseID, true /* lower */),
		Status:   StatusPending,
	})
}

// Resolve answers a doubt and marks it resolved.
func (svc *Service) Resolve(ctx context.Context, rd ResolveDoubt) (Doubt, error) {
	return svc.repo.ResolveDoubt(ctx, core.CleanString(rd.DoubtID), rd.Answer)
}
