package course_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/pimentor/backend/core/course"
	"github.com/pimentor/backend/core/enrollment"
	"github.com/pimentor/backend/storage/database/inmem"
	"github.com/pimentor/backend/testutil"
)

func newService() (*course.Service, course.Repository) {
	repo := inmemdb.NewCourseRepository(inmemdb.Open())
	return course.NewService(repo, testutil.NewLogger(testutil.NewConfig())), repo
}

func decodeUpsert(t *testing.T, raw string) course.UpsertCourse {
	t.Helper()
	var uc course.UpsertCourse
	require.NoError(t, json.Unmarshal([]byte(raw), &uc))
	validate, _ := testutil.NewValidator()
	require.NoError(t, uc.Validate(validate))
	return uc
}

func TestService_Upsert(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	tests := []struct {
		name     string
		raw      string
		wantLive null.Time
		wantDays int
	}{
		{
			name:     "live course",
			raw:      `{"course_id": " JEE-2026 ", "title": "JEE", "price": 4999, "live_validity_date": "2026-06-30", "recorded_duration_days": 365}`,
			wantLive: null.TimeFrom(testutil.Date(2026, time.June, 30)),
			wantDays: 365,
		},
		{
			name:     "datetime with offset",
			raw:      `{"course_id": "neet", "title": "NEET", "live_validity_date": "2026-06-30T05:30:00+05:30", "recorded_duration_days": "180"}`,
			wantLive: null.TimeFrom(testutil.Date(2026, time.June, 30)),
			wantDays: 180,
		},
		{
			name:     "invalid live date is dropped",
			raw:      `{"course_id": "boards", "title": "Boards", "live_validity_date": "not-a-date", "recorded_duration_days": 90}`,
			wantDays: 90,
		},
		{
			name:     "missing duration defaults",
			raw:      `{"course_id": "maths", "title": "Maths"}`,
			wantDays: enrollment.DefaultRecordedDays,
		},
		{
			name:     "junk duration defaults",
			raw:      `{"course_id": "physics", "title": "Physics", "recorded_duration_days": "forever"}`,
			wantDays: enrollment.DefaultRecordedDays,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crs, err := svc.Upsert(ctx, decodeUpsert(t, tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.wantLive.Valid, crs.LiveValidityDate.Valid)
			if tt.wantLive.Valid {
				assert.True(t, tt.wantLive.Time.Equal(crs.LiveValidityDate.Time), "got %v", crs.LiveValidityDate.Time)
			}
			assert.Equal(t, tt.wantDays, crs.RecordedDurationDays)

			got, err := svc.Get(ctx, crs.CourseID)
			require.NoError(t, err)
			assert.Equal(t, crs, got)
		})
	}

	got, err := svc.Get(ctx, "JEE-2026")
	require.NoError(t, err)
	assert.Equal(t, "jee-2026", got.CourseID)
}

func TestService_Upsert_replace(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	testutil.FreezeTime(t, &course.NowFunc, testutil.Date(2026, time.January, 1))
	orig, err := svc.Upsert(ctx, decodeUpsert(t, `{"course_id": "jee", "title": "JEE", "price": 100}`))
	require.NoError(t, err)

	testutil.FreezeTime(t, &course.NowFunc, testutil.Date(2026, time.February, 1))
	updated, err := svc.Upsert(ctx, decodeUpsert(t, `{"course_id": "jee", "title": "JEE 2026", "price": 200}`))
	require.NoError(t, err)

	assert.Equal(t, orig.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.Equal(testutil.Date(2026, time.February, 1)))
	assert.Equal(t, "JEE 2026", updated.Title)

	courses, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, courses, 1)
}

func TestUpsertCourse_Validate(t *testing.T) {
	validate, _ := testutil.NewValidator()

	tests := []struct {
		name    string
		uc      course.UpsertCourse
		wantTag string
	}{
		{name: "missing id", uc: course.UpsertCourse{Title: "x"}, wantTag: "required"},
		{name: "bad id", uc: course.UpsertCourse{CourseID: "jee 2026!", Title: "x"}, wantTag: "slug"},
		{name: "missing title", uc: course.UpsertCourse{CourseID: "jee"}, wantTag: "required"},
		{name: "negative price", uc: course.UpsertCourse{CourseID: "jee", Title: "x", Price: -1}, wantTag: "gte"},
		{name: "bad notes link", uc: course.UpsertCourse{CourseID: "jee", Title: "x", NotesLink: "notes"}, wantTag: "url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.uc.Validate(validate)
			var vErrs validator.ValidationErrors
			require.True(t, errors.As(err, &vErrs), "err = %v", err)
			assert.Equal(t, tt.wantTag, vErrs[0].Tag())
		})
	}
}

func TestService_FindCourseValidity(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService()
	live := null.TimeFrom(testutil.Date(2026, time.June, 30))
	testutil.CreateCourse(t, repo, "jee", live, 200)

	v, err := svc.FindCourseValidity(ctx, "jee")
	require.NoError(t, err)
	assert.Equal(t, enrollment.CourseValidity{
		CourseID:             "jee",
		Title:                "Course jee",
		ClassName:            "12",
		Price:                499,
		LiveValidityDate:     live,
		RecordedDurationDays: 200,
	}, v)

	_, err = svc.FindCourseValidity(ctx, "unknown")
	assert.Equal(t, enrollment.ErrCourseNotFound, err)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService()
	testutil.CreateCourse(t, repo, "jee", null.Time{}, 0)
	lec := testutil.CreateLecture(t, repo, "jee", "Algebra", 1)

	require.NoError(t, svc.Delete(ctx, "jee"))

	_, err := svc.Get(ctx, "jee")
	assert.Equal(t, course.ErrNotFound, err)
	_, err = svc.GetLecture(ctx, lec.ID)
	assert.Equal(t, course.ErrLectureNotFound, err)
	assert.Equal(t, course.ErrNotFound, svc.Delete(ctx, "jee"))
}

func TestService_AddLecture(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService()
	testutil.CreateCourse(t, repo, "jee", null.Time{}, 0)
	unlocked := false

	tests := []struct {
		name       string
		nl         course.NewLecture
		wantErr    error
		wantLocked bool
		wantDur    string
	}{
		{
			name:       "defaults",
			nl:         course.NewLecture{CourseID: "jee", Title: "Intro", VideoURL: "v", ChapterName: "Algebra", TopicName: "Sets"},
			wantLocked: true,
			wantDur:    course.DefaultLectureDuration,
		},
		{
			name:    "explicit values",
			nl:      course.NewLecture{CourseID: "jee", Title: "Demo", VideoURL: "v", Duration: "12:30", ChapterName: "Algebra", TopicName: "Sets", Locked: &unlocked},
			wantDur: "12:30",
		},
		{name: "unknown course", nl: course.NewLecture{CourseID: "neet", Title: "x"}, wantErr: course.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lec, err := svc.AddLecture(ctx, tt.nl)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, lec.ID)
			assert.Equal(t, tt.wantLocked, lec.Locked)
			assert.Equal(t, tt.wantDur, lec.Duration)

			got, err := svc.GetLecture(ctx, lec.ID)
			require.NoError(t, err)
			assert.Equal(t, lec, got)
		})
	}
}

func TestService_Lectures(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService()
	testutil.CreateCourse(t, repo, "jee", null.Time{}, 0)
	testutil.CreateCourse(t, repo, "neet", null.Time{}, 0)
	l3 := testutil.CreateLecture(t, repo, "jee", "Calculus", 3)
	l1 := testutil.CreateLecture(t, repo, "jee", "Algebra", 1)
	l2 := testutil.CreateLecture(t, repo, "jee", "Algebra", 2)
	testutil.CreateLecture(t, repo, "neet", "Biology", 1)

	lectures, err := svc.ListLectures(ctx, "jee")
	require.NoError(t, err)
	assert.Equal(t, []course.Lecture{l1, l2, l3}, lectures)

	chapters, err := svc.ListChapters(ctx, "jee")
	require.NoError(t, err)
	assert.Equal(t, []string{"Algebra", "Calculus"}, chapters)

	lectures, err = svc.ListChapterLectures(ctx, "jee", " Algebra ")
	require.NoError(t, err)
	assert.Equal(t, []course.Lecture{l1, l2}, lectures)

	lectures, err = svc.ListChapterLectures(ctx, "jee", "")
	require.NoError(t, err)
	assert.Empty(t, lectures)

	_, err = svc.GetLecture(ctx, "not-a-uuid")
	assert.Equal(t, course.ErrLectureNotFound, err)

	require.NoError(t, svc.DeleteLecture(ctx, l2.ID))
	lectures, err = svc.ListChapterLectures(ctx, "jee", "Algebra")
	require.NoError(t, err)
	assert.Equal(t, []course.Lecture{l1}, lectures)
}
