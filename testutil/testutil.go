package testutil

import (
	"context"
	"io"
	"log"
	"os"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/pimentor/backend/core"
	"github.com/pimentor/backend/core/course"
	"github.com/pimentor/backend/core/user"
	logsvc "github.com/pimentor/backend/services/logger"
	"github.com/pimentor/backend/storage/database"
)

// dbHostEnv must be set for the tests that need a real Postgres.
const dbHostEnv = "TEST_DATABASE_HOST"

func NewConfig() *core.Config {
	conf := core.NewConfig()
	conf.TestMode = true
	conf.Debug = false
	return conf
}

// NewLogger returns a logger that reports nowhere.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
}

// NewValidator returns a validator with every app validation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)
	return validate, translator
}

// PrepareDB returns a migrated, emptied test database, or skips the test when none is configured.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	host := os.Getenv(dbHostEnv)
	if host == "" {
		t.Skipf("%s not set", dbHostEnv)
	}

	conf := NewConfig()
	conf.Database.Host = host
	conf.Database.Name = "pimentor_test"

	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	ResetDB(t, db)
	return db
}

func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	if _, err := db.Exec(`TRUNCATE TABLE notification, doubt, enrollment, lecture, course, "user" CASCADE`); err != nil {
		t.Fatalf("ResetDB(): %v", err)
	}
}

func CreateUser(t *testing.T, repo user.Repository, name, email, pwd string, isAdmin bool) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      user.RoleStudent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if isAdmin {
		usr.Role = user.RoleAdmin
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

func CreateCourse(t *testing.T, repo course.Repository, id string, live null.Time, recordedDays int) course.Course {
	t.Helper()
	now := time.Now().UTC()
	crs, err := repo.UpsertCourse(context.Background(), course.Course{
		CourseID:             id,
		Title:                "Course " + id,
		ClassName:            "12",
		Price:                499,
		LiveValidityDate:     live,
		RecordedDurationDays: recordedDays,
		CreatedAt:            now,
		UpdatedAt:            now,
	})
	if err != nil {
		t.Fatalf("CreateCourse(): %v", err)
	}
	return crs
}

func CreateLecture(t *testing.T, repo course.Repository, courseID, chapter string, order int) course.Lecture {
	t.Helper()
	lec, err := repo.CreateLecture(context.Background(), course.Lecture{
		CourseID:    courseID,
		Title:       chapter + " lecture",
		VideoURL:    "https://videos.test/" + courseID,
		Duration:    course.DefaultLectureDuration,
		ChapterName: chapter,
		TopicName:   "Topic",
		Order:       order,
		Locked:      true,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateLecture(): %v", err)
	}
	return lec
}

// Date returns midnight UTC of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// FreezeTime points *nowFunc at a fixed instant for the duration of the test.
func FreezeTime(t *testing.T, nowFunc *func() time.Time, at time.Time) {
	t.Helper()
	orig := *nowFunc
	*nowFunc = func() time.Time { return at }
	t.Cleanup(func() { *nowFunc = orig })
}
