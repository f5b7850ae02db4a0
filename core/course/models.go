package course

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/pimentor/backend/core"
	"github.com/pimentor/backend/core/enrollment"
)

const DefaultLectureDuration = "0:00"

var liveDateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

type Course struct {
	CourseID             string    `json:"course_id"`
	Title                string    `json:"title"`
	ClassName            string    `json:"class_name"`
	Price                float64   `json:"price"`
	Description          string    `json:"description"`
	NotesLink            string    `json:"notes_link"`
	LiveValidityDate     null.Time `json:"live_validity_date"` // UTC
	RecordedDurationDays int       `json:"recorded_duration_days"`
	CreatedAt            time.Time `json:"created_at"` // UTC
	UpdatedAt            time.Time `json:"updated_at"` // UTC
}

func (c Course) Validity() enrollment.CourseValidity {
	return enrollment.CourseValidity{
		CourseID:             c.CourseID,
		Title:                c.Title,
		ClassName:            c.ClassName,
		Price:                c.Price,
		LiveValidityDate:     c.LiveValidityDate,
		RecordedDurationDays: c.RecordedDurationDays,
	}
}

type Lecture struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	Title       string    `json:"title"`
	VideoURL    string    `json:"video_url"`
	Duration    string    `json:"duration"`
	ChapterName string    `json:"chapter_name"`
	TopicName   string    `json:"topic_name"`
	Order       int       `json:"order"`
	PDFNotes    string    `json:"pdf_notes"`
	PracticeMCQ string    `json:"practice_mcq"`
	Locked      bool      `json:"locked"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// UpsertCourse contains the information needed to create or replace a Course.
type UpsertCourse struct {
	CourseID             string                  `json:"course_id" validate:"required,max=64,slug"`
	Title                string                  `json:"title" validate:"required,max=200"`
	ClassName            string                  `json:"class_name"`
	Price                float64                 `json:"price" validate:"gte=0"`
	Description          string                  `json:"description"`
	NotesLink            string                  `json:"notes_link" validate:"omitempty,url"`
	LiveValidityDate     string                  `json:"live_validity_date"`
	RecordedDurationDays enrollment.DurationDays `json:"recorded_duration_days"`
}

func (uc *UpsertCourse) Validate(validate *validator.Validate) error {
	uc.CourseID = core.CleanString(uc.CourseID, true /* lower */)
	uc.Title = core.CleanString(uc.Title)
	uc.ClassName = core.CleanString(uc.ClassName)
	uc.Description = strings.TrimSpace(uc.Description)
	uc.NotesLink = core.CleanString(uc.NotesLink)
	uc.LiveValidityDate = core.CleanString(uc.LiveValidityDate)
	return validate.Struct(uc)
}

// parseLiveDate reads an admin supplied live cutoff; ok is false when s is set but unusable.
func parseLiveDate(s string) (live null.Time, ok bool) {
	if s == "" {
		return null.Time{}, true
	}
	for _, layout := range liveDateLayouts {
		if t, err := time.Parse(layout, s); err == nil && enrollment.ValidInstant(t) {
			return null.TimeFrom(t.UTC()), true
		}
	}
	return null.Time{}, false
}

// NewLecture contains the information needed to add a Lecture to a Course.
type NewLecture struct {
	CourseID    string `json:"course_id" validate:"required"`
	Title       string `json:"title" validate:"required,max=200"`
	VideoURL    string `json:"video_url" validate:"required"`
	Duration    string `json:"duration"`
	ChapterName string `json:"chapter_name" validate:"required,max=200"`
	TopicName   string `json:"topic_name" validate:"required,max=200"`
	Order       int    `json:"order" validate:"gte=0"`
	PDFNotes    string `json:"pdf_notes"`
	PracticeMCQ string `json:"practice_mcq"`
	Locked      *bool  `json:"locked"`
}

func (nl *NewLecture) Validate(validate *validator.Validate) error {
	nl.CourseID = core.CleanString(nl.CourseID, true /* lower */)
	nl.Title = core.CleanString(nl.Title)
	nl.VideoURL = core.CleanString(nl.VideoURL)
	nl.Duration = core.CleanString(nl.Duration)
	nl.ChapterName = core.CleanString(nl.ChapterName)
	nl.TopicName = core.CleanString(nl.TopicName)
	nl.PDFNotes = core.CleanString(nl.PDFNotes)
	nl.PracticeMCQ = core.CleanString(nl.PracticeMCQ)
	return validate.Struct(nl)
}
