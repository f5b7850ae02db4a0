package notification

import (
	"context"
	"net/mail"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/pimentor/backend/core"
	"github.com/pimentor/backend/core/enrollment"
)

var (
	NowFunc = time.Now // mockable

	ErrNotFound = errors.New("notification not found")
)

type Notification struct {
	ID            string    `json:"id"`
	Heading       string    `json:"heading"`
	Description   string    `json:"description"`
	Link          string    `json:"link"`
	TargetCourses []string  `json:"target_courses"` // empty: everyone
	CreatedAt     time.Time `json:"created_at"`     // UTC
}

// Targets reports whether n is meant for a holder of any of the given courses.
func (n Notification) Targets(courseIDs map[string]bool) bool {
	if len(n.TargetCourses) == 0 {
		return true
	}
	for _, id := range n.TargetCourses {
		if courseIDs[id] {
			return true
		}
	}
	return false
}

type NewNotification struct {
	Heading       string   `json:"heading" validate:"required,max=200"`
	Description   string   `json:"description" validate:"required,max=2000"`
	Link          string   `json:"link" validate:"omitempty,url"`
	TargetCourses []string `json:"target_courses"`
}

func (nn *NewNotification) Validate(validate *validator.Validate) error {
	nn.Heading = core.CleanString(nn.Heading)
	nn.Description = core.CleanString(nn.Description)
	nn.Link = core.CleanString(nn.Link)

	seen := make(map[string]bool, len(nn.TargetCourses))
	targets := make([]string, 0, len(nn.TargetCourses))
	for _, id := range nn.TargetCourses {
		id = core.CleanString(id, true /* lower */)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		targets = append(targets, id)
	}
	sort.Strings(targets)
	nn.TargetCourses = targets
	return validate.Struct(nn)
}

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification) (Notification, error)
		// QueryNotifications returns all notifications, newest first.
		QueryNotifications(ctx context.Context) ([]Notification, error)
		DeleteNotification(ctx context.Context, id string) error
	}

	// Enrollments lists who bought what.
	Enrollments interface {
		ListByUser(ctx context.Context, userID string) ([]enrollment.View, error)
		ListCourseEnrollments(ctx context.Context, courseID string) ([]enrollment.CourseEnrollment, error)
	}

	Service struct {
		repo        Repository
		enrollments Enrollments
		mailSvc     core.EmailService
		logger      core.Logger
	}
)

func NewService(repo Repository, enrollments Enrollments, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{
		repo:        repo,
		enrollments: enrollments,
		mailSvc:     mailSvc,
		logger:      logger,
	}
}

// Broadcast publishes a notification; when it targets courses, their active students are also emailed.
func (svc *Service) Broadcast(ctx context.Context, nn NewNotification) (Notification, error) {
	n, err := svc.repo.CreateNotification(ctx, Notification{
		Heading:       nn.Heading,
		Description:   nn.Description,
		Link:          nn.Link,
		TargetCourses: nn.TargetCourses,
		CreatedAt:     NowFunc().UTC(),
	})
	if err != nil {
		return Notification{}, errors.Wrap(err, "creating notification")
	}

	if len(n.TargetCourses) > 0 {
		if err = svc.mailRecipients(ctx, n); err != nil {
			// the notification is published either way
			svc.logger.Error("mailing notification", err, map[string]interface{}{"notification_id": n.ID})
		}
	}
	return n, nil
}

func (svc *Service) mailRecipients(ctx context.Context, n Notification) error {
	seen := make(map[string]bool)
	var bcc []mail.Address
	for _, courseID := range n.TargetCourses {
		enrs, err := svc.enrollments.ListCourseEnrollments(ctx, courseID)
		if err != nil {
			return errors.Wrapf(err, "listing enrollments of %q", courseID)
		}
		for _, enr := range enrs {
			if !enr.Active || enr.Email == "" || seen[enr.Email] {
				continue
			}
			seen[enr.Email] = true
			bcc = append(bcc, mail.Address{Name: enr.Name, Address: enr.Email})
		}
	}
	if len(bcc) == 0 {
		return nil
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		Bcc:          bcc,
		Subject:      n.Heading,
		TemplateName: "notification",
		TemplateData: map[string]interface{}{
			"Heading":     n.Heading,
			"Description": n.Description,
			"Link":        n.Link,
		},
	})
	return nil
}

func (svc *Service) List(ctx context.Context) ([]Notification, error) {
	return svc.repo.QueryNotifications(ctx)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteNotification(ctx, core.CleanString(id))
}

// ListForUser returns the notifications meant for everyone plus those targeting a course the user can access.
func (svc *Service) ListForUser(ctx context.Context, userID string) ([]Notification, error) {
	views, err := svc.enrollments.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing user enrollments")
	}
	active := make(map[string]bool, len(views))
	for _, v := range views {
		if v.Active {
			active[v.CourseID] = true
		}
	}

	all, err := svc.repo.QueryNotifications(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	notifs := make([]Notification, 0, len(all))
	for _, n := range all {
		if n.Targets(active) {
			notifs = append(notifs, n)
		}
	}
	return notifs, nil
}
