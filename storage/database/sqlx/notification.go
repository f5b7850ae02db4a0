package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/pimentor/backend/core"
	"github.com/pimentor/backend/core/notification"
)

const notificationColumns = `id, heading, description, link, target_courses, created_at`

type notificationRow struct {
	ID            string         `db:"id"`
	Heading       string         `db:"heading"`
	Description   string         `db:"description"`
	Link          string         `db:"link"`
	TargetCourses pq.StringArray `db:"target_courses"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (r notificationRow) unboil() notification.Notification {
	targets := []string(r.TargetCourses)
	if targets == nil {
		targets = []string{}
	}
	return notification.Notification{
		ID:            r.ID,
		Heading:       r.Heading,
		Description:   r.Description,
		Link:          r.Link,
		TargetCourses: targets,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

type notificationRepository struct {
	db core.DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db core.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	if n.TargetCourses == nil {
		n.TargetCourses = []string{}
	}
	n.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO notification (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.Heading, n.Description, n.Link, pq.StringArray(n.TargetCourses), n.CreatedAt,
	)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context) ([]notification.Notification, error) {
	var rows []notificationRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+notificationColumns+` FROM notification ORDER BY created_at DESC`); err != nil {
		return nil, errors.Wrap(err, "selecting notifications")
	}
	notifs := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		notifs = append(notifs, row.unboil())
	}
	return notifs, nil
}

func (repo *notificationRepository) DeleteNotification(ctx context.Context, id string) error {
	if !validUUID(id) {
		return notification.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM notification WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return notification.ErrNotFound
	}
	return nil
}
