package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

const notificationColumns = `id, user_id, type, read, visible, send_alerts, job_id, payload, created_at`

// NotificationRepository defines persistence for user notifications.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error)
	GetNotification(ctx context.Context, id int64) (models.Notification, error)
	ListVisible(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	ToggleAlerts(ctx context.Context, userID string, id int64) (models.Notification, error)
	Hide(ctx context.Context, userID string, id int64) error
	MarkRead(ctx context.Context, userID string, id int64) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	MarkMessageNotificationsRead(ctx context.Context, userID, jobID, counterpartID string) (int64, error)
}

type notificationRow struct {
	ID         int64     `db:"id"`
	UserID     string    `db:"user_id"`
	Type       string    `db:"type"`
	Read       bool      `db:"read"`
	Visible    bool      `db:"visible"`
	SendAlerts bool      `db:"send_alerts"`
	JobID      string    `db:"job_id"`
	Payload    []byte    `db:"payload"`
	CreatedAt  time.Time `db:"created_at"`
}

func (row notificationRow) toModel() (models.Notification, error) {
	t, err := models.ParseNotificationType(row.Type)
	if err != nil {
		return models.Notification{}, err
	}
	payload, err := models.DecodePayload(t, row.Payload)
	if err != nil {
		return models.Notification{}, fmt.Errorf("decode notification %d: %w", row.ID, err)
	}
	return models.Notification{
		ID:         row.ID,
		UserID:     row.UserID,
		Type:       t,
		Read:       row.Read,
		Visible:    row.Visible,
		SendAlerts: row.SendAlerts,
		JobID:      row.JobID,
		CreatedAt:  row.CreatedAt,
		Payload:    payload,
	}, nil
}

// NotificationRepo is a sqlx-backed repository.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// CreateNotification persists n and returns it with its id and timestamp.
func (r *NotificationRepo) CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	payload, err := models.EncodePayload(n.Payload)
	if err != nil {
		return models.Notification{}, err
	}
	counterpart := ""
	if p, ok := n.Payload.(models.MessagePayload); ok {
		counterpart = p.SenderID
	}

	var row notificationRow
	err = r.db.QueryRowxContext(ctx, `INSERT INTO notifications (user_id, type, read, visible, send_alerts, job_id, counterpart_id, payload)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+notificationColumns,
		n.UserID, string(n.Type), n.Read, n.Visible, n.SendAlerts, n.JobID, counterpart, payload).StructScan(&row)
	if err != nil {
		return models.Notification{}, err
	}
	return row.toModel()
}

// GetNotification fetches a notification regardless of visibility.
func (r *NotificationRepo) GetNotification(ctx context.Context, id int64) (models.Notification, error) {
	var row notificationRow
	err := r.db.GetContext(ctx, &row, `SELECT `+notificationColumns+` FROM notifications WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, ErrNotificationNotFound
	}
	if err != nil {
		return models.Notification{}, err
	}
	return row.toModel()
}

// ListVisible returns visible notifications for the user, newest first.
func (r *NotificationRepo) ListVisible(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	var rows []notificationRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+notificationColumns+` FROM notifications
        WHERE user_id=$1 AND visible = TRUE
        ORDER BY created_at DESC, id DESC
        LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}

	result := make([]models.Notification, 0, len(rows))
	for _, row := range rows {
		n, err := row.toModel()
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, nil
}

// ToggleAlerts flips send_alerts and returns the updated record.
func (r *NotificationRepo) ToggleAlerts(ctx context.Context, userID string, id int64) (models.Notification, error) {
	var row notificationRow
	err := r.db.QueryRowxContext(ctx, `UPDATE notifications SET send_alerts = NOT send_alerts
        WHERE id=$1 AND user_id=$2 AND visible = TRUE RETURNING `+notificationColumns, id, userID).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, ErrNotificationNotFound
	}
	if err != nil {
		return models.Notification{}, err
	}
	return row.toModel()
}

// Hide soft-deletes a notification.
func (r *NotificationRepo) Hide(ctx context.Context, userID string, id int64) error {
	return r.execOne(ctx, `UPDATE notifications SET visible = FALSE WHERE id=$1 AND user_id=$2`, id, userID)
}

// MarkRead marks one notification read.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID string, id int64) error {
	return r.execOne(ctx, `UPDATE notifications SET read = TRUE WHERE id=$1 AND user_id=$2 AND visible = TRUE`, id, userID)
}

// MarkAllRead marks every unread visible notification of the user read.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE user_id=$1 AND read = FALSE AND visible = TRUE`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkMessageNotificationsRead marks message notifications of a thread read.
// An empty counterpartID covers every sender on the job.
func (r *NotificationRepo) MarkMessageNotificationsRead(ctx context.Context, userID, jobID, counterpartID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE
        WHERE user_id=$1 AND job_id=$2 AND type=$3 AND read = FALSE AND ($4 = '' OR counterpart_id=$4)`,
		userID, jobID, string(models.NotificationMessage), counterpartID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// execOne runs an update that must touch a row; a repeated update still matches.
func (r *NotificationRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
