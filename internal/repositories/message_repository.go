package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

const messageColumns = `id, job_id, sender_id, recipient_id, content, read, created_at`

// MessageRepository defines persistence for job-scoped direct messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, jobID, senderID, recipientID, content string) (models.Message, error)
	ListForPair(ctx context.Context, jobID, userA, userB string) ([]models.Message, error)
	ListForUser(ctx context.Context, userID string) ([]models.Message, error)
	MarkRead(ctx context.Context, jobID, recipientID, senderID string) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores an unread message stamped with the database clock.
func (r *MessageRepo) CreateMessage(ctx context.Context, jobID, senderID, recipientID, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (job_id, sender_id, recipient_id, content) VALUES ($1, $2, $3, $4) RETURNING `+messageColumns, jobID, senderID, recipientID, content).
		StructScan(&msg)
	return msg, err
}

// ListForPair returns the thread between two users on a job, oldest first.
func (r *MessageRepo) ListForPair(ctx context.Context, jobID, userA, userB string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE job_id=$1
        AND ((sender_id=$2 AND recipient_id=$3) OR (sender_id=$3 AND recipient_id=$2))
        ORDER BY created_at ASC, id ASC`
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, query, jobID, userA, userB)
	return msgs, err
}

// ListForUser returns every message the user sent or received.
func (r *MessageRepo) ListForUser(ctx context.Context, userID string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE sender_id=$1 OR recipient_id=$1
        ORDER BY created_at ASC, id ASC`
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, query, userID)
	return msgs, err
}

// MarkRead flips unread messages addressed to recipientID on the job.
// An empty senderID covers every counterpart on the job.
func (r *MessageRepo) MarkRead(ctx context.Context, jobID, recipientID, senderID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET read = TRUE
        WHERE job_id=$1 AND recipient_id=$2 AND read = FALSE AND ($3 = '' OR sender_id=$3)`, jobID, recipientID, senderID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
