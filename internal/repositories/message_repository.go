package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"agentspace/internal/models"
)

// MessageRepository defines interactions for board messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, name, text, clientIP string) (models.Message, error)
	ListAfter(ctx context.Context, afterID, limit int) ([]models.Message, error)
	CountAfter(ctx context.Context, afterID int) (int, error)
	ListPage(ctx context.Context, limit, offset int) ([]models.Message, error)
	Count(ctx context.Context) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message. The id and created_at are assigned by the database.
func (r *MessageRepo) CreateMessage(ctx context.Context, name, text, clientIP string) (models.Message, error) {
	msg := models.Message{ClientIP: clientIP}
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (name, text, client_ip) VALUES ($1, $2, $3) RETURNING id, name, text, created_at`, name, text, clientIP).
		Scan(&msg.ID, &msg.Name, &msg.Text, &msg.CreatedAt)
	return msg, err
}

// ListAfter returns up to limit messages with id greater than afterID, oldest first.
func (r *MessageRepo) ListAfter(ctx context.Context, afterID, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	query := `SELECT id, name, text, client_ip, created_at
        FROM messages
        WHERE id > $1
        ORDER BY id ASC
        LIMIT $2`
	if err := r.db.SelectContext(ctx, &msgs, query, afterID, limit); err != nil {
		return nil, err
	}
	return msgs, nil
}

// CountAfter counts every message with id greater than afterID.
func (r *MessageRepo) CountAfter(ctx context.Context, afterID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE id > $1`, afterID)
	return count, err
}

// ListPage returns messages newest first.
func (r *MessageRepo) ListPage(ctx context.Context, limit, offset int) ([]models.Message, error) {
	msgs := []models.Message{}
	query := `SELECT id, name, text, client_ip, created_at
        FROM messages
        ORDER BY id DESC
        LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &msgs, query, limit, offset); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Count returns the total number of stored messages.
func (r *MessageRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages`)
	return count, err
}
