package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
	"github.com/noah-isme/lms-gradebook-api/pkg/database"
)

// NotificationRepository stores in-app notifications. Delivery is handled elsewhere.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateBatch inserts notifications atomically.
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	const query = `INSERT INTO notifications (id, recipient_id, notification_type, title, message, course_id, action_url, is_read, created_at)
        VALUES (:id, :recipient_id, :notification_type, :title, :message, :course_id, :action_url, :is_read, :created_at)`
	now := time.Now().UTC()
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for i := range notifications {
			if notifications[i].ID == "" {
				notifications[i].ID = uuid.NewString()
			}
			if notifications[i].CreatedAt.IsZero() {
				notifications[i].CreatedAt = now
			}
			if _, err := tx.NamedExecContext(ctx, query, notifications[i]); err != nil {
				return fmt.Errorf("insert notification: %w", err)
			}
		}
		return nil
	})
}
