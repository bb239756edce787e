package models

import "time"

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotificationTypeAssignment   NotificationType = "ASSIGNMENT"
	NotificationTypeGrade        NotificationType = "GRADE"
	NotificationTypeAnnouncement NotificationType = "ANNOUNCEMENT"
)

// Notification is an in-app message for a single recipient.
type Notification struct {
	ID               string           `db:"id" json:"id"`
	RecipientID      string           `db:"recipient_id" json:"recipient_id"`
	NotificationType NotificationType `db:"notification_type" json:"notification_type"`
	Title            string           `db:"title" json:"title"`
	Message          string           `db:"message" json:"message"`
	CourseID         *string          `db:"course_id" json:"course_id,omitempty"`
	ActionURL        string           `db:"action_url" json:"action_url"`
	IsRead           bool             `db:"is_read" json:"is_read"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}
