package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/lms-gradebook-api/pkg/errors"
)

type notificationWriter interface {
	CreateBatch(ctx context.Context, notifications []models.Notification) error
}

// NotificationService records in-app notifications about grade changes.
type NotificationService struct {
	repo    notificationWriter
	courses courseReader
	logger  *zap.Logger
}

// NewNotificationService constructs NotificationService.
func NewNotificationService(repo notificationWriter, courses courseReader, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, courses: courses, logger: logger}
}

// NotifyGradeUpdates tells each student that their course grade was updated.
func (s *NotificationService) NotifyGradeUpdates(ctx context.Context, courseID string, studentIDs []string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	title := "Grade updated"
	label := courseID
	if course, err := s.courses.FindByID(ctx, courseID); err == nil {
		label = course.Code
		if course.Title != "" {
			label = fmt.Sprintf("%s %s", course.Code, course.Title)
		}
	}

	cid := courseID
	notifications := make([]models.Notification, 0, len(studentIDs))
	for _, studentID := range studentIDs {
		notifications = append(notifications, models.Notification{
			RecipientID:      studentID,
			NotificationType: models.NotificationTypeGrade,
			Title:            title,
			Message:          fmt.Sprintf("Your grade for %s has been updated.", label),
			CourseID:         &cid,
			ActionURL:        fmt.Sprintf("/courses/%s/grades/me", courseID),
		})
	}
	if err := s.repo.CreateBatch(ctx, notifications); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notifications")
	}
	s.logger.Info("grade notifications created", zap.String("course_id", courseID), zap.Int("count", len(notifications)))
	return nil
}
