package services

import (
	"context"

	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/internal/repository"
	"github.com/sjperalta/schoolfees-api/pkg/logger"
)

// Mailer delivers a notification outside the app
type Mailer interface {
	SendNotification(ctx context.Context, user *models.User, subject, message string) error
}

type NotificationService struct {
	repo     repository.NotificationRepository
	userRepo repository.UserRepository
	mailer   Mailer
}

// NewNotificationService creates the service. mailer may be nil.
func NewNotificationService(repo repository.NotificationRepository, userRepo repository.UserRepository, mailer Mailer) *NotificationService {
	return &NotificationService{repo: repo, userRepo: userRepo, mailer: mailer}
}

func (s *NotificationService) FindByUser(ctx context.Context, userID uint, query *repository.ListQuery) ([]models.Notification, int64, error) {
	return s.repo.FindByUser(ctx, userID, query)
}

func (s *NotificationService) CountUnread(ctx context.Context, userID uint) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkAsRead marks one of the user's notifications as read
func (s *NotificationService) MarkAsRead(ctx context.Context, id, userID uint) error {
	return notFound("notification", s.repo.MarkAsRead(ctx, id, userID))
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uint) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *NotificationService) NotifyUser(ctx context.Context, userID uint, title, message, notifType string) error {
	notification := &models.Notification{
		UserID:           userID,
		Title:            title,
		Message:          message,
		NotificationType: &notifType,
	}
	return s.repo.Create(ctx, notification)
}

// NotifyParent notifies every active parent account linked to parentID and
// mails a copy. A failed mail is logged; the in-app notification stands.
func (s *NotificationService) NotifyParent(ctx context.Context, parentID uint, title, message, notifType string) error {
	users, err := s.userRepo.FindByParentID(ctx, parentID)
	if err != nil {
		return err
	}
	for i := range users {
		if err := s.NotifyUser(ctx, users[i].ID, title, message, notifType); err != nil {
			return err
		}
		if s.mailer == nil {
			continue
		}
		if err := s.mailer.SendNotification(ctx, &users[i], title, message); err != nil {
			logger.Warn("Parent email not delivered", "user_id", users[i].ID, "error", err)
		}
	}
	return nil
}

func (s *NotificationService) NotifyAdmins(ctx context.Context, title, message, notifType string) error {
	admins, err := s.userRepo.FindAdmins(ctx)
	if err != nil {
		return err
	}
	for _, admin := range admins {
		if err := s.NotifyUser(ctx, admin.ID, title, message, notifType); err != nil {
			return err
		}
	}
	return nil
}
