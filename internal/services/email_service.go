package services

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"

	"github.com/resend/resend-go/v2"
	"github.com/sjperalta/schoolfees-api/internal/config"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/pkg/logger"
)

//go:embed templates/email/*.html
var emailTemplates embed.FS

// EmailService mails in-app notifications to their recipients through Resend
type EmailService struct {
	config       *config.Config
	resendClient *resend.Client
}

func NewEmailService(cfg *config.Config) *EmailService {
	return &EmailService{
		config:       cfg,
		resendClient: resend.NewClient(cfg.ResendAPIKey),
	}
}

// checkEmailPreconditions reports whether a mail should go out. A disabled
// service is not an error; a misconfigured one is.
func (s *EmailService) checkEmailPreconditions(user *models.User, operation string) (bool, error) {
	if !s.config.EnableEmailNotifications {
		logger.Debug("Email notifications disabled, skipping", "operation", operation)
		return false, nil
	}
	if s.config.ResendAPIKey == "" {
		return false, errors.New("RESEND_API_KEY is not set")
	}
	if s.config.FromEmail == "" {
		return false, errors.New("FROM_EMAIL is not set")
	}
	if user == nil || user.Email == "" {
		return false, errors.New("email address is empty")
	}
	return true, nil
}

// SendNotification mails subject and message to user
func (s *EmailService) SendNotification(ctx context.Context, user *models.User, subject, message string) error {
	ok, err := s.checkEmailPreconditions(user, subject)
	if !ok {
		return err
	}

	data := struct {
		Name       string
		Title      string
		Message    string
		SchoolName string
	}{
		Name:       user.FullName,
		Title:      subject,
		Message:    message,
		SchoolName: s.config.SchoolName,
	}

	body, err := s.renderTemplate("notification.html", data)
	if err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    s.config.FromEmail,
		To:      []string{user.Email},
		Subject: fmt.Sprintf("%s: %s", s.config.SchoolName, subject),
		Html:    body,
	}
	if _, err := s.resendClient.Emails.SendWithContext(ctx, params); err != nil {
		logger.Error("Failed to send email", "to", user.Email, "subject", subject, "error", err)
		return err
	}

	logger.Info("Email sent", "to", user.Email, "subject", subject)
	return nil
}

func (s *EmailService) renderTemplate(name string, data interface{}) (string, error) {
	tmpl, err := template.ParseFS(emailTemplates, "templates/email/"+name)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}

	return buf.String(), nil
}
