package services

import (
	"context"

	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/internal/repository"
	"github.com/sjperalta/schoolfees-api/pkg/logger"
)

type clientInfoKey struct{}

type clientInfo struct {
	ip        string
	userAgent string
}

// WithClientInfo attaches the caller's address and user agent for audit entries
func WithClientInfo(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, clientInfo{ip: ip, userAgent: userAgent})
}

type AuditService struct {
	repo repository.AuditRepository
}

func NewAuditService(repo repository.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

// Log records an audit entry. Failures are logged, never returned: an audit
// write must not undo a financial operation that already committed.
func (s *AuditService) Log(ctx context.Context, userID uint, action, entity string, entityID uint, details string) {
	info, _ := ctx.Value(clientInfoKey{}).(clientInfo)
	entry := &models.AuditLog{
		UserID:    userID,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Details:   details,
		IPAddress: info.ip,
		UserAgent: info.userAgent,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		logger.Error("Failed to write audit log",
			"action", action,
			"entity", entity,
			"entity_id", entityID,
			"error", err,
		)
	}
}

// List retrieves audit logs with filters
func (s *AuditService) List(ctx context.Context, query *repository.ListQuery) ([]models.AuditLog, int64, error) {
	return s.repo.List(ctx, query)
}
