package repository

import (
	"context"

	"github.com/sjperalta/schoolfees-api/internal/database"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"gorm.io/gorm"
)

// AuditRepository defines the interface for audit log access
type AuditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
	List(ctx context.Context, query *ListQuery) ([]models.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	return database.Conn(ctx, r.db).Create(log).Error
}

func (r *auditRepository) List(ctx context.Context, query *ListQuery) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	db := database.Conn(ctx, r.db).Model(&models.AuditLog{})

	if v := query.Filter("entity"); v != "" {
		db = db.Where("entity = ?", v)
	}
	if v := query.Filter("entity_id"); v != "" {
		db = db.Where("entity_id = ?", v)
	}
	if v := query.Filter("user_id"); v != "" {
		db = db.Where("user_id = ?", v)
	}
	if v := query.Filter("action"); v != "" {
		db = db.Where("action = ?", v)
	}

	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.paginate(db.Order("created_at DESC")).Find(&logs).Error
	return logs, total, err
}
