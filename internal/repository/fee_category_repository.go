package repository

import (
	"context"

	"github.com/sjperalta/schoolfees-api/internal/database"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"gorm.io/gorm"
)

// FeeCategoryRepository defines the interface for fee category access
type FeeCategoryRepository interface {
	FindByID(ctx context.Context, id uint) (*models.FeeCategory, error)
	FindByName(ctx context.Context, name string) (*models.FeeCategory, error)
	Create(ctx context.Context, category *models.FeeCategory) error
	Update(ctx context.Context, category *models.FeeCategory) error
	List(ctx context.Context, query *ListQuery) ([]models.FeeCategory, int64, error)
	CountStructures(ctx context.Context, categoryID uint) (int64, error)
	SoftDelete(ctx context.Context, id uint) error
	HardDelete(ctx context.Context, id uint) error
}

type feeCategoryRepository struct {
	db *gorm.DB
}

// NewFeeCategoryRepository creates a new fee category repository
func NewFeeCategoryRepository(db *gorm.DB) FeeCategoryRepository {
	return &feeCategoryRepository{db: db}
}

func (r *feeCategoryRepository) FindByID(ctx context.Context, id uint) (*models.FeeCategory, error) {
	var category models.FeeCategory
	if err := database.Conn(ctx, r.db).First(&category, id).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

// FindByName matches case-insensitively among live categories
func (r *feeCategoryRepository) FindByName(ctx context.Context, name string) (*models.FeeCategory, error) {
	var category models.FeeCategory
	err := database.Conn(ctx, r.db).
		Where("LOWER(name) = LOWER(?)", name).
		First(&category).Error
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *feeCategoryRepository) Create(ctx context.Context, category *models.FeeCategory) error {
	return database.Conn(ctx, r.db).Create(category).Error
}

func (r *feeCategoryRepository) Update(ctx context.Context, category *models.FeeCategory) error {
	return database.Conn(ctx, r.db).
		Model(category).
		Select("name", "description", "updated_at").
		Updates(category).Error
}

func (r *feeCategoryRepository) List(ctx context.Context, query *ListQuery) ([]models.FeeCategory, int64, error) {
	var categories []models.FeeCategory
	var total int64

	db := database.Conn(ctx, r.db).Model(&models.FeeCategory{})

	if query.Search != "" {
		search := "%" + query.Search + "%"
		db = db.Where("name ILIKE ? OR description ILIKE ?", search, search)
	}

	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = query.order(db, map[string]string{
		"name":       "name",
		"created_at": "created_at",
	}, "name ASC")

	err := query.paginate(db).Find(&categories).Error
	return categories, total, err
}

// CountStructures counts structures referencing the category, soft-deleted
// ones included since their rows still hold the foreign key.
func (r *feeCategoryRepository) CountStructures(ctx context.Context, categoryID uint) (int64, error) {
	var count int64
	err := database.Conn(ctx, r.db).
		Unscoped().
		Model(&models.FeeStructure{}).
		Where("fee_category_id = ?", categoryID).
		Count(&count).Error
	return count, err
}

func (r *feeCategoryRepository) SoftDelete(ctx context.Context, id uint) error {
	return database.Conn(ctx, r.db).Delete(&models.FeeCategory{}, id).Error
}

func (r *feeCategoryRepository) HardDelete(ctx context.Context, id uint) error {
	return database.Conn(ctx, r.db).Unscoped().Delete(&models.FeeCategory{}, id).Error
}
