package repository

import (
	"context"

	"github.com/sjperalta/schoolfees-api/internal/database"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByParentID(ctx context.Context, parentID uint) ([]models.User, error)
	FindAdmins(ctx context.Context) ([]models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := database.Conn(ctx, r.db).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := database.Conn(ctx, r.db).
		Where("LOWER(email) = LOWER(?)", email).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByParentID(ctx context.Context, parentID uint) ([]models.User, error) {
	var users []models.User
	err := database.Conn(ctx, r.db).
		Where("parent_id = ? AND role = ? AND status = ?", parentID, models.RoleParent, models.StatusActive).
		Find(&users).Error
	return users, err
}

func (r *userRepository) FindAdmins(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := database.Conn(ctx, r.db).
		Where("role = ? AND status = ?", models.RoleAdmin, models.StatusActive).
		Find(&users).Error
	return users, err
}
