package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/internal/repository"
	"gorm.io/gorm"
)

// CategoryInput carries the editable fields of a fee category
type CategoryInput struct {
	Name        string
	Description *string
}

// CategoryDeleteResult reports how a category was removed
type CategoryDeleteResult struct {
	SoftDeleted    bool  `json:"soft_deleted"`
	StructureCount int64 `json:"structure_count"`
}

// FeeCategoryService manages fee categories
type FeeCategoryService struct {
	repo     repository.FeeCategoryRepository
	auditSvc *AuditService
}

// NewFeeCategoryService creates a new fee category service
func NewFeeCategoryService(repo repository.FeeCategoryRepository, auditSvc *AuditService) *FeeCategoryService {
	return &FeeCategoryService{repo: repo, auditSvc: auditSvc}
}

func (in *CategoryInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fieldError("name", "is required")
	}
	if len(in.Name) > 100 {
		return fieldError("name", "must be at most 100 characters")
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		in.Description = &desc
	}
	return nil
}

// ensureNameFree rejects a name already used by another live category
func (s *FeeCategoryService) ensureNameFree(ctx context.Context, name string, excludeID uint) error {
	existing, err := s.repo.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if existing.ID != excludeID {
		return fmt.Errorf("fee category %q: %w", name, ErrDuplicate)
	}
	return nil
}

func (s *FeeCategoryService) Create(ctx context.Context, in CategoryInput) (*models.FeeCategory, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, in.Name, 0); err != nil {
		return nil, err
	}

	category := &models.FeeCategory{Name: in.Name, Description: in.Description}
	if err := s.repo.Create(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *FeeCategoryService) Update(ctx context.Context, id uint, in CategoryInput) (*models.FeeCategory, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	category, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound("fee category", err)
	}
	if err := s.ensureNameFree(ctx, in.Name, id); err != nil {
		return nil, err
	}

	category.Name = in.Name
	category.Description = in.Description
	if err := s.repo.Update(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *FeeCategoryService) FindByID(ctx context.Context, id uint) (*models.FeeCategory, error) {
	category, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound("fee category", err)
	}
	return category, nil
}

func (s *FeeCategoryService) List(ctx context.Context, query *repository.ListQuery) ([]models.FeeCategory, int64, error) {
	return s.repo.List(ctx, query)
}

// Delete soft-deletes a category still referenced by live structures and
// removes it outright otherwise.
func (s *FeeCategoryService) Delete(ctx context.Context, id, actorID uint) (*CategoryDeleteResult, error) {
	category, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound("fee category", err)
	}

	count, err := s.repo.CountStructures(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &CategoryDeleteResult{StructureCount: count}
	if count > 0 {
		result.SoftDeleted = true
		err = s.repo.SoftDelete(ctx, id)
	} else {
		err = s.repo.HardDelete(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, actorID, models.AuditActionDelete, models.AuditEntityFeeCategory, id,
		fmt.Sprintf("Deleted fee category %q (soft=%t, structures=%d)", category.Name, result.SoftDeleted, count))
	return result, nil
}
