package repository

import (
	"context"

	"github.com/sjperalta/schoolfees-api/internal/database"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"gorm.io/gorm"
)

// StructureSlot identifies the catalogue slot a structure occupies
type StructureSlot struct {
	AcademicYearID uint
	Scope          models.FeeScope
	FeeCategoryID  uint
}

// StructureQuery filters fee structure listings
type StructureQuery struct {
	*ListQuery
	AcademicYearID uint
	Scope          *models.FeeScope
	GradeID        uint // structures reaching this grade: the grade's own plus global
	FeeCategoryID  uint
	IsMandatory    *bool
	IsActive       *bool
	IncludeDirect  bool
}

// FeeStructureRepository defines the interface for fee structure access
type FeeStructureRepository interface {
	FindByID(ctx context.Context, id uint) (*models.FeeStructure, error)
	Create(ctx context.Context, structure *models.FeeStructure) error
	Update(ctx context.Context, structure *models.FeeStructure) error
	SoftDelete(ctx context.Context, id uint) error
	List(ctx context.Context, query *StructureQuery) ([]models.FeeStructure, int64, error)
	SlotTaken(ctx context.Context, slot StructureSlot, excludeID uint) (bool, error)
	FindApplicable(ctx context.Context, academicYearID, gradeID uint, mandatory *bool) ([]models.FeeStructure, error)
}

type feeStructureRepository struct {
	db *gorm.DB
}

// NewFeeStructureRepository creates a new fee structure repository
func NewFeeStructureRepository(db *gorm.DB) FeeStructureRepository {
	return &feeStructureRepository{db: db}
}

func (r *feeStructureRepository) FindByID(ctx context.Context, id uint) (*models.FeeStructure, error) {
	var structure models.FeeStructure
	err := database.Conn(ctx, r.db).
		Preload("FeeCategory").
		Preload("Grade").
		First(&structure, id).Error
	if err != nil {
		return nil, err
	}
	return &structure, nil
}

func (r *feeStructureRepository) Create(ctx context.Context, structure *models.FeeStructure) error {
	return database.Conn(ctx, r.db).Omit("FeeCategory", "Grade").Create(structure).Error
}

func (r *feeStructureRepository) Update(ctx context.Context, structure *models.FeeStructure) error {
	return database.Conn(ctx, r.db).Omit("FeeCategory", "Grade").Save(structure).Error
}

func (r *feeStructureRepository) SoftDelete(ctx context.Context, id uint) error {
	return database.Conn(ctx, r.db).Delete(&models.FeeStructure{}, id).Error
}

// scopeCondition compares grade_id NULL-aware
func scopeCondition(db *gorm.DB, scope models.FeeScope) *gorm.DB {
	if gradeID, ok := scope.GradeID(); ok {
		return db.Where("grade_id = ?", gradeID)
	}
	return db.Where("grade_id IS NULL")
}

// SlotTaken reports whether another live catalogue structure holds the slot
func (r *feeStructureRepository) SlotTaken(ctx context.Context, slot StructureSlot, excludeID uint) (bool, error) {
	var count int64
	db := database.Conn(ctx, r.db).
		Model(&models.FeeStructure{}).
		Where("academic_year_id = ? AND fee_category_id = ? AND is_direct = ?", slot.AcademicYearID, slot.FeeCategoryID, false)
	db = scopeCondition(db, slot.Scope)
	if excludeID > 0 {
		db = db.Where("id <> ?", excludeID)
	}
	if err := db.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindApplicable returns active catalogue structures reaching a grade in a year
func (r *feeStructureRepository) FindApplicable(ctx context.Context, academicYearID, gradeID uint, mandatory *bool) ([]models.FeeStructure, error) {
	var structures []models.FeeStructure
	db := database.Conn(ctx, r.db).
		Preload("FeeCategory").
		Where("academic_year_id = ? AND is_active = ? AND is_direct = ?", academicYearID, true, false).
		Where("(grade_id = ? OR grade_id IS NULL)", gradeID)

	if mandatory != nil {
		db = db.Where("is_mandatory = ?", *mandatory)
	}

	err := db.Order("id").Find(&structures).Error
	return structures, err
}

func (r *feeStructureRepository) List(ctx context.Context, query *StructureQuery) ([]models.FeeStructure, int64, error) {
	var structures []models.FeeStructure
	var total int64

	db := database.Conn(ctx, r.db).Model(&models.FeeStructure{})

	if !query.IncludeDirect {
		db = db.Where("fee_structures.is_direct = ?", false)
	}
	if query.AcademicYearID > 0 {
		db = db.Where("fee_structures.academic_year_id = ?", query.AcademicYearID)
	}
	if query.Scope != nil {
		db = scopeCondition(db, *query.Scope)
	} else if query.GradeID > 0 {
		db = db.Where("(fee_structures.grade_id = ? OR fee_structures.grade_id IS NULL)", query.GradeID)
	}
	if query.FeeCategoryID > 0 {
		db = db.Where("fee_structures.fee_category_id = ?", query.FeeCategoryID)
	}
	if query.IsMandatory != nil {
		db = db.Where("fee_structures.is_mandatory = ?", *query.IsMandatory)
	}
	if query.IsActive != nil {
		db = db.Where("fee_structures.is_active = ?", *query.IsActive)
	}
	if query.ListQuery != nil && query.Search != "" {
		search := "%" + query.Search + "%"
		db = db.Joins("LEFT JOIN fee_categories ON fee_categories.id = fee_structures.fee_category_id").
			Where("fee_categories.name ILIKE ? OR fee_structures.description ILIKE ?", search, search)
	}

	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = query.ListQuery.order(db, map[string]string{
		"amount":     "fee_structures.amount",
		"due_date":   "fee_structures.due_date",
		"created_at": "fee_structures.created_at",
	}, "fee_structures.created_at DESC")

	err := query.ListQuery.paginate(db).
		Preload("FeeCategory").
		Preload("Grade").
		Find(&structures).Error
	return structures, total, err
}
