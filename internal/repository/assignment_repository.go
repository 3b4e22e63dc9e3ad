package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/schoolfees-api/internal/database"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AssignmentRepository defines the interface for student fee assignment access
type AssignmentRepository interface {
	FindByID(ctx context.Context, id uint) (*models.StudentFeeAssignment, error)
	FindActive(ctx context.Context, studentID, structureID uint) (*models.StudentFeeAssignment, error)
	FindOpenInCategory(ctx context.Context, studentID, academicYearID, categoryID uint) (*models.StudentFeeAssignment, error)
	ListByStudent(ctx context.Context, studentID uint, includeInactive bool) ([]models.StudentFeeAssignment, error)
	StudentsWithActiveAssignment(ctx context.Context, structureID uint) ([]uint, error)
	Create(ctx context.Context, assignment *models.StudentFeeAssignment) error
	CreateBatch(ctx context.Context, assignments []*models.StudentFeeAssignment) (int64, error)
	ApplyPayment(ctx context.Context, id uint, amount decimal.Decimal) error
	UpdateStatus(ctx context.Context, assignment *models.StudentFeeAssignment) error
	CountActiveByStructure(ctx context.Context, structureID uint) (int64, error)
	CancelByStructure(ctx context.Context, structureID uint) (int64, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) FindByID(ctx context.Context, id uint) (*models.StudentFeeAssignment, error) {
	var assignment models.StudentFeeAssignment
	err := database.Conn(ctx, r.db).
		Preload("FeeStructure.FeeCategory").
		First(&assignment, id).Error
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *assignmentRepository) FindActive(ctx context.Context, studentID, structureID uint) (*models.StudentFeeAssignment, error) {
	var assignment models.StudentFeeAssignment
	err := database.Conn(ctx, r.db).
		Where("student_id = ? AND fee_structure_id = ? AND is_active = ?", studentID, structureID, true).
		First(&assignment).Error
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindOpenInCategory returns the oldest active assignment of the category that still owes money
func (r *assignmentRepository) FindOpenInCategory(ctx context.Context, studentID, academicYearID, categoryID uint) (*models.StudentFeeAssignment, error) {
	var assignment models.StudentFeeAssignment
	err := database.Conn(ctx, r.db).
		Joins("JOIN fee_structures ON fee_structures.id = student_fee_assignments.fee_structure_id").
		Where("student_fee_assignments.student_id = ? AND student_fee_assignments.is_active = ?", studentID, true).
		Where("student_fee_assignments.status IN ? AND student_fee_assignments.pending_amount > 0", models.CollectibleStatuses).
		Where("fee_structures.academic_year_id = ? AND fee_structures.fee_category_id = ?", academicYearID, categoryID).
		Order("student_fee_assignments.id").
		First(&assignment).Error
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *assignmentRepository) ListByStudent(ctx context.Context, studentID uint, includeInactive bool) ([]models.StudentFeeAssignment, error) {
	var assignments []models.StudentFeeAssignment
	db := database.Conn(ctx, r.db).
		Preload("FeeStructure", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("FeeStructure.FeeCategory", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("student_id = ?", studentID)
	if !includeInactive {
		db = db.Where("is_active = ?", true)
	}
	err := db.Order("due_date ASC NULLS LAST, id ASC").Find(&assignments).Error
	return assignments, err
}

// StudentsWithActiveAssignment lists students already holding the structure
func (r *assignmentRepository) StudentsWithActiveAssignment(ctx context.Context, structureID uint) ([]uint, error) {
	var ids []uint
	err := database.Conn(ctx, r.db).
		Model(&models.StudentFeeAssignment{}).
		Where("fee_structure_id = ? AND is_active = ?", structureID, true).
		Pluck("student_id", &ids).Error
	return ids, err
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.StudentFeeAssignment) error {
	return database.Conn(ctx, r.db).Omit("FeeStructure", "Student").Create(assignment).Error
}

// CreateBatch inserts in chunks, skipping rows that collide with the
// one-active-assignment-per-structure index, and returns how many were inserted.
func (r *assignmentRepository) CreateBatch(ctx context.Context, assignments []*models.StudentFeeAssignment) (int64, error) {
	if len(assignments) == 0 {
		return 0, nil
	}
	result := database.Conn(ctx, r.db).
		Omit("FeeStructure", "Student").
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(assignments, 200)
	return result.RowsAffected, result.Error
}

// ApplyPayment adds amount to paid_amount in a single guarded statement so
// concurrent collections never overwrite each other. Returns ErrNoRowsAffected
// when the assignment is closed or the amount exceeds what is pending.
func (r *assignmentRepository) ApplyPayment(ctx context.Context, id uint, amount decimal.Decimal) error {
	result := database.Conn(ctx, r.db).
		Model(&models.StudentFeeAssignment{}).
		Where("id = ? AND is_active = ? AND status IN ?", id, true, models.CollectibleStatuses).
		Where("paid_amount + ? <= total_amount", amount).
		Updates(map[string]interface{}{
			"paid_amount":    gorm.Expr("paid_amount + ?", amount),
			"pending_amount": gorm.Expr("total_amount - (paid_amount + ?)", amount),
			"status": gorm.Expr(
				"CASE WHEN total_amount - (paid_amount + ?) <= 0 THEN ? WHEN paid_amount + ? > 0 THEN ? ELSE status END",
				amount, models.AssignmentStatusPaid, amount, models.AssignmentStatusPartial,
			),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

func (r *assignmentRepository) UpdateStatus(ctx context.Context, assignment *models.StudentFeeAssignment) error {
	return database.Conn(ctx, r.db).
		Model(&models.StudentFeeAssignment{}).
		Where("id = ?", assignment.ID).
		Updates(map[string]interface{}{
			"status":     assignment.Status,
			"is_active":  assignment.IsActive,
			"updated_at": time.Now(),
		}).Error
}

func (r *assignmentRepository) CountActiveByStructure(ctx context.Context, structureID uint) (int64, error) {
	var count int64
	err := database.Conn(ctx, r.db).
		Model(&models.StudentFeeAssignment{}).
		Where("fee_structure_id = ? AND is_active = ?", structureID, true).
		Count(&count).Error
	return count, err
}

// CancelByStructure deactivates every active assignment of the structure.
// Paid assignments keep their status.
func (r *assignmentRepository) CancelByStructure(ctx context.Context, structureID uint) (int64, error) {
	result := database.Conn(ctx, r.db).
		Model(&models.StudentFeeAssignment{}).
		Where("fee_structure_id = ? AND is_active = ?", structureID, true).
		Updates(map[string]interface{}{
			"is_active": false,
			"status": gorm.Expr("CASE WHEN status = ? THEN status ELSE ? END",
				models.AssignmentStatusPaid, models.AssignmentStatusCancelled),
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// MarkOverdue flags open assignments whose due date is before asOf's day
func (r *assignmentRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	result := database.Conn(ctx, r.db).
		Model(&models.StudentFeeAssignment{}).
		Where("is_active = ? AND status IN ? AND pending_amount > 0", true,
			[]string{models.AssignmentStatusPending, models.AssignmentStatusPartial}).
		Where("due_date < ?", asOf.Format("2006-01-02")).
		Updates(map[string]interface{}{
			"status":     models.AssignmentStatusOverdue,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}
