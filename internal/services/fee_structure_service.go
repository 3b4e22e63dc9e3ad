package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/schoolfees-api/internal/database"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/internal/repository"
	"github.com/sjperalta/schoolfees-api/pkg/logger"
	"gorm.io/gorm"
)

// StructureInput carries the editable fields of a fee structure
type StructureInput struct {
	AcademicYearID      uint
	GradeID             *uint
	FeeCategoryID       uint
	Amount              decimal.Decimal
	IsMandatory         bool
	DueDate             *time.Time
	InstallmentsAllowed bool
	MaxInstallments     int
	LateFeeAmount       decimal.Decimal
	LateFeeDays         int
	IsActive            *bool
	Description         *string
}

// Scope returns the grade reach requested by the input
func (in *StructureInput) Scope() models.FeeScope {
	return models.ScopeFromColumn(in.GradeID)
}

func (in *StructureInput) validate() error {
	verr := &ValidationError{}
	if in.AcademicYearID == 0 {
		verr.add("academic_year_id", "is required")
	}
	if in.FeeCategoryID == 0 {
		verr.add("fee_category_id", "is required")
	}
	if !in.Amount.IsPositive() {
		verr.add("amount", "must be greater than zero")
	}
	if in.LateFeeAmount.IsNegative() {
		verr.add("late_fee_amount", "must not be negative")
	}
	if in.LateFeeDays < 0 {
		verr.add("late_fee_days", "must not be negative")
	}
	if in.InstallmentsAllowed {
		if in.MaxInstallments < 1 {
			verr.add("max_installments", "must be at least 1 when installments are allowed")
		}
	} else {
		in.MaxInstallments = 1
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		in.Description = &desc
	}
	return verr.orNil()
}

// apply copies the input onto the structure. The division column is vestigial
// and always cleared.
func (in *StructureInput) apply(s *models.FeeStructure) {
	s.AcademicYearID = in.AcademicYearID
	s.SetScope(in.Scope())
	s.DivisionID = nil
	s.FeeCategoryID = in.FeeCategoryID
	s.Amount = in.Amount.Round(2)
	s.IsMandatory = in.IsMandatory
	s.DueDate = in.DueDate
	s.InstallmentsAllowed = in.InstallmentsAllowed
	s.MaxInstallments = in.MaxInstallments
	s.LateFeeAmount = in.LateFeeAmount.Round(2)
	s.LateFeeDays = in.LateFeeDays
	if in.IsActive != nil {
		s.IsActive = *in.IsActive
	}
	s.Description = in.Description
}

// StructureCreateResult reports a new structure and its automatic back-fill
type StructureCreateResult struct {
	Structure          *models.FeeStructure
	AssignmentsCreated int64
}

// StructureDeleteResult reports how many assignments a forced delete cancelled
type StructureDeleteResult struct {
	CancelledAssignments int64 `json:"cancelled_assignments"`
}

// FeeStructureService manages the fee catalogue
type FeeStructureService struct {
	structures  repository.FeeStructureRepository
	categories  repository.FeeCategoryRepository
	assignments repository.AssignmentRepository
	directory   repository.DirectoryRepository
	engine      *AssignmentEngine
	tx          database.Transactor
	auditSvc    *AuditService
}

// NewFeeStructureService creates a new fee structure service
func NewFeeStructureService(
	structures repository.FeeStructureRepository,
	categories repository.FeeCategoryRepository,
	assignments repository.AssignmentRepository,
	directory repository.DirectoryRepository,
	engine *AssignmentEngine,
	tx database.Transactor,
	auditSvc *AuditService,
) *FeeStructureService {
	return &FeeStructureService{
		structures:  structures,
		categories:  categories,
		assignments: assignments,
		directory:   directory,
		engine:      engine,
		tx:          tx,
		auditSvc:    auditSvc,
	}
}

// checkReferences verifies the category and academic year exist
func (s *FeeStructureService) checkReferences(ctx context.Context, in *StructureInput) error {
	if _, err := s.categories.FindByID(ctx, in.FeeCategoryID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fieldError("fee_category_id", "does not exist")
		}
		return err
	}
	if _, err := s.directory.FindAcademicYear(ctx, in.AcademicYearID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fieldError("academic_year_id", "does not exist")
		}
		return err
	}
	return nil
}

// ensureSlotFree rejects a second live catalogue structure for the same year, scope and category
func (s *FeeStructureService) ensureSlotFree(ctx context.Context, in *StructureInput, excludeID uint) error {
	taken, err := s.structures.SlotTaken(ctx, repository.StructureSlot{
		AcademicYearID: in.AcademicYearID,
		Scope:          in.Scope(),
		FeeCategoryID:  in.FeeCategoryID,
	}, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("fee structure for this category, %s scope and academic year: %w", in.Scope(), ErrDuplicate)
	}
	return nil
}

// Create adds a catalogue structure. A global mandatory structure is
// back-filled to every active student of its year right away.
func (s *FeeStructureService) Create(ctx context.Context, in StructureInput, actorID uint) (*StructureCreateResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, &in); err != nil {
		return nil, err
	}
	if err := s.ensureSlotFree(ctx, &in, 0); err != nil {
		return nil, err
	}

	structure := &models.FeeStructure{IsActive: true, LateFeeAmount: decimal.Zero}
	in.apply(structure)
	if err := s.structures.Create(ctx, structure); err != nil {
		logger.Error("Failed to create fee structure",
			"academic_year_id", in.AcademicYearID,
			"fee_category_id", in.FeeCategoryID,
			"error", err,
		)
		return nil, err
	}

	result := &StructureCreateResult{Structure: structure}
	if structure.IsMandatory && structure.IsActive && structure.Scope().IsGlobal() {
		created, err := s.engine.BackfillStructure(ctx, structure.ID)
		if err != nil {
			// the structure stands; the back-fill can be re-run from its endpoint
			logger.Error("Automatic back-fill failed", "fee_structure_id", structure.ID, "error", err)
		}
		result.AssignmentsCreated = created
	}

	s.auditSvc.Log(ctx, actorID, models.AuditActionCreate, models.AuditEntityFeeStructure, structure.ID,
		fmt.Sprintf("Created %s fee structure (%s) amount %s, %d assignments created",
			mandatoryLabel(structure.IsMandatory), structure.Scope(), structure.Amount.StringFixed(2), result.AssignmentsCreated))

	if reloaded, err := s.structures.FindByID(ctx, structure.ID); err == nil {
		result.Structure = reloaded
	}
	return result, nil
}

// Update edits a catalogue structure. Existing assignments keep the amounts
// they were created with.
func (s *FeeStructureService) Update(ctx context.Context, id uint, in StructureInput, actorID uint) (*models.FeeStructure, error) {
	structure, err := s.structures.FindByID(ctx, id)
	if err != nil {
		return nil, notFound("fee structure", err)
	}
	if structure.IsDirect {
		return nil, fmt.Errorf("direct payment structures cannot be edited: %w", ErrInvalidState)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, &in); err != nil {
		return nil, err
	}
	if err := s.ensureSlotFree(ctx, &in, id); err != nil {
		return nil, err
	}

	in.apply(structure)
	structure.FeeCategory = nil
	structure.Grade = nil
	if err := s.structures.Update(ctx, structure); err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, actorID, models.AuditActionUpdate, models.AuditEntityFeeStructure, id,
		fmt.Sprintf("Updated fee structure amount %s", structure.Amount.StringFixed(2)))
	return s.FindByID(ctx, id)
}

func (s *FeeStructureService) FindByID(ctx context.Context, id uint) (*models.FeeStructure, error) {
	structure, err := s.structures.FindByID(ctx, id)
	if err != nil {
		return nil, notFound("fee structure", err)
	}
	return structure, nil
}

func (s *FeeStructureService) List(ctx context.Context, query *repository.StructureQuery) ([]models.FeeStructure, int64, error) {
	return s.structures.List(ctx, query)
}

// Delete removes a structure. With active assignments it is refused unless
// force is set, in which case those assignments are cancelled first.
func (s *FeeStructureService) Delete(ctx context.Context, id uint, force bool, actorID uint) (*StructureDeleteResult, error) {
	structure, err := s.structures.FindByID(ctx, id)
	if err != nil {
		return nil, notFound("fee structure", err)
	}

	result := &StructureDeleteResult{}
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		count, err := s.assignments.CountActiveByStructure(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 && !force {
			return &StructureInUseError{AssignmentCount: count}
		}
		if count > 0 {
			cancelled, err := s.assignments.CancelByStructure(ctx, id)
			if err != nil {
				return err
			}
			result.CancelledAssignments = cancelled
		}
		return s.structures.SoftDelete(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, actorID, models.AuditActionDelete, models.AuditEntityFeeStructure, id,
		fmt.Sprintf("Deleted fee structure %d (category %d, %s), cancelled %d assignments",
			id, structure.FeeCategoryID, structure.Scope(), result.CancelledAssignments))
	return result, nil
}

// Backfill re-runs the retroactive assignment of a mandatory structure
func (s *FeeStructureService) Backfill(ctx context.Context, id, actorID uint) (int64, error) {
	created, err := s.engine.BackfillStructure(ctx, id)
	if err != nil {
		return 0, err
	}
	s.auditSvc.Log(ctx, actorID, models.AuditActionBackfill, models.AuditEntityFeeStructure, id,
		fmt.Sprintf("Back-filled %d assignments", created))
	return created, nil
}

func mandatoryLabel(mandatory bool) string {
	if mandatory {
		return "mandatory"
	}
	return "optional"
}
