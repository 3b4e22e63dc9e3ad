package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/schoolfees-api/internal/database"
	"github.com/sjperalta/schoolfees-api/internal/metrics"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/internal/repository"
	"github.com/sjperalta/schoolfees-api/internal/statemachine"
	"github.com/sjperalta/schoolfees-api/pkg/logger"
	"gorm.io/gorm"
)

// AssignResult reports what an assignment run did
type AssignResult struct {
	AcademicYearID uint                          `json:"academic_year_id"`
	Created        int                           `json:"created"`
	Skipped        int                           `json:"skipped"`
	Assignments    []models.StudentFeeAssignment `json:"assignments"`
}

// OptionalFilter narrows the optional fee listing. GlobalOnly wins over
// IncludeGlobal; IncludeGlobal=false keeps grade-specific structures only.
type OptionalFilter struct {
	GlobalOnly    bool
	IncludeGlobal bool
}

// DefaultOptionalFilter lists both global and grade-specific structures
func DefaultOptionalFilter() OptionalFilter {
	return OptionalFilter{IncludeGlobal: true}
}

// FeeTotals sums a set of assignments
type FeeTotals struct {
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
	LateFeeDue    decimal.Decimal `json:"late_fee_due"`
	OverdueCount  int             `json:"overdue_count"`
}

// StudentFeeOverview is a student's active obligations with totals
type StudentFeeOverview struct {
	Student      *models.Student
	AcademicYear *models.AcademicYear
	Assignments  []models.StudentFeeAssignment
	Totals       FeeTotals
}

// AssignmentEngine decides which fee structures apply to a student and keeps
// one active assignment per applicable structure.
type AssignmentEngine struct {
	structures  repository.FeeStructureRepository
	assignments repository.AssignmentRepository
	directory   repository.DirectoryRepository
	tx          database.Transactor
	auditSvc    *AuditService
	now         func() time.Time
}

// NewAssignmentEngine creates a new assignment engine
func NewAssignmentEngine(
	structures repository.FeeStructureRepository,
	assignments repository.AssignmentRepository,
	directory repository.DirectoryRepository,
	tx database.Transactor,
	auditSvc *AuditService,
) *AssignmentEngine {
	return &AssignmentEngine{
		structures:  structures,
		assignments: assignments,
		directory:   directory,
		tx:          tx,
		auditSvc:    auditSvc,
		now:         time.Now,
	}
}

// FindStudent loads a student or returns ErrNotFound
func (e *AssignmentEngine) FindStudent(ctx context.Context, studentID uint) (*models.Student, error) {
	student, err := e.directory.FindStudent(ctx, studentID)
	if err != nil {
		return nil, notFound("student", err)
	}
	return student, nil
}

// EnsureParentAccess allows a parent to act only on their own children
func (e *AssignmentEngine) EnsureParentAccess(ctx context.Context, studentID, parentID uint) error {
	student, err := e.FindStudent(ctx, studentID)
	if err != nil {
		return err
	}
	if parentID == 0 || student.ParentID == nil || *student.ParentID != parentID {
		return ErrForbidden
	}
	return nil
}

// ResolveAcademicYear picks the student's year, else the default year, else
// the current one. Having none is an error, never a silent skip.
func (e *AssignmentEngine) ResolveAcademicYear(ctx context.Context, student *models.Student) (*models.AcademicYear, error) {
	if student.AcademicYearID != nil {
		year, err := e.directory.FindAcademicYear(ctx, *student.AcademicYearID)
		if err == nil {
			return year, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		logger.Warn("Student references a missing academic year, falling back",
			"student_id", student.ID,
			"academic_year_id", *student.AcademicYearID,
		)
	}

	for _, lookup := range []func(context.Context) (*models.AcademicYear, error){
		e.directory.DefaultAcademicYear,
		e.directory.CurrentAcademicYear,
	} {
		year, err := lookup(ctx)
		if err == nil {
			return year, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	return nil, ErrNoAcademicYear
}

// ApplicableStructures lists the active catalogue structures reaching the student:
// grade-specific ones for the student's grade plus global ones, in the resolved year.
func (e *AssignmentEngine) ApplicableStructures(ctx context.Context, studentID uint) ([]models.FeeStructure, *models.AcademicYear, error) {
	student, err := e.FindStudent(ctx, studentID)
	if err != nil {
		return nil, nil, err
	}
	year, err := e.ResolveAcademicYear(ctx, student)
	if err != nil {
		return nil, nil, err
	}
	structures, err := e.structures.FindApplicable(ctx, year.ID, student.GradeID, nil)
	if err != nil {
		return nil, nil, err
	}
	return structures, year, nil
}

// AssignForStudent creates the missing assignments for every applicable
// mandatory structure. Running it again is a no-op.
func (e *AssignmentEngine) AssignForStudent(ctx context.Context, studentID uint) (*AssignResult, error) {
	student, err := e.FindStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !student.IsActive {
		return nil, fieldError("student_id", "student is not active")
	}

	year, err := e.ResolveAcademicYear(ctx, student)
	if err != nil {
		return nil, err
	}

	mandatory := true
	structures, err := e.structures.FindApplicable(ctx, year.ID, student.GradeID, &mandatory)
	if err != nil {
		return nil, err
	}

	result := &AssignResult{AcademicYearID: year.ID, Assignments: []models.StudentFeeAssignment{}}

	err = e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		held, err := e.heldStructures(ctx, student.ID)
		if err != nil {
			return err
		}

		var pending []*models.StudentFeeAssignment
		for i := range structures {
			s := &structures[i]
			if held[s.ID] {
				result.Skipped++
				continue
			}
			pending = append(pending, models.NewAssignment(student.ID, s, year.Name))
		}

		inserted, err := e.assignments.CreateBatch(ctx, pending)
		if err != nil {
			return err
		}
		result.Created = int(inserted)
		result.Skipped += len(pending) - int(inserted)
		if int(inserted) == len(pending) {
			for _, a := range pending {
				result.Assignments = append(result.Assignments, *a)
			}
			return nil
		}

		// a concurrent run won some rows; report what this run actually holds
		wanted := make(map[uint]bool, len(pending))
		for _, a := range pending {
			wanted[a.FeeStructureID] = true
		}
		current, err := e.assignments.ListByStudent(ctx, student.ID, false)
		if err != nil {
			return err
		}
		for _, a := range current {
			if wanted[a.FeeStructureID] {
				result.Assignments = append(result.Assignments, a)
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to assign fees", "student_id", studentID, "error", err)
		return nil, err
	}

	metrics.ObserveAssignments("engine", int64(result.Created))
	logger.Info("Assigned mandatory fees",
		"student_id", studentID,
		"academic_year_id", year.ID,
		"created", result.Created,
		"skipped", result.Skipped,
	)
	return result, nil
}

// heldStructures returns the structures the student already has an active assignment for
func (e *AssignmentEngine) heldStructures(ctx context.Context, studentID uint) (map[uint]bool, error) {
	current, err := e.assignments.ListByStudent(ctx, studentID, false)
	if err != nil {
		return nil, err
	}
	held := make(map[uint]bool, len(current))
	for _, a := range current {
		held[a.FeeStructureID] = true
	}
	return held, nil
}

// BackfillStructure assigns a mandatory structure to every active student of
// its academic year (and grade, when grade-scoped) who does not hold it yet.
func (e *AssignmentEngine) BackfillStructure(ctx context.Context, structureID uint) (int64, error) {
	structure, err := e.structures.FindByID(ctx, structureID)
	if err != nil {
		return 0, notFound("fee structure", err)
	}
	if !structure.IsMandatory || !structure.IsActive || structure.IsDirect {
		return 0, fieldError("fee_structure_id", "only active mandatory catalogue structures can be back-filled")
	}

	year, err := e.directory.FindAcademicYear(ctx, structure.AcademicYearID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNoAcademicYear
		}
		return 0, err
	}

	var created int64
	err = e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		studentIDs, err := e.directory.ActiveStudentIDs(ctx, year.ID, structure.Scope())
		if err != nil {
			return err
		}
		holders, err := e.assignments.StudentsWithActiveAssignment(ctx, structure.ID)
		if err != nil {
			return err
		}
		held := make(map[uint]bool, len(holders))
		for _, id := range holders {
			held[id] = true
		}

		batch := make([]*models.StudentFeeAssignment, 0, len(studentIDs))
		for _, id := range studentIDs {
			if !held[id] {
				batch = append(batch, models.NewAssignment(id, structure, year.Name))
			}
		}

		created, err = e.assignments.CreateBatch(ctx, batch)
		return err
	})
	if err != nil {
		logger.Error("Fee structure back-fill failed", "fee_structure_id", structureID, "error", err)
		return 0, err
	}

	metrics.ObserveAssignments("backfill", created)
	logger.Info("Back-filled fee structure",
		"fee_structure_id", structureID,
		"scope", structure.Scope().String(),
		"academic_year_id", year.ID,
		"created", created,
	)
	return created, nil
}

// OptionalFees lists applicable optional structures the student has not taken yet
func (e *AssignmentEngine) OptionalFees(ctx context.Context, studentID uint, filter OptionalFilter) ([]models.FeeStructure, error) {
	student, err := e.FindStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	year, err := e.ResolveAcademicYear(ctx, student)
	if err != nil {
		return nil, err
	}

	optional := false
	structures, err := e.structures.FindApplicable(ctx, year.ID, student.GradeID, &optional)
	if err != nil {
		return nil, err
	}
	held, err := e.heldStructures(ctx, student.ID)
	if err != nil {
		return nil, err
	}

	out := make([]models.FeeStructure, 0, len(structures))
	for _, s := range structures {
		if held[s.ID] {
			continue
		}
		global := s.Scope().IsGlobal()
		switch {
		case filter.GlobalOnly && !global:
			continue
		case !filter.GlobalOnly && !filter.IncludeGlobal && global:
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// MaterializeOptional returns the student's active assignment for an optional
// structure, creating it first when missing. The structure must be optional and
// applicable to the student in yearID.
func (e *AssignmentEngine) MaterializeOptional(ctx context.Context, student *models.Student, year *models.AcademicYear, structureID uint) (*models.StudentFeeAssignment, bool, error) {
	structure, err := e.structures.FindByID(ctx, structureID)
	if err != nil {
		return nil, false, notFound(fmt.Sprintf("fee structure %d", structureID), err)
	}
	if structure.IsMandatory {
		return nil, false, fieldError("optional_fees", fmt.Sprintf("fee structure %d is mandatory", structureID))
	}
	if !structure.AppliesTo(student, year.ID) {
		return nil, false, fieldError("optional_fees", fmt.Sprintf("fee structure %d does not apply to this student", structureID))
	}

	existing, err := e.assignments.FindActive(ctx, student.ID, structure.ID)
	if err == nil {
		existing.FeeStructure = structure
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	assignment := models.NewAssignment(student.ID, structure, year.Name)
	if err := e.assignments.Create(ctx, assignment); err != nil {
		return nil, false, err
	}
	assignment.FeeStructure = structure
	return assignment, true, nil
}

// SelectOptionalFees materializes the chosen optional structures for a student
func (e *AssignmentEngine) SelectOptionalFees(ctx context.Context, studentID uint, structureIDs []uint) (*AssignResult, error) {
	if len(structureIDs) == 0 {
		return nil, fieldError("fee_structure_ids", "at least one fee structure is required")
	}

	student, err := e.FindStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	year, err := e.ResolveAcademicYear(ctx, student)
	if err != nil {
		return nil, err
	}

	result := &AssignResult{AcademicYearID: year.ID, Assignments: []models.StudentFeeAssignment{}}
	err = e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		for _, id := range uniqueIDs(structureIDs) {
			assignment, created, err := e.MaterializeOptional(ctx, student, year, id)
			if err != nil {
				return err
			}
			if created {
				result.Created++
			} else {
				result.Skipped++
			}
			result.Assignments = append(result.Assignments, *assignment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveAssignments("optional", int64(result.Created))
	return result, nil
}

// StudentFees returns the student's active assignments with totals
func (e *AssignmentEngine) StudentFees(ctx context.Context, studentID uint) (*StudentFeeOverview, error) {
	student, err := e.FindStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	assignments, err := e.assignments.ListByStudent(ctx, studentID, false)
	if err != nil {
		return nil, err
	}

	overview := &StudentFeeOverview{
		Student:     student,
		Assignments: assignments,
		Totals:      sumAssignments(assignments, e.now()),
	}
	if year, err := e.ResolveAcademicYear(ctx, student); err == nil {
		overview.AcademicYear = year
	}
	return overview, nil
}

func sumAssignments(assignments []models.StudentFeeAssignment, now time.Time) FeeTotals {
	totals := FeeTotals{
		TotalAmount:   decimal.Zero,
		PaidAmount:    decimal.Zero,
		PendingAmount: decimal.Zero,
		LateFeeDue:    decimal.Zero,
	}
	for i := range assignments {
		a := &assignments[i]
		if a.Status == models.AssignmentStatusCancelled {
			continue
		}
		totals.TotalAmount = totals.TotalAmount.Add(a.TotalAmount)
		totals.PaidAmount = totals.PaidAmount.Add(a.PaidAmount)
		totals.PendingAmount = totals.PendingAmount.Add(a.PendingAmount)
		if a.Status == models.AssignmentStatusOverdue {
			totals.OverdueCount++
		}
		if a.FeeStructure != nil && a.PendingAmount.IsPositive() {
			totals.LateFeeDue = totals.LateFeeDue.Add(a.FeeStructure.LateFeeFor(now))
		}
	}
	return totals
}

// Cancel withdraws an unpaid or partially paid assignment
func (e *AssignmentEngine) Cancel(ctx context.Context, assignmentID, actorID uint) (*models.StudentFeeAssignment, error) {
	assignment, err := e.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, notFound("fee assignment", err)
	}

	if err := statemachine.NewAssignmentFSM(assignment).Cancel(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if err := e.assignments.UpdateStatus(ctx, assignment); err != nil {
		return nil, err
	}

	e.auditSvc.Log(ctx, actorID, models.AuditActionCancel, models.AuditEntityAssignment, assignment.ID,
		fmt.Sprintf("Cancelled assignment of student %d (paid %s of %s)",
			assignment.StudentID, assignment.PaidAmount.StringFixed(2), assignment.TotalAmount.StringFixed(2)))
	return assignment, nil
}

// MarkOverdue flags open assignments whose due date has passed
func (e *AssignmentEngine) MarkOverdue(ctx context.Context) (int64, error) {
	n, err := e.assignments.MarkOverdue(ctx, e.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("Marked assignments overdue", "count", n)
	}
	return n, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
