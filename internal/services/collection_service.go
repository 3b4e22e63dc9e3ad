package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sjperalta/schoolfees-api/internal/config"
	"github.com/sjperalta/schoolfees-api/internal/database"
	"github.com/sjperalta/schoolfees-api/internal/jobs"
	"github.com/sjperalta/schoolfees-api/internal/metrics"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/internal/repository"
	"github.com/sjperalta/schoolfees-api/internal/statemachine"
	"github.com/sjperalta/schoolfees-api/pkg/logger"
	"gorm.io/gorm"
)

// Collection modes
const (
	CollectModeAssignment = "assignment"
	CollectModeDirect     = "direct"
	CollectModeOptional   = "optional"
)

// CollectInput describes one payment. Exactly one of StudentFeeAssignmentID,
// IsDirectPayment (with FeeCategoryID) or OptionalFees selects the target.
type CollectInput struct {
	StudentID              uint
	Amount                 decimal.Decimal
	PaymentMethod          string
	StudentFeeAssignmentID *uint
	IsDirectPayment        bool
	FeeCategoryID          *uint
	OptionalFees           []uint
	ReferenceNumber        *string
	Remarks                *string
	CollectionDate         *time.Time

	// StaffID is the collecting staff member whose wallet is credited
	StaffID uint
	// ActorID is the authenticated user, for the audit trail
	ActorID uint
}

// mode validates the target selection and returns which path applies
func (in *CollectInput) mode() (string, error) {
	verr := &ValidationError{}
	if in.StudentID == 0 {
		verr.add("student_id", "is required")
	}
	if !in.Amount.IsPositive() {
		verr.add("amount", "must be greater than zero")
	} else if !in.Amount.Equal(in.Amount.Round(2)) {
		verr.add("amount", "must have at most two decimal places")
	}
	in.PaymentMethod = strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	if !models.IsValidPaymentMethod(in.PaymentMethod) {
		verr.add("payment_method", fmt.Sprintf("must be one of %s", strings.Join(models.PaymentMethods, ", ")))
	}
	if in.StaffID == 0 {
		verr.add("collected_by", "a staff account is required to collect fees")
	}

	selected := 0
	mode := ""
	if in.StudentFeeAssignmentID != nil && *in.StudentFeeAssignmentID > 0 {
		selected++
		mode = CollectModeAssignment
	}
	if in.IsDirectPayment {
		selected++
		mode = CollectModeDirect
		if in.FeeCategoryID == nil || *in.FeeCategoryID == 0 {
			verr.add("fee_category_id", "is required for direct payments")
		}
	}
	if len(in.OptionalFees) > 0 {
		selected++
		mode = CollectModeOptional
	}
	switch {
	case selected == 0:
		verr.add("student_fee_assignment_id", "one of student_fee_assignment_id, is_direct_payment or optional_fees is required")
	case selected > 1:
		verr.add("student_fee_assignment_id", "only one of student_fee_assignment_id, is_direct_payment or optional_fees may be given")
	}

	if err := verr.orNil(); err != nil {
		return "", err
	}
	return mode, nil
}

// CollectResult lists the collections a payment produced
type CollectResult struct {
	Mode        string                        `json:"mode"`
	TotalAmount decimal.Decimal               `json:"total_amount"`
	Collections []models.FeeCollection        `json:"collections"`
	Assignments []models.StudentFeeAssignment `json:"assignments"`
}

// CollectionService records payments against assignments
type CollectionService struct {
	collections     repository.CollectionRepository
	assignments     repository.AssignmentRepository
	structures      repository.FeeStructureRepository
	categories      repository.FeeCategoryRepository
	directory       repository.DirectoryRepository
	engine          *AssignmentEngine
	walletSvc       *WalletService
	notificationSvc *NotificationService
	auditSvc        *AuditService
	worker          *jobs.Worker
	tx              database.Transactor
	cfg             *config.Config
	now             func() time.Time
	nextReceipt     func() string
}

// NewCollectionService creates a new collection service
func NewCollectionService(
	collections repository.CollectionRepository,
	assignments repository.AssignmentRepository,
	structures repository.FeeStructureRepository,
	categories repository.FeeCategoryRepository,
	directory repository.DirectoryRepository,
	engine *AssignmentEngine,
	walletSvc *WalletService,
	notificationSvc *NotificationService,
	auditSvc *AuditService,
	worker *jobs.Worker,
	tx database.Transactor,
	cfg *config.Config,
) *CollectionService {
	s := &CollectionService{
		collections:     collections,
		assignments:     assignments,
		structures:      structures,
		categories:      categories,
		directory:       directory,
		engine:          engine,
		walletSvc:       walletSvc,
		notificationSvc: notificationSvc,
		auditSvc:        auditSvc,
		worker:          worker,
		tx:              tx,
		cfg:             cfg,
		now:             time.Now,
	}
	s.nextReceipt = s.generateReceiptNumber
	return s
}

// generateReceiptNumber returns PREFIX-YYYYMMDD-XXXXXXXX with a random suffix
func (s *CollectionService) generateReceiptNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("%s-%s-%s", s.cfg.ReceiptPrefix, s.now().Format("20060102"), suffix)
}

// Collect records a payment. Every write (assignment update, collection row,
// wallet posting) happens in one transaction.
func (s *CollectionService) Collect(ctx context.Context, in CollectInput) (*CollectResult, error) {
	mode, err := in.mode()
	if err != nil {
		return nil, err
	}

	student, err := s.engine.FindStudent(ctx, in.StudentID)
	if err != nil {
		return nil, err
	}
	if !student.IsActive {
		return nil, fieldError("student_id", "student is not active")
	}
	staff, err := s.directory.FindStaff(ctx, in.StaffID)
	if err != nil {
		return nil, notFound("staff", err)
	}
	if !staff.IsActive {
		return nil, fieldError("collected_by", "staff member is not active")
	}

	result := &CollectResult{Mode: mode, TotalAmount: decimal.Zero}
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		switch mode {
		case CollectModeAssignment:
			return s.collectAssignment(ctx, student, &in, result)
		case CollectModeDirect:
			return s.collectDirect(ctx, student, &in, result)
		default:
			return s.collectOptional(ctx, student, &in, result)
		}
	})
	if err != nil {
		if errors.Is(err, ErrOverpayment) {
			metrics.ObserveRejection("overpayment")
		}
		var verr *ValidationError
		if !errors.As(err, &verr) && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrOverpayment) && !errors.Is(err, ErrInvalidState) {
			logger.Error("Fee collection failed",
				"student_id", in.StudentID,
				"amount", in.Amount.String(),
				"mode", mode,
				"staff_id", in.StaffID,
				"error", err,
			)
		}
		return nil, err
	}

	for _, c := range result.Collections {
		metrics.ObserveCollection(c.PaymentMethod, c.Amount)
	}
	logger.Info("Fee collected",
		"student_id", student.ID,
		"mode", mode,
		"amount", result.TotalAmount.String(),
		"collections", len(result.Collections),
		"staff_id", in.StaffID,
	)
	s.notifyParent(student, result)
	return result, nil
}

// collectAssignment pays an existing assignment
func (s *CollectionService) collectAssignment(ctx context.Context, student *models.Student, in *CollectInput, result *CollectResult) error {
	assignment, err := s.assignments.FindByID(ctx, *in.StudentFeeAssignmentID)
	if err != nil {
		return notFound("fee assignment", err)
	}
	if assignment.StudentID != student.ID {
		return fieldError("student_fee_assignment_id", "assignment does not belong to this student")
	}
	return s.pay(ctx, student, assignment, in.Amount, in, result)
}

// collectDirect pays an ad-hoc amount under a category. An open assignment in
// the same category and year always takes the payment, so an amount above its
// pending balance is an overpayment. Only when none exists is a one-off direct
// structure and assignment created.
func (s *CollectionService) collectDirect(ctx context.Context, student *models.Student, in *CollectInput, result *CollectResult) error {
	category, err := s.categories.FindByID(ctx, *in.FeeCategoryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fieldError("fee_category_id", "does not exist")
		}
		return err
	}
	year, err := s.engine.ResolveAcademicYear(ctx, student)
	if err != nil {
		return err
	}

	open, err := s.assignments.FindOpenInCategory(ctx, student.ID, year.ID, category.ID)
	if err == nil {
		return s.pay(ctx, student, open, in.Amount, in, result)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	description := fmt.Sprintf("Direct payment: %s", category.Name)
	gradeID := student.GradeID
	structure := &models.FeeStructure{
		AcademicYearID:  year.ID,
		GradeID:         &gradeID,
		FeeCategoryID:   category.ID,
		Amount:          in.Amount,
		IsMandatory:     false,
		MaxInstallments: 1,
		LateFeeAmount:   decimal.Zero,
		IsActive:        true,
		IsDirect:        true,
		Description:     &description,
	}
	if err := s.structures.Create(ctx, structure); err != nil {
		return err
	}
	assignment := models.NewAssignment(student.ID, structure, models.DirectPaymentPeriod)
	if err := s.assignments.Create(ctx, assignment); err != nil {
		return err
	}
	structure.FeeCategory = category
	assignment.FeeStructure = structure
	metrics.ObserveAssignments("direct", 1)

	return s.pay(ctx, student, assignment, in.Amount, in, result)
}

// collectOptional assigns each selected optional fee when needed and pays it
// in full. The amount must match the combined pending balance exactly.
func (s *CollectionService) collectOptional(ctx context.Context, student *models.Student, in *CollectInput, result *CollectResult) error {
	year, err := s.engine.ResolveAcademicYear(ctx, student)
	if err != nil {
		return err
	}

	var targets []*models.StudentFeeAssignment
	due := decimal.Zero
	for _, id := range uniqueIDs(in.OptionalFees) {
		assignment, _, err := s.engine.MaterializeOptional(ctx, student, year, id)
		if err != nil {
			return err
		}
		if !assignment.IsOpen() {
			return fieldError("optional_fees", fmt.Sprintf("fee structure %d is already paid", id))
		}
		targets = append(targets, assignment)
		due = due.Add(assignment.PendingAmount)
	}

	if !in.Amount.Equal(due) {
		return fieldError("amount", fmt.Sprintf("must equal the pending total of the selected optional fees (%s)", due.StringFixed(2)))
	}

	for _, assignment := range targets {
		if err := s.pay(ctx, student, assignment, assignment.PendingAmount, in, result); err != nil {
			return err
		}
	}
	return nil
}

// pay applies amount to one assignment, writes the collection under a fresh
// receipt number and credits the collector's wallet.
func (s *CollectionService) pay(ctx context.Context, student *models.Student, assignment *models.StudentFeeAssignment, amount decimal.Decimal, in *CollectInput, result *CollectResult) error {
	if amount.GreaterThan(assignment.PendingAmount) {
		return fmt.Errorf("%w: pending %s, received %s",
			ErrOverpayment, assignment.PendingAmount.StringFixed(2), amount.StringFixed(2))
	}
	if !statemachine.NewAssignmentFSM(assignment).CanCollect() {
		return fmt.Errorf("%w: assignment %d is %s", ErrInvalidState, assignment.ID, assignment.Status)
	}

	// guarded update: loses cleanly to a concurrent payment that got there first
	if err := s.assignments.ApplyPayment(ctx, assignment.ID, amount); err != nil {
		if errors.Is(err, repository.ErrNoRowsAffected) {
			return fmt.Errorf("%w: assignment %d no longer has %s pending", ErrOverpayment, assignment.ID, amount.StringFixed(2))
		}
		return err
	}
	if err := assignment.ApplyPayment(amount); err != nil {
		return fmt.Errorf("assignment %d out of sync after payment of %s: %w", assignment.ID, amount.StringFixed(2), err)
	}

	collectedAt := s.now()
	if in.CollectionDate != nil {
		collectedAt = *in.CollectionDate
	}
	assignmentID := assignment.ID
	collection := &models.FeeCollection{
		StudentID:              student.ID,
		StudentFeeAssignmentID: &assignmentID,
		Amount:                 amount,
		PaymentMethod:          in.PaymentMethod,
		CollectedByStaffID:     in.StaffID,
		CollectionDate:         collectedAt,
		ReferenceNumber:        in.ReferenceNumber,
		Remarks:                in.Remarks,
	}
	if err := s.collections.CreateWithReceipt(ctx, collection, s.nextReceipt, s.cfg.ReceiptMaxAttempts); err != nil {
		return err
	}

	description := fmt.Sprintf("Fee collection %s from %s", collection.ReceiptNumber, student.FullName())
	if _, err := s.walletSvc.PostCollection(ctx, in.StaffID, amount, collection.ID, description); err != nil {
		return err
	}

	collection.Assignment = assignment
	collection.Student = student
	result.Collections = append(result.Collections, *collection)
	result.Assignments = append(result.Assignments, *assignment)
	result.TotalAmount = result.TotalAmount.Add(amount)
	return nil
}

// notifyParent tells the student's parent accounts about the payment
func (s *CollectionService) notifyParent(student *models.Student, result *CollectResult) {
	if s.worker == nil || s.notificationSvc == nil || student.ParentID == nil {
		return
	}
	parentID := *student.ParentID
	receipts := make([]string, 0, len(result.Collections))
	for _, c := range result.Collections {
		receipts = append(receipts, c.ReceiptNumber)
	}
	message := fmt.Sprintf("A payment of %s %s was received for %s (receipt %s).",
		result.TotalAmount.StringFixed(2), s.cfg.Currency, student.FullName(), strings.Join(receipts, ", "))

	s.worker.EnqueueAsync("notify_parent_collection", func(ctx context.Context) error {
		return s.notificationSvc.NotifyParent(ctx, parentID, "Fee payment received", message, models.NotificationTypeFeeCollected)
	})
}

// Verify marks a collection as checked by an admin. Amounts never change and
// verifying twice returns the row untouched.
func (s *CollectionService) Verify(ctx context.Context, id, adminID uint) (*models.FeeCollection, error) {
	collection, err := s.collections.FindByID(ctx, id)
	if err != nil {
		return nil, notFound("fee collection", err)
	}
	if collection.Verified {
		return collection, nil
	}

	changed, err := s.collections.MarkVerified(ctx, id, adminID, s.now())
	if err != nil {
		return nil, err
	}
	if changed {
		s.auditSvc.Log(ctx, adminID, models.AuditActionVerify, models.AuditEntityFeeCollection, id,
			fmt.Sprintf("Verified collection %s of %s", collection.ReceiptNumber, collection.Amount.StringFixed(2)))
	}
	return s.FindByID(ctx, id)
}

func (s *CollectionService) FindByID(ctx context.Context, id uint) (*models.FeeCollection, error) {
	collection, err := s.collections.FindByID(ctx, id)
	if err != nil {
		return nil, notFound("fee collection", err)
	}
	return collection, nil
}

func (s *CollectionService) List(ctx context.Context, query *repository.CollectionQuery) ([]models.FeeCollection, int64, error) {
	return s.collections.List(ctx, query)
}

func (s *CollectionService) Stats(ctx context.Context) (*repository.CollectionStats, error) {
	return s.collections.Stats(ctx, s.now())
}
