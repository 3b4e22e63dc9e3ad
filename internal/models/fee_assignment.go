package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrExceedsPending is returned when a payment would push paid above total
var ErrExceedsPending = errors.New("amount exceeds pending balance")

// StudentFeeAssignment is one student's obligation under one fee structure.
// PaidAmount + PendingAmount always equals TotalAmount.
type StudentFeeAssignment struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	StudentID      uint            `gorm:"not null;index" json:"student_id"`
	FeeStructureID uint            `gorm:"not null;index" json:"fee_structure_id"`
	TotalAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	PaidAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"paid_amount"`
	PendingAmount  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"pending_amount"`
	DueDate        *time.Time      `gorm:"type:date;index" json:"due_date"`
	Status         string          `gorm:"size:20;not null;index" json:"status"`
	Period         string          `gorm:"size:100" json:"period"`
	IsActive       bool            `gorm:"not null;index" json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// Associations
	FeeStructure *FeeStructure `gorm:"foreignKey:FeeStructureID" json:"fee_structure,omitempty"`
	Student      *Student      `gorm:"foreignKey:StudentID" json:"student,omitempty"`
}

// TableName specifies the table name for StudentFeeAssignment
func (StudentFeeAssignment) TableName() string {
	return "student_fee_assignments"
}

// Assignment status constants
const (
	AssignmentStatusPending   = "pending"
	AssignmentStatusPartial   = "partial"
	AssignmentStatusPaid      = "paid"
	AssignmentStatusOverdue   = "overdue"
	AssignmentStatusCancelled = "cancelled"
)

// CollectibleStatuses lists the statuses that accept payments
var CollectibleStatuses = []string{
	AssignmentStatusPending,
	AssignmentStatusPartial,
	AssignmentStatusOverdue,
}

// NewAssignment materializes a structure for a student with nothing paid
func NewAssignment(studentID uint, structure *FeeStructure, period string) *StudentFeeAssignment {
	return &StudentFeeAssignment{
		StudentID:      studentID,
		FeeStructureID: structure.ID,
		TotalAmount:    structure.Amount,
		PaidAmount:     decimal.Zero,
		PendingAmount:  structure.Amount,
		DueDate:        structure.DueDate,
		Status:         AssignmentStatusPending,
		Period:         period,
		IsActive:       true,
	}
}

// IsBalanced checks paid + pending == total
func (a *StudentFeeAssignment) IsBalanced() bool {
	return a.PaidAmount.Add(a.PendingAmount).Equal(a.TotalAmount)
}

// IsOpen reports whether the assignment still accepts payments
func (a *StudentFeeAssignment) IsOpen() bool {
	if !a.IsActive || !a.PendingAmount.IsPositive() {
		return false
	}
	for _, s := range CollectibleStatuses {
		if a.Status == s {
			return true
		}
	}
	return false
}

// ApplyPayment adds amount to the paid side and derives the new status.
// It mirrors the conditional UPDATE the repository issues.
func (a *StudentFeeAssignment) ApplyPayment(amount decimal.Decimal) error {
	paid := a.PaidAmount.Add(amount)
	if paid.GreaterThan(a.TotalAmount) {
		return ErrExceedsPending
	}
	a.PaidAmount = paid
	a.PendingAmount = a.TotalAmount.Sub(paid)
	a.Status = StatusAfterPayment(a.PaidAmount, a.PendingAmount, a.Status)
	return nil
}

// StatusAfterPayment derives the status once amounts have changed: paid when
// nothing is pending, partial when something was paid, otherwise unchanged.
func StatusAfterPayment(paid, pending decimal.Decimal, current string) string {
	switch {
	case !pending.IsPositive():
		return AssignmentStatusPaid
	case paid.IsPositive():
		return AssignmentStatusPartial
	default:
		return current
	}
}

// IsPastDue reports whether the due date has passed with money still owed
func (a *StudentFeeAssignment) IsPastDue(now time.Time) bool {
	if a.DueDate == nil || !a.PendingAmount.IsPositive() {
		return false
	}
	return a.DueDate.Before(truncateDay(now))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// AssignmentResponse is the JSON response format for StudentFeeAssignment
type AssignmentResponse struct {
	ID             uint            `json:"id"`
	StudentID      uint            `json:"student_id"`
	FeeStructureID uint            `json:"fee_structure_id"`
	CategoryName   string          `json:"category_name,omitempty"`
	IsMandatory    bool            `json:"is_mandatory"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	PendingAmount  decimal.Decimal `json:"pending_amount"`
	LateFeeDue     decimal.Decimal `json:"late_fee_due"`
	DueDate        *time.Time      `json:"due_date"`
	Status         string          `json:"status"`
	Period         string          `json:"period"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ToResponse converts the assignment, computing late fees against now
func (a *StudentFeeAssignment) ToResponse(now time.Time) AssignmentResponse {
	resp := AssignmentResponse{
		ID:             a.ID,
		StudentID:      a.StudentID,
		FeeStructureID: a.FeeStructureID,
		TotalAmount:    a.TotalAmount,
		PaidAmount:     a.PaidAmount,
		PendingAmount:  a.PendingAmount,
		LateFeeDue:     decimal.Zero,
		DueDate:        a.DueDate,
		Status:         a.Status,
		Period:         a.Period,
		IsActive:       a.IsActive,
		CreatedAt:      a.CreatedAt,
	}
	if a.FeeStructure != nil {
		resp.IsMandatory = a.FeeStructure.IsMandatory
		if a.FeeStructure.FeeCategory != nil {
			resp.CategoryName = a.FeeStructure.FeeCategory.Name
		}
		if a.PendingAmount.IsPositive() && a.Status != AssignmentStatusCancelled {
			resp.LateFeeDue = a.FeeStructure.LateFeeFor(now)
		}
	}
	return resp
}
