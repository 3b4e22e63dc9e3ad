package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DirectPaymentPeriod labels structures synthesized for ad-hoc payments
const DirectPaymentPeriod = "Direct Payment"

// FeeStructure is a priced obligation template for an academic year,
// optionally restricted to one grade.
type FeeStructure struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`
	AcademicYearID      uint            `gorm:"not null;index" json:"academic_year_id"`
	GradeID             *uint           `gorm:"index" json:"grade_id"`
	DivisionID          *uint           `json:"division_id"`
	FeeCategoryID       uint            `gorm:"not null;index" json:"fee_category_id"`
	Amount              decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	IsMandatory         bool            `gorm:"not null" json:"is_mandatory"`
	DueDate             *time.Time      `gorm:"type:date" json:"due_date"`
	InstallmentsAllowed bool            `gorm:"not null" json:"installments_allowed"`
	MaxInstallments     int             `gorm:"not null" json:"max_installments"`
	LateFeeAmount       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"late_fee_amount"`
	LateFeeDays         int             `gorm:"not null" json:"late_fee_days"`
	IsActive            bool            `gorm:"not null;index" json:"is_active"`
	IsDirect            bool            `gorm:"not null" json:"is_direct"`
	Description         *string         `gorm:"type:text" json:"description"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	DeletedAt           gorm.DeletedAt  `gorm:"index" json:"-"`

	// Associations
	FeeCategory *FeeCategory `gorm:"foreignKey:FeeCategoryID" json:"fee_category,omitempty"`
	Grade       *Grade       `gorm:"foreignKey:GradeID" json:"grade,omitempty"`
}

// TableName specifies the table name for FeeStructure
func (FeeStructure) TableName() string {
	return "fee_structures"
}

// Scope returns the grade reach of the structure
func (f *FeeStructure) Scope() FeeScope {
	return ScopeFromColumn(f.GradeID)
}

// SetScope stores the scope in the grade_id column
func (f *FeeStructure) SetScope(scope FeeScope) {
	f.GradeID = scope.Column()
}

// AppliesTo reports whether the structure is part of a student's catalogue for yearID
func (f *FeeStructure) AppliesTo(student *Student, yearID uint) bool {
	return f.IsActive && !f.IsDirect && f.AcademicYearID == yearID && f.Scope().Covers(student.GradeID)
}

// LateFeeFor returns the late fee owed at now, zero while inside the grace window
func (f *FeeStructure) LateFeeFor(now time.Time) decimal.Decimal {
	if f.DueDate == nil || !f.LateFeeAmount.IsPositive() {
		return decimal.Zero
	}
	threshold := f.DueDate.AddDate(0, 0, f.LateFeeDays)
	if now.After(threshold) {
		return f.LateFeeAmount
	}
	return decimal.Zero
}

// FeeStructureResponse is the JSON response format for FeeStructure
type FeeStructureResponse struct {
	ID                  uint            `json:"id"`
	AcademicYearID      uint            `json:"academic_year_id"`
	GradeID             *uint           `json:"grade_id"`
	Scope               FeeScope        `json:"scope"`
	FeeCategoryID       uint            `json:"fee_category_id"`
	CategoryName        string          `json:"category_name,omitempty"`
	GradeName           string          `json:"grade_name,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	IsMandatory         bool            `json:"is_mandatory"`
	DueDate             *time.Time      `json:"due_date"`
	InstallmentsAllowed bool            `json:"installments_allowed"`
	MaxInstallments     int             `json:"max_installments"`
	LateFeeAmount       decimal.Decimal `json:"late_fee_amount"`
	LateFeeDays         int             `json:"late_fee_days"`
	IsActive            bool            `json:"is_active"`
	IsDirect            bool            `json:"is_direct"`
	Description         *string         `json:"description"`
	CreatedAt           time.Time       `json:"created_at"`
}

// ToResponse converts FeeStructure to FeeStructureResponse
func (f *FeeStructure) ToResponse() FeeStructureResponse {
	resp := FeeStructureResponse{
		ID:                  f.ID,
		AcademicYearID:      f.AcademicYearID,
		GradeID:             f.GradeID,
		Scope:               f.Scope(),
		FeeCategoryID:       f.FeeCategoryID,
		Amount:              f.Amount,
		IsMandatory:         f.IsMandatory,
		DueDate:             f.DueDate,
		InstallmentsAllowed: f.InstallmentsAllowed,
		MaxInstallments:     f.MaxInstallments,
		LateFeeAmount:       f.LateFeeAmount,
		LateFeeDays:         f.LateFeeDays,
		IsActive:            f.IsActive,
		IsDirect:            f.IsDirect,
		Description:         f.Description,
		CreatedAt:           f.CreatedAt,
	}
	if f.FeeCategory != nil {
		resp.CategoryName = f.FeeCategory.Name
	}
	if f.Grade != nil {
		resp.GradeName = f.Grade.Name
	}
	return resp
}
