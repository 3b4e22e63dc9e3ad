package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeCollection is a payment event. Only the verification fields change after insert.
type FeeCollection struct {
	ID                     uint            `gorm:"primaryKey" json:"id"`
	StudentID              uint            `gorm:"not null;index" json:"student_id"`
	StudentFeeAssignmentID *uint           `gorm:"index" json:"student_fee_assignment_id"`
	Amount                 decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	PaymentMethod          string          `gorm:"size:20;not null" json:"payment_method"`
	ReceiptNumber          string          `gorm:"size:40;not null;uniqueIndex" json:"receipt_number"`
	CollectedByStaffID     uint            `gorm:"not null;index" json:"collected_by_staff_id"`
	CollectionDate         time.Time       `gorm:"not null;index" json:"collection_date"`
	Verified               bool            `gorm:"not null;index" json:"verified"`
	VerifiedBy             *uint           `json:"verified_by"`
	VerifiedAt             *time.Time      `json:"verified_at"`
	ReferenceNumber        *string         `gorm:"size:100" json:"reference_number"`
	Remarks                *string         `gorm:"type:text" json:"remarks"`
	ReceiptPath            *string         `json:"-"`
	CreatedAt              time.Time       `json:"created_at"`

	// Associations
	Student     *Student              `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	CollectedBy *Staff                `gorm:"foreignKey:CollectedByStaffID" json:"collected_by,omitempty"`
	Assignment  *StudentFeeAssignment `gorm:"foreignKey:StudentFeeAssignmentID" json:"assignment,omitempty"`
}

// TableName specifies the table name for FeeCollection
func (FeeCollection) TableName() string {
	return "fee_collections"
}

// Payment method constants
const (
	PaymentMethodCash   = "cash"
	PaymentMethodCard   = "card"
	PaymentMethodOnline = "online"
	PaymentMethodCheque = "cheque"
	PaymentMethodDD     = "dd"
)

// PaymentMethods lists the accepted payment methods
var PaymentMethods = []string{
	PaymentMethodCash,
	PaymentMethodCard,
	PaymentMethodOnline,
	PaymentMethodCheque,
	PaymentMethodDD,
}

// IsValidPaymentMethod checks a payment method against PaymentMethods
func IsValidPaymentMethod(method string) bool {
	for _, m := range PaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

// CategoryName returns the fee category the collection was paid under, if loaded
func (c *FeeCollection) CategoryName() string {
	if c.Assignment != nil && c.Assignment.FeeStructure != nil && c.Assignment.FeeStructure.FeeCategory != nil {
		return c.Assignment.FeeStructure.FeeCategory.Name
	}
	return ""
}

// FeeCollectionResponse is the JSON response format for FeeCollection
type FeeCollectionResponse struct {
	ID                     uint            `json:"id"`
	StudentID              uint            `json:"student_id"`
	StudentName            string          `json:"student_name,omitempty"`
	StudentFeeAssignmentID *uint           `json:"student_fee_assignment_id"`
	CategoryName           string          `json:"category_name,omitempty"`
	Amount                 decimal.Decimal `json:"amount"`
	PaymentMethod          string          `json:"payment_method"`
	ReceiptNumber          string          `json:"receipt_number"`
	CollectedByStaffID     uint            `json:"collected_by_staff_id"`
	CollectedByName        string          `json:"collected_by_name,omitempty"`
	CollectionDate         time.Time       `json:"collection_date"`
	Verified               bool            `json:"verified"`
	VerifiedBy             *uint           `json:"verified_by"`
	VerifiedAt             *time.Time      `json:"verified_at"`
	ReferenceNumber        *string         `json:"reference_number"`
	Remarks                *string         `json:"remarks"`
	CreatedAt              time.Time       `json:"created_at"`
}

// ToResponse converts FeeCollection to FeeCollectionResponse
func (c *FeeCollection) ToResponse() FeeCollectionResponse {
	resp := FeeCollectionResponse{
		ID:                     c.ID,
		StudentID:              c.StudentID,
		StudentFeeAssignmentID: c.StudentFeeAssignmentID,
		CategoryName:           c.CategoryName(),
		Amount:                 c.Amount,
		PaymentMethod:          c.PaymentMethod,
		ReceiptNumber:          c.ReceiptNumber,
		CollectedByStaffID:     c.CollectedByStaffID,
		CollectionDate:         c.CollectionDate,
		Verified:               c.Verified,
		VerifiedBy:             c.VerifiedBy,
		VerifiedAt:             c.VerifiedAt,
		ReferenceNumber:        c.ReferenceNumber,
		Remarks:                c.Remarks,
		CreatedAt:              c.CreatedAt,
	}
	if c.Student != nil {
		resp.StudentName = c.Student.FullName()
	}
	if c.CollectedBy != nil {
		resp.CollectedByName = c.CollectedBy.FullName
	}
	return resp
}
