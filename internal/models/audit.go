package models

import (
	"time"
)

// AuditLog records an administrative action on a financial record
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Action    string    `gorm:"size:50;not null" json:"action"`
	Entity    string    `gorm:"size:50;not null" json:"entity"`
	EntityID  uint      `json:"entity_id"`
	Details   string    `gorm:"type:text" json:"details"`
	IPAddress string    `gorm:"size:45" json:"ip_address"`
	UserAgent string    `gorm:"size:255" json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}

// Audit actions
const (
	AuditActionCreate   = "CREATE"
	AuditActionUpdate   = "UPDATE"
	AuditActionDelete   = "DELETE"
	AuditActionVerify   = "VERIFY"
	AuditActionWithdraw = "WITHDRAW"
	AuditActionClear    = "CLEAR"
	AuditActionAdjust   = "ADJUST"
	AuditActionCancel   = "CANCEL"
	AuditActionBackfill = "BACKFILL"
)

// Audit entities
const (
	AuditEntityFeeCategory   = "FeeCategory"
	AuditEntityFeeStructure  = "FeeStructure"
	AuditEntityAssignment    = "StudentFeeAssignment"
	AuditEntityFeeCollection = "FeeCollection"
	AuditEntityStaffWallet   = "StaffWallet"
)
