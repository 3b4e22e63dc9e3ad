package models

import (
	"time"

	"gorm.io/gorm"
)

// FeeCategory classifies a charge (tuition, transport, ...)
type FeeCategory struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:100;not null" json:"name"`
	Description *string        `gorm:"type:text" json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for FeeCategory
func (FeeCategory) TableName() string {
	return "fee_categories"
}
