package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an account that can sign in. Staff and parent accounts point at
// their directory record through StaffID / ParentID.
type User struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Email             string    `gorm:"uniqueIndex;not null" json:"email"`
	EncryptedPassword string    `gorm:"column:encrypted_password;not null" json:"-"`
	Role              string    `gorm:"not null" json:"role"`
	FullName          string    `json:"full_name"`
	Status            string    `gorm:"not null" json:"status"`
	StaffID           *uint     `gorm:"index" json:"staff_id,omitempty"`
	ParentID          *uint     `gorm:"index" json:"parent_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// BeforeCreate hook for setting defaults
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Status == "" {
		u.Status = StatusActive
	}
	return nil
}

// Role constants
const (
	RoleAdmin  = "admin"
	RoleStaff  = "staff"
	RoleParent = "parent"
)

// Status constants
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// IsAdmin returns true if user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsActive returns true if user status is active
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// UserResponse is the JSON response format for User
type UserResponse struct {
	ID       uint   `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	StaffID  *uint  `json:"staff_id,omitempty"`
	ParentID *uint  `json:"parent_id,omitempty"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     u.Role,
		StaffID:  u.StaffID,
		ParentID: u.ParentID,
	}
}
