package models

import (
	"fmt"
	"time"
)

// Directory records below are owned by other parts of the school system.
// This service only reads them.

// AcademicYear scopes fee structures
type AcademicYear struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	StartDate time.Time `gorm:"type:date" json:"start_date"`
	EndDate   time.Time `gorm:"type:date" json:"end_date"`
	IsDefault bool      `json:"is_default"`
	IsCurrent bool      `json:"is_current"`
}

// TableName specifies the table name for AcademicYear
func (AcademicYear) TableName() string {
	return "academic_years"
}

// Grade is a class level (e.g. "Grade 5")
type Grade struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null" json:"name"`
}

// TableName specifies the table name for Grade
func (Grade) TableName() string {
	return "grades"
}

// Student is an enrolled learner
type Student struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	AdmissionNo    string `json:"admission_no"`
	GradeID        uint   `gorm:"index" json:"grade_id"`
	DivisionID     *uint  `json:"division_id"`
	AcademicYearID *uint  `gorm:"index" json:"academic_year_id"`
	ParentID       *uint  `gorm:"index" json:"parent_id"`
	IsActive       bool   `json:"is_active"`

	Grade *Grade `gorm:"foreignKey:GradeID" json:"grade,omitempty"`
}

// TableName specifies the table name for Student
func (Student) TableName() string {
	return "students"
}

// FullName returns "First Last"
func (s *Student) FullName() string {
	return fmt.Sprintf("%s %s", s.FirstName, s.LastName)
}

// Staff is a school employee who may collect fees
type Staff struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	FullName string `gorm:"not null" json:"full_name"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// TableName specifies the table name for Staff
func (Staff) TableName() string {
	return "staff"
}
