package models

import (
	"encoding/json"
	"fmt"
)

// FeeScope says which students of an academic year a fee structure reaches:
// every grade (global) or a single grade. The nullable grade_id column is only
// a storage detail; code compares scopes, never raw pointers.
type FeeScope struct {
	gradeID uint
}

// GlobalScope applies to every grade
func GlobalScope() FeeScope {
	return FeeScope{}
}

// GradeScope applies to a single grade
func GradeScope(gradeID uint) FeeScope {
	return FeeScope{gradeID: gradeID}
}

// ScopeFromColumn converts the persisted grade_id into a scope
func ScopeFromColumn(gradeID *uint) FeeScope {
	if gradeID == nil || *gradeID == 0 {
		return GlobalScope()
	}
	return GradeScope(*gradeID)
}

// IsGlobal reports whether the scope covers all grades
func (s FeeScope) IsGlobal() bool {
	return s.gradeID == 0
}

// GradeID returns the grade for grade scopes
func (s FeeScope) GradeID() (uint, bool) {
	return s.gradeID, s.gradeID != 0
}

// Column returns the value stored in grade_id (nil for global)
func (s FeeScope) Column() *uint {
	if s.IsGlobal() {
		return nil
	}
	id := s.gradeID
	return &id
}

// Covers reports whether a student in gradeID falls under the scope
func (s FeeScope) Covers(gradeID uint) bool {
	return s.IsGlobal() || s.gradeID == gradeID
}

// Equal compares two scopes
func (s FeeScope) Equal(other FeeScope) bool {
	return s.gradeID == other.gradeID
}

func (s FeeScope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return fmt.Sprintf("grade:%d", s.gradeID)
}

// MarshalJSON renders {"type":"global"} or {"type":"grade","grade_id":5}
func (s FeeScope) MarshalJSON() ([]byte, error) {
	if s.IsGlobal() {
		return json.Marshal(map[string]any{"type": "global"})
	}
	return json.Marshal(map[string]any{"type": "grade", "grade_id": s.gradeID})
}
