package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// Common service errors
var (
	ErrNotFound            = errors.New("record not found")
	ErrValidation          = errors.New("validation failed")
	ErrUnauthorized        = errors.New("invalid credentials")
	ErrForbidden           = errors.New("not allowed to access this resource")
	ErrInvalidState        = errors.New("invalid state transition")
	ErrDuplicate           = errors.New("duplicate record")
	ErrOverpayment         = errors.New("payment amount exceeds pending balance")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrNoAcademicYear      = errors.New("no academic year configured")
	ErrStructureInUse      = errors.New("fee structure has active assignments")
)

// ValidationError carries per-field messages
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// add records a field message, keeping the first one per field
func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// orNil returns nil when no field failed
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func fieldError(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// StructureInUseError blocks deleting a structure that students still hold
type StructureInUseError struct {
	AssignmentCount int64
}

func (e *StructureInUseError) Error() string {
	return fmt.Sprintf("fee structure has %d active assignments; pass force=true to deactivate them", e.AssignmentCount)
}

func (e *StructureInUseError) Unwrap() error {
	return ErrStructureInUse
}

// CanForceDelete is always true: forced deletion cascades to assignments
func (e *StructureInUseError) CanForceDelete() bool {
	return true
}

// notFound maps a missing row to ErrNotFound, naming the entity
func notFound(entity string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %w", entity, ErrNotFound)
	}
	return err
}
