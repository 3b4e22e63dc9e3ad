package repository

import (
	"context"

	"github.com/sjperalta/schoolfees-api/internal/database"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"gorm.io/gorm"
)

// DirectoryRepository reads the student, staff and academic year records
// owned by the wider school system.
type DirectoryRepository interface {
	FindStudent(ctx context.Context, id uint) (*models.Student, error)
	FindStaff(ctx context.Context, id uint) (*models.Staff, error)
	FindAcademicYear(ctx context.Context, id uint) (*models.AcademicYear, error)
	DefaultAcademicYear(ctx context.Context) (*models.AcademicYear, error)
	CurrentAcademicYear(ctx context.Context) (*models.AcademicYear, error)
	ActiveStudentIDs(ctx context.Context, academicYearID uint, scope models.FeeScope) ([]uint, error)
}

type directoryRepository struct {
	db *gorm.DB
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *gorm.DB) DirectoryRepository {
	return &directoryRepository{db: db}
}

func (r *directoryRepository) FindStudent(ctx context.Context, id uint) (*models.Student, error) {
	var student models.Student
	if err := database.Conn(ctx, r.db).Preload("Grade").First(&student, id).Error; err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *directoryRepository) FindStaff(ctx context.Context, id uint) (*models.Staff, error) {
	var staff models.Staff
	if err := database.Conn(ctx, r.db).First(&staff, id).Error; err != nil {
		return nil, err
	}
	return &staff, nil
}

func (r *directoryRepository) FindAcademicYear(ctx context.Context, id uint) (*models.AcademicYear, error) {
	var year models.AcademicYear
	if err := database.Conn(ctx, r.db).First(&year, id).Error; err != nil {
		return nil, err
	}
	return &year, nil
}

func (r *directoryRepository) DefaultAcademicYear(ctx context.Context) (*models.AcademicYear, error) {
	var year models.AcademicYear
	err := database.Conn(ctx, r.db).
		Where("is_default = ?", true).
		Order("start_date DESC").
		First(&year).Error
	if err != nil {
		return nil, err
	}
	return &year, nil
}

func (r *directoryRepository) CurrentAcademicYear(ctx context.Context) (*models.AcademicYear, error) {
	var year models.AcademicYear
	err := database.Conn(ctx, r.db).
		Where("is_current = ?", true).
		Order("start_date DESC").
		First(&year).Error
	if err != nil {
		return nil, err
	}
	return &year, nil
}

// fallbackYearSQL resolves the year a student without one belongs to: the
// default year, else the current one.
const fallbackYearSQL = `COALESCE(
	(SELECT id FROM academic_years WHERE is_default ORDER BY start_date DESC LIMIT 1),
	(SELECT id FROM academic_years WHERE is_current ORDER BY start_date DESC LIMIT 1))`

// ActiveStudentIDs lists active students enrolled in the year and covered by
// scope. Students with no year count toward the fallback year.
func (r *directoryRepository) ActiveStudentIDs(ctx context.Context, academicYearID uint, scope models.FeeScope) ([]uint, error) {
	var ids []uint
	db := database.Conn(ctx, r.db).
		Model(&models.Student{}).
		Where("is_active = ?", true).
		Where("(academic_year_id = ? OR (academic_year_id IS NULL AND "+fallbackYearSQL+" = ?))", academicYearID, academicYearID)

	if gradeID, ok := scope.GradeID(); ok {
		db = db.Where("grade_id = ?", gradeID)
	}

	err := db.Order("id").Pluck("id", &ids).Error
	return ids, err
}
