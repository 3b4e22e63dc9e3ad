package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func structureInput(categoryID uint, gradeID *uint, amount string, mandatory bool) StructureInput {
	return StructureInput{
		AcademicYearID: testYearID,
		GradeID:        gradeID,
		FeeCategoryID:  categoryID,
		Amount:         dec(amount),
		IsMandatory:    mandatory,
		LateFeeAmount:  dec("0"),
	}
}

// Transport category, global mandatory structure of 800 for a year with 50
// active students: every student gets a pending 800 assignment.
func TestFeeStructureService_Create_GlobalMandatoryBackfills(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.store.students = map[uint]models.Student{}
	year := testYearID
	for i := uint(1); i <= 50; i++ {
		f.store.students[100+i] = models.Student{
			ID:             100 + i,
			FirstName:      "Student",
			LastName:       fmt.Sprint(i),
			GradeID:        gradeFive + i%3,
			AcademicYearID: &year,
			IsActive:       true,
		}
	}

	category, err := f.categories.Create(ctx, CategoryInput{Name: "Transport"})
	require.NoError(t, err)

	result, err := f.structures.Create(ctx, structureInput(category.ID, nil, "800", true), testAdminID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), result.AssignmentsCreated)
	assert.True(t, result.Structure.Scope().IsGlobal())
	assert.Nil(t, result.Structure.DivisionID)

	require.Len(t, f.store.assignments, 50)
	for _, a := range f.store.assignments {
		assert.True(t, a.TotalAmount.Equal(dec("800")))
		assert.True(t, a.PendingAmount.Equal(dec("800")))
		assert.True(t, a.PaidAmount.IsZero())
		assert.Equal(t, models.AssignmentStatusPending, a.Status)
		assert.Equal(t, result.Structure.ID, a.FeeStructureID)
	}
}

func TestFeeStructureService_Create_GradeScopedDoesNotBackfill(t *testing.T) {
	f := newFixture()
	cat := f.addCategory("Tuition")

	result, err := f.structures.Create(context.Background(), structureInput(cat, uintPtr(gradeFive), "1000", true), testAdminID)
	require.NoError(t, err)
	assert.Zero(t, result.AssignmentsCreated)
	assert.Empty(t, f.store.assignments)
	assert.True(t, result.Structure.IsActive)
}

func TestFeeStructureService_Create_Duplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	cat := f.addCategory("Tuition")

	_, err := f.structures.Create(ctx, structureInput(cat, nil, "100", false), testAdminID)
	require.NoError(t, err)

	_, err = f.structures.Create(ctx, structureInput(cat, nil, "150", false), testAdminID)
	assert.ErrorIs(t, err, ErrDuplicate, "second global structure in the same slot")

	_, err = f.structures.Create(ctx, structureInput(cat, uintPtr(gradeFive), "150", false), testAdminID)
	assert.NoError(t, err, "grade scope is a different slot than global")

	_, err = f.structures.Create(ctx, structureInput(cat, uintPtr(gradeFive), "150", false), testAdminID)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestFeeStructureService_Create_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	cat := f.addCategory("Tuition")

	_, err := f.structures.Create(ctx, structureInput(cat, nil, "0", true), testAdminID)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "amount")

	_, err = f.structures.Create(ctx, structureInput(404, nil, "10", true), testAdminID)
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "fee_category_id")

	in := structureInput(cat, nil, "10", true)
	in.AcademicYearID = 404
	_, err = f.structures.Create(ctx, in, testAdminID)
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "academic_year_id")

	in = structureInput(cat, nil, "10", false)
	in.InstallmentsAllowed = true
	_, err = f.structures.Create(ctx, in, testAdminID)
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "max_installments")
}

func TestFeeStructureService_Update(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	tuition := f.addCategory("Tuition")
	books := f.addCategory("Books")
	first := f.addStructure(tuition, models.GlobalScope(), "100.00", false)
	f.addStructure(books, models.GlobalScope(), "40.00", false)

	updated, err := f.structures.Update(ctx, first, structureInput(tuition, nil, "120", false), testAdminID)
	require.NoError(t, err, "keeping its own slot is not a duplicate")
	assert.True(t, updated.Amount.Equal(dec("120")))

	_, err = f.structures.Update(ctx, first, structureInput(books, nil, "120", false), testAdminID)
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = f.structures.Update(ctx, 404, structureInput(tuition, nil, "120", false), testAdminID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFeeStructureService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	cat := f.addCategory("Tuition")
	id := f.addStructure(cat, models.GradeScope(gradeFive), "100.00", true)
	_, err := f.engine.BackfillStructure(ctx, id)
	require.NoError(t, err)

	_, err = f.structures.Delete(ctx, id, false, testAdminID)
	var inUse *StructureInUseError
	require.True(t, errors.As(err, &inUse))
	assert.Equal(t, int64(2), inUse.AssignmentCount)
	assert.True(t, inUse.CanForceDelete())
	assert.ErrorIs(t, err, ErrStructureInUse)
	assert.False(t, f.store.structures[id].DeletedAt.Valid)

	result, err := f.structures.Delete(ctx, id, true, testAdminID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.CancelledAssignments)
	assert.True(t, f.store.structures[id].DeletedAt.Valid)
	for _, a := range f.store.assignments {
		assert.False(t, a.IsActive)
		assert.Equal(t, models.AssignmentStatusCancelled, a.Status)
	}

	_, err = f.structures.FindByID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFeeStructureService_Delete_Unused(t *testing.T) {
	f := newFixture()
	id := f.addStructure(f.addCategory("Clubs"), models.GlobalScope(), "50.00", false)

	result, err := f.structures.Delete(context.Background(), id, false, testAdminID)
	require.NoError(t, err)
	assert.Zero(t, result.CancelledAssignments)
	assert.True(t, f.store.structures[id].DeletedAt.Valid)
}

func TestFeeCategoryService(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	category, err := f.categories.Create(ctx, CategoryInput{Name: "  Transport "})
	require.NoError(t, err)
	assert.Equal(t, "Transport", category.Name)

	_, err = f.categories.Create(ctx, CategoryInput{Name: "transport"})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = f.categories.Create(ctx, CategoryInput{Name: "  "})
	assert.ErrorIs(t, err, ErrValidation)

	other, err := f.categories.Create(ctx, CategoryInput{Name: "Meals"})
	require.NoError(t, err)
	_, err = f.categories.Update(ctx, other.ID, CategoryInput{Name: "Transport"})
	assert.ErrorIs(t, err, ErrDuplicate)

	renamed, err := f.categories.Update(ctx, other.ID, CategoryInput{Name: "Lunch"})
	require.NoError(t, err)
	assert.Equal(t, "Lunch", renamed.Name)
}

func TestFeeCategoryService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	used := f.addCategory("Tuition")
	f.addStructure(used, models.GlobalScope(), "100.00", true)
	unused := f.addCategory("Unused")

	result, err := f.categories.Delete(ctx, used, testAdminID)
	require.NoError(t, err)
	assert.True(t, result.SoftDeleted)
	assert.Equal(t, int64(1), result.StructureCount)
	assert.True(t, f.store.categories[used].DeletedAt.Valid)

	result, err = f.categories.Delete(ctx, unused, testAdminID)
	require.NoError(t, err)
	assert.False(t, result.SoftDeleted)
	_, exists := f.store.categories[unused]
	assert.False(t, exists)

	_, err = f.categories.Delete(ctx, unused, testAdminID)
	assert.ErrorIs(t, err, ErrNotFound)
}
