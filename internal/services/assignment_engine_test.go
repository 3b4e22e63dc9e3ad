package services

import (
	"context"
	"testing"
	"time"

	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignmentEngine_ResolveAcademicYear(t *testing.T) {
	ctx := context.Background()

	t.Run("student year wins", func(t *testing.T) {
		f := newFixture()
		f.store.years[2] = models.AcademicYear{ID: 2, Name: "2027-2028"}
		student := f.store.students[10]
		student.AcademicYearID = uintPtr(2)

		year, err := f.engine.ResolveAcademicYear(ctx, &student)
		require.NoError(t, err)
		assert.Equal(t, uint(2), year.ID)
	})

	t.Run("falls back to default then current", func(t *testing.T) {
		f := newFixture()
		f.store.years[testYearID] = models.AcademicYear{ID: testYearID, Name: "2026-2027", IsCurrent: true}
		f.store.years[3] = models.AcademicYear{ID: 3, Name: "2025-2026", IsDefault: true}
		student := f.store.students[11]

		year, err := f.engine.ResolveAcademicYear(ctx, &student)
		require.NoError(t, err)
		assert.Equal(t, uint(3), year.ID)

		delete(f.store.years, 3)
		year, err = f.engine.ResolveAcademicYear(ctx, &student)
		require.NoError(t, err)
		assert.Equal(t, testYearID, year.ID)
	})

	t.Run("missing student year falls back", func(t *testing.T) {
		f := newFixture()
		student := f.store.students[10]
		student.AcademicYearID = uintPtr(404)

		year, err := f.engine.ResolveAcademicYear(ctx, &student)
		require.NoError(t, err)
		assert.Equal(t, testYearID, year.ID)
	})

	t.Run("no year is an error", func(t *testing.T) {
		f := newFixture()
		f.store.years = map[uint]models.AcademicYear{}
		student := f.store.students[11]

		_, err := f.engine.ResolveAcademicYear(ctx, &student)
		assert.ErrorIs(t, err, ErrNoAcademicYear)
	})
}

func TestAssignmentEngine_AssignForStudent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	tuition := f.addCategory("Tuition")
	transport := f.addCategory("Transport")
	clubs := f.addCategory("Clubs")

	gradeTuition := f.addStructure(tuition, models.GradeScope(gradeFive), "1000.00", true)
	globalTransport := f.addStructure(transport, models.GlobalScope(), "800.00", true)
	f.addStructure(tuition, models.GradeScope(gradeSix), "1200.00", true)
	f.addStructure(clubs, models.GlobalScope(), "50.00", false)

	result, err := f.engine.AssignForStudent(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, testYearID, result.AcademicYearID)

	active := f.activeAssignments(10)
	require.Len(t, active, 2)
	structures := []uint{active[0].FeeStructureID, active[1].FeeStructureID}
	assert.ElementsMatch(t, []uint{gradeTuition, globalTransport}, structures)
	for _, a := range active {
		assert.Equal(t, models.AssignmentStatusPending, a.Status)
		assert.True(t, a.PaidAmount.IsZero())
		assert.True(t, a.PendingAmount.Equal(a.TotalAmount))
		assert.True(t, a.IsBalanced())
		assert.Equal(t, "2026-2027", a.Period)
	}

	again, err := f.engine.AssignForStudent(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 2, again.Skipped)
	assert.Len(t, f.activeAssignments(10), 2)
}

func TestAssignmentEngine_AssignForStudent_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.engine.AssignForStudent(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.AssignForStudent(ctx, 13)
	assert.ErrorIs(t, err, ErrValidation)

	f.store.years = map[uint]models.AcademicYear{}
	_, err = f.engine.AssignForStudent(ctx, 11)
	assert.ErrorIs(t, err, ErrNoAcademicYear)
}

func TestAssignmentEngine_ApplicableStructures_ExcludesDirectAndInactive(t *testing.T) {
	f := newFixture()
	cat := f.addCategory("Misc")
	live := f.addStructure(cat, models.GlobalScope(), "10.00", false)

	direct := f.addStructure(f.addCategory("Direct"), models.GradeScope(gradeFive), "99.00", false)
	st := f.store.structures[direct]
	st.IsDirect = true
	f.store.structures[direct] = st

	inactive := f.addStructure(f.addCategory("Old"), models.GlobalScope(), "5.00", true)
	st = f.store.structures[inactive]
	st.IsActive = false
	f.store.structures[inactive] = st

	structures, year, err := f.engine.ApplicableStructures(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, testYearID, year.ID)
	require.Len(t, structures, 1)
	assert.Equal(t, live, structures[0].ID)
}

func TestAssignmentEngine_BackfillStructure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	cat := f.addCategory("Library")
	id := f.addStructure(cat, models.GradeScope(gradeFive), "120.00", true)

	created, err := f.engine.BackfillStructure(ctx, id)
	require.NoError(t, err)
	// students 10 and 11 are grade 5; 13 is inactive; 12 is grade 6
	assert.Equal(t, int64(2), created)
	assert.Len(t, f.activeAssignments(10), 1)
	assert.Len(t, f.activeAssignments(11), 1)
	assert.Empty(t, f.activeAssignments(12))
	assert.Empty(t, f.activeAssignments(13))

	created, err = f.engine.BackfillStructure(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestAssignmentEngine_BackfillStructure_RejectsOptional(t *testing.T) {
	f := newFixture()
	id := f.addStructure(f.addCategory("Clubs"), models.GlobalScope(), "50.00", false)

	_, err := f.engine.BackfillStructure(context.Background(), id)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, f.store.assignments)
}

func TestAssignmentEngine_OptionalFees(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	global := f.addStructure(f.addCategory("Clubs"), models.GlobalScope(), "50.00", false)
	grade := f.addStructure(f.addCategory("Lab"), models.GradeScope(gradeFive), "75.00", false)
	f.addStructure(f.addCategory("Band"), models.GradeScope(gradeSix), "60.00", false)
	f.addStructure(f.addCategory("Tuition"), models.GlobalScope(), "1000.00", true)

	ids := func(list []models.FeeStructure) []uint {
		out := make([]uint, 0, len(list))
		for _, s := range list {
			out = append(out, s.ID)
		}
		return out
	}

	all, err := f.engine.OptionalFees(ctx, 10, DefaultOptionalFilter())
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{global, grade}, ids(all))

	onlyGlobal, err := f.engine.OptionalFees(ctx, 10, OptionalFilter{GlobalOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []uint{global}, ids(onlyGlobal))

	onlyGrade, err := f.engine.OptionalFees(ctx, 10, OptionalFilter{IncludeGlobal: false})
	require.NoError(t, err)
	assert.Equal(t, []uint{grade}, ids(onlyGrade))

	_, err = f.engine.SelectOptionalFees(ctx, 10, []uint{global})
	require.NoError(t, err)
	remaining, err := f.engine.OptionalFees(ctx, 10, DefaultOptionalFilter())
	require.NoError(t, err)
	assert.Equal(t, []uint{grade}, ids(remaining))
}

func TestAssignmentEngine_SelectOptionalFees(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	clubs := f.addStructure(f.addCategory("Clubs"), models.GlobalScope(), "50.00", false)
	band := f.addStructure(f.addCategory("Band"), models.GradeScope(gradeSix), "60.00", false)
	tuition := f.addStructure(f.addCategory("Tuition"), models.GlobalScope(), "1000.00", true)

	result, err := f.engine.SelectOptionalFees(ctx, 10, []uint{clubs, clubs})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	result, err = f.engine.SelectOptionalFees(ctx, 10, []uint{clubs})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, f.activeAssignments(10), 1)

	_, err = f.engine.SelectOptionalFees(ctx, 10, []uint{band})
	assert.ErrorIs(t, err, ErrValidation, "grade 6 structure does not apply to a grade 5 student")

	_, err = f.engine.SelectOptionalFees(ctx, 10, []uint{tuition})
	assert.ErrorIs(t, err, ErrValidation, "mandatory structures are not self-selected")

	_, err = f.engine.SelectOptionalFees(ctx, 10, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAssignmentEngine_StudentFees(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	cat := f.addCategory("Tuition")
	id := f.addStructure(cat, models.GlobalScope(), "1000.00", true)
	due := f.now.AddDate(0, 0, -20)
	st := f.store.structures[id]
	st.DueDate = &due
	st.LateFeeAmount = dec("25.00")
	st.LateFeeDays = 10
	f.store.structures[id] = st

	_, err := f.engine.AssignForStudent(ctx, 10)
	require.NoError(t, err)
	_, err = f.engine.MarkOverdue(ctx)
	require.NoError(t, err)

	overview, err := f.engine.StudentFees(ctx, 10)
	require.NoError(t, err)
	require.Len(t, overview.Assignments, 1)
	assert.True(t, overview.Totals.TotalAmount.Equal(dec("1000")))
	assert.True(t, overview.Totals.PendingAmount.Equal(dec("1000")))
	assert.True(t, overview.Totals.LateFeeDue.Equal(dec("25")))
	assert.Equal(t, 1, overview.Totals.OverdueCount)
	assert.Equal(t, testYearID, overview.AcademicYear.ID)
}

func TestAssignmentEngine_MarkOverdue(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	cat := f.addCategory("Tuition")
	past := f.addStructure(cat, models.GradeScope(gradeFive), "100.00", true)
	future := f.addStructure(f.addCategory("Books"), models.GradeScope(gradeFive), "40.00", true)

	yesterday := f.now.AddDate(0, 0, -1)
	nextWeek := f.now.Add(7 * 24 * time.Hour)
	for id, due := range map[uint]time.Time{past: yesterday, future: nextWeek} {
		st := f.store.structures[id]
		st.DueDate = &due
		f.store.structures[id] = st
	}

	_, err := f.engine.AssignForStudent(ctx, 10)
	require.NoError(t, err)

	n, err := f.engine.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	for _, a := range f.activeAssignments(10) {
		if a.FeeStructureID == past {
			assert.Equal(t, models.AssignmentStatusOverdue, a.Status)
		} else {
			assert.Equal(t, models.AssignmentStatusPending, a.Status)
		}
	}

	n, err = f.engine.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAssignmentEngine_Cancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addStructure(f.addCategory("Tuition"), models.GlobalScope(), "100.00", true)
	_, err := f.engine.AssignForStudent(ctx, 10)
	require.NoError(t, err)
	a := f.activeAssignments(10)[0]

	cancelled, err := f.engine.Cancel(ctx, a.ID, testAdminID)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentStatusCancelled, cancelled.Status)
	assert.False(t, f.assignment(a.ID).IsActive)
	assert.Len(t, f.store.audits, 1)

	_, err = f.engine.Cancel(ctx, a.ID, testAdminID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.engine.Cancel(ctx, 404, testAdminID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssignmentEngine_EnsureParentAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	assert.NoError(t, f.engine.EnsureParentAccess(ctx, 10, 500))
	assert.ErrorIs(t, f.engine.EnsureParentAccess(ctx, 10, 501), ErrForbidden)
	assert.ErrorIs(t, f.engine.EnsureParentAccess(ctx, 11, 500), ErrForbidden)
	assert.ErrorIs(t, f.engine.EnsureParentAccess(ctx, 404, 500), ErrNotFound)
}
