package services

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/schoolfees-api/internal/config"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/internal/repository"
	"gorm.io/gorm"
)

// fakeStore is an in-memory stand-in for the database. Rows are stored by
// value so callers never alias stored state.
type fakeStore struct {
	seq           uint
	categories    map[uint]models.FeeCategory
	structures    map[uint]models.FeeStructure
	assignments   map[uint]models.StudentFeeAssignment
	collections   map[uint]models.FeeCollection
	wallets       map[uint]models.StaffWallet
	ledger        []models.WalletLedgerEntry
	students      map[uint]models.Student
	staff         map[uint]models.Staff
	years         map[uint]models.AcademicYear
	users         []models.User
	notifications []models.Notification
	audits        []models.AuditLog

	// receiptCollisions makes the next N receipt inserts fail as duplicates
	receiptCollisions int
	receiptAttempts   int
	// ledgerErr fails every wallet ledger append
	ledgerErr error
	// staleRead edits assignments as FindByID returns them
	staleRead func(*models.StudentFeeAssignment)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		categories:  map[uint]models.FeeCategory{},
		structures:  map[uint]models.FeeStructure{},
		assignments: map[uint]models.StudentFeeAssignment{},
		collections: map[uint]models.FeeCollection{},
		wallets:     map[uint]models.StaffWallet{},
		students:    map[uint]models.Student{},
		staff:       map[uint]models.Staff{},
		years:       map[uint]models.AcademicYear{},
	}
}

func (s *fakeStore) nextID() uint {
	s.seq++
	return s.seq
}

func (s *fakeStore) snapshot() *fakeStore {
	return &fakeStore{
		seq:           s.seq,
		categories:    maps.Clone(s.categories),
		structures:    maps.Clone(s.structures),
		assignments:   maps.Clone(s.assignments),
		collections:   maps.Clone(s.collections),
		wallets:       maps.Clone(s.wallets),
		ledger:        slices.Clone(s.ledger),
		students:      maps.Clone(s.students),
		staff:         maps.Clone(s.staff),
		years:         maps.Clone(s.years),
		users:         slices.Clone(s.users),
		notifications: slices.Clone(s.notifications),
		audits:        slices.Clone(s.audits),
	}
}

func (s *fakeStore) restore(snap *fakeStore) {
	attempts, collisions := s.receiptAttempts, s.receiptCollisions
	ledgerErr, staleRead := s.ledgerErr, s.staleRead
	*s = *snap
	s.receiptAttempts, s.receiptCollisions = attempts, collisions
	s.ledgerErr, s.staleRead = ledgerErr, staleRead
}

func sortedKeys[V any](m map[uint]V) []uint {
	keys := slices.Collect(maps.Keys(m))
	slices.Sort(keys)
	return keys
}

// fakeTx rolls the store back when the outermost function fails
type fakeTx struct {
	store *fakeStore
}

type fakeTxKey struct{}

func (t fakeTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	snap := t.store.snapshot()
	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// ---- directory ----

type fakeDirectoryRepo struct {
	s *fakeStore
}

func (r *fakeDirectoryRepo) FindStudent(ctx context.Context, id uint) (*models.Student, error) {
	st, ok := r.s.students[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &st, nil
}

func (r *fakeDirectoryRepo) FindStaff(ctx context.Context, id uint) (*models.Staff, error) {
	st, ok := r.s.staff[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &st, nil
}

func (r *fakeDirectoryRepo) FindAcademicYear(ctx context.Context, id uint) (*models.AcademicYear, error) {
	y, ok := r.s.years[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &y, nil
}

func (r *fakeDirectoryRepo) findYear(match func(models.AcademicYear) bool) (*models.AcademicYear, error) {
	for _, id := range sortedKeys(r.s.years) {
		if y := r.s.years[id]; match(y) {
			return &y, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeDirectoryRepo) DefaultAcademicYear(ctx context.Context) (*models.AcademicYear, error) {
	return r.findYear(func(y models.AcademicYear) bool { return y.IsDefault })
}

func (r *fakeDirectoryRepo) CurrentAcademicYear(ctx context.Context) (*models.AcademicYear, error) {
	return r.findYear(func(y models.AcademicYear) bool { return y.IsCurrent })
}

// ActiveStudentIDs mirrors the SQL: students enrolled in the year, or with no
// year when the year is the fallback one.
func (r *fakeDirectoryRepo) ActiveStudentIDs(ctx context.Context, yearID uint, scope models.FeeScope) ([]uint, error) {
	fallback, err := r.DefaultAcademicYear(ctx)
	if err != nil {
		fallback, err = r.CurrentAcademicYear(ctx)
	}
	isFallback := err == nil && fallback.ID == yearID
	var ids []uint
	for _, id := range sortedKeys(r.s.students) {
		st := r.s.students[id]
		if !st.IsActive || !scope.Covers(st.GradeID) {
			continue
		}
		if st.AcademicYearID != nil && *st.AcademicYearID == yearID || st.AcademicYearID == nil && isFallback {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ---- categories ----

type fakeCategoryRepo struct {
	s *fakeStore
}

func (r *fakeCategoryRepo) FindByID(ctx context.Context, id uint) (*models.FeeCategory, error) {
	c, ok := r.s.categories[id]
	if !ok || c.DeletedAt.Valid {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r *fakeCategoryRepo) FindByName(ctx context.Context, name string) (*models.FeeCategory, error) {
	for _, id := range sortedKeys(r.s.categories) {
		c := r.s.categories[id]
		if !c.DeletedAt.Valid && strings.EqualFold(c.Name, name) {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeCategoryRepo) Create(ctx context.Context, c *models.FeeCategory) error {
	c.ID = r.s.nextID()
	r.s.categories[c.ID] = *c
	return nil
}

func (r *fakeCategoryRepo) Update(ctx context.Context, c *models.FeeCategory) error {
	r.s.categories[c.ID] = *c
	return nil
}

func (r *fakeCategoryRepo) List(ctx context.Context, query *repository.ListQuery) ([]models.FeeCategory, int64, error) {
	var out []models.FeeCategory
	for _, id := range sortedKeys(r.s.categories) {
		if c := r.s.categories[id]; !c.DeletedAt.Valid {
			out = append(out, c)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeCategoryRepo) CountStructures(ctx context.Context, categoryID uint) (int64, error) {
	var n int64
	for _, s := range r.s.structures {
		if s.FeeCategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

func (r *fakeCategoryRepo) SoftDelete(ctx context.Context, id uint) error {
	c := r.s.categories[id]
	c.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	r.s.categories[id] = c
	return nil
}

func (r *fakeCategoryRepo) HardDelete(ctx context.Context, id uint) error {
	delete(r.s.categories, id)
	return nil
}

// ---- structures ----

type fakeStructureRepo struct {
	s *fakeStore
}

func (r *fakeStructureRepo) FindByID(ctx context.Context, id uint) (*models.FeeStructure, error) {
	st, ok := r.s.structures[id]
	if !ok || st.DeletedAt.Valid {
		return nil, gorm.ErrRecordNotFound
	}
	if c, ok := r.s.categories[st.FeeCategoryID]; ok {
		st.FeeCategory = &c
	}
	return &st, nil
}

func (r *fakeStructureRepo) Create(ctx context.Context, st *models.FeeStructure) error {
	st.ID = r.s.nextID()
	stored := *st
	stored.FeeCategory, stored.Grade = nil, nil
	r.s.structures[st.ID] = stored
	return nil
}

func (r *fakeStructureRepo) Update(ctx context.Context, st *models.FeeStructure) error {
	stored := *st
	stored.FeeCategory, stored.Grade = nil, nil
	r.s.structures[st.ID] = stored
	return nil
}

func (r *fakeStructureRepo) SoftDelete(ctx context.Context, id uint) error {
	st := r.s.structures[id]
	st.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	r.s.structures[id] = st
	return nil
}

func (r *fakeStructureRepo) List(ctx context.Context, query *repository.StructureQuery) ([]models.FeeStructure, int64, error) {
	var out []models.FeeStructure
	for _, id := range sortedKeys(r.s.structures) {
		st := r.s.structures[id]
		if st.DeletedAt.Valid || (st.IsDirect && !query.IncludeDirect) {
			continue
		}
		if query.AcademicYearID > 0 && st.AcademicYearID != query.AcademicYearID {
			continue
		}
		if query.IsMandatory != nil && st.IsMandatory != *query.IsMandatory {
			continue
		}
		out = append(out, st)
	}
	return out, int64(len(out)), nil
}

func (r *fakeStructureRepo) SlotTaken(ctx context.Context, slot repository.StructureSlot, excludeID uint) (bool, error) {
	for id, st := range r.s.structures {
		if id == excludeID || st.DeletedAt.Valid || st.IsDirect {
			continue
		}
		if st.AcademicYearID == slot.AcademicYearID && st.FeeCategoryID == slot.FeeCategoryID && st.Scope().Equal(slot.Scope) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeStructureRepo) FindApplicable(ctx context.Context, yearID, gradeID uint, mandatory *bool) ([]models.FeeStructure, error) {
	var out []models.FeeStructure
	for _, id := range sortedKeys(r.s.structures) {
		st := r.s.structures[id]
		if st.DeletedAt.Valid || !st.IsActive || st.IsDirect || st.AcademicYearID != yearID || !st.Scope().Covers(gradeID) {
			continue
		}
		if mandatory != nil && st.IsMandatory != *mandatory {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// ---- assignments ----

var errFakeDuplicate = errors.New("duplicate key value violates unique constraint")

type fakeAssignmentRepo struct {
	s *fakeStore
}

func (r *fakeAssignmentRepo) withStructure(a models.StudentFeeAssignment) models.StudentFeeAssignment {
	if st, ok := r.s.structures[a.FeeStructureID]; ok {
		if c, ok := r.s.categories[st.FeeCategoryID]; ok {
			st.FeeCategory = &c
		}
		a.FeeStructure = &st
	}
	return a
}

func (r *fakeAssignmentRepo) FindByID(ctx context.Context, id uint) (*models.StudentFeeAssignment, error) {
	a, ok := r.s.assignments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	a = r.withStructure(a)
	if r.s.staleRead != nil {
		r.s.staleRead(&a)
	}
	return &a, nil
}

func (r *fakeAssignmentRepo) FindActive(ctx context.Context, studentID, structureID uint) (*models.StudentFeeAssignment, error) {
	for _, id := range sortedKeys(r.s.assignments) {
		a := r.s.assignments[id]
		if a.StudentID == studentID && a.FeeStructureID == structureID && a.IsActive {
			return &a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAssignmentRepo) FindOpenInCategory(ctx context.Context, studentID, yearID, categoryID uint) (*models.StudentFeeAssignment, error) {
	for _, id := range sortedKeys(r.s.assignments) {
		a := r.s.assignments[id]
		st := r.s.structures[a.FeeStructureID]
		if a.StudentID == studentID && a.IsOpen() && st.AcademicYearID == yearID && st.FeeCategoryID == categoryID {
			return &a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAssignmentRepo) ListByStudent(ctx context.Context, studentID uint, includeInactive bool) ([]models.StudentFeeAssignment, error) {
	var out []models.StudentFeeAssignment
	for _, id := range sortedKeys(r.s.assignments) {
		a := r.s.assignments[id]
		if a.StudentID == studentID && (includeInactive || a.IsActive) {
			out = append(out, r.withStructure(a))
		}
	}
	return out, nil
}

func (r *fakeAssignmentRepo) StudentsWithActiveAssignment(ctx context.Context, structureID uint) ([]uint, error) {
	var ids []uint
	for _, id := range sortedKeys(r.s.assignments) {
		if a := r.s.assignments[id]; a.FeeStructureID == structureID && a.IsActive {
			ids = append(ids, a.StudentID)
		}
	}
	return ids, nil
}

func (r *fakeAssignmentRepo) Create(ctx context.Context, a *models.StudentFeeAssignment) error {
	if a.IsActive {
		if _, err := r.FindActive(ctx, a.StudentID, a.FeeStructureID); err == nil {
			return errFakeDuplicate
		}
	}
	a.ID = r.s.nextID()
	stored := *a
	stored.FeeStructure, stored.Student = nil, nil
	r.s.assignments[a.ID] = stored
	return nil
}

func (r *fakeAssignmentRepo) CreateBatch(ctx context.Context, batch []*models.StudentFeeAssignment) (int64, error) {
	var n int64
	for _, a := range batch {
		if err := r.Create(ctx, a); err == nil {
			n++
		}
	}
	return n, nil
}

func (r *fakeAssignmentRepo) ApplyPayment(ctx context.Context, id uint, amount decimal.Decimal) error {
	a, ok := r.s.assignments[id]
	if !ok || !a.IsActive || !slices.Contains(models.CollectibleStatuses, a.Status) {
		return repository.ErrNoRowsAffected
	}
	if err := a.ApplyPayment(amount); err != nil {
		return repository.ErrNoRowsAffected
	}
	r.s.assignments[id] = a
	return nil
}

func (r *fakeAssignmentRepo) UpdateStatus(ctx context.Context, a *models.StudentFeeAssignment) error {
	stored := r.s.assignments[a.ID]
	stored.Status, stored.IsActive = a.Status, a.IsActive
	r.s.assignments[a.ID] = stored
	return nil
}

func (r *fakeAssignmentRepo) CountActiveByStructure(ctx context.Context, structureID uint) (int64, error) {
	ids, _ := r.StudentsWithActiveAssignment(ctx, structureID)
	return int64(len(ids)), nil
}

func (r *fakeAssignmentRepo) CancelByStructure(ctx context.Context, structureID uint) (int64, error) {
	var n int64
	for id, a := range r.s.assignments {
		if a.FeeStructureID != structureID || !a.IsActive {
			continue
		}
		a.IsActive = false
		if a.Status != models.AssignmentStatusPaid {
			a.Status = models.AssignmentStatusCancelled
		}
		r.s.assignments[id] = a
		n++
	}
	return n, nil
}

func (r *fakeAssignmentRepo) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	var n int64
	for id, a := range r.s.assignments {
		open := a.Status == models.AssignmentStatusPending || a.Status == models.AssignmentStatusPartial
		if a.IsActive && open && a.IsPastDue(asOf) {
			a.Status = models.AssignmentStatusOverdue
			r.s.assignments[id] = a
			n++
		}
	}
	return n, nil
}

// ---- collections ----

type fakeCollectionRepo struct {
	s *fakeStore
}

func (r *fakeCollectionRepo) FindByID(ctx context.Context, id uint) (*models.FeeCollection, error) {
	c, ok := r.s.collections[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if st, ok := r.s.students[c.StudentID]; ok {
		c.Student = &st
	}
	if c.StudentFeeAssignmentID != nil {
		if a, ok := r.s.assignments[*c.StudentFeeAssignmentID]; ok {
			a = (&fakeAssignmentRepo{s: r.s}).withStructure(a)
			c.Assignment = &a
		}
	}
	return &c, nil
}

func (r *fakeCollectionRepo) receiptTaken(number string) bool {
	for _, c := range r.s.collections {
		if c.ReceiptNumber == number {
			return true
		}
	}
	return false
}

func (r *fakeCollectionRepo) CreateWithReceipt(ctx context.Context, c *models.FeeCollection, nextReceipt func() string, maxAttempts int) error {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		r.s.receiptAttempts++
		c.ReceiptNumber = nextReceipt()
		if r.s.receiptCollisions > 0 {
			r.s.receiptCollisions--
			continue
		}
		if r.receiptTaken(c.ReceiptNumber) {
			continue
		}
		c.ID = r.s.nextID()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
		stored := *c
		stored.Student, stored.CollectedBy, stored.Assignment = nil, nil, nil
		r.s.collections[c.ID] = stored
		return nil
	}
	return repository.ErrReceiptNumberExhausted
}

func (r *fakeCollectionRepo) List(ctx context.Context, query *repository.CollectionQuery) ([]models.FeeCollection, int64, error) {
	var out []models.FeeCollection
	for _, id := range sortedKeys(r.s.collections) {
		c := r.s.collections[id]
		if query.StudentID > 0 && c.StudentID != query.StudentID {
			continue
		}
		if query.StaffID > 0 && c.CollectedByStaffID != query.StaffID {
			continue
		}
		if query.Verified != nil && c.Verified != *query.Verified {
			continue
		}
		out = append(out, c)
	}
	return out, int64(len(out)), nil
}

func (r *fakeCollectionRepo) MarkVerified(ctx context.Context, id, by uint, at time.Time) (bool, error) {
	c, ok := r.s.collections[id]
	if !ok || c.Verified {
		return false, nil
	}
	c.Verified, c.VerifiedBy, c.VerifiedAt = true, &by, &at
	r.s.collections[id] = c
	return true, nil
}

func (r *fakeCollectionRepo) SetReceiptPath(ctx context.Context, id uint, path string) error {
	c := r.s.collections[id]
	c.ReceiptPath = &path
	r.s.collections[id] = c
	return nil
}

func (r *fakeCollectionRepo) Stats(ctx context.Context, now time.Time) (*repository.CollectionStats, error) {
	stats := &repository.CollectionStats{TodayTotal: decimal.Zero, MonthTotal: decimal.Zero}
	for _, c := range r.s.collections {
		stats.MonthCount++
		stats.MonthTotal = stats.MonthTotal.Add(c.Amount)
		if !c.Verified {
			stats.UnverifiedCount++
		}
	}
	return stats, nil
}

// ---- wallets ----

type fakeWalletRepo struct {
	s *fakeStore
}

func (r *fakeWalletRepo) FindByStaffID(ctx context.Context, staffID uint) (*models.StaffWallet, error) {
	w, ok := r.s.wallets[staffID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &w, nil
}

func (r *fakeWalletRepo) Ensure(ctx context.Context, staffID uint) error {
	if _, ok := r.s.wallets[staffID]; !ok {
		r.s.wallets[staffID] = *models.NewStaffWallet(staffID)
	}
	return nil
}

func (r *fakeWalletRepo) LockForUpdate(ctx context.Context, staffID uint) (*models.StaffWallet, error) {
	return r.FindByStaffID(ctx, staffID)
}

func (r *fakeWalletRepo) ApplyDelta(ctx context.Context, staffID uint, amount decimal.Decimal, at time.Time) error {
	w, ok := r.s.wallets[staffID]
	if !ok {
		return repository.ErrNoRowsAffected
	}
	w.Apply(amount, at)
	r.s.wallets[staffID] = w
	return nil
}

func (r *fakeWalletRepo) AppendEntry(ctx context.Context, e *models.WalletLedgerEntry) error {
	if r.s.ledgerErr != nil {
		return r.s.ledgerErr
	}
	e.ID = r.s.nextID()
	r.s.ledger = append(r.s.ledger, *e)
	return nil
}

func (r *fakeWalletRepo) entries(staffID uint) []models.WalletLedgerEntry {
	var out []models.WalletLedgerEntry
	for _, e := range r.s.ledger {
		if e.StaffID == staffID {
			out = append(out, e)
		}
	}
	return out
}

func (r *fakeWalletRepo) ListEntries(ctx context.Context, staffID uint, query *repository.LedgerQuery) ([]models.WalletLedgerEntry, int64, error) {
	out := r.entries(staffID)
	slices.Reverse(out)
	return out, int64(len(out)), nil
}

func (r *fakeWalletRepo) AllEntries(ctx context.Context, staffID uint) ([]models.WalletLedgerEntry, error) {
	return r.entries(staffID), nil
}

func (r *fakeWalletRepo) List(ctx context.Context, query *repository.ListQuery) ([]models.StaffWallet, int64, error) {
	var out []models.StaffWallet
	for _, id := range sortedKeys(r.s.wallets) {
		out = append(out, r.s.wallets[id])
	}
	return out, int64(len(out)), nil
}

func (r *fakeWalletRepo) Statistics(ctx context.Context, now time.Time) (*repository.WalletStatistics, error) {
	stats := &repository.WalletStatistics{
		TotalBalance:        decimal.Zero,
		TotalCollected:      decimal.Zero,
		TotalWithdrawn:      decimal.Zero,
		TodayCollectedTotal: decimal.Zero,
	}
	for _, w := range r.s.wallets {
		stats.WalletCount++
		if w.CurrentBalance.IsPositive() {
			stats.WalletsWithBalance++
		}
		stats.TotalBalance = stats.TotalBalance.Add(w.CurrentBalance)
		stats.TotalCollected = stats.TotalCollected.Add(w.TotalCollected)
		stats.TotalWithdrawn = stats.TotalWithdrawn.Add(w.TotalWithdrawn)
	}
	return stats, nil
}

// ---- audit / notifications / users ----

type fakeAuditRepo struct {
	s *fakeStore
}

func (r *fakeAuditRepo) Create(ctx context.Context, log *models.AuditLog) error {
	log.ID = r.s.nextID()
	r.s.audits = append(r.s.audits, *log)
	return nil
}

func (r *fakeAuditRepo) List(ctx context.Context, query *repository.ListQuery) ([]models.AuditLog, int64, error) {
	return r.s.audits, int64(len(r.s.audits)), nil
}

type fakeNotificationRepo struct {
	repository.NotificationRepository
	s *fakeStore
}

func (r *fakeNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	n.ID = r.s.nextID()
	r.s.notifications = append(r.s.notifications, *n)
	return nil
}

type fakeUserRepo struct {
	repository.UserRepository
	s *fakeStore
}

func (r *fakeUserRepo) FindByParentID(ctx context.Context, parentID uint) ([]models.User, error) {
	var out []models.User
	for _, u := range r.s.users {
		if u.ParentID != nil && *u.ParentID == parentID && u.Status == models.StatusActive {
			out = append(out, u)
		}
	}
	return out, nil
}

// ---- fixture ----

// fixture wires every service to one fakeStore with a small school:
// year 1 (default) with grades 5 and 6, students 10/11 in grade 5 and 12 in grade 6.
type fixture struct {
	store         *fakeStore
	tx            fakeTx
	audit         *AuditService
	engine        *AssignmentEngine
	categories    *FeeCategoryService
	structures    *FeeStructureService
	wallets       *WalletService
	collections   *CollectionService
	notifications *NotificationService
	now           time.Time
}

const (
	testYearID  uint = 1
	testStaffID uint = 7
	testAdminID uint = 99
	gradeFive   uint = 5
	gradeSix    uint = 6
)

func newFixture() *fixture {
	store := newFakeStore()
	store.seq = 1000
	store.years[testYearID] = models.AcademicYear{ID: testYearID, Name: "2026-2027", IsDefault: true, IsCurrent: true}
	parent := uint(500)
	year := testYearID
	store.students[10] = models.Student{ID: 10, FirstName: "Ana", LastName: "Lopez", GradeID: gradeFive, AcademicYearID: &year, ParentID: &parent, IsActive: true}
	store.students[11] = models.Student{ID: 11, FirstName: "Luis", LastName: "Diaz", GradeID: gradeFive, IsActive: true}
	store.students[12] = models.Student{ID: 12, FirstName: "Eva", LastName: "Ruiz", GradeID: gradeSix, AcademicYearID: &year, IsActive: true}
	store.students[13] = models.Student{ID: 13, FirstName: "Old", LastName: "Pupil", GradeID: gradeFive, AcademicYearID: &year, IsActive: false}
	store.staff[testStaffID] = models.Staff{ID: testStaffID, FullName: "Carla Cashier", IsActive: true}
	store.users = []models.User{{ID: 600, Email: "parent@example.com", Role: models.RoleParent, Status: models.StatusActive, ParentID: &parent}}

	tx := fakeTx{store: store}
	structureRepo := &fakeStructureRepo{s: store}
	assignmentRepo := &fakeAssignmentRepo{s: store}
	categoryRepo := &fakeCategoryRepo{s: store}
	directoryRepo := &fakeDirectoryRepo{s: store}

	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	cfg := &config.Config{ReceiptPrefix: "RCP", ReceiptMaxAttempts: 5, Currency: "USD", SchoolName: "Test School"}

	f := &fixture{store: store, tx: tx, now: now}
	f.audit = NewAuditService(&fakeAuditRepo{s: store})
	f.notifications = NewNotificationService(&fakeNotificationRepo{s: store}, &fakeUserRepo{s: store}, nil)
	f.engine = NewAssignmentEngine(structureRepo, assignmentRepo, directoryRepo, tx, f.audit)
	f.engine.now = func() time.Time { return now }
	f.categories = NewFeeCategoryService(categoryRepo, f.audit)
	f.structures = NewFeeStructureService(structureRepo, categoryRepo, assignmentRepo, directoryRepo, f.engine, tx, f.audit)
	f.wallets = NewWalletService(&fakeWalletRepo{s: store}, directoryRepo, tx, f.audit)
	f.wallets.now = func() time.Time { return now }
	f.collections = NewCollectionService(&fakeCollectionRepo{s: store}, assignmentRepo, structureRepo, categoryRepo, directoryRepo,
		f.engine, f.wallets, f.notifications, f.audit, nil, tx, cfg)
	f.collections.now = func() time.Time { return now }
	return f
}

func (f *fixture) addCategory(name string) uint {
	id := f.store.nextID()
	f.store.categories[id] = models.FeeCategory{ID: id, Name: name}
	return id
}

// addStructure seeds a catalogue structure directly, bypassing back-fill
func (f *fixture) addStructure(categoryID uint, scope models.FeeScope, amount string, mandatory bool) uint {
	id := f.store.nextID()
	st := models.FeeStructure{
		ID:              id,
		AcademicYearID:  testYearID,
		FeeCategoryID:   categoryID,
		Amount:          decimal.RequireFromString(amount),
		IsMandatory:     mandatory,
		MaxInstallments: 1,
		LateFeeAmount:   decimal.Zero,
		IsActive:        true,
	}
	st.SetScope(scope)
	f.store.structures[id] = st
	return id
}

func (f *fixture) assignment(id uint) models.StudentFeeAssignment {
	return f.store.assignments[id]
}

func (f *fixture) activeAssignments(studentID uint) []models.StudentFeeAssignment {
	var out []models.StudentFeeAssignment
	for _, id := range sortedKeys(f.store.assignments) {
		if a := f.store.assignments[id]; a.StudentID == studentID && a.IsActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func uintPtr(v uint) *uint {
	return &v
}
