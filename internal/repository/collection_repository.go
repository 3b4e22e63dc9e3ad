package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/schoolfees-api/internal/database"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/pkg/logger"
	"gorm.io/gorm"
)

// ErrReceiptNumberExhausted is returned when every receipt candidate collided
var ErrReceiptNumberExhausted = errors.New("could not allocate a unique receipt number")

const receiptNumberConstraint = "fee_collections_receipt_number_key"

// CollectionQuery filters fee collection listings
type CollectionQuery struct {
	*ListQuery
	StudentID     uint
	StaffID       uint
	PaymentMethod string
	Verified      *bool
	From          string
	To            string
}

// MethodTotal is a per payment method aggregate
type MethodTotal struct {
	PaymentMethod string          `json:"payment_method"`
	Count         int64           `json:"count"`
	Total         decimal.Decimal `json:"total"`
}

// CollectionStats summarizes collections for dashboards
type CollectionStats struct {
	TodayCount      int64           `json:"today_count"`
	TodayTotal      decimal.Decimal `json:"today_total"`
	MonthCount      int64           `json:"month_count"`
	MonthTotal      decimal.Decimal `json:"month_total"`
	UnverifiedCount int64           `json:"unverified_count"`
	ByMethod        []MethodTotal   `json:"by_method"`
}

// CollectionRepository defines the interface for fee collection access
type CollectionRepository interface {
	FindByID(ctx context.Context, id uint) (*models.FeeCollection, error)
	CreateWithReceipt(ctx context.Context, collection *models.FeeCollection, nextReceipt func() string, maxAttempts int) error
	List(ctx context.Context, query *CollectionQuery) ([]models.FeeCollection, int64, error)
	MarkVerified(ctx context.Context, id, verifiedBy uint, at time.Time) (bool, error)
	SetReceiptPath(ctx context.Context, id uint, path string) error
	Stats(ctx context.Context, now time.Time) (*CollectionStats, error)
}

type collectionRepository struct {
	db *gorm.DB
}

// NewCollectionRepository creates a new collection repository
func NewCollectionRepository(db *gorm.DB) CollectionRepository {
	return &collectionRepository{db: db}
}

func (r *collectionRepository) FindByID(ctx context.Context, id uint) (*models.FeeCollection, error) {
	var collection models.FeeCollection
	err := database.Conn(ctx, r.db).
		Preload("Student").
		Preload("CollectedBy").
		Preload("Assignment.FeeStructure", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Assignment.FeeStructure.FeeCategory", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		First(&collection, id).Error
	if err != nil {
		return nil, err
	}
	return &collection, nil
}

// CreateWithReceipt inserts the collection under a fresh receipt number,
// retrying on receipt collisions. Inside a transaction each attempt is wrapped
// in a savepoint so a collision does not abort the surrounding work.
func (r *collectionRepository) CreateWithReceipt(ctx context.Context, collection *models.FeeCollection, nextReceipt func() string, maxAttempts int) error {
	db := database.Conn(ctx, r.db)
	inTx := database.InTransaction(ctx)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		savepoint := fmt.Sprintf("receipt_attempt_%d", attempt)
		collection.ID = 0
		collection.ReceiptNumber = nextReceipt()

		if inTx {
			if err := db.SavePoint(savepoint).Error; err != nil {
				return err
			}
		}

		err := db.Omit("Student", "CollectedBy", "Assignment").Create(collection).Error
		if err == nil {
			return nil
		}
		if !isDuplicateKeyError(err, receiptNumberConstraint) {
			return err
		}

		if inTx {
			if err := db.RollbackTo(savepoint).Error; err != nil {
				return err
			}
		}
		logger.Warn("Receipt number collision, retrying",
			"receipt_number", collection.ReceiptNumber,
			"attempt", attempt,
		)
	}

	return ErrReceiptNumberExhausted
}

func (r *collectionRepository) List(ctx context.Context, query *CollectionQuery) ([]models.FeeCollection, int64, error) {
	var collections []models.FeeCollection
	var total int64

	db := database.Conn(ctx, r.db).Model(&models.FeeCollection{})

	if query.StudentID > 0 {
		db = db.Where("fee_collections.student_id = ?", query.StudentID)
	}
	if query.StaffID > 0 {
		db = db.Where("fee_collections.collected_by_staff_id = ?", query.StaffID)
	}
	if query.PaymentMethod != "" {
		db = db.Where("fee_collections.payment_method = ?", query.PaymentMethod)
	}
	if query.Verified != nil {
		db = db.Where("fee_collections.verified = ?", *query.Verified)
	}
	if query.From != "" {
		db = db.Where("fee_collections.collection_date >= ?", query.From)
	}
	if query.To != "" {
		db = db.Where("fee_collections.collection_date <= ?", endOfDay(query.To))
	}
	if query.ListQuery != nil && query.Search != "" {
		search := "%" + query.Search + "%"
		db = db.Joins("LEFT JOIN students ON students.id = fee_collections.student_id").
			Where("fee_collections.receipt_number ILIKE ? OR students.first_name ILIKE ? OR students.last_name ILIKE ? OR students.admission_no ILIKE ?",
				search, search, search, search)
	}

	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = query.ListQuery.order(db, map[string]string{
		"amount":          "fee_collections.amount",
		"collection_date": "fee_collections.collection_date",
		"receipt_number":  "fee_collections.receipt_number",
	}, "fee_collections.collection_date DESC, fee_collections.id DESC")

	err := query.ListQuery.paginate(db).
		Preload("Student").
		Preload("CollectedBy").
		Preload("Assignment.FeeStructure", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Assignment.FeeStructure.FeeCategory", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Find(&collections).Error
	return collections, total, err
}

// MarkVerified flags an unverified collection. Returns false if it was already verified.
func (r *collectionRepository) MarkVerified(ctx context.Context, id, verifiedBy uint, at time.Time) (bool, error) {
	result := database.Conn(ctx, r.db).
		Model(&models.FeeCollection{}).
		Where("id = ? AND verified = ?", id, false).
		Updates(map[string]interface{}{
			"verified":    true,
			"verified_by": verifiedBy,
			"verified_at": at,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *collectionRepository) SetReceiptPath(ctx context.Context, id uint, path string) error {
	return database.Conn(ctx, r.db).
		Model(&models.FeeCollection{}).
		Where("id = ?", id).
		Update("receipt_path", path).Error
}

func (r *collectionRepository) Stats(ctx context.Context, now time.Time) (*CollectionStats, error) {
	stats := &CollectionStats{ByMethod: []MethodTotal{}}
	db := database.Conn(ctx, r.db)

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	type aggregate struct {
		Count int64
		Total decimal.Decimal
	}

	var today aggregate
	if err := db.Model(&models.FeeCollection{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("collection_date >= ?", dayStart).
		Scan(&today).Error; err != nil {
		return nil, err
	}
	stats.TodayCount, stats.TodayTotal = today.Count, today.Total

	var month aggregate
	if err := db.Model(&models.FeeCollection{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("collection_date >= ?", monthStart).
		Scan(&month).Error; err != nil {
		return nil, err
	}
	stats.MonthCount, stats.MonthTotal = month.Count, month.Total

	if err := db.Model(&models.FeeCollection{}).
		Where("verified = ?", false).
		Count(&stats.UnverifiedCount).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&models.FeeCollection{}).
		Select("payment_method, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("collection_date >= ?", monthStart).
		Group("payment_method").
		Order("payment_method").
		Scan(&stats.ByMethod).Error; err != nil {
		return nil, err
	}

	return stats, nil
}
