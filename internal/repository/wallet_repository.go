package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/schoolfees-api/internal/database"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerQuery filters a wallet's ledger listing
type LedgerQuery struct {
	*ListQuery
	TransactionType string
	From            string
	To              string
}

// WalletStatistics aggregates every staff wallet
type WalletStatistics struct {
	WalletCount         int64           `json:"wallet_count"`
	WalletsWithBalance  int64           `json:"wallets_with_balance"`
	TotalBalance        decimal.Decimal `json:"total_balance"`
	TotalCollected      decimal.Decimal `json:"total_collected"`
	TotalWithdrawn      decimal.Decimal `json:"total_withdrawn"`
	LastTransactionAt   *time.Time      `json:"last_transaction_at"`
	TodayCollectedTotal decimal.Decimal `json:"today_collected_total"`
}

// WalletRepository defines the interface for staff wallet and ledger access
type WalletRepository interface {
	FindByStaffID(ctx context.Context, staffID uint) (*models.StaffWallet, error)
	Ensure(ctx context.Context, staffID uint) error
	LockForUpdate(ctx context.Context, staffID uint) (*models.StaffWallet, error)
	ApplyDelta(ctx context.Context, staffID uint, amount decimal.Decimal, at time.Time) error
	AppendEntry(ctx context.Context, entry *models.WalletLedgerEntry) error
	ListEntries(ctx context.Context, staffID uint, query *LedgerQuery) ([]models.WalletLedgerEntry, int64, error)
	AllEntries(ctx context.Context, staffID uint) ([]models.WalletLedgerEntry, error)
	List(ctx context.Context, query *ListQuery) ([]models.StaffWallet, int64, error)
	Statistics(ctx context.Context, now time.Time) (*WalletStatistics, error)
}

type walletRepository struct {
	db *gorm.DB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) FindByStaffID(ctx context.Context, staffID uint) (*models.StaffWallet, error) {
	var wallet models.StaffWallet
	err := database.Conn(ctx, r.db).
		Preload("Staff").
		Where("staff_id = ?", staffID).
		First(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Ensure creates an empty wallet unless one exists
func (r *walletRepository) Ensure(ctx context.Context, staffID uint) error {
	return database.Conn(ctx, r.db).
		Omit("Staff").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(models.NewStaffWallet(staffID)).Error
}

// LockForUpdate reads the wallet holding a row lock until the transaction ends
func (r *walletRepository) LockForUpdate(ctx context.Context, staffID uint) (*models.StaffWallet, error) {
	var wallet models.StaffWallet
	err := database.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("staff_id = ?", staffID).
		First(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// ApplyDelta moves the wallet by a signed amount as atomic increments.
// Positive amounts count as collected, negative ones as withdrawn.
func (r *walletRepository) ApplyDelta(ctx context.Context, staffID uint, amount decimal.Decimal, at time.Time) error {
	updates := map[string]interface{}{
		"current_balance":     gorm.Expr("current_balance + ?", amount),
		"last_transaction_at": at,
		"updated_at":          time.Now(),
	}
	if amount.IsPositive() {
		updates["total_collected"] = gorm.Expr("total_collected + ?", amount)
	} else {
		updates["total_withdrawn"] = gorm.Expr("total_withdrawn + ?", amount.Neg())
	}

	result := database.Conn(ctx, r.db).
		Model(&models.StaffWallet{}).
		Where("staff_id = ?", staffID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

func (r *walletRepository) AppendEntry(ctx context.Context, entry *models.WalletLedgerEntry) error {
	return database.Conn(ctx, r.db).Create(entry).Error
}

func (r *walletRepository) ListEntries(ctx context.Context, staffID uint, query *LedgerQuery) ([]models.WalletLedgerEntry, int64, error) {
	var entries []models.WalletLedgerEntry
	var total int64

	db := database.Conn(ctx, r.db).
		Model(&models.WalletLedgerEntry{}).
		Where("staff_id = ?", staffID)

	if query.TransactionType != "" {
		db = db.Where("transaction_type = ?", query.TransactionType)
	}
	if query.From != "" {
		db = db.Where("transaction_date >= ?", query.From)
	}
	if query.To != "" {
		db = db.Where("transaction_date <= ?", endOfDay(query.To))
	}

	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.ListQuery.paginate(db.Order("id DESC")).Find(&entries).Error
	return entries, total, err
}

// AllEntries returns the ledger in posting order
func (r *walletRepository) AllEntries(ctx context.Context, staffID uint) ([]models.WalletLedgerEntry, error) {
	var entries []models.WalletLedgerEntry
	err := database.Conn(ctx, r.db).
		Where("staff_id = ?", staffID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

func (r *walletRepository) List(ctx context.Context, query *ListQuery) ([]models.StaffWallet, int64, error) {
	var wallets []models.StaffWallet
	var total int64

	db := database.Conn(ctx, r.db).Model(&models.StaffWallet{})

	if query.Filter("has_balance") == "true" {
		db = db.Where("staff_wallets.current_balance > 0")
	}
	if query != nil && query.Search != "" {
		search := "%" + query.Search + "%"
		db = db.Joins("JOIN staff ON staff.id = staff_wallets.staff_id").
			Where("staff.full_name ILIKE ? OR staff.email ILIKE ?", search, search)
	}

	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = query.order(db, map[string]string{
		"current_balance":     "staff_wallets.current_balance",
		"total_collected":     "staff_wallets.total_collected",
		"last_transaction_at": "staff_wallets.last_transaction_at",
	}, "staff_wallets.current_balance DESC")

	err := query.paginate(db).Preload("Staff").Find(&wallets).Error
	return wallets, total, err
}

func (r *walletRepository) Statistics(ctx context.Context, now time.Time) (*WalletStatistics, error) {
	stats := &WalletStatistics{}
	db := database.Conn(ctx, r.db)

	if err := db.Model(&models.StaffWallet{}).
		Select(`COUNT(*) AS wallet_count,
			COUNT(*) FILTER (WHERE current_balance > 0) AS wallets_with_balance,
			COALESCE(SUM(current_balance), 0) AS total_balance,
			COALESCE(SUM(total_collected), 0) AS total_collected,
			COALESCE(SUM(total_withdrawn), 0) AS total_withdrawn,
			MAX(last_transaction_at) AS last_transaction_at`).
		Scan(stats).Error; err != nil {
		return nil, err
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var today struct{ Total decimal.Decimal }
	if err := db.Model(&models.WalletLedgerEntry{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("transaction_type = ? AND transaction_date >= ?", models.WalletTxCollection, dayStart).
		Scan(&today).Error; err != nil {
		return nil, err
	}
	stats.TodayCollectedTotal = today.Total

	return stats, nil
}
