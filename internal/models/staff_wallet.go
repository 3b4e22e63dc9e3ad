package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StaffWallet tracks cash a staff member collected and has not remitted.
// CurrentBalance always equals TotalCollected - TotalWithdrawn.
type StaffWallet struct {
	StaffID           uint            `gorm:"primaryKey;autoIncrement:false" json:"staff_id"`
	CurrentBalance    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"current_balance"`
	TotalCollected    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_collected"`
	TotalWithdrawn    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_withdrawn"`
	LastTransactionAt *time.Time      `json:"last_transaction_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	// Associations
	Staff *Staff `gorm:"foreignKey:StaffID" json:"staff,omitempty"`
}

// TableName specifies the table name for StaffWallet
func (StaffWallet) TableName() string {
	return "staff_wallets"
}

// NewStaffWallet returns an empty wallet
func NewStaffWallet(staffID uint) *StaffWallet {
	return &StaffWallet{
		StaffID:        staffID,
		CurrentBalance: decimal.Zero,
		TotalCollected: decimal.Zero,
		TotalWithdrawn: decimal.Zero,
	}
}

// IsBalanced checks current == collected - withdrawn
func (w *StaffWallet) IsBalanced() bool {
	return w.CurrentBalance.Equal(w.TotalCollected.Sub(w.TotalWithdrawn))
}

// Apply moves the wallet totals by a signed amount. Positive amounts count as
// collected, negative ones as withdrawn.
func (w *StaffWallet) Apply(amount decimal.Decimal, at time.Time) {
	w.CurrentBalance = w.CurrentBalance.Add(amount)
	if amount.IsPositive() {
		w.TotalCollected = w.TotalCollected.Add(amount)
	} else {
		w.TotalWithdrawn = w.TotalWithdrawn.Add(amount.Neg())
	}
	w.LastTransactionAt = &at
}

// Wallet ledger transaction types
const (
	WalletTxCollection = "collection"
	WalletTxWithdrawal = "withdrawal"
	WalletTxAdjustment = "adjustment"
)

// WalletLedgerEntry is an append-only record of one wallet movement. Balance is
// the wallet balance right after this entry.
type WalletLedgerEntry struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	StaffID         uint            `gorm:"not null;index" json:"staff_id"`
	TransactionType string          `gorm:"size:20;not null;index" json:"transaction_type"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Balance         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"balance"`
	Description     string          `gorm:"type:text" json:"description"`
	TransactionDate time.Time       `gorm:"not null;index" json:"transaction_date"`
	CreatedBy       *uint           `json:"created_by"`
	FeeCollectionID *uint           `gorm:"index" json:"fee_collection_id"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TableName specifies the table name for WalletLedgerEntry
func (WalletLedgerEntry) TableName() string {
	return "staff_wallet_ledger"
}
