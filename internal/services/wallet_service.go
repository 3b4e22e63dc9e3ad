package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/schoolfees-api/internal/database"
	"github.com/sjperalta/schoolfees-api/internal/metrics"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/internal/repository"
	"github.com/sjperalta/schoolfees-api/pkg/logger"
	"gorm.io/gorm"
)

// WalletMovement is the outcome of a posted wallet transaction
type WalletMovement struct {
	Wallet *models.StaffWallet       `json:"wallet"`
	Entry  *models.WalletLedgerEntry `json:"entry"`
}

// LedgerDiscrepancy is a ledger row whose recorded balance breaks the running sum
type LedgerDiscrepancy struct {
	EntryID  uint            `json:"entry_id"`
	Expected decimal.Decimal `json:"expected_balance"`
	Recorded decimal.Decimal `json:"recorded_balance"`
}

// ReconcileReport compares a wallet against a replay of its ledger
type ReconcileReport struct {
	StaffID          uint                `json:"staff_id"`
	CurrentBalance   decimal.Decimal     `json:"current_balance"`
	LedgerBalance    decimal.Decimal     `json:"ledger_balance"`
	TotalCollected   decimal.Decimal     `json:"total_collected"`
	LedgerCollected  decimal.Decimal     `json:"ledger_collected"`
	TotalWithdrawn   decimal.Decimal     `json:"total_withdrawn"`
	LedgerWithdrawn  decimal.Decimal     `json:"ledger_withdrawn"`
	EntryCount       int                 `json:"entry_count"`
	TotalsConsistent bool                `json:"totals_consistent"`
	Balanced         bool                `json:"balanced"`
	Discrepancies    []LedgerDiscrepancy `json:"discrepancies"`
}

// WalletService keeps each staff member's cash-in-hand ledger
type WalletService struct {
	repo      repository.WalletRepository
	directory repository.DirectoryRepository
	tx        database.Transactor
	auditSvc  *AuditService
	now       func() time.Time
}

// NewWalletService creates a new wallet service
func NewWalletService(
	repo repository.WalletRepository,
	directory repository.DirectoryRepository,
	tx database.Transactor,
	auditSvc *AuditService,
) *WalletService {
	return &WalletService{
		repo:      repo,
		directory: directory,
		tx:        tx,
		auditSvc:  auditSvc,
		now:       time.Now,
	}
}

// posting describes one ledger movement
type posting struct {
	staffID      uint
	amount       decimal.Decimal
	txType       string
	description  string
	createdBy    *uint
	collectionID *uint
	// check runs against the locked wallet before anything is written
	check func(w *models.StaffWallet) error
}

// post locks the wallet row, appends the ledger entry and moves the totals,
// all inside one transaction (joining the caller's when there is one).
func (s *WalletService) post(ctx context.Context, p posting) (*WalletMovement, error) {
	var movement *WalletMovement
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Ensure(ctx, p.staffID); err != nil {
			return err
		}
		wallet, err := s.repo.LockForUpdate(ctx, p.staffID)
		if err != nil {
			return err
		}
		if p.check != nil {
			if err := p.check(wallet); err != nil {
				return err
			}
		}

		now := s.now()
		if err := s.repo.ApplyDelta(ctx, p.staffID, p.amount, now); err != nil {
			return err
		}
		entry := &models.WalletLedgerEntry{
			StaffID:         p.staffID,
			TransactionType: p.txType,
			Amount:          p.amount,
			Balance:         wallet.CurrentBalance.Add(p.amount),
			Description:     p.description,
			TransactionDate: now,
			CreatedBy:       p.createdBy,
			FeeCollectionID: p.collectionID,
		}
		if err := s.repo.AppendEntry(ctx, entry); err != nil {
			return err
		}

		wallet.Apply(p.amount, now)
		movement = &WalletMovement{Wallet: wallet, Entry: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveWalletMovement(p.txType, p.amount)
	return movement, nil
}

// PostCollection credits a collected payment to the collecting staff member.
// It must run in the same transaction as the collection insert.
func (s *WalletService) PostCollection(ctx context.Context, staffID uint, amount decimal.Decimal, collectionID uint, description string) (*WalletMovement, error) {
	if !amount.IsPositive() {
		return nil, fieldError("amount", "must be greater than zero")
	}
	return s.post(ctx, posting{
		staffID:      staffID,
		amount:       amount,
		txType:       models.WalletTxCollection,
		description:  description,
		collectionID: &collectionID,
	})
}

// Withdraw records cash handed over by a staff member
func (s *WalletService) Withdraw(ctx context.Context, staffID uint, amount decimal.Decimal, adminID uint, description string) (*WalletMovement, error) {
	if !amount.IsPositive() {
		return nil, fieldError("amount", "must be greater than zero")
	}
	if err := s.ensureStaff(ctx, staffID); err != nil {
		return nil, err
	}

	movement, err := s.post(ctx, posting{
		staffID:     staffID,
		amount:      amount.Neg(),
		txType:      models.WalletTxWithdrawal,
		description: defaultDescription(description, "Cash withdrawal"),
		createdBy:   &adminID,
		check: func(w *models.StaffWallet) error {
			if amount.GreaterThan(w.CurrentBalance) {
				return fmt.Errorf("%w: balance %s, requested %s",
					ErrInsufficientBalance, w.CurrentBalance.StringFixed(2), amount.StringFixed(2))
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, adminID, models.AuditActionWithdraw, models.AuditEntityStaffWallet, staffID,
		fmt.Sprintf("Withdrew %s, balance now %s", amount.StringFixed(2), movement.Wallet.CurrentBalance.StringFixed(2)))
	return movement, nil
}

// ClearBalance withdraws the whole balance in a single entry
func (s *WalletService) ClearBalance(ctx context.Context, staffID, adminID uint, description string) (*WalletMovement, error) {
	if err := s.ensureStaff(ctx, staffID); err != nil {
		return nil, err
	}

	var cleared decimal.Decimal
	var movement *WalletMovement
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Ensure(ctx, staffID); err != nil {
			return err
		}
		wallet, err := s.repo.LockForUpdate(ctx, staffID)
		if err != nil {
			return err
		}
		if !wallet.CurrentBalance.IsPositive() {
			return fieldError("balance", "wallet balance is already zero")
		}
		cleared = wallet.CurrentBalance

		movement, err = s.post(ctx, posting{
			staffID:     staffID,
			amount:      cleared.Neg(),
			txType:      models.WalletTxWithdrawal,
			description: defaultDescription(description, "Balance cleared"),
			createdBy:   &adminID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, adminID, models.AuditActionClear, models.AuditEntityStaffWallet, staffID,
		fmt.Sprintf("Cleared balance of %s", cleared.StringFixed(2)))
	return movement, nil
}

// Adjust applies a signed correction. The balance may not go below zero.
func (s *WalletService) Adjust(ctx context.Context, staffID uint, amount decimal.Decimal, adminID uint, description string) (*WalletMovement, error) {
	verr := &ValidationError{}
	if amount.IsZero() {
		verr.add("amount", "must not be zero")
	}
	if strings.TrimSpace(description) == "" {
		verr.add("description", "is required for adjustments")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	if err := s.ensureStaff(ctx, staffID); err != nil {
		return nil, err
	}

	movement, err := s.post(ctx, posting{
		staffID:     staffID,
		amount:      amount,
		txType:      models.WalletTxAdjustment,
		description: strings.TrimSpace(description),
		createdBy:   &adminID,
		check: func(w *models.StaffWallet) error {
			if w.CurrentBalance.Add(amount).IsNegative() {
				return fmt.Errorf("%w: balance %s, adjustment %s",
					ErrInsufficientBalance, w.CurrentBalance.StringFixed(2), amount.StringFixed(2))
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, adminID, models.AuditActionAdjust, models.AuditEntityStaffWallet, staffID,
		fmt.Sprintf("Adjusted by %s: %s", amount.StringFixed(2), strings.TrimSpace(description)))
	return movement, nil
}

// GetWallet returns the staff wallet, creating an empty one on first access
func (s *WalletService) GetWallet(ctx context.Context, staffID uint) (*models.StaffWallet, error) {
	wallet, err := s.repo.FindByStaffID(ctx, staffID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if err := s.ensureStaff(ctx, staffID); err != nil {
		return nil, err
	}
	if err := s.repo.Ensure(ctx, staffID); err != nil {
		return nil, err
	}
	return s.repo.FindByStaffID(ctx, staffID)
}

// Ledger lists a staff member's wallet entries, newest first
func (s *WalletService) Ledger(ctx context.Context, staffID uint, query *repository.LedgerQuery) ([]models.WalletLedgerEntry, int64, error) {
	if err := s.ensureStaff(ctx, staffID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListEntries(ctx, staffID, query)
}

func (s *WalletService) List(ctx context.Context, query *repository.ListQuery) ([]models.StaffWallet, int64, error) {
	return s.repo.List(ctx, query)
}

func (s *WalletService) Statistics(ctx context.Context) (*repository.WalletStatistics, error) {
	return s.repo.Statistics(ctx, s.now())
}

// Reconcile replays the ledger and compares it with the wallet totals
func (s *WalletService) Reconcile(ctx context.Context, staffID uint) (*ReconcileReport, error) {
	wallet, err := s.GetWallet(ctx, staffID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.AllEntries(ctx, staffID)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{
		StaffID:         staffID,
		CurrentBalance:  wallet.CurrentBalance,
		TotalCollected:  wallet.TotalCollected,
		TotalWithdrawn:  wallet.TotalWithdrawn,
		LedgerBalance:   decimal.Zero,
		LedgerCollected: decimal.Zero,
		LedgerWithdrawn: decimal.Zero,
		EntryCount:      len(entries),
		Discrepancies:   []LedgerDiscrepancy{},
	}

	for _, e := range entries {
		report.LedgerBalance = report.LedgerBalance.Add(e.Amount)
		if e.Amount.IsPositive() {
			report.LedgerCollected = report.LedgerCollected.Add(e.Amount)
		} else {
			report.LedgerWithdrawn = report.LedgerWithdrawn.Add(e.Amount.Neg())
		}
		if !e.Balance.Equal(report.LedgerBalance) {
			report.Discrepancies = append(report.Discrepancies, LedgerDiscrepancy{
				EntryID:  e.ID,
				Expected: report.LedgerBalance,
				Recorded: e.Balance,
			})
		}
	}

	report.TotalsConsistent = wallet.IsBalanced() &&
		report.LedgerCollected.Equal(wallet.TotalCollected) &&
		report.LedgerWithdrawn.Equal(wallet.TotalWithdrawn)
	report.Balanced = report.LedgerBalance.Equal(wallet.CurrentBalance) &&
		len(report.Discrepancies) == 0 &&
		report.TotalsConsistent

	if !report.Balanced {
		logger.Warn("Wallet ledger does not reconcile",
			"staff_id", staffID,
			"current_balance", wallet.CurrentBalance.String(),
			"ledger_balance", report.LedgerBalance.String(),
			"discrepancies", len(report.Discrepancies),
		)
	}
	return report, nil
}

func (s *WalletService) ensureStaff(ctx context.Context, staffID uint) error {
	if _, err := s.directory.FindStaff(ctx, staffID); err != nil {
		return notFound("staff", err)
	}
	return nil
}

func defaultDescription(desc, fallback string) string {
	if d := strings.TrimSpace(desc); d != "" {
		return d
	}
	return fallback
}
