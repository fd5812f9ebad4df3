// services/ledger_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"binary-referral-system/metrics"
	"binary-referral-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerService is the single source of truth for balances. Every mutator
// takes the caller's transaction so it commits or rolls back with it.
type LedgerService struct {
	DB       *gorm.DB
	Currency string
	Metrics  *metrics.Metrics
}

func NewLedgerService(db *gorm.DB, currency string, m *metrics.Metrics) *LedgerService {
	return &LedgerService{DB: db, Currency: currency, Metrics: m}
}

// Posting describes one ledger line to write.
type Posting struct {
	AccountID       string
	Amount          int64
	Reason          models.LedgerReason
	RelatedEntityID string
	IdempotencyKey  string
	Metadata        map[string]any
}

// ReleaseOutcome selects what happens to locked funds.
type ReleaseOutcome string

const (
	ReleaseApproved ReleaseOutcome = "approved"
	ReleaseRejected ReleaseOutcome = "rejected"
)

var creditReasons = map[models.LedgerReason]bool{
	models.ReasonJoinBonus:        true,
	models.ReasonSelfPairBonus:    true,
	models.ReasonSponsorPairBonus: true,
	models.ReasonRefundCredit:     true,
}

// OpenAccount creates the account if missing and returns it.
func (s *LedgerService) OpenAccount(tx *gorm.DB, accountID string) (*models.Account, error) {
	acct := models.Account{ID: accountID, Currency: s.Currency}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&acct).Error; err != nil {
		return nil, classifyDBError(err)
	}
	var out models.Account
	if err := tx.First(&out, "id = ?", accountID).Error; err != nil {
		return nil, classifyDBError(err)
	}
	return &out, nil
}

// Credit adds amount to the available balance. The account must already
// exist; registration opens it.
func (s *LedgerService) Credit(tx *gorm.DB, p Posting) (*models.LedgerEntry, error) {
	if !creditReasons[p.Reason] {
		return nil, fmt.Errorf("%w: %s is not a credit reason", ErrInvalidReason, p.Reason)
	}
	if p.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.post(tx, p, models.DirectionCredit, p.Amount, 0)
}

// Debit removes amount from the available balance. Fails with
// ErrInsufficientFunds when available < amount.
func (s *LedgerService) Debit(tx *gorm.DB, p Posting) (*models.LedgerEntry, error) {
	if p.Reason == "" {
		p.Reason = models.ReasonPurchaseDebit
	}
	if p.Reason != models.ReasonPurchaseDebit {
		return nil, fmt.Errorf("%w: %s is not a debit reason", ErrInvalidReason, p.Reason)
	}
	if p.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.post(tx, p, models.DirectionDebit, -p.Amount, 0)
}

// Reserve moves amount from available to locked (WITHDRAWAL_HOLD).
func (s *LedgerService) Reserve(tx *gorm.DB, p Posting) (*models.LedgerEntry, error) {
	if p.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	p.Reason = models.ReasonWithdrawalHold
	return s.post(tx, p, models.DirectionDebit, -p.Amount, p.Amount)
}

// Release settles locked funds: approved removes them (WITHDRAWAL_PAYOUT),
// rejected returns them to available (WITHDRAWAL_REFUND).
func (s *LedgerService) Release(tx *gorm.DB, p Posting, outcome ReleaseOutcome) (*models.LedgerEntry, error) {
	if p.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	switch outcome {
	case ReleaseApproved:
		p.Reason = models.ReasonWithdrawalPayout
		return s.post(tx, p, models.DirectionDebit, 0, -p.Amount)
	case ReleaseRejected:
		p.Reason = models.ReasonWithdrawalRefund
		return s.post(tx, p, models.DirectionCredit, p.Amount, -p.Amount)
	default:
		return nil, fmt.Errorf("%w: unknown release outcome %q", ErrInvalidReason, outcome)
	}
}

// post locks the account row, checks both buckets stay non-negative, writes
// the entry and applies the deltas.
func (s *LedgerService) post(tx *gorm.DB, p Posting, dir models.Direction, dAvailable, dLocked int64) (*models.LedgerEntry, error) {
	var acct models.Account
	if err := forUpdate(tx).First(&acct, "id = ?", p.AccountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, p.AccountID)
		}
		return nil, classifyDBError(err)
	}

	if acct.Available+dAvailable < 0 {
		return nil, fmt.Errorf("%w: available %d, requested %d", ErrInsufficientFunds, acct.Available, p.Amount)
	}
	if acct.Locked+dLocked < 0 {
		return nil, fmt.Errorf("%w: locked %d, requested %d", ErrInsufficientFunds, acct.Locked, p.Amount)
	}

	entry := models.LedgerEntry{
		ID:             uuid.NewString(),
		AccountID:      p.AccountID,
		Direction:      dir,
		Amount:         p.Amount,
		Reason:         p.Reason,
		AvailableDelta: dAvailable,
		LockedDelta:    dLocked,
	}
	if p.RelatedEntityID != "" {
		entry.RelatedEntityID = strPtr(p.RelatedEntityID)
	}
	if p.IdempotencyKey != "" {
		entry.IdempotencyKey = strPtr(p.IdempotencyKey)
	}
	if len(p.Metadata) > 0 {
		raw, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode ledger metadata: %w", err)
		}
		entry.MetadataJSON = string(raw)
		entry.Metadata = p.Metadata
	}

	if err := tx.Create(&entry).Error; err != nil {
		if p.IdempotencyKey != "" && isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, p.IdempotencyKey)
		}
		return nil, classifyDBError(err)
	}

	if err := tx.Model(&models.Account{}).Where("id = ?", p.AccountID).Updates(map[string]any{
		"available": gorm.Expr("available + ?", dAvailable),
		"locked":    gorm.Expr("locked + ?", dLocked),
	}).Error; err != nil {
		return nil, classifyDBError(err)
	}

	return &entry, nil
}

// RecordCommitted feeds committed entries into the metrics.
func (s *LedgerService) RecordCommitted(entries ...*models.LedgerEntry) {
	for _, e := range entries {
		if e != nil {
			s.Metrics.RecordLedgerEntry(string(e.Reason), e.Amount)
		}
	}
}

// --- Reads ---

// GetAccount returns the cached balance of an account.
func (s *LedgerService) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	var acct models.Account
	if err := s.DB.WithContext(ctx).First(&acct, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
		}
		return nil, err
	}
	return &acct, nil
}

// EntryPage is one page of an account's ledger, newest first.
type EntryPage struct {
	Entries []models.LedgerEntry `json:"entries"`
	Total   int64                `json:"total"`
	Page    int                  `json:"page"`
	Size    int                  `json:"size"`
}

// ListEntries returns one page of an account's entries, newest first.
func (s *LedgerService) ListEntries(ctx context.Context, accountID string, page, size int) (*EntryPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}

	db := s.DB.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("account_id = ?", accountID).
		Session(&gorm.Session{})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, err
	}

	var entries []models.LedgerEntry
	if err := db.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].DecodeMetadata()
	}

	return &EntryPage{Entries: entries, Total: total, Page: page, Size: size}, nil
}

// WalletSummary is the balance plus the latest entries.
type WalletSummary struct {
	Account *models.Account      `json:"account"`
	Recent  []models.LedgerEntry `json:"recent"`
}

// Summary returns the balance with the ten most recent entries.
func (s *LedgerService) Summary(ctx context.Context, accountID string) (*WalletSummary, error) {
	acct, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	page, err := s.ListEntries(ctx, accountID, 1, 10)
	if err != nil {
		return nil, err
	}
	return &WalletSummary{Account: acct, Recent: page.Entries}, nil
}

// Discrepancy is an account whose cache disagrees with its entries.
type Discrepancy struct {
	AccountID      string `json:"account_id"`
	Available      int64  `json:"available"`
	Locked         int64  `json:"locked"`
	EntryAvailable int64  `json:"entry_available"`
	EntryLocked    int64  `json:"entry_locked"`
}

// Reconcile recomputes every account's balance from its entries.
func (s *LedgerService) Reconcile(ctx context.Context) ([]Discrepancy, error) {
	var out []Discrepancy
	err := s.DB.WithContext(ctx).Raw(`
		SELECT a.id AS account_id, a.available, a.locked,
			COALESCE(SUM(e.available_delta), 0) AS entry_available,
			COALESCE(SUM(e.locked_delta), 0) AS entry_locked
		FROM accounts a
		LEFT JOIN ledger_entries e ON e.account_id = a.id
		GROUP BY a.id, a.available, a.locked
		HAVING a.available <> COALESCE(SUM(e.available_delta), 0)
			OR a.locked <> COALESCE(SUM(e.locked_delta), 0)
		ORDER BY a.id
	`).Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("reconcile query failed: %w", err)
	}
	for _, d := range out {
		log.Printf("⚠️ [RECONCILE] account %s cached=%d/%d entries=%d/%d",
			d.AccountID, d.Available, d.Locked, d.EntryAvailable, d.EntryLocked)
	}
	return out, nil
}
