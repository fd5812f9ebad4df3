// services/withdrawal_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"binary-referral-system/metrics"
	"binary-referral-system/models"
	"binary-referral-system/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WithdrawalService drives payout requests on top of Reserve/Release.
type WithdrawalService struct {
	DB          *gorm.DB
	Ledger      *LedgerService
	LockTimeout time.Duration
	Metrics     *metrics.Metrics
}

func NewWithdrawalService(db *gorm.DB, ledger *LedgerService, lockTimeout time.Duration, m *metrics.Metrics) *WithdrawalService {
	return &WithdrawalService{DB: db, Ledger: ledger, LockTimeout: lockTimeout, Metrics: m}
}

// WithdrawalRequest is a member's payout request.
type WithdrawalRequest struct {
	MemberID      string `json:"-"`
	Amount        int64  `json:"amount"`
	PayoutMethod  string `json:"payout_method"`
	PayoutDetails string `json:"payout_details"`
}

// WithdrawalDecision is an admin action on a pending request.
type WithdrawalDecision struct {
	AdminID               string `json:"-"`
	Note                  string `json:"admin_note"`
	ExternalTransactionID string `json:"external_transaction_id"`
}

// Request creates a PENDING withdrawal and holds the amount.
func (s *WithdrawalService) Request(ctx context.Context, req WithdrawalRequest) (*models.Withdrawal, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	method := models.PayoutMethod(strings.ToUpper(strings.TrimSpace(req.PayoutMethod)))
	if method != models.PayoutBank && method != models.PayoutUPI {
		return nil, fmt.Errorf("%w: payout method must be BANK or UPI", ErrInvalidWithdrawal)
	}
	if strings.TrimSpace(req.PayoutDetails) == "" {
		return nil, fmt.Errorf("%w: payout details required", ErrInvalidWithdrawal)
	}

	w := &models.Withdrawal{
		ID:            uuid.NewString(),
		MemberID:      req.MemberID,
		Amount:        req.Amount,
		PayoutMethod:  method,
		PayoutDetails: strings.TrimSpace(req.PayoutDetails),
		Status:        models.WithdrawalPending,
	}

	var hold *models.LedgerEntry
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyLockTimeout(tx, s.LockTimeout); err != nil {
			return classifyDBError(err)
		}
		if err := tx.Create(w).Error; err != nil {
			return classifyDBError(err)
		}
		entry, err := s.Ledger.Reserve(tx, Posting{
			AccountID:       req.MemberID,
			Amount:          req.Amount,
			RelatedEntityID: w.ID,
			IdempotencyKey:  "withdrawal_hold:" + w.ID,
			Metadata: map[string]any{
				"withdrawal_id": w.ID,
				"payout_method": string(method),
			},
		})
		if err != nil {
			return err
		}
		hold = entry
		return nil
	})
	if err != nil {
		return nil, classifyDBError(err)
	}

	s.Ledger.RecordCommitted(hold)
	s.Metrics.RecordWithdrawal(string(models.WithdrawalPending))
	log.Printf("✅ [WITHDRAWAL] %s requested %s via %s (%s)",
		w.MemberID, utils.FormatMinor(w.Amount, s.Ledger.Currency), w.PayoutMethod, w.ID)
	return w, nil
}

// Approve pays out the held amount.
func (s *WithdrawalService) Approve(ctx context.Context, id string, d WithdrawalDecision) (*models.Withdrawal, error) {
	return s.decide(ctx, id, d, ReleaseApproved)
}

// Reject returns the held amount to available. A note is required.
func (s *WithdrawalService) Reject(ctx context.Context, id string, d WithdrawalDecision) (*models.Withdrawal, error) {
	if strings.TrimSpace(d.Note) == "" {
		return nil, fmt.Errorf("%w: admin note required when rejecting", ErrInvalidWithdrawal)
	}
	return s.decide(ctx, id, d, ReleaseRejected)
}

func (s *WithdrawalService) decide(ctx context.Context, id string, d WithdrawalDecision, outcome ReleaseOutcome) (*models.Withdrawal, error) {
	var (
		w     models.Withdrawal
		entry *models.LedgerEntry
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyLockTimeout(tx, s.LockTimeout); err != nil {
			return classifyDBError(err)
		}
		if err := forUpdate(tx).First(&w, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrWithdrawalNotFound, id)
			}
			return classifyDBError(err)
		}
		if w.Status != models.WithdrawalPending {
			return fmt.Errorf("%w: %s is %s", ErrWithdrawalProcessed, id, w.Status)
		}

		var err error
		entry, err = s.Ledger.Release(tx, Posting{
			AccountID:       w.MemberID,
			Amount:          w.Amount,
			RelatedEntityID: w.ID,
			IdempotencyKey:  fmt.Sprintf("withdrawal_%s:%s", outcome, w.ID),
			Metadata: map[string]any{
				"withdrawal_id": w.ID,
				"admin_note":    d.Note,
			},
		}, outcome)
		if err != nil {
			return err
		}

		now := time.Now()
		w.Status = models.WithdrawalApproved
		if outcome == ReleaseRejected {
			w.Status = models.WithdrawalRejected
		}
		w.AdminNote = strings.TrimSpace(d.Note)
		w.ExternalTransactionID = strings.TrimSpace(d.ExternalTransactionID)
		w.ProcessedAt = &now
		if d.AdminID != "" {
			w.ProcessedBy = strPtr(d.AdminID)
		}
		return classifyDBError(tx.Save(&w).Error)
	})
	if err != nil {
		return nil, classifyDBError(err)
	}

	s.Ledger.RecordCommitted(entry)
	s.Metrics.RecordWithdrawal(string(w.Status))
	log.Printf("✅ [WITHDRAWAL] %s %s for %s", w.ID, w.Status, utils.FormatMinor(w.Amount, s.Ledger.Currency))
	return &w, nil
}

func (s *WithdrawalService) Get(ctx context.Context, id string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := s.DB.WithContext(ctx).First(&w, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrWithdrawalNotFound, id)
		}
		return nil, err
	}
	return &w, nil
}

// List returns withdrawals newest first; empty memberID or status means any.
func (s *WithdrawalService) List(ctx context.Context, memberID string, status models.WithdrawalStatus, page, size int) ([]models.Withdrawal, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	db := s.DB.WithContext(ctx).Model(&models.Withdrawal{})
	if memberID != "" {
		db = db.Where("member_id = ?", memberID)
	}
	if status != "" {
		db = db.Where("status = ?", status)
	}
	db = db.Session(&gorm.Session{})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Withdrawal
	if err := db.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
