// services/registration.go
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

	"gorm.io/gorm"
)

const (
	maxMemberIDLength = 64
	policySettingKey  = "structure_policy"
)

// RegistrationService runs the externally visible register operation: one
// transaction covering member creation, placement, the join bonus, counter
// propagation and pair evaluation.
type RegistrationService struct {
	DB          *gorm.DB
	Policy      string
	JoinBonus   int64
	LockTimeout time.Duration

	Directory *MembershipDirectory
	Placement *PlacementEngine
	Evaluator *PairBonusEvaluator
	Ledger    *LedgerService
	Metrics   *metrics.Metrics
}

// RegistrationOptions carries the tunables of NewRegistrationService.
type RegistrationOptions struct {
	Policy                 string
	JoinBonusAmount        int64
	SelfPairBonusAmount    int64
	SponsorPairBonusAmount int64
	LockTimeout            time.Duration
}

func NewRegistrationService(db *gorm.DB, ledger *LedgerService, opts RegistrationOptions, m *metrics.Metrics) *RegistrationService {
	directory := NewMembershipDirectory(db)
	return &RegistrationService{
		DB:          db,
		Policy:      opts.Policy,
		JoinBonus:   opts.JoinBonusAmount,
		LockTimeout: opts.LockTimeout,
		Directory:   directory,
		Placement:   NewPlacementEngine(opts.Policy, directory),
		Evaluator:   NewPairBonusEvaluator(opts.Policy, directory, ledger, opts.SelfPairBonusAmount, opts.SponsorPairBonusAmount),
		Ledger:      ledger,
		Metrics:     m,
	}
}

// RegistrationRequest is the "new member + sponsor reference" event.
type RegistrationRequest struct {
	MemberID  string `json:"member_id"`
	SponsorID string `json:"sponsor_id"`
	Side      string `json:"side"`
}

// RegistrationResult is returned once the transaction has committed.
type RegistrationResult struct {
	MemberID  string        `json:"member_id"`
	SponsorID string        `json:"sponsor_id"`
	Placement *Placement    `json:"placement"`
	JoinBonus int64         `json:"join_bonus"`
	Credits   []BonusCredit `json:"credits"`
}

// EnsurePolicy pins the structure policy on first boot and refuses to run
// under a different one afterwards.
func (s *RegistrationService) EnsurePolicy(ctx context.Context) error {
	setting := models.EngineSetting{Key: policySettingKey, Value: s.Policy}
	if err := s.DB.WithContext(ctx).
		Where(models.EngineSetting{Key: policySettingKey}).
		FirstOrCreate(&setting).Error; err != nil {
		return fmt.Errorf("failed to load structure policy: %w", err)
	}
	if setting.Value != s.Policy {
		return fmt.Errorf("%w: persisted %q, configured %q", ErrPolicyMismatch, setting.Value, s.Policy)
	}
	return nil
}

func validateMemberID(id string) error {
	if id == "" || len(id) > maxMemberIDLength || strings.TrimSpace(id) != id {
		return fmt.Errorf("%w: member id %q", ErrInvalidReferral, id)
	}
	return nil
}

// RegisterRoot creates a sponsorless member at the top of a network.
func (s *RegistrationService) RegisterRoot(ctx context.Context, memberID string) (*models.Member, error) {
	if err := validateMemberID(memberID); err != nil {
		return nil, err
	}

	var member *models.Member
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyLockTimeout(tx, s.LockTimeout); err != nil {
			return classifyDBError(err)
		}
		m, err := s.Directory.Create(tx, memberID, nil)
		if err != nil {
			return err
		}
		if err := createRootNode(tx, memberID); err != nil {
			return err
		}
		if _, err := s.Ledger.OpenAccount(tx, memberID); err != nil {
			return err
		}
		member = m
		return nil
	})
	if err != nil {
		return nil, classifyDBError(err)
	}

	log.Printf("✅ [REGISTER] root member %s created", memberID)
	return member, nil
}

// Register places a new member under a sponsor and settles every bonus the
// placement triggers. Nothing is persisted unless every step succeeds.
func (s *RegistrationService) Register(ctx context.Context, req RegistrationRequest) (*RegistrationResult, error) {
	start := time.Now()
	result, err := s.register(ctx, req)
	s.Metrics.RecordRegistration(s.Policy, outcomeLabel(err), time.Since(start).Seconds())
	if err != nil {
		if IsRetryable(err) {
			log.Printf("⚠️ [REGISTER] %s under %s hit a lock conflict: %v", req.MemberID, req.SponsorID, err)
		} else {
			log.Printf("❌ [REGISTER] %s under %s failed: %v", req.MemberID, req.SponsorID, err)
		}
		return nil, err
	}

	for _, c := range result.Credits {
		s.Ledger.RecordCommitted(c.Entry)
	}
	log.Printf("✅ [REGISTER] %s placed under %s (%s slot %d, sponsor %s), %d credit(s), join bonus %s",
		result.MemberID, result.Placement.ParentID, result.Placement.Side, result.Placement.Slot,
		result.SponsorID, len(result.Credits), utils.FormatMinor(result.JoinBonus, s.Ledger.Currency))
	return result, nil
}

func (s *RegistrationService) register(ctx context.Context, req RegistrationRequest) (*RegistrationResult, error) {
	if err := validateMemberID(req.MemberID); err != nil {
		return nil, err
	}
	if err := validateMemberID(req.SponsorID); err != nil {
		return nil, fmt.Errorf("%w: sponsor id %q", ErrInvalidReferral, req.SponsorID)
	}
	if req.MemberID == req.SponsorID {
		return nil, fmt.Errorf("%w: member cannot sponsor itself", ErrInvalidReferral)
	}
	side, ok := models.ParseSide(req.Side)
	if !ok {
		return nil, ErrInvalidSide
	}

	result := &RegistrationResult{MemberID: req.MemberID, SponsorID: req.SponsorID}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyLockTimeout(tx, s.LockTimeout); err != nil {
			return classifyDBError(err)
		}

		exists, err := s.Directory.Exists(tx, req.SponsorID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %w: %s", ErrInvalidReferral, ErrSponsorNotFound, req.SponsorID)
		}

		if _, err := s.Directory.Create(tx, req.MemberID, strPtr(req.SponsorID)); err != nil {
			return err
		}
		if _, err := s.Ledger.OpenAccount(tx, req.MemberID); err != nil {
			return err
		}

		placement, err := s.Placement.Place(tx, req.SponsorID, side, req.MemberID)
		if err != nil {
			return err
		}
		result.Placement = placement

		if s.JoinBonus > 0 {
			entry, err := s.Ledger.Credit(tx, Posting{
				AccountID:       req.SponsorID,
				Amount:          s.JoinBonus,
				Reason:          models.ReasonJoinBonus,
				RelatedEntityID: req.MemberID,
				IdempotencyKey:  fmt.Sprintf("join_bonus:%s:%s", req.SponsorID, req.MemberID),
				Metadata: map[string]any{
					"new_member_id": req.MemberID,
					"side":          string(side),
				},
			})
			if err != nil {
				return err
			}
			result.JoinBonus = entry.Amount
			result.Credits = append(result.Credits, BonusCredit{
				MemberID:  req.MemberID,
				AccountID: req.SponsorID,
				Reason:    models.ReasonJoinBonus,
				Amount:    entry.Amount,
				Entry:     entry,
			})
		}

		credits, err := s.Evaluator.Evaluate(tx, placement.ParentID)
		if err != nil {
			return err
		}
		result.Credits = append(result.Credits, credits...)
		return nil
	})
	if err != nil {
		return nil, classifyDBError(err)
	}
	return result, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsRetryable(err):
		return "retryable"
	case errors.Is(err, ErrDuplicateMember):
		return "duplicate"
	case IsNotFound(err), IsValidation(err):
		return "rejected"
	default:
		return "error"
	}
}
