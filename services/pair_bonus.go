package services

import (
	"fmt"

	"binary-referral-system/config"
	"binary-referral-system/models"

	"gorm.io/gorm"
)

// BonusCredit is one bonus credited during a registration.
type BonusCredit struct {
	MemberID  string              `json:"member_id"`
	AccountID string              `json:"account_id"`
	Reason    models.LedgerReason `json:"reason"`
	Pairs     int64               `json:"pairs"`
	Amount    int64               `json:"amount"`
	Entry     *models.LedgerEntry `json:"-"`
}

// PairBonusEvaluator turns newly completed pairs into ledger credits.
// Counters are read, never written; only the watermarks advance, which is
// what makes a second run with unchanged counters a no-op.
type PairBonusEvaluator struct {
	Policy                 string
	Directory              *MembershipDirectory
	Ledger                 *LedgerService
	SelfPairBonusAmount    int64
	SponsorPairBonusAmount int64
}

func NewPairBonusEvaluator(policy string, directory *MembershipDirectory, ledger *LedgerService, selfAmount, sponsorAmount int64) *PairBonusEvaluator {
	return &PairBonusEvaluator{
		Policy:                 policy,
		Directory:              directory,
		Ledger:                 ledger,
		SelfPairBonusAmount:    selfAmount,
		SponsorPairBonusAmount: sponsorAmount,
	}
}

// Evaluate starts at memberID and walks the upline (spillover) or stops after
// the first member (direct). Any error aborts the caller's transaction.
func (e *PairBonusEvaluator) Evaluate(tx *gorm.DB, memberID string) ([]BonusCredit, error) {
	var credits []BonusCredit
	cur := memberID
	for depth := 0; depth < maxUplineDepth; depth++ {
		c, err := e.evaluateOne(tx, cur)
		if err != nil {
			return nil, err
		}
		credits = append(credits, c...)

		if e.Policy == config.PolicyDirect {
			return credits, nil
		}
		var node models.StructureNode
		if err := tx.First(&node, "member_id = ?", cur).Error; err != nil {
			return nil, classifyDBError(err)
		}
		if node.ParentID == nil {
			return credits, nil
		}
		cur = *node.ParentID
	}
	return nil, fmt.Errorf("upline of %s exceeds %d levels", memberID, maxUplineDepth)
}

func (e *PairBonusEvaluator) evaluateOne(tx *gorm.DB, memberID string) ([]BonusCredit, error) {
	m, err := e.Directory.lock(tx, memberID)
	if err != nil {
		return nil, err
	}
	total := m.TotalPairs()

	var credits []BonusCredit

	if n := total - m.SelfPairsPaid; n > 0 {
		c := BonusCredit{
			MemberID:  m.ID,
			AccountID: m.ID,
			Reason:    models.ReasonSelfPairBonus,
			Pairs:     n,
			Amount:    n * e.SelfPairBonusAmount,
		}
		if c.Amount > 0 {
			entry, err := e.Ledger.Credit(tx, Posting{
				AccountID:       m.ID,
				Amount:          c.Amount,
				Reason:          models.ReasonSelfPairBonus,
				RelatedEntityID: m.ID,
				IdempotencyKey:  fmt.Sprintf("self_pair:%s:%d", m.ID, total),
				Metadata: map[string]any{
					"pairs":     n,
					"watermark": total,
				},
			})
			if err != nil {
				return nil, err
			}
			c.Entry = entry
			credits = append(credits, c)
		}
		if err := e.Directory.MarkSelfPairsPaid(tx, m.ID, total); err != nil {
			return nil, err
		}
	}

	if m.SponsorID == nil {
		return credits, nil
	}

	if n := total - m.SponsorPairsPaid; n > 0 {
		c := BonusCredit{
			MemberID:  m.ID,
			AccountID: *m.SponsorID,
			Reason:    models.ReasonSponsorPairBonus,
			Pairs:     n,
			Amount:    n * e.SponsorPairBonusAmount,
		}
		if c.Amount > 0 {
			entry, err := e.Ledger.Credit(tx, Posting{
				AccountID:       *m.SponsorID,
				Amount:          c.Amount,
				Reason:          models.ReasonSponsorPairBonus,
				RelatedEntityID: m.ID,
				IdempotencyKey:  fmt.Sprintf("sponsor_pair:%s:%d", m.ID, total),
				Metadata: map[string]any{
					"downline_member_id": m.ID,
					"pairs":              n,
					"watermark":          total,
				},
			})
			if err != nil {
				return nil, err
			}
			c.Entry = entry
			credits = append(credits, c)
		}
		if err := e.Directory.MarkSponsorPairsPaid(tx, m.ID, total); err != nil {
			return nil, err
		}
	}

	return credits, nil
}
