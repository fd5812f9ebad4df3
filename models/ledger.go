package models

import (
	"encoding/json"
	"time"
)

type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// LedgerReason classifies why money moved.
type LedgerReason string

const (
	ReasonJoinBonus        LedgerReason = "JOIN_BONUS"
	ReasonSelfPairBonus    LedgerReason = "SELF_PAIR_BONUS"
	ReasonSponsorPairBonus LedgerReason = "SPONSOR_PAIR_BONUS"
	ReasonPurchaseDebit    LedgerReason = "PURCHASE_DEBIT"
	ReasonRefundCredit     LedgerReason = "REFUND_CREDIT"
	ReasonWithdrawalHold   LedgerReason = "WITHDRAWAL_HOLD"
	ReasonWithdrawalRefund LedgerReason = "WITHDRAWAL_REFUND"
	ReasonWithdrawalPayout LedgerReason = "WITHDRAWAL_PAYOUT"
)

// Account caches the running balance of a wallet. AccountID equals the member id.
// available + locked always equals the signed sum of its ledger entries.
type Account struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"account_id"`
	Available int64     `gorm:"not null;default:0" json:"available"`
	Locked    int64     `gorm:"not null;default:0" json:"locked"`
	Currency  string    `gorm:"type:varchar(8);not null;default:'INR'" json:"currency"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Total is available + locked.
func (a *Account) Total() int64 {
	return a.Available + a.Locked
}

// LedgerEntry is an immutable ledger line. Amount is always >= 0; the signed
// effect on the account is AvailableDelta + LockedDelta.
type LedgerEntry struct {
	ID              string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AccountID       string       `gorm:"type:varchar(64);not null;index:idx_ledger_account_created,priority:1" json:"account_id"`
	Direction       Direction    `gorm:"type:varchar(8);not null" json:"direction"`
	Amount          int64        `gorm:"not null" json:"amount"`
	Reason          LedgerReason `gorm:"type:varchar(32);not null;index" json:"reason"`
	AvailableDelta  int64        `gorm:"not null;default:0" json:"available_delta"`
	LockedDelta     int64        `gorm:"not null;default:0" json:"locked_delta"`
	RelatedEntityID *string      `gorm:"type:varchar(64);index" json:"related_entity_id,omitempty"`
	IdempotencyKey  *string      `gorm:"type:varchar(160);uniqueIndex" json:"-"`

	MetadataJSON string         `gorm:"type:text" json:"-"`
	Metadata     map[string]any `gorm:"-" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index:idx_ledger_account_created,priority:2"`
}

// Signed is the net effect of the entry on available + locked.
func (e *LedgerEntry) Signed() int64 {
	return e.AvailableDelta + e.LockedDelta
}

// DecodeMetadata fills Metadata from the stored JSON.
func (e *LedgerEntry) DecodeMetadata() {
	if e.MetadataJSON == "" {
		return
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(e.MetadataJSON), &meta); err == nil {
		e.Metadata = meta
	}
}
