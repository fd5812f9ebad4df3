package models

import "time"

type PayoutMethod string

const (
	PayoutBank PayoutMethod = "BANK"
	PayoutUPI  PayoutMethod = "UPI"
)

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "PENDING"
	WithdrawalApproved WithdrawalStatus = "APPROVED"
	WithdrawalRejected WithdrawalStatus = "REJECTED"
)

// Withdrawal is a payout request. Funds sit in the account's locked balance
// while the request is PENDING.
type Withdrawal struct {
	ID                    string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	MemberID              string           `gorm:"type:varchar(64);not null;index" json:"member_id"`
	Amount                int64            `gorm:"not null" json:"amount"`
	PayoutMethod          PayoutMethod     `gorm:"type:varchar(8);not null" json:"payout_method"`
	PayoutDetails         string           `gorm:"type:text;not null" json:"payout_details"`
	Status                WithdrawalStatus `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	AdminNote             string           `gorm:"type:text" json:"admin_note,omitempty"`
	ExternalTransactionID string           `gorm:"type:varchar(128)" json:"external_transaction_id,omitempty"`
	ProcessedBy           *string          `gorm:"type:varchar(64)" json:"processed_by,omitempty"`
	ProcessedAt           *time.Time       `json:"processed_at,omitempty"`

	Timestamps
}
