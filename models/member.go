package models

import "strings"

// Side is the leg of a binary position.
type Side string

const (
	SideLeft  Side = "LEFT"
	SideRight Side = "RIGHT"
)

func (s Side) Valid() bool {
	return s == SideLeft || s == SideRight
}

// Column returns the members counter column for the side.
func (s Side) Column() string {
	if s == SideRight {
		return "right_count"
	}
	return "left_count"
}

// ParseSide accepts LEFT/RIGHT in any case.
func ParseSide(raw string) (Side, bool) {
	s := Side(strings.ToUpper(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// Member is the identity record of a registered participant.
// Counters are only mutated through the membership directory.
type Member struct {
	ID        string  `gorm:"primaryKey;type:varchar(64)" json:"id"`
	SponsorID *string `gorm:"type:varchar(64);index" json:"sponsor_id,omitempty"`

	// Structural counters (+1 per member placed in the leg)
	LeftCount  int64 `gorm:"not null;default:0" json:"left_count"`
	RightCount int64 `gorm:"not null;default:0" json:"right_count"`

	// Bonus watermarks, never above TotalPairs()
	SelfPairsPaid    int64 `gorm:"not null;default:0" json:"self_pairs_paid"`
	SponsorPairsPaid int64 `gorm:"not null;default:0" json:"sponsor_pairs_paid"`

	Timestamps
}

// TotalPairs is min(leftCount, rightCount).
func (m *Member) TotalPairs() int64 {
	if m.LeftCount < m.RightCount {
		return m.LeftCount
	}
	return m.RightCount
}

// Count returns the counter for the given side.
func (m *Member) Count(side Side) int64 {
	if side == SideRight {
		return m.RightCount
	}
	return m.LeftCount
}
