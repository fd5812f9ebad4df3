package models

import "time"

// StructureNode holds the strict-binary attachment points of a member.
// Table name: structure_nodes
type StructureNode struct {
	MemberID     string  `gorm:"primaryKey;type:varchar(64)" json:"member_id"`
	ParentID     *string `gorm:"type:varchar(64);index" json:"parent_id,omitempty"`
	Side         *Side   `gorm:"type:varchar(8)" json:"side,omitempty"`
	LeftChildID  *string `gorm:"type:varchar(64);uniqueIndex" json:"left_child_id,omitempty"`
	RightChildID *string `gorm:"type:varchar(64);uniqueIndex" json:"right_child_id,omitempty"`

	Timestamps
}

// Child returns the attached child id on the given side.
func (n *StructureNode) Child(side Side) *string {
	if side == SideRight {
		return n.RightChildID
	}
	return n.LeftChildID
}

// StructureEdge is the immutable parent -> child record. Slot numbers grow per
// (parent, side); at most one edge per (parent, side) is mirrored into the node.
type StructureEdge struct {
	ID       string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ParentID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_edge_parent_side_slot,priority:1" json:"parent_id"`
	Side     Side   `gorm:"type:varchar(8);not null;uniqueIndex:idx_edge_parent_side_slot,priority:2" json:"side"`
	Slot     int64  `gorm:"not null;uniqueIndex:idx_edge_parent_side_slot,priority:3" json:"slot"`
	ChildID  string `gorm:"type:varchar(64);not null;uniqueIndex" json:"child_id"`
	Mirrored bool   `gorm:"not null;default:false" json:"mirrored"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// PlacementCursor is the per (sponsor, side) lock record of the direct-slot policy.
type PlacementCursor struct {
	ParentID  string    `gorm:"primaryKey;type:varchar(64)" json:"parent_id"`
	Side      Side      `gorm:"primaryKey;type:varchar(8)" json:"side"`
	LastSlot  int64     `gorm:"not null;default:0" json:"last_slot"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// EngineSetting is a persisted key/value used to pin process-wide choices.
type EngineSetting struct {
	Key       string    `gorm:"primaryKey;type:varchar(64)" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
