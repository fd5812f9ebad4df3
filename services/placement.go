package services

import (
	"errors"
	"fmt"

	"binary-referral-system/config"
	"binary-referral-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxUplineDepth guards parent-pointer walks against malformed data.
const maxUplineDepth = 100000

// Placement is where a new member ended up.
type Placement struct {
	ParentID string      `json:"parent_id"`
	Side     models.Side `json:"side"`
	Slot     int64       `json:"slot"`
	Mirrored bool        `json:"mirrored"`
}

// PlacementEngine attaches new members to the structure and propagates the
// structural counters. Policy is fixed for the lifetime of the process.
//
//   - spillover: BFS inside the sponsor's requested leg to the nearest open
//     slot, counters incremented on every ancestor.
//   - direct: always attach to the sponsor with a growing slot number, only
//     the first member per side is mirrored into the binary structure, and
//     only the sponsor's counter moves.
type PlacementEngine struct {
	Policy    string
	Directory *MembershipDirectory
}

func NewPlacementEngine(policy string, directory *MembershipDirectory) *PlacementEngine {
	return &PlacementEngine{Policy: policy, Directory: directory}
}

// Place attaches childID relative to sponsorID on side. The child's member
// row must already exist inside tx.
func (e *PlacementEngine) Place(tx *gorm.DB, sponsorID string, side models.Side, childID string) (*Placement, error) {
	if !side.Valid() {
		return nil, ErrInvalidSide
	}

	sponsor, err := lockNode(tx, sponsorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSponsorNotFound, sponsorID)
		}
		return nil, classifyDBError(err)
	}

	if e.Policy == config.PolicyDirect {
		return e.placeDirect(tx, sponsor, side, childID)
	}
	return e.placeSpillover(tx, sponsor, side, childID)
}

func (e *PlacementEngine) placeSpillover(tx *gorm.DB, sponsor *models.StructureNode, side models.Side, childID string) (*Placement, error) {
	parent, slotSide, err := e.findOpenSlot(tx, sponsor, side)
	if err != nil {
		return nil, err
	}

	p := &Placement{ParentID: parent.MemberID, Side: slotSide, Slot: 1, Mirrored: true}
	if err := attach(tx, parent, p, childID); err != nil {
		return nil, err
	}

	// Walk from the new child's parent to the root, bumping the leg the
	// new member sits in at every level.
	cur, curSide := parent.MemberID, slotSide
	for depth := 0; depth < maxUplineDepth; depth++ {
		if _, err := e.Directory.IncrementSide(tx, cur, curSide); err != nil {
			return nil, err
		}
		var node models.StructureNode
		if err := tx.First(&node, "member_id = ?", cur).Error; err != nil {
			return nil, classifyDBError(err)
		}
		if node.ParentID == nil || node.Side == nil {
			return p, nil
		}
		cur, curSide = *node.ParentID, *node.Side
	}
	return nil, fmt.Errorf("upline of %s exceeds %d levels", childID, maxUplineDepth)
}

// findOpenSlot returns the sponsor itself when the requested side is free,
// otherwise the first node in BFS order (LEFT before RIGHT) of the sponsor's
// requested leg with a free side. Every visited level is row locked.
func (e *PlacementEngine) findOpenSlot(tx *gorm.DB, sponsor *models.StructureNode, side models.Side) (*models.StructureNode, models.Side, error) {
	first := sponsor.Child(side)
	if first == nil {
		return sponsor, side, nil
	}

	level := []string{*first}
	for len(level) > 0 {
		var nodes []models.StructureNode
		if err := forUpdate(tx).Where("member_id IN ?", level).Find(&nodes).Error; err != nil {
			return nil, "", classifyDBError(err)
		}
		byID := make(map[string]*models.StructureNode, len(nodes))
		for i := range nodes {
			byID[nodes[i].MemberID] = &nodes[i]
		}

		var next []string
		for _, id := range level {
			n, ok := byID[id]
			if !ok {
				return nil, "", fmt.Errorf("structure node %s missing", id)
			}
			if n.LeftChildID == nil {
				return n, models.SideLeft, nil
			}
			if n.RightChildID == nil {
				return n, models.SideRight, nil
			}
			next = append(next, *n.LeftChildID, *n.RightChildID)
		}
		level = next
	}
	return nil, "", fmt.Errorf("no open slot under %s", sponsor.MemberID)
}

func (e *PlacementEngine) placeDirect(tx *gorm.DB, sponsor *models.StructureNode, side models.Side, childID string) (*Placement, error) {
	cursor := models.PlacementCursor{ParentID: sponsor.MemberID, Side: side}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&cursor).Error; err != nil {
		return nil, classifyDBError(err)
	}
	if err := forUpdate(tx).First(&cursor, "parent_id = ? AND side = ?", sponsor.MemberID, side).Error; err != nil {
		return nil, classifyDBError(err)
	}

	slot := cursor.LastSlot + 1
	if err := tx.Model(&models.PlacementCursor{}).
		Where("parent_id = ? AND side = ?", sponsor.MemberID, side).
		Update("last_slot", slot).Error; err != nil {
		return nil, classifyDBError(err)
	}

	p := &Placement{
		ParentID: sponsor.MemberID,
		Side:     side,
		Slot:     slot,
		Mirrored: sponsor.Child(side) == nil,
	}
	if err := attach(tx, sponsor, p, childID); err != nil {
		return nil, err
	}

	if _, err := e.Directory.IncrementSide(tx, sponsor.MemberID, side); err != nil {
		return nil, err
	}
	return p, nil
}

// attach writes the edge, the child's node and, when mirrored, the parent's
// child pointer.
func attach(tx *gorm.DB, parent *models.StructureNode, p *Placement, childID string) error {
	edge := models.StructureEdge{
		ID:       uuid.NewString(),
		ParentID: parent.MemberID,
		Side:     p.Side,
		Slot:     p.Slot,
		ChildID:  childID,
		Mirrored: p.Mirrored,
	}
	if err := tx.Create(&edge).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s %s slot %d", ErrSlotTaken, parent.MemberID, p.Side, p.Slot)
		}
		return classifyDBError(err)
	}

	side := p.Side
	node := models.StructureNode{MemberID: childID, ParentID: strPtr(parent.MemberID), Side: &side}
	if err := tx.Create(&node).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateMember, childID)
		}
		return classifyDBError(err)
	}

	if !p.Mirrored {
		return nil
	}
	col := "left_child_id"
	if p.Side == models.SideRight {
		col = "right_child_id"
	}
	res := tx.Model(&models.StructureNode{}).
		Where("member_id = ? AND "+col+" IS NULL", parent.MemberID).
		Update(col, childID)
	if res.Error != nil {
		return classifyDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %s", ErrSlotTaken, parent.MemberID, p.Side)
	}
	return nil
}

// createRootNode gives a sponsorless member its place in the structure.
func createRootNode(tx *gorm.DB, memberID string) error {
	if err := tx.Create(&models.StructureNode{MemberID: memberID}).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateMember, memberID)
		}
		return classifyDBError(err)
	}
	return nil
}

func lockNode(tx *gorm.DB, memberID string) (*models.StructureNode, error) {
	var n models.StructureNode
	if err := forUpdate(tx).First(&n, "member_id = ?", memberID).Error; err != nil {
		return nil, err
	}
	return &n, nil
}
