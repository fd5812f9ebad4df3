package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"binary-referral-system/models"

	"gorm.io/gorm"
)

// TreeNode is one rendered member. Left/Right stay nil past the depth limit
// while LeftID/RightID still name the child.
type TreeNode struct {
	MemberID         string       `json:"member_id"`
	SponsorID        *string      `json:"sponsor_id"`
	ParentID         *string      `json:"parent_id"`
	Side             *models.Side `json:"side"`
	Depth            int          `json:"depth"`
	LeftCount        int64        `json:"left_count"`
	RightCount       int64        `json:"right_count"`
	SelfPairsPaid    int64        `json:"self_pairs_paid"`
	SponsorPairsPaid int64        `json:"sponsor_pairs_paid"`
	LeftID           *string      `json:"left_id"`
	RightID          *string      `json:"right_id"`
	Left             *TreeNode    `json:"left"`
	Right            *TreeNode    `json:"right"`
}

// Tree is a bounded snapshot of a subtree.
type Tree struct {
	RootID    string    `json:"root_id"`
	Depth     int       `json:"depth"`
	NodeCount int       `json:"node_count"`
	Root      *TreeNode `json:"tree"`
}

// TreeCache stores rendered snapshots. Implementations may drop entries at will.
type TreeCache interface {
	Get(ctx context.Context, rootID string, depth int) (*Tree, bool)
	Set(ctx context.Context, tree *Tree)
}

// StructureService answers read-only structure queries. It takes no locks;
// callers get an eventually consistent snapshot.
type StructureService struct {
	DB           *gorm.DB
	DefaultDepth int
	MaxDepth     int
	Cache        TreeCache
}

func NewStructureService(db *gorm.DB, defaultDepth, maxDepth int, cache TreeCache) *StructureService {
	return &StructureService{DB: db, DefaultDepth: defaultDepth, MaxDepth: maxDepth, Cache: cache}
}

// ClampDepth maps a requested depth onto [1, MaxDepth], using DefaultDepth
// for zero or negative requests.
func (s *StructureService) ClampDepth(depth int) int {
	maxDepth := s.MaxDepth
	if maxDepth < 1 || maxDepth > 10 {
		maxDepth = 10
	}
	if depth <= 0 {
		depth = s.DefaultDepth
	}
	if depth < 1 {
		depth = 1
	}
	if depth > maxDepth {
		depth = maxDepth
	}
	return depth
}

// RenderSubtree walks the structure breadth first from rootID, fetching one
// level per query pair. The root is depth 0; nodes at maxDepth are returned
// without their children expanded.
func (s *StructureService) RenderSubtree(ctx context.Context, rootID string, maxDepth int) (*Tree, error) {
	depth := s.ClampDepth(maxDepth)

	if s.Cache != nil {
		if tree, ok := s.Cache.Get(ctx, rootID, depth); ok {
			return tree, nil
		}
	}

	db := s.DB.WithContext(ctx)
	tree := &Tree{RootID: rootID, Depth: depth}
	rendered := make(map[string]*TreeNode)

	level := []string{rootID}
	for lvl := 0; lvl <= depth && len(level) > 0; lvl++ {
		nodes, members, err := loadLevel(db, level)
		if err != nil {
			return nil, err
		}
		if lvl == 0 && len(nodes) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, rootID)
		}

		var next []string
		for _, id := range level {
			n, ok := nodes[id]
			if !ok {
				log.Printf("⚠️ [TREE] structure node %s missing, skipped", id)
				continue
			}
			tn := &TreeNode{
				MemberID: id,
				ParentID: n.ParentID,
				Side:     n.Side,
				Depth:    lvl,
				LeftID:   n.LeftChildID,
				RightID:  n.RightChildID,
			}
			if m, ok := members[id]; ok {
				tn.SponsorID = m.SponsorID
				tn.LeftCount = m.LeftCount
				tn.RightCount = m.RightCount
				tn.SelfPairsPaid = m.SelfPairsPaid
				tn.SponsorPairsPaid = m.SponsorPairsPaid
			}
			rendered[id] = tn
			tree.NodeCount++

			if lvl == 0 {
				tree.Root = tn
			} else if n.ParentID != nil {
				if parent := rendered[*n.ParentID]; parent != nil {
					if parent.LeftID != nil && *parent.LeftID == id {
						parent.Left = tn
					} else if parent.RightID != nil && *parent.RightID == id {
						parent.Right = tn
					}
				}
			}

			if lvl < depth {
				if n.LeftChildID != nil {
					next = append(next, *n.LeftChildID)
				}
				if n.RightChildID != nil {
					next = append(next, *n.RightChildID)
				}
			}
		}
		level = next
	}

	if s.Cache != nil {
		s.Cache.Set(ctx, tree)
	}
	return tree, nil
}

func loadLevel(db *gorm.DB, ids []string) (map[string]*models.StructureNode, map[string]*models.Member, error) {
	var nodes []models.StructureNode
	if err := db.Where("member_id IN ?", ids).Find(&nodes).Error; err != nil {
		return nil, nil, err
	}
	var members []models.Member
	if err := db.Where("id IN ?", ids).Find(&members).Error; err != nil {
		return nil, nil, err
	}

	nodeMap := make(map[string]*models.StructureNode, len(nodes))
	for i := range nodes {
		nodeMap[nodes[i].MemberID] = &nodes[i]
	}
	memberMap := make(map[string]*models.Member, len(members))
	for i := range members {
		memberMap[members[i].ID] = &members[i]
	}
	return nodeMap, memberMap, nil
}

// SubtreeStats counts the members actually attached in each leg.
type SubtreeStats struct {
	RootID       string `json:"root_id"`
	LeftMembers  int64  `json:"left_members"`
	RightMembers int64  `json:"right_members"`
	Total        int64  `json:"total"`
}

func (s *StructureService) SubtreeStats(ctx context.Context, rootID string) (*SubtreeStats, error) {
	db := s.DB.WithContext(ctx)

	var root models.StructureNode
	if err := db.First(&root, "member_id = ?", rootID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, rootID)
		}
		return nil, err
	}

	left, err := countLeg(db, root.LeftChildID)
	if err != nil {
		return nil, err
	}
	right, err := countLeg(db, root.RightChildID)
	if err != nil {
		return nil, err
	}
	return &SubtreeStats{RootID: rootID, LeftMembers: left, RightMembers: right, Total: left + right}, nil
}

// countLeg counts the subtree under start, one query per level.
func countLeg(db *gorm.DB, start *string) (int64, error) {
	if start == nil {
		return 0, nil
	}
	var count int64
	seen := map[string]bool{*start: true}
	level := []string{*start}
	for len(level) > 0 {
		count += int64(len(level))
		var nodes []models.StructureNode
		if err := db.Select("member_id", "left_child_id", "right_child_id").
			Where("member_id IN ?", level).Find(&nodes).Error; err != nil {
			return 0, err
		}
		var next []string
		for _, n := range nodes {
			for _, c := range []*string{n.LeftChildID, n.RightChildID} {
				if c != nil && !seen[*c] {
					seen[*c] = true
					next = append(next, *c)
				}
			}
		}
		level = next
	}
	return count, nil
}

// ListDirect returns every edge recorded under sponsorID on side, in slot order.
func (s *StructureService) ListDirect(ctx context.Context, sponsorID string, side models.Side) ([]models.StructureEdge, error) {
	if !side.Valid() {
		return nil, ErrInvalidSide
	}
	var edges []models.StructureEdge
	if err := s.DB.WithContext(ctx).
		Where("parent_id = ? AND side = ?", sponsorID, side).
		Order("slot ASC").
		Find(&edges).Error; err != nil {
		return nil, err
	}
	return edges, nil
}
