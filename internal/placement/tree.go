package placement

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/mmn-engine/internal/genealogy"
	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/mmn-engine/pkg/errors"
)

const maxTreeDepth = 10

// TreeNode is a read-only view of a subtree for visualization.
type TreeNode struct {
	ID          uuid.UUID          `json:"id"`
	UserID      uuid.UUID          `json:"user_id"`
	Level       int                `json:"level"`
	Path        string             `json:"path"`
	Position    *enums.Position    `json:"position,omitempty"`
	Status      enums.MemberStatus `json:"status"`
	IsQualified bool               `json:"is_qualified"`
	Left        *TreeNode          `json:"left,omitempty"`
	Right       *TreeNode          `json:"right,omitempty"`
}

// GetTree materializes the subtree under memberID down to depth levels using
// the genealogy index. Depth is clamped to [0, 10].
func (s *service) GetTree(ctx context.Context, memberID uuid.UUID, depth int) (*TreeNode, error) {
	if depth < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "depth must not be negative")
	}
	if depth > maxTreeDepth {
		depth = maxTreeDepth
	}
	root, err := s.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	out := newTreeNode(*root)
	if depth == 0 {
		return out, nil
	}

	descendants, err := s.genealogy.GetDownline(ctx, memberID, genealogy.DownlineFilter{MaxLevels: depth})
	if err != nil {
		return nil, err
	}
	byID := map[uuid.UUID]*TreeNode{root.ID: out}
	for _, rel := range descendants {
		byID[rel.Member.ID] = newTreeNode(rel.Member)
	}
	for _, rel := range descendants {
		if rel.Member.ParentID == nil || rel.Member.Position == nil {
			continue
		}
		parent, ok := byID[*rel.Member.ParentID]
		if !ok {
			continue
		}
		child := byID[rel.Member.ID]
		if *rel.Member.Position == enums.PositionLeft {
			parent.Left = child
		} else {
			parent.Right = child
		}
	}
	return out, nil
}

func newTreeNode(node models.MemberNode) *TreeNode {
	return &TreeNode{
		ID:          node.ID,
		UserID:      node.UserID,
		Level:       node.Level,
		Path:        node.Path,
		Position:    node.Position,
		Status:      node.Status,
		IsQualified: node.IsQualified,
	}
}

// Size counts the nodes in the view.
func (t *TreeNode) Size() int {
	if t == nil {
		return 0
	}
	return 1 + t.Left.Size() + t.Right.Size()
}
