package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/enums"
)

// MemberNode is a member's seat in a tenant's binary placement tree.
type MemberNode struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	TenantID     uuid.UUID          `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:ux_member_nodes_tenant_user,priority:1;uniqueIndex:ux_member_nodes_tenant_path,priority:1"`
	UserID       uuid.UUID          `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_member_nodes_tenant_user,priority:2"`
	SponsorID    *uuid.UUID         `gorm:"column:sponsor_id;type:uuid;index:idx_member_nodes_sponsor"`
	ParentID     *uuid.UUID         `gorm:"column:parent_id;type:uuid;uniqueIndex:ux_member_nodes_parent_position,priority:1"`
	LeftChildID  *uuid.UUID         `gorm:"column:left_child_id;type:uuid"`
	RightChildID *uuid.UUID         `gorm:"column:right_child_id;type:uuid"`
	Position     *enums.Position    `gorm:"column:position;type:member_position;uniqueIndex:ux_member_nodes_parent_position,priority:2"`
	Level        int                `gorm:"column:level;not null"`
	Path         string             `gorm:"column:path;not null;uniqueIndex:ux_member_nodes_tenant_path,priority:2"`
	Status       enums.MemberStatus `gorm:"column:status;type:member_status;not null;default:'active'"`
	IsQualified  bool               `gorm:"column:is_qualified;not null;default:false"`
	JoinedAt     time.Time          `gorm:"column:joined_at;not null"`
	ActivatedAt  *time.Time         `gorm:"column:activated_at"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *MemberNode) BeforeCreate(*gorm.DB) error {
	assignID(&m.ID)
	return nil
}

// IsRoot reports whether the node sits at the top of its tenant tree.
func (m MemberNode) IsRoot() bool {
	return m.ParentID == nil
}

// Earns reports whether the member collects commissions: only active,
// qualified members do.
func (m MemberNode) Earns() bool {
	return m.Status == enums.MemberStatusActive && m.IsQualified
}

// ChildAt returns the child occupying the given side, if any.
func (m MemberNode) ChildAt(pos enums.Position) *uuid.UUID {
	if pos == enums.PositionLeft {
		return m.LeftChildID
	}
	return m.RightChildID
}

// OpenPosition returns the first free side, left before right.
func (m MemberNode) OpenPosition() (enums.Position, bool) {
	if m.LeftChildID == nil {
		return enums.PositionLeft, true
	}
	if m.RightChildID == nil {
		return enums.PositionRight, true
	}
	return "", false
}
