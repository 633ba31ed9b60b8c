package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mmn-engine/pkg/enums"
)

// GenealogyEdge is one row of the ancestor closure: MemberID sits Level
// steps below AncestorID, inside the ancestor's Leg.
type GenealogyEdge struct {
	MemberID   uuid.UUID      `gorm:"column:member_id;type:uuid;primaryKey"`
	AncestorID uuid.UUID      `gorm:"column:ancestor_id;type:uuid;primaryKey;index:idx_member_genealogy_ancestor,priority:1"`
	TenantID   uuid.UUID      `gorm:"column:tenant_id;type:uuid;not null"`
	Level      int            `gorm:"column:level;not null;index:idx_member_genealogy_ancestor,priority:2"`
	Leg        enums.Position `gorm:"column:leg;type:member_position;not null"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (GenealogyEdge) TableName() string {
	return "member_genealogy"
}
