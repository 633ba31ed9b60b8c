package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/mmn-engine/pkg/db/types"
)

// MemberRank records a rank a member achieved. At most one row per member is active.
type MemberRank struct {
	ID           uuid.UUID    `gorm:"column:id;type:uuid;primaryKey"`
	TenantID     uuid.UUID    `gorm:"column:tenant_id;type:uuid;not null"`
	MemberID     uuid.UUID    `gorm:"column:member_id;type:uuid;not null;index:idx_member_ranks_member_active,priority:1"`
	RankName     string       `gorm:"column:rank_name;not null"`
	RankLevel    int          `gorm:"column:rank_level;not null"`
	Requirements dbtypes.JSON `gorm:"column:requirements"`
	AchievedAt   time.Time    `gorm:"column:achieved_at;not null"`
	LostAt       *time.Time   `gorm:"column:lost_at"`
	IsActive     bool         `gorm:"column:is_active;not null;default:true;index:idx_member_ranks_member_active,priority:2"`
	CreatedAt    time.Time    `gorm:"column:created_at;autoCreateTime"`
}

func (r *MemberRank) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}
