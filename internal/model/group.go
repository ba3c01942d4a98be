package model

import (
	"fmt"
	"time"
)

const (
	GroupStatusActive   = "ACTIVE"
	GroupStatusInactive = "INACTIVE"
)

// MaxMembersUnlimited 不限人数的哨兵值
const MaxMembersUnlimited = 0

// TreasureGroup 拼团
//
// 不变式：
//  1. max_members > 0 时 current_members <= max_members
//  2. 提交后 current_members == 成员行数
//
// OpenKey 在创建者仍在团内且团有效时为 "treasureID:creatorID"，否则为 NULL，
// 唯一索引保证同一用户对同一商品只会并发创建出一个有效团
type TreasureGroup struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	TreasureID     string    `gorm:"type:varchar(36);index;not null" json:"treasure_id"`
	CreatorID      string    `gorm:"type:varchar(64);not null" json:"creator_id"`
	CurrentMembers int       `gorm:"not null;default:0" json:"current_members"`
	MaxMembers     int       `gorm:"not null;default:0" json:"max_members"`
	GroupStatus    string    `gorm:"type:varchar(16);index;not null" json:"group_status"`
	OpenKey        *string   `gorm:"type:varchar(128);uniqueIndex" json:"-"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`
}

func (TreasureGroup) TableName() string {
	return "treasure_groups"
}

func GroupOpenKey(treasureID, creatorID string) string {
	return fmt.Sprintf("%s:%s", treasureID, creatorID)
}

// TreasureGroupMember 拼团成员，(group_id, user_id) 唯一
type TreasureGroupMember struct {
	ID       int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID  string    `gorm:"type:varchar(36);uniqueIndex:idx_group_user;not null" json:"group_id"`
	UserID   string    `gorm:"type:varchar(64);uniqueIndex:idx_group_user;index;not null" json:"user_id"`
	IsOwner  bool      `gorm:"not null;default:false" json:"is_owner"`
	OrderID  *string   `gorm:"type:varchar(36)" json:"order_id"`
	JoinedAt time.Time `gorm:"not null;index" json:"joined_at"`
}

func (TreasureGroupMember) TableName() string {
	return "treasure_group_members"
}
