package repository

import (
	"context"
	"errors"
	"time"

	"treasurebuy/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// memberOrder 成员展示顺序：团长优先，其余按加入时间，同一时间按插入顺序
const memberOrder = "is_owner DESC, joined_at ASC, id ASC"

// ============================================================================
// 拼团
// ============================================================================

func (r *GroupRepository) GetByID(ctx context.Context, tx *gorm.DB, id string, forUpdate bool) (*model.TreasureGroup, error) {
	var group model.TreasureGroup
	query := pick(r.db, tx).WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := query.Where("id = ?", id).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return &group, nil
}

// Create 创建拼团，open_key 冲突时返回 ErrDuplicateGroup
func (r *GroupRepository) Create(ctx context.Context, tx *gorm.DB, group *model.TreasureGroup) error {
	err := pick(r.db, tx).WithContext(ctx).Create(group).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateGroup
	}
	return err
}

// IncrementMembers 占用一个名额
//
//	UPDATE treasure_groups SET current_members = current_members + 1
//	WHERE id = ? AND group_status = 'ACTIVE' AND (max_members = 0 OR current_members < max_members)
func (r *GroupRepository) IncrementMembers(ctx context.Context, tx *gorm.DB, id string) error {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.TreasureGroup{}).
		Where("id = ? AND group_status = ? AND (max_members = ? OR current_members < max_members)",
			id, model.GroupStatusActive, model.MaxMembersUnlimited).
		Updates(map[string]interface{}{
			"current_members": gorm.Expr("current_members + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrGroupFull
	}
	return nil
}

// DecrementMembers 释放一个名额，最小减到 0
func (r *GroupRepository) DecrementMembers(ctx context.Context, tx *gorm.DB, id string) error {
	return pick(r.db, tx).WithContext(ctx).
		Model(&model.TreasureGroup{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"current_members": gorm.Expr("CASE WHEN current_members > 0 THEN current_members - 1 ELSE 0 END"),
		}).Error
}

// TransferOwnership 团长转移：creator_id 跟随新团长，open_key 清空
func (r *GroupRepository) TransferOwnership(ctx context.Context, tx *gorm.DB, groupID string, successor *model.TreasureGroupMember) error {
	db := pick(r.db, tx).WithContext(ctx)

	if err := db.Model(&model.TreasureGroupMember{}).
		Where("id = ?", successor.ID).
		Update("is_owner", true).Error; err != nil {
		return err
	}

	return db.Model(&model.TreasureGroup{}).
		Where("id = ?", groupID).
		Updates(map[string]interface{}{
			"creator_id": successor.UserID,
			"open_key":   gorm.Expr("NULL"),
		}).Error
}

// Deactivate 最后一名成员离开或后台关闭
func (r *GroupRepository) Deactivate(ctx context.Context, tx *gorm.DB, groupID string) error {
	return pick(r.db, tx).WithContext(ctx).
		Model(&model.TreasureGroup{}).
		Where("id = ?", groupID).
		Updates(map[string]interface{}{
			"group_status": model.GroupStatusInactive,
			"open_key":     gorm.Expr("NULL"),
		}).Error
}

func (r *GroupRepository) ListActiveByTreasure(ctx context.Context, treasureID string, page, pageSize int) ([]*model.TreasureGroup, int64, error) {
	var groups []*model.TreasureGroup
	var total int64

	query := r.db.WithContext(ctx).
		Model(&model.TreasureGroup{}).
		Where("treasure_id = ? AND group_status = ?", treasureID, model.GroupStatusActive).
		Session(&gorm.Session{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("updated_at DESC").
		Order("id ASC").
		Offset(Offset(page, pageSize)).
		Limit(pageSize).
		Find(&groups).Error

	return groups, total, err
}

// ============================================================================
// 成员
// ============================================================================

func (r *GroupRepository) GetMember(ctx context.Context, tx *gorm.DB, groupID, userID string) (*model.TreasureGroupMember, error) {
	var member model.TreasureGroupMember
	err := pick(r.db, tx).WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}

// CreateMember 写入成员行，(group_id, user_id) 唯一约束冲突返回 ErrDuplicateMember
func (r *GroupRepository) CreateMember(ctx context.Context, tx *gorm.DB, member *model.TreasureGroupMember) error {
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now()
	}
	err := pick(r.db, tx).WithContext(ctx).Create(member).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateMember
	}
	return err
}

func (r *GroupRepository) DeleteMember(ctx context.Context, tx *gorm.DB, memberID int64) error {
	return pick(r.db, tx).WithContext(ctx).
		Where("id = ?", memberID).
		Delete(&model.TreasureGroupMember{}).Error
}

// EarliestMemberExcept 除指定用户外最早加入的成员，没有则返回 nil
func (r *GroupRepository) EarliestMemberExcept(ctx context.Context, tx *gorm.DB, groupID, userID string) (*model.TreasureGroupMember, error) {
	var members []*model.TreasureGroupMember
	err := pick(r.db, tx).WithContext(ctx).
		Where("group_id = ? AND user_id <> ?", groupID, userID).
		Order("joined_at ASC").
		Order("id ASC").
		Limit(1).
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	return members[0], nil
}

// FindActiveMembership 查询用户在某商品下有效拼团中的成员身份，没有则返回 nil
func (r *GroupRepository) FindActiveMembership(ctx context.Context, tx *gorm.DB, userID, treasureID string) (*model.TreasureGroupMember, error) {
	var members []*model.TreasureGroupMember
	err := pick(r.db, tx).WithContext(ctx).
		Model(&model.TreasureGroupMember{}).
		Select("treasure_group_members.*").
		Joins("JOIN treasure_groups ON treasure_groups.id = treasure_group_members.group_id").
		Where("treasure_group_members.user_id = ? AND treasure_groups.treasure_id = ? AND treasure_groups.group_status = ?",
			userID, treasureID, model.GroupStatusActive).
		Order("treasure_group_members.joined_at ASC").
		Order("treasure_group_members.id ASC").
		Limit(1).
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	return members[0], nil
}

func (r *GroupRepository) CountMembers(ctx context.Context, groupID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.TreasureGroupMember{}).
		Where("group_id = ?", groupID).
		Count(&total).Error
	return total, err
}

func (r *GroupRepository) ListMembers(ctx context.Context, groupID string, offset, limit int) ([]*model.TreasureGroupMember, error) {
	var members []*model.TreasureGroupMember
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order(memberOrder).
		Offset(offset).
		Limit(limit).
		Find(&members).Error
	return members, err
}
