package service

import (
	"context"
	"errors"
	"fmt"

	"treasurebuy/internal/config"
	"treasurebuy/internal/metrics"
	"treasurebuy/internal/model"
	"treasurebuy/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GroupService 拼团协调
//
// 成员增减全部落在两类保护上：
//  1. current_members 只通过带条件的 UPDATE 修改（名额上限、下限 0）
//  2. (group_id, user_id) 唯一索引兜底同一用户并发重复加入
type GroupService struct {
	db           *gorm.DB
	cfg          *config.Config
	logger       *zap.Logger
	groupRepo    *repository.GroupRepository
	treasureRepo *repository.TreasureRepository
}

func NewGroupService(db *gorm.DB, cfg *config.Config, logger *zap.Logger) *GroupService {
	return &GroupService{
		db:           db,
		cfg:          cfg,
		logger:       logger,
		groupRepo:    repository.NewGroupRepository(db),
		treasureRepo: repository.NewTreasureRepository(db),
	}
}

// JoinRequest GroupID 为空时自动加入已有团或开新团
type JoinRequest struct {
	UserID     string
	TreasureID string
	GroupID    string
	OrderID    string
	MaxMembers int // 仅开新团时生效，0 表示不限
}

type JoinResult struct {
	GroupID        string `json:"group_id"`
	IsOwner        bool   `json:"is_owner"`
	AlreadyInGroup bool   `json:"already_in_group"`
}

type LeaveResult struct {
	GroupID     string `json:"group_id"`
	GroupStatus string `json:"group_status"`
	NewOwnerID  string `json:"new_owner_id,omitempty"`
}

// MemberView 成员展示
type MemberView struct {
	UserID   string `json:"user_id"`
	IsOwner  bool   `json:"is_owner"`
	JoinedAt string `json:"joined_at"`
}

// GroupView 拼团列表项
type GroupView struct {
	GroupID        string        `json:"group_id"`
	TreasureID     string        `json:"treasure_id"`
	CreatorID      string        `json:"creator_id"`
	CurrentMembers int           `json:"current_members"`
	MaxMembers     int           `json:"max_members"`
	MemberCount    int64         `json:"member_count"`
	Members        []*MemberView `json:"members"`
	UpdatedAt      string        `json:"updated_at"`
}

// Create 开团（用户在该商品下已有有效拼团时直接返回该团）
func (s *GroupService) Create(ctx context.Context, req *JoinRequest) (*JoinResult, error) {
	if req.GroupID != "" {
		return nil, newBizError(KindValidation, "开团不能指定 group_id")
	}
	result, err := s.standalone(ctx, req)
	metrics.RecordGroupOp("create", metrics.Result(err, string(KindOf(err))))
	return result, err
}

// Join 加入指定拼团
func (s *GroupService) Join(ctx context.Context, req *JoinRequest) (*JoinResult, error) {
	if req.GroupID == "" {
		return nil, newBizError(KindValidation, "group_id 不能为空")
	}
	result, err := s.standalone(ctx, req)
	metrics.RecordGroupOp("join", metrics.Result(err, string(KindOf(err))))
	return result, err
}

func (s *GroupService) standalone(ctx context.Context, req *JoinRequest) (*JoinResult, error) {
	if _, err := s.treasureRepo.GetByID(ctx, nil, req.TreasureID); err != nil {
		if errors.Is(err, repository.ErrTreasureNotFound) {
			return nil, wrapBizError(KindNotFound, err, "商品不存在")
		}
		return nil, fmt.Errorf("查询商品失败: %w", err)
	}

	var result *JoinResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.JoinOrCreate(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// JoinOrCreate 加入或开团，必须在调用方事务内执行
func (s *GroupService) JoinOrCreate(ctx context.Context, tx *gorm.DB, req *JoinRequest) (*JoinResult, error) {
	if req.UserID == "" || req.TreasureID == "" {
		return nil, newBizError(KindValidation, "user_id 与 treasure_id 不能为空")
	}
	if req.MaxMembers < 0 {
		return nil, newBizError(KindValidation, "max_members 不能为负数")
	}

	if req.GroupID != "" {
		return s.joinExisting(ctx, tx, req)
	}
	return s.joinOrOpen(ctx, tx, req)
}

func (s *GroupService) joinExisting(ctx context.Context, tx *gorm.DB, req *JoinRequest) (*JoinResult, error) {
	group, err := s.groupRepo.GetByID(ctx, tx, req.GroupID, false)
	if err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			return nil, wrapBizError(KindGroupNotFound, err, "拼团不存在")
		}
		return nil, fmt.Errorf("查询拼团失败: %w", err)
	}
	if group.TreasureID != req.TreasureID {
		return nil, newBizError(KindGroupNotFound, "拼团不属于该商品")
	}
	if group.GroupStatus != model.GroupStatusActive {
		return nil, newBizError(KindGroupInactive, "拼团已结束")
	}

	member, err := s.groupRepo.GetMember(ctx, tx, group.ID, req.UserID)
	if err == nil {
		return &JoinResult{GroupID: group.ID, IsOwner: member.IsOwner, AlreadyInGroup: true}, nil
	}
	if !errors.Is(err, repository.ErrMemberNotFound) {
		return nil, fmt.Errorf("查询成员失败: %w", err)
	}

	if err := s.groupRepo.IncrementMembers(ctx, tx, group.ID); err != nil {
		if errors.Is(err, repository.ErrGroupFull) {
			return nil, wrapBizError(KindGroupFull, err, "拼团人数已满")
		}
		return nil, fmt.Errorf("占用名额失败: %w", err)
	}

	member = &model.TreasureGroupMember{
		GroupID: group.ID,
		UserID:  req.UserID,
		OrderID: optionalString(req.OrderID),
	}
	// 在保存点内写入成员，唯一约束冲突时外层事务仍可继续做补偿
	err = tx.Transaction(func(sp *gorm.DB) error {
		return s.groupRepo.CreateMember(ctx, sp, member)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateMember) {
			if decErr := s.groupRepo.DecrementMembers(ctx, tx, group.ID); decErr != nil {
				return nil, fmt.Errorf("回退名额失败: %w", decErr)
			}
			s.logger.Warn("并发重复加入拼团",
				zap.String("group_id", group.ID),
				zap.String("user_id", req.UserID))
			return nil, wrapBizError(KindConflict, err, "请勿重复加入拼团")
		}
		return nil, fmt.Errorf("写入成员失败: %w", err)
	}

	s.logger.Info("加入拼团",
		zap.String("group_id", group.ID),
		zap.String("user_id", req.UserID),
		zap.String("order_id", req.OrderID))

	return &JoinResult{GroupID: group.ID}, nil
}

func (s *GroupService) joinOrOpen(ctx context.Context, tx *gorm.DB, req *JoinRequest) (*JoinResult, error) {
	existing, err := s.groupRepo.FindActiveMembership(ctx, tx, req.UserID, req.TreasureID)
	if err != nil {
		return nil, fmt.Errorf("查询拼团成员失败: %w", err)
	}
	if existing != nil {
		return &JoinResult{GroupID: existing.GroupID, IsOwner: existing.IsOwner, AlreadyInGroup: true}, nil
	}

	openKey := model.GroupOpenKey(req.TreasureID, req.UserID)
	group := &model.TreasureGroup{
		ID:             uuid.NewString(),
		TreasureID:     req.TreasureID,
		CreatorID:      req.UserID,
		CurrentMembers: 1,
		MaxMembers:     req.MaxMembers,
		GroupStatus:    model.GroupStatusActive,
		OpenKey:        &openKey,
	}
	err = tx.Transaction(func(sp *gorm.DB) error {
		if err := s.groupRepo.Create(ctx, sp, group); err != nil {
			return err
		}
		return s.groupRepo.CreateMember(ctx, sp, &model.TreasureGroupMember{
			GroupID: group.ID,
			UserID:  req.UserID,
			IsOwner: true,
			OrderID: optionalString(req.OrderID),
		})
	})
	if err != nil {
		if !errors.Is(err, repository.ErrDuplicateGroup) {
			return nil, fmt.Errorf("开团失败: %w", err)
		}
		// 并发开团失败的一方返回胜出方的团
		winner, findErr := s.groupRepo.FindActiveMembership(ctx, tx, req.UserID, req.TreasureID)
		if findErr != nil {
			return nil, fmt.Errorf("查询拼团成员失败: %w", findErr)
		}
		if winner == nil {
			return nil, wrapBizError(KindConflict, err, "开团冲突，请重试")
		}
		return &JoinResult{GroupID: winner.GroupID, IsOwner: winner.IsOwner, AlreadyInGroup: true}, nil
	}

	s.logger.Info("开团成功",
		zap.String("group_id", group.ID),
		zap.String("treasure_id", req.TreasureID),
		zap.String("user_id", req.UserID))

	return &JoinResult{GroupID: group.ID, IsOwner: true}, nil
}

// Leave 退出拼团
//
// 团长退出时由最早加入的成员接任；没有剩余成员时拼团失效。
// 先转移团长、再删除成员行、最后扣减人数，三步同一事务
func (s *GroupService) Leave(ctx context.Context, groupID, userID string) (*LeaveResult, error) {
	var result *LeaveResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.LeaveTx(ctx, tx, groupID, userID)
		return err
	})
	metrics.RecordGroupOp("leave", metrics.Result(err, string(KindOf(err))))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *GroupService) LeaveTx(ctx context.Context, tx *gorm.DB, groupID, userID string) (*LeaveResult, error) {
	group, err := s.groupRepo.GetByID(ctx, tx, groupID, true)
	if err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			return nil, wrapBizError(KindGroupNotFound, err, "拼团不存在")
		}
		return nil, fmt.Errorf("查询拼团失败: %w", err)
	}

	member, err := s.groupRepo.GetMember(ctx, tx, groupID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			return nil, wrapBizError(KindNotAMember, err, "不是该拼团成员")
		}
		return nil, fmt.Errorf("查询成员失败: %w", err)
	}

	successor, err := s.groupRepo.EarliestMemberExcept(ctx, tx, groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("查询剩余成员失败: %w", err)
	}

	result := &LeaveResult{GroupID: groupID, GroupStatus: group.GroupStatus}
	switch {
	case successor == nil:
		if err := s.groupRepo.Deactivate(ctx, tx, groupID); err != nil {
			return nil, fmt.Errorf("关闭拼团失败: %w", err)
		}
		result.GroupStatus = model.GroupStatusInactive
	case member.IsOwner:
		if err := s.groupRepo.TransferOwnership(ctx, tx, groupID, successor); err != nil {
			return nil, fmt.Errorf("转移团长失败: %w", err)
		}
		result.NewOwnerID = successor.UserID
	}

	if err := s.groupRepo.DeleteMember(ctx, tx, member.ID); err != nil {
		return nil, fmt.Errorf("删除成员失败: %w", err)
	}
	if err := s.groupRepo.DecrementMembers(ctx, tx, groupID); err != nil {
		return nil, fmt.Errorf("扣减人数失败: %w", err)
	}

	s.logger.Info("退出拼团",
		zap.String("group_id", groupID),
		zap.String("user_id", userID),
		zap.String("new_owner_id", result.NewOwnerID),
		zap.String("group_status", result.GroupStatus))

	return result, nil
}

// ListActive 商品下的有效拼团，最近更新的在前，每个团附带前 N 名成员
func (s *GroupService) ListActive(ctx context.Context, treasureID string, page, pageSize int) ([]*GroupView, int64, Page, error) {
	p := normalizePage(s.cfg, page, pageSize)
	groups, total, err := s.groupRepo.ListActiveByTreasure(ctx, treasureID, p.Page, p.PageSize)
	if err != nil {
		return nil, 0, p, fmt.Errorf("查询拼团列表失败: %w", err)
	}

	previewSize := s.cfg.Business.GroupPreviewSize
	if previewSize <= 0 {
		previewSize = 5
	}

	views := make([]*GroupView, 0, len(groups))
	for _, group := range groups {
		count, err := s.groupRepo.CountMembers(ctx, group.ID)
		if err != nil {
			return nil, 0, p, fmt.Errorf("统计成员失败: %w", err)
		}
		members, err := s.groupRepo.ListMembers(ctx, group.ID, 0, previewSize)
		if err != nil {
			return nil, 0, p, fmt.Errorf("查询成员失败: %w", err)
		}
		views = append(views, &GroupView{
			GroupID:        group.ID,
			TreasureID:     group.TreasureID,
			CreatorID:      group.CreatorID,
			CurrentMembers: group.CurrentMembers,
			MaxMembers:     group.MaxMembers,
			MemberCount:    count,
			Members:        toMemberViews(members),
			UpdatedAt:      group.UpdatedAt.Format(timeLayout),
		})
	}
	return views, total, p, nil
}

// Members 分页查询成员，团长在前
func (s *GroupService) Members(ctx context.Context, groupID string, page, pageSize int) ([]*MemberView, int64, Page, error) {
	p := normalizePage(s.cfg, page, pageSize)
	if _, err := s.groupRepo.GetByID(ctx, nil, groupID, false); err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			return nil, 0, p, wrapBizError(KindGroupNotFound, err, "拼团不存在")
		}
		return nil, 0, p, fmt.Errorf("查询拼团失败: %w", err)
	}

	total, err := s.groupRepo.CountMembers(ctx, groupID)
	if err != nil {
		return nil, 0, p, fmt.Errorf("统计成员失败: %w", err)
	}
	members, err := s.groupRepo.ListMembers(ctx, groupID, repository.Offset(p.Page, p.PageSize), p.PageSize)
	if err != nil {
		return nil, 0, p, fmt.Errorf("查询成员失败: %w", err)
	}
	return toMemberViews(members), total, p, nil
}

const timeLayout = "2006-01-02 15:04:05"

func toMemberViews(members []*model.TreasureGroupMember) []*MemberView {
	views := make([]*MemberView, 0, len(members))
	for _, m := range members {
		views = append(views, &MemberView{
			UserID:   m.UserID,
			IsOwner:  m.IsOwner,
			JoinedAt: m.JoinedAt.Format(timeLayout),
		})
	}
	return views
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
