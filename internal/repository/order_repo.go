package repository

import (
	"context"
	"errors"

	"treasurebuy/internal/model"

	"gorm.io/gorm"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// OrderFilter 订单列表过滤条件，空字符串表示不过滤
type OrderFilter struct {
	Status     string
	TreasureID string
}

func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return pick(r.db, tx).WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Order, error) {
	var order model.Order
	err := pick(r.db, tx).WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// UpdateGroup 回写拼团结果，金额字段不受影响
func (r *OrderRepository) UpdateGroup(ctx context.Context, tx *gorm.DB, orderID, groupID string, isOwner bool) error {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"group_id":       groupID,
			"is_group_owner": isOwner,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// SumPaidQuantity 统计用户对某商品已支付且未退款的购买份数
func (r *OrderRepository) SumPaidQuantity(ctx context.Context, tx *gorm.DB, userID, treasureID string) (int, error) {
	var total int64
	err := pick(r.db, tx).WithContext(ctx).
		Model(&model.Order{}).
		Select("COALESCE(SUM(buy_quantity), 0)").
		Where("user_id = ? AND treasure_id = ? AND pay_status = ? AND refund_status = ?",
			userID, treasureID, model.PayStatusPaid, model.RefundStatusNone).
		Scan(&total).Error
	return int(total), err
}

func (r *OrderRepository) ListByUserID(ctx context.Context, userID string, filter OrderFilter, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)
	if filter.Status != "" {
		query = query.Where("order_status = ?", filter.Status)
	}
	if filter.TreasureID != "" {
		query = query.Where("treasure_id = ?", filter.TreasureID)
	}
	query = query.Session(&gorm.Session{})

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Offset(Offset(page, pageSize)).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}
