package service

import (
	"context"
	"errors"
	"fmt"

	"treasurebuy/internal/config"
	"treasurebuy/internal/model"
	"treasurebuy/internal/repository"

	"gorm.io/gorm"
)

type OrderService struct {
	orderRepo       *repository.OrderRepository
	transactionRepo *repository.TransactionRepository
	cfg             *config.Config
}

func NewOrderService(db *gorm.DB, cfg *config.Config) *OrderService {
	return &OrderService{
		orderRepo:       repository.NewOrderRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		cfg:             cfg,
	}
}

type ListOrdersRequest struct {
	Status     string
	TreasureID string
	Page       int
	PageSize   int
}

// OrderDetail 订单及其产生的钱包流水
type OrderDetail struct {
	Order        *model.Order               `json:"order"`
	Transactions []*model.WalletTransaction `json:"transactions"`
}

func (s *OrderService) ListOrders(ctx context.Context, userID string, req *ListOrdersRequest) ([]*model.Order, int64, Page, error) {
	p := normalizePage(s.cfg, req.Page, req.PageSize)
	if req.Status != "" && !model.IsValidOrderStatus(req.Status) {
		return nil, 0, p, newBizError(KindValidation, "订单状态不合法: %s", req.Status)
	}
	filter := repository.OrderFilter{Status: req.Status, TreasureID: req.TreasureID}
	orders, total, err := s.orderRepo.ListByUserID(ctx, userID, filter, p.Page, p.PageSize)
	if err != nil {
		return nil, 0, p, fmt.Errorf("查询订单失败: %w", err)
	}
	return orders, total, p, nil
}

// GetOrderDetail 只能查看自己的订单，他人订单按不存在处理
func (s *OrderService) GetOrderDetail(ctx context.Context, userID, orderID string) (*OrderDetail, error) {
	order, err := s.orderRepo.GetByID(ctx, nil, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, wrapBizError(KindNotFound, err, "订单不存在")
		}
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	if order.UserID != userID {
		return nil, newBizError(KindNotFound, "订单不存在")
	}

	transactions, err := s.transactionRepo.ListByRelated(ctx, userID, model.RelatedTypeOrder, order.ID)
	if err != nil {
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}

	return &OrderDetail{Order: order, Transactions: transactions}, nil
}
