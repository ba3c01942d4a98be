package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"treasurebuy/internal/config"
	"treasurebuy/internal/metrics"
	"treasurebuy/internal/model"
	"treasurebuy/internal/repository"
	"treasurebuy/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CheckoutService 夺宝下单结算
//
// 【关键点】一次结算是一个数据库事务：
//
//	校验 -> 扣金币/现金 -> 条件扣库存 -> 创建订单 -> 回填流水 -> 加入/开团 -> 回写订单 -> 写事件
//
// 任意一步失败整体回滚，不存在扣了钱没有订单、或占了库存没扣钱的中间状态。
// 钱包、库存、拼团名额三个计数器都只通过带条件的 UPDATE 修改，不加应用层锁
type CheckoutService struct {
	db           *gorm.DB
	cfg          *config.Config
	logger       *zap.Logger
	wallet       *WalletService
	groups       *GroupService
	rates        *ExchangeRateProvider
	treasureRepo *repository.TreasureRepository
	orderRepo    *repository.OrderRepository
	outboxRepo   *repository.OutboxRepository
}

func NewCheckoutService(
	db *gorm.DB,
	cfg *config.Config,
	logger *zap.Logger,
	wallet *WalletService,
	groups *GroupService,
	rates *ExchangeRateProvider,
) *CheckoutService {
	return &CheckoutService{
		db:           db,
		cfg:          cfg,
		logger:       logger,
		wallet:       wallet,
		groups:       groups,
		rates:        rates,
		treasureRepo: repository.NewTreasureRepository(db),
		orderRepo:    repository.NewOrderRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
	}
}

type CheckoutRequest struct {
	TreasureID    string
	Entries       int
	GroupID       string
	CouponID      string
	PaymentMethod string
	AddressID     string
	MaxMembers    int // 开新团时的人数上限，0 表示不限
}

type CheckoutResult struct {
	OrderID        string          `json:"order_id"`
	OrderNo        string          `json:"order_no"`
	TreasureID     string          `json:"treasure_id"`
	BuyQuantity    int             `json:"buy_quantity"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	CoinAmount     decimal.Decimal `json:"coin_amount"`
	CoinsUsed      decimal.Decimal `json:"coins_used"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	OrderStatus    string          `json:"order_status"`
	GroupID        string          `json:"group_id"`
	IsGroupOwner   bool            `json:"is_group_owner"`
	AlreadyInGroup bool            `json:"already_in_group"`
}

// pricing 订单金额拆分
type pricing struct {
	unitPrice      decimal.Decimal
	originalAmount decimal.Decimal
	couponAmount   decimal.Decimal
	coinsUsed      decimal.Decimal
	coinAmount     decimal.Decimal
	discountAmount decimal.Decimal
	finalAmount    decimal.Decimal
}

func (s *CheckoutService) Checkout(ctx context.Context, userID string, req *CheckoutRequest) (*CheckoutResult, error) {
	start := time.Now()
	result, err := s.checkout(ctx, userID, req)
	metrics.ObserveCheckout(metrics.Result(err, string(KindOf(err))), time.Since(start))

	if err != nil {
		s.logger.Info("结算失败",
			zap.String("user_id", userID),
			zap.String("treasure_id", req.TreasureID),
			zap.Int("entries", req.Entries),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("结算成功",
		zap.String("user_id", userID),
		zap.String("order_no", result.OrderNo),
		zap.String("group_id", result.GroupID),
		zap.String("final_amount", result.FinalAmount.String()))
	return result, nil
}

func (s *CheckoutService) checkout(ctx context.Context, userID string, req *CheckoutRequest) (*CheckoutResult, error) {
	if userID == "" {
		return nil, newBizError(KindValidation, "user_id 不能为空")
	}
	if req.TreasureID == "" {
		return nil, newBizError(KindValidation, "treasure_id 不能为空")
	}
	if req.Entries < 1 {
		return nil, newBizError(KindValidation, "购买份数至少为 1")
	}
	if !model.IsValidPaymentMethod(req.PaymentMethod) {
		return nil, newBizError(KindValidation, "不支持的支付方式: %s", req.PaymentMethod)
	}

	// 兑换比例是外部只读配置，在事务外读取
	rate, err := s.rates.ExchangeRate(ctx)
	if err != nil {
		return nil, err
	}

	var result *CheckoutResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.checkoutTx(ctx, tx, userID, req, rate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *CheckoutService) checkoutTx(ctx context.Context, tx *gorm.DB, userID string, req *CheckoutRequest, rate decimal.Decimal) (*CheckoutResult, error) {
	treasure, err := s.treasureRepo.GetByID(ctx, tx, req.TreasureID)
	if err != nil {
		if errors.Is(err, repository.ErrTreasureNotFound) {
			return nil, wrapBizError(KindNotFound, err, "商品不存在")
		}
		return nil, fmt.Errorf("查询商品失败: %w", err)
	}
	if treasure.State != model.TreasureStateActive {
		return nil, newBizError(KindUnavailable, "商品已下架")
	}
	if treasure.MaxPerBuyQuantity != nil && *treasure.MaxPerBuyQuantity > 0 && req.Entries > *treasure.MaxPerBuyQuantity {
		return nil, newBizError(KindQuotaExceeded, "单次最多购买 %d 份", *treasure.MaxPerBuyQuantity)
	}

	// 预检查只为尽早给出友好提示，真正防超卖的是后面的条件更新
	available := treasure.Available()
	if available <= 0 {
		return nil, newBizError(KindInsufficientStock, "已售罄")
	}
	if req.Entries > available {
		return nil, newBizError(KindInsufficientStock, "仅剩 %d 份", available)
	}

	if treasure.MaxPerBuyQuantity != nil && *treasure.MaxPerBuyQuantity > 0 {
		bought, err := s.orderRepo.SumPaidQuantity(ctx, tx, userID, treasure.ID)
		if err != nil {
			return nil, fmt.Errorf("统计已购份数失败: %w", err)
		}
		remaining := *treasure.MaxPerBuyQuantity - bought
		if req.Entries > remaining {
			if remaining < 0 {
				remaining = 0
			}
			return nil, newBizError(KindQuotaExceeded, "超出个人限购，还可购买 %d 份", remaining)
		}
	}

	wallet, err := s.wallet.EnsureWallet(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	price := computePricing(treasure, req.Entries, req.PaymentMethod, wallet.CoinBalance, rate)

	var transactionNos []string
	if price.coinsUsed.IsPositive() {
		res, err := s.wallet.DebitTx(ctx, tx, &LedgerRequest{
			UserID:          userID,
			Amount:          price.coinsUsed,
			BalanceType:     model.BalanceTypeCoin,
			TransactionType: model.TransactionTypeConsumption,
			RelatedType:     model.RelatedTypeOrder,
			Description:     fmt.Sprintf("夺宝抵扣-%s", treasure.ID),
		})
		if err != nil {
			return nil, err
		}
		transactionNos = append(transactionNos, res.TransactionNo)
	}
	if price.finalAmount.IsPositive() {
		res, err := s.wallet.DebitTx(ctx, tx, &LedgerRequest{
			UserID:          userID,
			Amount:          price.finalAmount,
			BalanceType:     model.BalanceTypeCash,
			TransactionType: model.TransactionTypeConsumption,
			RelatedType:     model.RelatedTypeOrder,
			Description:     fmt.Sprintf("夺宝支付-%s", treasure.ID),
		})
		if err != nil {
			return nil, err
		}
		transactionNos = append(transactionNos, res.TransactionNo)
	}

	if err := s.treasureRepo.ReserveEntries(ctx, tx, treasure.ID, req.Entries); err != nil {
		if errors.Is(err, repository.ErrStockNotEnough) {
			return nil, wrapBizError(KindInsufficientStock, err, "库存不足")
		}
		return nil, fmt.Errorf("扣减库存失败: %w", err)
	}

	now := time.Now()
	order := &model.Order{
		ID:             uuid.NewString(),
		OrderNo:        idgen.GenerateOrderNo(),
		UserID:         userID,
		TreasureID:     treasure.ID,
		OriginalAmount: price.originalAmount,
		DiscountAmount: price.discountAmount,
		CouponAmount:   price.couponAmount,
		CoinAmount:     price.coinAmount,
		CoinsUsed:      price.coinsUsed,
		FinalAmount:    price.finalAmount,
		UnitPrice:      price.unitPrice,
		BuyQuantity:    req.Entries,
		PaymentMethod:  req.PaymentMethod,
		CouponID:       optionalString(req.CouponID),
		AddressID:      optionalString(req.AddressID),
		OrderStatus:    model.OrderStatusPaid,
		PayStatus:      model.PayStatusPaid,
		RefundStatus:   model.RefundStatusNone,
		PaidAt:         &now,
	}
	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("创建订单失败: %w", err)
	}

	if err := s.wallet.BackfillRelated(ctx, tx, transactionNos, order.ID, model.RelatedTypeOrder); err != nil {
		return nil, err
	}

	joined, err := s.groups.JoinOrCreate(ctx, tx, &JoinRequest{
		UserID:     userID,
		TreasureID: treasure.ID,
		GroupID:    req.GroupID,
		OrderID:    order.ID,
		MaxMembers: req.MaxMembers,
	})
	if err != nil {
		return nil, err
	}
	if err := s.orderRepo.UpdateGroup(ctx, tx, order.ID, joined.GroupID, joined.IsOwner); err != nil {
		return nil, fmt.Errorf("回写拼团信息失败: %w", err)
	}

	if s.cfg.Kafka.Enabled && s.cfg.Kafka.Topic.OrderPaid != "" {
		payload := map[string]interface{}{
			"order_id":     order.ID,
			"order_no":     order.OrderNo,
			"user_id":      userID,
			"treasure_id":  treasure.ID,
			"buy_quantity": order.BuyQuantity,
			"final_amount": order.FinalAmount.String(),
			"coins_used":   order.CoinsUsed.String(),
			"group_id":     joined.GroupID,
			"paid_at":      now.Format(time.RFC3339),
		}
		if err := s.outboxRepo.Enqueue(ctx, tx, s.cfg.Kafka.Topic.OrderPaid, model.EventOrderPaid, order.OrderNo, payload); err != nil {
			return nil, fmt.Errorf("写入消息失败: %w", err)
		}
	}

	return &CheckoutResult{
		OrderID:        order.ID,
		OrderNo:        order.OrderNo,
		TreasureID:     treasure.ID,
		BuyQuantity:    order.BuyQuantity,
		OriginalAmount: order.OriginalAmount,
		DiscountAmount: order.DiscountAmount,
		CoinAmount:     order.CoinAmount,
		CoinsUsed:      order.CoinsUsed,
		FinalAmount:    order.FinalAmount,
		OrderStatus:    order.OrderStatus,
		GroupID:        joined.GroupID,
		IsGroupOwner:   joined.IsOwner,
		AlreadyInGroup: joined.AlreadyInGroup,
	}, nil
}

// computePricing 计算订单金额
//
// 金币支付：可用金币 = min(钱包金币, 单份金币上限 * 份数)，按兑换比例折算成现金抵扣。
// 优惠券抵扣暂未启用，coupon_amount 恒为 0。
// 优惠取 max(优惠券, 金币) 而不是相加，两种优惠不叠加
func computePricing(treasure *model.Treasure, entries int, paymentMethod string, coinBalance, rate decimal.Decimal) pricing {
	quantity := decimal.NewFromInt(int64(entries))
	p := pricing{
		unitPrice:      treasure.UnitAmount,
		originalAmount: treasure.UnitAmount.Mul(quantity),
		couponAmount:   decimal.Zero,
		coinsUsed:      decimal.Zero,
		coinAmount:     decimal.Zero,
	}

	if paymentMethod == model.PaymentMethodCoin && rate.IsPositive() {
		coins := decimal.Min(coinBalance, treasure.MaxUnitCoins.Mul(quantity))
		if coins.IsPositive() {
			p.coinsUsed = coins
			p.coinAmount = coins.Div(rate).Round(2)
		}
	}

	p.discountAmount = decimal.Max(p.couponAmount, p.coinAmount)
	p.finalAmount = decimal.Max(p.originalAmount.Sub(p.discountAmount), decimal.Zero)
	return p
}
