package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"treasurebuy/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func cashCheckout(treasureID string, entries int) *CheckoutRequest {
	return &CheckoutRequest{
		TreasureID:    treasureID,
		Entries:       entries,
		PaymentMethod: model.PaymentMethodCash,
	}
}

func TestCheckoutRemainingStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	treasure := env.seedTreasure(t, treasureOpts{shelves: 10, bought: 8, unit: "10"})
	env.fund(t, "u1", model.BalanceTypeCash, "100")

	_, err := env.checkout.Checkout(ctx, "u1", cashCheckout(treasure.ID, 3))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInsufficientStock))
	assert.Contains(t, err.Error(), "仅剩 2 份")

	result, err := env.checkout.Checkout(ctx, "u1", cashCheckout(treasure.ID, 2))
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, result.OrderStatus)
	assertDecimal(t, "20", result.FinalAmount)
	assert.Equal(t, 10, env.reloadTreasure(t, treasure.ID).SeqBuyQuantity)
	assertDecimal(t, "80", env.balance(t, "u1").CashBalance)
}

func TestCheckoutSoldOutLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	treasure := env.seedTreasure(t, treasureOpts{shelves: 5, bought: 5})
	env.fund(t, "u1", model.BalanceTypeCash, "100")

	_, err := env.checkout.Checkout(context.Background(), "u1", cashCheckout(treasure.ID, 1))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInsufficientStock))
	assert.Contains(t, err.Error(), "已售罄")

	assertDecimal(t, "100", env.balance(t, "u1").CashBalance)
	assert.Equal(t, int64(0), env.count(t, &model.Order{}, ""))
	assert.Equal(t, int64(0), env.count(t, &model.TreasureGroup{}, ""))
}

func TestCheckoutGuardedReserveAfterStaleRead(t *testing.T) {
	env := newTestEnv(t)
	treasure := env.seedTreasure(t, treasureOpts{shelves: 5, bought: 2, unit: "10"})
	env.fund(t, "u1", model.BalanceTypeCash, "100")

	// 预检查读到 3 份剩余之后，其他买家抢光库存
	onceAfterQuery(t, env.db, "treasures", func(tx *gorm.DB) {
		require.NoError(t, tx.Model(&model.Treasure{}).
			Where("id = ?", treasure.ID).
			UpdateColumn("seq_buy_quantity", gorm.Expr("seq_shelves_quantity")).Error)
	})

	_, err := env.checkout.Checkout(context.Background(), "u1", cashCheckout(treasure.ID, 2))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInsufficientStock), "got %v", err)

	// 扣款随事务回滚
	assertDecimal(t, "100", env.balance(t, "u1").CashBalance)
	assert.Equal(t, int64(0), env.count(t, &model.Order{}, ""))
	assert.Equal(t, int64(0), env.count(t, &model.WalletTransaction{}, "transaction_type = ?", model.TransactionTypeConsumption))
	assert.Equal(t, int64(0), env.count(t, &model.TreasureGroup{}, ""))
}

func TestCheckoutInsufficientBalanceRollsBack(t *testing.T) {
	env := newTestEnv(t)
	treasure := env.seedTreasure(t, treasureOpts{shelves: 10, unit: "10"})
	env.fund(t, "u1", model.BalanceTypeCash, "15")

	_, err := env.checkout.Checkout(context.Background(), "u1", cashCheckout(treasure.ID, 2))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInsufficientBalance))

	assertDecimal(t, "15", env.balance(t, "u1").CashBalance)
	assert.Equal(t, 0, env.reloadTreasure(t, treasure.ID).SeqBuyQuantity)
	assert.Equal(t, int64(0), env.count(t, &model.Order{}, ""))
	assert.Equal(t, int64(0), env.count(t, &model.TreasureGroupMember{}, ""))
}

func TestCheckoutValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	active := env.seedTreasure(t, treasureOpts{shelves: 10, maxPerBuy: 3})
	inactive := env.seedTreasure(t, treasureOpts{shelves: 10, state: model.TreasureStateInactive})

	tests := []struct {
		name   string
		userID string
		req    *CheckoutRequest
		kind   Kind
	}{
		{"缺少用户", "", cashCheckout(active.ID, 1), KindValidation},
		{"份数为0", "u1", cashCheckout(active.ID, 0), KindValidation},
		{"支付方式不合法", "u1", &CheckoutRequest{TreasureID: active.ID, Entries: 1, PaymentMethod: "CARD"}, KindValidation},
		{"商品不存在", "u1", cashCheckout("missing", 1), KindNotFound},
		{"商品下架", "u1", cashCheckout(inactive.ID, 1), KindUnavailable},
		{"超出单次限购", "u1", cashCheckout(active.ID, 4), KindQuotaExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.checkout.Checkout(ctx, tt.userID, tt.req)
			assert.True(t, IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestCheckoutPerUserQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	treasure := env.seedTreasure(t, treasureOpts{shelves: 10, maxPerBuy: 3})
	env.fund(t, "u1", model.BalanceTypeCash, "100")
	env.fund(t, "u2", model.BalanceTypeCash, "100")

	_, err := env.checkout.Checkout(ctx, "u1", cashCheckout(treasure.ID, 2))
	require.NoError(t, err)

	_, err = env.checkout.Checkout(ctx, "u1", cashCheckout(treasure.ID, 2))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindQuotaExceeded))

	_, err = env.checkout.Checkout(ctx, "u1", cashCheckout(treasure.ID, 1))
	require.NoError(t, err)

	// 限购按用户统计
	_, err = env.checkout.Checkout(ctx, "u2", cashCheckout(treasure.ID, 3))
	require.NoError(t, err)
	assert.Equal(t, 6, env.reloadTreasure(t, treasure.ID).SeqBuyQuantity)
}

func TestCheckoutConcurrentNoOversell(t *testing.T) {
	env := newTestEnv(t)
	treasure := env.seedTreasure(t, treasureOpts{shelves: 5, unit: "1"})

	const buyers = 12
	for i := 0; i < buyers; i++ {
		env.fund(t, fmt.Sprintf("buyer-%d", i), model.BalanceTypeCash, "10")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := env.checkout.Checkout(context.Background(), userID, cashCheckout(treasure.ID, 1))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t, IsKind(err, KindInsufficientStock), "got %v", err)
		}(fmt.Sprintf("buyer-%d", i))
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	reloaded := env.reloadTreasure(t, treasure.ID)
	assert.Equal(t, 5, reloaded.SeqBuyQuantity)
	assert.Equal(t, int64(5), env.count(t, &model.Order{}, ""))
}

func TestCheckoutWithCoins(t *testing.T) {
	env := newTestEnv(t)
	treasure := env.seedTreasure(t, treasureOpts{shelves: 10, unit: "10", maxCoins: "30"})
	env.fund(t, "u1", model.BalanceTypeCash, "100")
	env.fund(t, "u1", model.BalanceTypeCoin, "100")

	result, err := env.checkout.Checkout(context.Background(), "u1", &CheckoutRequest{
		TreasureID:    treasure.ID,
		Entries:       2,
		PaymentMethod: model.PaymentMethodCoin,
	})
	require.NoError(t, err)

	// 金币上限 30*2=60，按 10:1 折合 6 元
	assertDecimal(t, "20", result.OriginalAmount)
	assertDecimal(t, "60", result.CoinsUsed)
	assertDecimal(t, "6", result.CoinAmount)
	assertDecimal(t, "6", result.DiscountAmount)
	assertDecimal(t, "14", result.FinalAmount)

	view := env.balance(t, "u1")
	assertDecimal(t, "86", view.CashBalance)
	assertDecimal(t, "40", view.CoinBalance)

	// 两笔扣款都回填到订单
	assert.Equal(t, int64(2), env.count(t, &model.WalletTransaction{},
		"related_id = ? AND related_type = ?", result.OrderID, model.RelatedTypeOrder))
}

func TestCheckoutUsesConfiguredExchangeRate(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Create(&model.SystemConfig{
		ConfigKey:   model.ConfigKeyExchangeRate,
		ConfigValue: "3",
	}).Error)
	treasure := env.seedTreasure(t, treasureOpts{shelves: 10, unit: "10", maxCoins: "10"})
	env.fund(t, "u1", model.BalanceTypeCash, "100")
	env.fund(t, "u1", model.BalanceTypeCoin, "10")

	result, err := env.checkout.Checkout(context.Background(), "u1", &CheckoutRequest{
		TreasureID:    treasure.ID,
		Entries:       1,
		PaymentMethod: model.PaymentMethodCoin,
	})
	require.NoError(t, err)
	assertDecimal(t, "3.33", result.CoinAmount)
	assertDecimal(t, "6.67", result.FinalAmount)
}

func TestCheckoutJoinsGroups(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	treasure := env.seedTreasure(t, treasureOpts{shelves: 10})
	env.fund(t, "owner", model.BalanceTypeCash, "100")
	env.fund(t, "guest", model.BalanceTypeCash, "100")

	first, err := env.checkout.Checkout(ctx, "owner", cashCheckout(treasure.ID, 1))
	require.NoError(t, err)
	assert.True(t, first.IsGroupOwner)
	assert.False(t, first.AlreadyInGroup)
	require.NotEmpty(t, first.GroupID)

	// 再次下单不会开第二个团
	second, err := env.checkout.Checkout(ctx, "owner", cashCheckout(treasure.ID, 1))
	require.NoError(t, err)
	assert.Equal(t, first.GroupID, second.GroupID)
	assert.True(t, second.AlreadyInGroup)

	req := cashCheckout(treasure.ID, 1)
	req.GroupID = first.GroupID
	joined, err := env.checkout.Checkout(ctx, "guest", req)
	require.NoError(t, err)
	assert.Equal(t, first.GroupID, joined.GroupID)
	assert.False(t, joined.IsGroupOwner)

	group := env.reloadGroup(t, first.GroupID)
	assert.Equal(t, 2, group.CurrentMembers)

	var order model.Order
	require.NoError(t, env.db.Where("id = ?", joined.OrderID).First(&order).Error)
	require.NotNil(t, order.GroupID)
	assert.Equal(t, first.GroupID, *order.GroupID)
	assert.False(t, order.IsGroupOwner)
}

func TestCheckoutGroupFailureRollsBackPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	treasure := env.seedTreasure(t, treasureOpts{shelves: 10})
	env.fund(t, "owner", model.BalanceTypeCash, "100")
	env.fund(t, "guest", model.BalanceTypeCash, "100")

	req := cashCheckout(treasure.ID, 1)
	req.MaxMembers = 1
	first, err := env.checkout.Checkout(ctx, "owner", req)
	require.NoError(t, err)

	req = cashCheckout(treasure.ID, 1)
	req.GroupID = first.GroupID
	_, err = env.checkout.Checkout(ctx, "guest", req)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindGroupFull))

	assertDecimal(t, "100", env.balance(t, "guest").CashBalance)
	assert.Equal(t, 1, env.reloadTreasure(t, treasure.ID).SeqBuyQuantity)
	assert.Equal(t, int64(0), env.count(t, &model.Order{}, "user_id = ?", "guest"))
}

func TestCheckoutEnqueuesOrderPaidEvent(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Kafka.Enabled = true
	treasure := env.seedTreasure(t, treasureOpts{shelves: 10})
	env.fund(t, "u1", model.BalanceTypeCash, "100")

	result, err := env.checkout.Checkout(context.Background(), "u1", cashCheckout(treasure.ID, 1))
	require.NoError(t, err)

	var messages []*model.OutboxMessage
	require.NoError(t, env.db.Find(&messages).Error)
	require.Len(t, messages, 1)
	assert.Equal(t, result.OrderNo, messages[0].MessageKey)
	assert.Equal(t, model.EventOrderPaid, messages[0].EventType)
	assert.Equal(t, env.cfg.Kafka.Topic.OrderPaid, messages[0].Topic)
	assert.Equal(t, model.OutboxStatusPending, messages[0].Status)
	assert.Contains(t, messages[0].Payload, result.OrderID)
}

func TestComputePricing(t *testing.T) {
	treasure := &model.Treasure{UnitAmount: dec("5"), MaxUnitCoins: dec("20")}

	tests := []struct {
		name     string
		method   string
		entries  int
		coins    string
		rate     string
		used     string
		discount string
		final    string
	}{
		{"现金支付不使用金币", model.PaymentMethodCash, 2, "100", "10", "0", "0", "10"},
		{"金币不足上限", model.PaymentMethodCoin, 2, "15", "10", "15", "1.5", "8.5"},
		{"金币受单份上限限制", model.PaymentMethodCoin, 1, "100", "10", "20", "2", "3"},
		{"抵扣超过原价时应付为0", model.PaymentMethodCoin, 1, "100", "1", "20", "20", "0"},
		{"没有金币", model.PaymentMethodCoin, 3, "0", "10", "0", "0", "15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := computePricing(treasure, tt.entries, tt.method, dec(tt.coins), dec(tt.rate))
			assertDecimal(t, tt.used, p.coinsUsed)
			assertDecimal(t, tt.discount, p.discountAmount)
			assertDecimal(t, tt.final, p.finalAmount)
			assert.True(t, p.couponAmount.IsZero())
		})
	}
}
