package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"treasurebuy/internal/config"
	"treasurebuy/internal/infrastructure/database"
	"treasurebuy/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	cfg      *config.Config
	wallet   *WalletService
	groups   *GroupService
	rates    *ExchangeRateProvider
	checkout *CheckoutService
	orders   *OrderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Driver = database.DriverSQLite
	cfg.Database.DSN = filepath.Join(t.TempDir(), "treasurebuy.db")
	cfg.Database.LogLevel = "silent"

	logger := zap.NewNop()
	db, err := database.Open(&cfg.Database, logger)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	wallet := NewWalletService(db, cfg, logger)
	groups := NewGroupService(db, cfg, logger)
	rates := NewExchangeRateProvider(db, nil, cfg, logger)
	return &testEnv{
		db:       db,
		cfg:      cfg,
		wallet:   wallet,
		groups:   groups,
		rates:    rates,
		checkout: NewCheckoutService(db, cfg, logger, wallet, groups, rates),
		orders:   NewOrderService(db, cfg),
	}
}

type treasureOpts struct {
	shelves   int
	bought    int
	unit      string
	maxPerBuy int
	maxCoins  string
	state     string
}

func (e *testEnv) seedTreasure(t *testing.T, opts treasureOpts) *model.Treasure {
	t.Helper()

	if opts.unit == "" {
		opts.unit = "10"
	}
	if opts.maxCoins == "" {
		opts.maxCoins = "0"
	}
	if opts.state == "" {
		opts.state = model.TreasureStateActive
	}
	treasure := &model.Treasure{
		ID:                 uuid.NewString(),
		Name:               "iPhone",
		State:              opts.state,
		UnitAmount:         decimal.RequireFromString(opts.unit),
		SeqShelvesQuantity: opts.shelves,
		SeqBuyQuantity:     opts.bought,
		MaxUnitCoins:       decimal.RequireFromString(opts.maxCoins),
	}
	if opts.maxPerBuy > 0 {
		limit := opts.maxPerBuy
		treasure.MaxPerBuyQuantity = &limit
	}
	require.NoError(t, e.db.Create(treasure).Error)
	return treasure
}

func (e *testEnv) fund(t *testing.T, userID, balanceType, amount string) {
	t.Helper()

	_, err := e.wallet.Credit(context.Background(), &LedgerRequest{
		UserID:      userID,
		Amount:      decimal.RequireFromString(amount),
		BalanceType: balanceType,
	})
	require.NoError(t, err)
}

func (e *testEnv) balance(t *testing.T, userID string) *BalanceView {
	t.Helper()

	view, err := e.wallet.Balance(context.Background(), userID)
	require.NoError(t, err)
	return view
}

func (e *testEnv) reloadTreasure(t *testing.T, id string) *model.Treasure {
	t.Helper()

	var treasure model.Treasure
	require.NoError(t, e.db.Where("id = ?", id).First(&treasure).Error)
	return &treasure
}

func (e *testEnv) reloadGroup(t *testing.T, id string) *model.TreasureGroup {
	t.Helper()

	var group model.TreasureGroup
	require.NoError(t, e.db.Where("id = ?", id).First(&group).Error)
	return &group
}

func (e *testEnv) count(t *testing.T, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()

	var total int64
	q := e.db.Model(m)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&total).Error)
	return total
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, dec(expected).Equal(actual), "expected %s, got %s %v", expected, actual.String(), msgAndArgs)
}

// onceAfterQuery 在第一次查询指定表之后执行 fn，fn 收到的句柄与该查询处于同一事务，
// 用来在“先查后写”之间插入并发写入
func onceAfterQuery(t *testing.T, db *gorm.DB, table string, fn func(tx *gorm.DB)) {
	t.Helper()

	var once sync.Once
	name := "test:after_query:" + table
	err := db.Callback().Query().After("gorm:query").Register(name, func(d *gorm.DB) {
		if d.Statement.Table != table {
			return
		}
		once.Do(func() {
			// 不继承当前查询的错误（如 ErrRecordNotFound）
			tx := d.Session(&gorm.Session{NewDB: true})
			tx.Error = nil
			fn(tx)
		})
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Callback().Query().Remove(name)
	})
}
