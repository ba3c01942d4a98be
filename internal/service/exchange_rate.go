package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"treasurebuy/internal/config"
	"treasurebuy/internal/model"
	"treasurebuy/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const exchangeRateCacheKey = "treasurebuy:config:exchange_rate"

var fallbackExchangeRate = decimal.NewFromInt(10)

// ExchangeRateProvider 金币兑换比例（多少金币折合 1 元）
// 配置了 Redis 时先读缓存，缓存异常直接回源数据库
type ExchangeRateProvider struct {
	configRepo *repository.ConfigRepository
	rdb        *redis.Client
	ttl        time.Duration
	fallback   decimal.Decimal
	logger     *zap.Logger
}

func NewExchangeRateProvider(db *gorm.DB, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *ExchangeRateProvider {
	fallback, err := decimal.NewFromString(cfg.Business.DefaultExchangeRate)
	if err != nil || !fallback.IsPositive() {
		fallback = fallbackExchangeRate
	}
	return &ExchangeRateProvider{
		configRepo: repository.NewConfigRepository(db),
		rdb:        rdb,
		ttl:        time.Duration(cfg.Business.ExchangeRateCacheSeconds) * time.Second,
		fallback:   fallback,
		logger:     logger,
	}
}

func (p *ExchangeRateProvider) ExchangeRate(ctx context.Context) (decimal.Decimal, error) {
	if rate, ok := p.fromCache(ctx); ok {
		return rate, nil
	}

	value, found, err := p.configRepo.GetValue(ctx, model.ConfigKeyExchangeRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("读取兑换比例失败: %w", err)
	}

	rate := p.fallback
	if found {
		parsed, err := decimal.NewFromString(value)
		if err == nil && parsed.IsPositive() {
			rate = parsed
		} else {
			p.logger.Warn("兑换比例配置不合法，使用默认值",
				zap.String("value", value),
				zap.String("default", p.fallback.String()))
		}
	}

	p.toCache(ctx, rate)
	return rate, nil
}

func (p *ExchangeRateProvider) fromCache(ctx context.Context) (decimal.Decimal, bool) {
	if p.rdb == nil || p.ttl <= 0 {
		return decimal.Zero, false
	}
	value, err := p.rdb.Get(ctx, exchangeRateCacheKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			p.logger.Warn("读取兑换比例缓存失败", zap.Error(err))
		}
		return decimal.Zero, false
	}
	rate, err := decimal.NewFromString(value)
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, false
	}
	return rate, true
}

func (p *ExchangeRateProvider) toCache(ctx context.Context, rate decimal.Decimal) {
	if p.rdb == nil || p.ttl <= 0 {
		return
	}
	if err := p.rdb.Set(ctx, exchangeRateCacheKey, rate.String(), p.ttl).Err(); err != nil {
		p.logger.Warn("写入兑换比例缓存失败", zap.Error(err))
	}
}
