package service

import (
	"context"
	"testing"

	"treasurebuy/internal/model"

	"github.com/stretchr/testify/require"
)

func TestExchangeRateFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rate, err := env.rates.ExchangeRate(ctx)
	require.NoError(t, err)
	assertDecimal(t, "10", rate)

	require.NoError(t, env.db.Create(&model.SystemConfig{
		ConfigKey:   model.ConfigKeyExchangeRate,
		ConfigValue: "abc",
	}).Error)
	rate, err = env.rates.ExchangeRate(ctx)
	require.NoError(t, err)
	assertDecimal(t, "10", rate)

	require.NoError(t, env.db.Model(&model.SystemConfig{}).
		Where("config_key = ?", model.ConfigKeyExchangeRate).
		Update("config_value", "0").Error)
	rate, err = env.rates.ExchangeRate(ctx)
	require.NoError(t, err)
	assertDecimal(t, "10", rate)

	require.NoError(t, env.db.Model(&model.SystemConfig{}).
		Where("config_key = ?", model.ConfigKeyExchangeRate).
		Update("config_value", "25").Error)
	rate, err = env.rates.ExchangeRate(ctx)
	require.NoError(t, err)
	assertDecimal(t, "25", rate)
}
