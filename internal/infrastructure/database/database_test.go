package database

import (
	"path/filepath"
	"testing"

	"treasurebuy/internal/config"
	"treasurebuy/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func sqliteConfig(t *testing.T, level string) *config.DatabaseConfig {
	t.Helper()

	cfg := config.Default().Database
	cfg.Driver = DriverSQLite
	cfg.DSN = filepath.Join(t.TempDir(), "db.sqlite")
	cfg.LogLevel = level
	return &cfg
}

func TestSQLErrorsGoToZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	db, err := Open(sqliteConfig(t, "error"), log)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	// 未找到记录不算错误
	var wallet model.Wallet
	require.Error(t, db.Where("user_id = ?", "nobody").First(&wallet).Error)
	assert.Equal(t, 0, logs.FilterLoggerName("gorm").Len())

	require.Error(t, db.Exec("SELECT * FROM missing_table").Error)
	entries := logs.FilterLoggerName("gorm").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Contains(t, entries[0].Message, "missing_table")
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := config.Default().Database
	cfg.Driver = "oracle"

	_, err := Open(&cfg, zap.NewNop())
	assert.Error(t, err)
}
