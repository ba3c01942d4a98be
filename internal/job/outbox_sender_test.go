package job

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"treasurebuy/internal/config"
	"treasurebuy/internal/infrastructure/database"
	"treasurebuy/internal/model"
	"treasurebuy/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (p *fakePublisher) Publish(topic, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, key)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) sentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func setup(t *testing.T) (*gorm.DB, *config.Config) {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Driver = database.DriverSQLite
	cfg.Database.DSN = filepath.Join(t.TempDir(), "job.db")
	cfg.Database.LogLevel = "silent"

	db, err := database.Open(&cfg.Database, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db, cfg
}

func enqueue(t *testing.T, db *gorm.DB, key string) {
	t.Helper()
	repo := repository.NewOutboxRepository(db)
	require.NoError(t, repo.Enqueue(context.Background(), nil, "treasure_order_paid", model.EventOrderPaid, key, map[string]string{"order_no": key}))
}

func statusOf(t *testing.T, db *gorm.DB, key string) model.OutboxMessage {
	t.Helper()
	var msg model.OutboxMessage
	require.NoError(t, db.Where("message_key = ?", key).First(&msg).Error)
	return msg
}

func TestOutboxSenderPublishesPending(t *testing.T) {
	db, cfg := setup(t)
	enqueue(t, db, "TB1")
	enqueue(t, db, "TB2")

	publisher := &fakePublisher{}
	sender := NewOutboxSender(db, nil, publisher, cfg, zap.NewNop())
	sender.RunOnce(context.Background())

	assert.Equal(t, []string{"TB1", "TB2"}, publisher.sent)
	assert.Equal(t, model.OutboxStatusSent, statusOf(t, db, "TB1").Status)
	assert.Equal(t, model.OutboxStatusSent, statusOf(t, db, "TB2").Status)

	// 已发送的消息不会重复投递
	sender.RunOnce(context.Background())
	assert.Len(t, publisher.sent, 2)
}

func TestOutboxSenderGivesUpAfterMaxRetries(t *testing.T) {
	db, cfg := setup(t)
	cfg.Business.MaxRetryCount = 2
	enqueue(t, db, "TB1")

	publisher := &fakePublisher{err: errors.New("broker down")}
	sender := NewOutboxSender(db, nil, publisher, cfg, zap.NewNop())

	sender.RunOnce(context.Background())
	msg := statusOf(t, db, "TB1")
	assert.Equal(t, model.OutboxStatusPending, msg.Status)
	assert.Equal(t, 1, msg.RetryCount)

	sender.RunOnce(context.Background())
	msg = statusOf(t, db, "TB1")
	assert.Equal(t, model.OutboxStatusFailed, msg.Status)
	assert.Equal(t, 2, msg.RetryCount)

	// 恢复后也不再投递 FAILED 消息
	publisher.err = nil
	sender.RunOnce(context.Background())
	assert.Empty(t, publisher.sent)
}

func TestOutboxSenderStopsWithContext(t *testing.T) {
	db, cfg := setup(t)
	enqueue(t, db, "TB1")

	publisher := &fakePublisher{}
	sender := NewOutboxSender(db, nil, publisher, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sender.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return publisher.sentCount() == 1 }, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start 未在取消后退出")
	}
}
