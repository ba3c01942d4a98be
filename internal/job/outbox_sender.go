package job

import (
	"context"
	"time"

	"treasurebuy/internal/config"
	"treasurebuy/internal/infrastructure/lock"
	"treasurebuy/internal/infrastructure/mq"
	"treasurebuy/internal/model"
	"treasurebuy/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxSender 将结算事务内写入的事件投递到 Kafka
// 投递成功标记 SENT；失败累计重试次数，超过上限标记 FAILED
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	leaderLock *lock.DistributedLock
	cfg        *config.Config
	logger     *zap.Logger
	interval   time.Duration
	batchSize  int
}

// NewOutboxSender rdb 为 nil 时不加锁（单实例部署）
func NewOutboxSender(db *gorm.DB, rdb *redis.Client, publisher mq.Publisher, cfg *config.Config, logger *zap.Logger) *OutboxSender {
	s := &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger.Named("outbox_sender"),
		interval:   200 * time.Millisecond,
		batchSize:  100,
	}
	if rdb != nil {
		s.leaderLock = lock.NewOutboxLock(rdb, uuid.NewString(), 10*time.Second)
	}
	return s
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("收到停止信号，任务退出")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce 投递一批待发送消息
func (s *OutboxSender) RunOnce(ctx context.Context) {
	if s.leaderLock != nil {
		ok, err := s.leaderLock.TryLock(ctx)
		if err != nil {
			s.logger.Warn("获取投递锁失败", zap.Error(err))
			return
		}
		if !ok {
			return
		}
		defer func() {
			if err := s.leaderLock.Unlock(ctx); err != nil {
				s.logger.Warn("释放投递锁失败", zap.Error(err))
			}
		}()
	}

	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("查询消息失败", zap.Error(err))
		return
	}

	for _, msg := range messages {
		s.send(ctx, msg)
	}
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.MarkAsSent(ctx, msg.ID); updateErr != nil {
			s.logger.Error("更新消息状态失败", zap.Int64("id", msg.ID), zap.Error(updateErr))
			return
		}
		s.logger.Debug("消息发送成功",
			zap.Int64("id", msg.ID),
			zap.String("topic", msg.Topic),
			zap.String("key", msg.MessageKey))
		return
	}

	exhausted := msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount
	s.logger.Warn("消息发送失败",
		zap.Int64("id", msg.ID),
		zap.Int("retry_count", msg.RetryCount+1),
		zap.Bool("exhausted", exhausted),
		zap.Error(err))

	if err := s.outboxRepo.RecordFailure(ctx, msg.ID, exhausted); err != nil {
		s.logger.Error("记录发送失败次数失败", zap.Int64("id", msg.ID), zap.Error(err))
	}
}
