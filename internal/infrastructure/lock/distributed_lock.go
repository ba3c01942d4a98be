package lock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// Redis 分布式锁
// ============================================================================
//
// 结算链路不使用应用层锁，计数器安全完全由数据库条件更新保证。
// 这把锁只用于后台任务：多实例部署时同一时刻只有一个实例投递 outbox，
// 避免同一条消息被多个实例重复发送。
//
// 加锁：SET key value NX PX ttl
// 释放：Lua 脚本比较 value 后再删除，防止误删其他实例的锁
//
// ============================================================================

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // 锁持有者标识
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞获取锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Unlock 释放锁，只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

// NewOutboxLock outbox 投递任务锁，instanceID 标识当前进程
func NewOutboxLock(client *redis.Client, instanceID string, expiration time.Duration) *DistributedLock {
	return NewDistributedLock(client, "treasurebuy:lock:outbox_sender", instanceID, expiration)
}
