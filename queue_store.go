/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-06 15:33:27
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-27 17:20:03
 * @FilePath: \go-rtlink\queue_store.go
 * @Description: 队列持久化后端 - Redis 固定键 + Zlib 压缩信封，内存实现供测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kamalyes/go-cachex"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
	"github.com/kamalyes/go-toolbox/pkg/zipx"
	"github.com/redis/go-redis/v9"
)

// QueueStore 队列持久化后端接口
type QueueStore interface {
	// Save 保存队列信封
	Save(ctx context.Context, env *QueueEnvelope) error

	// Load 读取队列信封，不存在时返回 nil
	Load(ctx context.Context) (*QueueEnvelope, error)

	// Clear 清除持久化内容
	Clear(ctx context.Context) error
}

// DefaultQueueStoreKey 默认持久化键
const DefaultQueueStoreKey = "rtlink:outbox"

// ============================================================================
// Redis 实现
// ============================================================================

// RedisQueueStore 基于 Redis 固定键的队列持久化
// 信封经 Zlib 压缩后 SET，键 TTL 与快照保鲜期一致，双保险防陈旧重放
type RedisQueueStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisQueueStore 创建 Redis 队列持久化后端
func NewRedisQueueStore(client redis.UniversalClient, key string, ttl time.Duration) *RedisQueueStore {
	key = mathx.IF(key == "", DefaultQueueStoreKey, key)
	ttl = mathx.IF(ttl <= 0, 24*time.Hour, ttl)

	return &RedisQueueStore{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

// Save 保存队列信封
func (s *RedisQueueStore) Save(ctx context.Context, env *QueueEnvelope) error {
	compressed, err := zipx.ZlibCompressObject(env)
	if err != nil {
		return fmt.Errorf("compress queue envelope failed: %w", err)
	}
	return s.client.Set(ctx, s.key, compressed, s.ttl).Err()
}

// Load 读取队列信封
func (s *RedisQueueStore) Load(ctx context.Context) (*QueueEnvelope, error) {
	result, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	env, err := zipx.ZlibDecompressObject[*QueueEnvelope]([]byte(result))
	if err != nil {
		return nil, fmt.Errorf("decompress queue envelope failed: %w", err)
	}
	return env, nil
}

// Clear 清除持久化内容
func (s *RedisQueueStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// ============================================================================
// 内存实现（测试与无 Redis 环境）
// ============================================================================

// MemoryQueueStore 内存队列持久化
type MemoryQueueStore struct {
	mu  sync.RWMutex
	env *QueueEnvelope
}

// NewMemoryQueueStore 创建内存队列持久化后端
func NewMemoryQueueStore() *MemoryQueueStore {
	return &MemoryQueueStore{}
}

// Save 保存队列信封
func (s *MemoryQueueStore) Save(_ context.Context, env *QueueEnvelope) error {
	syncx.WithLock(&s.mu, func() {
		// 深拷贝切片，避免调用方后续修改影响快照
		items := make([]*QueuedMessage, len(env.Queue))
		copy(items, env.Queue)
		s.env = &QueueEnvelope{Queue: items, Timestamp: env.Timestamp}
	})
	return nil
}

// Load 读取队列信封
func (s *MemoryQueueStore) Load(_ context.Context) (*QueueEnvelope, error) {
	return syncx.WithRLockReturnValue(&s.mu, func() *QueueEnvelope {
		return s.env
	}), nil
}

// Clear 清除持久化内容
func (s *MemoryQueueStore) Clear(_ context.Context) error {
	syncx.WithLock(&s.mu, func() {
		s.env = nil
	})
	return nil
}

// ============================================================================
// 队列变更广播（可选）
// ============================================================================

// QueueNotifyChannel 队列变更广播频道
const QueueNotifyChannel = "rtlink:outbox:events"

// QueueNotice 队列变更通知
type QueueNotice struct {
	Kind      string    `json:"kind"`  // persisted / flushed / restored
	Count     int       `json:"count"` // 队列当前消息数
	Timestamp time.Time `json:"timestamp"`
}

// NotifyingQueueStore 在持久化之上叠加 PubSub 广播
// 同一后端的其它仪表盘进程可据此感知离线队列变化
type NotifyingQueueStore struct {
	QueueStore
	pubsub *cachex.PubSub
}

// NewNotifyingQueueStore 包装持久化后端并附加广播能力
func NewNotifyingQueueStore(inner QueueStore, pubsub *cachex.PubSub) *NotifyingQueueStore {
	return &NotifyingQueueStore{
		QueueStore: inner,
		pubsub:     pubsub,
	}
}

// Save 保存并广播
func (s *NotifyingQueueStore) Save(ctx context.Context, env *QueueEnvelope) error {
	if err := s.QueueStore.Save(ctx, env); err != nil {
		return err
	}
	s.publish(ctx, "persisted", len(env.Queue))
	return nil
}

// Clear 清除并广播
func (s *NotifyingQueueStore) Clear(ctx context.Context) error {
	if err := s.QueueStore.Clear(ctx); err != nil {
		return err
	}
	s.publish(ctx, "flushed", 0)
	return nil
}

// publish 发布队列变更通知，失败仅记录不回传
func (s *NotifyingQueueStore) publish(ctx context.Context, kind string, count int) {
	if s.pubsub == nil {
		return
	}
	notice := &QueueNotice{Kind: kind, Count: count, Timestamp: time.Now()}
	data, err := marshalNotice(notice)
	if err != nil {
		return
	}
	if err := s.pubsub.Publish(ctx, QueueNotifyChannel, data); err != nil {
		DefaultLogger.DebugKV("队列变更广播失败", "kind", kind, "error", err.Error())
	}
}

// marshalNotice 序列化通知为字符串载荷
func marshalNotice(notice *QueueNotice) (string, error) {
	data, err := json.Marshal(notice)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
