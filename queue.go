/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-06 11:12:40
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-27 16:09:51
 * @FilePath: \go-rtlink\queue.go
 * @Description: 离线消息队列 - 优先级有序、容量有界、指数退避重试、可持久化
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// DropReason 消息被丢弃的原因
type DropReason string

const (
	DropReasonRetryExceeded DropReason = "retry_exceeded" // 超过最大重试次数
	DropReasonEvicted       DropReason = "evicted"        // 容量不足被驱逐
	DropReasonExpired       DropReason = "expired"        // 持久化快照过期
)

// DropHandler 丢弃回调，用于审计归档等旁路处理
// 回调在锁外执行，不得阻塞冲刷主流程
type DropHandler func(msg *QueuedMessage, reason DropReason)

// SendFunc 冲刷时的发送函数
type SendFunc func(msg *QueuedMessage) error

// FlushResult 一次冲刷的结果
type FlushResult struct {
	Sent      int // 成功发送数
	Failed    int // 本轮失败数（仍保留待重试）
	Dropped   int // 永久丢弃数
	Remaining int // 冲刷后仍在队列中的消息数
}

// QueueStatus 队列状态快照，仅用于观测
type QueueStatus struct {
	Count       int              `json:"count"`        // 消息总数
	ByPriority  map[string]int   `json:"by_priority"`  // 按优先级分布
	Processing  bool             `json:"processing"`   // 是否正在冲刷
	OldestAge   time.Duration    `json:"oldest_age"`   // 最老消息年龄
	NextRetryAt *time.Time       `json:"next_retry_at,omitempty"` // 最近的待重试时间
}

// MessageQueue 离线消息队列
// 不变式：items 始终按优先级降序排列，同优先级保持 FIFO
type MessageQueue struct {
	mu         sync.Mutex
	items      []*QueuedMessage
	config     *QueueConfig
	store      QueueStore  // 可选，持久化后端
	onDrop     DropHandler // 可选，丢弃回调
	processing int32       // 冲刷幂等标记（原子）
	logger     RTLogger
	now        func() time.Time // 时钟，可注入用于测试
}

// NewMessageQueue 创建离线消息队列
func NewMessageQueue(config *QueueConfig) *MessageQueue {
	config = mathx.IfEmpty(config, NewQueueConfig())
	return &MessageQueue{
		items:  make([]*QueuedMessage, 0, config.MaxSize),
		config: config,
		logger: DefaultLogger,
		now:    time.Now,
	}
}

// SetStore 设置持久化后端
func (q *MessageQueue) SetStore(store QueueStore) *MessageQueue {
	q.store = store
	return q
}

// SetDropHandler 设置丢弃回调
func (q *MessageQueue) SetDropHandler(h DropHandler) *MessageQueue {
	q.onDrop = h
	return q
}

// SetLogger 设置日志器
func (q *MessageQueue) SetLogger(l RTLogger) *MessageQueue {
	q.logger = l
	return q
}

// Enqueue 按优先级入队
// 返回生成的消息ID；队列已满且无可驱逐的低优先级消息时返回空串
func (q *MessageQueue) Enqueue(msgType string, payload interface{}, priority Priority) string {
	msg := NewQueuedMessage(msgType, payload, priority, q.config.MaxRetries)
	msg.CreatedAt = q.now()

	var evicted *QueuedMessage
	accepted := syncx.WithLockReturnValue(&q.mu, func() bool {
		if len(q.items) >= q.config.MaxSize {
			idx := q.oldestLowIndexLocked()
			if idx < 0 {
				return false
			}
			evicted = q.items[idx]
			q.items = append(q.items[:idx], q.items[idx+1:]...)
		}
		q.insertLocked(msg)
		return true
	})

	if evicted != nil {
		q.logger.WarnKV("队列已满，驱逐最老的低优先级消息",
			"evicted_id", evicted.ID,
			"evicted_type", evicted.Type,
			"incoming_type", msgType,
		)
		q.notifyDrop(evicted, DropReasonEvicted)
	}

	if !accepted {
		q.logger.WarnKV("队列已满且无可驱逐消息，拒绝入队",
			"type", msgType,
			"priority", priority.String(),
			"max_size", q.config.MaxSize,
		)
		return ""
	}

	q.logger.DebugKV("消息已入队",
		"id", msg.ID,
		"type", msg.Type,
		"priority", priority.String(),
		"queue_len", q.Len(),
	)
	return msg.ID
}

// insertLocked 按优先级降序插入，同优先级追加到末尾（需持锁）
func (q *MessageQueue) insertLocked(msg *QueuedMessage) {
	pos := len(q.items)
	for i, item := range q.items {
		if item.Priority < msg.Priority {
			pos = i
			break
		}
	}
	q.items = append(q.items, nil)
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = msg
}

// oldestLowIndexLocked 返回最早入队的低优先级消息下标，不存在返回 -1（需持锁）
func (q *MessageQueue) oldestLowIndexLocked() int {
	// 低优先级段位于尾部，段首即最早入队者
	for i, item := range q.items {
		if item.Priority == PriorityLow {
			return i
		}
	}
	return -1
}

// Flush 冲刷队列
// 幂等：已有冲刷在进行时直接返回空结果
// 发送成功移除；失败按 baseDelay*2^(retryCount-1) 安排退避重试；超过最大重试永久丢弃
func (q *MessageQueue) Flush(ctx context.Context, send SendFunc) *FlushResult {
	result := &FlushResult{}
	if !atomic.CompareAndSwapInt32(&q.processing, 0, 1) {
		result.Remaining = q.Len()
		return result
	}
	defer atomic.StoreInt32(&q.processing, 0)

	attempted := make(map[string]bool)
	var drops []*QueuedMessage

	for {
		if ctx.Err() != nil {
			break
		}

		// 选取下一个到期且本轮未尝试过的消息（队列有序，取首个即可）
		msg := syncx.WithLockReturnValue(&q.mu, func() *QueuedMessage {
			now := q.now()
			for _, item := range q.items {
				if attempted[item.ID] {
					continue
				}
				if !item.NextRetryAt.IsZero() && item.NextRetryAt.After(now) {
					continue
				}
				return item
			}
			return nil
		})
		if msg == nil {
			break
		}
		attempted[msg.ID] = true

		err := send(msg)

		syncx.WithLock(&q.mu, func() {
			if err == nil {
				q.removeLocked(msg.ID)
				result.Sent++
				return
			}

			msg.RetryCount++
			if msg.RetryCount > msg.MaxRetries {
				q.removeLocked(msg.ID)
				drops = append(drops, msg)
				result.Dropped++
				return
			}

			delay := q.config.BaseRetryDelay * time.Duration(1<<uint(msg.RetryCount-1))
			msg.NextRetryAt = q.now().Add(delay)
			result.Failed++
		})

		if err != nil {
			q.logger.DebugKV("队列消息发送失败",
				"id", msg.ID,
				"type", msg.Type,
				"retry_count", msg.RetryCount,
				"error", err.Error(),
			)
		}
	}

	for _, dropped := range drops {
		q.logger.WarnKV("队列消息超过最大重试次数，永久丢弃",
			"id", dropped.ID,
			"type", dropped.Type,
			"max_retries", dropped.MaxRetries,
		)
		q.notifyDrop(dropped, DropReasonRetryExceeded)
	}

	result.Remaining = q.Len()
	if result.Sent > 0 || result.Dropped > 0 {
		q.logger.InfoKV("队列冲刷完成",
			"sent", result.Sent,
			"failed", result.Failed,
			"dropped", result.Dropped,
			"remaining", result.Remaining,
		)
	}
	return result
}

// removeLocked 按ID移除消息（需持锁）
func (q *MessageQueue) removeLocked(id string) {
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// notifyDrop 触发丢弃回调
func (q *MessageQueue) notifyDrop(msg *QueuedMessage, reason DropReason) {
	if q.onDrop != nil {
		q.onDrop(msg, reason)
	}
}

// Len 返回队列长度
func (q *MessageQueue) Len() int {
	return syncx.WithLockReturnValue(&q.mu, func() int {
		return len(q.items)
	})
}

// GetStatus 返回队列状态快照
func (q *MessageQueue) GetStatus() *QueueStatus {
	return syncx.WithLockReturnValue(&q.mu, func() *QueueStatus {
		status := &QueueStatus{
			Count:      len(q.items),
			ByPriority: make(map[string]int, 4),
			Processing: atomic.LoadInt32(&q.processing) == 1,
		}
		now := q.now()
		var oldest time.Time
		var nextRetry time.Time
		for _, item := range q.items {
			status.ByPriority[item.Priority.String()]++
			if oldest.IsZero() || item.CreatedAt.Before(oldest) {
				oldest = item.CreatedAt
			}
			if !item.NextRetryAt.IsZero() &&
				(nextRetry.IsZero() || item.NextRetryAt.Before(nextRetry)) {
				nextRetry = item.NextRetryAt
			}
		}
		if !oldest.IsZero() {
			status.OldestAge = now.Sub(oldest)
		}
		if !nextRetry.IsZero() {
			status.NextRetryAt = &nextRetry
		}
		return status
	})
}

// Snapshot 返回当前队列内容的持久化信封
func (q *MessageQueue) Snapshot() *QueueEnvelope {
	return syncx.WithLockReturnValue(&q.mu, func() *QueueEnvelope {
		items := make([]*QueuedMessage, len(q.items))
		copy(items, q.items)
		return &QueueEnvelope{Queue: items, Timestamp: q.now()}
	})
}

// Persist 将队列内容写入持久化后端
func (q *MessageQueue) Persist(ctx context.Context) error {
	if q.store == nil {
		return nil
	}
	env := q.Snapshot()
	if err := q.store.Save(ctx, env); err != nil {
		q.logger.ErrorKV("队列持久化失败", "error", err.Error(), "count", len(env.Queue))
		return ErrQueueStoreFailure
	}
	q.logger.DebugKV("队列已持久化", "count", len(env.Queue))
	return nil
}

// Restore 从持久化后端恢复队列
// 快照时间戳超过保鲜期时整体丢弃，防止陈旧消息重放
func (q *MessageQueue) Restore(ctx context.Context) error {
	if q.store == nil {
		return nil
	}
	env, err := q.store.Load(ctx)
	if err != nil {
		q.logger.ErrorKV("队列快照读取失败", "error", err.Error())
		return ErrQueueStoreFailure
	}
	if env == nil {
		return nil
	}

	if q.now().Sub(env.Timestamp) > q.config.PersistTTL {
		q.logger.WarnKV("队列快照已过期，整体丢弃",
			"snapshot_age", q.now().Sub(env.Timestamp).String(),
			"ttl", q.config.PersistTTL.String(),
			"discarded", len(env.Queue),
		)
		_ = q.store.Clear(ctx)
		for _, msg := range env.Queue {
			q.notifyDrop(msg, DropReasonExpired)
		}
		return nil
	}

	syncx.WithLock(&q.mu, func() {
		for _, msg := range env.Queue {
			if len(q.items) >= q.config.MaxSize {
				break
			}
			q.insertLocked(msg)
		}
	})
	q.logger.InfoKV("队列已从快照恢复", "count", q.Len())
	return nil
}

// Clear 清空队列
func (q *MessageQueue) Clear() {
	syncx.WithLock(&q.mu, func() {
		q.items = q.items[:0]
	})
}
