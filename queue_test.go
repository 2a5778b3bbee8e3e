/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-04-02 10:15:23
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-29 23:05:41
 * @FilePath: \go-rtlink\queue_test.go
 * @Description:
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(maxSize int) *MessageQueue {
	config := NewQueueConfig().
		WithMaxSize(maxSize).
		WithMaxRetries(3).
		WithBaseRetryDelay(time.Second)
	return NewMessageQueue(config).SetLogger(NewNoOpLogger())
}

// TestQueuePriorityOrdering 测试高优先级先出、同优先级先进先出
func TestQueuePriorityOrdering(t *testing.T) {
	q := newTestQueue(10)

	q.Enqueue("low_1", nil, PriorityLow)
	q.Enqueue("normal_1", nil, PriorityNormal)
	q.Enqueue("critical_1", nil, PriorityCritical)
	q.Enqueue("normal_2", nil, PriorityNormal)
	q.Enqueue("high_1", nil, PriorityHigh)

	var order []string
	q.Flush(context.Background(), func(msg *QueuedMessage) error {
		order = append(order, msg.Type)
		return nil
	})

	assert.Equal(t, []string{"critical_1", "high_1", "normal_1", "normal_2", "low_1"}, order)
	assert.Equal(t, 0, q.Len())
}

// TestQueueEvictsOldestLowWhenFull 测试满载时驱逐最老的低优先级消息
func TestQueueEvictsOldestLowWhenFull(t *testing.T) {
	q := newTestQueue(3)

	var dropped []*QueuedMessage
	var reasons []DropReason
	q.SetDropHandler(func(msg *QueuedMessage, reason DropReason) {
		dropped = append(dropped, msg)
		reasons = append(reasons, reason)
	})

	q.Enqueue("low_old", nil, PriorityLow)
	q.Enqueue("low_new", nil, PriorityLow)
	q.Enqueue("normal", nil, PriorityNormal)

	id := q.Enqueue("high", nil, PriorityHigh)
	require.NotEmpty(t, id)

	assert.Equal(t, 3, q.Len())
	require.Len(t, dropped, 1)
	assert.Equal(t, "low_old", dropped[0].Type)
	assert.Equal(t, DropReasonEvicted, reasons[0])
}

// TestQueueRejectsWhenFullWithoutLow 测试满载且无低优先级可驱逐时拒绝入队
func TestQueueRejectsWhenFullWithoutLow(t *testing.T) {
	q := newTestQueue(2)

	require.NotEmpty(t, q.Enqueue("a", nil, PriorityNormal))
	require.NotEmpty(t, q.Enqueue("b", nil, PriorityHigh))

	id := q.Enqueue("c", nil, PriorityCritical)
	assert.Empty(t, id)
	assert.Equal(t, 2, q.Len())
}

// TestQueueRetryBackoffAndDrop 测试失败退避与超限丢弃
func TestQueueRetryBackoffAndDrop(t *testing.T) {
	q := newTestQueue(10)
	now := time.Now()
	q.now = func() time.Time { return now }

	var dropped []*QueuedMessage
	q.SetDropHandler(func(msg *QueuedMessage, reason DropReason) {
		assert.Equal(t, DropReasonRetryExceeded, reason)
		dropped = append(dropped, msg)
	})

	q.Enqueue("doomed", nil, PriorityNormal)
	sendErr := errors.New("write: broken pipe")
	failAll := func(msg *QueuedMessage) error { return sendErr }

	// 第一次失败：退避 1s
	result := q.Flush(context.Background(), failAll)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, q.Len())

	status := q.GetStatus()
	require.NotNil(t, status.NextRetryAt)
	assert.Equal(t, now.Add(time.Second), *status.NextRetryAt)

	// 未到期不重试
	result = q.Flush(context.Background(), failAll)
	assert.Equal(t, 0, result.Failed)

	// 第二次失败：退避 2s
	now = now.Add(time.Second)
	result = q.Flush(context.Background(), failAll)
	assert.Equal(t, 1, result.Failed)

	// 第三次失败：退避 4s
	now = now.Add(2 * time.Second)
	result = q.Flush(context.Background(), failAll)
	assert.Equal(t, 1, result.Failed)

	// 第四次失败：超过最大重试，永久丢弃
	now = now.Add(4 * time.Second)
	result = q.Flush(context.Background(), failAll)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 0, q.Len())
	require.Len(t, dropped, 1)
	assert.Equal(t, "doomed", dropped[0].Type)
}

// TestQueueFlushIdempotent 测试冲刷幂等：在途冲刷期间的再次调用直接返回
func TestQueueFlushIdempotent(t *testing.T) {
	q := newTestQueue(10)
	q.Enqueue("a", nil, PriorityNormal)
	q.Enqueue("b", nil, PriorityNormal)

	entered := make(chan struct{})
	release := make(chan struct{})

	go func() {
		q.Flush(context.Background(), func(msg *QueuedMessage) error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	// 第一轮冲刷尚未结束
	result := q.Flush(context.Background(), func(msg *QueuedMessage) error {
		t.Fatal("并发冲刷不应触达发送函数")
		return nil
	})
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 2, result.Remaining)
	close(release)
}

// TestQueuePersistRestore 测试持久化快照的保存与恢复
func TestQueuePersistRestore(t *testing.T) {
	store := NewMemoryQueueStore()
	ctx := context.Background()

	q := newTestQueue(10)
	q.SetStore(store)
	q.Enqueue("pending_1", map[string]interface{}{"k": "v"}, PriorityHigh)
	q.Enqueue("pending_2", nil, PriorityNormal)
	require.NoError(t, q.Persist(ctx))

	restored := newTestQueue(10)
	restored.SetStore(store)
	require.NoError(t, restored.Restore(ctx))

	assert.Equal(t, 2, restored.Len())
	status := restored.GetStatus()
	assert.Equal(t, 1, status.ByPriority[PriorityHigh.String()])
	assert.Equal(t, 1, status.ByPriority[PriorityNormal.String()])
}

// TestQueueRestoreDiscardsExpiredSnapshot 测试过期快照整体丢弃
func TestQueueRestoreDiscardsExpiredSnapshot(t *testing.T) {
	store := NewMemoryQueueStore()
	ctx := context.Background()

	q := newTestQueue(10)
	q.SetStore(store)
	q.Enqueue("stale", nil, PriorityNormal)
	require.NoError(t, q.Persist(ctx))

	restored := newTestQueue(10)
	restored.SetStore(store)
	restored.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	var dropped []DropReason
	restored.SetDropHandler(func(msg *QueuedMessage, reason DropReason) {
		dropped = append(dropped, reason)
	})

	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, 0, restored.Len())
	assert.Equal(t, []DropReason{DropReasonExpired}, dropped)

	// 过期快照应同时从后端清除
	env, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, env)
}

// TestQueueRestoreEmptyStore 测试空后端恢复为空操作
func TestQueueRestoreEmptyStore(t *testing.T) {
	q := newTestQueue(10)
	q.SetStore(NewMemoryQueueStore())
	require.NoError(t, q.Restore(context.Background()))
	assert.Equal(t, 0, q.Len())
}

// TestQueueStatus 测试状态快照
func TestQueueStatus(t *testing.T) {
	q := newTestQueue(10)
	now := time.Now()
	q.now = func() time.Time { return now }

	q.Enqueue("a", nil, PriorityNormal)
	now = now.Add(5 * time.Second)
	q.Enqueue("b", nil, PriorityCritical)

	status := q.GetStatus()
	assert.Equal(t, 2, status.Count)
	assert.False(t, status.Processing)
	assert.Equal(t, 5*time.Second, status.OldestAge)
	assert.Nil(t, status.NextRetryAt)
}
