/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-04-03 13:28:06
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-29 23:31:17
 * @FilePath: \go-rtlink\optimizer_test.go
 * @Description:
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOptimizer(emit BatchEmitFunc) *EventOptimizer {
	config := NewOptimizerConfig().
		WithMaxBatchSize(3).
		WithBatchWindow(100 * time.Millisecond).
		WithDedupWindow(3 * time.Second)
	return NewEventOptimizer(config, emit).SetLogger(NewNoOpLogger())
}

func outbound(eventType string, data interface{}) *OutboundEvent {
	return &OutboundEvent{Type: eventType, Data: data, Priority: PriorityNormal}
}

// TestOptimizerPassesUnregisteredTypes 测试未注册类型直接放行
func TestOptimizerPassesUnregisteredTypes(t *testing.T) {
	o := newTestOptimizer(nil)

	ev := outbound("unknown_event", "payload")
	result := o.ProcessEvent(ev)

	assert.True(t, result.ShouldEmit)
	assert.Same(t, ev, result.Event)
}

// TestOptimizerAssignsFilterPriority 测试规则优先级覆盖事件自带优先级
func TestOptimizerAssignsFilterPriority(t *testing.T) {
	o := newTestOptimizer(nil)
	o.RegisterFilter(&EventFilter{EventType: "alert", Priority: PriorityCritical})

	result := o.ProcessEvent(outbound("alert", "fire"))
	require.True(t, result.ShouldEmit)
	assert.Equal(t, PriorityCritical, result.Event.Priority)
}

// TestOptimizerRoomFiltering 测试目标房间裁剪与空交集丢弃
func TestOptimizerRoomFiltering(t *testing.T) {
	o := newTestOptimizer(nil)
	o.RegisterFilter(&EventFilter{
		EventType: "dashboardUpdate",
		Priority:  PriorityNormal,
		Rooms:     []string{"ops", "admin"},
	})

	ev := outbound("dashboardUpdate", 1)
	ev.Rooms = []string{"ops", "guest"}
	result := o.ProcessEvent(ev)
	require.True(t, result.ShouldEmit)
	assert.Equal(t, []string{"ops"}, result.Event.Rooms)

	ev = outbound("dashboardUpdate", 2)
	ev.Rooms = []string{"guest"}
	result = o.ProcessEvent(ev)
	assert.False(t, result.ShouldEmit)
	assert.Equal(t, "filtered", result.Reason)
}

// TestOptimizerRateLimit 测试秒级窗口限流与窗口滚动
func TestOptimizerRateLimit(t *testing.T) {
	o := newTestOptimizer(nil)
	now := time.Now()
	o.now = func() time.Time { return now }

	o.RegisterFilter(&EventFilter{
		EventType: "userTyping",
		Priority:  PriorityLow,
		RateLimit: 2,
	})

	// 同一秒内只放行 limit 条（不同载荷避开去重）
	assert.True(t, o.ProcessEvent(outbound("userTyping", 1)).ShouldEmit)
	assert.True(t, o.ProcessEvent(outbound("userTyping", 2)).ShouldEmit)

	result := o.ProcessEvent(outbound("userTyping", 3))
	assert.False(t, result.ShouldEmit)
	assert.Equal(t, "rate_limited", result.Reason)

	// 窗口滚动后恢复放行
	now = now.Add(time.Second)
	assert.True(t, o.ProcessEvent(outbound("userTyping", 4)).ShouldEmit)

	stats := o.Stats()
	assert.Equal(t, int64(1), stats.RateLimited)
}

// TestOptimizerHighPriorityBypassesRateLimit 测试高优先级豁免限流
func TestOptimizerHighPriorityBypassesRateLimit(t *testing.T) {
	o := newTestOptimizer(nil)
	o.RegisterFilter(&EventFilter{
		EventType: "notificationNew",
		Priority:  PriorityHigh,
		RateLimit: 1,
	})

	for i := 0; i < 5; i++ {
		result := o.ProcessEvent(outbound("notificationNew", i))
		assert.True(t, result.ShouldEmit, "第 %d 条高优先级事件不应被限流", i)
	}
}

// TestOptimizerDeduplication 测试去重窗口内重复内容丢弃
func TestOptimizerDeduplication(t *testing.T) {
	o := newTestOptimizer(nil)
	now := time.Now()
	o.now = func() time.Time { return now }

	o.RegisterFilter(&EventFilter{EventType: "messageStatus", Priority: PriorityNormal})

	payload := map[string]interface{}{"id": "m1", "status": "read"}
	assert.True(t, o.ProcessEvent(outbound("messageStatus", payload)).ShouldEmit)

	result := o.ProcessEvent(outbound("messageStatus", payload))
	assert.False(t, result.ShouldEmit)
	assert.Equal(t, "duplicate", result.Reason)

	// 内容不同不算重复
	other := map[string]interface{}{"id": "m2", "status": "read"}
	assert.True(t, o.ProcessEvent(outbound("messageStatus", other)).ShouldEmit)

	// 窗口过期后同内容重新放行
	now = now.Add(3 * time.Second)
	assert.True(t, o.ProcessEvent(outbound("messageStatus", payload)).ShouldEmit)
}

// TestOptimizerDeduplicationAppliesToCritical 测试去重对高优先级同样生效
func TestOptimizerDeduplicationAppliesToCritical(t *testing.T) {
	o := newTestOptimizer(nil)
	o.RegisterFilter(&EventFilter{EventType: "alert", Priority: PriorityCritical})

	assert.True(t, o.ProcessEvent(outbound("alert", "same")).ShouldEmit)
	assert.False(t, o.ProcessEvent(outbound("alert", "same")).ShouldEmit)
}

// TestOptimizerBatchFlushOnMaxSize 测试满批立即冲刷
func TestOptimizerBatchFlushOnMaxSize(t *testing.T) {
	var batches []*BatchEvent
	o := newTestOptimizer(func(b *BatchEvent) {
		batches = append(batches, b)
	})
	o.RegisterFilter(&EventFilter{
		EventType: "userTyping",
		Priority:  PriorityLow,
		Batchable: true,
	})

	for i := 0; i < 3; i++ {
		result := o.ProcessEvent(outbound("userTyping", fmt.Sprintf("u%d", i)))
		assert.False(t, result.ShouldEmit)
		assert.Equal(t, "batched", result.Reason)
	}

	require.Len(t, batches, 1)
	assert.Equal(t, 3, batches[0].Count)
	assert.Equal(t, []string{"userTyping"}, batches[0].EventTypes)
	assert.Equal(t, 0, o.PendingBatchCount())
}

// TestOptimizerBatchFlushOnWindowExpiry 测试窗口到期冲刷未满批次
func TestOptimizerBatchFlushOnWindowExpiry(t *testing.T) {
	var batches []*BatchEvent
	o := newTestOptimizer(func(b *BatchEvent) {
		batches = append(batches, b)
	})
	now := time.Now()
	o.now = func() time.Time { return now }

	o.RegisterFilter(&EventFilter{
		EventType: "dashboardUpdate",
		Priority:  PriorityNormal,
		Batchable: true,
	})

	o.ProcessEvent(outbound("dashboardUpdate", 1))
	o.ProcessEvent(outbound("dashboardUpdate", 2))
	assert.Equal(t, 2, o.PendingEventCount())

	// 窗口未到期不冲刷
	o.FlushExpired()
	assert.Empty(t, batches)

	now = now.Add(100 * time.Millisecond)
	o.FlushExpired()
	require.Len(t, batches, 1)
	assert.Equal(t, 2, batches[0].Count)
	assert.Equal(t, 0, o.PendingEventCount())
}

// TestOptimizerHighPriorityNotBatched 测试高优先级不进批次
func TestOptimizerHighPriorityNotBatched(t *testing.T) {
	o := newTestOptimizer(func(b *BatchEvent) {
		t.Fatal("高优先级事件不应进入批次")
	})
	o.RegisterFilter(&EventFilter{
		EventType: "notificationNew",
		Priority:  PriorityHigh,
		Batchable: true,
	})

	result := o.ProcessEvent(outbound("notificationNew", "urgent"))
	assert.True(t, result.ShouldEmit)
}

// TestOptimizerStopFlushesRemaining 测试停止时冲刷残余批次
func TestOptimizerStopFlushesRemaining(t *testing.T) {
	var batches []*BatchEvent
	o := newTestOptimizer(func(b *BatchEvent) {
		batches = append(batches, b)
	})
	o.RegisterFilter(&EventFilter{
		EventType: "userTyping",
		Priority:  PriorityLow,
		Batchable: true,
	})

	o.ProcessEvent(outbound("userTyping", "u1"))
	o.Stop()

	require.Len(t, batches, 1)
	assert.Equal(t, 1, batches[0].Count)

	// 重复 Stop 为空操作
	o.Stop()
	assert.Len(t, batches, 1)
}

// TestOptimizerStats 测试统计口径
func TestOptimizerStats(t *testing.T) {
	o := newTestOptimizer(nil)
	o.RegisterFilter(&EventFilter{
		EventType: "userTyping",
		Priority:  PriorityLow,
		RateLimit: 1,
	})

	o.ProcessEvent(outbound("userTyping", 1))   // passed
	o.ProcessEvent(outbound("userTyping", 2))   // rate limited
	o.ProcessEvent(outbound("free", "x"))       // passed（未注册）

	stats := o.Stats()
	assert.Equal(t, int64(3), stats.Processed)
	assert.Equal(t, int64(2), stats.Passed)
	assert.Equal(t, int64(1), stats.RateLimited)
}
