/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-09 09:27:15
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-28 10:14:36
 * @FilePath: \go-rtlink\optimizer.go
 * @Description: 事件优化器 - 过滤、限流、去重、批量合并，保护传输与服务端
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// EventFilter 事件过滤规则
// 按事件类型静态注册；未注册的类型以普通优先级直接放行
type EventFilter struct {
	EventType string   // 事件类型
	Rooms     []string // 允许的目标房间，空表示不限
	Roles     []string // 允许的消费者角色，空表示不限
	Priority  Priority // 该类型事件的优先级
	RateLimit int      // 每秒允许条数，0 表示不限流
	Batchable bool     // 是否可合并批量发送
}

// ProcessResult 优化器处理结果
// ShouldEmit 为 false 时调用方不得直接发送：事件或被丢弃，或已进入待冲刷批次
type ProcessResult struct {
	ShouldEmit bool           // 是否应当立即发送
	Event      *OutboundEvent // 处理后的事件
	Reason     string         // 拦截原因（rate_limited / duplicate / batched）
}

// BatchEmitFunc 批次冲刷回调
type BatchEmitFunc func(batch *BatchEvent)

// rateWindow 单事件类型的秒级限流窗口
type rateWindow struct {
	windowStart time.Time
	count       int
}

// pendingBatch 待冲刷批次
// 键为 (事件类型, 优先级, 排序后的房间列表)
type pendingBatch struct {
	key       string
	events    []*OutboundEvent
	createdAt time.Time
}

// OptimizerStats 优化器统计
type OptimizerStats struct {
	Processed    int64 `json:"processed"`     // 处理总数
	Passed       int64 `json:"passed"`        // 放行数
	RateLimited  int64 `json:"rate_limited"`  // 限流丢弃数
	Deduplicated int64 `json:"deduplicated"`  // 去重丢弃数
	Batched      int64 `json:"batched"`       // 进入批次数
	BatchFlushes int64 `json:"batch_flushes"` // 批次冲刷次数
}

// EventOptimizer 事件优化器
type EventOptimizer struct {
	mu      sync.Mutex
	config  *OptimizerConfig
	filters map[string]*EventFilter
	windows map[string]*rateWindow
	seen    map[string]time.Time     // 指纹 → 最近处理时间
	batches map[string]*pendingBatch

	emit   BatchEmitFunc
	logger RTLogger
	now    func() time.Time // 时钟，可注入用于测试

	// 统计计数（原子）
	processed    int64
	passed       int64
	rateLimited  int64
	deduplicated int64
	batched      int64
	batchFlushes int64

	// 冲刷循环控制
	stopCh  chan struct{}
	stopped int32
}

// NewEventOptimizer 创建事件优化器
func NewEventOptimizer(config *OptimizerConfig, emit BatchEmitFunc) *EventOptimizer {
	config = mathx.IfEmpty(config, NewOptimizerConfig())
	return &EventOptimizer{
		config:  config,
		filters: make(map[string]*EventFilter),
		windows: make(map[string]*rateWindow),
		seen:    make(map[string]time.Time),
		batches: make(map[string]*pendingBatch),
		emit:    emit,
		logger:  DefaultLogger,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// SetLogger 设置日志器
func (o *EventOptimizer) SetLogger(l RTLogger) *EventOptimizer {
	o.logger = l
	return o
}

// RegisterFilter 注册事件过滤规则（同类型覆盖）
func (o *EventOptimizer) RegisterFilter(f *EventFilter) {
	if f == nil || f.EventType == "" {
		return
	}
	syncx.WithLock(&o.mu, func() {
		o.filters[f.EventType] = f
	})
	o.logger.DebugKV("事件过滤规则已注册",
		"event_type", f.EventType,
		"priority", f.Priority.String(),
		"rate_limit", f.RateLimit,
		"batchable", f.Batchable,
	)
}

// GetFilter 查询事件过滤规则
func (o *EventOptimizer) GetFilter(eventType string) *EventFilter {
	return syncx.WithLockReturnValue(&o.mu, func() *EventFilter {
		return o.filters[eventType]
	})
}

// ProcessEvent 处理出站事件
// 顺序：限流 → 去重 → 批量合并；critical/high 不限流不合并，去重仍然生效
func (o *EventOptimizer) ProcessEvent(ev *OutboundEvent) *ProcessResult {
	atomic.AddInt64(&o.processed, 1)

	filter := o.GetFilter(ev.Type)
	if filter == nil {
		// 未注册类型：直接放行，不做任何优化
		atomic.AddInt64(&o.passed, 1)
		return &ProcessResult{ShouldEmit: true, Event: ev}
	}

	ev.Priority = filter.Priority

	// 目标过滤：规则限定了允许房间时，裁剪到交集，交集为空即丢弃
	if len(filter.Rooms) > 0 && len(ev.Rooms) > 0 {
		allowed := make(map[string]bool, len(filter.Rooms))
		for _, room := range filter.Rooms {
			allowed[room] = true
		}
		ev.Rooms = mathx.FilterSlice(ev.Rooms, func(room string) bool {
			return allowed[room]
		})
		if len(ev.Rooms) == 0 {
			o.logger.DebugKV("事件目标房间全部被规则过滤", "event_type", ev.Type)
			return &ProcessResult{ShouldEmit: false, Reason: "filtered"}
		}
	}

	// 限流：高优先级事件豁免
	if filter.RateLimit > 0 && ev.Priority < PriorityHigh {
		if !o.allowRate(ev.Type, filter.RateLimit) {
			atomic.AddInt64(&o.rateLimited, 1)
			o.logger.DebugKV("事件被限流丢弃",
				"event_type", ev.Type,
				"rate_limit", filter.RateLimit,
			)
			return &ProcessResult{ShouldEmit: false, Reason: "rate_limited"}
		}
	}

	// 去重：所有优先级一视同仁
	if o.isDuplicate(ev) {
		atomic.AddInt64(&o.deduplicated, 1)
		o.logger.DebugKV("重复事件已丢弃", "event_type", ev.Type)
		return &ProcessResult{ShouldEmit: false, Reason: "duplicate"}
	}

	// 批量合并：仅低于 high 优先级的可合并类型
	if filter.Batchable && ev.Priority < PriorityHigh {
		o.addToBatch(ev)
		atomic.AddInt64(&o.batched, 1)
		return &ProcessResult{ShouldEmit: false, Reason: "batched"}
	}

	atomic.AddInt64(&o.passed, 1)
	return &ProcessResult{ShouldEmit: true, Event: ev}
}

// allowRate 秒级窗口限流判定
func (o *EventOptimizer) allowRate(eventType string, limit int) bool {
	return syncx.WithLockReturnValue(&o.mu, func() bool {
		now := o.now()
		w, ok := o.windows[eventType]
		if !ok || now.Sub(w.windowStart) >= time.Second {
			w = &rateWindow{windowStart: now}
			o.windows[eventType] = w
		}
		if w.count >= limit {
			return false
		}
		w.count++
		return true
	})
}

// isDuplicate 去重窗口判定，首次出现时登记指纹
func (o *EventOptimizer) isDuplicate(ev *OutboundEvent) bool {
	fp := eventFingerprint(ev)
	return syncx.WithLockReturnValue(&o.mu, func() bool {
		now := o.now()
		if last, ok := o.seen[fp]; ok && now.Sub(last) < o.config.DedupWindow {
			return true
		}
		o.seen[fp] = now
		return false
	})
}

// eventFingerprint 事件内容指纹：类型+目标+主题+数据摘要
func eventFingerprint(ev *OutboundEvent) string {
	rooms := make([]string, len(ev.Rooms))
	copy(rooms, ev.Rooms)
	sort.Strings(rooms)

	data, _ := json.Marshal(ev.Data)
	sum := sha256.Sum256(data)

	return fmt.Sprintf("%s|%s|%s|%s",
		ev.Type, strings.Join(rooms, ","), ev.Subject, hex.EncodeToString(sum[:8]))
}

// batchKey 批次键：(类型, 优先级, 排序后的房间列表)
func batchKey(ev *OutboundEvent) string {
	rooms := make([]string, len(ev.Rooms))
	copy(rooms, ev.Rooms)
	sort.Strings(rooms)
	return fmt.Sprintf("%s|%d|%s", ev.Type, ev.Priority, strings.Join(rooms, ","))
}

// addToBatch 事件进入待冲刷批次，满批立即冲刷
func (o *EventOptimizer) addToBatch(ev *OutboundEvent) {
	var full *pendingBatch
	syncx.WithLock(&o.mu, func() {
		key := batchKey(ev)
		b, ok := o.batches[key]
		if !ok {
			b = &pendingBatch{key: key, createdAt: o.now()}
			o.batches[key] = b
		}
		b.events = append(b.events, ev)
		if len(b.events) >= o.config.MaxBatchSize {
			delete(o.batches, key)
			full = b
		}
	})

	if full != nil {
		o.flushBatch(full)
	}
}

// flushBatch 冲刷单个批次，产出合成 eventBatch 事件
func (o *EventOptimizer) flushBatch(b *pendingBatch) {
	if len(b.events) == 0 {
		return
	}
	atomic.AddInt64(&o.batchFlushes, 1)

	types := mathx.SliceUniq(collectTypes(b.events))
	batch := &BatchEvent{
		Events:     b.events,
		Count:      len(b.events),
		EventTypes: types,
		FlushedAt:  o.now(),
	}

	o.logger.DebugKV("批次已冲刷",
		"count", batch.Count,
		"event_types", strings.Join(types, ","),
	)
	if o.emit != nil {
		o.emit(batch)
	}
}

// collectTypes 汇集批次内原始事件类型
func collectTypes(events []*OutboundEvent) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

// FlushExpired 冲刷窗口到期的批次并清理过期去重指纹
// 由冲刷循环周期调用，也可在测试中直接驱动
func (o *EventOptimizer) FlushExpired() {
	var expired []*pendingBatch
	syncx.WithLock(&o.mu, func() {
		now := o.now()
		for key, b := range o.batches {
			if now.Sub(b.createdAt) >= o.config.BatchWindow {
				delete(o.batches, key)
				expired = append(expired, b)
			}
		}
		for fp, last := range o.seen {
			if now.Sub(last) >= o.config.DedupWindow {
				delete(o.seen, fp)
			}
		}
	})

	for _, b := range expired {
		o.flushBatch(b)
	}
}

// Start 启动批次冲刷循环
func (o *EventOptimizer) Start() {
	syncx.Go(context.Background()).Exec(func() {
		ticker := time.NewTicker(o.config.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-o.stopCh:
				return
			case <-ticker.C:
				o.FlushExpired()
			}
		}
	})
}

// Stop 停止冲刷循环，残余批次立即冲刷避免丢事件
func (o *EventOptimizer) Stop() {
	if !atomic.CompareAndSwapInt32(&o.stopped, 0, 1) {
		return
	}
	close(o.stopCh)

	var remaining []*pendingBatch
	syncx.WithLock(&o.mu, func() {
		for key, b := range o.batches {
			delete(o.batches, key)
			remaining = append(remaining, b)
		}
	})
	for _, b := range remaining {
		o.flushBatch(b)
	}
}

// PendingBatchCount 当前待冲刷批次数
func (o *EventOptimizer) PendingBatchCount() int {
	return syncx.WithLockReturnValue(&o.mu, func() int {
		return len(o.batches)
	})
}

// PendingEventCount 当前批次内待冲刷事件总数
func (o *EventOptimizer) PendingEventCount() int {
	return syncx.WithLockReturnValue(&o.mu, func() int {
		n := 0
		for _, b := range o.batches {
			n += len(b.events)
		}
		return n
	})
}

// Stats 返回统计快照
func (o *EventOptimizer) Stats() *OptimizerStats {
	return &OptimizerStats{
		Processed:    atomic.LoadInt64(&o.processed),
		Passed:       atomic.LoadInt64(&o.passed),
		RateLimited:  atomic.LoadInt64(&o.rateLimited),
		Deduplicated: atomic.LoadInt64(&o.deduplicated),
		Batched:      atomic.LoadInt64(&o.batched),
		BatchFlushes: atomic.LoadInt64(&o.batchFlushes),
	}
}
