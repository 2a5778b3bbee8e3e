/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-12 14:20:09
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-29 20:11:54
 * @FilePath: \go-rtlink\perf_monitor.go
 * @Description: 性能监控 - 事件计数、延迟窗口、内存泄漏启发式、连接测速
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// PerfStats 性能统计快照
type PerfStats struct {
	EventsSent      int64         `json:"events_sent"`
	EventsReceived  int64         `json:"events_received"`
	EventsErrored   int64         `json:"events_errored"`
	Reconnections   int64         `json:"reconnections"`
	AvgLatencyMs    float64       `json:"avg_latency_ms"`
	MaxLatencyMs    float64       `json:"max_latency_ms"`
	LatencySamples  int           `json:"latency_samples"`
	WindowStartedAt time.Time     `json:"window_started_at"`
	Uptime          time.Duration `json:"uptime"`
	LeakSuspected   bool          `json:"leak_suspected"`
	MemoryTrend     MemoryTrend   `json:"memory_trend"`
}

// memSample 内存采样点
type memSample struct {
	heapAlloc uint64
	takenAt   time.Time
}

// connTest 在途连接测速
type connTest struct {
	label     string
	startedAt time.Time
}

// ConnTestResult 连接测速结果
type ConnTestResult struct {
	Label    string        `json:"label"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
}

// PerfMonitor 性能监控
// 计数器按固定窗口滚动清零，延迟保留滑动窗口内的样本
type PerfMonitor struct {
	mu     sync.RWMutex
	config *MonitorConfig
	logger RTLogger

	// 窗口计数器（原子）
	eventsSent     int64
	eventsReceived int64
	eventsErrored  int64
	reconnections  int64

	// 延迟滑动窗口（mu 保护）
	latencies []float64

	// 内存采样环（mu 保护）
	memSamples []memSample
	memTrend   MemoryTrend

	// 在途测速（mu 保护）
	tests map[string]*connTest

	windowStartedAt time.Time
	startedAt       time.Time
	leakSuspected   int32

	stopCh  chan struct{}
	stopped int32

	// 注入点，测试用
	now      func() time.Time
	readHeap func() uint64
}

// NewPerfMonitor 创建性能监控
func NewPerfMonitor(config *MonitorConfig) *PerfMonitor {
	if config == nil {
		config = NewMonitorConfig()
	}
	now := time.Now()
	return &PerfMonitor{
		config:          config,
		logger:          DefaultLogger,
		latencies:       make([]float64, 0, config.LatencyWindow),
		memSamples:      make([]memSample, 0, 2*config.MemSampleSize),
		tests:           make(map[string]*connTest),
		windowStartedAt: now,
		startedAt:       now,
		stopCh:          make(chan struct{}),
		now:             time.Now,
		readHeap:        readHeapAlloc,
	}
}

// SetLogger 设置日志器
func (p *PerfMonitor) SetLogger(l RTLogger) *PerfMonitor {
	p.logger = l
	return p
}

// readHeapAlloc 当前堆占用
func readHeapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// ============================================================================
// 计数
// ============================================================================

// RecordEventSent 记一次出站事件
func (p *PerfMonitor) RecordEventSent() {
	atomic.AddInt64(&p.eventsSent, 1)
}

// RecordEventReceived 记一次入站事件
func (p *PerfMonitor) RecordEventReceived() {
	atomic.AddInt64(&p.eventsReceived, 1)
}

// RecordEventError 记一次事件错误
func (p *PerfMonitor) RecordEventError() {
	atomic.AddInt64(&p.eventsErrored, 1)
}

// RecordReconnection 记一次重连
func (p *PerfMonitor) RecordReconnection() {
	atomic.AddInt64(&p.reconnections, 1)
}

// RecordLatency 记录一个延迟样本（毫秒）
// 窗口满后淘汰最旧样本
func (p *PerfMonitor) RecordLatency(ms float64) {
	syncx.WithLock(&p.mu, func() {
		p.latencies = append(p.latencies, ms)
		if len(p.latencies) > p.config.LatencyWindow {
			p.latencies = p.latencies[len(p.latencies)-p.config.LatencyWindow:]
		}
	})
}

// ============================================================================
// 连接测速
// ============================================================================

// StartConnectionTest 开始一次命名测速，重复标签覆盖旧记录
func (p *PerfMonitor) StartConnectionTest(label string) {
	syncx.WithLock(&p.mu, func() {
		p.tests[label] = &connTest{label: label, startedAt: p.now()}
	})
}

// CompleteConnectionTest 结束测速并返回耗时
// 未知标签返回 nil
func (p *PerfMonitor) CompleteConnectionTest(label string, success bool) *ConnTestResult {
	var t *connTest
	syncx.WithLock(&p.mu, func() {
		t = p.tests[label]
		delete(p.tests, label)
	})
	if t == nil {
		return nil
	}

	result := &ConnTestResult{
		Label:    label,
		Duration: p.now().Sub(t.startedAt),
		Success:  success,
	}
	p.logger.LogPerformance("connection_test", result.Duration.String(), map[string]interface{}{
		"label":   label,
		"success": success,
	})
	if success {
		p.RecordLatency(float64(result.Duration.Milliseconds()))
	}
	return result
}

// ============================================================================
// 内存泄漏启发式
// ============================================================================

// MemoryTrend 内存趋势方向
type MemoryTrend string

const (
	MemTrendUnknown   MemoryTrend = "unknown"   // 样本不足
	MemTrendStable    MemoryTrend = "stable"    // 波动在阈值内
	MemTrendGrowing   MemoryTrend = "growing"   // 增长超阈值
	MemTrendShrinking MemoryTrend = "shrinking" // 下降超阈值
)

// SampleMemory 采一个内存样本并复查泄漏趋势
// 样本环保留最近 2×MemSampleSize 个点，比较近 N 个样本均值
// 与其前 N 个样本均值：涨幅超过 LeakThreshold 百分比时置疑似泄漏标记
func (p *PerfMonitor) SampleMemory() {
	heap := p.readHeap()

	var trend MemoryTrend
	var growthPct float64
	syncx.WithLock(&p.mu, func() {
		p.memSamples = append(p.memSamples, memSample{heapAlloc: heap, takenAt: p.now()})
		if max := 2 * p.config.MemSampleSize; len(p.memSamples) > max {
			p.memSamples = p.memSamples[len(p.memSamples)-max:]
		}
		trend, growthPct = p.memTrendLocked()
		p.memTrend = trend
	})

	suspected := trend == MemTrendGrowing
	if suspected && atomic.CompareAndSwapInt32(&p.leakSuspected, 0, 1) {
		p.logger.WarnKV("内存持续增长，疑似泄漏",
			"samples", p.config.MemSampleSize,
			"growth_pct", growthPct,
			"threshold_pct", p.config.LeakThreshold,
		)
	}
	if !suspected {
		atomic.StoreInt32(&p.leakSuspected, 0)
	}
}

// memTrendLocked 判定内存趋势（需持锁）
// 返回趋势方向与近窗相对前窗的涨幅百分比
func (p *PerfMonitor) memTrendLocked() (MemoryTrend, float64) {
	n := p.config.MemSampleSize
	if len(p.memSamples) < 2*n {
		return MemTrendUnknown, 0
	}

	avg := func(samples []memSample) float64 {
		var sum float64
		for _, s := range samples {
			sum += float64(s.heapAlloc)
		}
		return sum / float64(len(samples))
	}
	recent := avg(p.memSamples[len(p.memSamples)-n:])
	previous := avg(p.memSamples[len(p.memSamples)-2*n : len(p.memSamples)-n])
	if previous == 0 {
		return MemTrendUnknown, 0
	}

	growthPct := (recent - previous) / previous * 100
	switch {
	case growthPct > p.config.LeakThreshold:
		return MemTrendGrowing, growthPct
	case growthPct < -p.config.LeakThreshold:
		return MemTrendShrinking, growthPct
	default:
		return MemTrendStable, growthPct
	}
}

// LeakSuspected 是否疑似内存泄漏
func (p *PerfMonitor) LeakSuspected() bool {
	return atomic.LoadInt32(&p.leakSuspected) == 1
}

// MemoryTrendDirection 当前内存趋势方向
func (p *PerfMonitor) MemoryTrendDirection() MemoryTrend {
	return syncx.WithRLockReturnValue(&p.mu, func() MemoryTrend {
		if p.memTrend == "" {
			return MemTrendUnknown
		}
		return p.memTrend
	})
}

// ============================================================================
// 窗口与快照
// ============================================================================

// Stats 返回当前窗口快照
func (p *PerfMonitor) Stats() *PerfStats {
	type window struct {
		avg, max float64
		samples  int
		start    time.Time
	}
	w := syncx.WithRLockReturnValue(&p.mu, func() window {
		w := window{samples: len(p.latencies), start: p.windowStartedAt}
		if w.samples > 0 {
			var sum float64
			for _, v := range p.latencies {
				sum += v
				w.max = mathx.IF(v > w.max, v, w.max)
			}
			w.avg = sum / float64(w.samples)
		}
		return w
	})

	return &PerfStats{
		EventsSent:      atomic.LoadInt64(&p.eventsSent),
		EventsReceived:  atomic.LoadInt64(&p.eventsReceived),
		EventsErrored:   atomic.LoadInt64(&p.eventsErrored),
		Reconnections:   atomic.LoadInt64(&p.reconnections),
		AvgLatencyMs:    w.avg,
		MaxLatencyMs:    w.max,
		LatencySamples:  w.samples,
		WindowStartedAt: w.start,
		Uptime:          p.now().Sub(p.startedAt),
		LeakSuspected:   p.LeakSuspected(),
		MemoryTrend:     p.MemoryTrendDirection(),
	}
}

// ResetWindow 清零窗口计数器，延迟窗口与内存样本保留
func (p *PerfMonitor) ResetWindow() {
	atomic.StoreInt64(&p.eventsSent, 0)
	atomic.StoreInt64(&p.eventsReceived, 0)
	atomic.StoreInt64(&p.eventsErrored, 0)
	atomic.StoreInt64(&p.reconnections, 0)
	syncx.WithLock(&p.mu, func() {
		p.windowStartedAt = p.now()
	})
}

// Start 启动后台采样与窗口滚动
func (p *PerfMonitor) Start() {
	syncx.Go(context.Background()).Exec(func() {
		sampleTicker := time.NewTicker(p.config.SampleInterval)
		resetTicker := time.NewTicker(p.config.ResetInterval)
		defer sampleTicker.Stop()
		defer resetTicker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-sampleTicker.C:
				p.SampleMemory()
			case <-resetTicker.C:
				p.ResetWindow()
			}
		}
	})
}

// Stop 停止后台采样
func (p *PerfMonitor) Stop() {
	if atomic.CompareAndSwapInt32(&p.stopped, 0, 1) {
		close(p.stopCh)
	}
}
