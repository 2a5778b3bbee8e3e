/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-04-09 14:03:55
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-30 01:12:30
 * @FilePath: \go-rtlink\perf_monitor_test.go
 * @Description:
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPerfMonitor() *PerfMonitor {
	return NewPerfMonitor(NewMonitorConfig()).SetLogger(NewNoOpLogger())
}

// TestPerfMonitorCounters 测试事件计数与窗口清零
func TestPerfMonitorCounters(t *testing.T) {
	p := newTestPerfMonitor()

	p.RecordEventSent()
	p.RecordEventSent()
	p.RecordEventReceived()
	p.RecordEventError()
	p.RecordReconnection()

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.EventsSent)
	assert.Equal(t, int64(1), stats.EventsReceived)
	assert.Equal(t, int64(1), stats.EventsErrored)
	assert.Equal(t, int64(1), stats.Reconnections)

	p.ResetWindow()
	stats = p.Stats()
	assert.Equal(t, int64(0), stats.EventsSent)
	assert.Equal(t, int64(0), stats.Reconnections)
}

// TestPerfMonitorLatencyWindow 测试延迟滑动窗口的均值与裁剪
func TestPerfMonitorLatencyWindow(t *testing.T) {
	config := NewMonitorConfig()
	config.LatencyWindow = 3
	p := NewPerfMonitor(config).SetLogger(NewNoOpLogger())

	p.RecordLatency(100)
	p.RecordLatency(200)
	p.RecordLatency(300)
	// 窗口满，最旧样本 100 被挤出
	p.RecordLatency(600)

	stats := p.Stats()
	assert.Equal(t, 3, stats.LatencySamples)
	assert.InDelta(t, (200+300+600)/3.0, stats.AvgLatencyMs, 0.01)
	assert.Equal(t, 600.0, stats.MaxLatencyMs)
}

// sampleHeapSeries 依序喂入堆采样值
func sampleHeapSeries(p *PerfMonitor, values []uint64) {
	var heap uint64
	p.readHeap = func() uint64 { return heap }
	for _, v := range values {
		heap = v
		p.SampleMemory()
	}
}

// TestPerfMonitorLeakHeuristic 测试近窗均值较前窗增长超阈值触发疑似泄漏
func TestPerfMonitorLeakHeuristic(t *testing.T) {
	config := NewMonitorConfig()
	config.MemSampleSize = 2
	config.LeakThreshold = 10.0
	p := NewPerfMonitor(config).SetLogger(NewNoOpLogger())

	// 前窗均值 150MB，近窗均值 300MB：涨幅 100%
	sampleHeapSeries(p, []uint64{100 << 20, 200 << 20, 250 << 20, 350 << 20})
	assert.True(t, p.LeakSuspected())
	assert.Equal(t, MemTrendGrowing, p.MemoryTrendDirection())

	// 近窗回落后解除
	sampleHeapSeries(p, []uint64{120 << 20, 110 << 20})
	assert.False(t, p.LeakSuspected())
	assert.Equal(t, MemTrendShrinking, p.MemoryTrendDirection())
}

// TestPerfMonitorLeakSurvivesDip 测试整体增长中的单点回落不掩盖泄漏
func TestPerfMonitorLeakSurvivesDip(t *testing.T) {
	config := NewMonitorConfig()
	config.MemSampleSize = 2
	config.LeakThreshold = 10.0
	p := NewPerfMonitor(config).SetLogger(NewNoOpLogger())

	// 200 回落到 190 后继续上冲：近窗(400,800)远高于前窗(200,190)
	sampleHeapSeries(p, []uint64{100, 200, 190, 400, 800})
	assert.True(t, p.LeakSuspected())
	assert.Equal(t, MemTrendGrowing, p.MemoryTrendDirection())
}

// TestPerfMonitorLeakBelowThreshold 测试增长未超阈值不告警
func TestPerfMonitorLeakBelowThreshold(t *testing.T) {
	config := NewMonitorConfig()
	config.MemSampleSize = 2
	config.LeakThreshold = 10.0
	p := NewPerfMonitor(config).SetLogger(NewNoOpLogger())

	// 前窗均值 101MB，近窗均值 104MB：涨幅约 3%
	sampleHeapSeries(p, []uint64{100 << 20, 102 << 20, 103 << 20, 105 << 20})
	assert.False(t, p.LeakSuspected())
	assert.Equal(t, MemTrendStable, p.MemoryTrendDirection())
}

// TestPerfMonitorLeakNeedsFullWindow 测试样本不足两个窗口不判定
func TestPerfMonitorLeakNeedsFullWindow(t *testing.T) {
	config := NewMonitorConfig()
	config.MemSampleSize = 5
	p := NewPerfMonitor(config).SetLogger(NewNoOpLogger())

	sampleHeapSeries(p, []uint64{100 << 20, 200 << 20, 400 << 20})
	assert.False(t, p.LeakSuspected())
	assert.Equal(t, MemTrendUnknown, p.MemoryTrendDirection())
	assert.Equal(t, MemTrendUnknown, p.Stats().MemoryTrend)
}

// TestPerfMonitorConnectionTest 测试命名测速
func TestPerfMonitorConnectionTest(t *testing.T) {
	p := newTestPerfMonitor()
	now := time.Now()
	p.now = func() time.Time { return now }

	p.StartConnectionTest("initial_dial")
	now = now.Add(120 * time.Millisecond)

	result := p.CompleteConnectionTest("initial_dial", true)
	require.NotNil(t, result)
	assert.Equal(t, "initial_dial", result.Label)
	assert.Equal(t, 120*time.Millisecond, result.Duration)
	assert.True(t, result.Success)

	// 成功测速计入延迟窗口
	assert.Equal(t, 1, p.Stats().LatencySamples)

	// 未知标签返回 nil
	assert.Nil(t, p.CompleteConnectionTest("ghost", true))
}

// TestPerfMonitorFailedConnectionTestNotSampled 测试失败测速不计入延迟
func TestPerfMonitorFailedConnectionTestNotSampled(t *testing.T) {
	p := newTestPerfMonitor()

	p.StartConnectionTest("probe")
	result := p.CompleteConnectionTest("probe", false)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, 0, p.Stats().LatencySamples)
}
