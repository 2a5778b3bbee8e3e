/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-04-08 11:26:33
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-30 00:47:19
 * @FilePath: \go-rtlink\netstatus_test.go
 * @Description:
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestNetMonitor() *NetStatusMonitor {
	return NewNetStatusMonitor(nil).SetLogger(NewNoOpLogger())
}

// TestNetMonitorDefaultsOnline 测试初始视为在线
func TestNetMonitorDefaultsOnline(t *testing.T) {
	n := newTestNetMonitor()
	assert.True(t, n.IsOnline())
}

// TestNetMonitorOfflineQuality 测试离线优先于一切分级
func TestNetMonitorOfflineQuality(t *testing.T) {
	n := newTestNetMonitor()
	n.ReportProfile("4g", 30*time.Millisecond, 25, false)
	n.ReportOnline(false)

	assert.Equal(t, QualityOffline, n.Quality())
	assert.False(t, n.IsOnline())
}

// TestNetMonitorQualityDerivation 测试制式与 RTT 的分级规则
func TestNetMonitorQualityDerivation(t *testing.T) {
	n := newTestNetMonitor()

	// 4g + 低 RTT
	n.ReportProfile("4g", 50*time.Millisecond, 20, false)
	assert.Equal(t, QualityExcellent, n.Quality())

	// 4g + 中等 RTT
	n.ReportProfile("4g", 200*time.Millisecond, 10, false)
	assert.Equal(t, QualityGood, n.Quality())

	// 4g + 高 RTT
	n.ReportProfile("4g", 500*time.Millisecond, 2, false)
	assert.Equal(t, QualityFair, n.Quality())

	// 4g 但无 RTT：不猜测
	n.ReportProfile("4g", 0, 2, false)
	assert.Equal(t, QualityUnknown, n.Quality())

	// 2g 系一律 poor，RTT 再低也不升档
	n.ReportProfile("2g", 40*time.Millisecond, 1, false)
	assert.Equal(t, QualityPoor, n.Quality())
	n.ReportProfile("slow-2g", 40*time.Millisecond, 1, false)
	assert.Equal(t, QualityPoor, n.Quality())

	// 制式未知且无 RTT：不猜测
	n.ReportProfile("", 0, 0, false)
	assert.Equal(t, QualityUnknown, n.Quality())

	// 制式未知但有 RTT：按 RTT 分级
	n.ReportProfile("", 80*time.Millisecond, 0, false)
	assert.Equal(t, QualityExcellent, n.Quality())
}

// TestNetMonitorProbeRefreshesRTT 测试心跳探测回填
func TestNetMonitorProbeRefreshesRTT(t *testing.T) {
	n := newTestNetMonitor()
	n.ReportOnline(false)

	// 失败探测不改变任何状态
	n.ReportProbe(0, false)
	assert.False(t, n.IsOnline())

	// 成功探测确认在线并刷新 RTT
	n.ReportProbe(60*time.Millisecond, true)
	assert.True(t, n.IsOnline())
	assert.Equal(t, 60*time.Millisecond, n.Profile().RTT)
}

// TestNetMonitorChangeNotification 测试变更通知与退订
func TestNetMonitorChangeNotification(t *testing.T) {
	n := newTestNetMonitor()

	var notifications []NetQuality
	token := n.OnChange(func(profile NetProfile, quality NetQuality) {
		notifications = append(notifications, quality)
	})

	n.ReportOnline(false)
	assert.Equal(t, []NetQuality{QualityOffline}, notifications)

	// 同值上报不重复通知
	n.ReportOnline(false)
	assert.Len(t, notifications, 1)

	n.OffChange(token)
	n.ReportOnline(true)
	assert.Len(t, notifications, 1)
}
