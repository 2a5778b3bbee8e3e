/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-15 11:08:41
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-29 20:40:12
 * @FilePath: \go-rtlink\netstatus.go
 * @Description: 网络状态监控 - 在线状态、链路画像、质量分级
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"sync"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// NetQuality 网络质量等级
type NetQuality string

const (
	QualityExcellent NetQuality = "excellent"
	QualityGood      NetQuality = "good"
	QualityFair      NetQuality = "fair"
	QualityPoor      NetQuality = "poor"
	QualityOffline   NetQuality = "offline"
	QualityUnknown   NetQuality = "unknown"
)

// NetProfile 链路画像
// 字段来自宿主环境上报或心跳探测，未上报的字段保持零值
type NetProfile struct {
	Online        bool          `json:"online"`
	EffectiveType string        `json:"effective_type"` // slow-2g/2g/3g/4g，空为未知
	RTT           time.Duration `json:"rtt"`
	DownlinkMbps  float64       `json:"downlink_mbps"`
	SaveData      bool          `json:"save_data"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NetChangeHandler 网络状态变更回调
type NetChangeHandler func(profile NetProfile, quality NetQuality)

// NetStatusMonitor 网络状态监控
// 聚合外部上报与心跳探测，派生质量等级并通知订阅方
type NetStatusMonitor struct {
	mu      sync.RWMutex
	config  *NetworkConfig
	logger  RTLogger
	profile NetProfile

	handlerMu sync.RWMutex
	handlers  map[uint64]NetChangeHandler
	nextToken uint64

	// 注入点，测试用
	now func() time.Time
}

// NewNetStatusMonitor 创建网络状态监控
// 初始视为在线：尚无反证时不应阻塞队列冲刷
func NewNetStatusMonitor(config *NetworkConfig) *NetStatusMonitor {
	if config == nil {
		config = NewNetworkConfig()
	}
	return &NetStatusMonitor{
		config:   config,
		logger:   DefaultLogger,
		profile:  NetProfile{Online: true},
		handlers: make(map[uint64]NetChangeHandler),
		now:      time.Now,
	}
}

// SetLogger 设置日志器
func (n *NetStatusMonitor) SetLogger(l RTLogger) *NetStatusMonitor {
	n.logger = l
	return n
}

// ReportOnline 上报在线/离线切换
func (n *NetStatusMonitor) ReportOnline(online bool) {
	changed := syncx.WithLockReturnValue(&n.mu, func() bool {
		if n.profile.Online == online {
			return false
		}
		n.profile.Online = online
		n.profile.UpdatedAt = n.now()
		return true
	})
	if !changed {
		return
	}

	if online {
		n.logger.Info("网络恢复在线")
	} else {
		n.logger.Warn("网络离线")
	}
	n.notify()
}

// ReportProfile 上报完整链路画像（宿主环境的连接信息变更）
func (n *NetStatusMonitor) ReportProfile(effectiveType string, rtt time.Duration, downlinkMbps float64, saveData bool) {
	syncx.WithLock(&n.mu, func() {
		n.profile.EffectiveType = effectiveType
		n.profile.RTT = rtt
		n.profile.DownlinkMbps = downlinkMbps
		n.profile.SaveData = saveData
		n.profile.UpdatedAt = n.now()
	})
	n.logger.DebugKV("链路画像更新",
		"effective_type", effectiveType,
		"rtt", rtt.String(),
		"downlink_mbps", downlinkMbps,
	)
	n.notify()
}

// ReportProbe 心跳探测结果回填
// 成功探测刷新 RTT 并确认在线；失败探测不直接判离线，交由连接状态机裁决
func (n *NetStatusMonitor) ReportProbe(rtt time.Duration, success bool) {
	if !success {
		return
	}
	syncx.WithLock(&n.mu, func() {
		n.profile.RTT = rtt
		n.profile.Online = true
		n.profile.UpdatedAt = n.now()
	})
}

// IsOnline 当前是否在线
func (n *NetStatusMonitor) IsOnline() bool {
	return syncx.WithRLockReturnValue(&n.mu, func() bool {
		return n.profile.Online
	})
}

// Profile 返回链路画像快照
func (n *NetStatusMonitor) Profile() NetProfile {
	return syncx.WithRLockReturnValue(&n.mu, func() NetProfile {
		return n.profile
	})
}

// Quality 派生质量等级
// 离线优先；制式档位封顶（2g 系一律 poor），RTT 未知时不猜测
func (n *NetStatusMonitor) Quality() NetQuality {
	p := n.Profile()
	if !p.Online {
		return QualityOffline
	}

	switch p.EffectiveType {
	case "slow-2g", "2g":
		return QualityPoor
	case "3g":
		if p.RTT > 0 && p.RTT <= n.config.FairRTT {
			return QualityFair
		}
		return QualityPoor
	case "4g":
		switch {
		case p.RTT <= 0:
			return QualityUnknown
		case p.RTT < n.config.ExcellentRTT:
			return QualityExcellent
		case p.RTT < n.config.GoodRTT:
			return QualityGood
		case p.RTT < n.config.FairRTT:
			return QualityFair
		default:
			return QualityPoor
		}
	}

	// 制式未知，仅凭 RTT 分级
	switch {
	case p.RTT <= 0:
		return QualityUnknown
	case p.RTT < n.config.ExcellentRTT:
		return QualityExcellent
	case p.RTT < n.config.GoodRTT:
		return QualityGood
	case p.RTT < n.config.FairRTT:
		return QualityFair
	default:
		return QualityPoor
	}
}

// OnChange 订阅网络状态变更，返回退订令牌
func (n *NetStatusMonitor) OnChange(h NetChangeHandler) uint64 {
	return syncx.WithLockReturnValue(&n.handlerMu, func() uint64 {
		n.nextToken++
		n.handlers[n.nextToken] = h
		return n.nextToken
	})
}

// OffChange 退订网络状态变更
func (n *NetStatusMonitor) OffChange(token uint64) {
	syncx.WithLock(&n.handlerMu, func() {
		delete(n.handlers, token)
	})
}

// notify 向全部订阅方推送当前画像与质量
func (n *NetStatusMonitor) notify() {
	profile := n.Profile()
	quality := n.Quality()
	handlers := syncx.WithRLockReturnValue(&n.handlerMu, func() []NetChangeHandler {
		out := make([]NetChangeHandler, 0, len(n.handlers))
		for _, h := range n.handlers {
			out = append(out, h)
		}
		return out
	})
	for _, h := range handlers {
		h(profile, quality)
	}
}
