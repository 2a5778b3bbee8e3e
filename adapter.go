/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-25 16:19:50
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-29 21:58:33
 * @FilePath: \go-rtlink\adapter.go
 * @Description: 订阅适配层 - 面向业务方的事件订阅门面与统一清理
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"sync"

	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// Adapter 订阅适配器
// 每个业务消费方持有一个适配器实例，记录自己建立的全部订阅，
// 销毁时一次性退订，杜绝跨消费方的监听器泄漏
type Adapter struct {
	mu      sync.Mutex
	manager *ConnManager
	subs    []Subscription
	stateTk []uint64
	netTk   []uint64
	netmon  *NetStatusMonitor
	closed  bool
}

// NewAdapter 创建订阅适配器
func NewAdapter(m *ConnManager) *Adapter {
	return &Adapter{manager: m}
}

// SetNetworkMonitor 绑定网络监控，启用网络状态订阅
func (a *Adapter) SetNetworkMonitor(n *NetStatusMonitor) *Adapter {
	a.netmon = n
	return a
}

// Subscribe 订阅任意事件
func (a *Adapter) Subscribe(event string, handler HandlerFunc) Subscription {
	sub := a.manager.On(event, handler)
	syncx.WithLock(&a.mu, func() {
		if a.closed {
			a.manager.Off(sub)
			return
		}
		a.subs = append(a.subs, sub)
	})
	return sub
}

// Unsubscribe 退订单个订阅
func (a *Adapter) Unsubscribe(sub Subscription) bool {
	ok := a.manager.Off(sub)
	syncx.WithLock(&a.mu, func() {
		for i, s := range a.subs {
			if s == sub {
				a.subs = append(a.subs[:i], a.subs[i+1:]...)
				break
			}
		}
	})
	return ok
}

// SubscribeState 订阅连接状态快照变更
func (a *Adapter) SubscribeState(handler StateHandler) uint64 {
	token := a.manager.OnStateChange(handler)
	syncx.WithLock(&a.mu, func() {
		if a.closed {
			a.manager.OffStateChange(token)
			return
		}
		a.stateTk = append(a.stateTk, token)
	})
	return token
}

// SubscribeNetwork 订阅网络状态变更
// 未绑定网络监控时返回 0
func (a *Adapter) SubscribeNetwork(handler NetChangeHandler) uint64 {
	if a.netmon == nil {
		return 0
	}
	token := a.netmon.OnChange(handler)
	syncx.WithLock(&a.mu, func() {
		if a.closed {
			a.netmon.OffChange(token)
			return
		}
		a.netTk = append(a.netTk, token)
	})
	return token
}

// 领域事件便捷订阅

// OnNewMessage 订阅新消息事件
func (a *Adapter) OnNewMessage(handler HandlerFunc) Subscription {
	return a.Subscribe(EventNewMessage, handler)
}

// OnMessageStatus 订阅消息状态变更事件
func (a *Adapter) OnMessageStatus(handler HandlerFunc) Subscription {
	return a.Subscribe(EventMessageStatus, handler)
}

// OnUserTyping 订阅输入中提示事件
func (a *Adapter) OnUserTyping(handler HandlerFunc) Subscription {
	return a.Subscribe(EventUserTyping, handler)
}

// OnDashboardUpdate 订阅看板更新事件
func (a *Adapter) OnDashboardUpdate(handler HandlerFunc) Subscription {
	return a.Subscribe(EventDashboardUpdate, handler)
}

// OnReportStatusUpdate 订阅报表状态事件
func (a *Adapter) OnReportStatusUpdate(handler HandlerFunc) Subscription {
	return a.Subscribe(EventReportStatusUpdate, handler)
}

// OnNotification 订阅通知事件
func (a *Adapter) OnNotification(handler HandlerFunc) Subscription {
	return a.Subscribe(EventNotificationNew, handler)
}

// State 返回连接状态快照
func (a *Adapter) State() ConnState {
	return a.manager.State()
}

// IsConnected 当前是否已连接
func (a *Adapter) IsConnected() bool {
	return a.manager.IsConnected()
}

// SubscriptionCount 本适配器持有的事件订阅数
func (a *Adapter) SubscriptionCount() int {
	return syncx.WithLockReturnValue(&a.mu, func() int {
		return len(a.subs)
	})
}

// Close 退订本适配器建立的全部订阅
func (a *Adapter) Close() {
	var subs []Subscription
	var stateTk, netTk []uint64
	syncx.WithLock(&a.mu, func() {
		if a.closed {
			return
		}
		a.closed = true
		subs, a.subs = a.subs, nil
		stateTk, a.stateTk = a.stateTk, nil
		netTk, a.netTk = a.netTk, nil
	})

	for _, sub := range subs {
		a.manager.Off(sub)
	}
	for _, token := range stateTk {
		a.manager.OffStateChange(token)
	}
	if a.netmon != nil {
		for _, token := range netTk {
			a.netmon.OffChange(token)
		}
	}
}
