/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-04 14:22:08
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-12 10:31:44
 * @FilePath: \go-rtlink\registry.go
 * @Description: 事件处理器注册表 - 按事件名有序派发，令牌化 O(1) 退订
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// HandlerFunc 事件处理器
type HandlerFunc func(data interface{})

// Subscription 订阅凭据，退订时使用
type Subscription struct {
	Event string // 事件名
	token uint64 // 内部令牌
}

// handlerEntry 链表节点负载
type handlerEntry struct {
	token   uint64
	handler HandlerFunc
}

// eventHandlers 单个事件的处理器集合
// 链表保持注册顺序，索引表提供 O(1) 退订
type eventHandlers struct {
	order   *list.List               // *handlerEntry，按注册顺序
	byToken map[uint64]*list.Element // 令牌 → 链表节点
}

// Registry 事件处理器注册表
type Registry struct {
	mu        sync.RWMutex
	events    map[string]*eventHandlers
	nextToken uint64
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{
		events: make(map[string]*eventHandlers),
	}
}

// On 注册事件处理器，返回订阅凭据
// 同一事件支持多个处理器，按注册顺序全部被调用
func (r *Registry) On(event string, handler HandlerFunc) Subscription {
	token := atomic.AddUint64(&r.nextToken, 1)

	syncx.WithLock(&r.mu, func() {
		hs, ok := r.events[event]
		if !ok {
			hs = &eventHandlers{
				order:   list.New(),
				byToken: make(map[uint64]*list.Element),
			}
			r.events[event] = hs
		}
		elem := hs.order.PushBack(&handlerEntry{token: token, handler: handler})
		hs.byToken[token] = elem
	})

	return Subscription{Event: event, token: token}
}

// Off 按订阅凭据退订 - O(1)
func (r *Registry) Off(sub Subscription) bool {
	return syncx.WithLockReturnValue(&r.mu, func() bool {
		hs, ok := r.events[sub.Event]
		if !ok {
			return false
		}
		elem, ok := hs.byToken[sub.token]
		if !ok {
			return false
		}
		hs.order.Remove(elem)
		delete(hs.byToken, sub.token)
		if hs.order.Len() == 0 {
			delete(r.events, sub.Event)
		}
		return true
	})
}

// OffEvent 移除指定事件的全部处理器
func (r *Registry) OffEvent(event string) int {
	return syncx.WithLockReturnValue(&r.mu, func() int {
		hs, ok := r.events[event]
		if !ok {
			return 0
		}
		n := hs.order.Len()
		delete(r.events, event)
		return n
	})
}

// Clear 移除全部处理器（管理器销毁前调用，避免向待回收代码派发事件）
func (r *Registry) Clear() {
	syncx.WithLock(&r.mu, func() {
		r.events = make(map[string]*eventHandlers)
	})
}

// Dispatch 按注册顺序派发事件
// 返回被调用的处理器数量
func (r *Registry) Dispatch(event string, data interface{}) int {
	// 持读锁期间拷贝快照，处理器在锁外执行
	handlers := syncx.WithRLockReturnValue(&r.mu, func() []HandlerFunc {
		hs, ok := r.events[event]
		if !ok {
			return nil
		}
		out := make([]HandlerFunc, 0, hs.order.Len())
		for e := hs.order.Front(); e != nil; e = e.Next() {
			out = append(out, e.Value.(*handlerEntry).handler)
		}
		return out
	})

	for _, h := range handlers {
		h(data)
	}
	return len(handlers)
}

// HandlerCount 返回指定事件的处理器数量
func (r *Registry) HandlerCount(event string) int {
	return syncx.WithRLockReturnValue(&r.mu, func() int {
		hs, ok := r.events[event]
		if !ok {
			return 0
		}
		return hs.order.Len()
	})
}

// EventCount 返回注册了处理器的事件种类数
func (r *Registry) EventCount() int {
	return syncx.WithRLockReturnValue(&r.mu, func() int {
		return len(r.events)
	})
}
