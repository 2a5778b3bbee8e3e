/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-18 10:42:15
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-29 19:03:28
 * @FilePath: \go-rtlink\ack.go
 * @Description: 确认管理器 - 带确认发送、超时重发
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"context"
	"sync"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/errorx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// AckResponse 服务端确认帧载荷
type AckResponse struct {
	MessageID string      `json:"message_id"`
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// pendingAck 在途待确认消息
type pendingAck struct {
	messageID string
	done      chan *AckResponse
}

// AckManager 确认管理器
// 按消息 ID 跟踪在途确认，超时退避重发
type AckManager struct {
	mu      sync.Mutex
	manager *ConnManager
	pending map[string]*pendingAck

	// 注入点，测试用
	timeout    time.Duration
	maxRetries int
}

// NewAckManager 创建确认管理器
func NewAckManager(m *ConnManager) *AckManager {
	return &AckManager{
		manager:    m,
		pending:    make(map[string]*pendingAck),
		timeout:    5 * time.Second,
		maxRetries: 3,
	}
}

// SetTimeout 设置单次确认等待时长
func (a *AckManager) SetTimeout(d time.Duration) *AckManager {
	a.timeout = d
	return a
}

// SetMaxRetries 设置最大重发次数
func (a *AckManager) SetMaxRetries(n int) *AckManager {
	a.maxRetries = n
	return a
}

// SendWithAck 发送并等待服务端确认
// 每次超时按指数退避重发同一帧（消息 ID 不变，服务端据此幂等去重）
func (a *AckManager) SendWithAck(ctx context.Context, event string, data interface{}) (*AckResponse, error) {
	messageID := newMessageID()
	p := &pendingAck{
		messageID: messageID,
		done:      make(chan *AckResponse, 1),
	}

	syncx.WithLock(&a.mu, func() {
		a.pending[messageID] = p
	})
	defer a.remove(messageID)

	env := &Envelope{ID: messageID, Event: event, Data: data}

	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if err := a.manager.writeEnvelope(env); err != nil {
			return nil, err
		}

		wait := a.timeout * time.Duration(1<<attempt)
		timer := time.NewTimer(wait)

		select {
		case resp := <-p.done:
			timer.Stop()
			return resp, nil
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			a.manager.logger.WarnKV("确认超时，准备重发",
				"message_id", messageID,
				"event", event,
				"attempt", attempt+1,
			)
		}
	}

	return nil, errorx.NewError(ErrTypeAckRetryExceeded, a.maxRetries, messageID)
}

// HandleAck 入站确认帧交付（由读循环路由）
func (a *AckManager) HandleAck(env *Envelope) {
	resp := decodeAck(env)
	if resp == nil || resp.MessageID == "" {
		return
	}

	var p *pendingAck
	syncx.WithLock(&a.mu, func() {
		p = a.pending[resp.MessageID]
		delete(a.pending, resp.MessageID)
	})
	if p == nil {
		// 迟到的确认：对应等待方已超时退出
		return
	}

	select {
	case p.done <- resp:
	default:
	}
}

// CancelAll 取消全部在途等待（手动断开时调用）
func (a *AckManager) CancelAll() {
	syncx.WithLock(&a.mu, func() {
		for id, p := range a.pending {
			select {
			case p.done <- &AckResponse{MessageID: id, Success: false, Error: "connection closed"}:
			default:
			}
			delete(a.pending, id)
		}
	})
}

// PendingCount 在途待确认数量
func (a *AckManager) PendingCount() int {
	return syncx.WithLockReturnValue(&a.mu, func() int {
		return len(a.pending)
	})
}

// remove 摘除在途记录
func (a *AckManager) remove(messageID string) {
	syncx.WithLock(&a.mu, func() {
		delete(a.pending, messageID)
	})
}

// decodeAck 解析确认载荷
// 入站数据经 JSON 反序列化通常是 map，这里做宽松提取
func decodeAck(env *Envelope) *AckResponse {
	switch v := env.Data.(type) {
	case *AckResponse:
		return v
	case AckResponse:
		return &v
	case map[string]interface{}:
		resp := &AckResponse{}
		if id, ok := v["message_id"].(string); ok {
			resp.MessageID = id
		}
		if ok, has := v["success"].(bool); has {
			resp.Success = ok
		}
		if msg, ok := v["error"].(string); ok {
			resp.Error = msg
		}
		resp.Data = v["data"]
		if resp.MessageID == "" && env.ID != "" {
			resp.MessageID = env.ID
		}
		return resp
	default:
		if env.ID == "" {
			return nil
		}
		return &AckResponse{MessageID: env.ID, Success: true, Data: env.Data}
	}
}
