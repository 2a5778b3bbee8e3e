/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-02 09:31:20
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-21 11:02:37
 * @FilePath: \go-rtlink\message.go
 * @Description: 消息与事件模型定义
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"time"

	"github.com/kamalyes/go-toolbox/pkg/idgen"
)

// Priority 消息/事件优先级
type Priority int

const (
	PriorityLow      Priority = iota // 低优先级
	PriorityNormal                   // 普通优先级
	PriorityHigh                     // 高优先级
	PriorityCritical                 // 关键优先级
)

// String 返回优先级的字符串表示
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority 解析优先级字符串，未知值回落到普通优先级
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

// 连接生命周期事件名
const (
	EventConnect        = "connect"
	EventDisconnect     = "disconnect"
	EventConnectError   = "connect_error"
	EventReconnect      = "reconnect"
	EventReconnecting   = "reconnecting"
	EventReconnectError = "reconnect_error"
)

// 房间管理事件名
const (
	EventJoinRoom  = "join_room"
	EventLeaveRoom = "leave_room"
)

// 内部协议事件名
const (
	EventAck            = "ack"            // 服务端确认
	EventBatch          = "eventBatch"     // 合并批量事件
	EventClientShutdown = "clientShutdown" // 客户端清理通知
)

// 业务域事件名（非穷举，按需扩展）
const (
	EventNewMessage         = "newMessage"
	EventMessageStatus      = "messageStatus"
	EventUserTyping         = "userTyping"
	EventDashboardUpdate    = "dashboardUpdate"
	EventReportStatusUpdate = "reportStatusUpdate"
	EventNotificationNew    = "notificationNew"
)

// QueuedMessage 离线队列中的消息
// 在断线/离线时创建，持久化后按优先级补发
type QueuedMessage struct {
	ID          string      `json:"id"`                      // 唯一ID
	Type        string      `json:"type"`                    // 事件类型
	Payload     interface{} `json:"payload"`                 // 消息负载
	Priority    Priority    `json:"priority"`                // 优先级
	CreatedAt   time.Time   `json:"created_at"`              // 创建时间
	RetryCount  int         `json:"retry_count"`             // 已重试次数
	MaxRetries  int         `json:"max_retries"`             // 最大重试次数
	NextRetryAt time.Time   `json:"next_retry_at,omitempty"` // 下次可重试时间
}

// QueueEnvelope 队列持久化信封
// 固定键下以 {queue, timestamp} 结构存储，超过保鲜期整体丢弃
type QueueEnvelope struct {
	Queue     []*QueuedMessage `json:"queue"`
	Timestamp time.Time        `json:"timestamp"`
}

// OutboundEvent 出站事件
// 进入优化器前的统一形态，Rooms 为目标房间集合
type OutboundEvent struct {
	Type      string      `json:"type"`
	Rooms     []string    `json:"rooms,omitempty"`
	Subject   string      `json:"subject,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Priority  Priority    `json:"priority"`
	Timestamp time.Time   `json:"timestamp"`
}

// BatchEvent 合并批量事件
// 优化器窗口到期或满批时产出的合成事件，事件名固定为 EventBatch
type BatchEvent struct {
	Events     []*OutboundEvent `json:"events"`      // 原始事件列表
	Count      int              `json:"count"`       // 事件数量
	EventTypes []string         `json:"event_types"` // 去重后的原始事件类型
	FlushedAt  time.Time        `json:"flushed_at"`  // 冲刷时间
}

// Envelope 传输层线格式
type Envelope struct {
	ID        string      `json:"id,omitempty"`
	Event     string      `json:"event"`
	Rooms     []string    `json:"rooms,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// AuthData 握手认证数据
// 仅透传给服务端，本层不做凭证校验
type AuthData struct {
	Token     string `json:"token,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// defaultIDGenerator 包级ID生成器
var defaultIDGenerator = idgen.NewDefaultIDGenerator()

// newMessageID 生成队列消息ID
func newMessageID() string {
	return defaultIDGenerator.GenerateRequestID()
}

// NewQueuedMessage 创建队列消息
func NewQueuedMessage(msgType string, payload interface{}, priority Priority, maxRetries int) *QueuedMessage {
	return &QueuedMessage{
		ID:         newMessageID(),
		Type:       msgType,
		Payload:    payload,
		Priority:   priority,
		CreatedAt:  time.Now(),
		MaxRetries: maxRetries,
	}
}
