/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-10 09:05:33
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-29 18:26:47
 * @FilePath: \go-rtlink\manager.go
 * @Description: 连接管理器 - 传输生命周期、重连状态机、房间成员、健康监测
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// ConnStatus 连接状态
// 任意时刻恰有一个状态成立，全部迁移由传输回调驱动
type ConnStatus int32

const (
	StatusDisconnected ConnStatus = iota // 未连接
	StatusConnecting                     // 连接中
	StatusConnected                      // 已连接
	StatusReconnecting                   // 重连中
)

// String 返回状态的字符串表示
func (s ConnStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ConnState 连接状态快照
type ConnState struct {
	Status               ConnStatus `json:"status"`
	SocketID             string     `json:"socket_id"`
	LastConnectedAt      time.Time  `json:"last_connected_at"`
	ReconnectAttempts    int        `json:"reconnect_attempts"`
	Rooms                []string   `json:"rooms"`
	ManuallyDisconnected bool       `json:"manually_disconnected"`
	Transport            string     `json:"transport"`
}

// StateHandler 连接状态变更回调
type StateHandler func(state ConnState)

// ConnManager 连接管理器
// 进程内单例语义：所有消费方共享同一条传输连接与同一份房间集合
type ConnManager struct {
	mu     sync.RWMutex
	config *Config
	logger RTLogger

	registry  *Registry
	optimizer *EventOptimizer
	queue     *MessageQueue
	perf      *PerfMonitor
	netmon    *NetStatusMonitor
	acks      *AckManager

	// 拨号与传输
	dialers   []DialFunc
	dialerIdx int
	transport Transport
	endpoint  string
	auth      *AuthData

	// 状态机字段（mu 保护）
	status               ConnStatus
	socketID             string
	lastConnectedAt      time.Time
	disconnectedAt       time.Time
	reconnectAttempts    int
	rooms                map[string]bool
	manuallyDisconnected bool

	// 重连仲裁：任意时刻至多一个待触发的退避计时器
	bo             *backoff.Backoff
	reconnectTimer *time.Timer
	reconnectArmed bool

	// 读循环代数，旧循环的收尾错误不得触发新一轮重连
	readGen int64

	// 健康监测控制
	healthStop chan struct{}
	healthOn   int32

	// 状态订阅
	stateMu        sync.RWMutex
	stateHandlers  map[uint64]StateHandler
	nextStateToken uint64

	// 注入点，测试用
	now       func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer
}

// NewConnManager 创建连接管理器
func NewConnManager(config *Config) *ConnManager {
	config.normalize()

	m := &ConnManager{
		config:   config,
		logger:   config.Logger,
		registry: NewRegistry(),
		dialers:  defaultDialChain(),
		rooms:    make(map[string]bool),
		status:   StatusDisconnected,
		bo: &backoff.Backoff{
			Min:    config.Transport.MinRecTime,
			Max:    config.Transport.MaxRecTime,
			Factor: config.Transport.RecFactor,
			Jitter: true,
		},
		stateHandlers: make(map[uint64]StateHandler),
		now:           time.Now,
		afterFunc:     time.AfterFunc,
	}
	m.acks = NewAckManager(m)
	return m
}

// SetDialers 注入拨号链（按回退顺序），测试与定制传输使用
func (m *ConnManager) SetDialers(dialers ...DialFunc) *ConnManager {
	m.dialers = dialers
	return m
}

// SetQueue 绑定离线队列
func (m *ConnManager) SetQueue(q *MessageQueue) *ConnManager {
	m.queue = q
	return m
}

// SetOptimizer 绑定事件优化器
// 批次冲刷回调接回本管理器，合成事件经同一传输发出
func (m *ConnManager) SetOptimizer(o *EventOptimizer) *ConnManager {
	m.optimizer = o
	return m
}

// SetPerfMonitor 绑定性能监控
func (m *ConnManager) SetPerfMonitor(p *PerfMonitor) *ConnManager {
	m.perf = p
	return m
}

// SetNetworkMonitor 绑定网络状态监控
func (m *ConnManager) SetNetworkMonitor(n *NetStatusMonitor) *ConnManager {
	m.netmon = n
	return m
}

// ============================================================================
// 连接生命周期
// ============================================================================

// Connect 建立连接（幂等：已连接时为空操作）
// 传输层错误被状态机吸收，只体现在连接状态指示上，不向调用方抛出
func (m *ConnManager) Connect(ctx context.Context, endpoint string, auth *AuthData) error {
	if m.Status() == StatusConnected {
		m.logger.DebugKV("已连接，忽略重复 Connect 调用", "endpoint", endpoint)
		return nil
	}

	syncx.WithLock(&m.mu, func() {
		m.endpoint = endpoint
		m.auth = auth
		m.manuallyDisconnected = false
		m.status = StatusConnecting
	})
	m.notifyState()

	if err := m.dialOnce(ctx); err != nil {
		m.logger.WarnKV("首次连接失败，进入后台重连",
			"endpoint", endpoint,
			"error", err.Error(),
		)
		syncx.WithLock(&m.mu, func() {
			m.reconnectAttempts++
			m.status = StatusReconnecting
		})
		m.registry.Dispatch(EventConnectError, err)
		m.notifyState()
		m.scheduleReconnect()
	}

	m.startHealthLoop()
	return nil
}

// Disconnect 手动断开
// 置位手动断开标记并停止一切后台恢复，直到显式 Connect/Reconnect 才会再次联网
func (m *ConnManager) Disconnect() {
	var t Transport
	syncx.WithLock(&m.mu, func() {
		m.manuallyDisconnected = true
		m.cancelReconnectLocked()
		t = m.transport
		m.transport = nil
		m.socketID = ""
		m.status = StatusDisconnected
		m.disconnectedAt = m.now()
		m.readGen++
	})

	m.stopHealthLoop()

	if t != nil {
		// 宽限通知：尽力而为告知服务端客户端正在清理
		_ = t.WriteEnvelope(&Envelope{
			Event:     EventClientShutdown,
			Timestamp: m.now(),
		})
		_ = t.Close()
	}

	// 先摘除监听器再销毁，避免向待回收代码派发事件
	m.registry.Clear()
	m.acks.CancelAll()

	m.logger.Info("连接已手动断开，后台恢复停止")
	m.notifyState()
}

// Reconnect 显式手动重连
// 清除手动断开标记、丢弃旧传输、用最近一次的端点与认证立即重试一次
// 作为用户主动操作，失败会回传给调用方
func (m *ConnManager) Reconnect(ctx context.Context) error {
	var old Transport
	syncx.WithLock(&m.mu, func() {
		m.manuallyDisconnected = false
		m.cancelReconnectLocked()
		old = m.transport
		m.transport = nil
		m.readGen++
		m.status = StatusConnecting
	})
	if old != nil {
		_ = old.Close()
	}
	m.notifyState()

	err := m.dialOnce(ctx)
	if err != nil {
		syncx.WithLock(&m.mu, func() {
			m.reconnectAttempts++
			m.status = StatusReconnecting
		})
		m.registry.Dispatch(EventReconnectError, err)
		m.notifyState()
		// 手动标记已清除，后台继续按退避恢复
		m.scheduleReconnect()
		return classifyTransportError(err)
	}

	m.startHealthLoop()
	return nil
}

// dialOnce 单次拨号
// 命中传输干扰特征时立即降级到兼容传输重试一次，干扰错误绝不外泄为失败
func (m *ConnManager) dialOnce(ctx context.Context) error {
	endpoint, auth, idx := m.dialTarget()
	if len(m.dialers) == 0 {
		return ErrNotConnected
	}

	t, info, err := m.dialers[idx](ctx, endpoint, auth, m.config.Transport)
	if err != nil {
		cerr := classifyTransportError(err)
		if IsInterferenceError(cerr) && idx+1 < len(m.dialers) {
			syncx.WithLock(&m.mu, func() {
				m.dialerIdx = idx + 1
			})
			m.logger.WarnKV("检测到传输干扰，回退到兼容传输",
				"from", idx, "to", idx+1, "cause", err.Error(),
			)
			t, info, err = m.dialers[idx+1](ctx, endpoint, auth, m.config.Transport)
		}
		if err != nil {
			return err
		}
	}

	m.onConnected(t, info)
	return nil
}

// dialTarget 读取当前拨号参数
func (m *ConnManager) dialTarget() (string, *AuthData, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.endpoint, m.auth, m.dialerIdx
}

// onConnected 拨号成功后的状态收敛
// 重置退避与计数、重新加入全部房间、冲刷离线队列
func (m *ConnManager) onConnected(t Transport, info *HandshakeInfo) {
	var gen int64
	var rooms []string
	var wasReconnect bool

	syncx.WithLock(&m.mu, func() {
		wasReconnect = m.reconnectAttempts > 0 || m.status == StatusReconnecting
		m.transport = t
		m.socketID = info.SocketID
		m.lastConnectedAt = m.now()
		m.reconnectAttempts = 0
		m.status = StatusConnected
		m.bo.Reset()
		m.cancelReconnectLocked()
		m.readGen++
		gen = m.readGen
		rooms = make([]string, 0, len(m.rooms))
		for room := range m.rooms {
			rooms = append(rooms, room)
		}
	})

	m.logger.InfoKV("连接已建立",
		"socket_id", info.SocketID,
		"transport", info.Transport,
		"rejoin_rooms", len(rooms),
	)

	syncx.Go(context.Background()).Exec(func() {
		m.readLoop(t, gen)
	})

	// 服务端在传输层断开后不保留房间成员关系，重连后必须全量重报
	for _, room := range rooms {
		if err := m.writeEnvelope(&Envelope{Event: EventJoinRoom, Data: room}); err != nil {
			m.logger.WarnKV("重连后补报房间失败", "room", room, "error", err.Error())
		}
	}

	m.flushQueueAsync()

	if wasReconnect {
		m.registry.Dispatch(EventReconnect, info.SocketID)
	} else {
		m.registry.Dispatch(EventConnect, info.SocketID)
	}
	m.notifyState()
}

// readLoop 入站读循环
// 按传输交付顺序派发；读错误触发断线处理（仅限当前代数）
func (m *ConnManager) readLoop(t Transport, gen int64) {
	for {
		env, err := t.ReadEnvelope()
		if err != nil {
			stale := syncx.WithRLockReturnValue(&m.mu, func() bool {
				return gen != m.readGen
			})
			if stale {
				return
			}
			m.handleTransportDrop(err)
			return
		}

		if m.perf != nil {
			m.perf.RecordEventReceived()
		}
		m.dispatchInbound(env)
	}
}

// dispatchInbound 入站帧派发
func (m *ConnManager) dispatchInbound(env *Envelope) {
	switch env.Event {
	case EventAck:
		m.acks.HandleAck(env)
	default:
		m.registry.Dispatch(env.Event, env.Data)
	}
}

// handleTransportDrop 传输层断开处理（非手动）
func (m *ConnManager) handleTransportDrop(err error) {
	cerr := classifyTransportError(err)

	var manual bool
	var old Transport
	syncx.WithLock(&m.mu, func() {
		manual = m.manuallyDisconnected
		if manual {
			return
		}
		old = m.transport
		m.transport = nil
		m.socketID = ""
		m.readGen++
		m.status = StatusReconnecting
		m.disconnectedAt = m.now()
		if IsInterferenceError(cerr) && m.dialerIdx+1 < len(m.dialers) {
			m.dialerIdx++
		}
	})
	if manual {
		return
	}
	if old != nil {
		_ = old.Close()
	}

	if IsNormalClose(err) {
		m.logger.InfoKV("服务端正常关闭连接，进入重连", "error", err.Error())
	} else {
		m.logger.WarnKV("传输层断开，进入重连", "error", err.Error())
	}
	if m.perf != nil {
		m.perf.RecordEventError()
	}

	m.registry.Dispatch(EventDisconnect, err)
	m.notifyState()
	m.scheduleReconnect()
}

// ============================================================================
// 重连状态机
// ============================================================================

// scheduleReconnect 安排一次退避重连
// 仲裁点：手动、后台、健康检查三类触发都汇聚于此，同时至多一个计时器在途
func (m *ConnManager) scheduleReconnect() {
	var delay time.Duration
	armed := syncx.WithLockReturnValue(&m.mu, func() bool {
		if m.manuallyDisconnected || m.reconnectArmed {
			return false
		}
		m.reconnectArmed = true
		delay = m.bo.Duration()
		return true
	})
	if !armed {
		return
	}

	attempts := m.ReconnectAttempts()
	m.logger.InfoKV("已安排重连",
		"delay", delay.String(),
		"attempts", attempts,
	)
	m.registry.Dispatch(EventReconnecting, attempts)

	timer := m.afterFunc(delay, m.reconnectFire)
	syncx.WithLock(&m.mu, func() {
		m.reconnectTimer = timer
	})
}

// reconnectFire 退避计时器到期回调
func (m *ConnManager) reconnectFire() {
	skip := syncx.WithLockReturnValue(&m.mu, func() bool {
		m.reconnectArmed = false
		m.reconnectTimer = nil
		return m.manuallyDisconnected || m.status == StatusConnected
	})
	if skip {
		return
	}

	if err := m.dialOnce(context.Background()); err != nil {
		syncx.WithLock(&m.mu, func() {
			m.reconnectAttempts++
		})
		m.logger.WarnKV("重连尝试失败",
			"attempts", m.ReconnectAttempts(),
			"error", err.Error(),
		)
		m.registry.Dispatch(EventReconnectError, err)
		m.notifyState()
		// 默认不限次数：主要故障模式是后端进程重启，可无限期恢复
		m.scheduleReconnect()
	}
}

// cancelReconnectLocked 取消在途退避计时器（需持锁）
func (m *ConnManager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.reconnectArmed = false
}

// CheckConnectionHealth 健康检查
// 返回当前存活状态；失联超过陈旧阈值且非手动断开时，顺带触发一次重连
func (m *ConnManager) CheckConnectionHealth() bool {
	var trigger bool
	connected := syncx.WithRLockReturnValue(&m.mu, func() bool {
		if m.status == StatusConnected {
			return true
		}
		if m.manuallyDisconnected || m.disconnectedAt.IsZero() {
			return false
		}
		trigger = m.now().Sub(m.disconnectedAt) > HealthStalenessThreshold
		return false
	})

	if trigger {
		m.logger.WarnKV("连接陈旧超阈值，触发重连",
			"threshold", HealthStalenessThreshold.String(),
		)
		m.scheduleReconnect()
	}
	return connected
}

// healthInterval 健康监测周期，未配置时回落到 30 秒
func (m *ConnManager) healthInterval() time.Duration {
	if interval := m.config.Transport.HeartbeatInterval; interval > 0 {
		return time.Duration(interval) * time.Second
	}
	return 30 * time.Second
}

// startHealthLoop 启动后台健康监测
func (m *ConnManager) startHealthLoop() {
	if !atomic.CompareAndSwapInt32(&m.healthOn, 0, 1) {
		return
	}
	stop := make(chan struct{})
	syncx.WithLock(&m.mu, func() {
		m.healthStop = stop
	})

	interval := m.healthInterval()

	syncx.Go(context.Background()).Exec(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.healthTick()
			}
		}
	})
}

// stopHealthLoop 停止后台健康监测
func (m *ConnManager) stopHealthLoop() {
	if !atomic.CompareAndSwapInt32(&m.healthOn, 1, 0) {
		return
	}
	syncx.WithLock(&m.mu, func() {
		if m.healthStop != nil {
			close(m.healthStop)
			m.healthStop = nil
		}
	})
}

// healthTick 心跳探活 + 陈旧检查
func (m *ConnManager) healthTick() {
	t := m.currentTransport()
	if t != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.config.Transport.WriteTimeout)
		rtt, err := t.Ping(ctx)
		cancel()
		if err != nil {
			m.logger.WarnKV("心跳探活失败", "error", err.Error())
			m.handleTransportDrop(err)
			return
		}
		if m.perf != nil {
			m.perf.RecordLatency(float64(rtt.Milliseconds()))
		}
		if m.netmon != nil {
			m.netmon.ReportProbe(rtt, true)
		}
	}
	m.CheckConnectionHealth()
}

// ============================================================================
// 消息发送
// ============================================================================

// SendMessage 发送消息
// 已连接时经优化器处理后发出；断线时静默转入离线队列，不向调用方报错
func (m *ConnManager) SendMessage(event string, data interface{}) error {
	if !m.IsConnected() {
		m.enqueueOffline(event, data)
		return nil
	}
	return m.sendThroughOptimizer(event, data)
}

// Emit 一次性发送（遥测风格，不保证送达）
// 断线时带警告丢弃，不入队
func (m *ConnManager) Emit(event string, data interface{}) {
	if !m.IsConnected() {
		m.logger.WarnKV("断线状态下的 Emit 已丢弃", "event", event)
		return
	}
	if err := m.sendThroughOptimizer(event, data); err != nil {
		m.logger.WarnKV("Emit 发送失败", "event", event, "error", err.Error())
	}
}

// sendThroughOptimizer 经优化器处理后写出
func (m *ConnManager) sendThroughOptimizer(event string, data interface{}) error {
	ev := &OutboundEvent{
		Type:      event,
		Data:      data,
		Priority:  PriorityNormal,
		Timestamp: m.now(),
	}

	if m.optimizer != nil {
		result := m.optimizer.ProcessEvent(ev)
		if !result.ShouldEmit {
			// 事件被限流/去重丢弃，或已进入待冲刷批次，均不直接发送
			return nil
		}
		ev = result.Event
	}

	if err := m.writeEnvelope(&Envelope{Event: ev.Type, Rooms: ev.Rooms, Data: ev.Data}); err != nil {
		// 写失败视为传输中断，消息兜底入队
		m.enqueueOffline(event, data)
	}
	return nil
}

// EmitBatch 发送合成批量事件（优化器冲刷回调）
func (m *ConnManager) EmitBatch(batch *BatchEvent) {
	if !m.IsConnected() {
		// 批内事件回流离线队列，保持低优先级
		for _, ev := range batch.Events {
			m.enqueueOffline(ev.Type, ev.Data)
		}
		return
	}
	if err := m.writeEnvelope(&Envelope{Event: EventBatch, Data: batch}); err != nil {
		m.logger.WarnKV("批量事件发送失败", "count", batch.Count, "error", err.Error())
	}
}

// enqueueOffline 断线兜底入队
func (m *ConnManager) enqueueOffline(event string, data interface{}) {
	if m.queue == nil {
		m.logger.WarnKV("无离线队列，断线消息已丢弃", "event", event)
		return
	}
	priority := PriorityNormal
	if m.optimizer != nil {
		if f := m.optimizer.GetFilter(event); f != nil {
			priority = f.Priority
		}
	}
	id := m.queue.Enqueue(event, data, priority)
	if id == "" {
		m.logger.WarnKV("离线队列拒绝消息", "event", event)
		return
	}
	m.logger.DebugKV("断线消息已转入离线队列", "event", event, "id", id)
}

// writeEnvelope 写出一帧
func (m *ConnManager) writeEnvelope(env *Envelope) error {
	t := m.currentTransport()
	if t == nil {
		return ErrNotConnected
	}
	if env.ID == "" {
		env.ID = newMessageID()
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = m.now()
	}

	if err := t.WriteEnvelope(env); err != nil {
		if m.perf != nil {
			m.perf.RecordEventError()
		}
		return classifyTransportError(err)
	}
	if m.perf != nil {
		m.perf.RecordEventSent()
	}
	return nil
}

// FlushQueue 冲刷离线队列（重连成功且网络在线时调用）
func (m *ConnManager) FlushQueue(ctx context.Context) *FlushResult {
	if m.queue == nil {
		return &FlushResult{}
	}
	return m.queue.Flush(ctx, func(msg *QueuedMessage) error {
		return m.writeEnvelope(&Envelope{ID: msg.ID, Event: msg.Type, Data: msg.Payload})
	})
}

// flushQueueAsync 后台冲刷，受网络在线门控
func (m *ConnManager) flushQueueAsync() {
	if m.queue == nil {
		return
	}
	if m.netmon != nil && !m.netmon.IsOnline() {
		m.logger.DebugKV("网络离线，延后队列冲刷")
		return
	}
	syncx.Go(context.Background()).Exec(func() {
		m.FlushQueue(context.Background())
	})
}

// ============================================================================
// 房间管理
// ============================================================================

// JoinRoom 加入房间
// 断线时为带警告的空操作；成功后更新本地成员集合
func (m *ConnManager) JoinRoom(roomID string) error {
	if !m.IsConnected() {
		m.logger.WarnKV("断线状态下忽略加入房间", "room", roomID)
		return ErrRoomWhileOffline
	}
	if err := m.writeEnvelope(&Envelope{Event: EventJoinRoom, Data: roomID}); err != nil {
		return err
	}
	syncx.WithLock(&m.mu, func() {
		m.rooms[roomID] = true
	})
	m.logger.DebugKV("已加入房间", "room", roomID)
	return nil
}

// LeaveRoom 离开房间
func (m *ConnManager) LeaveRoom(roomID string) error {
	if !m.IsConnected() {
		m.logger.WarnKV("断线状态下忽略离开房间", "room", roomID)
		return ErrRoomWhileOffline
	}
	if err := m.writeEnvelope(&Envelope{Event: EventLeaveRoom, Data: roomID}); err != nil {
		return err
	}
	syncx.WithLock(&m.mu, func() {
		delete(m.rooms, roomID)
	})
	m.logger.DebugKV("已离开房间", "room", roomID)
	return nil
}

// Rooms 返回本地视角的房间集合
func (m *ConnManager) Rooms() []string {
	return syncx.WithRLockReturnValue(&m.mu, func() []string {
		rooms := make([]string, 0, len(m.rooms))
		for room := range m.rooms {
			rooms = append(rooms, room)
		}
		return rooms
	})
}

// ============================================================================
// 订阅
// ============================================================================

// On 订阅事件
func (m *ConnManager) On(event string, handler HandlerFunc) Subscription {
	return m.registry.On(event, handler)
}

// Off 退订单个订阅
func (m *ConnManager) Off(sub Subscription) bool {
	return m.registry.Off(sub)
}

// OffEvent 移除指定事件的全部处理器
func (m *ConnManager) OffEvent(event string) int {
	return m.registry.OffEvent(event)
}

// OnStateChange 订阅连接状态变更，返回退订令牌
func (m *ConnManager) OnStateChange(h StateHandler) uint64 {
	token := atomic.AddUint64(&m.nextStateToken, 1)
	syncx.WithLock(&m.stateMu, func() {
		m.stateHandlers[token] = h
	})
	return token
}

// OffStateChange 退订连接状态变更
func (m *ConnManager) OffStateChange(token uint64) {
	syncx.WithLock(&m.stateMu, func() {
		delete(m.stateHandlers, token)
	})
}

// notifyState 向全部状态订阅者推送快照
func (m *ConnManager) notifyState() {
	state := m.State()
	handlers := syncx.WithRLockReturnValue(&m.stateMu, func() []StateHandler {
		out := make([]StateHandler, 0, len(m.stateHandlers))
		for _, h := range m.stateHandlers {
			out = append(out, h)
		}
		return out
	})
	for _, h := range handlers {
		h(state)
	}
}

// ============================================================================
// 状态查询
// ============================================================================

// Status 返回当前连接状态
func (m *ConnManager) Status() ConnStatus {
	return syncx.WithRLockReturnValue(&m.mu, func() ConnStatus {
		return m.status
	})
}

// IsConnected 是否已连接
func (m *ConnManager) IsConnected() bool {
	return m.Status() == StatusConnected
}

// ReconnectAttempts 当前断线期内的重连尝试次数
func (m *ConnManager) ReconnectAttempts() int {
	return syncx.WithRLockReturnValue(&m.mu, func() int {
		return m.reconnectAttempts
	})
}

// State 返回连接状态快照
func (m *ConnManager) State() ConnState {
	return syncx.WithRLockReturnValue(&m.mu, func() ConnState {
		rooms := make([]string, 0, len(m.rooms))
		for room := range m.rooms {
			rooms = append(rooms, room)
		}
		transportName := ""
		if m.transport != nil {
			transportName = m.transport.Name()
		}
		return ConnState{
			Status:               m.status,
			SocketID:             m.socketID,
			LastConnectedAt:      m.lastConnectedAt,
			ReconnectAttempts:    m.reconnectAttempts,
			Rooms:                rooms,
			ManuallyDisconnected: m.manuallyDisconnected,
			Transport:            transportName,
		}
	})
}

// currentTransport 返回当前传输会话
func (m *ConnManager) currentTransport() Transport {
	return syncx.WithRLockReturnValue(&m.mu, func() Transport {
		return m.transport
	})
}
