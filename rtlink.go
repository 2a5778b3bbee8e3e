/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-08 08:30:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-29 22:30:18
 * @FilePath: \go-rtlink\rtlink.go
 * @Description: 实时连接引擎 - 组装连接管理、离线队列、事件优化、性能与网络监控
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"context"
	"sync/atomic"

	"github.com/kamalyes/go-toolbox/pkg/syncx"
	"github.com/redis/go-redis/v9"
)

// Engine 实时连接引擎
// 单实例承载一条共享连接，业务方通过 NewAdapter 建立各自的订阅视图
type Engine struct {
	config    *Config
	logger    RTLogger
	manager   *ConnManager
	queue     *MessageQueue
	optimizer *EventOptimizer
	perf      *PerfMonitor
	netmon    *NetStatusMonitor
	mode      *ModeClient

	started int32
	closed  int32
}

// EngineStats 引擎总览快照
type EngineStats struct {
	Connection ConnState       `json:"connection"`
	Queue      *QueueStatus    `json:"queue"`
	Optimizer  *OptimizerStats `json:"optimizer"`
	Perf       *PerfStats      `json:"perf"`
	Network    NetProfile      `json:"network"`
	Quality    NetQuality      `json:"quality"`
}

// NewEngine 组装引擎
// 配置缺省值在此统一补齐，各组件之间的回调也在此接线
func NewEngine(config *Config) *Engine {
	config.normalize()
	log := config.Logger

	e := &Engine{
		config: config,
		logger: log,
	}

	e.queue = NewMessageQueue(config.Queue).SetLogger(log)
	e.perf = NewPerfMonitor(config.Monitor).SetLogger(log)
	e.netmon = NewNetStatusMonitor(config.Network).SetLogger(log)

	e.manager = NewConnManager(config)
	e.optimizer = NewEventOptimizer(config.Optimizer, e.manager.EmitBatch).SetLogger(log)

	e.manager.
		SetQueue(e.queue).
		SetOptimizer(e.optimizer).
		SetPerfMonitor(e.perf).
		SetNetworkMonitor(e.netmon)

	if config.Mode != nil && config.Mode.BaseURL != "" {
		e.mode = NewModeClient(config.Mode, config.Auth).SetLogger(log)
	}

	// 重连成功计入性能窗口
	e.manager.On(EventReconnect, func(interface{}) {
		e.perf.RecordReconnection()
	})

	// 网络恢复在线且连接存活时补一次队列冲刷
	e.netmon.OnChange(func(profile NetProfile, _ NetQuality) {
		if profile.Online && e.manager.IsConnected() {
			syncx.Go(context.Background()).Exec(func() {
				e.manager.FlushQueue(context.Background())
			})
		}
	})

	return e
}

// SetQueueStore 注入队列持久化后端
func (e *Engine) SetQueueStore(store QueueStore) *Engine {
	e.queue.SetStore(store)
	return e
}

// UseRedisQueueStore 用配置的持久化键与保鲜期挂载 Redis 队列后端
func (e *Engine) UseRedisQueueStore(client redis.UniversalClient) *Engine {
	store := NewRedisQueueStore(client, e.config.Queue.StorageKey, e.config.Queue.PersistTTL)
	return e.SetQueueStore(store)
}

// SetDropArchive 注入丢弃消息归档仓库
func (e *Engine) SetDropArchive(repo DroppedMessageRepository) *Engine {
	e.queue.SetDropHandler(ArchivingDropHandler(repo, e.logger))
	return e
}

// Start 启动引擎
// 恢复持久化队列快照、启动后台优化与采样循环，随后建立连接
func (e *Engine) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&e.started, 0, 1) {
		return nil
	}

	if err := e.queue.Restore(ctx); err != nil {
		e.logger.WarnKV("队列快照恢复失败", "error", err.Error())
	}

	e.optimizer.Start()
	e.perf.Start()

	e.logger.InfoKV("实时连接引擎启动", "endpoint", e.config.Endpoint)
	return e.manager.Connect(ctx, e.config.Endpoint, e.config.Auth)
}

// Teardown 优雅退出
// 冲掉在途批次、持久化未发队列、信标上报离场，最后断开连接
func (e *Engine) Teardown(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&e.closed, 0, 1) {
		return
	}

	e.optimizer.Stop()
	e.perf.Stop()

	if err := e.queue.Persist(ctx); err != nil {
		e.logger.WarnKV("退出时队列持久化失败", "error", err.Error())
	}

	if e.mode != nil && e.config.Auth != nil {
		e.mode.BeaconDefaultMode()
		e.mode.SendBeacon("/presence/leave", map[string]interface{}{
			"user_id": e.config.Auth.UserID,
			"reason":  "client_shutdown",
		})
	}

	e.manager.Disconnect()
	e.logger.Info("实时连接引擎已退出")
}

// NewAdapter 为一个业务消费方创建订阅适配器
func (e *Engine) NewAdapter() *Adapter {
	return NewAdapter(e.manager).SetNetworkMonitor(e.netmon)
}

// Manager 连接管理器
func (e *Engine) Manager() *ConnManager {
	return e.manager
}

// Queue 离线队列
func (e *Engine) Queue() *MessageQueue {
	return e.queue
}

// Optimizer 事件优化器
func (e *Engine) Optimizer() *EventOptimizer {
	return e.optimizer
}

// PerfMonitor 性能监控
func (e *Engine) PerfMonitor() *PerfMonitor {
	return e.perf
}

// NetworkMonitor 网络状态监控
func (e *Engine) NetworkMonitor() *NetStatusMonitor {
	return e.netmon
}

// ModeClient 模式客户端（未配置时为 nil）
func (e *Engine) ModeClient() *ModeClient {
	return e.mode
}

// SendMessage 发送消息（断线自动入队）
func (e *Engine) SendMessage(event string, data interface{}) error {
	return e.manager.SendMessage(event, data)
}

// SendWithAck 发送并等待服务端确认
func (e *Engine) SendWithAck(ctx context.Context, event string, data interface{}) (*AckResponse, error) {
	return e.manager.acks.SendWithAck(ctx, event, data)
}

// JoinRoom 加入房间
func (e *Engine) JoinRoom(roomID string) error {
	return e.manager.JoinRoom(roomID)
}

// LeaveRoom 离开房间
func (e *Engine) LeaveRoom(roomID string) error {
	return e.manager.LeaveRoom(roomID)
}

// Stats 引擎总览快照
func (e *Engine) Stats() *EngineStats {
	return &EngineStats{
		Connection: e.manager.State(),
		Queue:      e.queue.GetStatus(),
		Optimizer:  e.optimizer.Stats(),
		Perf:       e.perf.Stats(),
		Network:    e.netmon.Profile(),
		Quality:    e.netmon.Quality(),
	}
}
