/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-02 09:40:12
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-19 17:23:50
 * @FilePath: \go-rtlink\errors.go
 * @Description: 实时连接引擎错误定义 - 基于errorx.BaseError模式
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"github.com/kamalyes/go-toolbox/pkg/errorx"
)

// 错误类型定义，基于errorx.ErrorType
type ErrorType = errorx.ErrorType

// 实时连接引擎错误码常量定义
// 使用 83xxx 区间，避免与其他包冲突（RTL = RealTime Link）
const (
	// 连接相关错误 (83000-83099) - 可重试
	ErrTypeNotConnected        ErrorType = 83000 // 未建立连接
	ErrTypeConnectTimeout      ErrorType = 83001 // 连接超时
	ErrTypeHandshakeFailed     ErrorType = 83002 // 握手失败
	ErrTypeTransportClosed     ErrorType = 83003 // 传输已关闭
	ErrTypeReconnectInFlight   ErrorType = 83004 // 重连仲裁中
	ErrTypeManuallyDisconnected ErrorType = 83005 // 已手动断开

	// 传输干扰错误 (83100-83199)
	// 启发式识别第三方（浏览器扩展类）拦截导致的消息通道异常
	ErrTypeTransportInterference ErrorType = 83101 // 传输干扰

	// 队列相关错误 (83200-83299)
	ErrTypeQueueFull          ErrorType = 83201 // 队列已满且无可驱逐消息
	ErrTypeQueueRetryExceeded ErrorType = 83202 // 队列消息超过最大重试次数
	ErrTypeQueueStoreFailure  ErrorType = 83203 // 队列持久化失败
	ErrTypeSnapshotExpired    ErrorType = 83204 // 持久化快照已过期

	// 事件优化器错误 (83300-83399) - 不可重试（按设计静默丢弃）
	ErrTypeRateLimited    ErrorType = 83301 // 事件被限流丢弃
	ErrTypeDuplicateEvent ErrorType = 83302 // 事件在去重窗口内重复

	// 房间操作错误 (83400-83499)
	ErrTypeRoomNotJoined     ErrorType = 83401 // 未加入房间
	ErrTypeRoomWhileOffline  ErrorType = 83402 // 断线状态下的房间操作

	// ACK相关错误 (83500-83599)
	ErrTypeAckTimeout       ErrorType = 83501 // ACK超时 - 可重试
	ErrTypeAckRetryExceeded ErrorType = 83502 // ACK经重试后仍超时 - 不可重试

	// 模式服务错误 (83600-83699)
	ErrTypeModeRequestFailed ErrorType = 83601 // 模式接口请求失败
)

// init 初始化所有错误类型注册
// 注意：在运行多个测试包时，可能会看到 "ErrorType XXX is already registered" 的警告信息
// 这是正常现象，errorx包内部会忽略重复注册
func init() {
	errorx.RegisterError(ErrTypeNotConnected, "not connected")
	errorx.RegisterError(ErrTypeConnectTimeout, "connect timeout")
	errorx.RegisterError(ErrTypeHandshakeFailed, "handshake failed")
	errorx.RegisterError(ErrTypeTransportClosed, "transport closed")
	errorx.RegisterError(ErrTypeReconnectInFlight, "reconnect already in flight")
	errorx.RegisterError(ErrTypeManuallyDisconnected, "manually disconnected")

	errorx.RegisterError(ErrTypeTransportInterference, "transport interference detected: %s")

	errorx.RegisterError(ErrTypeQueueFull, "message queue is full")
	errorx.RegisterError(ErrTypeQueueRetryExceeded, "max retries exceeded for queued message %s")
	errorx.RegisterError(ErrTypeQueueStoreFailure, "queue persistence failed")
	errorx.RegisterError(ErrTypeSnapshotExpired, "queue snapshot expired")

	errorx.RegisterError(ErrTypeRateLimited, "event dropped by rate limit")
	errorx.RegisterError(ErrTypeDuplicateEvent, "duplicate event within dedup window")

	errorx.RegisterError(ErrTypeRoomNotJoined, "room not joined: %s")
	errorx.RegisterError(ErrTypeRoomWhileOffline, "room operation while disconnected")

	errorx.RegisterError(ErrTypeAckTimeout, "ack timeout")
	errorx.RegisterError(ErrTypeAckRetryExceeded, "ack timeout after %d retries for message %s")

	errorx.RegisterError(ErrTypeModeRequestFailed, "mode request %s %s failed: %s")
}

// 常用错误变量
var (
	ErrNotConnected         = errorx.NewError(ErrTypeNotConnected)
	ErrConnectTimeout       = errorx.NewError(ErrTypeConnectTimeout)
	ErrTransportClosed      = errorx.NewError(ErrTypeTransportClosed)
	ErrManuallyDisconnected = errorx.NewError(ErrTypeManuallyDisconnected)
	ErrQueueFull            = errorx.NewError(ErrTypeQueueFull)
	ErrQueueStoreFailure    = errorx.NewError(ErrTypeQueueStoreFailure)
	ErrSnapshotExpired      = errorx.NewError(ErrTypeSnapshotExpired)
	ErrAckTimeout           = errorx.NewError(ErrTypeAckTimeout)
	ErrRoomWhileOffline     = errorx.NewError(ErrTypeRoomWhileOffline)
)

// IsRetryableError 判断错误是否可以重试
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errxErr, ok := err.(interface{ Type() ErrorType }); ok {
		return IsRetryableErrorType(errxErr.Type())
	}

	switch err {
	case ErrConnectTimeout, ErrTransportClosed, ErrAckTimeout, ErrQueueStoreFailure:
		return true
	default:
		return false
	}
}

// IsRetryableErrorType 判断错误类型是否可以重试
func IsRetryableErrorType(errType ErrorType) bool {
	switch errType {
	case ErrTypeConnectTimeout, ErrTypeHandshakeFailed, ErrTypeTransportClosed,
		ErrTypeTransportInterference, ErrTypeQueueStoreFailure, ErrTypeAckTimeout:
		return true
	default:
		return false
	}
}

// IsInterferenceError 判断是否为传输干扰错误
func IsInterferenceError(err error) bool {
	if err == nil {
		return false
	}
	if errxErr, ok := err.(interface{ Type() ErrorType }); ok {
		return errxErr.Type() == ErrTypeTransportInterference
	}
	return false
}

// IsQueueFullError 判断是否为队列满错误
func IsQueueFullError(err error) bool {
	if err == nil {
		return false
	}
	if errxErr, ok := err.(interface{ Type() ErrorType }); ok {
		return errxErr.Type() == ErrTypeQueueFull
	}
	return err == ErrQueueFull
}

// IsAckTimeoutError 判断是否为ACK超时错误
func IsAckTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errxErr, ok := err.(interface{ Type() ErrorType }); ok {
		errType := errxErr.Type()
		return errType == ErrTypeAckTimeout || errType == ErrTypeAckRetryExceeded
	}
	return err == ErrAckTimeout
}
