/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-02 09:47:44
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-07-30 21:15:09
 * @FilePath: \go-rtlink\logger.go
 * @Description: go-rtlink 日志接口，直接复用 go-logger
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"strings"

	"github.com/kamalyes/go-logger"
)

// RTLogger 直接使用 go-logger.ILogger
type RTLogger = logger.ILogger

// NewRTLogger 创建新的日志器，基于 go-logger
func NewRTLogger(config *logger.LogConfig) RTLogger {
	return logger.NewLogger(config)
}

// NewDefaultRTLogger 创建默认配置的日志器
func NewDefaultRTLogger() RTLogger {
	config := logger.DefaultConfig().
		WithLevel(logger.INFO).
		WithPrefix("[RTLink] ").
		WithShowCaller(false).
		WithColorful(true).
		WithTimeFormat("2006-01-02 15:04:05")

	return logger.NewLogger(config)
}

// NewNoOpLogger 创建空日志实例
func NewNoOpLogger() RTLogger {
	return logger.NewEmptyLogger()
}

// DefaultLogger 默认日志器实例，组件未显式注入时使用
var DefaultLogger RTLogger = NewDefaultRTLogger()

// SetDefaultLogger 设置默认日志器
func SetDefaultLogger(l RTLogger) {
	DefaultLogger = l
}

// parseLogLevel 解析日志级别字符串，大小写不敏感
func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG
	case "warn", "warning":
		return logger.WARN
	case "error":
		return logger.ERROR
	case "fatal":
		return logger.FATAL
	default:
		return logger.INFO
	}
}
