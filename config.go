/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-02 10:05:31
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-24 19:40:18
 * @FilePath: \go-rtlink\config.go
 * @Description: 引擎与各组件配置
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"os"
	"time"

	wscconfig "github.com/kamalyes/go-config/pkg/wsc"
	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-toolbox/pkg/safe"
)

// Config 引擎总配置
type Config struct {
	Endpoint  string           // 传输端点 URL
	Auth      *AuthData        // 握手认证数据
	Transport *wscconfig.WSC   // 传输层配置（重连时间窗、写超时、缓冲等）
	Queue     *QueueConfig     // 离线队列配置
	Optimizer *OptimizerConfig // 事件优化器配置
	Monitor   *MonitorConfig   // 性能监控配置
	Network   *NetworkConfig   // 网络状态监控配置
	Mode      *ModeConfig      // 模式服务配置
	Logger    RTLogger         // 日志器，nil 时使用默认
}

// NewConfig 创建带默认值的引擎配置
func NewConfig(endpoint string) *Config {
	return &Config{
		Endpoint:  endpoint,
		Transport: safe.MergeWithDefaults[wscconfig.WSC](nil, wscconfig.Default()),
		Queue:     NewQueueConfig(),
		Optimizer: NewOptimizerConfig(),
		Monitor:   NewMonitorConfig(),
		Network:   NewNetworkConfig(),
		Mode:      nil, // 模式服务可选
	}
}

// WithAuth 设置认证数据并返回当前配置对象
func (c *Config) WithAuth(auth *AuthData) *Config {
	c.Auth = auth
	return c
}

// WithTransport 设置传输层配置并返回当前配置对象
func (c *Config) WithTransport(t *wscconfig.WSC) *Config {
	c.Transport = safe.MergeWithDefaults(t, wscconfig.Default())
	return c
}

// WithLogger 设置日志器并返回当前配置对象
func (c *Config) WithLogger(l RTLogger) *Config {
	c.Logger = l
	return c
}

// WithMode 设置模式服务配置并返回当前配置对象
func (c *Config) WithMode(m *ModeConfig) *Config {
	c.Mode = m
	return c
}

// QueueConfig 离线队列配置
type QueueConfig struct {
	MaxSize        int           // 队列容量上限
	MaxRetries     int           // 单条消息最大重试次数
	BaseRetryDelay time.Duration // 重试退避基准延迟
	PersistTTL     time.Duration // 持久化快照保鲜期
	StorageKey     string        // 持久化固定键
}

// NewQueueConfig 创建默认队列配置
func NewQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxSize:        100,
		MaxRetries:     3,
		BaseRetryDelay: 1 * time.Second,
		PersistTTL:     24 * time.Hour,
		StorageKey:     "rtlink:outbox",
	}
}

// WithMaxSize 设置队列容量并返回当前配置对象
func (c *QueueConfig) WithMaxSize(n int) *QueueConfig {
	c.MaxSize = n
	return c
}

// WithMaxRetries 设置最大重试次数并返回当前配置对象
func (c *QueueConfig) WithMaxRetries(n int) *QueueConfig {
	c.MaxRetries = n
	return c
}

// WithBaseRetryDelay 设置退避基准延迟并返回当前配置对象
func (c *QueueConfig) WithBaseRetryDelay(d time.Duration) *QueueConfig {
	c.BaseRetryDelay = d
	return c
}

// WithPersistTTL 设置快照保鲜期并返回当前配置对象
func (c *QueueConfig) WithPersistTTL(d time.Duration) *QueueConfig {
	c.PersistTTL = d
	return c
}

// OptimizerConfig 事件优化器配置
type OptimizerConfig struct {
	FlushInterval time.Duration // 批量冲刷检查间隔
	BatchWindow   time.Duration // 单个批次等待窗口
	MaxBatchSize  int           // 单个批次最大事件数
	DedupWindow   time.Duration // 事件去重窗口
}

// NewOptimizerConfig 创建默认优化器配置
func NewOptimizerConfig() *OptimizerConfig {
	return &OptimizerConfig{
		FlushInterval: 50 * time.Millisecond,
		BatchWindow:   100 * time.Millisecond,
		MaxBatchSize:  10,
		DedupWindow:   3 * time.Second,
	}
}

// WithMaxBatchSize 设置批次大小并返回当前配置对象
func (c *OptimizerConfig) WithMaxBatchSize(n int) *OptimizerConfig {
	c.MaxBatchSize = n
	return c
}

// WithBatchWindow 设置批次窗口并返回当前配置对象
func (c *OptimizerConfig) WithBatchWindow(d time.Duration) *OptimizerConfig {
	c.BatchWindow = d
	return c
}

// WithDedupWindow 设置去重窗口并返回当前配置对象
func (c *OptimizerConfig) WithDedupWindow(d time.Duration) *OptimizerConfig {
	c.DedupWindow = d
	return c
}

// MonitorConfig 性能监控配置
type MonitorConfig struct {
	ResetInterval  time.Duration // 计数器重置窗口
	LatencyWindow  int           // 延迟滚动窗口大小
	MemSampleSize  int           // 内存趋势对比样本数（前后各N个）
	LeakThreshold  float64       // 泄漏判定增幅阈值（百分比）
	SampleInterval time.Duration // 内存采样间隔
}

// NewMonitorConfig 创建默认监控配置
func NewMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		ResetInterval:  60 * time.Second,
		LatencyWindow:  100,
		MemSampleSize:  5,
		LeakThreshold:  10.0,
		SampleInterval: 30 * time.Second,
	}
}

// NetworkConfig 网络状态监控配置
type NetworkConfig struct {
	ExcellentRTT time.Duration // 优质链路 RTT 上限
	GoodRTT      time.Duration // 良好链路 RTT 上限
	FairRTT      time.Duration // 一般链路 RTT 上限
}

// NewNetworkConfig 创建默认网络监控配置
func NewNetworkConfig() *NetworkConfig {
	return &NetworkConfig{
		ExcellentRTT: 100 * time.Millisecond,
		GoodRTT:      300 * time.Millisecond,
		FairRTT:      600 * time.Millisecond,
	}
}

// ModeConfig 模式服务（REST 兄弟服务）配置
type ModeConfig struct {
	BaseURL     string        // 模式接口基础地址
	Timeout     time.Duration // 请求超时
	DefaultMode string        // 页面退出时回退的默认模式
}

// NewModeConfig 创建默认模式服务配置
func NewModeConfig(baseURL string) *ModeConfig {
	return &ModeConfig{
		BaseURL:     baseURL,
		Timeout:     5 * time.Second,
		DefaultMode: "auto",
	}
}

// HealthStalenessThreshold 连接健康检查的失联陈旧阈值
// 超过该时长仍未连上且非手动断开时，触发一次重连
const HealthStalenessThreshold = 60 * time.Second

// initLogger 根据传输层配置初始化日志器
func initLogger(config *wscconfig.WSC) RTLogger {
	if config.Logging != nil && config.Logging.Enabled {
		loggerConfig := logger.DefaultConfig().
			WithLevel(parseLogLevel(config.Logging.Level)).
			WithPrefix("[RTLink] ").
			WithShowCaller(false).
			WithColorful(true).
			WithTimeFormat(time.DateTime)

		switch config.Logging.Output {
		case "file":
			if config.Logging.FilePath != "" {
				if config.Logging.MaxSize > 0 && config.Logging.MaxBackups > 0 {
					rotateWriter := logger.NewRotateWriter(
						config.Logging.FilePath,
						int64(config.Logging.MaxSize)*1024*1024,
						config.Logging.MaxBackups,
					)
					loggerConfig = loggerConfig.WithOutput(rotateWriter)
				} else {
					fileWriter := logger.NewFileWriter(config.Logging.FilePath)
					loggerConfig = loggerConfig.WithOutput(fileWriter)
				}
			}
		default:
			loggerConfig = loggerConfig.WithOutput(logger.NewConsoleWriter(os.Stdout))
		}

		return logger.NewLogger(loggerConfig)
	}

	return NewDefaultRTLogger()
}

// normalize 补齐缺失配置
func (c *Config) normalize() {
	if c.Transport == nil {
		c.Transport = safe.MergeWithDefaults[wscconfig.WSC](nil, wscconfig.Default())
	}
	c.Queue = mathx.IfEmpty(c.Queue, NewQueueConfig())
	c.Optimizer = mathx.IfEmpty(c.Optimizer, NewOptimizerConfig())
	c.Monitor = mathx.IfEmpty(c.Monitor, NewMonitorConfig())
	c.Network = mathx.IfEmpty(c.Network, NewNetworkConfig())
	if c.Logger == nil {
		c.Logger = initLogger(c.Transport)
	}
}
