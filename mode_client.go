/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-20 15:33:27
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-29 21:02:45
 * @FilePath: \go-rtlink\mode_client.go
 * @Description: 模式客户端 - 用户工作模式的 REST 读写与信标上报
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/errorx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// 工作模式取值
const (
	ModeAuto   = "auto"
	ModeOnline = "online"
	ModeAway   = "away"
	ModeBusy   = "busy"
)

// ModeState 服务端持有的用户模式状态
type ModeState struct {
	UserID    string    `json:"user_id"`
	Mode      string    `json:"mode"`
	Forced    bool      `json:"forced"`
	Manual    bool      `json:"manual"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ModeClient 模式 REST 客户端
// 与实时连接并行存在：连接断开时模式读写仍走 HTTP
type ModeClient struct {
	baseURL     string
	client      *http.Client
	auth        *AuthData
	defaultMode string
	logger      RTLogger
}

// NewModeClient 创建模式客户端
func NewModeClient(config *ModeConfig, auth *AuthData) *ModeClient {
	return &ModeClient{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		client:      &http.Client{Timeout: config.Timeout},
		auth:        auth,
		defaultMode: config.DefaultMode,
		logger:      DefaultLogger,
	}
}

// SetLogger 设置日志器
func (c *ModeClient) SetLogger(l RTLogger) *ModeClient {
	c.logger = l
	return c
}

// GetMode 查询用户当前模式
func (c *ModeClient) GetMode(ctx context.Context, userID string) (*ModeState, error) {
	return c.do(ctx, http.MethodGet, "/mode/"+userID, nil)
}

// SetMode 更新用户模式
func (c *ModeClient) SetMode(ctx context.Context, userID, mode string) (*ModeState, error) {
	return c.do(ctx, http.MethodPut, "/mode/"+userID, map[string]string{"mode": mode})
}

// ForceMode 管理员强制设定模式，覆盖用户自选
func (c *ModeClient) ForceMode(ctx context.Context, userID, mode string) (*ModeState, error) {
	return c.do(ctx, http.MethodPost, "/mode/force/"+userID, map[string]string{"mode": mode})
}

// SetManualMode 标记用户进入手动模式（退出自动切换）
func (c *ModeClient) SetManualMode(ctx context.Context, userID string, manual bool) (*ModeState, error) {
	return c.do(ctx, http.MethodPost, "/mode/manual/"+userID, map[string]bool{"manual": manual})
}

// BeaconDefaultMode 以信标方式把用户模式回退为配置的默认值
// 在引擎退出路径上调用，不等待响应
func (c *ModeClient) BeaconDefaultMode() {
	if c.auth == nil || c.auth.UserID == "" || c.defaultMode == "" {
		return
	}
	c.SendBeacon("/mode/"+c.auth.UserID, map[string]interface{}{
		"mode": c.defaultMode,
	})
}

// SendBeacon 页面卸载式信标上报
// 发后即忘：不读响应体、不重试，错误只落日志
// 供进程退出路径调用，语义对齐浏览器 sendBeacon
func (c *ModeClient) SendBeacon(path string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.WarnKV("信标载荷序列化失败", "path", path, "error", err.Error())
		return
	}

	syncx.Go(context.Background()).Exec(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		c.applyAuth(req)

		resp, err := c.client.Do(req)
		if err != nil {
			c.logger.DebugKV("信标上报失败", "path", path, "error", err.Error())
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	})
}

// do 统一请求入口
func (c *ModeClient) do(ctx context.Context, method, path string, payload interface{}) (*ModeState, error) {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, errorx.WrapError("模式请求序列化失败", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errorx.WrapError("模式请求构建失败", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errorx.NewError(ErrTypeModeRequestFailed, method, path, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errorx.NewError(ErrTypeModeRequestFailed, method, path,
			fmt.Sprintf("status %d", resp.StatusCode))
	}

	var state ModeState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, errorx.WrapError("模式响应解析失败", err)
	}
	return &state, nil
}

// applyAuth 附加认证头
func (c *ModeClient) applyAuth(req *http.Request) {
	if c.auth == nil {
		return
	}
	if c.auth.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.auth.Token)
	}
	if c.auth.UserID != "" {
		req.Header.Set("X-User-Id", c.auth.UserID)
	}
}
