/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-05 10:18:46
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-25 15:37:20
 * @FilePath: \go-rtlink\transport.go
 * @Description: 传输层抽象 - WebSocket 首选，HTTP 长轮询兜底
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
	"sync"
	"time"

	"github.com/gorilla/websocket"
	wscconfig "github.com/kamalyes/go-config/pkg/wsc"
)

// Transport 传输会话抽象
// 一次成功拨号产生一个会话，读写出错即视为会话终结
type Transport interface {
	// Name 传输名称（websocket / longpoll）
	Name() string

	// ReadEnvelope 阻塞读取一帧，会话关闭时返回错误
	ReadEnvelope() (*Envelope, error)

	// WriteEnvelope 写出一帧
	WriteEnvelope(env *Envelope) error

	// Ping 发送探活帧并返回往返耗时
	Ping(ctx context.Context) (time.Duration, error)

	// Close 关闭会话
	Close() error
}

// HandshakeInfo 握手结果
type HandshakeInfo struct {
	SocketID  string // 服务端分配的会话标识
	Transport string // 实际协商的传输名称
}

// DialFunc 拨号函数，可注入用于测试
type DialFunc func(ctx context.Context, endpoint string, auth *AuthData, cfg *wscconfig.WSC) (Transport, *HandshakeInfo, error)

// authHeader 构造握手请求头
func authHeader(auth *AuthData) http.Header {
	header := http.Header{}
	if auth == nil {
		return header
	}
	if auth.Token != "" {
		header.Set("Authorization", "Bearer "+auth.Token)
	}
	if auth.UserID != "" {
		header.Set("X-User-Id", auth.UserID)
	}
	if auth.Role != "" {
		header.Set("X-User-Role", auth.Role)
	}
	if auth.SessionID != "" {
		header.Set("X-Session-Id", auth.SessionID)
	}
	return header
}

// ============================================================================
// WebSocket 传输
// ============================================================================

// wsTransport 基于 gorilla/websocket 的双向传输
type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex    // 串行化写操作
	pongCh  chan struct{} // Ping 往返通知
	wait    time.Duration // 写超时
}

// DialWebSocket 建立 WebSocket 传输会话
func DialWebSocket(ctx context.Context, endpoint string, auth *AuthData, cfg *wscconfig.WSC) (Transport, *HandshakeInfo, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = cfg.WriteTimeout

	conn, resp, err := dialer.DialContext(ctx, endpoint, authHeader(auth))
	if err != nil {
		return nil, nil, err
	}
	conn.SetReadLimit(cfg.MaxMessageSize)

	t := &wsTransport{
		conn:   conn,
		pongCh: make(chan struct{}, 1),
		wait:   cfg.WriteTimeout,
	}

	defaultPongHandler := conn.PongHandler()
	conn.SetPongHandler(func(appData string) error {
		select {
		case t.pongCh <- struct{}{}:
		default:
		}
		return defaultPongHandler(appData)
	})

	info := &HandshakeInfo{
		SocketID:  resp.Header.Get("X-Socket-Id"),
		Transport: t.Name(),
	}
	if info.SocketID == "" {
		info.SocketID = newMessageID()
	}
	return t, info, nil
}

// Name 传输名称
func (t *wsTransport) Name() string { return "websocket" }

// ReadEnvelope 读取一帧
func (t *wsTransport) ReadEnvelope() (*Envelope, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	env := &Envelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, err
	}
	return env, nil
}

// WriteEnvelope 写出一帧
func (t *wsTransport) WriteEnvelope(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.wait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping 发送控制帧并等待 Pong
func (t *wsTransport) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()

	t.writeMu.Lock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.wait))
	err := t.conn.WriteMessage(websocket.PingMessage, nil)
	t.writeMu.Unlock()
	if err != nil {
		return 0, err
	}

	select {
	case <-t.pongCh:
		return time.Since(start), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close 关闭会话
func (t *wsTransport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()
	return t.conn.Close()
}

// IsNormalClose 检查 WebSocket 关闭是否为正常关闭
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// ============================================================================
// HTTP 长轮询传输（兼容兜底）
// ============================================================================

// lpTransport 长轮询传输
// 入站走阻塞 GET /poll，出站走 POST /emit，语义与双向传输对齐但延迟更高
type lpTransport struct {
	base     string
	socketID string
	client   *http.Client
	header   http.Header
	ctx      context.Context
	cancel   context.CancelFunc
}

// DialLongPoll 建立长轮询传输会话
// endpoint 的 ws/wss scheme 被改写为 http/https
func DialLongPoll(ctx context.Context, endpoint string, auth *AuthData, cfg *wscconfig.WSC) (Transport, *HandshakeInfo, error) {
	base := strings.Replace(endpoint, "ws://", "http://", 1)
	base = strings.Replace(base, "wss://", "https://", 1)
	base = strings.TrimSuffix(base, "/")

	sessionCtx, cancel := context.WithCancel(context.Background())
	t := &lpTransport{
		base:   base,
		client: &http.Client{},
		header: authHeader(auth),
		ctx:    sessionCtx,
		cancel: cancel,
	}

	// 握手：向 /handshake 发一次 POST 换取会话标识
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/handshake", nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	req.Header = t.header.Clone()

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		cancel()
		return nil, nil, fmt.Errorf("longpoll handshake status %d", resp.StatusCode)
	}

	var hs struct {
		SocketID string `json:"socketId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		cancel()
		return nil, nil, err
	}
	t.socketID = hs.SocketID

	return t, &HandshakeInfo{SocketID: hs.SocketID, Transport: t.Name()}, nil
}

// Name 传输名称
func (t *lpTransport) Name() string { return "longpoll" }

// ReadEnvelope 阻塞轮询一帧
func (t *lpTransport) ReadEnvelope() (*Envelope, error) {
	req, err := http.NewRequestWithContext(t.ctx, http.MethodGet,
		t.base+"/poll?sid="+t.socketID, nil)
	if err != nil {
		return nil, err
	}
	req.Header = t.header.Clone()

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("longpoll read status %d", resp.StatusCode)
	}

	env := &Envelope{}
	if err := json.NewDecoder(resp.Body).Decode(env); err != nil {
		return nil, err
	}
	return env, nil
}

// WriteEnvelope 提交一帧
func (t *lpTransport) WriteEnvelope(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(t.ctx, http.MethodPost,
		t.base+"/emit?sid="+t.socketID, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header = t.header.Clone()
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("longpoll write status %d", resp.StatusCode)
	}
	return nil
}

// Ping 以一次空往返估算延迟
func (t *lpTransport) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		t.base+"/ping?sid="+t.socketID, nil)
	if err != nil {
		return 0, err
	}
	req.Header = t.header.Clone()

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return time.Since(start), nil
}

// Close 终止会话，唤醒阻塞中的轮询
func (t *lpTransport) Close() error {
	t.cancel()
	return nil
}

// defaultDialChain 默认传输回退顺序
func defaultDialChain() []DialFunc {
	return []DialFunc{DialWebSocket, DialLongPoll}
}
