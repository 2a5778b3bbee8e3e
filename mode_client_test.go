/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-04-12 16:21:48
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-30 02:05:33
 * @FilePath: \go-rtlink\mode_client_test.go
 * @Description:
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type modeServerCall struct {
	method string
	path   string
	body   map[string]interface{}
	auth   string
}

// newModeServer 记录请求并返回固定模式状态
func newModeServer(t *testing.T, respond ModeState) (*httptest.Server, func() []modeServerCall) {
	var mu sync.Mutex
	var calls []modeServerCall

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := modeServerCall{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
		}
		if r.Body != nil {
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			call.body = body
		}
		mu.Lock()
		calls = append(calls, call)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(respond)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []modeServerCall {
		mu.Lock()
		defer mu.Unlock()
		out := make([]modeServerCall, len(calls))
		copy(out, calls)
		return out
	}
}

func newTestModeClient(srv *httptest.Server) *ModeClient {
	config := NewModeConfig(srv.URL)
	return NewModeClient(config, &AuthData{Token: "tk-1", UserID: "u1"}).SetLogger(NewNoOpLogger())
}

// TestModeClientGetMode 测试模式查询
func TestModeClientGetMode(t *testing.T) {
	srv, calls := newModeServer(t, ModeState{UserID: "u1", Mode: ModeOnline})
	c := newTestModeClient(srv)

	state, err := c.GetMode(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, ModeOnline, state.Mode)

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodGet, got[0].method)
	assert.Equal(t, "/mode/u1", got[0].path)
	assert.Equal(t, "Bearer tk-1", got[0].auth)
}

// TestModeClientSetMode 测试模式更新
func TestModeClientSetMode(t *testing.T) {
	srv, calls := newModeServer(t, ModeState{UserID: "u1", Mode: ModeAway})
	c := newTestModeClient(srv)

	state, err := c.SetMode(context.Background(), "u1", ModeAway)
	require.NoError(t, err)
	assert.Equal(t, ModeAway, state.Mode)

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPut, got[0].method)
	assert.Equal(t, "/mode/u1", got[0].path)
	assert.Equal(t, ModeAway, got[0].body["mode"])
}

// TestModeClientForceAndManual 测试强制与手动模式端点
func TestModeClientForceAndManual(t *testing.T) {
	srv, calls := newModeServer(t, ModeState{UserID: "u1", Mode: ModeBusy, Forced: true})
	c := newTestModeClient(srv)

	_, err := c.ForceMode(context.Background(), "u1", ModeBusy)
	require.NoError(t, err)
	_, err = c.SetManualMode(context.Background(), "u1", true)
	require.NoError(t, err)

	got := calls()
	require.Len(t, got, 2)
	assert.Equal(t, "/mode/force/u1", got[0].path)
	assert.Equal(t, http.MethodPost, got[0].method)
	assert.Equal(t, "/mode/manual/u1", got[1].path)
	assert.Equal(t, true, got[1].body["manual"])
}

// TestModeClientErrorStatus 测试非 2xx 状态转为错误
func TestModeClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	c := newTestModeClient(srv)
	_, err := c.GetMode(context.Background(), "u1")
	assert.Error(t, err)
}

// TestModeClientMalformedResponse 测试响应解析失败回传包装错误
func TestModeClientMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not-json"))
	}))
	t.Cleanup(srv.Close)

	c := NewModeClient(NewModeConfig(srv.URL), nil).SetLogger(NewNoOpLogger())
	_, err := c.GetMode(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "模式响应解析失败")
}

// TestModeClientBeaconDefaultMode 测试退出信标把模式回退为默认值
func TestModeClientBeaconDefaultMode(t *testing.T) {
	srv, calls := newModeServer(t, ModeState{})
	c := newTestModeClient(srv)

	c.BeaconDefaultMode()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(calls()) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPost, got[0].method)
	assert.Equal(t, "/mode/u1", got[0].path)
	assert.Equal(t, "auto", got[0].body["mode"])

	// 缺少用户信息时不发信标
	anon := NewModeClient(NewModeConfig(srv.URL), nil).SetLogger(NewNoOpLogger())
	anon.BeaconDefaultMode()
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, calls(), 1)
}

// TestModeClientSendBeacon 测试信标发后即忘
func TestModeClientSendBeacon(t *testing.T) {
	srv, calls := newModeServer(t, ModeState{})
	c := newTestModeClient(srv)

	c.SendBeacon("/presence/leave", map[string]string{"user_id": "u1"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(calls()) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPost, got[0].method)
	assert.Equal(t, "/presence/leave", got[0].path)
	assert.Equal(t, "u1", got[0].body["user_id"])
}
