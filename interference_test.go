/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-04-11 09:55:36
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-30 01:42:10
 * @FilePath: \go-rtlink\interference_test.go
 * @Description:
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestClassifyInterferenceSignatures 测试干扰特征命中与大小写不敏感
func TestClassifyInterferenceSignatures(t *testing.T) {
	hits := []string{
		"The message channel closed before a response was received",
		"Extension context invalidated.",
		"Error: A listener indicated an asynchronous response by returning true",
		"Unchecked runtime.lastError: The message port closed before a response was received.",
		"Could not establish connection. Receiving end does not exist.",
	}
	for _, msg := range hits {
		err := classifyTransportError(errors.New(msg))
		assert.True(t, IsInterferenceError(err), "应识别为干扰: %s", msg)
		assert.True(t, IsRetryableError(err))
	}
}

// TestClassifyOrdinaryErrorsPassThrough 测试普通传输错误原样返回
func TestClassifyOrdinaryErrorsPassThrough(t *testing.T) {
	ordinary := []string{
		"connection refused",
		"unexpected EOF",
		"write: broken pipe",
		"websocket: close 1006 (abnormal closure)",
	}
	for _, msg := range ordinary {
		src := errors.New(msg)
		err := classifyTransportError(src)
		assert.Same(t, src, err)
		assert.False(t, IsInterferenceError(err))
	}
}

// TestClassifyNil 测试空错误
func TestClassifyNil(t *testing.T) {
	assert.NoError(t, classifyTransportError(nil))
	assert.False(t, IsInterferenceError(nil))
}
