/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-03-05 16:02:59
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-22 09:48:31
 * @FilePath: \go-rtlink\interference.go
 * @Description: 传输干扰识别 - 基于报错文案的启发式分类器（尽力而为）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package rtlink

import (
	"strings"

	"github.com/kamalyes/go-toolbox/pkg/errorx"
)

// InterferenceSignatures 干扰错误特征子串
// 第三方（浏览器扩展类）注入脚本拦截消息通道时产生的典型报错文案
// 纯启发式匹配，存在误判可能，只用于触发兼容传输回退，绝不向调用方抛出
var InterferenceSignatures = []string{
	"message channel closed",
	"message channel is closed",
	"extension context invalidated",
	"a listener indicated an asynchronous response",
	"the message port closed before a response was received",
	"receiving end does not exist",
}

// classifyTransportError 对传输错误分类
// 命中干扰特征时包装为 ErrTypeTransportInterference，其余原样返回
func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	if isInterferenceMessage(err.Error()) {
		return errorx.NewError(ErrTypeTransportInterference, err.Error())
	}
	return err
}

// isInterferenceMessage 判断报错文案是否命中干扰特征
func isInterferenceMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, sig := range InterferenceSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}
