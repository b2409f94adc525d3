package models

import (
	"errors"
)

// 错误类型定义
var (
	// ErrDeviceNotFound 操作引用了未知的设备编码
	ErrDeviceNotFound = errors.New("device not found")

	// ErrOutOfOrderSample 心跳时间戳早于该设备已记录的最新样本（样本被丢弃）
	ErrOutOfOrderSample = errors.New("heartbeat sample out of order")

	// ErrDeviceUnreachable 设备端点在超时时间内未确认（不自动重试）
	ErrDeviceUnreachable = errors.New("device unreachable")
)
