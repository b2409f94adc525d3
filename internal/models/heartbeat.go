package models

import (
	"time"
)

// HeartbeatSample 设备心跳样本（设备编码 + 时间戳 + 累计计数）
// 按设备追加写入；只保留滚动窗口内的最近样本
type HeartbeatSample struct {
	DeviceCode string    `json:"device_code" db:"device_code"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	Count      int64     `json:"count" db:"count"` // 设备上报的累计计数
}

// HealthState 设备健康状态
type HealthState string

const (
	HealthUnknown  HealthState = "unknown"
	HealthHealthy  HealthState = "healthy"
	HealthWarning  HealthState = "warning"
	HealthCritical HealthState = "critical"
)

// HealthStatus 设备健康状态（派生数据，每次查询重新计算，不落库）
type HealthStatus struct {
	DeviceCode           string      `json:"device_code"`
	State                HealthState `json:"state"`
	MinutesSinceHeartbeat *float64   `json:"minutes_since_heartbeat,omitempty"` // nil 表示从未上报
}
