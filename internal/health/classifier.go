package health

import (
	"time"

	"queuewatch/internal/config"
	"queuewatch/internal/models"
)

// Classify 按心跳新鲜度对设备分级（纯函数，无副作用）
// 规则：
//   - 设备未启用 → unknown（主动停用的设备不告警）
//   - 从未上报（minutesSince 为 nil）→ unknown
//   - 间隔 ≤ HealthyWithin → healthy
//   - 间隔 ≤ WarningWithin → warning
//   - 其余 → critical
//
// 单次丢失心跳不应触发告警，持续静默才升级，阈值由配置给定
func Classify(minutesSince *float64, active bool, cfg config.HealthConfig) models.HealthState {
	if !active {
		return models.HealthUnknown
	}
	if minutesSince == nil {
		return models.HealthUnknown
	}

	elapsed := time.Duration(*minutesSince * float64(time.Minute))
	switch {
	case elapsed <= cfg.HealthyWithin:
		return models.HealthHealthy
	case elapsed <= cfg.WarningWithin:
		return models.HealthWarning
	default:
		return models.HealthCritical
	}
}

// Status 构建设备健康状态（派生数据，不落库）
func Status(deviceCode string, minutesSince *float64, active bool, cfg config.HealthConfig) models.HealthStatus {
	return models.HealthStatus{
		DeviceCode:            deviceCode,
		State:                 Classify(minutesSince, active, cfg),
		MinutesSinceHeartbeat: minutesSince,
	}
}
