package models

import (
	"time"
)

// QueueMetric 入口排队指标（派生数据，每轮刷新重新计算）
type QueueMetric struct {
	EntryPointID  string        `json:"entry_point_id"`
	QueueLength   int64         `json:"queue_length"`   // 估算排队人数（非负）
	ArrivalRate   float64       `json:"arrival_rate"`   // 到达速率（人/分钟，非负）
	EntryFlow     int64         `json:"entry_flow"`     // 窗口内进场人数
	ExitFlow      int64         `json:"exit_flow"`      // 窗口内离场人数
	Window        time.Duration `json:"window"`         // 指标覆盖的时间窗口
	ComputedAt    time.Time     `json:"computed_at"`
	LowConfidence bool          `json:"low_confidence"` // 无设备或设备全部 unknown/critical 时为 true
}
