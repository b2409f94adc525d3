package models

import (
	"time"
)

// AlertUrgency 告警紧急级别（全序：critical > high > medium > low）
type AlertUrgency string

const (
	UrgencyCritical AlertUrgency = "critical"
	UrgencyHigh     AlertUrgency = "high"
	UrgencyMedium   AlertUrgency = "medium"
	UrgencyLow      AlertUrgency = "low"
)

// urgencyRank 紧急级别排序值
var urgencyRank = map[AlertUrgency]int{
	UrgencyLow:      0,
	UrgencyMedium:   1,
	UrgencyHigh:     2,
	UrgencyCritical: 3,
}

// Rank 返回紧急级别的排序值（越大越紧急）
func (u AlertUrgency) Rank() int {
	return urgencyRank[u]
}

// WorseThan 判断是否比另一个级别更紧急
func (u AlertUrgency) WorseThan(other AlertUrgency) bool {
	return u.Rank() > other.Rank()
}

// StaffingRecommendation 人员配置建议
type StaffingRecommendation struct {
	EntryPointID     string       `json:"entry_point_id"`
	RecommendedStaff int          `json:"recommended_staff"`
	CurrentStaff     int          `json:"current_staff"`
	Urgency          AlertUrgency `json:"urgency"`
	QueueLength      int64        `json:"queue_length"`
	ArrivalRate      float64      `json:"arrival_rate"`
	ComputedAt       time.Time    `json:"computed_at"`
}

// StaffingAlert 人员配置告警（瞬态数据，历史存档由外部负责）
type StaffingAlert struct {
	AlertID      string       `json:"alert_id"`
	EntryPointID string       `json:"entry_point_id"`
	Urgency      AlertUrgency `json:"urgency"`
	Message      string       `json:"message"`
	StaffDelta   int          `json:"staff_delta"` // 建议增减的人数（正数表示增派）
	Fingerprint  string       `json:"fingerprint"` // 去重指纹：入口 + 级别 + 取整后的队长
	GeneratedAt  time.Time    `json:"generated_at"`
}
