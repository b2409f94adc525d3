package aggregator

import (
	"time"

	"queuewatch/internal/config"
	"queuewatch/internal/health"
	"queuewatch/internal/models"

	"go.uber.org/zap"
)

// SampleSource 样本窗口读取接口（由 tracker.Tracker 实现）
type SampleSource interface {
	SamplesSince(deviceCode string, since time.Time) []models.HeartbeatSample
	MinutesSince(deviceCode string, now time.Time) *float64
	CumulativeCount(deviceCode string) (int64, bool)
}

// Aggregator 排队指标聚合器
// 把设备计数增量折算为入口级的队长与到达速率估计
type Aggregator struct {
	samples   SampleSource
	healthCfg config.HealthConfig
	logger    *zap.Logger
}

// New 创建聚合器
func New(samples SampleSource, healthCfg config.HealthConfig, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		samples:   samples,
		healthCfg: healthCfg,
		logger:    logger,
	}
}

// windowDelta 计算设备在窗口内的计数增量
// 增量为负说明设备侧计数器被置零或回绕：按从零重新计量，取窗口内最后一个样本的值
func windowDelta(samples []models.HeartbeatSample) int64 {
	if len(samples) == 0 {
		return 0
	}
	last := samples[len(samples)-1].Count
	delta := last - samples[0].Count
	if delta < 0 {
		return last
	}
	return delta
}

// Compute 计算入口的排队指标
// devices: 映射到该入口的全部设备（由调用方按 entry_point_id 查出）
// unknown/critical 设备不参与流量求和，但仍出现在健康查询中
// 入口没有可用设备时返回 LowConfidence 指标而不是错误，调用方据此渲染"无数据"
func (a *Aggregator) Compute(entryPointID string, devices []models.Device, window time.Duration, now time.Time) models.QueueMetric {
	metric := models.QueueMetric{
		EntryPointID: entryPointID,
		Window:       window,
		ComputedAt:   now,
	}

	since := now.Add(-window)
	usable := 0

	var entryFlow, exitFlow int64
	var cumEntries, cumExits int64
	var spanStart, spanEnd time.Time

	for _, device := range devices {
		state := health.Classify(a.samples.MinutesSince(device.DeviceCode, now), device.Active, a.healthCfg)
		if state == models.HealthUnknown || state == models.HealthCritical {
			continue
		}
		usable++

		samples := a.samples.SamplesSince(device.DeviceCode, since)
		delta := windowDelta(samples)
		cumulative, _ := a.samples.CumulativeCount(device.DeviceCode)

		switch device.Direction {
		case models.DirectionExit:
			exitFlow += delta
			cumExits += cumulative
		default:
			entryFlow += delta
			cumEntries += cumulative
			// 记录进场样本覆盖的实际时间跨度，用于速率折算
			if len(samples) > 0 {
				first, last := samples[0].Timestamp, samples[len(samples)-1].Timestamp
				if spanStart.IsZero() || first.Before(spanStart) {
					spanStart = first
				}
				if last.After(spanEnd) {
					spanEnd = last
				}
			}
		}
	}

	if usable == 0 {
		metric.LowConfidence = true
		return metric
	}

	metric.EntryFlow = entryFlow
	metric.ExitFlow = exitFlow

	// 队长 = 监控起点以来的累计进场 - 累计离场，下限 0
	queueLength := cumEntries - cumExits
	if queueLength < 0 {
		queueLength = 0
	}
	metric.QueueLength = queueLength

	// 到达速率 = 窗口内进场增量 / 样本实际覆盖的分钟数，恒非负
	// 样本跨度不足时退回到名义窗口长度
	spanMinutes := spanEnd.Sub(spanStart).Minutes()
	if spanMinutes <= 0 {
		spanMinutes = window.Minutes()
	}
	if spanMinutes > 0 {
		metric.ArrivalRate = float64(entryFlow) / spanMinutes
	}
	if metric.ArrivalRate < 0 {
		metric.ArrivalRate = 0
	}

	return metric
}
