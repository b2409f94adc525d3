package tracker

import (
	"fmt"
	"sync"
	"time"

	"queuewatch/internal/models"

	"go.uber.org/zap"
)

// deviceWindow 单个设备的滚动样本窗口
// 写入方只有心跳接入一个，读取方（健康/指标计算）可并发
type deviceWindow struct {
	mu       sync.RWMutex
	samples  []models.HeartbeatSample // 按时间升序，容量有界
	baseline int64                    // 计数基线（监控起点的原始计数；标定确认后清零）
}

// Tracker 心跳跟踪器
// 维护每个设备的最新心跳与有界的近期样本窗口
type Tracker struct {
	mu         sync.RWMutex
	devices    map[string]*deviceWindow
	windowSize int
	logger     *zap.Logger
}

// New 创建心跳跟踪器
// windowSize: 每设备保留的样本数上限
func New(windowSize int, logger *zap.Logger) *Tracker {
	if windowSize < 2 {
		windowSize = 2
	}
	return &Tracker{
		devices:    make(map[string]*deviceWindow),
		windowSize: windowSize,
		logger:     logger,
	}
}

// window 获取或创建设备窗口
func (t *Tracker) window(deviceCode string, create bool) *deviceWindow {
	t.mu.RLock()
	w, ok := t.devices[deviceCode]
	t.mu.RUnlock()
	if ok || !create {
		return w
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok = t.devices[deviceCode]; ok {
		return w
	}
	w = &deviceWindow{}
	t.devices[deviceCode] = w
	return w
}

// Record 追加一条心跳样本
// 时间戳严格早于该设备最新样本时返回 ErrOutOfOrderSample（样本丢弃，不重排）
// 设备首条样本的原始计数作为该设备的计数基线（监控起点）
func (t *Tracker) Record(deviceCode string, timestamp time.Time, count int64) error {
	w := t.window(deviceCode, true)

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.samples) == 0 {
		// 首条样本：以当前计数为基线，从监控起点开始计量
		w.baseline = count
	} else {
		latest := w.samples[len(w.samples)-1]
		if timestamp.Before(latest.Timestamp) {
			t.logger.Warn("Dropping out-of-order heartbeat sample",
				zap.String("device_code", deviceCode),
				zap.Time("sample_timestamp", timestamp),
				zap.Time("latest_timestamp", latest.Timestamp),
			)
			return fmt.Errorf("%w: %s", models.ErrOutOfOrderSample, deviceCode)
		}
	}

	w.samples = append(w.samples, models.HeartbeatSample{
		DeviceCode: deviceCode,
		Timestamp:  timestamp,
		Count:      count,
	})

	// 窗口有界：丢弃最旧的样本
	if len(w.samples) > t.windowSize {
		w.samples = w.samples[len(w.samples)-t.windowSize:]
	}

	return nil
}

// Latest 返回设备最新样本（原始计数）
func (t *Tracker) Latest(deviceCode string) (*models.HeartbeatSample, bool) {
	w := t.window(deviceCode, false)
	if w == nil {
		return nil, false
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.samples) == 0 {
		return nil, false
	}
	s := w.samples[len(w.samples)-1]
	return &s, true
}

// MinutesSince 返回距最近一次心跳的分钟数；从未上报时返回 nil
func (t *Tracker) MinutesSince(deviceCode string, now time.Time) *float64 {
	latest, ok := t.Latest(deviceCode)
	if !ok {
		return nil
	}
	minutes := now.Sub(latest.Timestamp).Minutes()
	if minutes < 0 {
		minutes = 0
	}
	return &minutes
}

// SamplesSince 返回 since 之后的样本序列（按时间升序，计数为基线修正后的有效值）
// 没有样本时返回空切片而不是错误
func (t *Tracker) SamplesSince(deviceCode string, since time.Time) []models.HeartbeatSample {
	w := t.window(deviceCode, false)
	if w == nil {
		return nil
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []models.HeartbeatSample
	for _, s := range w.samples {
		if !s.Timestamp.After(since) {
			continue
		}
		effective := s.Count - w.baseline
		if effective < 0 {
			// 设备侧计数器回绕或被置零：按从零重新计量处理
			effective = s.Count
		}
		out = append(out, models.HeartbeatSample{
			DeviceCode: s.DeviceCode,
			Timestamp:  s.Timestamp,
			Count:      effective,
		})
	}
	return out
}

// CumulativeCount 返回设备自监控起点以来的有效累计计数
// 从未上报时返回 false
func (t *Tracker) CumulativeCount(deviceCode string) (int64, bool) {
	w := t.window(deviceCode, false)
	if w == nil {
		return 0, false
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.samples) == 0 {
		return 0, false
	}
	latest := w.samples[len(w.samples)-1]
	effective := latest.Count - w.baseline
	if effective < 0 {
		// 计数器回绕或被置零：按从零重新计量处理
		effective = latest.Count
	}
	return effective, true
}

// Baseline 返回设备当前的计数基线
func (t *Tracker) Baseline(deviceCode string) int64 {
	w := t.window(deviceCode, false)
	if w == nil {
		return 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.baseline
}

// ClearBaseline 清除设备计数基线（标定置零确认后调用）
// 后续上报的累计计数按相对零解释；历史样本不删除
// 写锁保证不会与进行中的健康/指标读取交错出现半重置状态
func (t *Tracker) ClearBaseline(deviceCode string) {
	w := t.window(deviceCode, true)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.baseline = 0
}

// Drop 移除设备的全部派生状态（设备删除时调用）
func (t *Tracker) Drop(deviceCode string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.devices, deviceCode)
}
