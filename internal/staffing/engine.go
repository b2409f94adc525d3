package staffing

import (
	"context"
	"fmt"
	"time"

	"queuewatch/internal/config"
	"queuewatch/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine 人员配置建议引擎
// 把排队指标映射为建议人数，阈值越线时产出按级别分层的告警
// 指纹去重保证稳态队列不会每轮刷新都重复告警
type Engine struct {
	cfg    config.StaffingConfig
	states *StateStore
	logger *zap.Logger
}

// NewEngine 创建建议引擎
func NewEngine(cfg config.StaffingConfig, states *StateStore, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		states: states,
		logger: logger,
	}
}

// Recommend 计算建议人数与紧急级别（纯函数）
// 阶梯函数：每 PeoplePerStaff 人排队或每 RatePerStaff 人/分钟到达各需 1 人，
// 取两者较大值叠加在下限之上，并夹在 [MinStaff, MaxStaff]
// currentStaff ≤ 0 时按下限人数处理
func Recommend(metric models.QueueMetric, cfg config.StaffingConfig, currentStaff int) models.StaffingRecommendation {
	if currentStaff <= 0 {
		currentStaff = cfg.MinStaff
	}

	byQueue := 0
	if cfg.PeoplePerStaff > 0 {
		byQueue = int(metric.QueueLength / cfg.PeoplePerStaff)
	}
	byRate := 0
	if cfg.RatePerStaff > 0 {
		byRate = int(metric.ArrivalRate / cfg.RatePerStaff)
	}

	extra := byQueue
	if byRate > extra {
		extra = byRate
	}

	recommended := cfg.MinStaff + extra
	if recommended > cfg.MaxStaff {
		recommended = cfg.MaxStaff
	}
	if recommended < cfg.MinStaff {
		recommended = cfg.MinStaff
	}

	// 级别推导：
	//   critical — 队长越过最高断点或到达速率失控
	//   high     — 当前人数落后建议值 2 人及以上
	//   medium   — 恰好落后 1 人
	//   low      — 持平或富余
	var urgency models.AlertUrgency
	switch {
	case metric.QueueLength > cfg.TopBreakpoint || metric.ArrivalRate > cfg.RunawayRate:
		urgency = models.UrgencyCritical
	case currentStaff < recommended-1:
		urgency = models.UrgencyHigh
	case currentStaff == recommended-1:
		urgency = models.UrgencyMedium
	default:
		urgency = models.UrgencyLow
	}

	return models.StaffingRecommendation{
		EntryPointID:     metric.EntryPointID,
		RecommendedStaff: recommended,
		CurrentStaff:     currentStaff,
		Urgency:          urgency,
		QueueLength:      metric.QueueLength,
		ArrivalRate:      metric.ArrivalRate,
		ComputedAt:       metric.ComputedAt,
	}
}

// fingerprint 告警去重指纹：入口 + 级别 + 按桶取整的队长
func (e *Engine) fingerprint(rec models.StaffingRecommendation) string {
	bucket := rec.QueueLength
	if e.cfg.DedupBucket > 0 {
		bucket = (rec.QueueLength / e.cfg.DedupBucket) * e.cfg.DedupBucket
	}
	return fmt.Sprintf("%s|%s|%d", rec.EntryPointID, rec.Urgency, bucket)
}

// Evaluate 按最新指标推进入口的告警状态机，返回建议、本轮新产出的告警（可能为 nil）
// 与待提交的下一个状态（可能为 nil，表示无需持久化）
//
// 状态机：Quiet → Watching（队长首次越过观察线）→ Alerting（级别达标）
// Alerting 内级别变差始终立即告警；回落到 Quiet 清除指纹，
// 之后的再次升级立即告警而不必等冷却窗口结束
//
// Evaluate 不落库：指纹与冷却状态必须由调用方通过 Commit 持久化，
// 且只在告警确实投递的同一路径上提交，否则未投递的告警会把指纹
// 占住整个冷却窗口，级别升级也会被错误抑制
//
// LowConfidence 指标不推进状态机也不产出告警
func (e *Engine) Evaluate(ctx context.Context, metric models.QueueMetric, currentStaff int, now time.Time) (models.StaffingRecommendation, *models.StaffingAlert, *EntryPointState, error) {
	rec := Recommend(metric, e.cfg, currentStaff)

	if metric.LowConfidence {
		return rec, nil, nil, nil
	}

	state, err := e.states.Get(ctx, metric.EntryPointID)
	if err != nil {
		return rec, nil, nil, err
	}

	// 队长回落到观察线之下：回到 Quiet 并清除抑制指纹
	if metric.QueueLength < e.cfg.WatchThreshold {
		if state.Phase == PhaseQuiet {
			return rec, nil, nil, nil
		}
		e.logger.Debug("Entry point back to quiet",
			zap.String("entry_point_id", metric.EntryPointID),
			zap.Int64("queue_length", metric.QueueLength),
		)
		return rec, nil, &EntryPointState{Phase: PhaseQuiet}, nil
	}

	if rec.Urgency == models.UrgencyLow {
		// 越过观察线但级别未达标：Watching
		next := &EntryPointState{
			Phase:           PhaseWatching,
			LastUrgency:     models.UrgencyLow,
			LastFingerprint: state.LastFingerprint,
			LastEmittedAt:   state.LastEmittedAt,
			LastQueueLength: metric.QueueLength,
		}
		return rec, nil, next, nil
	}

	fingerprint := e.fingerprint(rec)
	emit := e.shouldEmit(rec, state, fingerprint, now)

	next := &EntryPointState{
		Phase:           PhaseAlerting,
		LastUrgency:     rec.Urgency,
		LastFingerprint: state.LastFingerprint,
		LastEmittedAt:   state.LastEmittedAt,
		LastQueueLength: metric.QueueLength,
	}

	var alert *models.StaffingAlert
	if emit {
		alert = e.buildAlert(rec, fingerprint, now)
		next.LastFingerprint = fingerprint
		next.LastEmittedAt = now

		e.logger.Info("Staffing alert raised",
			zap.String("entry_point_id", rec.EntryPointID),
			zap.String("urgency", string(rec.Urgency)),
			zap.Int64("queue_length", rec.QueueLength),
			zap.String("fingerprint", fingerprint),
		)
	}

	return rec, alert, next, nil
}

// Commit 持久化 Evaluate 返回的待提交状态
// 与告警投递在同一路径上调用；周期被取消时两者一起放弃
func (e *Engine) Commit(ctx context.Context, entryPointID string, state *EntryPointState) error {
	return e.states.Set(ctx, entryPointID, state)
}

// shouldEmit 判断本轮是否产出告警
// 冷却窗口内仅在升级规则命中时重发；级别变差永远立即告警
func (e *Engine) shouldEmit(rec models.StaffingRecommendation, state *EntryPointState, fingerprint string, now time.Time) bool {
	// 首次进入告警（Quiet/Watching 无历史指纹）
	if state.LastFingerprint == "" {
		return true
	}

	// 级别变差：绕过冷却，立即告警
	if state.LastUrgency != "" && rec.Urgency.WorseThan(state.LastUrgency) {
		return true
	}

	// 冷却窗口结束后允许重发
	// 边界按窗口内处理：默认冷却等于轮询间隔，相邻两轮恰好相隔一个冷却，
	// 恰好到期仍抑制才能保证稳态队列每个冷却窗口至多告警一次
	if now.Sub(state.LastEmittedAt) > e.cfg.Cooldown {
		return true
	}

	// 冷却窗口内：仅 tier_or_delta 模式下队长增量达标时重发
	if e.cfg.EscalationMode == config.EscalationTierOrDelta {
		if rec.QueueLength-state.LastQueueLength >= e.cfg.EscalationDelta {
			return true
		}
	}

	return false
}

// buildAlert 构建告警事件
func (e *Engine) buildAlert(rec models.StaffingRecommendation, fingerprint string, now time.Time) *models.StaffingAlert {
	delta := rec.RecommendedStaff - rec.CurrentStaff

	message := fmt.Sprintf(
		"Entry point %s: queue ~%d people, arrivals %.1f/min; recommend %d staff (current %d)",
		rec.EntryPointID, rec.QueueLength, rec.ArrivalRate, rec.RecommendedStaff, rec.CurrentStaff,
	)

	return &models.StaffingAlert{
		AlertID:      uuid.New().String(),
		EntryPointID: rec.EntryPointID,
		Urgency:      rec.Urgency,
		Message:      message,
		StaffDelta:   delta,
		Fingerprint:  fingerprint,
		GeneratedAt:  now,
	}
}
