package orchestrator

import (
	"context"
	"sync"
	"time"

	"queuewatch/internal/config"
	"queuewatch/internal/health"
	"queuewatch/internal/models"
	"queuewatch/internal/staffing"

	"go.uber.org/zap"
)

// Scope 刷新范围：当前浏览的活动与入口
type Scope struct {
	EventID      string
	EntryPointID string
}

// DeviceRegistry 设备注册表接口（由 repository.DeviceRepository 实现）
type DeviceRegistry interface {
	GetDevice(deviceCode string) (*models.Device, error)
	ListDevices(entryPointID string) ([]models.Device, error)
}

// HeartbeatReader 心跳读取接口（由 tracker.Tracker 实现）
type HeartbeatReader interface {
	MinutesSince(deviceCode string, now time.Time) *float64
}

// MetricComputer 指标计算接口（由 aggregator.Aggregator 实现）
type MetricComputer interface {
	Compute(entryPointID string, devices []models.Device, window time.Duration, now time.Time) models.QueueMetric
}

// AlertEvaluator 建议引擎接口（由 staffing.Engine 实现）
// Evaluate 只计算不落库；指纹与冷却状态由 Commit 持久化，
// 这样被取消的周期可以连同未投递的告警一起放弃状态变更
type AlertEvaluator interface {
	Evaluate(ctx context.Context, metric models.QueueMetric, currentStaff int, now time.Time) (models.StaffingRecommendation, *models.StaffingAlert, *staffing.EntryPointState, error)
	Commit(ctx context.Context, entryPointID string, state *staffing.EntryPointState) error
}

// AlertPublisher 告警外发接口（由 publisher.MQTTPublisher 实现，可为 nil）
type AlertPublisher interface {
	PublishAlert(alert models.StaffingAlert) error
}

// StaffProvider 当前在岗人数查询（由调用方提供；nil 时按 0 处理，引擎内部回落到下限）
type StaffProvider func(entryPointID string) int

// Snapshot 一轮刷新的发布结果
// 只有未被取消的周期才会发布；被取消周期的部分结果直接丢弃
type Snapshot struct {
	Scope          Scope
	Health         map[string]models.HealthStatus
	Metric         models.QueueMetric
	Recommendation models.StaffingRecommendation
	RefreshedAt    time.Time
}

// Orchestrator 刷新编排器
// 驱动定时轮询与手动刷新；范围切换或新的手动刷新会取消在途周期，
// 取消必须被观测到，而不是靠后写覆盖
type Orchestrator struct {
	cfg       *config.Config
	devices   DeviceRegistry
	heartbeat HeartbeatReader
	metrics   MetricComputer
	engine    AlertEvaluator
	publisher AlertPublisher
	staffFor  StaffProvider
	logger    *zap.Logger

	mu          sync.Mutex
	scope       Scope
	cycleSeq    uint64
	cycleCancel context.CancelFunc
	loopCancel  context.CancelFunc
	snapshot    *Snapshot

	alerts chan models.StaffingAlert

	// 测试注入时钟
	now func() time.Time
}

// New 创建刷新编排器
func New(
	cfg *config.Config,
	devices DeviceRegistry,
	heartbeat HeartbeatReader,
	metrics MetricComputer,
	engine AlertEvaluator,
	publisher AlertPublisher,
	staffFor StaffProvider,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		devices:   devices,
		heartbeat: heartbeat,
		metrics:   metrics,
		engine:    engine,
		publisher: publisher,
		staffFor:  staffFor,
		logger:    logger,
		alerts:    make(chan models.StaffingAlert, 16),
		now:       time.Now,
	}
}

// Alerts 告警接收通道
// 每个指纹在冷却窗口内至多投递一次；级别升级始终投递
func (o *Orchestrator) Alerts() <-chan models.StaffingAlert {
	return o.alerts
}

// beginCycle 开启新周期：取消上一周期并推进序号
// 周期序号与取消函数由同一把锁保护，保证取消与发布互斥
func (o *Orchestrator) beginCycle(scope Scope) (context.Context, uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cycleCancel != nil {
		o.cycleCancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cycleCancel = cancel
	o.cycleSeq++
	o.scope = scope

	return ctx, o.cycleSeq
}

// RefreshNow 立即执行一轮刷新（任意时刻可调用，包括周期进行中）
// 在途周期被取消，其部分结果不会并入发布状态
func (o *Orchestrator) RefreshNow(scope Scope) {
	ctx, seq := o.beginCycle(scope)
	o.runCycle(ctx, scope, seq)
}

// StartAutoRefresh 启动自动刷新（已有循环先停止）
// interval ≤ 0 时使用配置的默认轮询间隔
func (o *Orchestrator) StartAutoRefresh(scope Scope, interval time.Duration) {
	if interval <= 0 {
		interval = o.cfg.Refresh.PollInterval
	}

	o.mu.Lock()
	if o.loopCancel != nil {
		o.loopCancel()
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	o.loopCancel = cancel
	o.mu.Unlock()

	o.logger.Info("Auto refresh started",
		zap.String("entry_point_id", scope.EntryPointID),
		zap.Duration("interval", interval),
	)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// 立即执行一次
		o.RefreshNow(scope)

		for {
			select {
			case <-loopCtx.Done():
				o.logger.Info("Auto refresh stopped")
				return
			case <-ticker.C:
				o.RefreshNow(scope)
			}
		}
	}()
}

// StopAutoRefresh 停止自动刷新（任意时刻可调用）
func (o *Orchestrator) StopAutoRefresh() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.loopCancel != nil {
		o.loopCancel()
		o.loopCancel = nil
	}
	if o.cycleCancel != nil {
		o.cycleCancel()
		o.cycleCancel = nil
	}
}

// runCycle 执行一轮刷新：设备列表 → 健康 → 指标 → 建议/告警 → 发布
// 周期内的错误记录日志并按入口降级，绝不中断整轮；取消静默丢弃
func (o *Orchestrator) runCycle(ctx context.Context, scope Scope, seq uint64) {
	now := o.now()

	devices, err := o.devices.ListDevices(scope.EntryPointID)
	if err != nil {
		o.logger.Error("Failed to list devices for refresh cycle",
			zap.String("entry_point_id", scope.EntryPointID),
			zap.Error(err),
		)
		return
	}

	healthStatuses := make(map[string]models.HealthStatus, len(devices))
	for _, device := range devices {
		// 周期被取消时立即放弃
		select {
		case <-ctx.Done():
			return
		default:
		}

		minutes := o.heartbeat.MinutesSince(device.DeviceCode, now)
		healthStatuses[device.DeviceCode] = health.Status(device.DeviceCode, minutes, device.Active, o.cfg.Health)
	}

	metric := o.metrics.Compute(scope.EntryPointID, devices, o.cfg.Refresh.MetricWindow, now)

	currentStaff := 0
	if o.staffFor != nil {
		currentStaff = o.staffFor(scope.EntryPointID)
	}

	rec, alert, pending, err := o.engine.Evaluate(ctx, metric, currentStaff, now)
	if err != nil {
		o.logger.Error("Failed to evaluate staffing",
			zap.String("entry_point_id", scope.EntryPointID),
			zap.Error(err),
		)
		alert = nil
		pending = nil
	}

	// 发布前观测取消：被替代的周期不得把结果并入展示状态，
	// 也不得把指纹/冷却状态提交到存储——未投递的告警占住指纹
	// 会把后续（包括级别升级）的告警错误抑制整个冷却窗口
	select {
	case <-ctx.Done():
		return
	default:
	}

	o.mu.Lock()
	if seq != o.cycleSeq {
		o.mu.Unlock()
		return
	}
	o.snapshot = &Snapshot{
		Scope:          scope,
		Health:         healthStatuses,
		Metric:         metric,
		Recommendation: rec,
		RefreshedAt:    now,
	}
	o.mu.Unlock()

	// 状态提交与告警投递在同一路径：先提交指纹再投递
	// 提交失败只记录日志，告警照常投递
	if pending != nil {
		if err := o.engine.Commit(ctx, scope.EntryPointID, pending); err != nil {
			o.logger.Error("Failed to commit staffing state",
				zap.String("entry_point_id", scope.EntryPointID),
				zap.Error(err),
			)
		}
	}
	if alert != nil {
		o.deliverAlert(*alert)
	}
}

// deliverAlert 投递告警到通道与外发端
// 通道满时丢弃并告警日志，不阻塞刷新周期
func (o *Orchestrator) deliverAlert(alert models.StaffingAlert) {
	select {
	case o.alerts <- alert:
	default:
		o.logger.Warn("Alert channel full, dropping alert",
			zap.String("entry_point_id", alert.EntryPointID),
			zap.String("fingerprint", alert.Fingerprint),
		)
	}

	if o.publisher != nil {
		if err := o.publisher.PublishAlert(alert); err != nil {
			o.logger.Error("Failed to publish alert",
				zap.String("alert_id", alert.AlertID),
				zap.Error(err),
			)
		}
	}
}

// Snapshot 返回最近一次发布的刷新结果（尚未刷新时为 nil）
func (o *Orchestrator) Snapshot() *Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot
}

// HealthStatuses 按设备编码查询健康状态（每次调用实时重算，与最新样本一致）
// 未注册的编码记录日志后跳过，不出现在结果中
func (o *Orchestrator) HealthStatuses(deviceCodes []string, now time.Time) map[string]models.HealthStatus {
	statuses := make(map[string]models.HealthStatus, len(deviceCodes))
	for _, code := range deviceCodes {
		device, err := o.devices.GetDevice(code)
		if err != nil {
			o.logger.Warn("Failed to resolve device for health query",
				zap.String("device_code", code),
				zap.Error(err),
			)
			continue
		}
		minutes := o.heartbeat.MinutesSince(code, now)
		statuses[code] = health.Status(code, minutes, device.Active, o.cfg.Health)
	}
	return statuses
}

// QueueMetric 查询入口的排队指标（实时计算）
func (o *Orchestrator) QueueMetric(entryPointID string, window time.Duration) (models.QueueMetric, error) {
	devices, err := o.devices.ListDevices(entryPointID)
	if err != nil {
		return models.QueueMetric{}, err
	}
	return o.metrics.Compute(entryPointID, devices, window, o.now()), nil
}

// Recommendation 返回最近一次刷新得到的人员配置建议
// 对应范围尚未刷新时返回 (nil, false)
func (o *Orchestrator) Recommendation(entryPointID string) (*models.StaffingRecommendation, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.snapshot == nil || o.snapshot.Scope.EntryPointID != entryPointID {
		return nil, false
	}
	rec := o.snapshot.Recommendation
	return &rec, true
}
