package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"queuewatch/internal/aggregator"
	"queuewatch/internal/calibration"
	"queuewatch/internal/config"
	"queuewatch/internal/models"
	"queuewatch/internal/orchestrator"
	"queuewatch/internal/publisher"
	"queuewatch/internal/repository"
	"queuewatch/internal/staffing"
	"queuewatch/internal/tracker"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

// QueueWatchService 排队监控服务（整合各层）
type QueueWatchService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger

	// 各层组件
	deviceRepo    *repository.DeviceRepository
	heartbeatRepo *repository.HeartbeatRepository
	tracker       *tracker.Tracker
	aggregator    *aggregator.Aggregator
	metricCache   *aggregator.MetricCache
	engine        *staffing.Engine
	calibrator    *calibration.Controller
	orchestrator  *orchestrator.Orchestrator
	alertPub      *publisher.MQTTPublisher
}

// NewQueueWatchService 创建排队监控服务
// staffFor: 当前在岗人数查询回调（由调用方提供，可为 nil）
func NewQueueWatchService(cfg *config.Config, logger *zap.Logger, staffFor orchestrator.StaffProvider) (*QueueWatchService, error) {
	// 1. 连接数据库
	db, err := sql.Open("postgres", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 创建 Repository 层
	deviceRepo := repository.NewDeviceRepository(db, logger)
	heartbeatRepo := repository.NewHeartbeatRepository(db, logger)

	// 4. 创建跟踪与计算层
	tr := tracker.New(cfg.Refresh.TrackerWindow, logger)
	agg := aggregator.New(tr, cfg.Health, logger)
	metricCache := aggregator.NewMetricCache(redisClient, cfg.Refresh.MetricCacheTTL, logger)
	states := staffing.NewStateStore(redisClient, logger)
	engine := staffing.NewEngine(cfg.Staffing, states, logger)
	calibrator := calibration.NewController(deviceRepo, tr, cfg.Calibration.Timeout, logger)

	// 5. 告警外发端（可选）
	var alertPub *publisher.MQTTPublisher
	if cfg.MQTT.Broker != "" {
		alertPub, err = publisher.NewMQTTPublisher(&cfg.MQTT, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create alert publisher: %w", err)
		}
	}

	// 6. 创建刷新编排器
	var pub orchestrator.AlertPublisher
	if alertPub != nil {
		pub = alertPub
	}
	orch := orchestrator.New(cfg, deviceRepo, tr, agg, engine, pub, staffFor, logger)

	return &QueueWatchService{
		config:        cfg,
		db:            db,
		redisClient:   redisClient,
		logger:        logger,
		deviceRepo:    deviceRepo,
		heartbeatRepo: heartbeatRepo,
		tracker:       tr,
		aggregator:    agg,
		metricCache:   metricCache,
		engine:        engine,
		calibrator:    calibrator,
		orchestrator:  orch,
		alertPub:      alertPub,
	}, nil
}

// Orchestrator 刷新编排器（查询接口与刷新控制面）
func (s *QueueWatchService) Orchestrator() *orchestrator.Orchestrator {
	return s.orchestrator
}

// Start 启动服务：回填滚动窗口后开启自动刷新
func (s *QueueWatchService) Start(ctx context.Context, scope orchestrator.Scope) error {
	s.logger.Info("Starting queuewatch service",
		zap.String("entry_point_id", scope.EntryPointID),
	)

	if err := s.warmTracker(); err != nil {
		// 回填失败不阻止启动：窗口随新心跳自然充盈
		s.logger.Warn("Failed to warm heartbeat tracker",
			zap.Error(err),
		)
	}

	s.orchestrator.StartAutoRefresh(scope, s.config.Refresh.PollInterval)

	<-ctx.Done()
	s.orchestrator.StopAutoRefresh()
	return nil
}

// warmTracker 用持久化的近期心跳回填内存滚动窗口
func (s *QueueWatchService) warmTracker() error {
	devices, err := s.deviceRepo.ListDevices("")
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	since := time.Now().Add(-s.config.Refresh.MetricWindow)
	for _, device := range devices {
		samples, err := s.heartbeatRepo.RecentHeartbeats(device.DeviceCode, since, s.config.Refresh.TrackerWindow)
		if err != nil {
			s.logger.Warn("Failed to load recent heartbeats",
				zap.String("device_code", device.DeviceCode),
				zap.Error(err),
			)
			continue
		}
		for _, sample := range samples {
			if err := s.tracker.Record(sample.DeviceCode, sample.Timestamp, sample.Count); err != nil {
				s.logger.Warn("Skipping stored heartbeat during warm-up",
					zap.String("device_code", sample.DeviceCode),
					zap.Error(err),
				)
			}
		}
	}

	return nil
}

// QueueMetric 查询入口的排队指标（缓存优先）
// 缓存未命中时按需重算并写回；缓存故障只降级为直接计算
func (s *QueueWatchService) QueueMetric(ctx context.Context, entryPointID string) (models.QueueMetric, error) {
	window := s.config.Refresh.MetricWindow

	cached, err := s.metricCache.Get(ctx, entryPointID, window)
	if err != nil {
		s.logger.Warn("Metric cache lookup failed",
			zap.String("entry_point_id", entryPointID),
			zap.Error(err),
		)
	}
	if cached != nil {
		return *cached, nil
	}

	metric, err := s.orchestrator.QueueMetric(entryPointID, window)
	if err != nil {
		return models.QueueMetric{}, err
	}

	if err := s.metricCache.Set(ctx, metric); err != nil {
		s.logger.Warn("Failed to cache queue metric",
			zap.String("entry_point_id", entryPointID),
			zap.Error(err),
		)
	}

	return metric, nil
}

// invalidateMetrics 清除入口的指标缓存（基线或设备集合变化后调用）
func (s *QueueWatchService) invalidateMetrics(ctx context.Context, entryPointID string) {
	if err := s.metricCache.Invalidate(ctx, entryPointID, s.config.Refresh.MetricWindow); err != nil {
		s.logger.Warn("Failed to invalidate metric cache",
			zap.String("entry_point_id", entryPointID),
			zap.Error(err),
		)
	}
}

// RecordHeartbeat 接入一条设备心跳
// 乱序样本丢弃并返回 ErrOutOfOrderSample（记录日志，调用方不应视为致命）
func (s *QueueWatchService) RecordHeartbeat(deviceCode string, timestamp time.Time, count int64) error {
	if err := s.heartbeatRepo.AppendHeartbeat(deviceCode, timestamp, count); err != nil {
		return err
	}
	return s.tracker.Record(deviceCode, timestamp, count)
}

// RegisterDevice 注册新设备
func (s *QueueWatchService) RegisterDevice(device *models.Device) error {
	return s.deviceRepo.CreateDevice(device)
}

// UpdateDevice 更新设备配置
func (s *QueueWatchService) UpdateDevice(deviceCode string, patch *models.DevicePatch) (*models.Device, error) {
	return s.deviceRepo.UpdateDevice(deviceCode, patch)
}

// DeleteDevice 删除设备并清除其全部派生状态
func (s *QueueWatchService) DeleteDevice(ctx context.Context, deviceCode string) error {
	device, err := s.deviceRepo.GetDevice(deviceCode)
	if err != nil {
		return err
	}
	if err := s.deviceRepo.DeleteDevice(deviceCode); err != nil {
		return err
	}
	s.tracker.Drop(deviceCode)
	s.invalidateMetrics(ctx, device.EntryPointID)
	return nil
}

// Calibrate 对设备执行置零标定
// 确认后基线被清除，旧指标缓存随之失效
func (s *QueueWatchService) Calibrate(ctx context.Context, deviceCode string) error {
	device, err := s.deviceRepo.GetDevice(deviceCode)
	if err != nil {
		return err
	}
	if err := s.calibrator.Calibrate(ctx, deviceCode); err != nil {
		return err
	}
	s.invalidateMetrics(ctx, device.EntryPointID)
	return nil
}

// Stop 停止服务并释放连接
func (s *QueueWatchService) Stop() error {
	s.logger.Info("Stopping queuewatch service")

	s.orchestrator.StopAutoRefresh()

	if s.alertPub != nil {
		s.alertPub.Disconnect()
	}

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}

// buildDSN 构建数据库连接字符串
func buildDSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.SSLMode,
	)
}
