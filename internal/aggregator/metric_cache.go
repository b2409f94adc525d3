package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"queuewatch/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// metricKeyPrefix 指标缓存键前缀
const metricKeyPrefix = "queuewatch:metric:"

// MetricCache 排队指标缓存
// 同一轮询周期内相同 (入口, 窗口) 的重复计算直接命中缓存
type MetricCache struct {
	redisClient *redis.Client
	ttl         time.Duration
	logger      *zap.Logger
}

// NewMetricCache 创建指标缓存
// ttl 应不大于轮询间隔，保证下一轮刷新能看到新值
func NewMetricCache(redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *MetricCache {
	return &MetricCache{
		redisClient: redisClient,
		ttl:         ttl,
		logger:      logger,
	}
}

// cacheKey 构建缓存键：前缀 + 入口 + 窗口秒数
func (c *MetricCache) cacheKey(entryPointID string, window time.Duration) string {
	return fmt.Sprintf("%s%s:%d", metricKeyPrefix, entryPointID, int(window.Seconds()))
}

// Get 读取缓存的指标；未命中返回 (nil, nil)
func (c *MetricCache) Get(ctx context.Context, entryPointID string, window time.Duration) (*models.QueueMetric, error) {
	val, err := c.redisClient.Get(ctx, c.cacheKey(entryPointID, window)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get metric cache: %w", err)
	}

	var metric models.QueueMetric
	if err := json.Unmarshal([]byte(val), &metric); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached metric: %w", err)
	}

	return &metric, nil
}

// Set 写入指标缓存（带 TTL）
func (c *MetricCache) Set(ctx context.Context, metric models.QueueMetric) error {
	jsonData, err := json.Marshal(metric)
	if err != nil {
		return fmt.Errorf("failed to marshal metric: %w", err)
	}

	key := c.cacheKey(metric.EntryPointID, metric.Window)
	if err := c.redisClient.Set(ctx, key, jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set metric cache: %w", err)
	}

	c.logger.Debug("Updated metric cache",
		zap.String("entry_point_id", metric.EntryPointID),
		zap.String("key", key),
	)

	return nil
}

// Invalidate 删除入口在指定窗口下的缓存（手动刷新时调用）
func (c *MetricCache) Invalidate(ctx context.Context, entryPointID string, window time.Duration) error {
	if err := c.redisClient.Del(ctx, c.cacheKey(entryPointID, window)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate metric cache: %w", err)
	}
	return nil
}
