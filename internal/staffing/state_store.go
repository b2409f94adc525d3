package staffing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"queuewatch/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// stateKeyPrefix 告警状态缓存键前缀
const stateKeyPrefix = "queuewatch:staffing:state:"

// stateTTL 状态保留时长；远大于冷却窗口即可，过期视为 Quiet
const stateTTL = 2 * time.Hour

// Phase 入口告警状态机阶段
type Phase string

const (
	PhaseQuiet    Phase = "quiet"
	PhaseWatching Phase = "watching"
	PhaseAlerting Phase = "alerting"
)

// EntryPointState 入口的告警状态（JSON 存储于 Redis）
type EntryPointState struct {
	Phase           Phase               `json:"phase"`
	LastUrgency     models.AlertUrgency `json:"last_urgency,omitempty"`
	LastFingerprint string              `json:"last_fingerprint,omitempty"`
	LastEmittedAt   time.Time           `json:"last_emitted_at,omitempty"`
	LastQueueLength int64               `json:"last_queue_length"`
}

// StateStore 入口告警状态存储
// 进程重启后去重状态仍然有效，避免重启风暴式重复告警
type StateStore struct {
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewStateStore 创建状态存储
func NewStateStore(redisClient *redis.Client, logger *zap.Logger) *StateStore {
	return &StateStore{
		redisClient: redisClient,
		logger:      logger,
	}
}

// stateKey 构建状态键
func (s *StateStore) stateKey(entryPointID string) string {
	return stateKeyPrefix + entryPointID
}

// Get 读取入口状态；不存在时返回 Quiet 初始状态
func (s *StateStore) Get(ctx context.Context, entryPointID string) (*EntryPointState, error) {
	val, err := s.redisClient.Get(ctx, s.stateKey(entryPointID)).Result()
	if err != nil {
		if err == redis.Nil {
			return &EntryPointState{Phase: PhaseQuiet}, nil
		}
		return nil, fmt.Errorf("failed to get staffing state: %w", err)
	}

	var state EntryPointState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal staffing state: %w", err)
	}

	return &state, nil
}

// Set 写入入口状态（带 TTL）
func (s *StateStore) Set(ctx context.Context, entryPointID string, state *EntryPointState) error {
	jsonData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal staffing state: %w", err)
	}

	if err := s.redisClient.Set(ctx, s.stateKey(entryPointID), jsonData, stateTTL).Err(); err != nil {
		return fmt.Errorf("failed to set staffing state: %w", err)
	}

	return nil
}

// Delete 删除入口状态（入口撤销监控时调用）
func (s *StateStore) Delete(ctx context.Context, entryPointID string) error {
	if err := s.redisClient.Del(ctx, s.stateKey(entryPointID)).Err(); err != nil {
		return fmt.Errorf("failed to delete staffing state: %w", err)
	}
	return nil
}
