package repository

import (
	"database/sql"
	"fmt"
	"time"

	"queuewatch/internal/models"

	"go.uber.org/zap"
)

// HeartbeatRepository 心跳记录仓库（对应 heartbeats 表，追加写入）
type HeartbeatRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHeartbeatRepository 创建心跳仓库
func NewHeartbeatRepository(db *sql.DB, logger *zap.Logger) *HeartbeatRepository {
	return &HeartbeatRepository{
		db:     db,
		logger: logger,
	}
}

// AppendHeartbeat 追加一条心跳记录
// 设备必须存在；外键不存在时返回 ErrDeviceNotFound
func (r *HeartbeatRepository) AppendHeartbeat(deviceCode string, timestamp time.Time, count int64) error {
	query := `
		INSERT INTO heartbeats (device_code, timestamp, count)
		SELECT $1, $2, $3
		WHERE EXISTS (SELECT 1 FROM devices WHERE device_code = $1)
	`

	result, err := r.db.Exec(query, deviceCode, timestamp, count)
	if err != nil {
		return fmt.Errorf("failed to append heartbeat: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check heartbeat insert: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", models.ErrDeviceNotFound, deviceCode)
	}

	return nil
}

// RecentHeartbeats 查询设备 since 之后的心跳记录（按时间升序，最多 limit 条）
// 用于服务启动时回填内存中的滚动窗口
func (r *HeartbeatRepository) RecentHeartbeats(deviceCode string, since time.Time, limit int) ([]models.HeartbeatSample, error) {
	query := `
		SELECT device_code, timestamp, count
		FROM heartbeats
		WHERE device_code = $1 AND timestamp > $2
		ORDER BY timestamp ASC
		LIMIT $3
	`

	rows, err := r.db.Query(query, deviceCode, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query heartbeats: %w", err)
	}
	defer rows.Close()

	var samples []models.HeartbeatSample
	for rows.Next() {
		var s models.HeartbeatSample
		if err := rows.Scan(&s.DeviceCode, &s.Timestamp, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan heartbeat: %w", err)
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate heartbeats: %w", err)
	}

	return samples, nil
}
