package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"queuewatch/internal/models"

	"go.uber.org/zap"
)

// DeviceRepository 设备注册表（对应 devices 表）
type DeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceRepository 创建设备仓库
func NewDeviceRepository(db *sql.DB, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{
		db:     db,
		logger: logger,
	}
}

const deviceColumns = `
	device_code, device_name, device_class, entry_point_id, direction,
	location, endpoint, credential, active, created_at, updated_at
`

// scanDevice 扫描单行设备记录
func scanDevice(row interface{ Scan(...interface{}) error }) (*models.Device, error) {
	var d models.Device
	var endpoint, credential sql.NullString

	if err := row.Scan(
		&d.DeviceCode,
		&d.DeviceName,
		&d.DeviceClass,
		&d.EntryPointID,
		&d.Direction,
		&d.Location,
		&endpoint,
		&credential,
		&d.Active,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if endpoint.Valid {
		d.Endpoint = &endpoint.String
	}
	if credential.Valid {
		d.Credential = &credential.String
	}

	return &d, nil
}

// GetDevice 按设备编码查询设备
func (r *DeviceRepository) GetDevice(deviceCode string) (*models.Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE device_code = $1
	`

	device, err := scanDevice(r.db.QueryRow(query, deviceCode))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", models.ErrDeviceNotFound, deviceCode)
		}
		return nil, fmt.Errorf("failed to query device: %w", err)
	}

	return device, nil
}

// ListDevices 查询入口下的所有设备（entryPointID 为空时返回全部）
func (r *DeviceRepository) ListDevices(entryPointID string) ([]models.Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
	`
	var args []interface{}
	if entryPointID != "" {
		query += ` WHERE entry_point_id = $1`
		args = append(args, entryPointID)
	}
	query += ` ORDER BY device_code`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	return devices, nil
}

// CreateDevice 注册新设备
func (r *DeviceRepository) CreateDevice(device *models.Device) error {
	if !device.DeviceClass.Valid() {
		return fmt.Errorf("invalid device class: %s", device.DeviceClass)
	}

	query := `
		INSERT INTO devices (
			device_code, device_name, device_class, entry_point_id, direction,
			location, endpoint, credential, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`

	_, err := r.db.Exec(query,
		device.DeviceCode,
		device.DeviceName,
		device.DeviceClass,
		device.EntryPointID,
		device.Direction,
		device.Location,
		device.Endpoint,
		device.Credential,
		device.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}

	r.logger.Info("Device registered",
		zap.String("device_code", device.DeviceCode),
		zap.String("device_class", string(device.DeviceClass)),
		zap.String("entry_point_id", device.EntryPointID),
	)

	return nil
}

// UpdateDevice 按补丁更新设备（nil 字段不修改）
func (r *DeviceRepository) UpdateDevice(deviceCode string, patch *models.DevicePatch) (*models.Device, error) {
	var sets []string
	var args []interface{}
	idx := 1

	addSet := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}

	if patch.DeviceName != nil {
		addSet("device_name", *patch.DeviceName)
	}
	if patch.DeviceClass != nil {
		if !patch.DeviceClass.Valid() {
			return nil, fmt.Errorf("invalid device class: %s", *patch.DeviceClass)
		}
		addSet("device_class", *patch.DeviceClass)
	}
	if patch.EntryPointID != nil {
		addSet("entry_point_id", *patch.EntryPointID)
	}
	if patch.Direction != nil {
		addSet("direction", *patch.Direction)
	}
	if patch.Location != nil {
		addSet("location", *patch.Location)
	}
	if patch.Endpoint != nil {
		addSet("endpoint", *patch.Endpoint)
	}
	if patch.Credential != nil {
		addSet("credential", *patch.Credential)
	}
	if patch.Active != nil {
		addSet("active", *patch.Active)
	}

	if len(sets) == 0 {
		return r.GetDevice(deviceCode)
	}

	sets = append(sets, "updated_at = NOW()")
	args = append(args, deviceCode)

	query := fmt.Sprintf(`
		UPDATE devices SET %s
		WHERE device_code = $%d
		RETURNING %s
	`, strings.Join(sets, ", "), idx, deviceColumns)

	device, err := scanDevice(r.db.QueryRow(query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", models.ErrDeviceNotFound, deviceCode)
		}
		return nil, fmt.Errorf("failed to update device: %w", err)
	}

	return device, nil
}

// DeleteDevice 删除设备及其全部心跳记录
// 心跳样本不允许悬挂引用，删除设备时一并清除
func (r *DeviceRepository) DeleteDevice(deviceCode string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM heartbeats WHERE device_code = $1`, deviceCode); err != nil {
		return fmt.Errorf("failed to delete device heartbeats: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM devices WHERE device_code = $1`, deviceCode)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", models.ErrDeviceNotFound, deviceCode)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	r.logger.Info("Device deleted",
		zap.String("device_code", deviceCode),
	)

	return nil
}
