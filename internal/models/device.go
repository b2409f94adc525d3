package models

import (
	"time"
)

// DeviceClass 设备类型（封闭枚举，对应硬件计数方案）
type DeviceClass string

const (
	DeviceClassBeamBreak      DeviceClass = "beam-break"      // 红外对射
	DeviceClassThermal        DeviceClass = "thermal"         // 热成像
	DeviceClassWifiProbe      DeviceClass = "wifi-probe"      // WiFi 探针
	DeviceClassBluetoothProbe DeviceClass = "bluetooth-probe" // 蓝牙探针
)

// Valid 检查设备类型是否有效
func (c DeviceClass) Valid() bool {
	switch c {
	case DeviceClassBeamBreak, DeviceClassThermal, DeviceClassWifiProbe, DeviceClassBluetoothProbe:
		return true
	default:
		return false
	}
}

// CountDirection 设备统计方向（进场 / 离场）
type CountDirection string

const (
	DirectionEntry CountDirection = "entry"
	DirectionExit  CountDirection = "exit"
)

// Device 计数设备（对应 devices 表）
type Device struct {
	DeviceCode   string         `json:"device_code" db:"device_code"` // 外部设备编码（唯一）
	DeviceName   string         `json:"device_name" db:"device_name"`
	DeviceClass  DeviceClass    `json:"device_class" db:"device_class"`
	EntryPointID string         `json:"entry_point_id" db:"entry_point_id"` // 所属入口（门）
	Direction    CountDirection `json:"direction" db:"direction"`
	Location     string         `json:"location" db:"location"` // 物理位置描述
	Endpoint     *string        `json:"endpoint,omitempty" db:"endpoint"` // 设备控制端点地址
	Credential   *string        `json:"credential,omitempty" db:"credential"`
	Active       bool           `json:"active" db:"active"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// DevicePatch 设备更新补丁（nil 字段表示不修改）
type DevicePatch struct {
	DeviceName   *string
	DeviceClass  *DeviceClass
	EntryPointID *string
	Direction    *CountDirection
	Location     *string
	Endpoint     *string
	Credential   *string
	Active       *bool
}
