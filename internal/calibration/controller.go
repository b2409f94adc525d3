package calibration

import (
	"context"
	"fmt"
	"time"

	"queuewatch/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DeviceSource 设备查询接口（由 repository.DeviceRepository 实现）
type DeviceSource interface {
	GetDevice(deviceCode string) (*models.Device, error)
}

// BaselineStore 计数基线接口（由 tracker.Tracker 实现）
type BaselineStore interface {
	ClearBaseline(deviceCode string)
}

// zeroResetRequest 置零指令请求体
type zeroResetRequest struct {
	Command string `json:"command"`
}

// zeroResetResponse 置零指令响应体
type zeroResetResponse struct {
	Acked bool `json:"acked"`
}

// Controller 设备标定控制器
// 向设备端点下发置零指令，确认后清除跟踪器中的计数基线
type Controller struct {
	devices    DeviceSource
	baselines  BaselineStore
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewController 创建标定控制器
// timeout: 置零指令确认超时；超时不自动重试，由调用方决定是否重发
func NewController(devices DeviceSource, baselines BaselineStore, timeout time.Duration, logger *zap.Logger) *Controller {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Controller{
		devices:    devices,
		baselines:  baselines,
		httpClient: client,
		logger:     logger,
	}
}

// Calibrate 对设备执行置零标定
// 仅在设备确认后清除基线；超时或未确认返回 ErrDeviceUnreachable，基线不变
// 标定不删除历史样本，只前瞻性地调整计数解释
func (c *Controller) Calibrate(ctx context.Context, deviceCode string) error {
	device, err := c.devices.GetDevice(deviceCode)
	if err != nil {
		return err
	}

	if device.Endpoint == nil || *device.Endpoint == "" {
		return fmt.Errorf("%w: %s has no endpoint", models.ErrDeviceUnreachable, deviceCode)
	}

	req := c.httpClient.R().
		SetContext(ctx).
		SetBody(zeroResetRequest{Command: "zero-reset"})
	if device.Credential != nil && *device.Credential != "" {
		req.SetAuthToken(*device.Credential)
	}

	var ack zeroResetResponse
	resp, err := req.SetResult(&ack).Post(*device.Endpoint + "/calibration/zero")
	if err != nil {
		c.logger.Warn("Calibration request failed",
			zap.String("device_code", deviceCode),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s", models.ErrDeviceUnreachable, deviceCode)
	}

	if resp.IsError() || !ack.Acked {
		c.logger.Warn("Calibration not acknowledged",
			zap.String("device_code", deviceCode),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("%w: %s", models.ErrDeviceUnreachable, deviceCode)
	}

	// 确认后才清除基线，后续累计计数按相对零解释
	c.baselines.ClearBaseline(deviceCode)

	c.logger.Info("Device calibrated",
		zap.String("device_code", deviceCode),
	)

	return nil
}
