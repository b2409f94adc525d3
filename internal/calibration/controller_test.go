package calibration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"queuewatch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDeviceSource 固定返回的设备查询桩
type fakeDeviceSource struct {
	device *models.Device
	err    error
}

func (f *fakeDeviceSource) GetDevice(deviceCode string) (*models.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.device, nil
}

// fakeBaselineStore 记录清除调用的基线桩
type fakeBaselineStore struct {
	cleared []string
}

func (f *fakeBaselineStore) ClearBaseline(deviceCode string) {
	f.cleared = append(f.cleared, deviceCode)
}

func deviceWithEndpoint(endpoint string) *fakeDeviceSource {
	return &fakeDeviceSource{
		device: &models.Device{
			DeviceCode: "dev-001",
			Endpoint:   &endpoint,
			Active:     true,
		},
	}
}

func TestCalibrate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calibration/zero", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		fmt.Fprint(w, `{"acked": true}`)
	}))
	defer server.Close()

	baselines := &fakeBaselineStore{}
	ctrl := NewController(deviceWithEndpoint(server.URL), baselines, 2*time.Second, zap.NewNop())

	err := ctrl.Calibrate(context.Background(), "dev-001")

	require.NoError(t, err)
	assert.Equal(t, []string{"dev-001"}, baselines.cleared)
}

func TestCalibrate_DeviceNotFound(t *testing.T) {
	source := &fakeDeviceSource{err: fmt.Errorf("%w: missing", models.ErrDeviceNotFound)}
	baselines := &fakeBaselineStore{}
	ctrl := NewController(source, baselines, 2*time.Second, zap.NewNop())

	err := ctrl.Calibrate(context.Background(), "missing")

	assert.True(t, errors.Is(err, models.ErrDeviceNotFound))
	assert.Empty(t, baselines.cleared)
}

// TestCalibrate_Timeout 场景：不可达设备在超时内未确认，基线不被修改
func TestCalibrate_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		fmt.Fprint(w, `{"acked": true}`)
	}))
	defer server.Close()

	baselines := &fakeBaselineStore{}
	ctrl := NewController(deviceWithEndpoint(server.URL), baselines, 50*time.Millisecond, zap.NewNop())

	start := time.Now()
	err := ctrl.Calibrate(context.Background(), "dev-001")

	assert.True(t, errors.Is(err, models.ErrDeviceUnreachable))
	assert.Less(t, time.Since(start), 400*time.Millisecond, "must fail within the configured bound")
	assert.Empty(t, baselines.cleared, "timeout must not mutate the stored baseline")
}

func TestCalibrate_NotAcknowledged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"acked": false}`)
	}))
	defer server.Close()

	baselines := &fakeBaselineStore{}
	ctrl := NewController(deviceWithEndpoint(server.URL), baselines, 2*time.Second, zap.NewNop())

	err := ctrl.Calibrate(context.Background(), "dev-001")

	assert.True(t, errors.Is(err, models.ErrDeviceUnreachable))
	assert.Empty(t, baselines.cleared)
}

func TestCalibrate_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	baselines := &fakeBaselineStore{}
	ctrl := NewController(deviceWithEndpoint(server.URL), baselines, 2*time.Second, zap.NewNop())

	err := ctrl.Calibrate(context.Background(), "dev-001")

	assert.True(t, errors.Is(err, models.ErrDeviceUnreachable))
	assert.Empty(t, baselines.cleared)
}

func TestCalibrate_NoEndpoint(t *testing.T) {
	source := &fakeDeviceSource{
		device: &models.Device{DeviceCode: "dev-001"},
	}
	baselines := &fakeBaselineStore{}
	ctrl := NewController(source, baselines, 2*time.Second, zap.NewNop())

	err := ctrl.Calibrate(context.Background(), "dev-001")

	assert.True(t, errors.Is(err, models.ErrDeviceUnreachable))
	assert.Empty(t, baselines.cleared)
}
