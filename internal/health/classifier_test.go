package health

import (
	"testing"
	"time"

	"queuewatch/internal/config"
	"queuewatch/internal/models"

	"github.com/stretchr/testify/assert"
)

func defaultThresholds() config.HealthConfig {
	return config.HealthConfig{
		HealthyWithin: 5 * time.Minute,
		WarningWithin: 15 * time.Minute,
	}
}

func minutes(m float64) *float64 {
	return &m
}

func TestClassify(t *testing.T) {
	cfg := defaultThresholds()

	tests := []struct {
		name         string
		minutesSince *float64
		active       bool
		want         models.HealthState
	}{
		{"inactive device is always unknown", minutes(1), false, models.HealthUnknown},
		{"inactive beats staleness", minutes(120), false, models.HealthUnknown},
		{"never reported is unknown", nil, true, models.HealthUnknown},
		{"fresh heartbeat is healthy", minutes(1), true, models.HealthHealthy},
		{"exactly at healthy threshold", minutes(5), true, models.HealthHealthy},
		{"past healthy threshold is warning", minutes(5.1), true, models.HealthWarning},
		{"exactly at warning threshold", minutes(15), true, models.HealthWarning},
		{"sustained silence is critical", minutes(16), true, models.HealthCritical},
		{"very old heartbeat is critical", minutes(600), true, models.HealthCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.minutesSince, tt.active, cfg))
		})
	}
}

// TestClassify_Monotonic 新鲜度单调性：间隔增大时状态只会变差，不会回到更好的级别
func TestClassify_Monotonic(t *testing.T) {
	cfg := defaultThresholds()

	rank := map[models.HealthState]int{
		models.HealthHealthy:  0,
		models.HealthWarning:  1,
		models.HealthCritical: 2,
	}

	prev := models.HealthHealthy
	for m := 0.0; m <= 60; m += 0.5 {
		state := Classify(minutes(m), true, cfg)
		assert.GreaterOrEqual(t, rank[state], rank[prev],
			"classification must not improve as staleness grows (at %.1f minutes)", m)
		prev = state
	}
}

func TestClassify_CustomThresholds(t *testing.T) {
	cfg := config.HealthConfig{
		HealthyWithin: 2 * time.Minute,
		WarningWithin: 4 * time.Minute,
	}

	assert.Equal(t, models.HealthHealthy, Classify(minutes(2), true, cfg))
	assert.Equal(t, models.HealthWarning, Classify(minutes(3), true, cfg))
	assert.Equal(t, models.HealthCritical, Classify(minutes(5), true, cfg))
}

func TestStatus(t *testing.T) {
	cfg := defaultThresholds()

	// 场景：注册过但从未上报心跳的设备
	status := Status("dev-001", nil, true, cfg)
	assert.Equal(t, "dev-001", status.DeviceCode)
	assert.Equal(t, models.HealthUnknown, status.State)
	assert.Nil(t, status.MinutesSinceHeartbeat)

	status = Status("dev-002", minutes(3), true, cfg)
	assert.Equal(t, models.HealthHealthy, status.State)
	assert.NotNil(t, status.MinutesSinceHeartbeat)
}
