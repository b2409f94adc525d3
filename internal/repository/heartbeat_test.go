package repository

import (
	"errors"
	"testing"
	"time"

	"queuewatch/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupHeartbeatRepo(t *testing.T) (sqlmock.Sqlmock, *HeartbeatRepository, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewHeartbeatRepository(db, zap.NewNop())
	return mock, repo, func() { db.Close() }
}

func TestAppendHeartbeat_Success(t *testing.T) {
	mock, repo, done := setupHeartbeatRepo(t)
	defer done()

	ts := time.Now()

	mock.ExpectExec(`INSERT INTO heartbeats`).
		WithArgs("dev-001", ts, int64(140)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendHeartbeat("dev-001", ts, 140)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendHeartbeat_UnknownDevice(t *testing.T) {
	mock, repo, done := setupHeartbeatRepo(t)
	defer done()

	ts := time.Now()

	// 设备不存在时 INSERT ... WHERE EXISTS 不写入任何行
	mock.ExpectExec(`INSERT INTO heartbeats`).
		WithArgs("missing", ts, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AppendHeartbeat("missing", ts, 1)

	assert.True(t, errors.Is(err, models.ErrDeviceNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentHeartbeats_OrderedAscending(t *testing.T) {
	mock, repo, done := setupHeartbeatRepo(t)
	defer done()

	since := time.Now().Add(-10 * time.Minute)
	t0 := since.Add(2 * time.Minute)
	t1 := since.Add(7 * time.Minute)

	rows := sqlmock.NewRows([]string{"device_code", "timestamp", "count"}).
		AddRow("dev-001", t0, int64(100)).
		AddRow("dev-001", t1, int64(140))

	mock.ExpectQuery(`SELECT device_code, timestamp, count`).
		WithArgs("dev-001", since, 64).
		WillReturnRows(rows)

	samples, err := repo.RecentHeartbeats("dev-001", since, 64)

	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, int64(100), samples[0].Count)
	assert.Equal(t, int64(140), samples[1].Count)
	assert.True(t, samples[0].Timestamp.Before(samples[1].Timestamp))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentHeartbeats_Empty(t *testing.T) {
	mock, repo, done := setupHeartbeatRepo(t)
	defer done()

	since := time.Now()

	mock.ExpectQuery(`SELECT device_code, timestamp, count`).
		WithArgs("dev-001", since, 64).
		WillReturnRows(sqlmock.NewRows([]string{"device_code", "timestamp", "count"}))

	samples, err := repo.RecentHeartbeats("dev-001", since, 64)

	require.NoError(t, err)
	assert.Empty(t, samples)

	require.NoError(t, mock.ExpectationsWereMet())
}
