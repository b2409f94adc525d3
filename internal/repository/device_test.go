package repository

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"queuewatch/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *DeviceRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewDeviceRepository(db, logger)

	return db, mock, repo
}

func deviceRows(codes ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"device_code", "device_name", "device_class", "entry_point_id", "direction",
		"location", "endpoint", "credential", "active", "created_at", "updated_at",
	})
	now := time.Now()
	for _, code := range codes {
		rows.AddRow(
			code, "Gate Counter", "beam-break", "gate-a", "entry",
			"North entrance", "http://10.0.0.5:8080", nil, true, now, now,
		)
	}
	return rows
}

func TestGetDevice_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("dev-001").
		WillReturnRows(deviceRows("dev-001"))

	device, err := repo.GetDevice("dev-001")

	require.NoError(t, err)
	assert.Equal(t, "dev-001", device.DeviceCode)
	assert.Equal(t, models.DeviceClassBeamBreak, device.DeviceClass)
	assert.Equal(t, "gate-a", device.EntryPointID)
	assert.Equal(t, models.DirectionEntry, device.Direction)
	require.NotNil(t, device.Endpoint)
	assert.Equal(t, "http://10.0.0.5:8080", *device.Endpoint)
	assert.Nil(t, device.Credential)
	assert.True(t, device.Active)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDevice_NotFound(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	device, err := repo.GetDevice("missing")

	assert.Nil(t, device)
	assert.True(t, errors.Is(err, models.ErrDeviceNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDevices_ByEntryPoint(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("gate-a").
		WillReturnRows(deviceRows("dev-001", "dev-002"))

	devices, err := repo.ListDevices("gate-a")

	require.NoError(t, err)
	assert.Len(t, devices, 2)
	assert.Equal(t, "dev-001", devices[0].DeviceCode)
	assert.Equal(t, "dev-002", devices[1].DeviceCode)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDevices_Empty(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("gate-z").
		WillReturnRows(deviceRows())

	devices, err := repo.ListDevices("gate-z")

	require.NoError(t, err)
	assert.Empty(t, devices)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDevice_InvalidClass(t *testing.T) {
	db, _, repo := setupMockDB(t)
	defer db.Close()

	err := repo.CreateDevice(&models.Device{
		DeviceCode:  "dev-001",
		DeviceClass: "sonar",
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid device class")
}

func TestCreateDevice_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO devices`).
		WithArgs("dev-001", "Gate Counter", models.DeviceClassThermal, "gate-a",
			models.DirectionExit, "South exit", nil, nil, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateDevice(&models.Device{
		DeviceCode:   "dev-001",
		DeviceName:   "Gate Counter",
		DeviceClass:  models.DeviceClassThermal,
		EntryPointID: "gate-a",
		Direction:    models.DirectionExit,
		Location:     "South exit",
		Active:       true,
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDevice_PatchSubset(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	name := "Renamed"
	active := false

	mock.ExpectQuery(`UPDATE devices SET`).
		WithArgs(name, active, "dev-001").
		WillReturnRows(deviceRows("dev-001"))

	device, err := repo.UpdateDevice("dev-001", &models.DevicePatch{
		DeviceName: &name,
		Active:     &active,
	})

	require.NoError(t, err)
	assert.Equal(t, "dev-001", device.DeviceCode)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDevice_NotFound(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	name := "Renamed"

	mock.ExpectQuery(`UPDATE devices SET`).
		WithArgs(name, "missing").
		WillReturnError(sql.ErrNoRows)

	device, err := repo.UpdateDevice("missing", &models.DevicePatch{DeviceName: &name})

	assert.Nil(t, device)
	assert.True(t, errors.Is(err, models.ErrDeviceNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDevice_RemovesHeartbeats(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM heartbeats`).
		WithArgs("dev-001").
		WillReturnResult(sqlmock.NewResult(0, 42))
	mock.ExpectExec(`DELETE FROM devices`).
		WithArgs("dev-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.DeleteDevice("dev-001")

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDevice_NotFound(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM heartbeats`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM devices`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.DeleteDevice("missing")

	assert.True(t, errors.Is(err, models.ErrDeviceNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}
