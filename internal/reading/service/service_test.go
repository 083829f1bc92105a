package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/plantcare/internal/clock"
	"github.com/smallbiznis/plantcare/internal/liveevents"
	readingdomain "github.com/smallbiznis/plantcare/internal/reading/domain"
	"github.com/smallbiznis/plantcare/internal/reading/repository"
	"github.com/smallbiznis/plantcare/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const importCSV = "timestamp,moisture,temp,light,notes,plant_id,sensor_type\n" +
	"2025-07-06 10:00:00,60,23,900,Imported,1,dht22\n" +
	"2025-07-06 11:00:00,58,24,850,Imported,1,dht22\n"

func newTestService(t *testing.T) (readingdomain.Service, *liveevents.Hub, *clock.FakeClock) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&readingdomain.Reading{}))

	hub := liveevents.NewHub()
	fake := clock.NewFakeClock(time.Date(2025, 7, 6, 12, 30, 15, 0, time.UTC))
	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		Repo:  repository.Provide(),
		Clock: fake,
		Hub:   hub,
	})
	return svc, hub, fake
}

func ptr(v float64) *float64 { return &v }

func TestAddDefaultsToManualAndNow(t *testing.T) {
	svc, hub, _ := newTestService(t)
	subject := snowflake.ID(42)
	sub, _, err := hub.Subscribe(subject)
	require.NoError(t, err)
	defer sub.Close()

	reading, err := svc.Add(context.Background(), subject, readingdomain.AddRequest{
		Moisture: ptr(55), Temp: ptr(22), Light: ptr(800), Notes: " Test ",
	})
	require.NoError(t, err)

	assert.NotZero(t, reading.ID)
	assert.Equal(t, readingdomain.SensorTypeManual, reading.SensorType)
	assert.Equal(t, "2025-07-06 12:30:15", reading.Timestamp)
	assert.Equal(t, "Test", reading.Notes)

	event := <-sub.Events()
	assert.Equal(t, reading.ID, event.ReadingID)
	assert.Equal(t, liveevents.SourceAPI, event.Source)
}

func TestAddRejectsMissingFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	subject := snowflake.ID(42)

	cases := []struct {
		name string
		req  readingdomain.AddRequest
		want error
	}{
		{name: "missing moisture", req: readingdomain.AddRequest{Temp: ptr(20), Light: ptr(10)}, want: readingdomain.ErrInvalidMoisture},
		{name: "missing temp", req: readingdomain.AddRequest{Moisture: ptr(50), Light: ptr(10)}, want: readingdomain.ErrInvalidTemp},
		{name: "negative light", req: readingdomain.AddRequest{Moisture: ptr(50), Temp: ptr(20), Light: ptr(-1)}, want: readingdomain.ErrInvalidLight},
		{name: "moisture over scale", req: readingdomain.AddRequest{Moisture: ptr(120), Temp: ptr(20), Light: ptr(1)}, want: readingdomain.ErrInvalidMoisture},
		{name: "bad timestamp", req: readingdomain.AddRequest{Moisture: ptr(50), Temp: ptr(20), Light: ptr(1), Timestamp: "yesterday"}, want: readingdomain.ErrInvalidTimestamp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Add(context.Background(), subject, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAddNormalizesZonedTimestamp(t *testing.T) {
	svc, _, _ := newTestService(t)

	reading, err := svc.Add(context.Background(), snowflake.ID(1), readingdomain.AddRequest{
		Moisture: ptr(50), Temp: ptr(20), Light: ptr(0), Timestamp: "2025-07-06T12:00:00+02:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-07-06 10:00:00", reading.Timestamp)
}

func TestLatestWithoutReadings(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Latest(context.Background(), snowflake.ID(5))
	assert.ErrorIs(t, err, readingdomain.ErrNotFound)
}

func TestImportKeepsSensorTypeFromFile(t *testing.T) {
	svc, _, _ := newTestService(t)
	subject := snowflake.ID(7)

	result, err := svc.Import(context.Background(), subject, strings.NewReader(importCSV))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.NotEmpty(t, result.BatchID)

	items, err := svc.List(context.Background(), subject, readingdomain.TimeRange{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "dht22", items[0].SensorType)
	require.NotNil(t, items[0].PlantID)
	assert.Equal(t, int64(1), *items[0].PlantID)
}

func TestImportRejectsWholeFileOnBadRow(t *testing.T) {
	svc, _, _ := newTestService(t)
	subject := snowflake.ID(7)

	input := importCSV + "2025-07-06 12:00:00,wet,24,850,,1,\n"
	_, err := svc.Import(context.Background(), subject, strings.NewReader(input))

	var rowErr *readingdomain.ImportRowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 3, rowErr.Row)
	assert.ErrorIs(t, err, readingdomain.ErrInvalidMoisture)

	items, err := svc.List(context.Background(), subject, readingdomain.TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestImportRequiresHeaderColumns(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Import(context.Background(), snowflake.ID(7), strings.NewReader("timestamp,moisture\n"))
	assert.ErrorIs(t, err, readingdomain.ErrInvalidCSV)
}

func TestExportRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)
	subject := snowflake.ID(7)
	_, err := svc.Import(context.Background(), subject, strings.NewReader(importCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := svc.Export(context.Background(), subject, readingdomain.TimeRange{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, importCSV, buf.String())
}

func TestListRejectsInvertedRange(t *testing.T) {
	svc, _, _ := newTestService(t)
	start := time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err := svc.List(context.Background(), snowflake.ID(1), readingdomain.TimeRange{Start: &start, End: &end})
	assert.ErrorIs(t, err, readingdomain.ErrInvalidRange)
}
