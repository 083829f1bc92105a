package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	readingdomain "github.com/smallbiznis/plantcare/internal/reading/domain"
	"github.com/smallbiznis/plantcare/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&readingdomain.Reading{}))
	require.NoError(t, conn.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY)`).Error)
	return conn
}

func insert(t *testing.T, conn *gorm.DB, subject snowflake.ID, ts string, moisture float64) int64 {
	t.Helper()
	id, err := Provide().Insert(context.Background(), conn, &readingdomain.Reading{
		UserID:     subject,
		Timestamp:  ts,
		Moisture:   moisture,
		SensorType: readingdomain.SensorTypeManual,
	})
	require.NoError(t, err)
	return id
}

func TestListOrdersByTimestampThenInsertionID(t *testing.T) {
	conn := setupDB(t)
	repo := Provide()
	ctx := context.Background()
	subject := snowflake.ID(10)

	second := insert(t, conn, subject, "2025-07-06 11:00:00", 50)
	firstA := insert(t, conn, subject, "2025-07-06 10:00:00", 60)
	firstB := insert(t, conn, subject, "2025-07-06 10:00:00", 59)
	insert(t, conn, snowflake.ID(11), "2025-07-06 09:00:00", 80)

	items, err := repo.List(ctx, conn, subject, readingdomain.TimeRange{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []int64{firstA, firstB, second}, []int64{items[0].ID, items[1].ID, items[2].ID})
}

func TestListRespectsTimeRange(t *testing.T) {
	conn := setupDB(t)
	repo := Provide()
	subject := snowflake.ID(10)

	insert(t, conn, subject, "2025-07-06 09:00:00", 70)
	insert(t, conn, subject, "2025-07-06 10:00:00", 65)
	insert(t, conn, subject, "2025-07-06 11:00:00", 60)

	start := time.Date(2025, 7, 6, 10, 0, 0, 0, time.UTC)
	end := time.Date(2025, 7, 6, 10, 30, 0, 0, time.UTC)
	items, err := repo.List(context.Background(), conn, subject, readingdomain.TimeRange{Start: &start, End: &end})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 65.0, items[0].Moisture)
}

func TestListRecentIsNewestFirst(t *testing.T) {
	conn := setupDB(t)
	repo := Provide()
	subject := snowflake.ID(10)

	insert(t, conn, subject, "2025-07-06 09:00:00", 70)
	insert(t, conn, subject, "2025-07-06 10:00:00", 65)
	insert(t, conn, subject, "2025-07-06 11:00:00", 60)

	items, err := repo.ListRecent(context.Background(), conn, subject, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2025-07-06 11:00:00", items[0].Timestamp)
	assert.Equal(t, "2025-07-06 10:00:00", items[1].Timestamp)

	latest, err := repo.Latest(context.Background(), conn, subject)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 60.0, latest.Moisture)

	none, err := repo.Latest(context.Background(), conn, snowflake.ID(99))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestListSubjectIDs(t *testing.T) {
	conn := setupDB(t)
	require.NoError(t, conn.Exec(`INSERT INTO users (id) VALUES (3), (1), (2)`).Error)

	ids, err := Provide().ListSubjectIDs(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{1, 2, 3}, ids)
}

func TestInsertBatchRollsBackWithTransaction(t *testing.T) {
	conn := setupDB(t)
	repo := Provide()
	subject := snowflake.ID(10)

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := repo.InsertBatch(context.Background(), tx, []*readingdomain.Reading{
			{UserID: subject, Timestamp: "2025-07-06 09:00:00", SensorType: readingdomain.SensorTypeSimulated},
			{UserID: subject, Timestamp: "2025-07-06 09:00:00", SensorType: readingdomain.SensorTypeSimulated},
		}); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	items, err := repo.List(context.Background(), conn, subject, readingdomain.TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, items)
}
