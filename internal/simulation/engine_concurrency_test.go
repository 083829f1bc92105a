package simulation

import (
	"context"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/plantcare/internal/clock"
	"github.com/smallbiznis/plantcare/internal/config"
	obsmetrics "github.com/smallbiznis/plantcare/internal/observability/metrics"
	readingdomain "github.com/smallbiznis/plantcare/internal/reading/domain"
	readingrepo "github.com/smallbiznis/plantcare/internal/reading/repository"
	readingservice "github.com/smallbiznis/plantcare/internal/reading/service"
	"github.com/smallbiznis/plantcare/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// openFileDB opens a WAL sqlite file with a real connection pool, the way the service runs.
func openFileDB(t *testing.T) *gorm.DB {
	t.Helper()
	dialector, err := db.Dialect(db.Config{Type: db.TypeSQLite, Path: filepath.Join(t.TempDir(), "plants.db")})
	require.NoError(t, err)
	conn, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(4)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func TestTickAlongsideConcurrentAdds(t *testing.T) {
	conn := openFileDB(t)
	require.NoError(t, conn.AutoMigrate(&readingdomain.Reading{}))
	require.NoError(t, conn.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY)`).Error)
	subjects := []int64{1, 2, 3}
	for _, id := range subjects {
		require.NoError(t, conn.Exec(`INSERT INTO users (id) VALUES (?)`, id).Error)
	}

	tuning := config.DefaultTuning()
	tuning.Simulation.Timezone = "UTC"
	fake := clock.NewFakeClock(time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC))
	repo := readingrepo.Provide()
	engine, err := NewEngine(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Repo:    repo,
		Clock:   fake,
		Tuning:  config.NewStaticTuningHolder(tuning),
		Metrics: obsmetrics.NewSimulationMetrics(prometheus.NewRegistry(), obsmetrics.Config{}),
		Rand:    rand.New(rand.NewSource(21)),
	})
	require.NoError(t, err)
	readings := readingservice.New(readingservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		Repo:  repo,
		Clock: fake,
	})

	const ticks, adds = 10, 40
	ctx := context.Background()
	errs := make(chan error, ticks+adds)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < ticks; i++ {
			if _, err := engine.Tick(ctx); err != nil {
				errs <- err
			}
		}
	}()
	go func() {
		defer wg.Done()
		moisture, temp, light := 55.0, 21.0, 300.0
		for i := 0; i < adds; i++ {
			_, err := readings.Add(ctx, snowflake.ID(1), readingdomain.AddRequest{
				Moisture: &moisture,
				Temp:     &temp,
				Light:    &light,
			})
			if err != nil {
				errs <- err
			}
		}
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent write failed: %v", err)
	}

	var simulated, manual int64
	require.NoError(t, conn.Model(&readingdomain.Reading{}).Where("sensor_type = ?", readingdomain.SensorTypeSimulated).Count(&simulated).Error)
	require.NoError(t, conn.Model(&readingdomain.Reading{}).Where("sensor_type = ?", readingdomain.SensorTypeManual).Count(&manual).Error)
	assert.Equal(t, int64(ticks*len(subjects)), simulated)
	assert.Equal(t, int64(adds), manual)
	assert.Equal(t, uint64(ticks), engine.Status().Ticks)
}
