package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENGINE_CONFIG", "")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ROLLUP_HOURLY_DELAY", "90s")
	t.Setenv("ENGINE_REMOVE_OUTLIERS", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 90*time.Second, cfg.Rollup.HourlyDelay)
	assert.Equal(t, "00:05", cfg.Rollup.DailyTime)
	assert.False(t, cfg.Engine.RemoveOutliers)
	assert.Equal(t, 3.0, cfg.Engine.AnomalyThreshold)
	assert.Contains(t, cfg.Database.ConnectionString(), "port=6543")
}

func TestLoad_BadDailyTime(t *testing.T) {
	t.Setenv("ENGINE_CONFIG", "")
	t.Setenv("ROLLUP_DAILY_TIME", "25:99")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_EngineFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "engine.yaml", "anomaly_threshold: 2.5\naggregation_period: weekly\n")
	t.Setenv("ENGINE_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.Engine.AnomalyThreshold)
	assert.Equal(t, "WEEKLY", cfg.Engine.AggregationPeriod)
	assert.True(t, cfg.Engine.RemoveOutliers)
	assert.Equal(t, 95.0, cfg.Engine.TargetOnTime)
}

func TestLoadEngine(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"empty file keeps defaults", "", false},
		{"full file", "remove_outliers: false\noutlier_z_threshold: 2\naggregation_period: HOURLY\ntarget_on_time: 80\ntarget_utilization: 70\nanomaly_threshold: 4\n", false},
		{"unknown option", "max_speed: 120\n", true},
		{"bad period", "aggregation_period: QUARTERLY\n", true},
		{"zero threshold", "anomaly_threshold: 0\n", true},
		{"negative target", "target_on_time: -5\n", true},
		{"malformed yaml", "anomaly_threshold: [\n", true},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, fmt.Sprintf("engine-%d.yaml", i), tt.body)
			cfg, err := LoadEngine(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, cfg)
		})
	}

	_, err := LoadEngine(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestWatchEngine(t *testing.T) {
	path := writeFile(t, t.TempDir(), "engine.yaml", "anomaly_threshold: 3\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan EngineConfig, 4)
	errCh := make(chan error, 1)
	go func() {
		errCh <- WatchEngine(ctx, path, func(c EngineConfig) {
			select {
			case changes <- c:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("anomaly_threshold: 5\n"), 0o644))

	// A truncating write can surface the empty file first, which reloads
	// as defaults.
	deadline := time.After(3 * time.Second)
	for got := false; !got; {
		select {
		case c := <-changes:
			got = c.AnomalyThreshold == 5.0
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}

	cancel()
	assert.NoError(t, <-errCh)
}
