package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// EngineConfig holds the options the analytics engine recognises.
// Fields map 1:1 to the engine YAML file.
type EngineConfig struct {
	RemoveOutliers    bool    `yaml:"remove_outliers"`
	OutlierZThreshold float64 `yaml:"outlier_z_threshold"`
	AggregationPeriod string  `yaml:"aggregation_period"`
	TargetOnTime      float64 `yaml:"target_on_time"`
	TargetUtilization float64 `yaml:"target_utilization"`
	AnomalyThreshold  float64 `yaml:"anomaly_threshold"`
}

// DefaultEngine returns the stock engine options
func DefaultEngine() EngineConfig {
	return EngineConfig{
		RemoveOutliers:    true,
		OutlierZThreshold: 3.0,
		AggregationPeriod: "DAILY",
		TargetOnTime:      95,
		TargetUtilization: 90,
		AnomalyThreshold:  3.0,
	}
}

// LoadEngine reads engine options from the YAML file at path. Options
// missing from the file keep their defaults; unknown options are an error.
func LoadEngine(path string) (*EngineConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: read engine file: %w", err)
	}
	defer f.Close()

	cfg := DefaultEngine()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse engine yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate checks ranges and normalises the aggregation period to upper case
func (e *EngineConfig) Validate() error {
	if !positive(e.OutlierZThreshold) {
		return fmt.Errorf("outlier_z_threshold must be positive")
	}
	if !positive(e.AnomalyThreshold) {
		return fmt.Errorf("anomaly_threshold must be positive")
	}
	if e.TargetOnTime < 0 || math.IsNaN(e.TargetOnTime) || math.IsInf(e.TargetOnTime, 0) {
		return fmt.Errorf("target_on_time must be a non-negative percentage")
	}
	if e.TargetUtilization < 0 || math.IsNaN(e.TargetUtilization) || math.IsInf(e.TargetUtilization, 0) {
		return fmt.Errorf("target_utilization must be a non-negative percentage")
	}
	switch p := strings.ToUpper(e.AggregationPeriod); p {
	case "HOURLY", "DAILY", "WEEKLY", "MONTHLY":
		e.AggregationPeriod = p
	default:
		return fmt.Errorf("unknown aggregation_period %q", e.AggregationPeriod)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// WatchEngine reloads the engine file at path whenever it is written and
// hands the new options to onChange. It runs until ctx is cancelled.
// Reloads that fail to parse or validate are logged and skipped.
func WatchEngine(ctx context.Context, path string, onChange func(EngineConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching engine options", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, which shows up as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := LoadEngine(path)
			if err != nil {
				slog.Error("config: engine reload failed, keeping previous options", "path", path, "err", err)
				continue
			}

			slog.Info("config: engine options reloaded", "path", path)
			onChange(*cfg)

			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
