package report

import (
	"sync/atomic"

	"github.com/smukkama/fleet-analytics/internal/efficiency"
	"github.com/smukkama/fleet-analytics/internal/kinematics"
	"github.com/smukkama/fleet-analytics/internal/model"
	"github.com/smukkama/fleet-analytics/pkg/config"
)

// OptionsFromConfig maps validated engine configuration onto report options
func OptionsFromConfig(cfg config.EngineConfig) (Options, error) {
	period, err := model.ParsePeriod(cfg.AggregationPeriod)
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		Kinematics: kinematics.Options{
			RemoveOutliers:    cfg.RemoveOutliers,
			OutlierZThreshold: cfg.OutlierZThreshold,
		},
		Period:           period,
		AnomalyThreshold: cfg.AnomalyThreshold,
		Efficiency: efficiency.Parameters{
			TargetOnTime:      cfg.TargetOnTime,
			TargetUtilization: cfg.TargetUtilization,
		},
	}
	if err := opts.Efficiency.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// OptionsHolder shares the current options between request handlers and
// the engine file watcher.
type OptionsHolder struct {
	v atomic.Pointer[Options]
}

// NewOptionsHolder seeds the holder with opts
func NewOptionsHolder(opts Options) *OptionsHolder {
	h := &OptionsHolder{}
	h.Store(opts)
	return h
}

// Load returns a copy of the current options
func (h *OptionsHolder) Load() Options {
	if p := h.v.Load(); p != nil {
		return *p
	}
	return DefaultOptions()
}

func (h *OptionsHolder) Store(opts Options) {
	h.v.Store(&opts)
}

// Reload converts cfg and stores it, keeping the previous options on error.
// It has the shape config.WatchEngine expects once the error is handled.
func (h *OptionsHolder) Reload(cfg config.EngineConfig) error {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	h.Store(opts)
	return nil
}
