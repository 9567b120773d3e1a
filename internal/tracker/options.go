package tracker

import (
	"time"

	"github.com/makeasinger/gentrack/internal/config"
	"github.com/makeasinger/gentrack/internal/model"
)

const defaultExpected = 2 * time.Minute

// Options tunes the registry and its poll loop
type Options struct {
	PollInterval  time.Duration
	HardTimeout   time.Duration
	MaxConcurrent int
	// DismissAfter is how long a terminal job stays visible. Zero or less keeps it until removed.
	DismissAfter time.Duration
	Expected     map[model.Kind]time.Duration
	// Concurrency caps status checks in flight during one tick
	Concurrency int
	Now         func() time.Time
}

// OptionsFromConfig maps the tracker config section onto Options
func OptionsFromConfig(cfg config.TrackerConfig) Options {
	return Options{
		PollInterval:  cfg.PollInterval,
		HardTimeout:   cfg.HardTimeout,
		MaxConcurrent: cfg.MaxConcurrent,
		DismissAfter:  cfg.DismissAfter,
		Expected:      cfg.Expected,
	}
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.HardTimeout <= 0 {
		o.HardTimeout = 30 * time.Minute
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 3
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) expectedFor(kind model.Kind) time.Duration {
	if d, ok := o.Expected[kind]; ok && d > 0 {
		return d
	}
	return defaultExpected
}
