package like

import (
	"time"

	"github.com/robfig/cron/v3"
)

// ReconcilerConfig controls the reconciliation worker
type ReconcilerConfig struct {
	// cron spec of the reconcile chain
	// default: "@every 1s"
	Schedule string `mapstructure:"schedule"`

	// cycles run per tick; each cycle pops at most one tweet
	// default: 1
	CyclesPerTick int `mapstructure:"cycles_per_tick"`

	// bound on one system-of-record transaction
	// default: 10s
	TxTimeout time.Duration `mapstructure:"tx_timeout"`

	// failed attempts after which a tweet is parked instead of requeued
	// default: 10
	MaxAttempts int `mapstructure:"max_attempts"`

	// how long the parked requeue lock is held at most
	// default: 30s
	RequeueLockTTL time.Duration `mapstructure:"requeue_lock_ttl"`

	// bound on one notification dispatch
	// default: 15s
	NotifyTimeout time.Duration `mapstructure:"notify_timeout"`
}

func DefaultReconcilerConfig() *ReconcilerConfig {
	return &ReconcilerConfig{
		Schedule:       "@every 1s",
		CyclesPerTick:  1,
		TxTimeout:      10 * time.Second,
		MaxAttempts:    10,
		RequeueLockTTL: 30 * time.Second,
		NotifyTimeout:  15 * time.Second,
	}
}

// MergeDefaults fills zero values with defaults
func (c *ReconcilerConfig) MergeDefaults() *ReconcilerConfig {
	d := DefaultReconcilerConfig()
	out := *c
	if out.Schedule == "" {
		out.Schedule = d.Schedule
	}
	if out.CyclesPerTick <= 0 {
		out.CyclesPerTick = d.CyclesPerTick
	}
	if out.TxTimeout <= 0 {
		out.TxTimeout = d.TxTimeout
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = d.MaxAttempts
	}
	if out.RequeueLockTTL <= 0 {
		out.RequeueLockTTL = d.RequeueLockTTL
	}
	if out.NotifyTimeout <= 0 {
		out.NotifyTimeout = d.NotifyTimeout
	}
	return &out
}

func (c *ReconcilerConfig) Validate() error {
	if _, err := scheduleParser.Parse(c.Schedule); err != nil {
		return ErrInvalidConfig("invalid schedule: " + err.Error())
	}
	if c.CyclesPerTick <= 0 {
		return ErrInvalidConfig("cycles_per_tick must be greater than 0")
	}
	if c.TxTimeout <= 0 {
		return ErrInvalidConfig("tx_timeout must be greater than 0")
	}
	if c.MaxAttempts <= 0 {
		return ErrInvalidConfig("max_attempts must be greater than 0")
	}
	return nil
}

// BacklogConfig controls the backlog monitor
type BacklogConfig struct {
	// default: "@every 15s"
	Schedule string `mapstructure:"schedule"`

	// sample attempts per run
	// default: 3
	MaxRetries int `mapstructure:"max_retries"`

	// first retry delay, doubled per attempt
	// default: 100ms
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`

	// bound on one sample round trip
	// default: 2s
	Timeout time.Duration `mapstructure:"timeout"`
}

func DefaultBacklogConfig() *BacklogConfig {
	return &BacklogConfig{
		Schedule:     "@every 15s",
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
		Timeout:      2 * time.Second,
	}
}

// MergeDefaults fills zero values with defaults
func (c *BacklogConfig) MergeDefaults() *BacklogConfig {
	d := DefaultBacklogConfig()
	out := *c
	if out.Schedule == "" {
		out.Schedule = d.Schedule
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = d.MaxRetries
	}
	if out.RetryBackoff <= 0 {
		out.RetryBackoff = d.RetryBackoff
	}
	if out.Timeout <= 0 {
		out.Timeout = d.Timeout
	}
	return &out
}

func (c *BacklogConfig) Validate() error {
	if _, err := scheduleParser.Parse(c.Schedule); err != nil {
		return ErrInvalidConfig("invalid backlog schedule: " + err.Error())
	}
	if c.MaxRetries <= 0 {
		return ErrInvalidConfig("backlog max_retries must be greater than 0")
	}
	return nil
}

// scheduleParser accepts the same specs as the scheduler (seconds field first)
var scheduleParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)
