// Package config resolves the scheduler's key namespace and operational
// parameters from flat settings, honoring legacy setting names.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	bferrors "github.com/vnykmshr/beatflow/pkg/common/errors"
	"github.com/vnykmshr/beatflow/pkg/common/validation"
)

// Setting names.
const (
	SettingKeyPrefix          = "beat_key_prefix"
	SettingLockTimeout        = "beat_lock_timeout"
	SettingMaxInterval        = "beat_max_interval"
	SettingLockAcquireTimeout = "beat_lock_acquire_timeout"
	SettingReconcileInterval  = "beat_reconcile_interval"
	SettingRedisURL           = "beat_redis_url"
	SettingBrokerURL          = "broker_url"
	SettingTimezone           = "timezone"
	SettingSchedule           = "beat_schedule"
	SettingMetricsAddr        = "beat_metrics_addr"
	SettingDispatchQueue      = "beat_dispatch_queue"
)

// Defaults.
const (
	DefaultKeyPrefix         = "beat:"
	DefaultMaxInterval       = 300 * time.Second
	DefaultReconcileInterval = 10 * time.Minute
	DefaultRedisURL          = "redis://localhost:6379/0"
	DefaultDispatchQueue     = "celery"
)

// Config holds the resolved scheduler settings.
type Config struct {
	// KeyPrefix namespaces every key the scheduler writes. Entry hashes
	// live at KeyPrefix + name.
	KeyPrefix string

	// LockTimeout overrides the lock expiry. Zero means unset: the
	// coordinator derives it from MaxInterval.
	LockTimeout time.Duration

	// MaxInterval bounds the sleep between ticks.
	MaxInterval time.Duration

	// LockAcquireTimeout is how long a tick retries a held lock before
	// skipping. Zero means a single attempt.
	LockAcquireTimeout time.Duration

	// ReconcileInterval is the minimum time between index reconciliation
	// passes. Zero disables reconciliation.
	ReconcileInterval time.Duration

	RedisURL      string
	Location      *time.Location
	MetricsAddr   string
	DispatchQueue string

	// Schedule holds the raw static entry definitions keyed by name.
	Schedule map[string]any

	settings Settings
	log      zerolog.Logger
}

// Default returns the configuration used when no settings are supplied.
func Default() *Config {
	return &Config{
		KeyPrefix:         DefaultKeyPrefix,
		MaxInterval:       DefaultMaxInterval,
		ReconcileInterval: DefaultReconcileInterval,
		RedisURL:          DefaultRedisURL,
		Location:          time.UTC,
		DispatchQueue:     DefaultDispatchQueue,
		Schedule:          map[string]any{},
		settings:          Settings{},
		log:               zerolog.Nop(),
	}
}

// New resolves settings into a Config. Settings found only under a legacy
// name are accepted and reported to log as deprecated.
func New(settings Settings, log zerolog.Logger) (*Config, error) {
	c := Default()
	c.log = log
	if settings != nil {
		c.settings = settings
	}

	if v := c.EitherOr(SettingKeyPrefix); v != nil {
		c.KeyPrefix = cast.ToString(v)
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{SettingLockTimeout, &c.LockTimeout},
		{SettingMaxInterval, &c.MaxInterval},
		{SettingLockAcquireTimeout, &c.LockAcquireTimeout},
		{SettingReconcileInterval, &c.ReconcileInterval},
	}
	for _, d := range durations {
		raw := c.EitherOr(d.name)
		if raw == nil {
			continue
		}
		v, err := parseDuration(d.name, raw)
		if err != nil {
			return nil, bferrors.NewValidationError("config", d.name, raw, err.Error())
		}
		*d.dst = v
	}

	if v := c.EitherOr(SettingRedisURL); v != nil {
		c.RedisURL = cast.ToString(v)
	} else if v := c.EitherOr(SettingBrokerURL); v != nil {
		c.RedisURL = cast.ToString(v)
	}

	if v := c.EitherOr(SettingTimezone); v != nil {
		name := cast.ToString(v)
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, bferrors.NewValidationError("config", SettingTimezone, name, "unknown time zone").
				WithHint("use an IANA name such as Europe/Berlin")
		}
		c.Location = loc
	}

	if v := c.EitherOr(SettingMetricsAddr); v != nil {
		c.MetricsAddr = cast.ToString(v)
	}
	if v := c.EitherOr(SettingDispatchQueue); v != nil {
		c.DispatchQueue = cast.ToString(v)
	}

	if v := c.EitherOr(SettingSchedule); v != nil {
		sched, err := cast.ToStringMapE(v)
		if err != nil {
			return nil, bferrors.NewValidationError("config", SettingSchedule, v, "must be a mapping of entry names")
		}
		c.Schedule = sched
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the resolved values.
func (c *Config) Validate() error {
	if err := validation.ValidateNotEmpty("config", SettingKeyPrefix, c.KeyPrefix); err != nil {
		return err
	}
	if err := validation.ValidatePositiveDuration("config", SettingMaxInterval, c.MaxInterval); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		SettingLockTimeout:        c.LockTimeout,
		SettingLockAcquireTimeout: c.LockAcquireTimeout,
		SettingReconcileInterval:  c.ReconcileInterval,
	} {
		if err := validation.ValidateNonNegativeDuration("config", name, d); err != nil {
			return err
		}
	}
	return nil
}

// EitherOr returns the raw value of a setting, resolving legacy names, and
// logs a deprecation warning when the legacy path is taken.
func (c *Config) EitherOr(name string) any {
	v, usedFallback := c.settings.EitherOr(name)
	if usedFallback {
		c.log.Warn().
			Str("setting", strings.ToUpper(name)).
			Str("replacement", strings.ToLower(name)).
			Msg("deprecated setting name, use the lower-case form")
	}
	return v
}

// ScheduleKey is the sorted set holding the due-ordering index.
func (c *Config) ScheduleKey() string { return c.KeyPrefix + ":schedule" }

// StaticsKey is the set of entry names that came from static configuration.
func (c *Config) StaticsKey() string { return c.KeyPrefix + ":statics" }

// LockKey is the scheduler lock.
func (c *Config) LockKey() string { return c.KeyPrefix + ":lock" }

// EntryKey is the hash holding the named entry.
func (c *Config) EntryKey(name string) string { return c.KeyPrefix + name }

// QueueKey is the Redis list messages for queue are pushed to.
func (c *Config) QueueKey(queue string) string { return c.KeyPrefix + "queue:" + queue }

// EffectiveLockTimeout returns LockTimeout, or five poll intervals when it
// is unset.
func (c *Config) EffectiveLockTimeout() time.Duration {
	if c.LockTimeout > 0 {
		return c.LockTimeout
	}
	return 5 * c.MaxInterval
}

func (c *Config) String() string {
	return fmt.Sprintf("config{prefix=%q max_interval=%s lock_timeout=%s}", c.KeyPrefix, c.MaxInterval, c.EffectiveLockTimeout())
}
