package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Simulation configures the batch driver.
type Simulation struct {
	Enabled           bool
	Interval          time.Duration
	MinEvents         int
	MaxEvents         int
	HighLoadEnabled   bool
	HighLoadInterval  time.Duration
	HighLoadBatchSize int
}

// Sensors configures classification thresholds and simulated latency.
type Sensors struct {
	AccessMaxFailedAttempts int
	TemperatureMin          float64
	TemperatureMax          float64
	MotionThreshold         float64
	MotionHighThreshold     float64
	// Seed of zero means a time-based seed.
	Seed       int64
	LatencyMin time.Duration
	LatencyMax time.Duration
}

// Pool configures the reading dispatcher.
type Pool struct {
	CoreSize        int
	MaxSize         int
	QueueCapacity   int
	KeepAlive       time.Duration
	Overflow        string
	ShutdownTimeout time.Duration
}

// Email configures the SMTP notification channel. An empty Host disables delivery.
type Email struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	To        []string
	PerMinute int
}

// Config holds the service configuration loaded from environment variables.
type Config struct {
	LogLevel      string
	HTTPPort      int
	GRPCPort      int
	DbDriver      string
	DbDsn         string
	Simulation    Simulation
	Sensors       Sensors
	AlertCooldown time.Duration
	Pool          Pool
	StatsInterval time.Duration
	Email         Email
}

// Load reads the configuration from the environment, falling back to defaults.
func Load() (*Config, error) {
	r := &envReader{}

	cfg := &Config{
		LogLevel: normalizeLogLevel(r.getString(EnvLogLevel, DefaultLogLevel)),
		HTTPPort: r.getInt(EnvHTTPPort, DefaultHTTPPort),
		GRPCPort: r.getInt(EnvGRPCPort, DefaultGRPCPort),
		DbDriver: strings.ToLower(r.getString(EnvDbDriver, DefaultDbDriver)),
		DbDsn:    r.getString(EnvDbDsn, DefaultDbDsn),
		Simulation: Simulation{
			Enabled:           r.getBool(EnvSimulationEnabled, DefaultSimulationEnabled),
			Interval:          r.getDuration(EnvSimulationInterval, DefaultSimulationInterval),
			MinEvents:         r.getInt(EnvSimulationMinEvents, DefaultSimulationMinEvents),
			MaxEvents:         r.getInt(EnvSimulationMaxEvents, DefaultSimulationMaxEvents),
			HighLoadEnabled:   r.getBool(EnvHighLoadEnabled, DefaultHighLoadEnabled),
			HighLoadInterval:  r.getDuration(EnvHighLoadInterval, DefaultHighLoadInterval),
			HighLoadBatchSize: r.getInt(EnvHighLoadBatchSize, DefaultHighLoadBatchSize),
		},
		Sensors: Sensors{
			AccessMaxFailedAttempts: r.getInt(EnvAccessMaxFailedAttempts, DefaultAccessMaxFailedAttempts),
			TemperatureMin:          r.getFloat(EnvTemperatureMin, DefaultTemperatureMin),
			TemperatureMax:          r.getFloat(EnvTemperatureMax, DefaultTemperatureMax),
			MotionThreshold:         r.getFloat(EnvMotionThreshold, DefaultMotionThreshold),
			MotionHighThreshold:     r.getFloat(EnvMotionHighThreshold, DefaultMotionHighThreshold),
			Seed:                    int64(r.getInt(EnvSensorSeed, DefaultSensorSeed)),
			LatencyMin:              r.getDuration(EnvSensorLatencyMin, DefaultSensorLatencyMin),
			LatencyMax:              r.getDuration(EnvSensorLatencyMax, DefaultSensorLatencyMax),
		},
		AlertCooldown: time.Duration(r.getInt(EnvAlertCooldownMs, DefaultAlertCooldownMs)) * time.Millisecond,
		Pool: Pool{
			CoreSize:        r.getInt(EnvPoolCoreSize, DefaultPoolCoreSize),
			MaxSize:         r.getInt(EnvPoolMaxSize, DefaultPoolMaxSize),
			QueueCapacity:   r.getInt(EnvPoolQueueCapacity, DefaultPoolQueueCapacity),
			KeepAlive:       r.getDuration(EnvPoolKeepAlive, DefaultPoolKeepAlive),
			Overflow:        strings.ToLower(r.getString(EnvPoolOverflow, DefaultPoolOverflow)),
			ShutdownTimeout: r.getDuration(EnvPoolShutdownTimeout, DefaultPoolShutdownTimeout),
		},
		StatsInterval: r.getDuration(EnvStatsInterval, DefaultStatsInterval),
		Email: Email{
			Host:      r.getString(EnvSMTPHost, ""),
			Port:      r.getInt(EnvSMTPPort, DefaultSMTPPort),
			Username:  r.getString(EnvSMTPUsername, ""),
			Password:  r.getString(EnvSMTPPassword, ""),
			From:      r.getString(EnvAlertEmailFrom, DefaultAlertEmailFrom),
			To:        splitList(r.getString(EnvAlertEmailTo, "")),
			PerMinute: r.getInt(EnvAlertEmailPerMinute, DefaultAlertEmailPerMinute),
		},
	}

	if r.err != nil {
		return nil, r.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	switch c.DbDriver {
	case DbDriverMemory, DbDriverPostgres, DbDriverPgx:
	default:
		errs = append(errs, fmt.Errorf("%s must be memory, postgres or pgx, got %q", EnvDbDriver, c.DbDriver))
	}
	if c.Simulation.MinEvents < 0 || c.Simulation.MinEvents > c.Simulation.MaxEvents {
		errs = append(errs, fmt.Errorf("simulation events range [%d, %d] is invalid", c.Simulation.MinEvents, c.Simulation.MaxEvents))
	}
	if c.Simulation.Interval <= 0 || c.Simulation.HighLoadInterval <= 0 {
		errs = append(errs, errors.New("simulation intervals must be positive"))
	}
	if c.Sensors.TemperatureMin >= c.Sensors.TemperatureMax {
		errs = append(errs, fmt.Errorf("%s must be below %s", EnvTemperatureMin, EnvTemperatureMax))
	}
	if c.Sensors.MotionThreshold > c.Sensors.MotionHighThreshold {
		errs = append(errs, fmt.Errorf("%s must not exceed %s", EnvMotionThreshold, EnvMotionHighThreshold))
	}
	if c.Sensors.LatencyMin < 0 || c.Sensors.LatencyMin > c.Sensors.LatencyMax {
		errs = append(errs, errors.New("sensor latency range is invalid"))
	}
	if c.Sensors.AccessMaxFailedAttempts <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvAccessMaxFailedAttempts))
	}
	if c.AlertCooldown < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", EnvAlertCooldownMs))
	}
	if c.Pool.CoreSize < 0 || c.Pool.MaxSize <= 0 || c.Pool.CoreSize > c.Pool.MaxSize {
		errs = append(errs, fmt.Errorf("pool sizes core=%d max=%d are invalid", c.Pool.CoreSize, c.Pool.MaxSize))
	}
	if c.Pool.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvPoolQueueCapacity))
	}
	switch c.Pool.Overflow {
	case "reject", "caller-runs":
	default:
		errs = append(errs, fmt.Errorf("%s must be reject or caller-runs, got %q", EnvPoolOverflow, c.Pool.Overflow))
	}
	if c.StatsInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvStatsInterval))
	}

	return errors.Join(errs...)
}

// envReader remembers the first parse failure so Load can read every key in one pass.
type envReader struct {
	err error
}

func (r *envReader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (r *envReader) getString(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func (r *envReader) getInt(key string, defaultValue int) int {
	value := r.getString(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		r.fail(key, err)
		return defaultValue
	}
	return parsed
}

func (r *envReader) getFloat(key string, defaultValue float64) float64 {
	value := r.getString(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.fail(key, err)
		return defaultValue
	}
	return parsed
}

func (r *envReader) getBool(key string, defaultValue bool) bool {
	value := r.getString(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		r.fail(key, err)
		return defaultValue
	}
	return parsed
}

// getDuration accepts Go duration strings or a bare number of milliseconds.
func (r *envReader) getDuration(key string, defaultValue time.Duration) time.Duration {
	value := r.getString(key, "")
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		r.fail(key, err)
		return defaultValue
	}
	return parsed
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeLogLevel(level string) string {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return strings.ToLower(level)
	case "warning":
		return "warn"
	default:
		return DefaultLogLevel
	}
}
