// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with BULWARK_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Required environment variables:
//   - MYSQL_DSN or BULWARK_DATA_DATABASE_SOURCE: MySQL connection string for
//     the reference entity store
//
// Parameters:
//   - configPath: Path to the configuration file or directory
//
// Returns:
//   - *Bootstrap: Loaded configuration
//   - error: Configuration loading or validation error
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with BULWARK_ prefix
	v.SetEnvPrefix("BULWARK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without BULWARK_ prefix) for compatibility
	// Bind specific environment variables for required fields
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "BULWARK_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "BULWARK_DATA_REDIS_ADDR")
	_ = v.BindEnv("audit.dir", "BULWARK_AUDIT_DIR")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file is specified but not found, return error
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Parse configuration into Bootstrap structure
	bc := &Bootstrap{
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
			Cache: &Data_Cache{
				LocalSize: v.GetInt32("data.cache.local_size"),
				EntityTtl: durationpb.New(v.GetDuration("data.cache.entity_ttl")),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
		Audit: &Audit{
			Dir: v.GetString("audit.dir"),
		},
		Breaker: &Breaker{
			FailureThreshold: v.GetInt32("breaker.failure_threshold"),
			CallTimeout:      durationpb.New(v.GetDuration("breaker.call_timeout")),
			ResetTimeout:     durationpb.New(v.GetDuration("breaker.reset_timeout")),
		},
		Recovery: &Recovery{
			HistoryCapacity:  v.GetInt32("recovery.history_capacity"),
			RecentWindow:     durationpb.New(v.GetDuration("recovery.recent_window")),
			EscalationCount:  v.GetInt32("recovery.escalation_count"),
			ExcessiveErrors:  v.GetInt32("recovery.excessive_errors"),
			DwellMinimum:     durationpb.New(v.GetDuration("recovery.dwell_minimum")),
			PerformanceFloor: v.GetFloat64("recovery.performance_floor"),
			BudgetScale:      v.GetFloat64("recovery.budget_scale"),
			LowBudgetFloor:   v.GetFloat64("recovery.low_budget_floor"),
		},
		Monitor: &Monitor{
			MaxPoints: v.GetInt32("monitor.max_points"),
			Retention: durationpb.New(v.GetDuration("monitor.retention")),
		},
	}

	// Validate required fields
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is required from environment

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	v.SetDefault("data.cache.local_size", 1024)
	v.SetDefault("data.cache.entity_ttl", 5*time.Minute)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Audit defaults
	v.SetDefault("audit.dir", "./audit")

	// Breaker defaults
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.call_timeout", 30*time.Second)
	v.SetDefault("breaker.reset_timeout", 60*time.Second)

	// Recovery defaults
	v.SetDefault("recovery.history_capacity", 200)
	v.SetDefault("recovery.recent_window", 5*time.Minute)
	v.SetDefault("recovery.escalation_count", 3)
	v.SetDefault("recovery.excessive_errors", 10)
	v.SetDefault("recovery.dwell_minimum", 5*time.Minute)
	v.SetDefault("recovery.performance_floor", 0.5)
	v.SetDefault("recovery.budget_scale", 0.5)
	v.SetDefault("recovery.low_budget_floor", 100.0)

	// Monitor defaults
	v.SetDefault("monitor.max_points", 1000)
	v.SetDefault("monitor.retention", 24*time.Hour)
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing required fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	// Check required database configuration
	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		missingFields = append(missingFields, "data.database.source (MYSQL_DSN)")
	}

	// Check required audit configuration
	if bc.Audit == nil || bc.Audit.Dir == "" {
		missingFields = append(missingFields, "audit.dir (BULWARK_AUDIT_DIR)")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	return nil
}
