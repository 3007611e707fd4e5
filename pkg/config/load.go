package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"hive/pkg/hive"
)

// fileConfig is the on-disk shape. Interval fields are plain numbers of
// seconds so the file stays editable without duration-string syntax.
type fileConfig struct {
	DBPath      string `yaml:"db_path" toml:"db_path"`
	Backend     string `yaml:"backend" toml:"backend"`
	PostgresDSN string `yaml:"postgres_dsn" toml:"postgres_dsn"`

	AgentNames  []string `yaml:"agent_names" toml:"agent_names"`
	QueenName   string   `yaml:"queen_name" toml:"queen_name"`
	GatewayName string   `yaml:"gateway_name" toml:"gateway_name"`

	AssignmentStrategy        string  `yaml:"assignment_strategy" toml:"assignment_strategy"`
	MaxTasksPerBee            int     `yaml:"max_tasks_per_bee" toml:"max_tasks_per_bee"`
	MaxWorkloadThreshold      float64 `yaml:"max_workload_threshold" toml:"max_workload_threshold"`
	StrictWorkloadEnforcement bool    `yaml:"strict_workload_enforcement" toml:"strict_workload_enforcement"`
	SweepIntervalSec          float64 `yaml:"sweep_interval" toml:"sweep_interval"`
	FallbackSweepIntervalSec  float64 `yaml:"fallback_sweep_interval" toml:"fallback_sweep_interval"`

	HeartbeatIntervalSec float64 `yaml:"heartbeat_interval" toml:"heartbeat_interval"`

	SessionName        string            `yaml:"session_name" toml:"session_name"`
	AgentWindows       map[string]string `yaml:"agent_windows" toml:"agent_windows"`
	ChunkSize          int               `yaml:"chunk_size" toml:"chunk_size"`
	MaxRetries         int               `yaml:"max_retries" toml:"max_retries"`
	RetryDelaySec      float64           `yaml:"retry_delay" toml:"retry_delay"`
	DeliveryTimeoutSec float64           `yaml:"delivery_timeout" toml:"delivery_timeout"`

	ComplianceIntervalSec  float64 `yaml:"compliance_interval" toml:"compliance_interval"`
	ComplianceWindow       int     `yaml:"compliance_window" toml:"compliance_window"`
	ComplianceThresholdPct float64 `yaml:"compliance_threshold_pct" toml:"compliance_threshold_pct"`

	MaxTitleLength       int     `yaml:"max_title_length" toml:"max_title_length"`
	MaxDescriptionLength int     `yaml:"max_description_length" toml:"max_description_length"`
	MaxEstimatedHours    float64 `yaml:"max_estimated_hours" toml:"max_estimated_hours"`
	MaxSubtasksPerTask   int     `yaml:"max_subtasks_per_task" toml:"max_subtasks_per_task"`
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func (f fileConfig) toConfig() Config {
	return Config{
		DBPath:                    f.DBPath,
		Backend:                   f.Backend,
		PostgresDSN:               f.PostgresDSN,
		AgentNames:                f.AgentNames,
		QueenName:                 f.QueenName,
		GatewayName:               f.GatewayName,
		AssignmentStrategy:        f.AssignmentStrategy,
		MaxTasksPerBee:            f.MaxTasksPerBee,
		MaxWorkloadThreshold:      f.MaxWorkloadThreshold,
		StrictWorkloadEnforcement: f.StrictWorkloadEnforcement,
		SweepInterval:             seconds(f.SweepIntervalSec),
		FallbackSweepInterval:     seconds(f.FallbackSweepIntervalSec),
		HeartbeatInterval:         seconds(f.HeartbeatIntervalSec),
		SessionName:               f.SessionName,
		AgentWindows:              f.AgentWindows,
		ChunkSize:                 f.ChunkSize,
		MaxRetries:                f.MaxRetries,
		RetryDelay:                seconds(f.RetryDelaySec),
		DeliveryTimeout:           seconds(f.DeliveryTimeoutSec),
		ComplianceInterval:        seconds(f.ComplianceIntervalSec),
		ComplianceWindow:          f.ComplianceWindow,
		ComplianceThresholdPct:    f.ComplianceThresholdPct,
		MaxTitleLength:            f.MaxTitleLength,
		MaxDescriptionLength:      f.MaxDescriptionLength,
		MaxEstimatedHours:         f.MaxEstimatedHours,
		MaxSubtasksPerTask:        f.MaxSubtasksPerTask,
	}
}

// Load reads the config file at path, picking the decoder by extension
// (.yaml/.yml or .toml), fills defaults, and applies HIVE_ environment
// overrides. A missing file is not an error: defaults plus environment
// apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
		switch {
		case err == nil:
			var f fileConfig
			switch ext := strings.ToLower(filepath.Ext(path)); ext {
			case ".yaml", ".yml":
				if err := yaml.Unmarshal(data, &f); err != nil {
					return Config{}, &hive.ValidationError{Field: "config", Value: path, Reason: fmt.Sprintf("parse yaml: %v", err)}
				}
			case ".toml":
				if err := toml.Unmarshal(data, &f); err != nil {
					return Config{}, &hive.ValidationError{Field: "config", Value: path, Reason: fmt.Sprintf("parse toml: %v", err)}
				}
			default:
				return Config{}, &hive.ValidationError{Field: "config", Value: path, Reason: "unsupported extension, want .yaml, .yml, or .toml"}
			}
			cfg = f.toConfig().WithDefaults()
		case os.IsNotExist(err):
			// fine, run on defaults
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg = applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers HIVE_ environment variables over cfg. Only a subset of
// settings is exposed this way: the ones operators flip per invocation.
func applyEnv(cfg Config) Config {
	if v := os.Getenv("HIVE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("HIVE_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("HIVE_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("HIVE_SESSION"); v != "" {
		cfg.SessionName = v
	}
	if v := os.Getenv("HIVE_AGENTS"); v != "" {
		parts := strings.Split(v, ",")
		names := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				names = append(names, p)
			}
		}
		if len(names) > 0 {
			cfg.AgentNames = names
		}
	}
	if v := os.Getenv("HIVE_STRATEGY"); v != "" {
		cfg.AssignmentStrategy = v
	}
	if v := os.Getenv("HIVE_MAX_TASKS_PER_BEE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxTasksPerBee = n
		}
	}
	if v := os.Getenv("HIVE_HEARTBEAT_INTERVAL"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			cfg.HeartbeatInterval = seconds(secs)
		}
	}
	return cfg
}
