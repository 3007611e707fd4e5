// Package config holds the hive runtime configuration: one explicit Config
// struct constructed at process start and passed to every component — no
// package-level mutable state. Values load from hive.yaml or hive.toml
// (picked by extension) with HIVE_-prefixed environment overrides on top.
package config

import (
	"fmt"
	"strings"
	"time"

	"hive/pkg/hive"
)

// Backend names for the persistent store.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Assignment strategy names. An unrecognized value is not an error: the
// scheduler warns once and falls back to balanced.
const (
	StrategyBalanced    = "balanced"
	StrategySpecialized = "specialized"
	StrategyPriority    = "priority"
)

// Config holds all hive settings.
type Config struct {
	// Store
	DBPath      string // SQLite database file
	Backend     string // sqlite (default) or postgres
	PostgresDSN string // required when Backend is postgres

	// Fleet
	AgentNames  []string // configured worker set, iteration order is the tie-break order
	QueenName   string   // scheduler identity (default "queen")
	GatewayName string   // conversation gateway identity (default "beekeeper")

	// Scheduling
	AssignmentStrategy        string
	MaxTasksPerBee            int
	MaxWorkloadThreshold      float64 // workload score gate for assignment
	StrictWorkloadEnforcement bool    // gate failure is fatal instead of a warning
	SweepInterval             time.Duration
	FallbackSweepInterval     time.Duration // safety-net poll when fsnotify watches fire

	// Agents
	HeartbeatInterval time.Duration

	// Terminal channel
	SessionName     string
	AgentWindows    map[string]string // agent name -> tmux window target; default session:name
	ChunkSize       int               // payload split size in runes
	MaxRetries      int
	RetryDelay      time.Duration
	DeliveryTimeout time.Duration

	// Compliance monitor
	ComplianceInterval     time.Duration
	ComplianceWindow       int // recent-message window size
	ComplianceThresholdPct float64

	// Task validation ceilings
	MaxTitleLength       int
	MaxDescriptionLength int
	MaxEstimatedHours    float64
	MaxSubtasksPerTask   int
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		DBPath:                    "", // resolved against HIVE_HOME by the CLI
		Backend:                   BackendSQLite,
		AgentNames:                []string{"developer", "qa", "analyst"},
		QueenName:                 "queen",
		GatewayName:               "beekeeper",
		AssignmentStrategy:        StrategyBalanced,
		MaxTasksPerBee:            3,
		MaxWorkloadThreshold:      90,
		StrictWorkloadEnforcement: false,
		SweepInterval:             10 * time.Second,
		FallbackSweepInterval:     60 * time.Second,
		HeartbeatInterval:         5 * time.Second,
		SessionName:               "hive",
		ChunkSize:                 4000,
		MaxRetries:                3,
		RetryDelay:                1 * time.Second,
		DeliveryTimeout:           15 * time.Second,
		ComplianceInterval:        2 * time.Second,
		ComplianceWindow:          100,
		ComplianceThresholdPct:    95,
		MaxTitleLength:            200,
		MaxDescriptionLength:      10000,
		MaxEstimatedHours:         1000,
		MaxSubtasksPerTask:        20,
	}
}

// WithDefaults fills zero-valued fields from Default. The receiver is not
// modified.
func (c Config) WithDefaults() Config {
	d := Default()
	out := c
	if out.Backend == "" {
		out.Backend = d.Backend
	}
	if len(out.AgentNames) == 0 {
		out.AgentNames = d.AgentNames
	}
	if out.QueenName == "" {
		out.QueenName = d.QueenName
	}
	if out.GatewayName == "" {
		out.GatewayName = d.GatewayName
	}
	if out.AssignmentStrategy == "" {
		out.AssignmentStrategy = d.AssignmentStrategy
	}
	if out.MaxTasksPerBee == 0 {
		out.MaxTasksPerBee = d.MaxTasksPerBee
	}
	if out.MaxWorkloadThreshold == 0 {
		out.MaxWorkloadThreshold = d.MaxWorkloadThreshold
	}
	if out.SweepInterval == 0 {
		out.SweepInterval = d.SweepInterval
	}
	if out.FallbackSweepInterval == 0 {
		out.FallbackSweepInterval = d.FallbackSweepInterval
	}
	if out.HeartbeatInterval == 0 {
		out.HeartbeatInterval = d.HeartbeatInterval
	}
	if out.SessionName == "" {
		out.SessionName = d.SessionName
	}
	if out.ChunkSize == 0 {
		out.ChunkSize = d.ChunkSize
	}
	if out.MaxRetries == 0 {
		out.MaxRetries = d.MaxRetries
	}
	if out.RetryDelay == 0 {
		out.RetryDelay = d.RetryDelay
	}
	if out.DeliveryTimeout == 0 {
		out.DeliveryTimeout = d.DeliveryTimeout
	}
	if out.ComplianceInterval == 0 {
		out.ComplianceInterval = d.ComplianceInterval
	}
	if out.ComplianceWindow == 0 {
		out.ComplianceWindow = d.ComplianceWindow
	}
	if out.ComplianceThresholdPct == 0 {
		out.ComplianceThresholdPct = d.ComplianceThresholdPct
	}
	if out.MaxTitleLength == 0 {
		out.MaxTitleLength = d.MaxTitleLength
	}
	if out.MaxDescriptionLength == 0 {
		out.MaxDescriptionLength = d.MaxDescriptionLength
	}
	if out.MaxEstimatedHours == 0 {
		out.MaxEstimatedHours = d.MaxEstimatedHours
	}
	if out.MaxSubtasksPerTask == 0 {
		out.MaxSubtasksPerTask = d.MaxSubtasksPerTask
	}
	return out
}

// Window returns the tmux window target for an agent: the explicit mapping
// when configured, otherwise session:name.
func (c Config) Window(agent string) string {
	if w, ok := c.AgentWindows[agent]; ok && w != "" {
		return w
	}
	return c.SessionName + ":" + agent
}

// KnownAgent reports whether name is in the configured agent set or is the
// queen or gateway identity.
func (c Config) KnownAgent(name string) bool {
	if name == c.QueenName || name == c.GatewayName {
		return true
	}
	for _, a := range c.AgentNames {
		if a == name {
			return true
		}
	}
	return false
}

// Validate checks field ranges. The assignment strategy is deliberately
// NOT validated here: an unknown value falls back to balanced with a
// warning at the scheduler, never an error.
func (c Config) Validate() error {
	if c.Backend != BackendSQLite && c.Backend != BackendPostgres {
		return &hive.ValidationError{Field: "backend", Value: c.Backend, Reason: "must be sqlite or postgres"}
	}
	if c.Backend == BackendPostgres && c.PostgresDSN == "" {
		return &hive.ValidationError{Field: "postgres_dsn", Value: "", Reason: "required when backend is postgres"}
	}
	if len(c.AgentNames) == 0 {
		return &hive.ValidationError{Field: "agent_names", Value: "", Reason: "at least one agent is required"}
	}
	for _, name := range c.AgentNames {
		if strings.TrimSpace(name) == "" {
			return &hive.ValidationError{Field: "agent_names", Value: name, Reason: "agent names must be non-empty"}
		}
	}
	if strings.ContainsAny(c.SessionName, " \t\n:.") {
		return &hive.ValidationError{Field: "session_name", Value: c.SessionName, Reason: "must not contain whitespace, colons, or dots"}
	}
	if c.MaxTasksPerBee < 1 {
		return &hive.ValidationError{Field: "max_tasks_per_bee", Value: fmt.Sprint(c.MaxTasksPerBee), Reason: "must be positive"}
	}
	if c.MaxWorkloadThreshold < 0 || c.MaxWorkloadThreshold > 100 {
		return &hive.ValidationError{Field: "max_workload_threshold", Value: fmt.Sprint(c.MaxWorkloadThreshold), Reason: "must be within [0,100]"}
	}
	if c.ComplianceThresholdPct < 0 || c.ComplianceThresholdPct > 100 {
		return &hive.ValidationError{Field: "compliance_threshold_pct", Value: fmt.Sprint(c.ComplianceThresholdPct), Reason: "must be within [0,100]"}
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"heartbeat_interval", c.HeartbeatInterval},
		{"retry_delay", c.RetryDelay},
		{"delivery_timeout", c.DeliveryTimeout},
		{"compliance_interval", c.ComplianceInterval},
		{"sweep_interval", c.SweepInterval},
	} {
		if d.val <= 0 {
			return &hive.ValidationError{Field: d.name, Value: d.val.String(), Reason: "must be positive"}
		}
	}
	if c.MaxRetries < 1 {
		return &hive.ValidationError{Field: "max_retries", Value: fmt.Sprint(c.MaxRetries), Reason: "must be positive"}
	}
	if c.ChunkSize < 1 {
		return &hive.ValidationError{Field: "chunk_size", Value: fmt.Sprint(c.ChunkSize), Reason: "must be positive"}
	}
	if c.MaxEstimatedHours <= 0 {
		return &hive.ValidationError{Field: "max_estimated_hours", Value: fmt.Sprint(c.MaxEstimatedHours), Reason: "must be positive"}
	}
	if c.MaxSubtasksPerTask < 1 {
		return &hive.ValidationError{Field: "max_subtasks_per_task", Value: fmt.Sprint(c.MaxSubtasksPerTask), Reason: "must be positive"}
	}
	return nil
}
