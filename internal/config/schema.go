package config

import (
	"runtime"
	"strings"
	"time"
)

// Config is the top-level YAML structure.
type Config struct {
	Version     string         `yaml:"version" json:"version"`
	Engine      EngineConf     `yaml:"engine" json:"engine"`
	Registry    RegistryConf   `yaml:"registry" json:"registry"`
	EntryPoints EntryPointConf `yaml:"entry_points" json:"entry_points"`
	Rules       []RuleConf     `yaml:"rules" json:"rules"`
	Usage       UsageConf      `yaml:"usage" json:"usage"`
	Graph       GraphConf      `yaml:"graph" json:"graph"`
}

// EngineConf holds tunable concurrency settings.
type EngineConf struct {
	Workers       int `yaml:"workers" json:"workers"`
	QueueDepth    int `yaml:"queue_depth" json:"queue_depth"`
	TaskTimeoutMs int `yaml:"task_timeout_ms" json:"task_timeout_ms"`
}

// TaskTimeout is the per-entry-point time limit.
func (e EngineConf) TaskTimeout() time.Duration {
	return time.Duration(e.TaskTimeoutMs) * time.Millisecond
}

// RegistryConf sizes the per-worker object registries.
type RegistryConf struct {
	// CapacityFraction is the share of the heap one registry may fill.
	CapacityFraction float64 `yaml:"capacity_fraction" json:"capacity_fraction"`
	// MaxHeapBytes overrides the detected heap size (GOMEMLIMIT) when positive.
	MaxHeapBytes int64              `yaml:"max_heap_bytes" json:"max_heap_bytes"`
	Types        []RegistryTypeConf `yaml:"types" json:"types"`
}

// RegistryTypeConf sizes one registry type.
type RegistryTypeConf struct {
	Name             string `yaml:"name" json:"name"`
	AverageSizeBytes int64  `yaml:"average_size_bytes" json:"average_size_bytes"`
	MinimumCount     int64  `yaml:"minimum_count" json:"minimum_count"`
}

// EntryPointConf selects the methods analysis starts from.
type EntryPointConf struct {
	Annotations []string `yaml:"annotations" json:"annotations,omitempty"`
	Modifiers   []string `yaml:"modifiers" json:"modifiers,omitempty"`
	Methods     []string `yaml:"methods" json:"methods,omitempty"`
	All         bool     `yaml:"all" json:"all,omitempty"`
}

func (e EntryPointConf) empty() bool {
	return len(e.Annotations) == 0 && len(e.Modifiers) == 0 && len(e.Methods) == 0 && !e.All
}

// RuleConf enables and tunes one rule. Rules not listed run with defaults.
type RuleConf struct {
	ID       string   `yaml:"id" json:"id"`
	Enabled  *bool    `yaml:"enabled" json:"enabled,omitempty"`
	Severity string   `yaml:"severity" json:"severity,omitempty"`
	Sinks    []string `yaml:"sinks" json:"sinks,omitempty"`
}

// IsEnabled reports whether the rule runs. Rules are enabled unless disabled.
func (r RuleConf) IsEnabled() bool { return r.Enabled == nil || *r.Enabled }

// Rule returns the settings listed for id.
func (c *Config) Rule(id string) (RuleConf, bool) {
	for _, r := range c.Rules {
		if strings.EqualFold(r.ID, id) {
			return r, true
		}
	}
	return RuleConf{ID: id}, false
}

// UsageConf selects where method usage marks are stored.
type UsageConf struct {
	Backend       string `yaml:"backend" json:"backend"` // memory | redis
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password" json:"-"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db,omitempty"`
	// RedisKey prefixes the per-run set keys.
	RedisKey string `yaml:"redis_key" json:"redis_key,omitempty"`
}

// GraphConf names the code graph the server analyzes.
type GraphConf struct {
	// Model is a YAML source model file.
	Model string `yaml:"model" json:"model,omitempty"`
	// Database is a SQLite graph written by the import command.
	Database string `yaml:"database" json:"database,omitempty"`
}

// Usage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Default registry type sizing for paths.
const (
	PathRegistryType        = "apex_path"
	DefaultPathAverageBytes = 64 << 10
	DefaultPathMinimumCount = 100
)

// DefaultEntryAnnotations are the annotations that expose a method to callers
// outside the code base.
var DefaultEntryAnnotations = []string{
	"AuraEnabled", "InvocableMethod", "RemoteAction", "NamespaceAccessible",
	"HttpDelete", "HttpGet", "HttpPatch", "HttpPost", "HttpPut",
}

// ApplyDefaults fills every unset field.
func ApplyDefaults(cfg *Config) {
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = runtime.NumCPU()
	}
	if cfg.Engine.QueueDepth == 0 {
		cfg.Engine.QueueDepth = 1024
	}
	if cfg.Engine.TaskTimeoutMs == 0 {
		cfg.Engine.TaskTimeoutMs = 60_000
	}
	if cfg.Registry.CapacityFraction == 0 {
		cfg.Registry.CapacityFraction = 0.5
	}
	if len(cfg.Registry.Types) == 0 {
		cfg.Registry.Types = []RegistryTypeConf{{
			Name:             PathRegistryType,
			AverageSizeBytes: DefaultPathAverageBytes,
			MinimumCount:     DefaultPathMinimumCount,
		}}
	}
	if cfg.EntryPoints.empty() {
		cfg.EntryPoints.Annotations = append([]string(nil), DefaultEntryAnnotations...)
		cfg.EntryPoints.Modifiers = []string{"global"}
	}
	if cfg.Usage.Backend == "" {
		cfg.Usage.Backend = BackendMemory
	}
	if cfg.Usage.RedisKey == "" {
		cfg.Usage.RedisKey = "pathflow:usage"
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Version: "1"}
	ApplyDefaults(cfg)
	return cfg
}
