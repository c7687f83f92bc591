package config

import (
	"fmt"
	"strings"
)

var severities = map[string]struct{}{"high": {}, "medium": {}, "low": {}}

// Validate checks the config for:
//   - Required fields and positive engine limits
//   - A capacity fraction in (0, 1] and sane registry type sizes
//   - Duplicate registry type names and rule ids
//   - Known severities and usage backends
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	if cfg.Engine.Workers < 1 {
		errs = append(errs, fmt.Sprintf("engine.workers must be at least 1, got %d", cfg.Engine.Workers))
	}
	if cfg.Engine.QueueDepth < 1 {
		errs = append(errs, fmt.Sprintf("engine.queue_depth must be at least 1, got %d", cfg.Engine.QueueDepth))
	}
	if cfg.Engine.TaskTimeoutMs < 1 {
		errs = append(errs, fmt.Sprintf("engine.task_timeout_ms must be positive, got %d", cfg.Engine.TaskTimeoutMs))
	}

	if f := cfg.Registry.CapacityFraction; f <= 0 || f > 1 {
		errs = append(errs, fmt.Sprintf("registry.capacity_fraction must be in (0, 1], got %v", f))
	}
	if cfg.Registry.MaxHeapBytes < 0 {
		errs = append(errs, fmt.Sprintf("registry.max_heap_bytes must not be negative, got %d", cfg.Registry.MaxHeapBytes))
	}
	types := make(map[string]struct{}, len(cfg.Registry.Types))
	for i, t := range cfg.Registry.Types {
		if t.Name == "" {
			errs = append(errs, fmt.Sprintf("registry.types[%d]: name is required", i))
			continue
		}
		if _, dup := types[t.Name]; dup {
			errs = append(errs, fmt.Sprintf("registry.types: duplicate type %q", t.Name))
		}
		types[t.Name] = struct{}{}
		if t.AverageSizeBytes <= 0 {
			errs = append(errs, fmt.Sprintf("registry type %s: average_size_bytes must be positive", t.Name))
		}
		if t.MinimumCount < 0 {
			errs = append(errs, fmt.Sprintf("registry type %s: minimum_count must not be negative", t.Name))
		}
	}
	if _, ok := types[PathRegistryType]; !ok {
		errs = append(errs, fmt.Sprintf("registry.types: type %q is required", PathRegistryType))
	}

	rules := make(map[string]struct{}, len(cfg.Rules))
	for i, r := range cfg.Rules {
		if r.ID == "" {
			errs = append(errs, fmt.Sprintf("rules[%d]: id is required", i))
			continue
		}
		id := strings.ToLower(r.ID)
		if _, dup := rules[id]; dup {
			errs = append(errs, fmt.Sprintf("rules: duplicate id %q", r.ID))
		}
		rules[id] = struct{}{}
		if r.Severity != "" {
			if _, ok := severities[strings.ToLower(r.Severity)]; !ok {
				errs = append(errs, fmt.Sprintf("rule %s: unknown severity %q", r.ID, r.Severity))
			}
		}
	}

	switch cfg.Usage.Backend {
	case BackendMemory:
	case BackendRedis:
		if cfg.Usage.RedisAddr == "" {
			errs = append(errs, "usage.redis_addr is required for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("usage.backend must be %q or %q, got %q", BackendMemory, BackendRedis, cfg.Usage.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
