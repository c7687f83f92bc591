package config_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/pathflow/internal/config"
)

const base = `
version: "1"
engine:
  workers: 4
  task_timeout_ms: 2000
registry:
  max_heap_bytes: 1073741824
rules:
  - id: AvoidDatabaseOperationInLoop
    severity: medium
  - id: UnusedMethod
    enabled: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "pathflow.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte(base))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 1024, cfg.Engine.QueueDepth)
	assert.Equal(t, 2*time.Second, cfg.Engine.TaskTimeout())
	assert.Equal(t, 0.5, cfg.Registry.CapacityFraction)
	require.Len(t, cfg.Registry.Types, 1)
	assert.Equal(t, config.PathRegistryType, cfg.Registry.Types[0].Name)
	assert.Equal(t, int64(config.DefaultPathAverageBytes), cfg.Registry.Types[0].AverageSizeBytes)
	assert.Equal(t, config.DefaultEntryAnnotations, cfg.EntryPoints.Annotations)
	assert.Equal(t, []string{"global"}, cfg.EntryPoints.Modifiers)
	assert.Equal(t, config.BackendMemory, cfg.Usage.Backend)

	r, ok := cfg.Rule("avoiddatabaseoperationinloop")
	require.True(t, ok)
	assert.True(t, r.IsEnabled())
	assert.Equal(t, "medium", r.Severity)

	r, ok = cfg.Rule("UnusedMethod")
	require.True(t, ok)
	assert.False(t, r.IsEnabled())

	r, ok = cfg.Rule("AvoidRepeatedSinkInvocation")
	assert.False(t, ok)
	assert.True(t, r.IsEnabled())
}

func TestParse_ExplicitEntryPointsKeepTheirOwnSelection(t *testing.T) {
	cfg, err := config.Parse([]byte("version: \"1\"\nentry_points:\n  methods: [Svc.run]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Svc.run"}, cfg.EntryPoints.Methods)
	assert.Empty(t, cfg.EntryPoints.Annotations)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*config.Config) {}},
		{name: "missing version", mutate: func(c *config.Config) { c.Version = "" }, wantErr: "version is required"},
		{name: "no workers", mutate: func(c *config.Config) { c.Engine.Workers = -1 }, wantErr: "engine.workers"},
		{name: "fraction above one", mutate: func(c *config.Config) { c.Registry.CapacityFraction = 1.5 }, wantErr: "capacity_fraction"},
		{
			name: "duplicate registry type",
			mutate: func(c *config.Config) {
				c.Registry.Types = append(c.Registry.Types, c.Registry.Types[0])
			},
			wantErr: "duplicate type",
		},
		{
			name:    "path type missing",
			mutate:  func(c *config.Config) { c.Registry.Types[0].Name = "other" },
			wantErr: `type "apex_path" is required`,
		},
		{
			name: "duplicate rule ids ignore case",
			mutate: func(c *config.Config) {
				c.Rules = []config.RuleConf{{ID: "UnusedMethod"}, {ID: "unusedmethod"}}
			},
			wantErr: "duplicate id",
		},
		{
			name:    "unknown severity",
			mutate:  func(c *config.Config) { c.Rules = []config.RuleConf{{ID: "X", Severity: "critical"}} },
			wantErr: "unknown severity",
		},
		{
			name:    "redis without address",
			mutate:  func(c *config.Config) { c.Usage.Backend = config.BackendRedis },
			wantErr: "redis_addr is required",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *config.Config) { c.Usage.Backend = "etcd" },
			wantErr: "usage.backend",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(cfg)
			err := config.Validate(cfg)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoader_ReloadKeepsPreviousOnError(t *testing.T) {
	p := writeConfig(t, base)
	l, err := config.NewLoader(p, nil)
	require.NoError(t, err)

	var changes atomic.Int32
	l.OnChange(func(*config.Config) { changes.Add(1) })

	require.NoError(t, os.WriteFile(p, []byte("version: \"1\"\nengine:\n  workers: 9\n"), 0o600))
	cfg, err := l.Reload()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Engine.Workers)
	assert.Equal(t, int32(1), changes.Load())

	require.NoError(t, os.WriteFile(p, []byte("version: \"1\"\nengine:\n  workers: -3\n"), 0o600))
	_, err = l.Reload()
	require.Error(t, err)
	assert.Equal(t, 9, l.Config().Engine.Workers)
	assert.Equal(t, int32(1), changes.Load())
}

func TestLoader_Watch(t *testing.T) {
	p := writeConfig(t, base)
	l, err := config.NewLoader(p, nil)
	require.NoError(t, err)

	stop, err := l.Watch()
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(p, []byte("version: \"1\"\nengine:\n  workers: 7\n"), 0o600))
	assert.Eventually(t, func() bool { return l.Config().Engine.Workers == 7 }, 5*time.Second, 20*time.Millisecond)
}

func TestNewLoader_MissingFile(t *testing.T) {
	_, err := config.NewLoader(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}
