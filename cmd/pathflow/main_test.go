package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/pathflow/internal/engine"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules/dbloop"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules/unused"
)

const sampleModel = `
classes:
  - name: Batch
    file: Batch.cls
    methods:
      - name: execute
        line: 1
        modifiers: [global]
        body:
          - line: 2
            for:
              condition: "i < n"
              body:
                - {line: 3, call: {name: Batch.persist, targets: [Batch.persist]}}
      - name: persist
        line: 10
        body:
          - {line: 11, call: {name: Database.update}}
      - name: legacy
        line: 20
        body:
          - {line: 21, soql: "SELECT Id FROM Lead"}
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeRun(t *testing.T, out string) engine.RunResult {
	t.Helper()
	var run engine.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	return run
}

func TestAnalyze_Model(t *testing.T) {
	model := writeFile(t, "model.yaml", sampleModel)

	out, err := execute(t, "analyze", "--graph", model)
	require.NoError(t, err)

	run := decodeRun(t, out)
	require.Len(t, run.EntryPoints, 1)
	assert.Equal(t, "Batch.execute", run.EntryPoints[0].EntryPoint)
	assert.Equal(t, engine.StatusCompleted, run.EntryPoints[0].Status)

	var rulesSeen []string
	for _, v := range run.Violations {
		rulesSeen = append(rulesSeen, v.Rule)
	}
	assert.ElementsMatch(t, []string{dbloop.ID, unused.ID}, rulesSeen)
}

func TestAnalyze_FailOnViolations(t *testing.T) {
	model := writeFile(t, "model.yaml", sampleModel)

	_, err := execute(t, "analyze", "--graph", model, "--fail-on-violations")
	assert.ErrorIs(t, err, errViolations)
}

func TestAnalyze_NamedEntryAndConfig(t *testing.T) {
	model := writeFile(t, "model.yaml", sampleModel)
	cfg := writeFile(t, "pathflow.yaml", `
version: "1"
graph:
  model: `+model+`
rules:
  - id: UnusedMethod
    enabled: false
`)

	out, err := execute(t, "analyze", "--config", cfg, "--entry", "batch.legacy")
	require.NoError(t, err)

	run := decodeRun(t, out)
	require.Len(t, run.EntryPoints, 1)
	assert.Equal(t, "Batch.legacy", run.EntryPoints[0].EntryPoint)
	assert.Empty(t, run.Violations)
}

func TestImportThenAnalyzeDatabase(t *testing.T) {
	model := writeFile(t, "model.yaml", sampleModel)
	db := filepath.Join(t.TempDir(), "graph.db")

	out, err := execute(t, "import", "--graph", model, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "imported")

	fromModel, err := execute(t, "analyze", "--graph", model)
	require.NoError(t, err)
	fromDB, err := execute(t, "analyze", "--db", db)
	require.NoError(t, err)

	assert.Equal(t, decodeRun(t, fromModel).Violations, decodeRun(t, fromDB).Violations)
}

func TestAnalyze_Errors(t *testing.T) {
	model := writeFile(t, "model.yaml", sampleModel)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no graph", args: []string{"analyze"}},
		{name: "both sources", args: []string{"analyze", "--graph", model, "--db", "x.db"}},
		{name: "unknown entry", args: []string{"analyze", "--graph", model, "--entry", "Batch.nope"}},
		{name: "bad log level", args: []string{"analyze", "--graph", model, "--log-level", "loud"}},
		{name: "import without db", args: []string{"import", "--graph", model}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, tc.args...)
			assert.Error(t, err)
		})
	}
}
