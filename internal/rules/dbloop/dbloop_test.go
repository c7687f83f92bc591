package dbloop_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/pathflow/internal/fault"
	"github.com/gyaneshwarpardhi/pathflow/internal/graph"
	"github.com/gyaneshwarpardhi/pathflow/internal/path"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules/dbloop"
	"github.com/gyaneshwarpardhi/pathflow/internal/rules/rulestest"
	"github.com/gyaneshwarpardhi/pathflow/internal/walker"
)

const model = `
classes:
  - name: Svc
    file: Svc.cls
    methods:
      - name: queryInLoop
        line: 1
        body:
          - line: 2
            for:
              variable: i
              condition: "i < 10"
              body:
                - {line: 3, soql: "SELECT Id FROM Account"}
      - name: queryOutside
        line: 10
        body:
          - {line: 11, soql: "SELECT Id FROM Account"}
          - {line: 12, dml: insert}
      - name: nested
        line: 20
        body:
          - line: 21
            foreach:
              variable: a
              body:
                - line: 22
                  while:
                    condition: "more"
                    body:
                      - {line: 23, dml: update}
      - name: viaCallee
        line: 30
        body:
          - line: 31
            for:
              condition: "i < 3"
              body:
                - {line: 32, call: {name: Svc.save, targets: [Svc.save]}}
      - name: save
        line: 40
        body:
          - {line: 41, call: {name: Database.insert}}
          - {line: 42, call: {name: System.debug}}
      - name: pruned
        line: 50
        body:
          - {line: 51, declare: {name: mode, value: {literal: "bulk"}}}
          - line: 52
            for:
              condition: "i < 3"
              body:
                - line: 53
                  if:
                    condition: "mode == 'single'"
                    then:
                      - {line: 54, dml: insert}
      - name: branchy
        line: 60
        body:
          - line: 61
            for:
              condition: "i < 3"
              body:
                - line: 62
                  if:
                    condition: "flag"
                    then:
                      - {line: 63, sosl: "FIND 'x'"}
                    else:
                      - {line: 65, sosl: "FIND 'x'"}
`

func run(t *testing.T, entry string) rulestest.Result {
	t.Helper()
	h := rulestest.New(t, model)
	return h.Run(t, dbloop.New(), rules.Settings{Enabled: true}, entry)
}

func TestDatabaseOperationInLoop(t *testing.T) {
	res := run(t, "Svc.queryInLoop")
	require.Len(t, res.Violations, 1)
	v := res.Violations[0]
	assert.Equal(t, dbloop.ID, v.Rule)
	assert.Equal(t, rules.SeverityHigh, v.Severity)
	assert.Equal(t, "Svc.queryInLoop", v.Entry)
	assert.Equal(t, 2, v.Source.Line)
	assert.Equal(t, 3, v.Sink.Line)
	assert.Equal(t, "SOQL query runs inside the loop at Svc.cls:2", v.Message)
}

func TestDatabaseOperationOutsideLoop(t *testing.T) {
	res := run(t, "Svc.queryOutside")
	assert.Empty(t, res.Violations)
}

func TestNestedLoopsAttributeInnermost(t *testing.T) {
	res := run(t, "Svc.nested")
	require.Len(t, res.Violations, 1)
	assert.Equal(t, 22, res.Violations[0].Source.Line)
	assert.Equal(t, "DML update runs inside the loop at Svc.cls:22", res.Violations[0].Message)
}

func TestDatabaseMethodInCallee(t *testing.T) {
	res := run(t, "Svc.viaCallee")
	require.Len(t, res.Violations, 1)
	v := res.Violations[0]
	assert.Equal(t, 31, v.Source.Line)
	assert.Equal(t, 41, v.Sink.Line)
	assert.Equal(t, "Database.insert call runs inside the loop at Svc.cls:31", v.Message)
}

func TestInfeasibleBranchReportsNothing(t *testing.T) {
	res := run(t, "Svc.pruned")
	assert.Empty(t, res.Violations)
	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, walker.ReasonInfeasible, res.Outcomes[0].Reason)
	assert.Equal(t, walker.Completed, res.Outcomes[1].State)
}

func TestEachBranchSinkReported(t *testing.T) {
	res := run(t, "Svc.branchy")
	require.Len(t, res.Violations, 2)
	assert.Equal(t, 63, res.Violations[0].Sink.Line)
	assert.Equal(t, 65, res.Violations[1].Sink.Line)
}

func TestConfiguredSinks(t *testing.T) {
	h := rulestest.New(t, model)
	res := h.Run(t, dbloop.New(), rules.Settings{Sinks: []string{"System.debug"}, Severity: rules.SeverityLow}, "Svc.viaCallee")
	require.Len(t, res.Violations, 2)
	for _, v := range res.Violations {
		assert.Equal(t, rules.SeverityLow, v.Severity)
	}
}

func TestWrongKindIsDefect(t *testing.T) {
	v := dbloop.New().NewVisitor(rules.Env{Collector: rules.NewCollector()})
	err := v.Visit(&walker.Scope{Boundaries: &walker.Boundaries{}}, &path.Node{Vertex: &graph.Vertex{ID: 9, Kind: graph.KindLiteral}})
	assert.True(t, fault.Is(err, fault.KindDefect))
}
