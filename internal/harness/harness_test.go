package harness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestScenarios_Golden(t *testing.T) {
	for _, name := range []string{
		"checkin_happy_path",
		"checkin_failures",
		"checkin_login_required",
		"checkin_rescan_during_success",
		"ingest_validation",
	} {
		t.Run(name, func(t *testing.T) {
			s := loadTestScenario(t, name)
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

// The normalized photo's size varies with the encoder, so this scenario is
// checked through its assertions only.
func TestScenarios_IngestHappyPath(t *testing.T) {
	s := loadTestScenario(t, "ingest_happy_path")
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	var gatewayEvents []TraceEvent
	for _, ev := range result.Trace {
		if ev.Type == EventGateway {
			gatewayEvents = append(gatewayEvents, ev)
		}
	}
	require.Len(t, gatewayEvents, 1)
	assert.Equal(t, "<image>", gatewayEvents[0].Fields["image"])
	assert.Equal(t, "***", gatewayEvents[0].Fields["password"])
	assert.Equal(t, "Jane Doe", gatewayEvents[0].Fields["fullName"])
}

func TestRun_ExpectMismatchFailsResult(t *testing.T) {
	scan := "1234567890"
	s := &Scenario{
		Name:        "mismatch",
		Description: "expects a name the gateway never returns",
		Password:    "pw",
		Steps: []Step{
			{Start: "Event 1: Meet & Greet"},
			{Scan: &scan, Expect: &ExpectClause{Step: "success", Name: "Someone"}},
		},
		Assertions: []Assertion{
			{Type: AssertGatewayCount, Action: "check-in", Count: 2},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `expected name "Someone", got ""`)
	assert.Contains(t, result.Errors[1], "Assertion failed: gateway_count")
	assert.Contains(t, result.Errors[1], "gateway check-in")
}

func TestRun_UnexpectedErrorCode(t *testing.T) {
	blank := ""
	s := &Scenario{
		Name:        "blank",
		Description: "a blank scan expected to succeed",
		Steps: []Step{
			{Start: "Event 1: Meet & Greet"},
			{Scan: &blank, Expect: &ExpectClause{}},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], `expected code "", got "VALIDATION"`)
}

func TestRun_CustomEvents(t *testing.T) {
	s := &Scenario{
		Name:        "custom_events",
		Description: "events come from the scenario",
		Events:      []string{"Open House"},
		Steps: []Step{
			{Start: "Event 1: Meet & Greet", Expect: &ExpectClause{Code: "VALIDATION", Step: "event_selection"}},
			{Start: "Open House", Expect: &ExpectClause{Step: "scanning"}},
		},
		Assertions: []Assertion{{Type: AssertFinalStep, Step: "scanning"}},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestLoadScenario_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: typo
description: misspelled key
step:
  - reset: true
`), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestValidateScenario(t *testing.T) {
	scan := "1"
	valid := func() *Scenario {
		return &Scenario{Name: "n", Description: "d", Steps: []Step{{Scan: &scan}}}
	}

	tests := []struct {
		name    string
		mutate  func(s *Scenario)
		wantErr string
	}{
		{"valid", func(*Scenario) {}, ""},
		{"no name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"no description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no steps", func(s *Scenario) { s.Steps = nil }, "steps list is required"},
		{"two actions", func(s *Scenario) { s.Steps[0].Reset = true }, "exactly one action is required, got 2"},
		{"no action", func(s *Scenario) { s.Steps[0].Scan = nil }, "exactly one action is required, got 0"},
		{"photo both", func(s *Scenario) {
			s.Steps[0] = Step{Ingest: &IngestForm{Photo: &PhotoSpec{Width: 1, Height: 1, Raw: "x"}}}
		}, "exclusive"},
		{"photo half size", func(s *Scenario) {
			s.Steps[0] = Step{Ingest: &IngestForm{Photo: &PhotoSpec{Width: 4}}}
		}, "must both be positive"},
		{"assertion without type", func(s *Scenario) { s.Assertions = []Assertion{{}} }, "type is required"},
		{"unknown assertion", func(s *Scenario) { s.Assertions = []Assertion{{Type: "trace_order"}} }, "unknown assertion type"},
		{"log_row needs one matcher", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertLogRow, Key: "k"}}
		}, "exactly one of equals or contains"},
		{"gateway_count needs action", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertGatewayCount}}
		}, "action is required"},
		{"final_step needs step", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertFinalStep}}
		}, "step is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := validateScenario(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
