package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario drives the kiosk flows through a scripted session.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Password is the stored credential. Empty runs the flows logged out.
	Password string `yaml:"password,omitempty"`

	// Events overrides the default event list.
	Events []string `yaml:"events,omitempty"`

	// AutoReturn overrides how long the success screen stays up.
	AutoReturn time.Duration `yaml:"auto_return,omitempty"`

	// Start is the fake clock's initial time. Defaults to DefaultStart.
	Start time.Time `yaml:"start,omitempty"`

	// Gateway holds the scripted replies, consumed in call order.
	// Calls past the end of the script succeed with no name.
	Gateway []Reply `yaml:"gateway,omitempty"`

	// Steps run in order against the flows.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the backup logs after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Reply is one scripted gateway response.
type Reply struct {
	OK    bool   `yaml:"ok"`
	Name  string `yaml:"name,omitempty"`
	Error string `yaml:"error,omitempty"`

	// Fail makes the call return a transport error instead of a result.
	Fail bool `yaml:"fail,omitempty"`
}

// Step is one operator action. Exactly one action field must be set.
type Step struct {
	Select  string        `yaml:"select,omitempty"`
	Confirm bool          `yaml:"confirm,omitempty"`
	Start   string        `yaml:"start,omitempty"`
	Scan    *string       `yaml:"scan,omitempty"`
	Reset   bool          `yaml:"reset,omitempty"`
	Advance time.Duration `yaml:"advance,omitempty"`
	Ingest  *IngestForm   `yaml:"ingest,omitempty"`

	// Expect checks the step's outcome. If nil, the outcome is not checked.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// IngestForm fills and submits the ingest form.
type IngestForm struct {
	Name  string     `yaml:"name"`
	Email string     `yaml:"email"`
	ID    string     `yaml:"id"`
	Photo *PhotoSpec `yaml:"photo,omitempty"`
}

// PhotoSpec describes the attached headshot. Width and Height generate a
// PNG of that size; Raw attaches the given bytes as-is.
type PhotoSpec struct {
	Name   string `yaml:"name"`
	Width  int    `yaml:"width,omitempty"`
	Height int    `yaml:"height,omitempty"`
	Raw    string `yaml:"raw,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Step is the flow step after the action (e.g. "success", "editing").
	Step string `yaml:"step,omitempty"`

	// Code is the expected error code. Empty means the step must succeed.
	Code string `yaml:"code,omitempty"`

	// Name is the expected display name (check-in) or form name (ingest).
	Name string `yaml:"name,omitempty"`

	// Message is the expected error or success message shown to the operator.
	Message string `yaml:"message,omitempty"`
}

// Assertion validates the final trace or backup logs.
type Assertion struct {
	// Type specifies the assertion type:
	// - "log_rows": the backup at Key has exactly Count rows
	// - "log_row": row Index of the backup at Key equals or contains a value
	// - "gateway_count": Action was submitted exactly Count times
	// - "final_step": the check-in flow ended in Step
	Type string `yaml:"type"`

	Key      string `yaml:"key,omitempty"`
	Index    int    `yaml:"index,omitempty"`
	Equals   string `yaml:"equals,omitempty"`
	Contains string `yaml:"contains,omitempty"`
	Action   string `yaml:"action,omitempty"`
	Count    int    `yaml:"count,omitempty"`
	Step     string `yaml:"step,omitempty"`
}

// Assertion type constants.
const (
	AssertLogRows      = "log_rows"
	AssertLogRow       = "log_row"
	AssertGatewayCount = "gateway_count"
	AssertFinalStep    = "final_step"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.AutoReturn < 0 {
		return fmt.Errorf("auto_return must be non-negative")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	actions := 0
	for _, set := range []bool{
		s.Select != "",
		s.Confirm,
		s.Start != "",
		s.Scan != nil,
		s.Reset,
		s.Advance != 0,
		s.Ingest != nil,
	} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, actions)
	}
	if s.Advance < 0 {
		return fmt.Errorf("steps[%d]: advance must be positive", index)
	}
	if s.Ingest != nil && s.Ingest.Photo != nil {
		p := s.Ingest.Photo
		generated := p.Width > 0 || p.Height > 0
		if generated && p.Raw != "" {
			return fmt.Errorf("steps[%d].ingest.photo: width/height and raw are exclusive", index)
		}
		if generated && (p.Width <= 0 || p.Height <= 0) {
			return fmt.Errorf("steps[%d].ingest.photo: width and height must both be positive", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertLogRows:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for log_rows", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for log_rows", index)
		}
	case AssertLogRow:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for log_row", index)
		}
		if a.Index < 0 {
			return fmt.Errorf("assertions[%d]: index must be non-negative for log_row", index)
		}
		if (a.Equals == "") == (a.Contains == "") {
			return fmt.Errorf("assertions[%d]: exactly one of equals or contains is required for log_row", index)
		}
	case AssertGatewayCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for gateway_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for gateway_count", index)
		}
	case AssertFinalStep:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for final_step", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
