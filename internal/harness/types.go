package harness

// Trace event types.
const (
	EventStep    = "step"
	EventGateway = "gateway"
	EventError   = "error"
)

// TraceEvent is one observable effect of a scenario.
type TraceEvent struct {
	Seq     int            `json:"seq"`
	Type    string         `json:"type"`
	Flow    string         `json:"flow,omitempty"`
	Step    string         `json:"step,omitempty"`
	Action  string         `json:"action,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds step transitions, gateway calls, and errors in order.
	Trace []TraceEvent `json:"trace"`

	// Logs maps backup keys to their decoded rows after the last step.
	Logs map[string][]string `json:"logs"`

	// Errors contains expect and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Logs:   map[string][]string{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
