package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/roach88/pnmtrack/internal/backup"
	"github.com/roach88/pnmtrack/internal/flow"
	"github.com/roach88/pnmtrack/internal/gateway"
	"github.com/roach88/pnmtrack/internal/photo"
	"github.com/roach88/pnmtrack/internal/session"
	"github.com/roach88/pnmtrack/internal/testutil"
)

// DefaultStart is the fake clock's initial time when a scenario sets none.
var DefaultStart = time.Date(2026, 1, 29, 18, 0, 0, 0, time.UTC)

// errScriptedFailure is returned by the scripted gateway for replies with fail set.
var errScriptedFailure = errors.New("scripted transport failure")

// Harness holds the fixtures of one scenario execution.
//
// Thread-safety: a Harness runs its steps sequentially; only the trace is
// guarded, since flow observers may run from timer callbacks.
type Harness struct {
	scenario *Scenario
	clock    *testutil.FakeClock
	log      *backup.Log
	gateway  *scriptedGateway
	checkIn  *flow.CheckIn
	ingest   *flow.Ingest

	mu        sync.Mutex
	result    *Result
	lastSteps map[string]string
}

// Run executes a scenario against fresh in-memory fixtures.
//
// Expect clauses and assertions that do not hold are recorded in the result
// and mark it failed. The returned error is reserved for scenarios that
// cannot be executed at all.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	h := newHarness(scenario)
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step); err != nil {
			return nil, err
		}
	}

	for _, key := range []string{flow.CheckInBackupKey, flow.IngestBackupKey} {
		b, err := h.log.Read(ctx, key)
		if errors.Is(err, backup.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		h.result.Logs[key] = b.Rows
	}

	actx := &AssertionContext{
		Calls:     h.gateway.Calls(),
		FinalStep: h.checkIn.Snapshot().Step.String(),
	}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func newHarness(s *Scenario) *Harness {
	start := s.Start
	if start.IsZero() {
		start = DefaultStart
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		scenario:  s,
		clock:     testutil.NewFakeClock(start),
		log:       backup.New(testutil.NewMemoryStorage(), backup.WithLogger(logger)),
		result:    NewResult(),
		lastSteps: map[string]string{},
	}
	h.gateway = &scriptedGateway{replies: s.Gateway, record: h.recordCall}

	deps := flow.Deps{
		Log:         h.log,
		Gateway:     h.gateway,
		Credentials: session.Static(s.Password),
		Clock:       h.clock,
		Logger:      logger,
	}
	h.checkIn = flow.NewCheckIn(deps, flow.CheckInConfig{Events: s.Events, AutoReturn: s.AutoReturn})
	h.ingest = flow.NewIngest(deps, photo.DefaultConfig())

	h.lastSteps["checkin"] = h.checkIn.Snapshot().Step.String()
	h.lastSteps["ingest"] = h.ingest.Snapshot().Step.String()
	h.checkIn.OnChange(func(snap flow.CheckInSnapshot) { h.recordStep("checkin", snap.Step.String()) })
	h.ingest.OnChange(func(snap flow.IngestSnapshot) { h.recordStep("ingest", snap.Step.String()) })
	return h
}

// recordStep traces a step transition. Repeated notifications for the same
// step are collapsed.
func (h *Harness) recordStep(flowName, step string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastSteps[flowName] == step {
		return
	}
	h.lastSteps[flowName] = step
	h.result.add(TraceEvent{Type: EventStep, Flow: flowName, Step: step})
}

func (h *Harness) recordCall(action string, payload map[string]any) {
	fields := maps.Clone(payload)
	if _, ok := fields["password"]; ok {
		fields["password"] = "***"
	}
	if _, ok := fields["image"]; ok {
		fields["image"] = "<image>"
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.add(TraceEvent{Type: EventGateway, Action: action, Fields: fields})
}

func (h *Harness) recordError(flowName string, err error) {
	var fe *flow.Error
	if !errors.As(err, &fe) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.add(TraceEvent{Type: EventError, Flow: flowName, Code: string(fe.Code), Message: fe.Message})
}

// execute runs one step and checks its expect clause.
func (h *Harness) execute(ctx context.Context, index int, step Step) error {
	var (
		flowName string
		outcome  observed
		err      error
	)

	switch {
	case step.Select != "":
		flowName = "checkin"
		err = h.checkIn.SelectEvent(step.Select)
		outcome = checkInOutcome(h.checkIn.Snapshot())
	case step.Confirm:
		flowName = "checkin"
		err = h.checkIn.Confirm()
		outcome = checkInOutcome(h.checkIn.Snapshot())
	case step.Start != "":
		flowName = "checkin"
		err = h.checkIn.Start(step.Start)
		outcome = checkInOutcome(h.checkIn.Snapshot())
	case step.Scan != nil:
		flowName = "checkin"
		var snap flow.CheckInSnapshot
		snap, err = h.checkIn.Submit(ctx, *step.Scan)
		outcome = checkInOutcome(snap)
	case step.Reset:
		flowName = "checkin"
		err = h.checkIn.Reset()
		outcome = checkInOutcome(h.checkIn.Snapshot())
	case step.Advance > 0:
		flowName = "checkin"
		h.clock.Advance(step.Advance)
		outcome = checkInOutcome(h.checkIn.Snapshot())
	case step.Ingest != nil:
		flowName = "ingest"
		var snap flow.IngestSnapshot
		snap, err = h.submitIngest(ctx, step.Ingest)
		outcome = ingestOutcome(snap)
	default:
		return fmt.Errorf("steps[%d]: no action", index)
	}

	if err != nil {
		var fe *flow.Error
		if !errors.As(err, &fe) {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		h.recordError(flowName, err)
		outcome.code = string(fe.Code)
	}

	if step.Expect != nil {
		for _, msg := range outcome.check(step.Expect) {
			h.result.AddError(fmt.Sprintf("steps[%d]: %s", index, msg))
		}
	}
	return nil
}

func (h *Harness) submitIngest(ctx context.Context, form *IngestForm) (flow.IngestSnapshot, error) {
	for _, set := range []func() error{
		func() error { return h.ingest.SetName(form.Name) },
		func() error { return h.ingest.SetEmail(form.Email) },
		func() error { return h.ingest.SetStudentID(form.ID) },
	} {
		if err := set(); err != nil {
			return h.ingest.Snapshot(), err
		}
	}

	var name string
	var data []byte
	if form.Photo != nil {
		var err error
		name = form.Photo.Name
		data, err = photoBytes(form.Photo)
		if err != nil {
			return flow.IngestSnapshot{}, err
		}
	}
	if err := h.ingest.AttachPhoto(name, data); err != nil {
		return h.ingest.Snapshot(), err
	}
	return h.ingest.Submit(ctx)
}

// photoBytes renders a PhotoSpec.
func photoBytes(p *PhotoSpec) ([]byte, error) {
	if p.Width == 0 && p.Height == 0 {
		return []byte(p.Raw), nil
	}
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode photo %q: %w", p.Name, err)
	}
	return buf.Bytes(), nil
}

// observed is the comparable outcome of a step.
type observed struct {
	step    string
	code    string
	name    string
	message string
}

func checkInOutcome(s flow.CheckInSnapshot) observed {
	return observed{step: s.Step.String(), name: s.Name, message: s.Error}
}

func ingestOutcome(s flow.IngestSnapshot) observed {
	msg := s.Error
	if msg == "" {
		msg = s.Success
	}
	return observed{step: s.Step.String(), name: s.Name, message: msg}
}

func (o observed) check(e *ExpectClause) []string {
	var errs []string
	if e.Code != o.code {
		errs = append(errs, fmt.Sprintf("expected code %q, got %q", e.Code, o.code))
	}
	if e.Step != "" && e.Step != o.step {
		errs = append(errs, fmt.Sprintf("expected step %q, got %q", e.Step, o.step))
	}
	if e.Name != "" && e.Name != o.name {
		errs = append(errs, fmt.Sprintf("expected name %q, got %q", e.Name, o.name))
	}
	if e.Message != "" && e.Message != o.message {
		errs = append(errs, fmt.Sprintf("expected message %q, got %q", e.Message, o.message))
	}
	return errs
}

// Call is a gateway submission observed by the scripted gateway.
type Call struct {
	Action  string
	Payload map[string]any
}

// scriptedGateway answers submissions from a scenario's reply script.
type scriptedGateway struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
	record  func(action string, payload map[string]any)
}

func (g *scriptedGateway) Submit(_ context.Context, action string, payload map[string]any) (gateway.Result, error) {
	g.mu.Lock()
	n := len(g.calls)
	g.calls = append(g.calls, Call{Action: action, Payload: payload})
	reply := Reply{OK: true}
	if n < len(g.replies) {
		reply = g.replies[n]
	}
	g.mu.Unlock()

	g.record(action, payload)
	if reply.Fail {
		return gateway.Result{}, errScriptedFailure
	}
	return gateway.Result{OK: reply.OK, Name: reply.Name, Error: reply.Error, StatusCode: 200}, nil
}

// Calls returns a copy of the observed submissions.
func (g *scriptedGateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}
