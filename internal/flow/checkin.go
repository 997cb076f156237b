package flow

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/pnmtrack/internal/gateway"
	"github.com/roach88/pnmtrack/internal/metrics"
)

// CheckInBackupKey is the storage key of the check-in log.
const CheckInBackupKey = "checkInCsvBackup"

// CheckInBackupHeaders are the check-in log columns.
var CheckInBackupHeaders = []string{"timestamp", "eventType", "idNumber"}

// IDLength is the number of characters kept from a scanned identifier.
const IDLength = 10

// DefaultAutoReturn is how long the success screen stays up.
const DefaultAutoReturn = 2 * time.Second

// DefaultEvents is the recruitment event list used when none is configured.
var DefaultEvents = []string{
	"Event 1: Meet & Greet",
	"Event 2: Speaker Series",
	"Event 3: Facility Tour",
	"Event 4: Social Mixer",
	"Event 5: Professional Workshop",
}

// CheckInStep is a step of the check-in flow.
type CheckInStep int

const (
	StepEventSelection CheckInStep = iota
	StepScanning
	StepSubmitting
	StepSuccess
)

func (s CheckInStep) String() string {
	switch s {
	case StepEventSelection:
		return "event_selection"
	case StepScanning:
		return "scanning"
	case StepSubmitting:
		return "submitting"
	case StepSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// CheckInSnapshot is a copy of the check-in state delivered to observers.
type CheckInSnapshot struct {
	Step          CheckInStep
	Events        []string
	Event         string
	Error         string
	LoginRequired bool

	// Name and LastID describe the most recent successful check-in.
	Name   string
	LastID string
}

// CheckInConfig configures a CheckIn.
type CheckInConfig struct {
	Events     []string
	AutoReturn time.Duration
}

// CheckIn is the kiosk check-in state machine.
type CheckIn struct {
	deps       Deps
	events     []string
	autoReturn time.Duration
	logger     *slog.Logger

	mu            sync.Mutex
	step          CheckInStep
	event         string
	errMsg        string
	loginRequired bool
	name          string
	lastID        string
	stopReturn    func() bool
	// epoch advances on every Reset and timer change; stale callbacks compare against it.
	epoch     uint64
	observers []func(CheckInSnapshot)
}

// NewCheckIn creates a check-in flow in the event selection step.
func NewCheckIn(deps Deps, cfg CheckInConfig) *CheckIn {
	deps = deps.withDefaults()
	events := cfg.Events
	if len(events) == 0 {
		events = DefaultEvents
	}
	autoReturn := cfg.AutoReturn
	if autoReturn <= 0 {
		autoReturn = DefaultAutoReturn
	}

	sessionID := "session-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	if id, err := uuid.NewV7(); err == nil {
		sessionID = id.String()
	}

	return &CheckIn{
		deps:       deps,
		events:     slices.Clone(events),
		autoReturn: autoReturn,
		logger:     deps.Logger.With("flow", "checkin", "kiosk_session", sessionID),
		step:       StepEventSelection,
	}
}

// OnChange registers an observer called after every transition.
// Observers run outside the flow's lock and may call Snapshot.
func (c *CheckIn) OnChange(fn func(CheckInSnapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Snapshot returns the current state.
func (c *CheckIn) Snapshot() CheckInSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *CheckIn) snapshotLocked() CheckInSnapshot {
	return CheckInSnapshot{
		Step:          c.step,
		Events:        slices.Clone(c.events),
		Event:         c.event,
		Error:         c.errMsg,
		LoginRequired: c.loginRequired,
		Name:          c.name,
		LastID:        c.lastID,
	}
}

// commit snapshots the state, releases the lock, and notifies observers.
func (c *CheckIn) commit() CheckInSnapshot {
	snap := c.snapshotLocked()
	observers := slices.Clone(c.observers)
	c.mu.Unlock()
	for _, fn := range observers {
		fn(snap)
	}
	return snap
}

// SelectEvent picks an event from the configured list.
func (c *CheckIn) SelectEvent(event string) error {
	c.mu.Lock()
	if c.step != StepEventSelection {
		c.mu.Unlock()
		return newError(ErrCodeInvalidState, "event can only be changed from event selection", nil)
	}
	if !slices.Contains(c.events, event) {
		c.mu.Unlock()
		return newError(ErrCodeValidation, "unknown event: "+event, nil)
	}
	c.event = event
	c.errMsg = ""
	c.commit()
	return nil
}

// Confirm fixes the selected event and starts scanning.
func (c *CheckIn) Confirm() error {
	c.mu.Lock()
	if c.step != StepEventSelection {
		c.mu.Unlock()
		return newError(ErrCodeInvalidState, "already confirmed", nil)
	}
	if c.event == "" {
		c.mu.Unlock()
		return newError(ErrCodeValidation, "Please select an event", nil)
	}
	c.step = StepScanning
	c.errMsg = ""
	c.logger.Info("scanning started", "event", c.event)
	c.commit()
	return nil
}

// Start selects and confirms event in one call.
func (c *CheckIn) Start(event string) error {
	if err := c.SelectEvent(event); err != nil {
		return err
	}
	return c.Confirm()
}

// Reset returns to event selection, cancelling any pending auto-return.
// It fails with BUSY while a submission is in flight.
func (c *CheckIn) Reset() error {
	c.mu.Lock()
	if c.step == StepSubmitting {
		c.mu.Unlock()
		return newError(ErrCodeBusy, msgBusy, nil)
	}
	c.cancelReturnLocked()
	c.epoch++
	c.step = StepEventSelection
	c.errMsg = ""
	c.loginRequired = false
	c.name = ""
	c.lastID = ""
	c.commit()
	return nil
}

func (c *CheckIn) cancelReturnLocked() {
	if c.stopReturn != nil {
		c.stopReturn()
		c.stopReturn = nil
	}
}

// Submit records a scanned identifier and submits it.
// The returned snapshot reflects the state after the attempt.
func (c *CheckIn) Submit(ctx context.Context, raw string) (CheckInSnapshot, error) {
	c.mu.Lock()
	switch c.step {
	case StepSubmitting:
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, newError(ErrCodeBusy, msgBusy, nil)
	case StepEventSelection:
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, newError(ErrCodeInvalidState, "Please select an event", nil)
	case StepSuccess:
		c.cancelReturnLocked()
		c.epoch++
		c.step = StepScanning
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		c.errMsg = "Please enter an ID number"
		c.loginRequired = false
		return c.commit(), newError(ErrCodeValidation, c.errMsg, nil)
	}

	id := truncateRunes(trimmed, IDLength)
	event := c.event
	epoch := c.epoch
	c.step = StepSubmitting
	c.errMsg = ""
	c.loginRequired = false
	c.commit()

	start := time.Now()
	c.deps.Log.Append(ctx, CheckInBackupKey, CheckInBackupHeaders, []string{c.deps.timestamp(), event, id})

	password, ok := c.deps.Credentials.Password(ctx)
	if !ok {
		metrics.RecordSubmission(gateway.ActionCheckIn, "login_required", time.Since(start))
		c.logger.Warn("check-in without credential", "id", id)
		return c.finish(epoch, newError(ErrCodeLoginRequired, msgLoginRequired, nil), func() {
			c.step = StepScanning
			c.errMsg = msgLoginRequired
			c.loginRequired = true
		})
	}

	res, err := c.deps.Gateway.Submit(ctx, gateway.ActionCheckIn, map[string]any{
		"idNumber":  id,
		"eventType": event,
		"password":  password,
	})

	switch {
	case err != nil:
		c.logger.Error("check-in request failed", "id", id, "error", err)
		return c.finish(epoch, newError(ErrCodeSubmitFailed, msgConnectFailed, err), func() {
			c.step = StepScanning
			c.errMsg = msgConnectFailed
		})
	case !res.OK:
		msg := res.Message("Failed to check in")
		c.logger.Warn("check-in rejected", "id", id, "error", msg)
		return c.finish(epoch, newError(ErrCodeSubmitFailed, msg, nil), func() {
			c.step = StepScanning
			c.errMsg = msg
		})
	}

	c.logger.Info("checked in", "id", id, "event", event, "name", res.Name)
	return c.finish(epoch, nil, func() {
		c.step = StepSuccess
		c.name = res.Name
		c.lastID = id
		c.epoch++
		returnEpoch := c.epoch
		c.stopReturn = c.deps.Clock.AfterFunc(c.autoReturn, func() { c.returnToScanning(returnEpoch) })
	})
}

// finish applies a submission outcome unless the epoch moved on meanwhile,
// in which case err is still returned to the caller.
func (c *CheckIn) finish(epoch uint64, err error, apply func()) (CheckInSnapshot, error) {
	c.mu.Lock()
	if c.epoch != epoch {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, err
	}
	apply()
	return c.commit(), err
}

func (c *CheckIn) returnToScanning(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch || c.step != StepSuccess {
		c.mu.Unlock()
		return
	}
	c.stopReturn = nil
	c.step = StepScanning
	c.name = ""
	c.commit()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
