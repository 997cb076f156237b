package flow

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/pnmtrack/internal/gateway"
	"github.com/roach88/pnmtrack/internal/metrics"
	"github.com/roach88/pnmtrack/internal/photo"
)

// IngestBackupKey is the storage key of the ingest log.
const IngestBackupKey = "ingestCsvBackup"

// IngestBackupHeaders are the ingest log columns. Only photo metadata is logged.
var IngestBackupHeaders = []string{"timestamp", "pnmName", "wiscEmail", "studentId", "photoFileName", "photoFileSize"}

// Ingest messages shown to the operator.
const (
	MsgPhotoRequired = "Please upload or take a headshot photo"
	MsgIDLength      = "Wiscard IDs must be exactly 10 digits"
	MsgIngestOK      = "PNM added successfully!"
	msgIngestFailed  = "Failed to add PNM"
)

// IngestStep is a step of the ingest flow.
type IngestStep int

const (
	StepEditing IngestStep = iota
	StepValidating
	StepSubmittingIngest
)

func (s IngestStep) String() string {
	switch s {
	case StepEditing:
		return "editing"
	case StepValidating:
		return "validating"
	case StepSubmittingIngest:
		return "submitting"
	default:
		return "unknown"
	}
}

// Photo is an attached headshot.
type Photo struct {
	Name string
	Data []byte
}

// IngestSnapshot is a copy of the ingest form state.
type IngestSnapshot struct {
	Step          IngestStep
	Name          string
	Email         string
	StudentID     string
	PhotoName     string
	PhotoSize     int
	Error         string
	Success       string
	LoginRequired bool
}

// Ingest is the new-candidate registration form.
type Ingest struct {
	deps     Deps
	photoCfg photo.Config
	logger   *slog.Logger

	mu            sync.Mutex
	step          IngestStep
	name          string
	email         string
	studentID     string
	photo         *Photo
	errMsg        string
	successMsg    string
	loginRequired bool
	observers     []func(IngestSnapshot)
}

// NewIngest creates an ingest flow with an empty form.
func NewIngest(deps Deps, photoCfg photo.Config) *Ingest {
	deps = deps.withDefaults()
	return &Ingest{
		deps:     deps,
		photoCfg: photoCfg,
		logger:   deps.Logger.With("flow", "ingest"),
	}
}

// OnChange registers an observer called after every transition.
func (f *Ingest) OnChange(fn func(IngestSnapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, fn)
}

// Snapshot returns the current form state.
func (f *Ingest) Snapshot() IngestSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Ingest) snapshotLocked() IngestSnapshot {
	snap := IngestSnapshot{
		Step:          f.step,
		Name:          f.name,
		Email:         f.email,
		StudentID:     f.studentID,
		Error:         f.errMsg,
		Success:       f.successMsg,
		LoginRequired: f.loginRequired,
	}
	if f.photo != nil {
		snap.PhotoName = f.photo.Name
		snap.PhotoSize = len(f.photo.Data)
	}
	return snap
}

func (f *Ingest) commit() IngestSnapshot {
	snap := f.snapshotLocked()
	observers := slices.Clone(f.observers)
	f.mu.Unlock()
	for _, fn := range observers {
		fn(snap)
	}
	return snap
}

// edit runs fn under the lock unless a submission is in flight.
func (f *Ingest) edit(fn func()) error {
	f.mu.Lock()
	if f.step != StepEditing {
		f.mu.Unlock()
		return newError(ErrCodeBusy, msgBusy, nil)
	}
	fn()
	f.successMsg = ""
	f.commit()
	return nil
}

// SetName sets the candidate's full name.
func (f *Ingest) SetName(name string) error {
	return f.edit(func() { f.name = cleanText(name) })
}

// SetEmail sets the candidate's email.
func (f *Ingest) SetEmail(email string) error {
	return f.edit(func() { f.email = cleanText(email) })
}

// SetStudentID sets the student identifier, keeping at most ten ASCII digits.
func (f *Ingest) SetStudentID(id string) error {
	return f.edit(func() { f.studentID = digitsOnly(id, IDLength) })
}

// AttachPhoto attaches a headshot, replacing any previous one.
func (f *Ingest) AttachPhoto(name string, data []byte) error {
	return f.edit(func() {
		if len(data) == 0 {
			f.photo = nil
			return
		}
		f.photo = &Photo{Name: name, Data: slices.Clone(data)}
	})
}

// Submit validates the form, logs it, and sends it to the gateway.
// On success the form is cleared; on failure its fields are kept.
func (f *Ingest) Submit(ctx context.Context) (IngestSnapshot, error) {
	f.mu.Lock()
	if f.step != StepEditing {
		snap := f.snapshotLocked()
		f.mu.Unlock()
		return snap, newError(ErrCodeBusy, msgBusy, nil)
	}

	f.step = StepValidating
	f.successMsg = ""
	f.loginRequired = false
	if msg := f.validateLocked(); msg != "" {
		f.step = StepEditing
		f.errMsg = msg
		return f.commit(), newError(ErrCodeValidation, msg, nil)
	}

	name, email, id := f.name, f.email, f.studentID
	attached := *f.photo
	f.step = StepSubmittingIngest
	f.errMsg = ""
	f.commit()

	start := time.Now()
	f.deps.Log.Append(ctx, IngestBackupKey, IngestBackupHeaders, []string{
		f.deps.timestamp(), name, email, id, attached.Name, strconv.Itoa(len(attached.Data)),
	})

	password, ok := f.deps.Credentials.Password(ctx)
	if !ok {
		metrics.RecordSubmission(gateway.ActionIngest, "login_required", time.Since(start))
		f.logger.Warn("ingest without credential", "id", id)
		return f.fail(newError(ErrCodeLoginRequired, msgLoginRequired, nil), true)
	}

	normalized, err := photo.Normalize(ctx, attached.Data, f.photoCfg)
	if err != nil {
		metrics.RecordSubmission(gateway.ActionIngest, "error", time.Since(start))
		f.logger.Error("photo normalization failed", "id", id, "photo", attached.Name, "error", err)
		return f.fail(newError(ErrCodeSubmitFailed, msgConnectFailed, err), false)
	}
	f.logger.Debug("photo normalized",
		"original_bytes", normalized.OriginalSize,
		"bytes", len(normalized.Data),
		"width", normalized.Width,
		"height", normalized.Height,
		"quality", normalized.Quality,
	)

	res, err := f.deps.Gateway.Submit(ctx, gateway.ActionIngest, map[string]any{
		"fullName": name,
		"email":    email,
		"idNumber": id,
		"image":    normalized.Base64(),
		"password": password,
	})
	if err != nil {
		f.logger.Error("ingest request failed", "id", id, "error", err)
		return f.fail(newError(ErrCodeSubmitFailed, msgConnectFailed, err), false)
	}
	if !res.OK {
		msg := res.Message(msgIngestFailed)
		f.logger.Warn("ingest rejected", "id", id, "error", msg)
		return f.fail(newError(ErrCodeSubmitFailed, msg, nil), false)
	}

	f.logger.Info("candidate added", "id", id, "name", name)

	f.mu.Lock()
	f.step = StepEditing
	f.name, f.email, f.studentID, f.photo = "", "", "", nil
	f.errMsg = ""
	f.successMsg = MsgIngestOK
	return f.commit(), nil
}

func (f *Ingest) validateLocked() string {
	if f.photo == nil {
		return MsgPhotoRequired
	}
	if len(f.studentID) != IDLength || digitsOnly(f.studentID, IDLength) != f.studentID {
		return MsgIDLength
	}
	return ""
}

func (f *Ingest) fail(err *Error, loginRequired bool) (IngestSnapshot, error) {
	f.mu.Lock()
	f.step = StepEditing
	f.errMsg = err.Message
	f.loginRequired = loginRequired
	return f.commit(), err
}

func cleanText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// digitsOnly keeps the ASCII digits of s, at most limit of them.
func digitsOnly(s string, limit int) string {
	var b strings.Builder
	for _, r := range s {
		if r < '0' || r > '9' {
			continue
		}
		if b.Len() == limit {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}
