package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/pnmtrack/internal/csvrow"
	"github.com/roach88/pnmtrack/internal/metrics"
	"github.com/roach88/pnmtrack/internal/store"
)

// ErrNotFound is returned by Read and Export when the key has no backup.
var ErrNotFound = errors.New("backup not found")

// Storage is the persistent string-keyed namespace a Log writes to.
// *store.Store implements it.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// AppendResult reports what Append did. Append itself never fails.
type AppendResult struct {
	// Written is true when the row was persisted.
	Written bool

	// Skipped is true when no persistent storage was available.
	Skipped bool

	// Recovered is true when the prior persisted value was discarded.
	Recovered bool

	// Reason explains a recovery.
	Reason RecoveryReason

	// Rows is the row count of the backup after the append.
	Rows int

	// Err holds an absorbed storage failure, if any.
	Err error
}

// Log is the durable backup log.
type Log struct {
	storage Storage
	logger  *slog.Logger
	mu      sync.Mutex
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the logger used for recovery and failure reports.
// Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// New creates a Log over storage. A nil storage is valid; every append is skipped.
func New(storage Storage, opts ...Option) *Log {
	l := &Log{
		storage: storage,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Log) available() bool {
	if l == nil || l.storage == nil {
		return false
	}
	if s, ok := l.storage.(*store.Store); ok && !s.Available() {
		return false
	}
	return true
}

// Append renders values as one CSV row and appends it to the backup at key,
// creating the backup with headers if it does not exist.
func (l *Log) Append(ctx context.Context, key string, headers, values []string) AppendResult {
	if !l.available() {
		metrics.RecordBackupAppend(key, "skipped")
		return AppendResult{Skipped: true}
	}

	row := csvrow.RenderRow(values)

	l.mu.Lock()
	defer l.mu.Unlock()

	var result AppendResult

	raw, ok, err := l.storage.Get(ctx, key)
	if errors.Is(err, store.ErrUnavailable) {
		metrics.RecordBackupAppend(key, "skipped")
		return AppendResult{Skipped: true}
	}

	if err != nil {
		// The slot may still hold good rows; writing now would replace them.
		l.logger.Error("backup read failed, row not written", "key", key, "error", err)
		metrics.RecordBackupAppend(key, "error")
		result.Err = err
		return result
	}

	backup := NewBackup(headers)
	if ok {
		decoded, reason, decodeErr := Decode(raw, headers)
		if reason != ReasonNone {
			l.logger.Warn("backup unreadable, resetting", "key", key, "reason", reason, "error", decodeErr)
			result.Recovered = true
			result.Reason = reason
			if reason == ReasonUnsupportedVersion {
				l.park(ctx, key, raw)
			}
		}
		backup = decoded
	}
	if result.Recovered {
		metrics.RecordBackupRecovery(key, string(result.Reason))
	}

	backup.Rows = append(backup.Rows, row)
	result.Rows = len(backup.Rows)

	encoded, err := Encode(backup)
	if err == nil {
		err = l.storage.Set(ctx, key, encoded)
	}
	if errors.Is(err, store.ErrUnavailable) {
		metrics.RecordBackupAppend(key, "skipped")
		result.Skipped = true
		return result
	}
	if err != nil {
		l.logger.Error("backup write failed", "key", key, "error", err)
		metrics.RecordBackupAppend(key, "error")
		result.Err = err
		return result
	}

	metrics.RecordBackupAppend(key, "written")
	result.Written = true
	return result
}

// park copies a value written by a newer schema to a sidecar key before the
// main slot is reset, so nothing this binary cannot read is destroyed.
func (l *Log) park(ctx context.Context, key, raw string) {
	sidecar := key + ".unsupported"
	if err := l.storage.Set(ctx, sidecar, raw); err != nil {
		l.logger.Error("failed to park unsupported backup", "key", key, "sidecar", sidecar, "error", err)
		return
	}
	l.logger.Warn("parked unsupported backup", "key", key, "sidecar", sidecar)
}

// Read returns the backup at key. Returns ErrNotFound if the key is empty.
// Unlike Append, Read reports a corrupt value as an error.
func (l *Log) Read(ctx context.Context, key string) (Backup, error) {
	if !l.available() {
		return Backup{}, store.ErrUnavailable
	}

	raw, ok, err := l.storage.Get(ctx, key)
	if err != nil {
		return Backup{}, fmt.Errorf("read backup %q: %w", key, err)
	}
	if !ok {
		return Backup{}, fmt.Errorf("read backup %q: %w", key, ErrNotFound)
	}

	b, reason, err := Decode(raw, nil)
	if reason != ReasonNone {
		return Backup{}, fmt.Errorf("read backup %q (%s): %w", key, reason, err)
	}
	return b, nil
}

// Export materializes the backup at key as CSV text.
func (l *Log) Export(ctx context.Context, key string) (string, error) {
	b, err := l.Read(ctx, key)
	if err != nil {
		return "", err
	}
	return csvrow.Materialize(b.Headers, b.Rows), nil
}

// Clear deletes the backup at key. This is an operator action; flows never call it.
func (l *Log) Clear(ctx context.Context, key string) error {
	if !l.available() {
		return store.ErrUnavailable
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.storage.Delete(ctx, key); err != nil {
		return fmt.Errorf("clear backup %q: %w", key, err)
	}
	l.logger.Info("backup cleared", "key", key)
	return nil
}
