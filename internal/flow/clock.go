package flow

import (
	"log/slog"
	"time"

	"github.com/roach88/pnmtrack/internal/backup"
	"github.com/roach88/pnmtrack/internal/gateway"
	"github.com/roach88/pnmtrack/internal/session"
)

// TimestampLayout formats log timestamps: UTC, millisecond precision, Z suffix.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Clock supplies wall time and one-shot timers.
// AfterFunc returns a stop function reporting whether it prevented the call.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// SystemClock is the real clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (SystemClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Deps are the collaborators shared by both flows.
type Deps struct {
	Log         *backup.Log
	Gateway     gateway.Submitter
	Credentials session.Provider
	Clock       Clock
	Logger      *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Credentials == nil {
		d.Credentials = session.Static("")
	}
	return d
}

func (d Deps) timestamp() string {
	return d.Clock.Now().UTC().Format(TimestampLayout)
}
