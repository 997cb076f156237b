package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/pnmtrack/internal/backup"
	"github.com/roach88/pnmtrack/internal/gateway"
	"github.com/roach88/pnmtrack/internal/session"
	"github.com/roach88/pnmtrack/internal/testutil"
)

var testStart = time.Date(2026, 10, 19, 14, 3, 7, 123_000_000, time.UTC)

type call struct {
	action  string
	payload map[string]any
}

// stubGateway records calls. When block is non-nil each call waits on it.
type stubGateway struct {
	mu     sync.Mutex
	calls  []call
	result gateway.Result
	err    error
	block  chan struct{}
}

func (g *stubGateway) Submit(ctx context.Context, action string, payload map[string]any) (gateway.Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, call{action: action, payload: payload})
	block := g.block
	g.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return gateway.Result{}, ctx.Err()
		}
	}
	return g.result, g.err
}

func (g *stubGateway) Calls() []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]call(nil), g.calls...)
}

type fixture struct {
	storage *testutil.MemoryStorage
	clock   *testutil.FakeClock
	gw      *stubGateway
	deps    Deps
}

func newFixture(t *testing.T, password string) *fixture {
	t.Helper()
	f := &fixture{
		storage: testutil.NewMemoryStorage(),
		clock:   testutil.NewFakeClock(testStart),
		gw:      &stubGateway{result: gateway.Result{OK: true}},
	}
	f.deps = Deps{
		Log:         backup.New(f.storage),
		Gateway:     f.gw,
		Credentials: session.Static(password),
		Clock:       f.clock,
	}
	return f
}

// rows decodes the backup stored at key.
func (f *fixture) rows(t *testing.T, key string, headers []string) []string {
	t.Helper()
	raw, ok := f.storage.Raw(key)
	if !ok {
		return nil
	}
	b, reason, err := backup.Decode(raw, headers)
	require.NoError(t, err)
	require.Equal(t, backup.ReasonNone, reason)
	return b.Rows
}
