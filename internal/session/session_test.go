package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pnmtrack/internal/gateway"
	"github.com/roach88/pnmtrack/internal/testutil"
)

type fakeGateway struct {
	result  gateway.Result
	err     error
	payload map[string]any
	action  string
}

func (f *fakeGateway) Submit(_ context.Context, action string, payload map[string]any) (gateway.Result, error) {
	f.action = action
	f.payload = payload
	return f.result, f.err
}

func TestPassword_LoggedOut(t *testing.T) {
	s := New(testutil.NewMemoryStorage(), nil)
	_, ok := s.Password(context.Background())
	assert.False(t, ok)

	var nilSession *Session
	_, ok = nilSession.Password(context.Background())
	assert.False(t, ok)
}

func TestSaveAndClear(t *testing.T) {
	m := testutil.NewMemoryStorage()
	s := New(m, nil)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "secret"))
	pw, ok := s.Password(ctx)
	assert.True(t, ok)
	assert.Equal(t, "secret", pw)

	require.NoError(t, s.Clear(ctx))
	_, ok = s.Password(ctx)
	assert.False(t, ok)
}

func TestPassword_StorageErrorIsLoggedOut(t *testing.T) {
	m := testutil.NewMemoryStorage()
	m.Seed(PasswordKey, "secret")
	m.GetErr = errors.New("io")

	_, ok := New(m, nil).Password(context.Background())
	assert.False(t, ok)
}

func TestLogin_Success(t *testing.T) {
	m := testutil.NewMemoryStorage()
	gw := &fakeGateway{result: gateway.Result{OK: true}}

	require.NoError(t, New(m, nil).Login(context.Background(), gw, "secret"))

	assert.Equal(t, gateway.ActionCheckPassword, gw.action)
	assert.Equal(t, "secret", gw.payload["password"])
	raw, ok := m.Raw(PasswordKey)
	assert.True(t, ok)
	assert.Equal(t, "secret", raw)
}

func TestLogin_Rejected(t *testing.T) {
	m := testutil.NewMemoryStorage()
	gw := &fakeGateway{result: gateway.Result{OK: false, Error: "Wrong password"}}

	err := New(m, nil).Login(context.Background(), gw, "nope")
	assert.ErrorIs(t, err, ErrInvalidPassword)
	assert.Contains(t, err.Error(), "Wrong password")
	_, ok := m.Raw(PasswordKey)
	assert.False(t, ok)
}

func TestLogin_NetworkError(t *testing.T) {
	gw := &fakeGateway{err: errors.New("connection refused")}
	err := New(testutil.NewMemoryStorage(), nil).Login(context.Background(), gw, "x")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidPassword)
}

func TestStatic(t *testing.T) {
	pw, ok := Static("abc").Password(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "abc", pw)

	_, ok = Static("").Password(context.Background())
	assert.False(t, ok)
}
