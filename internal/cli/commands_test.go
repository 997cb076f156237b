package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pnmtrack/internal/config"
	"github.com/roach88/pnmtrack/internal/flow"
)

// harness runs CLI commands against a temp database and a fake remote store.
type harness struct {
	t  *testing.T
	db string
	gw *httptest.Server

	mu       sync.Mutex
	requests []map[string]any
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, db: filepath.Join(t.TempDir(), "pnmtrack.db")}

	h.gw = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		h.mu.Lock()
		h.requests = append(h.requests, body)
		h.mu.Unlock()

		resp := map[string]any{"ok": true}
		switch body["action"] {
		case "checkPassword":
			if body["password"] != "secret" {
				resp = map[string]any{"ok": false, "error": "Invalid password"}
			}
		case "check-in":
			if body["idNumber"] == "0000000000" {
				resp = map[string]any{"ok": false, "error": "Unknown ID"}
			} else {
				resp["name"] = "Jane Doe"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(h.gw.Close)

	t.Setenv(config.EnvGatewayURL, h.gw.URL)
	t.Setenv(config.EnvDB, "")
	t.Setenv(config.EnvScriptURL, "")
	return h
}

func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--db", h.db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) login() {
	h.t.Helper()
	_, err := h.run("secret\n", "login")
	require.NoError(h.t, err)
}

func (h *harness) actions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, r := range h.requests {
		a, _ := r["action"].(string)
		out = append(out, a)
	}
	return out
}

func (h *harness) last() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.requests) == 0 {
		return nil
	}
	return h.requests[len(h.requests)-1]
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("wrong\n", "login")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Invalid password")

	out, err = h.run("secret\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in.")
	assert.Equal(t, []string{"checkPassword", "checkPassword"}, h.actions())
}

func TestLogin_EmptyPassword(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("\n", "login")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Empty(t, h.actions())
}

func TestCheckIn_LineMode(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("98765432101\n0000000000\n   \n", "checkin", "--event", "2", "--plain")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "2 check-in(s) failed")

	assert.Contains(t, out, "Welcome, Jane Doe (9876543210)")
	assert.Contains(t, out, "Error [SUBMIT_FAILED]: Unknown ID")
	assert.Contains(t, out, "Error [VALIDATION]: Please enter an ID number")

	req := h.last()
	assert.Equal(t, "0000000000", req["idNumber"])
	assert.Equal(t, "Event 2: Speaker Series", req["eventType"])
	assert.Equal(t, "secret", req["password"])

	csv, err := h.run("", "backup", "export", "checkin")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(csv, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `"timestamp","eventType","idNumber"`, lines[0])
	assert.Contains(t, lines[1], `"Event 2: Speaker Series","9876543210"`)
	assert.Contains(t, lines[2], `"Event 2: Speaker Series","0000000000"`)
}

func TestCheckIn_LoginRequiredStillLogs(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("1111111111\n", "checkin", "-e", "Event 1: Meet & Greet", "--plain")
	require.Error(t, err)
	assert.Contains(t, out, "Error [LOGIN_REQUIRED]")
	assert.Empty(t, h.actions())

	out, err = h.run("", "--format", "json", "backup", "show", "checkin")
	require.NoError(t, err)
	var resp struct {
		Data BackupSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, flow.CheckInBackupKey, resp.Data.Key)
	assert.Equal(t, 1, resp.Data.Rows)
	assert.Equal(t, flow.CheckInBackupHeaders, resp.Data.Headers)
}

func TestCheckIn_LineModeRequiresEvent(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("1111111111\n", "checkin", "--plain")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = h.run("", "checkin", "--plain", "--event", "99")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")

	out, _ = h.run("1111111111\n", "checkin", "-e", "1", "--plain")
	assert.Contains(t, out, "LOGIN_REQUIRED")
}

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: 90, B: uint8(y * 5), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, "jane.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestIngest(t *testing.T) {
	h := newHarness(t)
	h.login()
	photoPath := writePNG(t, t.TempDir())

	out, err := h.run("", "ingest",
		"--name", "Jane Doe", "--email", "jdoe@wisc.edu", "--id", "908-123-4567", "--photo", photoPath)
	require.NoError(t, err)
	assert.Contains(t, out, flow.MsgIngestOK)

	req := h.last()
	assert.Equal(t, "ingest", req["action"])
	assert.Equal(t, "Jane Doe", req["fullName"])
	assert.Equal(t, "9081234567", req["idNumber"])
	assert.NotEmpty(t, req["image"])

	csv, err := h.run("", "backup", "export", "ingest")
	require.NoError(t, err)
	assert.Contains(t, csv, `"Jane Doe","jdoe@wisc.edu","9081234567","jane.png"`)
}

func TestIngest_ValidationBlocksEverything(t *testing.T) {
	h := newHarness(t)
	h.login()
	photoPath := writePNG(t, t.TempDir())

	out, err := h.run("", "ingest", "--name", "Jane", "--email", "j@wisc.edu", "--id", "12345", "--photo", photoPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, flow.MsgIDLength)
	assert.Equal(t, []string{"checkPassword"}, h.actions())

	out, err = h.run("", "backup", "show", "ingest")
	require.Error(t, err)
	assert.Contains(t, out, "NOT_FOUND")
}

func TestIngest_MissingPhotoFile(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "ingest", "--id", "9081234567", "--photo", filepath.Join(t.TempDir(), "nope.jpg"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestBackupClearAndExportToFile(t *testing.T) {
	h := newHarness(t)
	h.login()
	_, err := h.run("1234567890\n", "checkin", "-e", "3", "--plain")
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "checkin.csv")
	out, err := h.run("", "backup", "export", "checkin", "-o", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported "+flow.CheckInBackupKey)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Event 3: Facility Tour","1234567890"`)

	out, err = h.run("", "backup", "clear", "checkin")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared "+flow.CheckInBackupKey)

	_, err = h.run("", "backup", "show", "checkin")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestEvents_JSON(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "--format", "json", "events")
	require.NoError(t, err)

	var resp struct {
		Status string   `json:"status"`
		Data   []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, flow.DefaultEvents, resp.Data)
}

func TestEvents_FromConfigFile(t *testing.T) {
	h := newHarness(t)
	cfgPath := filepath.Join(t.TempDir(), "pnmtrack.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("checkin:\n  events: [\"Open House\", \"Bid Night\"]\n"), 0o600))

	out, err := h.run("", "--config", cfgPath, "events")
	require.NoError(t, err)
	assert.Equal(t, "1. Open House\n2. Bid Night\n", out)
}

func TestEvents_BadConfig(t *testing.T) {
	h := newHarness(t)
	cfgPath := filepath.Join(t.TempDir(), "pnmtrack.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("photo:\n  quality: 0\n"), 0o600))

	_, err := h.run("", "--config", cfgPath, "events")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestProxy_ServesAndShutsDown(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "echo": body["action"]})
	}))
	defer upstream.Close()

	t.Setenv(config.EnvScriptURL, upstream.URL)
	t.Setenv(config.EnvGatewayURL, "")

	ready := make(chan string, 1)
	opts := &ProxyOptions{
		RootOptions: &RootOptions{Format: "text"},
		Addr:        "127.0.0.1:0",
		ready:       ready,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	done := make(chan error, 1)
	go func() { done <- runProxy(opts, cmd) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("proxy exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("proxy did not start")
	}

	resp, err := http.Post("http://"+addr+"/api/proxy", "application/json", strings.NewReader(`{"action":"check-in"}`))
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "check-in", body["echo"])

	health, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("proxy did not shut down")
	}
}
