package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/internal/presentation/tui"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pizzaFlow = `{
  "name": "Pizza",
  "nodes": [
    {"id": "start", "type": "start"},
    {"id": "size", "type": "input", "data": {"message": "Which size?", "inputType": "choice", "variableName": "size", "choices": ["small", "large"], "placeholder": "small or large"}},
    {"id": "done", "type": "end", "data": {"message": "One {size} pizza coming up."}}
  ],
  "edges": [
    {"id": "e1", "source": "start", "target": "size"},
    {"id": "e2", "source": "size", "target": "done"}
  ]
}`

const brokenFlow = `{
  "name": "Broken",
  "nodes": [{"id": "m", "type": "message"}]
}`

func flowsDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	saved := config.DefaultPaths
	config.DefaultPaths = nil
	t.Cleanup(func() { config.DefaultPaths = saved })

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Flows.Dir = flowsDir(t, map[string]string{"pizza.json": pizzaFlow})
	return cfg
}

func chat(t *testing.T, cfg *config.Config, input string) (*domain.Session, string) {
	t.Helper()
	app, err := NewApp(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	var out bytes.Buffer
	s, err := RunChat(context.Background(), app, ChatOptions{
		FlowID:  "pizza",
		UserID:  "tester",
		In:      strings.NewReader(input),
		Printer: tui.NewPrinterWithMode(&out, false, 0),
	})
	require.NoError(t, err)
	return s, out.String()
}

func TestRunChat_Completes(t *testing.T) {
	s, out := chat(t, testConfig(t), "medium\nlarge\n")

	assert.Equal(t, domain.SessionCompleted, s.Status)
	assert.Contains(t, out, "Which size?")
	assert.Contains(t, out, "(small or large) > ")
	assert.Contains(t, out, "One large pizza coming up.")
	assert.Contains(t, out, ">>> Session ended: completed")
}

func TestRunChat_QuitAbandons(t *testing.T) {
	s, out := chat(t, testConfig(t), "/quit\n")
	assert.Equal(t, domain.SessionAbandoned, s.Status)
	assert.Contains(t, out, ">>> Session ended: abandoned")
}

func TestRunChat_EOFAbandons(t *testing.T) {
	s, _ := chat(t, testConfig(t), "")
	assert.Equal(t, domain.SessionAbandoned, s.Status)
}

func TestRunChat_ResetStartsOver(t *testing.T) {
	s, out := chat(t, testConfig(t), "/reset\nsmall\n")
	assert.Equal(t, domain.SessionCompleted, s.Status)
	assert.Equal(t, 2, strings.Count(out, "Which size?"))
	assert.Contains(t, out, ">>> Session reset")
}

func TestRunChat_OversizedInputIsRejected(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.MaxInputSize = 8
	s, out := chat(t, cfg, strings.Repeat("x", 20)+"\nsmall\n")
	assert.Equal(t, domain.SessionCompleted, s.Status)
	assert.Contains(t, out, "input exceeds maximum allowed size")
}

func TestNewApp_Drivers(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.Driver = config.DriverFile
		cfg.Store.File.Dir = t.TempDir()
		s, _ := chat(t, cfg, "small\n")

		_, err := os.Stat(filepath.Join(cfg.Store.File.Dir, s.SessionID+".json"))
		assert.NoError(t, err)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Store.Driver = config.DriverRedis
		cfg.Store.Redis.Addr = mr.Addr()
		s, _ := chat(t, cfg, "large\n")

		assert.True(t, mr.Exists("chatflow:session:"+s.SessionID))
	})

	t.Run("redis encrypted", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Store.Driver = config.DriverRedis
		cfg.Store.Redis.Addr = mr.Addr()
		cfg.Session.EncryptionKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
		s, _ := chat(t, cfg, "large\n")

		assert.Equal(t, domain.SessionCompleted, s.Status)
		raw, err := mr.Get("chatflow:session:" + s.SessionID)
		require.NoError(t, err)
		assert.Contains(t, raw, "__encrypted__")
		assert.NotContains(t, raw, "One large pizza")
	})

	t.Run("redis unreachable", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.Driver = config.DriverRedis
		mr := miniredis.RunT(t)
		cfg.Store.Redis.Addr = mr.Addr()
		mr.Close()

		_, err := NewApp(context.Background(), cfg, logging.NewNop())
		assert.Error(t, err)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.Driver = "mongo"
		_, err := NewApp(context.Background(), cfg, logging.NewNop())
		assert.ErrorContains(t, err, "invalid configuration")
	})

	t.Run("bad flows dir", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Flows.Dir = filepath.Join(t.TempDir(), "missing")
		_, err := NewApp(context.Background(), cfg, logging.NewNop())
		assert.ErrorContains(t, err, "loading flows")
	})
}

func TestValidate(t *testing.T) {
	dir := flowsDir(t, map[string]string{"pizza.json": pizzaFlow, "broken.json": brokenFlow})

	var out bytes.Buffer
	ok, err := Validate(&out, []string{dir}, false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, out.String(), "✅ pizza: valid")
	assert.Contains(t, out.String(), "❌ broken:")
	assert.Contains(t, out.String(), "error   NO_START_NODE")

	out.Reset()
	ok, err = Validate(&out, []string{filepath.Join(dir, "pizza.json")}, true)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Validate(&out, []string{t.TempDir()}, false)
	assert.ErrorContains(t, err, "no flow definitions")
}

func TestGraph(t *testing.T) {
	dir := flowsDir(t, map[string]string{"pizza.json": pizzaFlow})
	path := filepath.Join(dir, "pizza.json")

	var out bytes.Buffer
	require.NoError(t, Graph(&out, path, &domain.Session{SessionID: "s1", FlowID: "pizza", CurrentNodeID: "size"}))
	assert.Contains(t, out.String(), "start --> size")
	assert.Contains(t, out.String(), "class size current;")

	err := Graph(&out, path, &domain.Session{SessionID: "s2", FlowID: "other"})
	assert.ErrorContains(t, err, "belongs to flow other")
}

func TestServe_GracefulShutdown(t *testing.T) {
	cfg := testConfig(t)
	app, err := NewApp(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer app.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, app, ln, logging.NewNop()) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `"status":"ok"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}
