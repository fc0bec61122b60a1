package file_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	contract "github.com/aretw0/chatflow/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	clock := contract.NewFakeClock(time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC))
	contract.RunSessionStoreContract(t, func(t *testing.T) ports.SessionStore {
		return file.New(t.TempDir(), file.WithClock(clock))
	})
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store := file.New(dir)

	s := domain.NewSession("s1", "f1", "start", time.Now())
	require.NoError(t, store.Create(ctx, s))
	node := "next"
	for i := 0; i < 5; i++ {
		require.NoError(t, store.UpdateBySessionID(ctx, "s1", domain.SessionPatch{CurrentNodeID: &node}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "s1.json", entries[0].Name())
}

func TestFileStore_RejectsUnsafeIDs(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"", "../escape", `a\b`, "..", "tmp-x"} {
		_, err := store.FindBySessionID(ctx, id)
		assert.Error(t, err, id)
		assert.NotErrorIs(t, err, domain.ErrSessionNotFound, id)
	}
}

func TestFileStore_Retention(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := contract.NewFakeClock(created)
	store := file.New(t.TempDir(), file.WithClock(clock), file.WithRetention(time.Hour))

	require.NoError(t, store.Create(ctx, domain.NewSession("s1", "f1", "start", created)))
	clock.Advance(time.Hour)

	_, err := store.FindBySessionID(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	page, err := store.Query(ctx, domain.SessionQuery{FlowID: "f1"})
	require.NoError(t, err)
	assert.Empty(t, page.Sessions)

	// An expired record does not block reuse of its ID.
	require.NoError(t, store.Create(ctx, domain.NewSession("s1", "f1", "start", clock.Now())))
}

func TestFileStore_QueryMissingDir(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "not-yet"))
	page, err := store.Query(context.Background(), domain.SessionQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Sessions)
	assert.Equal(t, 0, page.Pagination.Total)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(strings.TrimLeft(content, "\n")), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "greeter.yaml", `
name: Greeter
variables:
  - name: age
    type: number
    defaultValue: 30
nodes:
  - id: start
    type: start
  - id: hi
    type: message
    data:
      message: "Hi {age}"
edges:
  - id: e1
    source: start
    target: hi
`)
	writeFile(t, dir, "quiz.json", `{"id":"quiz-v2","name":"Quiz","status":"draft","nodes":[{"id":"start","type":"start"}],"edges":[]}`)
	writeFile(t, dir, "README.md", "not a flow")

	repo, err := file.LoadDir(dir)
	require.NoError(t, err)

	flows := repo.Flows()
	require.Len(t, flows, 2)
	assert.Equal(t, "greeter", flows[0].ID)
	assert.Equal(t, "quiz-v2", flows[1].ID)

	greeter, err := repo.FindByID(context.Background(), "greeter")
	require.NoError(t, err)
	assert.Equal(t, domain.FlowActive, greeter.Status, "status defaults to active")
	assert.Equal(t, float64(30), greeter.Variables[0].DefaultValue, "YAML numbers decode like JSON numbers")
	assert.Equal(t, "Hi {age}", greeter.Nodes[1].Data["message"])

	quiz, err := repo.FindByID(context.Background(), "quiz-v2")
	require.NoError(t, err)
	assert.Equal(t, domain.FlowDraft, quiz.Status)

	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestLoadDir_Errors(t *testing.T) {
	t.Run("Duplicate IDs", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.json", `{"id":"same","nodes":[],"edges":[]}`)
		writeFile(t, dir, "b.yml", "id: same\nnodes: []\nedges: []\n")
		_, err := file.LoadDir(dir)
		assert.ErrorContains(t, err, "duplicate flow id")
	})

	t.Run("Malformed", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "bad.json", `{"nodes": [`)
		_, err := file.LoadDir(dir)
		assert.ErrorContains(t, err, "bad.json")
	})

	t.Run("Missing directory", func(t *testing.T) {
		_, err := file.LoadDir(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})
}
