package flows_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/chatflow/internal/validator"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flows"
	"github.com/aretw0/chatflow/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*flows.Service, *tests.FakeClock) {
	t.Helper()
	clock := tests.NewFakeClock(epoch)
	return flows.NewService(memory.NewFlowStore(), memory.NewVersionStore(), flows.WithClock(clock)), clock
}

func validGraph() ([]domain.Node, []domain.Edge) {
	return []domain.Node{
			{ID: "start", Type: domain.NodeTypeStart},
			{ID: "hello", Type: domain.NodeTypeMessage, Data: map[string]any{"message": "Hello"}},
			{ID: "end", Type: domain.NodeTypeEnd},
		}, []domain.Edge{
			{ID: "e1", Source: "start", Target: "hello"},
			{ID: "e2", Source: "hello", Target: "end"},
		}
}

func createValid(t *testing.T, svc *flows.Service, user, name string) *domain.Flow {
	t.Helper()
	nodes, edges := validGraph()
	f, err := svc.Create(context.Background(), user, flows.CreateInput{Name: name, Nodes: nodes, Edges: edges, Tags: []string{"demo"}})
	require.NoError(t, err)
	return f
}

func TestService_CreateDefaults(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	empty, err := svc.Create(ctx, "u1", flows.CreateInput{Name: "Empty"})
	require.NoError(t, err)
	assert.NotEmpty(t, empty.ID)
	assert.Equal(t, domain.FlowDraft, empty.Status)
	assert.Equal(t, 1, empty.Version)
	assert.Equal(t, domain.FlowStats{}, empty.Stats)
	assert.Equal(t, 1.0, empty.Viewport.Zoom)

	versions, err := svc.ListVersions(ctx, "u1", empty.ID)
	require.NoError(t, err)
	assert.Empty(t, versions, "no initial version without nodes")

	full := createValid(t, svc, "u1", "Full")
	versions, err = svc.ListVersions(ctx, "u1", full.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "Initial version", versions[0].ChangeDescription)
	assert.Equal(t, domain.ChangeAuto, versions[0].ChangeType)
}

func TestService_Ownership(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	f := createValid(t, svc, "owner", "Mine")

	_, err := svc.Get(ctx, "intruder", f.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.Get(ctx, "owner", "missing")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "intruder", f.ID), domain.ErrForbidden)
}

func TestService_UpdateValidationGate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	f := createValid(t, svc, "u1", "Gate")

	name := "Renamed"
	updated, err := svc.Update(ctx, "u1", f.ID, flows.UpdateInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, 2, updated.Version)

	_, err = svc.Update(ctx, "u1", f.ID, flows.UpdateInput{Nodes: []domain.Node{{ID: "lonely", Type: domain.NodeTypeMessage}}})
	var vErr *flows.ValidationFailedError
	require.ErrorAs(t, err, &vErr)
	assert.False(t, vErr.Result.IsValid)
	assert.True(t, vErr.Result.HasError(validator.CodeNoStartNode))

	stored, err := svc.Get(ctx, "u1", f.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Nodes, 3, "rejected update leaves the flow untouched")
	assert.Equal(t, 2, stored.Version)
}

func TestService_ActivateSingleActive(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	a := createValid(t, svc, "u1", "A")
	b := createValid(t, svc, "u1", "B")
	other := createValid(t, svc, "u2", "Other")

	_, err := svc.Activate(ctx, "u2", other.ID)
	require.NoError(t, err)
	_, err = svc.Activate(ctx, "u1", a.ID)
	require.NoError(t, err)
	_, err = svc.Activate(ctx, "u1", b.ID)
	require.NoError(t, err)

	got, _ := svc.Get(ctx, "u1", a.ID)
	assert.Equal(t, domain.FlowInactive, got.Status)
	got, _ = svc.Get(ctx, "u1", b.ID)
	assert.Equal(t, domain.FlowActive, got.Status)
	got, _ = svc.Get(ctx, "u2", other.ID)
	assert.Equal(t, domain.FlowActive, got.Status, "other users keep their active flow")

	_, err = svc.Deactivate(ctx, "u1", a.ID)
	assert.ErrorIs(t, err, domain.ErrFlowNotActive)
	got, err = svc.Deactivate(ctx, "u1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowInactive, got.Status)
}

func TestService_ActivateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	f, err := svc.Create(ctx, "u1", flows.CreateInput{Name: "Broken", Nodes: []domain.Node{{ID: "m", Type: domain.NodeTypeMessage}}})
	require.NoError(t, err)

	_, err = svc.Activate(ctx, "u1", f.ID)
	var vErr *flows.ValidationFailedError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Cannot activate flow with validation errors", vErr.Message)
}

func TestService_UpdateStatusIsGated(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	a := createValid(t, svc, "u1", "A")
	_, err := svc.Activate(ctx, "u1", a.ID)
	require.NoError(t, err)

	broken, err := svc.Create(ctx, "u1", flows.CreateInput{Name: "Broken", Nodes: []domain.Node{{ID: "m", Type: domain.NodeTypeMessage}}})
	require.NoError(t, err)

	active := domain.FlowActive
	_, err = svc.Update(ctx, "u1", broken.ID, flows.UpdateInput{Status: &active})
	var vErr *flows.ValidationFailedError
	require.ErrorAs(t, err, &vErr)
	assert.True(t, vErr.Result.HasError(validator.CodeNoStartNode))

	got, _ := svc.Get(ctx, "u1", broken.ID)
	assert.Equal(t, domain.FlowDraft, got.Status)
	got, _ = svc.Get(ctx, "u1", a.ID)
	assert.Equal(t, domain.FlowActive, got.Status)

	c := createValid(t, svc, "u1", "C")
	updated, err := svc.Update(ctx, "u1", c.ID, flows.UpdateInput{Status: &active})
	require.NoError(t, err)
	assert.Equal(t, domain.FlowActive, updated.Status)
	got, _ = svc.Get(ctx, "u1", a.ID)
	assert.Equal(t, domain.FlowInactive, got.Status, "activating through update keeps a single active flow")

	inactive := domain.FlowInactive
	updated, err = svc.Update(ctx, "u1", c.ID, flows.UpdateInput{Status: &inactive})
	require.NoError(t, err)
	assert.Equal(t, domain.FlowInactive, updated.Status)

	bogus := domain.FlowStatus("live")
	_, err = svc.Update(ctx, "u1", c.ID, flows.UpdateInput{Status: &bogus})
	assert.ErrorIs(t, err, flows.ErrInvalidStatus)
}

func TestService_RestoreActiveIsGated(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	f, err := svc.Create(ctx, "u1", flows.CreateInput{Name: "Draft", Nodes: []domain.Node{{ID: "m", Type: domain.NodeTypeMessage}}})
	require.NoError(t, err)

	nodes, edges := validGraph()
	_, err = svc.Update(ctx, "u1", f.ID, flows.UpdateInput{Nodes: nodes, Edges: edges})
	require.NoError(t, err)
	_, err = svc.Activate(ctx, "u1", f.ID)
	require.NoError(t, err)
	before, err := svc.ListVersions(ctx, "u1", f.ID)
	require.NoError(t, err)

	_, err = svc.RestoreVersion(ctx, "u1", f.ID, 1)
	var vErr *flows.ValidationFailedError
	require.ErrorAs(t, err, &vErr)

	got, _ := svc.Get(ctx, "u1", f.ID)
	assert.Equal(t, domain.FlowActive, got.Status)
	assert.Len(t, got.Nodes, 3)
	after, err := svc.ListVersions(ctx, "u1", f.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(before), "a rejected restore takes no snapshots")

	_, err = svc.Deactivate(ctx, "u1", f.ID)
	require.NoError(t, err)
	restored, err := svc.RestoreVersion(ctx, "u1", f.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowInactive, restored.Status)
	assert.Len(t, restored.Nodes, 1)
}

func TestService_DuplicateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	f := createValid(t, svc, "u1", "Source")
	_, err := svc.Activate(ctx, "u1", f.ID)
	require.NoError(t, err)

	dup, err := svc.Duplicate(ctx, "u1", f.ID, "Copy", "")
	require.NoError(t, err)
	assert.NotEqual(t, f.ID, dup.ID)
	assert.Equal(t, domain.FlowDraft, dup.Status)
	assert.Equal(t, "Copy", dup.Name)
	assert.Len(t, dup.Nodes, 3)

	versions, err := svc.ListVersions(ctx, "u1", dup.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "Duplicated from Source", versions[0].ChangeDescription)

	require.NoError(t, svc.Delete(ctx, "u1", f.ID))
	_, err = svc.Get(ctx, "u1", f.ID)
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestService_Versions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	f := createValid(t, svc, "u1", "Original")

	v2, err := svc.CreateVersion(ctx, "u1", f.ID, "checkpoint", "")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)
	assert.Equal(t, domain.ChangeManual, v2.ChangeType)
	assert.Positive(t, v2.FileSize)

	name := "Changed"
	_, err = svc.Update(ctx, "u1", f.ID, flows.UpdateInput{Name: &name})
	require.NoError(t, err)

	restored, err := svc.RestoreVersion(ctx, "u1", f.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Original", restored.Name)

	versions, err := svc.ListVersions(ctx, "u1", f.ID)
	require.NoError(t, err)
	require.Len(t, versions, 4)
	assert.Equal(t, []int{4, 3, 2, 1}, []int{versions[0].VersionNumber, versions[1].VersionNumber, versions[2].VersionNumber, versions[3].VersionNumber})
	assert.Equal(t, "Restored to version 1", versions[0].ChangeDescription)
	assert.Equal(t, "Before restoring to version 1", versions[1].ChangeDescription)
	assert.Empty(t, versions[0].Snapshot.Nodes, "list omits snapshots")

	before, err := svc.GetVersion(ctx, "u1", f.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, "Changed", before.Snapshot.Name)

	_, err = svc.GetVersion(ctx, "u1", f.ID, 99)
	assert.ErrorIs(t, err, domain.ErrVersionNotFound)
}

func TestService_ExportImport(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	f := createValid(t, svc, "u1", "Portable")

	doc, err := svc.Export(ctx, "u1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, flows.ExportFormatVersion, doc.Version)
	assert.Equal(t, epoch, doc.ExportedAt)

	imported, err := svc.Import(ctx, "u2", doc, "")
	require.NoError(t, err)
	assert.Equal(t, "Portable", imported.Name)
	assert.Equal(t, "u2", imported.UserID)
	assert.Equal(t, domain.FlowDraft, imported.Status)

	renamed, err := svc.Import(ctx, "u2", doc, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Name)

	versions, err := svc.ListVersions(ctx, "u2", imported.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "Imported from JSON", versions[0].ChangeDescription)

	_, err = svc.Import(ctx, "u2", &flows.Document{Version: "1.0"}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidImport)

	bad := &flows.Document{Flow: &domain.FlowSnapshot{Nodes: []domain.Node{{ID: "x", Type: domain.NodeTypeMessage}}}}
	_, err = svc.Import(ctx, "u2", bad, "")
	var vErr *flows.ValidationFailedError
	assert.ErrorAs(t, err, &vErr)
}

func TestService_ListAndStats(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t)

	for _, name := range []string{"Alpha", "Beta", "Gamma"} {
		createValid(t, svc, "u1", name)
		clock.Advance(time.Minute)
	}
	_, err := svc.Create(ctx, "u1", flows.CreateInput{Name: "Support desk", Description: "ALPHA helpers", Tags: []string{"support", "demo"}})
	require.NoError(t, err)

	page, err := svc.List(ctx, "u1", flows.ListQuery{Search: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Pagination.Total)
	for _, f := range page.Flows {
		assert.Nil(t, f.Nodes)
	}

	page, err = svc.List(ctx, "u1", flows.ListQuery{Limit: 2, SortBy: "name", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, page.Flows, 2)
	assert.Equal(t, "Alpha", page.Flows[0].Name)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	stats, err := svc.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalFlows)
	assert.Equal(t, 4, stats.DraftFlows)
	require.NotEmpty(t, stats.PopularTags)
	assert.Equal(t, flows.TagCount{Tag: "demo", Count: 4}, stats.PopularTags[0])
	require.Len(t, stats.RecentFlows, 4)
	assert.Equal(t, "Support desk", stats.RecentFlows[0].Name)
}

func TestService_StatsRecorder(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	f := createValid(t, svc, "u1", "Counted")
	sink := svc.StatsRecorder()

	sink.Emit(ctx, domain.Event{Type: domain.EventSessionEnded, FlowID: f.ID, Status: domain.SessionCompleted, Duration: 10})
	sink.Emit(ctx, domain.Event{Type: domain.EventSessionEnded, FlowID: f.ID, Status: domain.SessionError, Duration: 20})
	sink.Emit(ctx, domain.Event{Type: domain.EventSessionEnded, FlowID: f.ID, Status: domain.SessionAbandoned, Duration: 99})
	sink.Emit(ctx, domain.Event{Type: domain.EventBotMessage, FlowID: f.ID})
	sink.Emit(ctx, domain.Event{Type: domain.EventSessionEnded, FlowID: "gone", Status: domain.SessionCompleted})

	got, err := svc.Get(ctx, "u1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stats.TotalRuns)
	assert.Equal(t, 1, got.Stats.SuccessfulRuns)
	assert.Equal(t, 1, got.Stats.FailedRuns)
	assert.InDelta(t, 15.0, got.Stats.AverageCompletionTime, 1e-9)
	require.NotNil(t, got.Stats.LastRunAt)
	assert.Equal(t, epoch, *got.Stats.LastRunAt)
}
