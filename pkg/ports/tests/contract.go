// Package tests provides reusable compliance suites for ports implementations.
package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SessionStoreFactory returns an empty store for one subtest.
type SessionStoreFactory func(t *testing.T) ports.SessionStore

// RunSessionStoreContract verifies that an adapter complies with ports.SessionStore.
func RunSessionStoreContract(t *testing.T, newStore SessionStoreFactory) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	newSession := func(id, flowID, userID string, created time.Time) *domain.Session {
		s := domain.NewSession(id, flowID, "start", created)
		s.UserID = userID
		s.Variables["name"] = "Ada"
		s.Messages = append(s.Messages, domain.ChatMessage{
			ID: id + "-m1", Role: domain.RoleBot, Content: "Hi", Timestamp: created, NodeID: "start",
		})
		return s
	}

	t.Run("CreateAndFind", func(t *testing.T) {
		store := newStore(t)
		s := newSession("s1", "f1", "u1", base)
		require.NoError(t, store.Create(ctx, s))

		got, err := store.FindBySessionID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "f1", got.FlowID)
		assert.Equal(t, "u1", got.UserID)
		assert.Equal(t, domain.SessionActive, got.Status)
		assert.Equal(t, "Ada", got.Variables["name"])
		require.Len(t, got.Messages, 1)
		assert.Equal(t, "Hi", got.Messages[0].Content)
		assert.True(t, got.CreatedAt.Equal(base))
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newSession("dup", "f1", "", base)))
		err := store.Create(ctx, newSession("dup", "f1", "", base))
		assert.ErrorIs(t, err, domain.ErrSessionExists)
	})

	t.Run("FindMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.FindBySessionID(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("ReturnedCopiesAreIsolated", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newSession("iso", "f1", "", base)))

		got, err := store.FindBySessionID(ctx, "iso")
		require.NoError(t, err)
		got.Variables["name"] = "mutated"

		again, err := store.FindBySessionID(ctx, "iso")
		require.NoError(t, err)
		assert.Equal(t, "Ada", again.Variables["name"])
	})

	t.Run("UpdatePatch", func(t *testing.T) {
		store := newStore(t)
		s := newSession("upd", "f1", "", base)
		require.NoError(t, store.Create(ctx, s))

		s.CurrentNodeID = "ask"
		s.WaitingForInput = true
		s.InputNodeID = "ask"
		s.Variables["age"] = float64(30)
		s.Messages = append(s.Messages, domain.ChatMessage{ID: "m2", Role: domain.RoleBot, Content: "Age?"})
		s.UpdatedAt = base.Add(time.Minute)
		require.NoError(t, store.UpdateBySessionID(ctx, "upd", domain.PatchFrom(s)))

		got, err := store.FindBySessionID(ctx, "upd")
		require.NoError(t, err)
		assert.Equal(t, "ask", got.CurrentNodeID)
		assert.True(t, got.WaitingForInput)
		assert.Equal(t, "ask", got.InputNodeID)
		assert.EqualValues(t, 30, got.Variables["age"])
		assert.Len(t, got.Messages, 2)

		s.End(domain.SessionCompleted, base.Add(90*time.Second))
		require.NoError(t, store.UpdateBySessionID(ctx, "upd", domain.PatchFrom(s)))
		got, err = store.FindBySessionID(ctx, "upd")
		require.NoError(t, err)
		assert.Equal(t, domain.SessionCompleted, got.Status)
		assert.False(t, got.WaitingForInput)
		require.NotNil(t, got.EndedAt)
		require.NotNil(t, got.Duration)
		assert.EqualValues(t, 90, *got.Duration)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		store := newStore(t)
		status := domain.SessionCompleted
		err := store.UpdateBySessionID(ctx, "ghost", domain.SessionPatch{Status: &status})
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newSession("del", "f1", "", base)))
		require.NoError(t, store.Delete(ctx, "del"))
		_, err := store.FindBySessionID(ctx, "del")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("QueryByFlowNewestFirst", func(t *testing.T) {
		store := newStore(t)
		for i := 0; i < 5; i++ {
			id := fmt.Sprintf("q%d", i)
			require.NoError(t, store.Create(ctx, newSession(id, "flow-q", "u1", base.Add(time.Duration(i)*time.Minute))))
		}
		require.NoError(t, store.Create(ctx, newSession("other", "flow-x", "u2", base)))

		page, err := store.Query(ctx, domain.SessionQuery{FlowID: "flow-q", Page: 1, Limit: 2})
		require.NoError(t, err)
		require.Len(t, page.Sessions, 2)
		assert.Equal(t, "q4", page.Sessions[0].SessionID)
		assert.Equal(t, "q3", page.Sessions[1].SessionID)
		assert.Nil(t, page.Sessions[0].Messages, "summaries omit the transcript")
		assert.Equal(t, 5, page.Pagination.Total)
		assert.Equal(t, 3, page.Pagination.TotalPages)

		last, err := store.Query(ctx, domain.SessionQuery{FlowID: "flow-q", Page: 3, Limit: 2})
		require.NoError(t, err)
		require.Len(t, last.Sessions, 1)
		assert.Equal(t, "q0", last.Sessions[0].SessionID)

		byUser, err := store.Query(ctx, domain.SessionQuery{UserID: "u2"})
		require.NoError(t, err)
		require.Len(t, byUser.Sessions, 1)
		assert.Equal(t, "other", byUser.Sessions[0].SessionID)
	})
}

// FlowStoreFactory returns an empty flow store for one subtest.
type FlowStoreFactory func(t *testing.T) ports.FlowStore

// RunFlowStoreContract verifies that an adapter complies with ports.FlowStore.
func RunFlowStoreContract(t *testing.T, newStore FlowStoreFactory) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	newFlow := func(id, user, name string, status domain.FlowStatus, updated time.Time) *domain.Flow {
		return &domain.Flow{
			ID: id, UserID: user, Name: name, Status: status, Version: 1,
			Nodes:     []domain.Node{{ID: "start", Type: domain.NodeTypeStart}},
			CreatedAt: updated, UpdatedAt: updated,
		}
	}

	t.Run("InsertFindSave", func(t *testing.T) {
		store := newStore(t)
		f := newFlow("f1", "u1", "Greeter", domain.FlowDraft, base)
		require.NoError(t, store.Insert(ctx, f))

		got, err := store.FindByID(ctx, "f1")
		require.NoError(t, err)
		assert.Equal(t, "Greeter", got.Name)
		require.Len(t, got.Nodes, 1)

		got.Name = "Renamed"
		require.NoError(t, store.Save(ctx, got))
		again, err := store.FindByID(ctx, "f1")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", again.Name)
	})

	t.Run("InsertAssignsID", func(t *testing.T) {
		store := newStore(t)
		f := newFlow("", "u1", "Anon", domain.FlowDraft, base)
		require.NoError(t, store.Insert(ctx, f))
		assert.NotEmpty(t, f.ID)
	})

	t.Run("MissingFlow", func(t *testing.T) {
		store := newStore(t)
		_, err := store.FindByID(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
		assert.ErrorIs(t, store.Save(ctx, newFlow("nope", "u", "x", domain.FlowDraft, base)), domain.ErrFlowNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "nope"), domain.ErrFlowNotFound)
	})

	t.Run("ListFiltersAndPages", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, newFlow("a", "u1", "Alpha support", domain.FlowActive, base)))
		require.NoError(t, store.Insert(ctx, newFlow("b", "u1", "Beta", domain.FlowDraft, base.Add(time.Hour))))
		require.NoError(t, store.Insert(ctx, newFlow("c", "u1", "Gamma support", domain.FlowDraft, base.Add(2*time.Hour))))
		require.NoError(t, store.Insert(ctx, newFlow("d", "u2", "Delta", domain.FlowDraft, base)))

		flows, total, err := store.List(ctx, ports.FlowFilter{UserID: "u1", Page: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, flows, 2)
		assert.Equal(t, "c", flows[0].ID)
		assert.Equal(t, "b", flows[1].ID)

		flows, total, err = store.List(ctx, ports.FlowFilter{UserID: "u1", Search: "SUPPORT"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, flows, 2)

		flows, _, err = store.List(ctx, ports.FlowFilter{UserID: "u1", Status: domain.FlowActive})
		require.NoError(t, err)
		require.Len(t, flows, 1)
		assert.Equal(t, "a", flows[0].ID)
	})

	t.Run("DeactivateAll", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, newFlow("a", "u1", "A", domain.FlowActive, base)))
		require.NoError(t, store.Insert(ctx, newFlow("b", "u1", "B", domain.FlowActive, base)))
		require.NoError(t, store.Insert(ctx, newFlow("c", "u2", "C", domain.FlowActive, base)))

		require.NoError(t, store.DeactivateAll(ctx, "u1", "b"))

		a, _ := store.FindByID(ctx, "a")
		b, _ := store.FindByID(ctx, "b")
		c, _ := store.FindByID(ctx, "c")
		assert.Equal(t, domain.FlowInactive, a.Status)
		assert.Equal(t, domain.FlowActive, b.Status)
		assert.Equal(t, domain.FlowActive, c.Status)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Insert(ctx, newFlow("gone", "u1", "G", domain.FlowDraft, base)))
		require.NoError(t, store.Delete(ctx, "gone"))
		_, err := store.FindByID(ctx, "gone")
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})
}
