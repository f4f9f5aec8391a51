package store

import (
	"context"
	"sync"
	"testing"

	"github.com/avrebarra/lumora/pkg/vfs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen(t *testing.T) {
	t.Run("empty path rejected", func(t *testing.T) {
		_, err := Open("", zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("schema is idempotent", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.migrate())
	})
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()

	t.Run("create and load", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.CreateAccount(ctx, "acct-1", 100))

		acc, err := s.GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		assert.Equal(t, int64(100), acc.Balance)
		assert.False(t, acc.Suspended)
	})

	t.Run("unknown account", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.GetAccount(ctx, "ghost")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.CreateAccount(ctx, "acct-1", 100))
		assert.Error(t, s.CreateAccount(ctx, "acct-1", 50))
	})

	t.Run("suspend and resume", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.CreateAccount(ctx, "acct-1", 100))

		require.NoError(t, s.SetSuspended(ctx, "acct-1", true))
		acc, err := s.GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		assert.True(t, acc.Suspended)

		require.NoError(t, s.SetSuspended(ctx, "acct-1", false))
		acc, err = s.GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		assert.False(t, acc.Suspended)

		assert.ErrorIs(t, s.SetSuspended(ctx, "ghost", true), ErrAccountNotFound)
	})
}

func TestDebit(t *testing.T) {
	ctx := context.Background()

	t.Run("decrements balance", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.CreateAccount(ctx, "acct-1", 10))

		require.NoError(t, s.Debit(ctx, "acct-1", 2))
		acc, err := s.GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		assert.Equal(t, int64(8), acc.Balance)
	})

	t.Run("exact balance can be spent", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.CreateAccount(ctx, "acct-1", 5))

		require.NoError(t, s.Debit(ctx, "acct-1", 5))
		acc, err := s.GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		assert.Zero(t, acc.Balance)
	})

	t.Run("insufficient balance leaves the account untouched", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.CreateAccount(ctx, "acct-1", 3))

		assert.ErrorIs(t, s.Debit(ctx, "acct-1", 5), ErrInsufficientFunds)
		acc, err := s.GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), acc.Balance)
	})

	t.Run("suspension reported before insufficient balance", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.CreateAccount(ctx, "acct-1", 0))
		require.NoError(t, s.SetSuspended(ctx, "acct-1", true))

		assert.ErrorIs(t, s.Debit(ctx, "acct-1", 2), ErrAccountSuspended)
	})

	t.Run("unknown account", func(t *testing.T) {
		s := newTestStore(t)
		assert.ErrorIs(t, s.Debit(ctx, "ghost", 2), ErrAccountNotFound)
	})

	t.Run("concurrent debits never overspend", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.CreateAccount(ctx, "acct-1", 10))

		// 20 workers race for 5 debits' worth of balance
		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.Debit(ctx, "acct-1", 2); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 5, succeeded)
		acc, err := s.GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		assert.Zero(t, acc.Balance)
	})
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateAccount(ctx, "acct-1", 10))
	require.NoError(t, s.Debit(ctx, "acct-1", 5))

	require.NoError(t, s.Refund(ctx, "acct-1", 5))
	acc, err := s.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), acc.Balance)

	assert.ErrorIs(t, s.Refund(ctx, "ghost", 5), ErrAccountNotFound)
}

func TestUsage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateAccount(ctx, "acct-1", 100))

	first, err := s.AppendUsage(ctx, UsageRecord{
		AccountID: "acct-1",
		Cost:      2,
		Reason:    "chat",
		Metadata:  map[string]interface{}{"model_id": "beta"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	_, err = s.AppendUsage(ctx, UsageRecord{AccountID: "acct-1", Cost: 5, Reason: "image"})
	require.NoError(t, err)

	records, err := s.ListUsage(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "acct-1", records[0].AccountID)

	chat := records[0]
	if chat.Reason != "chat" {
		chat = records[1]
	}
	assert.Equal(t, int64(2), chat.Cost)
	assert.Equal(t, "beta", chat.Metadata["model_id"])

	records, err = s.ListUsage(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNodes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	nodes := s.Nodes()

	folder, err := nodes.CreateNode(ctx, vfs.Node{
		ID: "f1", ProjectID: "p1", Kind: vfs.KindFolder, Name: "src",
	})
	require.NoError(t, err)

	file, err := nodes.CreateNode(ctx, vfs.Node{
		ID: "n1", ProjectID: "p1", ParentID: &folder.ID, Kind: vfs.KindFile, Name: "main.go", Content: "package main",
	})
	require.NoError(t, err)

	t.Run("get round trip", func(t *testing.T) {
		got, err := nodes.GetNode(ctx, "p1", file.ID)
		require.NoError(t, err)
		assert.Equal(t, "main.go", got.Name)
		assert.Equal(t, "package main", got.Content)
		require.NotNil(t, got.ParentID)
		assert.Equal(t, "f1", *got.ParentID)
	})

	t.Run("project scoping", func(t *testing.T) {
		_, err := nodes.GetNode(ctx, "p2", file.ID)
		assert.ErrorIs(t, err, vfs.ErrNodeNotFound)
	})

	t.Run("list children", func(t *testing.T) {
		children, err := nodes.ListChildren(ctx, "p1", "f1")
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, "n1", children[0].ID)
	})

	t.Run("list project", func(t *testing.T) {
		all, err := nodes.ListProject(ctx, "p1")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("rename", func(t *testing.T) {
		renamed, err := nodes.RenameNode(ctx, "p1", "n1", "app.go")
		require.NoError(t, err)
		assert.Equal(t, "app.go", renamed.Name)

		_, err = nodes.RenameNode(ctx, "p1", "ghost", "x")
		assert.ErrorIs(t, err, vfs.ErrNodeNotFound)
	})

	t.Run("update content", func(t *testing.T) {
		updated, err := nodes.UpdateContent(ctx, "p1", "n1", "package app")
		require.NoError(t, err)
		assert.Equal(t, "package app", updated.Content)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, nodes.DeleteNode(ctx, "p1", "n1"))
		assert.ErrorIs(t, nodes.DeleteNode(ctx, "p1", "n1"), vfs.ErrNodeNotFound)
	})
}

func TestConversations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t.Run("empty id generates one", func(t *testing.T) {
		conv, err := s.EnsureConversation(ctx, "", "p1")
		require.NoError(t, err)
		assert.NotEmpty(t, conv.ID)
		assert.Equal(t, "p1", conv.ProjectID)
	})

	t.Run("existing id is returned as is", func(t *testing.T) {
		created, err := s.EnsureConversation(ctx, "conv-1", "p1")
		require.NoError(t, err)

		again, err := s.EnsureConversation(ctx, "conv-1", "ignored")
		require.NoError(t, err)
		assert.Equal(t, created.ID, again.ID)
		assert.Equal(t, "p1", again.ProjectID)
	})

	t.Run("messages keep append order", func(t *testing.T) {
		conv, err := s.EnsureConversation(ctx, "", "")
		require.NoError(t, err)

		_, err = s.AppendMessage(ctx, conv.ID, "user", "hello")
		require.NoError(t, err)
		_, err = s.AppendMessage(ctx, conv.ID, "assistant", "hi there")
		require.NoError(t, err)

		messages, err := s.ListMessages(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, "user", messages[0].Role)
		assert.Equal(t, "hello", messages[0].Content)
		assert.Equal(t, "assistant", messages[1].Role)
	})
}
