package builder

import (
	"context"
	"errors"
	"testing"

	"github.com/avrebarra/lumora/internal/store"
	"github.com/avrebarra/lumora/pkg/vfs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T) *vfs.Tree {
	t.Helper()
	s, err := store.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return vfs.NewTree(s.Nodes(), zerolog.Nop())
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown tool returns a structured error", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())
		result := r.Execute(ctx, "teleport", "p1", nil)
		assert.Contains(t, result["error"], "unknown tool")
	})

	t.Run("schema violations return a structured error", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())
		require.NoError(t, r.Register(Tool{
			Name: "echo",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text": map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"text"},
			},
			Handler: func(ctx context.Context, projectID string, params map[string]interface{}) (map[string]interface{}, error) {
				return map[string]interface{}{"text": params["text"]}, nil
			},
		}))

		result := r.Execute(ctx, "echo", "p1", map[string]interface{}{})
		assert.Contains(t, result["error"], "invalid parameters")

		result = r.Execute(ctx, "echo", "p1", map[string]interface{}{"text": 42})
		assert.Contains(t, result["error"], "invalid parameters")

		result = r.Execute(ctx, "echo", "p1", map[string]interface{}{"text": "hi"})
		assert.Equal(t, "hi", result["text"])
	})

	t.Run("handler failure returns a structured error", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())
		require.NoError(t, r.Register(Tool{
			Name:   "boom",
			Schema: map[string]interface{}{"type": "object"},
			Handler: func(ctx context.Context, projectID string, params map[string]interface{}) (map[string]interface{}, error) {
				return nil, errors.New("storage unavailable")
			},
		}))

		result := r.Execute(ctx, "boom", "p1", nil)
		assert.Equal(t, "storage unavailable", result["error"])
	})

	t.Run("duplicate registration rejected", func(t *testing.T) {
		r := NewRegistry(zerolog.Nop())
		tool := Tool{
			Name:   "once",
			Schema: map[string]interface{}{"type": "object"},
			Handler: func(ctx context.Context, projectID string, params map[string]interface{}) (map[string]interface{}, error) {
				return nil, nil
			},
		}
		require.NoError(t, r.Register(tool))
		assert.Error(t, r.Register(tool))
	})
}

func TestProjectTools(t *testing.T) {
	ctx := context.Background()
	tree := newTestTree(t)
	registry, err := NewProjectRegistry(tree, zerolog.Nop())
	require.NoError(t, err)

	t.Run("registers the full tool set", func(t *testing.T) {
		assert.Equal(t, []string{
			"createFile", "createFolder", "deleteFiles",
			"listFiles", "readFile", "renameFile", "updateFile",
		}, registry.Names())
	})

	t.Run("create, read, update, rename", func(t *testing.T) {
		created := registry.Execute(ctx, "createFolder", "p1", map[string]interface{}{"name": "src"})
		require.NotContains(t, created, "error")
		folderID := created["id"].(string)

		created = registry.Execute(ctx, "createFile", "p1", map[string]interface{}{
			"name": "main.go", "content": "package main", "parentId": folderID,
		})
		require.NotContains(t, created, "error")
		fileID := created["id"].(string)

		read := registry.Execute(ctx, "readFile", "p1", map[string]interface{}{"id": fileID})
		assert.Equal(t, "package main", read["content"])

		updated := registry.Execute(ctx, "updateFile", "p1", map[string]interface{}{
			"id": fileID, "content": "package app",
		})
		assert.Equal(t, true, updated["updated"])

		renamed := registry.Execute(ctx, "renameFile", "p1", map[string]interface{}{
			"id": fileID, "name": "app.go",
		})
		assert.Equal(t, "app.go", renamed["name"])

		listed := registry.Execute(ctx, "listFiles", "p1", nil)
		files := listed["files"].([]map[string]interface{})
		assert.Len(t, files, 2)
	})

	t.Run("invalid parent comes back as a tool error", func(t *testing.T) {
		result := registry.Execute(ctx, "createFile", "p1", map[string]interface{}{
			"name": "a.txt", "content": "", "parentId": "no-such-folder",
		})
		assert.Contains(t, result, "error")
		// Store internals never leak through tool results
		assert.Equal(t, "failed to create file", result["error"])
	})

	t.Run("deleteFiles processes each id independently", func(t *testing.T) {
		created := registry.Execute(ctx, "createFile", "p2", map[string]interface{}{
			"name": "keepalive.txt", "content": "x",
		})
		fileID := created["id"].(string)

		result := registry.Execute(ctx, "deleteFiles", "p2", map[string]interface{}{
			"ids": []interface{}{"ghost", fileID},
		})
		require.NotContains(t, result, "error")

		results := result["results"].([]map[string]interface{})
		require.Len(t, results, 2)
		assert.Contains(t, results[0], "error")
		assert.Equal(t, true, results[1]["deleted"])
	})
}
