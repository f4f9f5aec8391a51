package vfs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Tree applies the mutation contract on top of a Backend: parent
// validation on create, and recursive delete that removes descendants
// before their folder so no orphaned parent references remain.
type Tree struct {
	backend Backend
	logger  zerolog.Logger
}

// NewTree creates a tree over a backend.
func NewTree(backend Backend, logger zerolog.Logger) *Tree {
	return &Tree{backend: backend, logger: logger}
}

// CreateFolder creates a folder node under parentID (nil for root).
func (t *Tree) CreateFolder(ctx context.Context, projectID, name string, parentID *string) (*Node, error) {
	return t.create(ctx, projectID, name, "", parentID, KindFolder)
}

// CreateFile creates a file node with content under parentID (nil for root).
func (t *Tree) CreateFile(ctx context.Context, projectID, name, content string, parentID *string) (*Node, error) {
	return t.create(ctx, projectID, name, content, parentID, KindFile)
}

func (t *Tree) create(ctx context.Context, projectID, name, content string, parentID *string, kind Kind) (*Node, error) {
	if name == "" {
		return nil, fmt.Errorf("node name cannot be empty")
	}
	if parentID != nil {
		parent, err := t.backend.GetNode(ctx, projectID, *parentID)
		if err != nil {
			return nil, ErrInvalidParent
		}
		if parent.Kind != KindFolder {
			return nil, ErrInvalidParent
		}
	}

	return t.backend.CreateNode(ctx, Node{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		ParentID:  parentID,
		Kind:      kind,
		Name:      name,
		Content:   content,
	})
}

// Get loads one node.
func (t *Tree) Get(ctx context.Context, projectID, id string) (*Node, error) {
	return t.backend.GetNode(ctx, projectID, id)
}

// List returns every node in the project.
func (t *Tree) List(ctx context.Context, projectID string) ([]Node, error) {
	return t.backend.ListProject(ctx, projectID)
}

// ReadFile returns a file node's content.
func (t *Tree) ReadFile(ctx context.Context, projectID, id string) (string, error) {
	node, err := t.backend.GetNode(ctx, projectID, id)
	if err != nil {
		return "", err
	}
	if node.Kind != KindFile {
		return "", ErrNotAFile
	}
	return node.Content, nil
}

// Rename changes a node's name.
func (t *Tree) Rename(ctx context.Context, projectID, id, name string) (*Node, error) {
	if name == "" {
		return nil, fmt.Errorf("node name cannot be empty")
	}
	return t.backend.RenameNode(ctx, projectID, id, name)
}

// UpdateContent replaces a file node's content.
func (t *Tree) UpdateContent(ctx context.Context, projectID, id, content string) (*Node, error) {
	node, err := t.backend.GetNode(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if node.Kind != KindFile {
		return nil, ErrNotAFile
	}
	return t.backend.UpdateContent(ctx, projectID, id, content)
}

// Delete removes a node. Folders are deleted recursively: the project's
// nodes are materialized into a flat id-to-node arena once, the subtree is
// walked depth-first, and descendants are deleted before their folder. A
// cycle in parent references is rejected instead of looping.
func (t *Tree) Delete(ctx context.Context, projectID, id string) error {
	node, err := t.backend.GetNode(ctx, projectID, id)
	if err != nil {
		return err
	}

	if node.Kind == KindFile {
		return t.backend.DeleteNode(ctx, projectID, id)
	}

	all, err := t.backend.ListProject(ctx, projectID)
	if err != nil {
		return err
	}

	children := make(map[string][]string, len(all))
	for _, n := range all {
		if n.ParentID != nil {
			children[*n.ParentID] = append(children[*n.ParentID], n.ID)
		}
	}

	order, err := deleteOrder(id, children, len(all))
	if err != nil {
		return err
	}

	for _, victim := range order {
		if err := t.backend.DeleteNode(ctx, projectID, victim); err != nil {
			return fmt.Errorf("failed to delete node %s: %w", victim, err)
		}
	}

	t.logger.Debug().
		Str("project_id", projectID).
		Str("node_id", id).
		Int("deleted", len(order)).
		Msg("Recursive delete completed")
	return nil
}

// deleteOrder returns the subtree rooted at rootID in leaf-first order.
// maxNodes bounds the walk: visiting more nodes than the project holds
// means the parent pointers form a cycle.
func deleteOrder(rootID string, children map[string][]string, maxNodes int) ([]string, error) {
	var order []string
	visited := make(map[string]bool)

	var walk func(id string) error
	walk = func(id string) error {
		if visited[id] {
			return ErrCycleDetected
		}
		visited[id] = true
		if len(visited) > maxNodes {
			return ErrCycleDetected
		}
		for _, child := range children[id] {
			if err := walk(child); err != nil {
				return err
			}
		}
		order = append(order, id)
		return nil
	}

	if err := walk(rootID); err != nil {
		return nil, err
	}
	return order, nil
}
