// Package vfs defines the virtual file tree the builder agent mutates:
// hierarchical folder/file nodes scoped to one project, with a mutation
// contract that keeps parent/child identity consistent.
package vfs

import (
	"context"
	"errors"
	"time"
)

// Kind discriminates folders from files.
type Kind string

const (
	KindFolder Kind = "folder"
	KindFile   Kind = "file"
)

// Node is one entry in a project's virtual tree. A nil ParentID means the
// node sits at the project root.
type Node struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	Content   string    `json:"content,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Structural errors of the mutation contract.
var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrInvalidParent = errors.New("parent must be an existing folder in the same project")
	ErrNotAFile      = errors.New("node is not a file")
	ErrCycleDetected = errors.New("cycle detected in virtual tree")
)

// Backend is the persistence half of the tree. Each call is atomic on its
// own; the Tree's traversal logic composes them.
type Backend interface {
	CreateNode(ctx context.Context, node Node) (*Node, error)
	GetNode(ctx context.Context, projectID, id string) (*Node, error)
	ListChildren(ctx context.Context, projectID, parentID string) ([]Node, error)
	ListProject(ctx context.Context, projectID string) ([]Node, error)
	RenameNode(ctx context.Context, projectID, id, name string) (*Node, error)
	UpdateContent(ctx context.Context, projectID, id, content string) (*Node, error)
	DeleteNode(ctx context.Context, projectID, id string) error
}
