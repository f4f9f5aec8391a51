package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avrebarra/lumora/pkg/vfs"
)

// NodeStore implements vfs.Backend on sqlite.
type NodeStore struct {
	store *Store
}

// Nodes returns the virtual node backend.
func (s *Store) Nodes() *NodeStore {
	return &NodeStore{store: s}
}

// CreateNode inserts a node.
func (ns *NodeStore) CreateNode(ctx context.Context, node vfs.Node) (*vfs.Node, error) {
	node.UpdatedAt = time.Now()
	var parent interface{}
	if node.ParentID != nil {
		parent = *node.ParentID
	}
	_, err := ns.store.db.ExecContext(ctx,
		`INSERT INTO virtual_nodes (id, project_id, parent_id, kind, name, content, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		node.ID, node.ProjectID, parent, string(node.Kind), node.Name, node.Content, node.UpdatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	return &node, nil
}

// GetNode loads a node scoped to its project.
func (ns *NodeStore) GetNode(ctx context.Context, projectID, id string) (*vfs.Node, error) {
	row := ns.store.db.QueryRowContext(ctx,
		`SELECT id, project_id, parent_id, kind, name, content, updated_at
		 FROM virtual_nodes WHERE project_id = ? AND id = ?`, projectID, id)
	return scanNode(row)
}

// ListChildren returns a folder's direct children.
func (ns *NodeStore) ListChildren(ctx context.Context, projectID, parentID string) ([]vfs.Node, error) {
	rows, err := ns.store.db.QueryContext(ctx,
		`SELECT id, project_id, parent_id, kind, name, content, updated_at
		 FROM virtual_nodes WHERE project_id = ? AND parent_id = ? ORDER BY name`, projectID, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

// ListProject returns every node in a project.
func (ns *NodeStore) ListProject(ctx context.Context, projectID string) ([]vfs.Node, error) {
	rows, err := ns.store.db.QueryContext(ctx,
		`SELECT id, project_id, parent_id, kind, name, content, updated_at
		 FROM virtual_nodes WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project nodes: %w", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

// RenameNode changes a node's name.
func (ns *NodeStore) RenameNode(ctx context.Context, projectID, id, name string) (*vfs.Node, error) {
	res, err := ns.store.db.ExecContext(ctx,
		`UPDATE virtual_nodes SET name = ?, updated_at = ? WHERE project_id = ? AND id = ?`,
		name, time.Now().UnixMilli(), projectID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to rename node: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, vfs.ErrNodeNotFound
	}
	return ns.GetNode(ctx, projectID, id)
}

// UpdateContent replaces a node's content.
func (ns *NodeStore) UpdateContent(ctx context.Context, projectID, id, content string) (*vfs.Node, error) {
	res, err := ns.store.db.ExecContext(ctx,
		`UPDATE virtual_nodes SET content = ?, updated_at = ? WHERE project_id = ? AND id = ?`,
		content, time.Now().UnixMilli(), projectID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update node content: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, vfs.ErrNodeNotFound
	}
	return ns.GetNode(ctx, projectID, id)
}

// DeleteNode removes a single node.
func (ns *NodeStore) DeleteNode(ctx context.Context, projectID, id string) error {
	res, err := ns.store.db.ExecContext(ctx,
		`DELETE FROM virtual_nodes WHERE project_id = ? AND id = ?`, projectID, id)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return vfs.ErrNodeNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*vfs.Node, error) {
	var node vfs.Node
	var parent sql.NullString
	var kind string
	var updatedAt int64
	if err := row.Scan(&node.ID, &node.ProjectID, &parent, &kind, &node.Name, &node.Content, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vfs.ErrNodeNotFound
		}
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}
	if parent.Valid {
		node.ParentID = &parent.String
	}
	node.Kind = vfs.Kind(kind)
	node.UpdatedAt = time.UnixMilli(updatedAt)
	return &node, nil
}

func collectNodes(rows *sql.Rows) ([]vfs.Node, error) {
	var nodes []vfs.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, rows.Err()
}
