package builder

import (
	"context"
	"fmt"

	"github.com/avrebarra/lumora/pkg/vfs"
	"github.com/rs/zerolog"
)

// NewProjectRegistry registers the virtual-tree tools over a project tree.
func NewProjectRegistry(tree *vfs.Tree, logger zerolog.Logger) (*Registry, error) {
	r := NewRegistry(logger)

	tools := []Tool{
		{
			Name:        "listFiles",
			Description: "List every file and folder in the project with its id, name, kind and parent id.",
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
			Handler: func(ctx context.Context, projectID string, params map[string]interface{}) (map[string]interface{}, error) {
				nodes, err := tree.List(ctx, projectID)
				if err != nil {
					return nil, fmt.Errorf("failed to list files")
				}
				files := make([]map[string]interface{}, 0, len(nodes))
				for _, node := range nodes {
					entry := map[string]interface{}{
						"id":   node.ID,
						"name": node.Name,
						"kind": string(node.Kind),
					}
					if node.ParentID != nil {
						entry["parentId"] = *node.ParentID
					}
					files = append(files, entry)
				}
				return map[string]interface{}{"files": files}, nil
			},
		},
		{
			Name:        "readFile",
			Description: "Read a file's content by id.",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"id"},
			},
			Handler: func(ctx context.Context, projectID string, params map[string]interface{}) (map[string]interface{}, error) {
				id, _ := params["id"].(string)
				content, err := tree.ReadFile(ctx, projectID, id)
				if err != nil {
					return nil, fmt.Errorf("failed to read file")
				}
				return map[string]interface{}{"id": id, "content": content}, nil
			},
		},
		{
			Name:        "createFolder",
			Description: "Create a folder. Optional parentId must be a folder id returned by a previous listFiles or createFolder result.",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name":     map[string]interface{}{"type": "string"},
					"parentId": map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"name"},
			},
			Handler: func(ctx context.Context, projectID string, params map[string]interface{}) (map[string]interface{}, error) {
				name, _ := params["name"].(string)
				node, err := tree.CreateFolder(ctx, projectID, name, optionalID(params, "parentId"))
				if err != nil {
					return nil, fmt.Errorf("failed to create folder")
				}
				return map[string]interface{}{"id": node.ID, "name": node.Name}, nil
			},
		},
		{
			Name:        "createFile",
			Description: "Create a file with content. Optional parentId must be a known folder id.",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name":     map[string]interface{}{"type": "string"},
					"content":  map[string]interface{}{"type": "string"},
					"parentId": map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"name", "content"},
			},
			Handler: func(ctx context.Context, projectID string, params map[string]interface{}) (map[string]interface{}, error) {
				name, _ := params["name"].(string)
				content, _ := params["content"].(string)
				node, err := tree.CreateFile(ctx, projectID, name, content, optionalID(params, "parentId"))
				if err != nil {
					return nil, fmt.Errorf("failed to create file")
				}
				return map[string]interface{}{"id": node.ID, "name": node.Name}, nil
			},
		},
		{
			Name:        "updateFile",
			Description: "Replace a file's content by id.",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id":      map[string]interface{}{"type": "string"},
					"content": map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"id", "content"},
			},
			Handler: func(ctx context.Context, projectID string, params map[string]interface{}) (map[string]interface{}, error) {
				id, _ := params["id"].(string)
				content, _ := params["content"].(string)
				if _, err := tree.UpdateContent(ctx, projectID, id, content); err != nil {
					return nil, fmt.Errorf("failed to update file")
				}
				return map[string]interface{}{"id": id, "updated": true}, nil
			},
		},
		{
			Name:        "renameFile",
			Description: "Rename a file or folder by id.",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id":   map[string]interface{}{"type": "string"},
					"name": map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"id", "name"},
			},
			Handler: func(ctx context.Context, projectID string, params map[string]interface{}) (map[string]interface{}, error) {
				id, _ := params["id"].(string)
				name, _ := params["name"].(string)
				node, err := tree.Rename(ctx, projectID, id, name)
				if err != nil {
					return nil, fmt.Errorf("failed to rename")
				}
				return map[string]interface{}{"id": node.ID, "name": node.Name}, nil
			},
		},
		{
			Name:        "deleteFiles",
			Description: "Delete files or folders by id. Folders are deleted recursively. Each id is processed independently.",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"ids": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"type": "string"},
					},
				},
				"required": []interface{}{"ids"},
			},
			Handler: func(ctx context.Context, projectID string, params map[string]interface{}) (map[string]interface{}, error) {
				rawIDs, _ := params["ids"].([]interface{})
				results := make([]map[string]interface{}, 0, len(rawIDs))
				for _, raw := range rawIDs {
					id, _ := raw.(string)
					if err := tree.Delete(ctx, projectID, id); err != nil {
						results = append(results, map[string]interface{}{"id": id, "error": "failed to delete"})
						continue
					}
					results = append(results, map[string]interface{}{"id": id, "deleted": true})
				}
				return map[string]interface{}{"results": results}, nil
			},
		},
	}

	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func optionalID(params map[string]interface{}, key string) *string {
	if value, ok := params[key].(string); ok && value != "" {
		return &value
	}
	return nil
}
