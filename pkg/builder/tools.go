package builder

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// ToolHandler executes one tool call against a project. Handlers return a
// structured result map; they never expose raw store internals.
type ToolHandler func(ctx context.Context, projectID string, params map[string]interface{}) (map[string]interface{}, error)

// Tool is one named operation the model may request.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]interface{}
	Handler     ToolHandler
}

// Registry holds the tools available to a builder run and validates the
// model's parameters against each tool's JSON schema before execution.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Tool
	schemas map[string]*gojsonschema.Schema
	logger  zerolog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		tools:   make(map[string]*Tool),
		schemas: make(map[string]*gojsonschema.Schema),
		logger:  logger,
	}
}

// Register adds a tool, compiling its parameter schema.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s has no handler", tool.Name)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tool.Schema))
	if err != nil {
		return fmt.Errorf("failed to compile schema for tool %s: %w", tool.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool already registered: %s", tool.Name)
	}
	r.tools[tool.Name] = &tool
	r.schemas[tool.Name] = schema
	return nil
}

// Execute runs one tool call. Failures of any sort come back as a
// structured {"error": ...} result so a single bad call never aborts the
// batch it arrived in.
func (r *Registry) Execute(ctx context.Context, name, projectID string, params map[string]interface{}) map[string]interface{} {
	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if !ok {
		return map[string]interface{}{"error": fmt.Sprintf("unknown tool: %s", name)}
	}

	if params == nil {
		params = map[string]interface{}{}
	}

	validation, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return map[string]interface{}{"error": fmt.Sprintf("invalid parameters: %v", err)}
	}
	if !validation.Valid() {
		issues := make([]string, 0, len(validation.Errors()))
		for _, issue := range validation.Errors() {
			issues = append(issues, issue.String())
		}
		return map[string]interface{}{"error": "invalid parameters: " + strings.Join(issues, "; ")}
	}

	result, err := tool.Handler(ctx, projectID, params)
	if err != nil {
		r.logger.Warn().Str("tool", name).Err(err).Msg("Tool execution failed")
		return map[string]interface{}{"error": err.Error()}
	}
	if result == nil {
		result = map[string]interface{}{}
	}
	return result
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe renders the tool list for the system directive.
func (r *Registry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		tool := r.tools[name]
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
	}
	return b.String()
}
