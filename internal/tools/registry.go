package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
	jsonschemaval "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/loom/pkg/models"
)

// TrustBoundaryWrap tags a tool's raw output with the boundary markers the
// prompt layer and orchestrator rely on to treat tool output as untrusted
// data rather than instructions.
func TrustBoundaryWrap(toolName, result string) string {
	return fmt.Sprintf("[-- BEGIN UNTRUSTED CONTENT: tool:%s --]\n%s\n[-- END UNTRUSTED CONTENT --]", toolName, result)
}

// Registry maps tool names to their definitions. It is safe for concurrent
// use; the embedded JSON-schema compiler caches one compiled schema per tool
// at registration time so Invoke never recompiles on the hot path.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]models.ToolDefinition
	schemas  map[string]*jsonschemaval.Schema
	compiler *jsonschemaval.Compiler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]models.ToolDefinition),
		schemas:  make(map[string]*jsonschemaval.Schema),
		compiler: jsonschemaval.NewCompiler(),
	}
}

// Register adds or replaces a tool definition. If def.Parameters is empty,
// RegisterTyped should be used instead so a schema is generated; Register
// with an empty schema accepts any argument object.
func (r *Registry) Register(def models.ToolDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(def.Parameters) > 0 {
		schema, err := r.compileSchema(def.Name, def.Parameters)
		if err != nil {
			return fmt.Errorf("tool %s: compile schema: %w", def.Name, err)
		}
		r.schemas[def.Name] = schema
	} else {
		delete(r.schemas, def.Name)
	}

	r.tools[def.Name] = def
	return nil
}

// RegisterTyped generates a JSON-schema from a typed Go struct (via
// github.com/invopop/jsonschema) and registers it as the tool's Parameters,
// for tools that declare arguments as a struct rather than hand-written
// schema JSON.
func (r *Registry) RegisterTyped(name, description string, argShape any, execute func(models.ExecContext, map[string]any) (string, error)) error {
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	schema := reflector.Reflect(argShape)
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("tool %s: generate schema: %w", name, err)
	}
	return r.Register(models.ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  raw,
		Execute:     execute,
	})
}

func (r *Registry) compileSchema(name string, raw json.RawMessage) (*jsonschemaval.Schema, error) {
	resource := "mem://" + name + ".json"
	compiler := jsonschemaval.NewCompiler()
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(resource)
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Definitions returns the catalog shape consumed by the LLM, sorted by name
// for deterministic ordering.
func (r *Registry) Definitions() []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]models.ToolDefinition, 0, len(r.tools))
	for _, def := range r.tools {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Invoke executes the named tool, validating args against its declared
// schema first. Schema violations and unknown tools are surfaced as
// "Error: ..."-prefixed strings rather than a Go error, matching the
// uniform error shape the orchestrator expects from every tool outcome.
func (r *Registry) Invoke(ctx models.ExecContext, name string, args map[string]any, trustTagging bool) (string, models.ToolTrace) {
	r.mu.RLock()
	def, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	argsJSON, _ := json.Marshal(args)
	trace := models.ToolTrace{Name: name, Arguments: string(argsJSON)}

	if !ok {
		result := "Error: unknown tool: " + name
		trace.ResultPreview = preview(result)
		return result, trace
	}

	if schema != nil {
		var decoded any
		if err := json.Unmarshal(argsJSON, &decoded); err == nil {
			if err := schema.Validate(decoded); err != nil {
				result := "Error: invalid arguments for " + name + ": " + err.Error()
				trace.ResultPreview = preview(result)
				return result, trace
			}
		}
	}

	result, err := def.Execute(ctx, args)
	if err != nil {
		result = "Error: " + err.Error()
	}

	trace.OK = !isErrorResult(result)
	trace.ResultPreview = preview(result)

	if trustTagging {
		result = TrustBoundaryWrap(name, result)
	}
	return result, trace
}

func isErrorResult(s string) bool {
	const prefix = "Error"
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func preview(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max]
}
