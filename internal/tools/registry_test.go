package tools

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/loom/pkg/models"
)

func echoDef() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "echo",
		Description: "echoes the message argument",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`),
		Execute: func(_ models.ExecContext, args map[string]any) (string, error) {
			msg, _ := args["message"].(string)
			return msg, nil
		},
	}
}

func TestRegistry_RegisterAndInvoke(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoDef()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	result, trace := r.Invoke(models.ExecContext{}, "echo", map[string]any{"message": "hi"}, false)
	if result != "hi" {
		t.Errorf("result = %q, want %q", result, "hi")
	}
	if !trace.OK {
		t.Errorf("trace.OK = false, want true")
	}
	if trace.Name != "echo" {
		t.Errorf("trace.Name = %q, want echo", trace.Name)
	}
}

func TestRegistry_Invoke_UnknownTool(t *testing.T) {
	r := NewRegistry()
	result, trace := r.Invoke(models.ExecContext{}, "missing", nil, false)
	if !strings.HasPrefix(result, "Error") {
		t.Errorf("result = %q, want Error-prefixed", result)
	}
	if trace.OK {
		t.Error("expected trace.OK false for unknown tool")
	}
}

func TestRegistry_Invoke_SchemaViolation(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoDef()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	result, trace := r.Invoke(models.ExecContext{}, "echo", map[string]any{}, false)
	if !strings.HasPrefix(result, "Error") {
		t.Errorf("result = %q, want Error-prefixed for missing required arg", result)
	}
	if trace.OK {
		t.Error("expected trace.OK false for schema violation")
	}
}

func TestRegistry_Invoke_ExecuteErrorBecomesErrorString(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(models.ToolDefinition{
		Name: "boom",
		Execute: func(_ models.ExecContext, _ map[string]any) (string, error) {
			return "", errBoom
		},
	})

	result, trace := r.Invoke(models.ExecContext{}, "boom", nil, false)
	if !strings.HasPrefix(result, "Error") {
		t.Errorf("result = %q, want Error-prefixed", result)
	}
	if trace.OK {
		t.Error("expected trace.OK false")
	}
}

func TestRegistry_Invoke_TrustBoundaryTagging(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoDef())

	result, _ := r.Invoke(models.ExecContext{}, "echo", map[string]any{"message": "hi"}, true)
	if !strings.HasPrefix(result, "[-- BEGIN UNTRUSTED CONTENT: tool:echo --]") {
		t.Errorf("result = %q, want trust-boundary wrapped", result)
	}
	if !strings.HasSuffix(result, "[-- END UNTRUSTED CONTENT --]") {
		t.Errorf("result = %q, want trust-boundary wrapped suffix", result)
	}
}

func TestRegistry_Definitions_SortedByName(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(models.ToolDefinition{Name: "zeta", Execute: noop})
	_ = r.Register(models.ToolDefinition{Name: "alpha", Execute: noop})

	defs := r.Definitions()
	if len(defs) != 2 || defs[0].Name != "alpha" || defs[1].Name != "zeta" {
		t.Errorf("Definitions() = %+v, want [alpha zeta]", defs)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoDef())
	r.Unregister("echo")

	if len(r.Definitions()) != 0 {
		t.Error("expected registry empty after Unregister")
	}
	result, _ := r.Invoke(models.ExecContext{}, "echo", nil, false)
	if !strings.HasPrefix(result, "Error") {
		t.Errorf("result = %q, want Error after unregister", result)
	}
}

func TestRegistry_RegisterTyped_GeneratesSchema(t *testing.T) {
	type searchArgs struct {
		Query string `json:"query" jsonschema:"required"`
	}

	r := NewRegistry()
	err := r.RegisterTyped("search", "searches the web", searchArgs{}, func(_ models.ExecContext, args map[string]any) (string, error) {
		q, _ := args["query"].(string)
		return "results for " + q, nil
	})
	if err != nil {
		t.Fatalf("RegisterTyped() error: %v", err)
	}

	result, trace := r.Invoke(models.ExecContext{}, "search", map[string]any{"query": "go"}, false)
	if result != "results for go" {
		t.Errorf("result = %q, want %q", result, "results for go")
	}
	if !trace.OK {
		t.Error("expected trace.OK true")
	}
}

func noop(_ models.ExecContext, _ map[string]any) (string, error) { return "ok", nil }

var errBoom = boomErr{}

type boomErr struct{}

func (boomErr) Error() string { return "boom" }
