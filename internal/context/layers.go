package context

import (
	"sort"
	"strings"
	"sync"
)

// PromptLayer is one pluggable, priority-ordered section of the system
// prompt. Render returns the rendered text and whether it has content;
// layers with nothing to say (ok=false) are dropped from RenderAll rather
// than contributing an empty section.
type PromptLayer struct {
	Name     string
	Priority int
	Render   func() (string, bool)
}

// Built-in layer priorities. Lower runs earlier. Ordering is a contract other
// components (context builder, tests) depend on.
const (
	PrioritySecurityPreamble = 50
	PriorityIdentity         = 100
	PriorityBootstrap        = 200
	PriorityMemory           = 300
	PriorityAlwaysSkills     = 400
	PrioritySkillsSummary    = 500
)

// LayerRegistry holds the set of active prompt layers.
type LayerRegistry struct {
	mu     sync.RWMutex
	layers map[string]PromptLayer
	off    map[string]bool
}

// NewLayerRegistry returns an empty LayerRegistry.
func NewLayerRegistry() *LayerRegistry {
	return &LayerRegistry{
		layers: make(map[string]PromptLayer),
		off:    make(map[string]bool),
	}
}

// Register adds or overwrites a layer by name.
func (r *LayerRegistry) Register(layer PromptLayer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers[layer.Name] = layer
}

// Unregister removes a layer by name.
func (r *LayerRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.layers, name)
	delete(r.off, name)
}

// Enable toggles whether a registered layer participates in RenderAll.
// Layers are enabled by default; Enable(name, false) suppresses one without
// unregistering it.
func (r *LayerRegistry) Enable(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.off[name] = !enabled
}

// RenderAll sorts enabled layers by ascending priority, drops empty renders,
// and joins the rest with "\n\n---\n\n".
func (r *LayerRegistry) RenderAll() string {
	r.mu.RLock()
	layers := make([]PromptLayer, 0, len(r.layers))
	for name, l := range r.layers {
		if r.off[name] {
			continue
		}
		layers = append(layers, l)
	}
	r.mu.RUnlock()

	sort.Slice(layers, func(i, j int) bool { return layers[i].Priority < layers[j].Priority })

	var sections []string
	for _, l := range layers {
		text, ok := l.Render()
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		sections = append(sections, text)
	}
	return strings.Join(sections, "\n\n---\n\n")
}
