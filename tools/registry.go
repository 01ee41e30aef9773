// Package tools runs the external bioinformatics programs and keeps the
// catalogue of tools the MCP adapter exposes.
//
// Information Hiding:
// - Catalogue kept in name order so listings need no sorting
// - Lookup by binary search hidden behind Get/Has

package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry is the name-ordered catalogue of MCP tools.
type Registry struct {
	mu      sync.RWMutex
	entries []Tool // sorted by Metadata().Name
}

// NewRegistry creates an empty catalogue.
func NewRegistry() *Registry {
	return &Registry{}
}

// index returns where name is, or would be inserted. Callers hold mu.
func (r *Registry) index(name string) (int, bool) {
	i := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].Metadata().Name >= name
	})
	return i, i < len(r.entries) && r.entries[i].Metadata().Name == name
}

// Register adds tool in name order. Unnamed and duplicate tools are
// rejected.
func (r *Registry) Register(tool Tool) error {
	name := tool.Metadata().Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i, found := r.index(name)
	if found {
		return fmt.Errorf("tool '%s' already registered", name)
	}
	r.entries = append(r.entries, nil)
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = tool
	return nil
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i, found := r.index(name); found {
		return r.entries[i], true
	}
	return nil, false
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	metas := r.List()
	names := make([]string, len(metas))
	for i, meta := range metas {
		names[i] = meta.Name
	}
	return names
}

// List returns every tool's metadata in name order.
func (r *Registry) List() []ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metas := make([]ToolMetadata, len(r.entries))
	for i, tool := range r.entries {
		metas[i] = tool.Metadata()
	}
	return metas
}

// Description renders the catalogue as plain text. The MCP server sends it
// as its initialize instructions.
func (r *Registry) Description() string {
	var b strings.Builder
	for i, meta := range r.List() {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Tool: %s\nDescription: %s\nParameters:", meta.Name, meta.Description)
		for _, p := range meta.Parameters {
			need := "optional"
			if p.Required {
				need = "required"
			}
			fmt.Fprintf(&b, "\n  - %s (%s): %s [%s]", p.Name, p.ParamType, p.Description, need)
		}
	}
	return b.String()
}
