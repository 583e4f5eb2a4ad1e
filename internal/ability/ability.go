// Package ability holds the process-wide catalog of permission nodes.
//
// Feature modules contribute their abilities at bootstrap; authorization
// decisions only ever test flat id membership, the parent links exist for
// console introspection.
package ability

import "sync"

// Kind classifies a permission node.
type Kind string

const (
	KindModule    Kind = "module"
	KindObject    Kind = "object"
	KindInterface Kind = "interface"
)

// Ability represents a single permission node. IDs are assigned by the
// registering module, not generated.
type Ability struct {
	ID          int64  `json:"id"`
	ParentID    int64  `json:"parent_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ModuleName  string `json:"module_name"`
	ObjectName  string `json:"object_name,omitempty"`
	Kind        Kind   `json:"kind"`
}

// Registry is an append-only catalog of abilities. Modules may register the
// same slice on every boot; duplicates are kept as registered.
type Registry struct {
	mu   sync.RWMutex
	list []Ability
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends abilities to the catalog. It never errors and never
// deduplicates, so registration order across modules does not matter.
func (r *Registry) Register(abilities []Ability) {
	if len(abilities) == 0 {
		return
	}
	r.mu.Lock()
	r.list = append(r.list, abilities...)
	r.mu.Unlock()
}

// List returns a copy of the full catalog.
func (r *Registry) List() []Ability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Ability, len(r.list))
	copy(out, r.list)
	return out
}
