package resource

import (
	"fmt"
	"path/filepath"
)

// Registry indexes engines by collection name and by backing file.
type Registry struct {
	order  []*Engine
	byName map[string]*Engine
	byFile map[string]*Engine
}

// NewRegistry returns a registry of engines. Names and files must be unique.
func NewRegistry(engines ...*Engine) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]*Engine, len(engines)),
		byFile: make(map[string]*Engine, len(engines)),
	}
	for _, e := range engines {
		if _, dup := r.byName[e.Name()]; dup {
			return nil, fmt.Errorf("resource: duplicate collection %q", e.Name())
		}
		file := filepath.Clean(e.File())
		if _, dup := r.byFile[file]; dup {
			return nil, fmt.Errorf("resource: collection file %q used twice", e.File())
		}
		r.byName[e.Name()] = e
		r.byFile[file] = e
		r.order = append(r.order, e)
	}
	return r, nil
}

// Get returns the engine for a collection name.
func (r *Registry) Get(name string) (*Engine, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// ByFile returns the engine persisted at file (relative to the content root).
func (r *Registry) ByFile(file string) (*Engine, bool) {
	e, ok := r.byFile[filepath.Clean(file)]
	return e, ok
}

// All returns engines in registration order.
func (r *Registry) All() []*Engine {
	out := make([]*Engine, len(r.order))
	copy(out, r.order)
	return out
}

// Files returns every collection file in registration order.
func (r *Registry) Files() []string {
	out := make([]string, len(r.order))
	for i, e := range r.order {
		out[i] = e.File()
	}
	return out
}
