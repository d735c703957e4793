package scripts

import (
	"fmt"
	"slices"
	"sync"
)

// Registry holds the scripts a host can offer, keyed by title.
type Registry struct {
	mu      sync.RWMutex
	scripts map[string]Script
	order   []string
}

func NewRegistry(scripts ...Script) (*Registry, error) {
	r := &Registry{scripts: make(map[string]Script)}
	for _, s := range scripts {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(s Script) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	title := s.Title()
	if _, ok := r.scripts[title]; ok {
		return fmt.Errorf("script %q is already registered", title)
	}
	r.scripts[title] = s
	r.order = append(r.order, title)
	return nil
}

func (r *Registry) Get(title string) (Script, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scripts[title]
	return s, ok
}

// Visible returns the scripts that apply to the given mode, in registration order.
func (r *Registry) Visible(isImg2Img bool) []Script {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Script
	for _, title := range r.order {
		if s := r.scripts[title]; s.Show(isImg2Img) {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) Titles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}
