package core

import (
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type Registration struct {
	Name     string
	Priority int
	Plugin   Plugin
}

// Registry keeps plugins sorted by priority, stable for equal priorities.
// Names are unique; adding a name that exists replaces the old plugin.
type Registry struct {
	mu      sync.RWMutex
	entries []Registration
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers p and returns the name it was stored under. Plugins without
// a name get a generated one.
func (r *Registry) Add(p Plugin) string {
	if p == nil {
		return ""
	}
	name := p.Name()
	if name == "" {
		name = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(name)
	entry := Registration{Name: name, Priority: p.Priority(), Plugin: p}
	i := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].Priority > entry.Priority
	})
	r.entries = append(r.entries, Registration{})
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = entry
	return name
}

func (r *Registry) AddFunc(name string, priority int, fn PluginFunc) string {
	return r.Add(NewPlugin(name, priority, fn))
}

// Remove unregisters p by identity. Plugins whose dynamic type cannot be
// compared with == are matched by name instead.
func (r *Registry) Remove(p Plugin) bool {
	if p == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if samePlugin(e.Plugin, p) {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

func samePlugin(a, b Plugin) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if !ta.Comparable() {
		return a.Name() != "" && a.Name() == b.Name()
	}
	return a == b
}

func (r *Registry) RemoveByName(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(name)
}

func (r *Registry) removeLocked(name string) bool {
	for i, e := range r.entries {
		if e.Name == name {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.Name == name {
			return e.Plugin, true
		}
	}
	return nil, false
}

// Plugins returns a sorted snapshot.
func (r *Registry) Plugins() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
