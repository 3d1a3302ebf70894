package adapter

import (
	"sort"
	"sync"

	taskerr "github.com/silver2dream/agentrun/internal/errors"
)

// maxUnknownNameLen bounds how much of an unrecognized, untrusted engine
// name the registry will echo back in an error message.
const maxUnknownNameLen = 64

// Constructor builds a fresh Adapter instance. The registry calls this once
// per Get so adapters never share mutable state across calls.
type Constructor func() Adapter

// Registry maps an exact-match, case-sensitive engine name to a
// Constructor (C8).
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a named constructor to the registry.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[name] = ctor
}

// Get looks up name exactly (case-sensitive, no trimming) and returns a
// fresh Adapter instance. An unknown name fails with REQUEST_INVALID,
// truncating the untrusted name to maxUnknownNameLen runes.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, taskerr.New(taskerr.RequestInvalid, "unknown engine: "+truncate(name, maxUnknownNameLen))
	}
	return ctor(), nil
}

// Names returns the sorted list of registered engine names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for n := range r.constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// DefaultRegistry registers the two reference adapters: codex and
// claude-code.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Register("codex", func() Adapter { return NewCodexAdapter() })
	reg.Register("claude-code", func() Adapter { return NewClaudeCodeAdapter() })
	return reg
}
