package game

import (
	"fmt"
	"sync"
)

// Registry manages engine registration and lookup by game tag. Adding a
// game to the platform only requires implementing Engine and
// registering it here.
type Registry struct {
	engines map[string]Engine
	mu      sync.RWMutex
}

// NewRegistry creates a new engine registry.
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]Engine),
	}
}

// Register adds an engine to the registry.
// If an engine with the same game tag already exists, it is replaced.
func (r *Registry) Register(e Engine) error {
	if e == nil {
		return fmt.Errorf("cannot register nil engine")
	}
	if e.Game() == "" {
		return fmt.Errorf("engine game tag cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Game()] = e
	return nil
}

// Get retrieves an engine by game tag.
func (r *Registry) Get(game string) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[game]
	return e, ok
}

// Games returns all registered game tags.
func (r *Registry) Games() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	games := make([]string, 0, len(r.engines))
	for tag := range r.engines {
		games = append(games, tag)
	}
	return games
}

// Count returns the number of registered engines.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}
