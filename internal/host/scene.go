package host

import (
	"sync"

	"github.com/vietddude/runguard/internal/core/domain"
)

// Element is a resource handle owned by the scene.
type Element struct {
	Key        string
	Generation int
}

// Scene is the externally owned resource tree the cache looks into.
// Rebuild replaces every element, so handles from an older generation
// must not be used after it.
type Scene struct {
	mu         sync.RWMutex
	keys       []string
	generation int
	elements   map[string]*Element
}

// NewScene builds a scene containing keys.
func NewScene(keys []string) *Scene {
	s := &Scene{keys: append([]string(nil), keys...)}
	s.Rebuild()
	return s
}

// Lookup implements cache.Lookup.
func (s *Scene) Lookup(key string) (domain.Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	el, ok := s.elements[key]
	if !ok {
		return nil, false
	}
	return el, true
}

// Rebuild discards every element and creates a fresh generation.
func (s *Scene) Rebuild() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.elements = make(map[string]*Element, len(s.keys))
	for _, k := range s.keys {
		s.elements[k] = &Element{Key: k, Generation: s.generation}
	}
	return s.generation
}

// Remove drops a single element, as if the host removed it from the tree.
func (s *Scene) Remove(key string) {
	s.mu.Lock()
	delete(s.elements, key)
	s.mu.Unlock()
}

// Generation returns the current scene generation.
func (s *Scene) Generation() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}
