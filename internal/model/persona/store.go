package persona

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a characterId does not match the catalogue.
var ErrNotFound = errors.New("persona not found")

// Store is the read-only persona catalogue.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore keeps the catalogue in memory; it is never mutated after
// construction so it can be shared between requests without locking.
type MemoryStore struct {
	items []Persona
	index map[string]int
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
// Later duplicates of an ID are ignored.
func NewMemoryStore(items []Persona) *MemoryStore {
	s := &MemoryStore{index: make(map[string]int, len(items))}
	for _, item := range items {
		key := normalizeID(item.ID)
		if key == "" {
			continue
		}
		if _, dup := s.index[key]; dup {
			continue
		}
		s.index[key] = len(s.items)
		s.items = append(s.items, item)
	}
	return s
}

// List returns a copy of the catalogue in insertion order.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier, ignoring case and surrounding space.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	i, ok := s.index[normalizeID(id)]
	if !ok {
		return Persona{}, false
	}
	return s.items[i], true
}

// Resolve picks the persona for a request: an inline persona wins, otherwise
// the catalogue entry named by id. A nil result with a nil error means the
// caller supplied neither.
func Resolve(store Store, inline *Persona, id string) (*Persona, error) {
	if !inline.Empty() {
		p := *inline
		p.Name = strings.TrimSpace(p.Name)
		p.Description = strings.TrimSpace(p.Description)
		return &p, nil
	}
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	if store == nil {
		return nil, ErrNotFound
	}
	p, ok := store.FindByID(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
