package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// RankBounds is the inclusive range of accepted ranks.
type RankBounds struct {
	Min int
	Max int
}

// DefaultRankBounds accepts ranks 1 through 10000.
var DefaultRankBounds = RankBounds{Min: 1, Max: 10000}

// Registry holds adapter descriptors in registration order. It is filled once at
// startup, then frozen and only read.
type Registry struct {
	mu      sync.RWMutex
	bounds  RankBounds
	entries []Descriptor
	byID    map[string]int
	frozen  bool
}

// NewRegistry creates an empty registry accepting ranks within bounds.
func NewRegistry(bounds RankBounds) *Registry {
	return &Registry{bounds: bounds, byID: make(map[string]int)}
}

// Register adds d. Ids are unique across sources and embeds.
func (r *Registry) Register(d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}
	if d.Rank < r.bounds.Min || d.Rank > r.bounds.Max {
		return &InvalidRankError{ID: d.ID, Rank: d.Rank, Bounds: r.bounds}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registering %s: %w", d.ID, ErrFrozen)
	}
	if _, ok := r.byID[d.ID]; ok {
		return &DuplicateIDError{ID: d.ID}
	}
	r.byID[d.ID] = len(r.entries)
	r.entries = append(r.entries, d)
	return nil
}

// MustRegister registers every descriptor and panics on the first error.
func (r *Registry) MustRegister(ds ...Descriptor) {
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// List returns the descriptors of kind, highest rank first. Equal ranks keep
// registration order. Disabled descriptors are included.
func (r *Registry) List(kind Kind) []Descriptor {
	r.mu.RLock()
	out := lo.Filter(r.entries, func(d Descriptor, _ int) bool { return d.Kind == kind })
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank > out[j].Rank })
	return out
}

// Sources is List(KindSource).
func (r *Registry) Sources() []Descriptor { return r.List(KindSource) }

// Embeds is List(KindEmbed).
func (r *Registry) Embeds() []Descriptor { return r.List(KindEmbed) }

// Get returns the descriptor registered under id.
func (r *Registry) Get(id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byID[id]
	if !ok {
		return Descriptor{}, &UnknownProviderError{ID: id}
	}
	return r.entries[i], nil
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
