package rating

import (
	"cmp"
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

// Table owns the ratings of a population. Writes are serialized; reads go through
// Get or an immutable Snapshot.
type Table[K cmp.Ordered] struct {
	model *Model

	mu      sync.RWMutex
	ratings map[K]Rating
	updates int
}

// NewTable creates an empty table backed by model.
func NewTable[K cmp.Ordered](model *Model) *Table[K] {
	return &Table[K]{model: model, ratings: make(map[K]Rating)}
}

// Model returns the update rule.
func (t *Table[K]) Model() *Model {
	return t.model
}

// Register seeds id with the prior. Registering twice is a no-op.
func (t *Table[K]) Register(id K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.ratings[id]; !ok {
		t.ratings[id] = t.model.Initial()
	}
}

// Get returns the current rating of id, or the prior if id is unknown.
func (t *Table[K]) Get(id K) Rating {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.ratings[id]; ok {
		return r
	}
	return t.model.Initial()
}

// Updates returns the number of rated outcomes applied so far.
func (t *Table[K]) Updates() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updates
}

// Update rates one outcome between a and b and stores the posteriors.
// A failed update leaves the table untouched.
func (t *Table[K]) Update(a, b K, outcome Outcome) (Rating, Rating, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ra, rb := t.lookup(a), t.lookup(b)
	na, nb, err := t.model.Rate(ra, rb, outcome)
	if err != nil {
		return ra, rb, goerr.Wrap(err, "failed to update ratings", goerr.V("a", a), goerr.V("b", b))
	}
	if na != ra || nb != rb {
		t.updates++
	}
	t.ratings[a] = na
	t.ratings[b] = nb
	return na, nb, nil
}

func (t *Table[K]) lookup(id K) Rating {
	if r, ok := t.ratings[id]; ok {
		return r
	}
	return t.model.Initial()
}

// Snapshot is a frozen copy of a table, safe for concurrent reads.
type Snapshot[K cmp.Ordered] struct {
	ratings map[K]Rating
	prior   Rating
}

// Snapshot copies the current ratings.
func (t *Table[K]) Snapshot() Snapshot[K] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cp := make(map[K]Rating, len(t.ratings))
	for k, v := range t.ratings {
		cp[k] = v
	}
	return Snapshot[K]{ratings: cp, prior: t.model.Initial()}
}

// Get returns the frozen rating of id.
func (s Snapshot[K]) Get(id K) Rating {
	if r, ok := s.ratings[id]; ok {
		return r
	}
	return s.prior
}

// Len returns the number of rated ids.
func (s Snapshot[K]) Len() int {
	return len(s.ratings)
}
