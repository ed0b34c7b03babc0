package store

import (
	"context"
	"sync"

	"github.com/coterie-labs/experiment-console/internal/model"
)

// MemoryTier is the process-local volatile map, the tier of last resort. It
// always exists, so a composed write can never fail everywhere. The original
// ran single-threaded; here the map is mutex-guarded because HTTP handlers
// touch it concurrently. Writes are last-write-wins with no merge logic.
type MemoryTier struct {
	mu   sync.RWMutex
	exps map[string]model.Experiment
}

// NewMemory returns an empty volatile tier.
func NewMemory() *MemoryTier {
	return &MemoryTier{exps: make(map[string]model.Experiment)}
}

func (t *MemoryTier) Name() string { return "memory" }

func (t *MemoryTier) Get(_ context.Context, id string) (*model.Experiment, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	exp, ok := t.exps[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &exp, nil
}

func (t *MemoryTier) GetAll(_ context.Context) ([]model.Experiment, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.Experiment, 0, len(t.exps))
	for _, exp := range t.exps {
		out = append(out, exp)
	}
	return out, nil
}

func (t *MemoryTier) Put(_ context.Context, exp model.Experiment) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.exps[exp.ID] = exp
	return nil
}

func (t *MemoryTier) Delete(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.exps, id)
	return nil
}

// Len reports the number of records held, for tests and diagnostics.
func (t *MemoryTier) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.exps)
}
