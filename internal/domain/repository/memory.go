package repository

import (
	"context"
	"fmt"
	"mural_service/internal/domain/model"
	"sort"
	"sync"
)

// MemorySnapshotRepository keeps snapshots in process memory. It is used when no
// database is configured.
type MemorySnapshotRepository struct {
	mu        sync.RWMutex
	snapshots map[string]model.Snapshot
}

func NewMemorySnapshotRepository() *MemorySnapshotRepository {
	return &MemorySnapshotRepository{snapshots: make(map[string]model.Snapshot)}
}

func (r *MemorySnapshotRepository) Save(ctx context.Context, snapshot model.Snapshot) error {
	if snapshot.State != nil {
		snapshot.State = snapshot.State.Clone()
	}
	r.mu.Lock()
	r.snapshots[snapshot.ID] = snapshot
	r.mu.Unlock()
	return nil
}

func (r *MemorySnapshotRepository) List(ctx context.Context) ([]model.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Snapshot, 0, len(r.snapshots))
	for _, s := range r.snapshots {
		out = append(out, model.Snapshot{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *MemorySnapshotRepository) Get(ctx context.Context, id string) (model.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.snapshots[id]
	if !ok {
		return model.Snapshot{}, fmt.Errorf("%w: %s", model.ErrSnapshotNotFound, id)
	}
	if s.State != nil {
		s.State = s.State.Clone()
	}
	return s, nil
}
