package model

import (
	"context"
	"time"
)

// Classifier wraps the external visual-analysis service.
type Classifier interface {
	// Classify returns the color composition of one encoded image.
	Classify(ctx context.Context, image []byte) ([]RawDetection, error)
}

// ImageStore resolves a surface image reference to the encoded image.
type ImageStore interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// Snapshot is a named, stored copy of an EstimationState.
type Snapshot struct {
	ID        string           `json:"id" db:"id"`
	Name      string           `json:"name" db:"name"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	State     *EstimationState `json:"state,omitempty" db:"-"`
}

// SnapshotStore persists snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot Snapshot) error
	List(ctx context.Context) ([]Snapshot, error)
	Get(ctx context.Context, id string) (Snapshot, error)
}
