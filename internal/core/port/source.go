package port

import (
	"context"

	"github.com/berfenger/battracker2mqtt/internal/core/domain"
)

// SensorReader returns the raw state of entities. Unknown entities are absent
// from the returned map.
type SensorReader interface {
	Open() error
	Close() error
	Read(ctx context.Context, entityIds []string) (map[string]string, error)
}

// SnapshotStore persists the tracker state between restarts. Load returns
// domain.ErrSnapshotNotFound when nothing was saved yet.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot domain.TrackerSnapshot) error
	Load(ctx context.Context) (*domain.TrackerSnapshot, error)
	Close() error
}
