package port

import "github.com/berfenger/battracker2mqtt/internal/core/domain"

type EnergyTracker interface {
	EntityIds() []string
	Refresh(states map[string]string) domain.RefreshResult
	Apply(req domain.ServiceRequest) error
	Summary() domain.TrackerSummary
	Diagnostics() domain.Diagnostics
	Snapshot() domain.TrackerSnapshot
	Restore(snapshot domain.TrackerSnapshot)
	EntitiesAvailable() bool
	RetryCount() uint
	IncrementRetry() uint
}
