package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/berfenger/battracker2mqtt/internal/core/domain"
)

const (
	DIAGNOSTICS_STATUS_OK          = "ok"
	DIAGNOSTICS_STATUS_DEGRADED    = "degraded"
	DIAGNOSTICS_STATUS_UNAVAILABLE = "unavailable"
	DIAGNOSTICS_STATUS_WAITING     = "waiting"

	MAX_ABSOLUTE_CURRENT = 100
)

// Diagnostics inspects the last refreshed entity states. Counter activity
// compares each counter with its value in the refresh before.
func (t *EnergyTracker) Diagnostics() domain.Diagnostics {
	d := domain.Diagnostics{
		Entities:        t.entities,
		Available:       []string{},
		Missing:         []string{},
		Abnormal:        map[string]string{},
		CounterActivity: map[string]bool{},
		ChargeRate:      t.rate.Info(),
		RetryCount:      t.state.RetryCount,
		UpdateCount:     t.state.UpdateCount,
		RolloverCount:   t.state.RolloverCount,
		ScaleFactor:     t.cfg.ScaleFactor,
		LastUpdate:      t.state.LastUpdate,
	}

	for _, be := range t.entities {
		for _, kind := range entityKinds {
			id := be.ByKind(kind)
			if id == "" {
				continue
			}
			raw, found := t.lastStates[id]
			value, ok := parseState(raw)
			if !found || !ok {
				d.Missing = append(d.Missing, id)
				if found && raw != "" {
					d.Abnormal[id] = fmt.Sprintf("non numeric state %q", raw)
				}
				continue
			}
			d.Available = append(d.Available, id)

			switch kind {
			case domain.ENTITY_KIND_DISCHARGE, domain.ENTITY_KIND_CHARGE:
				if value < 0 {
					d.Abnormal[id] = fmt.Sprintf("negative counter %v", value)
				}
				if prev, seen := t.previous[id]; seen {
					d.CounterActivity[id] = value != prev
				}
			case domain.ENTITY_KIND_CURRENT:
				if math.Abs(value) > MAX_ABSOLUTE_CURRENT {
					d.Abnormal[id] = fmt.Sprintf("current out of range %v A", value)
				}
			}
		}
	}
	sort.Strings(d.Available)
	sort.Strings(d.Missing)

	switch {
	case t.state.LastUpdate == nil:
		d.Status = DIAGNOSTICS_STATUS_WAITING
	case len(d.Available) == 0:
		d.Status = DIAGNOSTICS_STATUS_UNAVAILABLE
	case len(d.Missing) > 0 || len(d.Abnormal) > 0:
		d.Status = DIAGNOSTICS_STATUS_DEGRADED
	default:
		d.Status = DIAGNOSTICS_STATUS_OK
	}
	return d
}
