package service

import (
	"sort"
	"strconv"
	"strings"

	"github.com/berfenger/battracker2mqtt/internal/config"
	"github.com/berfenger/battracker2mqtt/internal/core/domain"
)

var DefaultEntityPatterns = map[string]string{
	domain.ENTITY_KIND_DISCHARGE: "sensor.pylontech_battery_{}_total_discharge_2",
	domain.ENTITY_KIND_CHARGE:    "sensor.pylontech_battery_{}_total_discharge",
	domain.ENTITY_KIND_CURRENT:   "sensor.pylontech_battery_{}_current",
	domain.ENTITY_KIND_VOLTAGE:   "sensor.pylontech_battery_{}_pack_voltage",
}

var entityKinds = []string{
	domain.ENTITY_KIND_DISCHARGE,
	domain.ENTITY_KIND_CHARGE,
	domain.ENTITY_KIND_CURRENT,
	domain.ENTITY_KIND_VOLTAGE,
}

// DetectEntities resolves the source entities of every battery. A manual list
// for a kind replaces pattern detection for that kind entirely.
func DetectEntities(cfg config.TrackerConfig) []domain.BatteryEntities {
	patterns := make(map[string]string, len(DefaultEntityPatterns))
	for kind, pattern := range DefaultEntityPatterns {
		patterns[kind] = pattern
	}
	for kind, pattern := range cfg.EntityPatterns {
		patterns[strings.ToLower(kind)] = pattern
	}

	entities := make([]domain.BatteryEntities, 0, cfg.BatteryCount)
	for n := 1; n <= int(cfg.BatteryCount); n++ {
		be := domain.BatteryEntities{Battery: n}
		for _, kind := range entityKinds {
			var entityId string
			if manual, ok := cfg.ManualEntities[kind]; ok && len(manual) > 0 {
				if n <= len(manual) {
					entityId = strings.TrimSpace(manual[n-1])
				}
			} else if pattern := patterns[kind]; pattern != "" {
				entityId = strings.ReplaceAll(pattern, "{}", strconv.Itoa(n))
			}
			setEntity(&be, kind, entityId)
		}
		entities = append(entities, be)
	}
	return entities
}

// EntityIds returns the distinct, sorted entity ids of all batteries.
func EntityIds(entities []domain.BatteryEntities) []string {
	seen := map[string]bool{}
	var ids []string
	for _, be := range entities {
		for _, kind := range entityKinds {
			id := be.ByKind(kind)
			if id != "" && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

func setEntity(be *domain.BatteryEntities, kind, entityId string) {
	switch kind {
	case domain.ENTITY_KIND_DISCHARGE:
		be.Discharge = entityId
	case domain.ENTITY_KIND_CHARGE:
		be.Charge = entityId
	case domain.ENTITY_KIND_CURRENT:
		be.Current = entityId
	case domain.ENTITY_KIND_VOLTAGE:
		be.Voltage = entityId
	}
}
