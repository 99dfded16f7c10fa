package service

import (
	"time"

	"github.com/berfenger/battracker2mqtt/internal/core/domain"
)

const (
	RATE_HISTORY_WINDOW      = 10 * time.Minute
	COUNTER_RATE_MIN_WINDOW  = 2 * time.Minute
	COUNTER_RATE_MAX_WINDOW  = 30 * time.Minute
	COUNTER_RATE_BLEND       = 0.7
	COUNTER_RATE_MIN_ADVANCE = 10
)

type rateSample struct {
	at   time.Time
	rate float64
}

type counterReference struct {
	at      time.Time
	counter float64
}

// ChargeRateTracker blends the instantaneous V*I charge power with the rate
// derived from the charge counter.
type ChargeRateTracker struct {
	history   []rateSample
	reference *counterReference
	last      domain.ChargeRateInfo
}

func NewChargeRateTracker() *ChargeRateTracker {
	return &ChargeRateTracker{}
}

func (t *ChargeRateTracker) Update(now time.Time, batteries []domain.BatteryState, totalChargeCounter float64, charging bool) domain.ChargeRateInfo {
	var instantaneous float64
	active := 0
	for _, b := range batteries {
		if b.LastCurrent == nil || b.LastVoltage == nil {
			continue
		}
		if *b.LastCurrent > 0 {
			instantaneous += *b.LastCurrent * *b.LastVoltage
			active++
		}
	}

	t.history = append(t.history, rateSample{at: now, rate: instantaneous})
	cutoff := now.Add(-RATE_HISTORY_WINDOW)
	first := 0
	for first < len(t.history) && t.history[first].at.Before(cutoff) {
		first++
	}
	t.history = t.history[first:]

	weighted := t.WeightedAverage()
	counterBased := t.counterBasedRate(now, totalChargeCounter, charging)

	blended := weighted
	if counterBased != nil && *counterBased > 0 {
		blended = *counterBased*COUNTER_RATE_BLEND + weighted*(1-COUNTER_RATE_BLEND)
	}

	t.last = domain.ChargeRateInfo{
		InstantaneousWatt:   instantaneous,
		WeightedAverageWatt: weighted,
		CounterBasedWatt:    counterBased,
		BlendedWatt:         blended,
		ActiveBatteries:     active,
	}
	return t.last
}

// WeightedAverage is the time-weighted mean of the rate history, using the
// trapezoid between consecutive samples.
func (t *ChargeRateTracker) WeightedAverage() float64 {
	if len(t.history) == 0 {
		return 0
	}
	if len(t.history) == 1 {
		return t.history[0].rate
	}
	var weighted, total float64
	for i := 1; i < len(t.history); i++ {
		dt := t.history[i].at.Sub(t.history[i-1].at).Seconds()
		weighted += (t.history[i].rate + t.history[i-1].rate) / 2 * dt
		total += dt
	}
	if total > 0 {
		return weighted / total
	}
	return t.history[len(t.history)-1].rate
}

func (t *ChargeRateTracker) counterBasedRate(now time.Time, totalChargeCounter float64, charging bool) *float64 {
	if t.reference == nil {
		t.reference = &counterReference{at: now, counter: totalChargeCounter}
		return nil
	}
	if !charging {
		return nil
	}
	elapsed := now.Sub(t.reference.at)
	if elapsed < COUNTER_RATE_MIN_WINDOW || elapsed > COUNTER_RATE_MAX_WINDOW {
		if elapsed > COUNTER_RATE_MAX_WINDOW {
			t.reference = &counterReference{at: now, counter: totalChargeCounter}
		}
		return nil
	}
	diff := totalChargeCounter - t.reference.counter
	if diff <= 0 {
		return nil
	}
	// 1 counter unit = 1 Wh
	rate := diff * 3600 / elapsed.Seconds()
	if diff > COUNTER_RATE_MIN_ADVANCE {
		t.reference = &counterReference{at: now, counter: totalChargeCounter}
	}
	return &rate
}

func (t *ChargeRateTracker) Rate() float64 {
	return t.last.BlendedWatt
}

func (t *ChargeRateTracker) Info() domain.ChargeRateInfo {
	return t.last
}

// Reset drops the counter reference, used after the totals were changed by a
// service call.
func (t *ChargeRateTracker) Reset() {
	t.reference = nil
}
