package service

// CounterDelta is the outcome of comparing a raw counter reading with the
// previous one.
type CounterDelta struct {
	Delta      float64
	Baseline   bool
	Rollover   bool
	Suspicious bool
}

// ProcessCounter computes the energy delta for a raw counter. A reading lower
// than the previous one is a rollover and adds (maxValue - prev) + value. The
// returned delta is never negative.
func ProcessCounter(prev *float64, value, maxValue, threshold float64) CounterDelta {
	if prev == nil {
		return CounterDelta{Baseline: true}
	}
	if value >= *prev {
		return CounterDelta{Delta: value - *prev}
	}
	delta := (maxValue - *prev) + value
	if delta < 0 {
		// previous reading was above the configured max
		delta = value
	}
	return CounterDelta{
		Delta:      delta,
		Rollover:   true,
		Suspicious: *prev <= threshold,
	}
}
