package metrics

import (
	"errors"
	"testing"

	"github.com/berfenger/battracker2mqtt/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func value(c prometheus.Metric) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return -1
	}
	if m.Gauge != nil {
		return m.Gauge.GetValue()
	}
	return m.Counter.GetValue()
}

func TestMetrics(t *testing.T) {
	assert := assert.New(t)

	Init()
	Init()

	ObserveRefresh(domain.RefreshResult{Rollovers: 2, Skipped: []string{"sensor.a"}}, domain.TrackerSummary{
		TotalDischargeKWh: 4.2,
		IsCharging:        true,
		Batteries:         []domain.BatteryState{{Number: 1, StoredEnergyKWh: 2.5}},
	})
	assert.Equal(2.0, value(rolloversTotal))
	assert.Equal(1.0, value(skippedTotal))
	assert.Equal(4.2, value(energyKWh.WithLabelValues("discharge")))
	assert.Equal(2.5, value(batteryStoredKWh.WithLabelValues("1")))
	assert.Equal(1.0, value(chargingFlag))

	IncServiceCall(domain.SERVICE_RESET_COUNTERS, nil)
	IncServiceCall(domain.SERVICE_RESET_COUNTERS, errors.New("boom"))
	assert.Equal(1.0, value(serviceCallsTotal.WithLabelValues(domain.SERVICE_RESET_COUNTERS, resultError)))
}
