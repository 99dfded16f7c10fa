package metrics

import (
	"strconv"
	"sync"

	"github.com/berfenger/battracker2mqtt/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "battracker_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	energyKWh         *prometheus.GaugeVec
	batteryStoredKWh  *prometheus.GaugeVec
	estimatedHours    prometheus.Gauge
	chargingFlag      prometheus.Gauge
	chargeRateWatt    prometheus.Gauge
	refreshesTotal    prometheus.Counter
	rolloversTotal    prometheus.Counter
	skippedTotal      prometheus.Counter
	serviceCallsTotal *prometheus.CounterVec
)

// Init registers the tracker metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		energyKWh = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "energy_kwh",
				Help: "Tracked energy in kWh by counter",
			},
			[]string{"counter"},
		)
		batteryStoredKWh = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "battery_stored_energy_kwh",
				Help: "Estimated stored energy per battery in kWh",
			},
			[]string{"battery"},
		)
		estimatedHours = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "estimated_charge_time_hours",
				Help: "Estimated time to fully charge in hours",
			},
		)
		chargingFlag = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "charging",
				Help: "1 while the batteries are charging",
			},
		)
		chargeRateWatt = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "charge_rate_watt",
				Help: "Measured charge rate in W",
			},
		)
		refreshesTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "refreshes_total",
				Help: "Total refresh cycles",
			},
		)
		rolloversTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "counter_rollovers_total",
				Help: "Total raw counter rollovers",
			},
		)
		skippedTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "skipped_readings_total",
				Help: "Total unavailable entity readings",
			},
		)
		serviceCallsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "service_calls_total",
				Help: "Total service calls by service and result",
			},
			[]string{"service", "result"},
		)

		prometheus.MustRegister(
			energyKWh,
			batteryStoredKWh,
			estimatedHours,
			chargingFlag,
			chargeRateWatt,
			refreshesTotal,
			rolloversTotal,
			skippedTotal,
			serviceCallsTotal,
		)
	})
}

// ObserveRefresh records a refresh cycle and the resulting summary.
func ObserveRefresh(result domain.RefreshResult, summary domain.TrackerSummary) {
	if refreshesTotal != nil {
		refreshesTotal.Inc()
	}
	if rolloversTotal != nil && result.Rollovers > 0 {
		rolloversTotal.Add(float64(result.Rollovers))
	}
	if skippedTotal != nil && len(result.Skipped) > 0 {
		skippedTotal.Add(float64(len(result.Skipped)))
	}
	ObserveSummary(summary)
}

func ObserveSummary(summary domain.TrackerSummary) {
	if energyKWh != nil {
		energyKWh.WithLabelValues("discharge").Set(summary.TotalDischargeKWh)
		energyKWh.WithLabelValues("charge").Set(summary.TotalChargeKWh)
		energyKWh.WithLabelValues("since_last_charge").Set(summary.EnergySinceLastChargeKWh)
		energyKWh.WithLabelValues("stored").Set(summary.StoredEnergyKWh)
	}
	if batteryStoredKWh != nil {
		for _, b := range summary.Batteries {
			batteryStoredKWh.WithLabelValues(strconv.Itoa(b.Number)).Set(b.StoredEnergyKWh)
		}
	}
	if estimatedHours != nil {
		estimatedHours.Set(summary.EstimatedChargeTimeHours)
	}
	if chargingFlag != nil {
		if summary.IsCharging {
			chargingFlag.Set(1)
		} else {
			chargingFlag.Set(0)
		}
	}
	if chargeRateWatt != nil {
		chargeRateWatt.Set(summary.ChargeRateWatt)
	}
}

// IncServiceCall counts a service call by its outcome.
func IncServiceCall(service string, err error) {
	if service == "" {
		service = "unknown"
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if serviceCallsTotal != nil {
		serviceCallsTotal.WithLabelValues(service, result).Inc()
	}
}
