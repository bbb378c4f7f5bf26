// Package metrics exports heater and sensor state to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Agrid-Dev/jemheater/internal/heater"
)

const namespace = "jemheater"

type Metrics struct {
	reg *prometheus.Registry

	currentTemperature   prometheus.Gauge
	targetTemperature    prometheus.Gauge
	thresholdTemperature prometheus.Gauge
	relayOn              prometheus.Gauge
	polls                *prometheus.CounterVec
	relayCommands        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		currentTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_temperature_celsius",
			Help:      "Last temperature reported by the sensor.",
		}),
		targetTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_temperature_celsius",
			Help:      "Temperature below which the heater turns on.",
		}),
		thresholdTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threshold_temperature_celsius",
			Help:      "Temperature above which the heater turns off.",
		}),
		relayOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_on",
			Help:      "Relay state (1 heating, 0 off).",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_polls_total",
			Help:      "Sensor polls by outcome.",
		}, []string{"outcome"}),
		relayCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_commands_total",
			Help:      "Relay commands by requested state and outcome.",
		}, []string{"state", "outcome"}),
	}

	m.reg.MustRegister(
		m.currentTemperature,
		m.targetTemperature,
		m.thresholdTemperature,
		m.relayOn,
		m.polls,
		m.relayCommands,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObservePoll is meant for temperature.WithPollObserver.
func (m *Metrics) ObservePoll(v float64, err error) {
	if err != nil {
		m.polls.WithLabelValues("error").Inc()
		return
	}
	m.polls.WithLabelValues("ok").Inc()
	m.currentTemperature.Set(v)
}

// ObserveRelay follows the relay change notifications.
func (m *Metrics) ObserveRelay(on bool) {
	m.relayOn.Set(boolToFloat(on))
}

// ObserveSnapshot refreshes the setpoint gauges.
func (m *Metrics) ObserveSnapshot(s heater.Snapshot) {
	m.targetTemperature.Set(s.TargetTemperature)
	m.thresholdTemperature.Set(s.ThresholdTemperature)
	m.relayOn.Set(boolToFloat(s.Heating == heater.HeatingHeat))
}

// InstrumentRelay counts every command sent through r.
func (m *Metrics) InstrumentRelay(r heater.Relay) heater.Relay {
	return &instrumentedRelay{Relay: r, commands: m.relayCommands}
}

type instrumentedRelay struct {
	heater.Relay
	commands *prometheus.CounterVec
}

func (r *instrumentedRelay) Set(ctx context.Context, on bool) error {
	err := r.Relay.Set(ctx, on)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.commands.WithLabelValues(heater.HeatingStateOf(on).String(), outcome).Inc()
	return err
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
