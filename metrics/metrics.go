/*
	i2c-fwupdater
	Copyright (c) 2024 Arduino LLC.  All right reserved.

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package metrics collects counters about an update session. The result can
// be dumped in the Prometheus text format for the node_exporter textfile
// collector. A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "fwupdater"

type Metrics struct {
	registry *prometheus.Registry

	blocksSent       prometheus.Counter
	bytesSent        prometheus.Counter
	busyPolls        prometheus.Counter
	progressPolls    prometheus.Counter
	transportRetries prometheus.Counter
	checksumWarnings prometheus.Counter
	phaseSeconds     *prometheus.GaugeVec
	updateStatus     prometheus.Gauge
	deviceCounter    prometheus.Gauge
	success          prometheus.Gauge
}

// New creates the collectors in a private registry. An empty namespace
// selects the default one.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		blocksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "upload", Name: "blocks_sent_total", Help: "UPLOAD_BLOCK commands acknowledged"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "upload", Name: "bytes_sent_total", Help: "Image bytes acknowledged"}),
		busyPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "upload", Name: "busy_polls_total", Help: "Command status polls answered with busy"}),
		progressPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "device", Name: "progress_polls_total", Help: "Update status polls"}),
		transportRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "retries_total", Help: "Bus reads retried after a transient error"}),
		checksumWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "checksum_warnings_total", Help: "Register readbacks with a wrong checksum"}),
		phaseSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "session", Name: "phase_seconds", Help: "Duration of each update phase"}, []string{"phase"}),
		updateStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "device", Name: "update_status", Help: "Last update status code read from the device"}),
		deviceCounter: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "device", Name: "progress_counter", Help: "Last progress counter read from the device"}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "session", Name: "success", Help: "1 if the last update completed, 0 otherwise"}),
	}
	m.registry.MustRegister(
		m.blocksSent,
		m.bytesSent,
		m.busyPolls,
		m.progressPolls,
		m.transportRetries,
		m.checksumWarnings,
		m.phaseSeconds,
		m.updateStatus,
		m.deviceCounter,
		m.success,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) BlockSent(size int) {
	if m == nil {
		return
	}
	m.blocksSent.Inc()
	m.bytesSent.Add(float64(size))
}

func (m *Metrics) BusyPoll() {
	if m == nil {
		return
	}
	m.busyPolls.Inc()
}

func (m *Metrics) ProgressPoll(code byte, counter byte) {
	if m == nil {
		return
	}
	m.progressPolls.Inc()
	m.updateStatus.Set(float64(code))
	m.deviceCounter.Set(float64(counter))
}

func (m *Metrics) TransportRetry() {
	if m == nil {
		return
	}
	m.transportRetries.Inc()
}

func (m *Metrics) ChecksumWarning() {
	if m == nil {
		return
	}
	m.checksumWarnings.Inc()
}

func (m *Metrics) PhaseDuration(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseSeconds.WithLabelValues(phase).Set(d.Seconds())
}

func (m *Metrics) Result(success bool) {
	if m == nil {
		return
	}
	if success {
		m.success.Set(1)
	} else {
		m.success.Set(0)
	}
}

// WriteToTextfile dumps all metrics to filename atomically.
func (m *Metrics) WriteToTextfile(filename string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(filename, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", filename, err)
	}
	return nil
}
