// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics registers procd's Prometheus collectors. Callers should
// mount promhttp.Handler() on the admin server; this package only ever
// records observations.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// spawnsTotal tracks every fork/exec attempt, regardless of outcome.
	spawnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procd_spawns_total",
			Help: "Total worker spawn attempts by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	// exitsTotal tracks reaped worker exits by service and exit code.
	exitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procd_exits_total",
			Help: "Total worker exits by service and exit code",
		},
		[]string{"service", "exit_code"},
	)

	// restartGiveUpsTotal tracks how often the flap-detection policy gives
	// up on a service for good.
	restartGiveUpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procd_restart_give_ups_total",
			Help: "Total times the restart policy gave up on a flapping service",
		},
		[]string{"service"},
	)

	// serviceUp reports 1 while a non-multi-instance service has a live
	// worker, 0 otherwise. Multi-instance and inetd-style services never
	// set this, since they have no single pid to report.
	serviceUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "procd_service_up",
			Help: "1 if the named service currently has a live worker, 0 otherwise",
		},
		[]string{"service"},
	)

	// listenersArmed reports 1 while a lazy service's readiness notifier
	// is armed and waiting for a connection.
	listenersArmed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "procd_listeners_armed",
			Help: "1 if the named service's listener is currently armed, 0 otherwise",
		},
		[]string{"service"},
	)

	// registrySize reports how many live workers the pid registry
	// currently tracks, independent of any per-service label.
	registrySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "procd_registry_size",
			Help: "Number of live, non-multi-instance workers currently tracked",
		},
	)
)

// RecordSpawn increments the spawn counter. outcome is "ok" or "error".
func RecordSpawn(service, outcome string) {
	spawnsTotal.WithLabelValues(service, outcome).Inc()
}

// RecordExit increments the exit counter and reflects the service as down.
func RecordExit(service string, exitCode int) {
	exitsTotal.WithLabelValues(service, exitCodeLabel(exitCode)).Inc()
	serviceUp.WithLabelValues(service).Set(0)
}

// RecordRunning reflects a service as having a live worker.
func RecordRunning(service string) {
	serviceUp.WithLabelValues(service).Set(1)
}

// RecordGiveUp increments the give-up counter for service.
func RecordGiveUp(service string) {
	restartGiveUpsTotal.WithLabelValues(service).Inc()
}

// SetListenerArmed reflects whether service's readiness notifier is armed.
func SetListenerArmed(service string, armed bool) {
	v := 0.0
	if armed {
		v = 1.0
	}
	listenersArmed.WithLabelValues(service).Set(v)
}

// SetRegistrySize reflects the pid registry's current occupancy.
func SetRegistrySize(n int) {
	registrySize.Set(float64(n))
}

func exitCodeLabel(code int) string {
	if code < 0 {
		return "signaled"
	}
	return strconv.Itoa(code)
}
