// Copyright 2025 Nguyen Nhat Nguyen
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

// Package metrics holds the Prometheus collectors of the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	Registry *prometheus.Registry

	TimersFired   prometheus.Counter
	ResultLookups *prometheus.CounterVec
}

// New registers the server collectors on a fresh registry, namespaced by ns.
func New(ns string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		TimersFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "timers_fired_total",
			Help:      "Durable timers reported as fired.",
		}),
		ResultLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "result_lookups_total",
			Help:      "Run result lookups served over HTTP, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.TimersFired,
		m.ResultLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
