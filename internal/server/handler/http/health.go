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

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Probe reports whether a dependency is usable.
type Probe interface {
	IsConnected() bool
}

// HealthHandler serves liveness and readiness. Liveness only proves the
// process answers; readiness also requires every probe to be connected.
type HealthHandler struct {
	probes  map[string]Probe
	started time.Time
}

func NewHealthHandler(probes map[string]Probe) *HealthHandler {
	return &HealthHandler{probes: probes, started: time.Now()}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.response("ok", nil))
}

func (h *HealthHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	checks := make(map[string]string, len(h.probes))
	code, status := http.StatusOK, "ready"
	for name, probe := range h.probes {
		if probe != nil && probe.IsConnected() {
			checks[name] = "connected"
			continue
		}
		checks[name] = "disconnected"
		code, status = http.StatusServiceUnavailable, "not ready"
	}
	writeJSON(w, code, h.response(status, checks))
}

func (h *HealthHandler) response(status string, checks map[string]string) HealthResponse {
	now := time.Now()
	return HealthResponse{
		Status:    status,
		Timestamp: now,
		Uptime:    now.Sub(h.started).Round(time.Second).String(),
		Checks:    checks,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
