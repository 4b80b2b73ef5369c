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
	"context"
	"log/slog"
	"net/http"

	"github.com/ngnhng/replayflow/api"
	"github.com/ngnhng/replayflow/internal/server/metrics"
)

// ResultReader looks up the stored result of a run.
type ResultReader interface {
	Result(ctx context.Context, runID api.RunID) (*api.RunResult, bool, error)
}

// RunResponse is the JSON view of a run.
type RunResponse struct {
	RunID  api.RunID       `json:"run_id"`
	Status string          `json:"status"`
	Kind   api.FailureKind `json:"kind,omitempty"`
	Error  string          `json:"error,omitempty"`
	// Result is the encoded workflow result, base64 in JSON.
	Result []byte `json:"result,omitempty"`
}

type RunHandler struct {
	results ResultReader
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewRunHandler(results ResultReader, m *metrics.Metrics, logger *slog.Logger) *RunHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunHandler{results: results, metrics: m, logger: logger}
}

// Get serves GET /api/runs/{id}. A run without a stored result is reported
// as running.
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	runID := api.RunID(r.PathValue("id"))
	if runID == "" {
		h.count("bad_request")
		http.Error(w, "missing run id", http.StatusBadRequest)
		return
	}

	result, ok, err := h.results.Result(r.Context(), runID)
	if err != nil {
		h.count("error")
		h.logger.Error("failed to read run result", "run_id", runID, "error", err)
		http.Error(w, "could not read run result", http.StatusInternalServerError)
		return
	}

	resp := RunResponse{RunID: runID, Status: "running"}
	switch {
	case !ok:
	case result.Failed():
		resp.Status = "failed"
		resp.Kind = result.Kind
		resp.Error = result.Error
	default:
		resp.Status = "completed"
		resp.Result = result.Result
	}
	h.count(resp.Status)
	writeJSON(w, http.StatusOK, resp)
}

func (h *RunHandler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.ResultLookups.WithLabelValues(outcome).Inc()
	}
}
