// Package loads exposes the dispatch engine over HTTP: load submission and
// decision log retrieval.
package loads

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mobiis/cargodispatch/core/model"
	"github.com/mobiis/cargodispatch/core/pipeline"
	"github.com/mobiis/cargodispatch/core/pipeline/logging"
)

// NewDispatchHandler returns an HTTP handler accepting load requests via
// POST and returning the terminal decision. Requests must include an
// Authorization header with "Bearer <token>" when token is non-empty.
func NewDispatchHandler(p *pipeline.DispatchPipeline, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req model.LoadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		decision, err := p.Dispatch(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(decision); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// NewDecisionsHandler returns an HTTP handler exposing persisted decisions
// via GET with start/end/load_id/plate/status query filters.
func NewDecisionsHandler(store logging.LogStore, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		q := logging.LogQuery{}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		q.LoadID = r.URL.Query().Get("load_id")
		q.Plate = r.URL.Query().Get("plate")
		q.Status = r.URL.Query().Get("status")
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// Version identifies the API generation reported by the health and info
// endpoints.
const Version = "1.0.0"

// NewHealthHandler reports service liveness. fleetSize, when non-nil, adds
// the current number of indexed assets to the response.
func NewHealthHandler(fleetSize func() int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		resp := map[string]any{
			"status":    "operational",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   Version,
		}
		if fleetSize != nil {
			resp["fleet_assets"] = fleetSize()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// NewInfoHandler describes the engine and its endpoints.
func NewInfoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":    "cargodispatch",
			"version": Version,
			"modules": map[string]string{
				"tracker": "geospatial candidate search and ranking",
				"auditor": "profit, risk and compliance validation",
				"quota":   "fleet exploration window for new assets",
			},
			"endpoints": map[string]string{
				"dispatch":  "POST /api/loads",
				"decisions": "GET /api/decisions",
				"health":    "GET /api/health",
				"info":      "GET /api/info",
			},
		})
	})
}

func authorized(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+token
}
