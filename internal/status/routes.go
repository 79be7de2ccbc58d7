package status

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vid2set/vid2set/internal/config"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Get("/status", statusHandler(cfg))
	r.Get("/failures", failuresHandler(cfg))

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cfg.Progress.Snapshot()

		state := "running"
		if snap.Total > 0 && snap.Processed == snap.Total {
			state = "complete"
		}

		WriteJSON(w, http.StatusOK, StatusResponse{
			State:    state,
			Progress: snap,
		})
	}
}

func failuresHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Repository == nil {
			WriteJSON(w, http.StatusOK, FailuresResponse{Failures: []FailureResponse{}})
			return
		}

		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "invalid limit", "BAD_REQUEST")
				return
			}
			limit = n
		}

		failed, err := cfg.Repository.ListFailed(r.Context(), limit)
		if err != nil {
			cfg.Logger.Error("failed to list failures", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to list failures", "INTERNAL_ERROR")
			return
		}

		resp := FailuresResponse{Failures: make([]FailureResponse, 0, len(failed))}
		for _, o := range failed {
			resp.Failures = append(resp.Failures, FailureResponse{
				ReferenceID: o.Reference.ID,
				URL:         o.Reference.URL,
				Status:      o.Status,
				Error:       o.Error,
			})
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
