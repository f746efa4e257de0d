package server

import (
	"net/http"
	"time"

	"github.com/ashita-ai/kensa/internal/services"
)

// healthResponse is the body of GET /health.
type healthResponse struct {
	// Status is "healthy" when at least one backend is usable, else "degraded".
	Status        string                    `json:"status"`
	Version       string                    `json:"version"`
	ReadOnly      bool                      `json:"read_only"`
	Services      map[services.Service]bool `json:"services"`
	ZephyrState   string                    `json:"zephyr_state"`
	Tools         int                       `json:"tools"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
}

func healthHandler(cfg Config, started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		avail := cfg.Services.Availability()
		status := "degraded"
		for _, ok := range avail {
			if ok {
				status = "healthy"
				break
			}
		}
		tools := 0
		if cfg.Tools != nil {
			tools = len(cfg.Tools())
		}
		writeJSON(w, http.StatusOK, healthResponse{
			Status:        status,
			Version:       cfg.Version,
			ReadOnly:      cfg.ReadOnly,
			Services:      avail,
			ZephyrState:   cfg.Services.Zephyr().String(),
			Tools:         tools,
			UptimeSeconds: int64(time.Since(started).Seconds()),
		})
	}
}
