package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/scagate/internal/sca/cache"
	"github.com/aussiebroadwan/scagate/internal/sca/store"
	"github.com/aussiebroadwan/scagate/pkg/httpx"
	"github.com/aussiebroadwan/scagate/pkg/scasdk"
)

// LivezHandler always answers 200 while the process is up.
//
//	@Summary	Liveness probe
//	@Tags		System
//	@Produce	json
//	@Success	200	{object}	scasdk.HealthResponse
//	@Router		/livez [get].
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := scasdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		}
		httpx.WriteJSON(w, http.StatusOK, response)
	}
}

// ReadyzHandler checks the store and, when configured, the cache.
//
//	@Summary	Readiness probe
//	@Tags		System
//	@Produce	json
//	@Success	200	{object}	scasdk.HealthResponse	"Store and cache reachable"
//	@Failure	503	{object}	scasdk.HealthResponse	"A dependency is down"
//	@Router		/readyz [get].
func ReadyzHandler(startTime time.Time, version string, st store.Store, c cache.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"database": "ok"}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks["database"] = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if c != nil {
			checks["cache"] = "ok"
			if err := c.Ping(r.Context()); err != nil {
				checks["cache"] = "error: " + err.Error()
				overallStatus = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		}

		httpx.WriteJSON(w, statusCode, scasdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
