package runtime

import (
	"net/http"
	"strings"

	"github.com/drblury/dispatchflow/internal/runtime/jsoncodec"
)

// StatsHandler serves Stats as JSON. Mount it on any mux; CORS headers
// follow Config.StatsCORSAllowedOrigins.
func (m *Mediator) StatsHandler() http.Handler {
	return http.HandlerFunc(m.handleGetStats)
}

func (m *Mediator) handleGetStats(w http.ResponseWriter, r *http.Request) {
	if origin := m.allowedCORSOrigin(r.Header.Get("Origin")); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := m.Stats()
	if stats == nil {
		stats = []RequestStats{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := jsoncodec.Encode(w, stats); err != nil {
		m.Logger.Error("Failed to encode dispatch stats", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (m *Mediator) allowedCORSOrigin(requestOrigin string) string {
	if m.Conf == nil {
		return ""
	}
	for _, allowed := range m.Conf.StatsCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if requestOrigin != "" && strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
