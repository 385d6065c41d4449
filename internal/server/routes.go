package server

import (
	"net/http"
	"os"

	"github.com/ternarybob/usagedash/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - usage
	mux.HandleFunc("/api/usage", s.app.UsageHandler.UsageHandler)     // GET - cached aggregate + scheduler state
	mux.HandleFunc("/api/refresh", s.app.UsageHandler.RefreshHandler) // GET/POST - manual refresh
	mux.HandleFunc("/api/status", s.app.UsageHandler.StatusHandler)   // GET - isScraping, nextRefresh, uptime
	mux.HandleFunc("/api/history", s.app.UsageHandler.HistoryHandler) // GET - per-run account history

	// Unprefixed aliases for older dashboards
	mux.HandleFunc("/usage", s.app.UsageHandler.UsageHandler)
	mux.HandleFunc("/refresh", s.app.UsageHandler.RefreshHandler)
	mux.HandleFunc("/status", s.app.UsageHandler.StatusHandler)

	// API routes - system
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	// Static dashboard
	mux.Handle("/", s.dashboardHandler())

	return mux
}

// dashboardHandler serves the static dashboard directory when it exists
func (s *Server) dashboardHandler() http.Handler {
	dir := s.app.Config.Dashboard.Dir
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			s.app.Logger.Debug().Str("dir", dir).Msg("Serving static dashboard")
			return http.FileServer(http.Dir(dir))
		}
		s.app.Logger.Debug().Str("dir", dir).Msg("Dashboard directory not found, serving API only")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			s.app.APIHandler.NotFoundHandler(w, r)
			return
		}
		handlers.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"service":   "usagedash",
			"endpoints": []string{"/api/usage", "/api/refresh", "/api/status", "/api/history", "/api/health", "/api/version", "/ws"},
		})
	})
}
