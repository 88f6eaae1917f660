// Package server exposes the HTTP and WebSocket surface the engine
// itself has no opinion about: health and readiness checks, the
// read-only schedule/alert queries §6 names, a run-trigger endpoint,
// and a status feed pushed to connected dashboard clients.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sixdouglas/suncalc"

	"github.com/devskill-org/suryadrishti/service"
	"github.com/devskill-org/suryadrishti/store"
)

// Server serves the microgrid dispatch API over HTTP and pushes status
// updates to WebSocket clients, mirroring the teacher's combined
// health/monitoring/dashboard web server.
type Server struct {
	engine *service.Engine
	repo   *store.Repository
	logger *log.Logger

	port      int
	startTime time.Time
	server    *http.Server
	upgrader  websocket.Upgrader
	clients   sync.Map
	broadcast chan []byte
	done      chan struct{}
}

// New builds a Server. Port 0 disables the HTTP server entirely,
// matching the teacher's NewWebServer(port<=0) convention.
func New(engine *service.Engine, repo *store.Repository, port int, logger *log.Logger) *Server {
	if port <= 0 {
		return nil
	}
	if logger == nil {
		logger = log.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		engine:    engine,
		repo:      repo,
		logger:    logger,
		port:      port,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("GET /api/health", s.healthHandler)
	mux.HandleFunc("GET /api/ready", s.readinessHandler)
	mux.HandleFunc("POST /api/run", s.runHandler)
	mux.HandleFunc("GET /api/microgrids/{microgrid_id}/schedule", s.latestScheduleHandler)
	mux.HandleFunc("GET /api/microgrids/{microgrid_id}/alerts", s.latestAlertsHandler)
	mux.HandleFunc("GET /api/microgrids/{microgrid_id}/status", s.statusHandler)
	mux.HandleFunc("GET /api/ws", s.wsHandler)

	return s
}

// Start launches the broadcast pump and the HTTP listener in the
// background.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}
	go s.handleBroadcasts()
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("server: listen error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down, closing all WebSocket clients.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	close(s.done)
	s.clients.Range(func(key, value any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"uptime":    formatUptime(time.Since(s.startTime)),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.repo.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready":     false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":     true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// runRequestBody is the wire shape of a POST /api/run call, matching
// §6's run(microgrid_id, horizon_hours, date, forecast_source_hint).
type runRequestBody struct {
	MicrogridID        string `json:"microgrid_id"`
	HorizonHours       int    `json:"horizon_hours"`
	Date               string `json:"date"`
	ForecastSourceHint string `json:"forecast_source_hint"`
}

func (s *Server) runHandler(w http.ResponseWriter, r *http.Request) {
	var body runRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.MicrogridID == "" || body.HorizonHours <= 0 {
		http.Error(w, "microgrid_id and horizon_hours are required", http.StatusBadRequest)
		return
	}

	result, err := s.engine.Run(r.Context(), service.RunRequest{
		MicrogridID:        body.MicrogridID,
		HorizonHours:       body.HorizonHours,
		Date:               body.Date,
		ForecastSourceHint: body.ForecastSourceHint,
	})
	if err != nil {
		s.logger.Printf("server: run failed for microgrid %s: %v", body.MicrogridID, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.notifyScheduleRun(body.MicrogridID, result)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) latestScheduleHandler(w http.ResponseWriter, r *http.Request) {
	microgridID := r.PathValue("microgrid_id")
	_, schedule, err := s.repo.LatestSchedule(r.Context(), microgridID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

func (s *Server) latestAlertsHandler(w http.ResponseWriter, r *http.Request) {
	microgridID := r.PathValue("microgrid_id")
	scheduleID, _, err := s.repo.LatestSchedule(r.Context(), microgridID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	alerts, err := s.repo.AlertsForSchedule(r.Context(), scheduleID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// statusHandler returns a microgrid's sun geometry alongside its latest
// schedule summary, the combined view the teacher's own status endpoint
// offered for a single site.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	microgridID := r.PathValue("microgrid_id")
	profile, err := s.repo.LoadProfile(r.Context(), microgridID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	now := time.Now()
	sunTimes := suncalc.GetTimes(now, profile.Location.Latitude, profile.Location.Longitude)
	sunPos := suncalc.GetPosition(now, profile.Location.Latitude, profile.Location.Longitude)

	response := map[string]any{
		"microgrid_id": microgridID,
		"sun": map[string]any{
			"solar_elevation_deg": sunPos.Altitude * 180 / 3.141592653589793,
			"sunrise":             sunTimes["sunrise"].Value.Format(time.RFC3339),
			"sunset":              sunTimes["sunset"].Value.Format(time.RFC3339),
		},
	}
	if scheduleID, schedule, err := s.repo.LatestSchedule(r.Context(), microgridID); err == nil {
		response["latest_schedule_id"] = scheduleID
		response["latest_schedule_date"] = schedule.Date
		response["latest_metrics"] = schedule.Metrics
	}
	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
