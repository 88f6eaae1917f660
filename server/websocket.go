package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devskill-org/suryadrishti/service"
)

// wsHandler upgrades a connection and registers it for broadcast
// status pushes, the same pattern the teacher's WebServer used for its
// miner-fleet dashboard.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("server: websocket upgrade error: %v", err)
		return
	}
	s.clients.Store(conn, true)
	s.logger.Printf("server: websocket client connected")

	defer func() {
		s.clients.Delete(conn)
		conn.Close()
		s.logger.Printf("server: websocket client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Printf("server: websocket error: %v", err)
			}
			break
		}
	}
}

// handleBroadcasts fans a queued message out to every connected client,
// dropping any that error on write.
func (s *Server) handleBroadcasts() {
	for {
		select {
		case message := <-s.broadcast:
			s.clients.Range(func(key, value any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					s.clients.Delete(conn)
				}
				return true
			})
		case <-s.done:
			return
		}
	}
}

// notifyScheduleRun queues a "schedule_run" event for every connected
// dashboard client immediately after a run completes, rather than
// waiting for the next poll.
func (s *Server) notifyScheduleRun(microgridID string, result service.RunResult) {
	if s == nil {
		return
	}
	hasClients := false
	s.clients.Range(func(key, value any) bool {
		hasClients = true
		return false
	})
	if !hasClients {
		return
	}

	payload := map[string]any{
		"type":         "schedule_run",
		"microgrid_id": microgridID,
		"schedule_id":  result.ScheduleID,
		"verdict":      result.Verdict.Verdict,
		"metrics":      result.Schedule.Metrics,
		"alert_count":  len(result.Alerts),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}
	message, err := json.Marshal(payload)
	if err != nil {
		s.logger.Printf("server: failed to marshal schedule_run event: %v", err)
		return
	}
	select {
	case s.broadcast <- message:
	default:
		s.logger.Printf("server: broadcast channel full, dropping schedule_run event for %s", microgridID)
	}
}
