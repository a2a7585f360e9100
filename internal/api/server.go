package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"classhub/internal/registry"
	"classhub/pkg/interfaces"
	"classhub/pkg/logger"
)

// Server exposes the liveness probe and room summaries over HTTP.
type Server struct {
	registry *registry.Registry
	store    interfaces.Store // nil when running without persistence
	router   *http.ServeMux
}

// NewServer creates the HTTP surface over the registry and store.
func NewServer(reg *registry.Registry, store interfaces.Store) *Server {
	s := &Server{
		registry: reg,
		store:    store,
		router:   http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/api/rooms", s.handleRooms)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Database  string         `json:"database"`
	Counts    map[string]int `json:"counts"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Database:  "disabled",
	}

	rooms, users := s.registry.Count()
	resp.Counts = map[string]int{"rooms": rooms, "users": users}

	status := http.StatusOK
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.HealthCheck(ctx); err != nil {
			logger.Error("Database health check failed: %v", err)
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "healthy"
		}
	}

	s.sendJSON(w, resp, status)
}

type roomSummary struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Participants int    `json:"participants"`
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rooms := s.registry.ListActiveRooms()
	summaries := make([]roomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, roomSummary{
			ID:           room.ID,
			Code:         room.Code,
			Name:         room.Name,
			Participants: len(room.Participants),
		})
	}

	s.sendJSON(w, map[string]interface{}{"rooms": summaries}, http.StatusOK)
}

func (s *Server) sendJSON(w http.ResponseWriter, v interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, map[string]string{"error": message}, code)
}
