package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"arrdeck-go/internal/config"
	"arrdeck-go/internal/connector"
	"arrdeck-go/internal/notify"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

type statusResponse struct {
	Status        string  `json:"status"`
	Services      int     `json:"services"`
	Clients       int     `json:"ws_clients"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:        "ok",
		Services:      s.registry.Count(),
		Clients:       clients,
		UptimeSeconds: time.Since(s.started).Seconds(),
	})
}

// serviceView is the config without its credentials.
type serviceView struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	Type    config.ServiceType `json:"type"`
	URL     string             `json:"url"`
	Enabled bool               `json:"enabled"`
}

func viewOf(cfg *config.ServiceConfig) serviceView {
	return serviceView{ID: cfg.ID, Name: cfg.Name, Type: cfg.Type, URL: cfg.URL, Enabled: cfg.Enabled}
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	connectors := s.registry.GetAllConnectors()
	out := make([]serviceView, 0, len(connectors))
	for _, c := range connectors {
		out = append(out, viewOf(c.Config()))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddService(w http.ResponseWriter, r *http.Request) {
	var cfg config.ServiceConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := config.ValidateServiceType(string(cfg.Type)); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, err := s.registry.AddConnector(r.Context(), &cfg)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, connector.ErrUnsupportedServiceType) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusCreated, viewOf(c.Config()))
}

func (s *Server) handleRemoveService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.registry.RemoveConnector(id)
	if s.monitor != nil {
		s.monitor.Forget(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTestService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := s.registry.GetConnector(id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown service id"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.TestAllTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, c.TestConnection(ctx))
}

func (s *Server) handleTestAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.TestAllTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, s.registry.TestAllConnections(ctx))
}

func (s *Server) handleServiceHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := s.registry.GetConnector(id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown service id"))
		return
	}
	writeJSON(w, http.StatusOK, c.GetHealth(r.Context()))
}

func (s *Server) handleHealthSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("health monitor not running"))
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.CheckAll(r.Context()))
}

func (s *Server) handleDownloadStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetDownloadConnectorStats())
}

type quietHoursPreview struct {
	Category string     `json:"category"`
	Active   bool       `json:"active"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
}

// handleQuietHoursPreview answers the settings screen's "your quiet hours end
// at …" preview using the pure engine.
func (s *Server) handleQuietHoursPreview(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		writeError(w, http.StatusBadRequest, errors.New("category query param required"))
		return
	}

	cfg := s.cfg
	if s.loader != nil {
		if live := s.loader.GetConfig(); live != nil {
			cfg = live
		}
	}
	var qh *config.QuietHoursConfig
	if cfg != nil && cfg.Notifications != nil {
		qh = cfg.Notifications.QuietHours[category]
	}

	now := time.Now()
	preview := quietHoursPreview{
		Category: category,
		Active:   notify.IsQuietHoursActive(qh, now),
	}
	if end, ok := notify.NextQuietHoursEnd(qh, now); ok {
		preview.EndsAt = &end
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	outcome := s.notifier.DeliverNotification(r.Context(), notify.CategoryServiceHealth, &notify.Message{
		Title: "Test notification",
		Body:  "arrdeck notification delivery is working",
	}, "test notification", notify.DeliverOptions{})

	writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
	s.logger.Info("Test notification requested", zap.String("outcome", string(outcome)))
}

// handleResume is the app-foreground hook: flush timers do not survive a
// restart, so the client calls this on every resume.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.notifier.FlushDueSummaries(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
