// Package gateway exposes the claim core over HTTP and pushes bus events to
// dashboards over a websocket.
//
// Callers are identified by the X-User-ID and X-User-Role headers, set by an
// authenticating proxy in front of this server. Role gating happens here and
// nowhere else.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/salesdesk/salesdesk/internal/ai"
	"github.com/salesdesk/salesdesk/internal/alerts"
	"github.com/salesdesk/salesdesk/internal/events"
	"github.com/salesdesk/salesdesk/internal/metrics"
	"github.com/salesdesk/salesdesk/internal/notify"
	"github.com/salesdesk/salesdesk/internal/scheduling"
	"github.com/salesdesk/salesdesk/internal/types"
)

// Claims is the claim coordinator as seen by the gateway.
type Claims interface {
	Claim(ctx context.Context, scheduleID, executiveID string) (bool, error)
	Complete(ctx context.Context, scheduleID, claimant string) (*types.Schedule, error)
	Expire(ctx context.Context, scheduleID, claimant string) (*types.Schedule, error)
	Stats(ctx context.Context, executiveID, date string) (*types.ExecutiveStats, error)
	TeamStats(ctx context.Context, date string) ([]*types.ExecutiveStats, error)
	Today() string
}

// Schedules is the read side of the schedule store.
type Schedules interface {
	GetSchedule(ctx context.Context, id string) (*types.Schedule, error)
	ListSchedules(ctx context.Context, filter types.ScheduleFilter) ([]*types.Schedule, error)
}

// History is the read side of the claim journal.
type History interface {
	ListEvents(ctx context.Context, filter events.Filter) ([]*events.Record, error)
}

// Deps are the components the gateway serves.
type Deps struct {
	Schedules  Schedules
	Claims     Claims
	Alerts     *alerts.Projector
	Scheduling *scheduling.Service
	Text       ai.TextService
	Events     History
	Bus        *notify.Bus
}

// Config holds gateway configuration
type Config struct {
	// AllowedOrigins are websocket origin patterns. Empty means same origin only.
	AllowedOrigins []string
	// MetricsEnabled serves /metrics
	MetricsEnabled bool
	Logf           func(format string, args ...any)
}

// Server routes HTTP requests to the core.
type Server struct {
	deps Deps
	cfg  Config
	hub  *Hub
	mux  *http.ServeMux
}

// New builds a server. Every dependency is required.
func New(deps Deps, cfg Config) (*Server, error) {
	switch {
	case deps.Schedules == nil, deps.Claims == nil, deps.Alerts == nil,
		deps.Scheduling == nil, deps.Text == nil, deps.Events == nil, deps.Bus == nil:
		return nil, errors.New("gateway: missing dependency")
	}
	if cfg.Logf == nil {
		cfg.Logf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}

	s := &Server{deps: deps, cfg: cfg, mux: http.NewServeMux()}
	s.hub = NewHub(deps.Bus, cfg.AllowedOrigins, cfg.Logf)
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	s.mux.HandleFunc("GET /api/alerts/mine", s.handleMyAlerts)

	s.mux.HandleFunc("GET /api/schedules", s.handleListSchedules)
	s.mux.HandleFunc("POST /api/schedules", s.handleCreateSchedule)
	s.mux.HandleFunc("GET /api/schedules/{id}", s.handleGetSchedule)
	s.mux.HandleFunc("POST /api/schedules/{id}/claim", s.handleClaim)
	s.mux.HandleFunc("POST /api/schedules/{id}/complete", s.handleClose(closeComplete))
	s.mux.HandleFunc("POST /api/schedules/{id}/expire", s.handleClose(closeExpire))

	s.mux.HandleFunc("GET /api/schedules/{id}/events", s.handleScheduleEvents)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)

	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/stats/team", s.handleTeamStats)

	s.mux.HandleFunc("POST /api/ai/followup-script", s.handleFollowUpScript)
	s.mux.HandleFunc("POST /api/ai/feedback-analysis", s.handleFeedbackAnalysis)

	s.mux.Handle("GET /ws", s.hub)
	if s.cfg.MetricsEnabled {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close detaches the websocket hub from the bus.
func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) logf(format string, args ...any) {
	s.cfg.Logf(format, args...)
}

// date returns the ?date= parameter or today.
func (s *Server) date(r *http.Request) string {
	if d := strings.TrimSpace(r.URL.Query().Get("date")); d != "" {
		return d
	}
	return s.deps.Claims.Today()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"websocket_clients": s.hub.Clients(),
	})
}

type alertsResponse struct {
	Date   string        `json:"date"`
	Alerts []types.Alert `json:"alerts"`
}

// handleAlerts serves every open alert, or only unclaimed ones with ?scope=team.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	date := s.date(r)
	var (
		list []types.Alert
		err  error
	)
	switch scope := r.URL.Query().Get("scope"); scope {
	case "", "all":
		list, err = s.deps.Alerts.ProjectForDate(r.Context(), date)
	case "team":
		list, err = s.deps.Alerts.TeamAlerts(r.Context(), date)
	default:
		err = fmt.Errorf("%w: unknown scope %q", types.ErrValidation, scope)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	alerts.SortByTime(list)
	writeJSON(w, http.StatusOK, alertsResponse{Date: date, Alerts: list})
}

func (s *Server) handleMyAlerts(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	date := s.date(r)
	list, err := s.deps.Alerts.MyAlerts(r.Context(), date, p.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	alerts.SortByTime(list)
	writeJSON(w, http.StatusOK, alertsResponse{Date: date, Alerts: list})
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.ScheduleFilter{
		ExecutiveID: q.Get("executive_id"),
		Date:        q.Get("date"),
		Status:      types.Status(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		s.writeError(w, r, fmt.Errorf("%w: unknown status %q", types.ErrValidation, filter.Status))
		return
	}
	list, err := s.deps.Schedules.ListSchedules(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": list})
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.deps.Schedules.GetSchedule(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	p, err := requireRole(r, "create schedules", types.Role.CanSchedule)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req scheduling.Request
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.CreatedBy == "" {
		req.CreatedBy = p.ID
	}
	sched, err := s.deps.Scheduling.CreateSchedule(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

type claimResponse struct {
	Claimed  bool            `json:"claimed"`
	Schedule *types.Schedule `json:"schedule,omitempty"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	p, err := requireRole(r, "claim schedules", types.Role.CanClaim)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	won, err := s.deps.Claims.Claim(r.Context(), id, p.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !won {
		writeJSON(w, http.StatusConflict, claimResponse{Claimed: false})
		return
	}
	resp := claimResponse{Claimed: true}
	if sched, err := s.deps.Schedules.GetSchedule(r.Context(), id); err == nil {
		resp.Schedule = sched
	}
	writeJSON(w, http.StatusOK, resp)
}

type closeKind int

const (
	closeComplete closeKind = iota
	closeExpire
)

// handleClose completes or expires a claim. Only the claimant or an admin
// may close it.
func (s *Server) handleClose(kind closeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := requireRole(r, "close claims", types.Role.CanClaim)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		id := r.PathValue("id")
		claimant := p.ID
		if p.Role == types.RoleAdmin {
			claimant = ""
		}

		var sched *types.Schedule
		if kind == closeComplete {
			sched, err = s.deps.Claims.Complete(r.Context(), id, claimant)
		} else {
			sched, err = s.deps.Claims.Expire(r.Context(), id, claimant)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sched)
	}
}

// handleStats serves one executive's stats; the caller's own by default.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	exec := r.URL.Query().Get("executive_id")
	if exec == "" {
		p, err := principal(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		exec = p.ID
	}
	stats, err := s.deps.Claims.Stats(r.Context(), exec, s.date(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTeamStats(w http.ResponseWriter, r *http.Request) {
	date := s.date(r)
	list, err := s.deps.Claims.TeamStats(r.Context(), date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "stats": list})
}

// Journal listing bounds for ?limit=.
const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// handleEvents serves the claim journal, newest first. Filters: type, since
// (RFC 3339) and limit.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.serveEvents(w, r, r.URL.Query().Get("schedule_id"))
}

func (s *Server) handleScheduleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.deps.Schedules.GetSchedule(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.serveEvents(w, r, id)
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request, scheduleID string) {
	filter, err := eventFilter(r, scheduleID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.deps.Events.ListEvents(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*events.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": list})
}

func eventFilter(r *http.Request, scheduleID string) (events.Filter, error) {
	q := r.URL.Query()
	f := events.Filter{
		ScheduleID: scheduleID,
		Type:       q.Get("type"),
		Limit:      defaultEventLimit,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxEventLimit {
			return f, fmt.Errorf("%w: limit must be between 1 and %d", types.ErrValidation, maxEventLimit)
		}
		f.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("%w: since must be RFC 3339: %v", types.ErrValidation, err)
		}
		f.After = t
	}
	return f, nil
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

func (s *Server) handleFollowUpScript(w http.ResponseWriter, r *http.Request) {
	s.handleFeedbackText(w, r, "script", s.deps.Text.GenerateFollowUpScript)
}

func (s *Server) handleFeedbackAnalysis(w http.ResponseWriter, r *http.Request) {
	s.handleFeedbackText(w, r, "analysis", s.deps.Text.AnalyzeFeedbackTrends)
}

func (s *Server) handleFeedbackText(w http.ResponseWriter, r *http.Request, key string, generate func(context.Context, string) (string, error)) {
	if _, err := principal(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	var req feedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Feedback) == "" {
		s.writeError(w, r, fmt.Errorf("%w: feedback is required", types.ErrValidation))
		return
	}
	text, err := generate(r.Context(), req.Feedback)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{key: text})
}
