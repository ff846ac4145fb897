package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/detectors"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/geo"
	"github.com/opensource-finance/harrier/internal/repository"
)

// Detector scores one activity event.
type Detector interface {
	Detect(ctx context.Context, event *domain.ActivityEvent) (*domain.FraudResult, error)
}

// ProfileReader reads behavior baselines.
type ProfileReader interface {
	Get(ctx context.Context, agentID string) (*domain.BehaviorProfile, error)
}

// RateLimiter bounds per-agent submissions.
type RateLimiter interface {
	Allow(ctx context.Context, agentID string) (bool, int64, error)
}

// Deps are the collaborators of a Handler. Only Detector is required.
type Deps struct {
	Detector   Detector
	Repository domain.Repository
	Profiles   ProfileReader
	Rules      *detectors.Rules
	Cache      domain.Cache
	Bus        domain.EventBus
	Limiter    RateLimiter
	Version    string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	detector Detector
	repo     domain.Repository
	profiles ProfileReader
	rules    *detectors.Rules
	cache    domain.Cache
	bus      domain.EventBus
	limiter  RateLimiter
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		detector: d.Detector,
		repo:     d.Repository,
		profiles: d.Profiles,
		rules:    d.Rules,
		cache:    d.Cache,
		bus:      d.Bus,
		limiter:  d.Limiter,
		version:  d.Version,
	}
}

// CoordinateRequest is a bare WGS84 position.
type CoordinateRequest struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

func (c CoordinateRequest) coordinate() domain.Coordinate {
	return domain.Coordinate{Latitude: c.Latitude, Longitude: c.Longitude}
}

// LocationRequest is a device fix.
type LocationRequest struct {
	Latitude  float64    `json:"latitude" validate:"latitude"`
	Longitude float64    `json:"longitude" validate:"longitude"`
	Accuracy  float64    `json:"accuracy" validate:"gte=0"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Source    string     `json:"source,omitempty" validate:"omitempty,oneof=gps network passive"`
}

// PhotoRequest describes an attached photo.
type PhotoRequest struct {
	MediaID     string             `json:"mediaId"`
	TakenAt     *time.Time         `json:"takenAt,omitempty"`
	EXIF        map[string]string  `json:"exif,omitempty"`
	GPS         *CoordinateRequest `json:"gps,omitempty"`
	ContentHash string             `json:"contentHash,omitempty"`
	Quality     *float64           `json:"quality,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// DetectRequest is the request body for POST /v1/detect.
type DetectRequest struct {
	ID              string           `json:"id,omitempty"`
	AgentID         string           `json:"agentId" validate:"required"`
	Kind            string           `json:"kind" validate:"required,oneof=visit_start visit_end sale photo_upload survey_complete stock_draw"`
	Timestamp       *time.Time       `json:"timestamp" validate:"required"`
	Location        *LocationRequest `json:"location,omitempty"`
	CustomerID      string           `json:"customerId,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	DurationSeconds *float64         `json:"durationSeconds,omitempty" validate:"omitempty,gte=0"`
	Photo           *PhotoRequest    `json:"photo,omitempty"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
}

// event converts the request into an ActivityEvent, assigning an ID when
// the caller did not supply one.
func (req *DetectRequest) event() *domain.ActivityEvent {
	e := &domain.ActivityEvent{
		ID:              req.ID,
		AgentID:         req.AgentID,
		Kind:            domain.ActivityKind(req.Kind),
		Timestamp:       req.Timestamp.UTC(),
		CustomerID:      req.CustomerID,
		Amount:          req.Amount,
		DurationSeconds: req.DurationSeconds,
		Metadata:        req.Metadata,
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	if l := req.Location; l != nil {
		at := e.Timestamp
		if l.Timestamp != nil {
			at = l.Timestamp.UTC()
		}
		e.Location = &domain.LocationSample{
			Coordinate: domain.Coordinate{Latitude: l.Latitude, Longitude: l.Longitude},
			Accuracy:   l.Accuracy,
			Timestamp:  at,
			Source:     domain.LocationSource(l.Source),
		}
	}

	if p := req.Photo; p != nil {
		e.Photo = &domain.PhotoPayload{
			MediaID:     p.MediaID,
			TakenAt:     p.TakenAt,
			EXIF:        p.EXIF,
			ContentHash: p.ContentHash,
			Quality:     p.Quality,
		}
		if p.GPS != nil {
			gps := p.GPS.coordinate()
			e.Photo.GPS = &gps
		}
	}
	return e
}

// DetectResponse is the response for POST /v1/detect.
type DetectResponse struct {
	*domain.FraudResult
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Detect handles POST /v1/detect.
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req DetectRequest
	if !decode(w, r, &req) {
		return
	}

	if h.limiter != nil {
		ok, n, err := h.limiter.Allow(ctx, req.AgentID)
		if err != nil {
			slog.Warn("agent rate check failed, allowing", "agent_id", req.AgentID, "error", err)
		} else if !ok {
			slog.Warn("agent rate limit exceeded", "agent_id", req.AgentID, "count", n)
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "agent submission rate exceeded",
			})
			return
		}
	}

	event := req.event()
	result, err := h.detector.Detect(ctx, event)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := DetectResponse{FraudResult: result}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	if h.repo != nil {
		checks["repository"] = probe(r.Context(), h.repo.Ping)
	}
	if h.cache != nil {
		checks["cache"] = probe(r.Context(), h.cache.Ping)
	}
	if h.bus != nil {
		checks["bus"] = probe(r.Context(), h.bus.Ping)
	}
	for _, v := range checks {
		if v != "ok" {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready reports whether the repository is reachable. Detection still
// answers without it, but nothing it scores would be recorded.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"error": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetEvent retrieves a fraud event record by ID.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	id := chi.URLParam(r, "id")

	rec, err := h.repo.GetFraudEvent(r.Context(), id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get fraud event", "id", id, "error", err)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListAgentEvents returns an agent's most recent fraud events.
func (h *Handler) ListAgentEvents(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	agentID := chi.URLParam(r, "id")

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be an integer between 1 and 1000",
			})
			return
		}
		limit = n
	}

	events, err := h.repo.ListFraudEventsByAgent(r.Context(), agentID, limit)
	if err != nil {
		slog.Error("failed to list fraud events", "agent_id", agentID, "error", err)
		writeError(w, err)
		return
	}
	if events == nil {
		events = []*domain.FraudEventRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"agentId": agentID,
		"events":  events,
		"count":   len(events),
	})
}

// GetAgentProfile returns an agent's behavior baseline. Agents never seen
// before report the default baseline.
func (h *Handler) GetAgentProfile(w http.ResponseWriter, r *http.Request) {
	if h.profiles == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "profile store not available",
		})
		return
	}
	agentID := chi.URLParam(r, "id")

	p, err := h.profiles.Get(r.Context(), agentID)
	if err != nil {
		slog.Error("failed to get profile", "agent_id", agentID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// TerritoryRequest is the request body for PUT /v1/agents/{id}/territory.
type TerritoryRequest struct {
	Polygon []CoordinateRequest `json:"polygon" validate:"required,min=3,dive"`
}

// PutTerritory assigns an agent's territory polygon.
func (h *Handler) PutTerritory(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	agentID := chi.URLParam(r, "id")

	var req TerritoryRequest
	if !decode(w, r, &req) {
		return
	}

	t := &domain.Territory{AgentID: agentID}
	for _, c := range req.Polygon {
		t.Polygon = append(t.Polygon, c.coordinate())
	}

	if err := h.repo.SaveTerritory(r.Context(), t); err != nil {
		slog.Error("failed to save territory", "agent_id", agentID, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("territory assigned", "agent_id", agentID, "vertices", len(t.Polygon))
	writeJSON(w, http.StatusOK, t)
}

// CustomerRequest is the request body for POST /v1/customers.
type CustomerRequest struct {
	ID       string             `json:"id" validate:"required"`
	Name     string             `json:"name"`
	Location *CoordinateRequest `json:"location,omitempty"`
}

// CreateCustomer registers a customer in the directory.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	var req CustomerRequest
	if !decode(w, r, &req) {
		return
	}

	c := &domain.Customer{ID: req.ID, Name: req.Name, CreatedAt: time.Now().UTC()}
	if req.Location != nil {
		loc := req.Location.coordinate()
		c.Location = &loc
	}

	if err := h.repo.SaveCustomer(r.Context(), c); err != nil {
		slog.Error("failed to save customer", "customer_id", c.ID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListRules returns the custom rules currently loaded.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if !h.requireRules(w) {
		return
	}
	loaded := h.rules.Loaded()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string  `json:"id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression" validate:"required"`
	Category    string  `json:"category" validate:"required,oneof=LOCATION TIME PHOTO BEHAVIOR SALES PATTERN"`
	Severity    string  `json:"severity" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	Confidence  float64 `json:"confidence" validate:"gt=0,lte=1"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// CreateRule compiles a rule, persists it and loads it into the running
// rule set.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	if !h.requireRules(w) || !h.requireRepo(w) {
		return
	}

	var req CreateRuleRequest
	if !decode(w, r, &req) {
		return
	}

	now := time.Now().UTC()
	cfg := &domain.RuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Category:    domain.Category(req.Category),
		Severity:    domain.Severity(req.Severity),
		Confidence:  req.Confidence,
		Enabled:     req.Enabled == nil || *req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.rules.Validate(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRuleConfig(r.Context(), cfg); err != nil {
		slog.Error("failed to save rule config", "rule_id", cfg.ID, "error", err)
		writeError(w, err)
		return
	}

	if err := h.rules.Load(cfg); err != nil {
		slog.Error("failed to load saved rule", "rule_id", cfg.ID, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("rule created", "rule_id", cfg.ID, "name", cfg.Name, "enabled", cfg.Enabled)
	writeJSON(w, http.StatusCreated, cfg)
}

// ReloadRules replaces the running rule set with the stored rules.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if !h.requireRules(w) || !h.requireRepo(w) {
		return
	}

	stored, err := h.repo.ListRuleConfigs(r.Context())
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeError(w, err)
		return
	}

	if err := h.rules.Reload(stored); err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "stored", len(stored), "active", h.rules.Count())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"stored":  len(stored),
		"active":  h.rules.Count(),
	})
}

// RouteStop is one destination of a route request.
type RouteStop struct {
	ID        string  `json:"id" validate:"required"`
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// RouteRequest is the request body for POST /v1/routes/optimize.
type RouteRequest struct {
	Start CoordinateRequest `json:"start"`
	Stops []RouteStop       `json:"stops" validate:"required,min=1,max=500,dive"`
}

// RouteResponse lists stops in visiting order.
type RouteResponse struct {
	Stops               []RouteStop `json:"stops"`
	TotalDistanceMeters float64     `json:"totalDistanceMeters"`
}

// OptimizeRoute orders stops by greedy nearest neighbor from the start.
func (h *Handler) OptimizeRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if !decode(w, r, &req) {
		return
	}

	coords := make([]domain.Coordinate, len(req.Stops))
	for i, s := range req.Stops {
		coords[i] = domain.Coordinate{Latitude: s.Latitude, Longitude: s.Longitude}
	}

	resp := RouteResponse{Stops: make([]RouteStop, 0, len(coords))}
	prev := req.Start.coordinate()
	for _, i := range geo.OrderByNearestNeighbor(prev, coords) {
		resp.Stops = append(resp.Stops, req.Stops[i])
		resp.TotalDistanceMeters += geo.DistanceMeters(prev, coords[i])
		prev = coords[i]
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return false
	}
	return true
}

func (h *Handler) requireRules(w http.ResponseWriter) bool {
	if h.rules == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "custom rules not enabled",
		})
		return false
	}
	return true
}

func probe(ctx context.Context, ping func(context.Context) error) string {
	if err := ping(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}

// decode reads and validates a JSON body, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return false
	}
	if err := validateRequest(dst); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

// writeError maps an error to its HTTP status.
func writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	var ferr *FieldErrors
	switch {
	case errors.As(err, &ferr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": ferr.Fields,
		})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrPersistence):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
