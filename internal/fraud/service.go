// Package fraud orchestrates one detection: evidence gathering, scoring,
// policy, and the audit, baseline and dispatch side effects.
package fraud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/harrier/internal/detectors"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/media"
	"github.com/opensource-finance/harrier/internal/metrics"
	"github.com/opensource-finance/harrier/internal/policy"
)

var tracer = otel.Tracer("harrier-fraud")

// ProfileStore reads and folds behavior baselines.
type ProfileStore interface {
	Get(ctx context.Context, agentID string) (*domain.BehaviorProfile, error)
	Update(ctx context.Context, event *domain.ActivityEvent, result *domain.FraudResult) (*domain.BehaviorProfile, error)
}

// Dispatcher delivers the actions of a result.
type Dispatcher interface {
	Dispatch(ctx context.Context, result *domain.FraudResult) error
}

// PhotoResolver completes photo evidence for an event.
type PhotoResolver interface {
	Resolve(ctx context.Context, event *domain.ActivityEvent) (*domain.PhotoPayload, bool, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Repository domain.Repository
	Profiles   ProfileStore
	Registry   *detectors.Registry
	Dispatcher Dispatcher
	Photos     PhotoResolver
	Metrics    *metrics.Metrics
	Detection  domain.DetectionConfig
	Breaker    domain.BreakerConfig
}

// Service is the fraud detection orchestrator.
type Service struct {
	repo       domain.Repository
	profiles   ProfileStore
	registry   *detectors.Registry
	dispatcher Dispatcher
	photos     PhotoResolver
	metrics    *metrics.Metrics
	breaker    *gobreaker.CircuitBreaker
	cfg        domain.DetectionConfig

	now   func() time.Time
	newID func() string
}

// NewService wires an orchestrator. Missing optional collaborators fall
// back to no-op implementations.
func NewService(d Deps) *Service {
	cfg := d.Detection
	def := domain.DefaultConfig().Detection
	if cfg.PersistenceTimeout <= 0 {
		cfg.PersistenceTimeout = def.PersistenceTimeout
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}
	if cfg.CollusionRadiusMeters <= 0 {
		cfg.CollusionRadiusMeters = def.CollusionRadiusMeters
	}
	if cfg.CollusionWindow <= 0 {
		cfg.CollusionWindow = def.CollusionWindow
	}

	registry := d.Registry
	if registry == nil {
		registry = detectors.NewRegistry(cfg.MaxDetectorWorkers, detectors.Builtin(detectors.Options{
			CollusionRadiusMeters: cfg.CollusionRadiusMeters,
			CollusionWindow:       cfg.CollusionWindow,
		})...)
	}

	photos := d.Photos
	if photos == nil {
		photos = media.NewResolver(nil, nil, nil)
	}

	dispatcher := d.Dispatcher
	if dispatcher == nil {
		dispatcher = noopDispatcher{}
	}

	return &Service{
		repo:       d.Repository,
		profiles:   d.Profiles,
		registry:   registry,
		dispatcher: dispatcher,
		photos:     photos,
		metrics:    d.Metrics,
		breaker:    newBreaker(d.Breaker, d.Metrics),
		cfg:        cfg,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

func newBreaker(cfg domain.BreakerConfig, m *metrics.Metrics) *gobreaker.CircuitBreaker {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "persistence",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		// A caller giving up says nothing about the health of the store.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			m.BreakerStateChanged(name, from, to)
		},
	})
}

// Detect scores one activity event. Only a malformed event produces an
// error; every other failure is absorbed into the result.
func (s *Service) Detect(ctx context.Context, event *domain.ActivityEvent) (result *domain.FraudResult, err error) {
	if event == nil {
		return nil, &domain.ValidationError{Fields: []string{"event is required"}}
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if event.ID == "" {
		// Duplicate-photo ownership and history exclusion key on the ID.
		identified := *event
		identified.ID = s.newID()
		event = &identified
	}

	start := s.now()
	ctx, span := tracer.Start(ctx, "fraud.Detect",
		trace.WithAttributes(
			attribute.String("agent.id", event.AgentID),
			attribute.String("activity.kind", string(event.Kind)),
		),
	)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("fraud pipeline panic",
				"agent_id", event.AgentID,
				"event_id", event.ID,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			span.SetStatus(codes.Error, "panic")
			result = s.failure(ctx, event, fmt.Sprintf("%v", rec))
			err = nil
		}
	}()

	ev := s.gather(ctx, event)

	eval := s.Evaluate(ctx, ev.event, ev.history, ev.profile, ev.notes)
	result = eval.Result
	s.assignIDs(result)

	for _, f := range eval.Failures {
		s.metrics.DetectorFailed(f.Detector)
		slog.Warn("detector failed",
			"agent_id", event.AgentID,
			"event_id", event.ID,
			"detector", f.Detector,
			"error", f.Err,
		)
	}

	s.record(ctx, ev.event, result, ev.profileDegraded)

	elapsed := s.now().Sub(start)
	s.metrics.ObserveResult(result, elapsed)
	span.SetAttributes(
		attribute.String("risk.level", string(result.RiskLevel)),
		attribute.Float64("risk.score", result.RiskScore),
		attribute.Int("flag.count", len(result.Flags)),
		attribute.Bool("degraded", result.Degraded),
	)

	slog.Info("activity scored",
		"agent_id", event.AgentID,
		"event_id", event.ID,
		"result_id", result.ID,
		"kind", event.Kind,
		"risk_level", result.RiskLevel,
		"risk_score", result.RiskScore,
		"flag_count", len(result.Flags),
		"degraded", result.Degraded,
		"duration_ms", elapsed.Milliseconds(),
	)

	return result, nil
}

// record runs the post-scoring side effects: audit append, baseline update
// and dispatch. Failures are logged, never returned.
func (s *Service) record(ctx context.Context, event *domain.ActivityEvent, result *domain.FraudResult, skipProfile bool) {
	ctx, span := tracer.Start(ctx, "fraud.record")
	defer span.End()

	rec := domain.NewFraudEventRecord(event, result, s.now())
	if _, err := s.guard(ctx, "append fraud event", func(ctx context.Context) (any, error) {
		return nil, s.repo.AppendFraudEvent(ctx, rec)
	}); err != nil {
		span.RecordError(err)
		slog.Error("failed to append fraud event",
			"agent_id", event.AgentID,
			"result_id", result.ID,
			"error", err,
		)
	}

	if skipProfile {
		slog.Warn("profile update skipped for degraded event",
			"agent_id", event.AgentID,
			"result_id", result.ID,
		)
	} else if s.profiles != nil {
		if _, err := s.guard(ctx, "update profile", func(ctx context.Context) (any, error) {
			return s.profiles.Update(ctx, event, result)
		}); err != nil {
			span.RecordError(err)
			slog.Error("failed to update profile",
				"agent_id", event.AgentID,
				"error", err,
			)
		}
	}

	if err := s.dispatcher.Dispatch(ctx, result); err != nil {
		span.RecordError(err)
		slog.Error("failed to dispatch actions",
			"agent_id", event.AgentID,
			"result_id", result.ID,
			"error", err,
		)
	}
}

// failure builds and dispatches the result for a pipeline that panicked.
func (s *Service) failure(ctx context.Context, event *domain.ActivityEvent, cause string) *domain.FraudResult {
	d := policy.Failure(event.AgentID, cause)
	result := &domain.FraudResult{
		AgentID:         event.AgentID,
		EventID:         event.ID,
		EventTimestamp:  event.Timestamp,
		RiskLevel:       domain.RiskLow,
		RiskScore:       0,
		Flags:           []domain.Flag{},
		Recommendations: d.Recommendations,
		Actions:         d.Actions,
		Degraded:        true,
	}
	s.assignIDs(result)

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("failure dispatch panic", "agent_id", event.AgentID, "panic", rec)
			}
		}()
		if err := s.dispatcher.Dispatch(ctx, result); err != nil {
			slog.Error("failed to dispatch failure incident", "agent_id", event.AgentID, "error", err)
		}
	}()

	s.metrics.ObserveResult(result, 0)
	return result
}

func (s *Service) assignIDs(result *domain.FraudResult) {
	result.ID = s.newID()
	for i := range result.Actions {
		result.Actions[i].ID = s.newID()
	}
}

// guard bounds a store call by the persistence timeout and routes it
// through the circuit breaker. Failures come back as *PersistenceError.
func (s *Service) guard(ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PersistenceTimeout)
	defer cancel()

	v, err := s.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return nil, &domain.PersistenceError{Op: op, Err: err}
	}
	return v, nil
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, *domain.FraudResult) error { return nil }
