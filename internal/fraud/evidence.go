package fraud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/policy"
	"github.com/opensource-finance/harrier/internal/repository"
)

// evidence is everything gathered for one event before scoring.
type evidence struct {
	event   *domain.ActivityEvent
	history *domain.History
	profile *domain.BehaviorProfile
	notes   []policy.Note

	// profileDegraded is set when the default baseline stood in for the
	// stored one; such events must not be folded into the baseline.
	profileDegraded bool
}

type resolvedPhoto struct {
	payload   *domain.PhotoPayload
	duplicate bool
}

// gather collects profile, history, proximity, customer, territory and
// photo evidence concurrently. A failing stage leaves its part empty and
// marks the event degraded.
func (s *Service) gather(ctx context.Context, event *domain.ActivityEvent) *evidence {
	ctx, span := tracer.Start(ctx, "fraud.gather")
	defer span.End()

	var (
		mu      sync.Mutex
		failed  []string
		history = &domain.History{}
		profile *domain.BehaviorProfile
		photo   = event.Photo
		g       errgroup.Group
	)

	stage := func(name string, fn func(ctx context.Context) error) {
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("panic: %v", rec)
				}
				if err != nil {
					span.RecordError(err)
					slog.Warn("evidence stage failed",
						"agent_id", event.AgentID,
						"event_id", event.ID,
						"stage", name,
						"error", err,
					)
					mu.Lock()
					failed = append(failed, name)
					mu.Unlock()
				}
			}()
			return fn(ctx)
		})
	}

	stage("profile", func(ctx context.Context) error {
		if s.profiles == nil {
			return nil
		}
		v, err := s.guard(ctx, "get profile", func(ctx context.Context) (any, error) {
			return s.profiles.Get(ctx, event.AgentID)
		})
		if err != nil {
			return err
		}
		profile = v.(*domain.BehaviorProfile)
		return nil
	})

	stage("history", func(ctx context.Context) error {
		since := event.Timestamp.Add(-s.cfg.HistoryWindow)
		v, err := s.guard(ctx, "list agent activity", func(ctx context.Context) (any, error) {
			return s.repo.ListAgentActivity(ctx, event.AgentID, since)
		})
		if err != nil {
			return err
		}
		acts := v.([]domain.ActivityRecord)
		mu.Lock()
		history.Activities = acts
		history.Locations = locations(acts, event)
		mu.Unlock()
		return nil
	})

	if event.Location != nil {
		stage("proximity", func(ctx context.Context) error {
			q := domain.ProximityQuery{
				ExcludeAgentID: event.AgentID,
				Center:         event.Location.Coordinate,
				RadiusMeters:   s.cfg.CollusionRadiusMeters,
				From:           event.Timestamp.Add(-s.cfg.CollusionWindow),
				To:             event.Timestamp.Add(s.cfg.CollusionWindow),
			}
			v, err := s.guard(ctx, "list nearby activity", func(ctx context.Context) (any, error) {
				return s.repo.ListActivityNear(ctx, q)
			})
			if err != nil {
				return err
			}
			mu.Lock()
			history.Nearby = v.([]domain.ActivityRecord)
			mu.Unlock()
			return nil
		})
	}

	if event.Kind == domain.KindSale && event.CustomerID != "" {
		stage("customer", func(ctx context.Context) error {
			v, err := s.guard(ctx, "resolve customer", func(ctx context.Context) (any, error) {
				return s.repo.CustomerExists(ctx, event.CustomerID)
			})
			if err != nil {
				return err
			}
			known := v.(bool)
			mu.Lock()
			history.CustomerKnown = &known
			mu.Unlock()
			return nil
		})
	}

	stage("territory", func(ctx context.Context) error {
		v, err := s.guard(ctx, "get territory", func(ctx context.Context) (any, error) {
			t, err := s.repo.GetTerritory(ctx, event.AgentID)
			if errors.Is(err, repository.ErrNotFound) {
				return (*domain.Territory)(nil), nil
			}
			return t, err
		})
		if err != nil {
			return err
		}
		if t := v.(*domain.Territory); t != nil {
			mu.Lock()
			history.Territory = t.Polygon
			mu.Unlock()
		}
		return nil
	})

	if event.Photo != nil {
		stage("photo", func(ctx context.Context) error {
			v, err := s.guard(ctx, "resolve photo", func(ctx context.Context) (any, error) {
				resolved, duplicate, err := s.photos.Resolve(ctx, event)
				return resolvedPhoto{payload: resolved, duplicate: duplicate}, err
			})
			if err != nil {
				return err
			}
			r := v.(resolvedPhoto)
			mu.Lock()
			photo = r.payload
			history.DuplicatePhoto = r.duplicate
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	ev := &evidence{event: event, history: history, profile: profile}

	if photo != event.Photo {
		scored := *event
		scored.Photo = photo
		ev.event = &scored
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		ev.notes = append(ev.notes, policy.Note{
			Kind:   policy.NoteDegraded,
			Detail: "degraded scoring: " + strings.Join(failed, ", ") + " unavailable",
		})
		for _, f := range failed {
			if f == "profile" {
				ev.profileDegraded = true
			}
		}
	}
	if ev.profile == nil {
		ev.profile = domain.NewDefaultProfile(event.AgentID, event.Timestamp)
	}

	return ev
}

// locations extracts the agent's located activity up to the event, leaving
// out the event itself so a replay is scored like the original.
func locations(acts []domain.ActivityRecord, event *domain.ActivityEvent) []domain.LocationSample {
	out := make([]domain.LocationSample, 0, len(acts))
	for _, a := range acts {
		if a.Location == nil || a.Timestamp.After(event.Timestamp) {
			continue
		}
		if event.ID != "" && a.EventID == event.ID {
			continue
		}
		out = append(out, *a.Location)
	}
	return out
}
