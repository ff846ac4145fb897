// Package profile maintains the rolling per-agent behavior baseline.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/repository"
)

// Repository is the subset of domain.Repository the store needs.
type Repository interface {
	GetProfile(ctx context.Context, agentID string) (*domain.BehaviorProfile, error)
	CreateProfileIfAbsent(ctx context.Context, profile *domain.BehaviorProfile) (*domain.BehaviorProfile, error)
	UpsertProfile(ctx context.Context, profile *domain.BehaviorProfile) error
}

// Store reads baselines through the cache and writes them through to the
// repository. Updates for one agent are serialized.
type Store struct {
	repo  Repository
	cache domain.Cache
	ttl   time.Duration
	locks *keyedMutex
	now   func() time.Time
}

// NewStore creates a profile store. cache may be nil.
func NewStore(repo Repository, c domain.Cache, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{
		repo:  repo,
		cache: c,
		ttl:   ttl,
		locks: newKeyedMutex(),
		now:   time.Now,
	}
}

func cacheKey(agentID string) string {
	return "profile:" + agentID
}

// Get returns the agent's baseline, creating the default one on first
// sight. Cache failures are logged and otherwise ignored.
func (s *Store) Get(ctx context.Context, agentID string) (*domain.BehaviorProfile, error) {
	if s.cache != nil {
		p, err := cache.GetJSON[domain.BehaviorProfile](ctx, s.cache, cacheKey(agentID))
		if err != nil {
			slog.Warn("profile cache read failed", "agent_id", agentID, "error", err)
		} else if p != nil {
			return p, nil
		}
	}

	p, err := s.load(ctx, agentID)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, p)
	return p, nil
}

// Update folds a scored event into the agent's baseline and persists it.
func (s *Store) Update(ctx context.Context, event *domain.ActivityEvent, result *domain.FraudResult) (*domain.BehaviorProfile, error) {
	unlock := s.locks.Lock(event.AgentID)
	defer unlock()

	// Read from the repository, not the cache, so concurrent instances do
	// not fold into a stale copy.
	current, err := s.load(ctx, event.AgentID)
	if err != nil {
		return nil, err
	}

	next := Apply(current, event, result.RiskLevel, s.now())
	if err := s.repo.UpsertProfile(ctx, next); err != nil {
		return nil, fmt.Errorf("upsert profile %s: %w", event.AgentID, err)
	}
	s.remember(ctx, next)

	slog.Debug("profile updated",
		"agent_id", event.AgentID,
		"suspicious_count", next.SuspiciousCount,
		"common_locations", len(next.CommonLocations),
	)
	return next, nil
}

// Invalidate drops the cached copy of an agent's baseline.
func (s *Store) Invalidate(ctx context.Context, agentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(agentID)); err != nil {
		slog.Warn("profile cache delete failed", "agent_id", agentID, "error", err)
	}
}

func (s *Store) load(ctx context.Context, agentID string) (*domain.BehaviorProfile, error) {
	p, err := s.repo.GetProfile(ctx, agentID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get profile %s: %w", agentID, err)
	}

	p, err = s.repo.CreateProfileIfAbsent(ctx, domain.NewDefaultProfile(agentID, s.now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("create profile %s: %w", agentID, err)
	}
	slog.Info("created default profile", "agent_id", agentID)
	return p, nil
}

func (s *Store) remember(ctx context.Context, p *domain.BehaviorProfile) {
	if s.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, cacheKey(p.AgentID), p, s.ttl); err != nil {
		slog.Warn("profile cache write failed", "agent_id", p.AgentID, "error", err)
	}
}
