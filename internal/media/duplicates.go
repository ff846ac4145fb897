package media

import (
	"context"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// CacheDuplicates remembers content hashes in the shared cache. The first
// event to register a hash owns it; replays of that same event are not
// duplicates.
type CacheDuplicates struct {
	cache domain.Cache
	ttl   time.Duration
}

// NewCacheDuplicates creates a hash registry with the given retention.
func NewCacheDuplicates(c domain.Cache, ttl time.Duration) *CacheDuplicates {
	return &CacheDuplicates{cache: c, ttl: ttl}
}

// IsDuplicate implements DuplicateChecker.
func (d *CacheDuplicates) IsDuplicate(ctx context.Context, contentHash, eventID string) (bool, error) {
	key := "photo:" + contentHash

	stored, err := d.cache.SetNX(ctx, key, []byte(eventID), d.ttl)
	if err != nil {
		return false, err
	}
	if stored {
		return false, nil
	}

	owner, err := d.cache.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return owner == nil || string(owner) != eventID, nil
}
