// Package media resolves photo evidence for an activity: stored metadata,
// exact-duplicate detection and a quality estimate.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ErrNotFound is returned when the store has no object for a media ID.
var ErrNotFound = errors.New("media not found")

// Metadata is what the media store knows about one upload.
type Metadata struct {
	EXIF        map[string]string
	TakenAt     *time.Time
	GPS         *domain.Coordinate
	ContentHash string
	Size        int64
}

// MetadataStore fetches raw photo metadata.
type MetadataStore interface {
	Metadata(ctx context.Context, mediaID string) (*Metadata, error)
}

// DuplicateChecker reports whether content was already submitted by
// another event.
type DuplicateChecker interface {
	IsDuplicate(ctx context.Context, contentHash, eventID string) (bool, error)
}

// QualityScorer estimates photo quality on a 0..100 scale. ok is false
// when the metadata does not allow an estimate.
type QualityScorer interface {
	Quality(exif map[string]string) (score float64, ok bool)
}

// NewStore builds the metadata store selected by cfg.
func NewStore(ctx context.Context, cfg domain.MediaConfig) (MetadataStore, error) {
	switch cfg.Type {
	case "none", "":
		return NoopStore{}, nil
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported media store: %s", cfg.Type)
	}
}

// NoopStore knows no media. Photos are scored on their inline payload only.
type NoopStore struct{}

// Metadata implements MetadataStore.
func (NoopStore) Metadata(context.Context, string) (*Metadata, error) {
	return nil, ErrNotFound
}

// NoopDuplicates never reports a duplicate.
type NoopDuplicates struct{}

// IsDuplicate implements DuplicateChecker.
func (NoopDuplicates) IsDuplicate(context.Context, string, string) (bool, error) {
	return false, nil
}

// Resolver completes a photo payload from the collaborators above.
type Resolver struct {
	store   MetadataStore
	dups    DuplicateChecker
	quality QualityScorer
}

// NewResolver wires the photo collaborators. Nil arguments fall back to
// the no-op implementations; a nil scorer leaves quality unset.
func NewResolver(store MetadataStore, dups DuplicateChecker, quality QualityScorer) *Resolver {
	if store == nil {
		store = NoopStore{}
	}
	if dups == nil {
		dups = NoopDuplicates{}
	}
	return &Resolver{store: store, dups: dups, quality: quality}
}

// Resolve returns a completed copy of the event's photo and whether it is a
// duplicate. Inline payload fields win over stored metadata. It returns
// nil, false, nil for events without a photo.
func (r *Resolver) Resolve(ctx context.Context, event *domain.ActivityEvent) (*domain.PhotoPayload, bool, error) {
	if event.Photo == nil {
		return nil, false, nil
	}
	photo := *event.Photo

	if photo.MediaID != "" && (len(photo.EXIF) == 0 || photo.ContentHash == "") {
		meta, err := r.store.Metadata(ctx, photo.MediaID)
		switch {
		case errors.Is(err, ErrNotFound):
			slog.Debug("no stored metadata for photo", "media_id", photo.MediaID, "event_id", event.ID)
		case err != nil:
			return nil, false, fmt.Errorf("photo metadata %s: %w", photo.MediaID, err)
		default:
			merge(&photo, meta)
		}
	}

	if photo.Quality == nil && r.quality != nil {
		if q, ok := r.quality.Quality(photo.EXIF); ok {
			photo.Quality = &q
		}
	}

	duplicate := false
	if photo.ContentHash != "" {
		dup, err := r.dups.IsDuplicate(ctx, photo.ContentHash, event.ID)
		if err != nil {
			return nil, false, fmt.Errorf("duplicate check %s: %w", photo.MediaID, err)
		}
		duplicate = dup
	}

	return &photo, duplicate, nil
}

func merge(photo *domain.PhotoPayload, meta *Metadata) {
	if len(photo.EXIF) == 0 && len(meta.EXIF) > 0 {
		photo.EXIF = meta.EXIF
	}
	if photo.TakenAt == nil {
		photo.TakenAt = meta.TakenAt
	}
	if photo.GPS == nil {
		photo.GPS = meta.GPS
	}
	if photo.ContentHash == "" {
		photo.ContentHash = meta.ContentHash
	}
}
