package detectors

import (
	"math"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/geo"
)

// Photo flag descriptions.
const (
	DescMissingEXIF       = "possible stock photo: missing EXIF metadata"
	DescPhotoGPS          = "photo GPS requires cross-validation"
	DescPhotoTimeMismatch = "photo timestamp differs from activity"
	DescDuplicatePhoto    = "duplicate image detected"
)

// MaxPhotoSkew is the tolerated gap between capture and activity time.
const MaxPhotoSkew = 5 * time.Minute

// Photo inspects the photo payload of an event, when present.
type Photo struct{}

// Name implements Detector.
func (Photo) Name() string { return NamePhoto }

// Detect implements Detector.
func (Photo) Detect(in *Input) ([]domain.Flag, error) {
	p := in.Event.Photo
	if p == nil {
		return nil, nil
	}
	var flags []domain.Flag

	if len(p.EXIF) == 0 {
		flags = append(flags, domain.Flag{
			Category:    domain.CategoryPhoto,
			Severity:    domain.SeverityMedium,
			Description: DescMissingEXIF,
			Confidence:  0.5,
			Evidence:    map[string]any{"media_id": p.MediaID},
		})
	}

	if p.GPS != nil {
		evidence := map[string]any{
			"photo_latitude":  p.GPS.Latitude,
			"photo_longitude": p.GPS.Longitude,
		}
		if in.Event.Location != nil {
			evidence["distance_m"] = geo.DistanceMeters(*p.GPS, in.Event.Location.Coordinate)
		}
		flags = append(flags, domain.Flag{
			Category:    domain.CategoryPhoto,
			Severity:    domain.SeverityLow,
			Description: DescPhotoGPS,
			Confidence:  0.2,
			Evidence:    evidence,
		})
	}

	if p.TakenAt != nil {
		skew := p.TakenAt.Sub(in.Event.Timestamp)
		if math.Abs(skew.Seconds()) > MaxPhotoSkew.Seconds() {
			flags = append(flags, domain.Flag{
				Category:    domain.CategoryPhoto,
				Severity:    domain.SeverityMedium,
				Description: DescPhotoTimeMismatch,
				Confidence:  0.5,
				Evidence: map[string]any{
					"taken_at":  p.TakenAt.UTC(),
					"skew_secs": skew.Seconds(),
				},
			})
		}
	}

	if in.History.DuplicatePhoto {
		flags = append(flags, domain.Flag{
			Category:    domain.CategoryPhoto,
			Severity:    domain.SeverityHigh,
			Description: DescDuplicatePhoto,
			Confidence:  0.7,
			Evidence: map[string]any{
				"media_id":     p.MediaID,
				"content_hash": p.ContentHash,
			},
		})
	}

	return flags, nil
}
