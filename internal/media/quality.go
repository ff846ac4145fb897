package media

import (
	"math"
	"strconv"
)

// ReferenceMegapixels is the resolution that earns a full score.
const ReferenceMegapixels = 12.0

// ExifQuality derives a rough quality score from EXIF tags: resolution
// relative to ReferenceMegapixels, less a penalty for editing software and
// for a missing camera make/model.
type ExifQuality struct{}

// Quality implements QualityScorer.
func (ExifQuality) Quality(exif map[string]string) (float64, bool) {
	w := dimension(exif, "PixelXDimension", "ImageWidth")
	h := dimension(exif, "PixelYDimension", "ImageLength")
	if w <= 0 || h <= 0 {
		return 0, false
	}

	score := 100 * (w * h / 1e6) / ReferenceMegapixels
	if lookup(exif, "Software") != "" {
		score -= 25
	}
	if lookup(exif, "Make") == "" && lookup(exif, "Model") == "" {
		score -= 15
	}
	return math.Max(0, math.Min(100, score)), true
}

func dimension(exif map[string]string, keys ...string) float64 {
	for _, k := range keys {
		if v, err := strconv.ParseFloat(lookup(exif, k), 64); err == nil && v > 0 {
			return v
		}
	}
	return 0
}
