package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
)

type fakeHead struct {
	out *s3.HeadObjectOutput
	err error
	key string
}

func (f *fakeHead) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.key = aws.ToString(in.Key)
	return f.out, f.err
}

type staticStore struct {
	meta  *Metadata
	err   error
	calls int
}

func (s *staticStore) Metadata(context.Context, string) (*Metadata, error) {
	s.calls++
	return s.meta, s.err
}

func TestS3StoreMetadata(t *testing.T) {
	ctx := context.Background()

	t.Run("reads user metadata", func(t *testing.T) {
		head := &fakeHead{out: &s3.HeadObjectOutput{
			ETag:          aws.String(`"9b2cf535f27731c974343645a3985328"`),
			ContentLength: aws.Int64(2048),
			Metadata: map[string]string{
				"exif-make":  "Canon",
				"exif-model": "EOS 200D",
				"taken-at":   "2026-02-01T09:15:00Z",
				"gps-lat":    "-25.7479",
				"gps-lng":    "28.2293",
				"other":      "ignored",
			},
		}}
		store := &S3Store{client: head, bucket: "photos"}

		meta, err := store.Metadata(ctx, "agent-1/photo.jpg")
		require.NoError(t, err)
		assert.Equal(t, "agent-1/photo.jpg", head.key)
		assert.Equal(t, map[string]string{"make": "Canon", "model": "EOS 200D"}, meta.EXIF)
		require.NotNil(t, meta.TakenAt)
		assert.Equal(t, time.Date(2026, 2, 1, 9, 15, 0, 0, time.UTC), *meta.TakenAt)
		require.NotNil(t, meta.GPS)
		assert.Equal(t, -25.7479, meta.GPS.Latitude)
		assert.Equal(t, "9b2cf535f27731c974343645a3985328", meta.ContentHash)
		assert.Equal(t, int64(2048), meta.Size)
	})

	t.Run("multipart etag is not a hash", func(t *testing.T) {
		meta := fromObjectMetadata(nil, `"abc-3"`, 10)
		assert.Empty(t, meta.ContentHash)
		assert.Nil(t, meta.EXIF)
		assert.Nil(t, meta.GPS)
	})

	t.Run("explicit sha256 wins", func(t *testing.T) {
		meta := fromObjectMetadata(map[string]string{"sha256": "deadbeef"}, `"abc"`, 10)
		assert.Equal(t, "deadbeef", meta.ContentHash)
	})

	t.Run("missing object", func(t *testing.T) {
		store := &S3Store{client: &fakeHead{err: &types.NotFound{}}, bucket: "photos"}
		_, err := store.Metadata(ctx, "gone.jpg")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("transport failure", func(t *testing.T) {
		store := &S3Store{client: &fakeHead{err: errors.New("timeout")}, bucket: "photos"}
		_, err := store.Metadata(ctx, "x.jpg")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestCacheDuplicates(t *testing.T) {
	ctx := context.Background()
	d := NewCacheDuplicates(cache.NewLRUCache(100), time.Hour)

	dup, err := d.IsDuplicate(ctx, "hash-1", "evt-1")
	require.NoError(t, err)
	assert.False(t, dup, "first sighting")

	dup, err = d.IsDuplicate(ctx, "hash-1", "evt-1")
	require.NoError(t, err)
	assert.False(t, dup, "replay of the owning event")

	dup, err = d.IsDuplicate(ctx, "hash-1", "evt-2")
	require.NoError(t, err)
	assert.True(t, dup, "same content from another event")
}

func TestExifQuality(t *testing.T) {
	q := ExifQuality{}

	_, ok := q.Quality(map[string]string{"Make": "Canon"})
	assert.False(t, ok, "no dimensions")

	score, ok := q.Quality(map[string]string{"PixelXDimension": "4000", "PixelYDimension": "3000", "Make": "Canon"})
	require.True(t, ok)
	assert.InDelta(t, 100, score, 1e-9)

	score, ok = q.Quality(map[string]string{"imagewidth": "2000", "imagelength": "1500", "software": "Photoshop"})
	require.True(t, ok)
	assert.InDelta(t, 0, score, 1e-9) // 25 - 25 - 15 clamps to 0

	score, ok = q.Quality(map[string]string{"ImageWidth": "4000", "ImageLength": "3000", "Model": "X"})
	require.True(t, ok)
	assert.InDelta(t, 100, score, 1e-9)
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	taken := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	t.Run("no photo", func(t *testing.T) {
		r := NewResolver(nil, nil, nil)
		photo, dup, err := r.Resolve(ctx, &domain.ActivityEvent{ID: "e"})
		require.NoError(t, err)
		assert.Nil(t, photo)
		assert.False(t, dup)
	})

	t.Run("fills from store and scores", func(t *testing.T) {
		store := &staticStore{meta: &Metadata{
			EXIF:        map[string]string{"PixelXDimension": "4000", "PixelYDimension": "3000", "Make": "Canon"},
			TakenAt:     &taken,
			ContentHash: "h1",
		}}
		dups := NewCacheDuplicates(cache.NewLRUCache(10), time.Hour)
		r := NewResolver(store, dups, ExifQuality{})

		event := &domain.ActivityEvent{ID: "e1", Photo: &domain.PhotoPayload{MediaID: "m1"}}
		photo, dup, err := r.Resolve(ctx, event)
		require.NoError(t, err)
		assert.False(t, dup)
		assert.Equal(t, "Canon", photo.EXIF["Make"])
		assert.Equal(t, &taken, photo.TakenAt)
		require.NotNil(t, photo.Quality)
		assert.InDelta(t, 100, *photo.Quality, 1e-9)
		assert.Nil(t, event.Photo.EXIF, "event payload must not be modified")

		_, dup, err = r.Resolve(ctx, &domain.ActivityEvent{ID: "e2", Photo: &domain.PhotoPayload{MediaID: "m2"}})
		require.NoError(t, err)
		assert.True(t, dup)
	})

	t.Run("inline payload skips the store", func(t *testing.T) {
		store := &staticStore{}
		r := NewResolver(store, nil, nil)
		event := &domain.ActivityEvent{ID: "e", Photo: &domain.PhotoPayload{
			MediaID: "m", EXIF: map[string]string{"Make": "Nokia"}, ContentHash: "inline",
		}}
		photo, _, err := r.Resolve(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, 0, store.calls)
		assert.Equal(t, "inline", photo.ContentHash)
	})

	t.Run("unknown media is not an error", func(t *testing.T) {
		r := NewResolver(NoopStore{}, nil, nil)
		photo, _, err := r.Resolve(ctx, &domain.ActivityEvent{ID: "e", Photo: &domain.PhotoPayload{MediaID: "m"}})
		require.NoError(t, err)
		assert.Empty(t, photo.EXIF)
	})

	t.Run("store failure is returned", func(t *testing.T) {
		r := NewResolver(&staticStore{err: errors.New("s3 down")}, nil, nil)
		_, _, err := r.Resolve(ctx, &domain.ActivityEvent{ID: "e", Photo: &domain.PhotoPayload{MediaID: "m"}})
		assert.Error(t, err)
	})
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(context.Background(), domain.MediaConfig{Type: "none"})
	require.NoError(t, err)
	assert.IsType(t, NoopStore{}, s)

	_, err = NewStore(context.Background(), domain.MediaConfig{Type: "ftp"})
	assert.Error(t, err)

	_, err = NewStore(context.Background(), domain.MediaConfig{Type: "s3"})
	assert.Error(t, err, "bucket is required")
}
