package media

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/opensource-finance/harrier/internal/domain"
)

// User metadata keys written by the upload client. S3 returns them
// lower-cased without the x-amz-meta- prefix.
const (
	metaEXIFPrefix = "exif-"
	metaTakenAt    = "taken-at"
	metaGPSLat     = "gps-lat"
	metaGPSLng     = "gps-lng"
	metaSHA256     = "sha256"
)

type headObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store reads photo metadata from object headers in an S3 bucket.
type S3Store struct {
	client headObjectAPI
	bucket string
}

// NewS3Store connects to S3 or an S3-compatible endpoint.
func NewS3Store(ctx context.Context, cfg domain.MediaConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("media bucket is required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Store{client: s3.NewFromConfig(awsCfg, s3Opts...), bucket: cfg.Bucket}, nil
}

// Metadata implements MetadataStore. The media ID is the object key.
func (s *S3Store) Metadata(ctx context.Context, mediaID string) (*Metadata, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(mediaID),
	})
	if err != nil {
		var nf *types.NotFound
		var nsk *types.NoSuchKey
		if errors.As(err, &nf) || errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("head object: %w", err)
	}

	return fromObjectMetadata(out.Metadata, aws.ToString(out.ETag), aws.ToInt64(out.ContentLength)), nil
}

func fromObjectMetadata(md map[string]string, etag string, size int64) *Metadata {
	meta := &Metadata{Size: size}

	for k, v := range md {
		k = strings.ToLower(k)
		if name, ok := strings.CutPrefix(k, metaEXIFPrefix); ok && name != "" {
			if meta.EXIF == nil {
				meta.EXIF = make(map[string]string)
			}
			meta.EXIF[name] = v
		}
	}

	if v := lookup(md, metaTakenAt); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			meta.TakenAt = &ts
		}
	}

	lat, errLat := strconv.ParseFloat(lookup(md, metaGPSLat), 64)
	lng, errLng := strconv.ParseFloat(lookup(md, metaGPSLng), 64)
	if errLat == nil && errLng == nil {
		meta.GPS = &domain.Coordinate{Latitude: lat, Longitude: lng}
	}

	// Multipart ETags are not content hashes.
	meta.ContentHash = lookup(md, metaSHA256)
	if meta.ContentHash == "" && etag != "" && !strings.Contains(etag, "-") {
		meta.ContentHash = strings.Trim(etag, `"`)
	}

	return meta
}

func lookup(md map[string]string, key string) string {
	for k, v := range md {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
