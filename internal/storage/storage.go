// Package storage hands out presigned S3 upload URLs for user images.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/codu-code/codu/internal/config"
	"github.com/codu-code/codu/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var storageLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	storageLogger = l
}

var (
	ErrDisabled          = errors.New("uploads are not configured")
	ErrUnsupportedType   = errors.New("unsupported file type")
	ErrTooLarge          = errors.New("file is too large")
	ErrInvalidUploadKind = errors.New("invalid upload kind")
)

type Kind string

const (
	KindCover  Kind = "cover"
	KindBody   Kind = "body"
	KindAvatar Kind = "avatar"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCover, KindBody, KindAvatar:
		return true
	}
	return false
}

var extensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

type UploadRequest struct {
	Kind        Kind
	ContentType string
	Size        int64
}

// Upload is a presigned PUT the client performs directly against the bucket.
type Upload struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Key       string            `json:"key"`
	PublicURL string            `json:"publicUrl"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Uploader presigns uploads.
type Uploader interface {
	PresignUpload(ctx context.Context, owner model.UserID, req UploadRequest) (*Upload, error)
}

type S3Uploader struct {
	presigner *s3.PresignClient
	bucket    string
	region    string
	endpoint  string
	ttl       time.Duration
	maxBytes  int64

	now func() time.Time
}

// NewS3Uploader builds a client from cfg. Static credentials are used when
// configured, otherwise the default AWS chain.
func NewS3Uploader(ctx context.Context, cfg config.StorageConfig) (*S3Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing S3 client: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Uploader{
		presigner: s3.NewPresignClient(client, func(o *s3.PresignOptions) {
			o.Expires = cfg.PresignTTL
		}),
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		ttl:      cfg.PresignTTL,
		maxBytes: cfg.MaxUploadBytes,
		now:      time.Now,
	}, nil
}

// Key returns the object key for an upload: uploads/<kind>/<owner>/<uuid>.<ext>.
func Key(owner model.UserID, kind Kind, ext string) string {
	return path.Join("uploads", string(kind), url.PathEscape(string(owner)), uuid.NewString()+"."+ext)
}

func (u *S3Uploader) check(req UploadRequest) (string, error) {
	if !req.Kind.Valid() {
		return "", ErrInvalidUploadKind
	}
	ext, ok := extensions[strings.ToLower(req.ContentType)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, req.ContentType)
	}
	if req.Size <= 0 || req.Size > u.maxBytes {
		return "", fmt.Errorf("%w: %d bytes, max %d", ErrTooLarge, req.Size, u.maxBytes)
	}
	return ext, nil
}

func (u *S3Uploader) PresignUpload(ctx context.Context, owner model.UserID, req UploadRequest) (*Upload, error) {
	ext, err := u.check(req)
	if err != nil {
		return nil, err
	}

	key := Key(owner, req.Kind, ext)
	signed, err := u.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(req.ContentType),
		ContentLength: aws.Int64(req.Size),
	})
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	headers := make(map[string]string, len(signed.SignedHeader))
	for name, values := range signed.SignedHeader {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	storageLogger.Debug().Str("user_id", string(owner)).Str("key", key).Msg("Presigned upload")

	return &Upload{
		URL:       signed.URL,
		Method:    signed.Method,
		Headers:   headers,
		Key:       key,
		PublicURL: u.PublicURL(key),
		ExpiresAt: u.now().Add(u.ttl).UTC(),
	}, nil
}

// PublicURL is where an uploaded object is served from.
func (u *S3Uploader) PublicURL(key string) string {
	if u.endpoint != "" {
		return u.endpoint + "/" + u.bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key)
}

// Disabled rejects every upload.
type Disabled struct{}

func (Disabled) PresignUpload(context.Context, model.UserID, UploadRequest) (*Upload, error) {
	return nil, ErrDisabled
}
