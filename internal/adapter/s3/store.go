// Package s3 keeps session uploads in an S3-compatible bucket under
// sessions/<sessionId>/ and mirrors them into the local file area.
package s3

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"liveworkshop/backend/internal/ingest"
)

const defaultPresignTTL = 15 * time.Minute

var ErrDisabled = errors.New("object storage is not configured")

// API is the subset of *s3.Client the store uses.
type API interface {
	awss3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
}

type Presigner interface {
	PresignPutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Options struct {
	Bucket     string
	Region     string
	Endpoint   string
	PresignTTL time.Duration
	// MaxObjectBytes caps a single download; zero means unlimited.
	MaxObjectBytes int64
}

type PresignedUpload struct {
	URL       string              `json:"url"`
	Method    string              `json:"method"`
	Key       string              `json:"key"`
	Headers   map[string][]string `json:"headers,omitempty"`
	ExpiresAt time.Time           `json:"expiresAt"`
}

type Store struct {
	api     API
	presign Presigner
	area    *ingest.FileArea
	opts    Options
}

// New builds a store from the default AWS credential chain. A custom
// endpoint switches to path-style addressing for MinIO and friends.
func New(ctx context.Context, area *ingest.FileArea, opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, ErrDisabled
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewStore(client, awss3.NewPresignClient(client), area, opts), nil
}

func NewStore(api API, presign Presigner, area *ingest.FileArea, opts Options) *Store {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = defaultPresignTTL
	}
	return &Store{api: api, presign: presign, area: area, opts: opts}
}

func SessionPrefix(sessionID string) string {
	return "sessions/" + sessionID + "/"
}

// PresignUpload returns a time-limited PUT URL for one session file.
func (s *Store) PresignUpload(ctx context.Context, sessionID, fileName string) (*PresignedUpload, error) {
	if err := ingest.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	name, err := ingest.SanitizeFileName(fileName)
	if err != nil {
		return nil, err
	}
	key := SessionPrefix(sessionID) + name

	req, err := s.presign.PresignPutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	}, awss3.WithPresignExpires(s.opts.PresignTTL))
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}
	return &PresignedUpload{
		URL:       req.URL,
		Method:    req.Method,
		Key:       key,
		Headers:   req.SignedHeader,
		ExpiresAt: time.Now().Add(s.opts.PresignTTL).UTC(),
	}, nil
}

// SyncSession downloads every object under the session prefix that is
// missing locally or differs in size, and returns the number fetched.
func (s *Store) SyncSession(ctx context.Context, sessionID string) (int, error) {
	if err := ingest.ValidateSessionID(sessionID); err != nil {
		return 0, err
	}
	if err := s.area.Ensure(sessionID); err != nil {
		return 0, err
	}

	prefix := SessionPrefix(sessionID)
	p := awss3.NewListObjectsV2Paginator(s.api, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.opts.Bucket),
		Prefix: aws.String(prefix),
	})

	synced := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return synced, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rel := strings.TrimPrefix(key, prefix)
			// Nested keys and folder markers are not session files.
			if rel == "" || strings.Contains(rel, "/") {
				continue
			}
			name, err := ingest.SanitizeFileName(path.Base(rel))
			if err != nil {
				slog.WarnContext(ctx, "skipping object", "key", key, "error", err)
				continue
			}
			if s.upToDate(sessionID, name, aws.ToInt64(obj.Size)) {
				continue
			}
			if err := s.download(ctx, sessionID, name, key); err != nil {
				return synced, err
			}
			synced++
		}
	}

	slog.InfoContext(ctx, "session synced from object storage", "session_id", sessionID, "objects", synced)
	return synced, nil
}

func (s *Store) upToDate(sessionID, name string, size int64) bool {
	local, err := s.area.UploadPath(sessionID, name)
	if err != nil {
		return false
	}
	info, err := os.Stat(local)
	return err == nil && info.Size() == size
}

func (s *Store) download(ctx context.Context, sessionID, name, key string) error {
	out, err := s.api.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	if _, err := s.area.SaveUpload(sessionID, name, out.Body, s.opts.MaxObjectBytes); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
