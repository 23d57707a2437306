// Package s3 uploads artifacts to an S3-compatible object store.
//
// The three connection credentials map as follows: host is the endpoint
// (a URL, a host name, or "aws" for the SDK default), user is the access
// key id and password is the secret access key.
package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/core/ports/driven"
	"github.com/custodia-labs/tablesync/internal/logger"
)

// Ensure interfaces are implemented.
var (
	_ driven.SessionFactory  = (*Factory)(nil)
	_ driven.TransferSession = (*Session)(nil)
)

// DefaultEndpointHost selects the SDK's default AWS endpoint.
const DefaultEndpointHost = "aws"

// DefaultRegion is used when no region is configured.
const DefaultRegion = "us-east-1"

// ContentType is set on every uploaded artifact.
const ContentType = "text/csv"

// Config configures S3 sessions.
type Config struct {
	// Bucket receives the artifacts.
	Bucket string

	// Region of the bucket.
	Region string

	// Prefix is prepended to every object key.
	Prefix string

	// PathStyle addresses the bucket in the path (MinIO and most gateways).
	PathStyle bool

	// Timeout bounds each HTTP request. Zero means no limit.
	Timeout time.Duration
}

// API is the subset of the S3 client the session uses.
type API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// clientFunc builds an API client. Replaced in tests.
type clientFunc func(ctx context.Context, cfg Config, creds domain.Credentials) (API, error)

// Factory opens S3 sessions.
type Factory struct {
	cfg       Config
	newClient clientFunc
}

// NewFactory creates a session factory.
func NewFactory(cfg Config) *Factory {
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	return &Factory{cfg: cfg, newClient: newClient}
}

// NewFactoryWithClient creates a factory that always uses client.
func NewFactoryWithClient(cfg Config, client API) *Factory {
	f := NewFactory(cfg)
	f.newClient = func(context.Context, Config, domain.Credentials) (API, error) {
		return client, nil
	}
	return f
}

// Kind returns "s3".
func (f *Factory) Kind() string {
	return "s3"
}

// Open checks the bucket is reachable with the given keys.
func (f *Factory) Open(ctx context.Context, creds domain.Credentials) (driven.TransferSession, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if f.cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is not set", domain.ErrConfig)
	}

	client, err := f.newClient(ctx, f.cfg, creds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConnect, err)
	}

	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(f.cfg.Bucket)})
	if err != nil {
		return nil, classifyOpen(f.cfg.Bucket, err)
	}

	logger.FromContext(ctx).Debug("s3 session open", "bucket", f.cfg.Bucket, "endpoint", creds.Host, "region", f.cfg.Region)
	return &Session{client: client, bucket: f.cfg.Bucket, prefix: f.cfg.Prefix}, nil
}

// newClient builds an SDK client with static keys. SDK retries are off;
// the pipeline retries uploads itself.
func newClient(ctx context.Context, cfg Config, creds domain.Credentials) (API, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(creds.User, creds.Password, "")),
		config.WithRetryMaxAttempts(1),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	var opts []func(*s3.Options)
	if endpoint := endpointURL(creds.Host); endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.PathStyle {
		opts = append(opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	if cfg.Timeout > 0 {
		httpClient := &http.Client{Timeout: cfg.Timeout}
		opts = append(opts, func(o *s3.Options) {
			o.HTTPClient = httpClient
		})
	}
	return s3.NewFromConfig(awsCfg, opts...), nil
}

// endpointURL turns FTPHOST into a base endpoint; "" means the SDK default.
func endpointURL(host string) string {
	host = strings.TrimSpace(host)
	switch {
	case host == "" || strings.EqualFold(host, DefaultEndpointHost) || strings.EqualFold(host, "s3.amazonaws.com"):
		return ""
	case strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://"):
		return host
	default:
		return "https://" + host
	}
}

// Session uploads objects into one bucket.
type Session struct {
	client API
	bucket string
	prefix string
	closed bool
}

// Key returns the object key for an artifact name.
func (s *Session) Key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Store uploads the artifact, replacing any existing object.
func (s *Session) Store(ctx context.Context, artifact domain.Artifact) error {
	if s.closed {
		return fmt.Errorf("%w: %w: session closed", domain.ErrTransfer, domain.ErrPermanent)
	}

	f, err := os.Open(artifact.Path)
	if err != nil {
		return fmt.Errorf("%w: %w: %s: %w", domain.ErrTransfer, domain.ErrPermanent, artifact.Name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrTransfer, artifact.Name, err)
	}

	key := s.Key(artifact.Name)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(ContentType),
	})
	if err != nil {
		return classifyPut(s.bucket, key, err)
	}

	logger.FromContext(ctx).Debug("artifact stored", "bucket", s.bucket, "key", key, "bytes", info.Size())
	return nil
}

// Close marks the session unusable. The SDK client holds no connection state.
func (s *Session) Close() error {
	s.closed = true
	return nil
}

// statusCode returns the HTTP status of an SDK error, or 0.
func statusCode(err error) int {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}

// errorCode returns the S3 error code of an SDK error, or "".
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

var authCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"Forbidden":             true,
}

func classifyOpen(bucket string, err error) error {
	status := statusCode(err)
	code := errorCode(err)
	switch {
	case status == http.StatusForbidden || status == http.StatusUnauthorized || authCodes[code]:
		return fmt.Errorf("%w: bucket %s: %w", domain.ErrAuth, bucket, err)
	case status == http.StatusNotFound || code == "NoSuchBucket" || code == "NotFound":
		return fmt.Errorf("%w: %w: bucket %s not found: %w", domain.ErrConnect, domain.ErrPermanent, bucket, err)
	default:
		return fmt.Errorf("%w: bucket %s: %w", domain.ErrConnect, bucket, err)
	}
}

func classifyPut(bucket, key string, err error) error {
	status := statusCode(err)
	permanent := status >= 400 && status < 500 &&
		status != http.StatusRequestTimeout && status != http.StatusTooManyRequests
	if permanent || authCodes[errorCode(err)] {
		return fmt.Errorf("%w: %w: %s/%s: %w", domain.ErrTransfer, domain.ErrPermanent, bucket, key, err)
	}
	return fmt.Errorf("%w: %s/%s: %w", domain.ErrTransfer, bucket, key, err)
}
