// Package s3 implements a read-only backend.Backend backed by an S3
// bucket, for serving asset bundles over the protocol's "assets"-style
// protocol name. S3 objects are not pollable for change notifications
// here, so this backend always reports NotificationFD() == -1.
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/netfsd/netfsd/pkg/netfs/backend"
)

// Config configures a Backend.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string
	// Prefix is an optional key prefix every object path is joined
	// under, letting one bucket host multiple registered protocols.
	Prefix string
	// Region is the AWS region the bucket lives in.
	Region string
	// Endpoint overrides the default AWS endpoint, for S3-compatible
	// stores. Empty uses the default AWS endpoint resolution.
	Endpoint string
	// AccessKeyID and SecretAccessKey supply static credentials. Both
	// empty falls back to the default AWS credential chain.
	AccessKeyID     string
	SecretAccessKey string
	// ForcePathStyle selects path-style addressing, required by most
	// S3-compatible (non-AWS) object stores.
	ForcePathStyle bool
}

// Backend serves read-only filesystem operations backed by objects in
// a single S3 bucket (and, via Prefix, a sub-tree of it). Mutating
// operations (Open in write mode) are not supported.
type Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds an S3 client from cfg and returns a ready-to-use Backend.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Backend{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (b *Backend) key(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if b.prefix == "" {
		return trimmed
	}
	return strings.TrimSuffix(b.prefix, "/") + "/" + trimmed
}

// Open opens path for reading. Write mode is not supported by this
// backend; it returns an error.
func (b *Backend) Open(ctx context.Context, path string, mode backend.Mode) (backend.File, error) {
	if mode == backend.ModeWrite {
		return nil, fmt.Errorf("s3: backend is read-only")
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("s3: get object %q: %w", path, err)
	}

	data, err := io.ReadAll(out.Body)
	out.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("s3: read object %q: %w", path, err)
	}
	return &file{data: data}, nil
}

// Stat returns the size and type of the object at path.
func (b *Backend) Stat(ctx context.Context, path string) (backend.Entry, uint64, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return backend.Entry{}, 0, backend.ErrNotFound
		}
		return backend.Entry{}, 0, fmt.Errorf("s3: head object %q: %w", path, err)
	}
	size := uint64(0)
	if out.ContentLength != nil {
		size = uint64(*out.ContentLength)
	}
	return backend.Entry{Path: path, Type: backend.EntryPlain}, size, nil
}

// List returns the direct children of path: objects and common
// prefixes one level below it.
func (b *Backend) List(ctx context.Context, path string) ([]backend.Entry, error) {
	prefix := b.key(path)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: list %q: %w", path, err)
	}

	entries := make([]backend.Entry, 0, len(out.Contents)+len(out.CommonPrefixes))
	for _, p := range out.CommonPrefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(p.Prefix), prefix), "/")
		entries = append(entries, backend.Entry{Path: name, Type: backend.EntryDirectory})
	}
	for _, obj := range out.Contents {
		name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
		if name == "" {
			continue
		}
		entries = append(entries, backend.Entry{Path: name, Type: backend.EntryPlain})
	}
	return entries, nil
}

// Walk returns every object under path, recursively (no delimiter).
func (b *Backend) Walk(ctx context.Context, path string) ([]backend.Entry, error) {
	prefix := b.key(path)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var entries []backend.Entry
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: walk %q: %w", path, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" {
				continue
			}
			entries = append(entries, backend.Entry{Path: name, Type: backend.EntryPlain})
		}
	}
	return entries, nil
}

// NotificationFD always returns -1: S3 objects are not watchable.
func (b *Backend) NotificationFD() int { return -1 }

// InstallNotification is unsupported; it returns an error.
func (b *Backend) InstallNotification(string, backend.NotifyCallback) (backend.SubscriptionID, error) {
	return 0, fmt.Errorf("s3: backend does not support notifications")
}

// UninstallNotification is a no-op; there is nothing to uninstall.
func (b *Backend) UninstallNotification(backend.SubscriptionID) {}

// PollNotifications is a no-op.
func (b *Backend) PollNotifications() {}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey")
}

var _ backend.Backend = (*Backend)(nil)
