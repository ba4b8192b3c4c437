package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/franz/stagehop/internal/store"
)

// S3Config holds bucket settings for an S3 scan source
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
	BasePath  string
}

func s3ConfigFrom(d *store.Dataset) *S3Config {
	cfg := d.ScanConfig
	return &S3Config{
		Bucket:    cfg["bucket"],
		Region:    configString(cfg, "region", "us-east-1"),
		Endpoint:  cfg["endpoint"],
		AccessKey: cfg["access_key"],
		SecretKey: cfg["secret_key"],
		PathStyle: configBool(cfg, "path_style"),
		BasePath:  d.BasePath,
	}
}

// S3 lists objects of a bucket. Keys ending in "/" are folder markers and
// are skipped.
type S3 struct {
	client s3.ListObjectsV2APIClient
	bucket string
	prefix string
}

// NewS3 creates a client from the shared AWS config chain. Static credentials
// in the dataset config take precedence.
func NewS3(ctx context.Context, cfg *S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 scan source needs a bucket")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return NewS3WithClient(client, cfg.Bucket, cfg.BasePath), nil
}

// NewS3WithClient creates a source over an existing client
func NewS3WithClient(client s3.ListObjectsV2APIClient, bucket, basePath string) *S3 {
	return &S3{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(basePath, "/"),
	}
}

// List implements ScanSource. RelPath is the key relative to the base path.
func (s *S3) List(ctx context.Context, roots []string, yield func(store.FileRecord) error, logf func(string, ...any)) error {
	if len(roots) == 0 {
		roots = []string{""}
	}

	for _, root := range roots {
		root = cleanRoot(root)
		prefix := joinKey(s.prefix, root)
		if prefix != "" {
			prefix += "/"
		}

		logf("Scanning: s3://%s/%s", s.bucket, prefix)
		pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		})

		found := 0
		for pages.HasMorePages() {
			page, err := pages.NextPage(ctx)
			if err != nil {
				return fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, prefix, err)
			}

			for _, obj := range page.Contents {
				key := aws.ToString(obj.Key)
				if key == "" || strings.HasSuffix(key, "/") {
					continue
				}
				found++

				rel := key
				if s.prefix != "" {
					rel = strings.TrimPrefix(key, s.prefix+"/")
				}
				var mtime float64
				if obj.LastModified != nil {
					mtime = float64(obj.LastModified.UnixNano()) / 1e9
				}

				err := yield(store.FileRecord{
					RelPath:   rel,
					Size:      uint64(aws.ToInt64(obj.Size)),
					Mtime:     mtime,
					RootLabel: root,
				})
				if err != nil {
					return err
				}
			}
		}

		if found == 0 {
			logf("Warning: no objects under s3://%s/%s", s.bucket, prefix)
		}
	}

	return nil
}

func joinKey(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}
