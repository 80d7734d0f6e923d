// Package reliability keeps copies of optimization runs outside the local database.
package reliability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aristath/sharpe/internal/modules/optimization"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// DefaultArchivePrefix is the key prefix runs are stored under
const DefaultArchivePrefix = "runs"

// uploader is the subset of manager.Uploader the archiver uses
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// ArchiveConfig configures an S3-compatible archive
type ArchiveConfig struct {
	Bucket          string
	Prefix          string
	Endpoint        string // Custom endpoint for R2 or MinIO; empty uses AWS
	Region          string
	AccessKeyID     string // Empty uses the default credential chain
	SecretAccessKey string
}

// S3Archiver uploads completed runs as JSON documents
type S3Archiver struct {
	uploader uploader
	bucket   string
	prefix   string
	log      zerolog.Logger
}

// NewS3Archiver creates an archiver backed by the S3 upload manager
func NewS3Archiver(ctx context.Context, cfg ArchiveConfig, log zerolog.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
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
		return nil, fmt.Errorf("failed to load archive client config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Archiver(manager.NewUploader(client), cfg.Bucket, cfg.Prefix, log), nil
}

func newS3Archiver(u uploader, bucket, prefix string, log zerolog.Logger) *S3Archiver {
	if prefix == "" {
		prefix = DefaultArchivePrefix
	}
	return &S3Archiver{
		uploader: u,
		bucket:   bucket,
		prefix:   prefix,
		log:      log.With().Str("service", "s3_archive").Str("bucket", bucket).Logger(),
	}
}

// Key returns the object key of a run: <prefix>/YYYY/MM/DD/<id>.json
func (a *S3Archiver) Key(run *optimization.Run) string {
	created := run.CreatedAt.UTC()
	return path.Join(a.prefix, created.Format("2006/01/02"), run.ID+".json")
}

// Archive uploads the run
func (a *S3Archiver) Archive(ctx context.Context, run *optimization.Run) error {
	body, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.ID, err)
	}

	key := a.Key(run)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload run %s: %w", run.ID, err)
	}

	a.log.Debug().Str("key", key).Int("bytes", len(body)).Msg("Archived optimization run")
	return nil
}
