package backup

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/trackmate/server/internal/record"
	"github.com/trackmate/server/internal/shared/config"
)

// Archiver uploads CSV snapshots of user documents to object storage. A nil
// archiver (empty bucket config) is valid and archives nothing.
type Archiver struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

// New builds an archiver from storage configuration. Returns nil when no
// bucket is configured, which disables archival.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, nil
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
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Archiver{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Archive renders the document as CSV and uploads it. Returns the object key.
func (a *Archiver) Archive(ctx context.Context, userID string, doc *record.UserDocument) (string, error) {
	if a == nil {
		return "", nil
	}

	data, err := record.ExportCSV(doc)
	if err != nil {
		return "", fmt.Errorf("render snapshot: %w", err)
	}

	key := fmt.Sprintf("backups/%s/%s.csv", userID, time.Now().UTC().Format("20060102T150405Z"))
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}

	a.logger.Info("snapshot archived",
		zap.String("user_id", userID),
		zap.String("key", key),
		zap.Int("bytes", len(data)))
	return key, nil
}
