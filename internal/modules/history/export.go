package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/briefly-app/core/internal/config"
	"github.com/briefly-app/core/internal/models"
	"go.uber.org/zap"
)

// ObjectPutter is the part of the S3 client the exporter needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client from static credentials. A custom
// endpoint (MinIO, R2) forces path-style addressing.
func NewS3Client(cfg config.ExportConfig) (*s3.Client, error) {
	if cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("incomplete export config: bucket, access_key_id and secret_access_key are required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	opts := s3.Options{
		Region:                     region,
		Credentials:                credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle:               cfg.PathStyle,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	}
	if endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"); endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts), nil
}

// Exporter writes history windows to object storage as NDJSON.
type Exporter struct {
	store    Store
	client   ObjectPutter
	bucket   string
	prefix   string
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewExporter(store Store, client ObjectPutter, cfg config.ExportConfig, logger *zap.Logger) *Exporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Exporter{
		store:    store,
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		interval: interval,
		logger:   logger.Named("HistoryExport"),
		now:      time.Now,
	}
}

// ObjectKey names the export of the window starting at from.
func (e *Exporter) ObjectKey(from time.Time) string {
	from = from.UTC()
	return path.Join(e.prefix, from.Format("2006/01/02"), from.Format("20060102T150405Z")+".ndjson")
}

// Run exports the last complete interval.
func (e *Exporter) Run(ctx context.Context) error {
	to := e.now().UTC().Truncate(e.interval)
	_, _, err := e.Export(ctx, to.Add(-e.interval), to)
	return err
}

// Export uploads every entry created in [from, to). An empty window uploads
// nothing and returns an empty key.
func (e *Exporter) Export(ctx context.Context, from, to time.Time) (string, int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0
	err := e.store.Each(ctx, from, to, func(m *models.HistoryModel) error {
		count++
		return enc.Encode(m)
	})
	if err != nil {
		return "", 0, fmt.Errorf("read history: %w", err)
	}
	if count == 0 {
		e.logger.Info("nothing to export", zap.Time("from", from), zap.Time("to", to))
		return "", 0, nil
	}

	key := e.ObjectKey(from)
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
		ContentType:   aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", 0, fmt.Errorf("upload %s: %w", key, err)
	}
	e.logger.Info("history exported", zap.String("key", key), zap.Int("entries", count))
	return key, count, nil
}
