package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Gunvolt24/amqp_receiver/internal/domain"
	"github.com/Gunvolt24/amqp_receiver/internal/ports"
)

var _ ports.EventArchive = (*Archive)(nil)

// s3API — подмножество клиента S3, нужное архиву.
type s3API interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// Config — параметры архива. Endpoint задаётся для S3-совместимых хранилищ (MinIO, LocalStack).
type Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// NewClient — клиент S3 из стандартной цепочки учётных данных AWS.
func NewClient(ctx context.Context, cfg Config) (*awss3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// Archive — сохраняет payload каждого события отдельным объектом.
type Archive struct {
	client s3API
	bucket string
	prefix string
}

func New(client s3API, bucket, prefix string) (*Archive, error) {
	if client == nil {
		return nil, errors.New("s3 archive: client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("s3 archive: bucket is required")
	}
	return &Archive{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Store — PutObject по ключу <prefix>/<queue>/<yyyy>/<mm>/<dd>/<event-id>.bin (дата в UTC).
func (a *Archive) Store(ctx context.Context, event *domain.Event) error {
	if event == nil || event.ID == "" {
		return errors.New("s3 archive: event id is required")
	}
	key := a.objectKey(event)

	_, err := a.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(event.Payload),
		ContentLength: aws.Int64(int64(len(event.Payload))),
		ContentType:   aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"event-id":    event.ID,
			"queue":       event.Queue,
			"received-at": event.ReceivedAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return fmt.Errorf("put s3 object key=%q: %w", key, err)
	}
	return nil
}

func (a *Archive) objectKey(event *domain.Event) string {
	ts := event.ReceivedAt.UTC()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	queue := event.Queue
	if queue == "" {
		queue = "unknown"
	}
	parts := []string{
		url.PathEscape(queue),
		ts.Format("2006"), ts.Format("01"), ts.Format("02"),
		url.PathEscape(event.ID) + ".bin",
	}
	if a.prefix != "" {
		parts = append([]string{a.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}
