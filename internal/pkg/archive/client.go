package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/jobqueue"
)

// PutObjectAPI is the subset of *s3.Client used for archiving.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// EventStore reads logged webhook deliveries and records where they went.
type EventStore interface {
	GetWebhookEvent(ctx context.Context, id uint) (*models.BillingWebhookEvent, error)
	SetWebhookArchiveKey(ctx context.Context, id uint, key string) error
}

// Archiver copies raw webhook bodies to object storage.
type Archiver struct {
	api    PutObjectAPI
	events EventStore
	config *Config
}

// NewS3API builds an S3 client from cfg.
func NewS3API(ctx context.Context, cfg *Config) (*s3.Client, error) {
	if !cfg.IsEnabled() {
		return nil, errors.New("webhook archive is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	}), nil
}

func NewArchiver(api PutObjectAPI, events EventStore, cfg *Config) *Archiver {
	return &Archiver{api: api, events: events, config: cfg}
}

// Register installs the archive handler on q.
func (a *Archiver) Register(q *jobqueue.Queue) {
	q.RegisterHandler(jobqueue.JobTypeWebhookArchive, a.HandleJob)
}

// HandleJob is the jobqueue.Handler for webhook archive jobs.
func (a *Archiver) HandleJob(ctx context.Context, job *jobqueue.Job) error {
	payload, err := jobqueue.WebhookArchiveJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	_, err = a.Archive(ctx, payload.WebhookEventID)
	return err
}

// Archive uploads the stored body of one delivery and returns the object key.
// Already archived deliveries are skipped.
func (a *Archiver) Archive(ctx context.Context, webhookEventID uint) (string, error) {
	event, err := a.events.GetWebhookEvent(ctx, webhookEventID)
	if err != nil {
		return "", fmt.Errorf("load webhook event %d: %w", webhookEventID, err)
	}
	if event.ArchiveKey != "" {
		return event.ArchiveKey, nil
	}

	receivedAt := event.CreatedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	key := a.config.ObjectKey(event.Provider, event.ProviderEventID, receivedAt)
	body := []byte(event.PayloadJSON)

	_, err = a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.config.BucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata: map[string]string{
			"provider":   event.Provider,
			"event-type": event.EventType,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	if err := a.events.SetWebhookArchiveKey(ctx, event.ID, key); err != nil {
		return "", err
	}
	log.Debugf("[Archive] Stored webhook %d at s3://%s/%s", event.ID, a.config.BucketName, key)
	return key, nil
}
