package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/jobqueue"
)

type fakeS3 struct {
	keys   []string
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, _ := io.ReadAll(in.Body)
	f.keys = append(f.keys, aws.ToString(in.Key))
	f.bodies = append(f.bodies, string(b))
	return &s3.PutObjectOutput{}, nil
}

type fakeEvents struct {
	events map[uint]*models.BillingWebhookEvent
}

func (f *fakeEvents) GetWebhookEvent(_ context.Context, id uint) (*models.BillingWebhookEvent, error) {
	e, ok := f.events[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEvents) SetWebhookArchiveKey(_ context.Context, id uint, key string) error {
	f.events[id].ArchiveKey = key
	return nil
}

func TestObjectKey(t *testing.T) {
	cfg := &Config{Prefix: "webhooks"}

	assert.Equal(t, "webhooks/paypal/2024/03/WH-1.json", cfg.ObjectKey("paypal", "WH-1", time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "webhooks/stripe/2024/03/hash_abc.json", cfg.ObjectKey("stripe", "hash:abc", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	// 23:00 at UTC-2 on March 31 is April in UTC
	late := time.Date(2024, 3, 31, 23, 0, 0, 0, time.FixedZone("X", -2*3600))
	assert.Equal(t, "webhooks/paypal/2024/04/x.json", cfg.ObjectKey("paypal", "x", late))
	assert.Equal(t, "paypal/2024/04/x.json", (&Config{}).ObjectKey("paypal", "x", late))
}

func TestArchive(t *testing.T) {
	api := &fakeS3{}
	events := &fakeEvents{events: map[uint]*models.BillingWebhookEvent{
		7: {ID: 7, Provider: "stripe", ProviderEventID: "evt_1", PayloadJSON: `{"id":"evt_1"}`, CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}}
	a := NewArchiver(api, events, &Config{BucketName: "audit", Prefix: "webhooks"})

	job := &jobqueue.Job{Payload: jobqueue.WebhookArchiveJobPayload{WebhookEventID: 7, Provider: "stripe"}.ToMap()}
	require.NoError(t, a.HandleJob(context.Background(), job))

	assert.Equal(t, []string{"webhooks/stripe/2024/01/evt_1.json"}, api.keys)
	assert.Equal(t, []string{`{"id":"evt_1"}`}, api.bodies)
	assert.Equal(t, "webhooks/stripe/2024/01/evt_1.json", events.events[7].ArchiveKey)

	// second run is a no-op
	_, err := a.Archive(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, api.keys, 1)
}

func TestArchive_UploadError(t *testing.T) {
	events := &fakeEvents{events: map[uint]*models.BillingWebhookEvent{
		1: {ID: 1, Provider: "paypal", ProviderEventID: "WH-1", PayloadJSON: "{}"},
	}}
	a := NewArchiver(&fakeS3{err: errors.New("503")}, events, &Config{BucketName: "audit"})

	_, err := a.Archive(context.Background(), 1)
	assert.Error(t, err)
	assert.Empty(t, events.events[1].ArchiveKey)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("WEBHOOK_ARCHIVE_ENABLED", "true")
	t.Setenv("WEBHOOK_ARCHIVE_ACCESS_KEY_ID", "")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("WEBHOOK_ARCHIVE_ACCESS_KEY_ID", "id")
	t.Setenv("WEBHOOK_ARCHIVE_SECRET_ACCESS_KEY", "secret")
	t.Setenv("WEBHOOK_ARCHIVE_BUCKET", "audit")
	t.Setenv("WEBHOOK_ARCHIVE_PREFIX", "/raw/")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, "raw", cfg.Prefix)
}
