package archive

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

// Config holds webhook archive configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // optional, for S3-compatible services
	Prefix          string
	Enabled         bool
}

// LoadConfig loads archive configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AccessKeyID:     env.GetEnv("WEBHOOK_ARCHIVE_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("WEBHOOK_ARCHIVE_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("WEBHOOK_ARCHIVE_REGION", "eu-central-1"),
		BucketName:      env.GetEnv("WEBHOOK_ARCHIVE_BUCKET", ""),
		EndpointURL:     env.GetEnv("WEBHOOK_ARCHIVE_ENDPOINT_URL", ""),
		Prefix:          strings.Trim(env.GetEnv("WEBHOOK_ARCHIVE_PREFIX", "webhooks"), "/"),
		Enabled:         env.GetEnvBool("WEBHOOK_ARCHIVE_ENABLED", false),
	}

	if cfg.Enabled {
		if cfg.AccessKeyID == "" {
			return nil, errors.New("WEBHOOK_ARCHIVE_ACCESS_KEY_ID is required when the webhook archive is enabled")
		}
		if cfg.SecretAccessKey == "" {
			return nil, errors.New("WEBHOOK_ARCHIVE_SECRET_ACCESS_KEY is required when the webhook archive is enabled")
		}
		if cfg.BucketName == "" {
			return nil, errors.New("WEBHOOK_ARCHIVE_BUCKET is required when the webhook archive is enabled")
		}
	}
	return cfg, nil
}

func (c *Config) IsEnabled() bool {
	return c.Enabled
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey returns prefix/provider/YYYY/MM/eventID.json.
func (c *Config) ObjectKey(provider, eventID string, receivedAt time.Time) string {
	receivedAt = receivedAt.UTC()
	name := unsafeKeyChars.ReplaceAllString(eventID, "_")
	key := fmt.Sprintf("%s/%04d/%02d/%s.json", provider, receivedAt.Year(), int(receivedAt.Month()), name)
	if c.Prefix == "" {
		return key
	}
	return c.Prefix + "/" + key
}
