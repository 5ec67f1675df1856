// Package storage wraps an S3-compatible object store behind the small
// put-object/public-URL surface the bot needs.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"reportbot/config"
)

const putAttempts = 3

type Client struct {
	mc       *minio.Client
	bucket   string
	endpoint string
	log      *zap.Logger
}

// New connects to the configured S3-compatible endpoint.
func New(cfg config.StorageConfig, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("storage: parse endpoint: %w", err)
	}

	mc, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.KeyID, cfg.Secret, ""),
		Secure: u.Scheme != "http",
	})
	if err != nil {
		return nil, fmt.Errorf("storage: connect %s: %w", u.Host, err)
	}

	return &Client{
		mc:       mc,
		bucket:   cfg.Bucket,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		log:      log.Named("storage"),
	}, nil
}

// Put writes an object and returns its public URL. Transient failures are
// retried a bounded number of times before the error is reported.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	err := retry.Do(
		func() error {
			_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)),
				minio.PutObjectOptions{ContentType: contentType})
			return err
		},
		retry.Attempts(putAttempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", fmt.Errorf("storage: put %s: %w", key, err)
	}

	c.log.Debug("object stored", zap.String("key", key), zap.Int("bytes", len(data)))
	return c.PublicURL(key), nil
}

// PublicURL builds the publicly resolvable URL of an object.
func (c *Client) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, key)
}
