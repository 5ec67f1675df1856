// Package media relays user-submitted blobs to durable object storage.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"reportbot/internal/model"
)

var (
	// ErrUpload marks a failed storage write. Recoverable: the user is asked
	// to resend the item.
	ErrUpload = errors.New("media upload failed")
	// ErrThumbnail marks a failed thumbnail derivation. Non-fatal: the
	// original URL is still returned.
	ErrThumbnail = errors.New("thumbnail derivation failed")
)

// Key prefixes kept from the legacy object layout.
const (
	PrefixUserMedia     = "user_media"
	PrefixLocationPhoto = "location_photo"
	prefixThumbnail     = "thumb"
)

const thumbnailSize = 320

type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Upload describes one blob to relay.
type Upload struct {
	Blob      []byte
	Kind      model.MediaKind
	Prefix    string
	Identity  string
	Timestamp time.Time
	Width     int
	Height    int
}

// Relay uploads blobs under collision-resistant keys and optionally derives
// photo thumbnails.
type Relay struct {
	store      ObjectStore
	thumbnails bool
	log        *zap.Logger
}

func NewRelay(store ObjectStore, thumbnails bool, log *zap.Logger) *Relay {
	return &Relay{store: store, thumbnails: thumbnails, log: log.Named("media")}
}

// Relay uploads the blob and returns the stored media item. A thumbnail
// failure degrades to no thumbnail; only the primary upload is fatal.
func (r *Relay) Relay(ctx context.Context, up Upload) (model.Media, error) {
	if len(up.Blob) == 0 {
		return model.Media{}, fmt.Errorf("%w: empty blob", ErrUpload)
	}

	ext, contentType := formatFor(up.Kind)
	key := objectKey(up.Prefix, up.Identity, up.Timestamp, ext)

	url, err := r.store.Put(ctx, key, up.Blob, contentType)
	if err != nil {
		return model.Media{}, fmt.Errorf("%w: %s: %v", ErrUpload, key, err)
	}

	item := model.Media{
		URL:    url,
		Kind:   up.Kind,
		Width:  up.Width,
		Height: up.Height,
	}

	if r.thumbnails && up.Kind == model.MediaPhoto {
		thumbURL, err := r.thumbnail(ctx, key, up.Blob)
		if err != nil {
			r.log.Warn("thumbnail skipped", zap.String("key", key), zap.Error(err))
		} else {
			item.ThumbnailURL = thumbURL
		}
	}

	r.log.Info("media relayed",
		zap.String("key", key),
		zap.String("kind", string(up.Kind)),
		zap.Int("bytes", len(up.Blob)))
	return item, nil
}

func (r *Relay) thumbnail(ctx context.Context, key string, blob []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(blob))
	if err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrThumbnail, err)
	}

	thumb := imaging.Fit(img, thumbnailSize, thumbnailSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG); err != nil {
		return "", fmt.Errorf("%w: encode: %v", ErrThumbnail, err)
	}

	url, err := r.store.Put(ctx, prefixThumbnail+"-"+key, buf.Bytes(), "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("%w: put: %v", ErrThumbnail, err)
	}
	return url, nil
}

// objectKey builds a storage key with a random disambiguating component so
// concurrent conversations cannot collide on the same key.
func objectKey(prefix, identity string, ts time.Time, ext string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return fmt.Sprintf("%s-%s-%d-%s.%s", prefix, suffix, ts.Unix(), identity, ext)
}

func formatFor(kind model.MediaKind) (ext, contentType string) {
	if kind == model.MediaVideo {
		return "mp4", "video/mp4"
	}
	return "jpg", "image/jpeg"
}
