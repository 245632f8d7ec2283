// Package images resizes uploaded pictures into sm/md/lg variants and stores them.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/larpcal/backend/internal/models"
)

var (
	// ErrNoStorage is returned when uploads are attempted without object storage.
	ErrNoStorage = errors.New("image storage not configured")
	// ErrInvalidImage is returned for bodies that do not decode as an image.
	ErrInvalidImage = errors.New("invalid image")
)

// Storage is the object store holding image files. *storage.S3 implements it.
type Storage interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
	DeleteObjects(ctx context.Context, keys ...string) error
	KeyFromURL(url string) (string, bool)
}

// Kind names where and how an entity's images are stored.
type Kind struct {
	Prefix string // bucket folder, e.g. "orgImage"
	Name   string // key stem, e.g. "org"
}

var (
	Org  = Kind{Prefix: "orgImage", Name: "org"}
	Larp = Kind{Prefix: "larpImage", Name: "larp"}
)

type size struct {
	name  string
	width int
}

var sizes = []size{{"sm", 240}, {"md", 720}, {"lg", 1440}}

const jpegQuality = 85

// CleanupQueue defers object deletion to a background worker. *queue.Queue implements it.
type CleanupQueue interface {
	EnqueueImageCleanup(ctx context.Context, keys []string) error
}

// Processor resizes and uploads image sets.
type Processor struct {
	store   Storage
	queue   CleanupQueue
	baseURL string
	logger  *zap.Logger
}

// NewProcessor creates a Processor. store may be nil, in which case only default
// image sets are available. baseURL is the public bucket URL default images live under.
func NewProcessor(store Storage, baseURL string, logger *zap.Logger) *Processor {
	return &Processor{store: store, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// UseQueue makes Discard enqueue deletions instead of running them inline.
func (p *Processor) UseQueue(q CleanupQueue) {
	p.queue = q
}

// Default returns the shared default image set of kind.
func (p *Processor) Default(kind Kind) models.ImageSet {
	u := func(s string) string { return fmt.Sprintf("%s/%s/default-%s", p.baseURL, kind.Prefix, s) }
	return models.ImageSet{Sm: u("sm"), Md: u("md"), Lg: u("lg")}
}

// Process decodes r, uploads the three variants for entity id and returns their URLs.
// Nothing is left behind in the bucket when it fails.
func (p *Processor) Process(ctx context.Context, kind Kind, id int64, r io.Reader) (models.ImageSet, error) {
	if p.store == nil {
		return models.ImageSet{}, ErrNoStorage
	}
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return models.ImageSet{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	suffix := uuid.NewString()
	urls := make(map[string]string, len(sizes))
	var uploaded []string
	for _, s := range sizes {
		img := src
		if img.Bounds().Dx() > s.width {
			img = imaging.Resize(src, s.width, 0, imaging.Lanczos)
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
			p.cleanup(ctx, uploaded)
			return models.ImageSet{}, fmt.Errorf("encode %s: %w", s.name, err)
		}
		key := fmt.Sprintf("%s/%s-%d-%s-%s", kind.Prefix, kind.Name, id, s.name, suffix)
		url, err := p.store.Upload(ctx, key, "image/jpeg", &buf, int64(buf.Len()))
		if err != nil {
			p.cleanup(ctx, uploaded)
			return models.ImageSet{}, err
		}
		uploaded = append(uploaded, key)
		urls[s.name] = url
	}
	return models.ImageSet{Sm: urls["sm"], Md: urls["md"], Lg: urls["lg"]}, nil
}

// Discard deletes the objects behind set, skipping defaults and foreign URLs.
// With a queue the deletion is deferred; if enqueueing fails it runs inline.
// Failures are logged.
func (p *Processor) Discard(ctx context.Context, set models.ImageSet) {
	if p.store == nil {
		return
	}
	var keys []string
	for _, u := range set.URLs() {
		key, ok := p.store.KeyFromURL(u)
		if !ok || IsDefault(key) {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return
	}
	if p.queue != nil {
		err := p.queue.EnqueueImageCleanup(ctx, keys)
		if err == nil {
			return
		}
		p.logger.Warn("enqueue image cleanup, deleting inline", zap.Error(err))
	}
	p.cleanup(ctx, keys)
}

func (p *Processor) cleanup(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := p.store.DeleteObjects(ctx, keys...); err != nil {
		p.logger.Error("delete images", zap.Strings("keys", keys), zap.Error(err))
	}
}

// IsDefault reports whether key names a shared default image.
func IsDefault(key string) bool {
	return strings.HasPrefix(path.Base(key), "default-")
}
