// Package processor is the receiving side of the upload notify call: it stores the
// media under the announced key and indexes the reel.
package processor

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/recipereels/backend/internal/logging"
	"github.com/recipereels/backend/internal/metrics"
	"github.com/recipereels/backend/internal/models"
	"github.com/recipereels/backend/internal/repositories"
	"github.com/recipereels/backend/internal/upload"
)

var (
	// ErrInvalidRequest wraps every payload problem the caller can fix.
	ErrInvalidRequest = errors.New("invalid process request")
	// ErrKeyOutOfScope is returned when the file name is not under the owner's prefix.
	ErrKeyOutOfScope = errors.New("file name is outside the owner's reels")
	// ErrDuplicate is returned when a reel already exists for the file name.
	ErrDuplicate = errors.New("reel already exists")
	// ErrTooLarge is returned when the decoded media exceeds the limit.
	ErrTooLarge = errors.New("media exceeds size limit")
)

// ObjectStore writes media bytes; storage.S3Storage satisfies it.
type ObjectStore interface {
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// ReelIndex records stored reels; repositories.PostgresReelRepository satisfies it.
type ReelIndex interface {
	Create(ctx context.Context, reel models.Reel) error
	FindByKey(ctx context.Context, objectKey string) (models.Reel, error)
}

// Processor handles notify calls from the upload coordinator.
type Processor struct {
	objects  ObjectStore
	reels    ReelIndex
	validate *validator.Validate
	maxBytes int64
	now      func() time.Time
}

// New builds a Processor. maxBytes <= 0 disables the size check.
func New(objects ObjectStore, reels ReelIndex, maxBytes int64) *Processor {
	return &Processor{
		objects:  objects,
		reels:    reels,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// Process validates req, stores the decoded media and indexes it.
func (p *Processor) Process(ctx context.Context, req upload.NotifyRequest) (upload.Receipt, error) {
	receipt, err := p.process(ctx, req)
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrDuplicate):
		result = "duplicate"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrKeyOutOfScope), errors.Is(err, ErrTooLarge):
		result = "rejected"
	default:
		result = "error"
	}
	metrics.ReelsProcessed.WithLabelValues(result).Inc()
	return receipt, err
}

func (p *Processor) process(ctx context.Context, req upload.NotifyRequest) (upload.Receipt, error) {
	if err := p.validate.Struct(req); err != nil {
		return upload.Receipt{}, fmt.Errorf("%w: %s", ErrInvalidRequest, describe(err))
	}

	kind, err := upload.ParseMediaKind(req.Metadata.MediaType)
	if err != nil {
		return upload.Receipt{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	key := strings.TrimLeft(req.FileName, "/")
	if !strings.HasPrefix(key, upload.ReelPrefix(req.Metadata.UserID)) || strings.Contains(key, "..") {
		return upload.Receipt{}, ErrKeyOutOfScope
	}

	if p.maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(req.Data))) > p.maxBytes+2 {
		return upload.Receipt{}, ErrTooLarge
	}
	media, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return upload.Receipt{}, fmt.Errorf("%w: data is not base64", ErrInvalidRequest)
	}
	if len(media) == 0 {
		return upload.Receipt{}, fmt.Errorf("%w: data is empty", ErrInvalidRequest)
	}
	if p.maxBytes > 0 && int64(len(media)) > p.maxBytes {
		return upload.Receipt{}, ErrTooLarge
	}

	logger := logging.FromContext(ctx).With("key", key, "owner_id", req.Metadata.UserID)

	if _, err := p.reels.FindByKey(ctx, key); err == nil {
		return upload.Receipt{}, ErrDuplicate
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return upload.Receipt{}, fmt.Errorf("look up reel: %w", err)
	}

	ctx, span := logging.StartSpan(ctx, "processor.store")
	location, err := p.objects.Save(ctx, key, kind.ContentType(), bytes.NewReader(media))
	if err != nil {
		span.Fail(err)
		span.End()
		return upload.Receipt{}, fmt.Errorf("store media: %w", err)
	}
	span.End()

	reel := models.Reel{
		ID:        uuid.NewString(),
		OwnerID:   req.Metadata.UserID,
		ObjectKey: key,
		Location:  location,
		Caption:   strings.TrimSpace(req.Metadata.Caption),
		MediaKind: string(kind),
		Size:      int64(len(media)),
		CreatedAt: p.now().UTC(),
	}
	if err := p.reels.Create(ctx, reel); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return upload.Receipt{}, ErrDuplicate
		}
		return upload.Receipt{}, fmt.Errorf("index reel: %w", err)
	}

	logger.Info("reel processed", "reel_id", reel.ID, "bytes", reel.Size)
	return upload.Receipt{ReelID: reel.ID, Location: location}, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", jsonName(fe.StructNamespace()))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", jsonName(fe.StructNamespace()), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", jsonName(fe.StructNamespace()))
}

var fieldNames = map[string]string{
	"NotifyRequest.FileName":           "fileName",
	"NotifyRequest.Data":               "data",
	"NotifyRequest.Metadata.UserID":    "metadata.userId",
	"NotifyRequest.Metadata.MediaType": "metadata.mediaType",
}

func jsonName(namespace string) string {
	if name, ok := fieldNames[namespace]; ok {
		return name
	}
	return namespace
}
