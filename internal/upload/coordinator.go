package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/recipereels/backend/internal/localstore"
	"github.com/recipereels/backend/internal/logging"
	"github.com/recipereels/backend/internal/metrics"
	"github.com/recipereels/backend/internal/storage"
)

// Permitter grants presigned write permissions on the object store.
type Permitter interface {
	PresignPut(ctx context.Context, key, contentType string) (storage.WritePermission, error)
}

// OwnerSource reads device-local values; localstore.Store satisfies it.
type OwnerSource interface {
	Get(key string) (string, error)
}

// Owner is an OwnerSource pinned to one authenticated user.
type Owner string

// Get returns the owner for localstore.KeyUserID and ErrNotFound for anything else.
func (o Owner) Get(key string) (string, error) {
	if key != localstore.KeyUserID || o == "" {
		return "", localstore.ErrNotFound
	}
	return string(o), nil
}

// Options tune a Coordinator. Zero values select the defaults. Local media
// references are only read from under MediaRoot; an empty MediaRoot disables them.
type Options struct {
	HTTPClient      *http.Client
	ProcessEndpoint string
	MaxMediaBytes   int64
	MediaRoot       string
	ReadMedia       func(ref string) ([]byte, error)
	OnStatus        func(Job)
	Now             func() time.Time
}

// Metadata is the indexing information sent with a notify call.
type Metadata struct {
	UserID    string `json:"userId" validate:"required"`
	Caption   string `json:"caption"`
	MediaType string `json:"mediaType" validate:"required,oneof=image video"`
}

// NotifyRequest is the body of the processing function call.
type NotifyRequest struct {
	FileName string   `json:"fileName" validate:"required"`
	Data     string   `json:"data" validate:"required"`
	Metadata Metadata `json:"metadata"`
}

// Receipt is the processing function's acknowledgement.
type Receipt struct {
	ReelID   string `json:"reelId"`
	Location string `json:"location"`
}

// Coordinator runs upload jobs one at a time.
type Coordinator struct {
	permits  Permitter
	owners   OwnerSource
	client   *http.Client
	endpoint string
	maxBytes int64
	root     string
	read     func(ref string) ([]byte, error)
	onStatus func(Job)
	now      func() time.Time

	inFlight atomic.Bool
}

// NewCoordinator wires the object store, the owner source and the processing endpoint.
func NewCoordinator(permits Permitter, owners OwnerSource, opts Options) *Coordinator {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Coordinator{
		permits:  permits,
		owners:   owners,
		client:   opts.HTTPClient,
		endpoint: opts.ProcessEndpoint,
		maxBytes: opts.MaxMediaBytes,
		root:     opts.MediaRoot,
		read:     opts.ReadMedia,
		onStatus: opts.OnStatus,
		now:      opts.Now,
	}
	if c.read == nil {
		c.read = c.readFile
	}
	return c
}

// NewJob creates a job owned by the user id its OwnerSource holds.
func (c *Coordinator) NewJob(kind MediaKind, localRef, caption string) (*Job, error) {
	if c.owners == nil {
		return nil, &StateError{Reason: "no local store configured"}
	}
	owner, err := c.owners.Get(localstore.KeyUserID)
	if errors.Is(err, localstore.ErrNotFound) || (err == nil && strings.TrimSpace(owner) == "") {
		return nil, &StateError{Reason: "no signed-in user on this device"}
	}
	if err != nil {
		return nil, fmt.Errorf("read owner id: %w", err)
	}
	return NewJob(owner, kind, localRef, caption)
}

// InFlight reports whether a job is running.
func (c *Coordinator) InFlight() bool {
	return c.inFlight.Load()
}

// Run executes permission, transfer and notify in order. The first failure marks the
// job failed and is returned as a *StageError. Nothing is retried.
func (c *Coordinator) Run(ctx context.Context, job *Job) (Receipt, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return Receipt{}, ErrInFlight
	}
	defer c.inFlight.Store(false)

	if job == nil || job.Status != StatusIdle {
		return Receipt{}, &StateError{Reason: "job is not idle"}
	}

	ctx, span := logging.StartSpan(ctx, "upload.run")
	defer span.End()
	logger := logging.FromContext(ctx).With("job_id", job.ID, "key", job.DestinationKey)
	started := c.now()

	media, err := c.media(job)
	if err != nil {
		span.Fail(err)
		return Receipt{}, c.fail(job, StagePrepare, err)
	}

	c.setStatus(job, StatusRequestingPermission)
	perm, err := c.RequestPermission(ctx, job)
	if err != nil {
		span.Fail(err)
		return Receipt{}, c.fail(job, StagePermission, err)
	}
	metrics.UploadStages.WithLabelValues(string(StagePermission), "success").Inc()

	c.setStatus(job, StatusTransferring)
	if err := c.Transfer(ctx, perm, media, job.MediaKind.ContentType()); err != nil {
		span.Fail(err)
		return Receipt{}, c.fail(job, StageTransfer, err)
	}
	metrics.UploadStages.WithLabelValues(string(StageTransfer), "success").Inc()

	c.setStatus(job, StatusNotifying)
	receipt, err := c.Notify(ctx, job, media)
	if err != nil {
		span.Fail(err)
		return Receipt{}, c.fail(job, StageNotify, err)
	}
	metrics.UploadStages.WithLabelValues(string(StageNotify), "success").Inc()

	c.setStatus(job, StatusDone)
	metrics.UploadDuration.Observe(c.now().Sub(started).Seconds())
	logger.Info("upload completed", "reel_id", receipt.ReelID, "bytes", len(media))
	return receipt, nil
}

// RequestPermission asks the object store for a write permission on the job's key.
func (c *Coordinator) RequestPermission(ctx context.Context, job *Job) (storage.WritePermission, error) {
	if c.permits == nil {
		return storage.WritePermission{}, errors.New("no object store configured")
	}
	ctx, span := logging.StartSpan(ctx, "upload.permission")
	defer span.End()

	perm, err := c.permits.PresignPut(ctx, job.DestinationKey, job.MediaKind.ContentType())
	if err != nil {
		span.Fail(err)
		return storage.WritePermission{}, err
	}
	return perm, nil
}

// Transfer sends media to the permission URL. A lapsed permission fails without
// contacting the store.
func (c *Coordinator) Transfer(ctx context.Context, perm storage.WritePermission, media []byte, contentType string) error {
	if perm.Expired(c.now()) {
		return ErrPermissionExpired
	}

	ctx, span := logging.StartSpan(ctx, "upload.transfer")
	defer span.End()

	method := perm.Method
	if method == "" {
		method = http.MethodPut
	}
	req, err := http.NewRequestWithContext(ctx, method, perm.URL, bytes.NewReader(media))
	if err != nil {
		span.Fail(err)
		return fmt.Errorf("build transfer request: %w", err)
	}
	for name, values := range perm.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		span.Fail(err)
		return fmt.Errorf("transfer: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		terr := &TransferError{StatusCode: resp.StatusCode}
		span.Fail(terr)
		return terr
	}
	return nil
}

// Notify posts the encoded media and its metadata to the processing function.
func (c *Coordinator) Notify(ctx context.Context, job *Job, media []byte) (Receipt, error) {
	if c.endpoint == "" {
		return Receipt{}, errors.New("no processing endpoint configured")
	}

	ctx, span := logging.StartSpan(ctx, "upload.notify")
	defer span.End()

	body, err := json.Marshal(NotifyRequest{
		FileName: job.DestinationKey,
		Data:     base64.StdEncoding.EncodeToString(media),
		Metadata: Metadata{
			UserID:    job.OwnerID,
			Caption:   job.Caption,
			MediaType: string(job.MediaKind),
		},
	})
	if err != nil {
		span.Fail(err)
		return Receipt{}, fmt.Errorf("encode notify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		span.Fail(err)
		return Receipt{}, fmt.Errorf("build notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id := logging.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		span.Fail(err)
		return Receipt{}, fmt.Errorf("notify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)
		nerr := &NotifyError{StatusCode: resp.StatusCode, Message: payload.Error}
		span.Fail(nerr)
		return Receipt{}, nerr
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil && !errors.Is(err, io.EOF) {
		logging.FromContext(ctx).Warn("could not decode notify response", "error", err)
	}
	return receipt, nil
}

func (c *Coordinator) fail(job *Job, stage Stage, err error) error {
	serr := &StageError{Stage: stage, Err: err}
	job.Err = serr
	metrics.UploadStages.WithLabelValues(string(stage), "failure").Inc()
	c.setStatus(job, StatusFailed)
	return serr
}

func (c *Coordinator) setStatus(job *Job, status Status) {
	job.Status = status
	if c.onStatus != nil {
		c.onStatus(*job)
	}
}

func (c *Coordinator) media(job *Job) ([]byte, error) {
	if len(job.Media) == 0 {
		return c.read(job.LocalMediaReference)
	}
	if c.maxBytes > 0 && int64(len(job.Media)) > c.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrMediaTooLarge, len(job.Media))
	}
	return job.Media, nil
}

// resolve maps ref onto a file inside the media root, following symlinks before
// the containment check.
func (c *Coordinator) resolve(ref string) (string, error) {
	if c.root == "" {
		return "", ErrNoMediaRoot
	}
	root, err := filepath.Abs(c.root)
	if err != nil {
		return "", fmt.Errorf("media root: %w", err)
	}
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return "", fmt.Errorf("media root: %w", err)
	}

	name := filepath.FromSlash(strings.TrimPrefix(ref, "file://"))
	if !filepath.IsAbs(name) {
		name = filepath.Join(root, name)
	}
	name, err = filepath.EvalSymlinks(filepath.Clean(name))
	if err != nil {
		return "", fmt.Errorf("stat media: %w", err)
	}

	rel, err := filepath.Rel(root, name)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideMediaRoot
	}
	return name, nil
}

func (c *Coordinator) readFile(ref string) ([]byte, error) {
	name, err := c.resolve(ref)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("stat media: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, ErrOutsideMediaRoot
	}
	if c.maxBytes > 0 && info.Size() > c.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrMediaTooLarge, info.Size())
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	return data, nil
}
