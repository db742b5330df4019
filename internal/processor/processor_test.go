package processor

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/recipereels/backend/internal/models"
	"github.com/recipereels/backend/internal/repositories"
	"github.com/recipereels/backend/internal/upload"
)

type objectStoreStub struct {
	saved       map[string][]byte
	contentType string
	err         error
}

func (o *objectStoreStub) Save(_ context.Context, name, contentType string, r io.Reader) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	data, _ := io.ReadAll(r)
	if o.saved == nil {
		o.saved = map[string][]byte{}
	}
	o.saved[name] = data
	o.contentType = contentType
	return "https://cdn.example.com/" + name, nil
}

type reelIndexStub struct {
	reels     map[string]models.Reel
	createErr error
}

func (r *reelIndexStub) Create(_ context.Context, reel models.Reel) error {
	if r.createErr != nil {
		return r.createErr
	}
	if r.reels == nil {
		r.reels = map[string]models.Reel{}
	}
	r.reels[reel.ObjectKey] = reel
	return nil
}

func (r *reelIndexStub) FindByKey(_ context.Context, key string) (models.Reel, error) {
	reel, ok := r.reels[key]
	if !ok {
		return models.Reel{}, repositories.ErrNotFound
	}
	return reel, nil
}

func validRequest() upload.NotifyRequest {
	return upload.NotifyRequest{
		FileName: "user-1/reels/abc.mp4",
		Data:     base64.StdEncoding.EncodeToString([]byte("video-bytes")),
		Metadata: upload.Metadata{UserID: "user-1", Caption: " Pho ", MediaType: "video"},
	}
}

func TestProcessStoresAndIndexes(t *testing.T) {
	objects := &objectStoreStub{}
	reels := &reelIndexStub{}
	p := New(objects, reels, 1024)

	receipt, err := p.Process(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if receipt.ReelID == "" || receipt.Location != "https://cdn.example.com/user-1/reels/abc.mp4" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if string(objects.saved["user-1/reels/abc.mp4"]) != "video-bytes" || objects.contentType != "video/mp4" {
		t.Fatalf("unexpected stored object %v %q", objects.saved, objects.contentType)
	}
	reel := reels.reels["user-1/reels/abc.mp4"]
	if reel.ID != receipt.ReelID || reel.Caption != "Pho" || reel.MediaKind != models.MediaKindVideo || reel.Size != int64(len("video-bytes")) {
		t.Fatalf("unexpected reel %+v", reel)
	}
}

func TestProcessRejectsBadRequests(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*upload.NotifyRequest)
		want   error
		detail string
	}{
		{"missing file name", func(r *upload.NotifyRequest) { r.FileName = "" }, ErrInvalidRequest, "fileName is required"},
		{"missing user", func(r *upload.NotifyRequest) { r.Metadata.UserID = "" }, ErrInvalidRequest, "metadata.userId is required"},
		{"bad media type", func(r *upload.NotifyRequest) { r.Metadata.MediaType = "gif" }, ErrInvalidRequest, "metadata.mediaType must be one of"},
		{"bad base64", func(r *upload.NotifyRequest) { r.Data = "***" }, ErrInvalidRequest, "base64"},
		{"other owner", func(r *upload.NotifyRequest) { r.FileName = "user-2/reels/abc.mp4" }, ErrKeyOutOfScope, ""},
		{"traversal", func(r *upload.NotifyRequest) { r.FileName = "user-1/reels/../../etc" }, ErrKeyOutOfScope, ""},
		{"too large", func(r *upload.NotifyRequest) {
			r.Data = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 2048)))
		}, ErrTooLarge, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			objects := &objectStoreStub{}
			p := New(objects, &reelIndexStub{}, 1024)

			req := validRequest()
			tc.mutate(&req)
			_, err := p.Process(context.Background(), req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v got %v", tc.want, err)
			}
			if tc.detail != "" && !strings.Contains(err.Error(), tc.detail) {
				t.Fatalf("expected %q in %q", tc.detail, err.Error())
			}
			if len(objects.saved) != 0 {
				t.Fatal("expected nothing to be stored")
			}
		})
	}
}

func TestProcessDuplicate(t *testing.T) {
	objects := &objectStoreStub{}
	reels := &reelIndexStub{reels: map[string]models.Reel{"user-1/reels/abc.mp4": {ID: "existing"}}}
	p := New(objects, reels, 0)

	if _, err := p.Process(context.Background(), validRequest()); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate got %v", err)
	}
	if len(objects.saved) != 0 {
		t.Fatal("expected existing reel not to be overwritten")
	}

	racing := &reelIndexStub{createErr: repositories.ErrConflict}
	if _, err := New(&objectStoreStub{}, racing, 0).Process(context.Background(), validRequest()); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate from conflicting insert got %v", err)
	}
}

func TestProcessStorageFailure(t *testing.T) {
	reels := &reelIndexStub{}
	p := New(&objectStoreStub{err: errors.New("bucket unavailable")}, reels, 0)

	_, err := p.Process(context.Background(), validRequest())
	if err == nil || errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected storage error got %v", err)
	}
	if len(reels.reels) != 0 {
		t.Fatal("expected no index row without stored media")
	}
}
