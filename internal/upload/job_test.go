package upload

import (
	"errors"
	"strings"
	"testing"
)

func TestDestinationKeyUnique(t *testing.T) {
	const trials = 1000
	seen := make(map[string]struct{}, trials)
	for i := 0; i < trials; i++ {
		key := DestinationKey("user-1", MediaImage, "photo.jpg")
		if _, dup := seen[key]; dup {
			t.Fatalf("duplicate key after %d trials: %s", i, key)
		}
		seen[key] = struct{}{}
	}
}

func TestDestinationKeyShape(t *testing.T) {
	cases := []struct {
		kind MediaKind
		ref  string
		ext  string
	}{
		{MediaImage, "file:///data/photo.PNG", ".png"},
		{MediaImage, "content://media/external/images/42", ".jpg"},
		{MediaVideo, "clip", ".mp4"},
		{MediaVideo, "/tmp/clip.mov?token=1", ".mov"},
		{MediaImage, "IMG_0001.HEIC", ".heic"},
		{MediaImage, "notes.txt", ".jpg"},
		{MediaImage, "payload.exe", ".jpg"},
		{MediaVideo, "still.png", ".mp4"},
		{MediaVideo, "clip.m4v", ".m4v"},
	}
	for _, tc := range cases {
		key := DestinationKey("user-1", tc.kind, tc.ref)
		if !strings.HasPrefix(key, "user-1/reels/") || !strings.HasSuffix(key, tc.ext) {
			t.Fatalf("%s: unexpected key %s", tc.ref, key)
		}
	}
}

func TestNewJobValidates(t *testing.T) {
	var serr *StateError
	if _, err := NewJob("", MediaImage, "a.jpg", ""); !errors.As(err, &serr) {
		t.Fatalf("expected state error for missing owner got %v", err)
	}
	if _, err := NewJob("user-1", MediaKind("gif"), "a.gif", ""); err == nil {
		t.Fatal("expected error for unknown media kind")
	}

	job, err := NewJob("user-1", MediaVideo, "a.mp4", "caption")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if job.Status != StatusIdle || job.ID == "" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestParseMediaKind(t *testing.T) {
	if k, err := ParseMediaKind(" Video "); err != nil || k != MediaVideo {
		t.Fatalf("expected video got %v (%v)", k, err)
	}
	if _, err := ParseMediaKind("audio"); err == nil {
		t.Fatal("expected error for audio")
	}
	if MediaVideo.ContentType() != "video/mp4" || MediaImage.ContentType() != "image/jpeg" {
		t.Fatal("unexpected content types")
	}
}
