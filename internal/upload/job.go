// Package upload moves one piece of reel media from the device to the object store
// and tells the processing function about it: permission, transfer, notify.
package upload

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// MediaKind distinguishes photos from videos.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// ParseMediaKind accepts "image" or "video".
func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(strings.ToLower(strings.TrimSpace(s))) {
	case MediaImage:
		return MediaImage, nil
	case MediaVideo:
		return MediaVideo, nil
	}
	return "", fmt.Errorf("upload: unknown media kind %q", s)
}

// ContentType is the MIME type sent with the write permission and the transfer.
func (k MediaKind) ContentType() string {
	if k == MediaVideo {
		return "video/mp4"
	}
	return "image/jpeg"
}

func (k MediaKind) defaultExtension() string {
	if k == MediaVideo {
		return "mp4"
	}
	return "jpg"
}

var allowedExtensions = map[MediaKind]map[string]bool{
	MediaImage: {"jpg": true, "jpeg": true, "png": true, "heic": true, "webp": true},
	MediaVideo: {"mp4": true, "mov": true, "m4v": true},
}

// Status is the position of a Job in the pipeline.
type Status int

const (
	StatusIdle Status = iota
	StatusRequestingPermission
	StatusTransferring
	StatusNotifying
	StatusDone
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRequestingPermission:
		return "requestingPermission"
	case StatusTransferring:
		return "transferring"
	case StatusNotifying:
		return "notifying"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Job is one share action. DestinationKey is fixed when the job is created. Media,
// when set, is sent as-is instead of reading LocalMediaReference.
type Job struct {
	ID                  string
	LocalMediaReference string
	MediaKind           MediaKind
	DestinationKey      string
	Caption             string
	OwnerID             string
	Media               []byte
	Status              Status
	Err                 error
}

// NewJob creates an idle job with a fresh destination key under the owner's prefix.
func NewJob(ownerID string, kind MediaKind, localRef, caption string) (*Job, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, &StateError{Reason: "job has no owner"}
	}
	if kind != MediaImage && kind != MediaVideo {
		return nil, fmt.Errorf("upload: unknown media kind %q", kind)
	}
	if strings.TrimSpace(localRef) == "" {
		return nil, &StateError{Reason: "job has no media"}
	}

	return &Job{
		ID:                  uuid.NewString(),
		LocalMediaReference: localRef,
		MediaKind:           kind,
		DestinationKey:      DestinationKey(ownerID, kind, localRef),
		Caption:             caption,
		OwnerID:             ownerID,
		Status:              StatusIdle,
	}, nil
}

// DestinationKey returns ownerId/reels/<random-id>.<ext>. The extension comes from
// the local reference when it is a known one for kind.
func DestinationKey(ownerID string, kind MediaKind, localRef string) string {
	return fmt.Sprintf("%s/reels/%s.%s", ownerID, uuid.NewString(), extension(kind, localRef))
}

// ReelPrefix is the key prefix every object owned by ownerID must start with.
func ReelPrefix(ownerID string) string {
	return ownerID + "/reels/"
}

func extension(kind MediaKind, localRef string) string {
	ref := localRef
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(ref), "."))
	if !allowedExtensions[kind][ext] {
		return kind.defaultExtension()
	}
	return ext
}
