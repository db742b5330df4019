package models

import "time"

// Reel is the index row written once a shared recipe photo or video is stored.
type Reel struct {
	ID        string
	OwnerID   string
	ObjectKey string
	Location  string
	Caption   string
	MediaKind string
	Size      int64
	CreatedAt time.Time
}

const (
	MediaKindImage = "image"
	MediaKindVideo = "video"
)
