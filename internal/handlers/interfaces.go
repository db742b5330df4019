package handlers

import (
	"context"

	"github.com/recipereels/backend/internal/authflow"
	"github.com/recipereels/backend/internal/models"
	"github.com/recipereels/backend/internal/upload"
)

// AuthFlows hands out the auth flow controller for an identifier.
type AuthFlows interface {
	For(identifier string) *authflow.Controller
}

// DeviceStore persists values on this device; localstore.Store satisfies it.
type DeviceStore interface {
	Set(key, value string) error
}

// CallerVerifier resolves a bearer access token to the user it was issued to;
// identity.Callers satisfies it.
type CallerVerifier interface {
	Subject(ctx context.Context, accessToken string) (string, error)
}

// UploadRunner creates and runs upload jobs on behalf of an owner; upload.Registry
// satisfies it.
type UploadRunner interface {
	NewJob(ownerID string, kind upload.MediaKind, localRef, caption string) (*upload.Job, error)
	Run(ctx context.Context, job *upload.Job) (upload.Receipt, error)
}

// ReelProcessor handles notify calls from the upload pipeline.
type ReelProcessor interface {
	Process(ctx context.Context, req upload.NotifyRequest) (upload.Receipt, error)
}

// ReelLister lists indexed reels for an owner.
type ReelLister interface {
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.Reel, error)
}
