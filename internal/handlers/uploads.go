package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/recipereels/backend/internal/identity"
	"github.com/recipereels/backend/internal/logging"
	"github.com/recipereels/backend/internal/upload"
)

// UploadHandler exposes the share action of the reel composer. Callers present the
// access token from sign-in; the job is owned by the user the token belongs to.
type UploadHandler struct {
	Callers CallerVerifier
	Uploads UploadRunner
	MaxBody int64
}

// uploadRequest carries the media either inline as base64 data, named by fileName,
// or as a reference under the gateway's media root.
type uploadRequest struct {
	MediaKind           string `json:"mediaKind"`
	FileName            string `json:"fileName,omitempty"`
	Data                string `json:"data,omitempty"`
	LocalMediaReference string `json:"localMediaReference,omitempty"`
	Caption             string `json:"caption"`
}

type uploadResponse struct {
	JobID          string `json:"jobId,omitempty"`
	Status         string `json:"status"`
	DestinationKey string `json:"destinationKey,omitempty"`
	Stage          string `json:"stage,omitempty"`
	Stored         bool   `json:"stored"`
	ReelID         string `json:"reelId,omitempty"`
	Location       string `json:"location,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Create handles POST /api/v1/uploads.
func (h UploadHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Uploads == nil || h.Callers == nil {
		logger.Error("upload coordinator unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "upload services unavailable"})
		return
	}

	owner, err := h.Callers.Subject(ctx, bearerToken(r))
	if err != nil {
		if errors.Is(err, identity.ErrUnauthenticated) || errors.Is(err, identity.ErrSubjectMissing) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "a valid access token is required"})
			return
		}
		logger.Error("failed to verify caller", "error", err)
		respondJSON(ctx, w, http.StatusBadGateway, map[string]string{"error": "could not verify caller"})
		return
	}
	logger = logger.With("owner_id", owner)

	body := r.Body
	if h.MaxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.MaxBody)
	}

	var req uploadRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSON(ctx, w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
			return
		}
		logger.Warn("invalid upload payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	kind, err := upload.ParseMediaKind(req.MediaKind)
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "mediaKind must be image or video"})
		return
	}

	ref := req.LocalMediaReference
	var media []byte
	if req.Data != "" {
		media, err = base64.StdEncoding.DecodeString(req.Data)
		if err != nil || len(media) == 0 {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "data must be base64 encoded media"})
			return
		}
		ref = req.FileName
		if strings.TrimSpace(ref) == "" {
			ref = "inline"
		}
	} else if strings.TrimSpace(ref) == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "data or localMediaReference is required"})
		return
	}

	job, err := h.Uploads.NewJob(owner, kind, ref, req.Caption)
	if err != nil {
		var serr *upload.StateError
		if errors.As(err, &serr) {
			respondJSON(ctx, w, http.StatusConflict, uploadResponse{Status: upload.StatusFailed.String(), Error: serr.Error()})
			return
		}
		logger.Error("failed to create upload job", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to start upload"})
		return
	}

	job.Media = media

	receipt, err := h.Uploads.Run(ctx, job)
	resp := uploadResponse{
		JobID:          job.ID,
		Status:         job.Status.String(),
		DestinationKey: job.DestinationKey,
		ReelID:         receipt.ReelID,
		Location:       receipt.Location,
	}

	if err != nil {
		var (
			stageErr *upload.StageError
			stateErr *upload.StateError
		)
		switch {
		case errors.Is(err, upload.ErrInFlight):
			resp.Status = upload.StatusIdle.String()
			resp.Error = "an upload is already in progress"
			respondJSON(ctx, w, http.StatusConflict, resp)
		case errors.As(err, &stateErr):
			resp.Error = stateErr.Error()
			respondJSON(ctx, w, http.StatusConflict, resp)
		case errors.As(err, &stageErr):
			resp.Stage = string(stageErr.Stage)
			resp.Stored = stageErr.Stored()
			resp.Error = stageErr.Error()
			status := http.StatusBadGateway
			if stageErr.Stage == upload.StagePrepare {
				status = http.StatusUnprocessableEntity
			}
			respondJSON(ctx, w, status, resp)
		default:
			resp.Error = err.Error()
			respondJSON(ctx, w, http.StatusInternalServerError, resp)
		}
		return
	}

	resp.Stored = true
	respondJSON(ctx, w, http.StatusCreated, resp)
}

// bearerToken returns the credentials of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
