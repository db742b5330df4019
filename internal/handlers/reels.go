package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/recipereels/backend/internal/logging"
	"github.com/recipereels/backend/internal/processor"
	"github.com/recipereels/backend/internal/upload"
)

// ReelHandler serves the processing function and the owner's reel listing.
type ReelHandler struct {
	Processor ReelProcessor
	Reels     ReelLister
	MaxBody   int64
}

// Process handles POST /api/v1/reels/process.
func (h ReelHandler) Process(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Processor == nil {
		logger.Error("reel processor unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "processing services unavailable"})
		return
	}

	body := r.Body
	if h.MaxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.MaxBody)
	}

	var req upload.NotifyRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSON(ctx, w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
			return
		}
		logger.Warn("invalid process payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	receipt, err := h.Processor.Process(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, processor.ErrInvalidRequest):
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, processor.ErrKeyOutOfScope):
			respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": err.Error()})
		case errors.Is(err, processor.ErrDuplicate):
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, processor.ErrTooLarge):
			respondJSON(ctx, w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		default:
			logger.Error("reel processing failed", "error", err)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to process reel"})
		}
		return
	}

	respondJSON(ctx, w, http.StatusCreated, receipt)
}

type reelResponse struct {
	ID        string    `json:"id"`
	ObjectKey string    `json:"objectKey"`
	Location  string    `json:"location"`
	Caption   string    `json:"caption"`
	MediaKind string    `json:"mediaKind"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// List handles GET /api/v1/reels?ownerId=...&limit=...
func (h ReelHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Reels == nil {
		logger.Error("reel index unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "reel services unavailable"})
		return
	}

	owner := strings.TrimSpace(r.URL.Query().Get("ownerId"))
	if owner == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "ownerId is required"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	reels, err := h.Reels.ListByOwner(ctx, owner, limit)
	if err != nil {
		logger.Error("failed to list reels", "error", err, "ownerId", owner)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to list reels"})
		return
	}

	out := make([]reelResponse, 0, len(reels))
	for _, reel := range reels {
		out = append(out, reelResponse{
			ID:        reel.ID,
			ObjectKey: reel.ObjectKey,
			Location:  reel.Location,
			Caption:   reel.Caption,
			MediaKind: reel.MediaKind,
			Size:      reel.Size,
			CreatedAt: reel.CreatedAt,
		})
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"reels": out})
}
