package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"call-relay/internal/apierrors"
	"call-relay/internal/observability"
	"call-relay/internal/store"
	"call-relay/internal/workers"

	"github.com/gin-gonic/gin"
)

// ClaimStore is the slice of the call record store the gate needs.
type ClaimStore interface {
	IsPosted(ctx context.Context, callID string) (bool, error)
	TryClaim(ctx context.Context, params store.ClaimParams) (store.ClaimResult, error)
	GetCall(ctx context.Context, callID string) (store.CallRecord, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// JobSubmitter enqueues admitted calls for background processing.
type JobSubmitter interface {
	Submit(ctx context.Context, job workers.CallJob) error
}

// PartyDirectory answers whether a phone number belongs to the team.
type PartyDirectory interface {
	IsKnownParty(phone string) bool
}

// Config tunes the admission checks.
type Config struct {
	ClaimTimeout    time.Duration
	FailureCooldown time.Duration
	// MaxEventAge bounds how far a reported event timestamp may sit in the
	// past or the future; zero disables the check.
	MaxEventAge time.Duration
	// SkipStatuses lists provider call statuses that are never processed.
	SkipStatuses []string
	// SigningSecret enables Twilio-style signature validation when set.
	SigningSecret string
}

// Handler is the webhook ingestion gate. It validates inbound call events,
// filters duplicates and unauthorized or skippable calls, claims the call in
// the store, and hands admitted calls to the background pool. Everything a
// provider may redeliver is answered 200 so retries stay calm; only
// malformed payloads and store faults are real errors.
type Handler struct {
	store  ClaimStore
	pool   JobSubmitter
	roster PartyDirectory
	config Config
	logger *observability.Logger
}

func New(claimStore ClaimStore, pool JobSubmitter, roster PartyDirectory, config Config, logger *observability.Logger) *Handler {
	return &Handler{
		store:  claimStore,
		pool:   pool,
		roster: roster,
		config: config,
		logger: logger,
	}
}

// CallEventRequest is the inbound webhook payload.
type CallEventRequest struct {
	CallID       string `json:"call_id" binding:"required"`
	FromNumber   string `json:"from_number" binding:"required"`
	ToNumber     string `json:"to_number" binding:"required"`
	Duration     *int   `json:"duration" binding:"required,gte=0"`
	RecordingURL string `json:"recording_url" binding:"omitempty,url"`
	Timestamp    string `json:"timestamp"`
	Status       string `json:"status"`
}

// WebhookResponse is the envelope for every accepted or softly-rejected
// delivery.
type WebhookResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	CallID    string `json:"call_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HandleCallEvent handles POST /webhook/zapier
func (h *Handler) HandleCallEvent(c *gin.Context) {
	var req CallEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	status := req.Status
	if status == "" {
		status = "completed"
	}

	ctx := observability.WithFields(c.Request.Context(),
		observability.Field{Key: "call_id", Value: req.CallID},
		observability.Field{Key: "from_number", Value: req.FromNumber},
		observability.Field{Key: "call_status", Value: status},
	)
	c.Request = c.Request.WithContext(ctx)

	posted, err := h.store.IsPosted(ctx, req.CallID)
	if err != nil {
		apierrors.InternalError(c, err)
		return
	}
	if posted {
		h.reject(c, req.CallID, "already_posted", "Call already processed and posted")
		return
	}

	if !h.eventAgeOK(req.Timestamp, time.Now()) {
		h.reject(c, req.CallID, "event_too_old", "Event timestamp is outside the accepted window")
		return
	}

	if !h.roster.IsKnownParty(req.FromNumber) && !h.roster.IsKnownParty(req.ToNumber) {
		h.reject(c, req.CallID, "unknown_parties", "Neither call party is a known number")
		return
	}

	if h.skippedStatus(status) {
		h.reject(c, req.CallID, "status_skipped", fmt.Sprintf("Calls with status %q are not processed", status))
		return
	}

	result, err := h.store.TryClaim(ctx, store.ClaimParams{
		CallID:          req.CallID,
		FromNumber:      req.FromNumber,
		ToNumber:        req.ToNumber,
		Duration:        *req.Duration,
		EventTimestamp:  req.Timestamp,
		ClaimTimeout:    h.config.ClaimTimeout,
		FailureCooldown: h.config.FailureCooldown,
	})
	if err != nil {
		apierrors.InternalError(c, err)
		return
	}
	if !result.Claimed {
		h.reject(c, req.CallID, string(result.Reason), blockMessage(result.Reason))
		return
	}

	job := workers.CallJob{
		CallID:       req.CallID,
		FromNumber:   req.FromNumber,
		ToNumber:     req.ToNumber,
		Duration:     *req.Duration,
		RecordingURL: req.RecordingURL,
		Timestamp:    req.Timestamp,
		Status:       status,
	}
	if err := h.pool.Submit(ctx, job); err != nil {
		// The claim stays in place and unblocks itself after the claim
		// timeout, so a redelivery can pick the call up again.
		h.logger.Error(ctx, "failed to queue admitted call", err)
		apierrors.InternalError(c, err)
		return
	}

	h.logger.Info(ctx, "call admitted for processing")
	c.JSON(http.StatusOK, WebhookResponse{
		Success:   true,
		Message:   "Call accepted for processing",
		CallID:    req.CallID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleStats handles GET /stats
func (h *Handler) HandleStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		apierrors.InternalError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandleGetCall handles GET /calls/:call_id
func (h *Handler) HandleGetCall(c *gin.Context) {
	rec, err := h.store.GetCall(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// handleError maps errors to appropriate API responses
func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		apierrors.NotFound(c, "Call not found")
	default:
		apierrors.InternalError(c, err)
	}
}

// reject answers 200 with an explanation; an error status would make the
// provider redeliver the same event aggressively.
func (h *Handler) reject(c *gin.Context, callID, reason, message string) {
	ctx := observability.WithFields(c.Request.Context(),
		observability.Field{Key: "reject_reason", Value: reason})
	h.logger.Info(ctx, "call rejected")
	c.JSON(http.StatusOK, WebhookResponse{
		Success:   true,
		Message:   message,
		CallID:    callID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// eventAgeOK checks the reported event time against the accepted window.
// The field is best effort from the provider, so missing or unparseable
// timestamps pass.
func (h *Handler) eventAgeOK(timestamp string, now time.Time) bool {
	if h.config.MaxEventAge <= 0 || timestamp == "" {
		return true
	}
	ts, err := parseEventTime(timestamp)
	if err != nil {
		return true
	}
	age := now.Sub(ts)
	if age < 0 {
		age = -age
	}
	return age <= h.config.MaxEventAge
}

func parseEventTime(value string) (time.Time, error) {
	layouts := []string{time.RFC3339, "2006-01-02 15:04:05"}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format %q", value)
}

func (h *Handler) skippedStatus(status string) bool {
	for _, skip := range h.config.SkipStatuses {
		if strings.EqualFold(skip, status) {
			return true
		}
	}
	return false
}

func blockMessage(reason store.BlockReason) string {
	switch reason {
	case store.BlockAlreadyPosted:
		return "Call already processed and posted"
	case store.BlockInFlight:
		return "Call is already being processed"
	case store.BlockRecentFailure:
		return "Call failed recently and is inside the retry cool-down"
	default:
		return "Call cannot be claimed right now"
	}
}
