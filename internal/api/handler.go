package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"media-gateway/auth"
	"media-gateway/config"
	"media-gateway/jobs"
	"media-gateway/models"
	"media-gateway/ratelimit"
	"media-gateway/repository"
	"media-gateway/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RepositoryInterface defines the repository operations needed by the Handler
type RepositoryInterface interface {
	Health(ctx context.Context) error
	CreateCredential(ctx context.Context, cred *models.Credential) error
	GetCredential(ctx context.Context, id uuid.UUID) (*models.Credential, error)
	ListCredentials(ctx context.Context, filter repository.CredentialFilter) ([]models.Credential, error)
	UpdateCredential(ctx context.Context, cred *models.Credential) (bool, error)
	DeleteCredential(ctx context.Context, id uuid.UUID) (bool, error)
}

// Handler handles HTTP API requests
type Handler struct {
	cfg        *config.Config
	repo       RepositoryInterface
	controller *jobs.Controller
	limiter    *ratelimit.Limiter
}

// NewHandler creates a new Handler
func NewHandler(cfg *config.Config, repo RepositoryInterface, controller *jobs.Controller, limiter *ratelimit.Limiter) *Handler {
	return &Handler{cfg: cfg, repo: repo, controller: controller, limiter: limiter}
}

// HandleHealth returns the health status of the application
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "ok",
		"services": map[string]string{
			"database": "unknown",
		},
	}

	if h.repo != nil {
		if err := h.repo.Health(r.Context()); err == nil {
			status["services"].(map[string]string)["database"] = "connected"
		} else {
			status["services"].(map[string]string)["database"] = "disconnected"
			status["status"] = "degraded"
		}
	} else {
		status["services"].(map[string]string)["database"] = "not_configured"
	}

	cbStatus := services.GetGlobalRegistry().Status()
	status["circuit_breakers"] = cbStatus
	for _, cb := range cbStatus {
		if cb.State == "open" {
			status["status"] = "degraded"
			break
		}
	}

	h.jsonResponse(w, status)
}

// CreateJobRequest is the body of POST /api/jobs
type CreateJobRequest struct {
	URL     string `json:"url"`
	Format  string `json:"format,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// HandleCreateJob queues a new download job
func (h *Handler) HandleCreateJob(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.requirePermission(w, r, auth.PermissionDownload)
	if !ok {
		return
	}

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validateSourceURL(req.URL); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	opts := models.JobOptions{Format: req.Format, Quality: req.Quality}
	job, err := h.controller.Create(r.Context(), req.URL, opts, ident.Credential.Name)
	if err != nil {
		h.jsonError(w, "failed to create job", http.StatusInternalServerError)
		return
	}

	h.jsonResponseStatus(w, http.StatusAccepted, map[string]any{
		"id":     job.ID,
		"status": job.Status,
	})
}

// HandleGetJob returns a single job
func (h *Handler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePermission(w, r, auth.PermissionRead); !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.jsonError(w, "invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.controller.Get(r.Context(), id)
	if err != nil {
		h.writeJobError(w, err)
		return
	}

	h.jsonResponse(w, job)
}

// HandleListJobs returns jobs, optionally filtered by status
func (h *Handler) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePermission(w, r, auth.PermissionRead); !ok {
		return
	}

	filter := repository.JobFilter{
		Limit:  h.parseLimitParam(r, 50),
		Offset: h.parseOffsetParam(r),
	}
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		if !models.ValidJobStatus(statusStr) {
			h.jsonError(w, "invalid status filter", http.StatusBadRequest)
			return
		}
		status := models.JobStatus(statusStr)
		filter.Status = &status
	}

	list, err := h.controller.List(r.Context(), filter)
	if err != nil {
		h.jsonError(w, "failed to list jobs", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, map[string]any{
		"jobs":  list,
		"count": len(list),
	})
}

// HandleRetryJob requeues a failed job within its retry budget
func (h *Handler) HandleRetryJob(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePermission(w, r, auth.PermissionDownload); !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.jsonError(w, "invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.controller.Retry(r.Context(), id)
	if err != nil {
		h.writeJobError(w, err)
		return
	}

	h.jsonResponse(w, map[string]any{
		"id":     job.ID,
		"status": job.Status,
	})
}

// HandleGetLimits reports the caller's current rate-limit window state.
// Anonymous callers get their IP-scoped window.
func (h *Handler) HandleGetLimits(w http.ResponseWriter, r *http.Request) {
	ident := GetIdentity(r.Context())
	if ident == nil {
		h.jsonError(w, "identity unavailable", http.StatusInternalServerError)
		return
	}

	var customQuota *int
	if ident.Credential != nil {
		customQuota = ident.Credential.CustomQuota
	}

	info := h.limiter.Info(r.Context(), ident.Identifier, ident.Tier(), customQuota)
	h.jsonResponse(w, info)
}

// CreateKeyRequest is the body of POST /api/admin/keys
type CreateKeyRequest struct {
	Name          string `json:"name"`
	Tier          string `json:"tier"`
	ExpiresInDays int    `json:"expires_in_days,omitempty"`
	CustomQuota   *int   `json:"custom_quota,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// HandleCreateKey creates a new API key. The plaintext key appears in
// this response and nowhere else.
func (h *Handler) HandleCreateKey(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.requirePermission(w, r, auth.PermissionAdmin)
	if !ok {
		return
	}

	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		h.jsonError(w, "name is required", http.StatusBadRequest)
		return
	}
	if !models.ValidTier(req.Tier) {
		h.jsonError(w, "invalid tier", http.StatusBadRequest)
		return
	}
	if req.CustomQuota != nil && *req.CustomQuota <= 0 {
		h.jsonError(w, "custom_quota must be positive", http.StatusBadRequest)
		return
	}

	plaintext, hash, err := auth.GenerateKey()
	if err != nil {
		h.jsonError(w, "failed to generate key", http.StatusInternalServerError)
		return
	}

	cred := models.NewCredential(req.Name, hash, auth.DisplayPrefix(plaintext), models.Tier(req.Tier))
	cred.CustomQuota = req.CustomQuota
	cred.Notes = req.Notes
	cred.CreatedBy = ident.Credential.Name
	if req.ExpiresInDays > 0 {
		expiry := time.Now().UTC().AddDate(0, 0, req.ExpiresInDays)
		cred.ExpiresAt = &expiry
	}

	if err := h.repo.CreateCredential(r.Context(), cred); err != nil {
		h.jsonError(w, "failed to store credential", http.StatusInternalServerError)
		return
	}

	h.jsonResponseStatus(w, http.StatusCreated, map[string]any{
		"credential": cred,
		"key":        plaintext,
	})
}

// HandleListKeys lists credentials with pagination and filtering
func (h *Handler) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePermission(w, r, auth.PermissionAdmin); !ok {
		return
	}

	filter := repository.CredentialFilter{
		Limit:  h.parseLimitParam(r, 50),
		Offset: h.parseOffsetParam(r),
	}
	if activeStr := r.URL.Query().Get("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			h.jsonError(w, "invalid active filter", http.StatusBadRequest)
			return
		}
		filter.Active = &active
	}
	if tierStr := r.URL.Query().Get("tier"); tierStr != "" {
		if !models.ValidTier(tierStr) {
			h.jsonError(w, "invalid tier filter", http.StatusBadRequest)
			return
		}
		tier := models.Tier(tierStr)
		filter.Tier = &tier
	}

	creds, err := h.repo.ListCredentials(r.Context(), filter)
	if err != nil {
		h.jsonError(w, "failed to list credentials", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, map[string]any{
		"credentials": creds,
		"count":       len(creds),
	})
}

// HandleGetKey returns a single credential
func (h *Handler) HandleGetKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePermission(w, r, auth.PermissionAdmin); !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.jsonError(w, "invalid credential id", http.StatusBadRequest)
		return
	}

	cred, err := h.repo.GetCredential(r.Context(), id)
	if err != nil {
		h.jsonError(w, "failed to get credential", http.StatusInternalServerError)
		return
	}
	if cred == nil {
		h.jsonError(w, "credential not found", http.StatusNotFound)
		return
	}

	h.jsonResponse(w, cred)
}

// UpdateKeyRequest is the body of PATCH /api/admin/keys/{id}.
// Pointer fields distinguish "absent" from zero values.
type UpdateKeyRequest struct {
	Name        *string    `json:"name,omitempty"`
	Tier        *string    `json:"tier,omitempty"`
	Active      *bool      `json:"active,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CustomQuota *int       `json:"custom_quota,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// HandleUpdateKey applies a partial update to a credential
func (h *Handler) HandleUpdateKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePermission(w, r, auth.PermissionAdmin); !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.jsonError(w, "invalid credential id", http.StatusBadRequest)
		return
	}

	var req UpdateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Tier != nil && !models.ValidTier(*req.Tier) {
		h.jsonError(w, "invalid tier", http.StatusBadRequest)
		return
	}

	cred, err := h.repo.GetCredential(r.Context(), id)
	if err != nil {
		h.jsonError(w, "failed to get credential", http.StatusInternalServerError)
		return
	}
	if cred == nil {
		h.jsonError(w, "credential not found", http.StatusNotFound)
		return
	}

	if req.Name != nil {
		cred.Name = *req.Name
	}
	if req.Tier != nil {
		cred.Tier = models.Tier(*req.Tier)
	}
	if req.Active != nil {
		cred.Active = *req.Active
	}
	if req.ExpiresAt != nil {
		cred.ExpiresAt = req.ExpiresAt
	}
	if req.CustomQuota != nil {
		cred.CustomQuota = req.CustomQuota
	}
	if req.Notes != nil {
		cred.Notes = *req.Notes
	}

	found, err := h.repo.UpdateCredential(r.Context(), cred)
	if err != nil {
		h.jsonError(w, "failed to update credential", http.StatusInternalServerError)
		return
	}
	if !found {
		h.jsonError(w, "credential not found", http.StatusNotFound)
		return
	}

	h.jsonResponse(w, cred)
}

// HandleDeleteKey removes a credential
func (h *Handler) HandleDeleteKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePermission(w, r, auth.PermissionAdmin); !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.jsonError(w, "invalid credential id", http.StatusBadRequest)
		return
	}

	found, err := h.repo.DeleteCredential(r.Context(), id)
	if err != nil {
		h.jsonError(w, "failed to delete credential", http.StatusInternalServerError)
		return
	}
	if !found {
		h.jsonError(w, "credential not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// requirePermission enforces per-operation authorization. Identity
// resolution upstream is deliberately lenient; this is where the
// fail-closed decision happens.
func (h *Handler) requirePermission(w http.ResponseWriter, r *http.Request, perm auth.Permission) (*Identity, bool) {
	ident := GetIdentity(r.Context())
	if ident == nil || !ident.Authenticated {
		if ident != nil && errors.Is(ident.ResolveErr, auth.ErrMalformedKey) {
			h.jsonError(w, "malformed API key", http.StatusBadRequest)
			return nil, false
		}
		h.jsonError(w, "authentication required", http.StatusUnauthorized)
		return nil, false
	}

	if !auth.Allowed(perm, ident.Credential.Tier) {
		h.jsonError(w, "insufficient permission tier", http.StatusForbidden)
		return nil, false
	}

	return ident, true
}

// writeJobError maps controller errors onto HTTP responses
func (h *Handler) writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		h.jsonError(w, "job not found", http.StatusNotFound)
	case errors.Is(err, jobs.ErrRetryNotAllowed):
		h.jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, jobs.ErrInvalidTransition):
		h.jsonError(w, err.Error(), http.StatusConflict)
	default:
		h.jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// validateSourceURL checks that the source is an absolute http(s) URL
func validateSourceURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return errors.New("url must be an absolute http(s) URL")
	}
	return nil
}

func (h *Handler) parseLimitParam(r *http.Request, defaultLimit int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return defaultLimit
}

func (h *Handler) parseOffsetParam(r *http.Request) int {
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			return o
		}
	}
	return 0
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonResponseStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
