// Package httphandler is the HTTP driving adapter that serves the REST API.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/smckay/releasedigest/internal/application"
	"github.com/smckay/releasedigest/internal/domain/model"
	"github.com/smckay/releasedigest/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	// appCtx bounds background work spawned by handlers, so fire-and-forget
	// goroutines stop blocking once the application shuts down.
	appCtx       context.Context
	repoStore    driven.RepoStore
	releaseStore driven.ReleaseStore
	digestStore  driven.DigestStore
	digestSvc    *application.DigestService
	pollSvc      *application.PollService
	healthSvc    *application.HealthService
	credSvc      *application.CredentialService
	windowDays   int
	language     string
	logger       *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. appCtx is the
// application lifetime context; windowDays and language are the configured
// defaults applied when a request omits them.
func NewHandler(
	appCtx context.Context,
	repoStore driven.RepoStore,
	releaseStore driven.ReleaseStore,
	digestStore driven.DigestStore,
	digestSvc *application.DigestService,
	pollSvc *application.PollService,
	healthSvc *application.HealthService,
	credSvc *application.CredentialService,
	windowDays int,
	language string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		appCtx:       appCtx,
		repoStore:    repoStore,
		releaseStore: releaseStore,
		digestStore:  digestStore,
		digestSvc:    digestSvc,
		pollSvc:      pollSvc,
		healthSvc:    healthSvc,
		credSvc:      credSvc,
		windowDays:   windowDays,
		language:     language,
		logger:       logger,
	}
}

// NewServeMux creates an http.Handler with all API routes registered and
// wrapped with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, h)
	return ApplyMiddleware(mux, logger)
}

// ApplyMiddleware wraps a handler with the logging and recovery middleware.
func ApplyMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, next)
	wrapped = loggingMiddleware(logger, wrapped)
	return wrapped
}

// RegisterRoutes registers the API routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /api/v1/repos", h.ListRepos)
	mux.HandleFunc("POST /api/v1/repos", h.AddRepo)
	mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}", h.RemoveRepo)
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/releases", h.ListReleases)
	mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/digests", h.TriggerDigest)
	mux.HandleFunc("GET /api/v1/repos/{owner}/{repo}/digests/latest", h.LatestDigest)
	mux.HandleFunc("POST /api/v1/repos/{owner}/{repo}/refresh", h.RefreshRepo)
	mux.HandleFunc("GET /api/v1/digests", h.ListDigests)
	mux.HandleFunc("POST /api/v1/digests", h.TriggerAllDigests)
	mux.HandleFunc("GET /api/v1/digests/{id}", h.GetDigest)
	mux.HandleFunc("POST /api/v1/refresh", h.RefreshAll)
	mux.HandleFunc("GET /api/v1/settings/credentials", h.ListCredentials)
	mux.HandleFunc("PUT /api/v1/settings/credentials/{service...}", h.SetCredential)
	mux.HandleFunc("DELETE /api/v1/settings/credentials/{service...}", h.DeleteCredential)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

// ListRepos returns all watched repositories with release counts and the
// latest release time.
func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.repoStore.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list repos", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RepoResponse, 0, len(repos))
	for _, repo := range repos {
		count, err := h.releaseStore.CountByRepo(r.Context(), repo.ID)
		if err != nil {
			h.logger.Error("failed to count releases", "repo", repo.FullName, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		latest, err := h.releaseStore.LatestPublishedAt(r.Context(), repo.ID)
		if err != nil {
			h.logger.Error("failed to get latest release time", "repo", repo.FullName, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		resp = append(resp, toRepoResponse(repo, count, latest))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddRepo adds a repository to the watch list and triggers an async refresh.
// The body accepts either "owner/name" or a full GitHub URL.
func (h *Handler) AddRepo(w http.ResponseWriter, r *http.Request) {
	var req AddRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	repo, err := model.ParseRepoInput(req.Repo)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	repo.AddedAt = time.Now().UTC()

	id, err := h.repoStore.Add(r.Context(), repo)
	if err != nil {
		if errors.Is(err, driven.ErrRepoAlreadyExists) {
			writeError(w, http.StatusConflict, "repository already exists")
			return
		}
		h.logger.Error("failed to add repo", "repo", repo.FullName, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	repo.ID = id

	// Fire-and-forget async refresh on the application context: the HTTP
	// request context is cancelled after the response is sent, and the app
	// context unblocks the refresh send if the poll loop has stopped.
	go func() {
		if err := h.pollSvc.RefreshRepo(h.appCtx, repo.FullName); err != nil {
			h.logger.Error("async repo refresh failed", "repo", repo.FullName, "error", err)
		}
	}()

	writeJSON(w, http.StatusCreated, toRepoResponse(repo, 0, time.Time{}))
}

// RemoveRepo removes a repository from the watch list. Stored releases and
// digests are removed with it.
func (h *Handler) RemoveRepo(w http.ResponseWriter, r *http.Request) {
	fullName := r.PathValue("owner") + "/" + r.PathValue("repo")

	if err := h.repoStore.Remove(r.Context(), fullName); err != nil {
		if errors.Is(err, driven.ErrRepoNotFound) {
			writeError(w, http.StatusNotFound, "repository not found")
			return
		}
		h.logger.Error("failed to remove repo", "repo", fullName, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListReleases returns the stored releases for a repository within the
// trailing window, newest first.
func (h *Handler) ListReleases(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookupRepo(w, r)
	if !ok {
		return
	}

	days, ok := h.daysParam(w, r)
	if !ok {
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	releases, err := h.releaseStore.ListSince(r.Context(), repo.ID, since)
	if err != nil {
		h.logger.Error("failed to list releases", "repo", repo.FullName, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]ReleaseResponse, 0, len(releases))
	for _, rel := range releases {
		resp = append(resp, toReleaseResponse(rel))
	}

	writeJSON(w, http.StatusOK, resp)
}

// TriggerDigest queues a digest run for one repository and responds 202 with
// the digest ID.
func (h *Handler) TriggerDigest(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookupRepo(w, r)
	if !ok {
		return
	}

	req, ok := h.digestParams(w, r)
	if !ok {
		return
	}
	req.Repo = *repo

	id, err := h.digestSvc.Trigger(r.Context(), req)
	if err != nil {
		h.writeDigestTriggerError(w, repo.FullName, err)
		return
	}

	writeJSON(w, http.StatusAccepted, DigestQueuedResponse{
		ID:         id,
		Repository: repo.FullName,
		Status:     string(model.DigestStatusPending),
	})
}

// TriggerAllDigests queues a digest run for every watched repository.
func (h *Handler) TriggerAllDigests(w http.ResponseWriter, r *http.Request) {
	req, ok := h.digestParams(w, r)
	if !ok {
		return
	}

	repos, err := h.repoStore.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list repos", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(repos) == 0 {
		writeError(w, http.StatusBadRequest, "no repositories on the watch list")
		return
	}

	resp := make([]DigestQueuedResponse, 0, len(repos))
	for _, repo := range repos {
		runReq := req
		runReq.Repo = repo
		id, err := h.digestSvc.Trigger(r.Context(), runReq)
		if err != nil {
			h.writeDigestTriggerError(w, repo.FullName, err)
			return
		}
		resp = append(resp, DigestQueuedResponse{
			ID:         id,
			Repository: repo.FullName,
			Status:     string(model.DigestStatusPending),
		})
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// GetDigest returns a digest by ID.
func (h *Handler) GetDigest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid digest id")
		return
	}

	digest, err := h.digestStore.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, driven.ErrDigestNotFound) {
			writeError(w, http.StatusNotFound, "digest not found")
			return
		}
		h.logger.Error("failed to get digest", "digest", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toDigestResponse(*digest))
}

// LatestDigest returns the most recent digest for a repository, window, and
// language.
func (h *Handler) LatestDigest(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookupRepo(w, r)
	if !ok {
		return
	}

	days, ok := h.daysParam(w, r)
	if !ok {
		return
	}
	language := h.languageParam(r)

	digest, err := h.digestStore.Latest(r.Context(), repo.ID, days, language)
	if err != nil {
		h.logger.Error("failed to get latest digest", "repo", repo.FullName, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if digest == nil {
		writeError(w, http.StatusNotFound, "no digest for this repository, window, and language")
		return
	}

	writeJSON(w, http.StatusOK, toDigestResponse(*digest))
}

// ListDigests returns the latest digest per repository for a window and
// language.
func (h *Handler) ListDigests(w http.ResponseWriter, r *http.Request) {
	days, ok := h.daysParam(w, r)
	if !ok {
		return
	}
	language := h.languageParam(r)

	digests, err := h.digestStore.ListLatest(r.Context(), days, language)
	if err != nil {
		h.logger.Error("failed to list digests", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]DigestResponse, 0, len(digests))
	for _, d := range digests {
		resp = append(resp, toDigestResponse(d))
	}

	writeJSON(w, http.StatusOK, resp)
}

// RefreshRepo triggers a synchronous release fetch for one repository.
func (h *Handler) RefreshRepo(w http.ResponseWriter, r *http.Request) {
	fullName := r.PathValue("owner") + "/" + r.PathValue("repo")

	if err := h.pollSvc.RefreshRepo(r.Context(), fullName); err != nil {
		if errors.Is(err, driven.ErrRepoNotFound) {
			writeError(w, http.StatusNotFound, "repository not found")
			return
		}
		h.logger.Error("repo refresh failed", "repo", fullName, "error", err)
		writeError(w, http.StatusBadGateway, "refresh failed: "+err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RefreshAll triggers a synchronous release fetch for every watched repository.
func (h *Handler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	if err := h.pollSvc.RefreshAll(r.Context()); err != nil {
		h.logger.Error("refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, "refresh failed: "+err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListCredentials returns the configured credential services with values
// redacted.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.credSvc.List(r.Context())
	if err != nil {
		if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
			writeError(w, http.StatusServiceUnavailable, "credential storage disabled: no encryption key configured")
			return
		}
		h.logger.Error("failed to list credentials", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]CredentialResponse, 0, len(creds))
	for _, c := range creds {
		resp = append(resp, toCredentialResponse(c))
	}

	writeJSON(w, http.StatusOK, resp)
}

// SetCredential stores a credential and hot-swaps the dependent client.
func (h *Handler) SetCredential(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")

	var req SetCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.credSvc.Set(r.Context(), service, req.Value); err != nil {
		if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
			writeError(w, http.StatusServiceUnavailable, "credential storage disabled: no encryption key configured")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteCredential removes a credential and reverts the dependent client.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")

	if err := h.credSvc.Delete(r.Context(), service); err != nil {
		if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
			writeError(w, http.StatusServiceUnavailable, "credential storage disabled: no encryption key configured")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health returns the service health snapshot.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.healthSvc.Check(r.Context())

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// lookupRepo resolves the {owner}/{repo} path values to a watched repository,
// writing a 404 or 500 response and returning ok=false on failure.
func (h *Handler) lookupRepo(w http.ResponseWriter, r *http.Request) (*model.Repository, bool) {
	fullName := r.PathValue("owner") + "/" + r.PathValue("repo")

	repo, err := h.repoStore.GetByFullName(r.Context(), fullName)
	if err != nil {
		h.logger.Error("failed to get repo", "repo", fullName, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	if repo == nil {
		writeError(w, http.StatusNotFound, "repository not found")
		return nil, false
	}

	return repo, true
}

// daysParam parses the "days" query parameter, bounded 1..365, defaulting to
// the configured window.
func (h *Handler) daysParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return h.windowDays, true
	}

	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > 365 {
		writeError(w, http.StatusBadRequest, "days must be an integer between 1 and 365")
		return 0, false
	}
	return days, true
}

// languageParam returns the "language" query parameter, defaulting to the
// configured output language.
func (h *Handler) languageParam(r *http.Request) string {
	if v := r.URL.Query().Get("language"); v != "" {
		return v
	}
	return h.language
}

// digestParams parses the digest trigger body, applying configured defaults
// for omitted fields. An empty body is accepted.
func (h *Handler) digestParams(w http.ResponseWriter, r *http.Request) (application.DigestRequest, bool) {
	req := TriggerDigestRequest{}
	// Empty bodies decode to io.EOF; anything else failing is malformed JSON.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return application.DigestRequest{}, false
	}

	if req.Days == 0 {
		req.Days = h.windowDays
	}
	if req.Days < 1 || req.Days > 365 {
		writeError(w, http.StatusBadRequest, "days must be an integer between 1 and 365")
		return application.DigestRequest{}, false
	}
	if req.Language == "" {
		req.Language = h.language
	}
	if req.Provider != "" && req.Provider != "openai" && req.Provider != "zhipu" {
		writeError(w, http.StatusBadRequest, "provider must be openai or zhipu")
		return application.DigestRequest{}, false
	}

	return application.DigestRequest{
		WindowDays: req.Days,
		Language:   req.Language,
		Provider:   req.Provider,
	}, true
}

// writeDigestTriggerError maps digest trigger failures to HTTP responses.
func (h *Handler) writeDigestTriggerError(w http.ResponseWriter, repoFullName string, err error) {
	if errors.Is(err, driven.ErrNoCredentials) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.logger.Error("failed to queue digest", "repo", repoFullName, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
