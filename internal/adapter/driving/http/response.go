package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/smckay/releasedigest/internal/adapter/driving/web"
	"github.com/smckay/releasedigest/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// AddRepoRequest is the JSON body for the add repository endpoint. Repo
// accepts "owner/name" or a full GitHub URL.
type AddRepoRequest struct {
	Repo string `json:"repo"`
}

// RepoResponse is the JSON representation of a watched repository.
type RepoResponse struct {
	FullName        string `json:"full_name"`
	Owner           string `json:"owner"`
	Name            string `json:"name"`
	AddedAt         string `json:"added_at"`
	ReleaseCount    int    `json:"release_count"`
	LatestReleaseAt string `json:"latest_release_at,omitempty"`
}

// ReleaseResponse is the JSON representation of a stored release.
type ReleaseResponse struct {
	TagName     string `json:"tag_name"`
	Name        string `json:"name"`
	Body        string `json:"body"`
	URL         string `json:"url"`
	Prerelease  bool   `json:"prerelease"`
	PublishedAt string `json:"published_at"`
}

// TriggerDigestRequest is the JSON body for the digest trigger endpoints.
// All fields are optional and default from configuration.
type TriggerDigestRequest struct {
	Days     int    `json:"days"`
	Language string `json:"language"`
	Provider string `json:"provider"`
}

// DigestQueuedResponse acknowledges an accepted digest run.
type DigestQueuedResponse struct {
	ID         int64  `json:"id"`
	Repository string `json:"repository"`
	Status     string `json:"status"`
}

// DigestResponse is the JSON representation of a digest, including the
// summary both as raw markdown and as sanitized HTML.
type DigestResponse struct {
	ID           int64  `json:"id"`
	Repository   string `json:"repository"`
	WindowDays   int    `json:"window_days"`
	Language     string `json:"language"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Status       string `json:"status"`
	Summary      string `json:"summary"`
	SummaryHTML  string `json:"summary_html"`
	Error        string `json:"error,omitempty"`
	ReleaseCount int    `json:"release_count"`
	RequestedAt  string `json:"requested_at"`
	CompletedAt  string `json:"completed_at,omitempty"`
}

// CredentialResponse is the JSON representation of a stored credential.
// Values are never returned.
type CredentialResponse struct {
	Service   string `json:"service"`
	UpdatedAt string `json:"updated_at"`
}

// SetCredentialRequest is the JSON body for the store credential endpoint.
type SetCredentialRequest struct {
	Value string `json:"value"`
}

// toRepoResponse converts a domain Repository to its JSON response representation.
func toRepoResponse(repo model.Repository, releaseCount int, latestReleaseAt time.Time) RepoResponse {
	resp := RepoResponse{
		FullName:     repo.FullName,
		Owner:        repo.Owner,
		Name:         repo.Name,
		AddedAt:      repo.AddedAt.UTC().Format(time.RFC3339),
		ReleaseCount: releaseCount,
	}
	if !latestReleaseAt.IsZero() {
		resp.LatestReleaseAt = latestReleaseAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// toReleaseResponse converts a domain Release to its JSON response representation.
func toReleaseResponse(rel model.Release) ReleaseResponse {
	return ReleaseResponse{
		TagName:     rel.TagName,
		Name:        rel.Name,
		Body:        rel.Body,
		URL:         rel.HTMLURL,
		Prerelease:  rel.Prerelease,
		PublishedAt: rel.PublishedAt.UTC().Format(time.RFC3339),
	}
}

// toDigestResponse converts a domain Digest to its JSON response
// representation, rendering the summary markdown to sanitized HTML.
func toDigestResponse(d model.Digest) DigestResponse {
	resp := DigestResponse{
		ID:           d.ID,
		Repository:   d.RepoFullName,
		WindowDays:   d.WindowDays,
		Language:     d.Language,
		Provider:     d.Provider,
		Model:        d.Model,
		Status:       string(d.Status),
		Summary:      d.Summary,
		SummaryHTML:  web.RenderMarkdown(d.Summary),
		Error:        d.Error,
		ReleaseCount: d.ReleaseCount,
		RequestedAt:  d.RequestedAt.UTC().Format(time.RFC3339),
	}
	if !d.CompletedAt.IsZero() {
		resp.CompletedAt = d.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// toCredentialResponse converts a domain Credential to its JSON representation.
func toCredentialResponse(c model.Credential) CredentialResponse {
	return CredentialResponse{
		Service:   c.Service,
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
