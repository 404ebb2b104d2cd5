package application

import (
	"context"
	"time"

	"github.com/smckay/releasedigest/internal/domain/port/driven"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus is a snapshot of the service's runtime state.
type HealthStatus struct {
	Healthy          bool      `json:"healthy"`
	Database         string    `json:"database"`
	RepoCount        int       `json:"repo_count"`
	GitHubConfigured bool      `json:"github_configured"`
	DefaultProvider  string    `json:"default_provider"`
	LastPollAt       time.Time `json:"last_poll_at"`
}

// HealthService aggregates liveness information from the store and the
// background services.
type HealthService struct {
	pinger      Pinger
	repoStore   driven.RepoStore
	ghProvider  *GitHubClientProvider
	summarizers *SummarizerProvider
	poller      *PollService
}

// NewHealthService creates a new HealthService.
func NewHealthService(
	pinger Pinger,
	repoStore driven.RepoStore,
	ghProvider *GitHubClientProvider,
	summarizers *SummarizerProvider,
	poller *PollService,
) *HealthService {
	return &HealthService{
		pinger:      pinger,
		repoStore:   repoStore,
		ghProvider:  ghProvider,
		summarizers: summarizers,
		poller:      poller,
	}
}

// Check returns the current health snapshot. The service is healthy as long
// as the database answers; missing credentials degrade features but do not
// fail the check.
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:          true,
		Database:         "ok",
		GitHubConfigured: s.ghProvider.HasClient(),
		DefaultProvider:  s.summarizers.DefaultName(),
		LastPollAt:       s.poller.LastPollAt(),
	}

	if err := s.pinger.Ping(ctx); err != nil {
		status.Healthy = false
		status.Database = err.Error()
		return status
	}

	repos, err := s.repoStore.ListAll(ctx)
	if err != nil {
		status.Healthy = false
		status.Database = err.Error()
		return status
	}
	status.RepoCount = len(repos)

	return status
}
