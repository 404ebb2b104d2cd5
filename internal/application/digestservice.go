package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smckay/releasedigest/internal/domain/model"
	"github.com/smckay/releasedigest/internal/domain/port/driven"
)

// digestQueueSize bounds the number of queued digest runs.
const digestQueueSize = 64

// RepoRefresher triggers an on-demand release fetch for a repository.
// PollService satisfies this interface.
type RepoRefresher interface {
	RefreshRepo(ctx context.Context, repoFullName string) error
}

// DigestRequest describes one digest run for a repository.
type DigestRequest struct {
	Repo       model.Repository
	WindowDays int
	Language   string
	Provider   string // empty means the configured default
}

// digestJob is a queued digest run bound to its store row.
type digestJob struct {
	digestID int64
	req      DigestRequest
}

// DigestService turns a repository's recent releases into an LLM-generated
// digest. Runs are queued onto a bounded worker pool; at most one run per
// (repo, window, language) is in flight, and concurrent triggers join it.
type DigestService struct {
	summarizers  *SummarizerProvider
	releaseStore driven.ReleaseStore
	digestStore  driven.DigestStore
	refresher    RepoRefresher
	estimator    TokenEstimator

	queue chan digestJob

	mu       sync.Mutex
	inFlight map[string]int64 // run key -> digest ID
}

// NewDigestService creates a new DigestService with all required dependencies.
func NewDigestService(
	summarizers *SummarizerProvider,
	releaseStore driven.ReleaseStore,
	digestStore driven.DigestStore,
	refresher RepoRefresher,
	estimator TokenEstimator,
) *DigestService {
	return &DigestService{
		summarizers:  summarizers,
		releaseStore: releaseStore,
		digestStore:  digestStore,
		refresher:    refresher,
		estimator:    estimator,
		queue:        make(chan digestJob, digestQueueSize),
		inFlight:     make(map[string]int64),
	}
}

// Start launches workers digest workers that drain the queue until the
// context is canceled. It returns immediately.
func (s *DigestService) Start(ctx context.Context, workers int) {
	for i := 0; i < workers; i++ {
		go s.worker(ctx, i)
	}
}

func (s *DigestService) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			slog.Debug("digest worker stopped", "worker", id)
			return
		case job := <-s.queue:
			s.run(ctx, job)
		}
	}
}

// Trigger enqueues a digest run and returns the digest ID. If a run for the
// same repository, window, and language is already in flight, its ID is
// returned instead of starting another.
func (s *DigestService) Trigger(ctx context.Context, req DigestRequest) (int64, error) {
	summarizer, err := s.summarizers.Get(req.Provider)
	if err != nil {
		return 0, err
	}

	provider := req.Provider
	if provider == "" {
		provider = s.summarizers.DefaultName()
	}
	req.Provider = provider

	key := runKey(req.Repo.ID, req.WindowDays, req.Language)

	s.mu.Lock()
	if id, ok := s.inFlight[key]; ok {
		s.mu.Unlock()
		return id, nil
	}

	id, err := s.digestStore.Create(ctx, model.Digest{
		RepoID:     req.Repo.ID,
		WindowDays: req.WindowDays,
		Language:   req.Language,
		Provider:   provider,
		Model:      summarizer.Model(),
		Status:     model.DigestStatusPending,
	})
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.inFlight[key] = id
	s.mu.Unlock()

	job := digestJob{digestID: id, req: req}
	select {
	case s.queue <- job:
	default:
		// Queue full: fail the digest rather than block the caller.
		s.finish(key, id)
		if err := s.digestStore.Fail(ctx, id, "digest queue full"); err != nil {
			slog.Error("mark digest failed", "digest", id, "error", err)
		}
		return 0, fmt.Errorf("digest queue full (capacity %d)", digestQueueSize)
	}

	slog.Info("digest queued",
		"digest", id,
		"repo", req.Repo.FullName,
		"window_days", req.WindowDays,
		"language", req.Language,
		"provider", summarizer.Name(),
	)

	return id, nil
}

// run executes one digest job end to end, always leaving the digest row in a
// terminal state.
func (s *DigestService) run(ctx context.Context, job digestJob) {
	key := runKey(job.req.Repo.ID, job.req.WindowDays, job.req.Language)
	defer s.finish(key, job.digestID)

	if err := s.digestStore.UpdateStatus(ctx, job.digestID, model.DigestStatusRunning); err != nil {
		slog.Error("mark digest running", "digest", job.digestID, "error", err)
		return
	}

	summary, count, err := s.generate(ctx, job.req)

	// Release the in-flight key before the terminal write so a caller that
	// observes the terminal digest can immediately start a fresh run.
	s.finish(key, job.digestID)

	if err != nil {
		slog.Error("digest run failed",
			"digest", job.digestID,
			"repo", job.req.Repo.FullName,
			"error", err,
		)
		if failErr := s.digestStore.Fail(ctx, job.digestID, err.Error()); failErr != nil {
			slog.Error("mark digest failed", "digest", job.digestID, "error", failErr)
		}
		return
	}

	if err := s.digestStore.Complete(ctx, job.digestID, summary, count); err != nil {
		slog.Error("mark digest complete", "digest", job.digestID, "error", err)
		return
	}

	slog.Info("digest complete",
		"digest", job.digestID,
		"repo", job.req.Repo.FullName,
		"releases", count,
	)
}

// generate produces the digest text for a request. It refreshes the
// repository's releases first (best effort), loads the window from the
// store, batches under the provider's token budget, and summarizes.
func (s *DigestService) generate(ctx context.Context, req DigestRequest) (string, int, error) {
	summarizer, err := s.summarizers.Get(req.Provider)
	if err != nil {
		return "", 0, err
	}

	// A stale store is better than no digest; refresh failures (rate
	// limits included) are logged and the stored window is used as is.
	if err := s.refresher.RefreshRepo(ctx, req.Repo.FullName); err != nil {
		slog.Warn("pre-digest refresh failed, using stored releases",
			"repo", req.Repo.FullName, "error", err)
	}

	since := time.Now().UTC().AddDate(0, 0, -req.WindowDays)
	releases, err := s.releaseStore.ListSince(ctx, req.Repo.ID, since)
	if err != nil {
		return "", 0, err
	}

	if len(releases) == 0 {
		return fmt.Sprintf("No releases were published in the past %d days.", req.WindowDays), 0, nil
	}

	budget := promptBudget(summarizer.ContextTokens())
	batches := batchReleases(releases, budget, s.estimator)

	partials := make([]string, 0, len(batches))
	for _, batch := range batches {
		prompt, err := buildPrompt(batch, req.WindowDays, req.Language)
		if err != nil {
			return "", 0, err
		}

		resp, err := summarizer.Summarize(ctx, driven.SummaryRequest{
			System:    systemPrompt,
			Prompt:    prompt,
			MaxTokens: maxResponseTokens,
		})
		if err != nil {
			return "", 0, fmt.Errorf("summarize batch: %w", err)
		}
		partials = append(partials, resp.Text)
	}

	if len(partials) == 1 {
		return partials[0], len(releases), nil
	}

	resp, err := summarizer.Summarize(ctx, driven.SummaryRequest{
		System:    systemPrompt,
		Prompt:    combinePrompt(partials, req.WindowDays, req.Language),
		MaxTokens: maxResponseTokens,
	})
	if err != nil {
		return "", 0, fmt.Errorf("combine partial summaries: %w", err)
	}

	return resp.Text, len(releases), nil
}

// finish releases the in-flight entry for a run. The delete is guarded by
// digest ID so a stale release (the deferred one after the early release in
// run) cannot evict a newer run that registered the same key in between.
func (s *DigestService) finish(key string, digestID int64) {
	s.mu.Lock()
	if id, ok := s.inFlight[key]; ok && id == digestID {
		delete(s.inFlight, key)
	}
	s.mu.Unlock()
}

func runKey(repoID int64, windowDays int, language string) string {
	return fmt.Sprintf("%d/%d/%s", repoID, windowDays, language)
}
