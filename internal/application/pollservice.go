package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/smckay/releasedigest/internal/domain/model"
	"github.com/smckay/releasedigest/internal/domain/port/driven"
)

// schedulerTick is the granularity at which the poll loop checks for due repos.
const schedulerTick = time.Minute

// backfillWindow bounds how far back the first fetch of a repository reaches.
const backfillWindow = 365 * 24 * time.Hour

// refreshRequest represents a manual refresh trigger.
type refreshRequest struct {
	repoFullName string // empty for a full refresh
	done         chan error
}

// PollService orchestrates periodic GitHub release polling and persistence.
// Each repository is polled on an adaptive schedule derived from its release
// cadence; a manual refresh bypasses the schedule.
type PollService struct {
	ghProvider   *GitHubClientProvider
	repoStore    driven.RepoStore
	releaseStore driven.ReleaseStore
	baseInterval time.Duration
	refreshCh    chan refreshRequest

	mu        sync.RWMutex
	schedules map[string]repoSchedule
	lastPoll  time.Time
}

// NewPollService creates a new PollService with all required dependencies.
func NewPollService(
	ghProvider *GitHubClientProvider,
	repoStore driven.RepoStore,
	releaseStore driven.ReleaseStore,
	baseInterval time.Duration,
) *PollService {
	return &PollService{
		ghProvider:   ghProvider,
		repoStore:    repoStore,
		releaseStore: releaseStore,
		baseInterval: baseInterval,
		refreshCh:    make(chan refreshRequest),
		schedules:    make(map[string]repoSchedule),
	}
}

// Start begins the polling loop. It runs an immediate poll of every
// repository, then wakes on a fixed tick and polls the repositories whose
// adaptive schedule is due. It also listens for manual refresh requests.
// Start blocks until the context is canceled.
func (s *PollService) Start(ctx context.Context) {
	if err := s.pollAll(ctx, true); err != nil {
		slog.Error("initial poll failed", "error", err)
	}

	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poll service stopped")
			return
		case <-ticker.C:
			if err := s.pollAll(ctx, false); err != nil {
				slog.Error("poll cycle failed", "error", err)
			}
		case req := <-s.refreshCh:
			req.done <- s.handleRefresh(ctx, req)
		}
	}
}

// RefreshRepo triggers a manual refresh for a specific repository, bypassing
// the adaptive schedule. It blocks until the refresh completes or the context
// is canceled.
func (s *PollService) RefreshRepo(ctx context.Context, repoFullName string) error {
	return s.refresh(ctx, repoFullName)
}

// RefreshAll triggers a manual refresh of every watched repository.
func (s *PollService) RefreshAll(ctx context.Context) error {
	return s.refresh(ctx, "")
}

func (s *PollService) refresh(ctx context.Context, repoFullName string) error {
	done := make(chan error, 1)
	req := refreshRequest{
		repoFullName: repoFullName,
		done:         done,
	}

	select {
	case s.refreshCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastPollAt returns the completion time of the most recent poll cycle, or
// the zero time if no cycle has completed.
func (s *PollService) LastPollAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPoll
}

// Schedule returns the adaptive schedule for a repository, if known.
func (s *PollService) Schedule(repoFullName string) (ScheduleInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[repoFullName]
	if !ok {
		return ScheduleInfo{}, false
	}
	return ScheduleInfo{
		Cadence:    sched.cadence,
		NextPollAt: sched.nextPollAt,
		LastPolled: sched.lastPolled,
	}, true
}

// pollAll polls watched repositories. When force is true every repository is
// polled; otherwise only those whose schedule is due.
func (s *PollService) pollAll(ctx context.Context, force bool) error {
	if !s.ghProvider.HasClient() {
		slog.Debug("no github client configured, skipping poll cycle")
		return nil
	}

	start := time.Now()

	repos, err := s.repoStore.ListAll(ctx)
	if err != nil {
		return err
	}

	var polled, pollErrors, limited int
	for _, repo := range repos {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !force && !s.due(repo.FullName, start) {
			continue
		}

		polled++
		if err := s.pollRepo(ctx, repo); err != nil {
			if errors.Is(err, driven.ErrRateLimited) {
				limited++
				slog.Warn("repo poll rate limited, skipping", "repo", repo.FullName)
			} else {
				pollErrors++
				slog.Error("repo poll failed", "repo", repo.FullName, "error", err)
			}
		}
	}

	watched := make(map[string]struct{}, len(repos))
	for _, repo := range repos {
		watched[repo.FullName] = struct{}{}
	}

	s.mu.Lock()
	// Drop schedules for repositories no longer on the watch list.
	for name := range s.schedules {
		if _, ok := watched[name]; !ok {
			delete(s.schedules, name)
		}
	}
	s.lastPoll = time.Now()
	s.mu.Unlock()

	slog.Info("poll cycle complete",
		"repos", len(repos),
		"polled", polled,
		"errors", pollErrors,
		"rate_limited", limited,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return nil
}

// due reports whether the repository's adaptive schedule calls for a poll.
// Repositories without a schedule entry (just added) are always due.
func (s *PollService) due(repoFullName string, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[repoFullName]
	if !ok {
		return true
	}
	return !now.Before(sched.nextPollAt)
}

// pollRepo fetches releases for a single repository and upserts them.
// The fetch is incremental: it starts from the most recent stored release
// (with a day of overlap to pick up edited notes) or from the backfill
// window on first contact.
func (s *PollService) pollRepo(ctx context.Context, repo model.Repository) error {
	client := s.ghProvider.Get()
	if client == nil {
		return errors.New("no github client configured")
	}

	now := time.Now().UTC()

	latest, err := s.releaseStore.LatestPublishedAt(ctx, repo.ID)
	if err != nil {
		return err
	}

	since := now.Add(-backfillWindow)
	if !latest.IsZero() {
		since = latest.Add(-24 * time.Hour)
	}

	releases, err := client.FetchReleases(ctx, repo.FullName, since)
	if err != nil {
		s.reschedule(repo.FullName, latest, now)
		return err
	}

	var stored int
	for _, rel := range releases {
		rel.RepoID = repo.ID
		rel.FetchedAt = now
		if err := s.releaseStore.Upsert(ctx, rel); err != nil {
			slog.Error("upsert release failed", "repo", repo.FullName, "tag", rel.TagName, "error", err)
			continue
		}
		stored++
		if rel.PublishedAt.After(latest) {
			latest = rel.PublishedAt
		}
	}

	s.reschedule(repo.FullName, latest, now)

	slog.Info("repo polled",
		"repo", repo.FullName,
		"fetched", len(releases),
		"stored", stored,
		"cadence", classifyCadence(latest, now).String(),
	)

	return nil
}

// reschedule updates the repository's adaptive schedule from its latest
// release time.
func (s *PollService) reschedule(repoFullName string, latestRelease, now time.Time) {
	cadence := classifyCadence(latestRelease, now)
	interval := cadenceInterval(cadence, s.baseInterval)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[repoFullName] = repoSchedule{
		cadence:    cadence,
		nextPollAt: now.Add(interval),
		lastPolled: now,
	}
}

// handleRefresh dispatches a manual refresh request.
func (s *PollService) handleRefresh(ctx context.Context, req refreshRequest) error {
	if req.repoFullName != "" {
		repo, err := s.repoStore.GetByFullName(ctx, req.repoFullName)
		if err != nil {
			return err
		}
		if repo == nil {
			return driven.ErrRepoNotFound
		}
		if !s.ghProvider.HasClient() {
			return errors.New("no github client configured")
		}
		return s.pollRepo(ctx, *repo)
	}
	return s.pollAll(ctx, true)
}
