package driven

import (
	"context"
	"time"

	"github.com/smckay/releasedigest/internal/domain/model"
)

// ReleaseStore defines the driven port for release persistence.
// Upsert is keyed on (repo_id, github_id) so re-polling is idempotent.
type ReleaseStore interface {
	Upsert(ctx context.Context, release model.Release) error
	// ListSince returns releases for the repository published on or after
	// since, newest first.
	ListSince(ctx context.Context, repoID int64, since time.Time) ([]model.Release, error)
	// LatestPublishedAt returns the most recent published_at for the
	// repository, or the zero time if no releases are stored.
	LatestPublishedAt(ctx context.Context, repoID int64) (time.Time, error)
	// CountByRepo returns the number of stored releases for the repository.
	CountByRepo(ctx context.Context, repoID int64) (int, error)
}
