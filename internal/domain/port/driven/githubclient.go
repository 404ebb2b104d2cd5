package driven

import (
	"context"
	"errors"
	"time"

	"github.com/smckay/releasedigest/internal/domain/model"
)

// ErrRateLimited indicates the GitHub API rejected the request because the
// rate limit is exhausted. Callers skip the repository and continue.
var ErrRateLimited = errors.New("github rate limit exceeded")

// GitHubClient defines the driven port for reading release data from GitHub.
type GitHubClient interface {
	// FetchReleases returns published releases for the repository with
	// published_at on or after since, newest first. Draft releases are
	// excluded. Pagination is handled internally and stops once a page
	// falls entirely outside the window.
	FetchReleases(ctx context.Context, repoFullName string, since time.Time) ([]model.Release, error)
}
