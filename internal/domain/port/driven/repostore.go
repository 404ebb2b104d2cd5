// Package driven defines the driven ports (outbound dependencies) of the
// application layer: persistence stores, the GitHub API client, and the
// LLM summarizer.
package driven

import (
	"context"
	"errors"

	"github.com/smckay/releasedigest/internal/domain/model"
)

// Sentinel errors returned by RepoStore implementations.
var (
	// ErrRepoNotFound indicates the requested repository does not exist.
	ErrRepoNotFound = errors.New("repository not found")

	// ErrRepoAlreadyExists indicates a repository with the same name already exists.
	ErrRepoAlreadyExists = errors.New("repository already exists")
)

// RepoStore defines the driven port for watch-list persistence.
// Add returns ErrRepoAlreadyExists if the repository already exists.
// Remove returns ErrRepoNotFound if the repository does not exist.
// Removing a repository cascades to its releases and digests.
type RepoStore interface {
	Add(ctx context.Context, repo model.Repository) (int64, error)
	Remove(ctx context.Context, fullName string) error
	GetByFullName(ctx context.Context, fullName string) (*model.Repository, error)
	ListAll(ctx context.Context) ([]model.Repository, error)
}
