package driven

import (
	"context"
	"errors"

	"github.com/smckay/releasedigest/internal/domain/model"
)

// ErrDigestNotFound indicates the requested digest does not exist.
var ErrDigestNotFound = errors.New("digest not found")

// DigestStore defines the driven port for digest persistence.
type DigestStore interface {
	// Create inserts a new pending digest and returns its ID.
	Create(ctx context.Context, digest model.Digest) (int64, error)
	// UpdateStatus transitions a digest to running.
	UpdateStatus(ctx context.Context, id int64, status model.DigestStatus) error
	// Complete marks a digest complete with its summary and release count.
	Complete(ctx context.Context, id int64, summary string, releaseCount int) error
	// Fail marks a digest failed with the error message.
	Fail(ctx context.Context, id int64, errMsg string) error
	// GetByID returns a digest by ID, or ErrDigestNotFound.
	GetByID(ctx context.Context, id int64) (*model.Digest, error)
	// Latest returns the most recently requested digest for the given
	// repository, window, and language, or nil if none exists.
	Latest(ctx context.Context, repoID int64, windowDays int, language string) (*model.Digest, error)
	// ListLatest returns the most recent digest per repository for the given
	// window and language.
	ListLatest(ctx context.Context, windowDays int, language string) ([]model.Digest, error)
}
