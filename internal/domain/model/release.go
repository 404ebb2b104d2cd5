package model

import "time"

// Release represents a published GitHub release belonging to a watched repository.
type Release struct {
	ID          int64
	RepoID      int64
	GitHubID    int64
	TagName     string
	Name        string
	Body        string
	HTMLURL     string
	Prerelease  bool
	PublishedAt time.Time
	FetchedAt   time.Time
}

// PublishedWithin reports whether the release was published on or after the
// cutoff derived from now minus the trailing window.
func (r Release) PublishedWithin(now time.Time, windowDays int) bool {
	cutoff := now.AddDate(0, 0, -windowDays)
	return !r.PublishedAt.Before(cutoff)
}
