package model

import "time"

// DigestStatus is the lifecycle state of a digest run.
type DigestStatus string

const (
	DigestStatusPending  DigestStatus = "pending"
	DigestStatusRunning  DigestStatus = "running"
	DigestStatusComplete DigestStatus = "complete"
	DigestStatusFailed   DigestStatus = "failed"
)

// Digest is an LLM-generated summary of a repository's releases over a
// trailing window of days.
type Digest struct {
	ID           int64
	RepoID       int64
	RepoFullName string
	WindowDays   int
	Language     string
	Provider     string
	Model        string
	Status       DigestStatus
	Summary      string
	Error        string
	ReleaseCount int
	RequestedAt  time.Time
	CompletedAt  time.Time
}

// IsTerminal reports whether the digest has finished, successfully or not.
func (d Digest) IsTerminal() bool {
	return d.Status == DigestStatusComplete || d.Status == DigestStatusFailed
}
