package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/smckay/releasedigest/internal/domain/model"
	"github.com/smckay/releasedigest/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ReleaseStore = (*ReleaseRepo)(nil)

// ReleaseRepo is the SQLite implementation of the ReleaseStore port interface.
type ReleaseRepo struct {
	db *DB
}

// NewReleaseRepo creates a new ReleaseRepo backed by the given DB.
func NewReleaseRepo(db *DB) *ReleaseRepo {
	return &ReleaseRepo{db: db}
}

// Upsert inserts or replaces a release keyed on (repo_id, github_id).
// Re-polling the same window is therefore idempotent. Release bodies are
// replaced on conflict since GitHub release notes are editable.
func (r *ReleaseRepo) Upsert(ctx context.Context, release model.Release) error {
	const query = `
		INSERT INTO releases (repo_id, github_id, tag_name, name, body, html_url, prerelease, published_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (repo_id, github_id) DO UPDATE SET
			tag_name = excluded.tag_name,
			name = excluded.name,
			body = excluded.body,
			html_url = excluded.html_url,
			prerelease = excluded.prerelease,
			published_at = excluded.published_at,
			fetched_at = excluded.fetched_at`

	fetchedAt := release.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		release.RepoID,
		release.GitHubID,
		release.TagName,
		release.Name,
		release.Body,
		release.HTMLURL,
		boolToInt(release.Prerelease),
		release.PublishedAt.UTC().Format(time.RFC3339),
		fetchedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert release %s (repo %d): %w", release.TagName, release.RepoID, err)
	}

	return nil
}

// ListSince returns releases for the repository published on or after since,
// newest first.
func (r *ReleaseRepo) ListSince(ctx context.Context, repoID int64, since time.Time) ([]model.Release, error) {
	const query = `
		SELECT id, repo_id, github_id, tag_name, name, body, html_url, prerelease, published_at, fetched_at
		FROM releases
		WHERE repo_id = ? AND published_at >= ?
		ORDER BY published_at DESC`

	rows, err := r.db.Reader.QueryContext(ctx, query, repoID, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("list releases for repo %d: %w", repoID, err)
	}
	defer rows.Close()

	var releases []model.Release
	for rows.Next() {
		rel, err := scanRelease(rows)
		if err != nil {
			return nil, fmt.Errorf("scan release: %w", err)
		}
		releases = append(releases, *rel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate releases: %w", err)
	}

	return releases, nil
}

// LatestPublishedAt returns the most recent published_at for the repository,
// or the zero time if no releases are stored.
func (r *ReleaseRepo) LatestPublishedAt(ctx context.Context, repoID int64) (time.Time, error) {
	const query = `SELECT published_at FROM releases WHERE repo_id = ? ORDER BY published_at DESC LIMIT 1`

	var published string
	err := r.db.Reader.QueryRowContext(ctx, query, repoID).Scan(&published)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("latest published_at for repo %d: %w", repoID, err)
	}

	t, err := parseTime(published)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse published_at: %w", err)
	}
	return t, nil
}

// CountByRepo returns the number of stored releases for the repository.
func (r *ReleaseRepo) CountByRepo(ctx context.Context, repoID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM releases WHERE repo_id = ?`

	var count int
	if err := r.db.Reader.QueryRowContext(ctx, query, repoID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count releases for repo %d: %w", repoID, err)
	}
	return count, nil
}

func scanRelease(s scanner) (*model.Release, error) {
	var rel model.Release
	var prerelease int
	var publishedAt, fetchedAt string

	err := s.Scan(&rel.ID, &rel.RepoID, &rel.GitHubID, &rel.TagName, &rel.Name, &rel.Body, &rel.HTMLURL, &prerelease, &publishedAt, &fetchedAt)
	if err != nil {
		return nil, err
	}

	rel.Prerelease = prerelease != 0

	rel.PublishedAt, err = parseTime(publishedAt)
	if err != nil {
		return nil, fmt.Errorf("parse published_at: %w", err)
	}

	rel.FetchedAt, err = parseTime(fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("parse fetched_at: %w", err)
	}

	return &rel, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
