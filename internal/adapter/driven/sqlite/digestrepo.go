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
var _ driven.DigestStore = (*DigestRepo)(nil)

// DigestRepo is the SQLite implementation of the DigestStore port interface.
type DigestRepo struct {
	db *DB
}

// NewDigestRepo creates a new DigestRepo backed by the given DB.
func NewDigestRepo(db *DB) *DigestRepo {
	return &DigestRepo{db: db}
}

// Create inserts a new pending digest and returns its ID.
func (r *DigestRepo) Create(ctx context.Context, digest model.Digest) (int64, error) {
	const query = `
		INSERT INTO digests (repo_id, window_days, language, provider, model, status, requested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	requestedAt := digest.RequestedAt
	if requestedAt.IsZero() {
		requestedAt = time.Now().UTC()
	}

	status := digest.Status
	if status == "" {
		status = model.DigestStatusPending
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		digest.RepoID,
		digest.WindowDays,
		digest.Language,
		digest.Provider,
		digest.Model,
		string(status),
		requestedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("create digest for repo %d: %w", digest.RepoID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create digest: last insert id: %w", err)
	}

	return id, nil
}

// UpdateStatus transitions a digest to the given status.
func (r *DigestRepo) UpdateStatus(ctx context.Context, id int64, status model.DigestStatus) error {
	const query = `UPDATE digests SET status = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("update digest %d status: %w", id, err)
	}
	return requireRow(result, id)
}

// Complete marks a digest complete with its summary and release count.
func (r *DigestRepo) Complete(ctx context.Context, id int64, summary string, releaseCount int) error {
	const query = `
		UPDATE digests
		SET status = ?, summary = ?, release_count = ?, error = '', completed_at = ?
		WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query,
		string(model.DigestStatusComplete), summary, releaseCount,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("complete digest %d: %w", id, err)
	}
	return requireRow(result, id)
}

// Fail marks a digest failed with the error message.
func (r *DigestRepo) Fail(ctx context.Context, id int64, errMsg string) error {
	const query = `
		UPDATE digests
		SET status = ?, error = ?, completed_at = ?
		WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query,
		string(model.DigestStatusFailed), errMsg,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("fail digest %d: %w", id, err)
	}
	return requireRow(result, id)
}

// GetByID returns a digest by ID, or driven.ErrDigestNotFound.
func (r *DigestRepo) GetByID(ctx context.Context, id int64) (*model.Digest, error) {
	query := selectDigest + ` WHERE d.id = ?`

	digest, err := scanDigest(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, driven.ErrDigestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get digest %d: %w", id, err)
	}

	return digest, nil
}

// Latest returns the most recently requested digest for the given repository,
// window, and language, or nil if none exists.
func (r *DigestRepo) Latest(ctx context.Context, repoID int64, windowDays int, language string) (*model.Digest, error) {
	query := selectDigest + `
		WHERE d.repo_id = ? AND d.window_days = ? AND d.language = ?
		ORDER BY d.requested_at DESC, d.id DESC
		LIMIT 1`

	digest, err := scanDigest(r.db.Reader.QueryRowContext(ctx, query, repoID, windowDays, language))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest digest for repo %d: %w", repoID, err)
	}

	return digest, nil
}

// ListLatest returns the most recent digest per repository for the given
// window and language, ordered by repository name.
func (r *DigestRepo) ListLatest(ctx context.Context, windowDays int, language string) ([]model.Digest, error) {
	query := selectDigest + `
		WHERE d.window_days = ? AND d.language = ?
		AND d.id = (
			SELECT d2.id FROM digests d2
			WHERE d2.repo_id = d.repo_id AND d2.window_days = d.window_days AND d2.language = d.language
			ORDER BY d2.requested_at DESC, d2.id DESC
			LIMIT 1
		)
		ORDER BY r.full_name`

	rows, err := r.db.Reader.QueryContext(ctx, query, windowDays, language)
	if err != nil {
		return nil, fmt.Errorf("list latest digests: %w", err)
	}
	defer rows.Close()

	var digests []model.Digest
	for rows.Next() {
		digest, err := scanDigest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan digest: %w", err)
		}
		digests = append(digests, *digest)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate digests: %w", err)
	}

	return digests, nil
}

const selectDigest = `
	SELECT d.id, d.repo_id, r.full_name, d.window_days, d.language, d.provider, d.model,
	       d.status, d.summary, d.error, d.release_count, d.requested_at, d.completed_at
	FROM digests d
	JOIN repositories r ON r.id = d.repo_id`

func scanDigest(s scanner) (*model.Digest, error) {
	var d model.Digest
	var status, requestedAt string
	var completedAt sql.NullString

	err := s.Scan(&d.ID, &d.RepoID, &d.RepoFullName, &d.WindowDays, &d.Language, &d.Provider, &d.Model,
		&status, &d.Summary, &d.Error, &d.ReleaseCount, &requestedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	d.Status = model.DigestStatus(status)

	d.RequestedAt, err = parseTime(requestedAt)
	if err != nil {
		return nil, fmt.Errorf("parse requested_at: %w", err)
	}

	if completedAt.Valid && completedAt.String != "" {
		d.CompletedAt, err = parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
	}

	return &d, nil
}

// requireRow converts a zero-rows-affected update into ErrDigestNotFound.
func requireRow(result sql.Result, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("digest %d: %w", id, driven.ErrDigestNotFound)
	}
	return nil
}
