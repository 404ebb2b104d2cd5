// Package github implements the GitHubClient port using the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/smckay/releasedigest/internal/domain/model"
	"github.com/smckay/releasedigest/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.GitHubClient = (*Client)(nil)

// Client implements the driven.GitHubClient port using the go-github library.
type Client struct {
	gh *gh.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client)
//
// token may be empty, in which case requests are unauthenticated and subject
// to GitHub's anonymous rate limit.
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)

	client := gh.NewClient(rateLimitClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	return &Client{gh: client}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// FetchReleases retrieves published releases for the given repository with
// published_at on or after since, newest first. It paginates at 100 per page
// and stops early once an entire page falls outside the window, relying on
// GitHub returning releases newest first. Draft releases are skipped.
func (c *Client) FetchReleases(ctx context.Context, repoFullName string, since time.Time) ([]model.Release, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.ListOptions{PerPage: 100}
	var releases []model.Release

	for {
		page, resp, err := c.gh.Repositories.ListReleases(ctx, owner, repo, opts)
		if err != nil {
			if isRateLimited(err, resp) {
				return nil, fmt.Errorf("listing releases for %s (page %d): %w", repoFullName, opts.Page, driven.ErrRateLimited)
			}
			return nil, fmt.Errorf("listing releases for %s (page %d): %w", repoFullName, opts.Page, err)
		}

		logRateLimit(resp, repoFullName, opts.Page, len(page))

		var pageHasRecent bool
		for _, rel := range page {
			if rel.GetDraft() || rel.PublishedAt == nil {
				// Drafts carry no reliable publish time, so they must not
				// count toward the all-stale stop condition below.
				pageHasRecent = true
				continue
			}
			published := rel.GetPublishedAt().Time
			if published.Before(since) {
				continue
			}
			pageHasRecent = true
			releases = append(releases, mapRelease(rel))
		}

		// Releases arrive newest first; once a full page predates the
		// window there is nothing left to fetch.
		if resp.NextPage == 0 || (len(page) > 0 && !pageHasRecent) {
			break
		}
		opts.Page = resp.NextPage
	}

	if releases == nil {
		releases = []model.Release{}
	}

	return releases, nil
}

// mapRelease converts a go-github RepositoryRelease to a domain model Release.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapRelease(rel *gh.RepositoryRelease) model.Release {
	return model.Release{
		GitHubID:    rel.GetID(),
		TagName:     rel.GetTagName(),
		Name:        rel.GetName(),
		Body:        rel.GetBody(),
		HTMLURL:     rel.GetHTMLURL(),
		Prerelease:  rel.GetPrerelease(),
		PublishedAt: rel.GetPublishedAt().Time,
	}
}

// isRateLimited reports whether the error indicates an exhausted primary or
// secondary rate limit. Plain 403/429 responses are treated as rate limits
// too, matching how anonymous clients experience exhaustion.
func isRateLimited(err error, resp *gh.Response) bool {
	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}
	return resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests)
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
