package application_test

import (
	"context"
	"sync"
	"time"

	"github.com/smckay/releasedigest/internal/domain/model"
	"github.com/smckay/releasedigest/internal/domain/port/driven"
)

// --- Mock implementations ---

type fetchCall struct {
	RepoFullName string
	Since        time.Time
}

type mockGitHubClient struct {
	mu       sync.Mutex
	releases []model.Release
	err      error
	calls    []fetchCall
}

func (m *mockGitHubClient) FetchReleases(_ context.Context, repoFullName string, since time.Time) ([]model.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fetchCall{RepoFullName: repoFullName, Since: since})
	if m.err != nil {
		return nil, m.err
	}
	return m.releases, nil
}

func (m *mockGitHubClient) fetchCalls() []fetchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]fetchCall(nil), m.calls...)
}

type mockRepoStore struct {
	mu    sync.Mutex
	repos []model.Repository
	err   error
}

func (m *mockRepoStore) Add(_ context.Context, repo model.Repository) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	repo.ID = int64(len(m.repos) + 1)
	m.repos = append(m.repos, repo)
	return repo.ID, nil
}

func (m *mockRepoStore) Remove(_ context.Context, fullName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.repos {
		if r.FullName == fullName {
			m.repos = append(m.repos[:i], m.repos[i+1:]...)
			return nil
		}
	}
	return driven.ErrRepoNotFound
}

func (m *mockRepoStore) GetByFullName(_ context.Context, fullName string) (*model.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.repos {
		if r.FullName == fullName {
			repo := r
			return &repo, nil
		}
	}
	return nil, nil
}

func (m *mockRepoStore) ListAll(_ context.Context) ([]model.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]model.Repository(nil), m.repos...), nil
}

type mockReleaseStore struct {
	mu       sync.Mutex
	releases []model.Release
	latest   time.Time
	listErr  error
}

func (m *mockReleaseStore) Upsert(_ context.Context, release model.Release) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.releases {
		if existing.RepoID == release.RepoID && existing.GitHubID == release.GitHubID {
			m.releases[i] = release
			return nil
		}
	}
	m.releases = append(m.releases, release)
	return nil
}

func (m *mockReleaseStore) ListSince(_ context.Context, repoID int64, since time.Time) ([]model.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Release
	for _, r := range m.releases {
		if r.RepoID == repoID && !r.PublishedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockReleaseStore) LatestPublishedAt(_ context.Context, _ int64) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, nil
}

func (m *mockReleaseStore) CountByRepo(_ context.Context, repoID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, r := range m.releases {
		if r.RepoID == repoID {
			count++
		}
	}
	return count, nil
}

func (m *mockReleaseStore) stored() []model.Release {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Release(nil), m.releases...)
}

type mockDigestStore struct {
	mu            sync.Mutex
	nextID        int64
	digests       map[int64]*model.Digest
	completeGates map[int64]chan struct{} // Complete blocks on the gate for its ID
	completeSeen  map[int64]bool
}

func newMockDigestStore() *mockDigestStore {
	return &mockDigestStore{
		digests:       make(map[int64]*model.Digest),
		completeGates: make(map[int64]chan struct{}),
		completeSeen:  make(map[int64]bool),
	}
}

// gateComplete makes Complete for the given digest ID block until the
// returned channel is closed.
func (m *mockDigestStore) gateComplete(id int64) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate := make(chan struct{})
	m.completeGates[id] = gate
	return gate
}

// completeEntered reports whether Complete has been called for the digest ID,
// whether or not it is still blocked on a gate.
func (m *mockDigestStore) completeEntered(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeSeen[id]
}

func (m *mockDigestStore) Create(_ context.Context, digest model.Digest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	digest.ID = m.nextID
	if digest.Status == "" {
		digest.Status = model.DigestStatusPending
	}
	digest.RequestedAt = time.Now().UTC()
	m.digests[digest.ID] = &digest
	return digest.ID, nil
}

func (m *mockDigestStore) UpdateStatus(_ context.Context, id int64, status model.DigestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.digests[id]
	if !ok {
		return driven.ErrDigestNotFound
	}
	d.Status = status
	return nil
}

func (m *mockDigestStore) Complete(_ context.Context, id int64, summary string, releaseCount int) error {
	m.mu.Lock()
	m.completeSeen[id] = true
	gate := m.completeGates[id]
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.digests[id]
	if !ok {
		return driven.ErrDigestNotFound
	}
	d.Status = model.DigestStatusComplete
	d.Summary = summary
	d.ReleaseCount = releaseCount
	d.CompletedAt = time.Now().UTC()
	return nil
}

func (m *mockDigestStore) Fail(_ context.Context, id int64, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.digests[id]
	if !ok {
		return driven.ErrDigestNotFound
	}
	d.Status = model.DigestStatusFailed
	d.Error = errMsg
	d.CompletedAt = time.Now().UTC()
	return nil
}

func (m *mockDigestStore) GetByID(_ context.Context, id int64) (*model.Digest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.digests[id]
	if !ok {
		return nil, driven.ErrDigestNotFound
	}
	copied := *d
	return &copied, nil
}

func (m *mockDigestStore) Latest(_ context.Context, _ int64, _ int, _ string) (*model.Digest, error) {
	return nil, nil
}

func (m *mockDigestStore) ListLatest(_ context.Context, _ int, _ string) ([]model.Digest, error) {
	return nil, nil
}

type summarizeCall struct {
	Req driven.SummaryRequest
}

type mockSummarizer struct {
	mu            sync.Mutex
	name          string
	model         string
	contextTokens int
	text          string
	err           error
	block         chan struct{} // when non-nil, Summarize waits for a close
	calls         []summarizeCall
}

func (m *mockSummarizer) Summarize(ctx context.Context, req driven.SummaryRequest) (*driven.SummaryResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, summarizeCall{Req: req})
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.err != nil {
		return nil, m.err
	}
	return &driven.SummaryResponse{Text: m.text, Model: m.model}, nil
}

func (m *mockSummarizer) Name() string { return m.name }

func (m *mockSummarizer) Model() string { return m.model }

func (m *mockSummarizer) ContextTokens() int {
	if m.contextTokens == 0 {
		return 128000
	}
	return m.contextTokens
}

func (m *mockSummarizer) summarizeCalls() []summarizeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]summarizeCall(nil), m.calls...)
}

type mockRefresher struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (m *mockRefresher) RefreshRepo(_ context.Context, repoFullName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, repoFullName)
	return m.err
}

// charEstimator approximates four characters per token, which is close
// enough for budgeting tests.
type charEstimator struct{}

func (charEstimator) EstimateTokens(text string) int {
	return len(text)/4 + 1
}
