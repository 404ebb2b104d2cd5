package httphandler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smckay/releasedigest/internal/adapter/driven/sqlite"
	httphandler "github.com/smckay/releasedigest/internal/adapter/driving/http"
	"github.com/smckay/releasedigest/internal/application"
	"github.com/smckay/releasedigest/internal/domain/model"
	"github.com/smckay/releasedigest/internal/domain/port/driven"
)

var testEncryptionKey = bytes.Repeat([]byte{0x42}, 32)

type stubGitHubClient struct {
	mu       sync.Mutex
	releases []model.Release
	err      error
}

func (s *stubGitHubClient) FetchReleases(_ context.Context, _ string, _ time.Time) ([]model.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.releases, nil
}

type stubSummarizer struct {
	text string
}

func (s *stubSummarizer) Summarize(context.Context, driven.SummaryRequest) (*driven.SummaryResponse, error) {
	return &driven.SummaryResponse{Text: s.text, Model: "stub-model"}, nil
}

func (s *stubSummarizer) Name() string       { return "openai" }
func (s *stubSummarizer) Model() string      { return "stub-model" }
func (s *stubSummarizer) ContextTokens() int { return 128000 }

type charEstimator struct{}

func (charEstimator) EstimateTokens(text string) int { return len(text)/4 + 1 }

type fixture struct {
	server       *httptest.Server
	repoStore    *sqlite.RepoRepo
	releaseStore *sqlite.ReleaseRepo
	github       *stubGitHubClient
	summarizers  *application.SummarizerProvider
}

type fixtureOpts struct {
	encryptionKey []byte
	summarizer    driven.Summarizer
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()

	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.RunMigrations(db.Writer))

	repoStore := sqlite.NewRepoRepo(db)
	releaseStore := sqlite.NewReleaseRepo(db)
	digestStore := sqlite.NewDigestRepo(db)
	credStore := sqlite.NewCredentialRepo(db, opts.encryptionKey)

	github := &stubGitHubClient{}
	ghProvider := application.NewGitHubClientProvider(github)

	summarizers := application.NewSummarizerProvider("openai")
	if opts.summarizer != nil {
		summarizers.Replace("openai", opts.summarizer)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	pollSvc := application.NewPollService(ghProvider, repoStore, releaseStore, time.Hour)
	go pollSvc.Start(ctx)

	digestSvc := application.NewDigestService(summarizers, releaseStore, digestStore, pollSvc, charEstimator{})
	digestSvc.Start(ctx, 1)

	healthSvc := application.NewHealthService(db, repoStore, ghProvider, summarizers, pollSvc)

	credSvc := application.NewCredentialService(credStore, ghProvider, summarizers,
		func(string) driven.GitHubClient { return &stubGitHubClient{} },
		func(provider, _ string) (driven.Summarizer, error) { return &stubSummarizer{text: "summary"}, nil },
	)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := httphandler.NewHandler(
		ctx,
		repoStore, releaseStore, digestStore,
		digestSvc, pollSvc, healthSvc, credSvc,
		7, "English", logger,
	)

	server := httptest.NewServer(httphandler.NewServeMux(handler, logger))
	t.Cleanup(server.Close)

	return &fixture{
		server:       server,
		repoStore:    repoStore,
		releaseStore: releaseStore,
		github:       github,
		summarizers:  summarizers,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, respBody
}

func (f *fixture) addRepo(t *testing.T, fullName string) model.Repository {
	t.Helper()

	repo, err := model.ParseRepoInput(fullName)
	require.NoError(t, err)
	repo.AddedAt = time.Now().UTC()

	id, err := f.repoStore.Add(context.Background(), repo)
	require.NoError(t, err)
	repo.ID = id
	return repo
}

func (f *fixture) seedRelease(t *testing.T, repoID, githubID int64, tag string, publishedAt time.Time) {
	t.Helper()

	err := f.releaseStore.Upsert(context.Background(), model.Release{
		RepoID:      repoID,
		GitHubID:    githubID,
		TagName:     tag,
		Name:        tag,
		Body:        "notes for " + tag,
		HTMLURL:     "https://github.com/example/releases/" + tag,
		PublishedAt: publishedAt,
		FetchedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestAddRepo(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	resp, body := f.do(t, http.MethodPost, "/api/v1/repos", map[string]string{"repo": "golang/go"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created httphandler.RepoResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "golang/go", created.FullName)
	assert.Equal(t, "golang", created.Owner)
	assert.Equal(t, "go", created.Name)
}

func TestAddRepo_AcceptsURL(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	resp, body := f.do(t, http.MethodPost, "/api/v1/repos",
		map[string]string{"repo": "https://github.com/stretchr/testify"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created httphandler.RepoResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "stretchr/testify", created.FullName)
}

func TestAddRepo_TriggersBackgroundRefresh(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	f.github.mu.Lock()
	f.github.releases = []model.Release{{
		GitHubID:    11,
		TagName:     "go1.25.1",
		PublishedAt: time.Now().UTC().Add(-time.Hour),
	}}
	f.github.mu.Unlock()

	resp, _ := f.do(t, http.MethodPost, "/api/v1/repos", map[string]string{"repo": "golang/go"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	repo, err := f.repoStore.GetByFullName(context.Background(), "golang/go")
	require.NoError(t, err)
	require.NotNil(t, repo)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		count, err := f.releaseStore.CountByRepo(context.Background(), repo.ID)
		require.NoError(t, err)
		if count == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("background refresh never stored the fetched release")
}

func TestAddRepo_Duplicate(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.addRepo(t, "golang/go")

	resp, _ := f.do(t, http.MethodPost, "/api/v1/repos", map[string]string{"repo": "golang/go"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAddRepo_Invalid(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	resp, _ := f.do(t, http.MethodPost, "/api/v1/repos", map[string]string{"repo": "not-a-repo"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/repos", bytes.NewBufferString("{broken"))
	require.NoError(t, err)
	raw, err := f.server.Client().Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestListRepos(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	repo := f.addRepo(t, "golang/go")
	f.seedRelease(t, repo.ID, 1, "go1.25.1", time.Now().UTC().Add(-24*time.Hour))

	resp, body := f.do(t, http.MethodGet, "/api/v1/repos", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var repos []httphandler.RepoResponse
	require.NoError(t, json.Unmarshal(body, &repos))
	require.Len(t, repos, 1)
	assert.Equal(t, "golang/go", repos[0].FullName)
	assert.Equal(t, 1, repos[0].ReleaseCount)
	assert.NotEmpty(t, repos[0].LatestReleaseAt)
}

func TestRemoveRepo(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.addRepo(t, "golang/go")

	resp, _ := f.do(t, http.MethodDelete, "/api/v1/repos/golang/go", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/api/v1/repos/golang/go", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListReleases(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	repo := f.addRepo(t, "golang/go")

	now := time.Now().UTC()
	f.seedRelease(t, repo.ID, 1, "go1.25.0", now.Add(-10*24*time.Hour))
	f.seedRelease(t, repo.ID, 2, "go1.25.1", now.Add(-2*24*time.Hour))

	resp, body := f.do(t, http.MethodGet, "/api/v1/repos/golang/go/releases", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var releases []httphandler.ReleaseResponse
	require.NoError(t, json.Unmarshal(body, &releases))
	require.Len(t, releases, 1, "default window is 7 days")
	assert.Equal(t, "go1.25.1", releases[0].TagName)

	resp, body = f.do(t, http.MethodGet, "/api/v1/repos/golang/go/releases?days=30", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &releases))
	assert.Len(t, releases, 2)
}

func TestListReleases_InvalidDays(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.addRepo(t, "golang/go")

	for _, days := range []string{"0", "400", "soon"} {
		resp, _ := f.do(t, http.MethodGet, "/api/v1/repos/golang/go/releases?days="+days, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "days=%s", days)
	}
}

func TestListReleases_UnknownRepo(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	resp, _ := f.do(t, http.MethodGet, "/api/v1/repos/nobody/nothing/releases", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTriggerDigest(t *testing.T) {
	f := newFixture(t, fixtureOpts{summarizer: &stubSummarizer{text: "- shipped go1.25.1"}})
	repo := f.addRepo(t, "golang/go")
	f.seedRelease(t, repo.ID, 1, "go1.25.1", time.Now().UTC().Add(-24*time.Hour))

	resp, body := f.do(t, http.MethodPost, "/api/v1/repos/golang/go/digests", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var queued httphandler.DigestQueuedResponse
	require.NoError(t, json.Unmarshal(body, &queued))
	assert.Positive(t, queued.ID)
	assert.Equal(t, "golang/go", queued.Repository)

	digest := f.waitDigestComplete(t, queued.ID)
	assert.Equal(t, "- shipped go1.25.1", digest.Summary)
	assert.Contains(t, digest.SummaryHTML, "<ul>")
	assert.Equal(t, 1, digest.ReleaseCount)
	assert.Equal(t, "openai", digest.Provider)
	assert.Equal(t, "stub-model", digest.Model)
	assert.Equal(t, 7, digest.WindowDays)
	assert.Equal(t, "English", digest.Language)
}

func (f *fixture) waitDigestComplete(t *testing.T, id int64) httphandler.DigestResponse {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, body := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/digests/%d", id), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var digest httphandler.DigestResponse
		require.NoError(t, json.Unmarshal(body, &digest))
		switch digest.Status {
		case string(model.DigestStatusComplete):
			return digest
		case string(model.DigestStatusFailed):
			t.Fatalf("digest %d failed: %s", id, digest.Error)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("digest %d did not complete", id)
	return httphandler.DigestResponse{}
}

func TestTriggerDigest_NoProvider(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.addRepo(t, "golang/go")

	resp, _ := f.do(t, http.MethodPost, "/api/v1/repos/golang/go/digests", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestTriggerDigest_InvalidProvider(t *testing.T) {
	f := newFixture(t, fixtureOpts{summarizer: &stubSummarizer{}})
	f.addRepo(t, "golang/go")

	resp, _ := f.do(t, http.MethodPost, "/api/v1/repos/golang/go/digests",
		map[string]string{"provider": "claude"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTriggerAllDigests_EmptyWatchList(t *testing.T) {
	f := newFixture(t, fixtureOpts{summarizer: &stubSummarizer{}})

	resp, _ := f.do(t, http.MethodPost, "/api/v1/digests", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTriggerAllDigests(t *testing.T) {
	f := newFixture(t, fixtureOpts{summarizer: &stubSummarizer{text: "summary"}})
	f.addRepo(t, "golang/go")
	f.addRepo(t, "stretchr/testify")

	resp, body := f.do(t, http.MethodPost, "/api/v1/digests", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var queued []httphandler.DigestQueuedResponse
	require.NoError(t, json.Unmarshal(body, &queued))
	assert.Len(t, queued, 2)
}

func TestGetDigest_NotFound(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	resp, _ := f.do(t, http.MethodGet, "/api/v1/digests/999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/digests/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLatestDigest_NotFound(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.addRepo(t, "golang/go")

	resp, _ := f.do(t, http.MethodGet, "/api/v1/repos/golang/go/digests/latest", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRefreshRepo(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	repo := f.addRepo(t, "golang/go")

	f.github.mu.Lock()
	f.github.releases = []model.Release{{
		GitHubID:    7,
		TagName:     "go1.25.1",
		PublishedAt: time.Now().UTC().Add(-time.Hour),
	}}
	f.github.mu.Unlock()

	resp, _ := f.do(t, http.MethodPost, "/api/v1/repos/golang/go/refresh", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	count, err := f.releaseStore.CountByRepo(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRefreshRepo_UnknownRepo(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	resp, _ := f.do(t, http.MethodPost, "/api/v1/repos/nobody/nothing/refresh", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCredentials_RoundTrip(t *testing.T) {
	f := newFixture(t, fixtureOpts{encryptionKey: testEncryptionKey})

	resp, _ := f.do(t, http.MethodPut, "/api/v1/settings/credentials/github/token",
		map[string]string{"value": "ghp_secret"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/api/v1/settings/credentials", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var creds []httphandler.CredentialResponse
	require.NoError(t, json.Unmarshal(body, &creds))
	require.Len(t, creds, 1)
	assert.Equal(t, "github/token", creds[0].Service)
	assert.NotContains(t, string(body), "ghp_secret")

	resp, _ = f.do(t, http.MethodDelete, "/api/v1/settings/credentials/github/token", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCredentials_HotSwapsSummarizer(t *testing.T) {
	f := newFixture(t, fixtureOpts{encryptionKey: testEncryptionKey})

	_, err := f.summarizers.Get("openai")
	require.ErrorIs(t, err, driven.ErrNoCredentials)

	resp, _ := f.do(t, http.MethodPut, "/api/v1/settings/credentials/openai/api_key",
		map[string]string{"value": "sk-secret"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = f.summarizers.Get("openai")
	assert.NoError(t, err)
}

func TestCredentials_UnknownService(t *testing.T) {
	f := newFixture(t, fixtureOpts{encryptionKey: testEncryptionKey})

	resp, _ := f.do(t, http.MethodPut, "/api/v1/settings/credentials/aws/secret",
		map[string]string{"value": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCredentials_NoEncryptionKey(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	resp, _ := f.do(t, http.MethodPut, "/api/v1/settings/credentials/github/token",
		map[string]string{"value": "ghp_secret"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/settings/credentials", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.addRepo(t, "golang/go")

	resp, body := f.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status application.HealthStatus
	require.NoError(t, json.Unmarshal(body, &status))
	assert.True(t, status.Healthy)
	assert.Equal(t, "ok", status.Database)
	assert.Equal(t, 1, status.RepoCount)
	assert.True(t, status.GitHubConfigured)
	assert.Equal(t, "openai", status.DefaultProvider)
}
