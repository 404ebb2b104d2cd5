package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smckay/releasedigest/internal/application"
	"github.com/smckay/releasedigest/internal/domain/model"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }

func newHealthService(pinger application.Pinger, repoStore *mockRepoStore, ghClient *mockGitHubClient) *application.HealthService {
	ghProvider := application.NewGitHubClientProvider(nil)
	if ghClient != nil {
		ghProvider.Replace(ghClient)
	}

	summarizers := application.NewSummarizerProvider("openai")
	poller := application.NewPollService(ghProvider, repoStore, &mockReleaseStore{}, 15*time.Minute)

	return application.NewHealthService(pinger, repoStore, ghProvider, summarizers, poller)
}

func TestHealthService_Check_Healthy(t *testing.T) {
	repos := &mockRepoStore{}
	_, err := repos.Add(context.Background(), model.Repository{Owner: "golang", Name: "go", FullName: "golang/go"})
	require.NoError(t, err)
	_, err = repos.Add(context.Background(), model.Repository{Owner: "stretchr", Name: "testify", FullName: "stretchr/testify"})
	require.NoError(t, err)

	svc := newHealthService(&mockPinger{}, repos, &mockGitHubClient{})

	status := svc.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "ok", status.Database)
	assert.Equal(t, 2, status.RepoCount)
	assert.True(t, status.GitHubConfigured)
	assert.Equal(t, "openai", status.DefaultProvider)
	assert.True(t, status.LastPollAt.IsZero(), "no poll has run yet")
}

func TestHealthService_Check_DatabaseDown(t *testing.T) {
	pinger := &mockPinger{err: errors.New("database is locked")}
	svc := newHealthService(pinger, &mockRepoStore{}, &mockGitHubClient{})

	status := svc.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "database is locked", status.Database)
	assert.Zero(t, status.RepoCount)
}

func TestHealthService_Check_RepoListError(t *testing.T) {
	repos := &mockRepoStore{err: errors.New("disk I/O error")}
	svc := newHealthService(&mockPinger{}, repos, &mockGitHubClient{})

	status := svc.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "disk I/O error", status.Database)
}

func TestHealthService_Check_NoGitHubClient(t *testing.T) {
	svc := newHealthService(&mockPinger{}, &mockRepoStore{}, nil)

	status := svc.Check(context.Background())
	assert.True(t, status.Healthy, "missing credentials degrade features, not health")
	assert.False(t, status.GitHubConfigured)
}
