// Package application contains use-case orchestration services.
package application

import (
	"fmt"
	"sync"

	"github.com/smckay/releasedigest/internal/domain/port/driven"
)

// GitHubClientProvider enables runtime hot-swap of the GitHub client.
// It holds a mutex-protected reference to the current driven.GitHubClient,
// allowing a token stored via the settings API to take effect without
// restarting the application.
type GitHubClientProvider struct {
	mu     sync.RWMutex
	client driven.GitHubClient
}

// NewGitHubClientProvider creates a new provider with the given initial
// client. client may be nil if no client is available at startup.
func NewGitHubClientProvider(client driven.GitHubClient) *GitHubClientProvider {
	return &GitHubClientProvider{client: client}
}

// Get returns the current GitHub client. Callers should check for nil
// if the provider was created without an initial client.
func (p *GitHubClientProvider) Get() driven.GitHubClient {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

// Replace swaps the current client for a new one. The next caller of Get()
// receives the new client.
func (p *GitHubClientProvider) Replace(client driven.GitHubClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
}

// HasClient returns true if a non-nil client is currently held.
func (p *GitHubClientProvider) HasClient() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client != nil
}

// SummarizerProvider holds the registered LLM providers and the configured
// default, supporting hot-swap when an API key changes.
type SummarizerProvider struct {
	mu          sync.RWMutex
	summarizers map[string]driven.Summarizer
	defaultName string
}

// NewSummarizerProvider creates a provider with the given default provider
// name. Summarizers are registered via Replace.
func NewSummarizerProvider(defaultName string) *SummarizerProvider {
	return &SummarizerProvider{
		summarizers: make(map[string]driven.Summarizer),
		defaultName: defaultName,
	}
}

// Get returns the summarizer for the given provider name, or the default
// provider's summarizer when name is empty.
func (p *SummarizerProvider) Get(name string) (driven.Summarizer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if name == "" {
		name = p.defaultName
	}

	s, ok := p.summarizers[name]
	if !ok || s == nil {
		return nil, fmt.Errorf("provider %s: %w", name, driven.ErrNoCredentials)
	}
	return s, nil
}

// Replace registers or swaps the summarizer for the given provider name.
func (p *SummarizerProvider) Replace(name string, s driven.Summarizer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summarizers[name] = s
}

// DefaultName returns the configured default provider name.
func (p *SummarizerProvider) DefaultName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaultName
}
