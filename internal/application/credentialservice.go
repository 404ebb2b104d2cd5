package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/smckay/releasedigest/internal/domain/model"
	"github.com/smckay/releasedigest/internal/domain/port/driven"
)

// GitHubClientFactory builds a GitHub client for a token. An empty token
// yields an anonymous client.
type GitHubClientFactory func(token string) driven.GitHubClient

// SummarizerFactory builds a Summarizer for a provider name and API key.
type SummarizerFactory func(provider, apiKey string) (driven.Summarizer, error)

// CredentialService stores credentials and hot-swaps the dependent clients
// so a token saved through the settings API takes effect without a restart.
type CredentialService struct {
	store         driven.CredentialStore
	ghProvider    *GitHubClientProvider
	summarizers   *SummarizerProvider
	newGitHub     GitHubClientFactory
	newSummarizer SummarizerFactory
}

// NewCredentialService creates a new CredentialService.
func NewCredentialService(
	store driven.CredentialStore,
	ghProvider *GitHubClientProvider,
	summarizers *SummarizerProvider,
	newGitHub GitHubClientFactory,
	newSummarizer SummarizerFactory,
) *CredentialService {
	return &CredentialService{
		store:         store,
		ghProvider:    ghProvider,
		summarizers:   summarizers,
		newGitHub:     newGitHub,
		newSummarizer: newSummarizer,
	}
}

// knownService reports whether the service name is one the application
// understands.
func knownService(service string) bool {
	switch service {
	case model.CredentialGitHubToken, model.CredentialOpenAIAPIKey, model.CredentialZhipuAPIKey:
		return true
	}
	return false
}

// Set stores a credential and swaps in a client built from the new value.
func (s *CredentialService) Set(ctx context.Context, service, value string) error {
	if !knownService(service) {
		return fmt.Errorf("unknown credential service %q", service)
	}
	if value == "" {
		return fmt.Errorf("credential value must not be empty")
	}

	if err := s.store.Set(ctx, service, value); err != nil {
		return err
	}

	if err := s.apply(service, value); err != nil {
		return err
	}

	slog.Info("credential stored", "service", service)
	return nil
}

// Delete removes a credential and reverts the dependent client: the GitHub
// client falls back to anonymous access, summarizers are unregistered.
func (s *CredentialService) Delete(ctx context.Context, service string) error {
	if !knownService(service) {
		return fmt.Errorf("unknown credential service %q", service)
	}

	if err := s.store.Delete(ctx, service); err != nil {
		return err
	}

	switch service {
	case model.CredentialGitHubToken:
		s.ghProvider.Replace(s.newGitHub(""))
	case model.CredentialOpenAIAPIKey:
		s.summarizers.Replace("openai", nil)
	case model.CredentialZhipuAPIKey:
		s.summarizers.Replace("zhipu", nil)
	}

	slog.Info("credential deleted", "service", service)
	return nil
}

// List returns the stored credentials with values redacted.
func (s *CredentialService) List(ctx context.Context) ([]model.Credential, error) {
	creds, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range creds {
		creds[i].Value = ""
	}
	return creds, nil
}

func (s *CredentialService) apply(service, value string) error {
	switch service {
	case model.CredentialGitHubToken:
		s.ghProvider.Replace(s.newGitHub(value))
	case model.CredentialOpenAIAPIKey:
		sum, err := s.newSummarizer("openai", value)
		if err != nil {
			return err
		}
		s.summarizers.Replace("openai", sum)
	case model.CredentialZhipuAPIKey:
		sum, err := s.newSummarizer("zhipu", value)
		if err != nil {
			return err
		}
		s.summarizers.Replace("zhipu", sum)
	}
	return nil
}
