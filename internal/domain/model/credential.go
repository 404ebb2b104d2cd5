package model

import "time"

// Credential is a stored secret for an external service, identified by a
// "service/key" style name such as "github/token" or "openai/api_key".
// Values are encrypted at rest by the credential store.
type Credential struct {
	ID        int64
	Service   string
	Value     string
	UpdatedAt time.Time
}

// Credential service names understood by the application layer.
const (
	CredentialGitHubToken  = "github/token"
	CredentialOpenAIAPIKey = "openai/api_key"
	CredentialZhipuAPIKey  = "zhipu/api_key"
)
