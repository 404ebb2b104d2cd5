package driven

import (
	"context"
	"errors"

	"github.com/smckay/releasedigest/internal/domain/model"
)

// ErrEncryptionKeyNotSet indicates credential storage is disabled because no
// encryption key was configured.
var ErrEncryptionKeyNotSet = errors.New("credential encryption key not set")

// CredentialStore defines the driven port for encrypted secret persistence.
// Get returns ("", nil) when no credential exists for the service.
type CredentialStore interface {
	Set(ctx context.Context, service, value string) error
	Get(ctx context.Context, service string) (string, error)
	List(ctx context.Context) ([]model.Credential, error)
	Delete(ctx context.Context, service string) error
}
