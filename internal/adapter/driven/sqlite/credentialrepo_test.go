package sqlite

import (
	"bytes"
	"context"
	"testing"

	"github.com/smckay/releasedigest/internal/domain/model"
	"github.com/smckay/releasedigest/internal/domain/port/driven"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestCredentialRepo_SetGet(t *testing.T) {
	db := setupTestDB(t)
	creds := NewCredentialRepo(db, testKey())
	ctx := context.Background()

	require.NoError(t, creds.Set(ctx, model.CredentialGitHubToken, "ghp_secret"))

	got, err := creds.Get(ctx, model.CredentialGitHubToken)
	require.NoError(t, err)
	assert.Equal(t, "ghp_secret", got)
}

func TestCredentialRepo_Set_Replaces(t *testing.T) {
	db := setupTestDB(t)
	creds := NewCredentialRepo(db, testKey())
	ctx := context.Background()

	require.NoError(t, creds.Set(ctx, model.CredentialOpenAIAPIKey, "sk-old"))
	require.NoError(t, creds.Set(ctx, model.CredentialOpenAIAPIKey, "sk-new"))

	got, err := creds.Get(ctx, model.CredentialOpenAIAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-new", got)

	all, err := creds.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCredentialRepo_Get_Missing(t *testing.T) {
	db := setupTestDB(t)
	creds := NewCredentialRepo(db, testKey())

	got, err := creds.Get(context.Background(), model.CredentialZhipuAPIKey)
	require.NoError(t, err)
	assert.Empty(t, got, "missing credential should return empty without error")
}

func TestCredentialRepo_ValueEncryptedAtRest(t *testing.T) {
	db := setupTestDB(t)
	creds := NewCredentialRepo(db, testKey())
	ctx := context.Background()

	require.NoError(t, creds.Set(ctx, model.CredentialGitHubToken, "ghp_secret"))

	var stored string
	err := db.Reader.QueryRowContext(ctx,
		`SELECT value FROM credentials WHERE service = ?`, model.CredentialGitHubToken).Scan(&stored)
	require.NoError(t, err)
	assert.NotContains(t, stored, "ghp_secret")
}

func TestCredentialRepo_Delete(t *testing.T) {
	db := setupTestDB(t)
	creds := NewCredentialRepo(db, testKey())
	ctx := context.Background()

	require.NoError(t, creds.Set(ctx, model.CredentialGitHubToken, "ghp_secret"))
	require.NoError(t, creds.Delete(ctx, model.CredentialGitHubToken))

	got, err := creds.Get(ctx, model.CredentialGitHubToken)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCredentialRepo_NoKey(t *testing.T) {
	db := setupTestDB(t)
	creds := NewCredentialRepo(db, nil)
	ctx := context.Background()

	err := creds.Set(ctx, model.CredentialGitHubToken, "ghp_secret")
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)

	_, err = creds.Get(ctx, model.CredentialGitHubToken)
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)

	_, err = creds.List(ctx)
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
}
