package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/area/internal/ir"
)

func TestToken_PutGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	owner := createTestIdentity(t, s, "pau", "pau@example.com")

	tok := ir.OAuthToken{
		OwnerID:      owner.ID,
		Provider:     ir.ProviderGoogle,
		AccessToken:  "ya29.old",
		RefreshToken: "1//refresh",
		TokenType:    "Bearer",
		Scope:        "gmail.readonly",
		ExpiresAt:    testTime,
	}
	require.NoError(t, s.PutToken(ctx, tok))

	got, err := s.GetToken(ctx, owner.ID, ir.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "ya29.old", got.AccessToken)
	assert.Equal(t, "1//refresh", got.RefreshToken)
	assert.True(t, testTime.Equal(got.ExpiresAt))
}

func TestToken_PutOverwrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	owner := createTestIdentity(t, s, "pau", "pau@example.com")

	tok := ir.OAuthToken{OwnerID: owner.ID, Provider: ir.ProviderGoogle, AccessToken: "old", ExpiresAt: testTime}
	require.NoError(t, s.PutToken(ctx, tok))

	tok.AccessToken = "new"
	tok.ExpiresAt = testTime.Add(time.Hour)
	require.NoError(t, s.PutToken(ctx, tok))

	got, err := s.GetToken(ctx, owner.ID, ir.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
	assert.True(t, testTime.Add(time.Hour).Equal(got.ExpiresAt))
}

func TestToken_NeverExpires(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	owner := createTestIdentity(t, s, "pau", "pau@example.com")

	require.NoError(t, s.PutToken(ctx, ir.OAuthToken{OwnerID: owner.ID, Provider: ir.ProviderGitHub, AccessToken: "gho"}))

	got, err := s.GetToken(ctx, owner.ID, ir.ProviderGitHub)
	require.NoError(t, err)
	assert.False(t, got.Expires())
}

func TestToken_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetToken(context.Background(), 1, ir.ProviderGoogle)
	assert.ErrorIs(t, err, ErrNotFound)
}
