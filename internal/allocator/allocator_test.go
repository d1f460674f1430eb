package allocator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riftgate/anthropic-gateway/internal/authcache"
	"github.com/riftgate/anthropic-gateway/internal/authmanager"
	"github.com/riftgate/anthropic-gateway/internal/crypto"
	"github.com/riftgate/anthropic-gateway/internal/gatewayerrors"
	"github.com/riftgate/anthropic-gateway/internal/store"
)

func newTestAllocator(t *testing.T) (*Allocator, *store.Store) {
	t.Helper()
	box, err := crypto.NewBox("pass")
	require.NoError(t, err)
	st, err := store.Open(":memory:", box)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cache := authcache.New(func(creds store.TokenCredentials) *authmanager.Manager {
		return authmanager.New(creds, nil)
	})
	return New(st, cache), st
}

func TestIsProPlusModel(t *testing.T) {
	require.True(t, IsProPlusModel("claude-opus-4-6"))
	require.False(t, IsProPlusModel("claude-sonnet-4"))
}

func TestGetBestTokenNoCredentialRaisesError(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAllocator(t)

	_, err := a.GetBestToken(ctx, "nobody", "claude-sonnet-4")
	require.Error(t, err)
	_, ok := err.(*gatewayerrors.NoCredentialAvailable)
	require.True(t, ok)
}

func TestGetBestTokenNonProPlusPicksSingleCandidate(t *testing.T) {
	ctx := context.Background()
	a, st := newTestAllocator(t)

	_, err := st.CreateKiroToken(ctx, store.CreateKiroTokenInput{UserID: "u1", RefreshToken: "r1"})
	require.NoError(t, err)

	pick, err := a.GetBestToken(ctx, "u1", "claude-sonnet-4")
	require.NoError(t, err)
	require.Equal(t, KindKiro, pick.Kind)
	require.NotNil(t, pick.Manager)
}

func TestGetBestTokenProPlusFallsBackToFullPoolWithoutError(t *testing.T) {
	ctx := context.Background()
	a, st := newTestAllocator(t)

	_, err := st.CreateKiroToken(ctx, store.CreateKiroTokenInput{UserID: "u1", RefreshToken: "r1"})
	require.NoError(t, err)

	pick, err := a.GetBestToken(ctx, "u1", "claude-opus-4-6")
	require.NoError(t, err)
	require.Equal(t, KindKiro, pick.Kind)
}

func TestGetBestTokenProPlusPrefersOpusEnabledToken(t *testing.T) {
	ctx := context.Background()
	a, st := newTestAllocator(t)

	plain, err := st.CreateKiroToken(ctx, store.CreateKiroTokenInput{UserID: "u1", RefreshToken: "r1"})
	require.NoError(t, err)
	_ = plain

	opus, err := st.CreateKiroToken(ctx, store.CreateKiroTokenInput{UserID: "u1", RefreshToken: "r2"})
	require.NoError(t, err)
	require.NoError(t, st.UpdateKiroTokenStatus(ctx, opus.ID, "u1", store.TokenStatusActive, false))
	require.NoError(t, st.SetOpusEnabled(ctx, opus.ID, true))

	for i := 0; i < 20; i++ {
		pick, err := a.GetBestToken(ctx, "u1", "claude-opus-4-6")
		require.NoError(t, err)
		require.Equal(t, KindKiro, pick.Kind)
		require.Equal(t, opus.ID, pick.Kiro.ID)
	}
}

func TestGetBestTokenProPlusMatchesCustomAccountModelList(t *testing.T) {
	ctx := context.Background()
	a, st := newTestAllocator(t)

	_, err := st.CreateCustomAccount(ctx, store.CreateCustomAccountInput{
		UserID: "u1", Name: "a", APIBase: "https://x", APIKey: "k", Model: "claude-opus-4-6, claude-opus-4-1",
	})
	require.NoError(t, err)

	pick, err := a.GetBestToken(ctx, "u1", "claude-opus-4-6")
	require.NoError(t, err)
	require.Equal(t, KindCustom, pick.Kind)
}

func TestModelMatchesRejectsEmptyField(t *testing.T) {
	require.False(t, modelMatches("", "claude-opus-4-6"))
	require.False(t, modelMatches("   ", "claude-opus-4-6"))
	require.True(t, modelMatches("a, claude-opus-4-6 ,b", "claude-opus-4-6"))
}
