package iam

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingExchanger struct {
	calls int
	set   *TokenSet
	err   error
}

func (c *countingExchanger) Exchange(context.Context, string, string, string) (*TokenSet, error) {
	c.calls++
	return c.set, c.err
}

func TestCachingExchangerReusesToken(t *testing.T) {
	inner := &countingExchanger{set: &TokenSet{AccessToken: "exchanged", ExpiresIn: 300}}
	c := NewCachingExchanger(inner)

	for i := 0; i < 3; i++ {
		set, err := c.Exchange(context.Background(), "https://idp", "tok", "vault")
		require.NoError(t, err)
		require.Equal(t, "exchanged", set.AccessToken)
	}
	require.Equal(t, 1, inner.calls)
}

func TestCachingExchangerKeysOnCaller(t *testing.T) {
	inner := &countingExchanger{set: &TokenSet{AccessToken: "exchanged", ExpiresIn: 300}}
	c := NewCachingExchanger(inner)

	_, err := c.Exchange(context.Background(), "https://idp", "tok-a", "vault")
	require.NoError(t, err)
	_, err = c.Exchange(context.Background(), "https://idp", "tok-b", "vault")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestCachingExchangerExpiresAtDeadline(t *testing.T) {
	inner := &countingExchanger{set: &TokenSet{AccessToken: "exchanged", ExpiresIn: 60}}
	c := NewCachingExchanger(inner).(*cachingExchanger)

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.Exchange(context.Background(), "https://idp", "tok", "vault")
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	// Still inside the 60s window minus the refresh margin.
	now = now.Add(20 * time.Second)
	_, err = c.Exchange(context.Background(), "https://idp", "tok", "vault")
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	now = now.Add(15 * time.Second)
	_, err = c.Exchange(context.Background(), "https://idp", "tok", "vault")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestCachingExchangerNeverCachesShortLivedTokens(t *testing.T) {
	inner := &countingExchanger{set: &TokenSet{AccessToken: "exchanged"}}
	c := NewCachingExchanger(inner)

	for i := 0; i < 2; i++ {
		_, err := c.Exchange(context.Background(), "https://idp", "tok", "vault")
		require.NoError(t, err)
	}
	require.Equal(t, 2, inner.calls)
}

func TestCachingExchangerNeverCachesErrors(t *testing.T) {
	inner := &countingExchanger{err: errors.New("issuer down")}
	c := NewCachingExchanger(inner)

	for i := 0; i < 2; i++ {
		_, err := c.Exchange(context.Background(), "https://idp", "tok", "vault")
		require.Error(t, err)
	}
	require.Equal(t, 2, inner.calls)
}

func TestRefreshDeadline(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	set := &TokenSet{ExpiresIn: 300}
	require.Equal(t, now.Add(5*time.Minute), set.RefreshDeadline(now))

	require.Equal(t, now, (&TokenSet{}).RefreshDeadline(now))
}
