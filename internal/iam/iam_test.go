package iam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datacloud-project/orchestrator/pkg/config"
	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
)

func exchangerFor(issuer string) Exchanger {
	return NewExchanger(&config.Config{
		IDPTimeout: time.Second,
		TrustedIDPs: []config.TrustedIDP{
			{Issuer: issuer, ClientID: "orchestrator", ClientSecret: "s3cret"},
		},
	})
}

func TestExchangeSendsTokenExchangeGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "orchestrator", user)
		require.Equal(t, "s3cret", pass)

		require.NoError(t, r.ParseForm())
		require.Equal(t, grantTokenExchange, r.PostForm.Get("grant_type"))
		require.Equal(t, "caller-token", r.PostForm.Get("subject_token"))
		require.Equal(t, "vault", r.PostForm.Get("audience"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"exchanged","refresh_token":"r","expires_in":300}`))
	}))
	defer srv.Close()

	set, err := exchangerFor(srv.URL).Exchange(context.Background(), srv.URL, "caller-token", "vault")
	require.NoError(t, err)
	require.Equal(t, "exchanged", set.AccessToken)
	require.Equal(t, "r", set.RefreshToken)
	require.Equal(t, 300, set.ExpiresIn)
}

func TestExchangeRejectedByIssuer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := exchangerFor(srv.URL).Exchange(context.Background(), srv.URL, "expired", "vault")
	require.True(t, appErr.IsCode(err, appErr.CodeUnauthenticated))
}

func TestExchangeUnknownIssuer(t *testing.T) {
	_, err := exchangerFor("https://idp.example.org").Exchange(context.Background(), "https://other.example.org", "tok", "vault")
	require.True(t, appErr.IsCode(err, appErr.CodeUnauthenticated))
}
