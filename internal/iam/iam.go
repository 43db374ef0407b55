// Package iam exchanges caller access tokens against trusted identity
// providers (RFC 8693 token exchange). The exchanged token carries the
// audience the secrets vault is configured to accept.
package iam

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/datacloud-project/orchestrator/pkg/config"
	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
)

const grantTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
const tokenTypeAccess = "urn:ietf:params:oauth:token-type:access_token"

// Exchanger performs token exchange against the issuer a token came from.
type Exchanger interface {
	Exchange(ctx context.Context, issuer, subjectToken, audience string) (*TokenSet, error)
}

// TokenSet is the issuer's response to a token exchange.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

type exchanger struct {
	cfg    *config.Config
	client *http.Client
}

func NewExchanger(cfg *config.Config) Exchanger {
	return &exchanger{cfg: cfg, client: &http.Client{Timeout: cfg.IDPTimeout}}
}

// Exchange posts a token-exchange grant to the issuer's token endpoint using
// the client credentials registered for that issuer.
func (e *exchanger) Exchange(ctx context.Context, issuer, subjectToken, audience string) (*TokenSet, error) {
	idp, ok := e.cfg.IDPForIssuer(issuer)
	if !ok {
		return nil, appErr.Newf(appErr.CodeUnauthenticated, "no client registered for issuer %q", issuer)
	}

	form := url.Values{}
	form.Set("grant_type", grantTokenExchange)
	form.Set("subject_token", subjectToken)
	form.Set("subject_token_type", tokenTypeAccess)
	if audience != "" {
		form.Set("audience", audience)
	}

	endpoint := strings.TrimRight(idp.Issuer, "/") + "/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "build token exchange request failed")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(idp.ClientID, idp.ClientSecret)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "identity provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, appErr.Newf(appErr.CodeUnauthenticated,
			"token exchange rejected by %s: %d %s", issuer, resp.StatusCode, body)
	}

	var set TokenSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "decode token exchange response failed")
	}
	if set.AccessToken == "" {
		return nil, appErr.New(appErr.CodeUnauthenticated, "token exchange returned no access token")
	}
	return &set, nil
}

// RefreshDeadline is a hint for callers that cache exchanged tokens.
func (t *TokenSet) RefreshDeadline(now time.Time) time.Time {
	if t.ExpiresIn <= 0 {
		return now
	}
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}
