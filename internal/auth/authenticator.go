package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
)

// UserInfo is the verified identity extracted from a bearer token.
type UserInfo struct {
	Subject           string
	Issuer            string
	Name              string
	PreferredUsername string
	Email             string
	Groups            []string
	RawToken          string
}

// Authenticator verifies bearer tokens against a set of trusted issuers.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*UserInfo, error)
}

// OIDCAuthenticator verifies tokens via OIDC discovery. Verifiers are built
// lazily per issuer and cached; discovery happens at most once per issuer.
type OIDCAuthenticator struct {
	trusted    map[string]struct{}
	groupClaim string
	client     *http.Client

	mu        sync.Mutex
	verifiers map[string]*oidc.IDTokenVerifier
}

func NewOIDCAuthenticator(trustedIssuers []string, groupClaim string, idpTimeout time.Duration) *OIDCAuthenticator {
	trusted := make(map[string]struct{}, len(trustedIssuers))
	for _, iss := range trustedIssuers {
		trusted[normalizeIssuer(iss)] = struct{}{}
	}
	return &OIDCAuthenticator{
		trusted:    trusted,
		groupClaim: groupClaim,
		client:     &http.Client{Timeout: idpTimeout},
		verifiers:  map[string]*oidc.IDTokenVerifier{},
	}
}

// Authenticate peeks the unverified issuer claim to pick the verifier, then
// performs full signature and expiry verification against that issuer's keys.
func (a *OIDCAuthenticator) Authenticate(ctx context.Context, rawToken string) (*UserInfo, error) {
	if rawToken == "" {
		return nil, appErr.New(appErr.CodeUnauthenticated, "missing bearer token")
	}

	issuer, err := peekIssuer(rawToken)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnauthenticated, "malformed bearer token")
	}
	if _, ok := a.trusted[normalizeIssuer(issuer)]; !ok {
		return nil, appErr.Newf(appErr.CodeUnauthenticated, "untrusted issuer %q", issuer)
	}

	verifier, err := a.verifierFor(ctx, issuer)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnauthenticated, "identity provider discovery failed")
	}

	idToken, err := verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnauthenticated, "token verification failed")
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnauthenticated, "token claims unreadable")
	}

	info := &UserInfo{
		Subject:           idToken.Subject,
		Issuer:            idToken.Issuer,
		Name:              stringClaim(claims, "name"),
		PreferredUsername: stringClaim(claims, "preferred_username"),
		Email:             stringClaim(claims, "email"),
		Groups:            sliceClaim(claims, a.groupClaim),
		RawToken:          rawToken,
	}
	if info.Name == "" {
		info.Name = info.PreferredUsername
	}
	return info, nil
}

func (a *OIDCAuthenticator) verifierFor(ctx context.Context, issuer string) (*oidc.IDTokenVerifier, error) {
	key := normalizeIssuer(issuer)

	a.mu.Lock()
	defer a.mu.Unlock()
	if v, ok := a.verifiers[key]; ok {
		return v, nil
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, a.client), issuer)
	if err != nil {
		return nil, fmt.Errorf("discover issuer %s: %w", issuer, err)
	}
	v := provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	a.verifiers[key] = v
	return v, nil
}

// peekIssuer reads the iss claim without verifying the signature. The value
// is only used to select which trusted issuer's keys to verify against.
func peekIssuer(rawToken string) (string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(rawToken, claims); err != nil {
		return "", err
	}
	iss, err := claims.GetIssuer()
	if err != nil || iss == "" {
		return "", fmt.Errorf("token has no issuer claim")
	}
	return iss, nil
}

func normalizeIssuer(iss string) string {
	return strings.TrimRight(iss, "/")
}

func stringClaim(claims map[string]any, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func sliceClaim(claims map[string]any, key string) []string {
	raw, ok := claims[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
