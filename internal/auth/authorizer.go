package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/datacloud-project/orchestrator/pkg/config"
	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
)

// AccessLevel is the privilege a route demands.
type AccessLevel string

const (
	LevelUser  AccessLevel = "is_user"
	LevelAdmin AccessLevel = "is_admin"
)

// Authorizer decides whether an authenticated identity may perform the
// request. The strategy is fixed at startup from AUTHZ_MODE and injected
// into the middleware; handlers never pick a strategy themselves.
type Authorizer interface {
	Authorize(r *http.Request, info *UserInfo, level AccessLevel) error
}

// New selects the authorizer strategy for the given configuration.
func New(cfg *config.Config) (Authorizer, error) {
	switch cfg.AuthzMode {
	case config.AuthzModeEmail:
		return NewClaimAuthorizer(cfg.AdminEmailList, nil), nil
	case config.AuthzModeGroups:
		return NewClaimAuthorizer(nil, cfg.AdminGroupList), nil
	case config.AuthzModeOPA:
		return NewOPAAuthorizer(cfg.OPAAuthzURL, cfg.OPATimeout), nil
	default:
		return nil, fmt.Errorf("unknown authz mode %q", cfg.AuthzMode)
	}
}

// ClaimAuthorizer grants user access to any verified identity and admin
// access to identities matching the configured email or group lists.
type ClaimAuthorizer struct {
	adminEmails map[string]struct{}
	adminGroups map[string]struct{}
}

func NewClaimAuthorizer(adminEmails, adminGroups []string) *ClaimAuthorizer {
	a := &ClaimAuthorizer{
		adminEmails: make(map[string]struct{}, len(adminEmails)),
		adminGroups: make(map[string]struct{}, len(adminGroups)),
	}
	for _, e := range adminEmails {
		a.adminEmails[e] = struct{}{}
	}
	for _, g := range adminGroups {
		a.adminGroups[g] = struct{}{}
	}
	return a
}

func (a *ClaimAuthorizer) Authorize(_ *http.Request, info *UserInfo, level AccessLevel) error {
	if info == nil || info.Subject == "" || info.Issuer == "" {
		return appErr.New(appErr.CodeUnauthenticated, "no verified identity")
	}
	if level != LevelAdmin {
		return nil
	}
	if _, ok := a.adminEmails[info.Email]; ok {
		return nil
	}
	for _, g := range info.Groups {
		if _, ok := a.adminGroups[g]; ok {
			return nil
		}
	}
	return appErr.New(appErr.CodeForbidden, "administrator privileges required")
}

// OPAAuthorizer delegates every decision to an external policy engine. The
// request is never allowed on engine failure; a clear deny and an engine
// error stay distinguishable for the status mapping.
type OPAAuthorizer struct {
	url    string
	client *http.Client
}

func NewOPAAuthorizer(url string, timeout time.Duration) *OPAAuthorizer {
	return &OPAAuthorizer{url: url, client: &http.Client{Timeout: timeout}}
}

// maxPolicyBodyBytes caps how much of the inbound body is forwarded to the
// policy engine.
const maxPolicyBodyBytes = 1 << 20

type opaInput struct {
	Method      string              `json:"method"`
	Path        string              `json:"path"`
	Headers     map[string][]string `json:"headers"`
	Body        string              `json:"body"`
	AccessLevel string              `json:"access_level"`
	Subject     string              `json:"subject"`
	Issuer      string              `json:"issuer"`
	Email       string              `json:"email,omitempty"`
	Groups      []string            `json:"groups,omitempty"`
}

type opaDecision struct {
	Result bool `json:"result"`
}

func (a *OPAAuthorizer) Authorize(r *http.Request, info *UserInfo, level AccessLevel) error {
	if info == nil {
		return appErr.New(appErr.CodeUnauthenticated, "no verified identity")
	}

	headers := r.Header.Clone()
	headers.Del("Authorization")

	// The policy sees the request body; the handler still needs to read
	// it afterwards, so it is buffered and put back.
	var body []byte
	if r.Body != nil {
		var readErr error
		body, readErr = io.ReadAll(io.LimitReader(r.Body, maxPolicyBodyBytes))
		if readErr != nil {
			return appErr.Wrap(readErr, appErr.CodeAuthzBackend, "read request body failed")
		}
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	payload, err := json.Marshal(map[string]opaInput{"input": {
		Method:      r.Method,
		Path:        r.URL.Path,
		Headers:     headers,
		Body:        string(body),
		AccessLevel: string(level),
		Subject:     info.Subject,
		Issuer:      info.Issuer,
		Email:       info.Email,
		Groups:      info.Groups,
	}})
	if err != nil {
		return appErr.Wrap(err, appErr.CodeAuthzBackend, "encode policy input failed")
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return appErr.Wrap(err, appErr.CodeAuthzBackend, "build policy request failed")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeAuthzBackend, "policy engine unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return appErr.Newf(appErr.CodeAuthzBackend, "policy engine returned %d: %s", resp.StatusCode, body)
	}

	var decision opaDecision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return appErr.Wrap(err, appErr.CodeAuthzBackend, "decode policy decision failed")
	}
	if !decision.Result {
		return appErr.New(appErr.CodeForbidden, "denied by policy")
	}
	return nil
}
