// Package vault stores per-user SSH private keys in a HashiCorp Vault KV v2
// mount. Login uses the JWT auth method with a token obtained by exchanging
// the caller's access token, so every operation runs with the caller's own
// vault identity, never a service credential.
package vault

import (
	"context"
	"errors"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/datacloud-project/orchestrator/pkg/config"
	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
)

const sshPrivateKeyField = "ssh_private_key"

// Store is the secrets surface the user service depends on.
type Store interface {
	WriteSSHKey(ctx context.Context, jwt, sub, privateKey string) error
	ReadSSHKey(ctx context.Context, jwt, sub string) (string, error)
	DeleteSSHKey(ctx context.Context, jwt, sub string) error
}

type store struct {
	cfg *config.Config
}

func NewStore(cfg *config.Config) Store {
	return &store{cfg: cfg}
}

// login authenticates with the JWT auth method and then requests a child
// token restricted to a single policy. The child token is what actually
// touches the KV mount.
func (s *store) login(ctx context.Context, jwt, policy string) (*vaultapi.Client, error) {
	conf := vaultapi.DefaultConfig()
	conf.Address = s.cfg.VaultURL
	client, err := vaultapi.NewClient(conf)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "vault client init failed")
	}

	secret, err := client.Logical().WriteWithContext(ctx, "auth/jwt/login", map[string]any{
		"jwt":  jwt,
		"role": s.cfg.VaultRole,
	})
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "vault login failed")
	}
	if secret == nil || secret.Auth == nil {
		return nil, appErr.New(appErr.CodeUnavailable, "vault login returned no auth data")
	}
	client.SetToken(secret.Auth.ClientToken)

	child, err := client.Auth().Token().CreateWithContext(ctx, &vaultapi.TokenCreateRequest{
		Policies: []string{policy},
		TTL:      fmt.Sprintf("%ds", s.cfg.VaultTokenTTL),
		Period:   fmt.Sprintf("%ds", s.cfg.VaultTokenPeriod),
	})
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "vault token create failed")
	}
	if child.Auth == nil {
		return nil, appErr.New(appErr.CodeUnavailable, "vault token create returned no auth data")
	}
	client.SetToken(child.Auth.ClientToken)
	return client, nil
}

func (s *store) secretPath(sub string) string {
	return "users/" + sub
}

func (s *store) WriteSSHKey(ctx context.Context, jwt, sub, privateKey string) error {
	client, err := s.login(ctx, jwt, s.cfg.VaultWritePolicy)
	if err != nil {
		return err
	}
	_, err = client.KVv2(s.cfg.VaultMountPoint).Put(ctx, s.secretPath(sub), map[string]any{
		sshPrivateKeyField: privateKey,
	})
	if err != nil {
		return appErr.Wrap(err, appErr.CodeUnavailable, "vault secret write failed")
	}
	return nil
}

func (s *store) ReadSSHKey(ctx context.Context, jwt, sub string) (string, error) {
	client, err := s.login(ctx, jwt, s.cfg.VaultReadPolicy)
	if err != nil {
		return "", err
	}
	secret, err := client.KVv2(s.cfg.VaultMountPoint).Get(ctx, s.secretPath(sub))
	if err != nil {
		if errors.Is(err, vaultapi.ErrSecretNotFound) {
			return "", appErr.New(appErr.CodeNotFound, "no ssh key stored")
		}
		return "", appErr.Wrap(err, appErr.CodeUnavailable, "vault secret read failed")
	}
	key, _ := secret.Data[sshPrivateKeyField].(string)
	if key == "" {
		return "", appErr.New(appErr.CodeNotFound, "no ssh key stored")
	}
	return key, nil
}

// DeleteSSHKey removes the secret and its version history.
func (s *store) DeleteSSHKey(ctx context.Context, jwt, sub string) error {
	client, err := s.login(ctx, jwt, s.cfg.VaultDeletePolicy)
	if err != nil {
		return err
	}
	if err := client.KVv2(s.cfg.VaultMountPoint).DeleteMetadata(ctx, s.secretPath(sub)); err != nil {
		return appErr.Wrap(err, appErr.CodeUnavailable, "vault secret delete failed")
	}
	return nil
}
