package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/datacloud-project/orchestrator/internal/auth"
	"github.com/datacloud-project/orchestrator/internal/iam"
	"github.com/datacloud-project/orchestrator/internal/models"
	"github.com/datacloud-project/orchestrator/internal/repository"
	"github.com/datacloud-project/orchestrator/internal/vault"
	"github.com/datacloud-project/orchestrator/pkg/config"
	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
	"github.com/datacloud-project/orchestrator/pkg/logger"
)

type UserService interface {
	GetOrCreate(ctx context.Context, info *auth.UserInfo) (*models.User, error)
	Create(ctx context.Context, input *CreateUserInput) (*models.User, error)
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context, p repository.ListParams, q repository.UserQuery) ([]models.User, int64, error)
	Delete(ctx context.Context, id uuid.UUID, rawToken string) error
	SetSSHKey(ctx context.Context, id uuid.UUID, input *SSHKeyInput, rawToken string) (*models.User, error)
	GetSSHKey(ctx context.Context, id uuid.UUID, rawToken string) (*SSHKeyPair, error)
	RemoveSSHKey(ctx context.Context, id uuid.UUID, rawToken string) error
}

type CreateUserInput struct {
	Sub      string
	Issuer   string
	Name     string
	Username string
	Email    string
}

// SSHKeyInput carries the key pair attached to a user. The private key is
// never persisted in the database; when Vault is enabled it is written to
// the user's secret, otherwise it must be absent.
type SSHKeyInput struct {
	PublicKey  string
	PrivateKey string
}

// SSHKeyPair is the key material attached to a user. PrivateKey is empty
// when Vault is disabled or holds no secret for the user.
type SSHKeyPair struct {
	PublicKey  string
	PrivateKey string
}

type userService struct {
	cfg       *config.Config
	repo      repository.UserRepository
	vault     vault.Store
	exchanger iam.Exchanger
}

func NewUserService(cfg *config.Config, repo repository.UserRepository, store vault.Store, exchanger iam.Exchanger) UserService {
	return &userService{cfg: cfg, repo: repo, vault: store, exchanger: exchanger}
}

// GetOrCreate resolves the row for a verified identity, creating it on first
// authentication and refreshing the profile claims when they drift.
func (s *userService) GetOrCreate(ctx context.Context, info *auth.UserInfo) (*models.User, error) {
	user, err := s.repo.GetBySubIssuer(ctx, info.Subject, info.Issuer)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &models.User{
			Sub:      info.Subject,
			Issuer:   info.Issuer,
			Name:     info.Name,
			Username: info.PreferredUsername,
			Email:    info.Email,
		}
		if err := s.repo.Create(ctx, user); err != nil {
			// A concurrent first request may have won the insert.
			if appErr.IsCode(err, appErr.CodeConflict) {
				return s.repo.GetBySubIssuer(ctx, info.Subject, info.Issuer)
			}
			return nil, err
		}
		logger.L().Info("user created on first authentication",
			zap.String("user_id", user.ID.String()),
			zap.String("issuer", info.Issuer))
		return user, nil
	}

	changes := map[string]any{}
	if info.Name != "" && info.Name != user.Name {
		changes["name"] = info.Name
	}
	if info.PreferredUsername != "" && info.PreferredUsername != user.Username {
		changes["username"] = info.PreferredUsername
	}
	if info.Email != "" && info.Email != user.Email {
		changes["email"] = info.Email
	}
	if len(changes) > 0 {
		if err := s.repo.Update(ctx, user, changes); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (s *userService) Create(ctx context.Context, input *CreateUserInput) (*models.User, error) {
	user := &models.User{
		Sub:      input.Sub,
		Issuer:   input.Issuer,
		Name:     input.Name,
		Username: input.Username,
		Email:    input.Email,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *userService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, appErr.New(appErr.CodeNotFound, "user not found")
	}
	return user, nil
}

func (s *userService) List(ctx context.Context, p repository.ListParams, q repository.UserQuery) ([]models.User, int64, error) {
	return s.repo.List(ctx, p, q)
}

// Delete removes the user row and, when Vault is enabled, the user's secret.
// The secret goes first: if Vault is unreachable the row survives and the
// delete can be retried.
func (s *userService) Delete(ctx context.Context, id uuid.UUID, rawToken string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.cfg.VaultEnable && user.SSHPublicKey != "" {
		vaultJWT, err := s.vaultToken(ctx, user.Issuer, rawToken)
		if err != nil {
			return err
		}
		if err := s.vault.DeleteSSHKey(ctx, vaultJWT, user.Sub); err != nil {
			return err
		}
	}
	n, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return appErr.New(appErr.CodeNotFound, "user not found")
	}
	return nil
}

func (s *userService) SetSSHKey(ctx context.Context, id uuid.UUID, input *SSHKeyInput, rawToken string) (*models.User, error) {
	if input.PublicKey == "" {
		return nil, appErr.New(appErr.CodeValidation, "ssh_public_key is required")
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(input.PublicKey)); err != nil {
		return nil, appErr.New(appErr.CodeValidation, "ssh_public_key is not a valid public key")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.PrivateKey != "" {
		if !s.cfg.VaultEnable {
			return nil, appErr.New(appErr.CodeValidation, "private key storage requires the secrets vault")
		}
		vaultJWT, err := s.vaultToken(ctx, user.Issuer, rawToken)
		if err != nil {
			return nil, err
		}
		if err := s.vault.WriteSSHKey(ctx, vaultJWT, user.Sub, input.PrivateKey); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, user, map[string]any{"ssh_public_key": input.PublicKey}); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *userService) GetSSHKey(ctx context.Context, id uuid.UUID, rawToken string) (*SSHKeyPair, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.SSHPublicKey == "" {
		return nil, appErr.New(appErr.CodeNotFound, "no ssh key attached")
	}
	pair := &SSHKeyPair{PublicKey: user.SSHPublicKey}
	if s.cfg.VaultEnable {
		vaultJWT, err := s.vaultToken(ctx, user.Issuer, rawToken)
		if err != nil {
			return nil, err
		}
		priv, err := s.vault.ReadSSHKey(ctx, vaultJWT, user.Sub)
		if err != nil && !appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, err
		}
		pair.PrivateKey = priv
	}
	return pair, nil
}

func (s *userService) RemoveSSHKey(ctx context.Context, id uuid.UUID, rawToken string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.SSHPublicKey == "" {
		return appErr.New(appErr.CodeNotFound, "no ssh key attached")
	}
	if s.cfg.VaultEnable {
		vaultJWT, err := s.vaultToken(ctx, user.Issuer, rawToken)
		if err != nil {
			return err
		}
		if err := s.vault.DeleteSSHKey(ctx, vaultJWT, user.Sub); err != nil {
			return err
		}
	}
	return s.repo.Update(ctx, user, map[string]any{"ssh_public_key": ""})
}

// vaultToken exchanges the caller's token for one carrying the audience the
// vault's JWT auth method is bound to.
func (s *userService) vaultToken(ctx context.Context, issuer, rawToken string) (string, error) {
	set, err := s.exchanger.Exchange(ctx, issuer, rawToken, s.cfg.VaultBoundAudience)
	if err != nil {
		return "", err
	}
	return set.AccessToken, nil
}
