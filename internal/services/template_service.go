package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/datacloud-project/orchestrator/internal/models"
	"github.com/datacloud-project/orchestrator/internal/repository"
	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
)

// TemplateService manages TOSCA documents. Content is content-addressed by
// its sha256 so the same document can never be stored twice.
type TemplateService interface {
	Create(ctx context.Context, caller *models.User, content string) (*models.Template, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Template, error)
	List(ctx context.Context, p repository.ListParams, q repository.TemplateQuery) ([]models.Template, int64, error)
	Update(ctx context.Context, caller *models.User, id uuid.UUID, input *UpdateTemplateInput) (*models.Template, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// UpdateTemplateInput carries the patchable metadata. Content is immutable;
// uploading changed content is a new template.
type UpdateTemplateInput struct {
	Name               *string
	Version            *string
	TargetProviderType *string
}

// templateMeta is what gets derived from the document body.
type templateMeta struct {
	Name                    *string
	Version                 *string
	TargetProviderType      *string
	ToscaDefinitionsVersion *string
}

type templateService struct {
	repo repository.TemplateRepository

	// Metadata derivation parses the whole document, so results are cached
	// by content hash. Re-uploads of a rejected duplicate hit the cache.
	metaMu    sync.Mutex
	metaCache map[string]templateMeta
}

func NewTemplateService(repo repository.TemplateRepository) TemplateService {
	return &templateService{repo: repo, metaCache: map[string]templateMeta{}}
}

func (s *templateService) Create(ctx context.Context, caller *models.User, content string) (*models.Template, error) {
	if content == "" {
		return nil, appErr.New(appErr.CodeValidation, "template content is empty")
	}
	hash := hashContent(content)
	meta, err := s.deriveMeta(hash, content)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeValidation, "template is not valid YAML")
	}

	tpl := &models.Template{
		Content:                 content,
		HashContent:             hash,
		Name:                    meta.Name,
		Version:                 meta.Version,
		TargetProviderType:      meta.TargetProviderType,
		ToscaDefinitionsVersion: meta.ToscaDefinitionsVersion,
		CreatedByID:             caller.ID,
		UpdatedByID:             caller.ID,
	}
	if err := s.repo.Create(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

func (s *templateService) Get(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	tpl, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, appErr.New(appErr.CodeNotFound, "template not found")
	}
	return tpl, nil
}

func (s *templateService) List(ctx context.Context, p repository.ListParams, q repository.TemplateQuery) ([]models.Template, int64, error) {
	return s.repo.List(ctx, p, q)
}

func (s *templateService) Update(ctx context.Context, caller *models.User, id uuid.UUID, input *UpdateTemplateInput) (*models.Template, error) {
	tpl, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{"updated_by_id": caller.ID}
	if input.Name != nil {
		changes["name"] = *input.Name
	}
	if input.Version != nil {
		changes["version"] = *input.Version
	}
	if input.TargetProviderType != nil {
		changes["target_provider_type"] = *input.TargetProviderType
	}
	if err := s.repo.Update(ctx, tpl, changes); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *templateService) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return appErr.New(appErr.CodeNotFound, "template not found")
	}
	return nil
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func (s *templateService) deriveMeta(hash, content string) (templateMeta, error) {
	s.metaMu.Lock()
	cached, ok := s.metaCache[hash]
	s.metaMu.Unlock()
	if ok {
		return cached, nil
	}

	var doc struct {
		ToscaDefinitionsVersion string `yaml:"tosca_definitions_version"`
		Metadata                struct {
			TemplateName       string `yaml:"template_name"`
			TemplateVersion    string `yaml:"template_version"`
			TargetProviderType string `yaml:"target_provider_type"`
		} `yaml:"metadata"`
	}
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return templateMeta{}, err
	}

	meta := templateMeta{
		Name:                    optional(doc.Metadata.TemplateName),
		Version:                 optional(doc.Metadata.TemplateVersion),
		TargetProviderType:      optional(doc.Metadata.TargetProviderType),
		ToscaDefinitionsVersion: optional(doc.ToscaDefinitionsVersion),
	}

	s.metaMu.Lock()
	s.metaCache[hash] = meta
	s.metaMu.Unlock()
	return meta, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
