package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/datacloud-project/orchestrator/internal/models"
	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
)

const toscaDoc = `tosca_definitions_version: tosca_simple_yaml_1_0
metadata:
  template_name: web-cluster
  template_version: 1.2.0
  target_provider_type: openstack
topology_template:
  node_templates:
    server:
      type: tosca.nodes.indigo.Compute
`

func TestTemplateCreateDerivesMetadata(t *testing.T) {
	repo := &mockTemplateRepo{}
	svc := NewTemplateService(repo)
	caller := &models.User{ID: uuid.New()}

	repo.On("Create", mock.Anything, mock.MatchedBy(func(tpl *models.Template) bool {
		return tpl.HashContent != "" &&
			tpl.Name != nil && *tpl.Name == "web-cluster" &&
			tpl.Version != nil && *tpl.Version == "1.2.0" &&
			tpl.TargetProviderType != nil && *tpl.TargetProviderType == "openstack" &&
			tpl.ToscaDefinitionsVersion != nil && *tpl.ToscaDefinitionsVersion == "tosca_simple_yaml_1_0" &&
			tpl.CreatedByID == caller.ID
	})).Return(nil).Once()

	tpl, err := svc.Create(context.Background(), caller, toscaDoc)
	require.NoError(t, err)
	require.Len(t, tpl.HashContent, 64)
	repo.AssertExpectations(t)
}

func TestTemplateCreateMemoizesMetadataParse(t *testing.T) {
	repo := &mockTemplateRepo{}
	svc := NewTemplateService(repo).(*templateService)
	caller := &models.User{ID: uuid.New()}

	repo.On("Create", mock.Anything, mock.Anything).Return(nil).Twice()

	_, err := svc.Create(context.Background(), caller, toscaDoc)
	require.NoError(t, err)
	require.Len(t, svc.metaCache, 1)

	// Same content again: the cached entry is reused, not re-derived.
	_, err = svc.Create(context.Background(), caller, toscaDoc)
	require.NoError(t, err)
	require.Len(t, svc.metaCache, 1)
}

func TestTemplateCreateRejectsBadYAML(t *testing.T) {
	svc := NewTemplateService(&mockTemplateRepo{})
	caller := &models.User{ID: uuid.New()}

	_, err := svc.Create(context.Background(), caller, "{broken: [yaml")
	require.True(t, appErr.IsCode(err, appErr.CodeValidation))

	_, err = svc.Create(context.Background(), caller, "")
	require.True(t, appErr.IsCode(err, appErr.CodeValidation))
}

func TestTemplateUpdateTouchesMetadataOnly(t *testing.T) {
	repo := &mockTemplateRepo{}
	svc := NewTemplateService(repo)
	caller := &models.User{ID: uuid.New()}
	id := uuid.New()
	existing := &models.Template{ID: id, Content: toscaDoc}

	repo.On("GetByID", mock.Anything, id).Return(existing, nil).Twice()
	name := "renamed"
	repo.On("Update", mock.Anything, existing, mock.MatchedBy(func(changes map[string]any) bool {
		_, touchesContent := changes["content"]
		return changes["name"] == "renamed" && !touchesContent && changes["updated_by_id"] == caller.ID
	})).Return(nil).Once()

	_, err := svc.Update(context.Background(), caller, id, &UpdateTemplateInput{Name: &name})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestTemplateGetAbsent(t *testing.T) {
	repo := &mockTemplateRepo{}
	svc := NewTemplateService(repo)
	id := uuid.New()

	repo.On("GetByID", mock.Anything, id).Return(nil, nil).Once()

	_, err := svc.Get(context.Background(), id)
	require.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

func TestTemplateDeleteAbsent(t *testing.T) {
	repo := &mockTemplateRepo{}
	svc := NewTemplateService(repo)
	id := uuid.New()

	repo.On("Delete", mock.Anything, id).Return(int64(0), nil).Once()

	err := svc.Delete(context.Background(), id)
	require.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}
