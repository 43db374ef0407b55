package tasks

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/datacloud-project/orchestrator/internal/models"
	"github.com/datacloud-project/orchestrator/internal/queue"
	"github.com/datacloud-project/orchestrator/internal/repository"
	"github.com/datacloud-project/orchestrator/pkg/logger"
)

func TestMain(m *testing.M) {
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type mockDeploymentRepository struct {
	mock.Mock
}

func (m *mockDeploymentRepository) Create(ctx context.Context, dep *models.Deployment) error {
	return m.Called(ctx, dep).Error(0)
}

func (m *mockDeploymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Deployment, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.Deployment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDeploymentRepository) List(ctx context.Context, p repository.ListParams, q repository.DeploymentQuery) ([]models.Deployment, int64, error) {
	args := m.Called(ctx, p, q)
	if v := args.Get(0); v != nil {
		return v.([]models.Deployment), args.Get(1).(int64), args.Error(2)
	}
	return nil, 0, args.Error(2)
}

func (m *mockDeploymentRepository) Update(ctx context.Context, dep *models.Deployment, changes map[string]any) error {
	return m.Called(ctx, dep, changes).Error(0)
}

func (m *mockDeploymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.DeploymentStatus, reason string) error {
	return m.Called(ctx, id, status, reason).Error(0)
}

func (m *mockDeploymentRepository) UpdateTask(ctx context.Context, id uuid.UUID, task models.TaskStage) error {
	return m.Called(ctx, id, task).Error(0)
}

func (m *mockDeploymentRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockDeploymentRepository) Owners(ctx context.Context, dep *models.Deployment) ([]models.User, error) {
	args := m.Called(ctx, dep)
	if v := args.Get(0); v != nil {
		return v.([]models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDeploymentRepository) AddOwner(ctx context.Context, dep *models.Deployment, user *models.User) error {
	return m.Called(ctx, dep, user).Error(0)
}

type mockResourceRepository struct {
	mock.Mock
}

func (m *mockResourceRepository) CreateBatch(ctx context.Context, resources []models.Resource) error {
	return m.Called(ctx, resources).Error(0)
}

func (m *mockResourceRepository) GetByID(ctx context.Context, deploymentID, id uuid.UUID) (*models.Resource, error) {
	args := m.Called(ctx, deploymentID, id)
	if v := args.Get(0); v != nil {
		return v.(*models.Resource), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockResourceRepository) ListByDeployment(ctx context.Context, deploymentID uuid.UUID, p repository.ListParams, q repository.ResourceQuery) ([]models.Resource, int64, error) {
	args := m.Called(ctx, deploymentID, p, q)
	if v := args.Get(0); v != nil {
		return v.([]models.Resource), args.Get(1).(int64), args.Error(2)
	}
	return nil, 0, args.Error(2)
}

func (m *mockResourceRepository) CountByDeployment(ctx context.Context, deploymentID uuid.UUID) (int64, error) {
	args := m.Called(ctx, deploymentID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockResourceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ResourceStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockResourceRepository) UpdateStatusByDeployment(ctx context.Context, deploymentID uuid.UUID, status models.ResourceStatus) error {
	return m.Called(ctx, deploymentID, status).Error(0)
}

func (m *mockResourceRepository) Delete(ctx context.Context, deploymentID, id uuid.UUID) (int64, error) {
	args := m.Called(ctx, deploymentID, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockResourceRepository) DeleteByDeployment(ctx context.Context, deploymentID uuid.UUID) (int64, error) {
	args := m.Called(ctx, deploymentID)
	return args.Get(0).(int64), args.Error(1)
}

const testTemplate = `tosca_definitions_version: tosca_simple_yaml_1_0
topology_template:
  node_templates:
    web_server:
      type: tosca.nodes.indigo.Compute
      requirements:
        - network: priv_network
    priv_network:
      type: tosca.nodes.network.Network
`

func createTask(t *testing.T, id uuid.UUID, template string) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(queue.CreateDeploymentMessage{
		MsgVersion:   queue.MsgVersion,
		DeploymentID: id.String(),
		Template:     template,
	})
	require.NoError(t, err)
	return asynq.NewTask(queue.TypeDeploymentCreate, body)
}

func TestHandleCreateMaterializesResources(t *testing.T) {
	deploymentID := uuid.New()
	deployRepo := &mockDeploymentRepository{}
	resourceRepo := &mockResourceRepository{}
	handler := NewDeploymentTaskHandler(deployRepo, resourceRepo)

	deployRepo.On("UpdateTask", mock.Anything, deploymentID, mock.Anything).Return(nil)
	deployRepo.On("UpdateStatus", mock.Anything, deploymentID, models.DeploymentCreationComplete, "").Return(nil).Once()

	var created []models.Resource
	resourceRepo.On("CreateBatch", mock.Anything, mock.MatchedBy(func(rs []models.Resource) bool {
		created = rs
		return len(rs) == 2
	})).Return(nil).Once()

	err := handler.HandleCreate(context.Background(), createTask(t, deploymentID, testTemplate))
	require.NoError(t, err)

	byName := map[string]models.Resource{}
	for _, r := range created {
		require.Equal(t, deploymentID, r.DeploymentID)
		require.Equal(t, models.ResourceInitial, r.Status)
		byName[r.ToscaNodeName] = r
	}
	require.Equal(t, "tosca.nodes.indigo.Compute", byName["web_server"].ToscaNodeType)
	// The network node is required by the compute node.
	require.Len(t, byName["priv_network"].RequiredBy, 1)
	require.Equal(t, byName["web_server"].ID, byName["priv_network"].RequiredBy[0])
	require.Empty(t, byName["web_server"].RequiredBy)

	mock.AssertExpectationsForObjects(t, deployRepo, resourceRepo)
}

func TestHandleCreateInvalidTemplateFailsDeployment(t *testing.T) {
	deploymentID := uuid.New()
	deployRepo := &mockDeploymentRepository{}
	resourceRepo := &mockResourceRepository{}
	handler := NewDeploymentTaskHandler(deployRepo, resourceRepo)

	deployRepo.On("UpdateTask", mock.Anything, deploymentID, models.TaskTemplateValidation).Return(nil).Once()
	deployRepo.On("UpdateStatus", mock.Anything, deploymentID, models.DeploymentCreationFailed,
		mock.MatchedBy(func(reason string) bool { return reason != "" })).Return(nil).Once()

	err := handler.HandleCreate(context.Background(), createTask(t, deploymentID, "not: [valid"))
	require.Error(t, err)
	// A terminal failure must not be retried by the queue.
	require.ErrorIs(t, err, asynq.SkipRetry)

	mock.AssertExpectationsForObjects(t, deployRepo, resourceRepo)
}

func TestHandleDelete(t *testing.T) {
	deploymentID := uuid.New()
	deployRepo := &mockDeploymentRepository{}
	resourceRepo := &mockResourceRepository{}
	handler := NewDeploymentTaskHandler(deployRepo, resourceRepo)

	body, err := json.Marshal(queue.DeleteDeploymentMessage{
		MsgVersion:   queue.MsgVersion,
		DeploymentID: deploymentID.String(),
	})
	require.NoError(t, err)

	resourceRepo.On("UpdateStatusByDeployment", mock.Anything, deploymentID, models.ResourceDeleted).Return(nil).Once()
	deployRepo.On("UpdateStatus", mock.Anything, deploymentID, models.DeploymentDeletionComplete, "").Return(nil).Once()

	err = handler.HandleDelete(context.Background(), asynq.NewTask(queue.TypeDeploymentDelete, body))
	require.NoError(t, err)

	mock.AssertExpectationsForObjects(t, deployRepo, resourceRepo)
}

func TestParseToscaRejectsEmptyTopology(t *testing.T) {
	_, err := parseTosca("tosca_definitions_version: tosca_simple_yaml_1_0\n")
	require.Error(t, err)

	_, err = parseTosca("topology_template:\n  node_templates:\n    n:\n      type: t\n")
	require.Error(t, err)
}
