package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/datacloud-project/orchestrator/internal/models"
	"github.com/datacloud-project/orchestrator/internal/repository"
	appErr "github.com/datacloud-project/orchestrator/pkg/errors"
)

const pgImage = "postgres:16-alpine"

// setupDatabase starts a throwaway PostgreSQL container and migrates the
// schema into it. The error-classification paths depend on real SQLSTATE
// codes and constraint details, which sqlite cannot stand in for.
func setupDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcpostgres.Run(ctx, pgImage,
		tcpostgres.WithDatabase("orchestrator"),
		tcpostgres.WithUsername("orchestrator"),
		tcpostgres.WithPassword("orchestrator"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(pgC) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpg.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Template{}, &models.Deployment{}, &models.Resource{}))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, sub string) *models.User {
	t.Helper()
	u := &models.User{
		Sub:    sub,
		Issuer: "https://idp.example.org/realms/datacloud",
		Name:   "Test User " + sub,
		Email:  sub + "@example.org",
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedTemplate(t *testing.T, db *gorm.DB, owner *models.User, name, hash string) *models.Template {
	t.Helper()
	tpl := &models.Template{
		Content:     "tosca_definitions_version: tosca_simple_yaml_1_0\n# " + name,
		HashContent: hash,
		Name:        &name,
		CreatedByID: owner.ID,
		UpdatedByID: owner.ID,
	}
	require.NoError(t, db.Create(tpl).Error)
	return tpl
}

func seedDeployment(t *testing.T, db *gorm.DB, owner *models.User, tpl *models.Template, group string) *models.Deployment {
	t.Helper()
	dep := &models.Deployment{
		TemplateID:            tpl.ID,
		UserGroup:             group,
		UserGroupIssuer:       owner.Issuer,
		PerProviderMaxRetries: 3,
		TotalTimeout:          14400,
		PerProviderTimeout:    1440,
		Status:                models.DeploymentCreationInProgress,
		Task:                  models.TaskNone,
		CreatedByID:           owner.ID,
		UpdatedByID:           owner.ID,
	}
	require.NoError(t, db.Create(dep).Error)
	return dep
}

func TestRepositoriesPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	db := setupDatabase(t)
	ctx := context.Background()

	owner := seedUser(t, db, "alice")
	templates := repository.NewTemplateRepository(db)
	deployments := repository.NewDeploymentRepository(db)
	resources := repository.NewResourceRepository(db)

	t.Run("duplicate hash classifies as conflict", func(t *testing.T) {
		seedTemplate(t, db, owner, "dup", "hash-dup")
		dup := &models.Template{
			Content:     "tosca_definitions_version: tosca_simple_yaml_1_0",
			HashContent: "hash-dup",
			CreatedByID: owner.ID,
			UpdatedByID: owner.ID,
		}
		err := templates.Create(ctx, dup)
		require.Error(t, err)
		require.True(t, appErr.IsCode(err, appErr.CodeConflict))
		require.Contains(t, appErr.Message(err), "hash_content")
	})

	t.Run("absent row is nil without error", func(t *testing.T) {
		tpl, err := templates.GetByID(ctx, uuid.New())
		require.NoError(t, err)
		require.Nil(t, tpl)
	})

	t.Run("count matches page window", func(t *testing.T) {
		for i := 0; i < 12; i++ {
			seedTemplate(t, db, owner, fmt.Sprintf("paged-tpl-%02d", i), fmt.Sprintf("hash-paged-%02d", i))
		}
		q := repository.TemplateQuery{Name: strPtr("paged-tpl")}

		page2, total, err := templates.List(ctx, repository.ListParams{Page: 2, Size: 5}, q)
		require.NoError(t, err)
		require.EqualValues(t, 12, total)
		require.Len(t, page2, 5)

		page3, total, err := templates.List(ctx, repository.ListParams{Page: 3, Size: 5}, q)
		require.NoError(t, err)
		require.EqualValues(t, 12, total)
		require.Len(t, page3, 2)
	})

	t.Run("created_after bounds the listing", func(t *testing.T) {
		seedTemplate(t, db, owner, "stamped-tpl", "hash-stamped")
		name := strPtr("stamped-tpl")

		past := time.Now().Add(-time.Hour)
		_, total, err := templates.List(ctx, repository.ListParams{},
			repository.TemplateQuery{Name: name, CreatedAfter: &past})
		require.NoError(t, err)
		require.EqualValues(t, 1, total)

		future := time.Now().Add(time.Hour)
		_, total, err = templates.List(ctx, repository.ListParams{},
			repository.TemplateQuery{Name: name, CreatedAfter: &future})
		require.NoError(t, err)
		require.EqualValues(t, 0, total)
	})

	t.Run("partial update leaves other fields alone", func(t *testing.T) {
		tpl := seedTemplate(t, db, owner, "patch-tpl", "hash-patch")
		dep := seedDeployment(t, db, owner, tpl, "group-a")

		require.NoError(t, deployments.Update(ctx, dep, map[string]any{"user_group": "group-b"}))

		got, err := deployments.GetByID(ctx, dep.ID)
		require.NoError(t, err)
		require.Equal(t, "group-b", got.UserGroup)
		require.Equal(t, models.DeploymentCreationInProgress, got.Status)
		require.Equal(t, 14400, got.TotalTimeout)
		require.False(t, got.UpdatedAt.Before(dep.UpdatedAt))
	})

	t.Run("status reason is set and cleared", func(t *testing.T) {
		tpl := seedTemplate(t, db, owner, "status-tpl", "hash-status")
		dep := seedDeployment(t, db, owner, tpl, "group-a")

		require.NoError(t, deployments.UpdateStatus(ctx, dep.ID, models.DeploymentCreationFailed, "provider quota exceeded"))
		got, err := deployments.GetByID(ctx, dep.ID)
		require.NoError(t, err)
		require.Equal(t, models.DeploymentCreationFailed, got.Status)
		require.Equal(t, "provider quota exceeded", got.StatusReason)

		require.NoError(t, deployments.UpdateStatus(ctx, dep.ID, models.DeploymentCreationComplete, ""))
		got, err = deployments.GetByID(ctx, dep.ID)
		require.NoError(t, err)
		require.Equal(t, models.DeploymentCreationComplete, got.Status)
		require.Empty(t, got.StatusReason)

		err = deployments.UpdateStatus(ctx, uuid.New(), models.DeploymentCreationComplete, "")
		require.True(t, appErr.IsCode(err, appErr.CodeNotFound))
	})

	t.Run("repeated delete reports zero rows", func(t *testing.T) {
		tpl := seedTemplate(t, db, owner, "del-tpl", "hash-del")
		dep := seedDeployment(t, db, owner, tpl, "group-a")

		// Every deployment created through the service carries an owner
		// row; the join row must never block the delete.
		require.NoError(t, deployments.AddOwner(ctx, dep, owner))

		n, err := deployments.Delete(ctx, dep.ID)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		n, err = deployments.Delete(ctx, dep.ID)
		require.NoError(t, err)
		require.EqualValues(t, 0, n)
	})

	t.Run("template delete blocked by deployments", func(t *testing.T) {
		tpl := seedTemplate(t, db, owner, "blocked-tpl", "hash-blocked")
		seedDeployment(t, db, owner, tpl, "group-a")

		_, err := templates.Delete(ctx, tpl.ID)
		require.Error(t, err)
		require.True(t, appErr.IsCode(err, appErr.CodeDeleteBlocked))
	})

	t.Run("owners association round trip", func(t *testing.T) {
		tpl := seedTemplate(t, db, owner, "owned-tpl", "hash-owned")
		dep := seedDeployment(t, db, owner, tpl, "group-a")

		require.NoError(t, deployments.AddOwner(ctx, dep, owner))
		got, err := deployments.Owners(ctx, dep)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, owner.ID, got[0].ID)
	})

	t.Run("resources stay scoped to their deployment", func(t *testing.T) {
		tpl := seedTemplate(t, db, owner, "res-tpl", "hash-res")
		depA := seedDeployment(t, db, owner, tpl, "group-a")
		depB := seedDeployment(t, db, owner, tpl, "group-b")

		require.NoError(t, resources.CreateBatch(ctx, []models.Resource{
			{DeploymentID: depA.ID, ToscaNodeName: "web", ToscaNodeType: "tosca.nodes.Compute", IMVMIndex: intPtr(0)},
			{DeploymentID: depA.ID, ToscaNodeName: "db", ToscaNodeType: "tosca.nodes.Compute", IMVMIndex: intPtr(1)},
			{DeploymentID: depB.ID, ToscaNodeName: "web", ToscaNodeType: "tosca.nodes.Compute", IMVMIndex: intPtr(0)},
		}))

		items, total, err := resources.ListByDeployment(ctx, depA.ID, repository.ListParams{}, repository.ResourceQuery{})
		require.NoError(t, err)
		require.EqualValues(t, 2, total)
		for _, res := range items {
			require.Equal(t, depA.ID, res.DeploymentID)
		}

		_, total, err = resources.ListByDeployment(ctx, depA.ID, repository.ListParams{},
			repository.ResourceQuery{IMVMIndexGTE: intPtr(1)})
		require.NoError(t, err)
		require.EqualValues(t, 1, total)

		n, err := resources.DeleteByDeployment(ctx, depA.ID)
		require.NoError(t, err)
		require.EqualValues(t, 2, n)

		remaining, err := resources.CountByDeployment(ctx, depB.ID)
		require.NoError(t, err)
		require.EqualValues(t, 1, remaining)
	})
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
