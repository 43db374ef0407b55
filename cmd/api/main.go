package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/datacloud-project/orchestrator/internal/api"
	"github.com/datacloud-project/orchestrator/internal/api/handlers"
	"github.com/datacloud-project/orchestrator/internal/auth"
	"github.com/datacloud-project/orchestrator/internal/iam"
	"github.com/datacloud-project/orchestrator/internal/queue"
	"github.com/datacloud-project/orchestrator/internal/repository"
	"github.com/datacloud-project/orchestrator/internal/services"
	"github.com/datacloud-project/orchestrator/internal/vault"
	"github.com/datacloud-project/orchestrator/pkg/config"
	"github.com/datacloud-project/orchestrator/pkg/database"
	"github.com/datacloud-project/orchestrator/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("starting orchestrator API",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("authz_mode", string(cfg.AuthzMode)),
	)

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()

	userRepo := repository.NewUserRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	deploymentRepo := repository.NewDeploymentRepository(db)
	resourceRepo := repository.NewResourceRepository(db)

	authenticator := auth.NewOIDCAuthenticator(cfg.TrustedIssuers, cfg.AdminGroupClaim, cfg.IDPTimeout)
	authorizer, err := auth.New(cfg)
	if err != nil {
		log.Fatal("authorizer setup failed", zap.Error(err))
	}

	exchanger := iam.NewCachingExchanger(iam.NewExchanger(cfg))
	var secrets vault.Store
	if cfg.VaultEnable {
		secrets = vault.NewStore(cfg)
	}

	enqueuer := queue.NewClient(cfg.RedisAddr, cfg.RedisPassword)
	defer func() { _ = enqueuer.Close() }()

	userSvc := services.NewUserService(cfg, userRepo, secrets, exchanger)
	templateSvc := services.NewTemplateService(templateRepo)
	deploymentSvc := services.NewDeploymentService(cfg, deploymentRepo, templateRepo, resourceRepo, enqueuer)

	checks := map[string]handlers.Check{
		"database": handlers.DatabaseCheck(db),
		"queue":    handlers.QueueCheck(cfg.RedisAddr, cfg.RedisPassword),
	}
	if cfg.AuthzMode == config.AuthzModeOPA {
		checks["policy_engine"] = handlers.EndpointCheck(cfg.OPAAuthzURL)
	}
	if cfg.VaultEnable {
		checks["vault"] = handlers.EndpointCheck(cfg.VaultURL + "/v1/sys/health")
	}

	router := api.NewRouter(api.Dependencies{
		Authenticator:      authenticator,
		Authorizer:         authorizer,
		UserResolver:       userSvc,
		HealthHandler:      handlers.NewHealthHandler(checks),
		UsersHandler:       handlers.NewUsersHandler(userSvc),
		TemplatesHandler:   handlers.NewTemplatesHandler(templateSvc),
		DeploymentsHandler: handlers.NewDeploymentsHandler(deploymentSvc, resourceRepo),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
		return
	}
	log.Info("server exited gracefully")
}
