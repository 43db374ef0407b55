package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/datacloud-project/orchestrator/internal/api/handlers"
	mw "github.com/datacloud-project/orchestrator/internal/api/middleware"
	"github.com/datacloud-project/orchestrator/internal/auth"
)

type Dependencies struct {
	Authenticator auth.Authenticator
	Authorizer    auth.Authorizer
	UserResolver  mw.UserResolver

	HealthHandler      *handlers.HealthHandler
	UsersHandler       *handlers.UsersHandler
	TemplatesHandler   *handlers.TemplatesHandler
	DeploymentsHandler *handlers.DeploymentsHandler
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	r.Use(mw.NewRateLimiter(10, 20).Handler)
	r.Use(chimid.Compress(5))

	r.Get("/health", dep.HealthHandler.Get)

	userOnly := mw.Require(dep.Authorizer, auth.LevelUser)
	adminOnly := mw.Require(dep.Authorizer, auth.LevelAdmin)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(mw.Authenticate(dep.Authenticator, dep.UserResolver))

		api.Route("/users", func(ur chi.Router) {
			ur.Options("/", allow("GET,POST,OPTIONS"))
			ur.With(adminOnly).Get("/", dep.UsersHandler.List)
			ur.With(adminOnly).Post("/", dep.UsersHandler.Create)
			ur.With(userOnly).Get("/{id}", dep.UsersHandler.Get)
			ur.With(userOnly).Head("/{id}", dep.UsersHandler.Head)
			ur.With(adminOnly).Delete("/{id}", dep.UsersHandler.Delete)
			ur.With(userOnly).Get("/{id}/ssh_key", dep.UsersHandler.GetSSHKey)
			ur.With(userOnly).Put("/{id}/ssh_key", dep.UsersHandler.SetSSHKey)
			ur.With(userOnly).Delete("/{id}/ssh_key", dep.UsersHandler.RemoveSSHKey)
		})

		api.Route("/templates", func(tr chi.Router) {
			tr.Options("/", allow("GET,POST,OPTIONS"))
			tr.With(userOnly).Get("/", dep.TemplatesHandler.List)
			tr.With(userOnly).Post("/", dep.TemplatesHandler.Create)
			tr.With(userOnly).Get("/{id}", dep.TemplatesHandler.Get)
			tr.With(userOnly).Patch("/{id}", dep.TemplatesHandler.Update)
			tr.With(userOnly).Delete("/{id}", dep.TemplatesHandler.Delete)
		})

		api.Route("/deployments", func(dr chi.Router) {
			dr.Options("/", allow("GET,POST,OPTIONS"))
			dr.With(userOnly).Get("/", dep.DeploymentsHandler.List)
			dr.With(userOnly).Post("/", dep.DeploymentsHandler.Create)
			dr.With(userOnly).Get("/{id}", dep.DeploymentsHandler.Get)
			dr.With(userOnly).Patch("/{id}", dep.DeploymentsHandler.Update)
			dr.With(userOnly).Delete("/{id}", dep.DeploymentsHandler.Delete)

			dr.Route("/{id}/resources", func(rr chi.Router) {
				rr.Options("/", allow("GET,OPTIONS"))
				rr.With(userOnly).Get("/", dep.DeploymentsHandler.ListResources)
				rr.With(userOnly).Get("/{resourceID}", dep.DeploymentsHandler.GetResource)
				rr.With(adminOnly).Delete("/{resourceID}", dep.DeploymentsHandler.DeleteResource)
			})
		})
	})

	return r
}

func allow(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Allow", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}
