package main

import (
	"context"
	"net/http"
	"time"

	"github.com/diewo77/go-tasks/auth"
	"github.com/diewo77/go-tasks/httpx"
	"github.com/diewo77/go-tasks/internal/middleware"
	"gorm.io/gorm"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux       *http.ServeMux
	db        *gorm.DB
	routerCfg *RouterConfig
	handler   http.Handler
}

// NewApp creates a new application with all routes configured.
func NewApp(db *gorm.DB, routerCfg *RouterConfig) *App {
	app := &App{
		mux:       http.NewServeMux(),
		db:        db,
		routerCfg: routerCfg,
	}
	app.setupRoutes()

	// Global middleware: metrics, request log, bearer token identity.
	app.handler = routerCfg.Metrics.Instrument(app.mux,
		middleware.Logging(
			routerCfg.Authenticator.Middleware(app.mux)))
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// setupRoutes configures all application routes.
func (a *App) setupRoutes() {
	ah := a.routerCfg.AuthHandler
	uh := a.routerCfg.UserHandler
	limit := a.routerCfg.Limiter

	// Public routes
	a.mux.HandleFunc("GET /healthz", a.healthz)
	a.mux.Handle("GET /metrics", a.routerCfg.Metrics.Handler())
	a.mux.Handle("POST /auth/token", limit.Limit("login", http.HandlerFunc(ah.Login)))
	a.mux.Handle("POST /users", limit.Limit("register", http.HandlerFunc(ah.Signup)))

	// Account actions
	a.mux.Handle("GET /users/me", a.requireAuth(uh.Me))
	a.mux.Handle("PATCH /users/me", a.requireAuth(uh.UpdateMe))
	a.mux.Handle("DELETE /users/me", a.requireAuth(uh.DeactivateMe))
	a.mux.Handle("POST /users/change_password", a.requireAuth(uh.ChangePassword))
	a.mux.Handle("POST /users/logout", a.requireAuth(ah.Logout))
	a.mux.Handle("POST /users/reset_password", a.requireAuth(uh.ResetPassword))

	// Admin user management; the services refuse non-admins.
	a.mux.Handle("GET /users", a.requireAuth(uh.List))
	a.mux.Handle("GET /users/{id}", a.requireAuth(uh.View))
	a.mux.Handle("PATCH /users/{id}", a.requireAuth(uh.Update))
	a.mux.Handle("PUT /users/{id}", a.requireAuth(uh.Update))
	a.mux.Handle("DELETE /users/{id}", a.requireAuth(uh.Delete))

	th := a.routerCfg.TaskHandler
	a.mux.Handle("GET /tasks", a.requireAuth(th.List))
	a.mux.Handle("POST /tasks", a.requireAuth(th.Create))
	a.mux.Handle("GET /tasks/{id}", a.requireAuth(th.View))
	a.mux.Handle("PATCH /tasks/{id}", a.requireAuth(th.Update))
	a.mux.Handle("PUT /tasks/{id}", a.requireAuth(th.Update))
	a.mux.Handle("DELETE /tasks/{id}", a.requireAuth(th.Delete))

	ch := a.routerCfg.CategoryHandler
	a.mux.Handle("GET /categories", a.requireAuth(ch.List))
	a.mux.Handle("POST /categories", a.requireAuth(ch.Create))
	a.mux.Handle("GET /categories/{id}", a.requireAuth(ch.View))
	a.mux.Handle("PATCH /categories/{id}", a.requireAuth(ch.Update))
	a.mux.Handle("PUT /categories/{id}", a.requireAuth(ch.Update))
	a.mux.Handle("DELETE /categories/{id}", a.requireAuth(ch.Delete))

	ph := a.routerCfg.PriorityHandler
	a.mux.Handle("GET /priorities", a.requireAuth(ph.List))
	a.mux.Handle("POST /priorities", a.requireAuth(ph.Create))
	a.mux.Handle("GET /priorities/{id}", a.requireAuth(ph.View))
	a.mux.Handle("PATCH /priorities/{id}", a.requireAuth(ph.Update))
	a.mux.Handle("PUT /priorities/{id}", a.requireAuth(ph.Update))
	a.mux.Handle("DELETE /priorities/{id}", a.requireAuth(ph.Delete))
}

// requireAuth wraps a handler to require authentication.
func (a *App) requireAuth(next http.HandlerFunc) http.Handler {
	return auth.RequireAuth(next)
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := a.db.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
