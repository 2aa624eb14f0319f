package main

import (
	"github.com/diewo77/go-tasks/auth"
	"github.com/diewo77/go-tasks/internal/handlers"
	"github.com/diewo77/go-tasks/internal/middleware"
	"github.com/diewo77/go-tasks/internal/policy"
	"github.com/diewo77/go-tasks/internal/services"
	"gorm.io/gorm"
)

// RouterConfig holds configured handlers and middleware for the application.
type RouterConfig struct {
	Gate          *policy.Gate
	Authenticator *auth.Authenticator
	Limiter       *middleware.RateLimiter
	Metrics       *middleware.Metrics

	AuthHandler     *handlers.AuthHandler
	UserHandler     *handlers.UserHandler
	TaskHandler     *handlers.TaskHandler
	CategoryHandler *handlers.CategoryHandler
	PriorityHandler *handlers.PriorityHandler

	Accounts *services.AccountService
}

// NewRouterConfig wires the gate, services and handlers together.
// limiter and metrics may be nil.
func NewRouterConfig(db *gorm.DB, issuer *auth.Issuer, limiter *middleware.RateLimiter, metrics *middleware.Metrics) *RouterConfig {
	g := policy.NewGate()

	accounts := services.NewAccountService(db, g, issuer)
	tasks := services.NewTaskService(db, g)
	categories := services.NewCategoryService(db, g)
	priorities := services.NewPriorityService(db, g)

	if metrics == nil {
		metrics = middleware.NewMetrics()
	}

	return &RouterConfig{
		Gate:          g,
		Authenticator: auth.NewAuthenticator(issuer, accounts.VerifyToken),
		Limiter:       limiter,
		Metrics:       metrics,

		AuthHandler:     handlers.NewAuthHandler(accounts),
		UserHandler:     handlers.NewUserHandler(accounts),
		TaskHandler:     handlers.NewTaskHandler(tasks, accounts),
		CategoryHandler: handlers.NewCategoryHandler(categories, accounts),
		PriorityHandler: handlers.NewPriorityHandler(priorities, accounts),

		Accounts: accounts,
	}
}
