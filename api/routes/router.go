// api/routes/router.go
package routes

import (
	"context"
	"net/http"
	"time"

	"eventdraw/internal/events"
	"eventdraw/internal/lottery"
	"eventdraw/internal/shared/config"
	"eventdraw/internal/shared/database"
	"eventdraw/internal/shared/middleware"
	"eventdraw/pkg/cache"
	"eventdraw/pkg/logger"
	"eventdraw/pkg/metrics"
	"eventdraw/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// Router holds all route dependencies
type Router struct {
	ctx        context.Context
	config     *config.Config
	db         *database.DB
	log        *logger.Logger
	metrics    *metrics.Manager
	dispatcher lottery.NotificationDispatcher

	store         events.Store
	locker        events.Locker
	eventService  events.Service
	lotteryEngine *lottery.Engine
}

// NewRouter wires the domain services onto whatever backends db has open.
// Without Postgres events live in memory; without Redis locks and rate limits are per process.
// Background housekeeping started here stops when ctx is done.
func NewRouter(ctx context.Context, cfg *config.Config, db *database.DB, log *logger.Logger, m *metrics.Manager, dispatcher lottery.NotificationDispatcher) *Router {
	r := &Router{
		ctx:        ctx,
		config:     cfg,
		db:         db,
		log:        log,
		metrics:    m,
		dispatcher: dispatcher,
	}

	if db.PostgreSQL != nil {
		r.store = events.NewRepository(db.PostgreSQL)
	} else {
		r.store = events.NewMemoryStore()
	}
	if db.Redis != nil {
		r.locker = events.NewRedisLocker(db.Redis, cfg.Lottery.LockTTL, cfg.Lottery.LockWait)
	} else {
		r.locker = events.NewLocalLocker()
	}

	r.eventService = events.NewService(r.store, r.locker, log)
	r.eventService.SetMetrics(m)
	if db.Redis != nil {
		r.eventService.SetCacheService(cache.NewService(db.Redis))
	}

	r.lotteryEngine = lottery.NewEngine(r.store, r.locker, dispatcher,
		lottery.WithLogger(log),
		lottery.WithMetrics(m),
		lottery.WithInvalidator(r.eventService),
		lottery.WithNotifyTimeout(cfg.Lottery.NotifyTimeout),
	)
	return r
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		auth := middleware.JWTAuth(r.config.JWT.Secret)
		organizer := []gin.HandlerFunc{auth, middleware.RequireOrganizer()}

		events.SetupEventRoutes(api, events.NewController(r.eventService), events.Guards{
			Public:    []gin.HandlerFunc{middleware.OptionalAuth(r.config.JWT.Secret)},
			Entrant:   []gin.HandlerFunc{auth},
			Organizer: organizer,
			JoinLimit: r.joinLimit(),
		})
		lottery.SetupLotteryRoutes(api, lottery.NewController(r.lotteryEngine), organizer...)
	}
}

func (r *Router) joinLimit() gin.HandlerFunc {
	if !r.config.RateLimit.Enabled {
		return nil
	}
	limitCfg := &ratelimit.Config{
		Enabled:        true,
		WindowDuration: r.config.RateLimit.WindowDuration,
		Requests:       r.config.RateLimit.JoinRequests,
		WhitelistedIPs: r.config.RateLimit.WhitelistedIPs,
	}
	var limiter ratelimit.Limiter
	if r.db.Redis != nil {
		limiter = ratelimit.NewRedisLimiter(r.db.Redis, limitCfg)
	} else {
		local := ratelimit.NewLocalLimiter(limitCfg)
		local.StartJanitor(r.ctx, time.Minute)
		limiter = local
	}
	return ratelimit.Middleware(limiter, "join", limitCfg.WhitelistedIPs, r.log)
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "eventdraw",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "eventdraw",
			"store":     r.config.StoreDriver,
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	if r.metrics != nil {
		engine.GET("/metrics", gin.WrapH(r.metrics.Handler()))
	}
}
