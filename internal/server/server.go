package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/invosync/internal/account"
	accountdomain "github.com/smallbiznis/invosync/internal/account/domain"
	"github.com/smallbiznis/invosync/internal/broadcast"
	"github.com/smallbiznis/invosync/internal/clock"
	"github.com/smallbiznis/invosync/internal/config"
	"github.com/smallbiznis/invosync/internal/event"
	eventdomain "github.com/smallbiznis/invosync/internal/event/domain"
	"github.com/smallbiznis/invosync/internal/fatture"
	"github.com/smallbiznis/invosync/internal/jobqueue"
	"github.com/smallbiznis/invosync/internal/ratelimit"
	"github.com/smallbiznis/invosync/internal/resource"
	"github.com/smallbiznis/invosync/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/invosync/internal/subscription/domain"
	"github.com/smallbiznis/invosync/internal/webhook"
	webhookservice "github.com/smallbiznis/invosync/internal/webhook/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	account.Module,
	subscription.Module,
	event.Module,
	resource.Module,
	fatture.Module,
	jobqueue.Module,
	webhook.Module,
	ratelimit.Module,
	broadcast.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())
	r.HandleMethodNotAllowed = true

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	accountSvc accountdomain.Service
	subSvc     subscriptiondomain.Service
	eventRepo  eventdomain.Repository
	webhookSvc webhookservice.Service
	limiter    ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	AccountSvc accountdomain.Service
	SubSvc     subscriptiondomain.Service
	EventRepo  eventdomain.Repository
	WebhookSvc webhookservice.Service
	Limiter    ratelimit.Limiter
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("server"),
		genID:      p.GenID,
		clock:      p.Clock,
		accountSvc: p.AccountSvc,
		subSvc:     p.SubSvc,
		eventRepo:  p.EventRepo,
		webhookSvc: p.WebhookSvc,
		limiter:    p.Limiter,
	}

	svc.engine.Use(RequestLogger(svc.log))
	svc.registerWebhookRoutes()
	svc.registerConnectRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	hooks := s.engine.Group("/webhooks", s.WebhookRateLimit())

	hooks.GET("/:account_id/:event_group", s.WebhookHandshake)
	hooks.POST("/:account_id/:event_group", s.WebhookNotification)
	s.engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
}

func (s *Server) registerConnectRoutes() {
	connect := s.engine.Group("/connect")

	connect.GET("", s.ConnectRedirect)
	connect.GET("/callback", s.ConnectCallback)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Accounts --------
	api.GET("/accounts", s.ListAccounts)
	api.GET("/accounts/:id", s.GetAccountByID)
	api.DELETE("/accounts/:id", s.DisconnectAccount)
	api.GET("/accounts/:id/events", s.ListAccountEvents)

	// -------- Subscriptions --------
	api.GET("/accounts/:id/subscriptions", s.ListSubscriptions)
	api.POST("/accounts/:id/subscriptions", s.CreateSubscription)
	api.DELETE("/subscriptions/:id", s.DeactivateSubscription)
}
