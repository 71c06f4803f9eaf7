package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/shoptok/internal/authorization"
	"github.com/smallbiznis/shoptok/internal/catalog"
	catalogdomain "github.com/smallbiznis/shoptok/internal/catalog/domain"
	"github.com/smallbiznis/shoptok/internal/clock"
	"github.com/smallbiznis/shoptok/internal/config"
	"github.com/smallbiznis/shoptok/internal/escrow"
	escrowdomain "github.com/smallbiznis/shoptok/internal/escrow/domain"
	"github.com/smallbiznis/shoptok/internal/events"
	"github.com/smallbiznis/shoptok/internal/ledger"
	ledgerdomain "github.com/smallbiznis/shoptok/internal/ledger/domain"
	"github.com/smallbiznis/shoptok/internal/observability"
	obsmiddleware "github.com/smallbiznis/shoptok/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/shoptok/internal/observability/metrics"
	obstracing "github.com/smallbiznis/shoptok/internal/observability/tracing"
	"github.com/smallbiznis/shoptok/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	events.Module,
	ledger.Module,
	catalog.Module,
	escrow.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, m *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ActorHeader:     HeaderActor,
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type ginParams struct {
	fx.In

	ObsCfg  observability.Config
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func registerGin(p ginParams) *gin.Engine {
	if !p.ObsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(p.ObsCfg, p.Metrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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
	clock      clock.Clock
	catalogSvc catalogdomain.Service
	escrowSvc  escrowdomain.Service
	ledgerSvc  ledgerdomain.Service
	limit      gin.HandlerFunc
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Clock      clock.Clock
	CatalogSvc catalogdomain.Service
	EscrowSvc  escrowdomain.Service
	LedgerSvc  ledgerdomain.Service
	Limiter    *ratelimit.ActorLimiter `optional:"true"`
	Metrics    *obsmetrics.Metrics     `optional:"true"`
	Log        *zap.Logger             `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		clock:      p.Clock,
		catalogSvc: p.CatalogSvc,
		escrowSvc:  p.EscrowSvc,
		ledgerSvc:  p.LedgerSvc,
		limit:      RateLimitByActor(p.Limiter, p.Metrics, p.Log),
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")

	// -------- Catalog --------
	api.GET("/products", s.ListProducts)
	api.GET("/products/:id", s.GetProductByID)
	api.POST("/products", ActorRequired(), s.limit, s.CreateProduct)
	api.POST("/products/batch", ActorRequired(), s.limit, s.BatchCreateProducts)
	api.PATCH("/products/:id", ActorRequired(), s.limit, s.UpdateProduct)

	// -------- Purchases --------
	api.GET("/purchases", s.ListPurchases)
	api.GET("/purchases/:id", s.GetPurchaseByID)
	api.POST("/purchases", ActorRequired(), s.limit, s.CreatePurchase)
	api.POST("/purchases/:id/status", ActorRequired(), s.limit, s.UpdatePurchaseStatus)
	api.POST("/purchases/:id/resolve", ActorRequired(), s.limit, s.ResolveDispute)

	// -------- Settings --------
	api.GET("/settings", s.GetSettings)
	api.PUT("/settings/fee", ActorRequired(), s.limit, s.UpdatePlatformFee)
	api.PUT("/settings/escrow-period", ActorRequired(), s.limit, s.UpdateEscrowPeriod)

	// -------- Wallets --------
	api.GET("/wallets/:owner", s.GetWallet)
	api.POST("/wallets/:owner/deposit", ActorRequired(), s.limit, s.Deposit)

	api.GET("/escrow/summary", s.EscrowSummary)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
