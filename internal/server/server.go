package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openbilling/credits/internal/config"
	entitydomain "github.com/openbilling/credits/internal/entity/domain"
	"github.com/openbilling/credits/internal/metric"
	obsmetrics "github.com/openbilling/credits/internal/observability/metrics"
	"github.com/openbilling/credits/internal/ratelimit"
	tsdomain "github.com/openbilling/credits/internal/timeseries/domain"
	"github.com/openbilling/credits/internal/worker"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(Logging(log.Named("http")))
	return r
}

// Server owns the HTTP surface: the line-protocol ingest relay and the
// read-only reporting API.
type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	queue    *worker.Queue
	limiter  *ratelimit.WriteLimiter
	registry *metric.Registry
	entities entitydomain.Store
	history  tsdomain.Store
	metrics  *obsmetrics.Metrics
	log      *zap.Logger
}

type Params struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Queue    *worker.Queue
	Limiter  *ratelimit.WriteLimiter `optional:"true"`
	Registry *metric.Registry
	Entities entitydomain.Store
	History  tsdomain.Store
	Metrics  *obsmetrics.Metrics
	Log      *zap.Logger
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		queue:    p.Queue,
		limiter:  p.Limiter,
		registry: p.Registry,
		entities: p.Entities,
		history:  p.History,
		metrics:  p.Metrics,
		log:      p.Log.Named("server"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/ping", s.Ping)
	s.engine.POST("/write", s.Write)

	api := s.engine.Group("/api")
	api.GET("/metrics", s.ListMetrics)
	api.POST("/costs_per_hour", s.CostsPerHour)
	api.GET("/credits_history/:entity", s.CreditsHistory)
}

func (s *Server) Ping(c *gin.Context) {
	c.String(http.StatusOK, "Pong")
}

func run(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.ListenAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
