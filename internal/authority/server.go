package authority

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Kh3rwa1/ArcadiaApp/internal/authority/middleware"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/config"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/monitoring"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/tracing"
)

// Server is the reference authority HTTP server.
type Server struct {
	router  *gin.Engine
	repo    *Repository
	cfg     config.AuthorityConfig
	logger  *zap.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
}

// New builds the router. The catalog is read from cfg.Catalog, or the
// built-in catalog when unset.
func New(cfg config.AuthorityConfig, development bool, logger *zap.Logger, metrics *monitoring.Metrics) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 10
	}

	catalog, err := LoadCatalog(cfg.Catalog)
	if err != nil {
		return nil, err
	}
	logger = logger.Named("authority")

	if !development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	tracer := tracing.New("authority", logger)
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(cfg.RateLimit))
	}

	repo := NewRepository()
	h := NewHandlers(repo, catalog, cfg.PageSize, logger)

	if cfg.GamesDir != "" {
		router.Static("/games", cfg.GamesDir)
	}
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	v1.GET("/feed", h.Feed)
	v1.GET("/progress/:id", h.GetProgress)
	v1.POST("/progress/save", h.SaveProgress)
	v1.POST("/progress/batch", h.SaveBatch)
	v1.POST("/analytics/event", h.TrackEvent)
	v1.POST("/analytics/track", h.TrackEvent)
	v1.POST("/analytics/batch", h.TrackBatch)

	logger.Info("Authority initialized", zap.Int("games", len(catalog.Games)))
	return &Server{router: router, repo: repo, cfg: cfg, logger: logger, metrics: metrics, tracer: tracer}, nil
}

// Handler exposes the router, for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Repository exposes the backing store.
func (s *Server) Repository() *Repository {
	return s.repo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.tracer.Close()
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
