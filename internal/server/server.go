package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/audio"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/broadcast"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/config"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/correlation"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/gateway"
	redisclient "github.com/swiftraccoon/sdrTrunkTranscription/internal/redis"
)

type Server struct {
	echo           *echo.Echo
	config         *config.Config
	gateway        *gateway.Gateway
	pipeline       *broadcast.Pipeline
	coordinator    *audio.Coordinator
	transcriptions domain.TranscriptionStore
	pool           *pgxpool.Pool
	redis          *redisclient.Client
	clock          clockwork.Clock
	startTime      time.Time

	// last-25 upload signatures, guarding against uploader retries
	dedupMu   sync.Mutex
	processed []uploadSignature
}

func NewServer(cfg *config.Config, gw *gateway.Gateway, pipeline *broadcast.Pipeline, coordinator *audio.Coordinator, transcriptions domain.TranscriptionStore, pool *pgxpool.Pool, rdb *redisclient.Client, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(correlationMiddleware())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:           e,
		config:         cfg,
		gateway:        gw,
		pipeline:       pipeline,
		coordinator:    coordinator,
		transcriptions: transcriptions,
		pool:           pool,
		redis:          rdb,
		clock:          clock,
		startTime:      clock.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// correlationMiddleware attaches a fresh correlation id to every request so
// log lines from one request can be tied together.
func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := correlation.WithID(c.Request().Context(), correlation.NewID())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
