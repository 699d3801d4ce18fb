package proxy

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/pario-ai/chatrelay/pkg/config"
	"github.com/pario-ai/chatrelay/pkg/models"
	"github.com/pario-ai/chatrelay/pkg/observability"
	"github.com/pario-ai/chatrelay/pkg/relay"
)

// Response headers set by the relay.
const (
	HeaderCache     = "X-Cache"
	HeaderRequestID = "X-Request-ID"
)

// HealthMessage is the plain-text body of the root health probe.
const HealthMessage = "GPAI backend running"

// RateLimitMessage is returned with 429 responses.
const RateLimitMessage = "Too many requests, please try again later."

const requestIDKey = "request_id"

// Server is the chat relay HTTP front end.
type Server struct {
	cfg     *config.Config
	relay   *relay.Service
	metrics *observability.Metrics
	app     *fiber.App
}

// New creates a Server with all routes and middleware registered. metrics may
// be nil, in which case /metrics is not served.
func New(cfg *config.Config, svc *relay.Service, m *observability.Metrics) *Server {
	s := &Server{cfg: cfg, relay: svc, metrics: m}
	s.app = fiber.New(fiber.Config{
		AppName:               "chatrelay",
		BodyLimit:             cfg.BodyLimit,
		ReadTimeout:           2 * time.Minute,
		WriteTimeout:          2 * time.Minute,
		IdleTimeout:           5 * time.Minute,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())
	s.app.Use(requestid.New(requestid.Config{
		Header:     HeaderRequestID,
		Generator:  uuid.NewString,
		ContextKey: requestIDKey,
	}))
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${locals:request_id} ${status} - ${latency} ${method} ${path} ${error}\n",
		Output: os.Stdout,
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:  s.cfg.CORS.AllowOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, " + HeaderRequestID,
		AllowMethods:  "GET, POST, OPTIONS",
		ExposeHeaders: HeaderCache + ", " + HeaderRequestID,
		MaxAge:        86400,
	}))
}

func (s *Server) setupRoutes() {
	s.app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(HealthMessage)
	})
	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	api := s.app.Group("/api")
	if s.cfg.RateLimit.Max > 0 {
		api.Use(limiter.New(limiter.Config{
			Max:               s.cfg.RateLimit.Max,
			Expiration:        config.RateWindow,
			LimiterMiddleware: limiter.SlidingWindow{},
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				s.relay.RateLimited()
				fiberlog.Warnf("[%s] rate limit exceeded for %s", requestID(c), c.IP())
				return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{Error: RateLimitMessage})
			},
		}))
	}
	api.Post("/chat", s.handleChat)
	api.Get("/stats", s.handleStats)
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	res, err := s.relay.Chat(c.UserContext(), requestID(c), c.Body())
	if err != nil {
		return err
	}
	if res.CacheHit {
		c.Set(HeaderCache, "hit")
	} else {
		c.Set(HeaderCache, "miss")
	}
	return c.JSON(res.Response)
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	recent := c.QueryInt("recent", 0)
	if recent < 0 {
		return models.NewInvalidRequestError("'recent' must not be negative", nil)
	}
	stats, err := s.relay.Stats(c.UserContext(), recent)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

// ListenAndServe starts the server and shuts it down gracefully once ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.cfg.Addr()
	errCh := make(chan error, 1)
	go func() {
		fiberlog.Infof("chatrelay listening on %s", addr)
		errCh <- s.app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		fiberlog.Info("Server shutting down gracefully...")
		return s.app.ShutdownWithTimeout(5 * time.Second)
	case err := <-errCh:
		return err
	}
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// errorHandler renders every error as a JSON body. Relay errors keep their
// category; anything else that is not a fiber error is treated as internal.
func errorHandler(c *fiber.Ctx, err error) error {
	var re *models.RelayError
	if errors.As(err, &re) {
		switch re.Type {
		case models.ErrorTypeInvalidRequest:
			fiberlog.Debugf("[%s] invalid request: %s", requestID(c), re.Message)
		case models.ErrorTypeInternal:
			fiberlog.Errorf("[%s] internal error: %v", requestID(c), re)
		}
		return c.Status(re.StatusCode()).JSON(re.Body())
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}

	fiberlog.Errorf("[%s] unhandled error: %v", requestID(c), err)
	return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{Error: models.InternalErrorMessage})
}
