package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
	"pdf-rag/internal/rag"
)

const Version = "1.0.0"

// Pipeline is the document analyzer the handlers delegate to.
type Pipeline interface {
	ProcessPDF(ctx context.Context, filename string, content []byte) (*models.UploadResult, error)
	Query(ctx context.Context, question string, opts rag.QueryOptions) (*models.Answer, error)
	Documents(ctx context.Context) (*models.DocumentsInfo, error)
	Clear(ctx context.Context) error
	Health(ctx context.Context) (models.Health, error)
}

// Initializer builds the pipeline. The returned function releases its resources.
type Initializer func(ctx context.Context) (Pipeline, func() error, error)

// state is swapped in once startup finishes. A nil state means still initializing.
type state struct {
	pipeline Pipeline
	closer   func() error
	err      error
}

type Server struct {
	app   *fiber.App
	cfg   *config.Config
	state atomic.Pointer[state]

	// guards the hand-off between SetPipeline and Shutdown
	mu       sync.Mutex
	shutdown bool
}

func New(cfg *config.Config) *Server {
	s := &Server{cfg: cfg}

	s.app = fiber.New(fiber.Config{
		AppName:      "pdf-rag",
		BodyLimit:    cfg.Server.BodyLimit * 1024 * 1024,
		ErrorHandler: errorHandler,
	})

	s.app.Use(recover.New())
	s.app.Use(requestLogger())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
	}))

	s.Register(s.app)
	return s
}

func (s *Server) App() *fiber.App { return s.app }

// Start runs init in the background. Requests that need the pipeline get
// 503 until it completes.
func (s *Server) Start(ctx context.Context, init Initializer) {
	go func() {
		pipeline, closer, err := init(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Error initializing service")
			s.state.Store(&state{err: err})
			return
		}
		s.SetPipeline(pipeline, closer)
	}()
}

// SetPipeline marks the server ready. After Shutdown the pipeline is
// released at once instead.
func (s *Server) SetPipeline(p Pipeline, closer func() error) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		if closer != nil {
			if err := closer(); err != nil {
				log.Error().Err(err).Msg("Error releasing pipeline initialized after shutdown")
			}
		}
		return
	}
	s.state.Store(&state{pipeline: p, closer: closer})
	s.mu.Unlock()
	log.Info().Msg("Service initialized")
}

// pipeline returns the ready pipeline, or nil.
func (s *Server) pipeline() Pipeline {
	st := s.state.Load()
	if st == nil || st.err != nil {
		return nil
	}
	return st.pipeline
}

// Listen blocks serving on the configured address.
func (s *Server) Listen() error {
	addr := s.cfg.Addr()
	log.Info().Str("addr", addr).Msg("Listening")
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting requests and releases the pipeline.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return err
	}
	s.shutdown = true
	st := s.state.Load()
	s.mu.Unlock()

	if st != nil && st.closer != nil {
		err = errors.Join(err, st.closer())
	}
	return err
}

func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	detail := "Internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		detail = fe.Message
	} else {
		log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled error")
	}
	return c.Status(code).JSON(fiber.Map{"detail": detail})
}

// requestLogger logs one line per request. Handler errors are rendered here
// so the logged status is the one sent.
func requestLogger() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		method, path := c.Method(), c.Path()

		if err := c.Next(); err != nil {
			if herr := errorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.Str("method", method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("Request")
		return nil
	}
}
