package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/forgeops/automaton/pkg/protocol"
)

// route is a registered webhook endpoint.
type route struct {
	method   string
	callback protocol.TriggerCallback
}

// Server hosts all webhook trigger endpoints on one HTTP listener. Triggers
// register their path with the server; the server dispatches matching
// requests to the trigger's callback. It is shared by every webhook trigger
// built from the same factory.
type Server struct {
	port   int
	logger *slog.Logger

	mu      sync.RWMutex
	routes  map[string]*route
	app     *fiber.App
	started bool
}

// NewServer creates a webhook server listening on the given port once started.
func NewServer(port int, logger *slog.Logger) *Server {
	return &Server{
		port:   port,
		logger: logger.With("module", "webhook_server"),
		routes: make(map[string]*route),
	}
}

// Register binds a path and method to a trigger callback. Registering an
// already-bound path is an error.
func (s *Server) Register(path, method string, callback protocol.TriggerCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.routes[path]; exists {
		return fmt.Errorf("webhook path %s already registered", path)
	}

	s.routes[path] = &route{method: strings.ToUpper(method), callback: callback}
	s.logger.Info("Registered webhook endpoint", "path", path, "method", method)

	return nil
}

// Unregister removes the path binding, if present.
func (s *Server) Unregister(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.routes[path]; exists {
		delete(s.routes, path)
		s.logger.Info("Unregistered webhook endpoint", "path", path)
	}
}

// Start begins listening. Safe to call more than once; only the first call
// starts the listener.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.app = fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	})
	s.app.All("/*", s.dispatch)

	go func() {
		s.logger.Info("Starting webhook server", "port", s.port)

		if err := s.app.Listen(":"+strconv.Itoa(s.port), fiber.ListenConfig{
			DisableStartupMessage: true,
		}); err != nil {
			s.logger.Error("Webhook server stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()

		if err := s.Stop(context.Background()); err != nil {
			s.logger.Error("Failed to stop webhook server", "error", err)
		}
	}()

	s.started = true

	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.app == nil {
		return nil
	}

	s.started = false

	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) dispatch(c fiber.Ctx) error {
	s.mu.RLock()
	endpoint, exists := s.routes[c.Path()]
	s.mu.RUnlock()

	if !exists {
		problem := problems.NewStatusProblem(fiber.StatusNotFound).
			WithInstance(c.Path()).
			WithType("webhook_not_found").
			WithDetail("no webhook registered for this path")

		return c.Status(fiber.StatusNotFound).JSON(problem)
	}

	if c.Method() != endpoint.method {
		problem := problems.NewStatusProblem(fiber.StatusMethodNotAllowed).
			WithInstance(c.Path()).
			WithType("method_not_allowed").
			WithDetail(fmt.Sprintf("webhook expects %s", endpoint.method))

		return c.Status(fiber.StatusMethodNotAllowed).JSON(problem)
	}

	var body map[string]any
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			body = map[string]any{"raw": string(c.Body())}
		}
	}

	headers := make(map[string]string)
	for key, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	event := protocol.TriggerEvent{
		TriggerType: triggerType,
		Data: map[string]any{
			"path":    c.Path(),
			"method":  c.Method(),
			"body":    body,
			"headers": headers,
		},
	}

	if err := endpoint.callback(c.Context(), event); err != nil {
		s.logger.Error("Webhook callback failed", "path", c.Path(), "error", err)

		problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
			WithInstance(c.Path()).
			WithType("callback_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}
