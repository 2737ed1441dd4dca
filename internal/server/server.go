package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockai-router/internal/config"
	"stockai-router/internal/console"
	"stockai-router/internal/dispatch"
	"stockai-router/internal/provider"
	"stockai-router/internal/translator"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeout        = 90 * time.Second
	idleTimeout         = 120 * time.Second
)

type Server struct {
	cfg        config.Config
	dispatcher *dispatch.Dispatcher
	app        *echo.Echo
	address    string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, d *dispatch.Dispatcher) (*Server, error) {
	if d == nil {
		return nil, errors.New("dispatcher must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv := &Server{
		cfg:        cfg,
		dispatcher: d,
		app:        e,
		address:    fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the routed echo instance.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	console.PrintBanner(os.Stdout, s.cfg.Server.Port, s.dispatcher.CurrentProvider())
	slog.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.app.GET("/v1/providers", s.handleListProviders)
	s.app.PUT("/v1/providers/current", s.handleSwitchProvider)
	s.app.POST("/v1/chat", s.handleChat)
	s.app.POST("/v1/embeddings", s.handleEmbeddings)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type providerModels struct {
	Chat      []string `json:"chat"`
	Embedding []string `json:"embedding"`
}

type providerEntry struct {
	Name         string         `json:"name"`
	DefaultModel string         `json:"default_model"`
	Models       providerModels `json:"models"`
}

type providersResponse struct {
	Providers []providerEntry `json:"providers"`
	Current   string          `json:"current"`
	Default   string          `json:"default"`
}

func (s *Server) providersBody() providersResponse {
	catalog := s.dispatcher.Catalog()
	entries := make([]providerEntry, 0, len(catalog))
	for _, info := range catalog {
		embedding := info.Models.Embedding
		if embedding == nil {
			embedding = []string{}
		}
		entries = append(entries, providerEntry{
			Name:         info.Name,
			DefaultModel: info.DefaultModel,
			Models:       providerModels{Chat: info.Models.Chat, Embedding: embedding},
		})
	}
	return providersResponse{
		Providers: entries,
		Current:   s.dispatcher.CurrentProvider(),
		Default:   s.dispatcher.DefaultProvider(),
	}
}

func (s *Server) handleListProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, s.providersBody())
}

type switchProviderRequest struct {
	Provider string `json:"provider"`
}

func (s *Server) handleSwitchProvider(c echo.Context) error {
	var req switchProviderRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	name := strings.ToLower(strings.TrimSpace(req.Provider))
	if name == "" {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "provider must not be empty",
			Type:    "invalid_request_error",
		}
	}

	if err := s.dispatcher.SwitchProvider(name); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, s.providersBody())
}

func (s *Server) handleChat(c echo.Context) error {
	var req translator.ChatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	resp, err := s.dispatcher.SubmitChat(c.Request().Context(), req.ToCanonical())
	if err != nil {
		return toHTTPError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "provider returned an empty response",
			Type:    "provider_error",
		}
	}

	fallbackID := "chatcmpl-" + uuid.NewString()
	return c.JSON(http.StatusOK, translator.FromCanonicalChat(fallbackID, time.Now().Unix(), resp))
}

func (s *Server) handleEmbeddings(c echo.Context) error {
	var req translator.EmbeddingsRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	resp, err := s.dispatcher.SubmitEmbedding(c.Request().Context(), req.ToCanonical())
	if err != nil {
		return toHTTPError(err)
	}
	if resp == nil {
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "provider returned an empty response",
			Type:    "provider_error",
		}
	}

	return c.JSON(http.StatusOK, translator.FromCanonicalEmbeddings(resp))
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
				Type:    "invalid_request_error",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
			Type:    "invalid_request_error",
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
			Type:    "invalid_request_error",
		}
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType, code string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	payload.Error.Code = code
	return c.JSON(status, payload)
}

func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type, reqErr.Code)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprint(he.Message), "invalid_request_error", "")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error", "")
}

// toHTTPError maps dispatch failures onto the JSON error contract. Caller
// mistakes become 400s; any other failure is a 500 carrying the message.
func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	switch {
	case errors.Is(err, dispatch.ErrInvalidRequest):
		return requestError{Status: http.StatusBadRequest, Message: err.Error(), Type: "invalid_request_error"}
	case errors.Is(err, provider.ErrUnknownProvider):
		return requestError{Status: http.StatusBadRequest, Message: err.Error(), Type: "invalid_request_error", Code: "unknown_provider"}
	case errors.Is(err, provider.ErrUnsupportedOperation):
		return requestError{Status: http.StatusBadRequest, Message: err.Error(), Type: "invalid_request_error", Code: "unsupported_operation"}
	}

	code := ""
	var callErr *provider.VendorCallError
	if errors.As(err, &callErr) {
		code = callErr.Kind.String()
	}
	return requestError{
		Status:  http.StatusInternalServerError,
		Message: err.Error(),
		Type:    "provider_error",
		Code:    code,
	}
}
