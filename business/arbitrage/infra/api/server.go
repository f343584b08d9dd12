// Package api serves the scanner's query API and execution event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/app"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
)

const (
	defaultLimit = 50
	maxLimit     = 500
	writeTimeout = 5 * time.Second
)

// Scanner is the part of the scanner the API reads.
type Scanner interface {
	PendingOpportunities() []app.PendingOpportunity
	Subscribe() (<-chan domain.ExecutionEvent, func())
}

// RiskReader exposes the guard's accounting.
type RiskReader interface {
	Snapshot() domain.RiskState
}

// Response is the envelope for every JSON reply.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// RiskView is the /api/risk payload.
type RiskView struct {
	domain.RiskState
	Halted bool `json:"halted"`
}

// Server is the echo HTTP server.
type Server struct {
	echo    *echo.Echo
	port    int
	scanner Scanner
	store   app.ExecutionStore
	risk    RiskReader
	logger  logger.LoggerInterface
	now     func() time.Time
}

// NewServer builds the router. store may be nil, in which case
// /api/executions answers 404.
func NewServer(port int, scanner Scanner, store app.ExecutionStore, risk RiskReader, log logger.LoggerInterface) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		port:    port,
		scanner: scanner,
		store:   store,
		risk:    risk,
		logger:  log,
		now:     time.Now,
	}

	e.Use(middleware.Recover())
	e.Use(s.requestLogging)

	g := e.Group("/api")
	g.GET("/opportunities", s.opportunities)
	g.GET("/executions", s.executions)
	g.GET("/risk", s.riskState)
	g.GET("/events", s.events)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(context.Background(), "api server stopped", "error", err)
		}
	}()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) opportunities(c echo.Context) error {
	return ok(c, s.scanner.PendingOpportunities())
}

func (s *Server) executions(c echo.Context) error {
	if s.store == nil {
		return fail(c, http.StatusNotFound, "execution store disabled")
	}

	limit := defaultLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fail(c, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxLimit)
	}

	recs, err := s.store.RecentExecutions(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error(c.Request().Context(), "list executions failed", "error", err)
		return fail(c, statusFor(err), string(apperror.GetCode(err)))
	}
	return ok(c, recs)
}

func (s *Server) riskState(c echo.Context) error {
	st := s.risk.Snapshot()
	return ok(c, RiskView{RiskState: st, Halted: st.Halted(s.now())})
}

// events upgrades to a websocket and streams execution events until the
// client goes away. Events the client is too slow for are dropped by the hub.
func (s *Server) events(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	defer conn.CloseNow()

	events, cancel := s.scanner.Subscribe()
	defer cancel()

	ctx := conn.CloseRead(c.Request().Context())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, open := <-events:
			if !open {
				conn.Close(websocket.StatusGoingAway, "event stream closed")
				return nil
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, ev)
			wcancel()
			if err != nil {
				s.logger.Debug(ctx, "event subscriber dropped", "error", err)
				return nil
			}
		}
	}
}

func (s *Server) requestLogging(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		s.logger.Debug(c.Request().Context(), "api request",
			"method", c.Request().Method,
			"path", c.Path(),
			"status", c.Response().Status,
			"duration", time.Since(start))
		return err
	}
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Response{Status: http.StatusOK, Message: http.StatusText(http.StatusOK), Data: data})
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, Response{Status: status, Message: msg})
}

func statusFor(err error) int {
	switch {
	case apperror.HasCode(err, apperror.CodeNotFound):
		return http.StatusNotFound
	case apperror.HasCode(err, apperror.CodeInvalidInput):
		return http.StatusBadRequest
	case apperror.IsRetryable(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
