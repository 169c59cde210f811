// Package opsapi is a read-only HTTP observability surface for a running
// WLS: health, the registered world list, and the bureaus currently
// spawned per world. It exposes no mutation endpoints — provisioning and
// overrides are operator actions against the database, not this API.
package opsapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"vscp/internal/manager"
	"vscp/internal/wrlstore"
)

// Server is the Echo application serving the ops API.
type Server struct {
	echo      *echo.Echo
	store     *wrlstore.Store
	managers  func() map[string]*manager.Manager
	startedAt time.Time
}

// New constructs an Echo app with the ops routes registered. managers is
// called on every request so the handler always sees the WLS's current
// manager set rather than a stale snapshot taken at startup.
func New(store *wrlstore.Store, managers func() map[string]*manager.Manager) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())
	e.HTTPErrorHandler = jsonErrorHandler

	s := &Server{echo: e, store: store, managers: managers, startedAt: time.Now()}
	s.registerRoutes()
	return s
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			log.Printf("[opsapi] %s %s -> %d (%s)",
				c.Request().Method, c.Request().URL.Path, c.Response().Status, time.Since(start))
			return nil
		}
	}
}

func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if s, ok := he.Message.(string); ok {
			msg = s
		}
	}
	if !c.Response().Committed {
		c.JSON(code, map[string]string{"error": msg})
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/api/wrls", s.handleWRLs)
	s.echo.GET("/api/bureaus", s.handleBureaus)
}

// Run starts the ops API and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutCtx)
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: humanize.Time(s.startedAt),
	})
}

type wrlResponse struct {
	Name       string `json:"name"`
	MaxBureaus int    `json:"max_bureaus"`
	MaxUsers   int    `json:"max_users"`
	Bureaus    int    `json:"bureaus_running"`
}

func (s *Server) handleWRLs(c echo.Context) error {
	wrls, err := s.store.List()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	mgrs := s.managers()

	out := make([]wrlResponse, 0, len(wrls))
	for _, w := range wrls {
		running := 0
		if m, ok := mgrs[w.Name]; ok {
			running = m.BureauCount()
		}
		out = append(out, wrlResponse{
			Name:       w.Name,
			MaxBureaus: w.MaxBureaus,
			MaxUsers:   w.MaxUsers,
			Bureaus:    running,
		})
	}
	return c.JSON(http.StatusOK, out)
}

type bureauResponse struct {
	InstanceID string `json:"instance_id"`
	WRL        string `json:"wrl"`
	Port       uint16 `json:"port"`
	UserCount  int    `json:"user_count"`
	Uptime     string `json:"uptime"`
	StartTime  string `json:"start_time"`
}

func (s *Server) handleBureaus(c echo.Context) error {
	mgrs := s.managers()

	out := make([]bureauResponse, 0)
	for _, m := range mgrs {
		for _, b := range m.Bureaus() {
			out = append(out, bureauResponse{
				InstanceID: b.ID.String(),
				WRL:        b.Options.WRL,
				Port:       b.Port(),
				UserCount:  b.UserCount(),
				Uptime:     humanize.Time(b.StartTime()),
				StartTime:  b.StartTime().UTC().Format(time.RFC3339),
			})
		}
	}
	return c.JSON(http.StatusOK, out)
}
