// Package httpapi is the optional status and introspection API. It observes
// the registry, counters, and event feed; the voice protocol never depends
// on it.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"golos/server/internal/core"
	"golos/server/internal/events"
	"golos/server/internal/metrics"
)

// Server is the Echo application.
type Server struct {
	echo     *echo.Echo
	reg      *core.Registry
	counters *metrics.Counters
	feed     *events.Hub
	started  time.Time
}

// New constructs the Echo app with REST, metrics, and event-feed routes.
// feed may be nil, which disables /ws.
func New(reg *core.Registry, counters *metrics.Counters, feed *events.Hub) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("status api request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		reg:      reg,
		counters: counters,
		feed:     feed,
		started:  time.Now(),
	}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/state", s.handleState)
	s.echo.GET("/api/rooms", s.handleRooms)

	prom := prometheus.NewRegistry()
	prom.MustRegister(metrics.NewCollector(s.reg, s.counters))
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(prom, promhttp.HandlerOpts{})))

	if s.feed != nil {
		s.echo.GET("/ws", s.handleEvents)
	}
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
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
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthResponse struct {
	Status       string `json:"status"`
	Participants int    `json:"participants"`
	Rooms        int    `json:"rooms"`
	Uptime       string `json:"uptime"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:       "ok",
		Participants: s.reg.ParticipantCount(),
		Rooms:        s.reg.RoomCount(),
		Uptime:       time.Since(s.started).Round(time.Second).String(),
	})
}

type memberResponse struct {
	Name  string `json:"name"`
	Media bool   `json:"media"`
}

type roomResponse struct {
	Name    string           `json:"name"`
	Members []memberResponse `json:"members"`
}

type stateResponse struct {
	Participants int            `json:"participants"`
	Rooms        []roomResponse `json:"rooms"`
}

func (s *Server) handleState(c echo.Context) error {
	infos := s.reg.State()
	rooms := make([]roomResponse, 0, len(infos))
	participants := 0
	for _, info := range infos {
		members := make([]memberResponse, 0, len(info.Members))
		for _, m := range info.Members {
			members = append(members, memberResponse{Name: m.Name, Media: m.Media})
		}
		participants += len(members)
		rooms = append(rooms, roomResponse{Name: info.Name, Members: members})
	}
	return c.JSON(http.StatusOK, stateResponse{
		Participants: participants,
		Rooms:        rooms,
	})
}

func (s *Server) handleRooms(c echo.Context) error {
	rooms := s.reg.Rooms()
	if rooms == nil {
		rooms = []string{}
	}
	return c.JSON(http.StatusOK, rooms)
}
