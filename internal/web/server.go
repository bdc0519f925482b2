// Package web provides the HTTP control and status API for the hazard-sim
// daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sweeney/hazard-sim/internal/command"
	"github.com/sweeney/hazard-sim/internal/console"
	"github.com/sweeney/hazard-sim/internal/hazard"
	"github.com/sweeney/hazard-sim/internal/logger"
	"github.com/sweeney/hazard-sim/internal/status"
)

// CommandPublisher sends a command to the broker.
type CommandPublisher interface {
	PublishCommand(cmd command.Command) error
}

// Deps are the components the API reads and drives.
type Deps struct {
	Store     *hazard.Store
	Interp    *command.Interpreter
	Tracker   *status.Tracker
	Console   *console.Console
	Publisher CommandPublisher
	Log       *logger.Logger
}

// Options tunes rate limiting and websocket push.
type Options struct {
	RateLimit  rate.Limit // per client IP, mutating routes only
	RateBurst  int
	WSInterval time.Duration
}

// DefaultOptions returns the stock limits.
func DefaultOptions() Options {
	return Options{RateLimit: 10, RateBurst: 20, WSInterval: defaultInterval}
}

// Server serves the status page and control API over HTTP.
type Server struct {
	httpServer *http.Server
	deps       Deps
	opts       Options
	log        *logger.Logger
}

// New creates a Server listening on addr.
func New(addr string, deps Deps, opts Options) *Server {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if opts.WSInterval <= 0 {
		opts.WSInterval = defaultInterval
	}
	if opts.RateBurst < 1 {
		opts.RateBurst = 1
	}
	s := &Server{deps: deps, opts: opts, log: deps.Log}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog)

	r.GET("/", s.handleIndex)
	r.GET("/index.html", s.handleIndex)
	r.GET("/index.json", s.handleJSON)
	r.GET("/health", s.health)
	r.GET("/ws", s.wsConnect)

	api := r.Group("/api")
	{
		api.GET("/state", s.getState)
		api.GET("/sensors", s.getSensors)
		api.GET("/rooms/:room", s.getRoom)
		api.GET("/logs", s.getLogs)
	}

	mut := api.Group("", RateLimiter(s.opts.RateLimit, s.opts.RateBurst))
	{
		mut.DELETE("/logs", s.clearLogs)

		mut.POST("/stove/burners", s.setBurners)

		mut.PUT("/heaters/:room", s.setHeater)
		mut.POST("/heaters/:room/overload", s.overloadHeater)
		mut.DELETE("/heaters/:room", s.repairHeater)

		mut.POST("/appliances/:id/explode", s.explodeAppliance)
		mut.DELETE("/appliances/:id", s.repairAppliance)

		mut.POST("/items/burning", s.addBurningItem)
		mut.POST("/items/expose", s.exposeItem)
		mut.POST("/items/pickup", s.pickUp)
		mut.POST("/items/drop", s.drop)

		mut.PUT("/chimney", s.setChimney)
		mut.PUT("/smoke", s.setSmoke)
		mut.PUT("/alarm", s.setAlarm)
		mut.PUT("/ventilation/:room", s.setVentilation)
		mut.PUT("/alerts/:room", s.setAlert)

		mut.POST("/emergency", s.emergency)
		mut.POST("/reset", s.reset)

		mut.POST("/commands", s.applyCommand)
		mut.POST("/commands/publish", s.publishCommand)
	}

	return r
}

func (s *Server) requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debugw("http_request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"client_ip", c.ClientIP(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) snapshot() status.Snapshot {
	return s.deps.Tracker.Snapshot()
}

func (s *Server) handleIndex(c *gin.Context) {
	agg := s.deps.Store.Aggregate()
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := renderHTML(c.Writer, s.snapshot(), s.deps.Store.State(), agg); err != nil {
		s.log.Errorw("render_index_failed", "err", err)
	}
}

func (s *Server) handleJSON(c *gin.Context) {
	agg := s.deps.Store.Aggregate()
	c.Data(http.StatusOK, "application/json", status.FormatJSON(s.snapshot(), &agg))
}
