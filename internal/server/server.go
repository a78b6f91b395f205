package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"tally.dev/internal/config"
	"tally.dev/internal/health"
	"tally.dev/internal/log"
	"tally.dev/internal/model"
	"tally.dev/internal/process"
	"tally.dev/internal/pubsub"
	"tally.dev/internal/timer"
)

type Server struct {
	BindAddress string
	Port        int
	Config      config.ShellConfig

	router *gin.Engine
	ws     RpcWebsocket
	clock  clock.Clock

	timer     *timer.Timer
	history   *model.Store[timer.Session]
	processes *process.Reporter
	topics    *pubsub.Registry
	events    *pubsub.Topic

	ctxMux sync.Mutex
	ctx    context.Context
}

var logger log.Logger = log.New("server")

const maxHistoryRows = 1000

// New builds a server for the given config. The process source and clock are
// parameters so that tests can swap them out.
func New(cfg config.ShellConfig, source process.Source, clk clock.Clock) (*Server, error) {
	if clk == nil {
		clk = clock.New()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	reporter, err := process.NewReporter(source, cfg.CpuScale)
	if err != nil {
		return nil, err
	}

	history, err := model.NewStore[timer.Session](cfg.HistoryFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open timer history: %w", err)
	}
	history.MaxRows = maxHistoryRows

	topics := &pubsub.Registry{}
	if err := topics.CreateMetaTopic(); err != nil {
		return nil, fmt.Errorf("failed to create meta topic: %w", err)
	}

	events, err := topics.CreateTopic(EventsTopic)
	if err != nil {
		return nil, fmt.Errorf("failed to create events topic: %w", err)
	}

	server := &Server{
		BindAddress: cfg.BindAddress,
		Port:        cfg.Port,
		Config:      cfg,
		clock:       clk,
		timer:       timer.New(clk),
		history:     history,
		processes:   reporter,
		topics:      topics,
		events:      events,
		ctx:         context.Background(),
	}

	if err := server.loadRoutes(); err != nil {
		return nil, err
	}

	return server, nil
}

func (server *Server) baseContext() context.Context {
	server.ctxMux.Lock()
	defer server.ctxMux.Unlock()

	return server.ctx
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		logger.Debug("Handled request", log.Ctx{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(startTime).String(),
		})
	}
}

func (server *Server) loadRpcMethods(group *gin.RouterGroup) {
	Greet.Register(server, group)
	GetVersion.Register(server, group)

	GetTimerState.Register(server, group)
	StartTimer.Register(server, group)
	StopTimer.Register(server, group)
	GetTimerHistory.Register(server, group)

	GetProcesses.Register(server, group)

	ToggleDevtools.Register(server, group)
	GetTopics.Register(server, group)
}

func (server *Server) loadStreams() error {
	streams := []interface{ Register(*RpcWebsocket) error }{
		&GetHeartbeat,
		&SubscribeEvents,
		&SubscribeTopic,
	}

	for _, stream := range streams {
		if err := stream.Register(&server.ws); err != nil {
			return err
		}
	}

	return nil
}

func (server *Server) loadRoutes() error {
	server.router = gin.New()
	server.router.Use(requestLogger())

	server.router.GET("/api/health", func(c *gin.Context) {
		sendJson(c, http.StatusOK, gin.H{"ok": true})
	})

	server.loadRpcMethods(server.router.Group("/api/rpc"))

	if err := server.loadStreams(); err != nil {
		return err
	}
	server.router.GET("/api/websocket", server.ws.WebsocketHandler(server))

	return nil
}

func (server *Server) Handler() http.Handler {
	return server.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	portBinding := net.JoinHostPort(server.BindAddress, strconv.Itoa(server.Port))
	httpServer := &http.Server{
		Addr:    portBinding,
		Handler: server.router,
	}

	logger.Print("Starting tally", log.Ctx{
		"address": portBinding,
		"pid":     os.Getpid(),
	})

	group, ctx := errgroup.WithContext(ctx)

	server.ctxMux.Lock()
	server.ctx = ctx
	server.ctxMux.Unlock()

	group.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		healthCheck := health.HttpHealthCheck{
			Method: "GET",
			Url:    fmt.Sprintf("http://%s/api/health", portBinding),
		}
		if health.WaitForHttp(ctx, healthCheck, 250*time.Millisecond) {
			logger.Print(fmt.Sprintf("Started tally server on http://%s", portBinding), log.Ctx{})
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		logger.Print("Shutting down tally", log.Ctx{})
		server.events.Close()

		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
