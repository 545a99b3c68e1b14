package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/channel"
	"github.com/sharetube/watchparty/internal/channel/memory"
	natsbroadcaster "github.com/sharetube/watchparty/internal/channel/nats"
	redisbroadcaster "github.com/sharetube/watchparty/internal/channel/redis"
	"github.com/sharetube/watchparty/internal/controller"
	"github.com/sharetube/watchparty/internal/metrics"
	"github.com/sharetube/watchparty/internal/repository/connection/inmemory"
	"github.com/sharetube/watchparty/internal/repository/party/redis"
	"github.com/sharetube/watchparty/internal/service/party"
	"github.com/sharetube/watchparty/pkg/ctxlogger"
	"github.com/sharetube/watchparty/pkg/redisclient"
	"github.com/sharetube/watchparty/pkg/roomid"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNats   = "nats"
)

type AppConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	LogLevel          string        `json:"log_level"`
	Backend           string        `json:"backend"`
	MembersLimit      int           `json:"members_limit"`
	PartyTTL          time.Duration `json:"party_ttl"`
	PresenceTTL       time.Duration `json:"presence_ttl"`
	PresenceHeartbeat time.Duration `json:"presence_heartbeat"`
	RedisHost         string        `json:"redis_host"`
	RedisPort         int           `json:"redis_port"`
	RedisPassword     string        `json:"-"`
	RedisDB           int           `json:"redis_db"`
	NatsURL           string        `json:"nats_url"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	switch cfg.Backend {
	case BackendMemory, BackendRedis:
	case BackendNats:
		if cfg.NatsURL == "" {
			return fmt.Errorf("nats url is required for the nats backend")
		}
	default:
		return fmt.Errorf("backend must be one of: memory, redis, nats")
	}
	if cfg.MembersLimit < 0 {
		return fmt.Errorf("members limit must not be negative")
	}
	if cfg.PartyTTL <= 0 {
		return fmt.Errorf("party ttl must be greater than 0")
	}
	if cfg.PresenceHeartbeat <= 0 || cfg.PresenceTTL <= cfg.PresenceHeartbeat {
		return fmt.Errorf("presence ttl must be greater than the heartbeat interval")
	}

	return nil
}

func parseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return l, nil
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	logLevel, err := parseLogLevel(level)
	if err != nil {
		return nil, err
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(&h), nil
}

type iPartyService interface {
	DisconnectAll(reason string) int
}

// App is the relay with all of its dependencies wired.
type App struct {
	logger       *slog.Logger
	rc           *goredis.Client
	nc           *nats.Conn
	partyService iPartyService
	handler      http.Handler
}

func New(ctx context.Context, cfg *AppConfig, logger *slog.Logger) (*App, error) {
	rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	a := &App{logger: logger, rc: rc}

	var broadcaster channel.Broadcaster
	switch cfg.Backend {
	case BackendRedis:
		broadcaster = redisbroadcaster.NewBroadcaster(rc, logger, &redisbroadcaster.Config{
			PresenceTTL: cfg.PresenceTTL,
			Heartbeat:   cfg.PresenceHeartbeat,
		})
	case BackendNats:
		nc, err := natsbroadcaster.Connect(cfg.NatsURL, logger)
		if err != nil {
			rc.Close()
			return nil, err
		}
		a.nc = nc
		broadcaster = natsbroadcaster.NewBroadcaster(nc, logger, &natsbroadcaster.Config{
			PresenceTTL: cfg.PresenceTTL,
			Heartbeat:   cfg.PresenceHeartbeat,
		})
	default:
		broadcaster = memory.NewHub(logger)
	}

	m := metrics.New()
	partyService := party.NewService(
		redis.NewRepo(rc, cfg.PartyTTL),
		inmemory.NewRepo(),
		broadcaster,
		ytvideodata.New(),
		roomid.New(),
		m,
		logger,
		&party.Config{MembersLimit: cfg.MembersLimit},
	)
	a.partyService = partyService
	a.handler = controller.NewController(partyService, m, logger).GetMux()

	logger.InfoContext(ctx, "relay wired", "backend", cfg.Backend)

	return a, nil
}

func (a *App) Handler() http.Handler {
	return a.handler
}

// Shutdown closes member connections before draining the http server, since
// hijacked connections are not tracked by it.
func (a *App) Shutdown(ctx context.Context, server *http.Server) error {
	closed := a.partyService.DisconnectAll("server shutting down")
	a.logger.InfoContext(ctx, "closed member connections", "count", closed)

	var errs []error
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown server: %w", err))
		}
	}
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain nats: %w", err))
		}
	}
	if err := a.rc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
	}

	return errors.Join(errs...)
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logger, err := newLogger(cfg.LogLevel, os.Stdout)
	if err != nil {
		return err
	}

	a, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: a.Handler()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		if err := a.Shutdown(shutdownCtx, server); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
