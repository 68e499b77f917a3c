// launching the server, interceptor, bridge and their storage and messaging backends
package appServer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds124wfegd/tile-overlay/config"
	"github.com/ds124wfegd/tile-overlay/internal/bridge"
	"github.com/ds124wfegd/tile-overlay/internal/database"
	"github.com/ds124wfegd/tile-overlay/internal/entity"
	"github.com/ds124wfegd/tile-overlay/internal/interceptor"
	"github.com/ds124wfegd/tile-overlay/internal/notify"
	"github.com/ds124wfegd/tile-overlay/internal/pkg/kafka"
	"github.com/ds124wfegd/tile-overlay/internal/pkg/messaging"
	"github.com/ds124wfegd/tile-overlay/internal/pkg/metrics"
	"github.com/ds124wfegd/tile-overlay/internal/pkg/processor"
	"github.com/ds124wfegd/tile-overlay/internal/pkg/rabbitMQ"
	"github.com/ds124wfegd/tile-overlay/internal/pkg/storage"
	"github.com/ds124wfegd/tile-overlay/internal/service"
	"github.com/ds124wfegd/tile-overlay/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// core is what both the proxy and the standalone bridge need. service is nil
// in a proxy whose bridge runs in another process.
type core struct {
	service  service.TemplateService
	board    *notify.Board
	registry *metrics.Registry
	events   messaging.Channel
	replies  messaging.Channel
	closers  []io.Closer
}

func newCore(ctx context.Context, cfg *config.Config, withTemplates bool) (*core, error) {
	c := &core{
		board:    notify.NewBoard(cfg.Status.History),
		registry: metrics.NewRegistry(),
	}

	c.events = newChannel(ctx, cfg, cfg.Messaging.EventsTopic)
	c.replies = newChannel(ctx, cfg, cfg.Messaging.RepliesTopic)
	c.closers = append(c.closers, c.events, c.replies)
	if !withTemplates {
		return c, nil
	}

	repo, closer, err := newRepository(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("template storage: %w", err)
	}
	if closer != nil {
		c.closers = append(c.closers, closer)
	}

	c.service = service.NewTemplateService(repo, c.board,
		processor.WithTileSize(cfg.Template.TileSize),
		processor.WithPixelGridSize(cfg.Template.PixelGridSize),
	)
	if err := c.service.LoadTemplates(ctx); err != nil {
		logrus.Errorf("error occured while loading templates: %s", err.Error())
	}
	return c, nil
}

func (c *core) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			logrus.Errorf("error occured on closing resources: %s", err.Error())
		}
	}
}

func (c *core) startBridge(ctx context.Context, cfg *config.Config) *bridge.Bridge {
	apiBridge := bridge.New(cfg.Proxy.Source, c.events, c.replies, c.service, c.board, c.registry)
	apiBridge.Init(bridge.Callbacks{
		OnUserData: func(p entity.UserProfile) {
			logrus.WithFields(logrus.Fields{"user": p.Name, "id": p.UserID()}).Info("User data received")
		},
		OnCoordsData: func(coords entity.Coordinate) {
			logrus.WithField("coords", coords.Slice()).Debug("Coordinates received")
		},
	})
	go func() {
		if err := apiBridge.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logrus.Errorf("bridge stopped: %s", err.Error())
		}
	}()
	return apiBridge
}

// checkDeployment rejects a bridge split across processes that cannot reach
// each other: the memory channel only connects goroutines of one process.
func checkDeployment(cfg *config.Config) error {
	if cfg.Bridge.Embedded {
		return nil
	}
	return requireBroker(cfg)
}

func requireBroker(cfg *config.Config) error {
	if cfg.Messaging.Driver == "memory" || cfg.Messaging.Driver == "" {
		return errors.New("a standalone bridge needs messaging.driver kafka or rabbitmq")
	}
	return nil
}

// tilesOnly limits rewrites to URLs the bridge composites, so other images
// are not held back waiting for a reply that never comes.
func tilesOnly(u *url.URL) bool {
	return bridge.Classify(u.String()).Route == bridge.RouteTiles
}

func NewServer(cfg *config.Config) {

	logrus.SetFormatter(new(logrus.JSONFormatter))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	upstream, err := url.Parse(cfg.Proxy.Upstream)
	if err != nil || upstream.Host == "" {
		logrus.Fatalf("invalid proxy upstream %q: %v", cfg.Proxy.Upstream, err)
	}

	if err := checkDeployment(cfg); err != nil {
		logrus.Fatalf("invalid deployment: %s", err.Error())
	}

	app, err := newCore(ctx, cfg, cfg.Bridge.Embedded)
	if err != nil {
		logrus.Fatalf("failed to initialize app: %s", err.Error())
	}
	defer app.Close()

	// Templates live with the bridge. When it runs elsewhere, so does the
	// /overlay API.
	var overlayHandler *transport.OverlayHandler
	if cfg.Bridge.Embedded {
		apiBridge := app.startBridge(ctx, cfg)
		overlayHandler = transport.NewOverlayHandler(app.service, apiBridge, app.board, app.registry)
	}

	tileInterceptor := interceptor.New(http.DefaultTransport, app.events, app.replies, interceptor.Config{
		Source:        cfg.Proxy.Source,
		ExcludedHosts: cfg.Proxy.ExcludedHosts,
		ReplyTimeout:  cfg.Proxy.ReplyTimeout,
		Rewritable:    tilesOnly,
	}, app.registry)
	go func() {
		if err := tileInterceptor.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logrus.Errorf("interceptor stopped: %s", err.Error())
		}
	}()

	proxy := transport.NewProxy(upstream, tileInterceptor)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, transport.InitRoutes(overlayHandler, proxy, cfg.Server.RequestTimeout)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithField("upstream", upstream.String()).Print("App Started")

	waitForSignal()

	logrus.Print("App Shutting Down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
}

// RunBridge runs the bridge and the /overlay API against a shared broker,
// for proxies started with bridge.embedded=false.
func RunBridge(cfg *config.Config) {

	logrus.SetFormatter(new(logrus.JSONFormatter))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := requireBroker(cfg); err != nil {
		logrus.Fatalf("invalid deployment: %s", err.Error())
	}

	app, err := newCore(ctx, cfg, true)
	if err != nil {
		logrus.Fatalf("failed to initialize bridge: %s", err.Error())
	}
	defer app.Close()

	apiBridge := app.startBridge(ctx, cfg)
	overlayHandler := transport.NewOverlayHandler(app.service, apiBridge, app.board, app.registry)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	bridgeCfg := *cfg
	bridgeCfg.Server.Port = cfg.Bridge.Port
	srv := new(Server)
	go func() {
		if err := srv.Run(&bridgeCfg, transport.InitRoutes(overlayHandler, nil, cfg.Server.RequestTimeout)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithFields(logrus.Fields{
		"driver": cfg.Messaging.Driver,
		"port":   cfg.Bridge.Port,
	}).Print("Bridge Started")

	waitForSignal()
	logrus.Print("Bridge Shutting Down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
}

func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit
}

// newRepository picks the template store by storage.driver. The returned
// closer, if any, releases the backing connection.
func newRepository(ctx context.Context, cfg *config.Config) (database.TemplateRepository, io.Closer, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return database.NewMemoryRepository(), nil, nil
	case "file", "":
		return database.NewFileRepository(storage.NewFileStorage(cfg.Storage.Path)), nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		repo, err := database.NewRedisRepository(ctx, client, cfg.Storage.RedisPrefix)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return repo, client, nil
	case "postgres":
		db, err := database.NewPostgresDB(cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		repo, err := database.NewPostgresRepository(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return repo, db, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// newChannel falls back to an in-process channel when the configured broker
// is unreachable, the same way the producer used to fall back to a mock.
func newChannel(ctx context.Context, cfg *config.Config, topic string) messaging.Channel {
	switch cfg.Messaging.Driver {
	case "kafka":
		ch, err := kafka.NewChannel(ctx, kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   topic,
			GroupID: cfg.Kafka.GroupID + "-" + topic,
		})
		if err == nil {
			return ch
		}
		logrus.Warnf("Kafka unavailable for %s, using in-memory channel: %v", topic, err)
	case "rabbitmq":
		ch, err := rabbitMQ.NewChannel(rabbitMQ.Config{URL: cfg.RabbitMQ.URL, QueueName: topic})
		if err == nil {
			return ch
		}
		logrus.Warnf("RabbitMQ unavailable for %s, using in-memory channel: %v", topic, err)
	case "memory", "":
	default:
		logrus.Warnf("unknown messaging driver %q, using in-memory channel", cfg.Messaging.Driver)
	}
	return messaging.NewMemoryChannel(cfg.Messaging.Buffer)
}
