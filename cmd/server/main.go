package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/Tyrowin/groupchat/internal/discovery"
	"github.com/Tyrowin/groupchat/internal/logging"
	"github.com/Tyrowin/groupchat/internal/server"
	"github.com/Tyrowin/groupchat/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		envFile   = flag.String("env", ".env", "optional .env file with server settings")
		port      = flag.String("port", "", "listen port or host:port (overrides SERVER_PORT)")
		logLevel  = flag.String("log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
		logFormat = flag.String("log-format", "", "json or console (overrides LOG_FORMAT)")
		interval  = flag.Duration("heartbeat-interval", 0, "liveness sweep interval (overrides HEARTBEAT_INTERVAL)")
		timeout   = flag.Duration("heartbeat-timeout", 0, "evict members silent for longer than this (overrides HEARTBEAT_TIMEOUT)")
		election  = flag.String("election", "", "host election policy: earliest or lowest-id (overrides HOST_ELECTION)")
		etcd      = flag.String("etcd", "", "comma-separated etcd endpoints; enables registration (overrides ETCD_ENDPOINTS)")
		serverID  = flag.String("server-id", "", "name registered in etcd (overrides SERVER_ID)")
		advertise = flag.String("advertise", "", "WebSocket URL clients should dial (overrides ADVERTISE_ADDR)")
	)
	flag.Parse()

	if err := server.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("loading %s: %v", *envFile, err)
	}

	cfg := server.NewConfigFromEnv()
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		case "heartbeat-interval":
			cfg.Heartbeat.Interval = *interval
		case "heartbeat-timeout":
			cfg.Heartbeat.Timeout = *timeout
		case "election":
			cfg.HostElection = *election
		case "etcd":
			cfg.Discovery.Endpoints = strings.FieldsFunc(*etcd, func(r rune) bool { return r == ',' || r == ' ' })
		case "server-id":
			cfg.Discovery.ServerID = *serverID
		case "advertise":
			cfg.Discovery.AdvertiseAddr = *advertise
		}
	})
	sanitized := cfg.Sanitize()

	logger, err := logging.New(sanitized.LogLevel, sanitized.LogFormat)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(&sanitized, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *server.Config, logger *zap.Logger) error {
	logger.Info("starting GroupChat server")

	metrics := telemetry.NewMetrics()
	hub, err := server.NewHub(cfg, logger.Named("hub"), metrics)
	if err != nil {
		return err
	}
	go hub.Run()

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(hub))
	serveErr := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpServer, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	registration, etcdClient, err := register(cfg, logger.Named("discovery"))
	if err != nil {
		logger.Error("etcd registration failed; continuing without discovery", zap.Error(err))
	}
	if etcdClient != nil {
		defer func() { _ = etcdClient.Close() }()
	}

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-stop:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case runErr = <-serveErr:
	}

	if registration != nil {
		ctx, cancel := context.WithTimeout(context.Background(), discovery.DialTimeout)
		if err := registration.Close(ctx); err != nil {
			logger.Warn("etcd deregistration failed", zap.Error(err))
		}
		cancel()
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout, logger); err != nil {
		logger.Warn("HTTP server did not shut down cleanly", zap.Error(err))
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		logger.Warn("hub did not shut down cleanly", zap.Error(err))
	}
	return runErr
}

// register publishes the server in etcd when endpoints are configured.
func register(cfg *server.Config, logger *zap.Logger) (*discovery.Registration, *clientv3.Client, error) {
	if len(cfg.Discovery.Endpoints) == 0 {
		return nil, nil, nil
	}

	cli, err := discovery.NewClient(cfg.Discovery.Endpoints)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), discovery.DialTimeout)
	defer cancel()
	reg, err := discovery.Register(ctx, cli, cfg.Discovery.ServerID, advertiseAddr(cfg), cfg.Discovery.LeaseTTL, logger)
	if err != nil {
		return nil, cli, err
	}
	return reg, cli, nil
}

// advertiseAddr is the URL published in etcd. Without ADVERTISE_ADDR it is
// derived from the hostname and listen port.
func advertiseAddr(cfg *server.Config) string {
	if cfg.Discovery.AdvertiseAddr != "" {
		return cfg.Discovery.AdvertiseAddr
	}
	listen := cfg.Port
	if strings.HasPrefix(listen, ":") {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}
		listen = host + listen
	}
	return fmt.Sprintf("ws://%s/ws", listen)
}
