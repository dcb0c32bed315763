package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Tyrowin/groupchat/internal/client"
	"github.com/Tyrowin/groupchat/internal/discovery"
	"github.com/Tyrowin/groupchat/internal/logging"
)

const usage = "Usage: client -id <client-id> [-host localhost] [-port 8080]\n       client <client-id> [server-host] [server-port]"

// options is the resolved command line.
type options struct {
	id        string
	host      string
	port      int
	etcd      []string
	serverID  string
	heartbeat time.Duration
	logLevel  string
}

func main() {
	// Only fills variables that are not already set.
	_ = godotenv.Load()

	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	logger, err := logging.New(opts.logLevel, logging.FormatConsole)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(opts, logger); err != nil {
		logger.Error("client stopped", zap.Error(err))
		os.Exit(1)
	}
}

// parseArgs accepts flags or the positional form <id> [host] [port].
func parseArgs(args []string) (options, error) {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	var (
		id        = fs.String("id", "", "member id to join as")
		host      = fs.String("host", envOr("CHAT_SERVER_HOST", "localhost"), "server host")
		port      = fs.Int("port", envInt("CHAT_SERVER_PORT", 8080), "server port")
		etcd      = fs.String("etcd", os.Getenv("ETCD_ENDPOINTS"), "comma-separated etcd endpoints used to look up the server")
		serverID  = fs.String("server-id", os.Getenv("SERVER_ID"), "registered server to look up in etcd (default: oldest)")
		heartbeat = fs.Duration("heartbeat", client.DefaultHeartbeatInterval, "heartbeat interval")
		logLevel  = fs.String("log-level", envOr("LOG_LEVEL", "warn"), "debug, info, warn or error")
	)
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{
		id:        *id,
		host:      *host,
		port:      *port,
		serverID:  *serverID,
		heartbeat: *heartbeat,
		logLevel:  *logLevel,
	}
	if *etcd != "" {
		opts.etcd = strings.Split(*etcd, ",")
	}

	rest := fs.Args()
	if opts.id == "" && len(rest) > 0 {
		opts.id, rest = rest[0], rest[1:]
	}
	if len(rest) > 0 {
		opts.host, rest = rest[0], rest[1:]
	}
	if len(rest) > 0 {
		p, err := strconv.Atoi(rest[0])
		if err != nil || p <= 0 || p > 65535 {
			return options{}, fmt.Errorf("invalid port %q", rest[0])
		}
		opts.port = p
	}

	if opts.id == "" {
		return options{}, errors.New("a client id is required")
	}
	return opts, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

// serverURL resolves the WebSocket URL, through etcd when endpoints are given.
func serverURL(ctx context.Context, opts options) (string, error) {
	if len(opts.etcd) == 0 {
		return fmt.Sprintf("ws://%s/ws", net.JoinHostPort(opts.host, strconv.Itoa(opts.port))), nil
	}

	cli, err := discovery.NewClient(opts.etcd)
	if err != nil {
		return "", err
	}
	defer func() { _ = cli.Close() }()

	lookupCtx, cancel := context.WithTimeout(ctx, discovery.DialTimeout)
	defer cancel()
	return discovery.Resolve(lookupCtx, cli, opts.serverID)
}

func run(opts options, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url, err := serverURL(ctx, opts)
	if err != nil {
		return err
	}
	logger.Info("connecting", zap.String("url", url), zap.String("member", opts.id))

	session, err := client.Dial(ctx, client.Config{
		ID:                opts.id,
		URL:               url,
		HeartbeatInterval: opts.heartbeat,
	}, os.Stdout, logger)
	if err != nil {
		return err
	}

	err = session.Run(ctx, os.Stdin)
	session.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
