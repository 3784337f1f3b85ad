package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/getmockd/stompd/pkg/config"
	"github.com/getmockd/stompd/pkg/credentials"
	"github.com/getmockd/stompd/pkg/logging"
	"github.com/getmockd/stompd/pkg/metrics"
	"github.com/getmockd/stompd/pkg/protocol"
	"github.com/getmockd/stompd/pkg/registry"
	"github.com/getmockd/stompd/pkg/server"
	"github.com/getmockd/stompd/pkg/stomp"
)

const shutdownTimeout = 5 * time.Second

var (
	serveWorkers           int
	serveWSPort            int
	serveWSPath            string
	serveAdminPort         int
	serveUsersFile         string
	serveAllowRegistration bool
	serveBcryptCost        int
	serveLogLevel          string
	serveLogFormat         string
	serveRedisURL          string
	serveWriteTimeout      time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve <port> <tpc|reactor>",
	Short: "Run the broker",
	Long: `Run the broker on the given TCP port.

The second argument selects the connection strategy:
  tpc      one goroutine reads and processes each connection
  reactor  reads are handed to a fixed worker pool, one frame at a time per connection

On SIGINT or SIGTERM every connection is closed and a report of logins and
file uploads is printed.`,
	Example: `  # Thread-per-client on 7777
  stompd serve 7777 tpc

  # Reactor with 8 workers, STOMP over WebSocket on 8080 and metrics on 9090
  stompd serve 7777 reactor --workers 8 --ws-port 8080 --admin-port 9090

  # Only the accounts listed in users.yaml may log in
  stompd serve 7777 tpc --users users.yaml --allow-registration=false`,
	Args: cobra.ExactArgs(2),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.IntVar(&serveWorkers, "workers", 0, "Reactor worker count (0 = GOMAXPROCS)")
	f.IntVar(&serveWSPort, "ws-port", 0, "Port for STOMP over WebSocket (0 = disabled)")
	f.StringVar(&serveWSPath, "ws-path", "/ws", "HTTP path of the WebSocket endpoint")
	f.IntVar(&serveAdminPort, "admin-port", 0, "Port for /metrics and /healthz (0 = disabled)")
	f.StringVar(&serveUsersFile, "users", "", "YAML file with accounts to seed")
	f.BoolVar(&serveAllowRegistration, "allow-registration", true, "Create accounts for unknown users on first CONNECT")
	f.IntVar(&serveBcryptCost, "bcrypt-cost", 10, "bcrypt cost for newly registered passwords")
	f.StringVar(&serveLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&serveLogFormat, "log-format", "text", "Log format (text, json)")
	f.StringVar(&serveRedisURL, "redis-url", "", "Store accounts in Redis instead of memory (redis://...)")
	f.DurationVar(&serveWriteTimeout, "write-timeout", 0, "Per-frame write deadline (0 = none)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := serveConfig(cmd, args)
	if err != nil {
		return err
	}

	logCfg := cfg.Logging()
	logCfg.Output = cmd.ErrOrStderr()
	log := logging.New(logCfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo credentials.UserRepository
	if cfg.RedisURL != "" {
		client, err := credentials.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		repo = credentials.NewRedisRepository(client, "")
		log.Info("using redis account store")
	}

	creds := credentials.New(repo,
		credentials.WithRegistration(cfg.AllowRegistration),
		credentials.WithBcryptCost(cfg.BcryptCost),
		credentials.WithLogger(log),
	)
	if cfg.UsersFile != "" {
		accounts, err := config.LoadUsers(cfg.UsersFile)
		if err != nil {
			return err
		}
		if err := creds.Seed(ctx, accounts); err != nil {
			return err
		}
		log.Info("seeded accounts", "file", cfg.UsersFile, "count", len(accounts))
	}

	m := metrics.Init()
	reg := registry.New[string]()
	ids := protocol.NewMessageIDs()
	newEngine := func() *protocol.Engine {
		return protocol.NewEngine(creds, ids, protocol.WithLogger(log))
	}

	addr := net.JoinHostPort("", strconv.Itoa(cfg.Port))
	opts := []server.Option{server.WithLogger(log), server.WithWriteTimeout(cfg.WriteTimeout)}
	var srv *server.Server
	if cfg.Mode == config.ModeReactor {
		srv = server.Reactor(cfg.Workers, addr, newEngine, stomp.NewDecoder, reg, opts...)
	} else {
		srv = server.ThreadPerClient(addr, newEngine, stomp.NewDecoder, reg, opts...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	if cfg.WSPort != 0 {
		mux := http.NewServeMux()
		mux.Handle(cfg.WSPath, srv.WebSocketHandler())
		g.Go(func() error {
			return serveHTTP(gctx, log, "websocket", cfg.WSPort, mux)
		})
	}
	if cfg.AdminPort != 0 {
		g.Go(func() error {
			return serveHTTP(gctx, log, "admin", cfg.AdminPort, server.AdminHandler(reg, m))
		})
	}

	err = g.Wait()

	if rerr := creds.Report(cmd.OutOrStdout()); rerr != nil && err == nil {
		err = fmt.Errorf("write report: %w", rerr)
	}
	return err
}

// serveConfig layers positional arguments and explicitly set flags over the
// environment.
func serveConfig(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	port, err := strconv.Atoi(args[0])
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid port %q: %w", args[0], err)
	}
	cfg.Port = port
	cfg.Mode = args[1]

	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = serveWorkers
	}
	if flags.Changed("ws-port") {
		cfg.WSPort = serveWSPort
	}
	if flags.Changed("ws-path") {
		cfg.WSPath = serveWSPath
	}
	if flags.Changed("admin-port") {
		cfg.AdminPort = serveAdminPort
	}
	if flags.Changed("users") {
		cfg.UsersFile = serveUsersFile
	}
	if flags.Changed("allow-registration") {
		cfg.AllowRegistration = serveAllowRegistration
	}
	if flags.Changed("bcrypt-cost") {
		cfg.BcryptCost = serveBcryptCost
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = serveLogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = serveLogFormat
	}
	if flags.Changed("redis-url") {
		cfg.RedisURL = serveRedisURL
	}
	if flags.Changed("write-timeout") {
		cfg.WriteTimeout = serveWriteTimeout
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// serveHTTP runs an HTTP listener until ctx is done, then shuts it down.
func serveHTTP(ctx context.Context, log *slog.Logger, name string, port int, handler http.Handler) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(name+" listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s server: %w", name, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
		}
		return nil
	}
}
