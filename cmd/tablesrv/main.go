// Command tablesrv serves the user store and the schema-on-demand table store
// over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/arllen133/tablestore"
	"github.com/arllen133/tablestore/config"
	"github.com/arllen133/tablestore/httpapi"
	"github.com/arllen133/tablestore/mailer"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "tablesrv: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the configuration from defaults, the -config file,
// the environment and finally the remaining flags.
func loadConfig(args []string, stderr io.Writer) (config.Config, bool, error) {
	fs := flag.NewFlagSet("tablesrv", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "path to a TOML configuration file")
	addr := fs.String("addr", "", "listen address (overrides server.addr)")
	driver := fs.String("driver", "", "database driver: sqlite3, sqlite or pgx")
	dsn := fs.String("dsn", "", "database DSN")
	staticDir := fs.String("static", "", "directory served under /static/")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	noSeed := fs.Bool("no-seed", false, "do not insert the demo user at startup")
	strict := fs.Bool("strict-columns", false, "reject rows naming undeclared columns before writing")
	showVersion := fs.Bool("version", false, "show version and exit")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, false, err
	}
	if *showVersion {
		fmt.Fprintf(stderr, "tablesrv %s\n", Version)
		return config.Config{}, true, nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, false, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = *addr
		case "driver":
			cfg.Database.Driver = *driver
		case "dsn":
			cfg.Database.DSN = *dsn
		case "static":
			cfg.Server.StaticDir = *staticDir
		case "log-level":
			cfg.Log.Level = *logLevel
		case "no-seed":
			cfg.Database.Seed = !*noSeed
		case "strict-columns":
			if *strict {
				cfg.Database.ColumnPolicy = "strict"
			}
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, false, err
	}
	return cfg, false, nil
}

func newLogger(c config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	cfg, done, err := loadConfig(args, stderr)
	if err != nil || done {
		return err
	}
	logger := newLogger(cfg.Log, stderr)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	opts := []tablestore.SessionOption{
		tablestore.WithLogger(logger),
		tablestore.WithStatementTimeout(cfg.Database.StatementTimeout.Std()),
		tablestore.WithSlowQueryThreshold(cfg.Database.SlowQueryThreshold.Std()),
		tablestore.WithQueryLogging(cfg.Database.LogQueries),
		tablestore.WithOnConnLost(func(err error) {
			logger.Error("database connection lost, shutting down", slog.String("error", err.Error()))
			cancel(err)
		}),
	}
	if cfg.Database.Tracing {
		opts = append(opts, tablestore.WithDefaultTracer())
	}
	if cfg.Database.Metrics {
		opts = append(opts, tablestore.WithDefaultMeter())
	}

	session, err := tablestore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, opts...)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer session.Close()
	logger.Info("database ready",
		slog.String("driver", cfg.Database.Driver),
		slog.String("dialect", session.Dialect().Name()),
	)

	users := tablestore.NewUserStore(session)
	if err := users.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	if cfg.Database.Seed {
		if _, err := users.Seed(ctx); err != nil {
			return fmt.Errorf("seed users: %w", err)
		}
	}
	rows := tablestore.NewRowStore(session, tablestore.WithColumnPolicy(cfg.Database.Policy()))

	mailCfg := mailer.Config{
		Address:  cfg.Mail.Address,
		Password: cfg.Mail.Password,
		Server:   cfg.Mail.Server,
		Port:     cfg.Mail.Port,
	}
	if !mailCfg.Complete() {
		logger.Warn("mail is not configured, /send-email will fail")
	}

	srvOpts := []httpapi.Option{httpapi.WithLogger(logger), httpapi.WithSender(mailer.New(mailCfg))}
	if cfg.Server.StaticDir != "" {
		srvOpts = append(srvOpts, httpapi.WithStaticDir(cfg.Server.StaticDir))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.New(users, rows, srvOpts...).Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout.Std(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout.Std(),
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.Server.Addr), slog.String("version", Version))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}
