package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yoyo-db/yoyo/config"
	"github.com/yoyo-db/yoyo/internal/backend"
	"github.com/yoyo-db/yoyo/internal/engine"
	"github.com/yoyo-db/yoyo/internal/graph"
	"github.com/yoyo-db/yoyo/internal/loader"
	"github.com/yoyo-db/yoyo/internal/metrics"
	"github.com/yoyo-db/yoyo/internal/scripts"
	"github.com/yoyo-db/yoyo/internal/telemetry"
	"github.com/yoyo-db/yoyo/internal/yerrors"
)

// Exit codes, per §6: distinct codes per error class, not semantically
// required but useful to callers scripting around yoyo.
const (
	exitOK              = 0
	exitLoadError       = 1
	exitConnectionError = 2
	exitLockError       = 3
	exitPlanError       = 4
	exitExecutionError  = 5
)

func classifyExit(err error) int {
	var loadErr *yerrors.LoadError
	var connErr *yerrors.ConnectionError
	var lockErr *yerrors.LockError
	var nonTxErr *yerrors.NonTransactionalFailureError
	var execErr *yerrors.ExecutionError

	switch {
	case errors.As(err, &loadErr):
		return exitLoadError
	case errors.As(err, &connErr):
		return exitConnectionError
	case errors.As(err, &lockErr):
		return exitLockError
	case errors.As(err, &nonTxErr), errors.As(err, &execErr):
		return exitExecutionError
	default:
		return exitPlanError
	}
}

// sharedFlags holds the options common to every subcommand, per §6.
type sharedFlags struct {
	configPath     string
	database       string
	batch          bool
	promptPassword bool
	noConfigFile   bool
	revision       string
	verbose        bool
	quiet          bool
}

func bindSharedFlags(fs *flag.FlagSet, f *sharedFlags) {
	fs.StringVar(&f.configPath, "config", "yoyo.yaml", "path to config file")
	fs.StringVar(&f.database, "database", "", "database connection URL (overrides config)")
	fs.BoolVar(&f.batch, "batch", false, "skip confirmation prompts")
	fs.BoolVar(&f.promptPassword, "p", false, "prompt for the database password")
	fs.BoolVar(&f.promptPassword, "prompt-password", false, "prompt for the database password")
	fs.BoolVar(&f.noConfigFile, "no-config-file", false, "ignore the config file, use defaults and environment only")
	fs.StringVar(&f.revision, "r", "", "target migration id")
	fs.StringVar(&f.revision, "revision", "", "target migration id")
	fs.BoolVar(&f.verbose, "v", false, "verbose logging")
	fs.BoolVar(&f.quiet, "q", false, "quiet logging")
}

func loadConfig(f *sharedFlags) (*config.Config, error) {
	l := config.NewLoader()
	if !f.noConfigFile {
		l = l.WithConfigPath(f.configPath)
	}
	cfg, err := l.Load()
	if err != nil {
		return nil, &yerrors.LoadError{Path: f.configPath, Reason: "load config", Err: err}
	}

	if f.database != "" {
		cfg.Database.URL = f.database
	}
	if f.batch {
		cfg.Batch = true
	}
	if f.verbose {
		cfg.Log.Level = "debug"
	}
	if f.quiet {
		cfg.Log.Level = "error"
	}

	if f.promptPassword {
		pw, perr := promptPassword()
		if perr != nil {
			return nil, perr
		}
		dbURL, perr := withPassword(cfg.Database.URL, pw)
		if perr != nil {
			return nil, perr
		}
		cfg.Database.URL = dbURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, &yerrors.LoadError{Path: f.configPath, Reason: "validate config", Err: err}
	}
	return cfg, nil
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Database password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func withPassword(rawURL, password string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	username := ""
	if u.User != nil {
		username = u.User.Username()
	}
	u.User = url.UserPassword(username, password)
	return u.String(), nil
}

// session bundles the dependencies a database-touching subcommand needs:
// a connected backend, the engine bound to it, the loaded graph and the
// applied set it was built from.
type session struct {
	cfg       *config.Config
	logger    *zap.Logger
	b         backend.Backend
	eng       *engine.Engine
	g         *graph.Graph
	applied   map[string]struct{}
	postApply []*graph.Migration

	providers  *telemetry.Providers
	metricsSrv *http.Server
}

func (s *session) close(ctx context.Context) {
	if s.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_ = s.metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if s.providers != nil {
		_ = s.providers.Shutdown(ctx)
	}
	if s.b != nil {
		_ = s.b.Close()
	}
	_ = s.logger.Sync()
}

// startMetricsServer exposes the process's Prometheus registry on addr for
// the lifetime of the current command, so a long-running batch apply can
// be scraped mid-flight rather than only after the process exits. A bind
// failure is logged, not fatal: migrations still run without it.
func startMetricsServer(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return srv
}

func bootstrap(ctx context.Context, f *sharedFlags) (*session, error) {
	cfg, err := loadConfig(f)
	if err != nil {
		return nil, err
	}

	logger := initLogger(cfg.Log)

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	b, err := backend.New(cfg.Database.URL)
	if err != nil {
		return nil, &yerrors.LoadError{Path: cfg.Database.URL, Reason: "select backend", Err: err}
	}
	if err := b.Connect(ctx, cfg.Database.URL); err != nil {
		return nil, &yerrors.ConnectionError{RedactedURL: b.RedactedURL(), Err: err}
	}
	if err := b.EnsureBookkeeping(ctx, cfg.MigrationTable); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("ensure bookkeeping schema: %w", err)
	}

	result, err := loader.New(scripts.Global()).Load(ctx, cfg.Sources)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	appliedRecords, err := b.AppliedSet(ctx)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("read applied set: %w", err)
	}
	applied := make(map[string]struct{}, len(appliedRecords))
	for id := range appliedRecords {
		applied[id] = struct{}{}
	}

	g, err := graph.Build(result.Migrations, applied)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	var mc *metrics.Collector
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mc = metrics.NewCollector("yoyo", logger)
		metricsSrv = startMetricsServer(cfg.Metrics.ListenAddr, logger)
	}

	eng := engine.New(b, logger, mc, backendNameFromURL(cfg.Database.URL))

	return &session{
		cfg:        cfg,
		logger:     logger,
		b:          b,
		eng:        eng,
		g:          g,
		applied:    applied,
		postApply:  result.PostApply,
		providers:  providers,
		metricsSrv: metricsSrv,
	}, nil
}

func backendNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	scheme := strings.ToLower(u.Scheme)
	if i := strings.Index(scheme, "+"); i >= 0 {
		scheme = scheme[:i]
	}
	switch scheme {
	case "postgresql":
		return "postgres"
	case "sqlite3":
		return "sqlite"
	case "":
		return "unknown"
	default:
		return scheme
	}
}
