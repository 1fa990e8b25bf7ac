// =============================================================================
// Yoyo CLI entry point
// =============================================================================
// Dispatches to one of the migration subcommands. No long-lived process,
// no HTTP server: each invocation loads config, connects to the target
// database, does one unit of work, and exits.
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yoyo-db/yoyo/config"
)

// =============================================================================
// 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitLoadError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "new":
		err = runNew(ctx, os.Args[2:])
	case "list":
		err = runList(ctx, os.Args[2:])
	case "apply":
		err = runApply(ctx, os.Args[2:])
	case "rollback":
		err = runRollback(ctx, os.Args[2:])
	case "reapply":
		err = runReapply(ctx, os.Args[2:])
	case "develop":
		err = runDevelop(ctx, os.Args[2:])
	case "mark":
		err = runMark(ctx, os.Args[2:])
	case "unmark":
		err = runUnmark(ctx, os.Args[2:])
	case "init":
		err = runInit(ctx, os.Args[2:])
	case "break-lock":
		err = runBreakLock(ctx, os.Args[2:])
	case "version":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(exitLoadError)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(classifyExit(err))
	}
}

func printVersion() {
	fmt.Printf("yoyo %s\n", Version)
	fmt.Printf("  build time: %s\n", BuildTime)
	fmt.Printf("  git commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`yoyo - database schema migration engine

Usage:
  yoyo <command> [options] [args]

Commands:
  new <name>     Scaffold a new migration file
  list           Show the migration graph and applied status
  apply          Apply pending migrations
  rollback       Roll back applied migrations
  reapply        Roll back then re-apply a set of migrations
  develop        Apply pending migrations, or cycle the most recent ones
  mark           Record migrations as applied without running their steps
  unmark         Remove migrations from the applied set without running steps
  init           Create the bookkeeping tables without running any migration
  break-lock     Forcibly remove the cross-process lock
  version        Show version information
  help           Show this help message

Shared options:
  --config <path>        Path to configuration file (YAML)
  --database <url>       Database connection URL (overrides config)
  --batch                Skip confirmation prompts
  -p, --prompt-password  Prompt for the database password
  --no-config-file       Ignore the config file, use defaults and environment only
  -r, --revision <id>    Target migration id
  -v                     Verbose logging
  -q                     Quiet logging

develop-only option:
  -n <N>                 Number of most recently applied migrations to cycle

Examples:
  yoyo apply --database postgres://localhost/app
  yoyo rollback -r 0001_create_users
  yoyo develop -n 3
  yoyo list --database sqlite:///app.db`)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
		Encoding:          cfg.Format,
		EncoderConfig:     encoderConfig,
		OutputPaths:       cfg.OutputPaths,
		ErrorOutputPaths:  []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
