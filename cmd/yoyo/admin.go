package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/yoyo-db/yoyo/internal/backend"
	"github.com/yoyo-db/yoyo/internal/yerrors"
)

// runInit and runBreakLock touch the backend directly rather than going
// through bootstrap: neither needs the loaded migration graph.

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var f sharedFlags
	bindSharedFlags(fs, &f)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(&f)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	b, err := backend.New(cfg.Database.URL)
	if err != nil {
		return &yerrors.LoadError{Path: cfg.Database.URL, Reason: "select backend", Err: err}
	}
	if err := b.Connect(ctx, cfg.Database.URL); err != nil {
		return &yerrors.ConnectionError{RedactedURL: b.RedactedURL(), Err: err}
	}
	defer b.Close()

	if err := b.EnsureBookkeeping(ctx, cfg.MigrationTable); err != nil {
		return fmt.Errorf("ensure bookkeeping schema: %w", err)
	}
	fmt.Println("bookkeeping schema ready")
	return nil
}

func runBreakLock(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("break-lock", flag.ExitOnError)
	var f sharedFlags
	bindSharedFlags(fs, &f)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(&f)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	b, err := backend.New(cfg.Database.URL)
	if err != nil {
		return &yerrors.LoadError{Path: cfg.Database.URL, Reason: "select backend", Err: err}
	}
	if err := b.Connect(ctx, cfg.Database.URL); err != nil {
		return &yerrors.ConnectionError{RedactedURL: b.RedactedURL(), Err: err}
	}
	defer b.Close()

	if err := b.BreakLock(ctx); err != nil {
		return fmt.Errorf("break lock: %w", err)
	}
	fmt.Println("lock removed")
	return nil
}
