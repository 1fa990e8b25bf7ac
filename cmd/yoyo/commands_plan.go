package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/yoyo-db/yoyo/internal/planner"
)

func runApply(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("apply", flag.ExitOnError)
	var f sharedFlags
	bindSharedFlags(fs, &f)
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := bootstrap(ctx, &f)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	plan, err := planner.ToApply(s.g, s.applied, f.revision)
	if err != nil {
		return err
	}
	return runPlan(ctx, s, plan, true)
}

func runRollback(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	var f sharedFlags
	bindSharedFlags(fs, &f)
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := bootstrap(ctx, &f)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	plan, err := planner.ToRollback(s.g, s.applied, f.revision, s.cfg.GhostAware)
	if err != nil {
		return err
	}
	return runPlan(ctx, s, plan, true)
}

func runReapply(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reapply", flag.ExitOnError)
	var f sharedFlags
	bindSharedFlags(fs, &f)
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := bootstrap(ctx, &f)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	plan, err := planner.Reapply(s.g, s.applied, f.revision, s.cfg.GhostAware)
	if err != nil {
		return err
	}
	return runPlan(ctx, s, plan, true)
}

func runDevelop(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("develop", flag.ExitOnError)
	var f sharedFlags
	bindSharedFlags(fs, &f)
	n := fs.Int("n", 1, "migrations to cycle when nothing is pending")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := bootstrap(ctx, &f)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	// The log may interleave rollbacks and reapplies of the same id, so
	// scan well beyond n to find that many distinct, currently-applied ids.
	recentLog, err := s.b.RecentLog(ctx, 20*(*n)+50)
	if err != nil {
		return fmt.Errorf("read recent log: %w", err)
	}

	plan, err := planner.Develop(s.g, s.applied, recentLog, *n)
	if err != nil {
		return err
	}
	return runPlan(ctx, s, plan, true)
}

func runMark(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mark", flag.ExitOnError)
	var f sharedFlags
	bindSharedFlags(fs, &f)
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := bootstrap(ctx, &f)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	plan, err := planner.Mark(s.g, s.applied, f.revision)
	if err != nil {
		return err
	}
	return runPlan(ctx, s, plan, false)
}

func runUnmark(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("unmark", flag.ExitOnError)
	var f sharedFlags
	bindSharedFlags(fs, &f)
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := bootstrap(ctx, &f)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	plan, err := planner.Unmark(s.g, s.applied, f.revision, s.cfg.GhostAware)
	if err != nil {
		return err
	}
	return runPlan(ctx, s, plan, false)
}
