package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/yoyo-db/yoyo/internal/yerrors"
)

var slugPattern = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// runNew scaffolds a SQL apply/rollback pair in the first configured
// source directory, stamped with a sortable timestamp so the graph's
// lexicographic tie-break among ready vertices favors creation order.
func runNew(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	var f sharedFlags
	bindSharedFlags(fs, &f)
	if err := fs.Parse(args); err != nil {
		return err
	}

	name := strings.Join(fs.Args(), " ")
	if name == "" {
		return &yerrors.LoadError{Reason: "new requires a migration name, e.g. yoyo new add users table"}
	}

	cfg, err := loadConfig(&f)
	if err != nil {
		return err
	}
	if len(cfg.Sources) == 0 {
		return &yerrors.LoadError{Reason: "no sources configured to write the new migration into"}
	}

	dir := cfg.Sources[0]
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create source directory %s: %w", dir, err)
	}

	stem := fmt.Sprintf("%s_%s", time.Now().UTC().Format("20060102150405"), slug(name))
	applyPath := filepath.Join(dir, stem+".sql")
	rollbackPath := filepath.Join(dir, stem+".rollback.sql")

	if err := os.WriteFile(applyPath, []byte("-- depends:\n-- transactional: true\n\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", applyPath, err)
	}
	if err := os.WriteFile(rollbackPath, []byte(""), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rollbackPath, err)
	}

	fmt.Println(applyPath)
	fmt.Println(rollbackPath)
	return nil
}

func slug(name string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}
