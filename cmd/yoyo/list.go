package main

import (
	"context"
	"flag"
	"fmt"
	"sort"
)

func runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
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

	ids := s.g.IDs()
	sort.Strings(ids)
	for _, id := range ids {
		m := s.g.Get(id)
		status := "pending"
		if _, ok := s.applied[id]; ok {
			status = "applied"
		}
		if m.Ghost {
			status = "ghost"
		}
		fmt.Printf("%-8s %s\n", status, id)
	}
	return nil
}
