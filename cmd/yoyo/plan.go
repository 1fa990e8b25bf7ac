package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yoyo-db/yoyo/internal/graph"
	"github.com/yoyo-db/yoyo/internal/planner"
)

// runPlan prints what a plan will touch, confirms per migration unless
// cfg.Batch, then hands it to the engine. withHooks controls whether the
// session's post-apply hooks run after a successful, non-empty plan —
// the executing commands (apply, rollback, reapply, develop) set it;
// mark and unmark do not.
func runPlan(ctx context.Context, s *session, plan *planner.Plan, withHooks bool) error {
	if plan.Empty() {
		fmt.Println("Nothing to do.")
		return nil
	}

	for _, batch := range plan.Batches {
		verb := describeBatch(batch)
		for _, m := range batch.Migrations {
			fmt.Printf("%s: %s\n", verb, m.ID)
			if !s.cfg.Batch && !confirm(fmt.Sprintf("%s %s?", verb, m.ID)) {
				return fmt.Errorf("aborted by user at %s", m.ID)
			}
		}
	}

	var hooks []*graph.Migration
	if withHooks {
		hooks = s.postApply
	}
	return s.eng.Run(ctx, plan, s.cfg.Lock.Timeout, hooks)
}

func describeBatch(b planner.Batch) string {
	if b.Operation == planner.OpBookkeepingOnly {
		if b.Direction == planner.DirApply {
			return "mark"
		}
		return "unmark"
	}
	if b.Direction == planner.DirApply {
		return "apply"
	}
	return "rollback"
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.ToLower(strings.TrimSpace(line)) == "y"
}
