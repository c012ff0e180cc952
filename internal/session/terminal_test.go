package session

import (
	"context"
	"testing"

	"github.com/covalent-hq/conclave/internal/core"
	"github.com/covalent-hq/conclave/internal/logging"
)

func newTestTerminal(t *testing.T) *Terminal {
	t.Helper()
	term := NewTerminalFactory(newTestStore(t), logging.NewNop().Logger)("term-1").(*Terminal)
	if err := term.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return term
}

func TestTerminal_CommandLifecycle(t *testing.T) {
	term := newTestTerminal(t)
	ctx := context.Background()

	cmd, err := term.StartCommand(ctx, "go test ./...")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if cmd.Status != core.CommandStatusRunning {
		t.Errorf("new command should be running, got %s", cmd.Status)
	}
	if cmd.StartedAt == nil {
		t.Error("StartedAt should be stamped")
	}

	code := 1
	updated, err := term.UpdateCommand(ctx, cmd.ID, core.CommandStatusFailed, &code, "FAIL\n")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ExitCode == nil || *updated.ExitCode != 1 {
		t.Error("exit code should be recorded")
	}
	if updated.Output != "FAIL\n" {
		t.Errorf("output: %q", updated.Output)
	}

	if _, err := term.UpdateCommand(ctx, cmd.ID, core.CommandStatusRunning, nil, ""); err == nil {
		t.Error("finished command must be immutable")
	}
}

func TestTerminal_OutputAccumulates(t *testing.T) {
	term := newTestTerminal(t)
	ctx := context.Background()

	cmd, err := term.StartCommand(ctx, "tail -f log")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := term.UpdateCommand(ctx, cmd.ID, core.CommandStatusRunning, nil, "line 1\n"); err != nil {
		t.Fatal(err)
	}
	updated, err := term.UpdateCommand(ctx, cmd.ID, core.CommandStatusRunning, nil, "line 2\n")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Output != "line 1\nline 2\n" {
		t.Errorf("output should accumulate, got %q", updated.Output)
	}
}

func TestTerminal_Validation(t *testing.T) {
	term := newTestTerminal(t)
	ctx := context.Background()

	if _, err := term.StartCommand(ctx, ""); err == nil {
		t.Error("empty command should be rejected")
	}

	_, err := term.UpdateCommand(ctx, "ghost", core.CommandStatusCompleted, nil, "")
	if err == nil {
		t.Fatal("unknown command id should be rejected")
	}
	if core.GetCategory(err) != core.ErrCatNotFound {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestTerminal_Clear(t *testing.T) {
	term := newTestTerminal(t)
	ctx := context.Background()

	_, _ = term.StartCommand(ctx, "ls")
	_, _ = term.StartCommand(ctx, "pwd")

	cleared, err := term.Clear(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cleared != 2 || len(term.Commands()) != 0 {
		t.Errorf("cleared=%d remaining=%d", cleared, len(term.Commands()))
	}
}
