package core

import (
	"testing"
	"time"
)

func TestStepTransition_HappyPath(t *testing.T) {
	step := &Step{ID: "s1", Status: StepStatusPending, CreatedAt: time.Now()}

	if err := step.Transition(StepStatusRunning); err != nil {
		t.Fatalf("pending -> running: %v", err)
	}
	if step.StartedAt == nil {
		t.Error("expected StartedAt to be stamped on running")
	}

	if err := step.Transition(StepStatusCompleted); err != nil {
		t.Fatalf("running -> completed: %v", err)
	}
	if step.CompletedAt == nil {
		t.Error("expected CompletedAt to be stamped on completion")
	}
}

func TestStepTransition_RejectsRegression(t *testing.T) {
	step := &Step{ID: "s1", Status: StepStatusRunning}

	err := step.Transition(StepStatusPending)
	if err == nil {
		t.Fatal("expected regression running -> pending to be rejected")
	}
	if GetCategory(err) != ErrCatConflict {
		t.Errorf("expected conflict category, got %s", GetCategory(err))
	}
	if step.Status != StepStatusRunning {
		t.Errorf("status should be unchanged, got %s", step.Status)
	}
}

func TestStepTransition_TerminalIsImmutable(t *testing.T) {
	step := &Step{ID: "s1", Status: StepStatusPending}
	if err := step.Transition(StepStatusFailed); err != nil {
		t.Fatalf("pending -> failed: %v", err)
	}

	for _, next := range []StepStatus{StepStatusRunning, StepStatusCompleted, StepStatusSkipped} {
		if err := step.Transition(next); err == nil {
			t.Errorf("failed -> %s should be rejected", next)
		}
	}

	// Re-asserting the same terminal status is also rejected upstream,
	// but must never mutate timestamps.
	completed := *step.CompletedAt
	_ = step.Transition(StepStatusFailed)
	if !step.CompletedAt.Equal(completed) {
		t.Error("terminal timestamps must not change")
	}
}

func TestStepTransition_UnknownStatus(t *testing.T) {
	step := &Step{ID: "s1", Status: StepStatusPending}
	err := step.Transition(StepStatus("bogus"))
	if err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
	if GetCategory(err) != ErrCatValidation {
		t.Errorf("expected validation category, got %s", GetCategory(err))
	}
}

func TestExecution_PauseResume(t *testing.T) {
	exec := NewExecution("e1", "wf1", nil)
	if exec.Status != ExecutionStatusRunning {
		t.Fatalf("new execution should be running, got %s", exec.Status)
	}

	if err := exec.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := exec.Pause(); err == nil {
		t.Error("pausing a paused execution should fail")
	}
	if err := exec.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := exec.Resume(); err == nil {
		t.Error("resuming a running execution should fail")
	}
}

func TestExecution_CompleteFromPaused(t *testing.T) {
	exec := NewExecution("e1", "wf1", nil)
	if err := exec.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := exec.Complete(); err != nil {
		t.Fatalf("complete from paused: %v", err)
	}
	if exec.Status != ExecutionStatusCompleted {
		t.Errorf("expected completed, got %s", exec.Status)
	}
}

func TestExecution_TerminalIsImmutable(t *testing.T) {
	exec := NewExecution("e1", "wf1", nil)
	if err := exec.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := exec.Pause(); err == nil {
		t.Error("pause after cancel should fail")
	}
	if err := exec.Resume(); err == nil {
		t.Error("resume after cancel should fail")
	}
	if err := exec.Cancel(); err == nil {
		t.Error("double cancel should fail")
	}
	if err := exec.Fail(); err == nil {
		t.Error("fail after cancel should fail")
	}
}

func TestExecution_DurationFixedAtCompletion(t *testing.T) {
	exec := NewExecution("e1", "wf1", nil)
	started := time.Now().Add(-2 * time.Second)
	exec.StartedAt = &started

	if err := exec.Complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}

	d1 := exec.Duration()
	time.Sleep(10 * time.Millisecond)
	d2 := exec.Duration()
	if d1 != d2 {
		t.Errorf("terminal duration should be fixed: %v vs %v", d1, d2)
	}
	if d1 < 2*time.Second {
		t.Errorf("duration should cover elapsed time, got %v", d1)
	}
}

func TestSortSteps(t *testing.T) {
	now := time.Now()
	steps := []*Step{
		{ID: "c", Order: 2, CreatedAt: now},
		{ID: "a", Order: 0, CreatedAt: now},
		{ID: "b", Order: 1, CreatedAt: now},
		{ID: "b2", Order: 1, CreatedAt: now.Add(time.Second)},
	}
	SortSteps(steps)

	want := []string{"a", "b", "b2", "c"}
	for i, id := range want {
		if steps[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, steps[i].ID)
		}
	}
}
