package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ExecutionStatus represents the current state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// StepStatus represents the current state of a single workflow step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// stepRank orders step statuses so that regressions can be rejected.
// Terminal statuses share the highest rank.
var stepRank = map[StepStatus]int{
	StepStatusPending:   0,
	StepStatusRunning:   1,
	StepStatusCompleted: 2,
	StepStatusFailed:    2,
	StepStatusSkipped:   2,
}

// ValidStepStatus reports whether s names a known step status.
func ValidStepStatus(s StepStatus) bool {
	_, ok := stepRank[s]
	return ok
}

// IsTerminalStep returns true if the step status permits no further change.
func IsTerminalStep(s StepStatus) bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

// Step represents a unit of work in a workflow execution.
type Step struct {
	ID          string                 `json:"id"`
	WorkflowID  string                 `json:"workflow_id,omitempty"`
	AgentID     string                 `json:"agent_id,omitempty"`
	Order       int                    `json:"order"`
	Status      StepStatus             `json:"status"`
	Input       json.RawMessage        `json:"input,omitempty"`
	Result      json.RawMessage        `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Transition applies a new status to the step. A step may only advance
// pending -> running -> {completed|failed|skipped}; any regression or
// mutation of a terminal step is rejected.
func (s *Step) Transition(status StepStatus) error {
	if !ValidStepStatus(status) {
		return ErrValidation(CodeInvalidStatus, fmt.Sprintf("unknown step status %q", status))
	}
	if IsTerminalStep(s.Status) && status != s.Status {
		return ErrInvalidTransition(CodeStepRegression,
			fmt.Sprintf("step %s is already %s", s.ID, s.Status))
	}
	if stepRank[status] < stepRank[s.Status] {
		return ErrInvalidTransition(CodeStepRegression,
			fmt.Sprintf("step %s cannot move from %s to %s", s.ID, s.Status, status))
	}
	now := time.Now()
	if status == StepStatusRunning && s.StartedAt == nil {
		s.StartedAt = &now
	}
	if IsTerminalStep(status) && s.CompletedAt == nil {
		if s.StartedAt == nil {
			s.StartedAt = &now
		}
		s.CompletedAt = &now
	}
	s.Status = status
	s.UpdatedAt = now
	return nil
}

// Execution represents one workflow run with its ordered steps.
type Execution struct {
	ID               string          `json:"id"`
	WorkflowID       string          `json:"workflow_id,omitempty"`
	Status           ExecutionStatus `json:"status"`
	CurrentStepIndex int             `json:"current_step_index"`
	Input            json.RawMessage `json:"input,omitempty"`
	Output           json.RawMessage `json:"output,omitempty"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	DurationMillis   int64           `json:"duration_ms,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewExecution creates an execution in running state with the clock started.
func NewExecution(id, workflowID string, input json.RawMessage) *Execution {
	now := time.Now()
	return &Execution{
		ID:         id,
		WorkflowID: workflowID,
		Status:     ExecutionStatusRunning,
		Input:      input,
		StartedAt:  &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsTerminal returns true if the execution is in a terminal state.
func (e *Execution) IsTerminal() bool {
	return e.Status == ExecutionStatusCompleted ||
		e.Status == ExecutionStatusFailed ||
		e.Status == ExecutionStatusCancelled
}

// Pause transitions the execution from running to paused.
func (e *Execution) Pause() error {
	if e.Status != ExecutionStatusRunning {
		return ErrInvalidTransition(CodeInvalidState,
			fmt.Sprintf("cannot pause execution in %s state", e.Status))
	}
	e.Status = ExecutionStatusPaused
	e.UpdatedAt = time.Now()
	return nil
}

// Resume transitions the execution from paused back to running.
func (e *Execution) Resume() error {
	if e.Status != ExecutionStatusPaused {
		return ErrInvalidTransition(CodeInvalidState,
			fmt.Sprintf("cannot resume execution in %s state", e.Status))
	}
	e.Status = ExecutionStatusRunning
	e.UpdatedAt = time.Now()
	return nil
}

// Cancel transitions the execution to cancelled. Legal from any
// non-terminal state; irreversible.
func (e *Execution) Cancel() error {
	if e.IsTerminal() {
		return ErrInvalidTransition(CodeExecutionTerminal,
			fmt.Sprintf("execution %s is already %s", e.ID, e.Status))
	}
	e.Status = ExecutionStatusCancelled
	e.finish()
	return nil
}

// Complete transitions the execution to completed. Legal from running or
// paused: a paused execution may still receive the final step completion.
func (e *Execution) Complete() error {
	if e.Status != ExecutionStatusRunning && e.Status != ExecutionStatusPaused {
		return ErrInvalidTransition(CodeInvalidState,
			fmt.Sprintf("cannot complete execution in %s state", e.Status))
	}
	e.Status = ExecutionStatusCompleted
	e.finish()
	return nil
}

// Fail transitions the execution to failed.
func (e *Execution) Fail() error {
	if e.IsTerminal() {
		return ErrInvalidTransition(CodeExecutionTerminal,
			fmt.Sprintf("execution %s is already %s", e.ID, e.Status))
	}
	e.Status = ExecutionStatusFailed
	e.finish()
	return nil
}

// finish stamps completion time and fixes the duration. Duration is never
// recomputed once a terminal state is reached.
func (e *Execution) finish() {
	now := time.Now()
	e.CompletedAt = &now
	e.UpdatedAt = now
	if e.StartedAt != nil {
		e.DurationMillis = now.Sub(*e.StartedAt).Milliseconds()
	}
}

// Duration returns the execution duration. For a live execution this is
// the elapsed time so far; for a finished one it is the fixed duration.
func (e *Execution) Duration() time.Duration {
	if e.IsTerminal() {
		return time.Duration(e.DurationMillis) * time.Millisecond
	}
	if e.StartedAt == nil {
		return 0
	}
	return time.Since(*e.StartedAt)
}

// SortSteps orders steps by their order field, ties broken by creation
// time so the sequence is stable.
func SortSteps(steps []*Step) {
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].Order != steps[j].Order {
			return steps[i].Order < steps[j].Order
		}
		return steps[i].CreatedAt.Before(steps[j].CreatedAt)
	})
}
