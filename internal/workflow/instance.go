// Package workflow implements the workflow instance actor: one actor per
// execution id, advancing an explicit state machine over an ordered list
// of steps. Step execution is externally driven; the actor only records
// progress reported by its callers.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/covalent-hq/conclave/internal/core"
	"github.com/covalent-hq/conclave/internal/events"
	"github.com/covalent-hq/conclave/internal/runtime"
	"github.com/covalent-hq/conclave/internal/storage"
)

// Kind is the actor kind for workflow executions.
const Kind = "execution"

// Storage blob names.
const (
	blobExecution = "execution"
	blobSteps     = "steps"
)

// Instance owns one workflow execution and its steps.
type Instance struct {
	id     string
	store  storage.Store
	hub    *events.Hub
	logger *slog.Logger

	execution *core.Execution
	steps     []*core.Step
}

// NewFactory returns a runtime factory producing workflow instances.
func NewFactory(store storage.Store, logger *slog.Logger) runtime.Factory {
	return func(id string) runtime.Actor {
		return &Instance{
			id:     id,
			store:  store,
			hub:    events.NewHub(0),
			logger: logger.With("kind", Kind, "execution_id", id),
		}
	}
}

// Kind implements runtime.Actor.
func (i *Instance) Kind() string { return Kind }

// ID implements runtime.Actor.
func (i *Instance) ID() string { return i.id }

// Hub implements runtime.Actor.
func (i *Instance) Hub() *events.Hub { return i.hub }

// Load materializes the execution record and steps from storage.
func (i *Instance) Load(ctx context.Context) error {
	part := runtime.Partition(Kind, i.id)

	if data, err := i.store.Get(ctx, part, blobExecution); err == nil {
		i.execution = &core.Execution{}
		if err := json.Unmarshal(data, i.execution); err != nil {
			return core.ErrState(core.CodeStateCorrupted, "execution blob is corrupt").WithCause(err)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return core.ErrStorage("loading execution", err)
	}

	if data, err := i.store.Get(ctx, part, blobSteps); err == nil {
		if err := json.Unmarshal(data, &i.steps); err != nil {
			return core.ErrState(core.CodeStateCorrupted, "steps blob is corrupt").WithCause(err)
		}
		core.SortSteps(i.steps)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return core.ErrStorage("loading steps", err)
	}

	return nil
}

// StepInput describes one step in a start request.
type StepInput struct {
	ID      string          `json:"id,omitempty"`
	AgentID string          `json:"agent_id,omitempty"`
	Order   int             `json:"order"`
	Input   json.RawMessage `json:"input,omitempty"`
}

// Start creates the execution in running state with the first step
// running and the rest pending.
func (i *Instance) Start(ctx context.Context, workflowID string, input json.RawMessage, stepInputs []StepInput) (*core.Execution, error) {
	if i.execution != nil {
		return nil, core.ErrInvalidTransition(core.CodeInvalidState,
			fmt.Sprintf("execution %s already started", i.id))
	}
	if len(stepInputs) == 0 {
		return nil, core.ErrValidation(core.CodeMissingSteps, "at least one step is required")
	}

	exec := core.NewExecution(i.id, workflowID, input)
	steps := make([]*core.Step, 0, len(stepInputs))
	for _, si := range stepInputs {
		stepID := si.ID
		if stepID == "" {
			stepID = uuid.NewString()
		}
		step := &core.Step{
			ID:         stepID,
			WorkflowID: workflowID,
			AgentID:    si.AgentID,
			Order:      si.Order,
			Status:     core.StepStatusPending,
			Input:      si.Input,
			CreatedAt:  exec.CreatedAt,
			UpdatedAt:  exec.CreatedAt,
		}
		steps = append(steps, step)
	}
	core.SortSteps(steps)
	if err := steps[0].Transition(core.StepStatusRunning); err != nil {
		return nil, err
	}

	i.execution = exec
	i.steps = steps
	if err := i.persist(ctx); err != nil {
		i.execution = nil
		i.steps = nil
		return nil, err
	}

	i.logger.Info("execution started", "workflow_id", workflowID, "steps", len(steps))
	i.hub.Broadcast("execution-started", map[string]interface{}{
		"execution": exec,
		"steps":     steps,
	})
	return exec, nil
}

// UpdateProgress applies a status change to one step. Completing a step
// advances the current step index; completing the last step completes
// the execution and fixes its duration.
func (i *Instance) UpdateProgress(ctx context.Context, stepID string, status core.StepStatus, result json.RawMessage, stepErr string, metadata map[string]interface{}) (*core.Step, error) {
	if i.execution == nil {
		return nil, core.ErrNotFound("execution", i.id)
	}
	if i.execution.IsTerminal() {
		return nil, core.ErrInvalidTransition(core.CodeExecutionTerminal,
			fmt.Sprintf("execution %s is %s", i.id, i.execution.Status))
	}

	var step *core.Step
	stepIdx := -1
	for idx, s := range i.steps {
		if s.ID == stepID {
			step, stepIdx = s, idx
			break
		}
	}
	if step == nil {
		return nil, &core.DomainError{
			Category: core.ErrCatNotFound,
			Code:     core.CodeStepNotFound,
			Message:  fmt.Sprintf("step not found: %s", stepID),
		}
	}

	// Steps run strictly in order: a step may not start before every
	// earlier step is terminal. Marking a later step terminal directly
	// (skip, fail) remains an orchestrator decision.
	if status == core.StepStatusRunning {
		for _, earlier := range i.steps[:stepIdx] {
			if !core.IsTerminalStep(earlier.Status) {
				return nil, core.ErrInvalidTransition(core.CodeStepOutOfOrder,
					fmt.Sprintf("step %s cannot start before step %s finishes", step.ID, earlier.ID))
			}
		}
	}

	prev := *step
	prevExec := *i.execution

	if err := step.Transition(status); err != nil {
		return nil, err
	}
	if result != nil {
		step.Result = result
	}
	if stepErr != "" {
		step.Error = stepErr
	}
	if metadata != nil {
		if step.Metadata == nil {
			step.Metadata = make(map[string]interface{})
		}
		for k, v := range metadata {
			step.Metadata[k] = v
		}
	}

	executionChanged := false
	if status == core.StepStatusCompleted {
		i.execution.CurrentStepIndex++
		i.execution.UpdatedAt = step.UpdatedAt
		if i.execution.CurrentStepIndex >= len(i.steps) {
			if err := i.execution.Complete(); err != nil {
				*step = prev
				*i.execution = prevExec
				return nil, err
			}
		}
		executionChanged = true
	}

	if err := i.persist(ctx); err != nil {
		*step = prev
		*i.execution = prevExec
		return nil, err
	}

	i.hub.Broadcast("step-progress", map[string]interface{}{
		"step":               step,
		"current_step_index": i.execution.CurrentStepIndex,
	})
	if executionChanged {
		i.hub.Broadcast("execution-updated", map[string]interface{}{"execution": i.execution})
	}
	return step, nil
}

// Pause transitions the execution from running to paused.
func (i *Instance) Pause(ctx context.Context) (*core.Execution, error) {
	if i.execution == nil {
		return nil, core.ErrNotFound("execution", i.id)
	}
	prev := *i.execution
	if err := i.execution.Pause(); err != nil {
		return nil, err
	}
	if err := i.persist(ctx); err != nil {
		*i.execution = prev
		return nil, err
	}
	i.hub.Broadcast("execution-paused", map[string]interface{}{"execution": i.execution})
	return i.execution, nil
}

// Resume transitions the execution from paused back to running.
func (i *Instance) Resume(ctx context.Context) (*core.Execution, error) {
	if i.execution == nil {
		return nil, core.ErrNotFound("execution", i.id)
	}
	prev := *i.execution
	if err := i.execution.Resume(); err != nil {
		return nil, err
	}
	if err := i.persist(ctx); err != nil {
		*i.execution = prev
		return nil, err
	}
	i.hub.Broadcast("execution-resumed", map[string]interface{}{"execution": i.execution})
	return i.execution, nil
}

// Cancel transitions the execution to cancelled. Irreversible.
func (i *Instance) Cancel(ctx context.Context) (*core.Execution, error) {
	if i.execution == nil {
		return nil, core.ErrNotFound("execution", i.id)
	}
	prev := *i.execution
	if err := i.execution.Cancel(); err != nil {
		return nil, err
	}
	if err := i.persist(ctx); err != nil {
		*i.execution = prev
		return nil, err
	}
	i.logger.Info("execution cancelled")
	i.hub.Broadcast("execution-cancelled", map[string]interface{}{"execution": i.execution})
	return i.execution, nil
}

// Execution returns the execution record, or a not-found error before Start.
func (i *Instance) Execution() (*core.Execution, error) {
	if i.execution == nil {
		return nil, core.ErrNotFound("execution", i.id)
	}
	return i.execution, nil
}

// Steps returns the ordered step list.
func (i *Instance) Steps() []*core.Step {
	out := make([]*core.Step, len(i.steps))
	copy(out, i.steps)
	return out
}

// persist writes the execution record and steps to the actor partition.
func (i *Instance) persist(ctx context.Context) error {
	part := runtime.Partition(Kind, i.id)

	execData, err := json.Marshal(i.execution)
	if err != nil {
		return core.ErrState(core.CodeStateCorrupted, "marshaling execution").WithCause(err)
	}
	stepsData, err := json.Marshal(i.steps)
	if err != nil {
		return core.ErrState(core.CodeStateCorrupted, "marshaling steps").WithCause(err)
	}

	err = i.store.PutMulti(ctx, part, map[string][]byte{
		blobExecution: execData,
		blobSteps:     stepsData,
	})
	if err != nil {
		return core.ErrStorage("persisting execution", err)
	}
	return nil
}
