package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/covalent-hq/conclave/internal/core"
	"github.com/covalent-hq/conclave/internal/runtime"
	"github.com/covalent-hq/conclave/internal/workflow"
)

type executionStartRequest struct {
	WorkflowID string               `json:"workflowId"`
	Input      json.RawMessage      `json:"input"`
	Steps      []workflow.StepInput `json:"steps"`
}

type executionProgressRequest struct {
	StepID   string                 `json:"stepId"`
	Status   core.StepStatus        `json:"status"`
	Result   json.RawMessage        `json:"result"`
	Error    string                 `json:"error"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (s *Server) handleExecutionStart(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")

	var req executionStartRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var exec *core.Execution
	err := runtime.Do(s.rt, r.Context(), workflow.Kind, executionID, func(ctx context.Context, i *workflow.Instance) error {
		var opErr error
		exec, opErr = i.Start(ctx, req.WorkflowID, req.Input, req.Steps)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, exec)
}

func (s *Server) handleExecutionProgress(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")

	var req executionProgressRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var step *core.Step
	err := runtime.Do(s.rt, r.Context(), workflow.Kind, executionID, func(ctx context.Context, i *workflow.Instance) error {
		var opErr error
		step, opErr = i.UpdateProgress(ctx, req.StepID, req.Status, req.Result, req.Error, req.Metadata)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, step)
}

// handleExecutionLifecycle factors the three state transitions that take
// no request body.
func (s *Server) handleExecutionLifecycle(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, i *workflow.Instance) (*core.Execution, error)) {
	executionID := chi.URLParam(r, "executionID")

	var exec *core.Execution
	err := runtime.Do(s.rt, r.Context(), workflow.Kind, executionID, func(ctx context.Context, i *workflow.Instance) error {
		var opErr error
		exec, opErr = op(ctx, i)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, exec)
}

func (s *Server) handleExecutionPause(w http.ResponseWriter, r *http.Request) {
	s.handleExecutionLifecycle(w, r, func(ctx context.Context, i *workflow.Instance) (*core.Execution, error) {
		return i.Pause(ctx)
	})
}

func (s *Server) handleExecutionResume(w http.ResponseWriter, r *http.Request) {
	s.handleExecutionLifecycle(w, r, func(ctx context.Context, i *workflow.Instance) (*core.Execution, error) {
		return i.Resume(ctx)
	})
}

func (s *Server) handleExecutionCancel(w http.ResponseWriter, r *http.Request) {
	s.handleExecutionLifecycle(w, r, func(ctx context.Context, i *workflow.Instance) (*core.Execution, error) {
		return i.Cancel(ctx)
	})
}

func (s *Server) handleExecutionStatus(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")

	var exec *core.Execution
	err := runtime.Do(s.rt, r.Context(), workflow.Kind, executionID, func(_ context.Context, i *workflow.Instance) error {
		var opErr error
		exec, opErr = i.Execution()
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, exec)
}

func (s *Server) handleExecutionSteps(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")

	var steps []*core.Step
	err := runtime.Do(s.rt, r.Context(), workflow.Kind, executionID, func(_ context.Context, i *workflow.Instance) error {
		steps = i.Steps()
		return nil
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, steps)
}

func (s *Server) handleExecutionEvents(w http.ResponseWriter, r *http.Request) {
	s.streamEvents(w, r, workflow.Kind, chi.URLParam(r, "executionID"))
}
