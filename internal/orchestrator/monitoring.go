package orchestrator

import (
	"context"
	"fmt"

	"brain/internal/executions"
	"brain/internal/memory"
	"brain/internal/sessions"
)

// HealthSummary is the read-only snapshot the `status` operation and the
// server's health check endpoint both report, per spec §4.4.
type HealthSummary struct {
	MemoryStats      memory.Stats         `json:"memory_stats"`
	RecentExecutions []executions.Summary `json:"recent_executions"`
}

// Health gathers a point-in-time summary across components. It never
// mutates state, matching spec §4.4's "monitoring is read-only" invariant.
func (o *Orchestrator) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := o.Memory.Stats(ctx)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("memory stats: %w", err)
	}
	recent, err := o.Executions.ListRecent(ctx, "", 20)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("recent executions: %w", err)
	}
	return HealthSummary{MemoryStats: stats, RecentExecutions: recent}, nil
}

// ExecutionDetail is GetExecution's response: lifecycle metadata plus the
// output bodies, fetched lazily only when a caller actually asks for one
// execution's detail rather than the list view.
type ExecutionDetail struct {
	Status executions.StatusView `json:"status"`
	Output executions.Output     `json:"output"`
}

// GetExecution fetches one execution's full detail, including its output
// bodies. Returns found=false if no such execution exists.
func (o *Orchestrator) GetExecution(ctx context.Context, id string) (detail ExecutionDetail, found bool, err error) {
	status, ok, err := o.Executions.GetStatus(ctx, id)
	if err != nil || !ok {
		return ExecutionDetail{}, ok, err
	}
	output, _, err := o.Executions.GetOutput(ctx, id)
	if err != nil {
		return ExecutionDetail{}, true, err
	}
	return ExecutionDetail{Status: status, Output: output}, true, nil
}

// StatusDocument is the `status` operation's composite response, per spec
// §4.4/§6: session info, the always-present system counters, and an
// optional single-execution status, merged into one document rather than
// whichever single part happened to be requested.
type StatusDocument struct {
	Session   *sessions.Session `json:"session,omitempty"`
	System    HealthSummary     `json:"system"`
	Execution *ExecutionDetail  `json:"execution,omitempty"`
}

// Status composes the three parts spec §4.4 describes for the `status`
// operation. sessionID and executionID are both optional; either, both, or
// neither may be supplied. An unknown session or execution id is not an
// error: that part of the document is simply omitted, per spec §7's
// not-found semantics.
func (o *Orchestrator) Status(ctx context.Context, sessionID, executionID string) (StatusDocument, error) {
	var doc StatusDocument

	system, err := o.Health(ctx)
	if err != nil {
		return StatusDocument{}, err
	}
	doc.System = system

	if sessionID != "" {
		sess, err := o.Sessions.Get(ctx, sessionID)
		if err != nil {
			return StatusDocument{}, fmt.Errorf("lookup session: %w", err)
		}
		doc.Session = sess
	}

	if executionID != "" {
		detail, found, err := o.GetExecution(ctx, executionID)
		if err != nil {
			return StatusDocument{}, fmt.Errorf("lookup execution: %w", err)
		}
		if found {
			doc.Execution = &detail
		}
	}

	return doc, nil
}
