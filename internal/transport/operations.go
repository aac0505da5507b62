package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"brain/internal/executions"
	"brain/internal/memory"
	"brain/internal/orchestrator"
)

// opHandler implements one named operation: decode params, call the
// orchestrator, emit exactly one final chunk (success or error). Every
// operation, execute included, replies with that single chunk.
type opHandler func(ctx context.Context, orch *orchestrator.Orchestrator, params json.RawMessage, emit sink) error

var operations = map[string]opHandler{
	"init":     handleInit,
	"status":   handleStatus,
	"remember": handleRemember,
	"recall":   handleRecall,
	"execute":  handleExecute,
}

type initParams struct {
	SessionID   string `json:"session_id"`
	ContextSize int    `json:"context_size"`
}

func handleInit(ctx context.Context, orch *orchestrator.Orchestrator, raw json.RawMessage, emit sink) error {
	var p initParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode init params: %w", err)
	}
	result, err := orch.Init(ctx, p.SessionID, p.ContextSize)
	if err != nil {
		return err
	}
	emit(Chunk{Data: result, Final: true})
	return nil
}

type statusParams struct {
	SessionID   string `json:"session_id"`
	ExecutionID string `json:"execution_id"`
}

// handleStatus composes the three parts spec §4.4/§6 require: session info,
// system counters, and an optional single-execution status, all in one
// document rather than whichever single part the caller happened to ask for.
func handleStatus(ctx context.Context, orch *orchestrator.Orchestrator, raw json.RawMessage, emit sink) error {
	var p statusParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode status params: %w", err)
	}
	doc, err := orch.Status(ctx, p.SessionID, p.ExecutionID)
	if err != nil {
		return err
	}
	emit(Chunk{Data: doc, Final: true})
	return nil
}

type rememberParams struct {
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value"`
	Type    string          `json:"type"`
	Tags    []string        `json:"tags"`
	Source  string          `json:"source"`
	Context string          `json:"context"`
	Private bool            `json:"private"`
}

func handleRemember(ctx context.Context, orch *orchestrator.Orchestrator, raw json.RawMessage, emit sink) error {
	var p rememberParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode remember params: %w", err)
	}
	var value memory.Document
	if err := json.Unmarshal(p.Value, &value); err != nil {
		return fmt.Errorf("decode remember value: %w", err)
	}
	opts := memory.SetOptions{Type: p.Type, Tags: p.Tags, Source: p.Source, Context: p.Context, Private: p.Private}
	if err := orch.Memory.Set(ctx, p.Key, value, opts); err != nil {
		return err
	}
	emit(Chunk{Data: map[string]string{"key": p.Key}, Final: true})
	return nil
}

type recallParams struct {
	Key   string `json:"key"`
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func handleRecall(ctx context.Context, orch *orchestrator.Orchestrator, raw json.RawMessage, emit sink) error {
	var p recallParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode recall params: %w", err)
	}
	if p.Key != "" {
		entry, found, err := orch.Memory.Get(ctx, p.Key)
		if err != nil {
			return err
		}
		if !found {
			emit(errorChunk("no such memory %q", p.Key))
			return nil
		}
		emit(Chunk{Data: entry, Final: true})
		return nil
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	entries, err := orch.Memory.Search(ctx, p.Query, limit)
	if err != nil {
		return err
	}
	emit(Chunk{Data: entries, Final: true})
	return nil
}

type executeParams struct {
	Code      string `json:"code"`
	Language  string `json:"language"`
	SessionID string `json:"session_id"`
}

// handleExecute queues a job and immediately returns its id: execution is
// asynchronous (spec §4.2), so the client polls `status` for completion
// rather than this handler blocking until the job finishes.
func handleExecute(ctx context.Context, orch *orchestrator.Orchestrator, raw json.RawMessage, emit sink) error {
	var p executeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode execute params: %w", err)
	}
	lang := executions.Language(p.Language)
	if lang != executions.LanguagePython && lang != executions.LanguageShell {
		lang = ""
	}
	id, err := orch.Executions.Queue(ctx, p.Code, lang, p.SessionID)
	if err != nil {
		return err
	}
	emit(Chunk{Data: map[string]string{"execution_id": id, "status": "queued"}, Final: true})
	return nil
}
