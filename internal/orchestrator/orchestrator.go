// Package orchestrator wires C1/C2/C3 into the single component bundle the
// server process hands to its transport, and runs the periodic maintenance
// the teacher's cmd/nerd/main.go bootstraps inline (config -> logger ->
// store -> components), generalized here into a "construct once, hand out
// immutable handles" shape instead of the teacher's single mutable object
// threaded through every command.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"brain/internal/config"
	"brain/internal/executions"
	"brain/internal/logging"
	"brain/internal/memory"
	"brain/internal/sessions"
	"brain/internal/store"
)

// Orchestrator owns the three domain components and the maintenance
// schedule described in spec §4.4: memory rebalance, stale-claim sweep,
// and session cleanup all run from here rather than from the transport
// layer, which only ever calls the five named operations.
type Orchestrator struct {
	Store     *store.Store
	Memory    *memory.Memory
	Sessions  *sessions.Sessions
	Executions *executions.Executions

	cfg *config.Config
	log *zap.Logger
}

// New constructs every component against a single already-open store. The
// caller is responsible for eventually calling Close.
func New(st *store.Store, cfg *config.Config, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		Store:      st,
		Memory:     memory.New(st.DB, cfg.Memory, log),
		Sessions:   sessions.New(st.DB, cfg.Session, log),
		Executions: executions.New(st.DB, cfg.Execution, log),
		cfg:        cfg,
		log:        logging.For(log, "orchestrator"),
	}
}

// Close stops background loops owned directly by components; it does not
// close the underlying store, since the caller opened it.
func (o *Orchestrator) Close() {
	o.Memory.Close()
	o.Sessions.Close()
}

// MemoryRef is a trimmed memory entry as embedded in the init document's
// context, per spec §4.4's search-result field vocabulary.
type MemoryRef struct {
	Key   string          `json:"key"`
	Value memory.Document `json:"value"`
	Type  string          `json:"type"`
	Tags  []string        `json:"tags"`
	Score float64         `json:"score"`
}

// InitContext is the init document's `context` field: up to three buckets
// drawn from the bounded context set, per spec §4.4.
type InitContext struct {
	Preferences    memory.Document `json:"preferences"`
	ActiveProject  memory.Document `json:"active_project"`
	RecentMemories []MemoryRef     `json:"recent_memories"`
}

// InitDocument is the exact wire document spec §4.4/§6 require from the
// `init` operation: `{session_id, status, user, context, loaded_memories,
// suggestions}`.
type InitDocument struct {
	SessionID      string      `json:"session_id"`
	Status         string      `json:"status"`
	User           string      `json:"user"`
	Context        InitContext `json:"context"`
	LoadedMemories int         `json:"loaded_memories"`
	Suggestions    []string    `json:"suggestions"`
}

// Init implements the `init` operation (spec §4.1/§4.4): load the top memory
// entries by priority bucket, resume a session if one is supplied and still
// live, otherwise create one with that snapshot stored as its
// initial_context, and assemble the caller-facing document described in
// spec §4.4. A resumed session keeps the initial_context captured when it
// was created.
func (o *Orchestrator) Init(ctx context.Context, existingSessionID string, contextSize int) (*InitDocument, error) {
	if contextSize <= 0 {
		contextSize = 300
	}

	entries, err := o.Memory.TopForInit(ctx, contextSize)
	if err != nil {
		return nil, fmt.Errorf("load initial context: %w", err)
	}

	snapshot := make(map[string]interface{}, len(entries))
	for _, e := range entries {
		snapshot[e.Key] = e.Value
	}

	status := "new"
	var sess *sessions.Session
	if existingSessionID != "" {
		found, err := o.Sessions.Get(ctx, existingSessionID)
		if err != nil {
			return nil, fmt.Errorf("resume session: %w", err)
		}
		if found != nil {
			sess = found
			status = "resumed"
		}
	}
	if sess == nil {
		created, err := o.Sessions.Create(ctx, snapshot)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		sess = created
	}

	return &InitDocument{
		SessionID:      sess.ID,
		Status:         status,
		User:           sess.UserID,
		Context:        buildInitContext(entries),
		LoadedMemories: len(entries),
		Suggestions:    []string{},
	}, nil
}

// buildInitContext splits the bounded context set into the three subfields
// spec §4.4 names: the user_preferences entry, the active_project entry,
// and everything else as recent_memories. preferences/active_project are
// null (not an empty object) when no such entry was loaded, matching E2E
// scenario 1's `context.preferences=null`.
func buildInitContext(entries []memory.Entry) InitContext {
	ic := InitContext{RecentMemories: []MemoryRef{}}
	for _, e := range entries {
		switch e.Type {
		case memory.TypeUserPreferences:
			if ic.Preferences == nil {
				ic.Preferences = e.Value
				continue
			}
		case memory.TypeActiveProject:
			if ic.ActiveProject == nil {
				ic.ActiveProject = e.Value
				continue
			}
		}
		ic.RecentMemories = append(ic.RecentMemories, MemoryRef{
			Key: e.Key, Value: e.Value, Type: e.Type, Tags: e.Tags, Score: e.Score,
		})
	}
	return ic
}

// RunMaintenance blocks running the three periodic maintenance loops (memory
// rebalance, stale-claim sweep, session cleanup) until ctx is cancelled. It
// performs one stale-claim sweep up front, before the ticking loops start,
// so that a restart reclaims any jobs orphaned by the previous process
// before new work is accepted (spec §4.2's startup recovery requirement).
func (o *Orchestrator) RunMaintenance(ctx context.Context) error {
	threshold := o.cfg.Execution.StaleClaimThreshold
	if threshold <= 0 {
		threshold = 2 * time.Minute
	}
	requeued, failed, err := executions.RequeueStale(ctx, o.Store.DB, threshold)
	if err != nil {
		return fmt.Errorf("startup stale-claim sweep: %w", err)
	}
	o.log.Info("startup stale-claim sweep complete", zap.Int("requeued", requeued), zap.Int("failed", failed))

	o.Memory.StartRebalance(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.sweepStaleClaimsLoop(gctx) })
	g.Go(func() error { return o.sessionCleanupLoop(gctx) })
	return g.Wait()
}

func (o *Orchestrator) sweepStaleClaimsLoop(ctx context.Context) error {
	interval := o.cfg.Execution.StaleClaimSweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	threshold := o.cfg.Execution.StaleClaimThreshold
	if threshold <= 0 {
		threshold = 2 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			requeued, failed, err := executions.RequeueStale(ctx, o.Store.DB, threshold)
			if err != nil {
				o.log.Warn("stale-claim sweep failed", zap.Error(err))
				continue
			}
			if requeued > 0 || failed > 0 {
				o.log.Info("stale-claim sweep", zap.Int("requeued", requeued), zap.Int("failed", failed))
			}
		}
	}
}

func (o *Orchestrator) sessionCleanupLoop(ctx context.Context) error {
	interval := o.cfg.Session.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := o.Sessions.Cleanup(ctx)
			if err != nil {
				o.log.Warn("session cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				o.log.Info("expired sessions reaped", zap.Int("count", n))
			}
		}
	}
}
