// Package transport exposes the Orchestrator's five named operations
// (init, status, remember, recall, execute) over newline-delimited JSON on
// a Unix domain socket. Grounded on the teacher's cmd/nerd/main.go table-
// of-contents command dispatch style, generalized from in-process cobra
// subcommands to a wire protocol since Brain's server and CLI clients are
// separate processes (spec §2). There is no pack library for a bespoke
// local RPC framework; every repo in the pack reaches for the standard
// library's net/encoding-json at exactly this kind of boundary, so this
// package does the same rather than inventing or importing one.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"

	"brain/internal/logging"
	"brain/internal/orchestrator"
)

// Request is one line of the wire protocol: an operation name plus its
// opaque JSON params.
type Request struct {
	ID     string          `json:"id"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params"`
}

// Chunk is one line of a response stream. Final is true on the last chunk
// for a given request id. Errors are delivered as a terminal chunk with
// Error set, never as a protocol-level exception or dropped connection —
// per spec §4.5's "errors are data, not control flow" requirement.
type Chunk struct {
	ID    string      `json:"id"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
	Final bool        `json:"final"`
}

// Server accepts connections on a Unix domain socket and dispatches each
// line-delimited request to the Orchestrator.
type Server struct {
	orch *orchestrator.Orchestrator
	log  *zap.Logger
}

// New constructs a transport Server bound to an already-running Orchestrator.
func New(orch *orchestrator.Orchestrator, log *zap.Logger) *Server {
	return &Server{orch: orch, log: logging.For(log, "transport")}
}

// Serve listens on socketPath until ctx is cancelled. Any pre-existing
// socket file at that path is removed first, matching the usual Unix
// domain socket restart convention.
func (s *Server) Serve(ctx context.Context, socketPath string) error {
	ln, err := listenUnix(socketPath)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewScanner(conn)
	reader.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	enc := json.NewEncoder(conn)

	for reader.Scan() {
		var req Request
		if err := json.Unmarshal(reader.Bytes(), &req); err != nil {
			_ = enc.Encode(errorChunk("malformed request: %v", err))
			continue
		}
		s.dispatch(ctx, req, func(c Chunk) {
			c.ID = req.ID
			if encErr := enc.Encode(c); encErr != nil {
				s.log.Warn("failed to write response chunk", zap.Error(encErr))
			}
		})
	}
	if err := reader.Err(); err != nil {
		s.log.Warn("connection read error", zap.Error(err))
	}
}

// sink is the lazy chunk callback a dispatched operation writes its
// response (or error) through, generalized from the teacher's
// func(AuditEvent) audit callback (internal/tactile/audit.go) into a
// func(Chunk) streaming-response sink.
type sink func(Chunk)

// dispatch routes one request to its operation handler. Unknown operations
// and handler errors both surface as a single terminal error chunk rather
// than closing the connection, so one bad request never takes down a
// client's session.
func (s *Server) dispatch(ctx context.Context, req Request, emit sink) {
	handler, ok := operations[req.Op]
	if !ok {
		emit(errorChunk("unknown operation %q", req.Op))
		return
	}
	if err := handler(ctx, s.orch, req.Params, emit); err != nil {
		emit(errorChunk("%v", err))
		return
	}
}

// errorChunk builds a terminal error chunk prefixed with a warning glyph,
// per spec §6: "errors propagate as terminal text chunks prefixed with a
// warning glyph".
func errorChunk(format string, args ...interface{}) Chunk {
	return Chunk{Error: "⚠️ Error: " + fmt.Sprintf(format, args...), Final: true}
}

var errNotImplemented = errors.New("operation not implemented")
