// Package rpc implements the line-delimited JSON-RPC 2.0 stdio transport of
// spec §6. Spec §1 places the dispatch layer out of scope as an external
// collaborator; this is the minimal, faithful surface (initialize,
// tools/list, tools/call) needed to make the gateway a runnable program,
// grounded on internal/mcp/transport_stdio.go's bufio.Scanner read loop —
// mirrored, since here the process is the server rather than the
// subprocess-spawning client.
package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/modelbridge/gateway/internal/rpcerr"
	"github.com/modelbridge/gateway/internal/toolrouter"
)

const protocolVersion = "2024-11-05"

// Server reads line-delimited JSON-RPC 2.0 requests from an input stream
// and writes responses to an output stream, dispatching tool calls through
// a toolrouter.Router.
type Server struct {
	router  *toolrouter.Router
	logger  *slog.Logger
	writeMu sync.Mutex
}

// NewServer builds a Server over a tool router.
func NewServer(router *toolrouter.Router, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{router: router, logger: logger}
}

// Serve reads requests from in until it is closed or ctx is cancelled,
// dispatching each on its own goroutine (the per-provider semaphores in
// internal/concurrency bound actual upstream concurrency, so the transport
// itself does not serialize requests) and writing responses to out.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var wg sync.WaitGroup
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lineCopy := append([]byte(nil), line...)

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleLine(ctx, lineCopy, out)
		}()

		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		default:
		}
	}
	wg.Wait()
	return scanner.Err()
}

func (s *Server) handleLine(ctx context.Context, line []byte, out io.Writer) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeError(out, nil, rpcerr.New(rpcerr.KindParseError, "invalid JSON: "+err.Error()))
		return
	}

	isNotification := len(req.ID) == 0 || string(req.ID) == "null"
	var id any
	if !isNotification {
		if err := json.Unmarshal(req.ID, &id); err != nil {
			id = nil
		}
	}

	result, err := s.dispatch(ctx, req.Method, req.Params)
	if isNotification {
		// Spec §6: notifications receive no response, even on error.
		if err != nil {
			s.logger.Warn("notification failed", "method", req.Method, "error", err)
		}
		return
	}

	if err != nil {
		s.writeError(out, id, err)
		return
	}
	s.writeResult(out, id, result)
}

func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "initialize":
		return initializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      serverInfo{Name: "modelbridge-gateway", Version: "1.0.0"},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		}, nil
	case "tools/list":
		return s.handleToolsList(), nil
	case "tools/call":
		return s.handleToolsCall(ctx, params)
	default:
		return nil, rpcerr.New(rpcerr.KindMethodNotFound, fmt.Sprintf("method not found: %q", method))
	}
}

func (s *Server) handleToolsList() toolsListResult {
	descriptors := s.router.List()
	tools := make([]toolDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, toolDescriptor{Name: d.Name, Description: d.Description, InputSchema: d.Schema})
	}
	return toolsListResult{Tools: tools}
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var call toolCallParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, rpcerr.New(rpcerr.KindInvalidParams, "invalid tools/call params: "+err.Error())
	}
	if call.Name == "" {
		return nil, rpcerr.New(rpcerr.KindInvalidParams, "tools/call requires a name")
	}

	s.logger.Debug("dispatching tool call", "tool", call.Name)
	result, err := s.router.Dispatch(ctx, call.Name, call.Arguments)
	if err != nil {
		// A tool's own Execute may already return a classified taxonomy
		// error (spec §7) — propagate it verbatim so its code/data reach
		// the wire unchanged. Anything else came from the router itself
		// (an unregistered tool name), which is method-not-found.
		if rerr, ok := rpcerr.As(err); ok {
			return nil, rerr
		}
		return nil, rpcerr.New(rpcerr.KindMethodNotFound, err.Error())
	}

	return toolCallResult{
		Content: []contentBlock{{Type: "text", Text: result.Content}},
		IsError: result.IsError,
	}, nil
}

func (s *Server) writeResult(out io.Writer, id any, result any) {
	encoded, err := json.Marshal(result)
	if err != nil {
		s.writeError(out, id, rpcerr.Wrap(rpcerr.KindInternalError, err, "encode result"))
		return
	}
	s.writeLine(out, Response{JSONRPC: "2.0", ID: id, Result: encoded})
}

func (s *Server) writeError(out io.Writer, id any, err error) {
	rerr := rpcerr.FromError(err)
	var data json.RawMessage
	if len(rerr.Data) > 0 {
		data, _ = json.Marshal(rerr.Data)
	}
	s.writeLine(out, Response{JSONRPC: "2.0", ID: id, Error: &WireError{Code: rerr.Code(), Message: rerr.Message, Data: data}})
}

func (s *Server) writeLine(out io.Writer, resp Response) {
	encoded, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encode response failed", "error", err)
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	out.Write(append(encoded, '\n'))
}
