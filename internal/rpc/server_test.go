package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelbridge/gateway/internal/modelregistry"
	"github.com/modelbridge/gateway/internal/toolrouter"
)

func testRouter() *toolrouter.Router {
	registry := modelregistry.New(map[modelregistry.Provider]modelregistry.Binding{
		modelregistry.ProviderAnthropic: {Provider: modelregistry.ProviderAnthropic, APIKey: "test-key"},
	})
	return toolrouter.NewRouter(toolrouter.NewModelsTool(registry))
}

func readResponses(t *testing.T, out *bytes.Buffer, n int) []Response {
	t.Helper()
	scanner := bufio.NewScanner(bytes.NewReader(out.Bytes()))
	var responses []Response
	for scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v (line: %s)", err, scanner.Text())
		}
		responses = append(responses, resp)
	}
	if len(responses) != n {
		t.Fatalf("expected %d responses, got %d: %s", n, len(responses), out.String())
	}
	return responses
}

func TestServeHandlesInitialize(t *testing.T) {
	server := NewServer(testRouter(), nil)
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}` + "\n")
	var out bytes.Buffer

	if err := server.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	responses := readResponses(t, &out, 1)
	if responses[0].Error != nil {
		t.Fatalf("unexpected error: %+v", responses[0].Error)
	}
	if !strings.Contains(string(responses[0].Result), "protocolVersion") {
		t.Fatalf("expected protocolVersion in result: %s", responses[0].Result)
	}
}

func TestServeHandlesToolsList(t *testing.T) {
	server := NewServer(testRouter(), nil)
	in := strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n")
	var out bytes.Buffer

	if err := server.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	responses := readResponses(t, &out, 1)
	if responses[0].Error != nil {
		t.Fatalf("unexpected error: %+v", responses[0].Error)
	}
	if !strings.Contains(string(responses[0].Result), `"models"`) {
		t.Fatalf("expected the models tool listed: %s", responses[0].Result)
	}
}

func TestServeHandlesToolsCall(t *testing.T) {
	server := NewServer(testRouter(), nil)
	req := `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"models","arguments":{}}}` + "\n"
	in := strings.NewReader(req)
	var out bytes.Buffer

	if err := server.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	responses := readResponses(t, &out, 1)
	if responses[0].Error != nil {
		t.Fatalf("unexpected error: %+v", responses[0].Error)
	}
	if !strings.Contains(string(responses[0].Result), "anthropic:claude-opus-4") {
		t.Fatalf("expected tool result content: %s", responses[0].Result)
	}
}

func TestServeReturnsMethodNotFoundForUnknownTool(t *testing.T) {
	server := NewServer(testRouter(), nil)
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"nope"},"id":1}` + "\n")
	var out bytes.Buffer

	if err := server.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	responses := readResponses(t, &out, 1)
	if responses[0].Error == nil || responses[0].Error.Code != -32601 {
		t.Fatalf("expected method-not-found error, got %+v", responses[0].Error)
	}
	if !strings.Contains(responses[0].Error.Message, "Unknown tool") {
		t.Fatalf("expected message to contain %q, got %q", "Unknown tool", responses[0].Error.Message)
	}
}

func TestServeReturnsMethodNotFound(t *testing.T) {
	server := NewServer(testRouter(), nil)
	in := strings.NewReader(`{"jsonrpc":"2.0","id":4,"method":"bogus"}` + "\n")
	var out bytes.Buffer

	if err := server.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	responses := readResponses(t, &out, 1)
	if responses[0].Error == nil || responses[0].Error.Code != -32601 {
		t.Fatalf("expected method-not-found error, got %+v", responses[0].Error)
	}
}

func TestServeSkipsResponseForNotifications(t *testing.T) {
	server := NewServer(testRouter(), nil)
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"tools/list"}` + "\n")
	var out bytes.Buffer

	if err := server.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	if out.Len() != 0 {
		t.Fatalf("expected no response to a notification, got: %s", out.String())
	}
}

func TestServeReturnsParseErrorForInvalidJSON(t *testing.T) {
	server := NewServer(testRouter(), nil)
	in := strings.NewReader("not json\n")
	var out bytes.Buffer

	if err := server.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	responses := readResponses(t, &out, 1)
	if responses[0].Error == nil || responses[0].Error.Code != -32700 {
		t.Fatalf("expected parse-error, got %+v", responses[0].Error)
	}
}
