package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/richinex/biotools/model"
	"github.com/richinex/biotools/service"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeFacade records calls and returns canned outcomes.
type fakeFacade struct {
	lastSearch service.SearchRequest
	lastEnsure struct {
		name  string
		force bool
	}
	predictOutcome service.OperationOutcome
}

func (f *fakeFacade) Search(ctx context.Context, req service.SearchRequest) service.OperationOutcome {
	f.lastSearch = req
	org := "Homo sapiens"
	return service.OperationOutcome{
		Status:  service.StatusSuccess,
		Message: "BLASTp search against swissprot completed with 1 hits",
		Payload: &service.SearchResult{
			Database:  "swissprot",
			TotalHits: 1,
			Hits: []model.SearchHit{{
				Rank: 1, QueryID: "q1", SubjectID: "sp|X1|", PercentIdentity: 95.2,
				AlignmentLength: 100, Evalue: 1e-30, Bitscore: 150, Organism: &org,
			}},
		},
	}
}

func (f *fakeFacade) EnsureDatabase(ctx context.Context, name string, force bool) service.OperationOutcome {
	f.lastEnsure.name, f.lastEnsure.force = name, force
	return service.OperationOutcome{
		Status:    service.StatusError,
		Message:   "database nr not found in /data and automatic updates are disabled",
		ErrorKind: service.KindDatabaseNotConfigured,
	}
}

func (f *fakeFacade) ListDatabases(ctx context.Context) service.OperationOutcome {
	return service.OperationOutcome{
		Status:  service.StatusSuccess,
		Payload: []model.DatabaseHandle{{Name: "pdbaa", Present: true, State: model.StatePresent}},
	}
}

func (f *fakeFacade) Predict(ctx context.Context, sequence string) service.OperationOutcome {
	return f.predictOutcome
}

func (f *fakeFacade) BlastInfo(ctx context.Context) service.ToolInfo {
	return service.ToolInfo{Name: "BLASTp", Version: "blastp: 2.15.0+"}
}

func (f *fakeFacade) SpiderInfo() service.ToolInfo {
	return service.ToolInfo{Name: "SPIDER", Version: "1.0"}
}

func newTestServer(t *testing.T) (*Server, *fakeFacade) {
	t.Helper()
	facade := &fakeFacade{
		predictOutcome: service.OperationOutcome{
			Status:  service.StatusSuccess,
			Payload: model.PredictionResult{Label: model.LabelDruggable, Probability: 0.85},
		},
	}
	registry, err := NewRegistry(facade)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return NewServer(registry, "biotools", "test"), facade
}

func TestListTools(t *testing.T) {
	server, _ := newTestServer(t)

	infos := server.ListTools()
	want := []string{"ensure_blast_database", "get_tool_info", "list_blast_databases", "perform_blastp_search", "predict_druggability"}
	if len(infos) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(infos))
	}
	for i, name := range want {
		if infos[i].Name != name {
			t.Errorf("tool %d: expected %s, got %s", i, name, infos[i].Name)
		}
		if infos[i].Description == nil || *infos[i].Description == "" {
			t.Errorf("%s: missing description", name)
		}
	}

	var schema struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	if err := json.Unmarshal(infos[3].InputSchema, &schema); err != nil {
		t.Fatalf("invalid schema: %v", err)
	}
	if schema.Type != "object" || len(schema.Required) != 1 || schema.Required[0] != "sequence" {
		t.Errorf("unexpected search schema: %+v", schema)
	}
	if _, ok := schema.Properties["output_format"]; !ok {
		t.Error("expected output_format property")
	}
}

func TestCallTool(t *testing.T) {
	server, facade := newTestServer(t)
	ctx := context.Background()

	t.Run("predict", func(t *testing.T) {
		res := server.CallTool(ctx, "predict_druggability", json.RawMessage(`{"sequence":"MKTVRQERLKSIV"}`))
		if res.IsError {
			t.Fatalf("unexpected error: %+v", res)
		}
		if len(res.Content) != 1 || res.Content[0].Type != "text" || !strings.Contains(res.Content[0].Text, "Druggable") {
			t.Errorf("unexpected content: %+v", res.Content)
		}
		if res.StructuredContent == nil {
			t.Error("expected structured content")
		}
	})

	t.Run("search passes arguments", func(t *testing.T) {
		res := server.CallTool(ctx, "perform_blastp_search",
			json.RawMessage(`{"sequence":"MVLSPADKTNVKAAW","db_name":"swissprot","evalue":1e-5,"max_target_seqs":5,"output_format":"json"}`))
		if res.IsError {
			t.Fatalf("unexpected error: %+v", res)
		}
		req := facade.lastSearch
		if req.DBName != "swissprot" || req.Evalue != 1e-5 || req.MaxTargetSeqs != 5 || req.OutputFormat != "json" {
			t.Errorf("unexpected request: %+v", req)
		}
		if !strings.Contains(res.Content[0].Text, "sp|X1|") {
			t.Errorf("expected hits in text, got %q", res.Content[0].Text)
		}
	})

	t.Run("missing sequence", func(t *testing.T) {
		res := server.CallTool(ctx, "predict_druggability", json.RawMessage(`{}`))
		if !res.IsError || !strings.Contains(res.Content[0].Text, "sequence is required") {
			t.Errorf("expected validation failure, got %+v", res)
		}
	})

	t.Run("facade failure", func(t *testing.T) {
		res := server.CallTool(ctx, "ensure_blast_database", json.RawMessage(`{"db_name":"nr","force_update":true}`))
		if !res.IsError {
			t.Fatal("expected error result")
		}
		if facade.lastEnsure.name != "nr" || !facade.lastEnsure.force {
			t.Errorf("unexpected ensure call: %+v", facade.lastEnsure)
		}
		if !strings.Contains(res.Content[0].Text, "automatic updates are disabled") {
			t.Errorf("unexpected message: %q", res.Content[0].Text)
		}
	})

	t.Run("info for one tool", func(t *testing.T) {
		res := server.CallTool(ctx, "get_tool_info", json.RawMessage(`{"tool":"spider"}`))
		if res.IsError || !strings.Contains(res.Content[0].Text, "SPIDER") || strings.Contains(res.Content[0].Text, "BLASTp") {
			t.Errorf("unexpected info result: %+v", res)
		}
	})

	t.Run("list databases", func(t *testing.T) {
		res := server.CallTool(ctx, "list_blast_databases", nil)
		if res.IsError || !strings.HasPrefix(res.Content[0].Text, "pdbaa\tpresent") {
			t.Errorf("unexpected list result: %+v", res)
		}
	})
}

func rpcLines(t *testing.T, msgs ...string) []rpcResponse {
	t.Helper()
	server, _ := newTestServer(t)

	var out bytes.Buffer
	in := strings.NewReader(strings.Join(msgs, "\n") + "\n")
	if err := server.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	var responses []rpcResponse
	dec := json.NewDecoder(&out)
	for dec.More() {
		var r rpcResponse
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("invalid response: %v", err)
		}
		responses = append(responses, r)
	}
	return responses
}

func TestServeStdio(t *testing.T) {
	responses := rpcLines(t,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":"two","method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"predict_druggability","arguments":{"sequence":"MKTVRQERLKSIV"}}}`,
		``,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"no_such_tool"}}`,
		`{"jsonrpc":"2.0","id":5,"method":"resources/list"}`,
		`{not json`,
	)

	if len(responses) != 6 {
		t.Fatalf("expected 6 responses (notification gets none), got %d", len(responses))
	}

	var initResult struct {
		Instructions    string `json:"instructions"`
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name string `json:"name"`
		} `json:"serverInfo"`
	}
	json.Unmarshal(responses[0].Result, &initResult)
	if initResult.ProtocolVersion != ProtocolVersion || initResult.ServerInfo.Name != "biotools" {
		t.Errorf("unexpected initialize result: %s", responses[0].Result)
	}
	if !strings.Contains(initResult.Instructions, "Tool: predict_druggability") {
		t.Errorf("expected tool catalogue in instructions, got %q", initResult.Instructions)
	}

	if string(responses[1].ID) != `"two"` {
		t.Errorf("expected string id to be echoed, got %s", responses[1].ID)
	}

	var call CallResult
	json.Unmarshal(responses[2].Result, &call)
	if call.IsError || !strings.Contains(call.Content[0].Text, "Druggable") {
		t.Errorf("unexpected call result: %s", responses[2].Result)
	}

	if responses[3].Error == nil || responses[3].Error.Code != codeInvalidParams {
		t.Errorf("expected invalid params for unknown tool, got %+v", responses[3])
	}
	if responses[4].Error == nil || responses[4].Error.Code != codeMethodNotFound {
		t.Errorf("expected method not found, got %+v", responses[4])
	}
	if responses[5].Error == nil || responses[5].Error.Code != codeParseError {
		t.Errorf("expected parse error, got %+v", responses[5])
	}
}

func TestUnencodableResultIsInternalError(t *testing.T) {
	server, facade := newTestServer(t)
	facade.predictOutcome.Payload = model.PredictionResult{Label: model.LabelDruggable, Probability: math.NaN()}

	resp := server.handleMessage(context.Background(), []byte(
		`{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"predict_druggability","arguments":{"sequence":"MKTV"}}}`))
	if resp == nil || resp.Error == nil {
		t.Fatalf("expected an error response, got %+v", resp)
	}
	if resp.Error.Code != codeInternalError {
		t.Errorf("expected code %d, got %d", codeInternalError, resp.Error.Code)
	}
	if string(resp.ID) != "9" {
		t.Errorf("expected id 9, got %s", resp.ID)
	}
}

func TestServeStopsOnCancelledContext(t *testing.T) {
	server, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := server.Serve(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), io.Discard)
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestClientAgainstServer(t *testing.T) {
	server, _ := newTestServer(t)

	clientToServer, serverIn := io.Pipe()
	serverToClient, clientIn := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(context.Background(), clientToServer, clientIn)
		clientIn.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := NewStreamClient(ctx, serverToClient, serverIn)
	if err != nil {
		t.Fatalf("NewStreamClient failed: %v", err)
	}
	if client.ServerInfo["name"] != "biotools" {
		t.Errorf("unexpected server info: %v", client.ServerInfo)
	}

	infos, err := client.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(infos) != 5 {
		t.Errorf("expected 5 tools, got %d", len(infos))
	}

	res, err := client.CallTool(ctx, "get_tool_info", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if res.IsError || !strings.Contains(res.Content[0].Text, "blastp: 2.15.0+") {
		t.Errorf("unexpected result: %+v", res)
	}

	if _, err := client.CallTool(ctx, "missing", nil); err == nil {
		t.Error("expected error for unknown tool")
	}

	client.Close()
	if err := <-done; err != nil {
		t.Errorf("Serve returned %v", err)
	}
	serverToClient.Close()
}

func TestHTTPEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	mux := http.NewServeMux()
	server.Register(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	t.Run("list", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/mcp/tools")
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		defer resp.Body.Close()

		var list toolsListResult
		if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK || len(list.Tools) != 5 {
			t.Errorf("unexpected list response: %d %+v", resp.StatusCode, list)
		}
	})

	tests := []struct {
		name    string
		path    string
		body    string
		status  int
		isError bool
	}{
		{"call", "/mcp/call", `{"name":"predict_druggability","arguments":{"sequence":"MKTVRQERLKSIV"}}`, http.StatusOK, false},
		{"call failure", "/mcp/call", `{"name":"predict_druggability","arguments":{"sequence":""}}`, http.StatusOK, true},
		{"unknown tool", "/mcp/call", `{"name":"nope"}`, http.StatusNotFound, false},
		{"missing name", "/mcp/call", `{}`, http.StatusBadRequest, false},
		{"malformed", "/mcp/call", `{"name":`, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+tt.path, "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, resp.StatusCode)
			}
			if tt.status != http.StatusOK {
				return
			}
			var res CallResult
			if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if res.IsError != tt.isError {
				t.Errorf("expected isError=%v, got %+v", tt.isError, res)
			}
		})
	}

	t.Run("json-rpc", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/mcp", "application/json",
			strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"tools/list"}`))
		if err != nil {
			t.Fatalf("POST failed: %v", err)
		}
		defer resp.Body.Close()

		var r rpcResponse
		if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if string(r.ID) != "7" || r.Error != nil {
			t.Errorf("unexpected response: %+v", r)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/mcp/call")
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", resp.StatusCode)
		}
	})
}
