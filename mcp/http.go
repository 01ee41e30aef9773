package mcp

import (
	"encoding/json"
	"io"
	"net/http"
)

// maxBody bounds request bodies; sequences are small but FASTA pastes vary.
const maxBody = 4 << 20

// Register mounts the HTTP flavour of the server on mux:
//
//	GET  /mcp/tools  tool list
//	POST /mcp/call   {"name": ..., "arguments": {...}} -> CallResult
//	POST /mcp        one JSON-RPC message
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/mcp/tools", s.handleTools)
	mux.HandleFunc("/mcp/call", s.handleCall)
	mux.HandleFunc("/mcp", s.handleRPC)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, toolsListResult{Tools: s.ListTools()})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var params callParams
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if params.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !s.HasTool(params.Name) {
		writeError(w, http.StatusNotFound, "unknown tool: "+params.Name)
		return
	}

	writeJSON(w, http.StatusOK, s.CallTool(r.Context(), params.Name, params.Arguments))
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp := s.handleMessage(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
