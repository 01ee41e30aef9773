// Tools exposed over MCP.
//
// Information Hiding:
// - Argument decoding and defaults hidden per tool
// - Outcome to ToolResult translation hidden

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/richinex/biotools/model"
	"github.com/richinex/biotools/service"
	"github.com/richinex/biotools/tools"
)

// Facade is the part of service.Service the MCP tools call.
type Facade interface {
	Search(ctx context.Context, req service.SearchRequest) service.OperationOutcome
	EnsureDatabase(ctx context.Context, name string, force bool) service.OperationOutcome
	ListDatabases(ctx context.Context) service.OperationOutcome
	Predict(ctx context.Context, sequence string) service.OperationOutcome
	BlastInfo(ctx context.Context) service.ToolInfo
	SpiderInfo() service.ToolInfo
}

// NewRegistry registers every biotools tool backed by facade.
func NewRegistry(facade Facade) (*tools.Registry, error) {
	registry := tools.NewRegistry()
	for _, t := range []tools.Tool{
		&SearchTool{facade: facade},
		&EnsureDatabaseTool{facade: facade},
		&ListDatabasesTool{facade: facade},
		&PredictTool{facade: facade},
		&InfoTool{facade: facade},
	} {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// decodeArgs unmarshals tool arguments, treating empty input as {}.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// outcomeResult converts a facade outcome into a tool result.
// The outcome itself travels as structured data either way.
func outcomeResult(out service.OperationOutcome, text func() string) tools.ToolResult {
	if !out.OK() {
		return tools.ToolResult{
			Output: out.Message,
			Data:   out,
			Error:  errors.New(out.Message),
		}
	}
	return tools.SuccessData(text(), out)
}

// SearchTool runs blastp.
type SearchTool struct {
	tools.BaseTool
	facade Facade
}

type searchArgs struct {
	Sequence      string  `json:"sequence"`
	DBName        string  `json:"db_name"`
	Evalue        float64 `json:"evalue"`
	MaxTargetSeqs int     `json:"max_target_seqs"`
	Outfmt        string  `json:"outfmt"`
	OutputFormat  string  `json:"output_format"`
}

func (t *SearchTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{
		Name:        "perform_blastp_search",
		Title:       "BLASTp search",
		Description: "Search a protein sequence against a BLAST protein database and return ranked hits.",
		Parameters: []tools.ToolParameter{
			{Name: "sequence", ParamType: "string", Description: "Protein sequence, raw or FASTA", Required: true},
			{Name: "db_name", ParamType: "string", Description: "BLAST database name (e.g. nr, swissprot, pdbaa)"},
			{Name: "evalue", ParamType: "number", Description: "E-value threshold", Default: 1e-3},
			{Name: "max_target_seqs", ParamType: "integer", Description: "Maximum number of hits", Default: 20},
			{Name: "outfmt", ParamType: "string", Description: "Tabular BLAST output format specifier"},
			{Name: "output_format", ParamType: "string", Description: "Result rendering", Default: "json", Enum: []string{"json", "table"}},
		},
	}
}

func (t *SearchTool) Validate(args json.RawMessage) error {
	var a searchArgs
	if err := decodeArgs(args, &a); err != nil {
		return err
	}
	if strings.TrimSpace(a.Sequence) == "" {
		return errors.New("sequence is required")
	}
	return nil
}

func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage) (tools.ToolResult, error) {
	var a searchArgs
	if err := decodeArgs(args, &a); err != nil {
		return tools.FailureResult(err), nil
	}

	out := t.facade.Search(ctx, service.SearchRequest{
		Sequence:      a.Sequence,
		DBName:        a.DBName,
		Evalue:        a.Evalue,
		MaxTargetSeqs: a.MaxTargetSeqs,
		Outfmt:        a.Outfmt,
		OutputFormat:  a.OutputFormat,
	})
	return outcomeResult(out, func() string {
		result, ok := out.Payload.(*service.SearchResult)
		if !ok {
			return out.Message
		}
		if result.Table != "" {
			return result.Table
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		return string(data)
	}), nil
}

// EnsureDatabaseTool downloads or refreshes a database.
type EnsureDatabaseTool struct {
	tools.BaseTool
	facade Facade
}

type ensureArgs struct {
	DBName      string `json:"db_name"`
	ForceUpdate bool   `json:"force_update"`
}

func (t *EnsureDatabaseTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{
		Name:        "ensure_blast_database",
		Title:       "Ensure BLAST database",
		Description: "Make sure a BLAST database is available locally, downloading it if needed. force_update re-runs the updater.",
		Parameters: []tools.ToolParameter{
			{Name: "db_name", ParamType: "string", Description: "BLAST database name"},
			{Name: "force_update", ParamType: "boolean", Description: "Run the updater even if the database is present", Default: false},
		},
	}
}

func (t *EnsureDatabaseTool) Validate(args json.RawMessage) error {
	var a ensureArgs
	return decodeArgs(args, &a)
}

func (t *EnsureDatabaseTool) Execute(ctx context.Context, args json.RawMessage) (tools.ToolResult, error) {
	var a ensureArgs
	if err := decodeArgs(args, &a); err != nil {
		return tools.FailureResult(err), nil
	}
	out := t.facade.EnsureDatabase(ctx, a.DBName, a.ForceUpdate)
	return outcomeResult(out, func() string { return out.Message }), nil
}

// ListDatabasesTool lists local databases.
type ListDatabasesTool struct {
	tools.BaseTool
	facade Facade
}

func (t *ListDatabasesTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{
		Name:        "list_blast_databases",
		Title:       "List BLAST databases",
		Description: "List BLAST databases known to this server or present in its database directory.",
		Parameters:  []tools.ToolParameter{},
	}
}

func (t *ListDatabasesTool) Execute(ctx context.Context, args json.RawMessage) (tools.ToolResult, error) {
	out := t.facade.ListDatabases(ctx)
	return outcomeResult(out, func() string {
		handles, _ := out.Payload.([]model.DatabaseHandle)
		if len(handles) == 0 {
			return "no databases found"
		}
		lines := make([]string, 0, len(handles))
		for _, h := range handles {
			lines = append(lines, fmt.Sprintf("%s\t%s\tpresent=%t", h.Name, h.State, h.Present))
		}
		return strings.Join(lines, "\n")
	}), nil
}

// PredictTool runs the druggability classifier.
type PredictTool struct {
	tools.BaseTool
	facade Facade
}

type predictArgs struct {
	Sequence string `json:"sequence"`
}

func (t *PredictTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{
		Name:        "predict_druggability",
		Title:       "Predict druggability",
		Description: "Predict whether a protein sequence is druggable using the SPIDER ensemble classifier.",
		Parameters: []tools.ToolParameter{
			{Name: "sequence", ParamType: "string", Description: "Protein sequence, raw or FASTA", Required: true},
		},
	}
}

func (t *PredictTool) Validate(args json.RawMessage) error {
	var a predictArgs
	if err := decodeArgs(args, &a); err != nil {
		return err
	}
	if strings.TrimSpace(a.Sequence) == "" {
		return errors.New("sequence is required")
	}
	return nil
}

func (t *PredictTool) Execute(ctx context.Context, args json.RawMessage) (tools.ToolResult, error) {
	var a predictArgs
	if err := decodeArgs(args, &a); err != nil {
		return tools.FailureResult(err), nil
	}
	out := t.facade.Predict(ctx, a.Sequence)
	return outcomeResult(out, func() string {
		pred, _ := out.Payload.(model.PredictionResult)
		return fmt.Sprintf("Prediction: %s (probability %.4g)", pred.Label, pred.Probability)
	}), nil
}

// InfoTool describes the wrapped tools.
type InfoTool struct {
	tools.BaseTool
	facade Facade
}

type infoArgs struct {
	Tool string `json:"tool"`
}

func (t *InfoTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{
		Name:        "get_tool_info",
		Title:       "Tool information",
		Description: "Describe the wrapped bioinformatics tools, their versions and input formats.",
		Parameters: []tools.ToolParameter{
			{Name: "tool", ParamType: "string", Description: "Which tool to describe; both when omitted", Enum: []string{"blastp", "spider"}},
		},
	}
}

func (t *InfoTool) Validate(args json.RawMessage) error {
	var a infoArgs
	if err := decodeArgs(args, &a); err != nil {
		return err
	}
	switch a.Tool {
	case "", "blastp", "spider":
		return nil
	default:
		return fmt.Errorf("unknown tool %q", a.Tool)
	}
}

func (t *InfoTool) Execute(ctx context.Context, args json.RawMessage) (tools.ToolResult, error) {
	var a infoArgs
	if err := decodeArgs(args, &a); err != nil {
		return tools.FailureResult(err), nil
	}

	var infos []service.ToolInfo
	if a.Tool == "" || a.Tool == "blastp" {
		infos = append(infos, t.facade.BlastInfo(ctx))
	}
	if a.Tool == "" || a.Tool == "spider" {
		infos = append(infos, t.facade.SpiderInfo())
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return tools.FailureResult(err), nil
	}
	return tools.SuccessData(string(data), infos), nil
}
