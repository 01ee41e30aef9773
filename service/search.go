package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/richinex/biotools/model"
	"github.com/richinex/biotools/parse"
	"github.com/richinex/biotools/sequence"
	"github.com/richinex/biotools/tools"
	"go.opentelemetry.io/otel/attribute"
)

// Output formats for Search.
const (
	FormatJSON  = "json"
	FormatTable = "table"
)

// leadingColumns must open every tabular outfmt, since the hit parser maps
// columns by position.
const leadingColumns = "qseqid sseqid pident length evalue bitscore"

// SearchRequest describes one blastp search. Zero values take the
// service defaults.
type SearchRequest struct {
	Sequence      string  `json:"sequence"`
	DBName        string  `json:"db_name,omitempty"`
	Evalue        float64 `json:"evalue,omitempty"`
	MaxTargetSeqs int     `json:"max_target_seqs,omitempty"`
	Outfmt        string  `json:"outfmt,omitempty"`
	OutputFormat  string  `json:"output_format,omitempty"`
}

// SearchResult is the payload of a successful search.
type SearchResult struct {
	Database     string            `json:"database"`
	QueryLength  int               `json:"query_length"`
	OutputFormat string            `json:"output_format"`
	TotalHits    int               `json:"total_hits"`
	Hits         []model.SearchHit `json:"hits"`
	// Table is the rendered report, set for output_format=table.
	Table string `json:"table,omitempty"`
}

// Search validates the query, makes sure the database is present, runs
// blastp and parses its tabular output.
func (s *Service) Search(ctx context.Context, req SearchRequest) OperationOutcome {
	attrs := []attribute.KeyValue{attribute.String("database", req.DBName)}
	return s.run(ctx, "search", attrs, func(ctx context.Context, clock *stopwatch) (interface{}, string, error) {
		req, err := s.normalize(req)
		if err != nil {
			return nil, "", err
		}
		record, err := sequence.Validate(req.Sequence, sequence.Extended)
		if err != nil {
			return nil, "", err
		}

		handle, err := s.cache.Ensure(ctx, req.DBName, false)
		if err != nil {
			return nil, "", err
		}

		clock.start()
		hits, err := s.blastp(ctx, record, handle, req)
		if err != nil {
			return nil, "", err
		}
		clock.stop()

		result := &SearchResult{
			Database:     req.DBName,
			QueryLength:  len(record.Residues),
			OutputFormat: req.OutputFormat,
			TotalHits:    len(hits),
			Hits:         hits,
		}
		if req.OutputFormat == FormatTable {
			result.Table = parse.Table(hits)
		}
		return result, fmt.Sprintf("BLASTp search against %s completed with %d hits", req.DBName, len(hits)), nil
	})
}

func (s *Service) normalize(req SearchRequest) (SearchRequest, error) {
	req.DBName = strings.TrimSpace(req.DBName)
	if req.DBName == "" {
		req.DBName = s.cfg.DefaultDB
	}

	switch {
	case req.Evalue < 0:
		return req, &RequestError{Field: "evalue", Reason: "must be positive"}
	case req.Evalue == 0:
		req.Evalue = s.cfg.Evalue
	}
	switch {
	case req.MaxTargetSeqs < 0:
		return req, &RequestError{Field: "max_target_seqs", Reason: "must be positive"}
	case req.MaxTargetSeqs == 0:
		req.MaxTargetSeqs = s.cfg.MaxTargetSeqs
	}

	req.Outfmt = strings.Join(strings.Fields(req.Outfmt), " ")
	if req.Outfmt == "" {
		req.Outfmt = s.cfg.Outfmt
	}
	if !tabularOutfmt(req.Outfmt) {
		return req, &RequestError{
			Field:  "outfmt",
			Reason: fmt.Sprintf("must be tabular (6 or 7) starting with %q", leadingColumns),
		}
	}

	switch strings.ToLower(strings.TrimSpace(req.OutputFormat)) {
	case "", FormatJSON:
		req.OutputFormat = FormatJSON
	case FormatTable:
		req.OutputFormat = FormatTable
	default:
		return req, &RequestError{Field: "output_format", Reason: fmt.Sprintf("%q is not json or table", req.OutputFormat)}
	}
	return req, nil
}

func tabularOutfmt(outfmt string) bool {
	kind, columns, _ := strings.Cut(outfmt, " ")
	if kind != "6" && kind != "7" {
		return false
	}
	return columns == leadingColumns || strings.HasPrefix(columns, leadingColumns+" ")
}

// blastp writes the query to a private directory, runs the search and
// reads back its -out file.
func (s *Service) blastp(ctx context.Context, record model.SequenceRecord, handle model.DatabaseHandle, req SearchRequest) ([]model.SearchHit, error) {
	dir, err := os.MkdirTemp(s.tempDir(), "blastp-")
	if err != nil {
		return nil, fmt.Errorf("failed to create query directory: %w", err)
	}
	defer os.RemoveAll(dir)

	queryPath := filepath.Join(dir, "query.fasta")
	outPath := filepath.Join(dir, "result.tsv")
	if err := os.WriteFile(queryPath, []byte(record.FASTA("sequence")), 0644); err != nil {
		return nil, fmt.Errorf("failed to write query: %w", err)
	}

	res, err := s.invoke(ctx, tools.Invocation{
		Tool: tools.ToolBlastp,
		Args: []string{
			"-query", queryPath,
			"-db", handle.LocalPath,
			"-evalue", strconv.FormatFloat(req.Evalue, 'g', -1, 64),
			"-max_target_seqs", strconv.Itoa(req.MaxTargetSeqs),
			"-outfmt", req.Outfmt,
			"-out", outPath,
		},
		Dir: s.cache.Root(),
	})
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(outPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &tools.ExecutionError{
			Tool:     tools.ToolBlastp,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Reason:   "did not generate output file",
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blastp output: %w", err)
	}

	hits, err := parse.Hits(string(raw))
	if err != nil {
		s.archive(ctx, tools.ToolBlastp, req.DBName, string(raw))
		return nil, err
	}
	return hits, nil
}

// EnsureDatabase makes sure a database is present. With force the updater
// always runs, even when the database is already present.
func (s *Service) EnsureDatabase(ctx context.Context, name string, force bool) OperationOutcome {
	attrs := []attribute.KeyValue{attribute.String("database", name), attribute.Bool("force", force)}
	return s.run(ctx, "ensure_database", attrs, func(ctx context.Context, clock *stopwatch) (interface{}, string, error) {
		name := strings.TrimSpace(name)
		if name == "" {
			name = s.cfg.DefaultDB
		}
		clock.start()
		handle, err := s.cache.Ensure(ctx, name, force)
		if err != nil {
			return nil, "", err
		}
		return handle, fmt.Sprintf("database %s is ready", name), nil
	})
}

// ListDatabases reports every known or discovered database.
func (s *Service) ListDatabases(ctx context.Context) OperationOutcome {
	return s.run(ctx, "list_databases", nil, func(ctx context.Context, clock *stopwatch) (interface{}, string, error) {
		handles, err := s.cache.List(ctx, "")
		if err != nil {
			return nil, "", err
		}
		return handles, fmt.Sprintf("%d databases in %s", len(handles), s.cache.Root()), nil
	})
}
