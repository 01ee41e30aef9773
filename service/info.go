package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/richinex/biotools/parse"
	"github.com/richinex/biotools/tools"
)

// ToolInfo describes a wrapped tool.
type ToolInfo struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description"`
	InputFormat  string            `json:"input_format"`
	OutputFormat string            `json:"output_format"`
	Details      map[string]string `json:"details,omitempty"`
}

// Health is a liveness report.
type Health struct {
	Status    string    `json:"status"`
	Tool      string    `json:"tool"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// versionCache remembers the first successfully reported blastp version.
type versionCache struct {
	mu    sync.Mutex
	value string
}

// BlastInfo describes blastp. The version comes from `blastp -version`
// and is "unknown" if that fails.
func (s *Service) BlastInfo(ctx context.Context) ToolInfo {
	return ToolInfo{
		Name:         "BLASTp",
		Version:      s.blastVersion(ctx),
		Description:  "Protein-protein sequence similarity search using NCBI BLAST+",
		InputFormat:  "FASTA",
		OutputFormat: "JSON or tab-separated table",
		Details: map[string]string{
			"database_path":   s.cache.Root(),
			"default_db":      s.cfg.DefaultDB,
			"default_outfmt":  s.cfg.Outfmt,
			"auto_update":     boolString(s.cache.AutoUpdate()),
			"timeout_seconds": formatSeconds(s.cfg.Timeout),
		},
	}
}

// SpiderInfo describes the druggability classifier.
func (s *Service) SpiderInfo() ToolInfo {
	return ToolInfo{
		Name:         "SPIDER",
		Version:      "1.0",
		Description:  "Stacking-based ensemble learning framework for accurate prediction of druggable proteins",
		InputFormat:  "FASTA",
		OutputFormat: "CSV",
		Details: map[string]string{
			"home_directory":  s.cfg.SpiderHome,
			"timeout_seconds": formatSeconds(s.cfg.Timeout),
		},
	}
}

// BlastHealth reports whether the database directory is reachable.
func (s *Service) BlastHealth() Health {
	h := Health{Status: "healthy", Tool: "blastp", Timestamp: time.Now().UTC()}
	if _, err := statDir(s.cache.Root()); err != nil {
		h.Status = "degraded"
		h.Detail = err.Error()
	}
	return h
}

// SpiderHealth reports whether the classifier home exists.
func (s *Service) SpiderHealth() Health {
	h := Health{Status: "healthy", Tool: "spider", Timestamp: time.Now().UTC()}
	if _, err := statDir(s.cfg.SpiderHome); err != nil {
		h.Status = "degraded"
		h.Detail = err.Error()
	}
	return h
}

func (s *Service) blastVersion(ctx context.Context) string {
	s.version.mu.Lock()
	defer s.version.mu.Unlock()
	if s.version.value != "" {
		return s.version.value
	}

	res, err := s.invoke(ctx, tools.Invocation{Tool: tools.ToolBlastp, Args: []string{"-version"}})
	if err != nil {
		s.logf("blastp -version failed: %v", err)
		return "unknown"
	}
	v := parse.Version(res.Stdout)
	if v != "unknown" {
		s.version.value = v
	}
	return v
}

func statDir(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}
	return info, nil
}

func boolString(b bool) string {
	return strconv.FormatBool(b)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
