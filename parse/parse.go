// Package parse turns raw tool output into typed records.
// All functions are pure over strings.
package parse

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/richinex/biotools/model"
)

// ParseError means a tool exited cleanly but its output could not be read.
// Raw holds the complete output for diagnosis.
type ParseError struct {
	Line   int // 1-based line in Raw, zero when not line specific
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("unparseable tool output at line %d: %s", e.Line, e.Reason)
	}
	return "unparseable tool output: " + e.Reason
}

// hitColumns is the minimum column count of a hit row:
// qseqid sseqid pident length evalue bitscore [sscinames].
const hitColumns = 6

// Hits parses tabular blastp output (outfmt 6 with the default columns).
// Blank and '#' comment lines are skipped; ranks follow emitted order.
// Any malformed row fails the whole response.
func Hits(raw string) ([]model.SearchHit, error) {
	hits := []model.SearchHit{}

	for i, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lineNo := i + 1

		cols := strings.Split(line, "\t")
		if len(cols) < hitColumns {
			return nil, &ParseError{Line: lineNo, Reason: fmt.Sprintf("expected at least %d tab-separated columns, got %d", hitColumns, len(cols)), Raw: raw}
		}

		pident, err := parseFloat(cols[2], "percent identity")
		if err != nil {
			return nil, &ParseError{Line: lineNo, Reason: err.Error(), Raw: raw}
		}
		length, err := strconv.Atoi(strings.TrimSpace(cols[3]))
		if err != nil {
			return nil, &ParseError{Line: lineNo, Reason: fmt.Sprintf("alignment length %q is not an integer", cols[3]), Raw: raw}
		}
		evalue, err := parseFloat(cols[4], "e-value")
		if err != nil {
			return nil, &ParseError{Line: lineNo, Reason: err.Error(), Raw: raw}
		}
		bitscore, err := parseFloat(cols[5], "bitscore")
		if err != nil {
			return nil, &ParseError{Line: lineNo, Reason: err.Error(), Raw: raw}
		}

		hit := model.SearchHit{
			Rank:            len(hits) + 1,
			QueryID:         strings.TrimSpace(cols[0]),
			SubjectID:       strings.TrimSpace(cols[1]),
			PercentIdentity: pident,
			AlignmentLength: length,
			Evalue:          evalue,
			Bitscore:        bitscore,
		}
		if len(cols) > hitColumns {
			organism := strings.TrimSpace(strings.Join(cols[hitColumns:], "\t"))
			if organism != "" && organism != "N/A" {
				hit.Organism = &organism
			}
		}
		if hit.QueryID == "" || hit.SubjectID == "" {
			return nil, &ParseError{Line: lineNo, Reason: "empty query or subject id", Raw: raw}
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

// Prediction parses a single classifier result line. Accepted shapes are
// "label probability" and the classifier's CSV "id,label,probability".
func Prediction(raw string) (model.PredictionResult, error) {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return model.PredictionResult{}, &ParseError{Reason: "empty classifier output", Raw: raw}
	}
	if len(lines) > 1 {
		return model.PredictionResult{}, &ParseError{Reason: fmt.Sprintf("expected one result line, got %d", len(lines)), Raw: raw}
	}

	tokens := splitTokens(lines[0])
	if len(tokens) < 2 {
		return model.PredictionResult{}, &ParseError{Line: 1, Reason: "expected a label and a probability", Raw: raw}
	}

	// The last two tokens are label and probability; anything before is an id.
	labelTok, probTok := tokens[len(tokens)-2], tokens[len(tokens)-1]

	label, err := model.ParseLabel(labelTok)
	if err != nil {
		return model.PredictionResult{}, &ParseError{Line: 1, Reason: err.Error(), Raw: raw}
	}
	prob, err := parseFloat(probTok, "probability")
	if err != nil {
		return model.PredictionResult{}, &ParseError{Line: 1, Reason: err.Error(), Raw: raw}
	}
	if prob < 0 || prob > 1 {
		return model.PredictionResult{}, &ParseError{Line: 1, Reason: fmt.Sprintf("probability %v outside [0,1]", prob), Raw: raw}
	}

	return model.PredictionResult{Label: label, Probability: prob}, nil
}

// Version returns the first non-empty line of a "-version" banner,
// e.g. "blastp: 2.15.0+".
func Version(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return "unknown"
}

func splitTokens(line string) []string {
	if strings.Contains(line, ",") {
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return strings.Fields(line)
}

func parseFloat(s, field string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s %q is not a number", field, s)
	}
	return f, nil
}
