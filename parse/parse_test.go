package parse

import (
	"errors"
	"strings"
	"testing"

	"github.com/richinex/biotools/model"
)

func TestHitsSingleLine(t *testing.T) {
	hits, err := Hits("q1\tsp|X1|\t95.2\t100\t1e-30\t150\tHomo sapiens")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}

	h := hits[0]
	if h.Rank != 1 || h.QueryID != "q1" || h.SubjectID != "sp|X1|" {
		t.Errorf("unexpected identity fields: %+v", h)
	}
	if h.PercentIdentity != 95.2 || h.AlignmentLength != 100 || h.Evalue != 1e-30 || h.Bitscore != 150 {
		t.Errorf("unexpected numeric fields: %+v", h)
	}
	if h.Organism == nil || *h.Organism != "Homo sapiens" {
		t.Errorf("expected organism 'Homo sapiens', got %v", h.Organism)
	}
}

func TestHitsKeepsToolOrder(t *testing.T) {
	raw := strings.Join([]string{
		"# BLASTP 2.15.0+",
		"q1\tB\t80\t90\t1e-10\t60\tN/A",
		"",
		"q1\tA\t99\t100\t1e-50\t200",
		"q1\tC\t50\t40\t0.002\t30\tMus musculus",
	}, "\n") + "\n"

	hits, err := Hits(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	for i, want := range []string{"B", "A", "C"} {
		if hits[i].SubjectID != want || hits[i].Rank != i+1 {
			t.Errorf("hit %d: expected %s rank %d, got %s rank %d", i, want, i+1, hits[i].SubjectID, hits[i].Rank)
		}
	}
	if hits[0].Organism != nil {
		t.Errorf("N/A organism should be nil, got %q", *hits[0].Organism)
	}
	if hits[1].Organism != nil {
		t.Error("missing organism column should be nil")
	}
}

func TestHitsEmptyOutput(t *testing.T) {
	hits, err := Hits("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", hits)
	}
}

func TestHitsRejectsMalformedRows(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		line int
	}{
		{name: "too few columns", raw: "q1\tA\t99\t100", line: 1},
		{name: "bad identity", raw: "q1\tA\t99\t100\t1e-5\t20\nq1\tB\tabc\t100\t1e-5\t20", line: 2},
		{name: "bad length", raw: "q1\tA\t99\t10.5\t1e-5\t20", line: 1},
		{name: "bad evalue", raw: "q1\tA\t99\t100\t-\t20", line: 1},
		{name: "missing bitscore", raw: "q1\tA\t99\t100\t1e-5\t", line: 1},
		{name: "nan identity", raw: "q1\tA\tNaN\t100\t1e-5\t20", line: 1},
		{name: "infinite evalue", raw: "q1\tA\t99\t100\t1e-5\t20\nq1\tB\t99\t100\tInf\t20", line: 2},
		{name: "negative infinite bitscore", raw: "q1\tA\t99\t100\t1e-5\t-Inf", line: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := Hits(tt.raw)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if hits != nil {
				t.Errorf("partial results must not be returned, got %v", hits)
			}
			if perr.Line != tt.line {
				t.Errorf("expected line %d, got %d", tt.line, perr.Line)
			}
			if perr.Raw != tt.raw {
				t.Error("expected raw output to be attached")
			}
		})
	}
}

func TestPrediction(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		label model.Label
		prob  float64
	}{
		{name: "space separated", raw: "Druggable 0.85", label: model.LabelDruggable, prob: 0.85},
		{name: "csv with id", raw: "seq,Non-druggable,0.12\n", label: model.LabelNonDruggable, prob: 0.12},
		{name: "tab separated", raw: "\nnon_druggable\t0\n\n", label: model.LabelNonDruggable, prob: 0},
		{name: "upper bound", raw: "druggable 1", label: model.LabelDruggable, prob: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Prediction(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Label != tt.label || res.Probability != tt.prob {
				t.Errorf("expected %s/%v, got %s/%v", tt.label, tt.prob, res.Label, res.Probability)
			}
		})
	}
}

func TestPredictionRejects(t *testing.T) {
	for _, raw := range []string{
		"Druggable 1.5",
		"Druggable -0.1",
		"Druggable high",
		"Maybe 0.5",
		"0.5",
		"",
		"Druggable 0.5\nDruggable 0.6",
		"Druggable NaN",
		"seq,Druggable,nan",
		"Druggable +Inf",
	} {
		if _, err := Prediction(raw); err == nil {
			t.Errorf("expected ParseError for %q", raw)
		} else {
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Errorf("expected ParseError for %q, got %T", raw, err)
			}
		}
	}
}

func TestTable(t *testing.T) {
	org := "Homo sapiens"
	out := Table([]model.SearchHit{
		{Rank: 1, QueryID: "q1", SubjectID: "sp|X1|", PercentIdentity: 95.2, AlignmentLength: 100, Evalue: 1e-30, Bitscore: 150, Organism: &org},
		{Rank: 2, QueryID: "q1", SubjectID: "sp|X2|", PercentIdentity: 40, AlignmentLength: 80, Evalue: 0.001, Bitscore: 35.4},
	})

	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), out)
	}
	if lines[0] != TableHeader {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if lines[1] != "1\tsp|X1|\t95.2\t100\t1e-30\t150\tHomo sapiens" {
		t.Errorf("unexpected first row: %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "\tN/A") {
		t.Errorf("expected N/A organism, got %q", lines[2])
	}
}

func TestVersion(t *testing.T) {
	if v := Version("\nblastp: 2.15.0+\n Package: blast 2.15.0\n"); v != "blastp: 2.15.0+" {
		t.Errorf("unexpected version: %q", v)
	}
	if v := Version(""); v != "unknown" {
		t.Errorf("expected unknown, got %q", v)
	}
}
