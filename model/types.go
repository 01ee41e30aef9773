// Package model provides domain types shared across packages.
package model

import (
	"fmt"
	"strings"
	"time"
)

// SequenceRecord is a validated protein sequence.
// Residues keep the input case and contain no whitespace.
type SequenceRecord struct {
	Header   string `json:"header,omitempty"`
	Residues string `json:"residues"`
}

// FASTA renders the record with the given fallback header when none is set.
func (r SequenceRecord) FASTA(fallbackHeader string) string {
	header := r.Header
	if header == "" {
		header = fallbackHeader
	}
	return fmt.Sprintf(">%s\n%s\n", header, r.Residues)
}

// SearchHit is one line of tabular blastp output.
type SearchHit struct {
	Rank            int     `json:"rank"`
	QueryID         string  `json:"query_id"`
	SubjectID       string  `json:"subject_id"`
	PercentIdentity float64 `json:"percent_identity"`
	AlignmentLength int     `json:"alignment_length"`
	Evalue          float64 `json:"evalue"`
	Bitscore        float64 `json:"bitscore"`
	Organism        *string `json:"organism,omitempty"`
}

// Label is the druggability class reported by the classifier.
type Label string

const (
	LabelDruggable    Label = "Druggable"
	LabelNonDruggable Label = "Non-druggable"
)

// ParseLabel maps a classifier token onto a Label.
func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "druggable":
		return LabelDruggable, nil
	case "non-druggable", "non_druggable", "nondruggable":
		return LabelNonDruggable, nil
	default:
		return "", fmt.Errorf("unknown label: %q", s)
	}
}

// PredictionResult is the classifier verdict for one sequence.
type PredictionResult struct {
	Label       Label   `json:"label"`
	Probability float64 `json:"probability"`
}

// DatabaseState tracks where a reference database is in its lifecycle.
type DatabaseState string

const (
	StateUnknown        DatabaseState = "unknown"
	StateChecking       DatabaseState = "checking"
	StatePresent        DatabaseState = "present"
	StateDownloading    DatabaseState = "downloading"
	StateDownloadFailed DatabaseState = "download_failed"
)

// DatabaseHandle describes a named reference database on local storage.
type DatabaseHandle struct {
	Name        string        `json:"name"`
	LocalPath   string        `json:"local_path"`
	Present     bool          `json:"present"`
	State       DatabaseState `json:"state"`
	LastChecked time.Time     `json:"last_checked"`
	// Downloads counts updater runs started for this name.
	Downloads int    `json:"downloads"`
	LastError string `json:"last_error,omitempty"`
}
