// Package sequence validates and normalizes protein sequence input.
//
// Information Hiding:
// - FASTA header handling hidden
// - Alphabet membership tables hidden behind Alphabet
package sequence

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/richinex/biotools/model"
)

// Alphabet is a set of accepted residue symbols (upper-case).
type Alphabet struct {
	name    string
	symbols string
}

var (
	// Standard is the 20 canonical amino acids.
	Standard = Alphabet{name: "standard", symbols: "ACDEFGHIKLMNPQRSTVWY"}
	// Extended adds the IUPAC ambiguity and rare residue codes.
	Extended = Alphabet{name: "extended", symbols: "ACDEFGHIKLMNPQRSTVWYBJOUXZ"}
	// WithGaps additionally accepts stop and gap symbols.
	WithGaps = Alphabet{name: "gapped", symbols: "ACDEFGHIKLMNPQRSTVWYBJOUXZ*-"}
)

// Name returns the alphabet's name.
func (a Alphabet) Name() string { return a.name }

// Contains reports whether r (any case) is in the alphabet.
func (a Alphabet) Contains(r rune) bool {
	return strings.ContainsRune(a.symbols, unicode.ToUpper(r))
}

// ParseAlphabet returns the alphabet with the given name.
func ParseAlphabet(name string) (Alphabet, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard":
		return Standard, nil
	case "extended":
		return Extended, nil
	case "gapped":
		return WithGaps, nil
	default:
		return Alphabet{}, fmt.Errorf("unknown alphabet: %q", name)
	}
}

// ValidationError reports bad sequence input.
// Char is zero when the input had no residues at all.
type ValidationError struct {
	Char     rune
	Position int // 1-based index into the residues
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Char == 0 {
		return "invalid sequence: " + e.Reason
	}
	return fmt.Sprintf("invalid sequence: character %q at position %d is not a recognized residue", e.Char, e.Position)
}

// Validate strips the FASTA header line and whitespace from raw and checks
// every remaining character against alphabet. Residue case is kept. Input
// holding more than one record is rejected.
func Validate(raw string, alphabet Alphabet) (model.SequenceRecord, error) {
	var (
		header     string
		seenHeader bool
		b          strings.Builder
	)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, ">") {
			if seenHeader || b.Len() > 0 {
				return model.SequenceRecord{}, &ValidationError{Reason: "multiple sequences; submit one record per request"}
			}
			seenHeader = true
			header = strings.TrimSpace(line[1:])
			continue
		}
		for _, r := range line {
			if unicode.IsSpace(r) {
				continue
			}
			pos := b.Len() + 1
			if !alphabet.Contains(r) {
				return model.SequenceRecord{}, &ValidationError{Char: r, Position: pos}
			}
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return model.SequenceRecord{}, &ValidationError{Reason: "no residues"}
	}

	return model.SequenceRecord{Header: header, Residues: b.String()}, nil
}
