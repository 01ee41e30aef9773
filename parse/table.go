package parse

import (
	"strconv"
	"strings"

	"github.com/richinex/biotools/model"
)

// TableHeader is the header line of a rendered hit table.
const TableHeader = "rank\tid\tidentity%\talign_len\te-value\tbitscore\torganism"

// Table renders hits as the tab-separated report returned for
// output_format=table.
func Table(hits []model.SearchHit) string {
	lines := make([]string, 0, len(hits)+1)
	lines = append(lines, TableHeader)
	for _, h := range hits {
		organism := "N/A"
		if h.Organism != nil {
			organism = *h.Organism
		}
		lines = append(lines, strings.Join([]string{
			strconv.Itoa(h.Rank),
			h.SubjectID,
			strconv.FormatFloat(h.PercentIdentity, 'f', -1, 64),
			strconv.Itoa(h.AlignmentLength),
			strconv.FormatFloat(h.Evalue, 'g', -1, 64),
			strconv.FormatFloat(h.Bitscore, 'f', -1, 64),
			organism,
		}, "\t"))
	}
	return strings.Join(lines, "\n")
}
