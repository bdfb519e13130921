package evaluation

import (
	"strconv"
	"strings"

	"github.com/gestor-t/neuroeval/internal/catalog"
)

// FallbackInstrumentName is used when an administration's instrument is not cataloged
const FallbackInstrumentName = "Teste"

// FormatResults renders administrations as the plain-text summary handed to
// the assistant, one line per administration in insertion order.
func FormatResults(results []TestAdministration, c *catalog.Catalog) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		name := FallbackInstrumentName
		if inst, ok := c.Lookup(r.InstrumentID); ok {
			name = inst.Name
		}
		var b strings.Builder
		b.WriteString(name)
		b.WriteString(": raw=")
		b.WriteString(formatNumber(r.RawScore))
		b.WriteString(", standard=")
		b.WriteString(formatNumber(r.StandardScore))
		b.WriteString(", percentile=")
		b.WriteString(formatNumber(r.Percentile))
		b.WriteString(". Notes: ")
		b.WriteString(r.Observations)
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
