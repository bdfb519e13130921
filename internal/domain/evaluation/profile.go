package evaluation

import (
	"strings"

	"github.com/gestor-t/neuroeval/internal/catalog"
)

// BaselineScore is reported for dimensions without any matching administration
const BaselineScore = 100.0

// Dimension is one axis of the cognitive profile
type Dimension struct {
	Key   string
	Label string
}

// Dimensions lists the profile axes in display order. Label is the Portuguese
// name matched against instrument domains.
var Dimensions = []Dimension{
	{Key: "Attention", Label: "Atenção"},
	{Key: "Memory", Label: "Memória"},
	{Key: "Executive", Label: "Executivo"},
	{Key: "Language", Label: "Linguagem"},
	{Key: "Visuospatial", Label: "Visuoespacial"},
	{Key: "Intelligence", Label: "Inteligência"},
}

// DimensionScore is a projected score for one dimension
type DimensionScore struct {
	Key     string  `json:"key"`
	Label   string  `json:"label"`
	Score   float64 `json:"score"`
	Matches int     `json:"matches"`
}

// Profile is the derived six-dimension cognitive profile
type Profile []DimensionScore

// Score returns the score for a dimension key, or BaselineScore if absent
func (p Profile) Score(key string) float64 {
	for _, d := range p {
		if d.Key == key {
			return d.Score
		}
	}
	return BaselineScore
}

// matchKey is the first four runes of the lower-cased label, e.g. "memó".
// Substring matching is loose: any domain containing the key counts.
func matchKey(label string) string {
	r := []rune(strings.ToLower(label))
	if len(r) > 4 {
		r = r[:4]
	}
	return string(r)
}

// Project derives the cognitive profile from a set of administrations.
// Administrations of instruments missing from the catalog are ignored.
func Project(results []TestAdministration, c *catalog.Catalog) Profile {
	domains := make([]string, len(results))
	for i, r := range results {
		if inst, ok := c.Lookup(r.InstrumentID); ok {
			domains[i] = strings.ToLower(inst.Domain)
		}
	}

	profile := make(Profile, 0, len(Dimensions))
	for _, dim := range Dimensions {
		key := matchKey(dim.Label)
		var (
			sum float64
			n   int
		)
		for i, r := range results {
			if domains[i] != "" && strings.Contains(domains[i], key) {
				sum += r.StandardScore
				n++
			}
		}
		score := BaselineScore
		if n > 0 {
			score = sum / float64(n)
		}
		profile = append(profile, DimensionScore{Key: dim.Key, Label: dim.Label, Score: score, Matches: n})
	}
	return profile
}
