package taxonomy

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/rewired-gh/polyedge/internal/models"
)

// MiscCluster collects UNKNOWN titles that match no vocabulary keyword.
const MiscCluster = "misc"

// DefaultVocabulary groups UNKNOWN titles for review.
func DefaultVocabulary() []string {
	return []string{"first", "last", "both", "score", "goal", "half", "minute", "extra time", "penalty"}
}

// Cluster is one group of UNKNOWN titles sharing a vocabulary keyword.
type Cluster struct {
	Keyword string
	Titles  []string
}

// ClusterUnknown groups the titles of UNKNOWN rows. A title joins every
// cluster whose keyword it contains, or misc when it contains none. Clusters
// follow vocabulary order with misc last; empty clusters are omitted.
func ClusterUnknown(rows []models.NormalizedRow, vocabulary []string) []Cluster {
	byKeyword := make(map[string][]string)
	for _, r := range rows {
		if r.Taxonomy != models.TaxonomyUnknown || r.MarketTitle == "" {
			continue
		}
		lowered := strings.ToLower(r.MarketTitle)
		matched := false
		for _, kw := range vocabulary {
			if strings.Contains(lowered, strings.ToLower(kw)) {
				byKeyword[kw] = append(byKeyword[kw], r.MarketTitle)
				matched = true
			}
		}
		if !matched {
			byKeyword[MiscCluster] = append(byKeyword[MiscCluster], r.MarketTitle)
		}
	}

	var out []Cluster
	for _, kw := range append(append([]string(nil), vocabulary...), MiscCluster) {
		if titles := byKeyword[kw]; len(titles) > 0 {
			out = append(out, Cluster{Keyword: kw, Titles: titles})
		}
	}
	return out
}

// Inspection lists the price-like fields of one tagged row and the keys of its
// raw market payload.
type Inspection struct {
	Event        string
	Market       string
	PriceFields  []string
	RawKeys      []string
	ContractKeys []string
}

// Inspect reports how rows carrying tag express their pricing.
func Inspect(rows []models.NormalizedRow, tag string) ([]Inspection, error) {
	var out []Inspection
	for _, r := range rows {
		if r.Taxonomy != tag {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, err
		}
		var priceFields []string
		for k := range fields {
			if strings.Contains(k, "price") || strings.Contains(k, "line") {
				priceFields = append(priceFields, k)
			}
		}
		sort.Strings(priceFields)

		in := Inspection{
			Event:       r.EventTitle,
			Market:      r.MarketTitle,
			PriceFields: priceFields,
			RawKeys:     sortedKeys(r.RawPayload),
		}
		if contracts, ok := r.RawPayload["contracts"].([]any); ok && len(contracts) > 0 {
			if first, ok := contracts[0].(map[string]any); ok {
				in.ContractKeys = sortedKeys(first)
			}
		}
		out = append(out, in)
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
