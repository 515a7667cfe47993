// Package schema tolerates upstream payload drift: lenient numbers, declared
// alias lists per logical field, and first-match variant parsing.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rewired-gh/polyedge/internal/models"
)

// Record is one decoded JSON object.
type Record = map[string]any

// Alias lists, in priority order. The first present, non-null key wins.
var (
	MatchKeys        = []string{"match", "event", "event_title", "title"}
	VolumeKeys       = []string{"volume", "total_volume", "market_volume", "recent_volume"}
	OpenInterestKeys = []string{"open_interest", "oi", "openInterest"}
	ConvictionKeys   = []string{"conviction", "confidence", "signal_strength"}

	TokenIDKeys = []string{"token_id", "tokenId", "token", "asset_id", "assetId"}
	ClobIDKeys  = []string{"clobTokenId", "clob_token_id", "tokenId", "token_id", "asset_id"}
	LabelKeys   = []string{"label", "name", "outcome", "title"}

	YesBidKeys    = []string{"yes_bid", "yes_bid_dollars"}
	YesAskKeys    = []string{"yes_ask", "yes_ask_dollars"}
	LastPriceKeys = []string{"last_price", "last_price_dollars"}
)

// Lookup returns the value of the first alias present and non-null in r.
func Lookup(r Record, aliases []string) (any, bool) {
	for _, k := range aliases {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String resolves aliases to a non-empty string. Numeric ids are rendered
// without an exponent.
func String(r Record, aliases ...string) string {
	v, ok := Lookup(r, aliases)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

// Number resolves aliases to a float, accepting JSON numbers and numeric strings.
func Number(r Record, aliases ...string) (float64, bool) {
	for _, k := range aliases {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		if f, ok := ToFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// NumberOr is Number with a default for absent or unparseable fields.
func NumberOr(r Record, def float64, aliases ...string) float64 {
	if f, ok := Number(r, aliases...); ok {
		return f
	}
	return def
}

// NumberPtr is Number returning nil when no alias resolves.
func NumberPtr(r Record, aliases ...string) *float64 {
	if f, ok := Number(r, aliases...); ok {
		return &f
	}
	return nil
}

// ToFloat converts a decoded JSON scalar to float64.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// Object returns r[key] when it is a JSON object.
func Object(r Record, key string) (Record, bool) {
	m, ok := r[key].(map[string]any)
	return m, ok
}

// Objects returns the object elements of r[key]; non-object elements are dropped.
func Objects(r Record, key string) []Record {
	return AsObjects(r[key])
}

// AsObjects returns the object elements of a decoded JSON array.
func AsObjects(v any) []Record {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// StringList accepts a JSON array of scalars or a string containing a JSON
// array, the form Gamma uses for clobTokenIds and outcomes.
func StringList(v any) []string {
	switch t := v.(type) {
	case string:
		var arr []any
		if err := json.Unmarshal([]byte(t), &arr); err != nil {
			return nil
		}
		return StringList(arr)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s := String(Record{"v": item}, "v")
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Variant is one recognized payload shape. Match returns the extracted value
// and true when data has this shape.
type Variant[T any] struct {
	Name  string
	Match func(data any) (T, bool)
}

// Parse tries each variant in order and returns the first structural match.
func Parse[T any](data any, variants ...Variant[T]) (T, string, bool) {
	for _, v := range variants {
		if out, ok := v.Match(data); ok {
			return out, v.Name, true
		}
	}
	var zero T
	return zero, "", false
}

// Rows accepts either a bare list of objects or a {matches: [...]} wrapper.
func Rows(file string, data any) ([]Record, error) {
	rows, _, ok := Parse(data,
		Variant[[]Record]{Name: "list", Match: func(d any) ([]Record, bool) {
			if _, ok := d.([]any); !ok {
				return nil, false
			}
			return AsObjects(d), true
		}},
		Variant[[]Record]{Name: "matches", Match: func(d any) ([]Record, bool) {
			m, ok := d.(map[string]any)
			if !ok {
				return nil, false
			}
			if _, ok := m["matches"].([]any); !ok {
				return nil, false
			}
			return Objects(m, "matches"), true
		}},
	)
	if !ok {
		return nil, &models.SchemaShapeError{File: file, Reason: fmt.Sprintf("expected list or {matches: [...]}, got %s", describe(data))}
	}
	return rows, nil
}

func describe(data any) string {
	switch t := data.(type) {
	case nil:
		return "null"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > 5 {
			keys = keys[:5]
		}
		return "object with keys " + strings.Join(keys, ",")
	case []any:
		return "list"
	case string:
		return "string"
	case float64, json.Number:
		return "number"
	case bool:
		return "bool"
	}
	return fmt.Sprintf("%T", data)
}
