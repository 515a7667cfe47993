package capture

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rewired-gh/polyedge/internal/schema"
)

// HAR is the subset of a browser HTTP Archive export the extractors read.
type HAR struct {
	Log struct {
		Entries []HAREntry `json:"entries"`
	} `json:"log"`
}

// HAREntry is one recorded request/response pair.
type HAREntry struct {
	Request struct {
		Method string `json:"method"`
		URL    string `json:"url"`
	} `json:"request"`
	Response struct {
		Status  int `json:"status"`
		Content struct {
			MimeType string `json:"mimeType"`
			Text     string `json:"text"`
			Encoding string `json:"encoding"`
		} `json:"content"`
	} `json:"response"`
}

// ParseHAR decodes a HAR export.
func ParseHAR(data []byte) (*HAR, error) {
	var h HAR
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse HAR: %w", err)
	}
	return &h, nil
}

// Rule selects entries whose URL host contains Host and path contains Path.
// An empty field matches anything.
type Rule struct {
	Host string
	Path string
}

// Match reports whether rawURL satisfies the rule.
func (r Rule) Match(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.Contains(u.Host, r.Host) && strings.Contains(u.Path, r.Path)
}

// Extraction is the outcome of one extractor run.
type Extraction struct {
	Matched   int
	Undecoded int
	Items     []any
}

// bodies decodes the JSON response bodies of every matching entry.
func (h *HAR) bodies(rule Rule, ex *Extraction) []any {
	var out []any
	for _, e := range h.Log.Entries {
		if !rule.Match(e.Request.URL) {
			continue
		}
		ex.Matched++
		text := e.Response.Content.Text
		if e.Response.Content.Encoding == "base64" {
			raw, err := base64.StdEncoding.DecodeString(text)
			if err != nil {
				ex.Undecoded++
				continue
			}
			text = string(raw)
		}
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			ex.Undecoded++
			continue
		}
		out = append(out, v)
	}
	return out
}

// ExtractBooks collects order books from CLOB /books responses. A list body
// contributes each element; an object body contributes itself.
func (h *HAR) ExtractBooks(rule Rule) Extraction {
	ex := Extraction{Items: []any{}}
	for _, body := range h.bodies(rule, &ex) {
		switch t := body.(type) {
		case []any:
			ex.Items = append(ex.Items, t...)
		case map[string]any:
			ex.Items = append(ex.Items, t)
		}
	}
	return ex
}

// ExtractGames collects bookmaker games of one sport whose competition name
// contains competition, case-insensitively.
func (h *HAR) ExtractGames(rule Rule, sportID int, competition string) Extraction {
	ex := Extraction{Items: []any{}}
	want := strings.ToLower(competition)
	for _, body := range h.bodies(rule, &ex) {
		root, ok := body.(map[string]any)
		if !ok {
			continue
		}
		for _, g := range schema.Objects(root, "games") {
			if id, ok := schema.Number(g, "sportId"); !ok || int(id) != sportID {
				continue
			}
			name := strings.ToLower(schema.String(g, "competitionDisplayName"))
			if want != "" && !strings.Contains(name, want) {
				continue
			}
			ex.Items = append(ex.Items, g)
		}
	}
	return ex
}

// ExtractGamma collects events from Gamma pagination responses.
func (h *HAR) ExtractGamma(rule Rule) Extraction {
	ex := Extraction{Items: []any{}}
	for _, body := range h.bodies(rule, &ex) {
		switch t := body.(type) {
		case map[string]any:
			if data, ok := t["data"].([]any); ok {
				ex.Items = append(ex.Items, data...)
			}
		case []any:
			ex.Items = append(ex.Items, t...)
		}
	}
	return ex
}
