package capture

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func harEntry(rawURL, text, encoding string) map[string]any {
	return map[string]any{
		"request": map[string]any{"method": "GET", "url": rawURL},
		"response": map[string]any{
			"status":  200,
			"content": map[string]any{"mimeType": "application/json", "text": text, "encoding": encoding},
		},
	}
}

func testHAR(t *testing.T) *HAR {
	t.Helper()
	single := base64.StdEncoding.EncodeToString([]byte(`{"asset_id":"222","bids":[["0.4","10"]],"asks":[]}`))
	doc := map[string]any{"log": map[string]any{"entries": []any{
		harEntry("https://clob.polymarket.com/books", `[{"asset_id":"111","bids":[],"asks":[["0.6","5"]]},{"asset_id":"112"}]`, ""),
		harEntry("https://clob.polymarket.com/books?token=222", single, "base64"),
		harEntry("https://clob.polymarket.com/books", `not json`, ""),
		harEntry("https://webws.365scores.com/web/games/allscores?sports=1", `{"games":[
			{"id":1,"sportId":1,"competitionDisplayName":"Premier League"},
			{"id":2,"sportId":2,"competitionDisplayName":"Premier League"},
			{"id":3,"sportId":1,"competitionDisplayName":"LaLiga"}
		]}`, ""),
		harEntry("https://gamma-api.polymarket.com/events/pagination?limit=20", `{"data":[{"id":"e1","markets":[]}],"pagination":{"hasMore":false}}`, ""),
		harEntry("https://gamma-api.polymarket.com/events?limit=20", `[{"id":"ignored"}]`, ""),
		harEntry("https://example.com/books", `[{"asset_id":"999"}]`, ""),
	}}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	h, err := ParseHAR(data)
	require.NoError(t, err)
	return h
}

func TestRuleMatch(t *testing.T) {
	r := Rule{Host: "clob.polymarket.com", Path: "/books"}
	assert.True(t, r.Match("https://clob.polymarket.com/books?x=1"))
	assert.False(t, r.Match("https://clob.polymarket.com/book"))
	assert.False(t, r.Match("https://example.com/books"))
	assert.True(t, Rule{}.Match("https://anything.test/"))
}

func TestExtractBooks(t *testing.T) {
	ex := testHAR(t).ExtractBooks(Rule{Host: "clob.polymarket.com", Path: "/books"})
	assert.Equal(t, 3, ex.Matched)
	assert.Equal(t, 1, ex.Undecoded)
	require.Len(t, ex.Items, 3)
	assert.Equal(t, "222", ex.Items[2].(map[string]any)["asset_id"])
}

func TestExtractGames(t *testing.T) {
	ex := testHAR(t).ExtractGames(Rule{Host: "365scores.com", Path: "/web/games/allscores"}, 1, "premier league")
	assert.Equal(t, 1, ex.Matched)
	require.Len(t, ex.Items, 1)
	assert.Equal(t, 1.0, ex.Items[0].(map[string]any)["id"])
}

func TestExtractGamma(t *testing.T) {
	ex := testHAR(t).ExtractGamma(Rule{Host: "gamma-api.polymarket.com", Path: "/events/pagination"})
	assert.Equal(t, 1, ex.Matched)
	require.Len(t, ex.Items, 1)
	assert.Equal(t, "e1", ex.Items[0].(map[string]any)["id"])
}

func TestParseHARRejectsGarbage(t *testing.T) {
	_, err := ParseHAR([]byte(`{"log":`))
	assert.Error(t, err)
}
