package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/polyedge/internal/models"
)

func TestNumberAliasPriority(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		want   float64
		ok     bool
	}{
		{"first alias", Record{"volume": 10.0, "total_volume": 20.0}, 10, true},
		{"falls through null", Record{"volume": nil, "total_volume": 20.0}, 20, true},
		{"numeric string", Record{"market_volume": "42.5"}, 42.5, true},
		{"json number", Record{"recent_volume": json.Number("7")}, 7, true},
		{"unparseable skipped", Record{"volume": "n/a", "recent_volume": 3.0}, 3, true},
		{"absent", Record{"other": 1.0}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Number(tt.record, VolumeKeys...)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringRendersNumericIDs(t *testing.T) {
	assert.Equal(t, "123456789012", String(Record{"id": 123456789012.0}, "id"))
	assert.Equal(t, "KX-1", String(Record{"ticker": " KX-1 "}, "ticker", "id"))
	assert.Equal(t, "", String(Record{}, "ticker"))
}

func TestStringList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, StringList(`["a","b"]`))
	assert.Equal(t, []string{"1", "x"}, StringList([]any{1.0, "x"}))
	assert.Nil(t, StringList("not json"))
	assert.Nil(t, StringList(5.0))
}

func TestParseFirstMatchWins(t *testing.T) {
	isMap := Variant[string]{Name: "map", Match: func(d any) (string, bool) {
		_, ok := d.(map[string]any)
		return "map", ok
	}}
	hasData := Variant[string]{Name: "data", Match: func(d any) (string, bool) {
		m, ok := d.(map[string]any)
		if !ok {
			return "", false
		}
		_, ok = m["data"]
		return "data", ok
	}}

	out, name, ok := Parse[string](map[string]any{"data": 1}, isMap, hasData)
	require.True(t, ok)
	assert.Equal(t, "map", out)
	assert.Equal(t, "map", name)

	_, _, ok = Parse[string]([]any{}, isMap, hasData)
	assert.False(t, ok)
}

func TestRows(t *testing.T) {
	list := []any{map[string]any{"match": "A"}, "junk", map[string]any{"match": "B"}}
	rows, err := Rows("f.json", list)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	wrapped := map[string]any{"matches": []any{map[string]any{"match": "A"}}}
	rows, err = Rows("f.json", wrapped)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = Rows("f.json", map[string]any{"items": []any{}})
	var shape *models.SchemaShapeError
	require.True(t, errors.As(err, &shape))
	assert.Equal(t, "f.json", shape.File)
	assert.Contains(t, shape.Reason, "items")
}
