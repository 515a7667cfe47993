package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/schema"
)

// BookmakerOptions selects the one competition, line and bookmaker to keep.
type BookmakerOptions struct {
	Competition   string
	LineType      string
	BookmakerID   int
	BookmakerName string
	League        string
}

const fullTimeResult = "FULL_TIME_RESULT"

// upper maps titles to upper case with Unicode rules. A Caser holds state, so
// one is built per call.
func upper(s string) string {
	return cases.Upper(language.Und).String(s)
}

// CanonicalMatch builds the LEAGUE|HOME|AWAY|DATE dedupe key.
func CanonicalMatch(league, home, away, start string) string {
	day := start
	if len(day) > 10 {
		day = day[:10]
	}
	return strings.Join([]string{league, upper(home), upper(away), day}, "|")
}

// Bookmaker extracts three-way full-time-result odds for the configured
// bookmaker. Matches are deduplicated by canonical key, last write wins, and
// returned in first-seen key order.
func Bookmaker(snap Snapshot, opts BookmakerOptions) ([]models.BookmakerMatch, *models.Tally, error) {
	games, ok := gameList(snap.Data)
	if !ok {
		return nil, nil, &models.SchemaShapeError{File: snap.Name, Reason: "expected list of games or {games: [...]}"}
	}

	tally := models.NewTally()
	stamp := Stamp(snap.Captured)
	byKey := make(map[string]int)
	var out []models.BookmakerMatch

	for _, g := range games {
		tally.Processed++
		if schema.String(g, "competitionDisplayName") != opts.Competition {
			tally.Skip(models.SkipFiltered)
			continue
		}
		home := nestedName(g, "homeCompetitor")
		away := nestedName(g, "awayCompetitor")
		start := schema.String(g, "startTime")
		if home == "" || away == "" {
			tally.Skip(models.SkipMissingID)
			continue
		}

		found := false
		for _, m := range schema.Objects(g, "markets") {
			if nestedName(m, "lineType") != opts.LineType {
				continue
			}
			for _, o := range schema.Objects(m, "odds") {
				id, ok := schema.Number(o, "bookmakerId")
				if !ok || int(id) != opts.BookmakerID {
					continue
				}
				found = true
				odds, ok := threeWay(o)
				if !ok {
					tally.Skip(models.SkipIncomplete)
					continue
				}
				implied := models.ThreeWay{
					Home: models.Round(1/odds.Home, 4),
					Draw: models.Round(1/odds.Draw, 4),
					Away: models.Round(1/odds.Away, 4),
				}
				match := models.BookmakerMatch{
					CanonicalMatch: CanonicalMatch(opts.League, home, away, start),
					HomeTeam:       home,
					AwayTeam:       away,
					StartTime:      start,
					Bookmaker:      opts.BookmakerName,
					Market:         fullTimeResult,
					Odds:           odds,
					ImpliedProb:    implied,
					Overround:      models.Round(implied.Sum(), 4),
					Source:         models.SourceBookmaker,
					Timestamp:      stamp,
					Snapshot:       snap.Name,
				}
				if i, seen := byKey[match.CanonicalMatch]; seen {
					out[i] = match
					tally.Skip(models.SkipDuplicate)
				} else {
					byKey[match.CanonicalMatch] = len(out)
					out = append(out, match)
				}
			}
		}
		if !found {
			tally.Skip(models.SkipFiltered)
		}
	}

	if len(out) == 0 {
		return nil, tally, models.ErrNoValidRows
	}
	return out, tally, nil
}

func gameList(data any) ([]schema.Record, bool) {
	games, _, ok := schema.Parse(data,
		schema.Variant[[]schema.Record]{Name: "list", Match: func(d any) ([]schema.Record, bool) {
			if _, ok := d.([]any); !ok {
				return nil, false
			}
			return schema.AsObjects(d), true
		}},
		schema.Variant[[]schema.Record]{Name: "games", Match: func(d any) ([]schema.Record, bool) {
			m, ok := d.(map[string]any)
			if !ok {
				return nil, false
			}
			if _, ok := m["games"].([]any); !ok {
				return nil, false
			}
			return schema.Objects(m, "games"), true
		}},
	)
	return games, ok
}

func nestedName(r schema.Record, key string) string {
	obj, ok := schema.Object(r, key)
	if !ok {
		return ""
	}
	return schema.String(obj, "name")
}

// threeWay reads the "1", "X", "2" decimal prices. A missing or non-positive
// price rejects the whole market.
func threeWay(o schema.Record) (models.ThreeWay, bool) {
	prices := make(map[string]float64, 3)
	for _, p := range schema.Objects(o, "prices") {
		name := upper(schema.String(p, "name"))
		if name != "1" && name != "X" && name != "2" {
			continue
		}
		v, ok := schema.Number(p, "decimal")
		if !ok || v <= 0 {
			delete(prices, name)
			continue
		}
		prices[name] = v
	}
	if len(prices) != 3 {
		return models.ThreeWay{}, false
	}
	return models.ThreeWay{Home: prices["1"], Draw: prices["X"], Away: prices["2"]}, true
}
