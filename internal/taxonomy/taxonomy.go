// Package taxonomy tags market titles with a semantic category using an
// ordered keyword rule table. The first matching rule wins; table order is
// the tie-break and is never re-sorted.
package taxonomy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rewired-gh/polyedge/internal/models"
)

// Rule maps any of its keywords, matched as lowercase substrings, to Tag.
type Rule struct {
	Tag      string   `mapstructure:"tag" json:"tag"`
	Keywords []string `mapstructure:"keywords" json:"keywords"`
}

// DefaultRules is the rule table in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Tag: "MATCH_WINNER", Keywords: []string{"wins", "win the match"}},
		{Tag: "POINT_SPREAD", Keywords: []string{"spread", "handicap", "+", "-"}},
		{Tag: "TOTAL_GOALS", Keywords: []string{"total goals", "over", "under"}},
		{Tag: "BOTH_TEAMS_SCORE", Keywords: []string{"both teams score"}},
		{Tag: "FIRST_EVENT", Keywords: []string{"first", "scores first"}},
		{Tag: "PLAYER_PROP", Keywords: []string{"player"}},
		{Tag: "TEAM_PROP", Keywords: []string{"team", "scores", "clean sheet"}},
		{Tag: "BINARY_EVENT", Keywords: []string{"will", "yes", "no"}},
		{Tag: "CONDITIONAL_EVENT", Keywords: []string{"if", "given", "provided"}},
	}
}

// Classifier applies a fixed rule table.
type Classifier struct {
	rules []Rule
}

// New validates and copies rules. Keywords are lowercased once here.
func New(rules []Rule) (*Classifier, error) {
	if len(rules) == 0 {
		return nil, errors.New("taxonomy rules must not be empty")
	}
	seen := make(map[string]bool, len(rules))
	c := &Classifier{rules: make([]Rule, 0, len(rules))}
	for i, r := range rules {
		if r.Tag == "" {
			return nil, fmt.Errorf("taxonomy rule %d has no tag", i)
		}
		if r.Tag == models.TaxonomyUnknown {
			return nil, fmt.Errorf("taxonomy rule %d uses reserved tag %s", i, models.TaxonomyUnknown)
		}
		if seen[r.Tag] {
			return nil, fmt.Errorf("taxonomy tag %s declared twice", r.Tag)
		}
		seen[r.Tag] = true
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			if kw = strings.ToLower(kw); kw != "" {
				kws = append(kws, kw)
			}
		}
		if len(kws) == 0 {
			return nil, fmt.Errorf("taxonomy rule %s has no keywords", r.Tag)
		}
		c.rules = append(c.rules, Rule{Tag: r.Tag, Keywords: kws})
	}
	return c, nil
}

// Tags returns the rule tags in table order followed by UNKNOWN.
func (c *Classifier) Tags() []string {
	tags := make([]string, 0, len(c.rules)+1)
	for _, r := range c.rules {
		tags = append(tags, r.Tag)
	}
	return append(tags, models.TaxonomyUnknown)
}

// Classify returns the tag of the first rule with a keyword in title.
func (c *Classifier) Classify(title string) string {
	lowered := strings.ToLower(title)
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lowered, kw) {
				return r.Tag
			}
		}
	}
	return models.TaxonomyUnknown
}

// Counts is the number of rows per tag.
type Counts map[string]int

// ClassifyRows tags every row in place and returns per-tag counts. A row that
// already carries a tag keeps it.
func (c *Classifier) ClassifyRows(rows []models.NormalizedRow) Counts {
	counts := make(Counts)
	for i := range rows {
		if rows[i].Taxonomy == "" {
			rows[i].Taxonomy = c.Classify(rows[i].MarketTitle)
		}
		counts[rows[i].Taxonomy]++
	}
	return counts
}
