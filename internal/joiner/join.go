package joiner

import (
	"github.com/rewired-gh/polyedge/internal/models"
)

// Result is the output of one join pass. Joined+Skipped always equals the
// number of input rows.
type Result struct {
	Rows     []models.JoinedRow
	Mappings int
	Joined   int
	Skipped  int
}

// Join enriches each book row whose token id is in the index. Rows without a
// mapping are dropped and counted; partial coverage is normal because books
// and metadata are captured independently.
func Join(ix *TokenIndex, books []models.NormalizedRow) Result {
	res := Result{Mappings: ix.Len(), Rows: make([]models.JoinedRow, 0, len(books))}
	for _, b := range books {
		meta, ok := ix.Lookup(b.EntityKey)
		if b.EntityKey == "" || !ok {
			res.Skipped++
			continue
		}
		source := b.Source
		if source == "" {
			source = models.SourcePolymarket
		}
		res.Rows = append(res.Rows, models.JoinedRow{
			OutcomeMeta:    meta,
			Source:         source,
			Timestamp:      b.Timestamp,
			BestBid:        b.BestBid,
			BestAsk:        b.BestAsk,
			MidPrice:       b.MidPrice,
			Spread:         b.Spread,
			Liquidity:      b.Liquidity,
			LastTradePrice: b.LastTradePrice,
		})
		res.Joined++
	}
	return res
}
