package repository

import "github.com/rewired-gh/polyedge/internal/models"

// Known artifact series.
var (
	KalshiEvents    = Series{Stage: StageRaw, Source: models.SourceKalshi, Kind: "events"}
	BookmakerGames  = Series{Stage: StageRaw, Source: models.SourceBookmaker, Kind: "games_raw"}
	PolymarketBooks = Series{Stage: StageRaw, Source: models.SourcePolymarket, Kind: "books_raw"}
	PolymarketGamma = Series{Stage: StageRaw, Source: models.SourcePolymarket, Kind: "gamma_events"}
	WSCapture       = Series{Stage: StageRaw, Source: models.SourcePolymarket, Kind: "ws_asset_messages", Ext: "jsonl"}

	KalshiFlat          = Series{Stage: StageNormalized, Source: models.SourceKalshi, Kind: "markets_flat"}
	KalshiClassified    = Series{Stage: StageNormalized, Source: models.SourceKalshi, Kind: "markets_classified"}
	BookmakerNormalized = Series{Stage: StageNormalized, Source: models.SourceBookmaker, Kind: "bookmaker_normalized"}
	BooksNormalized     = Series{Stage: StageNormalized, Source: models.SourcePolymarket, Kind: "books_normalized"}
	WSBooks             = Series{Stage: StageNormalized, Source: models.SourcePolymarket, Kind: "ws_books"}

	ResolutionSignal = Series{Stage: StageComputed, Source: models.SourceKalshi, Kind: "resolution_signal"}
	TimeseriesDelta  = Series{Stage: StageComputed, Source: models.SourceKalshi, Kind: "timeseries_delta"}
	JoinedOutcomes   = Series{Stage: StageComputed, Source: models.SourcePolymarket, Kind: "joined_outcomes"}
)

// Arb returns the arb series for one taxonomy tag.
func Arb(taxonomy string) Series {
	return Series{Stage: StageComputed, Source: models.SourceKalshi, Kind: "arb_" + taxonomy}
}
