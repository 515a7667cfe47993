package models

// SignalRecord is the quality/conviction score of one market instance.
type SignalRecord struct {
	Event           string   `json:"event"`
	MarketID        string   `json:"market_id,omitempty"`
	MarketTitle     string   `json:"market_title"`
	MidPrice        *float64 `json:"mid_price"`
	Spread          *float64 `json:"spread"`
	Volume          float64  `json:"volume"`
	OpenInterest    float64  `json:"open_interest"`
	Liquidity       float64  `json:"liquidity"`
	DollarVolume    float64  `json:"dollar_volume"`
	Conviction      float64  `json:"conviction"`
	Tightness       float64  `json:"tightness"`
	LiquidityWeight float64  `json:"liquidity_weight"`
	SignalScore     float64  `json:"signal_score"`
}

// Priced reports whether a mid price could be derived. Unpriced records are
// never chosen as a representative.
func (s SignalRecord) Priced() bool {
	return s.MidPrice != nil
}

// MatchSignal summarizes one logical match. Volume, OpenInterest and
// Conviction mirror BestSignal so history files can be diffed without
// descending into nested records.
type MatchSignal struct {
	Event        string         `json:"event"`
	Rank         int            `json:"rank,omitempty"`
	Volume       float64        `json:"volume"`
	OpenInterest float64        `json:"open_interest"`
	Conviction   float64        `json:"conviction"`
	BestSignal   *SignalRecord  `json:"best_signal"`
	TopInstances []SignalRecord `json:"top_instances"`
	Unpriced     []SignalRecord `json:"unpriced,omitempty"`
}

// SignalReport is the Signal Engine's output artifact.
type SignalReport struct {
	GeneratedAt string        `json:"generated_at"`
	InputFile   string        `json:"input_file"`
	Matches     []MatchSignal `json:"matches"`
	Unscored    []MatchSignal `json:"unscored,omitempty"`
}

// Phase labels the character of change between two observations.
type Phase string

const (
	PhaseEdgeForming Phase = "EDGE FORMING"
	PhaseCrowded     Phase = "CROWDED"
	PhaseWarming     Phase = "WARMING"
	PhaseWatch       Phase = "WATCH"
)

// DeltaRecord compares one entity across two adjacent signal snapshots.
type DeltaRecord struct {
	Match             string  `json:"match"`
	VolumePrev        float64 `json:"volume_prev"`
	VolumeCurr        float64 `json:"volume_curr"`
	DeltaVolume       float64 `json:"delta_volume"`
	OpenInterestPrev  float64 `json:"open_interest_prev"`
	OpenInterestCurr  float64 `json:"open_interest_curr"`
	DeltaOpenInterest float64 `json:"delta_open_interest"`
	ConvictionPrev    float64 `json:"conviction_prev"`
	ConvictionCurr    float64 `json:"conviction_curr"`
	DeltaConviction   float64 `json:"delta_conviction"`
	Velocity          float64 `json:"velocity"`
	Phase             Phase   `json:"phase"`
	NewEntity         bool    `json:"new_entity,omitempty"`
}

// DeltaReport is the Delta Engine's output artifact.
type DeltaReport struct {
	GeneratedAt  string        `json:"generated_at"`
	PreviousFile string        `json:"previous_file"`
	CurrentFile  string        `json:"current_file"`
	Matches      []DeltaRecord `json:"matches"`
	NewEntities  []string      `json:"new_entities_excluded,omitempty"`
}

// ArbRecord is one row's deviation from its category consensus.
type ArbRecord struct {
	Rank        int     `json:"rank"`
	Event       string  `json:"event"`
	Market      string  `json:"market"`
	Probability float64 `json:"probability"`
	Volume      float64 `json:"volume"`
	Deviation   float64 `json:"deviation"`
	ArbScore    float64 `json:"arb_score"`
}

// ArbReport is the Arb Scorer's output artifact.
type ArbReport struct {
	GeneratedAt string      `json:"generated_at"`
	InputFile   string      `json:"input_file"`
	Taxonomy    string      `json:"taxonomy"`
	Baseline    float64     `json:"baseline"`
	Rows        []ArbRecord `json:"rows"`
}
