package market

// Direction maps a binary market's YES outcome onto one of a prediction's
// scenario labels. The engine never infers this mapping; an operator sets it
// when creating the link.
type Direction string

const (
	// Pessimistic: market YES corresponds to the pessimistic scenario.
	Pessimistic Direction = "pessimistic"
	// Optimistic: market YES corresponds to the optimistic scenario.
	Optimistic Direction = "optimistic"
)

// Valid reports whether d is one of the two supported directions.
func (d Direction) Valid() bool {
	return d == Pessimistic || d == Optimistic
}

// Market is the canonical record for one binary market from any source.
// Identity is (Source, ExternalID).
type Market struct {
	ID          int64
	Source      string
	ExternalID  string
	EventID     string
	Question    string
	EventTitle  string
	MarketSlug  string
	EventSlug   string
	Genres      []string
	CloseDate   string // YYYY-MM-DD, empty when the source reports none
	Resolved    bool
	Resolution  string // "YES", "NO", or "" while open
	FirstSeen   string
	LastUpdated string
}

// Snapshot is one day's recorded probability reading for a market.
// Unique per (MarketID, Date); a same-day rerun overwrites.
type Snapshot struct {
	MarketID   int64
	Date       string // YYYY-MM-DD
	YesProb    float64
	NoProb     float64
	Volume     float64
	RecordedAt string
}

// NewsEvent flags a large single-day probability swing. Advisory only;
// the resolution engine never reads these.
type NewsEvent struct {
	MarketID  int64
	EventDate string
	PrevProb  float64
	CurrProb  float64
	ChangePct float64
	Headline  string
}

// Link associates one prediction with one market plus the direction mapping.
type Link struct {
	ID               int64
	PredictionID     string
	MarketID         int64
	Source           string
	ExternalMarketID string
	Direction        Direction
	Notes            string
	CreatedAt        string
}

// SearchResult is a market with its most recent snapshot, for link setup.
type SearchResult struct {
	Market       Market
	YesProb      float64
	SnapshotDate string
	HasSnapshot  bool
}
