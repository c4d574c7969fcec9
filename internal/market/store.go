package market

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Store wraps the relational market/snapshot/link/news tables.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertMarket inserts the market on first sighting and refreshes mutable
// fields afterwards. Returns the row id for (Source, ExternalID).
func (s *Store) UpsertMarket(m Market) (int64, error) {
	genres, err := json.Marshal(m.Genres)
	if err != nil {
		return 0, fmt.Errorf("encoding genres: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO markets
			(source, external_id, event_id, question, event_title,
			 market_slug, event_slug, genres, close_date, resolved, resolution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, external_id) DO UPDATE SET
			event_title  = excluded.event_title,
			genres       = excluded.genres,
			close_date   = excluded.close_date,
			resolved     = excluded.resolved,
			resolution   = excluded.resolution,
			last_updated = datetime('now')`,
		m.Source, m.ExternalID, m.EventID, m.Question, m.EventTitle,
		m.MarketSlug, m.EventSlug, string(genres), m.CloseDate,
		boolToInt(m.Resolved), m.Resolution,
	)
	if err != nil {
		return 0, fmt.Errorf("upserting market %s/%s: %w", m.Source, m.ExternalID, err)
	}

	var id int64
	row := s.db.QueryRow(
		`SELECT id FROM markets WHERE source = ? AND external_id = ?`,
		m.Source, m.ExternalID)
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("reading market id: %w", err)
	}
	return id, nil
}

// SetResolution records the source's final outcome for a market.
func (s *Store) SetResolution(marketID int64, resolution string) error {
	_, err := s.db.Exec(`
		UPDATE markets SET resolved = 1, resolution = ?, last_updated = datetime('now')
		WHERE id = ?`, resolution, marketID)
	if err != nil {
		return fmt.Errorf("setting resolution for market %d: %w", marketID, err)
	}
	return nil
}

// MarketByID loads one market row.
func (s *Store) MarketByID(id int64) (*Market, error) {
	row := s.db.QueryRow(`
		SELECT id, source, external_id, COALESCE(event_id, ''), question,
		       COALESCE(event_title, ''), COALESCE(market_slug, ''),
		       COALESCE(event_slug, ''), COALESCE(genres, '[]'),
		       COALESCE(close_date, ''), resolved, COALESCE(resolution, ''),
		       first_seen, last_updated
		FROM markets WHERE id = ?`, id)
	return scanMarket(row)
}

// MarketsBySource lists every market for one source, for resolution refresh.
func (s *Store) MarketsBySource(source string) ([]Market, error) {
	rows, err := s.db.Query(`
		SELECT id, source, external_id, COALESCE(event_id, ''), question,
		       COALESCE(event_title, ''), COALESCE(market_slug, ''),
		       COALESCE(event_slug, ''), COALESCE(genres, '[]'),
		       COALESCE(close_date, ''), resolved, COALESCE(resolution, ''),
		       first_seen, last_updated
		FROM markets WHERE source = ?`, source)
	if err != nil {
		return nil, fmt.Errorf("listing markets for %s: %w", source, err)
	}
	defer rows.Close()

	var markets []Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

// UpsertSnapshot writes the day's probability reading. A same-day rerun
// overwrites the existing row; this is the subsystem's idempotence mechanism.
func (s *Store) UpsertSnapshot(snap Snapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO probability_snapshots
			(market_id, snapshot_date, yes_prob, no_prob, volume, recorded_at)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(market_id, snapshot_date) DO UPDATE SET
			yes_prob    = excluded.yes_prob,
			no_prob     = excluded.no_prob,
			volume      = excluded.volume,
			recorded_at = excluded.recorded_at`,
		snap.MarketID, snap.Date, snap.YesProb, snap.NoProb, snap.Volume,
	)
	if err != nil {
		return fmt.Errorf("upserting snapshot market=%d date=%s: %w", snap.MarketID, snap.Date, err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot for a market, or nil when
// the market has none yet.
func (s *Store) LatestSnapshot(marketID int64) (*Snapshot, error) {
	return s.latestBefore(marketID, "")
}

// PriorSnapshot returns the most recent snapshot strictly before the given
// date. Gaps are tolerated: "prior" is not necessarily yesterday.
func (s *Store) PriorSnapshot(marketID int64, beforeDate string) (*Snapshot, error) {
	return s.latestBefore(marketID, beforeDate)
}

func (s *Store) latestBefore(marketID int64, beforeDate string) (*Snapshot, error) {
	query := `
		SELECT market_id, snapshot_date, yes_prob, no_prob, COALESCE(volume, 0), recorded_at
		FROM probability_snapshots
		WHERE market_id = ?`
	args := []any{marketID}
	if beforeDate != "" {
		query += ` AND snapshot_date < ?`
		args = append(args, beforeDate)
	}
	query += ` ORDER BY snapshot_date DESC LIMIT 1`

	var snap Snapshot
	row := s.db.QueryRow(query, args...)
	err := row.Scan(&snap.MarketID, &snap.Date, &snap.YesProb, &snap.NoProb,
		&snap.Volume, &snap.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot for market %d: %w", marketID, err)
	}
	return &snap, nil
}

// InsertNewsEvent records a flagged probability swing. Idempotent per
// (market, date) so a rerun does not duplicate the alert.
func (s *Store) InsertNewsEvent(ev NewsEvent) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO news_events
			(market_id, event_date, prev_prob, curr_prob, change_pct, headline, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))`,
		ev.MarketID, ev.EventDate, ev.PrevProb, ev.CurrProb, ev.ChangePct, ev.Headline,
	)
	if err != nil {
		return fmt.Errorf("inserting news event market=%d date=%s: %w", ev.MarketID, ev.EventDate, err)
	}
	return nil
}

// NewsEventCount reports the number of flagged swings for a market.
func (s *Store) NewsEventCount(marketID int64) (int, error) {
	var n int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM news_events WHERE market_id = ?`, marketID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("counting news events: %w", err)
	}
	return n, nil
}

// AddLink associates a prediction with a market. Replaces any existing link
// for the same (prediction, external market) pair.
func (s *Store) AddLink(l Link) error {
	if !l.Direction.Valid() {
		return fmt.Errorf("invalid resolution direction %q", l.Direction)
	}
	m, err := s.MarketByID(l.MarketID)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("market %d does not exist", l.MarketID)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO prediction_links
			(prediction_id, market_id, source, external_market_id,
			 resolution_direction, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))`,
		l.PredictionID, l.MarketID, m.Source, m.ExternalID, string(l.Direction), l.Notes,
	)
	if err != nil {
		return fmt.Errorf("adding link %s -> market %d: %w", l.PredictionID, l.MarketID, err)
	}
	return nil
}

// LinkForPrediction returns the primary link for a prediction, or nil when
// none is configured. One prediction maps to at most one market.
func (s *Store) LinkForPrediction(predictionID string) (*Link, error) {
	row := s.db.QueryRow(`
		SELECT id, prediction_id, market_id, COALESCE(source, ''),
		       COALESCE(external_market_id, ''), resolution_direction,
		       COALESCE(notes, ''), created_at
		FROM prediction_links
		WHERE prediction_id = ?
		ORDER BY id LIMIT 1`, predictionID)

	var l Link
	var dir string
	err := row.Scan(&l.ID, &l.PredictionID, &l.MarketID, &l.Source,
		&l.ExternalMarketID, &dir, &l.Notes, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading link for %s: %w", predictionID, err)
	}
	l.Direction = Direction(dir)
	return &l, nil
}

// AllLinks lists every link, ordered by prediction id.
func (s *Store) AllLinks() ([]Link, error) {
	rows, err := s.db.Query(`
		SELECT id, prediction_id, market_id, COALESCE(source, ''),
		       COALESCE(external_market_id, ''), resolution_direction,
		       COALESCE(notes, ''), created_at
		FROM prediction_links ORDER BY prediction_id`)
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		var dir string
		if err := rows.Scan(&l.ID, &l.PredictionID, &l.MarketID, &l.Source,
			&l.ExternalMarketID, &dir, &l.Notes, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Direction = Direction(dir)
		links = append(links, l)
	}
	return links, rows.Err()
}

// Search finds markets whose question or event title contains the keyword,
// newest probability first. Used when wiring links by hand.
func (s *Store) Search(keyword string, limit int) ([]SearchResult, error) {
	pattern := "%" + keyword + "%"
	rows, err := s.db.Query(`
		SELECT m.id, m.source, m.external_id, COALESCE(m.event_id, ''), m.question,
		       COALESCE(m.event_title, ''), COALESCE(m.market_slug, ''),
		       COALESCE(m.event_slug, ''), COALESCE(m.genres, '[]'),
		       COALESCE(m.close_date, ''), m.resolved, COALESCE(m.resolution, ''),
		       m.first_seen, m.last_updated,
		       ps.yes_prob, ps.snapshot_date
		FROM markets m
		LEFT JOIN (
			SELECT market_id, yes_prob, snapshot_date
			FROM probability_snapshots
			WHERE (market_id, snapshot_date) IN (
				SELECT market_id, MAX(snapshot_date) FROM probability_snapshots GROUP BY market_id
			)
		) ps ON m.id = ps.market_id
		WHERE m.question LIKE ? OR m.event_title LIKE ?
		ORDER BY ps.yes_prob DESC
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("searching markets: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var genres string
		var resolved int
		var yesProb sql.NullFloat64
		var snapDate sql.NullString
		err := rows.Scan(&r.Market.ID, &r.Market.Source, &r.Market.ExternalID,
			&r.Market.EventID, &r.Market.Question, &r.Market.EventTitle,
			&r.Market.MarketSlug, &r.Market.EventSlug, &genres,
			&r.Market.CloseDate, &resolved, &r.Market.Resolution,
			&r.Market.FirstSeen, &r.Market.LastUpdated,
			&yesProb, &snapDate)
		if err != nil {
			return nil, err
		}
		r.Market.Resolved = resolved != 0
		json.Unmarshal([]byte(genres), &r.Market.Genres)
		if yesProb.Valid {
			r.YesProb = yesProb.Float64
			r.SnapshotDate = snapDate.String
			r.HasSnapshot = true
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Counts summarizes table sizes for the status command.
type Counts struct {
	Markets   int
	BySource  map[string]int
	Snapshots int
	Links     int
	News      int
	MinDate   string
	MaxDate   string
}

func (s *Store) Counts() (*Counts, error) {
	c := &Counts{BySource: make(map[string]int)}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM markets`).Scan(&c.Markets); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT source, COUNT(*) FROM markets GROUP BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, err
		}
		c.BySource[src] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM probability_snapshots`).Scan(&c.Snapshots); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM prediction_links`).Scan(&c.Links); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM news_events`).Scan(&c.News); err != nil {
		return nil, err
	}

	var minDate, maxDate sql.NullString
	row := s.db.QueryRow(`SELECT MIN(snapshot_date), MAX(snapshot_date) FROM probability_snapshots`)
	if err := row.Scan(&minDate, &maxDate); err != nil {
		return nil, err
	}
	c.MinDate, c.MaxDate = minDate.String, maxDate.String

	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarket(row rowScanner) (*Market, error) {
	var m Market
	var genres string
	var resolved int
	err := row.Scan(&m.ID, &m.Source, &m.ExternalID, &m.EventID, &m.Question,
		&m.EventTitle, &m.MarketSlug, &m.EventSlug, &genres, &m.CloseDate,
		&resolved, &m.Resolution, &m.FirstSeen, &m.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning market: %w", err)
	}
	m.Resolved = resolved != 0
	json.Unmarshal([]byte(genres), &m.Genres)
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
