package db

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS markets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    external_id TEXT NOT NULL,
    event_id TEXT,
    question TEXT NOT NULL,
    event_title TEXT,
    market_slug TEXT,
    event_slug TEXT,
    genres TEXT,
    close_date TEXT,
    resolved INTEGER NOT NULL DEFAULT 0,
    resolution TEXT,
    first_seen TEXT NOT NULL DEFAULT (datetime('now')),
    last_updated TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(source, external_id)
);

CREATE TABLE IF NOT EXISTS probability_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    market_id INTEGER NOT NULL REFERENCES markets(id),
    snapshot_date TEXT NOT NULL,
    yes_prob REAL,
    no_prob REAL,
    volume REAL,
    recorded_at TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(market_id, snapshot_date)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_market ON probability_snapshots(market_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_date ON probability_snapshots(snapshot_date);

CREATE TABLE IF NOT EXISTS prediction_links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    prediction_id TEXT NOT NULL,
    market_id INTEGER NOT NULL REFERENCES markets(id),
    source TEXT,
    external_market_id TEXT,
    resolution_direction TEXT NOT NULL,
    notes TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(prediction_id, external_market_id)
);
CREATE INDEX IF NOT EXISTS idx_links_prediction ON prediction_links(prediction_id);

CREATE TABLE IF NOT EXISTS news_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    market_id INTEGER NOT NULL REFERENCES markets(id),
    event_date TEXT NOT NULL,
    prev_prob REAL,
    curr_prob REAL,
    change_pct REAL,
    headline TEXT,
    recorded_at TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(market_id, event_date)
);
CREATE INDEX IF NOT EXISTS idx_news_market ON news_events(market_id);
`
