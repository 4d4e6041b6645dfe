package sqlite

const schema = `
-- Schedules table. seq preserves insertion order for listings.
-- Timestamps are unix nanoseconds.
CREATE TABLE IF NOT EXISTS schedules (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    executive_id TEXT NOT NULL DEFAULT '',
    date TEXT NOT NULL CHECK(length(date) > 0),
    time TEXT NOT NULL CHECK(length(time) > 0),
    summary TEXT NOT NULL DEFAULT '',
    customer_name TEXT NOT NULL CHECK(length(customer_name) > 0),
    vehicle_interest TEXT NOT NULL DEFAULT '',
    lead_id TEXT NOT NULL DEFAULT '',
    ai_summary TEXT NOT NULL DEFAULT '',
    ai_prep_notes TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    claimed_by TEXT,
    claimed_at INTEGER,
    claim_expires_at INTEGER,
    status TEXT NOT NULL DEFAULT 'pending'
        CHECK(status IN ('pending', 'claimed', 'completed', 'expired')),
    completed_by TEXT NOT NULL DEFAULT '',
    completed_at INTEGER,
    -- claimant set <=> expiry set <=> status = 'claimed'
    CHECK((claimed_by IS NULL) = (claim_expires_at IS NULL)),
    CHECK((claimed_by IS NULL) = (status <> 'claimed'))
);

CREATE INDEX IF NOT EXISTS idx_schedules_date ON schedules(date);
CREATE INDEX IF NOT EXISTS idx_schedules_executive ON schedules(executive_id);
CREATE INDEX IF NOT EXISTS idx_schedules_claim ON schedules(status, claim_expires_at);

-- Per-(executive, day) claim counters
CREATE TABLE IF NOT EXISTS executive_stats (
    executive_id TEXT NOT NULL,
    date TEXT NOT NULL,
    claimed_count INTEGER NOT NULL DEFAULT 0 CHECK(claimed_count >= 0),
    completed_count INTEGER NOT NULL DEFAULT 0 CHECK(completed_count >= 0),
    PRIMARY KEY (executive_id, date)
);

-- Claim journal. seq breaks timestamp ties in publish order.
CREATE TABLE IF NOT EXISTS claim_events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    schedule_id TEXT NOT NULL DEFAULT '',
    actor TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL DEFAULT '',
    data TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_claim_events_timestamp ON claim_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_claim_events_schedule ON claim_events(schedule_id);
`
