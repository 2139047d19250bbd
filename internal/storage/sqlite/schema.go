package sqlite

const schema = `
-- Hubs: top-level grouping, optionally inside a universe
CREATE TABLE IF NOT EXISTS hubs (
    id TEXT PRIMARY KEY,
    universe_id TEXT,
    display_name TEXT NOT NULL,
    year TEXT NOT NULL DEFAULT '',
    external_id TEXT NOT NULL DEFAULT '',
    franchise TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_hubs_display_name ON hubs(display_name COLLATE NOCASE);

-- Works: one title per hub, media type fixed at creation
CREATE TABLE IF NOT EXISTS works (
    id TEXT PRIMARY KEY,
    hub_id TEXT,
    title TEXT NOT NULL,
    media_type TEXT NOT NULL,
    sequence INTEGER,
    created_at TEXT NOT NULL,
    FOREIGN KEY (hub_id) REFERENCES hubs(id)
);

CREATE INDEX IF NOT EXISTS idx_works_hub ON works(hub_id);

-- Editions: one distinct physical version under a work
CREATE TABLE IF NOT EXISTS editions (
    id TEXT PRIMARY KEY,
    work_id TEXT NOT NULL,
    format_label TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    FOREIGN KEY (work_id) REFERENCES works(id)
);

CREATE INDEX IF NOT EXISTS idx_editions_work ON editions(work_id);

-- Media assets: one file on disk; content hash is the permanent identity
CREATE TABLE IF NOT EXISTS media_assets (
    id TEXT PRIMARY KEY,
    edition_id TEXT NOT NULL,
    content_hash TEXT NOT NULL UNIQUE,
    path_root TEXT NOT NULL,
    file_size INTEGER NOT NULL DEFAULT 0,
    media_type TEXT NOT NULL,
    format TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'normal'
        CHECK(status IN ('normal', 'conflicted', 'orphaned')),
    created_at TEXT NOT NULL,
    FOREIGN KEY (edition_id) REFERENCES editions(id)
);

CREATE INDEX IF NOT EXISTS idx_assets_path_root ON media_assets(path_root);
CREATE INDEX IF NOT EXISTS idx_assets_edition ON media_assets(edition_id);

-- Metadata claims: append-only; no UPDATE or DELETE path exists in code
CREATE TABLE IF NOT EXISTS metadata_claims (
    id TEXT PRIMARY KEY,
    entity_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    provider_id TEXT NOT NULL,
    claim_key TEXT NOT NULL,
    claim_value TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL CHECK(confidence >= 0.0 AND confidence <= 1.0),
    claimed_at TEXT NOT NULL,
    is_user_locked INTEGER NOT NULL DEFAULT 0 CHECK(is_user_locked IN (0, 1))
);

CREATE INDEX IF NOT EXISTS idx_claims_entity ON metadata_claims(entity_id, claimed_at);
CREATE INDEX IF NOT EXISTS idx_claims_entity_key ON metadata_claims(entity_id, claim_key);

-- Canonical values: exactly one row per (entity, field)
CREATE TABLE IF NOT EXISTS canonical_values (
    entity_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    claim_key TEXT NOT NULL,
    claim_value TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0.0,
    last_scored_at TEXT NOT NULL,
    is_conflicted INTEGER NOT NULL DEFAULT 0 CHECK(is_conflicted IN (0, 1)),
    PRIMARY KEY (entity_id, claim_key)
);

CREATE INDEX IF NOT EXISTS idx_canonicals_conflicted
    ON canonical_values(is_conflicted, last_scored_at);

-- Persons: looked up by (name, role) case-insensitively
CREATE TABLE IF NOT EXISTS persons (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    role TEXT NOT NULL CHECK(role IN ('author', 'narrator', 'director')),
    external_id TEXT NOT NULL DEFAULT '',
    portrait_url TEXT NOT NULL DEFAULT '',
    biography TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    enriched_at TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_persons_name_role
    ON persons(name COLLATE NOCASE, role);

-- Person/asset junction
CREATE TABLE IF NOT EXISTS person_media_links (
    asset_id TEXT NOT NULL,
    person_id TEXT NOT NULL,
    role TEXT NOT NULL,
    PRIMARY KEY (asset_id, person_id, role),
    FOREIGN KEY (asset_id) REFERENCES media_assets(id),
    FOREIGN KEY (person_id) REFERENCES persons(id)
);

-- Harvest provider registry and per-provider scoring config
CREATE TABLE IF NOT EXISTS provider_registry (
    provider_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    domain TEXT NOT NULL DEFAULT '',
    capability_tags TEXT NOT NULL DEFAULT '',
    registered_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS provider_config (
    name TEXT PRIMARY KEY,
    enabled INTEGER NOT NULL DEFAULT 1 CHECK(enabled IN (0, 1)),
    weight REAL NOT NULL DEFAULT 1.0,
    field_weights TEXT NOT NULL DEFAULT '{}'
);

-- API keys: only the salted hash of the plaintext is persisted
CREATE TABLE IF NOT EXISTS api_keys (
    id TEXT PRIMARY KEY,
    label TEXT NOT NULL,
    role TEXT NOT NULL,
    salt TEXT NOT NULL,
    key_hash TEXT NOT NULL,
    created_at TEXT NOT NULL
);

-- Dashboard profiles
CREATE TABLE IF NOT EXISTS profiles (
    id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL UNIQUE,
    role TEXT NOT NULL CHECK(role IN ('administrator', 'curator', 'consumer')),
    created_at TEXT NOT NULL
);

-- Monotonic audit log
CREATE TABLE IF NOT EXISTS transaction_log (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    op TEXT NOT NULL,
    entity_id TEXT NOT NULL DEFAULT '',
    detail TEXT NOT NULL DEFAULT '',
    logged_at TEXT NOT NULL
);

-- Per-profile dashboard state
CREATE TABLE IF NOT EXISTS user_states (
    profile_id TEXT NOT NULL,
    state_key TEXT NOT NULL,
    state_value TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL,
    PRIMARY KEY (profile_id, state_key)
);
`
