package dbpool

// Bootstrap schema for the records domain: member registry and news items.
const recordsSchemaSQL = `
CREATE TABLE IF NOT EXISTS members (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	member_no  TEXT,
	first_name TEXT,
	last_name  TEXT,
	birth_date TEXT,
	badge_no   TEXT,
	title      TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS news (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	title        TEXT NOT NULL DEFAULT '',
	slug         TEXT NOT NULL DEFAULT '',
	intro        TEXT,
	body         TEXT,
	published_at DATETIME,
	created_by   INTEGER,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Bootstrap schema for the content domain: page tree, ordered content
// blocks, and content-addressed documents. The UNIQUE(sha256) constraint is
// the backstop for deduplicated ingestion.
const contentSchemaSQL = `
CREATE TABLE IF NOT EXISTS pages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_id  INTEGER REFERENCES pages(id),
	title      TEXT NOT NULL DEFAULT '',
	slug       TEXT NOT NULL UNIQUE,
	position   INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS documents (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	blob       BLOB NOT NULL,
	file_name  TEXT NOT NULL DEFAULT '',
	mime_type  TEXT NOT NULL DEFAULT 'application/octet-stream',
	size_bytes INTEGER NOT NULL DEFAULT 0,
	sha256     TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS content_blocks (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	page_id      INTEGER NOT NULL REFERENCES pages(id),
	kind         TEXT NOT NULL CHECK (kind IN ('title','subtitle','text','image','document')),
	text_content TEXT,
	external_url TEXT,
	document_id  INTEGER REFERENCES documents(id),
	position     INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_blocks_page ON content_blocks(page_id, position, id);
CREATE INDEX IF NOT EXISTS idx_pages_parent ON pages(parent_id);
`
