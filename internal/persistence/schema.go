package persistence

// Table names follow the persisted layout shared with earlier runs of the spider.
const (
	archivesTable      = "archives"
	blockedTable       = "blocked"
	externalLinksTable = "external_links"
	scrapeRulesTable   = "scrape_rules"
)

var tableOrder = []string{archivesTable, blockedTable, externalLinksTable, scrapeRulesTable}

var sqliteSchema = map[string]string{
	archivesTable: `CREATE TABLE archives (
		url         TEXT PRIMARY KEY NOT NULL,
		archive     TEXT NOT NULL,
		last_submit TIMESTAMP,
		archive_url TEXT)`,
	blockedTable: `CREATE TABLE blocked (
		url        TEXT PRIMARY KEY NOT NULL,
		reason     TEXT NOT NULL,
		last_check TIMESTAMP)`,
	externalLinksTable: `CREATE TABLE external_links (
		id           INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
		external_url TEXT NOT NULL,
		found_where  TEXT NOT NULL,
		found_date   TIMESTAMP,
		UNIQUE (external_url, found_where))`,
	scrapeRulesTable: `CREATE TABLE scrape_rules (
		id        INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
		rule_type TEXT NOT NULL,
		rule      TEXT NOT NULL,
		domain    TEXT NOT NULL)`,
}

var postgresSchema = map[string]string{
	archivesTable: `CREATE TABLE archives (
		url         TEXT PRIMARY KEY NOT NULL,
		archive     TEXT NOT NULL,
		last_submit TIMESTAMPTZ,
		archive_url TEXT)`,
	blockedTable: `CREATE TABLE blocked (
		url        TEXT PRIMARY KEY NOT NULL,
		reason     TEXT NOT NULL,
		last_check TIMESTAMPTZ)`,
	externalLinksTable: `CREATE TABLE external_links (
		id           BIGSERIAL PRIMARY KEY,
		external_url TEXT NOT NULL,
		found_where  TEXT NOT NULL,
		found_date   TIMESTAMPTZ,
		UNIQUE (external_url, found_where))`,
	scrapeRulesTable: `CREATE TABLE scrape_rules (
		id        BIGSERIAL PRIMARY KEY,
		rule_type TEXT NOT NULL,
		rule      TEXT NOT NULL,
		domain    TEXT NOT NULL)`,
}

const (
	sqliteTableExists   = `SELECT count(name) FROM sqlite_master WHERE type = 'table' AND name = ?`
	postgresTableExists = `SELECT count(table_name) FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = ?`
)
