package market

import "database/sql"

// Schema defines the market module tables
const Schema = `
CREATE TABLE IF NOT EXISTS market_cache (
    ticker TEXT PRIMARY KEY,
    payload BLOB NOT NULL,
    cached_at TEXT NOT NULL
);
`

// InitSchema creates the market module tables
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
