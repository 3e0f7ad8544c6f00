package storage

import "time"

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file": dependency-free file backend (jsonl journal + snapshot)
//   - "redis": shared redis instance (cursor key + ledger set)
type Config struct {
	Driver      string
	Path        string        // sqlite/file
	BusyTimeout time.Duration // sqlite only; 0 means default
	Redis       RedisOptions
}

// RedisOptions configures the redis driver.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key prefix, e.g. "isthisai:"
}
