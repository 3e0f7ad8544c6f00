// Package storage persists the bot's feed cursor and reply ledger.
//
// The cursor marks the newest comment fullname already observed; the ledger
// is the monotone set of comment ids the bot has replied to (entries are
// never removed). Three drivers share one Store contract: sqlite (default),
// a dependency-free file backend, and redis.
package storage
