package config

type Config struct {
	Reddit   RedditConfig   `json:"reddit"`
	Detector DetectorConfig `json:"detector"`
	Poll     PollConfig     `json:"poll"`
	Queue    QueueConfig    `json:"queue"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Ops      OpsConfig      `json:"ops,omitempty"`
}

// RedditConfig holds credentials and tuning for the Reddit API client.
//
// Credentials left empty here are filled from the environment during load:
// REDDIT_CLIENT_ID, REDDIT_CLIENT_SECRET, REDDIT_USERNAME, REDDIT_PASSWORD,
// REDDIT_USER_AGENT. A non-empty user agent is mandatory (Reddit policy).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type RedditConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	UserAgent    string `json:"user_agent"`

	// Subreddit to poll (default: "all").
	Subreddit string `json:"subreddit,omitempty"`

	// CallsPerMinute sizes the shared token bucket: capacity = rate,
	// refill = rate/60 tokens per second (default: 90).
	CallsPerMinute int `json:"calls_per_minute,omitempty"`

	// RequestTimeout bounds individual HTTP calls (default: "15s").
	RequestTimeout string `json:"request_timeout,omitempty"`

	// ParentCacheTTL controls how long fetched parent submissions are
	// cached (default: "10m"). Several comments under one post classify
	// the same text; the cache avoids duplicate detail fetches.
	ParentCacheTTL string `json:"parent_cache_ttl,omitempty"`
}

// DetectorConfig holds settings for the AI-text-detection inference API.
//
// Token left empty is filled from DETECTOR_API_TOKEN during load.
type DetectorConfig struct {
	// Endpoint is the inference URL (required for the bot).
	Endpoint string `json:"endpoint"`

	// Model name, informational and used by the detect CLI to build an
	// endpoint when none is given (default: "SuperAnnotate/ai-detector").
	Model string `json:"model,omitempty"`

	Token string `json:"token,omitempty"`

	// RatePerSec throttles inference calls (default: 2).
	RatePerSec int `json:"rate_per_sec,omitempty"`

	// RequestTimeout bounds individual inference calls (default: "30s").
	RequestTimeout string `json:"request_timeout,omitempty"`

	// MaxInputBytes truncates classification input before sending
	// (default: 4000).
	MaxInputBytes int `json:"max_input_bytes,omitempty"`
}

// PollConfig controls the feed polling loop.
//
// Trigger, MinWordsWarning and Schedule are hot-reloadable.
type PollConfig struct {
	// Schedule accepts a Go duration ("5s"), an HH:MM interval
	// ("00:05" polls every 5 minutes), or a cron spec ("@every 10s",
	// "*/1 * * * *"). Default: "5s".
	Schedule string `json:"schedule,omitempty"`

	// PageLimit is the max listing page size, 1..100 (default: 100).
	PageLimit int `json:"page_limit,omitempty"`

	// Trigger is the phrase that summons the bot (default: "!isthisai").
	// Matching is case-insensitive.
	Trigger string `json:"trigger,omitempty"`

	// MinWordsWarning adds a low-sample-size warning to replies when the
	// analyzed post has fewer words than this (default: 150).
	MinWordsWarning int `json:"min_words_warning,omitempty"`
}

// QueueConfig controls the dispatch engine.
//
// Lower priority values are served first; poll ahead of react is the
// default ordering. Priorities must differ and be >= 0. When both are
// omitted they default to poll=1, react=2.
type QueueConfig struct {
	Workers       int `json:"workers,omitempty"`        // default: 1
	PollPriority  int `json:"poll_priority,omitempty"`  // default: 1
	ReactPriority int `json:"react_priority,omitempty"` // default: 2

	// PopTimeout bounds an idle worker's wait for a job (default: "500ms").
	PopTimeout string `json:"pop_timeout,omitempty"`

	// JobTimeout bounds a single job's execution (default: "2m").
	JobTimeout string `json:"job_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer (cursor + reply ledger).
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./isthisai.db" }
type StorageConfig struct {
	Driver      string      `json:"driver"`                 // sqlite | file | redis (default: sqlite)
	Path        string      `json:"path"`                   // sqlite/file (default: "./isthisai.db")
	BusyTimeout string      `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Redis       RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"` // key prefix (default: "isthisai:")
}

// OpsConfig controls the optional operational HTTP server
// (/metrics, /healthz, optional pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Pprof additionally exposes /debug/pprof/* under the same auth policy.
	Pprof bool `json:"pprof,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0
	// (disabled) so pprof /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
