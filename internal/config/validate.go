package config

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// Environment variables consulted for secrets left empty in the config file.
const (
	EnvRedditClientID     = "REDDIT_CLIENT_ID"
	EnvRedditClientSecret = "REDDIT_CLIENT_SECRET"
	EnvRedditUsername     = "REDDIT_USERNAME"
	EnvRedditPassword     = "REDDIT_PASSWORD"
	EnvRedditUserAgent    = "REDDIT_USER_AGENT"
	EnvDetectorToken      = "DETECTOR_API_TOKEN"
)

// ApplyEnvFallbacks fills empty credential fields from the environment.
// Values present in the file win over the environment.
func ApplyEnvFallbacks(c *Config) {
	if c == nil {
		return
	}
	fill := func(dst *string, key string) {
		if strings.TrimSpace(*dst) == "" {
			if v := strings.TrimSpace(os.Getenv(key)); v != "" {
				*dst = v
			}
		}
	}
	fill(&c.Reddit.ClientID, EnvRedditClientID)
	fill(&c.Reddit.ClientSecret, EnvRedditClientSecret)
	fill(&c.Reddit.Username, EnvRedditUsername)
	fill(&c.Reddit.Password, EnvRedditPassword)
	fill(&c.Reddit.UserAgent, EnvRedditUserAgent)
	fill(&c.Detector.Token, EnvDetectorToken)
}

// applyDefaults fills omitted fields so consumers and the change summary
// always see effective values.
func applyDefaults(c *Config) {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.Reddit.Subreddit) == "" {
		c.Reddit.Subreddit = "all"
	}
	if c.Reddit.CallsPerMinute == 0 {
		c.Reddit.CallsPerMinute = 90
	}
	if strings.TrimSpace(c.Reddit.RequestTimeout) == "" {
		c.Reddit.RequestTimeout = "15s"
	}
	if strings.TrimSpace(c.Reddit.ParentCacheTTL) == "" {
		c.Reddit.ParentCacheTTL = "10m"
	}

	if strings.TrimSpace(c.Detector.Model) == "" {
		c.Detector.Model = "SuperAnnotate/ai-detector"
	}
	if c.Detector.RatePerSec == 0 {
		c.Detector.RatePerSec = 2
	}
	if strings.TrimSpace(c.Detector.RequestTimeout) == "" {
		c.Detector.RequestTimeout = "30s"
	}
	if c.Detector.MaxInputBytes == 0 {
		c.Detector.MaxInputBytes = 4000
	}

	if strings.TrimSpace(c.Poll.Schedule) == "" {
		c.Poll.Schedule = "5s"
	}
	if c.Poll.PageLimit == 0 {
		c.Poll.PageLimit = 100
	}
	if strings.TrimSpace(c.Poll.Trigger) == "" {
		c.Poll.Trigger = "!isthisai"
	}
	if c.Poll.MinWordsWarning == 0 {
		c.Poll.MinWordsWarning = 150
	}

	if c.Queue.Workers == 0 {
		c.Queue.Workers = 1
	}
	// Only when both are omitted; an explicit 0 on one side is a valid tier.
	if c.Queue.PollPriority == 0 && c.Queue.ReactPriority == 0 {
		c.Queue.PollPriority = 1
		c.Queue.ReactPriority = 2
	}
	if strings.TrimSpace(c.Queue.PopTimeout) == "" {
		c.Queue.PopTimeout = "500ms"
	}
	if strings.TrimSpace(c.Queue.JobTimeout) == "" {
		c.Queue.JobTimeout = "2m"
	}

	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}

	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "sqlite"
	}
	if d := strings.TrimSpace(c.Storage.Driver); (d == "sqlite" || d == "sqlite3" || d == "file") && strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = "./isthisai.db"
	}
	if strings.TrimSpace(c.Storage.BusyTimeout) == "" {
		c.Storage.BusyTimeout = "5s"
	}
	if strings.TrimSpace(c.Storage.Redis.Prefix) == "" {
		c.Storage.Redis.Prefix = "isthisai:"
	}

	if strings.TrimSpace(c.Ops.Addr) == "" {
		c.Ops.Addr = "127.0.0.1:6060"
	}
}

// Validate checks the startup-fatal rules. It does not mutate c; callers are
// expected to have run Parse (which applies env fallbacks and defaults).
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	if strings.TrimSpace(c.Reddit.ClientID) == "" {
		return fmt.Errorf("reddit.client_id: required (or set %s)", EnvRedditClientID)
	}
	if strings.TrimSpace(c.Reddit.ClientSecret) == "" {
		return fmt.Errorf("reddit.client_secret: required (or set %s)", EnvRedditClientSecret)
	}
	if strings.TrimSpace(c.Reddit.Username) == "" {
		return fmt.Errorf("reddit.username: required (or set %s)", EnvRedditUsername)
	}
	if strings.TrimSpace(c.Reddit.Password) == "" {
		return fmt.Errorf("reddit.password: required (or set %s)", EnvRedditPassword)
	}
	if strings.TrimSpace(c.Reddit.UserAgent) == "" {
		return fmt.Errorf("reddit.user_agent: required (or set %s)", EnvRedditUserAgent)
	}
	if c.Reddit.CallsPerMinute < 1 {
		return fmt.Errorf("reddit.calls_per_minute: must be >= 1, got %d", c.Reddit.CallsPerMinute)
	}
	if _, err := ParseDurationField("reddit.request_timeout", c.Reddit.RequestTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("reddit.parent_cache_ttl", c.Reddit.ParentCacheTTL); err != nil {
		return err
	}

	if strings.TrimSpace(c.Detector.Endpoint) == "" {
		return fmt.Errorf("detector.endpoint: required")
	}
	if c.Detector.RatePerSec < 1 {
		return fmt.Errorf("detector.rate_per_sec: must be >= 1, got %d", c.Detector.RatePerSec)
	}
	if c.Detector.MaxInputBytes < 1 {
		return fmt.Errorf("detector.max_input_bytes: must be >= 1, got %d", c.Detector.MaxInputBytes)
	}
	if _, err := ParseDurationField("detector.request_timeout", c.Detector.RequestTimeout); err != nil {
		return err
	}

	if strings.TrimSpace(c.Poll.Schedule) == "" {
		return fmt.Errorf("poll.schedule: required")
	}
	if c.Poll.PageLimit < 1 || c.Poll.PageLimit > 100 {
		return fmt.Errorf("poll.page_limit: must be in 1..100, got %d", c.Poll.PageLimit)
	}
	if strings.TrimSpace(c.Poll.Trigger) == "" {
		return fmt.Errorf("poll.trigger: required")
	}
	if c.Poll.MinWordsWarning < 0 {
		return fmt.Errorf("poll.min_words_warning: must be >= 0, got %d", c.Poll.MinWordsWarning)
	}

	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers: must be >= 1, got %d", c.Queue.Workers)
	}
	if c.Queue.PollPriority < 0 {
		return fmt.Errorf("queue.poll_priority: must be >= 0, got %d", c.Queue.PollPriority)
	}
	if c.Queue.ReactPriority < 0 {
		return fmt.Errorf("queue.react_priority: must be >= 0, got %d", c.Queue.ReactPriority)
	}
	if c.Queue.PollPriority == c.Queue.ReactPriority {
		return fmt.Errorf("queue: poll_priority and react_priority must differ, both are %d", c.Queue.PollPriority)
	}
	if _, err := ParseDurationField("queue.pop_timeout", c.Queue.PopTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("queue.job_timeout", c.Queue.JobTimeout); err != nil {
		return err
	}

	driver := strings.TrimSpace(c.Storage.Driver)
	switch driver {
	case "sqlite", "sqlite3", "file":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage.path: required for driver %q", driver)
		}
	case "redis":
		if strings.TrimSpace(c.Storage.Redis.Addr) == "" {
			return fmt.Errorf("storage.redis.addr: required for driver redis")
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q (want sqlite, file or redis)", driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}

	if c.Ops.Enabled {
		addr := strings.TrimSpace(c.Ops.Addr)
		if addr == "" {
			return fmt.Errorf("ops.addr: required when ops is enabled")
		}
		if !isLoopbackHost(addr) && strings.TrimSpace(c.Ops.Token) == "" && !c.Ops.AllowInsecure {
			return fmt.Errorf("ops.addr %q is not loopback: set ops.token or ops.allow_insecure", addr)
		}
		for _, f := range []struct{ path, raw string }{
			{"ops.read_timeout", c.Ops.ReadTimeout},
			{"ops.write_timeout", c.Ops.WriteTimeout},
			{"ops.idle_timeout", c.Ops.IdleTimeout},
		} {
			if _, err := ParseDurationField(f.path, f.raw); err != nil {
				return err
			}
		}
	}

	return nil
}

// isLoopbackHost reports whether the host part of addr is a loopback
// address ("127.0.0.1:6060", "[::1]:6060", "localhost:6060").
func isLoopbackHost(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
