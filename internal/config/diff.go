package config

import (
	"sort"
	"strings"

	logx "isthisai/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like
// passwords or tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 20)

	// Reddit (never log credentials)
	oCreds := oldCfg.Reddit.ClientID + "\x00" + oldCfg.Reddit.ClientSecret + "\x00" + oldCfg.Reddit.Username + "\x00" + oldCfg.Reddit.Password
	nCreds := newCfg.Reddit.ClientID + "\x00" + newCfg.Reddit.ClientSecret + "\x00" + newCfg.Reddit.Username + "\x00" + newCfg.Reddit.Password
	if oCreds != nCreds ||
		strings.TrimSpace(oldCfg.Reddit.UserAgent) != strings.TrimSpace(newCfg.Reddit.UserAgent) ||
		strings.TrimSpace(oldCfg.Reddit.Subreddit) != strings.TrimSpace(newCfg.Reddit.Subreddit) ||
		oldCfg.Reddit.CallsPerMinute != newCfg.Reddit.CallsPerMinute ||
		strings.TrimSpace(oldCfg.Reddit.RequestTimeout) != strings.TrimSpace(newCfg.Reddit.RequestTimeout) ||
		strings.TrimSpace(oldCfg.Reddit.ParentCacheTTL) != strings.TrimSpace(newCfg.Reddit.ParentCacheTTL) {
		changed = append(changed, "reddit")
		attrs = append(attrs,
			logx.Bool("reddit.credentials_changed", oCreds != nCreds),
			logx.String("reddit.subreddit", strings.TrimSpace(newCfg.Reddit.Subreddit)),
			logx.Int("reddit.calls_per_minute", newCfg.Reddit.CallsPerMinute),
			logx.String("reddit.request_timeout", strings.TrimSpace(newCfg.Reddit.RequestTimeout)),
		)
	}

	// Detector (never log token)
	if strings.TrimSpace(oldCfg.Detector.Endpoint) != strings.TrimSpace(newCfg.Detector.Endpoint) ||
		strings.TrimSpace(oldCfg.Detector.Model) != strings.TrimSpace(newCfg.Detector.Model) ||
		(strings.TrimSpace(oldCfg.Detector.Token) != "") != (strings.TrimSpace(newCfg.Detector.Token) != "") ||
		oldCfg.Detector.RatePerSec != newCfg.Detector.RatePerSec ||
		strings.TrimSpace(oldCfg.Detector.RequestTimeout) != strings.TrimSpace(newCfg.Detector.RequestTimeout) ||
		oldCfg.Detector.MaxInputBytes != newCfg.Detector.MaxInputBytes {
		changed = append(changed, "detector")
		attrs = append(attrs,
			logx.String("detector.model", strings.TrimSpace(newCfg.Detector.Model)),
			logx.Bool("detector.token_set", strings.TrimSpace(newCfg.Detector.Token) != ""),
			logx.Int("detector.rate_per_sec", newCfg.Detector.RatePerSec),
			logx.Int("detector.max_input_bytes", newCfg.Detector.MaxInputBytes),
		)
	}

	// Poll (hot-reloadable knobs live here)
	if strings.TrimSpace(oldCfg.Poll.Schedule) != strings.TrimSpace(newCfg.Poll.Schedule) ||
		oldCfg.Poll.PageLimit != newCfg.Poll.PageLimit ||
		strings.TrimSpace(oldCfg.Poll.Trigger) != strings.TrimSpace(newCfg.Poll.Trigger) ||
		oldCfg.Poll.MinWordsWarning != newCfg.Poll.MinWordsWarning {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.String("poll.schedule", strings.TrimSpace(newCfg.Poll.Schedule)),
			logx.Int("poll.page_limit", newCfg.Poll.PageLimit),
			logx.String("poll.trigger", strings.TrimSpace(newCfg.Poll.Trigger)),
			logx.Int("poll.min_words_warning", newCfg.Poll.MinWordsWarning),
		)
	}

	// Queue (restart-only)
	if oldCfg.Queue.Workers != newCfg.Queue.Workers ||
		oldCfg.Queue.PollPriority != newCfg.Queue.PollPriority ||
		oldCfg.Queue.ReactPriority != newCfg.Queue.ReactPriority ||
		strings.TrimSpace(oldCfg.Queue.PopTimeout) != strings.TrimSpace(newCfg.Queue.PopTimeout) ||
		strings.TrimSpace(oldCfg.Queue.JobTimeout) != strings.TrimSpace(newCfg.Queue.JobTimeout) {
		changed = append(changed, "queue")
		attrs = append(attrs,
			logx.Int("queue.workers", newCfg.Queue.Workers),
			logx.Int("queue.poll_priority", newCfg.Queue.PollPriority),
			logx.Int("queue.react_priority", newCfg.Queue.ReactPriority),
			logx.String("queue.pop_timeout", strings.TrimSpace(newCfg.Queue.PopTimeout)),
			logx.String("queue.job_timeout", strings.TrimSpace(newCfg.Queue.JobTimeout)),
		)
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage (never log redis password)
	if strings.TrimSpace(oldCfg.Storage.Driver) != strings.TrimSpace(newCfg.Storage.Driver) ||
		strings.TrimSpace(oldCfg.Storage.Path) != strings.TrimSpace(newCfg.Storage.Path) ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) ||
		strings.TrimSpace(oldCfg.Storage.Redis.Addr) != strings.TrimSpace(newCfg.Storage.Redis.Addr) ||
		(strings.TrimSpace(oldCfg.Storage.Redis.Password) != "") != (strings.TrimSpace(newCfg.Storage.Redis.Password) != "") ||
		oldCfg.Storage.Redis.DB != newCfg.Storage.Redis.DB ||
		strings.TrimSpace(oldCfg.Storage.Redis.Prefix) != strings.TrimSpace(newCfg.Storage.Redis.Prefix) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	// Ops (never log token)
	if oldCfg.Ops.Enabled != newCfg.Ops.Enabled ||
		strings.TrimSpace(oldCfg.Ops.Addr) != strings.TrimSpace(newCfg.Ops.Addr) ||
		(strings.TrimSpace(oldCfg.Ops.Token) != "") != (strings.TrimSpace(newCfg.Ops.Token) != "") ||
		oldCfg.Ops.AllowInsecure != newCfg.Ops.AllowInsecure ||
		oldCfg.Ops.Pprof != newCfg.Ops.Pprof ||
		strings.TrimSpace(oldCfg.Ops.ReadTimeout) != strings.TrimSpace(newCfg.Ops.ReadTimeout) ||
		strings.TrimSpace(oldCfg.Ops.WriteTimeout) != strings.TrimSpace(newCfg.Ops.WriteTimeout) ||
		strings.TrimSpace(oldCfg.Ops.IdleTimeout) != strings.TrimSpace(newCfg.Ops.IdleTimeout) {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", strings.TrimSpace(newCfg.Ops.Addr)),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
			logx.Bool("ops.pprof", newCfg.Ops.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
