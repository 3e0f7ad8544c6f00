package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, name, body string) *ConfigManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewConfigManager(path)
}

const minimalYAML = `
reddit:
  client_id: "id"
  client_secret: "secret"
  username: "bot"
  password: "hunter2"
  user_agent: "linux:isthisai:test (by /u/bot)"
detector:
  endpoint: "http://127.0.0.1:9/detect"
`

func TestParseAppliesDefaults(t *testing.T) {
	m := writeConfig(t, "config.yaml", minimalYAML)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}

	if cfg.Reddit.Subreddit != "all" {
		t.Errorf("subreddit = %q, want all", cfg.Reddit.Subreddit)
	}
	if cfg.Reddit.CallsPerMinute != 90 {
		t.Errorf("calls_per_minute = %d, want 90", cfg.Reddit.CallsPerMinute)
	}
	if cfg.Poll.Trigger != "!isthisai" {
		t.Errorf("trigger = %q, want !isthisai", cfg.Poll.Trigger)
	}
	if cfg.Poll.PageLimit != 100 {
		t.Errorf("page_limit = %d, want 100", cfg.Poll.PageLimit)
	}
	if cfg.Queue.PollPriority != 1 || cfg.Queue.ReactPriority != 2 {
		t.Errorf("priorities = %d/%d, want 1/2", cfg.Queue.PollPriority, cfg.Queue.ReactPriority)
	}
	if cfg.Queue.PopTimeout != "500ms" || cfg.Queue.JobTimeout != "2m" {
		t.Errorf("timeouts = %q/%q, want 500ms/2m", cfg.Queue.PopTimeout, cfg.Queue.JobTimeout)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path == "" {
		t.Errorf("storage = %q path=%q, want sqlite with default path", cfg.Storage.Driver, cfg.Storage.Path)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() on defaulted config = %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	m := writeConfig(t, "config.yaml", minimalYAML+`
pol:
  trigger: "typo section"
`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("Parse() accepted unknown top-level section")
	}

	m = writeConfig(t, "config.yaml", minimalYAML+`
poll:
  triger: "typo field"
`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("Parse() accepted unknown field inside section")
	}
}

func TestParseRejectsTrailingJSON(t *testing.T) {
	m := writeConfig(t, "config.json", `{"reddit":{"client_id":"x","client_secret":"x","username":"x","password":"x","user_agent":"x"},"detector":{"endpoint":"http://x"}}{}`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("Parse() accepted trailing JSON tokens")
	}
}

func TestEnvFallbackFillsCredentials(t *testing.T) {
	t.Setenv(EnvRedditClientID, "env-id")
	t.Setenv(EnvRedditClientSecret, "env-secret")
	t.Setenv(EnvRedditUsername, "env-user")
	t.Setenv(EnvRedditPassword, "env-pass")
	t.Setenv(EnvRedditUserAgent, "env-agent/1.0")
	t.Setenv(EnvDetectorToken, "env-token")

	m := writeConfig(t, "config.yaml", `
detector:
  endpoint: "http://127.0.0.1:9/detect"
`)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if cfg.Reddit.ClientID != "env-id" || cfg.Reddit.Password != "env-pass" {
		t.Errorf("credentials not filled from env: %+v", cfg.Reddit)
	}
	if cfg.Reddit.UserAgent != "env-agent/1.0" {
		t.Errorf("user_agent = %q, want env-agent/1.0", cfg.Reddit.UserAgent)
	}
	if cfg.Detector.Token != "env-token" {
		t.Errorf("detector token = %q, want env-token", cfg.Detector.Token)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestFileValuesWinOverEnv(t *testing.T) {
	t.Setenv(EnvRedditClientID, "env-id")

	m := writeConfig(t, "config.yaml", minimalYAML)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if cfg.Reddit.ClientID != "id" {
		t.Errorf("client_id = %q, want file value to win", cfg.Reddit.ClientID)
	}
}

func baseConfig() *Config {
	c := &Config{}
	c.Reddit.ClientID = "id"
	c.Reddit.ClientSecret = "secret"
	c.Reddit.Username = "bot"
	c.Reddit.Password = "pw"
	c.Reddit.UserAgent = "agent/1.0"
	c.Detector.Endpoint = "http://127.0.0.1:9/detect"
	applyDefaults(c)
	return c
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"equal priorities", func(c *Config) { c.Queue.ReactPriority = c.Queue.PollPriority }, "must differ"},
		{"negative priority", func(c *Config) { c.Queue.PollPriority = -1 }, "poll_priority"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "etcd" }, "unknown driver"},
		{"page limit zero", func(c *Config) { c.Poll.PageLimit = 0 }, "page_limit"},
		{"page limit too big", func(c *Config) { c.Poll.PageLimit = 101 }, "page_limit"},
		{"empty user agent", func(c *Config) { c.Reddit.UserAgent = " " }, "user_agent"},
		{"empty detector endpoint", func(c *Config) { c.Detector.Endpoint = "" }, "detector.endpoint"},
		{"zero calls per minute", func(c *Config) { c.Reddit.CallsPerMinute = 0 }, "calls_per_minute"},
		{"bad duration", func(c *Config) { c.Queue.PopTimeout = "half a second" }, "pop_timeout"},
		{"zero workers", func(c *Config) { c.Queue.Workers = 0 }, "workers"},
		{"redis without addr", func(c *Config) { c.Storage.Driver = "redis" }, "redis.addr"},
		{"file driver without path", func(c *Config) { c.Storage.Driver = "file"; c.Storage.Path = "" }, "storage.path"},
		{"ops public addr no token", func(c *Config) { c.Ops.Enabled = true; c.Ops.Addr = "0.0.0.0:6060" }, "not loopback"},
		{"ops public addr with token", func(c *Config) { c.Ops.Enabled = true; c.Ops.Addr = "0.0.0.0:6060"; c.Ops.Token = "s3cret" }, ""},
		{"ops loopback no token", func(c *Config) { c.Ops.Enabled = true }, ""},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := baseConfig()
			tc.mutate(c)
			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	t.Parallel()

	oldCfg := baseConfig()
	newCfg := baseConfig()
	newCfg.Reddit.Password = "rotated-secret"
	newCfg.Poll.Trigger = "!aiornot"

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if len(changed) != 2 || changed[0] != "poll" || changed[1] != "reddit" {
		t.Fatalf("changed = %v, want [poll reddit]", changed)
	}

	// Render the attrs and make sure no secret value leaks into log output.
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ev := logger.Info()
	for _, f := range attrs {
		f(ev)
	}
	ev.Msg("config changed")

	out := buf.String()
	for _, secret := range []string{"rotated-secret", "pw", "hunter2"} {
		if strings.Contains(out, `"`+secret+`"`) {
			t.Errorf("summary attrs leak secret %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, "reddit.credentials_changed") {
		t.Errorf("summary attrs missing credentials_changed flag: %s", out)
	}
}
