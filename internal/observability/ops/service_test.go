package ops

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"isthisai/internal/detector"
	"isthisai/internal/engine"
	"isthisai/internal/eventbus"
	"isthisai/internal/ratelimit"
	"isthisai/internal/reddit"
	logx "isthisai/pkg/logx"
)

type stubFeed struct{}

func (stubFeed) Stream(ctx context.Context, cursor string, limit int) ([]reddit.Comment, error) {
	return nil, nil
}
func (stubFeed) Comment(ctx context.Context, id string) (reddit.Comment, error) {
	return reddit.Comment{}, nil
}
func (stubFeed) Parent(ctx context.Context, c reddit.Comment) (reddit.Submission, error) {
	return reddit.Submission{}, nil
}
func (stubFeed) Reply(ctx context.Context, c reddit.Comment, body string) error { return nil }

type stubClassifier struct{}

func (stubClassifier) Classify(ctx context.Context, text string) (detector.Result, error) {
	return detector.Result{}, nil
}

type stubStore struct{}

func (stubStore) Cursor(ctx context.Context) (string, error) {
	return "", nil
}
func (stubStore) SetCursor(ctx context.Context, fullname string) error {
	return nil
}
func (stubStore) HasProcessed(ctx context.Context, id string) (bool, error) {
	return false, nil
}
func (stubStore) MarkProcessed(ctx context.Context, id string) error {
	return nil
}
func (stubStore) Close() error {
	return nil
}

func newTestEngine(t *testing.T, bus eventbus.Bus) *engine.Service {
	t.Helper()
	eng, err := engine.New(engine.Config{
		Schedule:      "1h",
		Trigger:       "!isthisai",
		PollPriority:  1,
		ReactPriority: 2,
		PopTimeout:    20 * time.Millisecond,
	}, stubFeed{}, stubClassifier{}, stubStore{}, logx.Nop(), bus)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng
}

func waitAddr(t *testing.T, s *Service) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if addr := s.Addr(); addr != "" {
			return addr
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("ops server did not bind in time")
	return ""
}

func get(t *testing.T, url, token string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(b)
}

func stopService(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestServeHealthAndMetrics(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	eng := newTestEngine(t, bus)
	eng.Start(context.Background())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		eng.Stop(ctx)
	}()
	bucket := ratelimit.PerMinute(60)

	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, eng, bucket, "sqlite", logx.Nop(), bus)
	s.Start(context.Background())
	defer stopService(t, s)
	addr := waitAddr(t, s)

	code, body := get(t, "http://"+addr+"/healthz", "")
	if code != http.StatusOK {
		t.Fatalf("/healthz status = %d, body %s", code, body)
	}
	var h health
	if err := json.Unmarshal([]byte(body), &h); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if h.Status != "ok" {
		t.Fatalf("Status = %q, want ok", h.Status)
	}
	if h.Storage != "sqlite" {
		t.Fatalf("Storage = %q, want sqlite", h.Storage)
	}
	if !h.Engine.Running {
		t.Fatal("health reports engine not running")
	}
	if h.Bucket.Capacity != 60 {
		t.Fatalf("Bucket.Capacity = %v, want 60", h.Bucket.Capacity)
	}

	code, body = get(t, "http://"+addr+"/metrics", "")
	if code != http.StatusOK {
		t.Fatalf("/metrics status = %d", code)
	}
	for _, want := range []string{"isthisai_poll_pages_total", "isthisai_queue_length", "isthisai_bucket_tokens"} {
		if !strings.Contains(body, want) {
			t.Fatalf("/metrics missing %s", want)
		}
	}

	// Counters move when engine events cross the bus.
	bus.Publish(eventbus.Event{Type: "job.completed", Data: engine.JobEvent{Kind: "react", Duration: 40 * time.Millisecond}})
	deadline := time.Now().Add(3 * time.Second)
	for {
		_, body = get(t, "http://"+addr+"/metrics", "")
		if strings.Contains(body, `isthisai_jobs_completed_total{kind="react"}`) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job.completed never reached the metrics consumer")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestTokenGuardsEndpoints(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "127.0.0.1:0", Token: "s3cret"}, nil, nil, "file", logx.Nop(), nil)
	s.Start(context.Background())
	defer stopService(t, s)
	addr := waitAddr(t, s)

	if code, _ := get(t, "http://"+addr+"/healthz", ""); code != http.StatusUnauthorized {
		t.Fatalf("no-token status = %d, want 401", code)
	}
	if code, _ := get(t, "http://"+addr+"/healthz", "wrong"); code != http.StatusUnauthorized {
		t.Fatalf("wrong-token status = %d, want 401", code)
	}
	if code, _ := get(t, "http://"+addr+"/healthz", "s3cret"); code != http.StatusOK {
		t.Fatalf("bearer-token status = %d, want 200", code)
	}
	if code, _ := get(t, "http://"+addr+"/healthz?token=s3cret", ""); code != http.StatusOK {
		t.Fatalf("query-token status = %d, want 200", code)
	}
}

func TestPprofDisabledByDefault(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, nil, nil, "file", logx.Nop(), nil)
	s.Start(context.Background())
	defer stopService(t, s)
	addr := waitAddr(t, s)

	if code, _ := get(t, "http://"+addr+"/debug/pprof/", ""); code != http.StatusNotFound {
		t.Fatalf("pprof status = %d, want 404 when disabled", code)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:6060", true},
		{"[::1]:6060", true},
		{"0.0.0.0:6060", false},
		{"192.168.1.4:6060", false},
		{":6060", false},
		{"garbage", false},
	}
	for _, tc := range cases {
		if got := isLoopbackAddr(tc.addr); got != tc.want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}
