package reddit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"isthisai/internal/ratelimit"
	logx "isthisai/pkg/logx"
)

const tokenBody = `{"access_token":"tok-1","token_type":"bearer","expires_in":3600,"scope":"*"}`

const commentListingBody = `{"kind":"Listing","data":{"children":[
  {"kind":"t1","data":{"id":"c2","name":"t1_c2","body":"!isthisai please","author":"alice","link_id":"t3_p1","created_utc":1724444444}},
  {"kind":"t1","data":{"id":"c1","name":"t1_c1","body":"hello","author":"bob","link_id":"t3_p1","created_utc":1724444443}}
]}}`

const submissionListingBody = `{"kind":"Listing","data":{"children":[
  {"kind":"t3","data":{"id":"p1","name":"t3_p1","title":"my story","selftext":"once upon a time","author":"carol","is_self":true}}
]}}`

func testClient(t *testing.T, mux *http.ServeMux) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := Config{
		ClientID:     "cid",
		ClientSecret: "csecret",
		Username:     "bot",
		Password:     "pw",
		UserAgent:    "test-agent/1.0",
		Subreddit:    "all",
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/api/v1/access_token",
	}
	c, err := NewHTTP(cfg, ratelimit.New(1000, 1000), logx.Nop())
	if err != nil {
		t.Fatalf("NewHTTP() = %v", err)
	}
	return c
}

func serveToken(mux *http.ServeMux, hits *atomic.Int64) {
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if _, _, ok := r.BasicAuth(); !ok {
			http.Error(w, "no basic auth", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(tokenBody))
	})
}

func TestStreamFetchesAndParses(t *testing.T) {
	t.Parallel()

	var tokenHits atomic.Int64
	mux := http.NewServeMux()
	serveToken(mux, &tokenHits)
	mux.HandleFunc("/r/all/comments", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("before"); got != "t1_c0" {
			t.Errorf("before = %q, want t1_c0", got)
		}
		if got := q.Get("limit"); got != "100" {
			t.Errorf("limit = %q, want 100", got)
		}
		if got := r.Header.Get("User-Agent"); got != "test-agent/1.0" {
			t.Errorf("User-Agent = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = w.Write([]byte(commentListingBody))
	})

	c := testClient(t, mux)
	ctx := context.Background()

	items, err := c.Stream(ctx, "t1_c0", 100)
	if err != nil {
		t.Fatalf("Stream() = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	// Newest first, fields mapped from the wire.
	if items[0].Fullname != "t1_c2" || items[0].Author != "alice" || items[0].LinkID != "t3_p1" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].ID != "c1" || items[1].Body != "hello" {
		t.Errorf("items[1] = %+v", items[1])
	}

	// Second call reuses the cached token.
	if _, err := c.Stream(ctx, "", 100); err != nil {
		t.Fatalf("Stream() second call = %v", err)
	}
	if got := tokenHits.Load(); got != 1 {
		t.Errorf("token endpoint hits = %d, want 1", got)
	}
}

func TestReplySendsFormAndChecksErrors(t *testing.T) {
	t.Parallel()

	var replyBody atomic.Value
	replyBody.Store(`{"json":{"errors":[]}}`)

	mux := http.NewServeMux()
	serveToken(mux, nil)
	mux.HandleFunc("/api/comment", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if got := r.PostFormValue("thing_id"); got != "t1_c9" {
			t.Errorf("thing_id = %q, want t1_c9", got)
		}
		if got := r.PostFormValue("api_type"); got != "json" {
			t.Errorf("api_type = %q, want json", got)
		}
		if got := r.PostFormValue("text"); !strings.Contains(got, "AI Analysis") {
			t.Errorf("text = %q, want reply body", got)
		}
		_, _ = w.Write([]byte(replyBody.Load().(string)))
	})

	c := testClient(t, mux)
	cm := Comment{ID: "c9", Fullname: "t1_c9"}

	if err := c.Reply(context.Background(), cm, "**AI Analysis:** 90%"); err != nil {
		t.Fatalf("Reply() = %v", err)
	}

	replyBody.Store(`{"json":{"errors":[["RATELIMIT","you are doing that too much","ratelimit"]]}}`)
	err := c.Reply(context.Background(), cm, "**AI Analysis:** 90%")
	if err == nil || !strings.Contains(err.Error(), "RATELIMIT") {
		t.Fatalf("Reply() = %v, want RATELIMIT error", err)
	}
}

func TestParentCachesSubmission(t *testing.T) {
	t.Parallel()

	var infoHits atomic.Int64
	mux := http.NewServeMux()
	serveToken(mux, nil)
	mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		infoHits.Add(1)
		if got := r.URL.Query().Get("id"); got != "t3_p1" {
			t.Errorf("id = %q, want t3_p1", got)
		}
		_, _ = w.Write([]byte(submissionListingBody))
	})

	c := testClient(t, mux)
	cm := Comment{ID: "c1", Fullname: "t1_c1", LinkID: "t3_p1"}

	sub, err := c.Parent(context.Background(), cm)
	if err != nil {
		t.Fatalf("Parent() = %v", err)
	}
	if sub.Fullname != "t3_p1" || sub.SelfText != "once upon a time" || !sub.IsSelf {
		t.Errorf("sub = %+v", sub)
	}

	if _, err := c.Parent(context.Background(), cm); err != nil {
		t.Fatalf("Parent() second call = %v", err)
	}
	if got := infoHits.Load(); got != 1 {
		t.Errorf("info endpoint hits = %d, want 1 (cached)", got)
	}
}

func TestCommentPrefixesBareID(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	serveToken(mux, nil)
	mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "t1_c1" {
			t.Errorf("id = %q, want t1_c1", got)
		}
		_, _ = w.Write([]byte(`{"kind":"Listing","data":{"children":[
		  {"kind":"t1","data":{"id":"c1","name":"t1_c1","body":"hello","author":"bob","link_id":"t3_p1","created_utc":1}}
		]}}`))
	})

	c := testClient(t, mux)
	cm, err := c.Comment(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Comment() = %v", err)
	}
	if cm.Fullname != "t1_c1" {
		t.Errorf("cm = %+v", cm)
	}
}

func TestUnauthorizedTriggersOneTokenRefresh(t *testing.T) {
	t.Parallel()

	var apiHits atomic.Int64
	mux := http.NewServeMux()
	serveToken(mux, nil)
	mux.HandleFunc("/r/all/comments", func(w http.ResponseWriter, r *http.Request) {
		if apiHits.Add(1) == 1 {
			http.Error(w, "expired", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(commentListingBody))
	})

	c := testClient(t, mux)
	items, err := c.Stream(context.Background(), "", 100)
	if err != nil {
		t.Fatalf("Stream() after 401 retry = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if got := apiHits.Load(); got != 2 {
		t.Errorf("api hits = %d, want 2 (one 401 + one retry)", got)
	}
}

func TestNewHTTPRequiresUserAgent(t *testing.T) {
	t.Parallel()

	cfg := Config{
		ClientID:     "cid",
		ClientSecret: "csecret",
		Username:     "bot",
		Password:     "pw",
	}
	if _, err := NewHTTP(cfg, ratelimit.New(1, 1), logx.Nop()); err == nil {
		t.Fatal("NewHTTP() without user agent = nil error")
	}
}
