package reddit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"isthisai/internal/ratelimit"
	logx "isthisai/pkg/logx"
)

const (
	defaultBaseURL  = "https://oauth.reddit.com"
	defaultTokenURL = "https://www.reddit.com/api/v1/access_token"

	// tokenSkew renews the OAuth token this long before its stated expiry.
	tokenSkew = time.Minute
)

// Config configures the HTTP client. BaseURL and TokenURL exist for tests;
// production leaves them empty.
type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	Subreddit    string

	RequestTimeout time.Duration
	ParentCacheTTL time.Duration

	BaseURL  string
	TokenURL string
}

// HTTPClient implements Client against the live Reddit API using the
// OAuth2 password grant. Every outbound call (token fetch included) passes
// through the shared token bucket.
type HTTPClient struct {
	cfg    Config
	bucket *ratelimit.Bucket
	log    logx.Logger
	hc     *http.Client

	// parents caches fetched submissions by link fullname: several comments
	// under one post classify the same text.
	parents *cache.Cache

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewHTTP(cfg Config, bucket *ratelimit.Bucket, log logx.Logger) (*HTTPClient, error) {
	// Reddit policy: requests without a descriptive User-Agent get heavily
	// throttled or banned outright.
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, errors.New("reddit: user_agent is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("reddit: client credentials are required")
	}
	if strings.TrimSpace(cfg.Username) == "" || strings.TrimSpace(cfg.Password) == "" {
		return nil, errors.New("reddit: username and password are required")
	}
	if bucket == nil {
		return nil, errors.New("reddit: token bucket is required")
	}
	if strings.TrimSpace(cfg.Subreddit) == "" {
		cfg.Subreddit = "all"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	ttl := cfg.ParentCacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	return &HTTPClient{
		cfg:     cfg,
		bucket:  bucket,
		log:     log,
		hc:      &http.Client{Timeout: cfg.RequestTimeout},
		parents: cache.New(ttl, 2*ttl),
	}, nil
}

func (c *HTTPClient) Stream(ctx context.Context, cursor string, limit int) ([]Comment, error) {
	if limit <= 0 {
		limit = 100
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("raw_json", "1")
	if cursor != "" {
		q.Set("before", cursor)
	}

	resp, err := c.do(ctx, http.MethodGet, "/r/"+c.cfg.Subreddit+"/comments", q, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	items, err := decodeComments(resp.Body)
	if err != nil {
		return nil, err
	}
	c.log.Debug("fetched comments",
		logx.Int("count", len(items)),
		logx.String("before", cursor),
		logx.String("subreddit", c.cfg.Subreddit),
	)
	return items, nil
}

func (c *HTTPClient) Comment(ctx context.Context, id string) (Comment, error) {
	fullname := id
	if !strings.HasPrefix(fullname, "t1_") {
		fullname = "t1_" + fullname
	}
	q := url.Values{}
	q.Set("id", fullname)
	q.Set("raw_json", "1")

	resp, err := c.do(ctx, http.MethodGet, "/api/info", q, nil)
	if err != nil {
		return Comment{}, err
	}
	defer resp.Body.Close()

	items, err := decodeComments(resp.Body)
	if err != nil {
		return Comment{}, err
	}
	if len(items) == 0 {
		return Comment{}, errors.Errorf("reddit: comment %s not found", id)
	}
	return items[0], nil
}

func (c *HTTPClient) Parent(ctx context.Context, cm Comment) (Submission, error) {
	link := strings.TrimSpace(cm.LinkID)
	if link == "" {
		return Submission{}, errors.Errorf("reddit: comment %s has no link id", cm.ID)
	}
	if v, ok := c.parents.Get(link); ok {
		return v.(Submission), nil
	}

	q := url.Values{}
	q.Set("id", link)
	q.Set("raw_json", "1")

	resp, err := c.do(ctx, http.MethodGet, "/api/info", q, nil)
	if err != nil {
		return Submission{}, err
	}
	defer resp.Body.Close()

	subs, err := decodeSubmissions(resp.Body)
	if err != nil {
		return Submission{}, err
	}
	if len(subs) == 0 {
		return Submission{}, errors.Errorf("reddit: submission %s not found", link)
	}
	c.parents.Set(link, subs[0], cache.DefaultExpiration)
	return subs[0], nil
}

func (c *HTTPClient) Reply(ctx context.Context, cm Comment, body string) error {
	if strings.TrimSpace(cm.Fullname) == "" {
		return errors.Errorf("reddit: comment %s has no fullname to reply to", cm.ID)
	}
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", cm.Fullname)
	form.Set("text", body)

	resp, err := c.do(ctx, http.MethodPost, "/api/comment", nil, form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Reddit reports per-field errors inside a 200 response.
	var rr struct {
		JSON struct {
			Errors [][]any `json:"errors"`
		} `json:"json"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return errors.Wrap(err, "decode reply response")
	}
	if len(rr.JSON.Errors) > 0 {
		return errors.Errorf("reddit: reply rejected: %v", rr.JSON.Errors[0])
	}
	return nil
}

// do performs one authenticated API call, refreshing the token and retrying
// once when Reddit revokes it early.
func (c *HTTPClient) do(ctx context.Context, method, path string, query, form url.Values) (*http.Response, error) {
	resp, err := c.doOnce(ctx, method, path, query, form)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		c.invalidateToken()
		resp, err = c.doOnce(ctx, method, path, query, form)
		if err != nil {
			return nil, err
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := readSnippet(resp.Body)
		_ = resp.Body.Close()
		return nil, errors.Errorf("reddit: %s %s: status %d: %s", method, path, resp.StatusCode, snippet)
	}
	return resp, nil
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path string, query, form url.Values) (*http.Response, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}
	if err := c.bucket.Consume(ctx, 1); err != nil {
		return nil, err
	}

	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Authorization", "Bearer "+c.token())
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "reddit: %s %s", method, path)
	}
	return resp, nil
}

// ensureToken fetches or renews the OAuth2 password-grant token. The token
// fetch is itself an outbound Reddit call, so it consumes from the bucket.
func (c *HTTPClient) ensureToken(ctx context.Context) error {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.accessToken != "" && time.Until(c.tokenExpiry) > tokenSkew {
		return nil
	}

	if err := c.bucket.Consume(ctx, 1); err != nil {
		return err
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "build token request")
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrap(err, "fetch token")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("reddit: token endpoint status %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return errors.Wrap(err, "decode token response")
	}
	// Reddit reports grant failures inside a 200 body.
	if tr.AccessToken == "" {
		return errors.Errorf("reddit: token response missing access_token (error=%q)", tr.Error)
	}

	c.accessToken = tr.AccessToken
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = 3600
	}
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	c.log.Debug("reddit token refreshed", logx.Time("expiry", c.tokenExpiry))
	return nil
}

func (c *HTTPClient) token() string {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	return c.accessToken
}

func (c *HTTPClient) invalidateToken() {
	c.tokenMu.Lock()
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
	c.tokenMu.Unlock()
}

// thing is one kind-tagged element of a Reddit listing.
type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listing struct {
	Data struct {
		Children []thing `json:"children"`
	} `json:"data"`
}

func decodeComments(r io.Reader) ([]Comment, error) {
	var l listing
	if err := json.NewDecoder(r).Decode(&l); err != nil {
		return nil, errors.Wrap(err, "decode listing")
	}
	out := make([]Comment, 0, len(l.Data.Children))
	for _, ch := range l.Data.Children {
		if ch.Kind != "t1" {
			continue
		}
		var c Comment
		if err := json.Unmarshal(ch.Data, &c); err != nil {
			return nil, errors.Wrap(err, "decode comment")
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeSubmissions(r io.Reader) ([]Submission, error) {
	var l listing
	if err := json.NewDecoder(r).Decode(&l); err != nil {
		return nil, errors.Wrap(err, "decode listing")
	}
	out := make([]Submission, 0, len(l.Data.Children))
	for _, ch := range l.Data.Children {
		if ch.Kind != "t3" {
			continue
		}
		var s Submission
		if err := json.Unmarshal(ch.Data, &s); err != nil {
			return nil, errors.Wrap(err, "decode submission")
		}
		out = append(out, s)
	}
	return out, nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
