package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	logx "isthisai/pkg/logx"
)

func TestBandBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		p    float64
		want string
	}{
		{0.0, "high"},
		{0.2, "high"},
		{0.21, "medium"},
		{0.35, "medium"},
		{0.36, "low"},
		{0.5, "low"},
		{0.64, "low"},
		{0.65, "medium"},
		{0.79, "medium"},
		{0.8, "high"},
		{1.0, "high"},
	}
	for _, tc := range cases {
		if got := Band(tc.p); got != tc.want {
			t.Errorf("Band(%.2f) = %q, want %q", tc.p, got, tc.want)
		}
	}
}

func newTestClassifier(t *testing.T, handler http.HandlerFunc, mutate func(*Config)) *HTTPClassifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{
		Endpoint:   srv.URL,
		Token:      "detector-token",
		RatePerSec: 100,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewHTTP(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("NewHTTP() = %v", err)
	}
	return c
}

func TestClassifyMapsLabels(t *testing.T) {
	t.Parallel()

	cases := []struct {
		label string
		score float64
		wantP float64
	}{
		{"HUMAN", 0.9, 0.1},
		{"AI", 0.75, 0.75},
		{"machine-generated", 0.6, 0.6},
		{"LABEL_1", 0.42, 0.42},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.label, func(t *testing.T) {
			t.Parallel()
			c := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, `[[{"label":%q,"score":%g}]]`, tc.label, tc.score)
			}, nil)

			res, err := c.Classify(context.Background(), "some text")
			if err != nil {
				t.Fatalf("Classify() = %v", err)
			}
			if math.Abs(res.ProbabilityAI-tc.wantP) > 1e-9 {
				t.Errorf("ProbabilityAI = %v, want %v", res.ProbabilityAI, tc.wantP)
			}
			if res.Label != strings.ToLower(tc.label) {
				t.Errorf("Label = %q, want lowercased %q", res.Label, tc.label)
			}
		})
	}
}

func TestClassifyPicksTopLabel(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[{"label":"human","score":0.3},{"label":"ai","score":0.7}]]`))
	}, nil)

	res, err := c.Classify(context.Background(), "text")
	if err != nil {
		t.Fatalf("Classify() = %v", err)
	}
	if res.Label != "ai" || math.Abs(res.ProbabilityAI-0.7) > 1e-9 {
		t.Errorf("res = %+v, want top label ai with p=0.7", res)
	}
}

func TestClassifyAcceptsFlatResponse(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"label":"ai","score":0.8}]`))
	}, nil)

	res, err := c.Classify(context.Background(), "text")
	if err != nil {
		t.Fatalf("Classify() = %v", err)
	}
	if math.Abs(res.ProbabilityAI-0.8) > 1e-9 {
		t.Errorf("ProbabilityAI = %v, want 0.8", res.ProbabilityAI)
	}
}

func TestClassifySendsAuthAndTruncates(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer detector-token" {
			t.Errorf("Authorization = %q", got)
		}
		var req struct {
			Inputs     string `json:"inputs"`
			Parameters struct {
				Truncation bool `json:"truncation"`
			} `json:"parameters"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Inputs) > 10 {
			t.Errorf("inputs not truncated: %d bytes", len(req.Inputs))
		}
		if !req.Parameters.Truncation {
			t.Error("parameters.truncation = false, want true")
		}
		_, _ = w.Write([]byte(`[[{"label":"ai","score":0.9}]]`))
	}, func(cfg *Config) { cfg.MaxInputBytes = 10 })

	// Multibyte input: the cut must land on a rune boundary.
	if _, err := c.Classify(context.Background(), strings.Repeat("héllo ", 40)); err != nil {
		t.Fatalf("Classify() = %v", err)
	}
}

func TestClassifyEndpointError(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model loading"}`, http.StatusServiceUnavailable)
	}, nil)

	if _, err := c.Classify(context.Background(), "text"); err == nil {
		t.Fatal("Classify() = nil error on 503")
	}
}

func TestTruncateUTF8(t *testing.T) {
	t.Parallel()

	// "é" is 2 bytes; cutting at 3 must not split it.
	got := truncateUTF8("aéx", 2)
	if got != "a" {
		t.Errorf("truncateUTF8(aéx, 2) = %q, want %q", got, "a")
	}
	if got := truncateUTF8("abc", 10); got != "abc" {
		t.Errorf("truncateUTF8(abc, 10) = %q, want abc", got)
	}
}
