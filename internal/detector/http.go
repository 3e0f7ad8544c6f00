package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	logx "isthisai/pkg/logx"
)

// Config configures the HTTP classifier.
type Config struct {
	// Endpoint is the inference URL (e.g. a HuggingFace inference endpoint).
	Endpoint string
	// Token is sent as a bearer token when non-empty.
	Token string
	// Model is informational; the endpoint determines the actual model.
	Model string

	// RatePerSec throttles inference calls. The detector has its own
	// limiter: the shared token bucket covers only feed calls.
	RatePerSec int

	RequestTimeout time.Duration
	MaxInputBytes  int
}

// HTTPClassifier implements Classifier against a hosted text-classification
// endpoint speaking the HuggingFace inference shape.
type HTTPClassifier struct {
	cfg     Config
	limiter *rate.Limiter
	hc      *http.Client
	log     logx.Logger
}

func NewHTTP(cfg Config, log logx.Logger) (*HTTPClassifier, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("detector: endpoint is required")
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxInputBytes <= 0 {
		cfg.MaxInputBytes = 4000
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &HTTPClassifier{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		hc:      &http.Client{Timeout: cfg.RequestTimeout},
		log:     log,
	}, nil
}

// inferenceRequest is the HuggingFace text-classification request shape.
type inferenceRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		Truncation bool `json:"truncation"`
	} `json:"parameters"`
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	// Long posts are cut for model limits; scores on the prefix are close
	// enough in practice.
	input := truncateUTF8(text, c.cfg.MaxInputBytes)

	reqBody := inferenceRequest{Inputs: input}
	reqBody.Parameters.Truncation = true
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, errors.Wrap(err, "encode inference request")
	}

	cctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, errors.Wrap(err, "build inference request")
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := strings.TrimSpace(c.cfg.Token); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return Result{}, errors.Wrap(err, "call inference endpoint")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, errors.Wrap(err, "read inference response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, errors.Errorf("detector: endpoint status %d: %s", resp.StatusCode, snippet(body))
	}

	best, err := topLabel(body)
	if err != nil {
		return Result{}, err
	}

	label := strings.ToLower(best.Label)
	p := probabilityFromLabel(label, best.Score)
	c.log.Debug("classified text",
		logx.Int("input_bytes", len(input)),
		logx.String("label", label),
		logx.Float64("probability_ai", p),
	)
	return Result{ProbabilityAI: p, Label: label}, nil
}

// topLabel picks the highest-scoring label from the response. The endpoint
// returns [[{label,score}...]] for single inputs; some deployments flatten
// to [{label,score}...].
func topLabel(body []byte) (labelScore, error) {
	var nested [][]labelScore
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 {
		return maxScore(nested[0])
	}
	var flat []labelScore
	if err := json.Unmarshal(body, &flat); err == nil {
		return maxScore(flat)
	}
	return labelScore{}, errors.Errorf("detector: unrecognized response: %s", snippet(body))
}

func maxScore(ls []labelScore) (labelScore, error) {
	if len(ls) == 0 {
		return labelScore{}, errors.New("detector: empty classification response")
	}
	best := ls[0]
	for _, l := range ls[1:] {
		if l.Score > best.Score {
			best = l
		}
	}
	return best, nil
}

// probabilityFromLabel maps a model label + score to P(AI-generated).
// Unknown label conventions fall back to treating score as P(AI).
func probabilityFromLabel(label string, score float64) float64 {
	var p float64
	switch {
	case strings.Contains(label, "human"):
		p = 1.0 - score
	case strings.Contains(label, "ai"), strings.Contains(label, "machine"):
		p = score
	default:
		p = score
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}
