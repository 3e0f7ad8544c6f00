package engine

import (
	"strings"
	"testing"
)

func TestComposeReply(t *testing.T) {
	t.Parallel()

	body, band := composeReply(0.87, 320, 150)
	if band != "high" {
		t.Fatalf("band = %q, want high", band)
	}
	for _, want := range []string{
		"87% likely AI-generated",
		"confidence: high",
		"post is 320 words",
		"Signal: classifier score 0.87",
		"*Note: AI detection is never definitive.*",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("reply missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "Short text warning") {
		t.Fatalf("unexpected short-text warning for 320 words:\n%s", body)
	}
}

func TestComposeReplyShortTextWarning(t *testing.T) {
	t.Parallel()

	body, band := composeReply(0.5, 40, 150)
	if band != "low" {
		t.Fatalf("band = %q, want low", band)
	}
	if !strings.Contains(body, "Short text warning: this post is only 40 words") {
		t.Fatalf("missing short-text warning:\n%s", body)
	}
	if !strings.Contains(body, "50% likely AI-generated") {
		t.Fatalf("missing percentage:\n%s", body)
	}
}

func TestComposeReplyRoundsPercent(t *testing.T) {
	t.Parallel()

	body, band := composeReply(0.666, 200, 150)
	if !strings.Contains(body, "67% likely AI-generated") {
		t.Fatalf("0.666 should round to 67%%:\n%s", body)
	}
	if band != "medium" {
		t.Fatalf("band = %q, want medium", band)
	}
}

func TestFallbackReplyBody(t *testing.T) {
	t.Parallel()

	if !strings.Contains(fallbackReply, "I can only analyze text posts with body content.") {
		t.Fatalf("fallback body changed:\n%s", fallbackReply)
	}
	if !strings.Contains(fallbackReply, "*Note: AI detection is never definitive.*") {
		t.Fatalf("fallback missing caveat:\n%s", fallbackReply)
	}
}
