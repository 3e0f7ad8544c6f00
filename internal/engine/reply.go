package engine

import (
	"fmt"
	"math"
	"strings"

	"isthisai/internal/detector"
)

// fallbackReply is posted when the parent submission has no text body.
const fallbackReply = "🤖 **AI Analysis:** I can only analyze text posts with body content.\n\n*Note: AI detection is never definitive.*"

// composeReply renders the reply markdown for a classified post and returns
// it with the confidence band it reports.
func composeReply(p float64, words, minWords int) (body, band string) {
	pct := int(math.Round(p * 100))
	band = detector.Band(p)

	var b strings.Builder
	fmt.Fprintf(&b, "🤖 **AI Analysis:** %d%% likely AI-generated *(confidence: %s - post is %d words)*\n", pct, band, words)
	fmt.Fprintf(&b, "Signal: classifier score %.2f\n\n", p)
	b.WriteString("*Note: AI detection is never definitive.*")
	if words < minWords {
		fmt.Fprintf(&b, "\n\n⚠️ Short text warning: this post is only %d words, so detector accuracy may be lower.", words)
	}
	return b.String(), band
}
