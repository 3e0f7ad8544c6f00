// Package detector is the classification collaborator: it scores text for
// the likelihood of being AI-generated via a hosted text-classification
// endpoint, and buckets scores into the confidence bands used in replies.
package detector

import "context"

// Result is one classification outcome. ProbabilityAI is always in [0,1];
// Label is the model's raw label, lowercased.
type Result struct {
	ProbabilityAI float64
	Label         string
}

// Classifier scores a text for AI likelihood.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// Band buckets a probability into the confidence band quoted in replies.
// Scores near either extreme are confident calls; mid-range scores are not.
func Band(p float64) string {
	if p >= 0.8 || p <= 0.2 {
		return "high"
	}
	if p >= 0.65 || p <= 0.35 {
		return "medium"
	}
	return "low"
}
