package tokens

import "unicode/utf8"

// CharsPerToken is the character-to-token ratio used by the heuristic
// estimator. Four characters per token tracks the sub-word tokenizers
// of the major providers for English text.
const CharsPerToken = 4

// Estimator estimates the token count of a text payload before the
// request is made. Implementations must be safe for concurrent use.
type Estimator interface {
	// Estimate returns the estimated token count for text.
	// Empty input estimates zero.
	Estimate(text string) int
}

// HeuristicEstimator estimates tokens from character counts alone.
// It is stateless and safe for concurrent use.
type HeuristicEstimator struct{}

// NewHeuristicEstimator creates a character-ratio estimator.
func NewHeuristicEstimator() *HeuristicEstimator {
	return &HeuristicEstimator{}
}

// Estimate returns len(text)/CharsPerToken + 1, counting characters
// (runes), not bytes. The +1 keeps the estimate from rounding to zero
// on short prompts and biases the budget check slightly conservative.
// Empty input returns 0.
func (e *HeuristicEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return utf8.RuneCountInString(text)/CharsPerToken + 1
}

var defaultEstimator = NewHeuristicEstimator()

// Estimate estimates tokens for text using the package default
// heuristic estimator.
func Estimate(text string) int {
	return defaultEstimator.Estimate(text)
}
