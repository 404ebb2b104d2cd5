package llm

// Estimator provides token estimation backed by the shared tiktoken encoder.
// It satisfies the application layer's TokenEstimator interface.
type Estimator struct{}

// EstimateTokens returns the estimated token count for text.
func (Estimator) EstimateTokens(text string) int {
	return EstimateTokens(text)
}
