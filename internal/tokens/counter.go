// Package tokens provides token counting for completions whose provider
// did not report usage, so the usage summary can still be populated.
package tokens

import "strings"

// Counter counts tokens of plain text for a given model.
type Counter interface {
	// CountText returns the token count of text under the model's
	// tokenizer.
	CountText(model, text string) (int, error)

	// SupportsModel reports whether the counter can handle the model.
	SupportsModel(model string) bool
}

// Estimator approximates token counts from character length. It is the
// fallback for models without a native tokenizer.
type Estimator struct {
	// CharsPerToken is the average characters per token (default 4).
	CharsPerToken float64
}

// NewEstimator creates an estimator with the default ratio.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

// CountText estimates the token count of text.
func (e *Estimator) CountText(model, text string) (int, error) {
	ratio := e.CharsPerToken
	if ratio <= 0 {
		ratio = 4.0
	}
	return int(float64(len(text)) / ratio), nil
}

// SupportsModel always returns true; the estimator is a universal
// fallback.
func (e *Estimator) SupportsModel(model string) bool {
	return true
}

// ModelMatcher matches model names against prefix and exact patterns.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a matcher from prefix and exact lists.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{prefixes: prefixes, exact: exact}
}

// Matches reports whether the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// Registry picks the first registered counter that supports a model,
// falling back to the estimator.
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a registry with the estimator as fallback.
func NewRegistry() *Registry {
	return &Registry{fallback: NewEstimator()}
}

// Register adds a counter.
func (r *Registry) Register(c Counter) {
	r.counters = append(r.counters, c)
}

// CounterFor returns the counter to use for a model.
func (r *Registry) CounterFor(model string) Counter {
	for _, c := range r.counters {
		if c.SupportsModel(model) {
			return c
		}
	}
	return r.fallback
}
