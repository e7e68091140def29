package ctxengine

import (
	"unicode/utf8"

	"github.com/flemzord/dschat/internal/provider"
)

// Method tags how a TokenCount was produced.
type Method string

// Counting methods.
const (
	MethodPrecise   Method = "precise"
	MethodHeuristic Method = "heuristic"
)

// Default chat-format framing overheads.
const (
	DefaultPerMessageOverhead = 3
	DefaultPerNameOverhead    = 1
)

// TokenCount is a token total together with the method that produced it.
type TokenCount struct {
	Tokens int    `json:"tokens"`
	Method Method `json:"method"`
}

// TokenEstimator estimates the token count of a string.
type TokenEstimator interface {
	Estimate(text string) int
}

// TokenizerSource resolves a precise tokenizer for a model hint.
// It returns false when none is available for that model.
type TokenizerSource func(model string) (TokenEstimator, bool)

// CharEstimator estimates tokens using a simple characters-per-token ratio.
// A ratio of ~4 works well for English.
type CharEstimator struct {
	CharsPerToken int
}

// NewCharEstimator creates a CharEstimator with the given ratio.
// If charsPerToken is <= 0, defaults to 4.
func NewCharEstimator(charsPerToken int) *CharEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	return &CharEstimator{CharsPerToken: charsPerToken}
}

// Estimate returns ceil(runes/CharsPerToken), with a floor of 1 for any
// non-empty text and 0 for the empty string.
func (e *CharEstimator) Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	ratio := e.CharsPerToken
	if ratio <= 0 {
		ratio = 4
	}
	return max(1, (n+ratio-1)/ratio)
}

// TokenCounter counts text and chat messages. It prefers a precise
// tokenizer when its source has one for the model and falls back to the
// character heuristic otherwise. A single count never mixes methods.
type TokenCounter struct {
	source     TokenizerSource
	heuristic  *CharEstimator
	perMessage int
	perName    int
}

// CounterOption configures a TokenCounter.
type CounterOption func(*TokenCounter)

// WithTokenizerSource installs a precise tokenizer resolver.
func WithTokenizerSource(src TokenizerSource) CounterOption {
	return func(c *TokenCounter) { c.source = src }
}

// WithOverhead overrides the per-message and per-name framing overheads.
// Negative values are ignored.
func WithOverhead(perMessage, perName int) CounterOption {
	return func(c *TokenCounter) {
		if perMessage >= 0 {
			c.perMessage = perMessage
		}
		if perName >= 0 {
			c.perName = perName
		}
	}
}

// NewTokenCounter creates a heuristic-only counter unless a tokenizer
// source is supplied.
func NewTokenCounter(opts ...CounterOption) *TokenCounter {
	c := &TokenCounter{
		heuristic:  NewCharEstimator(4),
		perMessage: DefaultPerMessageOverhead,
		perName:    DefaultPerNameOverhead,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// estimator picks the tokenizer for model and reports its method.
func (c *TokenCounter) estimator(model string) (TokenEstimator, Method) {
	if c.source != nil {
		if enc, ok := c.source(model); ok && enc != nil {
			return enc, MethodPrecise
		}
	}
	return c.heuristic, MethodHeuristic
}

// CountText counts a single string. Empty text is always {0, heuristic}.
func (c *TokenCounter) CountText(text, model string) TokenCount {
	if text == "" {
		return TokenCount{Tokens: 0, Method: MethodHeuristic}
	}
	enc, method := c.estimator(model)
	return TokenCount{Tokens: enc.Estimate(text), Method: method}
}

// CountMessages counts role, content and name of every message and adds
// the framing overheads. The overheads are an approximation of chat
// formatting cost, not the provider's exact accounting.
func (c *TokenCounter) CountMessages(messages []provider.LLMMessage, model string) TokenCount {
	enc, method := c.estimator(model)
	total := 0
	for i := range messages {
		m := &messages[i]
		total += enc.Estimate(string(m.Role))
		total += enc.Estimate(m.Content)
		if m.Name != "" {
			total += enc.Estimate(m.Name)
			total += c.perName
		}
		total += c.perMessage
	}
	return TokenCount{Tokens: total, Method: method}
}
