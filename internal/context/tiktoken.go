package ctxengine

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is used when the model name is unknown to tiktoken.
const fallbackEncoding = "cl100k_base"

// TiktokenEstimator counts tokens with a BPE encoding.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// Estimate returns the exact number of BPE tokens in text.
func (t *TiktokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// TiktokenSource returns a TokenizerSource backed by tiktoken-go. Encodings
// are resolved once per model and cached, including failures, so an
// unavailable encoding (offline, unknown model) costs one lookup and then
// degrades to the heuristic for good.
func TiktokenSource(logger *slog.Logger) TokenizerSource {
	if logger == nil {
		logger = slog.New(nopHandler{})
	}
	var (
		mu    sync.Mutex
		cache = make(map[string]*TiktokenEstimator)
	)
	return func(model string) (TokenEstimator, bool) {
		mu.Lock()
		defer mu.Unlock()
		if est, ok := cache[model]; ok {
			if est == nil {
				return nil, false
			}
			return est, true
		}
		enc, err := tiktoken.EncodingForModel(model)
		if err != nil {
			enc, err = tiktoken.GetEncoding(fallbackEncoding)
		}
		if err != nil {
			logger.Warn("tiktoken unavailable, using heuristic counts", "model", model, "error", err)
			cache[model] = nil
			return nil, false
		}
		est := &TiktokenEstimator{enc: enc}
		cache[model] = est
		return est, true
	}
}
