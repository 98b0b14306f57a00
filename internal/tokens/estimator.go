// Package tokens estimates token counts for rate-limit accounting. Estimates
// are never reconciled against downstream billing; they only need to be
// stable and roughly proportional to real usage.
package tokens

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	defaultCacheSize = 1000
	charsPerToken    = 4
)

// Estimator counts tokens with tiktoken and memoizes results in a bounded
// FIFO cache. Each Estimator owns its cache; there is no shared global state.
type Estimator struct {
	logger *slog.Logger

	mu       sync.Mutex
	encoding *tiktoken.Tiktoken
	cache    map[string]int
	order    []string
	maxCache int
}

func NewEstimator(logger *slog.Logger) *Estimator {
	return &Estimator{
		logger:   logger,
		cache:    make(map[string]int),
		maxCache: defaultCacheSize,
	}
}

// Estimate returns the token count of text for the given model family. The
// model only participates in cache keying; all families share the cl100k_base
// encoding, with a heuristic fallback when the encoder is unavailable.
func (e *Estimator) Estimate(text, model string) int {
	if text == "" {
		return 0
	}

	if model == "" {
		model = "DEFAULT"
	}

	prefix := text
	if len(prefix) > 50 {
		prefix = prefix[:50]
	}
	cacheKey := fmt.Sprintf("%s:%d:%s", model, len(text), prefix)

	e.mu.Lock()
	defer e.mu.Unlock()

	if count, ok := e.cache[cacheKey]; ok {
		return count
	}

	count := e.encode(text)
	e.store(cacheKey, count)

	return count
}

func (e *Estimator) encode(text string) int {
	if e.encoding == nil {
		encoding, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			if e.logger != nil {
				e.logger.Error("Failed to load tiktoken encoding", "error", err)
			}

			return heuristicCount(text)
		}

		e.encoding = encoding
	}

	return len(e.encoding.Encode(text, nil, nil))
}

// store evicts in insertion order once the cache is full.
func (e *Estimator) store(key string, count int) {
	if len(e.cache) >= e.maxCache && len(e.order) > 0 {
		oldest := e.order[0]
		e.order = e.order[1:]
		delete(e.cache, oldest)
	}

	e.cache[key] = count
	e.order = append(e.order, key)
}

// heuristicCount approximates tokens from word and character counts, taking
// the higher of the two so rate limiting errs on the strict side.
func heuristicCount(text string) int {
	words := len(strings.Fields(text))
	wordEstimate := int(math.Ceil(float64(words) * 0.75))
	charEstimate := int(math.Ceil(float64(len(text)) / charsPerToken))

	if wordEstimate > charEstimate {
		return wordEstimate
	}

	return charEstimate
}
