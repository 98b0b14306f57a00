package relay

import (
	"strconv"
	"strings"

	"github.com/onemin-relay/relay/internal/apierr"
	"github.com/onemin-relay/relay/internal/catalog"
)

const (
	onlineSuffix     = ":online"
	defaultNumOfSite = 1
	defaultMaxWord   = 500
)

// WebSearchConfig carries the web-search parameters attached to a request
// when the model was asked for with the :online suffix.
type WebSearchConfig struct {
	Enabled   bool
	NumOfSite int
	MaxWord   int
}

// WebSearchOverrides are the optional environment-supplied limits. Unparsable
// or non-positive values fall back to the fixed defaults.
type WebSearchOverrides struct {
	NumOfSite string
	MaxWord   string
}

// ModelSpec is the result of parsing a requested model identifier.
type ModelSpec struct {
	Model     string
	WebSearch *WebSearchConfig
}

// ParseModelName validates a raw model identifier and extracts the optional
// :online suffix. Pure function of its input, the static tables and the
// overrides; empty input must be defaulted by the caller beforehand.
func ParseModelName(raw string, overrides WebSearchOverrides) (ModelSpec, error) {
	if raw == "" {
		return ModelSpec{}, apierr.ValidationWithCode("Model name cannot be empty", "model_not_found")
	}

	trimmed := strings.TrimSpace(raw)

	if strings.Count(trimmed, ":") > 1 {
		return ModelSpec{}, apierr.ValidationWithCode(
			"Invalid model name format. Only ':online' suffix is supported", "model_not_found")
	}

	if strings.HasSuffix(trimmed, onlineSuffix) {
		base := strings.TrimSuffix(trimmed, onlineSuffix)

		if base == "" {
			return ModelSpec{}, apierr.ValidationWithCode("Model name cannot be empty", "model_not_found")
		}

		if !catalog.SupportsRetrieval(base) {
			return ModelSpec{}, apierr.ValidationWithCode(
				"Model '"+base+"' does not support web search functionality", "model_not_found")
		}

		cfg := webSearchConfig(overrides)

		return ModelSpec{Model: base, WebSearch: &cfg}, nil
	}

	if strings.Contains(trimmed, ":") {
		return ModelSpec{}, apierr.ValidationWithCode(
			"Invalid model name format. Only ':online' suffix is supported", "model_not_found")
	}

	return ModelSpec{Model: trimmed}, nil
}

func webSearchConfig(overrides WebSearchOverrides) WebSearchConfig {
	return WebSearchConfig{
		Enabled:   true,
		NumOfSite: sanitizePositive(overrides.NumOfSite, defaultNumOfSite),
		MaxWord:   sanitizePositive(overrides.MaxWord, defaultMaxWord),
	}
}

func sanitizePositive(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}

	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}

	return n
}
