package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Config is one endpoint class's budget. MaxTokens of zero disables token
// metering for that class.
type Config struct {
	Window      time.Duration
	MaxRequests int
	MaxTokens   int
}

// ChatConfig is the default budget for token-metered chat endpoints.
func ChatConfig() Config {
	return Config{Window: time.Minute, MaxRequests: 60, MaxTokens: 100000}
}

// ImageConfig is the default budget for image generation, request-count only.
func ImageConfig() Config {
	return Config{Window: time.Minute, MaxRequests: 30}
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	RetryAfter int
	Message    string
}

// Limiter admits or rejects requests against a fixed window per client. A
// nil store or a store failure never blocks traffic: availability wins over
// enforcement.
type Limiter struct {
	store  Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewLimiter(store Store, cfg Config, logger *slog.Logger) *Limiter {
	return &Limiter{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Check admits the request and records it, or rejects it leaving the stored
// record untouched. tokenCount is the estimated spend for this request and
// is only enforced when the config carries a token budget.
func (l *Limiter) Check(ctx context.Context, clientID string, tokenCount int) Decision {
	if l.store == nil {
		return Decision{Allowed: true}
	}

	key := "ratelimit:" + clientID
	now := l.now().UnixMilli()
	windowMs := l.cfg.Window.Milliseconds()

	record, err := l.load(ctx, key)
	if err != nil {
		l.logger.Error("Rate limit store read failed, allowing request", "error", err)

		return Decision{Allowed: true}
	}

	if record == nil || now-record.WindowStart >= windowMs {
		record = &Record{WindowStart: now}
	}

	retryAfter := int((record.WindowStart + windowMs - now + 999) / 1000)
	if retryAfter < 1 {
		retryAfter = 1
	}

	if len(record.Timestamps) >= l.cfg.MaxRequests {
		return Decision{
			Allowed:    false,
			RetryAfter: retryAfter,
			Message:    "Rate limit exceeded. Too many requests.",
		}
	}

	if l.cfg.MaxTokens > 0 && record.TokenCount+tokenCount > l.cfg.MaxTokens {
		return Decision{
			Allowed:    false,
			RetryAfter: retryAfter,
			Message:    "Rate limit exceeded. Token limit reached.",
		}
	}

	record.Timestamps = append(record.Timestamps, now)
	record.TokenCount += tokenCount

	// Mutation happens only on the accept path; the record outlives the
	// window by a minute so late readers still see it.
	ttl := l.cfg.Window + time.Minute

	if err := l.save(ctx, key, record, ttl); err != nil {
		l.logger.Error("Rate limit store write failed, allowing request", "error", err)
	}

	return Decision{Allowed: true}
}

func (l *Limiter) load(ctx context.Context, key string) (*Record, error) {
	raw, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if raw == nil {
		return nil, nil
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

func (l *Limiter) save(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return l.store.Put(ctx, key, raw, ttl)
}
