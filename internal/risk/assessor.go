package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/edgecomet/siteguard/internal/domainx"
)

// Threshold is the score above which a URL is recommended for blocking.
const Threshold = 0.6

var (
	ErrModelUnavailable = errors.New("model not loaded")
	ErrEmptyURL         = errors.New("empty URL")
)

// Assessment is the verdict for one URL.
type Assessment struct {
	Domain string  `json:"domain"`
	Score  float64 `json:"score"`
	Block  bool    `json:"block"`
}

// Cache stores assessments by URL. Implementations must treat their own
// failures as misses.
type Cache interface {
	Get(ctx context.Context, url string) (Assessment, bool)
	Set(ctx context.Context, url string, a Assessment)
}

// Assessor turns a URL into an Assessment using the current scorer.
// The scorer can be swapped at runtime; a nil scorer makes every
// assessment fail with ErrModelUnavailable.
type Assessor struct {
	mu     sync.RWMutex
	scorer Scorer
	cache  Cache
	logger *zap.Logger
}

// NewAssessor creates an assessor. cache may be nil.
func NewAssessor(scorer Scorer, cache Cache, logger *zap.Logger) *Assessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assessor{
		scorer: scorer,
		cache:  cache,
		logger: logger,
	}
}

// SetScorer replaces the scorer used by subsequent assessments.
func (a *Assessor) SetScorer(s Scorer) {
	a.mu.Lock()
	a.scorer = s
	a.mu.Unlock()
}

// Ready reports whether a scorer is loaded.
func (a *Assessor) Ready() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.scorer != nil
}

// Assess scores rawURL. Surrounding whitespace is ignored.
func (a *Assessor) Assess(ctx context.Context, rawURL string) (Assessment, error) {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return Assessment{}, ErrEmptyURL
	}

	a.mu.RLock()
	scorer := a.scorer
	a.mu.RUnlock()

	if scorer == nil {
		return Assessment{}, ErrModelUnavailable
	}

	if a.cache != nil {
		if cached, ok := a.cache.Get(ctx, u); ok {
			a.logger.Debug("Scan cache hit", zap.String("url", u))
			return cached, nil
		}
	}

	fv := Featurize(u)
	score, err := scorer.Score(fv)
	if err != nil {
		return Assessment{}, fmt.Errorf("failed to score %q: %w", u, err)
	}

	result := Assessment{
		Domain: domainx.Extract(u),
		Score:  score,
		Block:  score > Threshold,
	}

	a.logger.Debug("URL assessed",
		zap.String("url", u),
		zap.String("domain", result.Domain),
		zap.Float64("score", score),
		zap.Bool("block", result.Block),
		zap.Any("features", fv))

	if a.cache != nil {
		a.cache.Set(ctx, u, result)
	}

	return result, nil
}
