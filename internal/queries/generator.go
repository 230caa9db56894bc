package queries

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/growthsignal/leadscout/internal/leadgen"
	"github.com/growthsignal/leadscout/internal/metrics"
)

// Provider is one text-completion backend in the fallback chain. Complete
// returns the textual payload extracted from the provider's response
// envelope; envelope shapes differ per provider and are isolated behind
// this method.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

const defaultAttemptTimeout = 30 * time.Second

// Generator tries ranked providers in sequence to produce query strings and
// falls back to a static keyword on total failure. Its contract is total:
// Generate never errors and never returns an empty set.
type Generator struct {
	providers []Provider
	timeout   time.Duration
	logger    *zap.Logger
}

// NewGenerator builds a Generator over the given providers in priority
// order. The timeout bounds each individual provider attempt.
func NewGenerator(providers []Provider, timeout time.Duration, logger *zap.Logger) *Generator {
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		providers: providers,
		timeout:   timeout,
		logger:    logger,
	}
}

// Generate returns an ordered, non-empty set of search phrases for the run
// parameters. The first provider whose payload validates wins; every
// failure mode (network, timeout, malformed payload, validation) is logged
// and swallowed. When all providers fail the caller's keyword is returned,
// or the sector name if no keyword was supplied.
func (g *Generator) Generate(ctx context.Context, p leadgen.RunParameters) []string {
	prompt := BuildPrompt(p)

	for _, provider := range g.providers {
		qs, err := g.attempt(ctx, provider, prompt)
		if err != nil {
			metrics.ObserveProviderAttempt(provider.Name(), "failure")
			g.logger.Warn("query provider failed, falling through",
				zap.String("provider", provider.Name()),
				zap.Error(err),
			)
			continue
		}
		metrics.ObserveProviderAttempt(provider.Name(), "success")
		g.logger.Info("query provider succeeded",
			zap.String("provider", provider.Name()),
			zap.Int("queries", len(qs)),
		)
		return qs
	}

	metrics.ObserveProviderAttempt("fallback", "success")
	g.logger.Warn("all query providers failed, using static fallback")
	return []string{fallbackQuery(p)}
}

func (g *Generator) attempt(ctx context.Context, provider Provider, prompt string) ([]string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := provider.Complete(attemptCtx, prompt)
	if err != nil {
		return nil, err
	}
	return ParseQueryArray(raw)
}

func fallbackQuery(p leadgen.RunParameters) string {
	if kw := strings.TrimSpace(p.Keyword); kw != "" {
		return kw
	}
	return strings.TrimSpace(p.Sector)
}
