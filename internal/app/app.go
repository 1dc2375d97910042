package app

import (
	"context"
	"fmt"

	"github.com/edibez/tokenagent/internal/agent"
	"github.com/edibez/tokenagent/internal/ai"
	"github.com/edibez/tokenagent/internal/config"
	"github.com/edibez/tokenagent/internal/llm"
	"github.com/edibez/tokenagent/internal/price"
	"github.com/edibez/tokenagent/internal/registry"
	"github.com/edibez/tokenagent/pkg/logger"
	"go.uber.org/zap"
)

// Agent is a fully wired agent plus the registry it resolves against.
type Agent struct {
	*agent.Agent
	Registry *registry.Registry
}

// NewAgent wires the registry, price client and optional classifier from cfg.
func NewAgent(ctx context.Context, cfg *config.Config) (*Agent, error) {
	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}

	prices := price.NewClient(
		price.WithBaseURL(cfg.PriceBaseURL),
		price.WithAPIKey(cfg.PriceAPIKey),
		price.WithTimeout(cfg.PriceTimeout),
	)

	var completer ai.Completer
	if cfg.ClassifierEnabled() {
		client := llm.New(llm.Config{
			BaseURL:   cfg.CompletionBaseURL,
			APIKey:    cfg.CompletionAPIKey,
			Model:     cfg.CompletionModel,
			Timeout:   cfg.CompletionTimeout,
			MaxTokens: 64,
		})
		logger.Log.Info("classifier enabled", zap.String("model", client.Model()))
		completer = client
	}

	if cfg.RegistryVerify {
		verify(ctx, prices, reg)
	}

	return &Agent{
		Agent:    agent.New(ai.NewResolver(reg, completer), prices),
		Registry: reg,
	}, nil
}

// verify logs registry ids the price source does not list. It never fails
// startup: the registry stays authoritative.
func verify(ctx context.Context, prices *price.Client, reg *registry.Registry) {
	missing, err := prices.MissingIDs(ctx, reg.IDs())
	if err != nil {
		logger.Log.Warn("registry verification skipped", zap.Error(err))
		return
	}
	if len(missing) > 0 {
		logger.Log.Warn("registry ids unknown to price source", zap.Strings("ids", missing))
		return
	}
	logger.Log.Info("registry verified", zap.Int("tokens", reg.Len()))
}
