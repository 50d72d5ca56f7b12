// Package provider resolves requested model identifiers to invocable
// model instances using the configured providers and routing rules.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/duonganhthu43/ai-gateway/internal/config"
	"github.com/duonganhthu43/ai-gateway/internal/model"
	"github.com/duonganhthu43/ai-gateway/internal/provider/openai"
	"github.com/duonganhthu43/ai-gateway/internal/tokens"
	"github.com/duonganhthu43/ai-gateway/internal/types"
)

// Resolver resolves a requested model identifier to an instance plus its
// metadata.
type Resolver interface {
	Resolve(modelName string) (model.Instance, *model.Metadata, error)
}

// Registry holds the configured providers. Instances are built per
// resolution since they are bound to a concrete model name.
type Registry struct {
	clients  map[string]*openai.Client
	routing  config.RoutingConfig
	counters *tokens.Registry
}

// NewRegistry builds a registry from provider configuration. Only the
// "openai" provider type (including OpenAI-compatible endpoints via
// base_url) is supported.
func NewRegistry(cfgs []config.ProviderConfig, routing config.RoutingConfig) (*Registry, error) {
	counters := tokens.NewRegistry()
	counters.Register(tokens.NewOpenAICounter())

	r := &Registry{
		clients:  make(map[string]*openai.Client),
		routing:  routing,
		counters: counters,
	}

	for _, cfg := range cfgs {
		switch cfg.Type {
		case "openai", "":
			var opts []openai.ClientOption
			if cfg.BaseURL != "" {
				opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
			}
			r.clients[cfg.Name] = openai.NewClient(cfg.APIKey, opts...)
		default:
			return nil, fmt.Errorf("unsupported provider type %q for provider %q", cfg.Type, cfg.Name)
		}
	}

	return r, nil
}

// Resolve maps a requested model identifier to an instance. An explicit
// "provider/model" label wins; otherwise routing rules match on the bare
// model name, falling back to the default provider.
func (r *Registry) Resolve(modelName string) (model.Instance, *model.Metadata, error) {
	providerName, bareModel := r.route(modelName)

	client, ok := r.clients[providerName]
	if !ok {
		return nil, nil, fmt.Errorf("unknown provider %q for model %q", providerName, modelName)
	}

	meta := &model.Metadata{ProviderName: providerName, Name: bareModel}
	instance := openai.NewInstance(client, bareModel, r.counters.CounterFor(bareModel))
	return instance, meta, nil
}

func (r *Registry) route(modelName string) (provider, bare string) {
	if name, rest, found := strings.Cut(modelName, "/"); found {
		if _, ok := r.clients[name]; ok {
			return name, rest
		}
	}

	for _, rule := range r.routing.Rules {
		if rule.ModelExact != "" && modelName == rule.ModelExact {
			return rule.Provider, modelName
		}
		if rule.ModelPrefix != "" && strings.HasPrefix(modelName, rule.ModelPrefix) {
			return rule.Provider, modelName
		}
	}

	return r.routing.DefaultProvider, modelName
}

// ListModels aggregates model listings across all configured providers.
func (r *Registry) ListModels(ctx context.Context) (*types.ModelList, error) {
	out := &types.ModelList{Object: "list"}
	for name, client := range r.clients {
		list, err := client.ListModels(ctx)
		if err != nil {
			return nil, fmt.Errorf("list models for provider %q: %w", name, err)
		}
		out.Data = append(out.Data, list.Data...)
	}
	return out, nil
}
