package provider

import (
	"testing"

	"github.com/duonganhthu43/ai-gateway/internal/config"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(
		[]config.ProviderConfig{
			{Name: "openai", Type: "openai", APIKey: "sk-a"},
			{Name: "local", Type: "openai", APIKey: "sk-b", BaseURL: "http://localhost:8000/v1"},
		},
		config.RoutingConfig{
			DefaultProvider: "openai",
			Rules: []config.RoutingRule{
				{ModelExact: "llama-3", Provider: "local"},
				{ModelPrefix: "qwen-", Provider: "local"},
			},
		},
	)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}
	return r
}

func TestRegistry_Resolve(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		name         string
		model        string
		wantProvider string
		wantModel    string
	}{
		{"explicit provider label", "local/mistral-7b", "local", "mistral-7b"},
		{"exact rule", "llama-3", "local", "llama-3"},
		{"prefix rule", "qwen-72b", "local", "qwen-72b"},
		{"default provider", "gpt-4o", "openai", "gpt-4o"},
		{"unknown prefix falls through to default", "unknown/gpt-4o", "openai", "unknown/gpt-4o"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instance, meta, err := r.Resolve(tt.model)
			if err != nil {
				t.Fatalf("Resolve(%q) returned error: %v", tt.model, err)
			}
			if instance == nil {
				t.Fatal("Resolve returned a nil instance")
			}
			if meta.ProviderName != tt.wantProvider {
				t.Errorf("ProviderName = %q, want %q", meta.ProviderName, tt.wantProvider)
			}
			if meta.Name != tt.wantModel {
				t.Errorf("Name = %q, want %q", meta.Name, tt.wantModel)
			}
		})
	}
}

func TestRegistry_Resolve_UnknownProvider(t *testing.T) {
	r, err := NewRegistry(nil, config.RoutingConfig{DefaultProvider: "openai"})
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}
	if _, _, err := r.Resolve("gpt-4o"); err == nil {
		t.Error("Resolve succeeded with no configured providers, want error")
	}
}

func TestNewRegistry_UnsupportedProviderType(t *testing.T) {
	_, err := NewRegistry([]config.ProviderConfig{{Name: "x", Type: "bedrock"}}, config.RoutingConfig{})
	if err == nil {
		t.Error("NewRegistry succeeded with unsupported provider type, want error")
	}
}
