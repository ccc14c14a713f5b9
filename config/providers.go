package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Provider types understood by the ai-engine.
const (
	ProviderOpenAICompatible = "openai-compatible"
	ProviderGoogle           = "google"
	ProviderAnthropic        = "anthropic"
	ProviderGeminiCLI        = "gemini-cli"
)

// Provider is one configured AI backend. The JSON shape is shared with the
// ai-engine and the UI, so the field names stay camelCase.
type Provider struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProviderType string `json:"providerType"`
	BaseURL      string `json:"baseUrl,omitempty"`
	Model        string `json:"model,omitempty"`

	// SingleRoundTools marks backends that cannot accept a tool_result
	// round. Derived from the provider type on load; never persisted.
	SingleRoundTools bool `json:"-"`
}

// ModelParameters are the sampling knobs sent with every request.
type ModelParameters struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"topP"`
	MaxTokens   int     `json:"maxTokens"`
}

func DefaultModelParameters() ModelParameters {
	return ModelParameters{
		Temperature: 0.7,
		TopP:        1.0,
		MaxTokens:   2000,
	}
}

type providersFile struct {
	Providers  []Provider      `json:"providers"`
	Parameters ModelParameters `json:"parameters"`
}

// LoadProviders reads the provider registry, returning an empty list with
// default parameters when no registry exists yet.
func LoadProviders() ([]Provider, ModelParameters, error) {
	path := GetProvidersFilePath()
	if !FileExists(path) {
		return []Provider{}, DefaultModelParameters(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ModelParameters{}, fmt.Errorf("failed to read provider config: %w", err)
	}
	var file providersFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, ModelParameters{}, fmt.Errorf("failed to parse provider config: %w", err)
	}
	if file.Parameters == (ModelParameters{}) {
		file.Parameters = DefaultModelParameters()
	}
	for i := range file.Providers {
		file.Providers[i].SingleRoundTools = file.Providers[i].ProviderType == ProviderGeminiCLI
	}
	return file.Providers, file.Parameters, nil
}

func SaveProviders(providers []Provider, params ModelParameters) error {
	if err := EnsureDir(GetConfigDir()); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(providersFile{Providers: providers, Parameters: params}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal provider config: %w", err)
	}
	// 0600 - provider entries may reference private endpoints
	if err := os.WriteFile(GetProvidersFilePath(), append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write provider config: %w", err)
	}
	return nil
}

// UpsertProvider adds or replaces a provider by ID.
func UpsertProvider(p Provider) error {
	if p.ID == "" {
		return fmt.Errorf("provider id is empty")
	}
	providers, params, err := LoadProviders()
	if err != nil {
		return err
	}
	replaced := false
	for i := range providers {
		if providers[i].ID == p.ID {
			providers[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		providers = append(providers, p)
	}
	return SaveProviders(providers, params)
}

// DeleteProvider removes a provider by ID, ignoring unknown IDs.
func DeleteProvider(id string) error {
	providers, params, err := LoadProviders()
	if err != nil {
		return err
	}
	kept := providers[:0]
	for _, p := range providers {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	return SaveProviders(kept, params)
}

// FindProvider looks a provider up by ID.
func FindProvider(id string) (*Provider, error) {
	providers, _, err := LoadProviders()
	if err != nil {
		return nil, err
	}
	for i := range providers {
		if providers[i].ID == id {
			return &providers[i], nil
		}
	}
	return nil, fmt.Errorf("unknown provider: %s", id)
}
