package models

import "fmt"

// Provider identifies an inference backend.
type Provider string

const (
	ProviderGemini     Provider = "gemini"
	ProviderFal        Provider = "fal"
	ProviderOpenAI     Provider = "openai"
	ProviderSelfHosted Provider = "selfhosted"

	// ProviderUnknown is the sentinel resolved for model IDs that are not in
	// the registry. Jobs for unknown models are still recorded before the
	// dispatch fails.
	ProviderUnknown Provider = "unknown"
)

func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderGemini, ProviderFal, ProviderOpenAI, ProviderSelfHosted:
		return Provider(s), nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// ModelInfo describes one generation model.
type ModelInfo struct {
	ID           string   `json:"id"`
	Provider     Provider `json:"provider"`
	DisplayName  string   `json:"display_name"`
	CostPerImage float64  `json:"cost_per_image"`
	// MaxRefs is the number of reference images supported; 0 means
	// text-to-image only.
	MaxRefs int `json:"max_refs"`
}

// Models is the static model registry.
func Models() []ModelInfo {
	return []ModelInfo{
		{ID: "gemini-flash", Provider: ProviderGemini, DisplayName: "Gemini 2.5 Flash", CostPerImage: 0.039, MaxRefs: 10},
		{ID: "gemini-pro", Provider: ProviderGemini, DisplayName: "Gemini 3 Pro", CostPerImage: 0.134, MaxRefs: 10},
		{ID: "fal-ai/flux/schnell", Provider: ProviderFal, DisplayName: "FLUX Schnell", CostPerImage: 0.003},
		{ID: "fal-ai/flux-pro/v1.1", Provider: ProviderFal, DisplayName: "FLUX Pro 1.1", CostPerImage: 0.05},
		{ID: "fal-ai/flux-pro/v1.1-ultra", Provider: ProviderFal, DisplayName: "FLUX Pro 1.1 Ultra", CostPerImage: 0.06},
		{ID: "fal-ai/recraft-v3", Provider: ProviderFal, DisplayName: "Recraft V3", CostPerImage: 0.04},
		// Z-Image Turbo routes to the image-to-image endpoint when a
		// reference is provided.
		{ID: "fal-ai/z-image/turbo", Provider: ProviderFal, DisplayName: "Z-Image Turbo", CostPerImage: 0.005, MaxRefs: 1},
		{ID: "dall-e-3", Provider: ProviderOpenAI, DisplayName: "DALL-E 3", CostPerImage: 0.04},
		{ID: "gpt-image-1", Provider: ProviderOpenAI, DisplayName: "GPT Image 1", CostPerImage: 0.02},
		{ID: "animagine", Provider: ProviderSelfHosted, DisplayName: "Animagine XL 4.0 (Local)", MaxRefs: 1},
		{ID: "pony", Provider: ProviderSelfHosted, DisplayName: "Pony Diffusion V6 (Local)", MaxRefs: 1},
		{ID: "noobai", Provider: ProviderSelfHosted, DisplayName: "NoobAI XL (Local)", MaxRefs: 1},
	}
}

// FindModel looks up a model by ID.
func FindModel(id string) (ModelInfo, bool) {
	for _, m := range Models() {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// ProviderForModel resolves the provider identity for a model ID.
func ProviderForModel(id string) (Provider, bool) {
	m, ok := FindModel(id)
	if !ok {
		return ProviderUnknown, false
	}
	return m.Provider, true
}
