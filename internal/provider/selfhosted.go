package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
)

// SelfHosted talks to a local diffusion server. The reference image, when
// present, drives an IP-Adapter pass.
type SelfHosted struct {
	BaseURL string
	client  *http.Client
}

func NewSelfHosted(baseURL string) *SelfHosted {
	return &SelfHosted{BaseURL: baseURL, client: newHTTPClient()}
}

type selfHostedRequest struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Width          *int64   `json:"width,omitempty"`
	Height         *int64   `json:"height,omitempty"`
	ReferenceImage string   `json:"reference_image,omitempty"`
	IPAdapterScale *float64 `json:"ip_adapter_scale,omitempty"`
}

type selfHostedResponse struct {
	Image string `json:"image"`
	Seed  *int64 `json:"seed"`
}

func (s *SelfHosted) Generate(ctx context.Context, req Request) (*Result, error) {
	if s.BaseURL == "" {
		return nil, fmt.Errorf("%w: selfhosted", ErrProviderUnconfigured)
	}

	body := selfHostedRequest{
		Model:          req.Model,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
	}
	if len(req.ReferencePaths) > 0 {
		data, err := os.ReadFile(req.ReferencePaths[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read reference image: %w", err)
		}
		body.ReferenceImage = base64.StdEncoding.EncodeToString(data)
		scale := 0.7
		body.IPAdapterScale = &scale
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.BaseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("selfhosted request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("selfhosted returned %d: %s", resp.StatusCode, drainError(resp))
	}

	var out selfHostedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode selfhosted response: %w", err)
	}
	if out.Image == "" {
		return nil, fmt.Errorf("selfhosted response contained no image")
	}

	data, err := base64.StdEncoding.DecodeString(out.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to decode selfhosted image data: %w", err)
	}

	result := &Result{ImageData: data}
	if out.Seed != nil {
		seed := strconv.FormatInt(*out.Seed, 10)
		result.Seed = &seed
	}
	return result, nil
}

// Healthy reports whether the local server answers its health probe.
func (s *SelfHosted) Healthy(ctx context.Context) bool {
	if s.BaseURL == "" {
		return false
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
