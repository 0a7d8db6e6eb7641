package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// geminiModelAliases maps registry IDs to the upstream model names.
var geminiModelAliases = map[string]string{
	"gemini-flash": "gemini-2.5-flash-image",
	"gemini-pro":   "gemini-3-pro-image-preview",
}

// Token prices in USD per million tokens.
var geminiTokenRates = map[string]struct{ Input, Output float64 }{
	"gemini-flash": {Input: 0.15, Output: 30.0},
	"gemini-pro":   {Input: 1.25, Output: 120.0},
}

// Gemini generates images through the generateContent endpoint, passing
// reference images inline as base64 parts.
type Gemini struct {
	APIKey  string
	BaseURL string
	client  *http.Client
}

func NewGemini(apiKey string) *Gemini {
	return &Gemini{APIKey: apiKey, BaseURL: geminiDefaultBaseURL, client: newHTTPClient()}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiRequest struct {
	Contents []struct {
		Parts []geminiPart `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *geminiInlineData `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (g *Gemini) Generate(ctx context.Context, req Request) (*Result, error) {
	upstream, ok := geminiModelAliases[req.Model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, req.Model)
	}

	parts := []geminiPart{{Text: req.Prompt}}
	for _, path := range req.ReferencePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read reference image: %w", err)
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: mimeFor(data),
			Data:     base64.StdEncoding.EncodeToString(data),
		}})
	}

	var body geminiRequest
	body.Contents = append(body.Contents, struct {
		Parts []geminiPart `json:"parts"`
	}{Parts: parts})
	body.GenerationConfig.ResponseModalities = []string{"IMAGE"}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.BaseURL, upstream)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini returned %d: %s", resp.StatusCode, drainError(resp))
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode gemini response: %w", err)
	}

	for _, cand := range out.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode gemini image data: %w", err)
			}
			cost := geminiCost(req.Model,
				out.UsageMetadata.PromptTokenCount, out.UsageMetadata.CandidatesTokenCount)
			return &Result{ImageData: data, ActualCostUSD: cost}, nil
		}
	}
	return nil, fmt.Errorf("gemini response contained no image")
}

// geminiCost converts reported token usage into dollars.
func geminiCost(model string, promptTokens, candidateTokens int64) *float64 {
	rates, ok := geminiTokenRates[model]
	if !ok {
		return nil
	}
	cost := float64(promptTokens)/1e6*rates.Input + float64(candidateTokens)/1e6*rates.Output
	return &cost
}

func mimeFor(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp"
	default:
		return "image/png"
	}
}
