package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

const openaiDefaultBaseURL = "https://api.openai.com"

// OpenAI generates through the images endpoint, receiving the image inline
// as base64.
type OpenAI struct {
	APIKey  string
	BaseURL string
	client  *http.Client
}

func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{APIKey: apiKey, BaseURL: openaiDefaultBaseURL, client: newHTTPClient()}
}

type openaiRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Style          string `json:"style,omitempty"`
}

type openaiResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (*Result, error) {
	size := "1024x1024"
	if req.Width != nil && req.Height != nil {
		size = fmt.Sprintf("%dx%d", *req.Width, *req.Height)
	}

	body := openaiRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		N:      1,
		Size:   size,
	}
	// gpt-image-1 always returns base64 and rejects these knobs.
	if req.Model == "dall-e-3" {
		body.ResponseFormat = "b64_json"
		body.Quality = "standard"
		body.Style = "vivid"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.BaseURL+"/v1/images/generations", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai returned %d: %s", resp.StatusCode, drainError(resp))
	}

	var out openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode openai response: %w", err)
	}
	if len(out.Data) == 0 || out.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("openai response contained no image")
	}

	data, err := base64.StdEncoding.DecodeString(out.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode openai image data: %w", err)
	}
	return &Result{ImageData: data}, nil
}
