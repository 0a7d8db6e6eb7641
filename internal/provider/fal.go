package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
)

const falDefaultBaseURL = "https://fal.run"

// Fal generates through fal.ai's synchronous run endpoint. The model ID is
// the endpoint path; the returned image is fetched from the URL in the
// response.
type Fal struct {
	APIKey  string
	BaseURL string
	client  *http.Client
}

func NewFal(apiKey string) *Fal {
	return &Fal{APIKey: apiKey, BaseURL: falDefaultBaseURL, client: newHTTPClient()}
}

type falRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	ImageSize      string `json:"image_size,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	NumImages      int    `json:"num_images"`
}

type falResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Seed *int64 `json:"seed"`
}

func (f *Fal) Generate(ctx context.Context, req Request) (*Result, error) {
	endpoint := req.Model
	body := falRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		ImageSize:      "square_hd",
		NumImages:      1,
	}

	if len(req.ReferencePaths) > 0 {
		data, err := os.ReadFile(req.ReferencePaths[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read reference image: %w", err)
		}
		body.ImageURL = "data:" + mimeFor(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
		// Z-Image serves img2img from a sibling route.
		if strings.HasSuffix(endpoint, "/z-image/turbo") {
			endpoint += "/image-to-image"
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.BaseURL+"/"+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Key "+f.APIKey)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fal request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fal returned %d: %s", resp.StatusCode, drainError(resp))
	}

	var out falResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode fal response: %w", err)
	}
	if len(out.Images) == 0 {
		return nil, fmt.Errorf("fal response contained no image")
	}

	data, err := f.fetchImage(ctx, out.Images[0].URL)
	if err != nil {
		return nil, err
	}

	result := &Result{ImageData: data}
	if out.Seed != nil {
		seed := strconv.FormatInt(*out.Seed, 10)
		result.Seed = &seed
	}
	return result, nil
}

func (f *Fal) fetchImage(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch generated image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
