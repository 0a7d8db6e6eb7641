// Package provider implements the inference backends that turn a prompt into
// image bytes. Every backend speaks plain HTTP; none of them touch the
// catalog or the archive.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"imagegen/internal/models"
)

var (
	// ErrUnknownModel indicates a model ID absent from the registry.
	ErrUnknownModel = errors.New("unknown model")

	// ErrProviderUnconfigured indicates the model's backend has no credentials
	// or endpoint configured.
	ErrProviderUnconfigured = errors.New("provider not configured")
)

// Request carries everything a backend needs for one generation.
type Request struct {
	Model          string
	Prompt         string
	NegativePrompt string
	Width          *int64
	Height         *int64
	// ReferencePaths are archived reference images on the local filesystem.
	ReferencePaths []string
}

// Result is a successful generation before archival.
type Result struct {
	ImageData []byte
	Seed      *string
	// ActualCostUSD is set only when the backend reports usage; otherwise the
	// registry estimate stands.
	ActualCostUSD *float64
}

// Generator is one inference backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Dispatcher routes requests to the backend owning the requested model.
type Dispatcher struct {
	generators map[models.Provider]Generator
	logger     *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{generators: make(map[models.Provider]Generator), logger: logger}
}

// Register installs a backend for a provider identity.
func (d *Dispatcher) Register(p models.Provider, g Generator) {
	d.generators[p] = g
}

// Generate resolves the model's provider and forwards the request.
func (d *Dispatcher) Generate(ctx context.Context, req Request) (*Result, error) {
	p, ok := models.ProviderForModel(req.Model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, req.Model)
	}
	g, ok := d.generators[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnconfigured, p)
	}

	start := time.Now()
	result, err := g.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	d.logger.Info("generation finished",
		"model", req.Model, "provider", string(p),
		"bytes", len(result.ImageData), "elapsed", time.Since(start))
	return result, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Minute}
}

// drainError reads a non-2xx response body for the error message, capped so a
// misbehaving backend cannot balloon logs.
func drainError(resp *http.Response) string {
	buf := make([]byte, 2048)
	n, _ := resp.Body.Read(buf)
	return string(buf[:n])
}
