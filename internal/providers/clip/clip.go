// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package clip embeds images with a CLIP-style ONNX image encoder.
package clip

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/pdiddy/geolocate/internal/photo"
	"github.com/pdiddy/geolocate/pkg/types"
)

var envMu sync.Mutex

// initRuntime initializes the process-wide onnxruntime environment once.
func initRuntime(lib string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initializing onnxruntime: %w", err)
	}
	return nil
}

// Encoder runs the image encoder. The session and its tensors are reused
// across calls, so Embed serializes inference.
type Encoder struct {
	mu      sync.Mutex
	cfg     types.EmbeddingConfig
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewEncoder loads the model at cfg.ModelPath.
func NewEncoder(cfg types.EmbeddingConfig) (*Encoder, error) {
	if cfg.InputSize < 1 || cfg.Dimension < 1 {
		return nil, fmt.Errorf("%w: embedding input size and dimension must be positive", types.ErrInvalidConfig)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: embedding model: %v", types.ErrInvalidConfig, err)
	}
	if err := initRuntime(cfg.RuntimeLibrary); err != nil {
		return nil, err
	}

	size := int64(cfg.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("creating input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.Dimension)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("creating output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("loading %s: %w", cfg.ModelPath, err)
	}
	return &Encoder{cfg: cfg, session: session, input: input, output: output}, nil
}

// Name identifies the model, for cache key namespaces.
func (e *Encoder) Name() string {
	return ModelName(e.cfg.ModelPath)
}

// ModelName derives a cache namespace from a model path.
func ModelName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Embed returns the raw image embedding of img. The scorer normalizes it.
func (e *Encoder) Embed(ctx context.Context, img types.Image) ([]float64, error) {
	m, err := photo.Decode(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrProviderFailure, err)
	}
	pixels := Preprocess(m, e.cfg.InputSize)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	copy(e.input.GetData(), pixels)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: running image encoder: %v", types.ErrProviderFailure, err)
	}
	out := e.output.GetData()
	vec := make([]float64, len(out))
	for i, v := range out {
		vec[i] = float64(v)
	}
	return vec, nil
}

// Close releases the session and its tensors.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, destroy := range []func() error{e.session.Destroy, e.input.Destroy, e.output.Destroy} {
		if err := destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
