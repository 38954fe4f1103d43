package embedding

import (
	"sync"

	"promptarena/logging"
)

// Handle owns a lazily built Encoder. The first call to Encoder constructs
// it; every later call returns the same instance or the same error. A Handle
// is passed to the components that need it rather than held globally.
type Handle struct {
	build func() (Encoder, error)

	once    sync.Once
	encoder Encoder
	err     error
}

// NewHandle wraps a constructor. Nothing is loaded until first use.
func NewHandle(build func() (Encoder, error)) *Handle {
	return &Handle{build: build}
}

// NewCLIPHandle returns a Handle that loads a CLIPModel from cfg on demand.
func NewCLIPHandle(cfg Config) *Handle {
	return NewHandle(func() (Encoder, error) {
		logging.LogInfo("Loading CLIP model from %s and %s", cfg.TextModelPath, cfg.VisionModelPath)
		m, err := NewCLIPModel(cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	})
}

// DisabledHandle returns a Handle whose Encoder always fails with ErrDisabled.
func DisabledHandle() *Handle {
	return NewHandle(func() (Encoder, error) {
		return nil, ErrDisabled
	})
}

// Encoder returns the shared encoder, building it on first use.
func (h *Handle) Encoder() (Encoder, error) {
	h.once.Do(func() {
		h.encoder, h.err = h.build()
		if h.err != nil {
			logging.LogWarning("Embedding model unavailable: %v", h.err)
		}
	})
	return h.encoder, h.err
}

// Close releases the encoder if it was ever built
func (h *Handle) Close() error {
	h.once.Do(func() {
		// never used, make later calls fail instead of loading
		h.err = ErrDisabled
	})
	if h.encoder == nil {
		return nil
	}
	return h.encoder.Close()
}
