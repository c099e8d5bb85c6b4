package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"cuelang.org/go/cue/load"
)

// overlayRegistry holds virtual CUE profiles keyed by their relative path.
// Load resolves registered paths without touching disk, which lets tools
// ship built-in profiles compiled into the binary.
type overlayRegistry struct {
	mu      sync.RWMutex
	sources map[string]load.Source
}

var profileOverlays = &overlayRegistry{sources: make(map[string]load.Source)}

func (r *overlayRegistry) register(path string, src load.Source) error {
	normalized, err := normalizeOverlayPath(path)
	if err != nil {
		return err
	}
	if src == nil {
		return errors.New("overlay source must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[normalized]; exists {
		return fmt.Errorf("overlay %s already registered", normalized)
	}
	r.sources[normalized] = src
	return nil
}

func (r *overlayRegistry) resolve(baseDir string) map[string]load.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.sources) == 0 {
		return nil
	}
	resolved := make(map[string]load.Source, len(r.sources))
	for path, src := range r.sources {
		resolved[filepath.Join(baseDir, path)] = src
	}
	return resolved
}

func (r *overlayRegistry) reset() {
	r.mu.Lock()
	r.sources = make(map[string]load.Source)
	r.mu.Unlock()
}

func normalizeOverlayPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("overlay path must not be empty")
	}
	cleaned := filepath.Clean(trimmed)
	if cleaned == "." || cleaned == string(filepath.Separator) {
		return "", errors.New("overlay path must reference a file")
	}
	return cleaned, nil
}

// RegisterOverlay registers a virtual CUE profile under the given relative
// path. Registering the same path twice is an error.
func RegisterOverlay(path string, src load.Source) error {
	return profileOverlays.register(path, src)
}

// RegisterOverlayString registers a virtual CUE profile from raw source text.
func RegisterOverlayString(path, cue string) error {
	return RegisterOverlay(path, load.FromString(cue))
}

// ResolveOverlays returns the registered profiles rebased onto baseDir, in
// the shape load.Config expects.
func ResolveOverlays(baseDir string) map[string]load.Source {
	return profileOverlays.resolve(baseDir)
}

// ResetOverlaysForTest clears the overlay registry. This helper is intended
// for tests only.
func ResetOverlaysForTest() {
	profileOverlays.reset()
}
