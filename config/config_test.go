package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/timzifer/gpioline/lineconf"
)

func writeProfile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return path
}

func TestLoadYAMLProfile(t *testing.T) {
	path := writeProfile(t, "profile.yaml", `name: relay-bank
request:
  consumer: relay-bank
  offsets: [4, 5, 6, 7]
  event_buffer_size: 32
defaults:
  direction: input
  bias: pull-up
  debounce_period: 5ms
overrides:
  - lines: [6]
    direction: output
    output_value: active
`)

	profile, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if profile.Name != "relay-bank" {
		t.Fatalf("name = %q", profile.Name)
	}
	if profile.Request.EventBufferSize != 32 {
		t.Fatalf("event buffer size = %d", profile.Request.EventBufferSize)
	}
	if profile.Defaults.DebouncePeriod.Duration != 5*time.Millisecond {
		t.Fatalf("debounce = %v", profile.Defaults.DebouncePeriod.Duration)
	}

	cfg, err := profile.Apply()
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := cfg.DirectionDefault(); got != lineconf.DirectionInput {
		t.Fatalf("direction default = %q", got)
	}
	if got := cfg.BiasDefault(); got != lineconf.BiasPullUp {
		t.Fatalf("bias default = %q", got)
	}
	if got := cfg.DirectionForLine(6); got != lineconf.DirectionOutput {
		t.Fatalf("line 6 direction = %q", got)
	}
	if got := cfg.OutputValueForLine(6); got != lineconf.ValueActive {
		t.Fatalf("line 6 output = %q", got)
	}
	// Unlisted fields stay inherited.
	if cfg.BiasIsOverridden(6) {
		t.Fatalf("bias must not be overridden for line 6")
	}

	if _, err := cfg.Compile(profile.Request.Offsets); err != nil {
		t.Fatalf("compile: %v", err)
	}
}

func TestMatchExpressionSelectsRequestOffsets(t *testing.T) {
	path := writeProfile(t, "profile.yaml", `request:
  offsets: [0, 1, 2, 3, 4, 5]
overrides:
  - match: "offset % 2 == 0"
    edge: both
`)

	profile, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg, err := profile.Apply()
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	for _, offset := range []uint32{0, 2, 4} {
		if !cfg.EdgeIsOverridden(offset) {
			t.Fatalf("offset %d must carry the edge override", offset)
		}
	}
	for _, offset := range []uint32{1, 3, 5} {
		if cfg.EdgeIsOverridden(offset) {
			t.Fatalf("offset %d must not carry the edge override", offset)
		}
	}
}

func TestLoadCUEProfile(t *testing.T) {
	path := writeProfile(t, "profile.cue", `name: "sensor-array"
request: {
	consumer: "sensor-array"
	offsets: [10, 11]
}
defaults: {
	direction: "input"
	edge:      "rising"
}
`)

	profile, err := Load(path)
	if err != nil {
		t.Fatalf("load cue: %v", err)
	}
	if profile.Name != "sensor-array" {
		t.Fatalf("name = %q", profile.Name)
	}
	cfg, err := profile.Apply()
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := cfg.EdgeDefault(); got != lineconf.EdgeRising {
		t.Fatalf("edge default = %q", got)
	}
}

func TestValidateRejectsSelectorlessOverride(t *testing.T) {
	path := writeProfile(t, "profile.yaml", `overrides:
  - direction: output
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "selects no lines") {
		t.Fatalf("expected selector error, got %v", err)
	}
}

func TestValidateRejectsBadMatch(t *testing.T) {
	path := writeProfile(t, "profile.yaml", `overrides:
  - match: "offset +"
    direction: output
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected match compile error")
	}
}

func TestValidateRejectsDuplicateOffsets(t *testing.T) {
	path := writeProfile(t, "profile.yaml", `request:
  offsets: [1, 1]
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected duplicate offset error")
	}
}

func TestDurationParseErrors(t *testing.T) {
	path := writeProfile(t, "profile.yaml", `defaults:
  debounce_period: quick
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected duration parse error")
	}
}

func TestOverlayRegistry(t *testing.T) {
	ResetOverlaysForTest()
	t.Cleanup(ResetOverlaysForTest)

	if err := RegisterOverlayString("builtin.cue", `name: "builtin"`); err != nil {
		t.Fatalf("register overlay: %v", err)
	}
	if err := RegisterOverlayString("builtin.cue", `name: "other"`); err == nil {
		t.Fatalf("expected duplicate overlay error")
	}
	resolved := ResolveOverlays("/profiles")
	if len(resolved) != 1 {
		t.Fatalf("resolved overlays = %d, want 1", len(resolved))
	}
	if _, ok := resolved[filepath.Join("/profiles", "builtin.cue")]; !ok {
		t.Fatalf("overlay path not resolved: %v", resolved)
	}
}

func TestLoadResolvesRegisteredOverlay(t *testing.T) {
	ResetOverlaysForTest()
	t.Cleanup(ResetOverlaysForTest)

	if err := RegisterOverlayString("virtual.cue", `name: "virtual"
request: offsets: [2, 3]
defaults: bias: "pull-down"
`); err != nil {
		t.Fatalf("register overlay: %v", err)
	}

	// The path only exists in the overlay registry, not on disk.
	path := filepath.Join(t.TempDir(), "virtual.cue")
	profile, err := Load(path)
	if err != nil {
		t.Fatalf("load overlay profile: %v", err)
	}
	if profile.Name != "virtual" {
		t.Fatalf("name = %q", profile.Name)
	}
	cfg, err := profile.Apply()
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := cfg.BiasDefault(); got != lineconf.BiasPullDown {
		t.Fatalf("bias default = %q", got)
	}
}
