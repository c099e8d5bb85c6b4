// Package config loads declarative line profiles: the global defaults,
// per-line overrides and request settings that feed a lineconf.Config.
// Profiles are plain YAML or CUE documents.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"github.com/timzifer/gpioline/lineconf"
)

// Duration wraps time.Duration to support unmarshalling from strings like
// "5ms" or "1s" in both YAML and CUE documents.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5ms" or "1s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return errors.New("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	return d.parse(raw)
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// UnmarshalJSON parses duration strings; CUE decoding goes through JSON.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	return d.parse(raw)
}

// MarshalJSON renders the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) parse(raw string) error {
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// DefaultsConfig holds the global default field values of a profile. Empty
// fields keep the built-in fallbacks.
type DefaultsConfig struct {
	Direction      string   `yaml:"direction,omitempty" json:"direction,omitempty"`
	Edge           string   `yaml:"edge,omitempty" json:"edge,omitempty"`
	Bias           string   `yaml:"bias,omitempty" json:"bias,omitempty"`
	Drive          string   `yaml:"drive,omitempty" json:"drive,omitempty"`
	ActiveLow      bool     `yaml:"active_low,omitempty" json:"active_low,omitempty"`
	EventClock     string   `yaml:"event_clock,omitempty" json:"event_clock,omitempty"`
	DebouncePeriod Duration `yaml:"debounce_period,omitempty" json:"debounce_period,omitempty"`
	OutputValue    string   `yaml:"output_value,omitempty" json:"output_value,omitempty"`
}

// OverrideConfig describes one override block. It applies to the offsets
// listed in Lines plus every request offset matched by the Match expression.
// Only the fields present in the document are overridden.
type OverrideConfig struct {
	Lines []uint32 `yaml:"lines,omitempty" json:"lines,omitempty"`
	Match string   `yaml:"match,omitempty" json:"match,omitempty"`

	Direction      *string   `yaml:"direction,omitempty" json:"direction,omitempty"`
	Edge           *string   `yaml:"edge,omitempty" json:"edge,omitempty"`
	Bias           *string   `yaml:"bias,omitempty" json:"bias,omitempty"`
	Drive          *string   `yaml:"drive,omitempty" json:"drive,omitempty"`
	ActiveLow      *bool     `yaml:"active_low,omitempty" json:"active_low,omitempty"`
	EventClock     *string   `yaml:"event_clock,omitempty" json:"event_clock,omitempty"`
	DebouncePeriod *Duration `yaml:"debounce_period,omitempty" json:"debounce_period,omitempty"`
	OutputValue    *string   `yaml:"output_value,omitempty" json:"output_value,omitempty"`
}

// RequestConfig carries the transport-facing request settings of a profile.
type RequestConfig struct {
	Consumer        string   `yaml:"consumer,omitempty" json:"consumer,omitempty"`
	Offsets         []uint32 `yaml:"offsets,omitempty" json:"offsets,omitempty"`
	EventBufferSize int      `yaml:"event_buffer_size,omitempty" json:"event_buffer_size,omitempty"`
}

// LokiConfig enables shipping tool logs to a Loki endpoint.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Labels  map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// LoggingConfig controls the tool logger.
type LoggingConfig struct {
	Level  string     `yaml:"level,omitempty" json:"level,omitempty"`
	Format string     `yaml:"format,omitempty" json:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki,omitempty" json:"loki,omitempty"`
}

// Profile is one loadable line profile document.
type Profile struct {
	Name        string           `yaml:"name,omitempty" json:"name,omitempty"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Request     RequestConfig    `yaml:"request,omitempty" json:"request,omitempty"`
	Defaults    DefaultsConfig   `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Overrides   []OverrideConfig `yaml:"overrides,omitempty" json:"overrides,omitempty"`
	Logging     LoggingConfig    `yaml:"logging,omitempty" json:"logging,omitempty"`
}

// Load reads a profile from disk. Files ending in .cue are evaluated as CUE,
// everything else is parsed as YAML.
func Load(path string) (*Profile, error) {
	if path == "" {
		return nil, errors.New("profile path must not be empty")
	}
	var (
		profile *Profile
		err     error
	)
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		profile, err = loadCUE(path)
	} else {
		profile, err = loadYAML(path)
	}
	if err != nil {
		return nil, err
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return profile, nil
}

func loadYAML(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	var profile Profile
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile %s: %w", path, err)
	}
	return &profile, nil
}

func loadCUE(path string) (*Profile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve profile path: %w", err)
	}
	dir := filepath.Dir(abs)
	instances := load.Instances([]string{abs}, &load.Config{
		Dir:     dir,
		Overlay: ResolveOverlays(dir),
	})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no cue instance found for %s", path)
	}
	instance := instances[0]
	if instance.Err != nil {
		return nil, fmt.Errorf("load cue profile %s: %w", path, instance.Err)
	}
	value := cuecontext.New().BuildInstance(instance)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("build cue profile %s: %w", path, err)
	}
	var profile Profile
	if err := value.Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode cue profile %s: %w", path, err)
	}
	return &profile, nil
}

// Validate checks the profile invariants that the infallible lineconf
// setters cannot report: request bounds and malformed override selectors.
func (p *Profile) Validate() error {
	if len(p.Request.Offsets) > lineconf.MaxLinesPerRequest {
		return fmt.Errorf("request lists %d offsets, limit is %d", len(p.Request.Offsets), lineconf.MaxLinesPerRequest)
	}
	seen := make(map[uint32]struct{}, len(p.Request.Offsets))
	for _, offset := range p.Request.Offsets {
		if _, dup := seen[offset]; dup {
			return fmt.Errorf("request offset %d listed twice", offset)
		}
		seen[offset] = struct{}{}
	}
	for i, override := range p.Overrides {
		if len(override.Lines) == 0 && override.Match == "" {
			return fmt.Errorf("override %d selects no lines: set lines or match", i)
		}
		if override.Match != "" {
			if _, err := compileMatch(override.Match); err != nil {
				return fmt.Errorf("override %d: %w", i, err)
			}
		}
	}
	return nil
}

func matchEnv(offset uint32, index int) map[string]interface{} {
	return map[string]interface{}{
		"offset": int(offset),
		"index":  index,
	}
}

func compileMatch(source string) (*vm.Program, error) {
	program, err := expr.Compile(source, expr.Env(matchEnv(0, 0)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile match %q: %w", source, err)
	}
	return program, nil
}

func (o *OverrideConfig) targets(requestOffsets []uint32) ([]uint32, error) {
	targets := append([]uint32(nil), o.Lines...)
	if o.Match == "" {
		return targets, nil
	}
	program, err := compileMatch(o.Match)
	if err != nil {
		return nil, err
	}
	listed := make(map[uint32]struct{}, len(targets))
	for _, offset := range targets {
		listed[offset] = struct{}{}
	}
	for index, offset := range requestOffsets {
		result, err := expr.Run(program, matchEnv(offset, index))
		if err != nil {
			return nil, fmt.Errorf("evaluate match %q for offset %d: %w", o.Match, offset, err)
		}
		matched, ok := result.(bool)
		if !ok {
			return nil, fmt.Errorf("match %q did not yield a boolean for offset %d", o.Match, offset)
		}
		if !matched {
			continue
		}
		if _, dup := listed[offset]; dup {
			continue
		}
		listed[offset] = struct{}{}
		targets = append(targets, offset)
	}
	return targets, nil
}

func (o *OverrideConfig) apply(cfg *lineconf.Config, offset uint32) error {
	if o.Direction != nil {
		if err := cfg.SetDirectionOverride(offset, lineconf.Direction(*o.Direction)); err != nil {
			return err
		}
	}
	if o.Edge != nil {
		if err := cfg.SetEdgeOverride(offset, lineconf.Edge(*o.Edge)); err != nil {
			return err
		}
	}
	if o.Bias != nil {
		if err := cfg.SetBiasOverride(offset, lineconf.Bias(*o.Bias)); err != nil {
			return err
		}
	}
	if o.Drive != nil {
		if err := cfg.SetDriveOverride(offset, lineconf.Drive(*o.Drive)); err != nil {
			return err
		}
	}
	if o.ActiveLow != nil {
		if err := cfg.SetActiveLowOverride(offset, *o.ActiveLow); err != nil {
			return err
		}
	}
	if o.EventClock != nil {
		if err := cfg.SetEventClockOverride(offset, lineconf.EventClock(*o.EventClock)); err != nil {
			return err
		}
	}
	if o.DebouncePeriod != nil {
		if err := cfg.SetDebouncePeriodOverride(offset, o.DebouncePeriod.Duration); err != nil {
			return err
		}
	}
	if o.OutputValue != nil {
		if err := cfg.SetOutputValueOverride(offset, lineconf.Value(*o.OutputValue)); err != nil {
			return err
		}
	}
	return nil
}

// Apply materialises the profile into a fresh line configuration. Match
// expressions select from the request offsets; explicitly listed lines are
// applied even when they are outside the request, which pre-stages them for
// later requests.
func (p *Profile) Apply() (*lineconf.Config, error) {
	cfg := lineconf.New()

	cfg.SetDirectionDefault(lineconf.Direction(p.Defaults.Direction))
	cfg.SetEdgeDefault(lineconf.Edge(p.Defaults.Edge))
	cfg.SetBiasDefault(lineconf.Bias(p.Defaults.Bias))
	cfg.SetDriveDefault(lineconf.Drive(p.Defaults.Drive))
	cfg.SetActiveLowDefault(p.Defaults.ActiveLow)
	cfg.SetEventClockDefault(lineconf.EventClock(p.Defaults.EventClock))
	cfg.SetDebouncePeriodDefault(p.Defaults.DebouncePeriod.Duration)
	cfg.SetOutputValueDefault(lineconf.Value(p.Defaults.OutputValue))

	for i := range p.Overrides {
		override := &p.Overrides[i]
		targets, err := override.targets(p.Request.Offsets)
		if err != nil {
			return nil, err
		}
		for _, offset := range targets {
			if err := override.apply(cfg, offset); err != nil {
				return nil, fmt.Errorf("override for line %d: %w", offset, err)
			}
		}
	}

	return cfg, nil
}
