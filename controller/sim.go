package controller

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/timzifer/gpioline/lineconf"
	"github.com/timzifer/gpioline/telemetry"
	"github.com/timzifer/gpioline/uapi"
)

// LineState is the applied configuration of one simulated line, as the
// controller would see it after a request.
type LineState struct {
	Flags                uint64
	DebouncePeriodMicros uint32
	OutputValue          bool
}

// Sim is an in-memory line controller. It accepts compiled configurations
// the same way a real transport would and keeps the resulting per-line state
// inspectable, which makes it the device double for tests and the profile
// inspection tool.
//
// A Sim is safe for concurrent use; it models a shared device.
type Sim struct {
	numLines  uint32
	collector telemetry.Collector

	mu     sync.Mutex
	owners map[uint32]*simRequest
	lines  map[uint32]LineState
}

// NewSim creates a simulated controller exposing numLines lines. A nil
// collector disables telemetry.
func NewSim(numLines uint32, collector telemetry.Collector) *Sim {
	if collector == nil {
		collector = telemetry.Noop()
	}
	return &Sim{
		numLines:  numLines,
		collector: collector,
		owners:    make(map[uint32]*simRequest),
		lines:     make(map[uint32]LineState),
	}
}

// NumLines returns the number of lines the simulated device exposes.
func (s *Sim) NumLines() uint32 {
	return s.numLines
}

// LineState returns the applied state of one line and whether the line is
// currently held by a request.
func (s *Sim) LineState(offset uint32) (LineState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.lines[offset]
	return state, ok
}

func (s *Sim) validateOffsets(offsets []uint32) error {
	if len(offsets) == 0 {
		return ErrNoLines
	}
	if len(offsets) > lineconf.MaxLinesPerRequest {
		return fmt.Errorf("%w: %d lines, limit is %d", ErrTooManyLines, len(offsets), lineconf.MaxLinesPerRequest)
	}
	seen := make(map[uint32]struct{}, len(offsets))
	for _, offset := range offsets {
		if offset >= s.numLines {
			return fmt.Errorf("offset %d out of range, device has %d lines", offset, s.numLines)
		}
		if _, dup := seen[offset]; dup {
			return fmt.Errorf("offset %d requested twice", offset)
		}
		seen[offset] = struct{}{}
	}
	return nil
}

// compile runs the compiler and the wire translation, recording telemetry on
// the way. Compiler errors pass through unchanged so callers can distinguish
// them from transport failures.
func (s *Sim) compile(cfg *lineconf.Config, offsets []uint32, consumer string) (uapi.LineConfig, error) {
	compiled, err := cfg.Compile(offsets)
	if err != nil {
		s.collector.IncCompileError(consumer, compileErrorKind(err))
		return uapi.LineConfig{}, err
	}
	wire, err := uapi.BuildLineConfig(compiled)
	if err != nil {
		return uapi.LineConfig{}, fmt.Errorf("translate line config: %w", err)
	}
	s.collector.IncCompile(consumer)
	s.collector.SetOverridesInUse(consumer, cfg.NumOverrides())
	s.collector.SetAttrSlotsUsed(consumer, len(compiled.Groups))
	return wire, nil
}

func compileErrorKind(err error) string {
	switch {
	case errors.Is(err, lineconf.ErrTooComplex):
		return "too-complex"
	case errors.Is(err, lineconf.ErrAttributeOverflow):
		return "overflow"
	default:
		return "other"
	}
}

// applyLineConfig replays the wire record the way the device would: every
// line starts from the default flag word, then the masked attributes
// override it in emission order.
func (s *Sim) applyLineConfig(wire uapi.LineConfig, offsets []uint32) {
	for index, offset := range offsets {
		state := LineState{Flags: wire.Flags}
		for _, attr := range wire.Attrs {
			if attr.Mask&(1<<index) == 0 {
				continue
			}
			switch attr.Attr.ID {
			case uapi.AttrIDFlags:
				state.Flags = attr.Attr.Flags
			case uapi.AttrIDDebounce:
				state.DebouncePeriodMicros = attr.Attr.DebouncePeriodMicros
			case uapi.AttrIDOutputValues:
				state.OutputValue = attr.Attr.Values&(1<<index) != 0
			}
		}
		s.lines[offset] = state
	}
}

// RequestLines compiles the configuration for the given offsets and claims
// the lines.
func (s *Sim) RequestLines(cfg *lineconf.Config, offsets []uint32, opts RequestOptions, logger zerolog.Logger) (LineRequest, error) {
	if cfg == nil {
		return nil, errors.New("line config must not be nil")
	}
	if err := s.validateOffsets(offsets); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, offset := range offsets {
		if owner := s.owners[offset]; owner != nil {
			return nil, fmt.Errorf("%w: offset %d held by %q", ErrLineBusy, offset, owner.consumer)
		}
	}

	wire, err := s.compile(cfg, offsets, opts.Consumer)
	if err != nil {
		return nil, err
	}

	request := &simRequest{
		sim:      s,
		offsets:  append([]uint32(nil), offsets...),
		consumer: opts.Consumer,
	}
	for _, offset := range offsets {
		s.owners[offset] = request
	}
	s.applyLineConfig(wire, offsets)

	logger.Debug().
		Str("consumer", opts.Consumer).
		Int("lines", len(offsets)).
		Int("attrs", len(wire.Attrs)).
		Int("event_buffer_size", opts.EventBufferSize).
		Msg("lines requested")

	return request, nil
}

type simRequest struct {
	sim      *Sim
	offsets  []uint32
	consumer string

	mu       sync.Mutex
	released bool
}

func (r *simRequest) Offsets() []uint32 {
	return append([]uint32(nil), r.offsets...)
}

func (r *simRequest) Consumer() string {
	return r.consumer
}

// Reconfigure recompiles the configuration against the held offsets and
// applies the result in place.
func (r *simRequest) Reconfigure(cfg *lineconf.Config, logger zerolog.Logger) error {
	if cfg == nil {
		return errors.New("line config must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return ErrReleased
	}

	r.sim.mu.Lock()
	defer r.sim.mu.Unlock()

	wire, err := r.sim.compile(cfg, r.offsets, r.consumer)
	if err != nil {
		return err
	}
	r.sim.applyLineConfig(wire, r.offsets)

	logger.Debug().
		Str("consumer", r.consumer).
		Int("lines", len(r.offsets)).
		Int("attrs", len(wire.Attrs)).
		Msg("lines reconfigured")

	return nil
}

// Release frees the held lines. Releasing twice is a no-op.
func (r *simRequest) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.released = true

	r.sim.mu.Lock()
	defer r.sim.mu.Unlock()
	for _, offset := range r.offsets {
		delete(r.sim.owners, offset)
		delete(r.sim.lines, offset)
	}
}
