package uapi

import (
	"math"
	"testing"
	"time"

	"github.com/timzifer/gpioline/lineconf"
)

func TestFlagsForConfigPacksFields(t *testing.T) {
	base := lineconf.BaseConfig{
		Direction:  lineconf.DirectionOutput,
		Edge:       lineconf.EdgeNone,
		Bias:       lineconf.BiasPullUp,
		Drive:      lineconf.DriveOpenDrain,
		ActiveLow:  true,
		EventClock: lineconf.ClockRealtime,
	}
	flags := FlagsForConfig(base)
	want := FlagOutput | FlagBiasPullUp | FlagOpenDrain | FlagActiveLow | FlagEventClockRealtime
	if flags != want {
		t.Fatalf("flags = %b, want %b", flags, want)
	}
}

func TestFlagsForConfigEdgeForcesInput(t *testing.T) {
	base := lineconf.BaseConfig{
		Direction: lineconf.DirectionOutput,
		Edge:      lineconf.EdgeBoth,
	}
	flags := FlagsForConfig(base)
	if flags&FlagOutput != 0 {
		t.Fatalf("output flag must be stripped with edge detection, got %b", flags)
	}
	if flags&FlagInput == 0 {
		t.Fatalf("edge detection must imply input, got %b", flags)
	}
	if flags&(FlagEdgeRising|FlagEdgeFalling) != FlagEdgeRising|FlagEdgeFalling {
		t.Fatalf("both edges expected, got %b", flags)
	}
}

func TestBuildLineConfig(t *testing.T) {
	cfg := lineconf.New()
	cfg.SetDirectionDefault(lineconf.DirectionInput)
	cfg.SetDebouncePeriodDefault(10 * time.Millisecond)
	if err := cfg.SetDirectionOverride(2, lineconf.DirectionOutput); err != nil {
		t.Fatalf("set direction: %v", err)
	}
	if err := cfg.SetOutputValueOverride(2, lineconf.ValueActive); err != nil {
		t.Fatalf("set output value: %v", err)
	}

	cc, err := cfg.Compile([]uint32{0, 2})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	wire, err := BuildLineConfig(cc)
	if err != nil {
		t.Fatalf("build line config: %v", err)
	}

	if wire.Flags&FlagInput == 0 {
		t.Fatalf("default flags must carry input, got %b", wire.Flags)
	}
	if len(wire.Attrs) != len(cc.Groups) {
		t.Fatalf("attrs = %d, want %d", len(wire.Attrs), len(cc.Groups))
	}

	var sawDebounce, sawOutput, sawFlags bool
	for _, attr := range wire.Attrs {
		switch attr.Attr.ID {
		case AttrIDDebounce:
			sawDebounce = true
			if attr.Attr.DebouncePeriodMicros != 10000 {
				t.Fatalf("debounce micros = %d, want 10000", attr.Attr.DebouncePeriodMicros)
			}
		case AttrIDOutputValues:
			sawOutput = true
			if attr.Mask != 0b10 || attr.Attr.Values != 0b10 {
				t.Fatalf("output attr = %+v", attr)
			}
		case AttrIDFlags:
			sawFlags = true
			if attr.Attr.Flags&FlagOutput == 0 {
				t.Fatalf("override flags must carry output, got %b", attr.Attr.Flags)
			}
		}
	}
	if !sawDebounce || !sawOutput || !sawFlags {
		t.Fatalf("missing attribute kinds: debounce=%v output=%v flags=%v", sawDebounce, sawOutput, sawFlags)
	}
}

func TestDebounceMicrosSaturates(t *testing.T) {
	cfg := lineconf.New()
	cfg.SetDebouncePeriodDefault(2 * time.Hour)

	cc, err := cfg.Compile([]uint32{0})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	wire, err := BuildLineConfig(cc)
	if err != nil {
		t.Fatalf("build line config: %v", err)
	}

	var sawDebounce bool
	for _, attr := range wire.Attrs {
		if attr.Attr.ID != AttrIDDebounce {
			continue
		}
		sawDebounce = true
		if attr.Attr.DebouncePeriodMicros != math.MaxUint32 {
			t.Fatalf("debounce micros = %d, want saturation at %d", attr.Attr.DebouncePeriodMicros, uint32(math.MaxUint32))
		}
	}
	if !sawDebounce {
		t.Fatalf("debounce attribute missing: %+v", wire.Attrs)
	}

	if got := debounceMicros(-time.Second); got != 0 {
		t.Fatalf("negative debounce micros = %d, want 0", got)
	}
}

func TestBuildLineConfigNil(t *testing.T) {
	if _, err := BuildLineConfig(nil); err == nil {
		t.Fatalf("expected error for nil compiled config")
	}
}
