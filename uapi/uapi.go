// Package uapi translates compiled line configurations into the record
// shapes the line controller transport consumes: a packed 64-bit flag word
// for the defaults plus a bounded list of masked attributes. The binary
// serialisation of these records is owned by the transport and out of scope
// here.
package uapi

import (
	"fmt"
	"math"
	"time"

	"github.com/timzifer/gpioline/lineconf"
)

// Line flag bits of the controller protocol.
const (
	FlagActiveLow uint64 = 1 << iota
	FlagInput
	FlagOutput
	FlagEdgeRising
	FlagEdgeFalling
	FlagOpenDrain
	FlagOpenSource
	FlagBiasPullUp
	FlagBiasPullDown
	FlagBiasDisabled
	FlagEventClockRealtime
)

// AttrID identifies the attribute type of a LineAttribute.
type AttrID uint32

const (
	// AttrIDFlags marks a packed flag attribute.
	AttrIDFlags AttrID = iota + 1
	// AttrIDOutputValues marks an output level attribute.
	AttrIDOutputValues
	// AttrIDDebounce marks a debounce period attribute.
	AttrIDDebounce
)

// LineAttribute is one attribute value. The field selected by ID is
// meaningful, the others are zero.
type LineAttribute struct {
	ID AttrID
	// Flags is the packed flag word for AttrIDFlags.
	Flags uint64
	// Values carries one output level bit per line for AttrIDOutputValues.
	Values uint64
	// DebouncePeriodMicros is the debounce period for AttrIDDebounce.
	DebouncePeriodMicros uint32
}

// ConfigAttribute pairs an attribute with the mask of line indices it
// applies to.
type ConfigAttribute struct {
	Attr LineAttribute
	Mask uint64
}

// LineConfig is the request-level configuration record: default flags for
// every requested line plus masked attribute overrides.
type LineConfig struct {
	Flags uint64
	Attrs []ConfigAttribute
}

// FlagsForConfig packs the flag-category fields of a resolved record into
// the protocol flag word. Edge detection implies input and strips any output
// flag; the controller rejects edge detection on driven lines.
func FlagsForConfig(base lineconf.BaseConfig) uint64 {
	var flags uint64

	switch base.Direction {
	case lineconf.DirectionInput:
		flags |= FlagInput
	case lineconf.DirectionOutput:
		flags |= FlagOutput
	}

	switch base.Edge {
	case lineconf.EdgeRising:
		flags |= FlagEdgeRising | FlagInput
		flags &^= FlagOutput
	case lineconf.EdgeFalling:
		flags |= FlagEdgeFalling | FlagInput
		flags &^= FlagOutput
	case lineconf.EdgeBoth:
		flags |= FlagEdgeRising | FlagEdgeFalling | FlagInput
		flags &^= FlagOutput
	}

	switch base.Drive {
	case lineconf.DriveOpenDrain:
		flags |= FlagOpenDrain
	case lineconf.DriveOpenSource:
		flags |= FlagOpenSource
	}

	switch base.Bias {
	case lineconf.BiasDisabled:
		flags |= FlagBiasDisabled
	case lineconf.BiasPullUp:
		flags |= FlagBiasPullUp
	case lineconf.BiasPullDown:
		flags |= FlagBiasPullDown
	}

	if base.ActiveLow {
		flags |= FlagActiveLow
	}
	if base.EventClock == lineconf.ClockRealtime {
		flags |= FlagEventClockRealtime
	}

	return flags
}

// debounceMicros converts a debounce period to the 32-bit microsecond field
// of the protocol, saturating at the field limit instead of wrapping.
func debounceMicros(period time.Duration) uint32 {
	micros := period.Microseconds()
	if micros < 0 {
		return 0
	}
	if micros > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(micros)
}

func attributeForGroup(group lineconf.AttributeGroup) (LineAttribute, error) {
	switch group.Kind {
	case lineconf.AttrFlags:
		return LineAttribute{ID: AttrIDFlags, Flags: FlagsForConfig(group.Flags)}, nil
	case lineconf.AttrDebounce:
		return LineAttribute{ID: AttrIDDebounce, DebouncePeriodMicros: debounceMicros(group.Debounce)}, nil
	case lineconf.AttrOutputValues:
		return LineAttribute{ID: AttrIDOutputValues, Values: uint64(group.Values)}, nil
	default:
		return LineAttribute{}, fmt.Errorf("unknown attribute kind %q", group.Kind)
	}
}

// BuildLineConfig translates a compiled configuration into the transport
// record. The attribute order of the compilation is preserved.
func BuildLineConfig(cc *lineconf.CompiledConfig) (LineConfig, error) {
	if cc == nil {
		return LineConfig{}, fmt.Errorf("compiled config must not be nil")
	}
	if len(cc.Groups) > lineconf.MaxAttrSlots {
		return LineConfig{}, fmt.Errorf("compiled config carries %d attributes, limit is %d", len(cc.Groups), lineconf.MaxAttrSlots)
	}

	out := LineConfig{Flags: FlagsForConfig(cc.Defaults)}
	for _, group := range cc.Groups {
		attr, err := attributeForGroup(group)
		if err != nil {
			return LineConfig{}, err
		}
		out.Attrs = append(out.Attrs, ConfigAttribute{Attr: attr, Mask: uint64(group.Mask)})
	}
	return out, nil
}
