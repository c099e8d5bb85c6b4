package lineconf

// Direction controls whether a line is driven by the controller or sampled
// from the hardware.
type Direction string

const (
	// DirectionAsIs keeps whatever direction the line currently has.
	DirectionAsIs Direction = "as-is"
	// DirectionInput configures the line for reading.
	DirectionInput Direction = "input"
	// DirectionOutput configures the line for driving.
	DirectionOutput Direction = "output"
)

// Edge selects which signal transitions generate events on a line.
type Edge string

const (
	// EdgeNone disables edge detection.
	EdgeNone Edge = "none"
	// EdgeRising reports inactive-to-active transitions.
	EdgeRising Edge = "rising"
	// EdgeFalling reports active-to-inactive transitions.
	EdgeFalling Edge = "falling"
	// EdgeBoth reports transitions in both directions.
	EdgeBoth Edge = "both"
)

// Bias selects the internal pull resistor configuration of a line.
type Bias string

const (
	// BiasAsIs keeps the current bias setting.
	BiasAsIs Bias = "as-is"
	// BiasDisabled disconnects the internal pull resistors.
	BiasDisabled Bias = "disabled"
	// BiasPullUp enables the internal pull-up.
	BiasPullUp Bias = "pull-up"
	// BiasPullDown enables the internal pull-down.
	BiasPullDown Bias = "pull-down"
)

// Drive selects the output driver topology of a line.
type Drive string

const (
	// DrivePushPull drives the line both high and low.
	DrivePushPull Drive = "push-pull"
	// DriveOpenDrain only drives the line low.
	DriveOpenDrain Drive = "open-drain"
	// DriveOpenSource only drives the line high.
	DriveOpenSource Drive = "open-source"
)

// EventClock selects the clock used to timestamp edge events.
type EventClock string

const (
	// ClockMonotonic timestamps events with the monotonic system clock.
	ClockMonotonic EventClock = "monotonic"
	// ClockRealtime timestamps events with the wall clock.
	ClockRealtime EventClock = "realtime"
)

// Value is the logical level of a line, already adjusted for active-sense.
type Value string

const (
	// ValueInactive is the logical low level.
	ValueInactive Value = "inactive"
	// ValueActive is the logical high level.
	ValueActive Value = "active"
)

// The normalisers below implement the infallible-setter contract: an
// unrecognised raw value clamps to the field's fallback instead of failing.
// Capacity limits are the only errors this package ever reports.

func normalizeDirection(d Direction) Direction {
	switch d {
	case DirectionAsIs, DirectionInput, DirectionOutput:
		return d
	default:
		return DirectionAsIs
	}
}

func normalizeEdge(e Edge) Edge {
	switch e {
	case EdgeNone, EdgeRising, EdgeFalling, EdgeBoth:
		return e
	default:
		return EdgeNone
	}
}

func normalizeBias(b Bias) Bias {
	switch b {
	case BiasAsIs, BiasDisabled, BiasPullUp, BiasPullDown:
		return b
	default:
		return BiasAsIs
	}
}

func normalizeDrive(d Drive) Drive {
	switch d {
	case DrivePushPull, DriveOpenDrain, DriveOpenSource:
		return d
	default:
		return DrivePushPull
	}
}

func normalizeClock(c EventClock) EventClock {
	switch c {
	case ClockMonotonic, ClockRealtime:
		return c
	default:
		return ClockMonotonic
	}
}

func normalizeValue(v Value) Value {
	if v == ValueActive {
		return ValueActive
	}
	return ValueInactive
}
