package lineconf

import "time"

// LineMask is a bitset over request-local line indices: bit n refers to the
// n-th entry of the offset list a Config was compiled against, never to a raw
// hardware offset.
type LineMask uint64

func (m *LineMask) set(index int) {
	*m |= 1 << index
}

func (m *LineMask) assign(index int, on bool) {
	if on {
		*m |= 1 << index
	} else {
		*m &^= 1 << index
	}
}

// Has reports whether the bit for the given line index is set.
func (m LineMask) Has(index int) bool {
	return m&(1<<index) != 0
}

// Empty reports whether no bit is set.
func (m LineMask) Empty() bool {
	return m == 0
}

// Count returns the number of set bits.
func (m LineMask) Count() int {
	count := 0
	for v := uint64(m); v != 0; v &= v - 1 {
		count++
	}
	return count
}

// Indices returns the set line indices in ascending order.
func (m LineMask) Indices() []int {
	var indices []int
	for i := 0; i < 64; i++ {
		if m.Has(i) {
			indices = append(indices, i)
		}
	}
	return indices
}

func maskForLines(count int) LineMask {
	var mask LineMask
	for i := 0; i < count && i < MaxLinesPerRequest; i++ {
		mask.set(i)
	}
	return mask
}

// AttrKind identifies the wire attribute type an AttributeGroup resolves to.
type AttrKind string

const (
	// AttrFlags is the packed flag record covering direction, edge, bias,
	// drive, active-sense and event clock.
	AttrFlags AttrKind = "flags"
	// AttrDebounce is a debounce period attribute.
	AttrDebounce AttrKind = "debounce"
	// AttrOutputValues is the resolved output level attribute.
	AttrOutputValues AttrKind = "output-values"
)

// AttributeGroup applies one resolved value to a subset of the requested
// lines. Which of the value fields is meaningful depends on Kind.
type AttributeGroup struct {
	Kind AttrKind
	Mask LineMask

	// Flags is the default-merged field record for AttrFlags groups.
	Flags BaseConfig
	// Debounce is the period for AttrDebounce groups.
	Debounce time.Duration
	// Values holds the output levels for AttrOutputValues groups, one bit
	// per line index covered by Mask.
	Values LineMask
}

// CompiledConfig is the successful result of Compile: the resolved defaults
// plus at most MaxAttrSlots attribute groups in emission order.
type CompiledConfig struct {
	Defaults BaseConfig
	Groups   []AttributeGroup
}

func lineIndex(offset uint32, offsets []uint32) int {
	for i, candidate := range offsets {
		if candidate == offset {
			return i
		}
	}
	return -1
}

// mergeFlags resolves the six flag-category fields of a slot against the
// defaults. Debounce and output value keep their default values in the
// returned record; they travel in attributes of their own.
func (c *Config) mergeFlags(slot *overrideSlot) BaseConfig {
	merged := c.defaults
	if slot.has(flagDirection) {
		merged.Direction = slot.base.Direction
	}
	if slot.has(flagEdge) {
		merged.Edge = slot.base.Edge
	}
	if slot.has(flagBias) {
		merged.Bias = slot.base.Bias
	}
	if slot.has(flagDrive) {
		merged.Drive = slot.base.Drive
	}
	if slot.has(flagActiveLow) {
		merged.ActiveLow = slot.base.ActiveLow
	}
	if slot.has(flagClock) {
		merged.EventClock = slot.base.EventClock
	}
	return merged
}

func flagFieldsEqual(a, b BaseConfig) bool {
	return a.Direction == b.Direction &&
		a.Edge == b.Edge &&
		a.Bias == b.Bias &&
		a.Drive == b.Drive &&
		a.ActiveLow == b.ActiveLow &&
		a.EventClock == b.EventClock
}

func (c *Config) effectiveDebounce(slot *overrideSlot) time.Duration {
	if slot.has(flagDebounce) {
		return slot.base.DebouncePeriod
	}
	return c.defaults.DebouncePeriod
}

// category describes one independent grouping pass. Equality is structural
// over the default-merged (effective) record, so an override with no flags in
// the category always compares equal to the defaults and never heads a group.
type category struct {
	equalsDefaults func(slot *overrideSlot) bool
	equalsHead     func(head, next *overrideSlot) bool
	emit           func(head *overrideSlot, mask LineMask) AttributeGroup
}

func (c *Config) flagsCategory() category {
	return category{
		equalsDefaults: func(slot *overrideSlot) bool {
			return flagFieldsEqual(c.defaults, c.mergeFlags(slot))
		},
		equalsHead: func(head, next *overrideSlot) bool {
			return flagFieldsEqual(c.mergeFlags(head), c.mergeFlags(next))
		},
		emit: func(head *overrideSlot, mask LineMask) AttributeGroup {
			return AttributeGroup{Kind: AttrFlags, Mask: mask, Flags: c.mergeFlags(head)}
		},
	}
}

func (c *Config) debounceCategory() category {
	return category{
		equalsDefaults: func(slot *overrideSlot) bool {
			return c.effectiveDebounce(slot) == c.defaults.DebouncePeriod
		},
		equalsHead: func(head, next *overrideSlot) bool {
			return c.effectiveDebounce(head) == c.effectiveDebounce(next)
		},
		emit: func(head *overrideSlot, mask LineMask) AttributeGroup {
			return AttributeGroup{Kind: AttrDebounce, Mask: mask, Debounce: c.effectiveDebounce(head)}
		},
	}
}

// maskForSlots translates a bitmask over override table slots into a mask
// over request line indices. Offsets absent from the request are dropped
// silently; pre-staged overrides for lines outside the request are legal.
func (c *Config) maskForSlots(marked uint64, offsets []uint32) LineMask {
	var mask LineMask
	for i := range c.overrides {
		slot := &c.overrides[i]
		if !slot.used() || marked&(1<<i) == 0 {
			continue
		}
		if idx := lineIndex(slot.offset, offsets); idx >= 0 {
			mask.set(idx)
		}
	}
	return mask
}

// processCategory runs one grouping pass in override table order. Table order
// decides which override heads a group, keeping the output deterministic for
// identical input.
func (c *Config) processCategory(groups *[]AttributeGroup, offsets []uint32, cat category) error {
	var processed uint64

	for i := range c.overrides {
		slot := &c.overrides[i]
		if !slot.used() || processed&(1<<i) != 0 {
			continue
		}
		if len(*groups) == MaxAttrSlots {
			return ErrAttributeOverflow
		}
		processed |= 1 << i

		// An override whose effective record matches the defaults has no
		// wire effect of its own.
		if cat.equalsDefaults(slot) {
			continue
		}

		marked := uint64(1) << i
		for j := i + 1; j < MaxOverrides; j++ {
			next := &c.overrides[j]
			if !next.used() || processed&(1<<j) != 0 {
				continue
			}
			if cat.equalsHead(slot, next) {
				marked |= 1 << j
				processed |= 1 << j
			}
		}

		mask := c.maskForSlots(marked, offsets)
		if mask.Empty() {
			// Every member of the group is outside the request.
			continue
		}
		*groups = append(*groups, cat.emit(slot, mask))
	}

	return nil
}

// hasOutputDirection reports whether any requested line can resolve to
// output direction: either via the defaults or via an explicit direction
// override.
func (c *Config) hasOutputDirection() bool {
	if c.defaults.Direction == DirectionOutput {
		return true
	}
	for i := range c.overrides {
		slot := &c.overrides[i]
		if slot.used() && slot.has(flagDirection) && slot.base.Direction == DirectionOutput {
			return true
		}
	}
	return false
}

// resolveOutputValues computes the effective output level per requested
// line. The output value depends on the resolved direction of the line,
// which is why this runs as its own two-pass resolver instead of going
// through the generic grouping engine:
//
//  1. with the default direction at output, every line starts at the default
//     output level;
//  2. otherwise lines whose direction is overridden to output (and that do
//     not carry their own output value) get the default level;
//  3. output value overrides win for every line that resolves to output.
func (c *Config) resolveOutputValues(offsets []uint32) (mask, values LineMask) {
	if c.defaults.Direction == DirectionOutput {
		for i := range offsets {
			mask.set(i)
			values.assign(i, c.defaults.OutputValue == ValueActive)
		}
	} else {
		for i := range c.overrides {
			slot := &c.overrides[i]
			if !slot.used() || !slot.has(flagDirection) || slot.base.Direction != DirectionOutput {
				continue
			}
			if slot.has(flagOutputValue) {
				continue
			}
			idx := lineIndex(slot.offset, offsets)
			if idx < 0 {
				continue
			}
			mask.set(idx)
			values.assign(idx, c.defaults.OutputValue == ValueActive)
		}
	}

	for i := range c.overrides {
		slot := &c.overrides[i]
		if !slot.used() || !slot.has(flagOutputValue) {
			continue
		}
		if c.defaults.Direction != DirectionOutput &&
			(!slot.has(flagDirection) || slot.base.Direction != DirectionOutput) {
			continue
		}
		idx := lineIndex(slot.offset, offsets)
		if idx < 0 {
			continue
		}
		mask.set(idx)
		values.assign(idx, slot.base.OutputValue == ValueActive)
	}

	return mask, values
}

// Compile resolves the configuration against the ordered offset list of one
// request and returns the attribute groups to put on the wire. The offset
// list must not exceed MaxLinesPerRequest entries; the transport layer
// enforces that bound before calling Compile.
//
// Compile never mutates the Config and leaves no partial result behind on
// failure. It fails with ErrTooComplex when the override table has
// overflowed and with ErrAttributeOverflow when the grouped configuration
// needs more than MaxAttrSlots attributes.
func (c *Config) Compile(offsets []uint32) (*CompiledConfig, error) {
	if c.tooComplex {
		return nil, ErrTooComplex
	}

	groups := make([]AttributeGroup, 0, MaxAttrSlots)

	// One slot for the resolved output levels when anything drives a line.
	if c.hasOutputDirection() {
		mask, values := c.resolveOutputValues(offsets)
		if !mask.Empty() {
			groups = append(groups, AttributeGroup{Kind: AttrOutputValues, Mask: mask, Values: values})
		}
	}

	// One slot for a request-wide debounce period.
	if c.defaults.DebouncePeriod != 0 && len(offsets) > 0 {
		groups = append(groups, AttributeGroup{
			Kind:     AttrDebounce,
			Mask:     maskForLines(len(offsets)),
			Debounce: c.defaults.DebouncePeriod,
		})
	}

	if err := c.processCategory(&groups, offsets, c.flagsCategory()); err != nil {
		return nil, err
	}
	if err := c.processCategory(&groups, offsets, c.debounceCategory()); err != nil {
		return nil, err
	}

	return &CompiledConfig{Defaults: c.defaults, Groups: groups}, nil
}
