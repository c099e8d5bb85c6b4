// Package lineconf models the electrical and behavioural configuration of a
// set of hardware signal lines and compiles it into the bounded attribute
// list a line controller accepts in a single request.
//
// A Config holds global defaults plus up to MaxOverrides per-line exceptions.
// Mutators never fail on field values (unknown values clamp to the field's
// fallback); only capacity limits surface as errors. A Config is not safe for
// concurrent use; give every goroutine its own instance.
package lineconf

import "time"

// Capacity limits of the controller wire protocol.
const (
	// MaxOverrides is the size of the override table.
	MaxOverrides = 64
	// MaxAttrSlots is the number of attribute groups a single request can carry.
	MaxAttrSlots = 10
	// MaxLinesPerRequest is the number of lines a single request can address.
	MaxLinesPerRequest = 64
)

// BaseConfig is one complete set of field values. It represents either the
// global defaults of a Config or the fully resolved configuration of a
// single line.
type BaseConfig struct {
	Direction      Direction
	Edge           Edge
	Bias           Bias
	Drive          Drive
	ActiveLow      bool
	EventClock     EventClock
	DebouncePeriod time.Duration
	OutputValue    Value
}

func defaultBaseConfig() BaseConfig {
	return BaseConfig{
		Direction:   DirectionAsIs,
		Edge:        EdgeNone,
		Bias:        BiasAsIs,
		Drive:       DrivePushPull,
		EventClock:  ClockMonotonic,
		OutputValue: ValueInactive,
	}
}

type propFlag uint8

const (
	flagDirection propFlag = 1 << iota
	flagEdge
	flagDrive
	flagBias
	flagActiveLow
	flagClock
	flagDebounce
	flagOutputValue
)

// flagCategory covers the six fields that share one packed flag attribute on
// the wire. Debounce and output value have attribute types of their own.
const flagCategory = flagDirection | flagEdge | flagDrive | flagBias | flagActiveLow | flagClock

// Property names one overridable line setting, as reported by Overrides.
type Property string

const (
	PropertyDirection      Property = "direction"
	PropertyEdge           Property = "edge"
	PropertyDrive          Property = "drive"
	PropertyBias           Property = "bias"
	PropertyActiveLow      Property = "active-low"
	PropertyEventClock     Property = "event-clock"
	PropertyDebouncePeriod Property = "debounce-period"
	PropertyOutputValue    Property = "output-value"
)

var propFlagOrder = []struct {
	flag propFlag
	prop Property
}{
	{flagDirection, PropertyDirection},
	{flagEdge, PropertyEdge},
	{flagDrive, PropertyDrive},
	{flagBias, PropertyBias},
	{flagActiveLow, PropertyActiveLow},
	{flagClock, PropertyEventClock},
	{flagDebounce, PropertyDebouncePeriod},
	{flagOutputValue, PropertyOutputValue},
}

// OverrideProp identifies one overridden property of one line offset.
type OverrideProp struct {
	Offset   uint32
	Property Property
}

// A slot is claimed by the first write for its offset and stays at its table
// position for the lifetime of the Config so that compilation iterates in
// insertion order. Clearing the last flag only unflags the slot; the backing
// array never shrinks.
type overrideSlot struct {
	base   BaseConfig
	offset uint32
	flags  propFlag
}

func (s *overrideSlot) used() bool {
	return s.flags != 0
}

func (s *overrideSlot) reset() {
	s.flags = 0
	s.base = defaultBaseConfig()
}

func (s *overrideSlot) has(flag propFlag) bool {
	return s.flags&flag != 0
}

// Config is the override-based configuration model for one line request:
// global defaults plus a bounded table of per-line exceptions.
type Config struct {
	tooComplex bool
	defaults   BaseConfig
	overrides  [MaxOverrides]overrideSlot
}

// New returns a Config with every field at its fallback value and no
// overrides.
func New() *Config {
	c := &Config{}
	c.Reset()
	return c
}

// Reset restores the fallback defaults, drops all overrides and clears the
// sticky too-complex state.
func (c *Config) Reset() {
	c.tooComplex = false
	c.defaults = defaultBaseConfig()
	for i := range c.overrides {
		c.overrides[i].offset = 0
		c.overrides[i].reset()
	}
}

// TooComplex reports whether the override table has been exhausted. Once set
// the Config cannot be compiled until it is Reset.
func (c *Config) TooComplex() bool {
	return c.tooComplex
}

func (c *Config) overrideByOffset(offset uint32) *overrideSlot {
	for i := range c.overrides {
		slot := &c.overrides[i]
		if slot.used() && slot.offset == offset {
			return slot
		}
	}
	return nil
}

func (c *Config) overrideForWrite(offset uint32) (*overrideSlot, error) {
	if c.tooComplex {
		return nil, ErrTooComplex
	}
	if slot := c.overrideByOffset(offset); slot != nil {
		return slot, nil
	}
	for i := range c.overrides {
		slot := &c.overrides[i]
		if slot.used() {
			continue
		}
		slot.offset = offset
		return slot, nil
	}
	c.tooComplex = true
	return nil, ErrTooComplex
}

// clearOverride is a write-path mutator and obeys the same sticky guard as
// the setters: once the table has overflowed the Config is frozen until
// Reset.
func (c *Config) clearOverride(offset uint32, flag propFlag) {
	if c.tooComplex {
		return
	}
	slot := c.overrideByOffset(offset)
	if slot == nil || !slot.has(flag) {
		return
	}
	slot.flags &^= flag
	if !slot.used() {
		slot.reset()
	}
}

func (c *Config) isOverridden(offset uint32, flag propFlag) bool {
	slot := c.overrideByOffset(offset)
	return slot != nil && slot.has(flag)
}

// baseForRead resolves the read source for one field of one line: the
// override if the flag is set, the defaults otherwise.
func (c *Config) baseForRead(offset uint32, flag propFlag) *BaseConfig {
	if slot := c.overrideByOffset(offset); slot != nil && slot.has(flag) {
		return &slot.base
	}
	return &c.defaults
}

// SetDirectionDefault sets the default direction. Unknown values clamp to
// DirectionAsIs.
func (c *Config) SetDirectionDefault(d Direction) {
	c.defaults.Direction = normalizeDirection(d)
}

// SetDirectionOverride overrides the direction for one line offset.
func (c *Config) SetDirectionOverride(offset uint32, d Direction) error {
	slot, err := c.overrideForWrite(offset)
	if err != nil {
		return err
	}
	slot.base.Direction = normalizeDirection(d)
	slot.flags |= flagDirection
	return nil
}

// ClearDirectionOverride removes a direction override. Clearing an offset
// without one is a no-op.
func (c *Config) ClearDirectionOverride(offset uint32) {
	c.clearOverride(offset, flagDirection)
}

// DirectionIsOverridden reports whether the offset carries a direction
// override.
func (c *Config) DirectionIsOverridden(offset uint32) bool {
	return c.isOverridden(offset, flagDirection)
}

// DirectionDefault returns the default direction.
func (c *Config) DirectionDefault() Direction {
	return c.defaults.Direction
}

// DirectionForLine returns the direction the offset resolves to.
func (c *Config) DirectionForLine(offset uint32) Direction {
	return c.baseForRead(offset, flagDirection).Direction
}

// SetEdgeDefault sets the default edge detection. Unknown values clamp to
// EdgeNone.
func (c *Config) SetEdgeDefault(e Edge) {
	c.defaults.Edge = normalizeEdge(e)
}

// SetEdgeOverride overrides edge detection for one line offset.
func (c *Config) SetEdgeOverride(offset uint32, e Edge) error {
	slot, err := c.overrideForWrite(offset)
	if err != nil {
		return err
	}
	slot.base.Edge = normalizeEdge(e)
	slot.flags |= flagEdge
	return nil
}

// ClearEdgeOverride removes an edge detection override.
func (c *Config) ClearEdgeOverride(offset uint32) {
	c.clearOverride(offset, flagEdge)
}

// EdgeIsOverridden reports whether the offset carries an edge override.
func (c *Config) EdgeIsOverridden(offset uint32) bool {
	return c.isOverridden(offset, flagEdge)
}

// EdgeDefault returns the default edge detection.
func (c *Config) EdgeDefault() Edge {
	return c.defaults.Edge
}

// EdgeForLine returns the edge detection the offset resolves to.
func (c *Config) EdgeForLine(offset uint32) Edge {
	return c.baseForRead(offset, flagEdge).Edge
}

// SetBiasDefault sets the default bias. Unknown values clamp to BiasAsIs.
func (c *Config) SetBiasDefault(b Bias) {
	c.defaults.Bias = normalizeBias(b)
}

// SetBiasOverride overrides the bias for one line offset.
func (c *Config) SetBiasOverride(offset uint32, b Bias) error {
	slot, err := c.overrideForWrite(offset)
	if err != nil {
		return err
	}
	slot.base.Bias = normalizeBias(b)
	slot.flags |= flagBias
	return nil
}

// ClearBiasOverride removes a bias override.
func (c *Config) ClearBiasOverride(offset uint32) {
	c.clearOverride(offset, flagBias)
}

// BiasIsOverridden reports whether the offset carries a bias override.
func (c *Config) BiasIsOverridden(offset uint32) bool {
	return c.isOverridden(offset, flagBias)
}

// BiasDefault returns the default bias.
func (c *Config) BiasDefault() Bias {
	return c.defaults.Bias
}

// BiasForLine returns the bias the offset resolves to.
func (c *Config) BiasForLine(offset uint32) Bias {
	return c.baseForRead(offset, flagBias).Bias
}

// SetDriveDefault sets the default drive. Unknown values clamp to
// DrivePushPull.
func (c *Config) SetDriveDefault(d Drive) {
	c.defaults.Drive = normalizeDrive(d)
}

// SetDriveOverride overrides the drive for one line offset.
func (c *Config) SetDriveOverride(offset uint32, d Drive) error {
	slot, err := c.overrideForWrite(offset)
	if err != nil {
		return err
	}
	slot.base.Drive = normalizeDrive(d)
	slot.flags |= flagDrive
	return nil
}

// ClearDriveOverride removes a drive override.
func (c *Config) ClearDriveOverride(offset uint32) {
	c.clearOverride(offset, flagDrive)
}

// DriveIsOverridden reports whether the offset carries a drive override.
func (c *Config) DriveIsOverridden(offset uint32) bool {
	return c.isOverridden(offset, flagDrive)
}

// DriveDefault returns the default drive.
func (c *Config) DriveDefault() Drive {
	return c.defaults.Drive
}

// DriveForLine returns the drive the offset resolves to.
func (c *Config) DriveForLine(offset uint32) Drive {
	return c.baseForRead(offset, flagDrive).Drive
}

// SetActiveLowDefault sets the default active-sense.
func (c *Config) SetActiveLowDefault(activeLow bool) {
	c.defaults.ActiveLow = activeLow
}

// SetActiveLowOverride overrides the active-sense for one line offset.
func (c *Config) SetActiveLowOverride(offset uint32, activeLow bool) error {
	slot, err := c.overrideForWrite(offset)
	if err != nil {
		return err
	}
	slot.base.ActiveLow = activeLow
	slot.flags |= flagActiveLow
	return nil
}

// ClearActiveLowOverride removes an active-sense override.
func (c *Config) ClearActiveLowOverride(offset uint32) {
	c.clearOverride(offset, flagActiveLow)
}

// ActiveLowIsOverridden reports whether the offset carries an active-sense
// override.
func (c *Config) ActiveLowIsOverridden(offset uint32) bool {
	return c.isOverridden(offset, flagActiveLow)
}

// ActiveLowDefault returns the default active-sense.
func (c *Config) ActiveLowDefault() bool {
	return c.defaults.ActiveLow
}

// ActiveLowForLine returns the active-sense the offset resolves to.
func (c *Config) ActiveLowForLine(offset uint32) bool {
	return c.baseForRead(offset, flagActiveLow).ActiveLow
}

// SetEventClockDefault sets the default event clock. Unknown values clamp to
// ClockMonotonic.
func (c *Config) SetEventClockDefault(clock EventClock) {
	c.defaults.EventClock = normalizeClock(clock)
}

// SetEventClockOverride overrides the event clock for one line offset.
func (c *Config) SetEventClockOverride(offset uint32, clock EventClock) error {
	slot, err := c.overrideForWrite(offset)
	if err != nil {
		return err
	}
	slot.base.EventClock = normalizeClock(clock)
	slot.flags |= flagClock
	return nil
}

// ClearEventClockOverride removes an event clock override.
func (c *Config) ClearEventClockOverride(offset uint32) {
	c.clearOverride(offset, flagClock)
}

// EventClockIsOverridden reports whether the offset carries an event clock
// override.
func (c *Config) EventClockIsOverridden(offset uint32) bool {
	return c.isOverridden(offset, flagClock)
}

// EventClockDefault returns the default event clock.
func (c *Config) EventClockDefault() EventClock {
	return c.defaults.EventClock
}

// EventClockForLine returns the event clock the offset resolves to.
func (c *Config) EventClockForLine(offset uint32) EventClock {
	return c.baseForRead(offset, flagClock).EventClock
}

// SetDebouncePeriodDefault sets the default debounce period. Zero disables
// debouncing.
func (c *Config) SetDebouncePeriodDefault(period time.Duration) {
	c.defaults.DebouncePeriod = period
}

// SetDebouncePeriodOverride overrides the debounce period for one line
// offset.
func (c *Config) SetDebouncePeriodOverride(offset uint32, period time.Duration) error {
	slot, err := c.overrideForWrite(offset)
	if err != nil {
		return err
	}
	slot.base.DebouncePeriod = period
	slot.flags |= flagDebounce
	return nil
}

// ClearDebouncePeriodOverride removes a debounce period override.
func (c *Config) ClearDebouncePeriodOverride(offset uint32) {
	c.clearOverride(offset, flagDebounce)
}

// DebouncePeriodIsOverridden reports whether the offset carries a debounce
// override.
func (c *Config) DebouncePeriodIsOverridden(offset uint32) bool {
	return c.isOverridden(offset, flagDebounce)
}

// DebouncePeriodDefault returns the default debounce period.
func (c *Config) DebouncePeriodDefault() time.Duration {
	return c.defaults.DebouncePeriod
}

// DebouncePeriodForLine returns the debounce period the offset resolves to.
func (c *Config) DebouncePeriodForLine(offset uint32) time.Duration {
	return c.baseForRead(offset, flagDebounce).DebouncePeriod
}

// SetOutputValueDefault sets the default output level, applied to every
// output line without an output value override.
func (c *Config) SetOutputValueDefault(v Value) {
	c.defaults.OutputValue = normalizeValue(v)
}

// SetOutputValueOverride overrides the output level for one line offset. The
// override only takes effect when the line resolves to output direction.
func (c *Config) SetOutputValueOverride(offset uint32, v Value) error {
	slot, err := c.overrideForWrite(offset)
	if err != nil {
		return err
	}
	slot.base.OutputValue = normalizeValue(v)
	slot.flags |= flagOutputValue
	return nil
}

// SetOutputValues overrides the output level for several offsets at once.
// Offsets beyond the matching values entry are skipped. The first capacity
// failure aborts the batch.
func (c *Config) SetOutputValues(offsets []uint32, values []Value) error {
	for i, offset := range offsets {
		if i >= len(values) {
			break
		}
		if err := c.SetOutputValueOverride(offset, values[i]); err != nil {
			return err
		}
	}
	return nil
}

// ClearOutputValueOverride removes an output value override.
func (c *Config) ClearOutputValueOverride(offset uint32) {
	c.clearOverride(offset, flagOutputValue)
}

// OutputValueIsOverridden reports whether the offset carries an output value
// override.
func (c *Config) OutputValueIsOverridden(offset uint32) bool {
	return c.isOverridden(offset, flagOutputValue)
}

// OutputValueDefault returns the default output level.
func (c *Config) OutputValueDefault() Value {
	return c.defaults.OutputValue
}

// OutputValueForLine returns the output level the offset resolves to.
func (c *Config) OutputValueForLine(offset uint32) Value {
	return c.baseForRead(offset, flagOutputValue).OutputValue
}

// NumOverrides returns the total number of overridden properties across all
// offsets.
func (c *Config) NumOverrides() int {
	count := 0
	for i := range c.overrides {
		slot := &c.overrides[i]
		if !slot.used() {
			continue
		}
		for _, entry := range propFlagOrder {
			if slot.has(entry.flag) {
				count++
			}
		}
	}
	return count
}

// Overrides lists every overridden property in table order, one entry per
// (offset, property) pair.
func (c *Config) Overrides() []OverrideProp {
	var props []OverrideProp
	for i := range c.overrides {
		slot := &c.overrides[i]
		if !slot.used() {
			continue
		}
		for _, entry := range propFlagOrder {
			if slot.has(entry.flag) {
				props = append(props, OverrideProp{Offset: slot.offset, Property: entry.prop})
			}
		}
	}
	return props
}
