// Package controller defines the boundary to the external line controller:
// the component that owns the hardware device and accepts fully compiled
// line requests. The compiler itself never talks to hardware; everything
// behind this interface translates attribute groups into whatever transport
// the device speaks.
package controller

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/timzifer/gpioline/lineconf"
)

// RequestOptions carries the transport-facing settings of one request that
// are not part of the line configuration itself.
type RequestOptions struct {
	// Consumer is the label the controller attaches to the requested lines.
	Consumer string
	// EventBufferSize is the number of edge events the controller buffers
	// per request. Zero lets the controller pick its default.
	EventBufferSize int
}

// ErrNoLines is returned when a request names no offsets.
var ErrNoLines = errors.New("request must name at least one line")

// ErrTooManyLines is returned when a request exceeds the per-request line
// capacity of the controller protocol.
var ErrTooManyLines = errors.New("request exceeds line capacity")

// ErrLineBusy is returned when a requested line is already held by another
// request.
var ErrLineBusy = errors.New("line already requested")

// ErrReleased is returned when a released request is used again.
var ErrReleased = errors.New("request already released")

// LineRequest is a held set of lines. Reconfigure recompiles the supplied
// configuration against the request's offsets and applies it in place.
type LineRequest interface {
	Offsets() []uint32
	Consumer() string
	Reconfigure(cfg *lineconf.Config, logger zerolog.Logger) error
	Release()
}

// Controller hands out line requests. Implementations compile the
// configuration, translate it into their transport format and apply it to
// the device.
type Controller interface {
	RequestLines(cfg *lineconf.Config, offsets []uint32, opts RequestOptions, logger zerolog.Logger) (LineRequest, error)
}
