package lineconf

import "errors"

// ErrTooComplex is returned once the override table is exhausted. The
// condition is sticky: every later override creation and every later
// compilation on the same Config fails the same way until Reset is called.
var ErrTooComplex = errors.New("line config too complex: override capacity exhausted")

// ErrAttributeOverflow is returned by Compile when the grouped configuration
// does not fit the attribute slots of a single request. It is not sticky;
// removing overrides and compiling again can succeed.
var ErrAttributeOverflow = errors.New("line config does not fit attribute slots")
