package plan

import (
	"errors"
	"fmt"
)

// ErrInternal marks an invariant violation: a bug in the optimizer itself,
// not a property of the input plan. Callers should abort optimization and
// fall back to the unrewritten plan rather than try to recover.
var ErrInternal = errors.New("plan: internal invariant violation")

// ErrBindingNotFound marks a lookup for a ColumnBinding that no operator in
// the plan produces. Like ErrInternal, this is a bug, not a property of
// malformed user input.
var ErrBindingNotFound = errors.New("plan: binding not found")

// PanicInternal panics with an error wrapping ErrInternal. The join and
// compress package entry points recover from this at their outermost call
// (§7: "Internal invariant breakage aborts the entire optimization of the
// query and surfaces to the host, which falls back to the unrewritten
// plan") — callers deeper in the call stack should never recover from it
// themselves.
func PanicInternal(format string, args ...interface{}) {
	panic(fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, args...)))
}
