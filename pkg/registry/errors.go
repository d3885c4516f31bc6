package registry

import "errors"

// ErrNoExecutor is returned by Execute when no execution callback has
// been wired yet (the Discovery Aggregator wires these post-construction;
// a call that races construction hits this).
var ErrNoExecutor = errors.New("registry: no execution callback wired")
