// Package errorf builds formatted errors: E for unexpected failures, D
// for conditions that are errors to the caller but routine enough to
// log at debug level (e.g. context cancellation during a read loop).
package errorf

import "fmt"

// E formats an error the way fmt.Errorf does.
func E(format string, args ...any) error { return fmt.Errorf(format, args...) }

// D formats an error for a routine, expected condition.
func D(format string, args ...any) error { return fmt.Errorf(format, args...) }
