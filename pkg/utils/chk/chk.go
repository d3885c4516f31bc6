// Package chk provides the "check and log" idiom used throughout this
// module: `if err = f(); chk.E(err) { return }` logs the error at the
// appropriate level and reports whether one occurred, so call sites read
// as a single line instead of a three-line if-block.
package chk

import "relaycap.dev/pkg/utils/log"

// E logs err at error level and returns true if err is non-nil.
func E(err error) bool {
	if err != nil {
		log.E.F("%v", err)
		return true
	}
	return false
}

// W logs err at warning level and returns true if err is non-nil.
func W(err error) bool {
	if err != nil {
		log.W.F("%v", err)
		return true
	}
	return false
}

// D logs err at debug level and returns true if err is non-nil.
func D(err error) bool {
	if err != nil {
		log.D.F("%v", err)
		return true
	}
	return false
}

// T is like E but is used at call sites that are testing a condition
// rather than unwrapping a freshly returned error (kept distinct so the
// two idioms read differently at a glance).
func T(err error) bool {
	return E(err)
}
