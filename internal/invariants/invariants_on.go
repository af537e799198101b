// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build invariants || race

package invariants

import (
	"fmt"
	"math/rand/v2"
)

// Enabled is true if this binary was built with the "invariants" or "race"
// tags. The original C source wraps nearly every non-trivial function body
// in an ASSERT; this package is where that convention lands in Go, gated
// behind a build tag so the checks cost nothing in a production build.
const Enabled = true

// Sometimes returns true percent% of the time when invariants are Enabled,
// and always false otherwise - used to probabilistically exercise an
// expensive check (e.g. re-validating a whole refcount block on every
// decrement) without paying its cost on every call even in invariant
// builds.
func Sometimes(percent int) bool {
	return rand.IntN(100) < percent
}

// SafeSub returns a - b, panicking on underflow in invariant builds and
// clamping to zero otherwise - the Go analogue of the original's
// ASSERT(a >= b) guarding unsigned subtraction.
func SafeSub[T Integer](a, b T) T {
	if a < b {
		panic(fmt.Sprintf("underflow: %d - %d", a, b))
	}
	return a - b
}

// CheckBounds panics if i is not in [0, n) in invariant builds.
func CheckBounds[T Integer](i, n T) {
	if i < 0 || i >= n {
		panic(fmt.Sprintf("index %d out of bounds [0, %d)", i, n))
	}
}

// Integer is a constraint that permits any integer type.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}
