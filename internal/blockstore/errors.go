// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package blockstore

import "errors"

// ErrAllocFail is returned by any operation that would grow storage
// beyond MaxBytes. It is the Go analogue of the C core's malloc
// failure path: every operation that extends storage can fail with
// it, and callers must propagate rather than partially apply.
var ErrAllocFail = errors.New("blockstore: allocation failed")

// ErrOffsetRange is returned when an offset or range falls outside
// the store's current bytes.
var ErrOffsetRange = errors.New("blockstore: offset out of range")
