// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

package store

import "errors"

// Sentinel errors for store operations. Backends wrap them beneath a coded
// error so both errors.Is and the ccgerr classifiers work.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique constraint violation.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input parameters are invalid or malformed.
	ErrInvalidInput = errors.New("invalid input")
)
