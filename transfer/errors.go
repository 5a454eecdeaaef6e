// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package transfer

import (
	"fmt"

	"github.com/google/uuid"
)

// NotFoundError indicates that no transfer with the given id exists.
type NotFoundError struct {
	Id uuid.UUID
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("no transfer found with id %s", e.Id)
}

// IllegalTransitionError indicates an attempted status transition outside
// the lattice in spec section 4.1.
type IllegalTransitionError struct {
	Id       uuid.UUID
	From, To Status
}

func (e IllegalTransitionError) Error() string {
	return fmt.Sprintf("transfer %s cannot move from %s to %s", e.Id, e.From, e.To)
}

// AlreadyExistsError indicates a File with the given name already exists.
type AlreadyExistsError struct {
	Name string
}

func (e AlreadyExistsError) Error() string {
	return fmt.Sprintf("a file named '%s' already exists", e.Name)
}

// OngoingConflictError indicates a non-terminal IncomingTransfer already
// exists in ONGOING status for the same (checksum, destination) -- the
// source is logically double-sending (maps to HTTP 425).
type OngoingConflictError struct {
	Checksum Checksum
	Name     string
}

func (e OngoingConflictError) Error() string {
	return fmt.Sprintf("transfer for '%s' (%s) is already ONGOING", e.Name, e.Checksum)
}

// ChecksumMismatchError indicates staged bytes didn't match the recorded
// size/checksum for a transfer (maps to HTTP 406).
type ChecksumMismatchError struct {
	Expected, Observed Checksum
}

func (e ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %s, observed %s", e.Expected, e.Observed)
}
