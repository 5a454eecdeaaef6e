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

package tasks

import "fmt"

// UnknownStoreError indicates a task was configured to operate on a store
// name the registry doesn't know about. The scheduler does not treat it
// specially: a task that returns it is run again next period.
type UnknownStoreError struct {
	Store string
}

func (e UnknownStoreError) Error() string {
	return fmt.Sprintf("unknown store '%s'", e.Store)
}

// UnknownLibrarianError indicates a task addressed a peer name not present
// in configuration.
type UnknownLibrarianError struct {
	Librarian string
}

func (e UnknownLibrarianError) Error() string {
	return fmt.Sprintf("unknown librarian '%s'", e.Librarian)
}

// NoAsyncProviderError indicates none of a clone destination's advertised
// async transfer providers could be used for a SendClone batch.
type NoAsyncProviderError struct {
	Destination string
}

func (e NoAsyncProviderError) Error() string {
	return fmt.Sprintf("no usable async transfer provider advertised by '%s'", e.Destination)
}

// PeerUnreachableError wraps a connection or timeout failure talking to a
// peer librarian; callers treat this as "peer unreachable" and let the
// hypervisor retry later (spec section 4.7).
type PeerUnreachableError struct {
	Peer  string
	Cause error
}

func (e PeerUnreachableError) Error() string {
	return fmt.Sprintf("peer '%s' unreachable: %s", e.Peer, e.Cause.Error())
}

func (e PeerUnreachableError) Unwrap() error { return e.Cause }

// UnreachableStateError indicates the task layer observed a transfer-state
// combination the state lattice says cannot happen (spec section 7's
// "programming" error kind).
type UnreachableStateError struct {
	Detail string
}

func (e UnreachableStateError) Error() string {
	return fmt.Sprintf("unreachable transfer state: %s", e.Detail)
}
