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

package store

import "fmt"

// StoreFullError indicates a store can't admit a request of the given size.
type StoreFullError struct {
	Store          string
	Requested, Free int64
}

func (e StoreFullError) Error() string {
	return fmt.Sprintf("store '%s' has insufficient free space (requested %d, free %d)",
		e.Store, e.Requested, e.Free)
}

// DisabledError indicates a write was attempted against a disabled store.
type DisabledError struct {
	Store string
}

func (e DisabledError) Error() string {
	return fmt.Sprintf("store '%s' is disabled", e.Store)
}

// PathEscapesRootError indicates a caller-supplied path would resolve
// outside the store's configured root.
type PathEscapesRootError struct {
	Path string
}

func (e PathEscapesRootError) Error() string {
	return fmt.Sprintf("path '%s' escapes the store root", e.Path)
}

// AlreadyReservedError indicates Reserve was called for a path that already
// exists.
type AlreadyReservedError struct {
	Path string
}

func (e AlreadyReservedError) Error() string {
	return fmt.Sprintf("path '%s' already exists in the store", e.Path)
}

// NotFoundError indicates an operation addressed a staging id or path that
// doesn't exist.
type NotFoundError struct {
	What string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.What)
}
