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

package journal

import "fmt"

// NotOpenError indicates the journal is not open for reading or writing.
type NotOpenError struct{}

func (e NotOpenError) Error() string {
	return "the diagnostics journal is not open"
}

// CantOpenError indicates the journal's backing bbolt file could not be opened.
type CantOpenError struct {
	Message string
}

func (e CantOpenError) Error() string {
	return fmt.Sprintf("can't open diagnostics journal: %s", e.Message)
}

// CantCloseError indicates the journal's backing bbolt file could not be closed.
type CantCloseError struct {
	Message string
}

func (e CantCloseError) Error() string {
	return fmt.Sprintf("can't close diagnostics journal: %s", e.Message)
}

// NewRecordError indicates an Entry could not be archived.
type NewRecordError struct {
	SourceId int64
	Message  string
}

func (e NewRecordError) Error() string {
	return fmt.Sprintf("could not archive diagnostics entry for source id %d: %s", e.SourceId, e.Message)
}
