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

package auth

// Level describes how much an authenticated caller is permitted to do.
// Full user management is out of scope for this service; handlers only need
// to know whether a caller may append data and whether they're an admin.
type Level int

const (
	// no access granted
	None Level = iota
	// may read (search, validate)
	Read
	// may append new files/transfers
	Append
	// may perform administrative actions (clear errors, remove librarians)
	Admin
)

// Identity is the minimal caller record HTTP handlers and background tasks
// need: who made the request, and what they're allowed to do. Handlers never
// need name/email/organization detail beyond this -- broader user management
// is handled by an external collaborator per this service's scope.
type Identity struct {
	// human-readable name of the caller (a user or another librarian)
	Name string
	// access level granted to this caller
	Level Level
}

// returns true if this identity may append data (upload, stage, clone)
func (id Identity) CanAppend() bool {
	return id.Level >= Append
}

// returns true if this identity may perform administrative actions
func (id Identity) IsAdmin() bool {
	return id.Level >= Admin
}
