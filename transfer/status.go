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

// Package transfer holds the shared status lattice and row types for
// IncomingTransfer, OutgoingTransfer, and CloneTransfer. Both peer-facing
// transfer kinds and the local cross-store clone share one lattice:
//
//	INITIATED -> ONGOING -> STAGED -> COMPLETED
//	    |           |          |
//	    +---------- FAILED / CANCELLED (terminal) ----------+
package transfer

import "fmt"

// Status is a value in the shared transfer status lattice.
type Status int

const (
	Initiated Status = iota
	Ongoing
	Staged
	Completed
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Initiated:
		return "INITIATED"
	case Ongoing:
		return "ONGOING"
	case Staged:
		return "STAGED"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	case Cancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ParseStatus converts a status string (as stored in the database or sent
// by a peer) back into a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "INITIATED":
		return Initiated, nil
	case "ONGOING":
		return Ongoing, nil
	case "STAGED":
		return Staged, nil
	case "COMPLETED":
		return Completed, nil
	case "FAILED":
		return Failed, nil
	case "CANCELLED":
		return Cancelled, nil
	default:
		return Initiated, fmt.Errorf("unrecognized transfer status: %q", s)
	}
}

// IsTerminal reports whether no further transitions are admitted from s.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// CanTransition reports whether moving a transfer record from `from` to `to`
// is a legal local (server-driven) transition, per spec section 4.1.
// INITIATED is not reachable from any other state; terminal states admit no
// further change; any non-terminal state may move to FAILED or CANCELLED.
// ONGOING may complete directly, alongside STAGED, because clone/complete's
// peer acknowledgement can race ahead of this librarian's own ONGOING->STAGED
// bookkeeping (spec section 4.4).
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == Failed || to == Cancelled {
		return true
	}
	switch from {
	case Initiated:
		return to == Ongoing || to == Staged // upload/commit moves INITIATED directly to STAGED
	case Ongoing:
		return to == Staged || to == Completed
	case Staged:
		return to == Completed
	default:
		return false
	}
}

// CanRemoteUpdate reports whether a peer-driven checkin/update call may move
// a transfer from `from` to `to`. This is strictly narrower than
// CanTransition: STAGED -> COMPLETED is never permitted here, because
// completion requires server-side ingest of the bytes, never a bare remote
// assertion (spec section 4.1, and the open question in section 9 resolved
// in favor of keeping this disallowed).
func CanRemoteUpdate(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == Failed || to == Cancelled {
		return true
	}
	switch from {
	case Initiated:
		return to == Ongoing
	case Ongoing:
		return to == Staged
	default:
		return false
	}
}
