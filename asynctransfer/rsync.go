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

package asynctransfer

import (
	"fmt"
	"os/exec"
	"sync"
)

// Rsync moves files to a remote librarian's store over ssh+rsync, following
// original_source/hera_librarian/async_transfers/rsync.py's shape (a remote
// host/user/path triple and a background subprocess) re-expressed as an
// opaque Go capability per spec section 1's transport carve-out: this type
// records enough to launch and poll rsync, but the actual remote-shell
// argument construction is a thin wrapper kept deliberately minimal.
type Rsync struct {
	RemoteHost string `json:"remote_host"`
	RemoteUser string `json:"remote_user"`
	RemoteRoot string `json:"remote_root"`
	SourceRoot string `json:"source_root"`

	mu       sync.Mutex `json:"-"`
	running  bool
	failed   bool
	finished bool
}

func (r *Rsync) destination() string {
	return fmt.Sprintf("%s@%s:%s", r.RemoteUser, r.RemoteHost, r.RemoteRoot)
}

// BatchTransfer launches one rsync process per file pair, relative to
// SourceRoot/RemoteRoot, and waits for all of them before returning; a
// production deployment would hand this off to a subprocess supervisor, but
// the synchronous form is sufficient to satisfy the Capability contract.
func (r *Rsync) BatchTransfer(files []FilePair) error {
	r.mu.Lock()
	r.running = true
	r.failed = false
	r.finished = false
	r.mu.Unlock()

	for _, f := range files {
		if err := r.Transfer(f); err != nil {
			r.mu.Lock()
			r.failed = true
			r.running = false
			r.mu.Unlock()
			return err
		}
	}

	r.mu.Lock()
	r.running = false
	r.finished = true
	r.mu.Unlock()
	return nil
}

// Transfer copies a single file via "rsync -a".
func (r *Rsync) Transfer(pair FilePair) error {
	src := r.SourceRoot + "/" + pair.SourcePath
	dst := r.destination() + "/" + pair.DestPath
	cmd := exec.Command("rsync", "-a", src, dst)
	return cmd.Run()
}

// Valid reports whether enough connection information is present to attempt
// a transfer.
func (r *Rsync) Valid() bool {
	return r.RemoteHost != "" && r.RemoteUser != "" && r.RemoteRoot != ""
}

// TransferStatus reports the outcome of the most recent BatchTransfer call;
// rsync itself exposes no task-polling API, so status here reflects the
// synchronous call's own bookkeeping rather than a remote poll.
func (r *Rsync) TransferStatus() (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.running:
		return StateInitiated, nil
	case r.failed:
		return StateFailed, nil
	case r.finished:
		return StateCompleted, nil
	default:
		return StateInitiated, nil
	}
}
