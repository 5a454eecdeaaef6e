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
	"io"
	"os"
	"path/filepath"
)

// Local moves files between two stores mounted on the same filesystem (or
// host), the manager used in tests and single-host deployments where no
// remote transport is needed at all. It follows
// original_source/hera_librarian/async_transfers/local.py's plain-copy
// semantics.
type Local struct {
	SourceRoot string `json:"source_root"`
	DestRoot   string `json:"dest_root"`

	Done   bool `json:"done"`
	Failed bool `json:"failed"`
}

// BatchTransfer copies every file pair synchronously; there is no remote
// task to poll, so success or failure is recorded immediately.
func (l *Local) BatchTransfer(files []FilePair) error {
	for _, f := range files {
		if err := l.Transfer(f); err != nil {
			l.Failed = true
			return err
		}
	}
	l.Done = true
	return nil
}

// Transfer copies a single file from SourceRoot to DestRoot, creating parent
// directories as needed.
func (l *Local) Transfer(pair FilePair) error {
	src := filepath.Join(l.SourceRoot, pair.SourcePath)
	dst := filepath.Join(l.DestRoot, pair.DestPath)

	if err := os.MkdirAll(filepath.Dir(dst), 0775); err != nil {
		l.Failed = true
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		l.Failed = true
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		l.Failed = true
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		l.Failed = true
		return err
	}
	return nil
}

// Valid reports whether both roots are configured.
func (l *Local) Valid() bool {
	return l.SourceRoot != "" && l.DestRoot != ""
}

// TransferStatus reports the outcome of the most recent BatchTransfer call.
func (l *Local) TransferStatus() (State, error) {
	switch {
	case l.Failed:
		return StateFailed, nil
	case l.Done:
		return StateCompleted, nil
	default:
		return StateInitiated, nil
	}
}
