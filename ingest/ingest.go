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

// Package ingest implements the bytes-to-database ingest procedure shared by
// the upload/commit HTTP endpoint and the ReceiveClone background task (spec
// section 4.3 steps (i)-(vi)): verify staged bytes against the IncomingTransfer's
// recorded size/checksum, reserve the final store path, record File and
// Instance in one transaction, move bytes into place, and unstage.
package ingest

import (
	"fmt"
	"time"

	"github.com/HERA-Team/librarian-sub000/metadb"
	"github.com/HERA-Team/librarian-sub000/store"
	"github.com/HERA-Team/librarian-sub000/transfer"
)

// CollisionError indicates the destination path was already reserved by
// another File.
type CollisionError struct {
	Path string
}

func (e CollisionError) Error() string {
	return fmt.Sprintf("destination path '%s' already exists", e.Path)
}

// Run ingests it's staged bytes from s into the store, under deletionPolicy,
// transitioning it to COMPLETED on success or FAILED (with its staged bytes
// unstaged) on any failure. The returned error, when non-nil, is one of
// transfer.ChecksumMismatchError, CollisionError, or a wrapped database/store
// error.
func Run(db *metadb.DB, s store.Store, it transfer.IncomingTransfer, deletionPolicy transfer.DeletionPolicy) error {
	fail := func(cause error) error {
		if err := s.Unstage(it.StagingId); err != nil {
			cause = fmt.Errorf("%w (also failed to unstage: %s)", cause, err)
		}
		if err := db.SetIncomingTransferStatus(it.Id, transfer.Failed); err != nil {
			cause = fmt.Errorf("%w (also failed to mark failed: %s)", cause, err)
		}
		return cause
	}

	// (i) path_info on the staged bytes.
	info, err := s.PathInfo(it.StagingPath, it.TransferChecksum.Algo())
	if err != nil {
		return fail(fmt.Errorf("staged bytes missing: %w", err))
	}

	// (ii) compare size and checksum to the record.
	if info.Size != it.TransferSize || info.Checksum != it.TransferChecksum.Normalize() {
		return fail(transfer.ChecksumMismatchError{Expected: it.TransferChecksum, Observed: info.Checksum})
	}

	// (iii) reserve the final path.
	storePath, err := s.Reserve(it.StorePath)
	if err != nil {
		return fail(CollisionError{Path: it.StorePath})
	}

	// (iv) create File and Instance in one transaction.
	file := transfer.File{
		Name: it.StorePath, Size: it.TransferSize, Checksum: it.TransferChecksum,
		Uploader: it.Uploader, Source: it.SourcePeer, CreateTime: time.Now().UTC(),
	}
	instance := transfer.Instance{
		File: file.Name, Store: s.Name(), Path: storePath,
		DeletionPolicy: deletionPolicy, CreatedTime: time.Now().UTC(), Available: true,
	}
	instanceId, err := db.CreateFileAndInstance(file, instance)
	if err != nil {
		return fail(fmt.Errorf("recording file and instance: %w", err))
	}

	// (v) move bytes from staging to store. A failure here leaves the File
	// and Instance rows just created pointing at bytes that never arrived,
	// so they're rolled back along with the usual unstage/FAILED handling.
	if err := s.Commit(it.StagingPath, storePath); err != nil {
		if delErr := db.DeleteFileAndInstance(file.Name, instanceId); delErr != nil {
			err = fmt.Errorf("%w (also failed to roll back file/instance: %s)", err, delErr)
		}
		return fail(fmt.Errorf("committing ingested bytes: %w", err))
	}
	// (vi) unstage. Bytes are already committed at this point, so a failure
	// here is logged by the caller rather than treated as ingest failure.
	unstageErr := s.Unstage(it.StagingId)

	if err := db.SetIncomingTransferStatus(it.Id, transfer.Completed); err != nil {
		return fmt.Errorf("marking incoming transfer completed: %w", err)
	}
	return unstageErr
}
