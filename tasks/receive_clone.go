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

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HERA-Team/librarian-sub000/ingest"
	"github.com/HERA-Team/librarian-sub000/transfer"
)

// ReceiveClone finalizes IncomingTransfers a send-queue consumer has already
// staged, ingesting the bytes the same way the upload/commit endpoint would
// and acknowledging completion to the source peer.
type ReceiveClone struct {
	Deps *Deps

	DeletionPolicy transfer.DeletionPolicy
	FilesPerRun    int

	period      time.Duration
	softTimeout time.Duration
}

// NewReceiveClone builds a ReceiveClone task.
func NewReceiveClone(deps *Deps, deletionPolicy transfer.DeletionPolicy, filesPerRun int,
	period, softTimeout time.Duration) *ReceiveClone {
	return &ReceiveClone{Deps: deps, DeletionPolicy: deletionPolicy, FilesPerRun: filesPerRun,
		period: period, softTimeout: softTimeout}
}

func (t *ReceiveClone) Name() string               { return "receive_clone" }
func (t *ReceiveClone) Period() time.Duration      { return t.period }
func (t *ReceiveClone) SoftTimeout() time.Duration { return t.softTimeout }

func (t *ReceiveClone) Run(ctx context.Context) error {
	staged, err := t.Deps.DB.IncomingTransfersByStatus(transfer.Staged)
	if err != nil {
		return fmt.Errorf("listing staged incoming transfers: %w", err)
	}

	start := time.Now()
	processed := 0
	for _, it := range staged {
		if processed >= t.FilesPerRun || checkSoftTimeout(start, t.SoftTimeout()) || ctxDone(ctx) {
			break
		}
		processed++
		if err := t.ingestOne(it); err != nil {
			slog.Error("receive_clone: ingest failed", "id", it.Id, "file", it.StorePath, "error", err)
		}
	}
	return nil
}

func (t *ReceiveClone) ingestOne(it transfer.IncomingTransfer) error {
	s, found := t.Deps.Stores.Get(it.StoreId)
	if !found {
		return UnknownStoreError{Store: it.StoreId}
	}

	if err := ingest.Run(t.Deps.DB, s, it, t.DeletionPolicy); err != nil {
		return fmt.Errorf("ingesting staged clone: %w", err)
	}

	if !it.SourceTransferId.Valid {
		return nil
	}
	client, found := t.Deps.Peers.Get(it.SourcePeer)
	if !found {
		return UnknownLibrarianError{Librarian: it.SourcePeer}
	}
	if err := client.CloneComplete(it.SourceTransferId.UUID); err != nil {
		return PeerUnreachableError{Peer: it.SourcePeer, Cause: err}
	}
	return nil
}
