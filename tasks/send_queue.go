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

	"github.com/HERA-Team/librarian-sub000/asynctransfer"
	"github.com/HERA-Team/librarian-sub000/metadb"
	"github.com/HERA-Team/librarian-sub000/transfer"
)

// SendQueueConsumer drains the durable send queue SendClone fills, one row
// at a time, actually driving bytes across the wire through the row's async
// transfer manager (spec section 4.5).
type SendQueueConsumer struct {
	Deps *Deps

	period      time.Duration
	softTimeout time.Duration
}

// NewSendQueueConsumer builds a SendQueueConsumer task.
func NewSendQueueConsumer(deps *Deps, period, softTimeout time.Duration) *SendQueueConsumer {
	return &SendQueueConsumer{Deps: deps, period: period, softTimeout: softTimeout}
}

func (t *SendQueueConsumer) Name() string               { return "send_queue_consumer" }
func (t *SendQueueConsumer) Period() time.Duration      { return t.period }
func (t *SendQueueConsumer) SoftTimeout() time.Duration { return t.softTimeout }

// Run reserves and consumes rows until the queue is empty or time runs out.
// ReserveNextSendQueueItem's BEGIN IMMEDIATE claim means a concurrent run of
// this task on another process never double-consumes a row (spec section 5).
func (t *SendQueueConsumer) Run(ctx context.Context) error {
	start := time.Now()
	for {
		if checkSoftTimeout(start, t.SoftTimeout()) || ctxDone(ctx) {
			return nil
		}
		item, found, err := t.Deps.DB.ReserveNextSendQueueItem()
		if err != nil {
			return fmt.Errorf("reserving next send queue item: %w", err)
		}
		if !found {
			return nil
		}
		if err := t.consumeOne(item); err != nil {
			slog.Error("send_queue_consumer: batch transfer failed", "id", item.Id, "destination", item.Destination, "error", err)
		}
	}
}

func (t *SendQueueConsumer) consumeOne(item metadb.SendQueueItem) error {
	manager, err := asynctransfer.Unmarshal(item.Manager)
	if err != nil {
		return fmt.Errorf("decoding async manager: %w", err)
	}

	pairs := make([]asynctransfer.FilePair, 0, len(item.TransferIds))
	for _, id := range item.TransferIds {
		ot, err := t.Deps.DB.GetOutgoingTransfer(id)
		if err != nil {
			return fmt.Errorf("looking up outgoing transfer %s: %w", id, err)
		}
		pairs = append(pairs, asynctransfer.FilePair{
			SourcePath: ot.SourcePath, DestPath: ot.DestPath, Checksum: string(ot.TransferChecksum),
		})
	}

	if err := manager.BatchTransfer(pairs); err != nil {
		if incErr := t.Deps.DB.IncrementSendQueueRetries(item.Id); incErr != nil {
			slog.Error("send_queue_consumer: recording retry failed", "id", item.Id, "error", incErr)
		}
		return fmt.Errorf("batch transfer to '%s': %w", item.Destination, err)
	}

	data, err := asynctransfer.Marshal(manager)
	if err != nil {
		return fmt.Errorf("encoding async manager: %w", err)
	}
	return t.Deps.DB.UpdateSendQueueManager(item.Id, data)
}

// SendQueueChecker polls consumed-but-incomplete send queue rows for
// completion, advancing both sides of the transfer once the underlying
// async manager reports the batch done (spec section 4.5).
type SendQueueChecker struct {
	Deps *Deps

	period      time.Duration
	softTimeout time.Duration
}

// NewSendQueueChecker builds a SendQueueChecker task.
func NewSendQueueChecker(deps *Deps, period, softTimeout time.Duration) *SendQueueChecker {
	return &SendQueueChecker{Deps: deps, period: period, softTimeout: softTimeout}
}

func (t *SendQueueChecker) Name() string               { return "send_queue_checker" }
func (t *SendQueueChecker) Period() time.Duration      { return t.period }
func (t *SendQueueChecker) SoftTimeout() time.Duration { return t.softTimeout }

func (t *SendQueueChecker) Run(ctx context.Context) error {
	items, err := t.Deps.DB.ConsumedIncompleteSendQueueItems()
	if err != nil {
		return fmt.Errorf("listing consumed send queue items: %w", err)
	}

	start := time.Now()
	for _, item := range items {
		if checkSoftTimeout(start, t.SoftTimeout()) || ctxDone(ctx) {
			break
		}
		if err := t.checkOne(item); err != nil {
			slog.Error("send_queue_checker: reconcile failed", "id", item.Id, "destination", item.Destination, "error", err)
		}
	}
	return nil
}

func (t *SendQueueChecker) checkOne(item metadb.SendQueueItem) error {
	manager, err := asynctransfer.Unmarshal(item.Manager)
	if err != nil {
		return fmt.Errorf("decoding async manager: %w", err)
	}
	state, err := manager.TransferStatus()
	if err != nil {
		return fmt.Errorf("polling transfer status: %w", err)
	}

	switch state {
	case asynctransfer.StateCompleted:
		t.advanceChildren(item)
		return t.Deps.DB.CompleteSendQueueItem(item.Id, false)
	case asynctransfer.StateFailed:
		t.failChildren(item)
		return t.Deps.DB.CompleteSendQueueItem(item.Id, true)
	default:
		return nil // still in flight; polled again next period
	}
}

// advanceChildren moves every OutgoingTransfer in the batch to STAGED, and
// tells the destination to do the same to its matching IncomingTransfer, so
// ReceiveClone picks the bytes up there.
func (t *SendQueueChecker) advanceChildren(item metadb.SendQueueItem) {
	client, found := t.Deps.Peers.Get(item.Destination)
	if !found {
		slog.Error("send_queue_checker: unknown destination librarian", "destination", item.Destination)
		return
	}
	for _, id := range item.TransferIds {
		if err := client.CheckinUpdate(id, transfer.Staged.String()); err != nil {
			slog.Error("send_queue_checker: checkin/update failed", "id", id, "error", err)
			continue
		}
		if err := t.Deps.DB.SetOutgoingTransferStatus(id, transfer.Staged); err != nil {
			slog.Error("send_queue_checker: local status update failed", "id", id, "error", err)
		}
	}
}

// failChildren fails every OutgoingTransfer in a batch whose async manager
// reported StateFailed.
func (t *SendQueueChecker) failChildren(item metadb.SendQueueItem) {
	for _, id := range item.TransferIds {
		if err := t.Deps.DB.SetOutgoingTransferStatus(id, transfer.Failed); err != nil {
			slog.Error("send_queue_checker: failing transfer failed", "id", id, "error", err)
		}
	}
}
