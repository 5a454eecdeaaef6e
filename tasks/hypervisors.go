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

	"github.com/google/uuid"

	"github.com/HERA-Team/librarian-sub000/transfer"
)

// OutgoingTransferHypervisor reconciles OutgoingTransfers that have sat
// non-terminal past AgeInDays by asking the destination peer whether it
// actually has the file.
type OutgoingTransferHypervisor struct {
	Deps      *Deps
	AgeInDays int

	period      time.Duration
	softTimeout time.Duration
}

func NewOutgoingTransferHypervisor(deps *Deps, ageInDays int, period, softTimeout time.Duration) *OutgoingTransferHypervisor {
	return &OutgoingTransferHypervisor{Deps: deps, AgeInDays: ageInDays, period: period, softTimeout: softTimeout}
}

func (t *OutgoingTransferHypervisor) Name() string               { return "outgoing_transfer_hypervisor" }
func (t *OutgoingTransferHypervisor) Period() time.Duration      { return t.period }
func (t *OutgoingTransferHypervisor) SoftTimeout() time.Duration { return t.softTimeout }

func (t *OutgoingTransferHypervisor) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -t.AgeInDays)
	stale, err := t.Deps.DB.StaleNonTerminalOutgoingTransfers(cutoff)
	if err != nil {
		return fmt.Errorf("listing stale outgoing transfers: %w", err)
	}

	start := time.Now()
	for _, ot := range stale {
		if checkSoftTimeout(start, t.SoftTimeout()) || ctxDone(ctx) {
			break
		}
		if err := t.reconcileOne(ot); err != nil {
			slog.Error("outgoing_transfer_hypervisor: reconcile failed", "id", ot.Id, "error", err)
		}
	}
	return nil
}

func (t *OutgoingTransferHypervisor) reconcileOne(ot transfer.OutgoingTransfer) error {
	client, found := t.Deps.Peers.Get(ot.DestPeer)
	if !found {
		return UnknownLibrarianError{Librarian: ot.DestPeer}
	}

	file, err := t.Deps.DB.GetFile(ot.File)
	if err != nil {
		return fmt.Errorf("looking up file '%s': %w", ot.File, err)
	}

	matches, err := client.SearchFile(file.Name, 1)
	if err != nil {
		return PeerUnreachableError{Peer: ot.DestPeer, Cause: err}
	}
	if len(matches) == 0 || matches[0].Hash != string(file.Checksum.Normalize()) {
		return t.Deps.DB.SetOutgoingTransferStatus(ot.Id, transfer.Failed)
	}

	if _, err := t.Deps.DB.CreateRemoteInstance(transfer.RemoteInstance{
		File: ot.File, Librarian: ot.DestPeer, StoreId: matches[0].Path,
		CopyTime: time.Now().UTC(), Sender: t.Deps.Self,
	}); err != nil {
		return fmt.Errorf("recording remote instance: %w", err)
	}
	return t.Deps.DB.SetOutgoingTransferStatus(ot.Id, transfer.Completed)
}

// IncomingTransferHypervisor reconciles IncomingTransfers that have sat
// non-terminal past AgeInDays by asking the source peer what it believes our
// status is, and applying spec section 4.6's reconciliation table.
type IncomingTransferHypervisor struct {
	Deps      *Deps
	AgeInDays int

	period      time.Duration
	softTimeout time.Duration
}

func NewIncomingTransferHypervisor(deps *Deps, ageInDays int, period, softTimeout time.Duration) *IncomingTransferHypervisor {
	return &IncomingTransferHypervisor{Deps: deps, AgeInDays: ageInDays, period: period, softTimeout: softTimeout}
}

func (t *IncomingTransferHypervisor) Name() string               { return "incoming_transfer_hypervisor" }
func (t *IncomingTransferHypervisor) Period() time.Duration      { return t.period }
func (t *IncomingTransferHypervisor) SoftTimeout() time.Duration { return t.softTimeout }

func (t *IncomingTransferHypervisor) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -t.AgeInDays)
	stale, err := t.Deps.DB.StaleNonTerminalIncomingTransfers(cutoff)
	if err != nil {
		return fmt.Errorf("listing stale incoming transfers: %w", err)
	}

	start := time.Now()
	for _, it := range stale {
		if checkSoftTimeout(start, t.SoftTimeout()) || ctxDone(ctx) {
			break
		}
		if err := t.reconcileOne(it); err != nil {
			slog.Error("incoming_transfer_hypervisor: reconcile failed", "id", it.Id, "error", err)
		}
	}
	return nil
}

func (t *IncomingTransferHypervisor) reconcileOne(it transfer.IncomingTransfer) error {
	if it.Status == transfer.Staged {
		// ReceiveClone owns it; leave alone.
		return nil
	}
	if !it.SourceTransferId.Valid {
		return UnreachableStateError{Detail: fmt.Sprintf("incoming transfer %s has no source transfer id", it.Id)}
	}

	client, found := t.Deps.Peers.Get(it.SourcePeer)
	if !found {
		return UnknownLibrarianError{Librarian: it.SourcePeer}
	}

	resp, err := client.CheckinStatus([]uuid.UUID{it.SourceTransferId.UUID}, nil)
	if err != nil {
		return PeerUnreachableError{Peer: it.SourcePeer, Cause: err}
	}
	peerStatusStr := resp.SourceTransferStatus[it.SourceTransferId.UUID.String()]
	if peerStatusStr == nil {
		return UnreachableStateError{Detail: fmt.Sprintf("peer %s has no record of transfer %s", it.SourcePeer, it.SourceTransferId.UUID)}
	}
	peerStatus, err := transfer.ParseStatus(*peerStatusStr)
	if err != nil {
		return err
	}

	switch {
	case peerStatus == transfer.Completed && it.Status != transfer.Completed:
		return UnreachableStateError{Detail: fmt.Sprintf("peer reports COMPLETED for non-terminal incoming transfer %s", it.Id)}
	case peerStatus == transfer.Cancelled || peerStatus == transfer.Failed:
		return t.Deps.DB.SetIncomingTransferStatus(it.Id, transfer.Failed)
	case peerStatus == it.Status:
		return nil // source owns reconciliation when in lockstep
	case peerStatus == transfer.Staged && (it.Status == transfer.Initiated || it.Status == transfer.Ongoing):
		return t.catchUpTo(it, transfer.Staged)
	case peerStatus == transfer.Ongoing && it.Status == transfer.Initiated:
		return t.catchUpTo(it, transfer.Ongoing)
	case peerStatus == transfer.Initiated && it.Status == transfer.Ongoing:
		return UnreachableStateError{Detail: fmt.Sprintf("incoming transfer %s raced ahead of its source", it.Id)}
	default:
		return nil
	}
}

func (t *IncomingTransferHypervisor) catchUpTo(it transfer.IncomingTransfer, to transfer.Status) error {
	if err := t.Deps.DB.SetIncomingTransferStatus(it.Id, to); err != nil {
		return fmt.Errorf("catching up incoming transfer %s to %s: %w", it.Id, to, err)
	}
	return nil
}
