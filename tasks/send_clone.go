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

	"github.com/HERA-Team/librarian-sub000/asynctransfer"
	"github.com/HERA-Team/librarian-sub000/metadb"
	"github.com/HERA-Team/librarian-sub000/peer"
	"github.com/HERA-Team/librarian-sub000/transfer"
)

// SendClone batches Files needing replication to Destination and drives them
// through the seven-step admission procedure of spec section 4.6.
type SendClone struct {
	Deps *Deps

	Destination    string
	AgeInDays      int
	StorePreference string
	SendBatchSize  int

	period      time.Duration
	softTimeout time.Duration
}

// NewSendClone builds a SendClone task.
func NewSendClone(deps *Deps, destination string, ageInDays int, storePreference string,
	sendBatchSize int, period, softTimeout time.Duration) *SendClone {
	return &SendClone{
		Deps: deps, Destination: destination, AgeInDays: ageInDays,
		StorePreference: storePreference, SendBatchSize: sendBatchSize,
		period: period, softTimeout: softTimeout,
	}
}

func (t *SendClone) Name() string               { return "send_clone:" + t.Destination }
func (t *SendClone) Period() time.Duration      { return t.period }
func (t *SendClone) SoftTimeout() time.Duration { return t.softTimeout }

type sendCandidate struct {
	file     transfer.File
	instance transfer.Instance
	outgoing transfer.OutgoingTransfer
}

func (t *SendClone) Run(ctx context.Context) error {
	client, found := t.Deps.Peers.Get(t.Destination)
	if !found {
		return UnknownLibrarianError{Librarian: t.Destination}
	}

	since := time.Now().UTC().AddDate(0, 0, -t.AgeInDays)
	files, err := t.Deps.DB.FilesNeedingSend(t.Destination, since, t.SendBatchSize)
	if err != nil {
		return fmt.Errorf("listing send candidates for '%s': %w", t.Destination, err)
	}
	if len(files) == 0 {
		return nil
	}

	// Step 1: pick one available local instance per file, preferring
	// StorePreference.
	var batch []sendCandidate
	for _, f := range files {
		instances, err := t.Deps.DB.InstancesForFile(f.Name)
		if err != nil {
			slog.Error("send_clone: instance lookup failed", "file", f.Name, "error", err)
			continue
		}
		inst, found := pickInstance(instances, t.StorePreference)
		if !found {
			continue
		}
		batch = append(batch, sendCandidate{file: f, instance: inst})
	}
	if len(batch) == 0 {
		return nil
	}

	// Step 2: create OutgoingTransfer rows in INITIATED.
	for i := range batch {
		ot := transfer.OutgoingTransfer{
			Id: uuid.New(), DestPeer: t.Destination, Status: transfer.Initiated,
			File: batch[i].file.Name, SourcePath: batch[i].instance.Path,
			InstanceId: batch[i].instance.Id, TransferSize: batch[i].file.Size,
			TransferChecksum: batch[i].file.Checksum, StartTime: time.Now().UTC(),
		}
		if err := t.Deps.DB.CreateOutgoingTransfer(ot); err != nil {
			return fmt.Errorf("recording outgoing transfer for '%s': %w", batch[i].file.Name, err)
		}
		batch[i].outgoing = ot
	}

	// Step 3: call clone/batch_stage.
	reqs := make([]peer.CloneStageRequest, len(batch))
	for i, c := range batch {
		reqs[i] = peer.CloneStageRequest{
			SourceTransferId: c.outgoing.Id, File: c.file.Name,
			Size: c.file.Size, Checksum: string(c.file.Checksum),
		}
	}
	resps, err := client.CloneBatchStage(reqs)
	if err != nil {
		t.failBatch(batch, fmt.Sprintf("clone/batch_stage failed: %s", err.Error()))
		return PeerUnreachableError{Peer: t.Destination, Cause: err}
	}

	// Step 4: reconcile responses against requests by source transfer id.
	byId := make(map[uuid.UUID]peer.CloneStageResponse, len(resps))
	for _, r := range resps {
		byId[r.SourceTransferId] = r
	}
	var accepted []sendCandidate
	var provider string
	for i, c := range batch {
		resp, ok := byId[c.outgoing.Id]
		if !ok || !resp.Accepted {
			reason := "peer did not accept this file"
			if ok {
				reason = fmt.Sprintf("peer rejected with code %d", resp.DominantErrorCode)
			}
			t.failOne(c.outgoing.Id, reason)
			continue
		}
		batch[i].outgoing.DestPath = resp.StagingLocation
		if err := t.Deps.DB.SetOutgoingTransferDestId(c.outgoing.Id, resp.DestinationTransferId); err != nil {
			slog.Error("send_clone: recording dest transfer id failed", "id", c.outgoing.Id, "error", err)
			continue
		}
		if provider == "" {
			provider = firstKnownProvider(resp.AsyncTransferProviders, t.Deps.AsyncProviders)
		}
		accepted = append(accepted, batch[i])
	}
	if len(accepted) == 0 {
		return nil
	}

	// Step 5: pick the first valid async transfer provider.
	manager, ok := t.Deps.AsyncProviders[provider]
	if !ok || provider == "" {
		t.failBatch(accepted, "no usable async transfer provider")
		return NoAsyncProviderError{Destination: t.Destination}
	}

	// Step 6: create one SendQueue row binding these transfers.
	managerData, err := asynctransfer.Marshal(manager)
	if err != nil {
		return fmt.Errorf("serializing async manager: %w", err)
	}
	ids := make([]uuid.UUID, len(accepted))
	for i, c := range accepted {
		ids[i] = c.outgoing.Id
	}
	if _, err := t.Deps.DB.CreateSendQueueItem(metadb.SendQueueItem{
		Priority: 0, Destination: t.Destination, CreatedTime: time.Now().UTC(),
		Manager: managerData, TransferIds: ids,
	}); err != nil {
		return fmt.Errorf("creating send queue item: %w", err)
	}

	// Step 7: checkin/update to ONGOING on both sides.
	for _, c := range accepted {
		if err := client.CheckinUpdate(c.outgoing.Id, transfer.Ongoing.String()); err != nil {
			slog.Error("send_clone: checkin/update failed", "id", c.outgoing.Id, "error", err)
			continue
		}
		if err := t.Deps.DB.SetOutgoingTransferStatus(c.outgoing.Id, transfer.Ongoing); err != nil {
			slog.Error("send_clone: local status update failed", "id", c.outgoing.Id, "error", err)
		}
	}
	return nil
}

func (t *SendClone) failBatch(batch []sendCandidate, reason string) {
	for _, c := range batch {
		t.failOne(c.outgoing.Id, reason)
	}
}

func (t *SendClone) failOne(id uuid.UUID, reason string) {
	if err := t.Deps.DB.SetOutgoingTransferStatus(id, transfer.Failed); err != nil {
		slog.Error("send_clone: failing transfer failed", "id", id, "error", err)
	}
	slog.Error("send_clone: transfer failed", "id", id, "reason", reason)
}

func pickInstance(instances []transfer.Instance, preferred string) (transfer.Instance, bool) {
	var fallback transfer.Instance
	haveFallback := false
	for _, inst := range instances {
		if !inst.Available {
			continue
		}
		if inst.Store == preferred {
			return inst, true
		}
		if !haveFallback {
			fallback = inst
			haveFallback = true
		}
	}
	return fallback, haveFallback
}

func firstKnownProvider(advertised map[string]string, known map[string]*asynctransfer.Manager) string {
	for name := range advertised {
		if _, ok := known[name]; ok {
			return name
		}
	}
	return ""
}
