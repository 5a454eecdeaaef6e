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
	"sync"
	"time"

	"github.com/HERA-Team/librarian-sub000/journal"
	"github.com/HERA-Team/librarian-sub000/store"
	"github.com/HERA-Team/librarian-sub000/transfer"
)

// RollingDeletion ages out local Instances once enough verified remote
// copies exist, per spec section 4.6. Peer validation calls for a single
// instance fan out across a small bounded worker pool rather than one
// goroutine per remote librarian.
type RollingDeletion struct {
	Deps *Deps

	Store                     string
	AgeInDays                 int
	NumberOfRemoteCopies      int
	VerifyDownstreamChecksums bool
	MarkUnavailable           bool
	ForceDeletion             bool

	// ValidationConcurrency bounds how many peers are queried at once per
	// instance; defaults to 4 if unset.
	ValidationConcurrency int

	period      time.Duration
	softTimeout time.Duration
}

func NewRollingDeletion(deps *Deps, store string, ageInDays, numberOfRemoteCopies int,
	verifyDownstreamChecksums, markUnavailable, forceDeletion bool, period, softTimeout time.Duration) *RollingDeletion {
	return &RollingDeletion{
		Deps: deps, Store: store, AgeInDays: ageInDays, NumberOfRemoteCopies: numberOfRemoteCopies,
		VerifyDownstreamChecksums: verifyDownstreamChecksums, MarkUnavailable: markUnavailable,
		ForceDeletion: forceDeletion, period: period, softTimeout: softTimeout,
	}
}

func (t *RollingDeletion) Name() string               { return "rolling_deletion:" + t.Store }
func (t *RollingDeletion) Period() time.Duration      { return t.period }
func (t *RollingDeletion) SoftTimeout() time.Duration { return t.softTimeout }

func (t *RollingDeletion) Run(ctx context.Context) error {
	s, found := t.Deps.Stores.Get(t.Store)
	if !found {
		return UnknownStoreError{Store: t.Store}
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -t.AgeInDays)
	instances, err := t.Deps.DB.InstancesOnStoreOlderThan(t.Store, cutoff)
	if err != nil {
		return fmt.Errorf("listing deletion candidates on '%s': %w", t.Store, err)
	}

	start := time.Now()
	for _, inst := range instances {
		if checkSoftTimeout(start, t.SoftTimeout()) || ctxDone(ctx) {
			break
		}
		if err := t.considerOne(s, inst); err != nil {
			slog.Error("rolling_deletion: evaluating instance failed", "id", inst.Id, "file", inst.File, "error", err)
		}
	}
	return nil
}

func (t *RollingDeletion) considerOne(s store.Store, inst transfer.Instance) error {
	file, err := t.Deps.DB.GetFile(inst.File)
	if err != nil {
		return fmt.Errorf("looking up file '%s': %w", inst.File, err)
	}

	matching := t.countMatchingRemoteCopies(file)
	if matching < t.NumberOfRemoteCopies {
		return nil
	}

	if t.ForceDeletion {
		if err := t.archiveCorruptFile(inst); err != nil {
			slog.Error("rolling_deletion: archiving corrupt_files record failed", "id", inst.Id, "file", inst.File, "error", err)
		}
		if err := s.Delete(inst.Path); err != nil {
			return fmt.Errorf("deleting bytes for instance %d: %w", inst.Id, err)
		}
		if err := t.Deps.DB.DeleteInstance(inst.Id); err != nil {
			return fmt.Errorf("deleting instance %d: %w", inst.Id, err)
		}
		return nil
	}
	if t.MarkUnavailable {
		return t.Deps.DB.SetInstanceAvailable(inst.Id, false)
	}
	return nil
}

// archiveCorruptFile moves any corrupt_files row tracking inst out of
// metadb's live diagnostics table and into the journal's write-once
// archive, since enough verified remote copies now exist and the instance
// is about to be deleted: metadb no longer needs to track it as a live
// problem once it stops existing.
func (t *RollingDeletion) archiveCorruptFile(inst transfer.Instance) error {
	record, found, err := t.Deps.DB.CorruptFileForInstance(inst.Id)
	if err != nil {
		return fmt.Errorf("looking up corrupt_files record for instance %d: %w", inst.Id, err)
	}
	if !found {
		return nil
	}
	if !journal.IsOpen() {
		return nil
	}
	now := time.Now().UTC()
	entry := journal.Entry{
		Kind: "corrupt_file", SourceId: record.Id, File: record.File,
		Message:      fmt.Sprintf("instance %d force-deleted after %d verified remote copies (observed %d bytes, checksum %s)", inst.Id, t.NumberOfRemoteCopies, record.ObservedSize, record.ObservedSum),
		RaisedTime:   record.FirstObserved,
		ResolvedTime: now,
	}
	if err := journal.Record(entry); err != nil {
		return fmt.Errorf("archiving corrupt_files record %d: %w", record.Id, err)
	}
	return t.Deps.DB.DeleteCorruptFile(record.Id)
}

// countMatchingRemoteCopies queries every known peer's validate/file
// endpoint for file, using a small bounded worker pool, and returns how many
// reported a matching checksum (or simply responded ok, when
// VerifyDownstreamChecksums is false).
func (t *RollingDeletion) countMatchingRemoteCopies(file transfer.File) int {
	names := t.Deps.Peers.Names()
	concurrency := t.ValidationConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	jobs := make(chan string)
	var mu sync.Mutex
	matching := 0
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				client, found := t.Deps.Peers.Get(name)
				if !found {
					continue
				}
				ok, err := client.ValidateFile(file.Name, string(file.Checksum.Normalize()))
				if err != nil {
					slog.Error("rolling_deletion: validate/file failed", "peer", name, "file", file.Name, "error", err)
					continue
				}
				if !t.VerifyDownstreamChecksums || ok {
					mu.Lock()
					matching++
					mu.Unlock()
				}
			}
		}()
	}
	for _, name := range names {
		jobs <- name
	}
	close(jobs)
	wg.Wait()
	return matching
}
