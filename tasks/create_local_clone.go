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
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/HERA-Team/librarian-sub000/store"
	"github.com/HERA-Team/librarian-sub000/transfer"
)

// CreateLocalClone copies Files present on From but missing from every store
// in To, entirely within this librarian, recording each copy as a
// CloneTransfer and a new Instance.
type CreateLocalClone struct {
	Deps *Deps

	From               string
	To                 []string
	AgeInDays          int
	FilesPerRun        int
	DisableStoreOnFull bool

	period      time.Duration
	softTimeout time.Duration
}

// NewCreateLocalClone builds a CreateLocalClone task.
func NewCreateLocalClone(deps *Deps, from string, to []string, ageInDays, filesPerRun int,
	disableStoreOnFull bool, period, softTimeout time.Duration) *CreateLocalClone {
	return &CreateLocalClone{
		Deps: deps, From: from, To: to, AgeInDays: ageInDays, FilesPerRun: filesPerRun,
		DisableStoreOnFull: disableStoreOnFull, period: period, softTimeout: softTimeout,
	}
}

func (t *CreateLocalClone) Name() string               { return "create_local_clone:" + t.From }
func (t *CreateLocalClone) Period() time.Duration       { return t.period }
func (t *CreateLocalClone) SoftTimeout() time.Duration  { return t.softTimeout }

// Run copies up to FilesPerRun eligible Files from From, sending each to the
// first enabled store in To with enough free space for that File.
func (t *CreateLocalClone) Run(ctx context.Context) error {
	fromStore, found := t.Deps.Stores.Get(t.From)
	if !found {
		return UnknownStoreError{Store: t.From}
	}

	since := time.Now().UTC().AddDate(0, 0, -t.AgeInDays)
	files, err := t.Deps.DB.FilesLackingInstanceOn(t.From, t.To, since, t.FilesPerRun)
	if err != nil {
		return fmt.Errorf("listing clone candidates from '%s': %w", t.From, err)
	}

	start := time.Now()
	for _, f := range files {
		if checkSoftTimeout(start, t.SoftTimeout()) || ctxDone(ctx) {
			break
		}

		instances, err := t.Deps.DB.InstancesForFile(f.Name)
		if err != nil {
			slog.Error("create_local_clone: instance lookup failed", "file", f.Name, "error", err)
			continue
		}
		var source transfer.Instance
		for _, inst := range instances {
			if inst.Store == t.From && inst.Available {
				source = inst
				break
			}
		}
		if source.Id == 0 {
			continue
		}

		toStore, err := t.selectDestination(f.Size)
		if err != nil {
			slog.Error("create_local_clone: no destination store available", "file", f.Name, "error", err)
			continue
		}

		if err := t.cloneOne(fromStore, toStore, f, source); err != nil {
			slog.Error("create_local_clone: copy failed", "file", f.Name, "from", t.From, "to", toStore.Name(), "error", err)
		}
	}
	return nil
}

func (t *CreateLocalClone) selectDestination(size int64) (store.Store, error) {
	for _, name := range t.To {
		s, found := t.Deps.Stores.Get(name)
		if !found || !s.Enabled() {
			continue
		}
		free, err := s.FreeSpace()
		if err != nil {
			continue
		}
		if free < size {
			if t.DisableStoreOnFull {
				s.SetEnabled(false)
			}
			continue
		}
		return s, nil
	}
	return nil, UnreachableStateError{Detail: "no clone destination has enough free space"}
}

func (t *CreateLocalClone) cloneOne(from, to store.Store, f transfer.File, source transfer.Instance) error {
	cloneId := uuid.New()

	stagingId, stagingPath, err := to.Stage(f.Size, f.Name)
	if err != nil {
		return fmt.Errorf("staging on '%s': %w", to.Name(), err)
	}
	defer to.Unstage(stagingId)

	clone := transfer.CloneTransfer{
		Id: cloneId, File: f.Name, FromStore: from.Name(), ToStore: to.Name(),
		StagingPath: stagingPath, Status: transfer.Ongoing, StartTime: time.Now().UTC(),
	}
	if err := t.Deps.DB.CreateCloneTransfer(clone); err != nil {
		return fmt.Errorf("recording clone transfer: %w", err)
	}

	if err := copyFile(source.Path, stagingPath); err != nil {
		t.Deps.DB.SetCloneTransferStatus(cloneId, transfer.Failed)
		return fmt.Errorf("copying bytes: %w", err)
	}

	storePath, err := to.Reserve(f.Name)
	if err != nil {
		t.Deps.DB.SetCloneTransferStatus(cloneId, transfer.Failed)
		return fmt.Errorf("reserving destination path: %w", err)
	}
	if err := to.Commit(stagingPath, storePath); err != nil {
		t.Deps.DB.SetCloneTransferStatus(cloneId, transfer.Failed)
		return fmt.Errorf("committing clone: %w", err)
	}

	if _, err := t.Deps.DB.CreateInstance(transfer.Instance{
		File: f.Name, Store: to.Name(), Path: storePath,
		DeletionPolicy: source.DeletionPolicy, CreatedTime: time.Now().UTC(), Available: true,
	}); err != nil {
		return fmt.Errorf("recording new instance: %w", err)
	}

	return t.Deps.DB.SetCloneTransferStatus(cloneId, transfer.Completed)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
