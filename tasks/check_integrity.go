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
)

// CheckIntegrity recomputes checksums for every available Instance on one
// store created within the last AgeInDays, recording a CorruptFile on
// mismatch and logging (but not failing the whole run) on a missing file.
type CheckIntegrity struct {
	Deps *Deps

	Store     string
	AgeInDays int

	period      time.Duration
	softTimeout time.Duration
}

// NewCheckIntegrity builds a CheckIntegrity task.
func NewCheckIntegrity(deps *Deps, store string, ageInDays int, period, softTimeout time.Duration) *CheckIntegrity {
	return &CheckIntegrity{Deps: deps, Store: store, AgeInDays: ageInDays, period: period, softTimeout: softTimeout}
}

func (t *CheckIntegrity) Name() string             { return "check_integrity:" + t.Store }
func (t *CheckIntegrity) Period() time.Duration    { return t.period }
func (t *CheckIntegrity) SoftTimeout() time.Duration { return t.softTimeout }

// Run verifies every recent Instance on t.Store. It returns UnknownStoreError
// if t.Store isn't registered. The scheduler logs that error like any other
// and runs the task again next period; the task is not removed from the
// schedule.
func (t *CheckIntegrity) Run(ctx context.Context) error {
	s, found := t.Deps.Stores.Get(t.Store)
	if !found {
		return UnknownStoreError{Store: t.Store}
	}

	since := time.Now().UTC().AddDate(0, 0, -t.AgeInDays)
	instances, err := t.Deps.DB.InstancesOnStoreWithinAge(t.Store, since)
	if err != nil {
		return fmt.Errorf("listing instances on store '%s': %w", t.Store, err)
	}

	start := time.Now()
	allVerified := true
	for _, inst := range instances {
		if checkSoftTimeout(start, t.SoftTimeout()) || ctxDone(ctx) {
			break
		}

		file, err := t.Deps.DB.GetFile(inst.File)
		if err != nil {
			slog.Error("check_integrity: file lookup failed", "store", t.Store, "file", inst.File, "error", err)
			allVerified = false
			continue
		}

		info, err := s.PathInfo(inst.Path, file.Checksum.Algo())
		if err != nil {
			slog.Error("check_integrity: instance missing or unreadable", "store", t.Store, "file", inst.File, "path", inst.Path, "error", err)
			continue
		}

		if info.Size != file.Size || info.Checksum != file.Checksum.Normalize() {
			if err := t.Deps.DB.CreateOrIncrementCorruptFile(inst.File, inst.Id, info.Size, info.Checksum); err != nil {
				return fmt.Errorf("recording corrupt file '%s': %w", inst.File, err)
			}
			allVerified = false
		}
	}

	if !allVerified {
		return fmt.Errorf("check_integrity on store '%s': one or more instances failed verification", t.Store)
	}
	return nil
}
