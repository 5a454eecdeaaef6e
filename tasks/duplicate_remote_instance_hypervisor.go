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
	"time"
)

// DuplicateRemoteInstanceHypervisor deletes RemoteInstance rows that
// duplicate an earlier row with the same (file, librarian, store), keeping
// the earliest.
type DuplicateRemoteInstanceHypervisor struct {
	Deps *Deps

	period      time.Duration
	softTimeout time.Duration
}

func NewDuplicateRemoteInstanceHypervisor(deps *Deps, period, softTimeout time.Duration) *DuplicateRemoteInstanceHypervisor {
	return &DuplicateRemoteInstanceHypervisor{Deps: deps, period: period, softTimeout: softTimeout}
}

func (t *DuplicateRemoteInstanceHypervisor) Name() string { return "duplicate_remote_instance_hypervisor" }
func (t *DuplicateRemoteInstanceHypervisor) Period() time.Duration      { return t.period }
func (t *DuplicateRemoteInstanceHypervisor) SoftTimeout() time.Duration { return t.softTimeout }

func (t *DuplicateRemoteInstanceHypervisor) Run(ctx context.Context) error {
	ids, err := t.Deps.DB.DuplicateRemoteInstanceIds()
	if err != nil {
		return fmt.Errorf("listing duplicate remote instances: %w", err)
	}

	start := time.Now()
	for _, id := range ids {
		if checkSoftTimeout(start, t.SoftTimeout()) || ctxDone(ctx) {
			break
		}
		if err := t.Deps.DB.DeleteRemoteInstance(id); err != nil {
			return fmt.Errorf("deleting duplicate remote instance %d: %w", id, err)
		}
	}
	return nil
}
