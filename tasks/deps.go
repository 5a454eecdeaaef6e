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

// Package tasks implements the background tasks of spec sections 4.5 and
// 4.6: CheckIntegrity, CreateLocalClone, SendClone, the send queue's
// Consumer/Checker pair, ReceiveClone, the two transfer hypervisors,
// DuplicateRemoteInstanceHypervisor, and RollingDeletion. Each is a plain
// struct implementing scheduler.Task, reused
// one level up by the scheduler's per-task heartbeat goroutines
// (tasks/tasks.go's channelsType/processTasks idiom in the teacher, now
// generalized in package scheduler).
package tasks

import (
	"context"
	"time"

	"github.com/HERA-Team/librarian-sub000/asynctransfer"
	"github.com/HERA-Team/librarian-sub000/metadb"
	"github.com/HERA-Team/librarian-sub000/peer"
	"github.com/HERA-Team/librarian-sub000/store"
)

// Deps bundles the collaborators every task needs: the metadata database,
// the local store registry, and a factory for peer clients, replacing the
// teacher's module-level globals with an explicit struct passed to each
// task's constructor (spec section 9's "explicit Config" redesign note).
type Deps struct {
	DB     *metadb.DB
	Stores *store.Registry
	Peers  *PeerRegistry
	// AsyncProviders maps a provider name, as advertised by a peer's
	// clone/batch_stage response, to a pre-configured Manager this
	// librarian can drive. SendClone picks the first name present in both
	// the peer's advertisement and this map.
	AsyncProviders map[string]*asynctransfer.Manager
	// Self is this librarian's own name, used to populate `sender` on
	// RemoteInstance rows and to skip self when fanning out validation.
	Self string
}

// PeerRegistry resolves a librarian name to an authenticated peer.Client.
type PeerRegistry struct {
	clients map[string]*peer.Client
}

// NewPeerRegistry builds a PeerRegistry from a name -> Client map, typically
// constructed at startup from configuration (url, decrypted authenticator).
func NewPeerRegistry(clients map[string]*peer.Client) *PeerRegistry {
	return &PeerRegistry{clients: clients}
}

// Get returns the named peer's client, or (nil, false) if unconfigured.
func (r *PeerRegistry) Get(name string) (*peer.Client, bool) {
	c, found := r.clients[name]
	return c, found
}

// Names returns every configured peer's name.
func (r *PeerRegistry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}

// checkSoftTimeout reports whether elapsed time since start has exceeded
// timeout, the per-item check every task performs between loop iterations
// rather than mid-item (spec sections 4.6 and 5).
func checkSoftTimeout(start time.Time, timeout time.Duration) bool {
	return timeout > 0 && time.Since(start) > timeout
}

// ctxDone reports whether ctx has already been cancelled, an additional
// between-item check so a scheduler-imposed deadline also cooperates with a
// task's own soft_timeout bookkeeping.
func ctxDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
