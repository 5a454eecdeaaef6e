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

// Package store implements the store manager contract: stage -> commit ->
// store on-disk layout, free-space and checksum queries. A Store is a named,
// typed storage back-end; LocalStore is the reference implementation.
package store

import "github.com/HERA-Team/librarian-sub000/transfer"

// PathInfo reports the observed size, checksum and type of a path on a Store.
type PathInfo struct {
	Size     int64
	Checksum transfer.Checksum
	IsDir    bool
}

// Store is the contract every storage back-end implements. All paths
// exposed to higher layers are validated to lie inside the store's staging
// or final root; permissions on committed files/directories are normalized
// to group-writable.
type Store interface {
	// Name returns the store's configured name.
	Name() string

	// FreeSpace returns the number of bytes currently free on the store.
	FreeSpace() (int64, error)

	// Stage allocates an isolated staging subdirectory keyed by a fresh
	// opaque id and returns that id plus the absolute path at which the
	// uploader must place bytes. Fails if size exceeds free space or the
	// store is disabled.
	Stage(size int64, name string) (stagingId string, stagingPath string, err error)

	// Unstage removes the staging subdirectory for stagingId recursively if
	// present. It is idempotent.
	Unstage(stagingId string) error

	// Reserve reserves a namespace slot for relativeName under the store
	// root, creating parent directories as needed. It fails if the path
	// already exists. This is spec's store(relative_name).
	Reserve(relativeName string) (storePath string, err error)

	// Commit atomically moves bytes from stagingPath into storePath.
	// storePath must have been reserved by Reserve and must not already
	// exist.
	Commit(stagingPath, storePath string) error

	// Delete physically removes a committed store path (RollingDeletion's
	// force_deletion path). Idempotent: deleting an already-absent path is
	// not an error.
	Delete(storePath string) error

	// PathInfo reports size, checksum (using hashAlgo) and type for path,
	// which may be either a staging or a store path belonging to this store.
	PathInfo(path string, hashAlgo string) (PathInfo, error)

	// ResolveStagingPath and ResolveStorePath resolve a caller-supplied
	// relative path against the store's staging/final root respectively,
	// rejecting any path that would escape that root.
	ResolveStagingPath(p string) (string, error)
	ResolveStorePath(p string) (string, error)

	// Ingestable reports whether the store accepts new uploads.
	Ingestable() bool
	// Enabled reports whether the store accepts any writes at all.
	Enabled() bool
	// SetEnabled allows a background task to disable a store found to be
	// too full (spec's CreateLocalClone "disable_store_on_full" option).
	SetEnabled(bool)

	// SyncTransferManagers lists the synchronous transfer-manager
	// capabilities usable for local<->local moves off this store.
	SyncTransferManagers() []string
	// AsyncTransferManagers lists the asynchronous transfer-manager
	// capabilities usable for peer-to-peer clones from this store.
	AsyncTransferManagers() []string
}
