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

package transfer

import (
	"time"

	"github.com/google/uuid"
)

// File is a piece of content known to this librarian by a globally unique
// name. Size and checksum are immutable for the file's lifetime; a File is
// created once, on first successful upload or admin insertion, and deleted
// only via an explicit administrative path that cascades to its Instances
// and OutgoingTransfers.
type File struct {
	Name       string
	Size       int64
	Checksum   Checksum
	Uploader   string
	Source     string
	CreateTime time.Time
}

// DeletionPolicy governs whether RollingDeletion may remove an Instance.
type DeletionPolicy int

const (
	Allowed DeletionPolicy = iota
	Disallowed
)

// Instance is a concrete local copy of a File on one Store.
type Instance struct {
	Id             int64
	File           string // File.Name
	Store          string
	Path           string
	DeletionPolicy DeletionPolicy
	CreatedTime    time.Time
	Available      bool
}

// RemoteInstance is this librarian's belief that a named peer holds a copy
// of a File. It is created only on a successful peer acknowledgement and is
// never mutated; duplicates (same file, librarian, and store) are pruned by
// DuplicateRemoteInstanceHypervisor, keeping the earliest.
type RemoteInstance struct {
	Id        int64
	File      string // File.Name
	Librarian string
	StoreId   string // opaque remote store identifier
	CopyTime  time.Time
	Sender    string
}

// CorruptFile is a durable marker recording that an Instance's on-disk bytes
// no longer match the File's recorded size/checksum.
type CorruptFile struct {
	Id             int64
	File           string
	InstanceId     int64
	ObservedSize   int64
	ObservedSum    Checksum
	Count          int
	FirstObserved  time.Time
	LastObserved   time.Time
}

// IncomingTransfer is a durable record of an in-flight transfer into this
// librarian, whether a client upload or a peer-initiated clone.
type IncomingTransfer struct {
	Id uuid.UUID
	// peer name for a clone; "" for a direct client upload
	SourcePeer string
	// the source side's transfer id, once known (clone only)
	SourceTransferId uuid.NullUUID
	Status           Status
	StoreId          string
	StagingId        string
	StagingPath      string
	StorePath        string // destination_location
	TransferSize     int64
	TransferChecksum Checksum
	Uploader         string
	StartTime        time.Time
	EndTime          time.Time
}

// OutgoingTransfer is a durable record of an in-flight clone from this
// librarian to a peer.
type OutgoingTransfer struct {
	Id uuid.UUID
	// destination peer name
	DestPeer string
	// the destination side's transfer id, once known
	DestTransferId uuid.NullUUID
	Status         Status
	File           string
	SourcePath     string
	DestPath       string
	InstanceId     int64
	// the chosen async transfer manager payload, serialized
	AsyncManager     []byte
	TransferSize     int64
	TransferChecksum Checksum
	StartTime        time.Time
	EndTime          time.Time
}

// CloneTransfer is a durable record of a local cross-store copy. It mirrors
// the shared status lattice but never leaves this librarian.
type CloneTransfer struct {
	Id          uuid.UUID
	File        string
	FromStore   string
	ToStore     string
	StagingPath string
	StorePath   string
	Status      Status
	StartTime   time.Time
	EndTime     time.Time
}
