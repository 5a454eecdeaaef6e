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

// Package asynctransfer implements the tagged AsyncTransferManager variant
// called for in spec section 9, replacing a picklable (Python) object
// persisted in the send queue with tagged JSON. Each variant implements the
// same capability set: BatchTransfer, Transfer, Valid, TransferStatus, which
// generalizes the teacher's single-endpoint-kind core.Endpoint interface
// (Transfer/Status/Cancel in core/endpoint.go) to three concrete transport
// kinds behind one sum type.
package asynctransfer

import (
	"encoding/json"
	"fmt"
)

// FilePair names a source path (relative to the source store) and a
// destination path (relative to the destination store) for a single file
// within a batch transfer.
type FilePair struct {
	SourcePath string `json:"source_path"`
	DestPath   string `json:"dest_path"`
	Checksum   string `json:"checksum,omitempty"`
}

// State is the lifecycle status an async manager reports for the batch it is
// carrying; it parallels transfer.Status but is scoped to the manager's own
// notion of progress (e.g. a Globus task's "Active"/"Succeeded"/"Failed").
type State int

const (
	StateInitiated State = iota
	StateCompleted
	StateFailed
)

// Capability is implemented by every AsyncTransferManager variant.
type Capability interface {
	// BatchTransfer starts moving the given files; on success the manager's
	// internal state (e.g. a remote task id) is updated so a later call to
	// TransferStatus can poll it.
	BatchTransfer(files []FilePair) error
	// Transfer starts moving a single file; equivalent to BatchTransfer with
	// one element, kept as a distinct method because some backends (Globus)
	// expose single-item submission separately.
	Transfer(pair FilePair) error
	// Valid reports whether this manager is usable right now (e.g. its
	// credentials haven't expired).
	Valid() bool
	// TransferStatus polls the manager for its current batch state.
	TransferStatus() (State, error)
}

// Manager is the tagged-variant AsyncTransferManager persisted (as JSON) in
// a send_queue row's manager column.
type Manager struct {
	Kind   string  `json:"kind"`
	Local  *Local  `json:"local,omitempty"`
	Rsync  *Rsync  `json:"rsync,omitempty"`
	Globus *Globus `json:"globus,omitempty"`
}

// capability returns the active variant's Capability implementation.
func (m *Manager) capability() (Capability, error) {
	switch m.Kind {
	case "local":
		if m.Local == nil {
			return nil, fmt.Errorf("manager tagged 'local' carries no Local payload")
		}
		return m.Local, nil
	case "rsync":
		if m.Rsync == nil {
			return nil, fmt.Errorf("manager tagged 'rsync' carries no Rsync payload")
		}
		return m.Rsync, nil
	case "globus":
		if m.Globus == nil {
			return nil, fmt.Errorf("manager tagged 'globus' carries no Globus payload")
		}
		return m.Globus, nil
	default:
		return nil, fmt.Errorf("unrecognized async transfer manager kind '%s'", m.Kind)
	}
}

func (m *Manager) BatchTransfer(files []FilePair) error {
	c, err := m.capability()
	if err != nil {
		return err
	}
	return c.BatchTransfer(files)
}

func (m *Manager) Transfer(pair FilePair) error {
	c, err := m.capability()
	if err != nil {
		return err
	}
	return c.Transfer(pair)
}

func (m *Manager) Valid() bool {
	c, err := m.capability()
	if err != nil {
		return false
	}
	return c.Valid()
}

func (m *Manager) TransferStatus() (State, error) {
	c, err := m.capability()
	if err != nil {
		return StateFailed, err
	}
	return c.TransferStatus()
}

// NewLocalManager wraps a Local capability in a Manager.
func NewLocalManager(l *Local) *Manager { return &Manager{Kind: "local", Local: l} }

// NewRsyncManager wraps an Rsync capability in a Manager.
func NewRsyncManager(r *Rsync) *Manager { return &Manager{Kind: "rsync", Rsync: r} }

// NewGlobusManager wraps a Globus capability in a Manager.
func NewGlobusManager(g *Globus) *Manager { return &Manager{Kind: "globus", Globus: g} }

// Marshal serializes a Manager to the tagged JSON form stored in the
// database.
func Marshal(m *Manager) ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal deserializes a Manager from its stored tagged JSON form.
func Unmarshal(data []byte) (*Manager, error) {
	var m Manager
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
