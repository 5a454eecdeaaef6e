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

package asynctransfer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalManagerBatchTransferAndStatus(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("hello"), 0664))

	m := NewLocalManager(&Local{SourceRoot: srcDir, DestRoot: dstDir})
	assert.True(t, m.Valid())

	err := m.BatchTransfer([]FilePair{{SourcePath: "a.txt", DestPath: "a.txt"}})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dstDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	state, err := m.TransferStatus()
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)
}

func TestLocalManagerBatchTransferMissingSourceFails(t *testing.T) {
	m := NewLocalManager(&Local{SourceRoot: t.TempDir(), DestRoot: t.TempDir()})
	err := m.BatchTransfer([]FilePair{{SourcePath: "missing.txt", DestPath: "missing.txt"}})
	assert.Error(t, err)

	state, _ := m.TransferStatus()
	assert.Equal(t, StateFailed, state)
}

func TestManagerMarshalUnmarshalRoundTrip(t *testing.T) {
	m := NewRsyncManager(&Rsync{RemoteHost: "h", RemoteUser: "u", RemoteRoot: "/r", SourceRoot: "/s"})
	data, err := Marshal(m)
	require.NoError(t, err)

	round, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "rsync", round.Kind)
	assert.True(t, round.Valid())
}

func TestManagerUnmarshalUnrecognizedKind(t *testing.T) {
	m, err := Unmarshal([]byte(`{"kind":"carrier_pigeon"}`))
	require.NoError(t, err)
	assert.False(t, m.Valid())
	_, err = m.TransferStatus()
	assert.Error(t, err)
}
