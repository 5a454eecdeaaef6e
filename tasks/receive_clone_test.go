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
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/HERA-Team/librarian-sub000/peer"
	"github.com/HERA-Team/librarian-sub000/transfer"
)

func TestReceiveCloneIngestsStagedTransfer(t *testing.T) {
	s := newTestStore(t, "primary")
	deps := newTestDeps(t, s)

	content := []byte("clone bytes")
	sum := md5.Sum(content)
	checksum := transfer.Checksum("md5:" + hex.EncodeToString(sum[:]))
	stagingId, stagingPath, err := s.Stage(int64(len(content)), "obs/020.uvh5")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(stagingPath, content, 0644))

	sourceTransferId := uuid.New()
	it := transfer.IncomingTransfer{
		Id: uuid.New(), SourcePeer: "librarian-b", SourceTransferId: uuid.NullUUID{UUID: sourceTransferId, Valid: true},
		Status: transfer.Staged, StoreId: "primary", StagingId: stagingId, StagingPath: stagingPath,
		StorePath: "obs/020.uvh5", TransferSize: int64(len(content)), TransferChecksum: checksum,
		Uploader: "bob", StartTime: time.Now().UTC(),
	}
	require.NoError(t, deps.DB.CreateIncomingTransfer(it))

	var completeCalled bool
	client, _ := newTestPeerServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/clone/complete", r.URL.Path)
		completeCalled = true
		w.WriteHeader(http.StatusOK)
	})
	deps.Peers = NewPeerRegistry(map[string]*peer.Client{"librarian-b": client})

	task := NewReceiveClone(deps, transfer.Allowed, 10, time.Hour, time.Second)
	require.NoError(t, task.Run(context.Background()))
	require.True(t, completeCalled)

	got, err := deps.DB.GetIncomingTransfer(it.Id)
	require.NoError(t, err)
	require.Equal(t, transfer.Completed, got.Status)

	instances, err := deps.DB.InstancesForFile("obs/020.uvh5")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	data, err := os.ReadFile(instances[0].Path)
	require.NoError(t, err)
	require.Equal(t, content, data)

	_, err = os.Stat(stagingPath)
	require.True(t, os.IsNotExist(err))
}

func TestReceiveCloneFailsOnChecksumMismatch(t *testing.T) {
	s := newTestStore(t, "primary")
	deps := newTestDeps(t, s)

	content := []byte("wrong bytes")
	stagingId, stagingPath, err := s.Stage(int64(len(content)), "obs/021.uvh5")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(stagingPath, content, 0644))

	it := transfer.IncomingTransfer{
		Id: uuid.New(), SourcePeer: "librarian-b", Status: transfer.Staged, StoreId: "primary",
		StagingId: stagingId, StagingPath: stagingPath, StorePath: "obs/021.uvh5",
		TransferSize: int64(len(content)) + 5, TransferChecksum: transfer.Checksum("md5:deadbeefdeadbeefdeadbeefdeadbeef"),
		Uploader: "bob", StartTime: time.Now().UTC(),
	}
	require.NoError(t, deps.DB.CreateIncomingTransfer(it))

	task := NewReceiveClone(deps, transfer.Allowed, 10, time.Hour, time.Second)
	require.NoError(t, task.Run(context.Background()))

	got, err := deps.DB.GetIncomingTransfer(it.Id)
	require.NoError(t, err)
	require.Equal(t, transfer.Failed, got.Status)

	_, statErr := os.Stat(filepath.Dir(stagingPath))
	require.True(t, os.IsNotExist(statErr))
}
