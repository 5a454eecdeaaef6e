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
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/HERA-Team/librarian-sub000/config"
	"github.com/HERA-Team/librarian-sub000/journal"
	"github.com/HERA-Team/librarian-sub000/peer"
	"github.com/HERA-Team/librarian-sub000/transfer"
)

func TestRollingDeletionForceDeletesWhenEnoughRemoteCopiesMatch(t *testing.T) {
	s := newTestStore(t, "primary")
	deps := newTestDeps(t, s)

	content := []byte("old bytes")
	file := transfer.File{Name: "obs/050.uvh5", Size: int64(len(content)), Checksum: transfer.Checksum("md5:1111111111111111111111111111111a"), CreateTime: time.Now().UTC().AddDate(0, 0, -60)}
	storePath, err := s.Reserve(file.Name)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(storePath), 0775))
	require.NoError(t, os.WriteFile(storePath, content, 0644))
	instanceId, err := deps.DB.CreateFileAndInstance(file, transfer.Instance{
		File: file.Name, Store: "primary", Path: storePath, CreatedTime: time.Now().UTC().AddDate(0, 0, -60), Available: true,
	})
	require.NoError(t, err)

	clientA, _ := newTestPeerServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]bool{"valid": true}))
	})
	clientB, _ := newTestPeerServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]bool{"valid": true}))
	})
	deps.Peers = NewPeerRegistry(map[string]*peer.Client{"librarian-b": clientA, "librarian-c": clientB})

	task := NewRollingDeletion(deps, "primary", 30, 2, true, false, true, time.Hour, time.Second)
	require.NoError(t, task.Run(context.Background()))

	_, err = s.PathInfo(storePath, "md5")
	require.Error(t, err)

	_, err = deps.DB.GetInstance(instanceId)
	require.Error(t, err)
}

func TestRollingDeletionLeavesInstanceWhenNotEnoughCopies(t *testing.T) {
	s := newTestStore(t, "primary")
	deps := newTestDeps(t, s)

	content := []byte("old bytes")
	file := transfer.File{Name: "obs/051.uvh5", Size: int64(len(content)), Checksum: transfer.Checksum("md5:2222222222222222222222222222222b"), CreateTime: time.Now().UTC().AddDate(0, 0, -60)}
	storePath, err := s.Reserve(file.Name)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(storePath), 0775))
	require.NoError(t, os.WriteFile(storePath, content, 0644))
	instanceId, err := deps.DB.CreateFileAndInstance(file, transfer.Instance{
		File: file.Name, Store: "primary", Path: storePath, CreatedTime: time.Now().UTC().AddDate(0, 0, -60), Available: true,
	})
	require.NoError(t, err)

	client, _ := newTestPeerServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]bool{"valid": false}))
	})
	deps.Peers = NewPeerRegistry(map[string]*peer.Client{"librarian-b": client})

	task := NewRollingDeletion(deps, "primary", 30, 2, true, true, false, time.Hour, time.Second)
	require.NoError(t, task.Run(context.Background()))

	inst, err := deps.DB.GetInstance(instanceId)
	require.NoError(t, err)
	require.True(t, inst.Available)

	data, err := os.ReadFile(storePath)
	require.NoError(t, err)
	require.Equal(t, content, data)
}

func TestRollingDeletionArchivesCorruptFileOnForceDelete(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, config.Init([]byte(`
librarian:
  name: rolling-deletion-test
  data_directory: `+dataDir+`
stores:
  primary:
    type: local
    root: `+dataDir+`
database:
  dsn: ":memory:"
`)))
	require.NoError(t, journal.Init())
	defer journal.Finalize()

	s := newTestStore(t, "primary")
	deps := newTestDeps(t, s)

	content := []byte("old corrupt bytes")
	file := transfer.File{Name: "obs/052.uvh5", Size: int64(len(content)), Checksum: transfer.Checksum("md5:3333333333333333333333333333333c"), CreateTime: time.Now().UTC().AddDate(0, 0, -60)}
	storePath, err := s.Reserve(file.Name)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(storePath), 0775))
	require.NoError(t, os.WriteFile(storePath, content, 0644))
	instanceId, err := deps.DB.CreateFileAndInstance(file, transfer.Instance{
		File: file.Name, Store: "primary", Path: storePath, CreatedTime: time.Now().UTC().AddDate(0, 0, -60), Available: true,
	})
	require.NoError(t, err)
	require.NoError(t, deps.DB.CreateOrIncrementCorruptFile(file.Name, instanceId, int64(len(content)), transfer.Checksum("md5:deadbeefdeadbeefdeadbeefdeadbeef")))

	client, _ := newTestPeerServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]bool{"valid": true}))
	})
	deps.Peers = NewPeerRegistry(map[string]*peer.Client{"librarian-b": client})

	task := NewRollingDeletion(deps, "primary", 30, 1, true, false, true, time.Hour, time.Second)
	require.NoError(t, task.Run(context.Background()))

	_, found, err := deps.DB.CorruptFileForInstance(instanceId)
	require.NoError(t, err)
	require.False(t, found)

	now := time.Now().UTC()
	entries, err := journal.Entries(now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "corrupt_file", entries[0].Kind)
	require.Equal(t, file.Name, entries[0].File)
}

func TestRollingDeletionUnknownStoreFails(t *testing.T) {
	deps := newTestDeps(t)
	task := NewRollingDeletion(deps, "nope", 30, 2, false, true, false, time.Hour, time.Second)
	err := task.Run(context.Background())
	require.Error(t, err)
	require.ErrorAs(t, err, &UnknownStoreError{})
}
