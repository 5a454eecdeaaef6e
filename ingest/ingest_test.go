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

package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/HERA-Team/librarian-sub000/metadb"
	"github.com/HERA-Team/librarian-sub000/store"
	"github.com/HERA-Team/librarian-sub000/transfer"
)

func newTestStore(t *testing.T) *store.LocalStore {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "staging"), 0775))
	s, err := store.NewLocalStore("primary", root, nil, nil, true, true)
	require.NoError(t, err)
	return s
}

func newTestDB(t *testing.T) *metadb.DB {
	t.Helper()
	db, err := metadb.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunCommitsMatchingBytes(t *testing.T) {
	s := newTestStore(t)
	db := newTestDB(t)

	content := []byte("some bytes to ingest")
	sum := md5.Sum(content)
	checksum := transfer.Checksum("md5:" + hex.EncodeToString(sum[:]))
	stagingId, stagingPath, err := s.Stage(int64(len(content)), "obs/100.uvh5")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(stagingPath, content, 0644))

	it := transfer.IncomingTransfer{
		Id: uuid.New(), Status: transfer.Staged, StoreId: "primary", StagingId: stagingId,
		StagingPath: stagingPath, StorePath: "obs/100.uvh5", TransferSize: int64(len(content)),
		TransferChecksum: checksum, Uploader: "alice", StartTime: time.Now().UTC(),
	}
	require.NoError(t, db.CreateIncomingTransfer(it))

	require.NoError(t, Run(db, s, it, transfer.Allowed))

	got, err := db.GetIncomingTransfer(it.Id)
	require.NoError(t, err)
	require.Equal(t, transfer.Completed, got.Status)

	instances, err := db.InstancesForFile("obs/100.uvh5")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	data, err := os.ReadFile(instances[0].Path)
	require.NoError(t, err)
	require.Equal(t, content, data)

	_, statErr := os.Stat(stagingPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestRunFailsAndUnstagesOnSizeMismatch(t *testing.T) {
	s := newTestStore(t)
	db := newTestDB(t)

	content := []byte("short")
	stagingId, stagingPath, err := s.Stage(int64(len(content)), "obs/101.uvh5")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(stagingPath, content, 0644))

	it := transfer.IncomingTransfer{
		Id: uuid.New(), Status: transfer.Staged, StoreId: "primary", StagingId: stagingId,
		StagingPath: stagingPath, StorePath: "obs/101.uvh5", TransferSize: int64(len(content)) + 100,
		TransferChecksum: transfer.Checksum("md5:2222222222222222222222222222222b"),
		Uploader: "alice", StartTime: time.Now().UTC(),
	}
	require.NoError(t, db.CreateIncomingTransfer(it))

	err = Run(db, s, it, transfer.Allowed)
	require.Error(t, err)
	var mismatch transfer.ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)

	got, err := db.GetIncomingTransfer(it.Id)
	require.NoError(t, err)
	require.Equal(t, transfer.Failed, got.Status)

	_, statErr := os.Stat(filepath.Dir(stagingPath))
	require.True(t, os.IsNotExist(statErr))
}

func TestRunFailsOnDestinationCollision(t *testing.T) {
	s := newTestStore(t)
	db := newTestDB(t)

	existing := transfer.File{Name: "obs/102.uvh5", Size: 4, Checksum: transfer.Checksum("md5:3333333333333333333333333333333c"), CreateTime: time.Now().UTC()}
	existingPath, err := s.Reserve(existing.Name)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(existingPath), 0775))
	require.NoError(t, os.WriteFile(existingPath, []byte("here"), 0644))
	_, err = db.CreateFileAndInstance(existing, transfer.Instance{
		File: existing.Name, Store: "primary", Path: existingPath, CreatedTime: time.Now().UTC(), Available: true,
	})
	require.NoError(t, err)

	content := []byte("new bytes")
	sum := md5.Sum(content)
	checksum := transfer.Checksum("md5:" + hex.EncodeToString(sum[:]))
	stagingId, stagingPath, err := s.Stage(int64(len(content)), "obs/102.uvh5")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(stagingPath, content, 0644))

	it := transfer.IncomingTransfer{
		Id: uuid.New(), Status: transfer.Staged, StoreId: "primary", StagingId: stagingId,
		StagingPath: stagingPath, StorePath: existing.Name, TransferSize: int64(len(content)),
		TransferChecksum: checksum, Uploader: "alice", StartTime: time.Now().UTC(),
	}
	require.NoError(t, db.CreateIncomingTransfer(it))

	err = Run(db, s, it, transfer.Allowed)
	require.Error(t, err)
	var collision CollisionError
	require.ErrorAs(t, err, &collision)

	got, err := db.GetIncomingTransfer(it.Id)
	require.NoError(t, err)
	require.Equal(t, transfer.Failed, got.Status)
}
