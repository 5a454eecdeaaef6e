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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/HERA-Team/librarian-sub000/transfer"
)

func TestCreateLocalCloneCopiesToFirstAvailableDestination(t *testing.T) {
	from := newTestStore(t, "from")
	to := newTestStore(t, "to")
	deps := newTestDeps(t, from, to)

	content := []byte("abc123")
	file := transfer.File{Name: "obs/003.uvh5", Size: int64(len(content)), Checksum: transfer.Checksum("md5:deadbeef"), CreateTime: time.Now().UTC().AddDate(0, 0, -1)}
	storePath, err := from.Reserve(file.Name)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(storePath), 0775))
	require.NoError(t, os.WriteFile(storePath, content, 0644))

	instance := transfer.Instance{File: file.Name, Store: "from", Path: storePath, CreatedTime: time.Now().UTC(), Available: true}
	_, err = deps.DB.CreateFileAndInstance(file, instance)
	require.NoError(t, err)

	task := NewCreateLocalClone(deps, "from", []string{"to"}, 30, 10, false, time.Hour, time.Second)
	require.NoError(t, task.Run(context.Background()))

	instances, err := deps.DB.InstancesForFile(file.Name)
	require.NoError(t, err)
	require.Len(t, instances, 2)

	var destPath string
	for _, inst := range instances {
		if inst.Store == "to" {
			destPath = inst.Path
		}
	}
	require.NotEmpty(t, destPath)
	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestCreateLocalCloneUnknownSourceStoreFails(t *testing.T) {
	deps := newTestDeps(t)
	task := NewCreateLocalClone(deps, "missing", []string{"to"}, 30, 10, false, time.Hour, time.Second)
	err := task.Run(context.Background())
	require.Error(t, err)
	require.ErrorAs(t, err, &UnknownStoreError{})
}

func TestCreateLocalCloneSkipsFileAlreadyOnDestination(t *testing.T) {
	from := newTestStore(t, "from")
	to := newTestStore(t, "to")
	deps := newTestDeps(t, from, to)

	content := []byte("xyz")
	file := transfer.File{Name: "obs/004.uvh5", Size: int64(len(content)), Checksum: transfer.Checksum("md5:cafebabe"), CreateTime: time.Now().UTC()}
	fromPath, err := from.Reserve(file.Name)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(fromPath), 0775))
	require.NoError(t, os.WriteFile(fromPath, content, 0644))
	_, err = deps.DB.CreateFileAndInstance(file, transfer.Instance{File: file.Name, Store: "from", Path: fromPath, CreatedTime: time.Now().UTC(), Available: true})
	require.NoError(t, err)

	toPath, err := to.Reserve(file.Name)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(toPath), 0775))
	require.NoError(t, os.WriteFile(toPath, content, 0644))
	_, err = deps.DB.CreateInstance(transfer.Instance{File: file.Name, Store: "to", Path: toPath, CreatedTime: time.Now().UTC(), Available: true})
	require.NoError(t, err)

	task := NewCreateLocalClone(deps, "from", []string{"to"}, 30, 10, false, time.Hour, time.Second)
	require.NoError(t, task.Run(context.Background()))

	instances, err := deps.DB.InstancesForFile(file.Name)
	require.NoError(t, err)
	require.Len(t, instances, 2)
}
