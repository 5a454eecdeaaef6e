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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/HERA-Team/librarian-sub000/transfer"
)

func TestDuplicateRemoteInstanceHypervisorPrunesKeepingEarliest(t *testing.T) {
	deps := newTestDeps(t)
	file := transfer.File{Name: "obs/040.uvh5", Size: 4, Checksum: transfer.Checksum("md5:ffffffffffffffffffffffffffffffff"), CreateTime: time.Now().UTC()}
	_, err := deps.DB.CreateFileAndInstance(file, transfer.Instance{File: file.Name, Store: "primary", Path: "/x", CreatedTime: time.Now().UTC(), Available: true})
	require.NoError(t, err)

	first, err := deps.DB.CreateRemoteInstance(transfer.RemoteInstance{
		File: file.Name, Librarian: "librarian-b", StoreId: "remote-store", CopyTime: time.Now().UTC(), Sender: "librarian-a",
	})
	require.NoError(t, err)
	second, err := deps.DB.CreateRemoteInstance(transfer.RemoteInstance{
		File: file.Name, Librarian: "librarian-b", StoreId: "remote-store", CopyTime: time.Now().UTC(), Sender: "librarian-a",
	})
	require.NoError(t, err)

	task := NewDuplicateRemoteInstanceHypervisor(deps, time.Hour, time.Second)
	require.NoError(t, task.Run(context.Background()))

	remaining, err := deps.DB.RemoteInstancesForFile(file.Name)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, first, remaining[0].Id)
	require.NotEqual(t, second, remaining[0].Id)
}
