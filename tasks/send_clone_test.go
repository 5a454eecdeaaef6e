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
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/HERA-Team/librarian-sub000/asynctransfer"
	"github.com/HERA-Team/librarian-sub000/peer"
	"github.com/HERA-Team/librarian-sub000/transfer"
)

func newTestPeerServer(t *testing.T, handler http.HandlerFunc) (*peer.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return peer.New(srv.URL, "self", "secret", time.Second), srv
}

func TestSendCloneAdmitsAndQueuesAcceptedBatch(t *testing.T) {
	from := newTestStore(t, "primary")
	deps := newTestDeps(t, from)

	content := []byte("payload")
	file := transfer.File{Name: "obs/010.uvh5", Size: int64(len(content)), Checksum: transfer.Checksum("md5:0123456789abcdef0123456789abcdef"), CreateTime: time.Now().UTC().AddDate(0, 0, -1)}
	storePath, err := from.Reserve(file.Name)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(storePath), 0775))
	require.NoError(t, os.WriteFile(storePath, content, 0644))
	_, err = deps.DB.CreateFileAndInstance(file, transfer.Instance{
		File: file.Name, Store: "primary", Path: storePath, CreatedTime: time.Now().UTC(), Available: true,
	})
	require.NoError(t, err)

	var stagedSourceId string
	var checkinCalled bool
	client, _ := newTestPeerServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/clone/batch_stage":
			var body struct {
				Files []peer.CloneStageRequest `json:"files"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Len(t, body.Files, 1)
			stagedSourceId = body.Files[0].SourceTransferId.String()
			resp := struct {
				Transfers []peer.CloneStageResponse `json:"transfers"`
			}{Transfers: []peer.CloneStageResponse{{
				SourceTransferId:       body.Files[0].SourceTransferId,
				Accepted:               true,
				AsyncTransferProviders: map[string]string{"local": "local"},
			}}}
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		case "/checkin/update":
			checkinCalled = true
			w.WriteHeader(http.StatusOK)
		default:
			t.Fatalf("unexpected request path %s", r.URL.Path)
		}
	})

	deps.Peers = NewPeerRegistry(map[string]*peer.Client{"librarian-b": client})
	deps.AsyncProviders = map[string]*asynctransfer.Manager{
		"local": asynctransfer.NewLocalManager(&asynctransfer.Local{}),
	}

	task := NewSendClone(deps, "librarian-b", 30, "primary", 10, time.Hour, time.Second)
	require.NoError(t, task.Run(context.Background()))

	require.NotEmpty(t, stagedSourceId)
	require.True(t, checkinCalled)

	ot, err := deps.DB.GetOutgoingTransfer(mustParseUUID(t, stagedSourceId))
	require.NoError(t, err)
	require.Equal(t, transfer.Ongoing, ot.Status)
}

func TestSendCloneUnknownDestinationFails(t *testing.T) {
	deps := newTestDeps(t)
	task := NewSendClone(deps, "nowhere", 30, "primary", 10, time.Hour, time.Second)
	err := task.Run(context.Background())
	require.Error(t, err)
	require.ErrorAs(t, err, &UnknownLibrarianError{})
}

func TestSendCloneFailsBatchWhenNoAsyncProviderMatches(t *testing.T) {
	from := newTestStore(t, "primary")
	deps := newTestDeps(t, from)

	content := []byte("payload")
	file := transfer.File{Name: "obs/011.uvh5", Size: int64(len(content)), Checksum: transfer.Checksum("md5:0123456789abcdef0123456789abcdef"), CreateTime: time.Now().UTC().AddDate(0, 0, -1)}
	storePath, err := from.Reserve(file.Name)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(storePath), 0775))
	require.NoError(t, os.WriteFile(storePath, content, 0644))
	_, err = deps.DB.CreateFileAndInstance(file, transfer.Instance{
		File: file.Name, Store: "primary", Path: storePath, CreatedTime: time.Now().UTC(), Available: true,
	})
	require.NoError(t, err)

	client, _ := newTestPeerServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Files []peer.CloneStageRequest `json:"files"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		resp := struct {
			Transfers []peer.CloneStageResponse `json:"transfers"`
		}{Transfers: []peer.CloneStageResponse{{
			SourceTransferId:       body.Files[0].SourceTransferId,
			Accepted:               true,
			AsyncTransferProviders: map[string]string{"globus": "some-endpoint"},
		}}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	deps.Peers = NewPeerRegistry(map[string]*peer.Client{"librarian-b": client})
	deps.AsyncProviders = map[string]*asynctransfer.Manager{}

	task := NewSendClone(deps, "librarian-b", 30, "primary", 10, time.Hour, time.Second)
	err = task.Run(context.Background())
	require.Error(t, err)
	require.ErrorAs(t, err, &NoAsyncProviderError{})
}
