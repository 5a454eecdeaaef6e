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

package services_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/HERA-Team/librarian-sub000/auth"
	"github.com/HERA-Team/librarian-sub000/librariantest"
	"github.com/HERA-Team/librarian-sub000/transfer"
)

type cloneStageResponse struct {
	SourceTransferId      uuid.UUID `json:"source_transfer_id"`
	Accepted              bool      `json:"accepted"`
	DominantErrorCode     int       `json:"error_code,omitempty"`
	DestinationTransferId uuid.UUID `json:"destination_transfer_id"`
	StagingLocation       string    `json:"staging_location"`
	StoreId               string    `json:"store_id"`
}

func TestCloneStageAcceptsNewFile(t *testing.T) {
	authenticator, token := librariantest.NewPeerCredential(t, "a-side", "peer-s3cret")
	librariantest.InitConfigWithPeer(t, "b-side", "", "a-side", "http://unused.example.org", token)
	store := librariantest.NewStore(t, "primary")
	deps := librariantest.NewDeps(t, "b-side", store)
	registry := auth.NewRegistry(authenticator)
	ts, _ := librariantest.NewLoopbackLibrarian(t, deps, registry, "a-side", "peer-s3cret")

	sourceId := uuid.New()
	var resp cloneStageResponse
	doJSON(t, ts.URL, "a-side", "peer-s3cret", http.MethodPost, "/clone/stage", map[string]any{
		"source_transfer_id": sourceId,
		"file":                "datasets/remote.bin",
		"size":                1024,
		"checksum":            "md5:0123456789abcdef0123456789abcdef",
	}, http.StatusCreated, &resp)

	require.True(t, resp.Accepted)
	require.Equal(t, sourceId, resp.SourceTransferId)
	require.Equal(t, store.Name(), resp.StoreId)

	it, err := deps.DB.GetIncomingTransfer(resp.DestinationTransferId)
	require.NoError(t, err)
	require.Equal(t, "a-side", it.SourcePeer)
	require.Equal(t, transfer.Initiated, it.Status)
}

func TestCloneStageRejectsAlreadyPresentFile(t *testing.T) {
	authenticator, token := librariantest.NewPeerCredential(t, "a-side", "peer-s3cret")
	librariantest.InitConfigWithPeer(t, "b-side", "", "a-side", "http://unused.example.org", token)
	store := librariantest.NewStore(t, "primary")
	deps := librariantest.NewDeps(t, "b-side", store)
	registry := auth.NewRegistry(authenticator)
	ts, _ := librariantest.NewLoopbackLibrarian(t, deps, registry, "a-side", "peer-s3cret")

	f := transfer.File{Name: "datasets/remote.bin", Size: 1024,
		Checksum: "md5:0123456789abcdef0123456789abcdef", CreateTime: time.Now().UTC()}
	_, err := deps.DB.CreateFileAndInstance(f, transfer.Instance{
		File: f.Name, Store: store.Name(), Path: f.Name, Available: true, CreatedTime: f.CreateTime,
	})
	require.NoError(t, err)

	var resp cloneStageResponse
	doJSON(t, ts.URL, "a-side", "peer-s3cret", http.MethodPost, "/clone/stage", map[string]any{
		"source_transfer_id": uuid.New(),
		"file":                f.Name,
		"size":                1024,
		"checksum":            "md5:0123456789abcdef0123456789abcdef",
	}, http.StatusConflict, &resp)

	require.False(t, resp.Accepted)
	require.Equal(t, http.StatusConflict, resp.DominantErrorCode)
}

func TestCloneOngoingAndStagedAdvanceIncomingTransfer(t *testing.T) {
	authenticator, token := librariantest.NewPeerCredential(t, "a-side", "peer-s3cret")
	librariantest.InitConfigWithPeer(t, "b-side", "", "a-side", "http://unused.example.org", token)
	store := librariantest.NewStore(t, "primary")
	deps := librariantest.NewDeps(t, "b-side", store)
	registry := auth.NewRegistry(authenticator)
	ts, _ := librariantest.NewLoopbackLibrarian(t, deps, registry, "a-side", "peer-s3cret")

	var stage cloneStageResponse
	doJSON(t, ts.URL, "a-side", "peer-s3cret", http.MethodPost, "/clone/stage", map[string]any{
		"source_transfer_id": uuid.New(),
		"file":                "datasets/remote2.bin",
		"size":                16,
		"checksum":            "md5:0123456789abcdef0123456789abcdef",
	}, http.StatusCreated, &stage)
	require.True(t, stage.Accepted)

	doJSON(t, ts.URL, "a-side", "peer-s3cret", http.MethodPost, "/clone/ongoing", map[string]any{
		"transfer_id": stage.DestinationTransferId,
	}, http.StatusOK, nil)
	it, err := deps.DB.GetIncomingTransfer(stage.DestinationTransferId)
	require.NoError(t, err)
	require.Equal(t, transfer.Ongoing, it.Status)

	doJSON(t, ts.URL, "a-side", "peer-s3cret", http.MethodPost, "/clone/staged", map[string]any{
		"transfer_id": stage.DestinationTransferId,
	}, http.StatusOK, nil)
	it, err = deps.DB.GetIncomingTransfer(stage.DestinationTransferId)
	require.NoError(t, err)
	require.Equal(t, transfer.Staged, it.Status)
}

func TestCloneCompleteUnknownTransferIsNotFound(t *testing.T) {
	authenticator, token := librariantest.NewPeerCredential(t, "a-side", "peer-s3cret")
	librariantest.InitConfigWithPeer(t, "b-side", "", "a-side", "http://unused.example.org", token)
	deps := librariantest.NewDeps(t, "b-side", librariantest.NewStore(t, "primary"))
	registry := auth.NewRegistry(authenticator)
	ts, _ := librariantest.NewLoopbackLibrarian(t, deps, registry, "a-side", "peer-s3cret")

	doJSON(t, ts.URL, "a-side", "peer-s3cret", http.MethodPost, "/clone/complete", map[string]any{
		"transfer_id": uuid.New(),
	}, http.StatusNotFound, nil)
}
