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

func TestCheckinStatusUnknownIdsReportNil(t *testing.T) {
	authenticator, token := librariantest.NewPeerCredential(t, "a-side", "peer-s3cret")
	librariantest.InitConfigWithPeer(t, "b-side", "", "a-side", "http://unused.example.org", token)
	deps := librariantest.NewDeps(t, "b-side", librariantest.NewStore(t, "primary"))
	registry := auth.NewRegistry(authenticator)
	_, client := librariantest.NewLoopbackLibrarian(t, deps, registry, "a-side", "peer-s3cret")

	resp, err := client.CheckinStatus([]uuid.UUID{uuid.New()}, []uuid.UUID{uuid.New()})
	require.NoError(t, err)
	for _, status := range resp.SourceTransferStatus {
		require.Nil(t, status)
	}
	for _, status := range resp.DestinationTransferStatus {
		require.Nil(t, status)
	}
}

func TestCheckinStatusReportsKnownOutgoingTransfer(t *testing.T) {
	authenticator, token := librariantest.NewPeerCredential(t, "a-side", "peer-s3cret")
	librariantest.InitConfigWithPeer(t, "b-side", "", "a-side", "http://unused.example.org", token)
	deps := librariantest.NewDeps(t, "b-side", librariantest.NewStore(t, "primary"))
	registry := auth.NewRegistry(authenticator)
	_, client := librariantest.NewLoopbackLibrarian(t, deps, registry, "a-side", "peer-s3cret")

	ot := transfer.OutgoingTransfer{
		Id: uuid.New(), DestPeer: "a-side", Status: transfer.Initiated,
		File: "datasets/sent.bin", TransferSize: 16,
		TransferChecksum: "md5:0123456789abcdef0123456789abcdef", StartTime: time.Now().UTC(),
	}
	require.NoError(t, deps.DB.CreateOutgoingTransfer(ot))

	resp, err := client.CheckinStatus([]uuid.UUID{ot.Id}, nil)
	require.NoError(t, err)
	require.NotNil(t, resp.SourceTransferStatus[ot.Id.String()])
	require.Equal(t, "INITIATED", *resp.SourceTransferStatus[ot.Id.String()])
}

func TestCheckinUpdateAdvancesIncomingTransfer(t *testing.T) {
	authenticator, token := librariantest.NewPeerCredential(t, "a-side", "peer-s3cret")
	librariantest.InitConfigWithPeer(t, "b-side", "", "a-side", "http://unused.example.org", token)
	deps := librariantest.NewDeps(t, "b-side", librariantest.NewStore(t, "primary"))
	registry := auth.NewRegistry(authenticator)
	_, client := librariantest.NewLoopbackLibrarian(t, deps, registry, "a-side", "peer-s3cret")

	it := transfer.IncomingTransfer{
		Id: uuid.New(), SourcePeer: "a-side", Status: transfer.Initiated,
		StoreId: "primary", StagingId: "staging-1", StagingPath: "/tmp/staging-1",
		StorePath: "datasets/received.bin", TransferSize: 16,
		TransferChecksum: "md5:0123456789abcdef0123456789abcdef", StartTime: time.Now().UTC(),
	}
	require.NoError(t, deps.DB.CreateIncomingTransfer(it))

	require.NoError(t, client.CheckinUpdate(it.Id, "ONGOING"))

	updated, err := deps.DB.GetIncomingTransfer(it.Id)
	require.NoError(t, err)
	require.Equal(t, transfer.Ongoing, updated.Status)
}

func TestCheckinUpdateRejectsIllegalTransition(t *testing.T) {
	authenticator, token := librariantest.NewPeerCredential(t, "a-side", "peer-s3cret")
	librariantest.InitConfigWithPeer(t, "b-side", "", "a-side", "http://unused.example.org", token)
	deps := librariantest.NewDeps(t, "b-side", librariantest.NewStore(t, "primary"))
	registry := auth.NewRegistry(authenticator)
	ts, _ := librariantest.NewLoopbackLibrarian(t, deps, registry, "a-side", "peer-s3cret")

	it := transfer.IncomingTransfer{
		Id: uuid.New(), SourcePeer: "a-side", Status: transfer.Initiated,
		StoreId: "primary", StagingId: "staging-2", StagingPath: "/tmp/staging-2",
		StorePath: "datasets/received2.bin", TransferSize: 16,
		TransferChecksum: "md5:0123456789abcdef0123456789abcdef", StartTime: time.Now().UTC(),
	}
	require.NoError(t, deps.DB.CreateIncomingTransfer(it))

	doJSON(t, ts.URL, "a-side", "peer-s3cret", http.MethodPost, "/checkin/update", map[string]any{
		"transfer_id": it.Id,
		"status":      "COMPLETED",
	}, http.StatusNotAcceptable, nil)
}
