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
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HERA-Team/librarian-sub000/auth"
	"github.com/HERA-Team/librarian-sub000/librariantest"
)

type errorRecord struct {
	Id      int64  `json:"id"`
	Message string `json:"message"`
	Cleared bool   `json:"cleared"`
}

type errorList struct {
	Errors []errorRecord `json:"errors"`
}

func TestAdminListErrorsRequiresAdminLevel(t *testing.T) {
	authenticator, token := librariantest.NewPeerCredential(t, "a-side", "peer-s3cret")
	librariantest.InitConfigWithPeer(t, "b-side", "", "a-side", "http://unused.example.org", token)
	deps := librariantest.NewDeps(t, "b-side", librariantest.NewStore(t, "primary"))
	registry := auth.NewRegistry(authenticator)
	ts, _ := librariantest.NewLoopbackLibrarian(t, deps, registry, "a-side", "peer-s3cret")

	doJSON(t, ts.URL, "a-side", "peer-s3cret", http.MethodGet, "/admin/errors", nil, http.StatusForbidden, nil)
}

func TestAdminListAndClearError(t *testing.T) {
	librariantest.InitConfig(t, "admintest", librariantest.AdminHash(t, "s3cret"))
	deps := librariantest.NewDeps(t, "admintest", librariantest.NewStore(t, "primary"))
	registry := auth.NewRegistry(nil)
	ts, _ := librariantest.NewLoopbackLibrarian(t, deps, registry, "admin", "s3cret")

	id, err := deps.DB.RecordError("warning", "integrity", "checksum mismatch on datasets/x.bin")
	require.NoError(t, err)

	var list errorList
	doJSON(t, ts.URL, "admin", "s3cret", http.MethodGet, "/admin/errors", nil, http.StatusOK, &list)
	require.Len(t, list.Errors, 1)
	require.Equal(t, id, list.Errors[0].Id)
	require.False(t, list.Errors[0].Cleared)

	doJSON(t, ts.URL, "admin", "s3cret", http.MethodPost,
		fmt.Sprintf("/admin/errors/%d/clear", id), nil, http.StatusOK, nil)

	var afterClear errorList
	doJSON(t, ts.URL, "admin", "s3cret", http.MethodGet, "/admin/errors", nil, http.StatusOK, &afterClear)
	require.Empty(t, afterClear.Errors)
}

func TestAdminClearUnknownErrorIsNotFound(t *testing.T) {
	librariantest.InitConfig(t, "admintest", librariantest.AdminHash(t, "s3cret"))
	deps := librariantest.NewDeps(t, "admintest", librariantest.NewStore(t, "primary"))
	registry := auth.NewRegistry(nil)
	ts, _ := librariantest.NewLoopbackLibrarian(t, deps, registry, "admin", "s3cret")

	doJSON(t, ts.URL, "admin", "s3cret", http.MethodPost, "/admin/errors/99999/clear", nil, http.StatusNotFound, nil)
}
