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
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/HERA-Team/librarian-sub000/auth"
	"github.com/HERA-Team/librarian-sub000/librariantest"
)

type stageResponse struct {
	StoreName         string            `json:"store_name"`
	StagingName       string            `json:"staging_name"`
	StagingLocation   string            `json:"staging_location"`
	TransferProviders map[string]string `json:"transfer_providers"`
	TransferId        uuid.UUID         `json:"transfer_id"`
}

func TestUploadStageAndCommitCreatesFile(t *testing.T) {
	librariantest.InitConfig(t, "uploadtest", librariantest.AdminHash(t, "s3cret"))
	store := librariantest.NewStore(t, "primary")
	deps := librariantest.NewDeps(t, "uploadtest", store)
	registry := auth.NewRegistry(nil)
	ts, _ := librariantest.NewLoopbackLibrarian(t, deps, registry, "admin", "s3cret")

	content := []byte("hello, librarian")
	sum := md5.Sum(content)
	checksum := "md5:" + hex.EncodeToString(sum[:])

	var stage stageResponse
	doJSON(t, ts.URL, "admin", "s3cret", http.MethodPost, "/upload/stage", map[string]any{
		"destination_location": "datasets/hello.txt",
		"upload_size":           len(content),
		"upload_checksum":       checksum,
		"uploader":              "alice",
		"upload_name":           "hello.txt",
	}, http.StatusCreated, &stage)

	require.NoError(t, os.WriteFile(stage.StagingLocation, content, 0664))

	doJSON(t, ts.URL, "admin", "s3cret", http.MethodPost, "/upload/commit", map[string]any{
		"transfer_id":       stage.TransferId,
		"transfer_provider": "",
	}, http.StatusOK, nil)

	exists, err := deps.DB.FileExists("datasets/hello.txt")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestUploadStageRejectsNegativeSize(t *testing.T) {
	librariantest.InitConfig(t, "uploadtest", librariantest.AdminHash(t, "s3cret"))
	deps := librariantest.NewDeps(t, "uploadtest", librariantest.NewStore(t, "primary"))
	registry := auth.NewRegistry(nil)
	ts, _ := librariantest.NewLoopbackLibrarian(t, deps, registry, "admin", "s3cret")

	doJSON(t, ts.URL, "admin", "s3cret", http.MethodPost, "/upload/stage", map[string]any{
		"destination_location": "datasets/huge.bin",
		"upload_size":           -1,
		"upload_checksum":       "md5:0123456789abcdef0123456789abcdef",
		"uploader":              "alice",
		"upload_name":           "huge.bin",
	}, http.StatusBadRequest, nil)
}

func TestUploadCommitUnknownTransferIsNotFound(t *testing.T) {
	librariantest.InitConfig(t, "uploadtest", librariantest.AdminHash(t, "s3cret"))
	deps := librariantest.NewDeps(t, "uploadtest", librariantest.NewStore(t, "primary"))
	registry := auth.NewRegistry(nil)
	ts, _ := librariantest.NewLoopbackLibrarian(t, deps, registry, "admin", "s3cret")

	doJSON(t, ts.URL, "admin", "s3cret", http.MethodPost, "/upload/commit", map[string]any{
		"transfer_id":       uuid.New(),
		"transfer_provider": "",
	}, http.StatusNotFound, nil)
}

// doJSON issues a JSON request against baseURL+path with HTTP Basic auth,
// asserting the response status code and decoding its body into out if out
// is non-nil.
func doJSON(t *testing.T, baseURL, username, password, method, path string, body any, wantStatus int, out any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(method, baseURL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.SetBasicAuth(username, password)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}
