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

package auth

import (
	"fmt"
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/HERA-Team/librarian-sub000/config"
)

func initTestConfig(t *testing.T, dataDir string, adminHash, peerToken string) {
	t.Helper()
	yamlData := []byte(fmt.Sprintf(`
librarian:
  name: test-librarian
  data_directory: %s
  admin_authenticator: %q
stores:
  primary:
    type: local
    root: %s
librarians:
  hera-north:
    url: http://hera-north.example.org
    authenticator: %q
database:
  driver: sqlite
  dsn: ":memory:"
`, dataDir, adminHash, dataDir, peerToken))
	require.NoError(t, config.Init(yamlData))
}

func TestAuthorizeAdminAccount(t *testing.T) {
	dir := t.TempDir()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.DefaultCost)
	require.NoError(t, err)
	initTestConfig(t, dir, string(hash), "")

	r := NewRegistry(nil)
	id, err := r.Authorize("admin", "s3cret")
	require.NoError(t, err)
	require.Equal(t, Identity{Name: "admin", Level: Admin}, id)

	_, err = r.Authorize("admin", "wrong")
	require.Error(t, err)
}

func TestAuthorizePeerLibrarian(t *testing.T) {
	dir := t.TempDir()
	var key fernet.Key
	require.NoError(t, key.Generate())
	a, err := NewAuthenticator(key.Encode())
	require.NoError(t, err)
	token, err := a.Encrypt("hera-north", "peer-s3cret")
	require.NoError(t, err)

	initTestConfig(t, dir, "", token)

	r := NewRegistry(a)
	id, err := r.Authorize("hera-north", "peer-s3cret")
	require.NoError(t, err)
	require.Equal(t, Identity{Name: "hera-north", Level: Append}, id)

	_, err = r.Authorize("hera-north", "wrong")
	require.Error(t, err)
}

func TestAuthorizeRejectsUnknownCredentials(t *testing.T) {
	dir := t.TempDir()
	initTestConfig(t, dir, "", "")

	r := NewRegistry(nil)
	_, err := r.Authorize("nobody", "nothing")
	require.Error(t, err)
}
