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

// Package librariantest contains fixtures for exercising a librarian service
// end to end in tests: an in-memory metadb, a temp-directory-backed store,
// and a loopback HTTP librarian a peer.Client can talk to over
// httptest.Server. It plays the role the teacher's dtstest package played
// for DTS's endpoint/database provider registry, rebuilt around this
// domain's store/metadb/services stack instead.
package librariantest

import (
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/HERA-Team/librarian-sub000/auth"
	"github.com/HERA-Team/librarian-sub000/config"
	"github.com/HERA-Team/librarian-sub000/metadb"
	"github.com/HERA-Team/librarian-sub000/peer"
	"github.com/HERA-Team/librarian-sub000/services"
	"github.com/HERA-Team/librarian-sub000/store"
	"github.com/HERA-Team/librarian-sub000/tasks"
)

// NewStore builds a LocalStore rooted in a fresh temp directory, ingestable
// and enabled, with no transfer managers configured.
func NewStore(t *testing.T, name string) *store.LocalStore {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "staging"), 0775))
	s, err := store.NewLocalStore(name, root, nil, nil, true, true)
	require.NoError(t, err)
	return s
}

// NewDeps builds a tasks.Deps backed by an in-memory metadb and the given
// stores, with an empty peer registry and no async transfer providers.
func NewDeps(t *testing.T, self string, stores ...store.Store) *tasks.Deps {
	t.Helper()
	db, err := metadb.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := make(map[string]store.Store, len(stores))
	for _, s := range stores {
		m[s.Name()] = s
	}
	return &tasks.Deps{
		DB:     db,
		Stores: store.NewRegistry(m),
		Peers:  tasks.NewPeerRegistry(nil),
		Self:   self,
	}
}

// InitConfig initializes the global config package with a minimal valid
// configuration: a single "primary" local store rooted at a temp directory,
// and the given admin bcrypt hash (may be empty to disable the admin
// account). Tests needing federation should use InitConfigWithPeer instead,
// since config.librarianConfig is unexported and so cannot be populated
// directly from outside the config package.
func InitConfig(t *testing.T, name, adminHash string) {
	t.Helper()
	require.NoError(t, config.Init(mustBuildYAML(t, name, adminHash, "")))
}

// InitConfigWithPeer is InitConfig plus one peer librarian entry, so
// federation tests can exercise auth.Registry's peer-credential path and
// tasks.PeerRegistry-backed handlers together.
func InitConfigWithPeer(t *testing.T, name, adminHash, peerName, peerURL, peerToken string) {
	t.Helper()
	peers := fmt.Sprintf(`
librarians:
  %s:
    url: %s
    authenticator: %q
    transfers_enabled: true
`, peerName, peerURL, peerToken)
	require.NoError(t, config.Init(mustBuildYAML(t, name, adminHash, peers)))
}

func mustBuildYAML(t *testing.T, name, adminHash, peersSection string) []byte {
	t.Helper()
	dataDir := t.TempDir()
	storeRoot := t.TempDir()
	return []byte(fmt.Sprintf(`
librarian:
  name: %s
  data_directory: %s
  admin_authenticator: %q
stores:
  primary:
    type: local
    root: %s
database:
  driver: sqlite
  dsn: ":memory:"
%s`, name, dataDir, adminHash, storeRoot, peersSection))
}

// AdminHash bcrypt-hashes password for use as InitConfig's adminHash
// argument.
func AdminHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)
	return string(hash)
}

// NewPeerCredential builds an Authenticator from a fresh fernet key and
// encrypts username/password with it, returning both the Authenticator (for
// building the receiving side's auth.Registry) and the encrypted token (for
// InitConfigWithPeer's peerToken argument).
func NewPeerCredential(t *testing.T, username, password string) (*auth.Authenticator, string) {
	t.Helper()
	var key fernet.Key
	require.NoError(t, key.Generate())
	a, err := auth.NewAuthenticator(key.Encode())
	require.NoError(t, err)
	token, err := a.Encrypt(username, password)
	require.NoError(t, err)
	return a, token
}

// NewLoopbackLibrarian serves deps and authRegistry over an httptest.Server,
// registering its cleanup with t, and returns a peer.Client already pointed
// at it with the given credentials.
func NewLoopbackLibrarian(t *testing.T, deps *tasks.Deps, authRegistry *auth.Registry, username, password string) (*httptest.Server, *peer.Client) {
	t.Helper()
	srv := services.NewServer(deps, authRegistry)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, peer.New(ts.URL, username, password, 0)
}
