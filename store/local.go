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

package store

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/HERA-Team/librarian-sub000/transfer"
)

// LocalStore is the reference Store implementation: a root-rooted local
// filesystem, generalized from the teacher's endpoints/local endpoint (which
// tracked in-flight transfers under a root) to stage/commit bookkeeping.
type LocalStore struct {
	name string
	root string

	syncManagers  []string
	asyncManagers []string
	ingestable    bool

	mu      sync.Mutex
	enabled bool
}

// NewLocalStore constructs a LocalStore rooted at root, checking that root
// exists.
func NewLocalStore(name, root string, syncManagers, asyncManagers []string, ingestable, enabled bool) (*LocalStore, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("store '%s': %w", name, err)
	}
	return &LocalStore{
		name:          name,
		root:          filepath.Clean(root),
		syncManagers:  syncManagers,
		asyncManagers: asyncManagers,
		ingestable:    ingestable,
		enabled:       enabled,
	}, nil
}

func (s *LocalStore) Name() string { return s.name }

func (s *LocalStore) FreeSpace() (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(s.root, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}

func (s *LocalStore) stagingRoot() string {
	return filepath.Join(s.root, "staging")
}

func (s *LocalStore) Stage(size int64, name string) (string, string, error) {
	if !s.Enabled() {
		return "", "", DisabledError{Store: s.name}
	}
	free, err := s.FreeSpace()
	if err != nil {
		return "", "", err
	}
	if size > free {
		return "", "", StoreFullError{Store: s.name, Requested: size, Free: free}
	}
	stagingId := uuid.New().String()
	stagingDir := filepath.Join(s.stagingRoot(), stagingId)
	if err := os.MkdirAll(stagingDir, 0775); err != nil {
		return "", "", err
	}
	stagingPath := filepath.Join(stagingDir, filepath.Base(name))
	return stagingId, stagingPath, nil
}

func (s *LocalStore) Unstage(stagingId string) error {
	stagingDir := filepath.Join(s.stagingRoot(), stagingId)
	resolved, err := s.resolveUnder(s.stagingRoot(), stagingDir)
	if err != nil {
		return err
	}
	return os.RemoveAll(resolved)
}

func (s *LocalStore) Reserve(relativeName string) (string, error) {
	storePath, err := s.ResolveStorePath(relativeName)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(storePath); err == nil {
		return "", AlreadyReservedError{Path: relativeName}
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0775); err != nil {
		return "", err
	}
	return storePath, nil
}

func (s *LocalStore) Commit(stagingPath, storePath string) error {
	if _, err := os.Stat(storePath); err == nil {
		return AlreadyReservedError{Path: storePath}
	}
	if err := os.Rename(stagingPath, storePath); err != nil {
		return err
	}
	return chmodGroupWritable(storePath)
}

// Delete removes a committed store path. A relative storePath is resolved
// against the store root; an absolute one, as Reserve returns, is used as
// is. Either way a path outside the root is rejected.
func (s *LocalStore) Delete(storePath string) error {
	resolved, err := s.ResolveStorePath(storePath)
	if filepath.IsAbs(storePath) {
		resolved, err = s.resolveUnder(s.root, storePath)
	}
	if err != nil {
		return err
	}
	return os.RemoveAll(resolved)
}

func (s *LocalStore) PathInfo(path string, hashAlgo string) (PathInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return PathInfo{}, err
	}
	if info.IsDir() {
		return PathInfo{IsDir: true}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return PathInfo{}, err
	}
	defer f.Close()

	var h hash.Hash
	switch strings.ToLower(hashAlgo) {
	case "", "md5":
		h = md5.New()
		hashAlgo = "md5"
	case "sha256":
		h = sha256.New()
	default:
		return PathInfo{}, fmt.Errorf("unsupported checksum algorithm '%s'", hashAlgo)
	}
	size, err := io.Copy(h, f)
	if err != nil {
		return PathInfo{}, err
	}
	sum := hex.EncodeToString(h.Sum(nil))
	return PathInfo{
		Size:     size,
		Checksum: transfer.Checksum(hashAlgo + ":" + sum),
	}, nil
}

func (s *LocalStore) ResolveStagingPath(p string) (string, error) {
	return s.resolveUnder(s.stagingRoot(), filepath.Join(s.stagingRoot(), p))
}

func (s *LocalStore) ResolveStorePath(p string) (string, error) {
	return s.resolveUnder(s.root, filepath.Join(s.root, p))
}

// resolveUnder rejects any resolved path that escapes root.
func (s *LocalStore) resolveUnder(root, resolved string) (string, error) {
	resolved = filepath.Clean(resolved)
	root = filepath.Clean(root)
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", PathEscapesRootError{Path: resolved}
	}
	return resolved, nil
}

func (s *LocalStore) Ingestable() bool { return s.ingestable }

func (s *LocalStore) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *LocalStore) SetEnabled(e bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = e
}

func (s *LocalStore) SyncTransferManagers() []string  { return s.syncManagers }
func (s *LocalStore) AsyncTransferManagers() []string { return s.asyncManagers }

// chmodGroupWritable normalizes permissions on a committed file or directory
// tree to group-writable, to support multi-user operation (spec section 4.2).
func chmodGroupWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return os.Chmod(path, info.Mode()|0664)
	}
	return filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return os.Chmod(p, fi.Mode()|0775)
		}
		return os.Chmod(p, fi.Mode()|0664)
	})
}
