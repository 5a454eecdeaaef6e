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

import "fmt"

// StoreConfig mirrors the fields of config.storeConfig that NewFromConfig
// needs, without importing the config package directly (config imports
// nothing from store, so this avoids a cycle while keeping the caller's
// config struct authoritative).
type StoreConfig struct {
	Type                  string
	Root                  string
	TransferManagers      []string
	AsyncTransferManagers []string
	Ingestable            bool
	Enabled               bool
}

// NewFromConfig builds a Store for the given named configuration.
func NewFromConfig(name string, cfg StoreConfig) (Store, error) {
	switch cfg.Type {
	case "local", "":
		return NewLocalStore(name, cfg.Root, cfg.TransferManagers,
			cfg.AsyncTransferManagers, cfg.Ingestable, cfg.Enabled)
	default:
		return nil, fmt.Errorf("unsupported store type '%s' for store '%s'", cfg.Type, name)
	}
}

// Registry holds the set of stores configured for this librarian and
// answers the store-selection query the upload/clone protocols need: the
// first ingestable, enabled, available store with enough free space.
type Registry struct {
	stores map[string]Store
}

func NewRegistry(stores map[string]Store) *Registry {
	return &Registry{stores: stores}
}

func (r *Registry) Get(name string) (Store, bool) {
	s, found := r.stores[name]
	return s, found
}

func (r *Registry) All() map[string]Store {
	return r.stores
}

// SelectForUpload returns the first store that is ingestable, enabled, and
// has at least size bytes free, per spec section 4.3's stage admission rule.
// preferred, if non-empty, is tried first.
func (r *Registry) SelectForUpload(size int64, preferred string) (Store, error) {
	tryOrder := make([]string, 0, len(r.stores))
	if preferred != "" {
		tryOrder = append(tryOrder, preferred)
	}
	for name := range r.stores {
		if name != preferred {
			tryOrder = append(tryOrder, name)
		}
	}
	for _, name := range tryOrder {
		s := r.stores[name]
		if s == nil || !s.Ingestable() || !s.Enabled() {
			continue
		}
		free, err := s.FreeSpace()
		if err != nil {
			continue
		}
		if free >= size {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no store can admit %d bytes", size)
}
