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

package config

// configuration for a single named store
type storeConfig struct {
	// store kind ("local" is the only kind implemented; configuration
	// validation rejects any other type)
	Type string `yaml:"type"`
	// root directory for a local store
	Root string `yaml:"root"`
	// synchronous transfer manager names this store can use for local<->local moves
	TransferManagers []string `yaml:"transfer_managers,omitempty"`
	// asynchronous transfer manager names this store can use for peer-to-peer clones
	AsyncTransferManagers []string `yaml:"async_transfer_managers,omitempty"`
	// whether the store accepts new uploads (File/Instance creation)
	Ingestable bool `yaml:"ingestable"`
	// whether the store accepts any writes at all
	Enabled bool `yaml:"enabled"`
}
