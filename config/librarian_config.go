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

// configuration for a peer librarian known to this one
type librarianConfig struct {
	// base URL at which the peer's HTTP API is reachable
	Url string `yaml:"url"`
	// port on which the peer listens
	Port int `yaml:"port"`
	// "username:password" HTTP Basic credential, expected pre-encrypted with
	// the configured authenticator key; the librarian only decrypts this
	// value and never encrypts a plaintext one (see auth.Authenticator)
	Authenticator string `yaml:"authenticator"`
	// whether outbound transfers to this peer are currently permitted
	TransfersEnabled bool `yaml:"transfers_enabled"`
}

// configuration for the metadata database
type databaseConfig struct {
	// "sqlite" is the only driver implemented
	Driver string `yaml:"driver"`
	// data source name passed to database/sql; for sqlite this is a file path
	// (or ":memory:" for tests)
	Dsn string `yaml:"dsn"`
}
