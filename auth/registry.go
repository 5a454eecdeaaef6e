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

	"golang.org/x/crypto/bcrypt"

	"github.com/HERA-Team/librarian-sub000/config"
)

// Registry resolves HTTP Basic credentials presented to the service's HTTP
// endpoints into an Identity, checking them against the single configured
// administrator account and every configured peer librarian's shared
// credential in turn.
//
// Peer librarians are configured symmetrically: the same Authenticator
// credential a librarian uses to call a peer is also what that peer presents
// back when calling us, so one config.librarianConfig entry serves both
// directions.
type Registry struct {
	auth *Authenticator
}

// NewRegistry builds a Registry. auth may be nil if no peer federation is
// configured, in which case only the administrator account can authenticate.
func NewRegistry(auth *Authenticator) *Registry {
	return &Registry{auth: auth}
}

// Authorize resolves username/password into an Identity, or returns an error
// if the credentials match neither the administrator account nor any
// configured peer librarian.
func (r *Registry) Authorize(username, password string) (Identity, error) {
	if username == "admin" && config.Service.AdminAuthenticator != "" {
		err := bcrypt.CompareHashAndPassword([]byte(config.Service.AdminAuthenticator), []byte(password))
		if err == nil {
			return Identity{Name: "admin", Level: Admin}, nil
		}
	}
	if r.auth != nil {
		for name, lib := range config.Librarians {
			if lib.Authenticator == "" {
				continue
			}
			peerUser, peerPass, err := r.auth.Decrypt(lib.Authenticator)
			if err != nil {
				continue
			}
			if peerUser == username && peerPass == password {
				return Identity{Name: name, Level: Append}, nil
			}
		}
	}
	return Identity{}, fmt.Errorf("invalid credentials")
}
