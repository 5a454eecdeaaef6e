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
	"strings"

	"github.com/fernet/fernet-go"
)

// Authenticator encrypts and decrypts the username:password credential a
// librarian uses to authenticate to one of its peers (the Librarian.authenticator
// attribute). Credentials are stored at rest (in the metadata database) only
// in their fernet-encrypted form; this type is the only thing that ever sees
// plaintext.
type Authenticator struct {
	key fernet.Key
}

// constructs an Authenticator from a base64-encoded fernet key, as found in
// config.Service.AuthenticatorKey
func NewAuthenticator(encodedKey string) (*Authenticator, error) {
	if encodedKey == "" {
		return nil, fmt.Errorf("no authenticator_key configured")
	}
	key, err := fernet.DecodeKey(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("invalid authenticator_key: %w", err)
	}
	return &Authenticator{key: *key}, nil
}

// encrypts a "username:password" credential for storage
func (a *Authenticator) Encrypt(username, password string) (string, error) {
	plaintext := []byte(username + ":" + password)
	token, err := fernet.EncryptAndSign(plaintext, &a.key)
	if err != nil {
		return "", err
	}
	return string(token), nil
}

// decrypts a stored credential, returning the username and password
func (a *Authenticator) Decrypt(encrypted string) (username, password string, err error) {
	plaintext := fernet.VerifyAndDecrypt([]byte(encrypted), 0, []*fernet.Key{&a.key})
	if plaintext == nil {
		return "", "", fmt.Errorf("couldn't decrypt authenticator (bad key or corrupt data)")
	}
	parts := strings.SplitN(string(plaintext), ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("decrypted authenticator is malformed")
	}
	return parts[0], parts[1], nil
}
