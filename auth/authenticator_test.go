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
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var key fernet.Key
	require.NoError(key.Generate())

	a, err := NewAuthenticator(key.Encode())
	require.NoError(err)

	encrypted, err := a.Encrypt("hera-north", "s3cret")
	require.NoError(err)
	assert.NotEqual("hera-north:s3cret", encrypted)

	user, pass, err := a.Decrypt(encrypted)
	require.NoError(err)
	assert.Equal("hera-north", user)
	assert.Equal("s3cret", pass)
}

func TestDecryptWithWrongKey(t *testing.T) {
	require := require.New(t)

	var key1, key2 fernet.Key
	require.NoError(key1.Generate())
	require.NoError(key2.Generate())

	a1, err := NewAuthenticator(key1.Encode())
	require.NoError(err)
	a2, err := NewAuthenticator(key2.Encode())
	require.NoError(err)

	encrypted, err := a1.Encrypt("hera-north", "s3cret")
	require.NoError(err)

	_, _, err = a2.Decrypt(encrypted)
	require.Error(err)
}

func TestNewAuthenticatorRejectsEmptyKey(t *testing.T) {
	require := require.New(t)
	_, err := NewAuthenticator("")
	require.Error(err)
}
