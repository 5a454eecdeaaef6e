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

package transfer

import "strings"

// Checksum is a string of the form "<algo>:<hex>", e.g. "md5:9e107d9d372bb6826bd81d3542a419d6".
// The legacy unprefixed form (bare hex digest) is accepted on input; the
// algorithm is inferred from the digest length.
type Checksum string

// Algo returns the algorithm tag of a checksum, inferring it from digest
// length when the checksum carries no explicit "algo:" prefix.
func (c Checksum) Algo() string {
	s := string(c)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i]
	}
	return algoForDigestLength(len(s))
}

// Hex returns the bare hex digest, stripping any "algo:" prefix.
func (c Checksum) Hex() string {
	s := string(c)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Normalize returns the checksum in canonical "algo:hex" form.
func (c Checksum) Normalize() Checksum {
	return Checksum(c.Algo() + ":" + c.Hex())
}

func algoForDigestLength(n int) string {
	switch n {
	case 32:
		return "md5"
	case 40:
		return "sha1"
	case 64:
		return "sha256"
	default:
		return "unknown"
	}
}
