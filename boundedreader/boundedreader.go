// Copyright 2026 The safeunzip Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package boundedreader wraps an io.Reader with a hard byte cap that is
// enforced regardless of what an archive header claims about an entry's
// size. It is the driver's defense against entries that decompress to
// far more data than they declare.
package boundedreader

import "io"

// Reader caps the number of bytes that can be read from the wrapped
// source at Cap. Once Cap bytes have been delivered, Read returns
// io.EOF even if the source has more data, regardless of the declared
// size carried in the archive header.
type Reader struct {
	src  io.Reader
	cap  int64
	read int64
}

// New wraps src, capping total bytes delivered at cap. A non-positive
// cap means no reads are ever allowed.
func New(src io.Reader, cap int64) *Reader {
	return &Reader{src: src, cap: cap}
}

// Read implements io.Reader, truncating p so the cumulative bytes read
// never exceed the configured cap.
func (r *Reader) Read(p []byte) (int, error) {
	if r.read >= r.cap {
		return 0, io.EOF
	}
	remaining := r.cap - r.read
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := r.src.Read(p)
	r.read += int64(n)
	return n, err
}

// BytesRead returns the cumulative number of bytes delivered so far.
func (r *Reader) BytesRead() int64 {
	return r.read
}

// Capped reports whether the reader stopped delivering bytes because it
// hit its cap, as opposed to the source having no more data.
func (r *Reader) Capped() bool {
	return r.read >= r.cap
}
