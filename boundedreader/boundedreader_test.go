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

package boundedreader

import (
	"bytes"
	"io"
	"testing"
)

func TestReadUnderCap(t *testing.T) {
	r := New(bytes.NewReader([]byte("hello")), 10)
	buf, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("got %q, want %q", buf, "hello")
	}
	if r.Capped() {
		t.Fatal("Capped() = true, want false: source exhausted before cap")
	}
	if r.BytesRead() != 5 {
		t.Fatalf("BytesRead() = %d, want 5", r.BytesRead())
	}
}

func TestReadHitsCap(t *testing.T) {
	r := New(bytes.NewReader([]byte("hello world")), 5)
	buf, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("got %q, want %q", buf, "hello")
	}
	if !r.Capped() {
		t.Fatal("Capped() = false, want true")
	}
}

func TestReadZeroCapAllowsNoReads(t *testing.T) {
	r := New(bytes.NewReader([]byte("x")), 0)
	n, err := r.Read(make([]byte, 1))
	if n != 0 || err != io.EOF {
		t.Fatalf("Read() = (%d, %v), want (0, io.EOF)", n, err)
	}
	if !r.Capped() {
		t.Fatal("Capped() = false, want true")
	}
}

func TestBytesReadAccumulatesAcrossCalls(t *testing.T) {
	r := New(bytes.NewReader([]byte("abcdef")), 4)
	buf := make([]byte, 2)
	n1, _ := r.Read(buf)
	n2, _ := r.Read(buf)
	if r.BytesRead() != int64(n1+n2) {
		t.Fatalf("BytesRead() = %d, want %d", r.BytesRead(), n1+n2)
	}
}
