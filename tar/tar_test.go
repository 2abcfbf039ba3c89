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

package tar

import (
	"archive/tar" // NOLINT
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/pgzip"

	"github.com/archsafe/safeunzip/descriptor"
)

func buildTar(t *testing.T, add func(w *tar.Writer)) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w := tar.NewWriter(buf)
	add(w)
	if err := w.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}
	return buf.Bytes()
}

func gzipOf(t *testing.T, raw []byte) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	gw := pgzip.NewWriter(buf)
	if _, err := gw.Write(raw); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func writeRegular(t *testing.T, w *tar.Writer, name, content string) {
	t.Helper()
	hdr := &tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(content))}
	if err := w.WriteHeader(hdr); err != nil {
		t.Fatalf("write header %q: %v", name, err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("write content %q: %v", name, err)
	}
}

func writeDir(t *testing.T, w *tar.Writer, name string) {
	t.Helper()
	hdr := &tar.Header{Name: name, Typeflag: tar.TypeDir, Mode: 0755}
	if err := w.WriteHeader(hdr); err != nil {
		t.Fatalf("write dir header %q: %v", name, err)
	}
}

func writeSymlink(t *testing.T, w *tar.Writer, name, target string) {
	t.Helper()
	hdr := &tar.Header{Name: name, Typeflag: tar.TypeSymlink, Linkname: target, Mode: 0777}
	if err := w.WriteHeader(hdr); err != nil {
		t.Fatalf("write symlink header %q: %v", name, err)
	}
}

func TestDescribeRegularFile(t *testing.T) {
	data := buildTar(t, func(w *tar.Writer) {
		writeRegular(t, w, "hello.txt", "hello world")
	})
	a := NewStreaming(bytes.NewReader(data))
	it, err := a.ConsumeIter()
	if err != nil {
		t.Fatalf("ConsumeIter: %v", err)
	}
	d, r, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if d.Kind != descriptor.File || d.Name != "hello.txt" || d.DeclaredSize != 11 {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if string(content) != "hello world" {
		t.Errorf("content = %q, want %q", content, "hello world")
	}
}

func TestDescribeDirectory(t *testing.T) {
	data := buildTar(t, func(w *tar.Writer) {
		writeDir(t, w, "dir/")
	})
	a := NewStreaming(bytes.NewReader(data))
	it, err := a.MetadataIter()
	if err != nil {
		t.Fatalf("MetadataIter: %v", err)
	}
	d, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if d.Kind != descriptor.Directory {
		t.Errorf("Kind = %v, want Directory", d.Kind)
	}
}

func TestDescribeSymlink(t *testing.T) {
	data := buildTar(t, func(w *tar.Writer) {
		writeSymlink(t, w, "link", "../../etc/passwd")
	})
	a := NewStreaming(bytes.NewReader(data))
	it, err := a.MetadataIter()
	if err != nil {
		t.Fatalf("MetadataIter: %v", err)
	}
	d, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if d.Kind != descriptor.Symlink {
		t.Fatalf("Kind = %v, want Symlink", d.Kind)
	}
	if d.LinkTarget != "../../etc/passwd" {
		t.Errorf("LinkTarget = %q, want %q", d.LinkTarget, "../../etc/passwd")
	}
}

func TestDescribeHardLinkUnsupported(t *testing.T) {
	data := buildTar(t, func(w *tar.Writer) {
		hdr := &tar.Header{Name: "hardlink", Typeflag: tar.TypeLink, Linkname: "hello.txt"}
		if err := w.WriteHeader(hdr); err != nil {
			t.Fatalf("write header: %v", err)
		}
	})
	a := NewStreaming(bytes.NewReader(data))
	it, err := a.MetadataIter()
	if err != nil {
		t.Fatalf("MetadataIter: %v", err)
	}
	d, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if d.UnsupportedKind != "hard_link" {
		t.Errorf("UnsupportedKind = %q, want hard_link", d.UnsupportedKind)
	}
}

func TestDescribeSpecialFilesUnsupported(t *testing.T) {
	cases := []struct {
		name     string
		typeflag byte
		want     string
	}{
		{"fifo", tar.TypeFifo, "fifo"},
		{"chardev", tar.TypeChar, "character_device"},
		{"blockdev", tar.TypeBlock, "block_device"},
	}
	for _, tc := range cases {
		data := buildTar(t, func(w *tar.Writer) {
			hdr := &tar.Header{Name: tc.name, Typeflag: tc.typeflag}
			if err := w.WriteHeader(hdr); err != nil {
				t.Fatalf("write header %q: %v", tc.name, err)
			}
		})
		a := NewStreaming(bytes.NewReader(data))
		it, err := a.MetadataIter()
		if err != nil {
			t.Fatalf("MetadataIter: %v", err)
		}
		d, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if d.UnsupportedKind != tc.want {
			t.Errorf("%s: UnsupportedKind = %q, want %q", tc.name, d.UnsupportedKind, tc.want)
		}
	}
}

func TestMetadataIterEOFOnEmptyArchive(t *testing.T) {
	data := buildTar(t, func(w *tar.Writer) {})
	a := NewStreaming(bytes.NewReader(data))
	it, err := a.MetadataIter()
	if err != nil {
		t.Fatalf("MetadataIter: %v", err)
	}
	if _, err := it.Next(); err != io.EOF {
		t.Errorf("Next on empty archive = %v, want io.EOF", err)
	}
}

func TestStreamingAdapterRejectsSecondIteration(t *testing.T) {
	data := buildTar(t, func(w *tar.Writer) {
		writeRegular(t, w, "a.txt", "a")
	})
	a := NewStreaming(bytes.NewReader(data))
	if _, err := a.MetadataIter(); err != nil {
		t.Fatalf("first MetadataIter: %v", err)
	}
	if _, err := a.MetadataIter(); err != ErrAlreadyConsumed {
		t.Errorf("second MetadataIter = %v, want ErrAlreadyConsumed", err)
	}
}

func TestBufferedAdapterIteratesTwice(t *testing.T) {
	data := buildTar(t, func(w *tar.Writer) {
		writeRegular(t, w, "a.txt", "a")
		writeRegular(t, w, "b.txt", "bb")
	})
	a, err := NewBuffered(bytes.NewReader(data), false)
	if err != nil {
		t.Fatalf("NewBuffered: %v", err)
	}

	for pass := 0; pass < 2; pass++ {
		it, err := a.MetadataIter()
		if err != nil {
			t.Fatalf("pass %d: MetadataIter: %v", pass, err)
		}
		var names []string
		for {
			d, err := it.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("pass %d: Next: %v", pass, err)
			}
			names = append(names, d.Name)
		}
		if len(names) != 2 || names[0] != "a.txt" || names[1] != "b.txt" {
			t.Errorf("pass %d: names = %v, want [a.txt b.txt]", pass, names)
		}
	}
}

func TestNewBufferedGzip(t *testing.T) {
	raw := buildTar(t, func(w *tar.Writer) {
		writeRegular(t, w, "a.txt", "compressed")
	})
	compressed := gzipOf(t, raw)

	a, err := NewBuffered(bytes.NewReader(compressed), true)
	if err != nil {
		t.Fatalf("NewBuffered: %v", err)
	}
	it, err := a.ConsumeIter()
	if err != nil {
		t.Fatalf("ConsumeIter: %v", err)
	}
	d, r, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if d.Name != "a.txt" || string(content) != "compressed" {
		t.Errorf("descriptor/content = %+v %q, want a.txt/compressed", d, content)
	}
}

func TestNewStreamingGzip(t *testing.T) {
	raw := buildTar(t, func(w *tar.Writer) {
		writeRegular(t, w, "z.txt", "zipped")
	})
	compressed := gzipOf(t, raw)

	a, err := NewStreamingGzip(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("NewStreamingGzip: %v", err)
	}
	it, err := a.MetadataIter()
	if err != nil {
		t.Fatalf("MetadataIter: %v", err)
	}
	d, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if d.Name != "z.txt" {
		t.Errorf("Name = %q, want z.txt", d.Name)
	}
}
