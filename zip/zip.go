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

// Package zip adapts archive/zip's central directory into the driver's
// uniform descriptor.Adapter surface. It requires a seekable source,
// since the ZIP central directory lives at the end of the file, but
// that seekability means both the metadata and consuming iterators can
// be rebuilt cheaply from the same *zip.Reader without re-parsing
// anything.
package zip

import (
	"archive/zip" // NOLINT
	"compress/flate"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/archsafe/safeunzip/descriptor"
)

// maxSymlinkTargetRead caps how many bytes of a symlink entry's own
// payload the adapter will decompress to learn its target, during
// both the metadata-only pass and the consuming pass.
const maxSymlinkTargetRead = 4096

// generalPurposeBit0Encrypted is bit 0 of the ZIP general purpose
// flags field, set when the entry's content is encrypted.
const generalPurposeBit0Encrypted = 0x1

// Adapter presents a ZIP archive's entries as descriptor.Adapter.
type Adapter struct {
	reader *zip.Reader
	closer io.Closer
}

// Open opens the ZIP file at path for extraction.
func Open(path string) (*Adapter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("zip: open %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zip: stat %q: %w", path, err)
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zip: parse %q: %w", path, err)
	}
	return &Adapter{reader: zr, closer: f}, nil
}

// NewReader adapts an already-open ZIP source of the given size.
func NewReader(r io.ReaderAt, size int64) (*Adapter, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("zip: parse reader: %w", err)
	}
	return &Adapter{reader: zr}, nil
}

// Close releases any file opened by Open. It is a no-op for adapters
// built with NewReader, which do not own their source.
func (a *Adapter) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// MetadataIter returns an iterator over every entry's descriptor
// without decompressing file content, except for the small fixed read
// needed to recover a symlink's own target string.
func (a *Adapter) MetadataIter() (descriptor.MetadataIterator, error) {
	return &metadataIterator{files: a.reader.File}, nil
}

// ConsumeIter returns an iterator that decompresses each entry's
// payload on demand as the driver advances through it. Stored and
// deflated entries are read through File.OpenRaw, so archive/zip's own
// declared-size and CRC-32 checks do not run on them; the driver's
// bounded reader and its declared-versus-actual size comparison apply
// instead. Entries using any other method go through File.Open.
func (a *Adapter) ConsumeIter() (descriptor.ConsumeIterator, error) {
	return &consumeIterator{files: a.reader.File}, nil
}

type metadataIterator struct {
	files []*zip.File
	pos   int
}

func (it *metadataIterator) Next() (descriptor.EntryDescriptor, error) {
	if it.pos >= len(it.files) {
		return descriptor.EntryDescriptor{}, io.EOF
	}
	f := it.files[it.pos]
	it.pos++
	return describe(f)
}

type consumeIterator struct {
	files []*zip.File
	pos   int
}

func (it *consumeIterator) Next() (descriptor.EntryDescriptor, descriptor.PayloadReader, error) {
	if it.pos >= len(it.files) {
		return descriptor.EntryDescriptor{}, nil, io.EOF
	}
	f := it.files[it.pos]
	it.pos++

	d, err := describe(f)
	if err != nil {
		return descriptor.EntryDescriptor{}, nil, err
	}
	if d.Kind != descriptor.File {
		return d, emptyReader{}, nil
	}
	if f.Method == zip.Store || f.Method == zip.Deflate {
		raw, err := f.OpenRaw()
		if err != nil {
			return descriptor.EntryDescriptor{}, nil, fmt.Errorf("zip: open entry %q: %w", f.Name, err)
		}
		if f.Method == zip.Deflate {
			return d, flate.NewReader(raw), nil
		}
		return d, raw, nil
	}
	rc, err := f.Open()
	if err != nil {
		return descriptor.EntryDescriptor{}, nil, fmt.Errorf("zip: open entry %q: %w", f.Name, err)
	}
	return d, rc, nil
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }

// describe converts a *zip.File's header into a normalized descriptor,
// reading the entry's own payload only when it is a symlink.
func describe(f *zip.File) (descriptor.EntryDescriptor, error) {
	d := descriptor.EntryDescriptor{
		Name:         f.Name,
		DeclaredSize: int64(f.UncompressedSize64),
		IsEncrypted:  f.Flags&generalPurposeBit0Encrypted != 0,
	}

	mode := f.Mode()
	switch {
	case mode&fs.ModeSymlink != 0:
		d.Kind = descriptor.Symlink
		d.DeclaredSize = 0
		target, err := readSymlinkTarget(f)
		if err != nil {
			return descriptor.EntryDescriptor{}, err
		}
		d.LinkTarget = target
	case mode.IsDir() || isDirName(f.Name):
		d.Kind = descriptor.Directory
		d.DeclaredSize = 0
	case isSpecialFile(mode):
		d.Kind = descriptor.File
		d.UnsupportedKind = "special_file"
	default:
		d.Kind = descriptor.File
		d.Mode = uint32(mode.Perm())
	}
	if d.Kind != descriptor.Directory {
		d.Mode = uint32(mode.Perm())
	}
	return d, nil
}

func isDirName(name string) bool {
	return len(name) > 0 && name[len(name)-1] == '/'
}

func isSpecialFile(mode fs.FileMode) bool {
	for _, m := range []fs.FileMode{fs.ModeDevice, fs.ModeNamedPipe, fs.ModeSocket, fs.ModeCharDevice, fs.ModeIrregular} {
		if mode&m != 0 {
			return true
		}
	}
	return false
}

func readSymlinkTarget(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("zip: open symlink entry %q: %w", f.Name, err)
	}
	defer rc.Close()

	limited := io.LimitReader(rc, maxSymlinkTargetRead)
	buf, err := io.ReadAll(limited)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("zip: read symlink target for %q: %w", f.Name, err)
	}
	return string(buf), nil
}
