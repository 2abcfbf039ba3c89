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

// Package tar adapts archive/tar streams, optionally gzip-compressed,
// into the driver's uniform descriptor.Adapter surface.
//
// TAR has no index to seek back to the way a ZIP central directory
// does, so a source can only be iterated as many times as it was
// buffered for. NewStreaming and NewStreamingGzip build single-pass
// adapters good for the common Streaming extraction mode, without
// holding archive-sized memory. NewBuffered reads (and, for .tar.gz,
// inflates) the whole source up front so the resulting adapter can be
// iterated twice, the shape ValidateFirst needs against a non-seekable
// TAR source.
package tar

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/pgzip"

	"github.com/archsafe/safeunzip/descriptor"
)

// ErrAlreadyConsumed is returned when a single-pass adapter's iterator
// is requested more than once.
var ErrAlreadyConsumed = errors.New("tar: streaming adapter already consumed")

// Adapter presents a TAR archive's entries as descriptor.Adapter.
type Adapter struct {
	newReader func() (io.Reader, error)
}

// NewStreaming adapts a single pass over a plain, uncompressed TAR
// stream. A second call to MetadataIter or ConsumeIter fails with
// ErrAlreadyConsumed, since the stream cannot be rewound.
func NewStreaming(r io.Reader) *Adapter {
	used := false
	return &Adapter{newReader: func() (io.Reader, error) {
		if used {
			return nil, ErrAlreadyConsumed
		}
		used = true
		return r, nil
	}}
}

// NewStreamingGzip adapts a single pass over a gzip-compressed TAR
// stream, inflating with a parallel gzip reader.
func NewStreamingGzip(r io.Reader) (*Adapter, error) {
	gz, err := pgzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("tar: gzip header: %w", err)
	}
	return NewStreaming(gz), nil
}

// NewBuffered fully reads (and, if gzipped, inflates) r into memory so
// the returned adapter can be iterated twice. This is the documented
// memory cost of running ValidateFirst against a TAR source.
func NewBuffered(r io.Reader, gzipped bool) (*Adapter, error) {
	src := r
	if gzipped {
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("tar: gzip header: %w", err)
		}
		defer gz.Close()
		src = gz
	}
	buf, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("tar: buffer archive: %w", err)
	}
	return &Adapter{newReader: func() (io.Reader, error) {
		return bytes.NewReader(buf), nil
	}}, nil
}

// MetadataIter returns a fresh iterator over every entry's descriptor.
// TAR headers carry everything a descriptor needs, so this never
// reads entry payload.
func (a *Adapter) MetadataIter() (descriptor.MetadataIterator, error) {
	r, err := a.newReader()
	if err != nil {
		return nil, err
	}
	return &metadataIterator{tr: tar.NewReader(r)}, nil
}

// ConsumeIter returns a fresh iterator that streams each entry's
// payload directly off the underlying archive/tar.Reader.
func (a *Adapter) ConsumeIter() (descriptor.ConsumeIterator, error) {
	r, err := a.newReader()
	if err != nil {
		return nil, err
	}
	return &consumeIterator{tr: tar.NewReader(r)}, nil
}

type metadataIterator struct {
	tr *tar.Reader
}

func (it *metadataIterator) Next() (descriptor.EntryDescriptor, error) {
	hdr, err := it.tr.Next()
	if err != nil {
		return descriptor.EntryDescriptor{}, err
	}
	return describe(hdr), nil
}

type consumeIterator struct {
	tr *tar.Reader
}

func (it *consumeIterator) Next() (descriptor.EntryDescriptor, descriptor.PayloadReader, error) {
	hdr, err := it.tr.Next()
	if err != nil {
		return descriptor.EntryDescriptor{}, nil, err
	}
	d := describe(hdr)
	if d.Kind != descriptor.File {
		return d, emptyReader{}, nil
	}
	return d, it.tr, nil
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }

// describe maps a TAR header's typeflag onto the normalized descriptor
// kinds. Hard links, device nodes, and FIFOs have no safe
// representation under a path jail and are tagged UnsupportedKind so
// the driver rejects them outright rather than guessing at a mapping.
func describe(hdr *tar.Header) descriptor.EntryDescriptor {
	d := descriptor.EntryDescriptor{
		Name: hdr.Name,
		Mode: uint32(hdr.Mode) & 0o777,
	}

	switch hdr.Typeflag {
	case tar.TypeReg, tar.TypeRegA:
		d.Kind = descriptor.File
		d.DeclaredSize = hdr.Size
	case tar.TypeDir:
		d.Kind = descriptor.Directory
	case tar.TypeSymlink:
		d.Kind = descriptor.Symlink
		d.LinkTarget = hdr.Linkname
	case tar.TypeLink:
		d.UnsupportedKind = "hard_link"
	case tar.TypeBlock:
		d.UnsupportedKind = "block_device"
	case tar.TypeChar:
		d.UnsupportedKind = "character_device"
	case tar.TypeFifo:
		d.UnsupportedKind = "fifo"
	default:
		d.UnsupportedKind = "other"
	}
	return d
}
