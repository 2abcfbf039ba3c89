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

// Package descriptor defines the normalized, format-neutral entry record
// that format adapters hand to the extraction driver. Both the ZIP and
// TAR adapters produce the same descriptor shape so the driver never has
// to branch on archive format.
package descriptor

import "io"

// Kind identifies the filesystem object an entry represents.
type Kind int

const (
	// File is a regular file entry with decompressible content.
	File Kind = iota
	// Directory is a directory entry; it carries no content.
	Directory
	// Symlink is a symbolic link entry; LinkTarget holds its target string.
	Symlink
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// EntryDescriptor is the normalized record an adapter yields for one
// archive entry, prior to any sanitization, jailing, or policy decision.
type EntryDescriptor struct {
	// Name is the entry's logical archive path, separator "/".
	Name string
	// Kind is File, Directory, or Symlink.
	Kind Kind
	// DeclaredSize is the uncompressed byte length the archive header
	// claims. Zero for Directory and Symlink entries.
	DeclaredSize int64
	// Mode carries raw Unix permission bits when the adapter could
	// recover them; only meaningful for File/Symlink on Unix hosts.
	Mode uint32
	// LinkTarget is the symlink target string, set only when Kind is
	// Symlink. It is not validated by the adapter.
	LinkTarget string
	// IsEncrypted is set by the ZIP adapter when the entry's general
	// purpose flag bit 0 indicates encryption.
	IsEncrypted bool
	// UnsupportedKind names the archive-specific entry type when the
	// entry is neither a file, directory, nor symlink (TAR block/char
	// device, FIFO, hard link). Empty for all supported kinds.
	UnsupportedKind string
}

// Depth returns the number of "/"-separated components in Name.
func (e EntryDescriptor) Depth() int {
	if e.Name == "" {
		return 0
	}
	depth := 1
	for _, r := range e.Name {
		if r == '/' {
			depth++
		}
	}
	return depth
}

// PayloadReader streams the decompressed content of the entry currently
// positioned by a ConsumeIterator. It must be fully consumed or
// abandoned before advancing to the next entry.
type PayloadReader interface {
	io.Reader
}

// MetadataIterator yields descriptors without decompressing entry
// payloads (the ZIP adapter's symlink targets are the one documented
// exception, since the target string lives in the entry's own tiny
// payload).
type MetadataIterator interface {
	// Next returns the next descriptor, or io.EOF when exhausted.
	Next() (EntryDescriptor, error)
}

// ConsumeIterator yields descriptor/payload pairs, decompressing on
// demand as the driver advances.
type ConsumeIterator interface {
	// Next returns the next descriptor and its payload reader, or
	// io.EOF when exhausted.
	Next() (EntryDescriptor, PayloadReader, error)
}

// Adapter is the uniform surface both format adapters present to the
// driver.
type Adapter interface {
	MetadataIter() (MetadataIterator, error)
	ConsumeIter() (ConsumeIterator, error)
}
