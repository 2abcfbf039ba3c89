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

package safeunzip

import (
	"errors"
	"fmt"

	"github.com/c2h5oh/datasize"
)

// Kind identifies the category of a failed extraction, mirroring the
// variants of the tagged error sum every extraction method returns.
type Kind int

const (
	// KindPathEscape reports a path jail rejection.
	KindPathEscape Kind = iota
	// KindSymlinkNotAllowed reports a symlink entry under SymlinkError.
	KindSymlinkNotAllowed
	// KindTotalSizeExceeded reports the cumulative byte budget would be
	// or was exceeded.
	KindTotalSizeExceeded
	// KindFileCountExceeded reports the file-count cap would be
	// exceeded by the next file.
	KindFileCountExceeded
	// KindFileTooLarge reports an entry whose size exceeds the
	// per-file cap, whether declared up front or discovered mid-copy.
	KindFileTooLarge
	// KindSizeMismatch reports an entry whose actual decompressed size
	// exceeded what its header declared.
	KindSizeMismatch
	// KindPathTooDeep reports an entry name with too many path
	// components.
	KindPathTooDeep
	// KindAlreadyExists reports OverwriteError finding an existing
	// path at the entry's target.
	KindAlreadyExists
	// KindInvalidFilename reports the sanitizer rejecting an entry
	// name.
	KindInvalidFilename
	// KindEncryptedEntry reports a ZIP entry with its encryption bit
	// set.
	KindEncryptedEntry
	// KindUnsupportedEntryType reports a TAR device, FIFO, or hard
	// link entry.
	KindUnsupportedEntryType
	// KindDestinationNotFound reports New finding no destination
	// directory.
	KindDestinationNotFound
	// KindIO reports an underlying filesystem I/O failure.
	KindIO
	// KindZip reports a ZIP container parse failure.
	KindZip
	// KindFormat reports a TAR container parse failure, or any failure
	// raised while iterating an adapter's entries, of either format.
	KindFormat
	// KindJail reports a path jail construction failure.
	KindJail
)

func (k Kind) String() string {
	switch k {
	case KindPathEscape:
		return "path_escape"
	case KindSymlinkNotAllowed:
		return "symlink_not_allowed"
	case KindTotalSizeExceeded:
		return "total_size_exceeded"
	case KindFileCountExceeded:
		return "file_count_exceeded"
	case KindFileTooLarge:
		return "file_too_large"
	case KindSizeMismatch:
		return "size_mismatch"
	case KindPathTooDeep:
		return "path_too_deep"
	case KindAlreadyExists:
		return "already_exists"
	case KindInvalidFilename:
		return "invalid_filename"
	case KindEncryptedEntry:
		return "encrypted_entry"
	case KindUnsupportedEntryType:
		return "unsupported_entry_type"
	case KindDestinationNotFound:
		return "destination_not_found"
	case KindIO:
		return "io"
	case KindZip:
		return "zip"
	case KindFormat:
		return "format"
	case KindJail:
		return "jail"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per Kind except the four that forward a lower
// layer's error (KindIO, KindZip, KindFormat, KindJail), so callers can
// write errors.Is(err, safeunzip.ErrPathEscape) without type-asserting
// *Error first.
var (
	ErrPathEscape           = errors.New("safeunzip: path escape")
	ErrSymlinkNotAllowed    = errors.New("safeunzip: symlink not allowed")
	ErrTotalSizeExceeded    = errors.New("safeunzip: total size exceeded")
	ErrFileCountExceeded    = errors.New("safeunzip: file count exceeded")
	ErrFileTooLarge         = errors.New("safeunzip: file too large")
	ErrSizeMismatch         = errors.New("safeunzip: size mismatch")
	ErrPathTooDeep          = errors.New("safeunzip: path too deep")
	ErrAlreadyExists        = errors.New("safeunzip: already exists")
	ErrInvalidFilename      = errors.New("safeunzip: invalid filename")
	ErrEncryptedEntry       = errors.New("safeunzip: encrypted entry")
	ErrUnsupportedEntryType = errors.New("safeunzip: unsupported entry type")
	ErrDestinationNotFound  = errors.New("safeunzip: destination not found")
)

var kindSentinels = map[Kind]error{
	KindPathEscape:           ErrPathEscape,
	KindSymlinkNotAllowed:    ErrSymlinkNotAllowed,
	KindTotalSizeExceeded:    ErrTotalSizeExceeded,
	KindFileCountExceeded:    ErrFileCountExceeded,
	KindFileTooLarge:         ErrFileTooLarge,
	KindSizeMismatch:         ErrSizeMismatch,
	KindPathTooDeep:          ErrPathTooDeep,
	KindAlreadyExists:        ErrAlreadyExists,
	KindInvalidFilename:      ErrInvalidFilename,
	KindEncryptedEntry:       ErrEncryptedEntry,
	KindUnsupportedEntryType: ErrUnsupportedEntryType,
	KindDestinationNotFound:  ErrDestinationNotFound,
}

// Error is the single tagged error type every extraction method
// returns. Only the fields relevant to Kind are populated; the rest
// are left at their zero value.
type Error struct {
	Kind Kind

	// Entry is the offending archive entry name, when applicable.
	Entry string
	// Path is a filesystem path, used by Kind values that report on
	// the destination rather than an archive entry.
	Path string
	// Detail carries free-form context from a lower layer (path jail,
	// sanitizer) that doesn't warrant its own field.
	Detail string
	// Target is a symlink's link target.
	Target string
	// Reason names the sanitizer rule an invalid filename violated.
	Reason string
	// EntryType names the unsupported TAR entry type.
	EntryType string

	Limit     int64
	WouldBe   int64
	Attempted int64
	Size      int64
	Declared  int64
	Actual    int64
	Depth     int
	DepthLimit int

	// Err is the wrapped cause, for Kind values that forward a lower
	// layer's error (Io, Zip, Format, Jail) or that decorate the
	// sanitizer/jail error that produced them.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindPathEscape:
		return fmt.Sprintf("path escape: entry %q: %s", e.Entry, e.Detail)
	case KindSymlinkNotAllowed:
		return fmt.Sprintf("symlink not allowed: entry %q -> %q", e.Entry, e.Target)
	case KindTotalSizeExceeded:
		return fmt.Sprintf("total size exceeded: would reach %s, limit %s",
			datasize.ByteSize(e.WouldBe).HR(), datasize.ByteSize(e.Limit).HR())
	case KindFileCountExceeded:
		return fmt.Sprintf("file count exceeded: attempted %d files, limit %d", e.Attempted, e.Limit)
	case KindFileTooLarge:
		return fmt.Sprintf("file too large: entry %q is %s, limit %s",
			e.Entry, datasize.ByteSize(e.Size).HR(), datasize.ByteSize(e.Limit).HR())
	case KindSizeMismatch:
		return fmt.Sprintf("size mismatch: entry %q declared %s, actual %s",
			e.Entry, datasize.ByteSize(e.Declared).HR(), datasize.ByteSize(e.Actual).HR())
	case KindPathTooDeep:
		return fmt.Sprintf("path too deep: entry %q has depth %d, limit %d", e.Entry, e.Depth, e.DepthLimit)
	case KindAlreadyExists:
		return fmt.Sprintf("already exists: %q", e.Entry)
	case KindInvalidFilename:
		return fmt.Sprintf("invalid filename: entry %q: %s", e.Entry, e.Reason)
	case KindEncryptedEntry:
		return fmt.Sprintf("encrypted entry: %q", e.Entry)
	case KindUnsupportedEntryType:
		return fmt.Sprintf("unsupported entry type: entry %q is %s", e.Entry, e.EntryType)
	case KindDestinationNotFound:
		return fmt.Sprintf("destination not found: %q", e.Path)
	case KindIO:
		return fmt.Sprintf("io error at %q: %v", pick(e.Path, e.Entry), e.Err)
	case KindZip:
		return fmt.Sprintf("zip: %v", e.Err)
	case KindFormat:
		return fmt.Sprintf("format: %v", e.Err)
	case KindJail:
		return fmt.Sprintf("jail: %v", e.Err)
	default:
		return fmt.Sprintf("safeunzip: %s", e.Kind)
	}
}

func pick(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel error corresponding to
// e.Kind, so callers can match on the sentinel without a type switch.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}
