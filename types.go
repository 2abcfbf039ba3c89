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
	"github.com/c2h5oh/datasize"
	"github.com/rs/zerolog"

	"github.com/archsafe/safeunzip/policy"
)

// Limits are the cumulative and per-entry resource caps an extraction
// enforces. Byte fields are datasize.ByteSize so callers can write
// 10*datasize.MB instead of a raw integer, and so Error messages
// render human-readable sizes.
type Limits struct {
	MaxTotalBytes datasize.ByteSize
	MaxFileCount  int64
	MaxSingleFile datasize.ByteSize
	MaxPathDepth  int
}

// DefaultLimits returns the limits every Driver starts from absent a
// WithLimits option.
func DefaultLimits() Limits {
	return Limits{
		MaxTotalBytes: 1 * datasize.GB,
		MaxFileCount:  10000,
		MaxSingleFile: 100 * datasize.MB,
		MaxPathDepth:  50,
	}
}

func (l Limits) toPolicy() policy.Limits {
	return policy.Limits{
		MaxTotalBytes: int64(l.MaxTotalBytes),
		MaxFileCount:  l.MaxFileCount,
		MaxSingleFile: int64(l.MaxSingleFile),
		MaxPathDepth:  l.MaxPathDepth,
	}
}

// OverwriteMode controls how the driver handles a File entry whose
// target path is already occupied.
type OverwriteMode int

const (
	// OverwriteError fails the whole extraction if the target exists.
	// This is the default.
	OverwriteError OverwriteMode = iota
	// OverwriteSkip counts an occupied target as skipped and
	// continues.
	OverwriteSkip
	// OverwriteOverwrite replaces the occupied target, unlinking it
	// first if it is a symlink.
	OverwriteOverwrite
)

// SymlinkBehavior controls how the driver handles Symlink entries.
// This is a re-export of policy.SymlinkBehavior: the driver's policy
// chain is the sole place that interprets it.
type SymlinkBehavior = policy.SymlinkBehavior

const (
	// SymlinkSkip silently skips symlink entries. This is the
	// default, and the common case: most callers extracting untrusted
	// archives have no legitimate use for a symlink inside one.
	SymlinkSkip = policy.SymlinkSkip
	// SymlinkError rejects the whole extraction on a symlink entry.
	SymlinkError = policy.SymlinkError
)

// ExtractionMode selects between a single pass and a validate-then-
// extract two-pass flow.
type ExtractionMode int

const (
	// Streaming runs a single pass: each entry is policy-checked and
	// materialized in order. A rejection partway through leaves
	// already-written files on disk.
	Streaming ExtractionMode = iota
	// ValidateFirst runs a metadata-only pass checking every entry's
	// resource caps before a second pass performs the real
	// extraction. A first-pass rejection guarantees zero writes. TAR
	// sources are buffered to memory to support the second pass; see
	// the tar package.
	ValidateFirst
)

// Selection narrows which entries a Driver extracts. This re-exports
// policy.Selection; see its doc comment for field semantics.
type Selection = policy.Selection

// Filter is the caller's advisory predicate over entry metadata. This
// re-exports policy.Filter; it is never a security boundary.
type Filter = policy.Filter

// Report summarizes one extraction call.
type Report struct {
	FilesExtracted int64
	DirsCreated    int64
	EntriesSkipped int64
	SeenFiles      int64
	BytesWritten   int64
}

type options struct {
	limits          Limits
	overwrite       OverwriteMode
	symlinkBehavior SymlinkBehavior
	mode            ExtractionMode
	selection       Selection
	filter          Filter
	logger          eventLogger
}

func defaultOptions() options {
	return options{
		limits:          DefaultLimits(),
		overwrite:       OverwriteError,
		symlinkBehavior: SymlinkSkip,
		mode:            Streaming,
		logger:          newEventLogger(nil),
	}
}

// Option configures a Driver at construction time.
type Option func(*options)

// WithLimits overrides the default resource caps.
func WithLimits(l Limits) Option {
	return func(o *options) { o.limits = l }
}

// WithOverwriteMode overrides the default OverwriteError behavior.
func WithOverwriteMode(m OverwriteMode) Option {
	return func(o *options) { o.overwrite = m }
}

// WithSymlinkBehavior overrides the default SymlinkSkip behavior.
func WithSymlinkBehavior(b SymlinkBehavior) Option {
	return func(o *options) { o.symlinkBehavior = b }
}

// WithExtractionMode overrides the default Streaming mode.
func WithExtractionMode(m ExtractionMode) Option {
	return func(o *options) { o.mode = m }
}

// WithSelection restricts extraction to a subset of entries.
func WithSelection(s Selection) Option {
	return func(o *options) { o.selection = s }
}

// WithFilter installs an advisory predicate over entry metadata.
func WithFilter(f Filter) Option {
	return func(o *options) { o.filter = f }
}

// WithLogger attaches a zerolog.Logger the driver emits Debug-level
// policy-decision events to. Absent this option, the driver logs
// nothing: a library must not impose logging side effects on its
// caller by default.
func WithLogger(l *zerolog.Logger) Option {
	return func(o *options) { o.logger = newEventLogger(l) }
}
