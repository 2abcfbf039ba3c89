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

// Package policy implements the ordered, typed checks the driver runs
// against every entry once it has been sanitized and jailed: selection
// filters, the symlink policy, the user filter callback, and the
// resource caps (depth, per-file size, file count, cumulative size).
// Each check is independent and the chain stops at the first check
// that doesn't Allow, so resource checks can never be bypassed by a
// later, user-controlled predicate.
package policy

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/archsafe/safeunzip/descriptor"
)

// Decision is the outcome a Check reports for one entry.
type Decision int

const (
	// Allow lets the entry proceed to the next check, or to
	// materialization if it was the last check.
	Allow Decision = iota
	// Skip counts the entry as skipped and moves on to the next entry.
	Skip
	// Reject aborts the whole extraction.
	Reject
)

// Result is what a Check returns.
type Result struct {
	Decision Decision
	Reason   string
	Err      error
}

func allow() Result { return Result{Decision: Allow} }

func skip(reason string) Result {
	return Result{Decision: Skip, Reason: reason}
}

func reject(err error) Result {
	return Result{Decision: Reject, Err: err}
}

// SymlinkBehavior controls how the chain handles Symlink descriptors.
type SymlinkBehavior int

const (
	// SymlinkSkip silently skips symlink entries (the default).
	SymlinkSkip SymlinkBehavior = iota
	// SymlinkError rejects the whole extraction on a symlink entry.
	SymlinkError
)

// Selection narrows which entries the chain allows through, mirroring
// spec.md §3's Selection policy: an exact-name allowlist, include
// globs, and exclude globs, evaluated in that order.
type Selection struct {
	Only         map[string]bool
	IncludeGlobs []string
	ExcludeGlobs []string
}

// Filter is the caller's advisory predicate over entry metadata. It is
// never a security boundary: the chain only calls it after every
// security and resource check that precedes it in the ordering table.
type Filter func(descriptor.EntryDescriptor) bool

// Limits are the cumulative and per-entry caps the chain enforces.
type Limits struct {
	MaxTotalBytes int64
	MaxFileCount  int64
	MaxSingleFile int64
	MaxPathDepth  int
}

// Totals is the read side of the driver's running counters; the chain
// only ever peeks at them to decide whether the *next* entry would
// exceed a cap. The driver owns mutating them once it commits to
// materializing (or skipping) an entry.
type Totals struct {
	SeenFiles    int64
	BytesWritten int64
}

// Input is everything one Check needs to evaluate one descriptor.
type Input struct {
	Entry           descriptor.EntryDescriptor
	Limits          Limits
	Totals          Totals
	Selection       Selection
	SymlinkBehavior SymlinkBehavior
	Filter          Filter
}

// Check is one typed, ordered link in the chain.
type Check interface {
	Name() string
	Evaluate(in Input) Result
}

// Chain runs its Checks in order and returns the first non-Allow
// result, or Allow if every check passes.
type Chain struct {
	checks []Check
}

// Default builds the chain in the exact order spec.md §4.3 mandates
// for steps 5 through 12 (steps 1-4 are the adapter/sanitizer/jail
// checks the driver runs before building an Input at all; step 13,
// the overwrite policy, applies at materialization time, not here).
func Default() *Chain {
	return &Chain{checks: []Check{
		selectionCheck{},
		symlinkCheck{},
		filterCheck{},
		depthCheck{},
		fileSizeCheck{},
		fileCountCheck{},
		totalSizeCheck{},
	}}
}

// ResourceOnly builds a chain containing only the resource-cap checks
// (depth, per-file size, file count, cumulative size). It skips
// selection, the symlink policy, and the user filter entirely, which
// is what validate-then-extract's first pass runs: the promise "this
// archive is safe to extract" must hold against every entry, not just
// the ones a particular filter or selection would keep.
func ResourceOnly() *Chain {
	return &Chain{checks: []Check{
		depthCheck{},
		fileSizeCheck{},
		fileCountCheck{},
		totalSizeCheck{},
	}}
}

// Run evaluates every check in order, stopping at the first Skip or
// Reject.
func (c *Chain) Run(in Input) Result {
	for _, check := range c.checks {
		if res := check.Evaluate(in); res.Decision != Allow {
			return res
		}
	}
	return allow()
}

type selectionCheck struct{}

func (selectionCheck) Name() string { return "selection" }

func (selectionCheck) Evaluate(in Input) Result {
	if in.Entry.Kind == descriptor.Directory {
		return allow()
	}
	sel := in.Selection
	if len(sel.Only) > 0 {
		if !sel.Only[in.Entry.Name] {
			return skip("not in only-set")
		}
	} else if len(sel.IncludeGlobs) > 0 {
		matched := false
		for _, pat := range sel.IncludeGlobs {
			if ok, _ := doublestar.Match(pat, in.Entry.Name); ok {
				matched = true
				break
			}
		}
		if !matched {
			return skip("no include pattern matched")
		}
	}
	for _, pat := range sel.ExcludeGlobs {
		if ok, _ := doublestar.Match(pat, in.Entry.Name); ok {
			return skip("matched exclude pattern")
		}
	}
	return allow()
}

type symlinkCheck struct{}

func (symlinkCheck) Name() string { return "symlink" }

func (symlinkCheck) Evaluate(in Input) Result {
	if in.Entry.Kind != descriptor.Symlink {
		return allow()
	}
	if in.SymlinkBehavior == SymlinkError {
		return reject(&SymlinkNotAllowedError{Entry: in.Entry.Name, Target: in.Entry.LinkTarget})
	}
	return skip("symlinks skipped by policy")
}

type filterCheck struct{}

func (filterCheck) Name() string { return "filter" }

func (filterCheck) Evaluate(in Input) Result {
	if in.Filter == nil {
		return allow()
	}
	if !in.Filter(in.Entry) {
		return skip("rejected by user filter")
	}
	return allow()
}

type depthCheck struct{}

func (depthCheck) Name() string { return "depth" }

func (depthCheck) Evaluate(in Input) Result {
	if in.Limits.MaxPathDepth <= 0 {
		return allow()
	}
	depth := in.Entry.Depth()
	if depth > in.Limits.MaxPathDepth {
		return reject(&PathTooDeepError{Entry: in.Entry.Name, Depth: depth, Limit: in.Limits.MaxPathDepth})
	}
	return allow()
}

type fileSizeCheck struct{}

func (fileSizeCheck) Name() string { return "file_size" }

func (fileSizeCheck) Evaluate(in Input) Result {
	if in.Entry.Kind != descriptor.File {
		return allow()
	}
	if in.Limits.MaxSingleFile > 0 && in.Entry.DeclaredSize > in.Limits.MaxSingleFile {
		return reject(&FileTooLargeError{Entry: in.Entry.Name, Size: in.Entry.DeclaredSize, Limit: in.Limits.MaxSingleFile})
	}
	return allow()
}

type fileCountCheck struct{}

func (fileCountCheck) Name() string { return "file_count" }

func (fileCountCheck) Evaluate(in Input) Result {
	if in.Entry.Kind == descriptor.Directory || in.Limits.MaxFileCount <= 0 {
		return allow()
	}
	attempted := in.Totals.SeenFiles + 1
	if attempted > in.Limits.MaxFileCount {
		return reject(&FileCountExceededError{Limit: in.Limits.MaxFileCount, Attempted: attempted})
	}
	return allow()
}

type totalSizeCheck struct{}

func (totalSizeCheck) Name() string { return "total_size" }

func (totalSizeCheck) Evaluate(in Input) Result {
	if in.Limits.MaxTotalBytes <= 0 {
		return allow()
	}
	wouldBe := in.Totals.BytesWritten + in.Entry.DeclaredSize
	if wouldBe > in.Limits.MaxTotalBytes {
		return reject(&TotalSizeExceededError{Limit: in.Limits.MaxTotalBytes, WouldBe: wouldBe})
	}
	return allow()
}

// SymlinkNotAllowedError reports a symlink entry under SymlinkError
// behavior.
type SymlinkNotAllowedError struct {
	Entry  string
	Target string
}

func (e *SymlinkNotAllowedError) Error() string {
	return fmt.Sprintf("symlink not allowed: entry %q -> %q", e.Entry, e.Target)
}

// PathTooDeepError reports an entry whose component count exceeds the
// configured depth limit.
type PathTooDeepError struct {
	Entry string
	Depth int
	Limit int
}

func (e *PathTooDeepError) Error() string {
	return fmt.Sprintf("path too deep: entry %q has depth %d, limit %d", e.Entry, e.Depth, e.Limit)
}

// FileTooLargeError reports an entry whose declared size exceeds the
// per-file cap.
type FileTooLargeError struct {
	Entry string
	Size  int64
	Limit int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file too large: entry %q declares %d bytes, limit %d", e.Entry, e.Size, e.Limit)
}

// FileCountExceededError reports that extracting the next file would
// exceed the configured file count cap.
type FileCountExceededError struct {
	Limit     int64
	Attempted int64
}

func (e *FileCountExceededError) Error() string {
	return fmt.Sprintf("file count exceeded: attempted %d files, limit %d", e.Attempted, e.Limit)
}

// TotalSizeExceededError reports that extracting the next entry would
// exceed the configured cumulative byte budget.
type TotalSizeExceededError struct {
	Limit   int64
	WouldBe int64
}

func (e *TotalSizeExceededError) Error() string {
	return fmt.Sprintf("total size exceeded: would reach %d bytes, limit %d", e.WouldBe, e.Limit)
}
