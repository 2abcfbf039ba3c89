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

// Package safeunzip extracts untrusted ZIP, TAR, and TAR+GZIP archives
// into a destination directory while defending against path traversal,
// decompression bombs, symlink escapes, TOCTOU races, setuid
// escalation, filename confusion, and malformed entry types. Security
// is on by default; callers opt out of individual checks, never in.
//
// Construct a Driver bound to a destination directory, then call one
// of its Extract* methods with an archive source. Configuration is
// functional options passed to New or NewOrCreate.
package safeunzip

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/archsafe/safeunzip/boundedreader"
	"github.com/archsafe/safeunzip/descriptor"
	"github.com/archsafe/safeunzip/jail"
	"github.com/archsafe/safeunzip/policy"
	"github.com/archsafe/safeunzip/sanitizer"
	"github.com/archsafe/safeunzip/tar"
	"github.com/archsafe/safeunzip/zip"
)

// Driver is the extraction orchestrator bound to one destination
// directory. A Driver is safe to reuse across multiple Extract* calls,
// but not to call concurrently: the running totals for one call are
// not shared across calls, but the driver performs no internal
// locking around filesystem mutation.
type Driver struct {
	jail *jail.Jail
	opts options
}

// New binds a Driver to destination, which must already exist.
// Returns a KindDestinationNotFound error otherwise.
func New(destination string, opts ...Option) (*Driver, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if _, err := os.Stat(destination); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Kind: KindDestinationNotFound, Path: destination}
		}
		return nil, &Error{Kind: KindIO, Path: destination, Err: err}
	}

	j, err := jail.New(destination)
	if err != nil {
		return nil, &Error{Kind: KindJail, Path: destination, Err: err}
	}
	return &Driver{jail: j, opts: o}, nil
}

// NewOrCreate creates destination if it does not already exist, then
// binds a Driver to it. Prefer New at call sites where a missing
// destination is a caller bug rather than something to paper over.
func NewOrCreate(destination string, opts ...Option) (*Driver, error) {
	if err := os.MkdirAll(destination, 0o755); err != nil {
		return nil, &Error{Kind: KindIO, Path: destination, Err: err}
	}
	return New(destination, opts...)
}

// ExtractZipReader extracts from an already-open, seekable ZIP
// source of the given size.
func (d *Driver) ExtractZipReader(r io.ReaderAt, size int64) (Report, error) {
	a, err := zip.NewReader(r, size)
	if err != nil {
		return Report{}, &Error{Kind: KindZip, Err: err}
	}
	return d.extract(a)
}

// ExtractZipFile extracts the ZIP archive at path.
func (d *Driver) ExtractZipFile(path string) (Report, error) {
	a, err := zip.Open(path)
	if err != nil {
		return Report{}, &Error{Kind: KindZip, Path: path, Err: err}
	}
	defer a.Close()
	return d.extract(a)
}

// ExtractTarReader extracts from a plain, uncompressed TAR stream.
func (d *Driver) ExtractTarReader(r io.Reader) (Report, error) {
	return d.extractTar(r, false)
}

// ExtractTarGzReader extracts from a gzip-compressed TAR stream.
func (d *Driver) ExtractTarGzReader(r io.Reader) (Report, error) {
	return d.extractTar(r, true)
}

// ExtractTarFile extracts the plain TAR archive at path.
func (d *Driver) ExtractTarFile(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, &Error{Kind: KindIO, Path: path, Err: err}
	}
	defer f.Close()
	return d.extractTar(f, false)
}

// ExtractTarGzFile extracts the gzip-compressed TAR archive at path.
func (d *Driver) ExtractTarGzFile(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, &Error{Kind: KindIO, Path: path, Err: err}
	}
	defer f.Close()
	return d.extractTar(f, true)
}

func (d *Driver) extractTar(r io.Reader, gzipped bool) (Report, error) {
	if d.opts.mode == ValidateFirst {
		a, err := tar.NewBuffered(r, gzipped)
		if err != nil {
			return Report{}, &Error{Kind: KindFormat, Err: err}
		}
		return d.extract(a)
	}

	var a *tar.Adapter
	var err error
	if gzipped {
		a, err = tar.NewStreamingGzip(r)
		if err != nil {
			return Report{}, &Error{Kind: KindFormat, Err: err}
		}
	} else {
		a = tar.NewStreaming(r)
	}
	return d.extract(a)
}

func (d *Driver) extract(a descriptor.Adapter) (Report, error) {
	if d.opts.mode == ValidateFirst {
		return d.extractValidateFirst(a)
	}
	return d.extractStreaming(a)
}

// extractValidateFirst runs a metadata-only pass checking only the
// resource caps (ignoring selection, symlink policy, and the user
// filter, per the validation promise applying uniformly to every
// entry) before delegating to extractStreaming for the real pass. A
// rejection in the first pass returns before any file is touched.
func (d *Driver) extractValidateFirst(a descriptor.Adapter) (Report, error) {
	it, err := a.MetadataIter()
	if err != nil {
		return Report{}, &Error{Kind: KindFormat, Err: err}
	}

	var totals runningTotals
	chain := policy.ResourceOnly()
	limits := d.opts.limits.toPolicy()

	for {
		entry, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Report{}, &Error{Kind: KindFormat, Err: err}
		}

		if _, err := d.runPreChecks(entry); err != nil {
			return Report{}, err
		}

		res := chain.Run(policy.Input{Entry: entry, Limits: limits, Totals: totals.policyTotals()})
		if res.Decision == policy.Reject {
			return Report{}, translatePolicyErr(entry.Name, res.Err)
		}

		if entry.Kind != descriptor.Directory {
			totals.seenFiles++
			totals.bytesWritten += entry.DeclaredSize
		}
	}

	return d.extractStreaming(a)
}

func (d *Driver) extractStreaming(a descriptor.Adapter) (Report, error) {
	it, err := a.ConsumeIter()
	if err != nil {
		return Report{}, &Error{Kind: KindFormat, Err: err}
	}

	var totals runningTotals
	chain := policy.Default()
	limits := d.opts.limits.toPolicy()

	for {
		entry, payload, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return totals.report(), &Error{Kind: KindFormat, Err: err}
		}

		target, err := d.runPreChecks(entry)
		if err != nil {
			return totals.report(), err
		}

		res := chain.Run(policy.Input{
			Entry:           entry,
			Limits:          limits,
			Totals:          totals.policyTotals(),
			Selection:       d.opts.selection,
			SymlinkBehavior: d.opts.symlinkBehavior,
			Filter:          d.opts.filter,
		})
		d.logDecision(entry, res)

		switch res.Decision {
		case policy.Reject:
			return totals.report(), translatePolicyErr(entry.Name, res.Err)
		case policy.Skip:
			totals.entriesSkipped++
			continue
		}

		if entry.Kind != descriptor.Directory {
			totals.seenFiles++
		}
		if err := d.materialize(entry, target, payload, &totals); err != nil {
			return totals.report(), err
		}
	}

	return totals.report(), nil
}

// runPreChecks runs steps 1-4 of the policy chain: unsupported entry
// type, encryption, the filename sanitizer, and the path jail. These
// precede the configurable policy.Chain because they cannot be
// bypassed by any configuration; the path jail's resolved target is
// returned for the caller to pass on to materialization.
func (d *Driver) runPreChecks(entry descriptor.EntryDescriptor) (string, error) {
	if entry.UnsupportedKind != "" {
		return "", &Error{Kind: KindUnsupportedEntryType, Entry: entry.Name, EntryType: entry.UnsupportedKind}
	}
	if entry.IsEncrypted {
		return "", &Error{Kind: KindEncryptedEntry, Entry: entry.Name}
	}
	if err := sanitizer.Validate(entry.Name); err != nil {
		var ine *sanitizer.InvalidNameError
		if errors.As(err, &ine) {
			return "", &Error{Kind: KindInvalidFilename, Entry: entry.Name, Reason: string(ine.Reason)}
		}
		return "", &Error{Kind: KindInvalidFilename, Entry: entry.Name, Err: err}
	}
	target, err := d.jail.Resolve(entry.Name)
	if err != nil {
		var je *jail.Error
		detail := err.Error()
		if errors.As(err, &je) {
			detail = je.Detail
		}
		return "", &Error{Kind: KindPathEscape, Entry: entry.Name, Detail: detail, Err: err}
	}
	return target, nil
}

func translatePolicyErr(entry string, err error) *Error {
	switch e := err.(type) {
	case *policy.SymlinkNotAllowedError:
		return &Error{Kind: KindSymlinkNotAllowed, Entry: e.Entry, Target: e.Target}
	case *policy.PathTooDeepError:
		return &Error{Kind: KindPathTooDeep, Entry: e.Entry, Depth: e.Depth, DepthLimit: e.Limit}
	case *policy.FileTooLargeError:
		return &Error{Kind: KindFileTooLarge, Entry: e.Entry, Size: e.Size, Limit: e.Limit}
	case *policy.FileCountExceededError:
		return &Error{Kind: KindFileCountExceeded, Limit: e.Limit, Attempted: e.Attempted}
	case *policy.TotalSizeExceededError:
		return &Error{Kind: KindTotalSizeExceeded, Limit: e.Limit, WouldBe: e.WouldBe}
	default:
		return &Error{Kind: KindFormat, Entry: entry, Err: err}
	}
}

func (d *Driver) logDecision(entry descriptor.EntryDescriptor, res policy.Result) {
	switch res.Decision {
	case policy.Skip:
		d.opts.logger.decision("policy", entry.Name, "skip")
	case policy.Reject:
		d.opts.logger.decision("policy", entry.Name, "reject")
	default:
		d.opts.logger.decision("policy", entry.Name, "materialize")
	}
}

func (d *Driver) materialize(entry descriptor.EntryDescriptor, target string, payload descriptor.PayloadReader, totals *runningTotals) error {
	switch entry.Kind {
	case descriptor.Directory:
		return d.materializeDir(target, totals)
	case descriptor.File:
		return d.materializeFile(entry, target, payload, totals)
	case descriptor.Symlink:
		return d.materializeSymlink(entry, target, totals)
	default:
		return &Error{Kind: KindFormat, Entry: entry.Name, Detail: "unknown descriptor kind"}
	}
}

// ensureDirChain creates target and every missing ancestor up to (and
// stopping at) the first existing directory, returning how many
// directories it actually created.
func (d *Driver) ensureDirChain(target string) (int, error) {
	var missing int
	p := target
	for {
		info, err := os.Stat(p)
		if err == nil {
			if !info.IsDir() {
				return 0, fmt.Errorf("%q exists and is not a directory", p)
			}
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return 0, err
		}
		missing++
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return 0, err
	}
	return missing, nil
}

func (d *Driver) materializeDir(target string, totals *runningTotals) error {
	created, err := d.ensureDirChain(target)
	if err != nil {
		return &Error{Kind: KindIO, Path: target, Err: err}
	}
	totals.dirsCreated += int64(created)
	return nil
}

var errSkipExisting = errors.New("safeunzip: skip existing")

func (d *Driver) openForWrite(name, target string) (*os.File, error) {
	switch d.opts.overwrite {
	case OverwriteOverwrite:
		if lst, err := os.Lstat(target); err == nil && lst.Mode()&fs.ModeSymlink != 0 {
			if err := os.Remove(target); err != nil {
				return nil, &Error{Kind: KindIO, Path: target, Err: err}
			}
		}
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, &Error{Kind: KindIO, Path: target, Err: err}
		}
		return f, nil
	case OverwriteSkip:
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				return nil, errSkipExisting
			}
			return nil, &Error{Kind: KindIO, Path: target, Err: err}
		}
		return f, nil
	default:
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				return nil, &Error{Kind: KindAlreadyExists, Entry: name}
			}
			return nil, &Error{Kind: KindIO, Path: target, Err: err}
		}
		return f, nil
	}
}

func (d *Driver) materializeFile(entry descriptor.EntryDescriptor, target string, payload descriptor.PayloadReader, totals *runningTotals) error {
	parent := filepath.Dir(target)
	created, err := d.ensureDirChain(parent)
	if err != nil {
		return &Error{Kind: KindIO, Path: parent, Err: err}
	}
	totals.dirsCreated += int64(created)

	f, err := d.openForWrite(entry.Name, target)
	if err != nil {
		if errors.Is(err, errSkipExisting) {
			totals.entriesSkipped++
			return nil
		}
		return err
	}
	fail := func(e error) error {
		f.Close()
		return e
	}
	// discard is fail for an entry rejected over its size: the partial
	// file is removed as well, so no truncated copy is left behind.
	discard := func(e error) error {
		f.Close()
		os.Remove(target)
		return e
	}

	cap := int64(d.opts.limits.MaxSingleFile)
	if cap <= 0 {
		cap = math.MaxInt64
	}
	bounded := boundedreader.New(payload, cap)

	n, copyErr := io.Copy(f, bounded)
	totals.bytesWritten += n
	if copyErr != nil {
		return fail(&Error{Kind: KindIO, Entry: entry.Name, Err: copyErr})
	}

	if bounded.Capped() {
		var probe [1]byte
		more, _ := payload.Read(probe[:])
		if more > 0 {
			return discard(&Error{Kind: KindFileTooLarge, Entry: entry.Name, Size: n, Limit: cap})
		}
	}
	if n > entry.DeclaredSize {
		return discard(&Error{Kind: KindSizeMismatch, Entry: entry.Name, Declared: entry.DeclaredSize, Actual: n})
	}

	maxTotal := int64(d.opts.limits.MaxTotalBytes)
	if maxTotal > 0 && totals.bytesWritten > maxTotal {
		return fail(&Error{Kind: KindTotalSizeExceeded, Limit: maxTotal, WouldBe: totals.bytesWritten})
	}

	if err := f.Close(); err != nil {
		return &Error{Kind: KindIO, Entry: entry.Name, Err: err}
	}
	if err := os.Chmod(target, fileModeOf(entry.Mode)); err != nil {
		return &Error{Kind: KindIO, Entry: entry.Name, Err: err}
	}

	totals.filesExtracted++
	return nil
}

func fileModeOf(mode uint32) os.FileMode {
	m := mode & 0o777
	if m == 0 {
		m = 0o644
	}
	return os.FileMode(m)
}

// materializeSymlink is reached only if a future SymlinkBehavior value
// besides SymlinkSkip/SymlinkError asks the policy chain to Allow a
// symlink descriptor through; today's two behaviors always Skip or
// Reject it first. It is kept as the driver's documented answer to
// "what would materializing a symlink look like": the target string is
// written verbatim, unresolved and uncanonicalized, since the jail
// guarantees every later write under the destination is safe
// regardless of where this link points.
func (d *Driver) materializeSymlink(entry descriptor.EntryDescriptor, target string, totals *runningTotals) error {
	parent := filepath.Dir(target)
	created, err := d.ensureDirChain(parent)
	if err != nil {
		return &Error{Kind: KindIO, Path: parent, Err: err}
	}
	totals.dirsCreated += int64(created)

	switch d.opts.overwrite {
	case OverwriteOverwrite:
		os.Remove(target)
	case OverwriteSkip:
		if _, err := os.Lstat(target); err == nil {
			totals.entriesSkipped++
			return nil
		}
	default:
		if _, err := os.Lstat(target); err == nil {
			return &Error{Kind: KindAlreadyExists, Entry: entry.Name}
		}
	}

	if err := os.Symlink(entry.LinkTarget, target); err != nil {
		return &Error{Kind: KindIO, Entry: entry.Name, Err: err}
	}
	totals.filesExtracted++
	return nil
}

type runningTotals struct {
	filesExtracted int64
	dirsCreated    int64
	entriesSkipped int64
	seenFiles      int64
	bytesWritten   int64
}

func (t *runningTotals) policyTotals() policy.Totals {
	return policy.Totals{SeenFiles: t.seenFiles, BytesWritten: t.bytesWritten}
}

func (t *runningTotals) report() Report {
	return Report{
		FilesExtracted: t.filesExtracted,
		DirsCreated:    t.dirsCreated,
		EntriesSkipped: t.entriesSkipped,
		SeenFiles:      t.seenFiles,
		BytesWritten:   t.bytesWritten,
	}
}
