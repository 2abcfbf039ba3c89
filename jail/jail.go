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

// Package jail validates that an archive entry's path resolves to a
// location under a canonicalized destination root, accounting for
// symlinks that may already exist along the path. It is the only
// component allowed to decide that an output path is safe.
package jail

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// ErrEscape is the sentinel wrapped by every Error returned by Resolve.
var ErrEscape = errors.New("path escapes destination root")

// Error reports that an entry's path could not be safely resolved
// under the jail's root.
type Error struct {
	Entry  string
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("path escape for entry %q: %s", e.Entry, e.Detail)
}

func (e *Error) Unwrap() error {
	return ErrEscape
}

// Jail binds a canonicalized destination root and resolves archive
// entry names against it.
type Jail struct {
	root string
}

// New canonicalizes root and returns a Jail bound to it. root must
// already exist and be a directory.
func New(root string) (*Jail, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("jail: resolve absolute path for %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("jail: stat destination %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("jail: destination %q is not a directory", root)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("jail: canonicalize destination %q: %w", root, err)
	}
	return &Jail{root: canon}, nil
}

// Root returns the jail's canonicalized destination root.
func (j *Jail) Root() string {
	return j.root
}

// Resolve validates name (already passed through sanitizer.Validate)
// and returns the absolute path under the jail's root it denotes.
// Unlike a purely lexical cleaner, Resolve rejects any name whose ".."
// components would walk above the root outright, rather than silently
// clamping them back down to it; a Zip Slip entry must fail loudly.
// Every existing intermediate path component is then resolved as
// though the root were the filesystem root, so a pre-existing symlink
// under the root that points outside it is never followed out of the
// root: the name resolves to a path under the root and is not
// rejected. The final component is not resolved, so a symlink already
// sitting at the target path is returned as that path, not as the
// path it points to.
func (j *Jail) Resolve(name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", &Error{Entry: name, Detail: "absolute path"}
	}
	if err := checkNoEscape(name); err != nil {
		return "", &Error{Entry: name, Detail: err.Error()}
	}

	cleaned := strings.TrimPrefix(filepath.Clean("/"+name), "/")
	resolvedDir, err := securejoin.SecureJoin(j.root, filepath.Dir(cleaned))
	if err != nil {
		return "", &Error{Entry: name, Detail: err.Error()}
	}
	return filepath.Join(resolvedDir, filepath.Base(cleaned)), nil
}

// checkNoEscape walks name's "/"-separated components and fails as
// soon as a ".." would step above the entry's own root, catching Zip
// Slip style traversal regardless of how deep it is buried.
func checkNoEscape(name string) error {
	depth := 0
	for _, comp := range strings.Split(name, "/") {
		switch comp {
		case "", ".":
			continue
		case "..":
			depth--
			if depth < 0 {
				return fmt.Errorf("%q walks above its own root", name)
			}
		default:
			depth++
		}
	}
	return nil
}
