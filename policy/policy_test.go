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

package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archsafe/safeunzip/descriptor"
)

func TestChainOrderingSelectionBeforeResourceCaps(t *testing.T) {
	chain := Default()

	// A file that is both excluded by selection AND over the per-file
	// size cap: selection (5) precedes the resource caps (9-12) and the
	// chain stops at the first non-Allow result, so the excluded,
	// oversized file is Skipped, not Rejected.
	in := Input{
		Entry: descriptor.EntryDescriptor{Name: "big.bin", Kind: descriptor.File, DeclaredSize: 100},
		Limits: Limits{
			MaxSingleFile: 10,
			MaxTotalBytes: 1000,
			MaxFileCount:  10,
			MaxPathDepth:  10,
		},
		Selection: Selection{ExcludeGlobs: []string{"*.bin"}},
	}
	res := chain.Run(in)
	require.Equal(t, Skip, res.Decision)
}

func TestFileTooLargeRejected(t *testing.T) {
	chain := Default()
	in := Input{
		Entry:  descriptor.EntryDescriptor{Name: "big.bin", Kind: descriptor.File, DeclaredSize: 100},
		Limits: Limits{MaxSingleFile: 10, MaxTotalBytes: 1000, MaxFileCount: 10, MaxPathDepth: 10},
	}
	res := chain.Run(in)
	require.Equal(t, Reject, res.Decision)
	_, ok := res.Err.(*FileTooLargeError)
	assert.True(t, ok, "want *FileTooLargeError, got %T", res.Err)
}

func TestFileCountExceeded(t *testing.T) {
	chain := Default()
	in := Input{
		Entry:  descriptor.EntryDescriptor{Name: "f10001", Kind: descriptor.File},
		Limits: Limits{MaxFileCount: 10000, MaxSingleFile: 1 << 20, MaxTotalBytes: 1 << 30, MaxPathDepth: 50},
		Totals: Totals{SeenFiles: 10000},
	}
	res := chain.Run(in)
	require.Equal(t, Reject, res.Decision)
	fce, ok := res.Err.(*FileCountExceededError)
	require.True(t, ok)
	assert.EqualValues(t, 10000, fce.Limit)
	assert.EqualValues(t, 10001, fce.Attempted)
}

func TestTotalSizeExceeded(t *testing.T) {
	chain := Default()
	in := Input{
		Entry:  descriptor.EntryDescriptor{Name: "f", Kind: descriptor.File, DeclaredSize: 500},
		Limits: Limits{MaxTotalBytes: 1000, MaxSingleFile: 1 << 30, MaxFileCount: 1 << 30, MaxPathDepth: 50},
		Totals: Totals{BytesWritten: 600},
	}
	res := chain.Run(in)
	require.Equal(t, Reject, res.Decision)
	assert.IsType(t, &TotalSizeExceededError{}, res.Err)
}

func TestDepthExceeded(t *testing.T) {
	chain := Default()
	in := Input{
		Entry:  descriptor.EntryDescriptor{Name: "a/b/c/d", Kind: descriptor.File},
		Limits: Limits{MaxPathDepth: 2, MaxSingleFile: 1 << 30, MaxTotalBytes: 1 << 30, MaxFileCount: 1 << 30},
	}
	res := chain.Run(in)
	require.Equal(t, Reject, res.Decision)
	assert.IsType(t, &PathTooDeepError{}, res.Err)
}

func TestSymlinkErrorBehaviorRejects(t *testing.T) {
	chain := Default()
	in := Input{
		Entry:           descriptor.EntryDescriptor{Name: "link", Kind: descriptor.Symlink, LinkTarget: "/etc/passwd"},
		Limits:          Limits{MaxPathDepth: 50, MaxSingleFile: 1 << 30, MaxTotalBytes: 1 << 30, MaxFileCount: 1 << 30},
		SymlinkBehavior: SymlinkError,
	}
	res := chain.Run(in)
	require.Equal(t, Reject, res.Decision)
	sla, ok := res.Err.(*SymlinkNotAllowedError)
	require.True(t, ok)
	assert.Equal(t, "/etc/passwd", sla.Target)
}

func TestSymlinkSkipBehaviorSkips(t *testing.T) {
	chain := Default()
	in := Input{
		Entry:           descriptor.EntryDescriptor{Name: "link", Kind: descriptor.Symlink, LinkTarget: "target"},
		Limits:          Limits{MaxPathDepth: 50, MaxSingleFile: 1 << 30, MaxTotalBytes: 1 << 30, MaxFileCount: 1 << 30},
		SymlinkBehavior: SymlinkSkip,
	}
	res := chain.Run(in)
	require.Equal(t, Skip, res.Decision)
}

func TestSelectionOnlySet(t *testing.T) {
	chain := Default()
	limits := Limits{MaxPathDepth: 50, MaxSingleFile: 1 << 30, MaxTotalBytes: 1 << 30, MaxFileCount: 1 << 30}
	sel := Selection{Only: map[string]bool{"keep.txt": true}}

	allowed := chain.Run(Input{Entry: descriptor.EntryDescriptor{Name: "keep.txt", Kind: descriptor.File}, Limits: limits, Selection: sel})
	require.Equal(t, Allow, allowed.Decision)

	skipped := chain.Run(Input{Entry: descriptor.EntryDescriptor{Name: "drop.txt", Kind: descriptor.File}, Limits: limits, Selection: sel})
	require.Equal(t, Skip, skipped.Decision)
}

func TestUserFilterIsAdvisoryOnly(t *testing.T) {
	chain := Default()
	limits := Limits{MaxPathDepth: 50, MaxSingleFile: 1 << 30, MaxTotalBytes: 1 << 30, MaxFileCount: 1 << 30}

	res := chain.Run(Input{
		Entry:  descriptor.EntryDescriptor{Name: "f", Kind: descriptor.File},
		Limits: limits,
		Filter: func(descriptor.EntryDescriptor) bool { return false },
	})
	require.Equal(t, Skip, res.Decision)
}
