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

//go:build windows
// +build windows

package sanitizer

import (
	"path/filepath"
	"strings"
)

// adsReplacer defuses NTFS alternate-data-stream and drive-letter
// syntax (":") plus wildcard device syntax ("?") before the path is
// lexically cleaned, so a jailed path can never address an ADS or a
// different drive on a Windows destination.
var adsReplacer = strings.NewReplacer(`:`, `_`, `?`, `_`)

func cleanRelative(in string) string {
	in = adsReplacer.Replace(in)
	tmp := filepath.Clean(strings.TrimLeft(filepath.Clean(winPathSeparator+in), winPathSeparator))
	return strings.ReplaceAll(tmp, winPathSeparator, nixPathSeparator)
}
