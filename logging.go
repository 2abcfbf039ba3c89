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

import "github.com/rs/zerolog"

// eventLogger wraps a zerolog.Logger so the rest of the driver never
// touches the global logger or reasons about whether logging is
// enabled; it just calls decision and lets a disabled logger discard
// the event for free.
type eventLogger struct {
	log zerolog.Logger
}

func newEventLogger(l *zerolog.Logger) eventLogger {
	if l == nil {
		return eventLogger{log: zerolog.Nop()}
	}
	return eventLogger{log: *l}
}

func (e eventLogger) decision(check, entry, decision string) {
	e.log.Debug().Str("check", check).Str("entry", entry).Str("decision", decision).Msg("policy decision")
}
