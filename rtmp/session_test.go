// Copyright © 2021 Kris Nóva <kris@nivenly.com>
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
//
// ────────────────────────────────────────────────────────────────────────────
//
//  ████████╗██╗    ██╗██╗███╗   ██╗██╗  ██╗
//  ╚══██╔══╝██║    ██║██║████╗  ██║╚██╗██╔╝
//     ██║   ██║ █╗ ██║██║██╔██╗ ██║ ╚███╔╝
//     ██║   ██║███╗██║██║██║╚██╗██║ ██╔██╗
//     ██║   ╚███╔███╔╝██║██║ ╚████║██╔╝ ██╗
//     ╚═╝    ╚══╝╚══╝ ╚═╝╚═╝  ╚═══╝╚═╝  ╚═╝
//
// ────────────────────────────────────────────────────────────────────────────

package rtmp

import (
	"testing"
)

func TestUpdateTimestamp(t *testing.T) {
	sub := newSubscriptionContext(1, 8, "/live/clock", nil)

	steps := []struct {
		timestamp uint32
		mediaType MediaType
		expected  bool
	}{
		{0, MediaTypeAudio, true},
		{20, MediaTypeAudio, true},
		{20, MediaTypeAudio, true},
		{10, MediaTypeAudio, false},
		{5, MediaTypeVideo, true},
		{0, MediaTypeData, true},
	}
	for i, s := range steps {
		if got := sub.UpdateTimestamp(s.timestamp, s.mediaType); got != s.expected {
			t.Errorf("step %d: %s@%d expected %v, got %v", i, s.mediaType, s.timestamp, s.expected, got)
		}
	}
}

func TestUpdateTimestampAfterReplay(t *testing.T) {
	sub := newSubscriptionContext(1, 8, "/live/replay", nil)
	sub.MarkReplayed(0, MediaTypeVideo)
	sub.MarkReplayed(40, MediaTypeVideo)

	// The last replayed frame may also be waiting in the live queue.
	if sub.UpdateTimestamp(40, MediaTypeVideo) {
		t.Errorf("a live copy of the last replayed frame must be refused")
	}
	if !sub.UpdateTimestamp(80, MediaTypeVideo) {
		t.Errorf("expected the next frame to pass")
	}
	if !sub.UpdateTimestamp(80, MediaTypeVideo) {
		t.Errorf("equal live timestamps must pass once the replay is over")
	}
	if !sub.UpdateTimestamp(0, MediaTypeAudio) {
		t.Errorf("audio must not be affected by a video replay")
	}

	sub.MarkReplayed(100, MediaTypeAudio)
	sub.ResetTimestamps()
	if !sub.UpdateTimestamp(0, MediaTypeAudio) || !sub.UpdateTimestamp(0, MediaTypeVideo) {
		t.Errorf("reset must forget replayed timestamps")
	}
}
