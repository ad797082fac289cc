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

import "testing"

func testMediaConfig() MediaPacketConfig {
	return MediaPacketConfig{
		TargetCount: 2,
		TargetSize:  100,
		MaxCount:    5,
		MaxSize:     1000,
	}
}

func TestDiscardPolicyHysteresis(t *testing.T) {
	p := NewDiscardPolicy(testMediaConfig())

	steps := []struct {
		size, count int64
		skippable   bool
		discard     bool
	}{
		{0, 0, true, false},
		{50, 4, true, false},
		{50, 5, true, true},   // count reached max
		{50, 5, false, false}, // non skippable always accepted
		{50, 3, true, true},   // still above target count
		{150, 2, true, true},  // still above target size
		{100, 2, true, false}, // back under both targets
		{1000, 0, true, true}, // size reached max
	}
	for i, s := range steps {
		if actual := p.ShouldDiscard(s.size, s.count, s.skippable); actual != s.discard {
			t.Errorf("step %d: expected discard %v, got %v", i, s.discard, actual)
		}
	}
	if !p.Discarding() {
		t.Errorf("expected the policy to be discarding")
	}
}
