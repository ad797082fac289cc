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

func TestAddrs(t *testing.T) {
	happyCases := map[string]*URLAddr{
		"rtmp://localhost:1935/relay/1234": {
			host:   "localhost:1935",
			scheme: "rtmp",
			app:    "relay",
			key:    "1234",
		},
		"127.0.0.1:1935": {
			host:   "127.0.0.1:1935",
			scheme: "rtmp",
			app:    "live",
		},
		"rtmp://127.0.0.1": {
			host:   "127.0.0.1:1935",
			scheme: "rtmp",
			app:    "live",
		},
		"": {
			host:   "localhost:1935",
			scheme: "rtmp",
			app:    "live",
		},
		"localhost": {
			host:   "localhost:1935",
			scheme: "rtmp",
			app:    "live",
		},
		":1313": {
			host:   "localhost:1313",
			scheme: "rtmp",
			app:    "live",
		},
		"rtmp://localhost:1313/beeps/boops": {
			host:   "localhost:1313",
			scheme: "rtmp",
			app:    "beeps",
			key:    "boops",
		},
		"rtmp://localhost/beeps/boops?key=abc": {
			host:   "localhost:1935",
			scheme: "rtmp",
			app:    "beeps",
			key:    "boops?key=abc",
		},
	}
	for input, expected := range happyCases {
		actual, err := NewURLAddr(input)
		if err != nil {
			t.Errorf("happyCase %q error %v", input, err)
			continue
		}
		if !assertAddrs(actual, expected) {
			t.Errorf("Expected: %+v", expected)
			t.Errorf("Actual: %+v", actual)
		}
		if expected.key != "" {
			if actual.key != expected.key {
				t.Errorf("Expected key: %s", expected.key)
				t.Errorf("Actual key: %s", actual.key)
			}
		} else if actual.key == "" {
			t.Errorf("Failed generating key for raw: %s", actual.raw)
		}
	}

	sadCases := []string{
		"http://localhost/live/key",
		"rtmp://localhost/live/key/extra",
	}
	for _, input := range sadCases {
		if _, err := NewURLAddr(input); err == nil {
			t.Errorf("sadCase %q: expected an error", input)
		}
	}
}

func TestURLAddrStrings(t *testing.T) {
	addr, err := NewURLAddr("rtmp://localhost:1935/live/secret")
	if err != nil {
		t.Errorf("%v", err)
		t.FailNow()
	}
	if addr.TCURL() != "rtmp://localhost:1935/live" {
		t.Errorf("unexpected tcUrl %s", addr.TCURL())
	}
	if addr.SafeURL() != "rtmp://localhost:1935/live" {
		t.Errorf("safe url must not carry the key: %s", addr.SafeURL())
	}
	if addr.StreamURL() != "rtmp://localhost:1935/live/secret" {
		t.Errorf("unexpected stream url %s", addr.StreamURL())
	}
}

func TestParseStreamName(t *testing.T) {
	name, args := ParseStreamName("nova?key=abc&key=def&token=1")
	if name != "nova" {
		t.Errorf("expected nova, got %s", name)
	}
	if args["key"] != "abc" || args["token"] != "1" {
		t.Errorf("unexpected arguments %v", args)
	}
	name, args = ParseStreamName("plain")
	if name != "plain" || len(args) != 0 {
		t.Errorf("unexpected parse %s %v", name, args)
	}
	if p := StreamPath("/live/", "nova"); p != "/live/nova" {
		t.Errorf("expected /live/nova, got %s", p)
	}
}

func assertAddrs(a, b *URLAddr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.app == b.app && a.host == b.host && a.scheme == b.scheme
}
