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

func TestConfigDefaults(t *testing.T) {
	c := DefaultConfig()
	if c.Address != ":1935" {
		t.Errorf("expected :1935, got %s", c.Address)
	}
	if c.ChunkSize != DefaultRTMPChunkSizeBytesLarge {
		t.Errorf("expected chunk size %d, got %d", DefaultRTMPChunkSizeBytesLarge, c.ChunkSize)
	}
	if c.Media != DefaultMediaPacketConfig() {
		t.Errorf("unexpected media defaults %+v", c.Media)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	c := DefaultConfig()
	c.ChunkSize = 64
	if err := c.Validate(); err == nil {
		t.Errorf("expected an error for chunk size 64")
	}
	c = DefaultConfig()
	c.Media.TargetCount = c.Media.MaxCount + 1
	if err := c.Validate(); err == nil {
		t.Errorf("expected an error for target_count above max_count")
	}
	c = DefaultConfig()
	c.MaxConnections = -1
	if err := c.Validate(); err == nil {
		t.Errorf("expected an error for negative max_connections")
	}
}
