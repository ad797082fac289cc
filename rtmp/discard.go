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

// MediaPacketConfig bounds what a single subscriber may have queued.
type MediaPacketConfig struct {
	TargetCount     int64 `yaml:"target_count"`
	TargetSize      int64 `yaml:"target_size"`
	MaxCount        int64 `yaml:"max_count"`
	MaxSize         int64 `yaml:"max_size"`
	MaxGOPCacheSize int64 `yaml:"max_gop_cache_size"`
}

const (
	DefaultMediaTargetCount     int64 = 64
	DefaultMediaTargetSize      int64 = 1 << 20
	DefaultMediaMaxCount        int64 = 512
	DefaultMediaMaxSize         int64 = 8 << 20
	DefaultMediaMaxGOPCacheSize int64 = 16 << 20
)

func DefaultMediaPacketConfig() MediaPacketConfig {
	return MediaPacketConfig{
		TargetCount:     DefaultMediaTargetCount,
		TargetSize:      DefaultMediaTargetSize,
		MaxCount:        DefaultMediaMaxCount,
		MaxSize:         DefaultMediaMaxSize,
		MaxGOPCacheSize: DefaultMediaMaxGOPCacheSize,
	}
}

// DiscardPolicy decides whether a package is queued for a subscriber.
//
// Once the queue reaches a max threshold the policy starts dropping
// skippable packages and keeps dropping them until the queue is back under
// both targets. Non-skippable packages are always accepted.
//
// A DiscardPolicy belongs to one subscriber and is not safe for concurrent use.
type DiscardPolicy struct {
	config     MediaPacketConfig
	discarding bool
}

func NewDiscardPolicy(config MediaPacketConfig) *DiscardPolicy {
	return &DiscardPolicy{config: config}
}

func (p *DiscardPolicy) Discarding() bool {
	return p.discarding
}

func (p *DiscardPolicy) ShouldDiscard(outstandingSize, outstandingCount int64, isSkippable bool) bool {
	c := p.config
	if p.discarding {
		if outstandingSize <= c.TargetSize && outstandingCount <= c.TargetCount {
			p.discarding = false
		}
	} else if outstandingSize >= c.MaxSize || outstandingCount >= c.MaxCount {
		p.discarding = true
	}
	return p.discarding && isSkippable
}
