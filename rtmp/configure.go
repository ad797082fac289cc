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
	"fmt"
)

// Config is the rtmp section of the relay configuration file.
type Config struct {
	Address                   string            `yaml:"address"`
	MaxConnections            int               `yaml:"max_connections"`
	ChunkSize                 uint32            `yaml:"chunk_size"`
	WindowAcknowledgementSize uint32            `yaml:"window_ack_size"`
	PeerBandwidth             uint32            `yaml:"peer_bandwidth"`
	RequireStreamKey          bool              `yaml:"require_stream_key"`
	MaxOutstandingBuffers     int               `yaml:"max_outstanding_buffers"`
	Media                     MediaPacketConfig `yaml:"media"`
}

func DefaultConfig() Config {
	c := Config{}
	c.SetDefaults()
	return c
}

// SetDefaults fills every zero value with its default.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = fmt.Sprintf(":%s", DefaultLocalPort)
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultRTMPChunkSizeBytesLarge
	}
	if c.WindowAcknowledgementSize == 0 {
		c.WindowAcknowledgementSize = DefaultWindowAcknowledgementSizeBytes
	}
	if c.PeerBandwidth == 0 {
		c.PeerBandwidth = DefaultPeerBandwidthBytes
	}
	if c.MaxOutstandingBuffers == 0 {
		c.MaxOutstandingBuffers = DefaultMaxOutstandingBuffers
	}
	m := &c.Media
	if m.TargetCount == 0 {
		m.TargetCount = DefaultMediaTargetCount
	}
	if m.TargetSize == 0 {
		m.TargetSize = DefaultMediaTargetSize
	}
	if m.MaxCount == 0 {
		m.MaxCount = DefaultMediaMaxCount
	}
	if m.MaxSize == 0 {
		m.MaxSize = DefaultMediaMaxSize
	}
	if m.MaxGOPCacheSize == 0 {
		m.MaxGOPCacheSize = DefaultMediaMaxGOPCacheSize
	}
}

func (c *Config) Validate() error {
	if c.ChunkSize < DefaultRTMPChunkSizeBytes || c.ChunkSize > MaxRTMPChunkSizeBytes {
		return fmt.Errorf("rtmp.chunk_size %d out of range [%d, %d]", c.ChunkSize, DefaultRTMPChunkSizeBytes, MaxRTMPChunkSizeBytes)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("rtmp.max_connections must not be negative")
	}
	m := c.Media
	if m.TargetCount > m.MaxCount {
		return fmt.Errorf("rtmp.media.target_count %d above max_count %d", m.TargetCount, m.MaxCount)
	}
	if m.TargetSize > m.MaxSize {
		return fmt.Errorf("rtmp.media.target_size %d above max_size %d", m.TargetSize, m.MaxSize)
	}
	if m.MaxGOPCacheSize < 0 {
		return fmt.Errorf("rtmp.media.max_gop_cache_size must not be negative")
	}
	return nil
}
