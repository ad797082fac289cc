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
	"bytes"
	"sync"

	"github.com/gwuhaolin/livego/av"
	"github.com/gwuhaolin/livego/protocol/amf"
	"github.com/kris-nova/logger"
)

const (
	SetDataFrame string = "@setDataFrame"
	OnMetaData   string = "onMetaData"
)

// streamCache holds what a late subscriber needs before live media: the
// stream metadata, the codec sequence headers and the frames since the last
// video keyframe.
//
// The publisher's read loop writes it, play handlers read snapshots of it.
type streamCache struct {
	mu sync.RWMutex

	metadata *av.Packet
	videoSeq *av.Packet
	audioSeq *av.Packet

	gop      []*av.Packet
	gopSize  int64
	maxSize  int64
	gopStart bool
}

func newStreamCache(maxGOPCacheSize int64) *streamCache {
	if maxGOPCacheSize <= 0 {
		maxGOPCacheSize = DefaultMediaMaxGOPCacheSize
	}
	return &streamCache{maxSize: maxGOPCacheSize}
}

// Write files p into the cache. Sequence headers and metadata replace the
// previous one, everything else joins the current GOP.
func (c *streamCache) Write(p *av.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.IsMetadata {
		c.metadata = p
		return
	}
	if p.IsVideo {
		vh, ok := p.Header.(av.VideoPacketHeader)
		if !ok {
			return
		}
		if vh.IsSeq() {
			c.videoSeq = p
			return
		}
		if vh.IsKeyFrame() {
			c.resetGOP()
			c.gopStart = true
		}
	} else {
		ah, ok := p.Header.(av.AudioPacketHeader)
		if ok && ah.SoundFormat() == av.SOUND_AAC && ah.AACPacketType() == av.AAC_SEQHDR {
			c.audioSeq = p
			return
		}
	}
	if !c.gopStart {
		return
	}
	size := int64(len(p.Data))
	if c.gopSize+size > c.maxSize {
		logger.Debug(rtmpServerMessage("gop cache full, dropping until next keyframe", drop))
		c.resetGOP()
		return
	}
	c.gop = append(c.gop, p)
	c.gopSize += size
}

func (c *streamCache) resetGOP() {
	for i := range c.gop {
		c.gop[i] = nil
	}
	c.gop = c.gop[:0]
	c.gopSize = 0
	c.gopStart = false
}

// Snapshot returns the cached packets in the order a subscriber must see
// them: metadata, video and audio sequence headers, then the GOP.
func (c *streamCache) Snapshot() []*av.Packet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var packets []*av.Packet
	for _, p := range []*av.Packet{c.metadata, c.videoSeq, c.audioSeq} {
		if p != nil {
			packets = append(packets, p)
		}
	}
	return append(packets, c.gop...)
}

func (c *streamCache) GOPSize() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gopSize
}

// Clear empties the cache when the publisher goes away.
func (c *streamCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata = nil
	c.videoSeq = nil
	c.audioSeq = nil
	c.resetGOP()
}

// setDataFrame is the AMF0 encoding of "@setDataFrame", the prefix a
// publisher puts in front of onMetaData.
var setDataFrame []byte

func init() {
	b := bytes.NewBuffer(nil)
	encoder := &amf.Encoder{}
	if _, err := encoder.Encode(b, SetDataFrame, amf.AMF0); err != nil {
		panic(err)
	}
	setDataFrame = b.Bytes()
}
