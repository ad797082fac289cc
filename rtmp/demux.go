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
	"io"

	"github.com/gwuhaolin/livego/utils/pio"
	"github.com/gwuhaolin/livego/utils/pool"
	"github.com/pkg/errors"
)

// slabLimit is the largest payload carved out of the shared slab; bigger
// messages get their own allocation.
const slabLimit = 64 * 1024

// ChunkReader is what the Demuxer reads chunks from.
type ChunkReader interface {
	io.Reader
	io.ByteReader
}

// Demuxer reassembles messages from the chunks of a single connection.
// It is not safe for concurrent use: one read loop owns it.
type Demuxer struct {
	chunkSize uint32
	streams   map[uint32]*ChunkStreamContext
	slab      *pool.Pool
	scratch   [11]byte
}

func NewDemuxer() *Demuxer {
	return &Demuxer{
		chunkSize: DefaultRTMPChunkSizeBytes,
		streams:   make(map[uint32]*ChunkStreamContext),
		slab:      pool.NewPool(),
	}
}

func (d *Demuxer) ChunkSize() uint32 {
	return d.chunkSize
}

// SetChunkSize changes the maximum payload bytes per incoming chunk.
func (d *Demuxer) SetChunkSize(size uint32) error {
	if size == 0 || size > MaxRTMPChunkSizeBytes {
		return errors.Wrapf(ErrProtocol, "invalid chunk size %d", size)
	}
	d.chunkSize = size
	return nil
}

// Context returns the state of a chunk stream, or nil if nothing arrived on it yet.
func (d *Demuxer) Context(csid uint32) *ChunkStreamContext {
	return d.streams[csid]
}

// Abort discards the partially received message on csid.
func (d *Demuxer) Abort(csid uint32) {
	if cs, ok := d.streams[csid]; ok {
		cs.reset()
		cs.IsFirstChunkOfMessage = true
	}
}

func (d *Demuxer) alloc(n uint32) []byte {
	if n > slabLimit {
		return make([]byte, n)
	}
	return d.slab.Get(int(n))
}

// ReadChunk reads exactly one chunk from r. It returns the message the chunk
// completes, or nil when more chunks are needed.
func (d *Demuxer) ReadChunk(r ChunkReader) (*Message, error) {
	bh, err := ReadBasicHeader(r)
	if err != nil {
		return nil, err
	}
	cs, seen := d.streams[bh.ChunkStreamID]
	if !seen {
		// A compressed first chunk starts from zeroed header fields.
		cs = newChunkStreamContext(bh.ChunkStreamID)
		d.streams[bh.ChunkStreamID] = cs
	}

	first := cs.IsFirstChunkOfMessage
	switch bh.ChunkType {
	case ChunkType0:
		raw, err := readRawMessageHeader(r, ChunkType0, d.scratch[:])
		if err != nil {
			return nil, err
		}
		cs.MessageLength = raw.messageLength
		cs.MessageTypeID = raw.messageTypeID
		cs.MessageStreamID = raw.messageStreamID
		cs.TimestampDelta = 0
		cs.HasExtendedTimestamp = raw.extended
		cs.Timestamp = raw.timestamp
		first = true
	case ChunkType1:
		raw, err := readRawMessageHeader(r, ChunkType1, d.scratch[:])
		if err != nil {
			return nil, err
		}
		cs.MessageLength = raw.messageLength
		cs.MessageTypeID = raw.messageTypeID
		cs.TimestampDelta = raw.timestamp
		cs.HasExtendedTimestamp = raw.extended
		cs.Timestamp += cs.TimestampDelta
		first = true
	case ChunkType2:
		raw, err := readRawMessageHeader(r, ChunkType2, d.scratch[:])
		if err != nil {
			return nil, err
		}
		cs.TimestampDelta = raw.timestamp
		cs.HasExtendedTimestamp = raw.extended
		cs.Timestamp += cs.TimestampDelta
		first = true
	case ChunkType3:
		if cs.HasExtendedTimestamp {
			if _, err := io.ReadFull(r, d.scratch[:4]); err != nil {
				return nil, err
			}
			if first {
				cs.TimestampDelta = pio.U32BE(d.scratch[:4])
			}
		}
		if first {
			cs.Timestamp += cs.TimestampDelta
		}
	default:
		return nil, errors.Wrapf(ErrProtocol, "unknown chunk type %d", bh.ChunkType)
	}
	cs.ChunkType = bh.ChunkType

	if first {
		cs.reset()
		cs.payload = d.alloc(cs.MessageLength)
	}

	n := cs.remaining()
	if n > d.chunkSize {
		n = d.chunkSize
	}
	if n > 0 {
		if _, err := io.ReadFull(r, cs.payload[cs.received:cs.received+n]); err != nil {
			return nil, err
		}
		cs.received += n
	}

	if !cs.complete() {
		cs.IsFirstChunkOfMessage = false
		return nil, nil
	}
	msg := &Message{
		ChunkStreamID: cs.ChunkStreamID,
		TypeID:        cs.MessageTypeID,
		StreamID:      cs.MessageStreamID,
		Timestamp:     cs.Timestamp,
		Payload:       cs.payload,
	}
	cs.reset()
	cs.IsFirstChunkOfMessage = true
	return msg, nil
}

// ReadMessage reads chunks until one message is complete.
func (d *Demuxer) ReadMessage(r ChunkReader) (*Message, error) {
	for {
		msg, err := d.ReadChunk(r)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
	}
}
