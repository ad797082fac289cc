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
	"github.com/pkg/errors"
)

const (
	// ExtendedTimestampThreshold is the saturated 24 bit timestamp value that
	// announces a 4 byte extended timestamp after the message header.
	ExtendedTimestampThreshold uint32 = 0xFFFFFF

	MinChunkStreamID uint32 = 2
	MaxChunkStreamID uint32 = 65599
)

// Chunk types (fmt) carried in the top two bits of the basic header.
const (
	ChunkType0 uint8 = 0
	ChunkType1 uint8 = 1
	ChunkType2 uint8 = 2
	ChunkType3 uint8 = 3
)

// BasicHeader
//
//   1 byte  : csid 2..63     [fmt:2][csid:6]
//   2 bytes : csid 64..319   [fmt:2][0:6] [csid-64]
//   3 bytes : csid 64..65599 [fmt:2][1:6] [csid-64 little endian 16]
type BasicHeader struct {
	ChunkType     uint8
	ChunkStreamID uint32
}

func (h BasicHeader) Size() int {
	switch {
	case h.ChunkStreamID < 64:
		return 1
	case h.ChunkStreamID < 320:
		return 2
	default:
		return 3
	}
}

func (h BasicHeader) Write(b *Buffer) {
	fmtBits := h.ChunkType << 6
	switch {
	case h.ChunkStreamID < 64:
		b.WriteByte(fmtBits | byte(h.ChunkStreamID))
	case h.ChunkStreamID < 320:
		b.WriteByte(fmtBits)
		b.WriteByte(byte(h.ChunkStreamID - 64))
	default:
		v := h.ChunkStreamID - 64
		b.WriteByte(fmtBits | 1)
		b.WriteByte(byte(v))
		b.WriteByte(byte(v >> 8))
	}
}

func ReadBasicHeader(r io.ByteReader) (BasicHeader, error) {
	first, err := r.ReadByte()
	if err != nil {
		return BasicHeader{}, err
	}
	h := BasicHeader{ChunkType: first >> 6}
	switch csid := first & 0x3f; csid {
	case 0:
		b, err := r.ReadByte()
		if err != nil {
			return h, err
		}
		h.ChunkStreamID = uint32(b) + 64
	case 1:
		lo, err := r.ReadByte()
		if err != nil {
			return h, err
		}
		hi, err := r.ReadByte()
		if err != nil {
			return h, err
		}
		h.ChunkStreamID = uint32(hi)<<8 + uint32(lo) + 64
	default:
		h.ChunkStreamID = uint32(csid)
	}
	return h, nil
}

// MessageHeader is one of the four chunk message header variants.
type MessageHeader interface {
	ChunkType() uint8

	// Size is the encoded size without the extended timestamp.
	Size() int

	// UsesExtendedTimestamp reports whether a 4 byte extended timestamp
	// follows the header on the wire.
	UsesExtendedTimestamp() bool

	extendedTimestamp() uint32
	write(b *Buffer)
}

// MessageHeaderType0 is the full 11 byte header with an absolute timestamp.
type MessageHeaderType0 struct {
	Timestamp       uint32
	MessageLength   uint32
	MessageTypeID   MessageType
	MessageStreamID uint32
}

// MessageHeaderType1 keeps the message stream id of the chunk stream.
type MessageHeaderType1 struct {
	TimestampDelta uint32
	MessageLength  uint32
	MessageTypeID  MessageType
}

// MessageHeaderType2 keeps length, type and stream id of the chunk stream.
type MessageHeaderType2 struct {
	TimestampDelta uint32
}

// MessageHeaderType3 has no fields of its own.
type MessageHeaderType3 struct{}

func (MessageHeaderType0) ChunkType() uint8 { return ChunkType0 }
func (MessageHeaderType1) ChunkType() uint8 { return ChunkType1 }
func (MessageHeaderType2) ChunkType() uint8 { return ChunkType2 }
func (MessageHeaderType3) ChunkType() uint8 { return ChunkType3 }

func (MessageHeaderType0) Size() int { return 11 }
func (MessageHeaderType1) Size() int { return 7 }
func (MessageHeaderType2) Size() int { return 3 }
func (MessageHeaderType3) Size() int { return 0 }

func (h MessageHeaderType0) UsesExtendedTimestamp() bool {
	return h.Timestamp >= ExtendedTimestampThreshold
}

func (h MessageHeaderType1) UsesExtendedTimestamp() bool {
	return h.TimestampDelta >= ExtendedTimestampThreshold
}

func (h MessageHeaderType2) UsesExtendedTimestamp() bool {
	return h.TimestampDelta >= ExtendedTimestampThreshold
}

func (MessageHeaderType3) UsesExtendedTimestamp() bool { return false }

func (h MessageHeaderType0) extendedTimestamp() uint32 { return h.Timestamp }
func (h MessageHeaderType1) extendedTimestamp() uint32 { return h.TimestampDelta }
func (h MessageHeaderType2) extendedTimestamp() uint32 { return h.TimestampDelta }
func (MessageHeaderType3) extendedTimestamp() uint32   { return 0 }

func saturate(ts uint32) uint32 {
	if ts >= ExtendedTimestampThreshold {
		return ExtendedTimestampThreshold
	}
	return ts
}

func (h MessageHeaderType0) write(b *Buffer) {
	b.WriteU24BE(saturate(h.Timestamp))
	b.WriteU24BE(h.MessageLength)
	b.WriteByte(byte(h.MessageTypeID))
	b.WriteU32LE(h.MessageStreamID)
	if h.UsesExtendedTimestamp() {
		b.WriteU32BE(h.Timestamp)
	}
}

func (h MessageHeaderType1) write(b *Buffer) {
	b.WriteU24BE(saturate(h.TimestampDelta))
	b.WriteU24BE(h.MessageLength)
	b.WriteByte(byte(h.MessageTypeID))
	if h.UsesExtendedTimestamp() {
		b.WriteU32BE(h.TimestampDelta)
	}
}

func (h MessageHeaderType2) write(b *Buffer) {
	b.WriteU24BE(saturate(h.TimestampDelta))
	if h.UsesExtendedTimestamp() {
		b.WriteU32BE(h.TimestampDelta)
	}
}

func (MessageHeaderType3) write(*Buffer) {}

// withMessageLength returns header with its length field set, for the
// variants that carry one.
func withMessageLength(header MessageHeader, length uint32) MessageHeader {
	switch h := header.(type) {
	case MessageHeaderType0:
		h.MessageLength = length
		return h
	case MessageHeaderType1:
		h.MessageLength = length
		return h
	}
	return header
}

// rawMessageHeader is a decoded header before extended timestamp resolution.
type rawMessageHeader struct {
	timestamp       uint32 // absolute for type 0, delta for 1 and 2
	messageLength   uint32
	messageTypeID   MessageType
	messageStreamID uint32
	extended        bool
}

func readRawMessageHeader(r io.Reader, chunkType uint8, scratch []byte) (rawMessageHeader, error) {
	var raw rawMessageHeader
	size := 0
	switch chunkType {
	case ChunkType0:
		size = 11
	case ChunkType1:
		size = 7
	case ChunkType2:
		size = 3
	case ChunkType3:
		return raw, nil
	default:
		return raw, errors.Wrapf(ErrProtocol, "unknown chunk type %d", chunkType)
	}
	p := scratch[:size]
	if _, err := io.ReadFull(r, p); err != nil {
		return raw, err
	}
	raw.timestamp = pio.U24BE(p[0:3])
	if chunkType <= ChunkType1 {
		raw.messageLength = pio.U24BE(p[3:6])
		raw.messageTypeID = MessageType(p[6])
	}
	if chunkType == ChunkType0 {
		raw.messageStreamID = pio.U32LE(p[7:11])
	}
	if raw.timestamp == ExtendedTimestampThreshold {
		raw.extended = true
		if _, err := io.ReadFull(r, scratch[:4]); err != nil {
			return raw, err
		}
		raw.timestamp = pio.U32BE(scratch[:4])
	}
	return raw, nil
}

// ReadMessageHeader decodes a message header of the given chunk type,
// resolving the extended timestamp when the 24 bit field is saturated.
// Type 3 headers read nothing: their extended timestamp depends on chunk
// stream state and is handled by the Demuxer.
func ReadMessageHeader(r io.Reader, chunkType uint8) (MessageHeader, error) {
	var scratch [11]byte
	raw, err := readRawMessageHeader(r, chunkType, scratch[:])
	if err != nil {
		return nil, err
	}
	switch chunkType {
	case ChunkType0:
		return MessageHeaderType0{
			Timestamp:       raw.timestamp,
			MessageLength:   raw.messageLength,
			MessageTypeID:   raw.messageTypeID,
			MessageStreamID: raw.messageStreamID,
		}, nil
	case ChunkType1:
		return MessageHeaderType1{
			TimestampDelta: raw.timestamp,
			MessageLength:  raw.messageLength,
			MessageTypeID:  raw.messageTypeID,
		}, nil
	case ChunkType2:
		return MessageHeaderType2{TimestampDelta: raw.timestamp}, nil
	}
	return MessageHeaderType3{}, nil
}
