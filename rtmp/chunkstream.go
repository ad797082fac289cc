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

// ChunkStreamContext is the header compression state of one chunk stream id
// on one connection. Only the connection's Demuxer touches it.
type ChunkStreamContext struct {
	ChunkStreamID uint32

	// ChunkType is the type of the last chunk received on this stream.
	ChunkType uint8

	Timestamp       uint32
	TimestampDelta  uint32
	MessageLength   uint32
	MessageTypeID   MessageType
	MessageStreamID uint32

	HasExtendedTimestamp  bool
	IsFirstChunkOfMessage bool

	payload  []byte
	received uint32
}

func newChunkStreamContext(csid uint32) *ChunkStreamContext {
	return &ChunkStreamContext{
		ChunkStreamID:         csid,
		IsFirstChunkOfMessage: true,
	}
}

// remaining is the number of payload bytes still missing from the current message.
func (cs *ChunkStreamContext) remaining() uint32 {
	return cs.MessageLength - cs.received
}

func (cs *ChunkStreamContext) complete() bool {
	return cs.received >= cs.MessageLength
}

// reset drops any partially assembled payload.
func (cs *ChunkStreamContext) reset() {
	cs.payload = nil
	cs.received = 0
}

// Message is one fully reassembled RTMP message.
type Message struct {
	ChunkStreamID uint32
	TypeID        MessageType
	StreamID      uint32
	Timestamp     uint32
	Payload       []byte
}
