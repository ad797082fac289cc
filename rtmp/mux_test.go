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
	"bufio"
	"bytes"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
)

func testPayload(n int) []byte {
	p := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(p)
	return p
}

func TestChunkingRoundTrip(t *testing.T) {
	chunkSizes := []uint32{128, 4096, 65536}
	timestamps := []uint32{0, 1000, ExtendedTimestampThreshold, 0x7FFFFFFF}

	for _, chunkSize := range chunkSizes {
		cs := int(chunkSize)
		sizes := []int{0, 1, cs - 1, cs, cs + 1, 10*cs + 7}
		for _, size := range sizes {
			for _, ts := range timestamps {
				payload := testPayload(size)
				basic := BasicHeader{ChunkStreamID: VideoChunkStreamID}
				header := MessageHeaderType0{Timestamp: ts, MessageTypeID: VideoMessageID, MessageStreamID: 1}

				out := &Buffer{}
				Multiplex(out, basic, header, payload, chunkSize)
				if expected := MultiplexedSize(basic, header, size, chunkSize); out.Len() != expected {
					t.Errorf("size %d chunk %d: multiplexed %d bytes, MultiplexedSize says %d", size, chunkSize, out.Len(), expected)
				}

				d := NewDemuxer()
				if err := d.SetChunkSize(chunkSize); err != nil {
					t.Errorf("set chunk size: %v", err)
					t.FailNow()
				}
				msg, err := d.ReadMessage(bufio.NewReader(bytes.NewReader(out.Bytes())))
				if err != nil {
					t.Errorf("size %d chunk %d ts %d: %v", size, chunkSize, ts, err)
					continue
				}
				if !bytes.Equal(msg.Payload, payload) {
					t.Errorf("size %d chunk %d: payload mismatch", size, chunkSize)
				}
				if msg.Timestamp != ts {
					t.Errorf("expected timestamp %d, got %d", ts, msg.Timestamp)
				}
				if msg.TypeID != VideoMessageID || msg.StreamID != 1 || msg.ChunkStreamID != VideoChunkStreamID {
					t.Errorf("header mismatch: %+v", msg)
				}
			}
		}
	}
}

func TestMultiplexContinuationChunks(t *testing.T) {
	payload := testPayload(300)
	out := &Buffer{}
	basic := BasicHeader{ChunkStreamID: AudioChunkStreamID}
	Multiplex(out, basic, MessageHeaderType0{MessageTypeID: AudioMessageID}, payload, 128)

	raw := out.Bytes()
	// 1 + 11 + 128, then 1 + 128, then 1 + 44
	if len(raw) != 1+11+128+1+128+1+44 {
		t.Errorf("unexpected multiplexed length %d", len(raw))
		t.FailNow()
	}
	second := raw[1+11+128]
	third := raw[1+11+128+1+128]
	expected := byte(ChunkType3<<6) | byte(AudioChunkStreamID)
	if second != expected || third != expected {
		t.Errorf("expected type 3 continuation headers %x, got %x and %x", expected, second, third)
	}
}

func TestMultiplexRepeatsExtendedTimestamp(t *testing.T) {
	payload := testPayload(200)
	out := &Buffer{}
	header := MessageHeaderType0{Timestamp: 0x01000000, MessageTypeID: VideoMessageID}
	Multiplex(out, BasicHeader{ChunkStreamID: VideoChunkStreamID}, header, payload, 128)

	raw := out.Bytes()
	continuation := 1 + 11 + 4 + 128
	if !bytes.Equal(raw[continuation+1:continuation+5], []byte{0x01, 0x00, 0x00, 0x00}) {
		t.Errorf("expected the extended timestamp after the continuation header, got % x", raw[continuation+1:continuation+5])
	}
}

func TestDemuxCompressedHeaders(t *testing.T) {
	out := &Buffer{}
	basic := BasicHeader{ChunkStreamID: AudioChunkStreamID}
	Multiplex(out, basic, MessageHeaderType0{Timestamp: 100, MessageTypeID: AudioMessageID, MessageStreamID: 1}, testPayload(10), 128)
	Multiplex(out, basic, MessageHeaderType1{TimestampDelta: 20, MessageTypeID: AudioMessageID}, testPayload(12), 128)
	Multiplex(out, basic, MessageHeaderType2{TimestampDelta: 20}, testPayload(12), 128)
	Multiplex(out, basic, MessageHeaderType3{}, testPayload(12), 128)
	// Three chunks each. Continuation chunks must not add the delta again.
	Multiplex(out, basic, MessageHeaderType1{TimestampDelta: 20, MessageTypeID: AudioMessageID}, testPayload(300), 128)
	Multiplex(out, basic, MessageHeaderType3{}, testPayload(300), 128)

	d := NewDemuxer()
	r := bufio.NewReader(bytes.NewReader(out.Bytes()))
	expected := []struct {
		ts     uint32
		length int
	}{{100, 10}, {120, 12}, {140, 12}, {160, 12}, {180, 300}, {200, 300}}
	for i, e := range expected {
		msg, err := d.ReadMessage(r)
		if err != nil {
			t.Errorf("message %d: %v", i, err)
			t.FailNow()
		}
		if msg.Timestamp != e.ts {
			t.Errorf("message %d: expected timestamp %d, got %d", i, e.ts, msg.Timestamp)
		}
		if len(msg.Payload) != e.length {
			t.Errorf("message %d: expected %d bytes, got %d", i, e.length, len(msg.Payload))
		}
		if msg.StreamID != 1 {
			t.Errorf("message %d: expected stream 1, got %d", i, msg.StreamID)
		}
	}
}

func TestDemuxCompressedFirstChunk(t *testing.T) {
	out := &Buffer{}
	Multiplex(out, BasicHeader{ChunkStreamID: 9}, MessageHeaderType1{TimestampDelta: 30, MessageTypeID: AudioMessageID}, testPayload(4), 128)
	msg, err := NewDemuxer().ReadMessage(bufio.NewReader(bytes.NewReader(out.Bytes())))
	if err != nil {
		t.Errorf("expected a type 1 first chunk to be accepted, got %v", err)
		t.FailNow()
	}
	if msg.Timestamp != 30 || msg.TypeID != AudioMessageID || len(msg.Payload) != 4 || msg.StreamID != 0 {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestDemuxAbort(t *testing.T) {
	out := &Buffer{}
	basic := BasicHeader{ChunkStreamID: VideoChunkStreamID}
	Multiplex(out, basic, MessageHeaderType0{MessageTypeID: VideoMessageID}, testPayload(300), 128)

	d := NewDemuxer()
	r := bufio.NewReader(bytes.NewReader(out.Bytes()))
	msg, err := d.ReadChunk(r)
	if err != nil || msg != nil {
		t.Errorf("expected a partial message, got %v %v", msg, err)
		t.FailNow()
	}
	d.Abort(VideoChunkStreamID)
	cs := d.Context(VideoChunkStreamID)
	if cs == nil || !cs.IsFirstChunkOfMessage || cs.received != 0 {
		t.Errorf("abort must reset the chunk stream: %+v", cs)
	}
}

func TestDemuxSetChunkSizeBounds(t *testing.T) {
	d := NewDemuxer()
	if err := d.SetChunkSize(0); !errors.Is(err, ErrProtocol) {
		t.Errorf("expected a protocol error for chunk size 0, got %v", err)
	}
	if err := d.SetChunkSize(MaxRTMPChunkSizeBytes + 1); !errors.Is(err, ErrProtocol) {
		t.Errorf("expected a protocol error for an oversized chunk size, got %v", err)
	}
	if err := d.SetChunkSize(4096); err != nil || d.ChunkSize() != 4096 {
		t.Errorf("expected chunk size 4096, got %d %v", d.ChunkSize(), err)
	}
}
