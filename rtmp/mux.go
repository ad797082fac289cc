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

// Multiplex serializes one message into dst: a first chunk carrying basic
// header, message header and up to outChunkSize payload bytes, then type 3
// continuation chunks for the rest. When the header needs an extended
// timestamp every continuation chunk repeats it.
//
// The chunk type of basic is taken from header, and the message length of
// type 0 and type 1 headers is set from payload.
func Multiplex(dst *Buffer, basic BasicHeader, header MessageHeader, payload []byte, outChunkSize uint32) {
	if outChunkSize == 0 {
		outChunkSize = DefaultRTMPChunkSizeBytes
	}
	header = withMessageLength(header, uint32(len(payload)))
	useExtended := header.UsesExtendedTimestamp()
	extended := header.extendedTimestamp()

	basic.ChunkType = header.ChunkType()
	basic.Write(dst)
	header.write(dst)

	chunk := int(outChunkSize)
	n := len(payload)
	if n > chunk {
		n = chunk
	}
	dst.Write(payload[:n])

	continuation := BasicHeader{ChunkType: ChunkType3, ChunkStreamID: basic.ChunkStreamID}
	for offset := n; offset < len(payload); offset += n {
		continuation.Write(dst)
		if useExtended {
			dst.WriteU32BE(extended)
		}
		n = len(payload) - offset
		if n > chunk {
			n = chunk
		}
		dst.Write(payload[offset : offset+n])
	}
}

// MultiplexedSize is the exact number of bytes Multiplex writes.
func MultiplexedSize(basic BasicHeader, header MessageHeader, payloadLength int, outChunkSize uint32) int {
	if outChunkSize == 0 {
		outChunkSize = DefaultRTMPChunkSizeBytes
	}
	size := basic.Size() + header.Size() + payloadLength
	perChunk := basic.Size()
	if header.UsesExtendedTimestamp() {
		size += 4
		perChunk += 4
	}
	if payloadLength > int(outChunkSize) {
		continuations := (payloadLength - 1) / int(outChunkSize)
		size += continuations * perChunk
	}
	return size
}
