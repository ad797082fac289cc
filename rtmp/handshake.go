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
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/gwuhaolin/livego/utils/pio"
	"github.com/kris-nova/logger"
	"github.com/pkg/errors"
)

const (
	HandshakeVersion    byte = 3
	HandshakePacketSize      = 1536

	handshakeTimeout = 5 * time.Second
)

// ServerVersion is written into bytes 4..8 of S1.
var ServerVersion = [4]byte{0x0d, 0x0e, 0x0a, 0x0d}

// HandshakeState is the position of a connection in the three way handshake.
type HandshakeState uint8

const (
	HandshakeC0 HandshakeState = iota
	HandshakeC1
	HandshakeC2
	HandshakeDone
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakeC0:
		return "HandshakeC0"
	case HandshakeC1:
		return "HandshakeC1"
	case HandshakeC2:
		return "HandshakeC2"
	default:
		return "Done"
	}
}

// HandshakeReadWriter is the byte stream a handshake runs over. Writes are
// flushed once per reply.
type HandshakeReadWriter interface {
	io.Reader
	io.Writer
	Flush() error
}

// Handshaker runs the server side of the handshake, one state per Step.
type Handshaker struct {
	state      HandshakeState
	schema     digestSchema
	onComplete func()
}

// NewHandshaker returns a handshaker in HandshakeC0. onComplete, when not
// nil, is called exactly once after C2 has been read.
func NewHandshaker(onComplete func()) *Handshaker {
	return &Handshaker{
		state:      HandshakeC0,
		onComplete: onComplete,
	}
}

func (h *Handshaker) State() HandshakeState {
	return h.state
}

func (h *Handshaker) Done() bool {
	return h.state == HandshakeDone
}

// Complex reports whether C1 carried a valid digest.
func (h *Handshaker) Complex() bool {
	return h.schema != schemaSimple
}

// Step consumes the next client packet and answers it.
//
//   C0 : read 1 byte
//   C1 : read 1536 bytes, write S0 S1 S2
//   C2 : read 1536 bytes, done
func (h *Handshaker) Step(rw HandshakeReadWriter) error {
	switch h.state {
	case HandshakeC0:
		var c0 [1]byte
		if _, err := io.ReadFull(rw, c0[:]); err != nil {
			return errors.Wrap(err, "rtmp: handshake C0")
		}
		if c0[0] != HandshakeVersion {
			logger.Warning(rtmpServerMessage(fmt.Sprintf("handshake client version %d", c0[0]), warn))
		}
		h.state = HandshakeC1
	case HandshakeC1:
		var c1 [HandshakePacketSize]byte
		if _, err := io.ReadFull(rw, c1[:]); err != nil {
			return errors.Wrap(err, "rtmp: handshake C1")
		}
		reply := make([]byte, 1+2*HandshakePacketSize)
		h.schema = writeS0S1S2(reply, c1[:])
		logger.Debug(rtmpServerMessage(fmt.Sprintf("handshake C1 %s", h.schema), hs))
		if _, err := rw.Write(reply); err != nil {
			return errors.Wrap(err, "rtmp: handshake S0S1S2")
		}
		if err := rw.Flush(); err != nil {
			return errors.Wrap(err, "rtmp: handshake S0S1S2")
		}
		h.state = HandshakeC2
	case HandshakeC2:
		var c2 [HandshakePacketSize]byte
		if _, err := io.ReadFull(rw, c2[:]); err != nil {
			return errors.Wrap(err, "rtmp: handshake C2")
		}
		h.state = HandshakeDone
		logger.Debug(rtmpServerMessage("handshake complete", hs))
		if h.onComplete != nil {
			h.onComplete()
		}
	default:
		return errors.New("rtmp: handshake already complete")
	}
	return nil
}

// Run steps until the handshake is done.
func (h *Handshaker) Run(rw HandshakeReadWriter) error {
	for !h.Done() {
		if err := h.Step(rw); err != nil {
			return err
		}
	}
	return nil
}

func handshakeTime() uint32 {
	return uint32(time.Now().UnixNano() / int64(time.Millisecond))
}

// writeS0S1S2 fills reply (1 + 2*1536 bytes) for the given C1 and returns
// the schema that was used.
func writeS0S1S2(reply []byte, c1 []byte) digestSchema {
	s0 := reply[:1]
	s1 := reply[1 : 1+HandshakePacketSize]
	s2 := reply[1+HandshakePacketSize:]

	s0[0] = HandshakeVersion
	schema, c1Digest := hsDetectSchema(c1)

	pio.PutU32BE(s1[0:4], handshakeTime())
	copy(s1[4:8], ServerVersion[:])
	rand.Read(s1[8:])

	if schema == schemaSimple {
		copy(s2, c1)
		return schema
	}

	// S1 reuses the C1 layout so the client can find key and digest again.
	digestField := hsDigestOffsetField(schema)
	keyField := hsKeyOffsetField(schema)
	copy(s1[digestField:digestField+4], c1[digestField:digestField+4])
	copy(s1[keyField:keyField+4], c1[keyField:keyField+4])

	keyAt := hsKeyIndex(c1, schema)
	copy(s1[keyAt:keyAt+hsKeySize], c1[keyAt:keyAt+hsKeySize])

	digestAt := hsDigestIndex(s1, schema)
	copy(s1[digestAt:], hsMakeDigest(hsServerFullKey, s1, digestAt))

	writeComplexS2(s2, c1Digest)
	return schema
}

// writeComplexS2 is 1504 random bytes followed by HMAC(random32, HMAC(c1Digest, FMS key)).
func writeComplexS2(s2 []byte, c1Digest []byte) {
	gap := HandshakePacketSize - hsDigestSize
	rand.Read(s2[:gap])
	var random32 [hsDigestSize]byte
	rand.Read(random32[:])
	tempKey := hsMakeDigest(hsServerFullKey, c1Digest, -1)
	copy(s2[gap:], hsMakeDigest(tempKey, random32[:], -1))
}

// ClientHandshake runs the client side of a simple handshake: C0 C1 out,
// S0 S1 S2 in, S1 echoed back as C2.
func ClientHandshake(rw HandshakeReadWriter) error {
	c0c1 := make([]byte, 1+HandshakePacketSize)
	c0c1[0] = HandshakeVersion
	pio.PutU32BE(c0c1[1:5], handshakeTime())
	rand.Read(c0c1[9:])
	if _, err := rw.Write(c0c1); err != nil {
		return errors.Wrap(err, "rtmp: handshake C0C1")
	}
	if err := rw.Flush(); err != nil {
		return errors.Wrap(err, "rtmp: handshake C0C1")
	}

	s0s1s2 := make([]byte, 1+2*HandshakePacketSize)
	if _, err := io.ReadFull(rw, s0s1s2); err != nil {
		return errors.Wrap(err, "rtmp: handshake S0S1S2")
	}
	if s0s1s2[0] != HandshakeVersion {
		logger.Warning(rtmpClientMessage(fmt.Sprintf("handshake server version %d", s0s1s2[0]), warn))
	}

	s1 := s0s1s2[1 : 1+HandshakePacketSize]
	if _, err := rw.Write(s1); err != nil {
		return errors.Wrap(err, "rtmp: handshake C2")
	}
	if err := rw.Flush(); err != nil {
		return errors.Wrap(err, "rtmp: handshake C2")
	}
	logger.Debug(rtmpClientMessage("handshake complete", hs))
	return nil
}
