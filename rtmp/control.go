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

	"github.com/gwuhaolin/livego/utils/pio"
	"github.com/kris-nova/logger"
	"github.com/pkg/errors"
)

// Protocol control and user control messages travel on chunk stream 2 with
// message stream id 0.
func (s *ClientSession) sendControl(typeID MessageType, writePayload func(*Buffer)) error {
	return s.Send(
		BasicHeader{ChunkStreamID: ProtocolControlChunkStreamID},
		MessageHeaderType0{MessageTypeID: typeID, MessageStreamID: ProtocolControlMessageStreamID},
		writePayload,
	)
}

func (s *ClientSession) sendControlU32(typeID MessageType, value uint32) error {
	return s.sendControl(typeID, func(b *Buffer) { b.WriteU32BE(value) })
}

// SendSetChunkSize announces size to the peer and uses it for every message
// multiplexed afterwards.
func (s *ClientSession) SendSetChunkSize(size uint32) error {
	if err := s.sendControlU32(SetChunkSizeMessageID, size); err != nil {
		return err
	}
	s.SetOutChunkSize(size)
	return nil
}

func (s *ClientSession) SendAbortMessage(csid uint32) error {
	return s.sendControlU32(AbortMessageID, csid)
}

func (s *ClientSession) SendAcknowledgement(sequenceNumber uint32) error {
	return s.sendControlU32(AcknowledgementMessageID, sequenceNumber)
}

func (s *ClientSession) SendWindowAcknowledgementSize(size uint32) error {
	s.OutWindowAcknowledgementSize = size
	return s.sendControlU32(WindowAcknowledgementSizeMessageID, size)
}

func (s *ClientSession) SendSetPeerBandwidth(size uint32, limit PeerBandwidthLimitType) error {
	return s.sendControl(SetPeerBandwidthMessageID, func(b *Buffer) {
		b.WriteU32BE(size)
		b.WriteByte(byte(limit))
	})
}

/*
   +------------------------------+-------------------------
   |     Event Type ( 2- bytes )  | Event Data
   +------------------------------+-------------------------
   Pay load for the ‘User Control Message’.
*/
func (s *ClientSession) sendUserControl(event UserControlEvent, value uint32) error {
	return s.sendControl(UserControlMessageID, func(b *Buffer) {
		b.WriteU16BE(uint16(event))
		b.WriteU32BE(value)
	})
}

func (s *ClientSession) SendStreamBegin(streamID uint32) error {
	return s.sendUserControl(StreamBeginEvent, streamID)
}

func (s *ClientSession) SendStreamEOF(streamID uint32) error {
	return s.sendUserControl(StreamEOFEvent, streamID)
}

func (s *ClientSession) SendStreamIsRecorded(streamID uint32) error {
	return s.sendUserControl(StreamIsRecordedEvent, streamID)
}

func (s *ClientSession) SendPingResponse(timestamp uint32) error {
	return s.sendUserControl(PingResponseEvent, timestamp)
}

// acknowledge records the total number of bytes read from the peer and
// returns the sequence number to acknowledge once a full window has arrived
// since the last acknowledgement.
func (s *ClientSession) acknowledge(totalBytesRead uint64) (uint32, bool) {
	s.SequenceNumber = uint32(totalBytesRead)
	window := s.InWindowAcknowledgementSize
	if window == 0 {
		return 0, false
	}
	if s.SequenceNumber-s.LastAcknowledged < window {
		return 0, false
	}
	s.LastAcknowledged = s.SequenceNumber
	return s.SequenceNumber, true
}

func readU32(payload []byte, what string) (uint32, error) {
	if len(payload) < 4 {
		return 0, errors.Wrapf(ErrProtocol, "%s: %d byte payload", what, len(payload))
	}
	return pio.U32BE(payload[:4]), nil
}

// controlTarget is the connection state the protocol control receivers act on.
type controlTarget struct {
	session *ClientSession
	demuxer *Demuxer
	log     func(string, messageOperator) string
}

func (t controlTarget) onSetChunkSize(msg *Message) error {
	size, err := readU32(msg.Payload, "set chunk size")
	if err != nil {
		return err
	}
	// The top bit is reserved and must be zero.
	size &= 0x7FFFFFFF
	if err := t.demuxer.SetChunkSize(size); err != nil {
		return err
	}
	t.session.SetInChunkSize(size)
	logger.Debug(t.log(fmt.Sprintf("in chunk size %d", size), ack))
	return nil
}

func (t controlTarget) onAbort(msg *Message) error {
	csid, err := readU32(msg.Payload, "abort")
	if err != nil {
		return err
	}
	t.demuxer.Abort(csid)
	logger.Debug(t.log(fmt.Sprintf("abort chunk stream %d", csid), ack))
	return nil
}

func (t controlTarget) onAcknowledgement(msg *Message) error {
	seq, err := readU32(msg.Payload, "acknowledgement")
	if err != nil {
		return err
	}
	logger.Debug(t.log(fmt.Sprintf("peer acknowledged %d bytes", seq), ack))
	return nil
}

func (t controlTarget) onWindowAcknowledgementSize(msg *Message) error {
	size, err := readU32(msg.Payload, "window acknowledgement size")
	if err != nil {
		return err
	}
	t.session.InWindowAcknowledgementSize = size
	logger.Debug(t.log(fmt.Sprintf("in window acknowledgement size %d", size), ack))
	return nil
}

func (t controlTarget) onSetPeerBandwidth(msg *Message) error {
	size, err := readU32(msg.Payload, "set peer bandwidth")
	if err != nil {
		return err
	}
	if len(msg.Payload) < 5 {
		return errors.Wrap(ErrProtocol, "set peer bandwidth: missing limit type")
	}
	limit := PeerBandwidthLimitType(msg.Payload[4])
	if limit == PeerBandwidthLimitDynamic && t.session.PeerBandwidth != 0 {
		limit = PeerBandwidthLimitHard
	}
	if limit == PeerBandwidthLimitSoft && t.session.PeerBandwidth != 0 && size > t.session.PeerBandwidth {
		return nil
	}
	t.session.PeerBandwidth = size
	if size != t.session.OutWindowAcknowledgementSize {
		return t.session.SendWindowAcknowledgementSize(size)
	}
	return nil
}

func (t controlTarget) onUserControl(msg *Message) error {
	if len(msg.Payload) < 2 {
		return errors.Wrap(ErrProtocol, "user control: short payload")
	}
	event := UserControlEvent(pio.U16BE(msg.Payload[:2]))
	switch event {
	case PingRequestEvent:
		ts, err := readU32(msg.Payload[2:], "ping request")
		if err != nil {
			return err
		}
		return t.session.SendPingResponse(ts)
	case SetBufferLengthEvent:
		if len(msg.Payload) >= 10 {
			logger.Debug(t.log(fmt.Sprintf("set buffer length stream %d %dms", pio.U32BE(msg.Payload[2:6]), pio.U32BE(msg.Payload[6:10])), ack))
		}
	default:
		logger.Debug(t.log(fmt.Sprintf("user control event %d", event), ack))
	}
	return nil
}

// onControl handles the protocol control and user control message types.
// It reports false for any other type.
func (t controlTarget) onControl(msg *Message) (bool, error) {
	switch msg.TypeID {
	case SetChunkSizeMessageID:
		return true, t.onSetChunkSize(msg)
	case AbortMessageID:
		return true, t.onAbort(msg)
	case AcknowledgementMessageID:
		return true, t.onAcknowledgement(msg)
	case WindowAcknowledgementSizeMessageID:
		return true, t.onWindowAcknowledgementSize(msg)
	case SetPeerBandwidthMessageID:
		return true, t.onSetPeerBandwidth(msg)
	case UserControlMessageID:
		return true, t.onUserControl(msg)
	}
	return false, nil
}
