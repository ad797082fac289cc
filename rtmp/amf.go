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
	"io"

	"github.com/gwuhaolin/livego/protocol/amf"
	"github.com/pkg/errors"
)

// command is a decoded AMF0 command message.
type command struct {
	Name          string
	TransactionID float64
	Object        amf.Object
	Args          []interface{}
}

func (c *command) arg(i int) interface{} {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return nil
}

func (c *command) stringArg(i int) string {
	s, _ := c.arg(i).(string)
	return s
}

func (c *command) boolArg(i int) bool {
	b, _ := c.arg(i).(bool)
	return b
}

func decodeAMF0(payload []byte) ([]interface{}, error) {
	decoder := &amf.Decoder{}
	vs, err := decoder.DecodeBatch(bytes.NewReader(payload), amf.AMF0)
	if err != nil && err != io.EOF && len(vs) == 0 {
		return nil, errors.Wrap(err, "rtmp: amf decode")
	}
	return vs, nil
}

func encodeAMF0(w io.Writer, values ...interface{}) error {
	encoder := &amf.Encoder{}
	for _, v := range values {
		if _, err := encoder.Encode(w, v, amf.AMF0); err != nil {
			return errors.Wrap(err, "rtmp: amf encode")
		}
	}
	return nil
}

// commandPayload strips the format byte AMF3 command messages lead with.
// The body that follows is AMF0.
func commandPayload(msg *Message) []byte {
	if msg.TypeID == CommandAMF3MessageID && len(msg.Payload) > 0 && msg.Payload[0] == 0 {
		return msg.Payload[1:]
	}
	return msg.Payload
}

func decodeCommand(msg *Message) (*command, error) {
	vs, err := decodeAMF0(commandPayload(msg))
	if err != nil {
		return nil, err
	}
	if len(vs) < 2 {
		return nil, errors.Wrapf(ErrProtocol, "command with %d values", len(vs))
	}
	name, ok := vs[0].(string)
	if !ok {
		return nil, errors.Wrap(ErrProtocol, "command name is not a string")
	}
	txid, _ := vs[1].(float64)
	cmd := &command{Name: name, TransactionID: txid}
	if len(vs) > 2 {
		cmd.Object, _ = vs[2].(amf.Object)
		cmd.Args = vs[3:]
	}
	return cmd, nil
}

// SendCommand encodes values as an AMF0 command message and queues it.
func (s *ClientSession) SendCommand(csid, streamID uint32, values ...interface{}) error {
	body := s.pool.Obtain()
	defer s.pool.Recycle(body)
	if err := encodeAMF0(body, values...); err != nil {
		return err
	}
	return s.Send(
		BasicHeader{ChunkStreamID: csid},
		MessageHeaderType0{MessageTypeID: CommandAMF0MessageID, MessageStreamID: streamID},
		func(b *Buffer) { b.Write(body.Bytes()) },
	)
}

// SendData encodes values as an AMF0 data message and queues it.
func (s *ClientSession) SendData(csid, streamID, timestamp uint32, values ...interface{}) error {
	body := s.pool.Obtain()
	defer s.pool.Recycle(body)
	if err := encodeAMF0(body, values...); err != nil {
		return err
	}
	return s.Send(
		BasicHeader{ChunkStreamID: csid},
		MessageHeaderType0{Timestamp: timestamp, MessageTypeID: DataAMF0MessageID, MessageStreamID: streamID},
		func(b *Buffer) { b.Write(body.Bytes()) },
	)
}
