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
	"context"
	"net"
	"time"

	"github.com/kris-nova/logger"
	"github.com/pkg/errors"
)

// serverConn is one accepted connection. Its read loop is the only
// goroutine that touches the demuxer and the session's handshake and
// acknowledgement state.
type serverConn struct {
	server     *Server
	netConn    net.Conn
	rw         *ReadWriter
	sender     *Sender
	session    *ClientSession
	demuxer    *Demuxer
	handshaker *Handshaker
}

func (s *Server) newServerConn(netConn net.Conn) *serverConn {
	return &serverConn{
		server:  s,
		netConn: netConn,
		rw:      NewReadWriter(netConn, DefaultConnBufferSizeBytes),
		sender:  NewSender(netConn).WithMetrics(s.metrics),
		demuxer: NewDemuxer(),
	}
}

func (c *serverConn) control() controlTarget {
	return controlTarget{
		session: c.session,
		demuxer: c.demuxer,
		log: func(msg string, op messageOperator) string {
			return sessionMessage(c.session, msg, op)
		},
	}
}

// serve runs the handshake and then the read loop until the peer goes away,
// a handler asks to close or ctx is done.
func (c *serverConn) serve(ctx context.Context) error {
	c.session = NewClientSession(ctx, c.sender, c.server.pool)
	defer c.close()

	// Closing the socket is what unblocks a pending read.
	go func() {
		<-c.session.Context().Done()
		c.netConn.Close()
	}()

	c.handshaker = NewHandshaker(func() {
		c.server.metrics.handshakeCompleted()
		if c.server.onHandshakeComplete != nil {
			c.server.onHandshakeComplete(c.session)
		}
	})
	c.netConn.SetDeadline(time.Now().Add(handshakeTimeout))
	if err := c.handshaker.Run(c.rw); err != nil {
		return errors.Wrap(ErrProtocol, err.Error())
	}
	c.netConn.SetDeadline(time.Time{})
	c.session.state = HandshakeDone

	c.sender.Start(c.session.Context())
	var counted uint64
	for {
		msg, err := c.demuxer.ReadChunk(c.rw)
		read := c.rw.BytesRead()
		c.server.metrics.bytesReceived(int(read - counted))
		counted = read
		if err != nil {
			if c.session.Context().Err() != nil {
				return nil
			}
			return err
		}
		if seq, ok := c.session.acknowledge(read); ok {
			if err := c.session.SendAcknowledgement(seq); err != nil {
				return err
			}
		}
		if msg == nil {
			continue
		}
		c.server.metrics.messageReceived()
		if !c.dispatch(msg) {
			return nil
		}
	}
}

// close tears the session down: stream registrations first so other
// sessions stop sending to us, then the socket and the sender.
func (c *serverConn) close() {
	c.server.deleteStream(c.session, false)
	c.session.Close()
	c.netConn.Close()
	c.sender.Wait()
	logger.Debug(sessionMessage(c.session, "session closed", stop))
}
