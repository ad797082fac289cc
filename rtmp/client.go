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
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gwuhaolin/livego/protocol/amf"
	"github.com/kris-nova/logger"
	"github.com/pkg/errors"
)

const (
	cmdConnect      = "connect"
	cmdCreateStream = "createStream"
	cmdPublish      = "publish"
	cmdPlay         = "play"
	cmdDeleteStream = "deleteStream"

	publishLive = "live"

	// clientStreamChunkStreamID carries the stream level commands of a client.
	clientStreamChunkStreamID uint32 = 8

	clientMessageBacklog = 256
	clientStatusBacklog  = 16
)

// Client is an RTMP client that publishes or plays one stream.
//
//   client, _ := rtmp.Dial(ctx, "rtmp://localhost:1935/live/key")
//   client.Connect(ctx)
//   client.CreateStream(ctx)
//   client.Publish(ctx, "")
type Client struct {
	addr    *URLAddr
	netConn net.Conn
	rw      *ReadWriter
	sender  *Sender
	session *ClientSession
	demuxer *Demuxer

	transactions *transactionTable
	statuses     chan amf.Object
	messages     chan *Message

	streamID uint32

	closeOnce sync.Once
	done      chan struct{}
	readErr   error
}

// Dial connects to the server named by rawURL and runs the handshake.
func Dial(ctx context.Context, rawURL string) (*Client, error) {
	addr, err := NewURLAddr(rawURL)
	if err != nil {
		return nil, err
	}
	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, DefaultProtocol, addr.Host())
	if err != nil {
		return nil, errors.Wrapf(err, "rtmp: dial %s", addr.SafeURL())
	}
	return NewClient(ctx, netConn, addr)
}

// NewClient runs the handshake over an established connection.
func NewClient(ctx context.Context, netConn net.Conn, addr *URLAddr) (*Client, error) {
	rw := NewReadWriter(netConn, DefaultConnBufferSizeBytes)
	if deadline, ok := ctx.Deadline(); ok {
		netConn.SetDeadline(deadline)
	}
	if err := ClientHandshake(rw); err != nil {
		netConn.Close()
		return nil, err
	}
	netConn.SetDeadline(time.Time{})

	sender := NewSender(netConn)
	c := &Client{
		addr:         addr,
		netConn:      netConn,
		rw:           rw,
		sender:       sender,
		session:      NewClientSession(context.Background(), sender, nil),
		demuxer:      NewDemuxer(),
		transactions: newTransactionTable(),
		statuses:     make(chan amf.Object, clientStatusBacklog),
		messages:     make(chan *Message, clientMessageBacklog),
		done:         make(chan struct{}),
	}
	c.session.state = HandshakeDone
	sender.Start(c.session.Context())
	go c.readLoop()
	logger.Debug(rtmpClientMessage(fmt.Sprintf("connected to %s", addr.SafeURL()), conn))
	return c, nil
}

func (c *Client) URLAddr() *URLAddr {
	return c.addr
}

func (c *Client) Session() *ClientSession {
	return c.session
}

func (c *Client) StreamID() uint32 {
	return c.streamID
}

// Done is closed when the read loop has stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err is why the read loop stopped. Only valid after Done is closed.
func (c *Client) Err() error {
	return c.readErr
}

func (c *Client) control() controlTarget {
	return controlTarget{
		session: c.session,
		demuxer: c.demuxer,
		log:     rtmpClientMessage,
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.transactions.Close()
	defer close(c.messages)

	var err error
	for {
		var msg *Message
		msg, err = c.demuxer.ReadMessage(c.rw)
		if err != nil {
			break
		}
		if seq, ok := c.session.acknowledge(c.rw.BytesRead()); ok {
			c.session.SendAcknowledgement(seq)
		}
		handled, cerr := c.control().onControl(msg)
		if cerr != nil {
			err = cerr
			break
		}
		if handled {
			continue
		}
		switch msg.TypeID {
		case CommandAMF0MessageID, CommandAMF3MessageID:
			c.onCommand(msg)
		case AudioMessageID, VideoMessageID, DataAMF0MessageID:
			select {
			case c.messages <- msg:
			case <-c.session.Context().Done():
				err = c.session.Context().Err()
			}
		}
		if err != nil {
			break
		}
	}
	if c.session.Context().Err() != nil {
		err = nil
	}
	c.readErr = err
}

func (c *Client) onCommand(msg *Message) {
	cmd, err := decodeCommand(msg)
	if err != nil {
		logger.Warning(rtmpClientMessage(err.Error(), warn))
		return
	}
	switch cmd.Name {
	case CommandResult, CommandError:
		values := []interface{}{cmd.Object}
		values = append(values, cmd.Args...)
		if !c.transactions.Resolve(uint32(cmd.TransactionID), TransactionResult{Name: cmd.Name, Values: values}) {
			logger.Debug(rtmpClientMessage(fmt.Sprintf("reply to unknown transaction %v", cmd.TransactionID), warn))
		}
	case CommandOnStatus:
		info, _ := cmd.arg(0).(amf.Object)
		select {
		case c.statuses <- info:
		default:
			logger.Debug(rtmpClientMessage("status backlog full", drop))
		}
	default:
		logger.Debug(rtmpClientMessage(fmt.Sprintf("ignoring command %s", cmd.Name), drop))
	}
}

// call sends a command and waits for its _result or _error.
func (c *Client) call(ctx context.Context, streamID uint32, name string, values ...interface{}) (TransactionResult, error) {
	id, ch := c.transactions.Register()
	args := append([]interface{}{name, float64(id)}, values...)
	if err := c.session.SendCommand(CommandChunkStreamID, streamID, args...); err != nil {
		c.transactions.Cancel(id)
		return TransactionResult{}, err
	}
	result, err := c.transactions.Wait(ctx, id, ch)
	if err != nil {
		return result, errors.Wrapf(err, "rtmp: %s", name)
	}
	if result.Failed() {
		_, code, description := statusOf(result.Values[len(result.Values)-1])
		return result, errors.Wrapf(ErrCommandFailed, "%s: %s %s", name, code, description)
	}
	return result, nil
}

// Connect sends connect for the app of the client URL.
func (c *Client) Connect(ctx context.Context) error {
	object := amf.Object{
		"app":      c.addr.App(),
		"type":     "nonprivate",
		"flashVer": "FMS.3.1",
		"tcUrl":    c.addr.TCURL(),
	}
	if _, err := c.call(ctx, 0, cmdConnect, object); err != nil {
		return err
	}
	logger.Debug(rtmpClientMessage("connected "+c.addr.SafeURL(), ack))
	return nil
}

// CreateStream asks the server for a message stream id.
func (c *Client) CreateStream(ctx context.Context) (uint32, error) {
	result, err := c.call(ctx, 0, cmdCreateStream, nil)
	if err != nil {
		return 0, err
	}
	id, ok := result.Values[len(result.Values)-1].(float64)
	if !ok {
		return 0, errors.Wrap(ErrProtocol, "createStream: no stream id")
	}
	c.streamID = uint32(id)
	return c.streamID, nil
}

// waitStatus waits for an onStatus with one of the codes, or any error level status.
func (c *Client) waitStatus(ctx context.Context, codes ...string) error {
	for {
		select {
		case info := <-c.statuses:
			level, code, description := statusOf(info)
			if level == StatusLevelError {
				return errors.Wrapf(ErrCommandFailed, "%s %s", code, description)
			}
			for _, want := range codes {
				if code == want {
					return nil
				}
			}
		case <-c.done:
			return ErrSenderClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) streamName(name string) string {
	if name == "" {
		return c.addr.Key()
	}
	return name
}

// Publish starts publishing name, or the key of the client URL when name is empty.
func (c *Client) Publish(ctx context.Context, name string) error {
	if c.streamID == 0 {
		return ErrStreamNotCreated
	}
	err := c.session.SendCommand(clientStreamChunkStreamID, c.streamID, cmdPublish, float64(0), nil, c.streamName(name), publishLive)
	if err != nil {
		return err
	}
	return c.waitStatus(ctx, PublishStart)
}

// Play starts playing name, or the key of the client URL when name is empty.
func (c *Client) Play(ctx context.Context, name string) error {
	if c.streamID == 0 {
		return ErrStreamNotCreated
	}
	err := c.session.SendCommand(clientStreamChunkStreamID, c.streamID, cmdPlay, float64(0), nil, c.streamName(name))
	if err != nil {
		return err
	}
	return c.waitStatus(ctx, PlayStart)
}

// SetChunkSize raises the chunk size used for everything the client sends.
func (c *Client) SetChunkSize(size uint32) error {
	return c.session.SendSetChunkSize(size)
}

// WriteMedia sends one audio or video tag body on the client's stream.
func (c *Client) WriteMedia(mediaType MediaType, timestamp uint32, payload []byte) error {
	basic, header := mediaHeaders(mediaType, timestamp, c.streamID)
	return c.session.Send(basic, header, func(b *Buffer) { b.Write(payload) })
}

// WriteMetadata sends onMetaData prefixed with @setDataFrame.
func (c *Client) WriteMetadata(metadata amf.Object) error {
	body := c.session.pool.Obtain()
	defer c.session.pool.Recycle(body)
	if err := encodeAMF0(body, OnMetaData, metadata); err != nil {
		return err
	}
	data, err := amf.MetaDataReform(body.Bytes(), amf.ADD)
	if err != nil {
		return errors.Wrap(err, "rtmp: metadata")
	}
	return c.WriteMedia(MediaTypeData, 0, data)
}

// ReadMessage returns the next audio, video or data message from the server.
func (c *Client) ReadMessage(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-c.messages:
		if !ok {
			if c.readErr != nil {
				return nil, c.readErr
			}
			return nil, ErrSenderClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DeleteStream releases the client's stream on the server.
func (c *Client) DeleteStream() error {
	if c.streamID == 0 {
		return ErrStreamNotCreated
	}
	err := c.session.SendCommand(CommandChunkStreamID, 0, cmdDeleteStream, float64(0), nil, float64(c.streamID))
	c.streamID = 0
	return err
}

// Close stops the client and closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.session.Close()
		err = c.netConn.Close()
		c.sender.Wait()
		<-c.done
	})
	return err
}
