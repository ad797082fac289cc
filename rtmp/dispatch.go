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

	"github.com/kris-nova/logger"
)

// messageHandler handles one reassembled message. It returns false when the
// connection should be closed.
type messageHandler func(c *serverConn, msg *Message) bool

// commandHandler handles one decoded AMF command.
type commandHandler func(c *serverConn, msg *Message, cmd *command) bool

var messageHandlers = map[MessageType]messageHandler{
	SetChunkSizeMessageID:              handleControl,
	AbortMessageID:                     handleControl,
	AcknowledgementMessageID:           handleControl,
	UserControlMessageID:               handleControl,
	WindowAcknowledgementSizeMessageID: handleControl,
	SetPeerBandwidthMessageID:          handleControl,
	AudioMessageID:                     handleAudio,
	VideoMessageID:                     handleVideo,
	DataAMF0MessageID:                  handleData,
	DataAMF3MessageID:                  handleData,
	CommandAMF0MessageID:               handleCommand,
	CommandAMF3MessageID:               handleCommand,
}

var commandHandlers = map[string]commandHandler{
	"connect":         handleConnect,
	"createStream":    handleCreateStream,
	"releaseStream":   handleAccept,
	"FCPublish":       handleAccept,
	"FCUnpublish":     handleAccept,
	"getStreamLength": handleAccept,
	"publish":         handlePublish,
	"play":            handlePlay,
	"deleteStream":    handleDeleteStream,
	"closeStream":     handleDeleteStream,
	"receiveAudio":    handleReceiveAudio,
	"receiveVideo":    handleReceiveVideo,
	"pause":           handlePause,
}

func (c *serverConn) dispatch(msg *Message) bool {
	handler, ok := messageHandlers[msg.TypeID]
	if !ok {
		logger.Debug(sessionMessage(c.session, fmt.Sprintf("ignoring message type %d", msg.TypeID), drop))
		return true
	}
	return handler(c, msg)
}

func handleControl(c *serverConn, msg *Message) bool {
	if _, err := c.control().onControl(msg); err != nil {
		logger.Warning(sessionMessage(c.session, err.Error(), danger))
		return false
	}
	return true
}

func handleCommand(c *serverConn, msg *Message) bool {
	cmd, err := decodeCommand(msg)
	if err != nil {
		logger.Warning(sessionMessage(c.session, err.Error(), danger))
		return false
	}
	handler, ok := commandHandlers[cmd.Name]
	if !ok {
		logger.Debug(sessionMessage(c.session, fmt.Sprintf("ignoring command %s", cmd.Name), drop))
		return true
	}
	logger.Debug(sessionMessage(c.session, fmt.Sprintf("command %s tx %v", cmd.Name, cmd.TransactionID), rx))
	return handler(c, msg, cmd)
}
