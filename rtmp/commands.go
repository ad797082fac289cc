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
	"strings"

	"github.com/gwuhaolin/livego/protocol/amf"
	"github.com/kris-nova/logger"
)

const (
	fmsVersion      = "FMS/3,0,1,123"
	fmsCapabilities = 31
)

// sent logs a failed send and reports whether the connection should stay open.
func sent(s *ClientSession, err error) bool {
	if err != nil {
		logger.Debug(sessionMessage(s, err.Error(), warn))
		return false
	}
	return true
}

func handleAccept(c *serverConn, msg *Message, cmd *command) bool {
	logger.Debug(sessionMessage(c.session, fmt.Sprintf("%s %s", cmd.Name, cmd.stringArg(0)), ack))
	return true
}

func handleConnect(c *serverConn, msg *Message, cmd *command) bool {
	s := c.session
	app, _ := cmd.Object["app"].(string)
	if i := strings.Index(app, "?"); i >= 0 {
		app = app[:i]
	}
	app = strings.Trim(app, "/")
	if app == "" {
		s.SendCommand(msg.ChunkStreamID, 0, CommandError, cmd.TransactionID, nil,
			statusObject(StatusLevelError, ConnectRejected, "Missing app name."))
		return false
	}
	s.SetAppName(app)
	encoding, _ := cmd.Object["objectEncoding"].(float64)

	cfg := c.server.config
	if err := s.SendWindowAcknowledgementSize(cfg.WindowAcknowledgementSize); err != nil {
		return sent(s, err)
	}
	if err := s.SendSetPeerBandwidth(cfg.PeerBandwidth, PeerBandwidthLimitDynamic); err != nil {
		return sent(s, err)
	}
	if err := s.SendSetChunkSize(cfg.ChunkSize); err != nil {
		return sent(s, err)
	}

	properties := amf.Object{
		"fmsVer":       fmsVersion,
		"capabilities": float64(fmsCapabilities),
	}
	information := amf.Object{
		"level":          StatusLevelStatus,
		"code":           ConnectSuccess,
		"description":    "Connection succeeded.",
		"objectEncoding": encoding,
	}
	logger.Info(sessionMessage(s, fmt.Sprintf("connect app=%s", app), conn))
	return sent(s, s.SendCommand(msg.ChunkStreamID, 0, CommandResult, cmd.TransactionID, properties, information))
}

func handleCreateStream(c *serverConn, msg *Message, cmd *command) bool {
	s := c.session
	streamID := s.CreateStream()
	logger.Debug(sessionMessage(s, fmt.Sprintf("created stream %d", streamID), create))
	return sent(s, s.SendCommand(msg.ChunkStreamID, 0, CommandResult, cmd.TransactionID, nil, float64(streamID)))
}

func handlePublish(c *serverConn, msg *Message, cmd *command) bool {
	s := c.session
	streamID, ok := s.StreamID()
	if !ok {
		logger.Warning(sessionMessage(s, "publish before createStream", danger))
		return false
	}
	name, args := ParseStreamName(cmd.stringArg(0))
	path := StreamPath(s.AppName(), name)
	status := func(level, code, description string) bool {
		return sent(s, s.SendOnStatus(msg.ChunkStreamID, streamID, level, code, description))
	}

	if err := c.server.authorizer.AuthorizePublish(s, path, args); err != nil {
		logger.Warning(sessionMessage(s, fmt.Sprintf("publish %s: %v", path, err), warn))
		return status(StatusLevelError, PublishUnauthorized, err.Error())
	}

	result, subscribers := c.server.registry.StartPublishing(s, path, args)
	switch result {
	case PublishSucceeded:
		logger.Info(sessionMessage(s, fmt.Sprintf("publishing %s (%s)", path, cmd.stringArg(1)), pub))
		if !status(StatusLevelStatus, PublishStart, "Publishing started.") {
			return false
		}
		c.server.notifyPublishStarted(subscribers)
		return true
	case PublishAlreadyExists:
		return status(StatusLevelError, PublishBadName, "Stream already exists.")
	case PublishAlreadyPublishing:
		return status(StatusLevelError, PublishBadConnection, "Already publishing.")
	default:
		return status(StatusLevelError, PublishBadConnection, "Already subscribing.")
	}
}

func handlePlay(c *serverConn, msg *Message, cmd *command) bool {
	s := c.session
	streamID, ok := s.StreamID()
	if !ok {
		logger.Warning(sessionMessage(s, "play before createStream", danger))
		return false
	}
	name, args := ParseStreamName(cmd.stringArg(0))
	path := StreamPath(s.AppName(), name)
	status := func(level, code, description string) bool {
		return sent(s, s.SendOnStatus(msg.ChunkStreamID, streamID, level, code, description))
	}

	if err := c.server.authorizer.AuthorizePlay(s, path, args); err != nil {
		logger.Warning(sessionMessage(s, fmt.Sprintf("play %s: %v", path, err), warn))
		return status(StatusLevelError, PlayUnauthorized, err.Error())
	}

	// The delivery goroutine exists before the subscription so no package
	// broadcast after StartSubscribing is lost.
	c.server.broadcaster.RegisterSubscriber(s)
	switch c.server.registry.StartSubscribing(s, msg.ChunkStreamID, path, args) {
	case SubscribeAlreadyPublishing:
		c.server.broadcaster.UnregisterSubscriber(s)
		return status(StatusLevelError, PlayBadConnection, "Already publishing.")
	case SubscribeAlreadySubscribing:
		// The existing subscription keeps its delivery goroutine.
		return status(StatusLevelError, PlayBadConnection, "Already subscribing.")
	}
	sub := s.SubscriptionContext()
	logger.Info(sessionMessage(s, fmt.Sprintf("playing %s", path), play))

	if !sent(s, s.SendStreamBegin(streamID)) {
		return false
	}
	if !status(StatusLevelStatus, PlayReset, "Playing and resetting stream.") {
		return false
	}
	if !status(StatusLevelStatus, PlayStart, "Stream is started playing.") {
		return false
	}
	if publish, ok := c.server.registry.GetPublishStreamContext(path); ok {
		c.server.sendCachedMedia(s, sub, publish)
	}
	sub.CompleteInitialization()
	return true
}

func handleDeleteStream(c *serverConn, msg *Message, cmd *command) bool {
	c.server.deleteStream(c.session, true)
	return true
}

func handleReceiveAudio(c *serverConn, msg *Message, cmd *command) bool {
	if sub := c.session.SubscriptionContext(); sub != nil {
		sub.SetReceivingAudio(cmd.boolArg(0))
	}
	return true
}

func handleReceiveVideo(c *serverConn, msg *Message, cmd *command) bool {
	if sub := c.session.SubscriptionContext(); sub != nil {
		sub.SetReceivingVideo(cmd.boolArg(0))
	}
	return true
}

func handlePause(c *serverConn, msg *Message, cmd *command) bool {
	s := c.session
	sub := s.SubscriptionContext()
	if sub == nil {
		return true
	}
	paused := cmd.boolArg(0)
	sub.SetPaused(paused)
	if paused {
		return sent(s, s.SendOnStatus(sub.ChunkStreamID, sub.StreamID, StatusLevelStatus, PauseNotify, "Paused."))
	}
	return sent(s, s.SendOnStatus(sub.ChunkStreamID, sub.StreamID, StatusLevelStatus, UnpauseNotify, "Unpaused."))
}

// notifyPublishStarted tells subscribers that were waiting on a path that
// its publisher is live.
func (s *Server) notifyPublishStarted(subscribers []*ClientSession) {
	for _, subscriber := range subscribers {
		sub := subscriber.SubscriptionContext()
		if sub == nil {
			continue
		}
		sub.ResetTimestamps()
		subscriber.SendStreamBegin(sub.StreamID)
		subscriber.SendOnStatus(sub.ChunkStreamID, sub.StreamID, StatusLevelStatus, PlayPublishNotify, "Stream is published.")
	}
}
