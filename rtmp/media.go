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
	"fmt"

	"github.com/gwuhaolin/livego/av"
	"github.com/gwuhaolin/livego/protocol/amf"
	"github.com/kris-nova/logger"
)

func handleAudio(c *serverConn, msg *Message) bool {
	c.server.onMedia(c.session, MediaTypeAudio, msg)
	return true
}

func handleVideo(c *serverConn, msg *Message) bool {
	c.server.onMedia(c.session, MediaTypeVideo, msg)
	return true
}

// isSequenceHeader reports whether p carries codec configuration. Those
// packets are never skipped and are cached for late subscribers.
func isSequenceHeader(p *av.Packet) bool {
	if p.IsVideo {
		vh, ok := p.Header.(av.VideoPacketHeader)
		return ok && vh.IsSeq()
	}
	ah, ok := p.Header.(av.AudioPacketHeader)
	return ok && ah.SoundFormat() == av.SOUND_AAC && ah.AACPacketType() == av.AAC_SEQHDR
}

// onMedia caches and broadcasts one audio or video message of a publisher.
func (s *Server) onMedia(session *ClientSession, mediaType MediaType, msg *Message) {
	publish := session.PublishStreamContext()
	if publish == nil {
		logger.Debug(sessionMessage(session, fmt.Sprintf("%s from a session that is not publishing", mediaType), drop))
		return
	}
	p := &av.Packet{
		IsAudio:   mediaType == MediaTypeAudio,
		IsVideo:   mediaType == MediaTypeVideo,
		TimeStamp: msg.Timestamp,
		StreamID:  msg.StreamID,
		Data:      msg.Payload,
	}
	skippable := true
	if err := s.flv.DemuxH(p); err != nil {
		logger.Debug(sessionMessage(session, fmt.Sprintf("%s tag header: %v", mediaType, err), warn))
	} else {
		skippable = !isSequenceHeader(p)
		publish.cache.Write(p)
	}
	subscribers := s.registry.GetSubscribers(publish.StreamPath)
	s.broadcaster.BroadcastMediaMessage(publish, subscribers, mediaType, msg.Timestamp, skippable, msg.Payload)
}

// handleData caches and broadcasts @setDataFrame onMetaData. Other data
// messages are ignored.
func handleData(c *serverConn, msg *Message) bool {
	s := c.session
	publish := s.PublishStreamContext()
	if publish == nil {
		return true
	}
	payload := commandPayload(msg)
	if !bytes.HasPrefix(payload, setDataFrame) {
		logger.Debug(sessionMessage(s, "ignoring data message", drop))
		return true
	}
	metadata, err := amf.MetaDataReform(payload, amf.DEL)
	if err != nil {
		logger.Warning(sessionMessage(s, fmt.Sprintf("metadata: %v", err), warn))
		return true
	}
	logger.Debug(sessionMessage(s, fmt.Sprintf("metadata for %s", publish.StreamPath), pub))
	publish.cache.Write(&av.Packet{
		IsMetadata: true,
		TimeStamp:  msg.Timestamp,
		StreamID:   msg.StreamID,
		Data:       metadata,
	})
	subscribers := c.server.registry.GetSubscribers(publish.StreamPath)
	c.server.broadcaster.BroadcastMediaMessage(publish, subscribers, MediaTypeData, msg.Timestamp, false, metadata)
	return true
}

// sendCachedMedia replays metadata, sequence headers and the current GOP to
// a subscriber that joins a live stream.
func (s *Server) sendCachedMedia(session *ClientSession, sub *SubscriptionContext, publish *PublishStreamContext) {
	for _, p := range publish.cache.Snapshot() {
		mediaType := MediaTypeData
		if p.IsVideo {
			mediaType = MediaTypeVideo
		} else if p.IsAudio {
			mediaType = MediaTypeAudio
		}
		basic, header := mediaHeaders(mediaType, p.TimeStamp, sub.StreamID)
		data := p.Data
		if err := session.Send(basic, header, func(b *Buffer) { b.Write(data) }); err != nil {
			logger.Debug(sessionMessage(session, err.Error(), warn))
			return
		}
		sub.MarkReplayed(p.TimeStamp, mediaType)
	}
}
