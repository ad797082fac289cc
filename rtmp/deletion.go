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
	"github.com/kris-nova/logger"
)

// deleteStream ends whatever session publishes or plays. Subscribers of a
// stopped publisher get StreamEOF and UnpublishNotify but stay subscribed
// for the next publisher. notifySelf also tells a stopped subscriber.
func (s *Server) deleteStream(session *ClientSession, notifySelf bool) {
	publish := session.PublishStreamContext()
	if subscribers, ok := s.registry.StopPublishing(session); ok {
		logger.Info(sessionMessage(session, "unpublished "+publish.StreamPath, stop))
		publish.cache.Clear()
		for _, subscriber := range subscribers {
			sub := subscriber.SubscriptionContext()
			if sub == nil {
				continue
			}
			subscriber.SendStreamEOF(sub.StreamID)
			subscriber.SendOnStatus(sub.ChunkStreamID, sub.StreamID, StatusLevelStatus, PlayUnpublishNotify, "Stream is unpublished.")
		}
	}

	sub := session.SubscriptionContext()
	if s.registry.StopSubscribing(session) {
		s.broadcaster.UnregisterSubscriber(session)
		logger.Info(sessionMessage(session, "stopped playing "+sub.StreamPath, stop))
		if notifySelf {
			session.SendOnStatus(sub.ChunkStreamID, sub.StreamID, StatusLevelStatus, PlayUnpublishNotify, "Stream is stopped.")
		}
	}

	session.DeleteStream()
}
