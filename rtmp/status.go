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
	"github.com/gwuhaolin/livego/protocol/amf"
)

const (
	StatusLevelStatus  = "status"
	StatusLevelWarning = "warning"
	StatusLevelError   = "error"
)

const (
	CommandResult   = "_result"
	CommandError    = "_error"
	CommandOnStatus = "onStatus"
	CommandOnBWDone = "onBWDone"
)

// NetConnection and NetStream status codes sent with onStatus and _result.
const (
	ConnectSuccess  = "NetConnection.Connect.Success"
	ConnectRejected = "NetConnection.Connect.Rejected"

	PublishStart         = "NetStream.Publish.Start"
	PublishBadName       = "NetStream.Publish.BadName"
	PublishBadConnection = "NetStream.Publish.BadConnection"
	PublishUnauthorized  = "NetStream.Publish.Unauthorized"
	UnpublishSuccess     = "NetStream.Unpublish.Success"

	PlayStart           = "NetStream.Play.Start"
	PlayReset           = "NetStream.Play.Reset"
	PlayStop            = "NetStream.Play.Stop"
	PlayBadConnection   = "NetStream.Play.BadConnection"
	PlayUnauthorized    = "NetStream.Play.Unauthorized"
	PlayUnpublishNotify = "NetStream.Play.UnpublishNotify"
	PlayPublishNotify   = "NetStream.Play.PublishNotify"

	PauseNotify   = "NetStream.Pause.Notify"
	UnpauseNotify = "NetStream.Unpause.Notify"
)

func statusObject(level, code, description string) amf.Object {
	return amf.Object{
		"level":       level,
		"code":        code,
		"description": description,
	}
}

// SendOnStatus sends onStatus(0, null, {level, code, description}) on the
// given message stream.
func (s *ClientSession) SendOnStatus(csid, streamID uint32, level, code, description string) error {
	return s.SendCommand(csid, streamID, CommandOnStatus, float64(0), nil, statusObject(level, code, description))
}

// statusOf pulls level and code out of an onStatus information object.
func statusOf(v interface{}) (level, code, description string) {
	obj, ok := v.(amf.Object)
	if !ok {
		return "", "", ""
	}
	level, _ = obj["level"].(string)
	code, _ = obj["code"].(string)
	description, _ = obj["description"].(string)
	return level, code, description
}
