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

import "fmt"

const (
	DefaultProtocol          string = "tcp"
	DefaultLocalHost         string = "localhost"
	DefaultLocalPort         string = "1935"
	DefaultScheme            string = "rtmp"
	DefaultRTMPApp           string = "live"
	DefaultGenerateKeyLength int    = 20
	DefaultGenerateKeyPrefix string = "relay_"
)

const (
	// DefaultRTMPChunkSizeBytes is the chunk size every peer starts with
	DefaultRTMPChunkSizeBytes uint32 = 128

	// DefaultRTMPChunkSizeBytesLarge is what we announce after connect
	DefaultRTMPChunkSizeBytesLarge uint32 = 4096

	// MaxRTMPChunkSizeBytes is the largest chunk size a peer may set
	MaxRTMPChunkSizeBytes uint32 = 0x7FFFFFFF

	DefaultWindowAcknowledgementSizeBytes uint32 = 2500000
	DefaultPeerBandwidthBytes             uint32 = 2500000
	DefaultConnBufferSizeBytes            int    = 4 * 1024
)

// MessageType is the RTMP message type id carried in type 0 and type 1 headers.
type MessageType uint8

const (
	SetChunkSizeMessageID              MessageType = 1
	AbortMessageID                     MessageType = 2
	AcknowledgementMessageID           MessageType = 3
	UserControlMessageID               MessageType = 4
	WindowAcknowledgementSizeMessageID MessageType = 5
	SetPeerBandwidthMessageID          MessageType = 6
	AudioMessageID                     MessageType = 8
	VideoMessageID                     MessageType = 9
	DataAMF3MessageID                  MessageType = 15
	SharedObjectAMF3MessageID          MessageType = 16
	CommandAMF3MessageID               MessageType = 17
	DataAMF0MessageID                  MessageType = 18
	SharedObjectAMF0MessageID          MessageType = 19
	CommandAMF0MessageID               MessageType = 20
	AggregateMessageID                 MessageType = 22
)

var messageTypeNames = map[MessageType]string{
	SetChunkSizeMessageID:              "SetChunkSize",
	AbortMessageID:                     "Abort",
	AcknowledgementMessageID:           "Acknowledgement",
	UserControlMessageID:               "UserControl",
	WindowAcknowledgementSizeMessageID: "WindowAcknowledgementSize",
	SetPeerBandwidthMessageID:          "SetPeerBandwidth",
	AudioMessageID:                     "Audio",
	VideoMessageID:                     "Video",
	DataAMF3MessageID:                  "DataAMF3",
	SharedObjectAMF3MessageID:          "SharedObjectAMF3",
	CommandAMF3MessageID:               "CommandAMF3",
	DataAMF0MessageID:                  "DataAMF0",
	SharedObjectAMF0MessageID:          "SharedObjectAMF0",
	CommandAMF0MessageID:               "CommandAMF0",
	AggregateMessageID:                 "Aggregate",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

// UserControlEvent is the 16 bit event type that leads every user control message.
type UserControlEvent uint16

const (
	StreamBeginEvent      UserControlEvent = 0
	StreamEOFEvent        UserControlEvent = 1
	StreamDryEvent        UserControlEvent = 2
	SetBufferLengthEvent  UserControlEvent = 3
	StreamIsRecordedEvent UserControlEvent = 4
	PingRequestEvent      UserControlEvent = 6
	PingResponseEvent     UserControlEvent = 7
)

// PeerBandwidthLimitType is the trailing byte of a Set Peer Bandwidth message.
type PeerBandwidthLimitType uint8

const (
	PeerBandwidthLimitHard    PeerBandwidthLimitType = 0
	PeerBandwidthLimitSoft    PeerBandwidthLimitType = 1
	PeerBandwidthLimitDynamic PeerBandwidthLimitType = 2
)

// Reserved chunk stream ids and the message stream ids that go with them.
const (
	ProtocolControlChunkStreamID uint32 = 2
	CommandChunkStreamID         uint32 = 3
	AudioChunkStreamID           uint32 = 4
	VideoChunkStreamID           uint32 = 6
	DataChunkStreamID            uint32 = 5

	ProtocolControlMessageStreamID uint32 = 0
)

// MediaType separates the two kinds of skippable media a subscriber can opt out of.
type MediaType uint8

const (
	MediaTypeAudio MediaType = iota
	MediaTypeVideo
	MediaTypeData
)

func (m MediaType) String() string {
	switch m {
	case MediaTypeAudio:
		return "audio"
	case MediaTypeVideo:
		return "video"
	default:
		return "data"
	}
}
