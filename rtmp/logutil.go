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
)

type messageOperator string

const (
	rx     messageOperator = "[← 💻  ]"
	tx     messageOperator = "[  💻 →]"
	ack    messageOperator = "[  ✨  ]"
	hs     messageOperator = "[  🤝  ]"
	pub    messageOperator = "[  📝  ]"
	play   messageOperator = "[  ⏯  ]"
	conn   messageOperator = "[  📶  ]"
	stream messageOperator = "[→ 🌊 →]"
	drop   messageOperator = "[  🗑  ]"
	warn   messageOperator = "[  ⚠  ]"
	danger messageOperator = "[  🧨  ]"
	start  messageOperator = "[  ⏱  ]"
	stop   messageOperator = "[  ⏹  ]"
	listen messageOperator = "[  🙉  ]"
	serve  messageOperator = "[  🍽  ]"
	create messageOperator = "[  🆕  ]"
)

// Send an RTMP protocol message with an operator
//
// Operators used in this convention.
//   ->  Transmit (TX) out to a remote
//   <-  Receive (RX) in to a local
//   *   Ack (ack) mutate a process based on the content of a message
func rtmpServerMessage(msg string, op messageOperator) string {
	return fmt.Sprintf("[rtmp.server] %s (%s)", op, msg)
}

func rtmpClientMessage(msg string, op messageOperator) string {
	return fmt.Sprintf("[rtmp.client] %s (%s)", op, msg)
}

// sessionMessage prefixes a log line with the session it belongs to.
func sessionMessage(s *ClientSession, msg string, op messageOperator) string {
	return fmt.Sprintf("[rtmp.server] %s [%s] (%s)", op, s.ID(), msg)
}
