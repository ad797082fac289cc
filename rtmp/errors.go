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
	"github.com/pkg/errors"
)

var (
	// ErrProtocol marks malformed input from the peer. The connection is closed.
	ErrProtocol = errors.New("rtmp: protocol error")

	ErrQueueClosed          = errors.New("rtmp: queue closed")
	ErrSenderClosed         = errors.New("rtmp: sender closed")
	ErrUnauthorized         = errors.New("rtmp: unauthorized")
	ErrStreamNotCreated     = errors.New("rtmp: stream not created")
	ErrTransactionCancelled = errors.New("rtmp: transaction cancelled")
	ErrCommandFailed        = errors.New("rtmp: command failed")
)

// IsProtocolError reports whether err was caused by malformed peer input.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrProtocol)
}
