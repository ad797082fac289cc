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
	"net"

	"golang.org/x/net/netutil"
)

// Listener is a TCP listener for RTMP that remembers the URLAddr it was
// created from and optionally caps the number of open connections.
type Listener struct {
	net.Listener
	addr *URLAddr
}

// Listen listens on address. When maxConnections is positive, Accept blocks
// while that many accepted connections are still open.
func Listen(address string, maxConnections int) (*Listener, error) {
	addr, err := NewURLAddr(address)
	if err != nil {
		return nil, fmt.Errorf("rtmp URL addr: %v", err)
	}
	listener, err := net.Listen(DefaultProtocol, address)
	if err != nil {
		return nil, fmt.Errorf("rtmp listen: %v", err)
	}
	return NewListener(listener, addr, maxConnections), nil
}

// NewListener wraps an existing listener.
func NewListener(l net.Listener, addr *URLAddr, maxConnections int) *Listener {
	if maxConnections > 0 {
		l = netutil.LimitListener(l, maxConnections)
	}
	return &Listener{
		Listener: l,
		addr:     addr,
	}
}

func (l *Listener) URLAddr() *URLAddr {
	return l.addr
}
