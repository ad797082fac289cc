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
	"sync/atomic"
	"time"
)

// Metrics aggregates counters about our RTMP connections and streams.
// All fields are updated atomically.
type Metrics struct {
	ConnectionsAccepted int64
	ConnectionsActive   int64
	HandshakesCompleted int64
	BytesRX             int64
	BytesTX             int64
	MessagesRX          int64
	PackagesEnqueued    int64
	PackagesDropped     int64

	StartTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

func (m *Metrics) connectionOpened() {
	atomic.AddInt64(&m.ConnectionsAccepted, 1)
	atomic.AddInt64(&m.ConnectionsActive, 1)
}

func (m *Metrics) connectionClosed() {
	atomic.AddInt64(&m.ConnectionsActive, -1)
}

func (m *Metrics) handshakeCompleted() {
	atomic.AddInt64(&m.HandshakesCompleted, 1)
}

func (m *Metrics) bytesReceived(n int) {
	atomic.AddInt64(&m.BytesRX, int64(n))
}

func (m *Metrics) bytesSent(n uint64) {
	atomic.AddInt64(&m.BytesTX, int64(n))
}

func (m *Metrics) messageReceived() {
	atomic.AddInt64(&m.MessagesRX, 1)
}

func (m *Metrics) packageEnqueued() {
	atomic.AddInt64(&m.PackagesEnqueued, 1)
}

func (m *Metrics) packageDropped() {
	atomic.AddInt64(&m.PackagesDropped, 1)
}

// Snapshot is a copy of the counters safe to read without atomics.
func (m *Metrics) Snapshot() Metrics {
	return Metrics{
		ConnectionsAccepted: atomic.LoadInt64(&m.ConnectionsAccepted),
		ConnectionsActive:   atomic.LoadInt64(&m.ConnectionsActive),
		HandshakesCompleted: atomic.LoadInt64(&m.HandshakesCompleted),
		BytesRX:             atomic.LoadInt64(&m.BytesRX),
		BytesTX:             atomic.LoadInt64(&m.BytesTX),
		MessagesRX:          atomic.LoadInt64(&m.MessagesRX),
		PackagesEnqueued:    atomic.LoadInt64(&m.PackagesEnqueued),
		PackagesDropped:     atomic.LoadInt64(&m.PackagesDropped),
		StartTime:           m.StartTime,
	}
}

// MessagesPerSecond is the average receive rate since StartTime.
func (m *Metrics) MessagesPerSecond() float64 {
	elapsed := time.Since(m.StartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&m.MessagesRX)) / elapsed
}

func (m *Metrics) String() string {
	s := m.Snapshot()
	var str string
	str += fmt.Sprintf("*************************************************************\n")
	str += fmt.Sprintf("  Connections :  [%d active / %d total]\n", s.ConnectionsActive, s.ConnectionsAccepted)
	str += fmt.Sprintf("   Handshakes :  [%d]\n", s.HandshakesCompleted)
	str += fmt.Sprintf("     Bytes RX :  [%d]\n", s.BytesRX)
	str += fmt.Sprintf("     Bytes TX :  [%d]\n", s.BytesTX)
	str += fmt.Sprintf("  Messages RX :  [%d]\n", s.MessagesRX)
	str += fmt.Sprintf(" Messages/sec :  [%f]\n", m.MessagesPerSecond())
	str += fmt.Sprintf("  → Packages queued  :  [%d]\n", s.PackagesEnqueued)
	str += fmt.Sprintf("  → Packages dropped :  [%d]\n", s.PackagesDropped)
	return str
}
