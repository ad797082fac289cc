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
	"context"
	"io"
	"sync/atomic"

	"github.com/kris-nova/logger"
	"github.com/pkg/errors"
)

// BufferSender queues rented buffers for transmission to one peer.
type BufferSender interface {
	// Send takes its own claim on rb and releases it once rb is written or
	// dropped. callback, if not nil, learns the outcome.
	Send(rb *RentedBuffer, callback func(error)) error

	// SendAndWait is Send followed by waiting for the outcome or ctx.
	SendAndWait(ctx context.Context, rb *RentedBuffer) error
}

type pendingBuffer struct {
	rb       *RentedBuffer
	callback func(error)
}

// Sender is the single writer of a connection. Control messages and media
// share its FIFO so their relative order is preserved.
type Sender struct {
	w       io.Writer
	queue   *fifoQueue
	done    chan struct{}
	started int32
	metrics *Metrics

	bytesSent uint64
}

func NewSender(w io.Writer) *Sender {
	return &Sender{
		w:     w,
		queue: newFIFOQueue(),
		done:  make(chan struct{}),
	}
}

// WithMetrics counts written bytes into m as well.
func (s *Sender) WithMetrics(m *Metrics) *Sender {
	s.metrics = m
	return s
}

// Start runs the write loop until ctx is done or a write fails.
func (s *Sender) Start(ctx context.Context) {
	atomic.StoreInt32(&s.started, 1)
	go s.run(ctx)
}

// Wait blocks until the write loop has exited and drained its queue. A
// sender that was never started is drained in place.
func (s *Sender) Wait() {
	if atomic.LoadInt32(&s.started) == 0 {
		s.drain()
		return
	}
	<-s.done
}

func (s *Sender) BytesSent() uint64 {
	return atomic.LoadUint64(&s.bytesSent)
}

func (s *Sender) Send(rb *RentedBuffer, callback func(error)) error {
	rb.Claim()
	if err := s.queue.Push(pendingBuffer{rb: rb, callback: callback}); err != nil {
		rb.Unclaim()
		return errors.Wrap(ErrSenderClosed, err.Error())
	}
	return nil
}

func (s *Sender) SendAndWait(ctx context.Context, rb *RentedBuffer) error {
	result := make(chan error, 1)
	if err := s.Send(rb, func(err error) { result <- err }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func invokeCallback(callback func(error), err error) {
	if callback != nil {
		callback(err)
	}
}

func (s *Sender) run(ctx context.Context) {
	defer close(s.done)
	defer s.drain()
	for {
		v, err := s.queue.Pop(ctx)
		if err != nil {
			return
		}
		p := v.(pendingBuffer)
		n, err := s.w.Write(p.rb.Bytes())
		atomic.AddUint64(&s.bytesSent, uint64(n))
		if s.metrics != nil {
			s.metrics.bytesSent(uint64(n))
		}
		p.rb.Unclaim()
		if err != nil {
			invokeCallback(p.callback, errors.Wrap(err, "rtmp: send"))
			logger.Debug(rtmpServerMessage("send: "+err.Error(), warn))
			return
		}
		invokeCallback(p.callback, nil)
	}
}

// drain closes the queue and releases everything still in it.
func (s *Sender) drain() {
	s.queue.Close()
	for {
		v, ok := s.queue.TryPop()
		if !ok {
			return
		}
		p := v.(pendingBuffer)
		invokeCallback(p.callback, ErrSenderClosed)
		p.rb.Unclaim()
	}
}
