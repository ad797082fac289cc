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
	"fmt"
	"sync"

	"github.com/kris-nova/logger"
	"github.com/pkg/errors"
)

type mediaPackage struct {
	rb        *RentedBuffer
	mediaType MediaType
	timestamp uint32
	skippable bool
}

// subscriberQueue is the delivery state of one subscriber: an unbounded
// FIFO, the discard policy that guards it and the goroutine draining it.
type subscriberQueue struct {
	session *ClientSession
	queue   *fifoQueue
	cancel  context.CancelFunc
	done    chan struct{}

	mu               sync.Mutex
	policy           *DiscardPolicy
	outstandingSize  int64
	outstandingCount int64
}

// add queues pkg unless the discard policy drops it. The caller keeps its
// claim on pkg.rb when add returns false.
func (q *subscriberQueue) add(pkg mediaPackage) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.policy.ShouldDiscard(q.outstandingSize, q.outstandingCount, pkg.skippable) {
		return false
	}
	if err := q.queue.Push(pkg); err != nil {
		return false
	}
	q.outstandingSize += int64(pkg.rb.Size())
	q.outstandingCount++
	return true
}

func (q *subscriberQueue) next(ctx context.Context) (mediaPackage, error) {
	v, err := q.queue.Pop(ctx)
	if err != nil {
		return mediaPackage{}, err
	}
	pkg := v.(mediaPackage)
	q.mu.Lock()
	q.outstandingSize -= int64(pkg.rb.Size())
	q.outstandingCount--
	q.mu.Unlock()
	return pkg, nil
}

func (q *subscriberQueue) outstanding() (int64, int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstandingSize, q.outstandingCount
}

// Broadcaster fans published media out to subscribers. Each message is
// multiplexed once per distinct subscriber chunk size and the resulting
// buffer is shared by every subscriber in that group.
type Broadcaster struct {
	pool    *BufferPool
	config  MediaPacketConfig
	metrics *Metrics

	mu     sync.RWMutex
	queues map[*ClientSession]*subscriberQueue
}

func NewBroadcaster(pool *BufferPool, config MediaPacketConfig, metrics *Metrics) *Broadcaster {
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Broadcaster{
		pool:    pool,
		config:  config,
		metrics: metrics,
		queues:  make(map[*ClientSession]*subscriberQueue),
	}
}

// RegisterSubscriber starts the delivery goroutine of session. Registering
// twice is a no-op.
func (b *Broadcaster) RegisterSubscriber(session *ClientSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[session]; ok {
		return
	}
	ctx, cancel := context.WithCancel(session.Context())
	q := &subscriberQueue{
		session: session,
		queue:   newFIFOQueue(),
		cancel:  cancel,
		done:    make(chan struct{}),
		policy:  NewDiscardPolicy(b.config),
	}
	b.queues[session] = q
	go b.deliver(ctx, q)
}

// UnregisterSubscriber stops the delivery goroutine of session and waits for
// it to release everything still queued.
func (b *Broadcaster) UnregisterSubscriber(session *ClientSession) {
	b.mu.Lock()
	q, ok := b.queues[session]
	delete(b.queues, session)
	b.mu.Unlock()
	if !ok {
		return
	}
	q.queue.Close()
	q.cancel()
	<-q.done
}

func (b *Broadcaster) queueOf(session *ClientSession) *subscriberQueue {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.queues[session]
}

// Outstanding is the queued byte size and package count of session.
func (b *Broadcaster) Outstanding(session *ClientSession) (int64, int64) {
	q := b.queueOf(session)
	if q == nil {
		return 0, 0
	}
	return q.outstanding()
}

func mediaHeaders(mediaType MediaType, timestamp, streamID uint32) (BasicHeader, MessageHeaderType0) {
	basic := BasicHeader{ChunkType: ChunkType0}
	header := MessageHeaderType0{Timestamp: timestamp, MessageStreamID: streamID}
	switch mediaType {
	case MediaTypeVideo:
		basic.ChunkStreamID = VideoChunkStreamID
		header.MessageTypeID = VideoMessageID
	case MediaTypeAudio:
		basic.ChunkStreamID = AudioChunkStreamID
		header.MessageTypeID = AudioMessageID
	default:
		basic.ChunkStreamID = DataChunkStreamID
		header.MessageTypeID = DataAMF0MessageID
	}
	return basic, header
}

func acceptsMedia(sub *SubscriptionContext, mediaType MediaType, isSkippable bool) bool {
	if sub == nil {
		return false
	}
	if !isSkippable {
		return true
	}
	if sub.IsPaused() {
		return false
	}
	switch mediaType {
	case MediaTypeAudio:
		return sub.IsReceivingAudio()
	case MediaTypeVideo:
		return sub.IsReceivingVideo()
	}
	return true
}

// BroadcastMediaMessage queues payload for every subscriber that accepts it.
// payload is copied; the caller may reuse it once this returns.
func (b *Broadcaster) BroadcastMediaMessage(publish *PublishStreamContext, subscribers []*ClientSession, mediaType MediaType, timestamp uint32, isSkippable bool, payload []byte) {
	groups := make(map[uint32][]*ClientSession)
	var order []uint32
	for _, s := range subscribers {
		if !acceptsMedia(s.SubscriptionContext(), mediaType, isSkippable) {
			continue
		}
		size := s.OutChunkSize()
		if _, ok := groups[size]; !ok {
			order = append(order, size)
		}
		groups[size] = append(groups[size], s)
	}
	if len(order) == 0 {
		return
	}

	var streamID uint32
	if publish != nil {
		streamID = publish.StreamID
	}
	basic, header := mediaHeaders(mediaType, timestamp, streamID)

	for _, size := range order {
		group := groups[size]
		tmp := b.pool.Obtain()
		Multiplex(tmp, basic, header, payload, size)
		rb := b.pool.RentFrom(tmp, int32(len(group)))
		b.pool.Recycle(tmp)

		pkg := mediaPackage{rb: rb, mediaType: mediaType, timestamp: timestamp, skippable: isSkippable}
		for _, s := range group {
			q := b.queueOf(s)
			if q == nil || !q.add(pkg) {
				b.metrics.packageDropped()
				rb.Unclaim()
				continue
			}
			b.metrics.packageEnqueued()
		}
	}
}

// deliver sends queued packages to one subscriber in order. Every package it
// takes off the queue is unclaimed whatever happens to the send.
func (b *Broadcaster) deliver(ctx context.Context, q *subscriberQueue) {
	defer close(q.done)
	defer func() {
		// Nothing may be queued once the drain starts, or it would never be unclaimed.
		q.queue.Close()
		for {
			v, ok := q.queue.TryPop()
			if !ok {
				return
			}
			pkg := v.(mediaPackage)
			q.mu.Lock()
			q.outstandingSize -= int64(pkg.rb.Size())
			q.outstandingCount--
			q.mu.Unlock()
			pkg.rb.Unclaim()
		}
	}()

	initialized := false
	for {
		pkg, err := q.next(ctx)
		if err != nil {
			return
		}
		if err := b.deliverOne(ctx, q.session, pkg, &initialized); err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrSenderClosed) {
				continue
			}
			logger.Warning(sessionMessage(q.session, fmt.Sprintf("media delivery: %v", err), warn))
		}
	}
}

func (b *Broadcaster) deliverOne(ctx context.Context, session *ClientSession, pkg mediaPackage, initialized *bool) error {
	defer pkg.rb.Unclaim()

	sub := session.SubscriptionContext()
	if sub == nil {
		return nil
	}
	if !sub.UpdateTimestamp(pkg.timestamp, pkg.mediaType) && pkg.skippable {
		return nil
	}
	if !*initialized {
		if err := sub.WaitInitialized(ctx); err != nil {
			return err
		}
		*initialized = true
	}
	return session.SendRented(ctx, pkg.rb)
}
