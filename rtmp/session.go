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
	"sync"
	"sync/atomic"

	"github.com/gwuhaolin/livego/utils/uid"
)

// ClientSession is the state of one RTMP connection. The connection's read
// loop owns it; the fields other goroutines read are atomics or sit behind mu.
type ClientSession struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	sender BufferSender
	pool   *BufferPool

	state        HandshakeState
	inChunkSize  uint32
	outChunkSize uint32

	// Read loop only.
	InWindowAcknowledgementSize  uint32
	OutWindowAcknowledgementSize uint32
	PeerBandwidth                uint32
	SequenceNumber               uint32
	LastAcknowledged             uint32

	mu           sync.RWMutex
	appName      string
	streamID     uint32
	hasStream    bool
	nextStreamID uint32
	publish      *PublishStreamContext
	subscription *SubscriptionContext
}

// NewClientSession returns a session bound to a child of ctx. Cancelling
// the session (Close) stops everything started on its context.
func NewClientSession(ctx context.Context, sender BufferSender, pool *BufferPool) *ClientSession {
	ctx, cancel := context.WithCancel(ctx)
	if pool == nil {
		pool = NewBufferPool(DefaultMaxOutstandingBuffers)
	}
	return &ClientSession{
		id:                           uid.NewId(),
		ctx:                          ctx,
		cancel:                       cancel,
		sender:                       sender,
		pool:                         pool,
		state:                        HandshakeC0,
		inChunkSize:                  DefaultRTMPChunkSizeBytes,
		outChunkSize:                 DefaultRTMPChunkSizeBytes,
		InWindowAcknowledgementSize:  DefaultWindowAcknowledgementSizeBytes,
		OutWindowAcknowledgementSize: DefaultWindowAcknowledgementSizeBytes,
		nextStreamID:                 1,
	}
}

func (s *ClientSession) ID() string {
	return s.id
}

func (s *ClientSession) Context() context.Context {
	return s.ctx
}

func (s *ClientSession) Close() {
	s.cancel()
}

func (s *ClientSession) State() HandshakeState {
	return s.state
}

func (s *ClientSession) InChunkSize() uint32 {
	return atomic.LoadUint32(&s.inChunkSize)
}

func (s *ClientSession) SetInChunkSize(size uint32) {
	atomic.StoreUint32(&s.inChunkSize, size)
}

func (s *ClientSession) OutChunkSize() uint32 {
	return atomic.LoadUint32(&s.outChunkSize)
}

func (s *ClientSession) SetOutChunkSize(size uint32) {
	atomic.StoreUint32(&s.outChunkSize, size)
}

func (s *ClientSession) AppName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appName
}

func (s *ClientSession) SetAppName(app string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appName = app
}

// CreateStream allocates the session's stream id. A session has at most one
// stream; creating another replaces the id.
func (s *ClientSession) CreateStream() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamID = s.nextStreamID
	s.nextStreamID++
	s.hasStream = true
	return s.streamID
}

func (s *ClientSession) StreamID() (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamID, s.hasStream
}

func (s *ClientSession) DeleteStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasStream = false
	s.publish = nil
	s.subscription = nil
}

func (s *ClientSession) PublishStreamContext() *PublishStreamContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publish
}

func (s *ClientSession) setPublishStreamContext(p *PublishStreamContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish = p
}

func (s *ClientSession) SubscriptionContext() *SubscriptionContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscription
}

func (s *ClientSession) setSubscriptionContext(c *SubscriptionContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscription = c
}

// Send multiplexes one message with the session's out chunk size and queues it.
func (s *ClientSession) Send(basic BasicHeader, header MessageHeader, writePayload func(*Buffer)) error {
	payload := s.pool.Obtain()
	defer s.pool.Recycle(payload)
	if writePayload != nil {
		writePayload(payload)
	}

	out := s.pool.Obtain()
	defer s.pool.Recycle(out)
	Multiplex(out, basic, header, payload.Bytes(), s.OutChunkSize())

	rb := s.pool.RentFrom(out, 1)
	defer rb.Unclaim()
	return s.sender.Send(rb, nil)
}

// SendRented queues an already multiplexed buffer and waits for it to be written.
func (s *ClientSession) SendRented(ctx context.Context, rb *RentedBuffer) error {
	return s.sender.SendAndWait(ctx, rb)
}

// PublishStreamContext is the state of one published stream path.
type PublishStreamContext struct {
	StreamPath      string
	StreamArguments map[string]string
	StreamID        uint32
	Publisher       *ClientSession

	cache *streamCache
}

func newPublishStreamContext(publisher *ClientSession, streamID uint32, path string, args map[string]string, maxGOPCacheSize int64) *PublishStreamContext {
	return &PublishStreamContext{
		StreamPath:      path,
		StreamArguments: args,
		StreamID:        streamID,
		Publisher:       publisher,
		cache:           newStreamCache(maxGOPCacheSize),
	}
}

// SubscriptionContext is the state of one play request.
type SubscriptionContext struct {
	StreamID        uint32
	ChunkStreamID   uint32
	StreamPath      string
	StreamArguments map[string]string

	paused         int32
	receivingAudio int32
	receivingVideo int32

	mu             sync.Mutex
	audioClock     mediaClock
	videoClock     mediaClock

	initialized chan struct{}
	initOnce    sync.Once
}

func newSubscriptionContext(streamID, csid uint32, path string, args map[string]string) *SubscriptionContext {
	return &SubscriptionContext{
		StreamID:        streamID,
		ChunkStreamID:   csid,
		StreamPath:      path,
		StreamArguments: args,
		receivingAudio:  1,
		receivingVideo:  1,
		initialized:     make(chan struct{}),
	}
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (c *SubscriptionContext) IsPaused() bool {
	return atomic.LoadInt32(&c.paused) == 1
}

func (c *SubscriptionContext) SetPaused(paused bool) {
	atomic.StoreInt32(&c.paused, boolToInt32(paused))
}

func (c *SubscriptionContext) IsReceivingAudio() bool {
	return atomic.LoadInt32(&c.receivingAudio) == 1
}

func (c *SubscriptionContext) SetReceivingAudio(receiving bool) {
	atomic.StoreInt32(&c.receivingAudio, boolToInt32(receiving))
}

func (c *SubscriptionContext) IsReceivingVideo() bool {
	return atomic.LoadInt32(&c.receivingVideo) == 1
}

func (c *SubscriptionContext) SetReceivingVideo(receiving bool) {
	atomic.StoreInt32(&c.receivingVideo, boolToInt32(receiving))
}

// mediaClock is the last timestamp sent for one media type. replayed is set
// while that timestamp came from the cache replay, so a live copy of the same
// unit is refused.
type mediaClock struct {
	last     uint32
	replayed bool
}

func (m *mediaClock) advance(timestamp uint32) bool {
	if timestamp < m.last || (m.replayed && timestamp == m.last) {
		return false
	}
	m.last = timestamp
	m.replayed = false
	return true
}

func (c *SubscriptionContext) clock(mediaType MediaType) *mediaClock {
	switch mediaType {
	case MediaTypeAudio:
		return &c.audioClock
	case MediaTypeVideo:
		return &c.videoClock
	}
	return nil
}

// UpdateTimestamp records the timestamp of the next unit of mediaType sent
// to this subscriber. It returns false when the unit is older than the last
// one, or repeats the last unit replayed from the cache.
func (c *SubscriptionContext) UpdateTimestamp(timestamp uint32, mediaType MediaType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := c.clock(mediaType); m != nil {
		return m.advance(timestamp)
	}
	return true
}

// MarkReplayed records a unit sent from the cache.
func (c *SubscriptionContext) MarkReplayed(timestamp uint32, mediaType MediaType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := c.clock(mediaType); m != nil {
		m.last = timestamp
		m.replayed = true
	}
}

// ResetTimestamps forgets the last sent timestamps, for a stream that
// starts over with a new publisher.
func (c *SubscriptionContext) ResetTimestamps() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioClock = mediaClock{}
	c.videoClock = mediaClock{}
}

// CompleteInitialization releases WaitInitialized. Safe to call more than once.
func (c *SubscriptionContext) CompleteInitialization() {
	c.initOnce.Do(func() { close(c.initialized) })
}

func (c *SubscriptionContext) WaitInitialized(ctx context.Context) error {
	select {
	case <-c.initialized:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
