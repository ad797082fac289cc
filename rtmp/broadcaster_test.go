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
	"bufio"
	"bytes"
	"context"
	"sync"
	"testing"
	"time"
)

// recordingSender keeps a copy of everything sent. When gate is not nil
// SendAndWait blocks until gate is closed or ctx is done.
type recordingSender struct {
	mu   sync.Mutex
	sent [][]byte
	gate chan struct{}
}

func (r *recordingSender) record(rb *RentedBuffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, append([]byte(nil), rb.Bytes()...))
}

func (r *recordingSender) Send(rb *RentedBuffer, callback func(error)) error {
	rb.Claim()
	r.record(rb)
	rb.Unclaim()
	if callback != nil {
		callback(nil)
	}
	return nil
}

func (r *recordingSender) SendAndWait(ctx context.Context, rb *RentedBuffer) error {
	rb.Claim()
	defer rb.Unclaim()
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.record(rb)
	return nil
}

func (r *recordingSender) messages() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.sent...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Errorf("timed out waiting for %s", what)
			t.FailNow()
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type testSubscriber struct {
	session *ClientSession
	sender  *recordingSender
}

func subscribe(t *testing.T, r *Registry, b *Broadcaster, pool *BufferPool, path string, chunkSize uint32, gate chan struct{}) testSubscriber {
	sender := &recordingSender{gate: gate}
	s := newTestSession(sender, pool)
	s.SetOutChunkSize(chunkSize)
	b.RegisterSubscriber(s)
	if result := r.StartSubscribing(s, 8, path, nil); result != SubscribeSucceeded {
		t.Errorf("subscribe: %s", result)
		t.FailNow()
	}
	s.SubscriptionContext().CompleteInitialization()
	return testSubscriber{session: s, sender: sender}
}

func TestBroadcastFanOut(t *testing.T) {
	pool := NewBufferPool(64)
	r := NewRegistry(0)
	b := NewBroadcaster(pool, DefaultMediaPacketConfig(), nil)
	publisher := newTestSession(nil, pool)
	r.StartPublishing(publisher, "/live/fan", nil)

	subs := []testSubscriber{
		subscribe(t, r, b, pool, "/live/fan", 128, nil),
		subscribe(t, r, b, pool, "/live/fan", 128, nil),
		subscribe(t, r, b, pool, "/live/fan", 4096, nil),
	}
	payload := testPayload(300)
	publish := publisher.PublishStreamContext()
	b.BroadcastMediaMessage(publish, r.GetSubscribers("/live/fan"), MediaTypeVideo, 40, false, payload)

	for i, sub := range subs {
		waitFor(t, "delivery", func() bool { return len(sub.sender.messages()) == 1 })
		d := NewDemuxer()
		d.SetChunkSize(sub.session.OutChunkSize())
		msg, err := d.ReadMessage(bufio.NewReader(bytes.NewReader(sub.sender.messages()[0])))
		if err != nil {
			t.Errorf("subscriber %d: %v", i, err)
			continue
		}
		if !bytes.Equal(msg.Payload, payload) || msg.TypeID != VideoMessageID || msg.Timestamp != 40 {
			t.Errorf("subscriber %d: unexpected message %+v", i, msg)
		}
		if msg.StreamID != publish.StreamID {
			t.Errorf("subscriber %d: expected stream id %d, got %d", i, publish.StreamID, msg.StreamID)
		}
	}
	if !bytes.Equal(subs[0].sender.messages()[0], subs[1].sender.messages()[0]) {
		t.Errorf("subscribers with the same chunk size must get the same bytes")
	}
	waitFor(t, "buffers released", func() bool { return pool.Outstanding() == 0 })

	for _, sub := range subs {
		r.StopSubscribing(sub.session)
		b.UnregisterSubscriber(sub.session)
	}
}

func TestBroadcastSkipsPausedAndDisabled(t *testing.T) {
	pool := NewBufferPool(64)
	r := NewRegistry(0)
	b := NewBroadcaster(pool, DefaultMediaPacketConfig(), nil)
	publisher := newTestSession(nil, pool)
	r.StartPublishing(publisher, "/live/p", nil)

	paused := subscribe(t, r, b, pool, "/live/p", 128, nil)
	paused.session.SubscriptionContext().SetPaused(true)
	noAudio := subscribe(t, r, b, pool, "/live/p", 128, nil)
	noAudio.session.SubscriptionContext().SetReceivingAudio(false)

	publish := publisher.PublishStreamContext()
	subscribers := r.GetSubscribers("/live/p")
	b.BroadcastMediaMessage(publish, subscribers, MediaTypeAudio, 0, true, []byte{0xaf, 0x01})
	b.BroadcastMediaMessage(publish, subscribers, MediaTypeVideo, 0, true, []byte{0x27, 0x01})
	b.BroadcastMediaMessage(publish, subscribers, MediaTypeAudio, 0, false, []byte{0xaf, 0x00})

	waitFor(t, "paused delivery", func() bool { return len(paused.sender.messages()) == 1 })
	waitFor(t, "no audio delivery", func() bool { return len(noAudio.sender.messages()) == 2 })
	waitFor(t, "buffers released", func() bool { return pool.Outstanding() == 0 })

	for _, sub := range []testSubscriber{paused, noAudio} {
		r.StopSubscribing(sub.session)
		b.UnregisterSubscriber(sub.session)
	}
}

func TestBroadcastBackpressure(t *testing.T) {
	pool := NewBufferPool(64)
	r := NewRegistry(0)
	metrics := NewMetrics()
	b := NewBroadcaster(pool, DefaultMediaPacketConfig(), metrics)
	publisher := newTestSession(nil, pool)
	r.StartPublishing(publisher, "/live/slow", nil)

	gate := make(chan struct{})
	slow := subscribe(t, r, b, pool, "/live/slow", 128, gate)
	publish := publisher.PublishStreamContext()
	subscribers := r.GetSubscribers("/live/slow")

	for i := 0; i < 600; i++ {
		b.BroadcastMediaMessage(publish, subscribers, MediaTypeVideo, uint32(i), true, []byte{0x27, 0x01, 0, 0, 0})
		if _, count := b.Outstanding(slow.session); count > DefaultMediaMaxCount {
			t.Errorf("outstanding count %d above max", count)
			t.FailNow()
		}
	}
	stats := metrics.Snapshot()
	if stats.PackagesEnqueued+stats.PackagesDropped != 600 {
		t.Errorf("expected 600 packages accounted for, got %d enqueued %d dropped", stats.PackagesEnqueued, stats.PackagesDropped)
	}
	if stats.PackagesDropped == 0 {
		t.Errorf("expected skippable packages to be dropped")
	}

	// One package is held by the blocked send, the rest are queued.
	waitFor(t, "first package in flight", func() bool {
		_, count := b.Outstanding(slow.session)
		return stats.PackagesEnqueued-count == 1
	})
	_, before := b.Outstanding(slow.session)
	for i := 0; i < 5; i++ {
		b.BroadcastMediaMessage(publish, subscribers, MediaTypeVideo, 600, false, []byte{0x17, 0x00, 0, 0, 0})
	}
	if _, after := b.Outstanding(slow.session); after != before+5 {
		t.Errorf("non skippable packages must never be dropped: %d before, %d after", before, after)
	}
	if dropped := metrics.Snapshot().PackagesDropped; dropped != stats.PackagesDropped {
		t.Errorf("expected no new drops, got %d", dropped-stats.PackagesDropped)
	}

	r.StopSubscribing(slow.session)
	b.UnregisterSubscriber(slow.session)
	if pool.Outstanding() != 0 {
		t.Errorf("expected every package released after unregister, %d outstanding", pool.Outstanding())
	}
}

func TestBroadcastResumesAfterDrain(t *testing.T) {
	pool := NewBufferPool(64)
	r := NewRegistry(0)
	config := MediaPacketConfig{TargetCount: 1, TargetSize: 1 << 20, MaxCount: 4, MaxSize: 8 << 20}
	b := NewBroadcaster(pool, config, nil)
	publisher := newTestSession(nil, pool)
	r.StartPublishing(publisher, "/live/resume", nil)

	gate := make(chan struct{})
	sub := subscribe(t, r, b, pool, "/live/resume", 128, gate)
	publish := publisher.PublishStreamContext()
	subscribers := r.GetSubscribers("/live/resume")

	for i := 0; i < 10; i++ {
		b.BroadcastMediaMessage(publish, subscribers, MediaTypeVideo, uint32(i), true, []byte{0x27, 0x01})
	}
	close(gate)
	waitFor(t, "queue drained", func() bool {
		_, count := b.Outstanding(sub.session)
		return count == 0
	})
	delivered := len(sub.sender.messages())
	b.BroadcastMediaMessage(publish, subscribers, MediaTypeVideo, 100, true, []byte{0x27, 0x01})
	waitFor(t, "delivery after drain", func() bool { return len(sub.sender.messages()) == delivered+1 })

	r.StopSubscribing(sub.session)
	b.UnregisterSubscriber(sub.session)
}

func TestBroadcastAfterSubscriberCancelled(t *testing.T) {
	pool := NewBufferPool(64)
	r := NewRegistry(0)
	metrics := NewMetrics()
	b := NewBroadcaster(pool, DefaultMediaPacketConfig(), metrics)
	publisher := newTestSession(nil, pool)
	r.StartPublishing(publisher, "/live/gone", nil)

	sub := subscribe(t, r, b, pool, "/live/gone", 128, nil)
	q := b.queueOf(sub.session)
	sub.session.Close()
	select {
	case <-q.done:
	case <-time.After(5 * time.Second):
		t.Errorf("delivery goroutine did not stop after the session closed")
		t.FailNow()
	}

	// The subscriber is still registered until its connection is torn down.
	b.BroadcastMediaMessage(publisher.PublishStreamContext(), r.GetSubscribers("/live/gone"), MediaTypeVideo, 0, false, []byte{0x17, 0x00, 0, 0, 0})
	if dropped := metrics.Snapshot().PackagesDropped; dropped != 1 {
		t.Errorf("expected the package to be refused, %d dropped", dropped)
	}

	r.StopSubscribing(sub.session)
	b.UnregisterSubscriber(sub.session)
	if pool.Outstanding() != 0 {
		t.Errorf("expected every rented buffer recycled, %d outstanding", pool.Outstanding())
	}
}
