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
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/gwuhaolin/livego/protocol/amf"
	"github.com/pkg/errors"
)

var (
	testVideoSeq   = []byte{0x17, 0x00, 0x00, 0x00, 0x00, 0x01, 0x64, 0x00, 0x1f}
	testKeyFrame   = []byte{0x17, 0x01, 0x00, 0x00, 0x00, 0xaa, 0xbb, 0xcc}
	testAudioSeq   = []byte{0xaf, 0x00, 0x12, 0x10}
	testAudioFrame = []byte{0xaf, 0x01, 0x21, 0x22, 0x23}
)

type testServer struct {
	server *Server
	url    string
	cancel context.CancelFunc
	done   chan struct{}
}

func startTestServer(t *testing.T, config Config, opts ...ServerOption) *testServer {
	l, err := net.Listen(DefaultProtocol, "127.0.0.1:0")
	if err != nil {
		t.Errorf("listen: %v", err)
		t.FailNow()
	}
	server := NewServer(config, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{
		server: server,
		url:    "rtmp://" + l.Addr().String() + "/live",
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(ts.done)
		if err := server.Serve(ctx, NewListener(l, nil, 0)); err != nil {
			t.Errorf("serve: %v", err)
		}
	}()
	return ts
}

func (ts *testServer) stop() {
	ts.cancel()
	<-ts.done
	ts.server.Shutdown()
}

func testContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func dialStream(t *testing.T, ctx context.Context, url string) *Client {
	client, err := Dial(ctx, url)
	if err != nil {
		t.Errorf("dial: %v", err)
		t.FailNow()
	}
	if err := client.Connect(ctx); err != nil {
		t.Errorf("connect: %v", err)
		t.FailNow()
	}
	if _, err := client.CreateStream(ctx); err != nil {
		t.Errorf("createStream: %v", err)
		t.FailNow()
	}
	return client
}

func expectMedia(t *testing.T, ctx context.Context, client *Client, typeID MessageType, payload []byte) {
	msg, err := client.ReadMessage(ctx)
	if err != nil {
		t.Errorf("read message: %v", err)
		t.FailNow()
	}
	if msg.TypeID != typeID || !bytes.Equal(msg.Payload, payload) {
		t.Errorf("expected type %d % x, got type %d % x", typeID, payload, msg.TypeID, msg.Payload)
	}
}

func TestPublishPlay(t *testing.T) {
	ts := startTestServer(t, DefaultConfig())
	defer ts.stop()
	ctx, cancel := testContext()
	defer cancel()

	publisher := dialStream(t, ctx, ts.url+"/nova")
	defer publisher.Close()
	if err := publisher.Publish(ctx, ""); err != nil {
		t.Errorf("publish: %v", err)
		t.FailNow()
	}

	player := dialStream(t, ctx, ts.url+"/nova")
	defer player.Close()
	if err := player.Play(ctx, "nova"); err != nil {
		t.Errorf("play: %v", err)
		t.FailNow()
	}

	if err := publisher.WriteMetadata(amf.Object{"width": float64(1280)}); err != nil {
		t.Errorf("metadata: %v", err)
	}
	publisher.WriteMedia(MediaTypeVideo, 0, testVideoSeq)
	publisher.WriteMedia(MediaTypeAudio, 0, testAudioSeq)
	publisher.WriteMedia(MediaTypeVideo, 0, testKeyFrame)
	publisher.WriteMedia(MediaTypeAudio, 20, testAudioFrame)

	msg, err := player.ReadMessage(ctx)
	if err != nil {
		t.Errorf("read metadata: %v", err)
		t.FailNow()
	}
	values, err := decodeAMF0(msg.Payload)
	if err != nil || len(values) < 2 || values[0] != OnMetaData {
		t.Errorf("expected onMetaData without @setDataFrame, got %v %v", values, err)
	}
	expectMedia(t, ctx, player, VideoMessageID, testVideoSeq)
	expectMedia(t, ctx, player, AudioMessageID, testAudioSeq)
	expectMedia(t, ctx, player, VideoMessageID, testKeyFrame)
	expectMedia(t, ctx, player, AudioMessageID, testAudioFrame)

	// A late player gets the cache first: metadata, sequence headers, GOP.
	late := dialStream(t, ctx, ts.url+"/nova")
	defer late.Close()
	if err := late.Play(ctx, "nova"); err != nil {
		t.Errorf("late play: %v", err)
		t.FailNow()
	}
	if msg, err := late.ReadMessage(ctx); err != nil || msg.TypeID != DataAMF0MessageID {
		t.Errorf("expected cached metadata, got %v %v", msg, err)
	}
	expectMedia(t, ctx, late, VideoMessageID, testVideoSeq)
	expectMedia(t, ctx, late, AudioMessageID, testAudioSeq)
	expectMedia(t, ctx, late, VideoMessageID, testKeyFrame)
	expectMedia(t, ctx, late, AudioMessageID, testAudioFrame)

	streams := ts.server.Streams()
	if len(streams) != 1 || streams[0].Path != "/live/nova" || streams[0].Subscribers != 2 {
		t.Errorf("unexpected streams %+v", streams)
	}
	stats := ts.server.Stats()
	if stats.HandshakesCompleted != 3 || stats.BytesRX == 0 || stats.BytesTX == 0 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if err := publisher.DeleteStream(); err != nil {
		t.Errorf("delete stream: %v", err)
	}
	waitFor(t, "unpublish", func() bool { return len(ts.server.Streams()) == 0 })
	if n := len(ts.server.Registry().GetSubscribers("/live/nova")); n != 2 {
		t.Errorf("players stay subscribed after unpublish, got %d", n)
	}
}

func TestPublishConflicts(t *testing.T) {
	ts := startTestServer(t, DefaultConfig())
	defer ts.stop()
	ctx, cancel := testContext()
	defer cancel()

	first := dialStream(t, ctx, ts.url+"/taken")
	defer first.Close()
	if err := first.Publish(ctx, ""); err != nil {
		t.Errorf("publish: %v", err)
		t.FailNow()
	}

	second := dialStream(t, ctx, ts.url+"/taken")
	defer second.Close()
	if err := second.Publish(ctx, ""); !errors.Is(err, ErrCommandFailed) {
		t.Errorf("expected the second publish to fail, got %v", err)
	}
	// The connection stays usable after a refused publish.
	if err := second.Publish(ctx, "free"); err != nil {
		t.Errorf("publish on a free path: %v", err)
	}
	if err := first.Play(ctx, "free"); !errors.Is(err, ErrCommandFailed) {
		t.Errorf("a publisher must not play, got %v", err)
	}
}

func TestPublishRequiresStreamKey(t *testing.T) {
	config := DefaultConfig()
	config.RequireStreamKey = true
	ts := startTestServer(t, config)
	defer ts.stop()
	ctx, cancel := testContext()
	defer cancel()

	key := ts.server.StreamKeys().SetKey(StreamPath("live", "secure"))
	client := dialStream(t, ctx, ts.url+"/secure")
	defer client.Close()
	if err := client.Publish(ctx, "secure"); !errors.Is(err, ErrCommandFailed) {
		t.Errorf("expected publish without a key to fail, got %v", err)
	}
	if err := client.Publish(ctx, "secure?key=wrong"); !errors.Is(err, ErrCommandFailed) {
		t.Errorf("expected publish with a wrong key to fail, got %v", err)
	}
	if err := client.Publish(ctx, "secure?key="+key); err != nil {
		t.Errorf("publish with the key: %v", err)
	}
}

func TestPlayBeforePublish(t *testing.T) {
	ts := startTestServer(t, DefaultConfig())
	defer ts.stop()
	ctx, cancel := testContext()
	defer cancel()

	player := dialStream(t, ctx, ts.url+"/later")
	defer player.Close()
	if err := player.Play(ctx, "later"); err != nil {
		t.Errorf("play: %v", err)
		t.FailNow()
	}

	publisher := dialStream(t, ctx, ts.url+"/later")
	defer publisher.Close()
	if err := publisher.Publish(ctx, "later"); err != nil {
		t.Errorf("publish: %v", err)
		t.FailNow()
	}
	if err := player.waitStatus(ctx, PlayPublishNotify); err != nil {
		t.Errorf("expected PublishNotify: %v", err)
	}
	publisher.WriteMedia(MediaTypeVideo, 0, testVideoSeq)
	expectMedia(t, ctx, player, VideoMessageID, testVideoSeq)
}

func TestPublishBeforeCreateStream(t *testing.T) {
	ts := startTestServer(t, DefaultConfig())
	defer ts.stop()
	ctx, cancel := testContext()
	defer cancel()

	client, err := Dial(ctx, ts.url+"/nostream")
	if err != nil {
		t.Errorf("dial: %v", err)
		t.FailNow()
	}
	defer client.Close()
	if err := client.Connect(ctx); err != nil {
		t.Errorf("connect: %v", err)
	}
	if err := client.Publish(ctx, ""); !errors.Is(err, ErrStreamNotCreated) {
		t.Errorf("expected ErrStreamNotCreated, got %v", err)
	}
}

func TestServerShutdownReleasesBuffers(t *testing.T) {
	ts := startTestServer(t, DefaultConfig())
	ctx, cancel := testContext()
	defer cancel()

	publisher := dialStream(t, ctx, ts.url+"/bye")
	defer publisher.Close()
	publisher.Publish(ctx, "")
	player := dialStream(t, ctx, ts.url+"/bye")
	defer player.Close()
	player.Play(ctx, "")
	for i := 0; i < 50; i++ {
		publisher.WriteMedia(MediaTypeVideo, uint32(i*40), testKeyFrame)
	}

	ts.stop()
	if active := ts.server.Stats().ConnectionsActive; active != 0 {
		t.Errorf("expected no active connections, got %d", active)
	}
	if outstanding := ts.server.BufferPool().Outstanding(); outstanding != 0 {
		t.Errorf("expected every rented buffer released, %d outstanding", outstanding)
	}
}
