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
	"net"
	"sync"

	"github.com/gwuhaolin/livego/container/flv"
	"github.com/kris-nova/logger"
	"github.com/pkg/errors"
)

// Server accepts RTMP connections and relays published streams to players.
type Server struct {
	config      Config
	pool        *BufferPool
	registry    *Registry
	broadcaster *Broadcaster
	metrics     *Metrics
	keys        *StreamKeys
	authorizer  Authorizer
	flv         *flv.Demuxer

	onHandshakeComplete func(*ClientSession)

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type ServerOption func(*Server)

// WithAuthorizer replaces the publish and play policy.
func WithAuthorizer(a Authorizer) ServerOption {
	return func(s *Server) {
		s.authorizer = a
	}
}

// WithStreamKeys shares a key store with the server. Keys are only checked
// when the configuration requires them.
func WithStreamKeys(k *StreamKeys) ServerOption {
	return func(s *Server) {
		s.keys = k
	}
}

// WithHandshakeCallback registers fn to run once per connection when its
// handshake completes.
func WithHandshakeCallback(fn func(*ClientSession)) ServerOption {
	return func(s *Server) {
		s.onHandshakeComplete = fn
	}
}

func NewServer(config Config, opts ...ServerOption) *Server {
	config.SetDefaults()
	s := &Server{
		config:   config,
		pool:     NewBufferPool(config.MaxOutstandingBuffers),
		registry: NewRegistry(config.Media.MaxGOPCacheSize),
		metrics:  NewMetrics(),
		flv:      flv.NewDemuxer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.keys == nil {
		s.keys = NewStreamKeys()
	}
	if s.authorizer == nil {
		if config.RequireStreamKey {
			s.authorizer = s.keys
		} else {
			s.authorizer = AllowAll{}
		}
	}
	s.broadcaster = NewBroadcaster(s.pool, config.Media, s.metrics)
	return s
}

func (s *Server) Config() Config {
	return s.config
}

func (s *Server) Registry() *Registry {
	return s.registry
}

func (s *Server) StreamKeys() *StreamKeys {
	return s.keys
}

func (s *Server) BufferPool() *BufferPool {
	return s.pool
}

// Stats is a snapshot of the server metrics.
func (s *Server) Stats() Metrics {
	return s.metrics.Snapshot()
}

func (s *Server) Streams() []StreamInfo {
	return s.registry.Streams()
}

// ListenAndServe listens on the configured address and serves until ctx is
// done or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := Listen(s.config.Address, s.config.MaxConnections)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve accepts connections on l, one goroutine each.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.listener = l
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	logger.Always(rtmpServerMessage(fmt.Sprintf("listening on %s", l.Addr()), listen))
	for {
		netConn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "rtmp: accept")
		}
		c := s.newServerConn(netConn)
		s.wg.Add(1)
		go s.handleConn(ctx, c)
	}
}

// handleConn is the entry point for every new client to our RTMP server.
func (s *Server) handleConn(ctx context.Context, c *serverConn) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Critical(rtmpServerMessage(fmt.Sprintf("connection panic: %v", r), danger))
		}
	}()

	s.metrics.connectionOpened()
	defer s.metrics.connectionClosed()
	logger.Info(rtmpServerMessage(fmt.Sprintf("new client %s", c.netConn.RemoteAddr()), conn))

	err := c.serve(ctx)
	switch {
	case err == nil:
		logger.Info(rtmpServerMessage(fmt.Sprintf("client %s disconnected", c.netConn.RemoteAddr()), stop))
	case IsProtocolError(err):
		logger.Warning(rtmpServerMessage(fmt.Sprintf("client %s: %v", c.netConn.RemoteAddr(), err), danger))
	default:
		logger.Debug(rtmpServerMessage(fmt.Sprintf("client %s: %v", c.netConn.RemoteAddr(), err), stop))
	}
}

// Shutdown stops accepting, closes every connection and waits for their
// goroutines to finish.
func (s *Server) Shutdown() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Addr is the address Serve is accepting on, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
