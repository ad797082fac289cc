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
	"sort"
	"sync"
)

type PublishResult int

const (
	PublishSucceeded PublishResult = iota
	PublishAlreadyPublishing
	PublishAlreadyExists
	PublishAlreadySubscribing
)

func (r PublishResult) String() string {
	switch r {
	case PublishSucceeded:
		return "Succeeded"
	case PublishAlreadyPublishing:
		return "AlreadyPublishing"
	case PublishAlreadyExists:
		return "AlreadyExists"
	default:
		return "AlreadySubscribing"
	}
}

type SubscribeResult int

const (
	SubscribeSucceeded SubscribeResult = iota
	SubscribeAlreadySubscribing
	SubscribeAlreadyPublishing
)

func (r SubscribeResult) String() string {
	switch r {
	case SubscribeSucceeded:
		return "Succeeded"
	case SubscribeAlreadySubscribing:
		return "AlreadySubscribing"
	default:
		return "AlreadyPublishing"
	}
}

// StreamInfo is a point in time view of one published path.
type StreamInfo struct {
	Path        string
	PublisherID string
	Subscribers int
}

// Registry tracks which session publishes each stream path and which
// sessions subscribe to it.
//
// Publish registrations and subscriptions sit behind separate locks. Starting
// and stopping a publish takes both so the subscriber snapshot it returns is
// consistent with the registration.
type Registry struct {
	pubMu             sync.RWMutex
	publishingByPath  map[string]*PublishStreamContext
	publishingSession map[*ClientSession]*PublishStreamContext

	subMu              sync.RWMutex
	subscribersByPath  map[string][]*ClientSession
	subscribingSession map[*ClientSession]string

	maxGOPCacheSize int64
}

func NewRegistry(maxGOPCacheSize int64) *Registry {
	return &Registry{
		publishingByPath:   make(map[string]*PublishStreamContext),
		publishingSession:  make(map[*ClientSession]*PublishStreamContext),
		subscribersByPath:  make(map[string][]*ClientSession),
		subscribingSession: make(map[*ClientSession]string),
		maxGOPCacheSize:    maxGOPCacheSize,
	}
}

// StartPublishing registers session as the publisher of path. On success it
// returns the subscribers already waiting on path, snapshotted under the
// same lock acquisition as the registration.
func (r *Registry) StartPublishing(session *ClientSession, path string, args map[string]string) (PublishResult, []*ClientSession) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if _, ok := r.publishingSession[session]; ok {
		return PublishAlreadyPublishing, nil
	}
	if _, ok := r.subscribingSession[session]; ok {
		return PublishAlreadySubscribing, nil
	}
	if _, ok := r.publishingByPath[path]; ok {
		return PublishAlreadyExists, nil
	}

	streamID, _ := session.StreamID()
	ctx := newPublishStreamContext(session, streamID, path, args, r.maxGOPCacheSize)
	r.publishingByPath[path] = ctx
	r.publishingSession[session] = ctx
	session.setPublishStreamContext(ctx)

	return PublishSucceeded, copySessions(r.subscribersByPath[path])
}

// StopPublishing removes the registration of session and returns the
// subscribers of the path it published.
func (r *Registry) StopPublishing(session *ClientSession) ([]*ClientSession, bool) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	r.subMu.Lock()
	defer r.subMu.Unlock()

	ctx, ok := r.publishingSession[session]
	if !ok {
		return nil, false
	}
	delete(r.publishingSession, session)
	delete(r.publishingByPath, ctx.StreamPath)
	session.setPublishStreamContext(nil)
	return copySessions(r.subscribersByPath[ctx.StreamPath]), true
}

// StartSubscribing adds session to the subscribers of path. A publisher
// does not need to exist yet.
func (r *Registry) StartSubscribing(session *ClientSession, csid uint32, path string, args map[string]string) SubscribeResult {
	r.pubMu.RLock()
	_, publishing := r.publishingSession[session]
	r.pubMu.RUnlock()
	if publishing {
		return SubscribeAlreadyPublishing
	}

	r.subMu.Lock()
	defer r.subMu.Unlock()
	if _, ok := r.subscribingSession[session]; ok {
		return SubscribeAlreadySubscribing
	}
	streamID, _ := session.StreamID()
	session.setSubscriptionContext(newSubscriptionContext(streamID, csid, path, args))
	r.subscribingSession[session] = path
	r.subscribersByPath[path] = append(r.subscribersByPath[path], session)
	return SubscribeSucceeded
}

// StopSubscribing removes session from its path. It reports whether the
// session was subscribed.
func (r *Registry) StopSubscribing(session *ClientSession) bool {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	path, ok := r.subscribingSession[session]
	if !ok {
		return false
	}
	delete(r.subscribingSession, session)
	subs := r.subscribersByPath[path]
	for i, s := range subs {
		if s == session {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(r.subscribersByPath, path)
	} else {
		r.subscribersByPath[path] = subs
	}
	session.setSubscriptionContext(nil)
	return true
}

// GetSubscribers returns a copy of the subscribers of path.
func (r *Registry) GetSubscribers(path string) []*ClientSession {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	return copySessions(r.subscribersByPath[path])
}

func (r *Registry) GetPublisher(path string) (*ClientSession, bool) {
	r.pubMu.RLock()
	defer r.pubMu.RUnlock()
	ctx, ok := r.publishingByPath[path]
	if !ok {
		return nil, false
	}
	return ctx.Publisher, true
}

func (r *Registry) GetPublishStreamContext(path string) (*PublishStreamContext, bool) {
	r.pubMu.RLock()
	defer r.pubMu.RUnlock()
	ctx, ok := r.publishingByPath[path]
	return ctx, ok
}

// Streams lists the published paths in order.
func (r *Registry) Streams() []StreamInfo {
	r.pubMu.RLock()
	defer r.pubMu.RUnlock()
	r.subMu.RLock()
	defer r.subMu.RUnlock()

	var streams []StreamInfo
	for path, ctx := range r.publishingByPath {
		streams = append(streams, StreamInfo{
			Path:        path,
			PublisherID: ctx.Publisher.ID(),
			Subscribers: len(r.subscribersByPath[path]),
		})
	}
	sort.Slice(streams, func(i, j int) bool {
		return streams[i].Path < streams[j].Path
	})
	return streams
}

func copySessions(sessions []*ClientSession) []*ClientSession {
	if len(sessions) == 0 {
		return nil
	}
	out := make([]*ClientSession, len(sessions))
	copy(out, sessions)
	return out
}
